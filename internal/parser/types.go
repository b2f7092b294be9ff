// internal/parser/types.go
package parser

import (
	"time"

	"github.com/leader001a/ro-market-crawler-sub002/internal/gnjoy"
)

// DealKind distinguishes sell-side stalls from buy orders. The deal table
// marks the shop cell with a "sale" or "buy" CSS class.
type DealKind string

const (
	DealSell    DealKind = "sell"
	DealBuy     DealKind = "buy"
	DealUnknown DealKind = ""
)

// Grade is the bracketed rarity tier some item names carry. Graded items
// trade on per-roll stats, so their aggregate price history is unreliable.
type Grade string

const (
	GradeNone   Grade = ""
	GradeRare   Grade = "RARE"
	GradeUnique Grade = "UNIQUE"
	GradeEpic   Grade = "EPIC"
	GradeLegend Grade = "LEGEND"
	GradeMythic Grade = "MYTHIC"
)

// Listing is one observed marketplace offer, immutable once parsed.
type Listing struct {
	Server     gnjoy.Server
	ServerName string

	// DisplayName is the full name as rendered (refine marker, grade tag,
	// slot suffix included); BaseName is the canonical lookup key with all
	// markers stripped.
	DisplayName string
	BaseName    string
	Refine      int // 0 when the name carries no +N marker
	Grade       Grade
	SlotCount   int
	Cards       []string

	Quantity int
	Price    int64
	Kind     DealKind
	ShopName string
	MapName  string

	// SSI plus MapID form the stable key for the detail endpoint.
	SSI        string
	MapID      int
	ServerCode int // internal world code as embedded in the row

	ImageURL  string
	CrawledAt time.Time
}

// PriceHistoryPoint is one calendar day's aggregate prices.
type PriceHistoryPoint struct {
	Date time.Time
	Min  int64
	Avg  int64
	Max  int64
}

// PriceListEntry is one candidate from the fuzzy price-list search.
type PriceListEntry struct {
	Name      string
	LatestAvg int64
	DealCount int
}

// DetailInfo is the parsed item-detail page: free-form attribute lines plus
// resolved card/enchant names.
type DetailInfo struct {
	Name       string
	Attributes []string
	Cards      []string
}
