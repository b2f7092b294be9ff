// internal/gnjoy/urls.go
package gnjoy

import (
	"fmt"
	"net/url"
	"strconv"
)

// DefaultBaseURL is the GNJOY item-deal service root.
const DefaultBaseURL = "https://ro.gnjoy.com/itemDeal"

// Endpoint paths under the item-deal root. The service is a legacy ASP
// application; every page is a GET with query parameters.
const (
	dealListPath     = "/itemDealList.asp"
	priceHistoryPath = "/itemPriceHistory.asp"
	priceListPath    = "/itemPriceList.asp"
	itemDetailPath   = "/itemDealView.asp"
)

// Server identifies one game world. The public search form uses small ids
// (-1 for all worlds); rows in responses carry the internal world codes.
type Server int

const (
	ServerAll       Server = -1
	ServerBaphomet  Server = 1
	ServerYggdrasil Server = 2
	ServerDarkLord  Server = 3
	ServerIfrit     Server = 4
)

var serverNames = map[Server]string{
	ServerAll:       "전체",
	ServerBaphomet:  "바포메트",
	ServerYggdrasil: "이그드라실",
	ServerDarkLord:  "다크로드",
	ServerIfrit:     "이프리트",
}

// internalServerIDs maps the world codes embedded in deal rows back to the
// public search ids.
var internalServerIDs = map[int]Server{
	129: ServerBaphomet,
	229: ServerYggdrasil,
	529: ServerDarkLord,
	729: ServerIfrit,
}

// Name returns the Korean display name for the server, or its numeric form
// when unknown.
func (s Server) Name() string {
	if name, ok := serverNames[s]; ok {
		return name
	}
	return strconv.Itoa(int(s))
}

// ServerFromInternal translates an internal world code (129, 229, ...) to
// the public id. Unknown codes pass through unchanged so rows are never
// dropped over an unrecognized world.
func ServerFromInternal(code int) Server {
	if s, ok := internalServerIDs[code]; ok {
		return s
	}
	return Server(code)
}

// ServerFromName resolves a Korean server name as it appears in table cells.
func ServerFromName(name string) (Server, bool) {
	for id, n := range serverNames {
		if id == ServerAll {
			continue
		}
		if n == name {
			return id, true
		}
	}
	return 0, false
}

// URLBuilder constructs request URLs for the four marketplace endpoints.
type URLBuilder struct {
	base string
}

// NewURLBuilder creates a builder rooted at base (DefaultBaseURL when empty).
func NewURLBuilder(base string) *URLBuilder {
	if base == "" {
		base = DefaultBaseURL
	}
	return &URLBuilder{base: base}
}

// DealList builds the paged deal-listing search URL. Page numbering is
// 1-based; the service clamps page 0 to 1 server-side, but we never send it.
func (b *URLBuilder) DealList(itemName string, server Server, page int) string {
	if page < 1 {
		page = 1
	}
	q := url.Values{}
	q.Set("svrID", strconv.Itoa(int(server)))
	q.Set("itemFullName", itemName)
	q.Set("itemOrder", "regdate")
	q.Set("curpage", strconv.Itoa(page))
	return b.base + dealListPath + "?" + q.Encode()
}

// PriceHistory builds the price-history lookup URL for an exact item name.
func (b *URLBuilder) PriceHistory(itemName string, server Server) string {
	q := url.Values{}
	q.Set("svrID", strconv.Itoa(int(server)))
	q.Set("itemName", itemName)
	return b.base + priceHistoryPath + "?" + q.Encode()
}

// PriceList builds the fuzzy name search URL used to resolve exact price-list
// names from a deal listing's display name.
func (b *URLBuilder) PriceList(itemName string, server Server) string {
	q := url.Values{}
	q.Set("svrID", strconv.Itoa(int(server)))
	q.Set("itemName", itemName)
	return b.base + priceListPath + "?" + q.Encode()
}

// ItemDetail builds the detail page URL from the stable key a deal row
// carries: internal world code, map id, and the server-assigned ssi.
func (b *URLBuilder) ItemDetail(serverCode, mapID int, ssi string) string {
	q := url.Values{}
	q.Set("svrID", strconv.Itoa(serverCode))
	q.Set("mapID", strconv.Itoa(mapID))
	q.Set("ssi", ssi)
	return b.base + itemDetailPath + "?" + q.Encode()
}

// String implements fmt.Stringer for logging.
func (b *URLBuilder) String() string {
	return fmt.Sprintf("URLBuilder(%s)", b.base)
}
