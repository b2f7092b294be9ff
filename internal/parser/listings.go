// internal/parser/listings.go
package parser

import (
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/leader001a/ro-market-crawler-sub002/internal/gnjoy"
)

// detailViewPattern matches the onclick handler every deal row carries:
// CallItemDealView(<world code>, <map id>, '<ssi>', ...).
var detailViewPattern = regexp.MustCompile(`CallItemDealView\((\d+)\s*,\s*(\d+)\s*,\s*'([^']*)'`)

var numberPattern = regexp.MustCompile(`[\d,]+`)

// ParseDealList extracts listings from an itemDealList page. It never
// returns an error: when the expected table cannot be located it falls back
// to a permissive row scan, and when that finds nothing the result is
// simply empty. Malformed rows are skipped, not fatal.
func ParseDealList(html string, defaultServer gnjoy.Server) []Listing {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	table := findDealTable(doc)
	if table == nil {
		return scanDealRows(doc, defaultServer)
	}

	now := time.Now()
	var listings []Listing
	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 5 {
			return // header or filler row
		}
		if l, ok := parseDealRow(cells, defaultServer, now); ok {
			listings = append(listings, l)
		}
	})
	return listings
}

// findDealTable tries the known markup variants in order of likelihood.
func findDealTable(doc *goquery.Document) *goquery.Selection {
	selectors := []string{
		"table.dealList",
		"table.tbl_deal",
		"table#dealList",
	}
	for _, sel := range selectors {
		if t := doc.Find(sel).First(); t.Length() > 0 {
			return t
		}
	}

	// Last structured resort: any table whose header mentions the server
	// or price columns.
	var found *goquery.Selection
	doc.Find("table").EachWithBreak(func(i int, t *goquery.Selection) bool {
		header := t.Find("th").Text()
		if strings.Contains(header, "서버") || strings.Contains(header, "가격") {
			found = t
			return false
		}
		return true
	})
	return found
}

// parseDealRow converts one <tr> into a Listing.
//
// Column layout: server | item (link with detail onclick, image) | quantity |
// price | shop (class buy/sale) | optional map.
func parseDealRow(cells *goquery.Selection, defaultServer gnjoy.Server, now time.Time) (Listing, bool) {
	serverCell := collapseDoubled(strings.TrimSpace(cells.Eq(0).Text()))
	itemCell := cells.Eq(1)

	rawName := collapseDoubled(strings.TrimSpace(itemCell.Text()))
	if rawName == "" {
		return Listing{}, false
	}
	parts := DecomposeItemName(rawName)

	l := Listing{
		Server:      defaultServer,
		ServerName:  serverCell,
		DisplayName: rawName,
		BaseName:    parts.BaseName,
		Refine:      parts.Refine,
		Grade:       parts.Grade,
		SlotCount:   parts.SlotCount,
		Quantity:    int(parseNumber(cells.Eq(2).Text())),
		Price:       parseNumber(cells.Eq(3).Text()),
		CrawledAt:   now,
	}

	if s, ok := gnjoy.ServerFromName(serverCell); ok {
		l.Server = s
	}

	if onclick, ok := itemCell.Find("a[onclick]").Attr("onclick"); ok {
		if m := detailViewPattern.FindStringSubmatch(onclick); m != nil {
			l.ServerCode = int(parseNumber(m[1]))
			l.MapID = int(parseNumber(m[2]))
			l.SSI = m[3]
			if resolved := gnjoy.ServerFromInternal(l.ServerCode); resolved != gnjoy.Server(l.ServerCode) {
				l.Server = resolved
			}
		}
	}

	if src, ok := itemCell.Find("img").Attr("src"); ok {
		l.ImageURL = src
	}

	shopCell := cells.Eq(4)
	l.ShopName = collapseDoubled(strings.TrimSpace(shopCell.Text()))
	l.Kind = dealKindFromClass(shopCell.AttrOr("class", ""))

	if cells.Length() > 5 {
		l.MapName = collapseDoubled(strings.TrimSpace(cells.Eq(5).Text()))
	}

	return l, true
}

// scanDealRows is the permissive fallback: treat every table row with at
// least five cells as a candidate deal row, wherever it sits.
func scanDealRows(doc *goquery.Document, defaultServer gnjoy.Server) []Listing {
	now := time.Now()
	var listings []Listing
	doc.Find("tr").Each(func(i int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 5 {
			return
		}
		// Require a numeric price cell so navigation chrome is not
		// mistaken for data.
		if parseNumber(cells.Eq(3).Text()) == 0 {
			return
		}
		if l, ok := parseDealRow(cells, defaultServer, now); ok {
			listings = append(listings, l)
		}
	})
	return listings
}

func dealKindFromClass(class string) DealKind {
	switch {
	case strings.Contains(class, "buy"):
		return DealBuy
	case strings.Contains(class, "sale"), strings.Contains(class, "sell"):
		return DealSell
	default:
		return DealUnknown
	}
}

// parseNumber pulls the first integer out of text, tolerating comma
// grouping and the trailing zeny unit.
func parseNumber(text string) int64 {
	m := numberPattern.FindString(text)
	if m == "" {
		return 0
	}
	m = strings.ReplaceAll(m, ",", "")
	var n int64
	for _, r := range m {
		n = n*10 + int64(r-'0')
	}
	return n
}
