// internal/parser/pricelist.go
package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ParsePriceList extracts the exact-name candidates a fuzzy price-list
// search returns. Column layout: name | latest average | deal count.
func ParsePriceList(html string) []PriceListEntry {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	table := findPriceListTable(doc)
	if table == nil {
		return nil
	}

	var entries []PriceListEntry
	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}
		name := collapseDoubled(strings.TrimSpace(cells.Eq(0).Text()))
		if name == "" {
			return
		}
		entry := PriceListEntry{
			Name:      name,
			LatestAvg: parseNumber(cells.Eq(1).Text()),
		}
		if cells.Length() > 2 {
			entry.DealCount = int(parseNumber(cells.Eq(2).Text()))
		}
		entries = append(entries, entry)
	})
	return entries
}

func findPriceListTable(doc *goquery.Document) *goquery.Selection {
	selectors := []string{
		"table.priceList",
		"table.tbl_price",
		"table#priceList",
	}
	for _, sel := range selectors {
		if t := doc.Find(sel).First(); t.Length() > 0 {
			return t
		}
	}

	var found *goquery.Selection
	doc.Find("table").EachWithBreak(func(i int, t *goquery.Selection) bool {
		header := t.Find("th").Text()
		if strings.Contains(header, "아이템") {
			found = t
			return false
		}
		return true
	})
	return found
}

// MatchExactName picks the best price-list candidate for a deal item's
// name. Priority is exact match, then prefix, then suffix; the first hit in
// page order wins within each tier. No match is a valid outcome and
// returns ok=false, never an error.
func MatchExactName(name string, entries []PriceListEntry) (PriceListEntry, bool) {
	for _, e := range entries {
		if e.Name == name {
			return e, true
		}
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name, name) {
			return e, true
		}
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name, name) {
			return e, true
		}
	}
	return PriceListEntry{}, false
}
