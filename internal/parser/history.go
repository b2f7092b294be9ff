// internal/parser/history.go
package parser

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// historyDateLayouts covers the date formats the history page has shipped
// with over time.
var historyDateLayouts = []string{
	"2006-01-02",
	"2006.01.02",
	"01-02", // current year implied
}

// ParsePriceHistory extracts daily {date, min, avg, max} rows from a
// price-history page. Like the other extractors it degrades to an empty
// slice on unexpected markup.
//
// Column layout: date | min | avg | max. Rows arrive newest first; the
// returned slice preserves page order.
func ParsePriceHistory(html string) []PriceHistoryPoint {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	table := findHistoryTable(doc)
	if table == nil {
		return nil
	}

	var points []PriceHistoryPoint
	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 4 {
			return
		}

		date, ok := parseHistoryDate(collapseDoubled(strings.TrimSpace(cells.Eq(0).Text())))
		if !ok {
			return
		}

		points = append(points, PriceHistoryPoint{
			Date: date,
			Min:  parseNumber(cells.Eq(1).Text()),
			Avg:  parseNumber(cells.Eq(2).Text()),
			Max:  parseNumber(cells.Eq(3).Text()),
		})
	})
	return points
}

func findHistoryTable(doc *goquery.Document) *goquery.Selection {
	selectors := []string{
		"table.priceHistory",
		"table.tbl_history",
		"table#priceHistory",
	}
	for _, sel := range selectors {
		if t := doc.Find(sel).First(); t.Length() > 0 {
			return t
		}
	}

	var found *goquery.Selection
	doc.Find("table").EachWithBreak(func(i int, t *goquery.Selection) bool {
		header := t.Find("th").Text()
		if strings.Contains(header, "평균") || strings.Contains(header, "최저") {
			found = t
			return false
		}
		return true
	})
	return found
}

func parseHistoryDate(text string) (time.Time, bool) {
	for _, layout := range historyDateLayouts {
		if d, err := time.Parse(layout, text); err == nil {
			if d.Year() == 0 {
				now := time.Now()
				d = time.Date(now.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.Local)
			}
			return d, true
		}
	}
	return time.Time{}, false
}
