// internal/parser/detail.go
package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ParseItemDetail extracts the detail view for one listing: the resolved
// name, the free-form attribute lines, and any card/enchant names. Returns
// a zero DetailInfo on unexpected markup.
func ParseItemDetail(html string) DetailInfo {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return DetailInfo{}
	}

	info := DetailInfo{}

	if name := doc.Find(".itemName, .item_name, h3.name").First(); name.Length() > 0 {
		info.Name = collapseDoubled(strings.TrimSpace(name.Text()))
	}

	doc.Find(".itemInfo li, .item_option li, .detailInfo li").Each(func(i int, s *goquery.Selection) {
		line := collapseDoubled(strings.TrimSpace(s.Text()))
		if line == "" {
			return
		}
		if isCardLine(line) {
			info.Cards = append(info.Cards, line)
			return
		}
		info.Attributes = append(info.Attributes, line)
	})

	// Fallback: some detail variants render options as <br>-separated text
	// inside a single block.
	if len(info.Attributes) == 0 && len(info.Cards) == 0 {
		block := doc.Find(".itemInfo, .item_option, .detailInfo").First().Text()
		for _, line := range strings.Split(block, "\n") {
			line = collapseDoubled(strings.TrimSpace(line))
			if line == "" {
				continue
			}
			if isCardLine(line) {
				info.Cards = append(info.Cards, line)
			} else {
				info.Attributes = append(info.Attributes, line)
			}
		}
	}

	return info
}

// isCardLine reports whether an option line names a socketed card or
// enchant rather than a stat.
func isCardLine(line string) bool {
	return strings.Contains(line, "카드") || strings.Contains(strings.ToLower(line), "card")
}
