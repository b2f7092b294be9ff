// internal/parser/itemname.go
package parser

import (
	"regexp"
	"strconv"
	"strings"
)

// NameParts is the decomposition of a rendered item name. Each marker is
// optional and independent; BaseName is what remains after stripping all of
// them and is the canonical cache/lookup key.
type NameParts struct {
	BaseName  string
	Refine    int
	SlotCount int
	Grade     Grade
}

var (
	refinePattern = regexp.MustCompile(`^\s*\+(\d+)\s*`)
	slotPattern   = regexp.MustCompile(`\[(\d+)\]\s*$`)
	gradePattern  = regexp.MustCompile(`(?i)^\s*\[(RARE|UNIQUE|EPIC|LEGEND|MYTHIC)\]\s*`)
)

// DecomposeItemName splits a rendered name into refine level, grade tag,
// slot count, and base name.
//
// The three markers appear as: leading "+N" refine, leading "[GRADE]" tag,
// trailing "[N]" slot count. "+10매드니스 브레스 슈즈[2]" decomposes to base
// "매드니스 브레스 슈즈", refine 10, slots 2.
func DecomposeItemName(name string) NameParts {
	parts := NameParts{}
	rest := collapseDoubled(strings.TrimSpace(name))

	// Refine and grade markers both sit at the front and can appear in
	// either order depending on the rendering path.
	for {
		if m := refinePattern.FindStringSubmatch(rest); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				parts.Refine = n
			}
			rest = rest[len(m[0]):]
			continue
		}
		if m := gradePattern.FindStringSubmatch(rest); m != nil {
			parts.Grade = Grade(strings.ToUpper(m[1]))
			rest = rest[len(m[0]):]
			continue
		}
		break
	}

	if m := slotPattern.FindStringSubmatch(rest); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			parts.SlotCount = n
		}
		rest = rest[:len(rest)-len(m[0])]
	}

	parts.BaseName = strings.TrimSpace(rest)
	return parts
}

// collapseDoubled detects the exact doubled-string artifact the headless
// rendering path can introduce ("ab" -> "abab") and keeps one half.
func collapseDoubled(s string) string {
	if len(s) == 0 || len(s)%2 != 0 {
		return s
	}
	half := len(s) / 2
	if s[:half] == s[half:] {
		return s[:half]
	}
	return s
}

// ComposeDisplayName rebuilds the rendered form from parts, used when a
// canonical listing has to be shown or re-queried verbatim.
func ComposeDisplayName(parts NameParts) string {
	var b strings.Builder
	if parts.Refine > 0 {
		b.WriteString("+")
		b.WriteString(strconv.Itoa(parts.Refine))
	}
	if parts.Grade != GradeNone {
		b.WriteString("[")
		b.WriteString(string(parts.Grade))
		b.WriteString("]")
	}
	b.WriteString(parts.BaseName)
	if parts.SlotCount > 0 {
		b.WriteString("[")
		b.WriteString(strconv.Itoa(parts.SlotCount))
		b.WriteString("]")
	}
	return b.String()
}
