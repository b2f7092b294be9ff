// internal/stats/stats.go

// Package stats derives price summaries from history rows and caches them
// per (item, server) key with a fixed TTL.
package stats

import (
	"sort"
	"time"

	"github.com/leader001a/ro-market-crawler-sub002/internal/parser"
)

// Statistics is the derived price summary for one exact item name on one
// server. A nil *Statistics is meaningful: it records "no history found".
type Statistics struct {
	YesterdayAvg int64
	WeekAvg      int64
	// Delta is yesterday's average minus the trailing 7-day average; a
	// positive value means the price is running above its weekly level.
	Delta      int64
	SampleDays int
	DerivedAt  time.Time
}

// Derive computes Statistics from history points, which may arrive in any
// order. Returns nil when there is nothing to summarize.
func Derive(points []parser.PriceHistoryPoint, now time.Time) *Statistics {
	if len(points) == 0 {
		return nil
	}

	sorted := make([]parser.PriceHistoryPoint, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	yesterday := truncateDay(now).AddDate(0, 0, -1)
	weekStart := truncateDay(now).AddDate(0, 0, -7)

	var (
		weekSum   int64
		weekDays  int
		yAvg      int64
		yFound    bool
	)
	for _, p := range sorted {
		day := truncateDay(p.Date)
		if day.Equal(yesterday) {
			yAvg = p.Avg
			yFound = true
		}
		if !day.Before(weekStart) && day.Before(truncateDay(now)) {
			weekSum += p.Avg
			weekDays++
		}
	}

	if weekDays == 0 && !yFound {
		// History exists but all of it predates the window; fall back to
		// the most recent day so stale items still show something.
		last := sorted[len(sorted)-1]
		return &Statistics{
			YesterdayAvg: last.Avg,
			WeekAvg:      last.Avg,
			SampleDays:   1,
			DerivedAt:    now,
		}
	}

	s := &Statistics{
		SampleDays: weekDays,
		DerivedAt:  now,
	}
	if weekDays > 0 {
		s.WeekAvg = weekSum / int64(weekDays)
	}
	if yFound {
		s.YesterdayAvg = yAvg
	} else {
		s.YesterdayAvg = s.WeekAvg
	}
	s.Delta = s.YesterdayAvg - s.WeekAvg
	return s
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
