// internal/monitor/types.go

// Package monitor keeps the user's watch-list refreshed: it schedules due
// items, fetches their listings with bounded concurrency, and commits each
// refresh round atomically so a mutating watch-list can never observe a
// half-applied round.
package monitor

import (
	"errors"
	"time"

	"github.com/leader001a/ro-market-crawler-sub002/internal/gnjoy"
	"github.com/leader001a/ro-market-crawler-sub002/internal/parser"
	"github.com/leader001a/ro-market-crawler-sub002/internal/stats"
)

// DefaultCapacity bounds how many items one watch-list holds.
const DefaultCapacity = 10

// Typed failure reasons for configuration-mutating calls. These are
// expected outcomes, not faults.
var (
	ErrDuplicate       = errors.New("item already watched")
	ErrCapacityReached = errors.New("watch-list limit reached")
	ErrNotFound        = errors.New("item not watched")
)

// Key identifies a watched item: exact display name plus server. Results
// are keyed by the identity captured at refresh start; commit re-resolves
// the key against live configuration.
type Key struct {
	Name   string
	Server gnjoy.Server
}

// WatchItem is a point-in-time copy of one configuration entry. The
// authoritative mutable state lives inside the Watchlist; copies handed
// out never alias it.
type WatchItem struct {
	Name       string
	Server     gnjoy.Server
	AddedAt    time.Time
	NextDue    time.Time
	InProgress bool
}

// Key returns the item's identity key.
func (w WatchItem) Key() Key {
	return Key{Name: w.Name, Server: w.Server}
}

// ResultListing is one listing with its variant's statistics attached.
// Stats is nil for graded variants and for variants with no history.
type ResultListing struct {
	parser.Listing
	Stats *stats.Statistics
}

// MonitorResult is the latest refresh outcome for one watched item.
type MonitorResult struct {
	Key         Key
	Listings    []ResultListing
	RefreshedAt time.Time
	// Error carries a per-item failure without invalidating listings that
	// were already collected (statistics lookups can fail independently).
	Error string
}

// RoundStatus summarizes one completed refresh round.
type RoundStatus struct {
	Total      int
	Merged     int
	MergedKeys []Key // identities that survived the commit re-resolution
	Discarded  int
	Errors     int
	Cancelled  bool
	Duration   time.Duration
}
