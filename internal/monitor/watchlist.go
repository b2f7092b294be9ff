// internal/monitor/watchlist.go
package monitor

import (
	"sync"
	"time"

	"github.com/leader001a/ro-market-crawler-sub002/internal/gnjoy"
)

// watchEntry is the live, mutable configuration record. Only the Watchlist
// touches it, always under the list mutex.
type watchEntry struct {
	name        string
	server      gnjoy.Server
	addedAt     time.Time
	nextDue     time.Time
	inProgress  bool
	awaitingAck bool
}

// Watchlist owns the watched-item configuration and the visible result
// store. Both live under one mutex so compound operations (rename plus
// result eviction, round commit plus identity re-check) are atomic with
// respect to concurrent scheduler passes.
type Watchlist struct {
	mu       sync.Mutex
	entries  []*watchEntry
	results  map[Key]MonitorResult
	capacity int
	interval time.Duration

	now func() time.Time
}

// NewWatchlist creates a list with the given capacity (DefaultCapacity
// when zero) and refresh interval.
func NewWatchlist(capacity int, interval time.Duration) *Watchlist {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Watchlist{
		results:  make(map[Key]MonitorResult),
		capacity: capacity,
		interval: interval,
		now:      time.Now,
	}
}

// Add registers a new (name, server) pair. Fails with ErrDuplicate or
// ErrCapacityReached; both leave the list untouched.
func (w *Watchlist) Add(name string, server gnjoy.Server) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.findLocked(name, server) != nil {
		return ErrDuplicate
	}
	if len(w.entries) >= w.capacity {
		return ErrCapacityReached
	}

	now := w.now()
	w.entries = append(w.entries, &watchEntry{
		name:    name,
		server:  server,
		addedAt: now,
		nextDue: now, // due immediately; Stagger spreads fresh lists
	})
	return nil
}

// Remove drops an item and its visible result in one critical section.
func (w *Watchlist) Remove(name string, server gnjoy.Server) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i, e := range w.entries {
		if e.name == name && e.server == server {
			w.entries = append(w.entries[:i], w.entries[i+1:]...)
			delete(w.results, Key{Name: name, Server: server})
			return nil
		}
	}
	return ErrNotFound
}

// Rename changes an item's name. The old result-store entry is evicted
// under the same lock so no scheduler pass can see the new name in config
// while results are still keyed by the old one. An in-flight refresh for
// the old identity will be discarded at commit.
func (w *Watchlist) Rename(oldName string, server gnjoy.Server, newName string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	e := w.findLocked(oldName, server)
	if e == nil {
		return ErrNotFound
	}
	if newName != oldName && w.findLocked(newName, server) != nil {
		return ErrDuplicate
	}

	delete(w.results, Key{Name: oldName, Server: server})
	e.name = newName
	e.inProgress = false
	e.awaitingAck = false
	e.nextDue = w.now()
	return nil
}

// UpdateServer reassigns an item to another server, evicting the old
// result under the same lock.
func (w *Watchlist) UpdateServer(name string, oldServer, newServer gnjoy.Server) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	e := w.findLocked(name, oldServer)
	if e == nil {
		return ErrNotFound
	}
	if oldServer != newServer && w.findLocked(name, newServer) != nil {
		return ErrDuplicate
	}

	delete(w.results, Key{Name: name, Server: oldServer})
	e.server = newServer
	e.inProgress = false
	e.awaitingAck = false
	e.nextDue = w.now()
	return nil
}

// SetInterval updates the refresh interval for subsequent scheduling.
func (w *Watchlist) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.interval = d
}

// Interval returns the configured refresh interval.
func (w *Watchlist) Interval() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.interval
}

// Stagger spreads due times evenly across one interval (interval/N apart)
// so N items are not all fetched at once. Called on first activation.
func (w *Watchlist) Stagger() {
	w.mu.Lock()
	defer w.mu.Unlock()

	n := len(w.entries)
	if n == 0 {
		return
	}
	now := w.now()
	step := w.interval / time.Duration(n)
	for i, e := range w.entries {
		e.nextDue = now.Add(step * time.Duration(i))
	}
}

// Count returns the number of configured items.
func (w *Watchlist) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

// Items returns point-in-time copies of every entry, for persistence and
// the API surface.
func (w *Watchlist) Items() []WatchItem {
	w.mu.Lock()
	defer w.mu.Unlock()

	items := make([]WatchItem, 0, len(w.entries))
	for _, e := range w.entries {
		items = append(items, WatchItem{
			Name:       e.name,
			Server:     e.server,
			AddedAt:    e.addedAt,
			NextDue:    e.nextDue,
			InProgress: e.inProgress,
		})
	}
	return items
}

// Restore replaces the configuration with persisted items, keeping their
// added-at timestamps, and returns how many entries were kept after
// duplicate and capacity clamping. Results are cleared; they belong to a
// past session.
func (w *Watchlist) Restore(items []WatchItem) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.entries = w.entries[:0]
	w.results = make(map[Key]MonitorResult)
	now := w.now()
	for _, it := range items {
		if len(w.entries) >= w.capacity {
			break
		}
		if w.findLocked(it.Name, it.Server) != nil {
			continue // duplicate-name normalization on load
		}
		added := it.AddedAt
		if added.IsZero() {
			added = now
		}
		w.entries = append(w.entries, &watchEntry{
			name:    it.Name,
			server:  it.Server,
			addedAt: added,
			nextDue: now,
		})
	}
	return len(w.entries)
}

// Results returns a copy of the visible result store.
func (w *Watchlist) Results() map[Key]MonitorResult {
	w.mu.Lock()
	defer w.mu.Unlock()

	snapshot := make(map[Key]MonitorResult, len(w.results))
	for k, v := range w.results {
		snapshot[k] = v
	}
	return snapshot
}

// Confirm acknowledges that committed results have been consumed: each
// acknowledged item's countdown restarts from now. Without confirmation
// the provisional due time set at commit keeps the item cycling, so a
// consumer that never reads does not stall refreshes.
func (w *Watchlist) Confirm() {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	for _, e := range w.entries {
		if e.awaitingAck {
			e.awaitingAck = false
			e.nextDue = now.Add(w.interval)
		}
	}
}

// captureDue marks due entries in-progress and returns identity copies
// for the refresh round. An entry is due when its next-due time has passed
// and no refresh for it is in flight.
func (w *Watchlist) captureDue() []WatchItem {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.captureLocked(func(e *watchEntry) bool {
		return !e.inProgress && !w.now().Before(e.nextDue)
	})
}

// captureAll marks every idle entry in-progress, used by refresh-now.
func (w *Watchlist) captureAll() []WatchItem {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.captureLocked(func(e *watchEntry) bool {
		return !e.inProgress
	})
}

func (w *Watchlist) captureLocked(due func(*watchEntry) bool) []WatchItem {
	var captured []WatchItem
	for _, e := range w.entries {
		if !due(e) {
			continue
		}
		e.inProgress = true
		captured = append(captured, WatchItem{
			Name:       e.name,
			Server:     e.server,
			AddedAt:    e.addedAt,
			NextDue:    e.nextDue,
			InProgress: true,
		})
	}
	return captured
}

// commitRound merges a completed round into the visible store. All of it
// happens under one lock: for each result the captured key is re-resolved
// against live configuration, and results whose identity was renamed or
// removed mid-flight are dropped, never merged under either key.
func (w *Watchlist) commitRound(results []MonitorResult) RoundStatus {
	w.mu.Lock()
	defer w.mu.Unlock()

	status := RoundStatus{Total: len(results)}
	now := w.now()

	for _, r := range results {
		e := w.findLocked(r.Key.Name, r.Key.Server)
		if e == nil {
			// Stale identity: silently discard.
			status.Discarded++
			continue
		}
		w.results[r.Key] = r
		e.inProgress = false
		e.awaitingAck = true
		e.nextDue = now.Add(w.interval) // provisional; Confirm restarts it
		status.Merged++
		status.MergedKeys = append(status.MergedKeys, r.Key)
		if r.Error != "" {
			status.Errors++
		}
	}
	return status
}

// abortRound releases in-progress marks without merging anything, used on
// cancellation.
func (w *Watchlist) abortRound(keys []Key) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, k := range keys {
		if e := w.findLocked(k.Name, k.Server); e != nil {
			e.inProgress = false
		}
	}
}

func (w *Watchlist) findLocked(name string, server gnjoy.Server) *watchEntry {
	for _, e := range w.entries {
		if e.name == name && e.server == server {
			return e
		}
	}
	return nil
}
