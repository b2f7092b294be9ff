// internal/monitor/engine_test.go
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leader001a/ro-market-crawler-sub002/internal/gnjoy"
	"github.com/leader001a/ro-market-crawler-sub002/internal/parser"
	"github.com/leader001a/ro-market-crawler-sub002/internal/stats"
)

// fakeSource serves canned listings and statistics, with optional per-item
// failures and a hook that runs as each item's fetch begins.
type fakeSource struct {
	mu        sync.Mutex
	listings  map[string][]parser.Listing
	failNames map[string]bool
	stats     map[string]*stats.Statistics
	onFetch   func(name string)
	inFlight  atomic.Int32
	maxSeen   atomic.Int32
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		listings:  make(map[string][]parser.Listing),
		failNames: make(map[string]bool),
		stats:     make(map[string]*stats.Statistics),
	}
}

func (f *fakeSource) Listings(ctx context.Context, name string, server gnjoy.Server) ([]parser.Listing, error) {
	cur := f.inFlight.Add(1)
	for {
		seen := f.maxSeen.Load()
		if cur <= seen || f.maxSeen.CompareAndSwap(seen, cur) {
			break
		}
	}
	defer f.inFlight.Add(-1)

	if f.onFetch != nil {
		f.onFetch(name)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNames[name] {
		return nil, errors.New("upstream unavailable")
	}
	return f.listings[name], nil
}

func (f *fakeSource) Statistics(ctx context.Context, baseName string, server gnjoy.Server) (*stats.Statistics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.stats[baseName]; ok {
		return s, nil
	}
	return nil, nil
}

func sellListing(name string, price int64) parser.Listing {
	parts := parser.DecomposeItemName(name)
	return parser.Listing{
		DisplayName: name,
		BaseName:    parts.BaseName,
		Refine:      parts.Refine,
		Grade:       parts.Grade,
		Price:       price,
		Kind:        parser.DealSell,
	}
}

func newTestEngine(src *fakeSource, list *Watchlist) *Engine {
	return NewEngine(EngineConfig{Tick: 10 * time.Millisecond, Concurrency: 3}, src, list, nil)
}

func TestEngine_RoundCommitsAllAtOnce(t *testing.T) {
	src := newFakeSource()
	list := NewWatchlist(10, time.Minute)

	for i := 0; i < 5; i++ {
		name := fmt.Sprintf("아이템%d", i)
		list.Add(name, gnjoy.ServerAll)
		src.listings[name] = []parser.Listing{sellListing(name, int64(100*i + 100))}
	}
	// Item 3 fails upstream; its error is part of the same committed round.
	src.failNames["아이템3"] = true

	engine := newTestEngine(src, list)
	status, err := engine.RefreshNow(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if status.Total != 5 || status.Merged != 5 || status.Discarded != 0 {
		t.Errorf("unexpected status: %+v", status)
	}
	if status.Errors != 1 {
		t.Errorf("errors = %d, want 1", status.Errors)
	}

	results := list.Results()
	if len(results) != 5 {
		t.Fatalf("expected all 5 results visible after commit, got %d", len(results))
	}
	failed := results[Key{Name: "아이템3", Server: gnjoy.ServerAll}]
	if failed.Error == "" {
		t.Error("failed item should carry its error in the result")
	}
	if len(failed.Listings) != 0 {
		t.Error("failed item should have no listings")
	}
	ok := results[Key{Name: "아이템1", Server: gnjoy.ServerAll}]
	if len(ok.Listings) != 1 || ok.Listings[0].Price != 200 {
		t.Errorf("unexpected listings for 아이템1: %+v", ok.Listings)
	}
}

func TestEngine_ConcurrencyBounded(t *testing.T) {
	src := newFakeSource()
	list := NewWatchlist(10, time.Minute)
	for i := 0; i < 8; i++ {
		name := fmt.Sprintf("아이템%d", i)
		list.Add(name, gnjoy.ServerAll)
		src.listings[name] = []parser.Listing{sellListing(name, 100)}
	}
	src.onFetch = func(string) { time.Sleep(20 * time.Millisecond) }

	engine := newTestEngine(src, list)
	if _, err := engine.RefreshNow(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if max := src.maxSeen.Load(); max > 3 {
		t.Errorf("observed %d concurrent fetches, limit is 3", max)
	}
}

func TestEngine_StaleIdentityDiscardedMidFlight(t *testing.T) {
	src := newFakeSource()
	list := NewWatchlist(10, time.Minute)
	list.Add("포션", gnjoy.ServerAll)
	list.Add("부츠", gnjoy.ServerAll)
	src.listings["포션"] = []parser.Listing{sellListing("포션", 100)}
	src.listings["부츠"] = []parser.Listing{sellListing("부츠", 200)}

	// Rename 포션 while its refresh is in flight.
	var once sync.Once
	src.onFetch = func(name string) {
		if name == "포션" {
			once.Do(func() {
				list.Rename("포션", gnjoy.ServerAll, "붉은 포션")
			})
		}
	}

	engine := newTestEngine(src, list)
	status, err := engine.RefreshNow(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if status.Discarded != 1 || status.Merged != 1 {
		t.Errorf("merged/discarded = %d/%d, want 1/1", status.Merged, status.Discarded)
	}

	results := list.Results()
	if _, ok := results[Key{Name: "포션", Server: gnjoy.ServerAll}]; ok {
		t.Error("result leaked under the stale key")
	}
	if _, ok := results[Key{Name: "붉은 포션", Server: gnjoy.ServerAll}]; ok {
		t.Error("stale fetch must not satisfy the renamed identity")
	}
	if _, ok := results[Key{Name: "부츠", Server: gnjoy.ServerAll}]; !ok {
		t.Error("unaffected item should still be merged")
	}
}

// recordingArchiver captures every batch handed to the archive.
type recordingArchiver struct {
	mu      sync.Mutex
	batches []map[Key]MonitorResult
}

func (a *recordingArchiver) AppendRound(results map[Key]MonitorResult) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	copied := make(map[Key]MonitorResult, len(results))
	for k, v := range results {
		copied[k] = v
	}
	a.batches = append(a.batches, copied)
	return nil
}

func TestEngine_ArchiveExcludesDiscardedResults(t *testing.T) {
	src := newFakeSource()
	list := NewWatchlist(10, time.Minute)
	list.Add("포션", gnjoy.ServerAll)
	list.Add("부츠", gnjoy.ServerAll)
	src.listings["포션"] = []parser.Listing{sellListing("포션", 100)}
	src.listings["부츠"] = []parser.Listing{sellListing("부츠", 200)}

	var once sync.Once
	src.onFetch = func(name string) {
		if name == "포션" {
			once.Do(func() {
				list.Rename("포션", gnjoy.ServerAll, "붉은 포션")
			})
		}
	}

	engine := newTestEngine(src, list)
	archive := &recordingArchiver{}
	engine.SetArchiver(archive)

	if _, err := engine.RefreshNow(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	archive.mu.Lock()
	defer archive.mu.Unlock()
	if len(archive.batches) != 1 {
		t.Fatalf("expected 1 archived batch, got %d", len(archive.batches))
	}
	batch := archive.batches[0]
	if _, ok := batch[Key{Name: "포션", Server: gnjoy.ServerAll}]; ok {
		t.Error("discarded result archived under the stale key")
	}
	if _, ok := batch[Key{Name: "붉은 포션", Server: gnjoy.ServerAll}]; ok {
		t.Error("discarded result archived under the renamed key")
	}
	if _, ok := batch[Key{Name: "부츠", Server: gnjoy.ServerAll}]; !ok {
		t.Error("merged result missing from the archive batch")
	}
}

func TestEngine_CancellationMergesNothing(t *testing.T) {
	src := newFakeSource()
	list := NewWatchlist(10, time.Minute)
	for i := 0; i < 4; i++ {
		name := fmt.Sprintf("아이템%d", i)
		list.Add(name, gnjoy.ServerAll)
		src.listings[name] = []parser.Listing{sellListing(name, 100)}
	}

	ctx, cancel := context.WithCancel(context.Background())
	src.onFetch = func(string) {
		cancel()
		time.Sleep(5 * time.Millisecond)
	}

	engine := newTestEngine(src, list)
	status, err := engine.RefreshNow(ctx)
	if err == nil {
		t.Fatal("expected context error from cancelled round")
	}
	if !status.Cancelled {
		t.Error("status should report cancellation")
	}
	if len(list.Results()) != 0 {
		t.Error("cancelled round must merge nothing, not even finished items")
	}

	// Items are released, not stuck in-progress.
	if captured := list.captureAll(); len(captured) != 4 {
		t.Errorf("expected all 4 items capturable after abort, got %d", len(captured))
	}
}

func TestEngine_FiltersBuyOrdersAndAttachesStats(t *testing.T) {
	src := newFakeSource()
	list := NewWatchlist(10, time.Minute)
	list.Add("포션", gnjoy.ServerAll)

	buy := sellListing("포션", 50)
	buy.Kind = parser.DealBuy
	src.listings["포션"] = []parser.Listing{
		sellListing("포션", 100),
		sellListing("+7포션", 300),
		buy,
	}
	src.stats["포션"] = &stats.Statistics{YesterdayAvg: 120, WeekAvg: 110}

	engine := newTestEngine(src, list)
	if _, err := engine.RefreshNow(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res := list.Results()[Key{Name: "포션", Server: gnjoy.ServerAll}]
	if len(res.Listings) != 2 {
		t.Fatalf("buy order should be filtered, got %d listings", len(res.Listings))
	}
	for _, l := range res.Listings {
		if l.Stats == nil {
			t.Errorf("listing %q missing statistics", l.DisplayName)
		} else if l.Stats.YesterdayAvg != 120 {
			t.Errorf("listing %q has wrong statistics: %+v", l.DisplayName, l.Stats)
		}
	}
}

func TestEngine_SkipsStatsForGradedItems(t *testing.T) {
	src := newFakeSource()
	list := NewWatchlist(10, time.Minute)
	list.Add("카타르", gnjoy.ServerAll)
	src.listings["카타르"] = []parser.Listing{sellListing("[EPIC]카타르", 5000)}
	src.stats["카타르"] = &stats.Statistics{YesterdayAvg: 1}

	engine := newTestEngine(src, list)
	if _, err := engine.RefreshNow(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res := list.Results()[Key{Name: "카타르", Server: gnjoy.ServerAll}]
	if len(res.Listings) != 1 {
		t.Fatalf("expected 1 listing, got %d", len(res.Listings))
	}
	if res.Listings[0].Stats != nil {
		t.Error("graded variants must not carry aggregate statistics")
	}
}

func TestEngine_StartStop(t *testing.T) {
	src := newFakeSource()
	list := NewWatchlist(10, time.Minute)
	list.Add("포션", gnjoy.ServerAll)
	src.listings["포션"] = []parser.Listing{sellListing("포션", 100)}

	engine := newTestEngine(src, list)
	engine.Start(context.Background())

	// The staggered first item becomes due immediately (single item, offset
	// zero); wait for the tick loop to pick it up.
	deadline := time.After(2 * time.Second)
	for len(list.Results()) == 0 {
		select {
		case <-deadline:
			t.Fatal("tick loop never refreshed the due item")
		case <-time.After(10 * time.Millisecond):
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := engine.Stop(ctx); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
}

func TestEngine_Progress(t *testing.T) {
	src := newFakeSource()
	list := NewWatchlist(10, time.Minute)
	for i := 0; i < 3; i++ {
		name := fmt.Sprintf("아이템%d", i)
		list.Add(name, gnjoy.ServerAll)
		src.listings[name] = []parser.Listing{sellListing(name, 100)}
	}

	engine := newTestEngine(src, list)
	engine.RefreshNow(context.Background())

	completed, total := engine.Progress()
	if completed != 3 || total != 3 {
		t.Errorf("progress = %d/%d, want 3/3", completed, total)
	}
}
