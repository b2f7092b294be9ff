// internal/monitor/engine.go
package monitor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leader001a/ro-market-crawler-sub002/internal/gnjoy"
	"github.com/leader001a/ro-market-crawler-sub002/internal/parser"
	"github.com/leader001a/ro-market-crawler-sub002/internal/stats"
	"github.com/leader001a/ro-market-crawler-sub002/internal/utils"
)

// Source provides the marketplace operations one refresh needs. The
// market.Service satisfies it.
type Source interface {
	Listings(ctx context.Context, name string, server gnjoy.Server) ([]parser.Listing, error)
	Statistics(ctx context.Context, baseName string, server gnjoy.Server) (*stats.Statistics, error)
}

// Observer receives refresh telemetry. Implemented by the metrics layer;
// nil is fine.
type Observer interface {
	ItemRefreshed(failed bool)
	RoundCompleted(status RoundStatus)
}

// Archiver persists committed rounds for later export. Implemented by the
// listing archive; nil is fine.
type Archiver interface {
	AppendRound(results map[Key]MonitorResult) error
}

// EngineConfig holds refresh engine settings.
type EngineConfig struct {
	Tick        time.Duration // scheduler tick; items are selected per tick
	Concurrency int           // max refreshes in flight
}

// DefaultEngineConfig returns the production settings.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Tick:        2 * time.Second,
		Concurrency: 3,
	}
}

// Engine drives refresh rounds over a Watchlist.
//
// Each round captures due items' identities by value, refreshes them under
// a bounded semaphore, accumulates results in an uncommitted batch, and
// merges only once every item has finished. Cancellation mid-round merges
// nothing.
type Engine struct {
	cfg      EngineConfig
	source   Source
	list     *Watchlist
	logger   utils.Logger
	observer Observer
	archiver Archiver

	// one round at a time; ticks that land mid-round are skipped
	roundMu sync.Mutex

	completed atomic.Int32
	total     atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine creates an engine. list and source must not be nil.
func NewEngine(cfg EngineConfig, source Source, list *Watchlist, logger utils.Logger) *Engine {
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultEngineConfig().Tick
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultEngineConfig().Concurrency
	}
	if logger == nil {
		logger = utils.NewLogger()
	}
	return &Engine{
		cfg:    cfg,
		source: source,
		list:   list,
		logger: logger,
	}
}

// SetObserver installs refresh telemetry.
func (e *Engine) SetObserver(o Observer) {
	e.observer = o
}

// SetArchiver installs round persistence.
func (e *Engine) SetArchiver(a Archiver) {
	e.archiver = a
}

// Watchlist returns the underlying configuration/result store.
func (e *Engine) Watchlist() *Watchlist {
	return e.list
}

// Start stagger-schedules the current items and begins the tick loop.
func (e *Engine) Start(ctx context.Context) {
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.list.Stagger()

	e.wg.Add(1)
	go e.run()

	e.logger.Infof("refresh engine started (tick %s, concurrency %d)", e.cfg.Tick, e.cfg.Concurrency)
}

// Stop cancels any in-flight round and waits for the loop to exit.
func (e *Engine) Stop(ctx context.Context) error {
	if e.cancel != nil {
		e.cancel()
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.logger.Info("refresh engine stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) run() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			if items := e.list.captureDue(); len(items) > 0 {
				e.runRound(e.ctx, items)
			}
		}
	}
}

// RefreshNow runs one round over every idle item immediately, regardless
// of due times. Blocks until the round commits or ctx is cancelled.
func (e *Engine) RefreshNow(ctx context.Context) (RoundStatus, error) {
	items := e.list.captureAll()
	if len(items) == 0 {
		return RoundStatus{}, nil
	}
	return e.runRound(ctx, items), ctx.Err()
}

// Progress reports completed vs total for the current (or last) round.
func (e *Engine) Progress() (completed, total int) {
	return int(e.completed.Load()), int(e.total.Load())
}

// runRound refreshes the captured items and commits the batch.
func (e *Engine) runRound(ctx context.Context, items []WatchItem) RoundStatus {
	e.roundMu.Lock()
	defer e.roundMu.Unlock()

	start := time.Now()
	e.total.Store(int32(len(items)))
	e.completed.Store(0)

	sem := make(chan struct{}, e.cfg.Concurrency)
	results := make([]MonitorResult, len(items))
	var wg sync.WaitGroup

	for i, item := range items {
		wg.Add(1)
		go func(i int, item WatchItem) {
			defer wg.Done()

			// Once cancellation is signalled no new refresh proceeds to
			// the network; the slot is simply never taken.
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			results[i] = e.refreshItem(ctx, item)
			e.completed.Add(1)
			if e.observer != nil {
				e.observer.ItemRefreshed(results[i].Error != "")
			}
		}(i, item)
	}

	wg.Wait()

	if ctx.Err() != nil {
		// No partial merge on cancellation; just release the items.
		keys := make([]Key, len(items))
		for i, it := range items {
			keys[i] = it.Key()
		}
		e.list.abortRound(keys)
		status := RoundStatus{Total: len(items), Cancelled: true, Duration: time.Since(start)}
		e.logger.Warnf("refresh round cancelled after %s", status.Duration)
		if e.observer != nil {
			e.observer.RoundCompleted(status)
		}
		return status
	}

	status := e.list.commitRound(results)
	status.Duration = time.Since(start)
	e.logger.Infof("refresh round: %d merged, %d discarded, %d errors in %s",
		status.Merged, status.Discarded, status.Errors, status.Duration)
	if e.observer != nil {
		e.observer.RoundCompleted(status)
	}

	if e.archiver != nil && status.Merged > 0 {
		// Only identities that survived the commit are archived; results
		// discarded as stale must not resurface through the archive.
		merged := make(map[Key]struct{}, len(status.MergedKeys))
		for _, k := range status.MergedKeys {
			merged[k] = struct{}{}
		}
		batch := make(map[Key]MonitorResult, len(status.MergedKeys))
		for _, res := range results {
			if _, ok := merged[res.Key]; ok && res.Error == "" {
				batch[res.Key] = res
			}
		}
		if len(batch) > 0 {
			if err := e.archiver.AppendRound(batch); err != nil {
				e.logger.Warnf("round archive failed: %v", err)
			}
		}
	}
	return status
}

// refreshItem fetches one item's listings and attaches per-variant
// statistics. Failures are recorded on the result, never propagated; a
// panic inside the fetch path is caught the same way so one bad item
// cannot take down the round.
func (e *Engine) refreshItem(ctx context.Context, item WatchItem) (result MonitorResult) {
	result = MonitorResult{Key: item.Key(), RefreshedAt: time.Now()}

	defer func() {
		if r := recover(); r != nil {
			result.Error = fmt.Sprintf("refresh panic: %v", r)
		}
	}()

	listings, err := e.source.Listings(ctx, item.Name, item.Server)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	// Sell-side offers only; buy orders price a different market.
	variants := make(map[string][]int)
	for _, l := range listings {
		if l.Kind != parser.DealSell {
			continue
		}
		idx := len(result.Listings)
		result.Listings = append(result.Listings, ResultListing{Listing: l})
		variants[l.DisplayName] = append(variants[l.DisplayName], idx)
	}

	for variant, idxs := range variants {
		first := result.Listings[idxs[0]]
		if first.Grade != parser.GradeNone {
			// Graded rolls trade on per-item stats; aggregate history is
			// meaningless for them.
			continue
		}

		st, err := e.source.Statistics(ctx, first.BaseName, item.Server)
		if err != nil {
			e.logger.WithField("item", variant).Debugf("statistics lookup failed: %v", err)
			result.Error = err.Error()
			continue
		}
		for _, i := range idxs {
			result.Listings[i].Stats = st
		}
	}

	return result
}
