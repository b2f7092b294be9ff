// internal/market/service.go

// Package market composes the fetch client and the extractors into the
// operations the refresh engine consumes: paged listing search, statistics
// resolution, and detail lookup.
package market

import (
	"context"
	"time"

	"github.com/leader001a/ro-market-crawler-sub002/internal/gnjoy"
	"github.com/leader001a/ro-market-crawler-sub002/internal/parser"
	"github.com/leader001a/ro-market-crawler-sub002/internal/stats"
	"github.com/leader001a/ro-market-crawler-sub002/internal/utils"
)

// DefaultMaxPages caps how many listing pages one search walks.
const DefaultMaxPages = 3

// Fetcher is the transport dependency; *gnjoy.Client satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
	URLs() *gnjoy.URLBuilder
}

// DetailCache persists parsed detail pages keyed by (world code, ssi) so
// repeat lookups skip the network. Implemented by the store layer.
type DetailCache interface {
	GetDetail(serverCode int, ssi string) (parser.DetailInfo, bool)
	PutDetail(serverCode int, ssi string, info parser.DetailInfo) error
}

// Service exposes the marketplace operations.
type Service struct {
	fetcher  Fetcher
	cache    *stats.Cache
	details  DetailCache
	logger   utils.Logger
	maxPages int

	now func() time.Time
}

// NewService creates a Service. cache must not be nil; details may be.
func NewService(fetcher Fetcher, cache *stats.Cache, logger utils.Logger) *Service {
	if logger == nil {
		logger = utils.NewLogger()
	}
	return &Service{
		fetcher:  fetcher,
		cache:    cache,
		logger:   logger,
		maxPages: DefaultMaxPages,
		now:      time.Now,
	}
}

// SetDetailCache installs the persistent detail cache.
func (s *Service) SetDetailCache(dc DetailCache) {
	s.details = dc
}

// SetMaxPages overrides the listing page cap.
func (s *Service) SetMaxPages(n int) {
	if n > 0 {
		s.maxPages = n
	}
}

// Listings walks the paged deal search for an item name. The first page
// failing is an error; a later page failing ends the walk with whatever
// was collected, since partial listings are still usable.
func (s *Service) Listings(ctx context.Context, name string, server gnjoy.Server) ([]parser.Listing, error) {
	var all []parser.Listing

	for page := 1; page <= s.maxPages; page++ {
		html, err := s.fetcher.Fetch(ctx, s.fetcher.URLs().DealList(name, server, page))
		if err != nil {
			if page == 1 {
				return nil, err
			}
			s.logger.WithField("item", name).Warnf("page %d fetch failed, keeping %d listings: %v",
				page, len(all), err)
			break
		}

		items := parser.ParseDealList(html, server)
		if len(items) == 0 {
			break
		}
		all = append(all, items...)
	}

	return all, nil
}

// Statistics resolves the derived price summary for a base item name,
// consulting the TTL cache first. A "no history" outcome is cached as nil
// and returned as (nil, nil); it is not an error.
func (s *Service) Statistics(ctx context.Context, baseName string, server gnjoy.Server) (*stats.Statistics, error) {
	if st, ok := s.cache.Get(baseName, server); ok {
		return st, nil
	}

	exactName, ok, err := s.resolveExactName(ctx, baseName, server)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.cache.Put(baseName, server, nil)
		return nil, nil
	}

	html, err := s.fetcher.Fetch(ctx, s.fetcher.URLs().PriceHistory(exactName, server))
	if err != nil {
		return nil, err
	}

	derived := stats.Derive(parser.ParsePriceHistory(html), s.now())
	s.cache.Put(baseName, server, derived)
	return derived, nil
}

// resolveExactName maps a deal listing's base name onto a price-list entry
// via the fuzzy search. ok=false means no candidate matched, a silent and
// valid outcome.
func (s *Service) resolveExactName(ctx context.Context, baseName string, server gnjoy.Server) (string, bool, error) {
	html, err := s.fetcher.Fetch(ctx, s.fetcher.URLs().PriceList(baseName, server))
	if err != nil {
		return "", false, err
	}

	entry, ok := parser.MatchExactName(baseName, parser.ParsePriceList(html))
	if !ok {
		return "", false, nil
	}
	return entry.Name, true, nil
}

// Detail fetches one listing's detail page, serving from the persistent
// cache when available.
func (s *Service) Detail(ctx context.Context, serverCode, mapID int, ssi string) (parser.DetailInfo, error) {
	if s.details != nil {
		if info, ok := s.details.GetDetail(serverCode, ssi); ok {
			return info, nil
		}
	}

	html, err := s.fetcher.Fetch(ctx, s.fetcher.URLs().ItemDetail(serverCode, mapID, ssi))
	if err != nil {
		return parser.DetailInfo{}, err
	}

	info := parser.ParseItemDetail(html)
	if s.details != nil {
		if err := s.details.PutDetail(serverCode, ssi, info); err != nil {
			s.logger.Warnf("detail cache write failed: %v", err)
		}
	}
	return info, nil
}
