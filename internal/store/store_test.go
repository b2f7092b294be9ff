// internal/store/store_test.go
package store

import (
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/leader001a/ro-market-crawler-sub002/internal/gnjoy"
	"github.com/leader001a/ro-market-crawler-sub002/internal/monitor"
	"github.com/leader001a/ro-market-crawler-sub002/internal/parser"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_WatchlistRoundTrip(t *testing.T) {
	s := openTestStore(t)

	added := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	items := []monitor.WatchItem{
		{Name: "포션", Server: gnjoy.ServerBaphomet, AddedAt: added},
		{Name: "카타르", Server: gnjoy.ServerIfrit, AddedAt: added.Add(time.Hour)},
	}

	if err := s.SaveWatchlist(items); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := s.LoadWatchlist()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 items, got %d", len(loaded))
	}
	if loaded[0].Name != "포션" || loaded[0].Server != gnjoy.ServerBaphomet {
		t.Errorf("unexpected item: %+v", loaded[0])
	}
	if !loaded[0].AddedAt.Equal(added) {
		t.Errorf("added-at lost: %v", loaded[0].AddedAt)
	}

	// Save replaces the whole list, it does not append.
	if err := s.SaveWatchlist(items[:1]); err != nil {
		t.Fatal(err)
	}
	loaded, _ = s.LoadWatchlist()
	if len(loaded) != 1 {
		t.Errorf("save should replace, got %d items", len(loaded))
	}
}

func TestStore_SaveEmptyWatchlist(t *testing.T) {
	s := openTestStore(t)
	s.SaveWatchlist([]monitor.WatchItem{{Name: "포션", Server: gnjoy.ServerAll}})

	if err := s.SaveWatchlist(nil); err != nil {
		t.Fatalf("empty save failed: %v", err)
	}
	loaded, _ := s.LoadWatchlist()
	if len(loaded) != 0 {
		t.Errorf("expected empty list, got %d", len(loaded))
	}
}

func TestStore_DetailCache(t *testing.T) {
	s := openTestStore(t)

	if _, ok := s.GetDetail(129, "abc"); ok {
		t.Fatal("empty cache should miss")
	}

	info := parser.DetailInfo{
		Name:       "+10슈즈[1]",
		Attributes: []string{"이동속도 +5%", "MDEF +3"},
		Cards:      []string{"마라도나 카드"},
	}
	if err := s.PutDetail(129, "abc", info); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	got, ok := s.GetDetail(129, "abc")
	if !ok {
		t.Fatal("expected hit after put")
	}
	if got.Name != info.Name || !reflect.DeepEqual(got.Attributes, info.Attributes) || !reflect.DeepEqual(got.Cards, info.Cards) {
		t.Errorf("round trip mismatch: %+v", got)
	}

	// Upsert on the same key overwrites.
	info.Name = "슈즈"
	if err := s.PutDetail(129, "abc", info); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetDetail(129, "abc")
	if got.Name != "슈즈" {
		t.Errorf("upsert not applied: %q", got.Name)
	}

	// Key includes the world code.
	if _, ok := s.GetDetail(729, "abc"); ok {
		t.Error("detail key must include the server code")
	}
}

func TestStore_PruneDetails(t *testing.T) {
	s := openTestStore(t)
	s.PutDetail(129, "keep", parser.DetailInfo{Name: "a"})
	s.PutDetail(129, "drop", parser.DetailInfo{Name: "b"})
	s.PutDetail(729, "other", parser.DetailInfo{Name: "c"})

	pruned, err := s.PruneDetails(129, []string{"keep"})
	if err != nil {
		t.Fatalf("prune failed: %v", err)
	}
	if pruned != 1 {
		t.Errorf("pruned = %d, want 1", pruned)
	}
	if _, ok := s.GetDetail(129, "keep"); !ok {
		t.Error("active entry pruned")
	}
	if _, ok := s.GetDetail(129, "drop"); ok {
		t.Error("inactive entry survived prune")
	}
	if _, ok := s.GetDetail(729, "other"); !ok {
		t.Error("other world's entries must be untouched")
	}
}

func TestArchive_AppendAndLatestRound(t *testing.T) {
	a, err := OpenArchive("sqlite3", filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("open archive failed: %v", err)
	}
	defer a.Close()

	observed := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	key := monitor.Key{Name: "포션", Server: gnjoy.ServerBaphomet}
	round := map[monitor.Key]monitor.MonitorResult{
		key: {
			Key:         key,
			RefreshedAt: observed,
			Listings: []monitor.ResultListing{
				{Listing: parser.Listing{
					Server: gnjoy.ServerBaphomet, DisplayName: "포션", BaseName: "포션",
					Quantity: 10, Price: 1500, Kind: parser.DealSell, ShopName: "샵",
				}},
			},
		},
	}

	if err := a.AppendRound(round); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	// A later observation of the same item supersedes the first.
	round[key] = monitor.MonitorResult{
		Key:         key,
		RefreshedAt: observed.Add(time.Hour),
		Listings: []monitor.ResultListing{
			{Listing: parser.Listing{
				Server: gnjoy.ServerBaphomet, DisplayName: "포션", BaseName: "포션",
				Quantity: 5, Price: 1600, Kind: parser.DealSell, ShopName: "샵",
			}},
		},
	}
	if err := a.AppendRound(round); err != nil {
		t.Fatal(err)
	}

	latest, err := a.LatestRound()
	if err != nil {
		t.Fatalf("latest round failed: %v", err)
	}
	res, ok := latest[key]
	if !ok {
		t.Fatalf("missing key in latest round: %v", latest)
	}
	if len(res.Listings) != 1 || res.Listings[0].Price != 1600 {
		t.Errorf("expected only the newest observation, got %+v", res.Listings)
	}
}

func TestOpenArchive_RejectsUnknownDriver(t *testing.T) {
	if _, err := OpenArchive("oracle", "dsn"); err == nil {
		t.Error("unknown driver should be rejected")
	}
}
