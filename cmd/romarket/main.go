// cmd/romarket/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/leader001a/ro-market-crawler-sub002/internal/api"
	"github.com/leader001a/ro-market-crawler-sub002/internal/browser"
	"github.com/leader001a/ro-market-crawler-sub002/internal/config"
	"github.com/leader001a/ro-market-crawler-sub002/internal/export"
	"github.com/leader001a/ro-market-crawler-sub002/internal/gnjoy"
	"github.com/leader001a/ro-market-crawler-sub002/internal/market"
	"github.com/leader001a/ro-market-crawler-sub002/internal/monitor"
	"github.com/leader001a/ro-market-crawler-sub002/internal/monitoring"
	"github.com/leader001a/ro-market-crawler-sub002/internal/stats"
	"github.com/leader001a/ro-market-crawler-sub002/internal/store"
	"github.com/leader001a/ro-market-crawler-sub002/internal/utils"
)

// Version information (set by build flags)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		runService("romarket.yaml")
		return
	}

	switch os.Args[1] {
	case "run":
		configFile := "romarket.yaml"
		if len(os.Args) > 2 {
			configFile = os.Args[2]
		}
		runService(configFile)
	case "validate":
		configFile := "romarket.yaml"
		if len(os.Args) > 2 {
			configFile = os.Args[2]
		}
		validateConfig(configFile)
	case "export":
		configFile := "romarket.yaml"
		if len(os.Args) > 2 {
			configFile = os.Args[2]
		}
		exportSnapshot(configFile)
	case "version", "--version", "-v":
		fmt.Printf("romarket %s (built %s, commit %s)\n", version, buildTime, gitCommit)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(2)
	}
}

func printUsage() {
	fmt.Println(`romarket - Ragnarok Online market watch companion

Usage:
  romarket [run [config.yaml]]      start the watcher and API server
  romarket validate [config.yaml]   check a configuration file
  romarket export [config.yaml]     write a snapshot of saved results
  romarket version                  print version information`)
}

func validateConfig(configFile string) {
	if _, err := config.LoadFromFile(configFile); err != nil {
		fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Configuration file '%s' is valid\n", configFile)
}

func runService(configFile string) {
	cfg, err := config.LoadFromFile(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := utils.NewLoggerWithLevel(utils.ParseLevel(cfg.LogLevel))
	logger.Infof("romarket %s starting", version)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tracker := gnjoy.NewLimitTracker()

	client := gnjoy.NewClient(gnjoy.ClientConfig{
		BaseURL:         cfg.BaseURL,
		Timeout:         cfg.Fetch.Timeout,
		DialTimeout:     cfg.Fetch.DialTimeout,
		RetryAttempts:   cfg.Fetch.RetryAttempts,
		RetryDelay:      cfg.Fetch.RetryDelay,
		MaxConnsPerHost: cfg.Fetch.MaxConnsPerHost,
		IdleConnTimeout: cfg.Fetch.IdleConnTimeout,
		ConnRotation:    cfg.Fetch.ConnRotation,
		LockoutDuration: cfg.Fetch.LockoutDuration,
		RateLimit:       cfg.Fetch.RateLimit,
		RateBurst:       cfg.Fetch.RateBurst,
	}, tracker, logger)
	defer client.Close()

	if cfg.Browser.Enabled {
		fetcher, err := browser.NewChromeFetcher(browser.Config{
			Enabled:   true,
			Headless:  *cfg.Browser.Headless,
			UserAgent: cfg.UserAgent,
			WaitDelay: cfg.Browser.WaitDelay,
			Timeout:   cfg.Browser.Timeout,
		})
		if err != nil {
			logger.Warnf("browser fallback unavailable: %v", err)
		} else {
			client.SetBrowser(fetcher)
			defer fetcher.Close()
		}
	}

	statsCache := stats.NewCache(cfg.Cache.TTL)
	service := market.NewService(client, statsCache, logger)
	service.SetMaxPages(cfg.Fetch.MaxPages)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create data directory: %v\n", err)
		os.Exit(1)
	}

	db, err := store.Open(filepath.Join(cfg.DataDir, "romarket.db"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()
	service.SetDetailCache(db)

	list := monitor.NewWatchlist(cfg.Monitor.Capacity, cfg.Monitor.Interval)
	saved, err := db.LoadWatchlist()
	if err != nil {
		logger.Warnf("watchlist load failed: %v", err)
	} else if n := list.Restore(saved); n > 0 {
		logger.Infof("restored %d watched items", n)
	}

	engine := monitor.NewEngine(monitor.EngineConfig{
		Tick:        cfg.Monitor.Tick,
		Concurrency: cfg.Monitor.Concurrency,
	}, service, list, logger)

	metrics := monitoring.New(tracker, statsCache)
	engine.SetObserver(metrics)

	var archive *store.Archive
	if cfg.Archive.Enabled {
		dsn := cfg.Archive.DSN
		if cfg.Archive.Driver == "sqlite3" && dsn == "" {
			dsn = filepath.Join(cfg.DataDir, "archive.db")
		}
		archive, err = store.OpenArchive(cfg.Archive.Driver, dsn)
		if err != nil {
			logger.Warnf("archive unavailable: %v", err)
		} else {
			defer archive.Close()
			engine.SetArchiver(archive)
		}
	}

	engine.Start(ctx)

	server := api.NewServer(cfg.ListenAPI, engine, tracker, logger)
	server.SetPersister(db)
	server.SetMetricsHandler(metrics.Handler())

	if err := server.Start(ctx); err != nil {
		logger.Errorf("api server failed: %v", err)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.Fetch.Timeout)
	defer stopCancel()
	if err := engine.Stop(stopCtx); err != nil {
		logger.Warnf("engine stop: %v", err)
	}

	if err := db.SaveWatchlist(list.Items()); err != nil {
		logger.Errorf("final watchlist save failed: %v", err)
	}
	logger.Infof("romarket stopped")
}

func exportSnapshot(configFile string) {
	cfg, err := config.LoadFromFile(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := utils.NewLoggerWithLevel(utils.ParseLevel(cfg.LogLevel))

	archivePath := filepath.Join(cfg.DataDir, "archive.db")
	if cfg.Archive.DSN != "" {
		archivePath = cfg.Archive.DSN
	}
	archive, err := store.OpenArchive(cfg.Archive.Driver, archivePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open archive: %v\n", err)
		os.Exit(1)
	}
	defer archive.Close()

	results, err := archive.LatestRound()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read archive: %v\n", err)
		os.Exit(1)
	}
	if len(results) == 0 {
		fmt.Println("archive is empty; nothing to export")
		return
	}

	dir := cfg.Export.Directory
	if dir == "" {
		dir = filepath.Join(cfg.DataDir, "exports")
	}
	exporter := export.NewExporter(dir, logger)

	var path string
	switch cfg.Export.Format {
	case "json":
		path, err = exporter.ExportJSON(results)
	default:
		path, err = exporter.ExportXLSX(results)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "export failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("exported to %s\n", path)
}
