// internal/browser/chromedp.go

// Package browser provides the optional headless transport. When the plain
// HTTP path keeps hitting interstitial pages, fetching through a real
// rendering engine usually gets the actual markup.
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

// Config holds headless browser settings.
type Config struct {
	Enabled   bool
	Headless  bool
	UserAgent string
	// WaitDelay runs after body-ready so late scripts finish rendering the
	// deal table.
	WaitDelay time.Duration
	Timeout   time.Duration
}

// DefaultConfig returns production settings with the browser disabled;
// it is an opt-in path.
func DefaultConfig() Config {
	return Config{
		Enabled:   false,
		Headless:  true,
		WaitDelay: 500 * time.Millisecond,
		Timeout:   45 * time.Second,
	}
}

// ChromeFetcher fetches pages through a shared Chrome instance. It
// implements gnjoy.BrowserFetcher.
type ChromeFetcher struct {
	config Config

	mu       sync.Mutex
	allocCtx context.Context
	cancel   context.CancelFunc
	ready    bool
}

// NewChromeFetcher launches the browser allocator. A launch failure is not
// fatal for the application: the fetcher reports not-ready and the plain
// HTTP path carries on.
func NewChromeFetcher(config Config) (*ChromeFetcher, error) {
	f := &ChromeFetcher{config: config}
	if !config.Enabled {
		return f, nil
	}

	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.DisableGPU,
		chromedp.NoSandbox, // Required for Docker environments
	}
	if config.Headless {
		opts = append(opts, chromedp.Headless)
	}
	if config.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(config.UserAgent))
	}

	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	f.allocCtx = allocCtx
	f.cancel = cancel
	f.ready = true
	return f, nil
}

// Ready reports whether the headless path can be tried.
func (f *ChromeFetcher) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.config.Enabled && f.ready
}

// FetchHTML navigates to url in a fresh tab and returns the rendered
// document.
func (f *ChromeFetcher) FetchHTML(ctx context.Context, url string) (string, error) {
	f.mu.Lock()
	if !f.ready {
		f.mu.Unlock()
		return "", fmt.Errorf("browser not ready")
	}
	allocCtx := f.allocCtx
	f.mu.Unlock()

	timeout := f.config.Timeout
	if timeout == 0 {
		timeout = 45 * time.Second
	}

	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()
	runCtx, cancelRun := context.WithTimeout(tabCtx, timeout)
	defer cancelRun()

	tasks := []chromedp.Action{
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
	}
	if f.config.WaitDelay > 0 {
		tasks = append(tasks, chromedp.Sleep(f.config.WaitDelay))
	}

	var html string
	tasks = append(tasks, chromedp.OuterHTML("html", &html))

	// Honor the caller's cancellation as well as the tab timeout.
	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(runCtx, tasks...)
	}()
	select {
	case <-ctx.Done():
		cancelRun()
		<-done
		return "", ctx.Err()
	case err := <-done:
		if err != nil {
			return "", fmt.Errorf("headless fetch failed: %w", err)
		}
	}

	return html, nil
}

// Close shuts the browser down.
func (f *ChromeFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		f.cancel()
	}
	f.ready = false
	return nil
}
