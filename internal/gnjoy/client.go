// internal/gnjoy/client.go
package gnjoy

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"

	"github.com/leader001a/ro-market-crawler-sub002/internal/utils"
	"golang.org/x/time/rate"
)

// ClientConfig defines configuration options for the marketplace client.
type ClientConfig struct {
	BaseURL         string
	Timeout         time.Duration // overall per-call budget
	DialTimeout     time.Duration
	RetryAttempts   int           // attempts after the first try
	RetryDelay      time.Duration // first backoff step, doubled per attempt
	MaxConnsPerHost int
	IdleConnTimeout time.Duration
	ConnRotation    time.Duration // interval between idle-pool flushes
	LockoutDuration time.Duration // applied on HTTP 429
	UserAgents      []string
	RateLimit       float64 // courtesy pacing, requests per second
	RateBurst       int
}

func (c *ClientConfig) applyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 15 * time.Second
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = 4
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = time.Second
	}
	if c.MaxConnsPerHost == 0 {
		c.MaxConnsPerHost = 10
	}
	if c.IdleConnTimeout == 0 {
		c.IdleConnTimeout = 90 * time.Second
	}
	if c.ConnRotation == 0 {
		c.ConnRotation = 2 * time.Minute
	}
	if c.LockoutDuration == 0 {
		c.LockoutDuration = DefaultLockoutDuration
	}
	if len(c.UserAgents) == 0 {
		c.UserAgents = defaultUserAgents()
	}
	if c.RateLimit == 0 {
		c.RateLimit = 1.0
	}
	if c.RateBurst == 0 {
		c.RateBurst = 3
	}
}

// BrowserFetcher is the optional headless transport. When enabled and ready
// it is tried before the plain HTTP path.
type BrowserFetcher interface {
	Ready() bool
	FetchHTML(ctx context.Context, url string) (string, error)
}

// Client fetches marketplace pages with bounded retries, a shared lockout
// tracker, and browser-like request headers. All methods are safe for
// concurrent use.
type Client struct {
	httpClient *http.Client
	transport  *http.Transport
	config     ClientConfig
	tracker    *LimitTracker
	pacer      *rate.Limiter
	browser    BrowserFetcher
	urls       *URLBuilder
	logger     utils.Logger

	uaIndex atomic.Uint64

	rotateStop chan struct{}
}

// NewClient creates a marketplace client. The tracker must not be nil; it is
// shared with whatever else observes the lockout state.
func NewClient(config ClientConfig, tracker *LimitTracker, logger utils.Logger) *Client {
	config.applyDefaults()
	if logger == nil {
		logger = utils.NewLogger()
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: config.DialTimeout,
		}).DialContext,
		MaxIdleConns:        config.MaxConnsPerHost,
		MaxIdleConnsPerHost: config.MaxConnsPerHost,
		MaxConnsPerHost:     config.MaxConnsPerHost,
		IdleConnTimeout:     config.IdleConnTimeout,
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
		transport:  transport,
		config:     config,
		tracker:    tracker,
		pacer:      rate.NewLimiter(rate.Limit(config.RateLimit), config.RateBurst),
		urls:       NewURLBuilder(config.BaseURL),
		logger:     logger,
		rotateStop: make(chan struct{}),
	}

	// Long sessions against the legacy ASP host leak half-dead sockets;
	// flushing the idle pool periodically forces fresh connections.
	go c.rotateConnections()

	return c
}

// URLs exposes the endpoint builder so callers compose request URLs in one
// place.
func (c *Client) URLs() *URLBuilder {
	return c.urls
}

// SetBrowser installs or removes the headless transport.
func (c *Client) SetBrowser(b BrowserFetcher) {
	c.browser = b
}

// Tracker returns the shared rate-limit state.
func (c *Client) Tracker() *LimitTracker {
	return c.tracker
}

// Close stops connection rotation and drops pooled connections.
func (c *Client) Close() {
	close(c.rotateStop)
	c.transport.CloseIdleConnections()
}

func (c *Client) rotateConnections() {
	ticker := time.NewTicker(c.config.ConnRotation)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.transport.CloseIdleConnections()
		case <-c.rotateStop:
			return
		}
	}
}

// Fetch retrieves one page as decoded HTML.
//
// The lockout tracker is consulted before anything touches the network:
// during a lockout the call fails immediately with *RateLimitedError and
// zero requests are issued. A 429 response installs a fresh lockout and
// propagates the same error without retry. 503/504 and connection-level
// failures are retried with exponential backoff (RetryDelay, doubled per
// attempt) until the attempt budget runs out. Context cancellation aborts
// both in-flight requests and backoff sleeps.
func (c *Client) Fetch(ctx context.Context, pageURL string) (string, error) {
	if c.tracker.IsLockedOut() {
		return "", &RateLimitedError{Until: c.tracker.LockedUntil()}
	}

	if c.browser != nil && c.browser.Ready() {
		html, err := c.fetchViaBrowser(ctx, pageURL)
		if err == nil {
			c.tracker.ClearLockout()
			return html, nil
		}
		c.logger.WithField("url", pageURL).Warnf("browser fetch failed, falling back to http: %v", err)
	}

	return c.fetchHTTP(ctx, pageURL)
}

// fetchViaBrowser runs the headless path. A challenge interstitial gets one
// wait-and-retry before the path is declared failed.
func (c *Client) fetchViaBrowser(ctx context.Context, pageURL string) (string, error) {
	c.tracker.RecordRequest()
	html, err := c.browser.FetchHTML(ctx, pageURL)
	if err != nil {
		return "", err
	}

	if looksLikeChallenge(html) {
		c.logger.WithField("url", pageURL).Info("challenge page detected, waiting before retry")
		if err := sleepCtx(ctx, 5*time.Second); err != nil {
			return "", err
		}
		c.tracker.RecordRequest()
		html, err = c.browser.FetchHTML(ctx, pageURL)
		if err != nil {
			return "", err
		}
		if looksLikeChallenge(html) {
			return "", fmt.Errorf("challenge page persisted")
		}
	}

	return html, nil
}

// fetchHTTP is the plain transport with the bounded retry loop.
func (c *Client) fetchHTTP(ctx context.Context, pageURL string) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= c.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			// Delays run 1s, 2s, 4s, 8s for the default config.
			delay := c.config.RetryDelay * time.Duration(1<<uint(attempt-1))
			if err := sleepCtx(ctx, delay); err != nil {
				return "", err
			}
		}

		// A concurrent call may have tripped a 429 during the backoff
		// sleep; no attempt goes to the network while locked out.
		if c.tracker.IsLockedOut() {
			return "", &RateLimitedError{Until: c.tracker.LockedUntil()}
		}

		if err := c.pacer.Wait(ctx); err != nil {
			return "", err
		}

		html, err := c.doRequest(ctx, pageURL)
		if err == nil {
			c.tracker.ClearLockout()
			return html, nil
		}

		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		var rl *RateLimitedError
		if asRateLimited(err, &rl) {
			return "", rl
		}

		lastErr = err
		if se, ok := err.(*statusError); ok && !se.retryable() {
			break
		}
		c.logger.WithField("url", pageURL).Debugf("fetch attempt %d/%d failed: %v",
			attempt+1, c.config.RetryAttempts+1, err)
	}

	return "", fmt.Errorf("%w: %v", ErrFetchFailed, lastErr)
}

func (c *Client) doRequest(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	c.setRequestHeaders(req)

	c.tracker.RecordRequest()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		io.Copy(io.Discard, resp.Body)
		c.tracker.SetLockout(c.config.LockoutDuration)
		return "", &RateLimitedError{Until: c.tracker.LockedUntil()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return "", &statusError{code: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	return decodeBody(body, resp.Header.Get("Content-Type")), nil
}

// setRequestHeaders makes the request profile match a Korean desktop
// browser session; the service serves different markup to bare clients.
func (c *Client) setRequestHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.nextUserAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Referer", "https://ro.gnjoy.com/")
	req.Header.Set("Connection", "keep-alive")
}

func (c *Client) nextUserAgent() string {
	i := c.uaIndex.Add(1) - 1
	return c.config.UserAgents[int(i)%len(c.config.UserAgents)]
}

// decodeBody converts the response to UTF-8. The service declares UTF-8
// these days but some error pages still arrive as EUC-KR, so invalid UTF-8
// goes through the Korean decoder before giving up.
func decodeBody(body []byte, contentType string) string {
	if strings.Contains(strings.ToLower(contentType), "euc-kr") || !utf8.Valid(body) {
		decoded, _, err := transform.Bytes(korean.EUCKR.NewDecoder(), body)
		if err == nil {
			return string(decoded)
		}
	}
	return string(body)
}

// looksLikeChallenge detects the interstitial pages the headless path can
// land on before the real content renders.
func looksLikeChallenge(html string) bool {
	lowered := strings.ToLower(html)
	markers := []string{
		"just a moment",
		"checking your browser",
		"cf-challenge",
		"challenge-platform",
		"captcha",
	}
	for _, m := range markers {
		if strings.Contains(lowered, m) {
			return true
		}
	}
	return false
}

// sleepCtx waits for d or until ctx is cancelled, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func asRateLimited(err error, target **RateLimitedError) bool {
	rl, ok := err.(*RateLimitedError)
	if ok {
		*target = rl
	}
	return ok
}

// defaultUserAgents returns a set of realistic user agent strings.
func defaultUserAgents() []string {
	return []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/119.0",
	}
}
