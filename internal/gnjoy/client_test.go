// internal/gnjoy/client_test.go
package gnjoy

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// fastConfig keeps retry delays tiny so backoff tests run in milliseconds.
func fastConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL:       baseURL,
		Timeout:       5 * time.Second,
		RetryDelay:    5 * time.Millisecond,
		RetryAttempts: 4,
		RateLimit:     1000,
		RateBurst:     100,
	}
}

func TestClient_Fetch_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept-Language") == "" {
			t.Error("expected browser-like headers on request")
		}
		w.Write([]byte("<html><body>deal list</body></html>"))
	}))
	defer server.Close()

	client := NewClient(fastConfig(server.URL), NewLimitTracker(), nil)
	defer client.Close()

	html, err := client.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(html, "deal list") {
		t.Errorf("unexpected body: %s", html)
	}
}

func TestClient_Fetch_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("recovered"))
	}))
	defer server.Close()

	client := NewClient(fastConfig(server.URL), NewLimitTracker(), nil)
	defer client.Close()

	html, err := client.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("expected recovery after retries, got %v", err)
	}
	if html != "recovered" {
		t.Errorf("unexpected body: %s", html)
	}
	if hits.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", hits.Load())
	}
}

func TestClient_Fetch_ExhaustsRetryBudget(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusGatewayTimeout)
	}))
	defer server.Close()

	client := NewClient(fastConfig(server.URL), NewLimitTracker(), nil)
	defer client.Close()

	start := time.Now()
	_, err := client.Fetch(context.Background(), server.URL)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("expected ErrFetchFailed, got %v", err)
	}
	// 1 initial try + 4 retries.
	if hits.Load() != 5 {
		t.Errorf("expected 5 attempts, got %d", hits.Load())
	}
	// Backoff doubles per attempt: 1+2+4+8 delay units minimum.
	if minimum := 15 * 5 * time.Millisecond; elapsed < minimum {
		t.Errorf("backoff too short: %v < %v", elapsed, minimum)
	}
}

func TestClient_Fetch_NoRetryOnClientError(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(fastConfig(server.URL), NewLimitTracker(), nil)
	defer client.Close()

	_, err := client.Fetch(context.Background(), server.URL)
	if !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("expected ErrFetchFailed, got %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("404 must not be retried, got %d attempts", hits.Load())
	}
}

func TestClient_Fetch_RateLimitInstallsLockout(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	tracker := NewLimitTracker()
	client := NewClient(fastConfig(server.URL), tracker, nil)
	defer client.Close()

	_, err := client.Fetch(context.Background(), server.URL)

	var rl *RateLimitedError
	if !errors.As(err, &rl) {
		t.Fatalf("expected RateLimitedError, got %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("429 must never be retried, got %d attempts", hits.Load())
	}
	if !tracker.IsLockedOut() {
		t.Error("tracker should be locked out after 429")
	}

	// Subsequent calls short-circuit before touching the network.
	_, err = client.Fetch(context.Background(), server.URL)
	if !errors.As(err, &rl) {
		t.Fatalf("expected RateLimitedError during lockout, got %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("locked-out fetch must issue zero requests, got %d total", hits.Load())
	}
}

func TestClient_Fetch_LockoutInterruptsRetryLoop(t *testing.T) {
	var hits atomic.Int32
	tracker := NewLimitTracker()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A concurrent call trips a 429 while this one is backing off.
		if hits.Add(1) == 1 {
			tracker.SetLockout(DefaultLockoutDuration)
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(fastConfig(server.URL), tracker, nil)
	defer client.Close()

	_, err := client.Fetch(context.Background(), server.URL)

	var rl *RateLimitedError
	if !errors.As(err, &rl) {
		t.Fatalf("expected RateLimitedError, got %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("retry loop must stop at the lockout, got %d attempts", hits.Load())
	}
}

func TestClient_Fetch_SuccessClearsLockout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	tracker := NewLimitTracker()
	tracker.now = func() time.Time { return now }
	tracker.SetLockout(10 * time.Minute)

	client := NewClient(fastConfig(server.URL), tracker, nil)
	defer client.Close()

	// Expire the lockout so the call goes through, then verify success
	// clears the stale deadline entirely.
	now = now.Add(11 * time.Minute)

	if _, err := client.Fetch(context.Background(), server.URL); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tracker.LockedUntil().IsZero() {
		t.Error("successful fetch should clear the lockout deadline")
	}
}

func TestClient_Fetch_ContextCancelsBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := fastConfig(server.URL)
	cfg.RetryDelay = 10 * time.Second // cancellation must win, not waiting

	client := NewClient(cfg, NewLimitTracker(), nil)
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := client.Fetch(ctx, server.URL)
	if err == nil {
		t.Fatal("expected error after cancellation")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("cancellation should abort the backoff sleep, took %v", elapsed)
	}
}

func TestDecodeBody_EUCKR(t *testing.T) {
	// "포션" encoded as EUC-KR.
	eucKR := []byte{0xC6, 0xF7, 0xBC, 0xC7}

	decoded := decodeBody(eucKR, "text/html; charset=euc-kr")
	if decoded != "포션" {
		t.Errorf("expected 포션, got %q", decoded)
	}

	// Invalid UTF-8 without a charset header also goes through the decoder.
	decoded = decodeBody(eucKR, "text/html")
	if decoded != "포션" {
		t.Errorf("expected 포션 via sniffing, got %q", decoded)
	}

	// Valid UTF-8 passes through untouched.
	if got := decodeBody([]byte("포션"), "text/html; charset=utf-8"); got != "포션" {
		t.Errorf("UTF-8 body mangled: %q", got)
	}
}

func TestLooksLikeChallenge(t *testing.T) {
	if !looksLikeChallenge("<title>Just a moment...</title>") {
		t.Error("interstitial page not detected")
	}
	if looksLikeChallenge("<table class=\"dealList\"></table>") {
		t.Error("normal page misdetected as challenge")
	}
}
