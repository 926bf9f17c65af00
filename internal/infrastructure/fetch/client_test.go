package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"InfoSpider/internal/config"
)

func testCrawlerConfig() config.CrawlerConfig {
	return config.CrawlerConfig{
		Timeout:    5 * time.Second,
		MaxRetries: 3,
		UserAgents: []string{"agent-a", "agent-b"},
	}
}

func newTestClient(server *httptest.Server) *Client {
	c := NewClient(testCrawlerConfig(), server.Client(), nil)
	c.policy.InitialDelay = time.Millisecond
	return c
}

func TestGetRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("payload"))
	}))
	defer server.Close()

	body, err := newTestClient(server).Get(context.Background(), "test-source", server.URL)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if string(body) != "payload" {
		t.Fatalf("unexpected body: %s", body)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 requests, got %d", calls.Load())
	}
}

func TestGetFailsAfterBudget(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newTestClient(server).Get(context.Background(), "test-source", server.URL)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %T", err)
	}
	if fetchErr.Attempts != 3 {
		t.Fatalf("expected 3 attempts recorded, got %d", fetchErr.Attempts)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 requests, got %d", calls.Load())
	}
}

func TestGetDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newTestClient(server).Get(context.Background(), "test-source", server.URL)
	if err == nil {
		t.Fatal("expected error for 404")
	}
	if calls.Load() != 1 {
		t.Fatalf("404 must not be retried, got %d requests", calls.Load())
	}
}

func TestGetSetsRotatedUserAgent(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua := r.Header.Get("User-Agent")
		if ua != "agent-a" && ua != "agent-b" {
			t.Errorf("unexpected user agent: %s", ua)
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	if _, err := newTestClient(server).Get(context.Background(), "test-source", server.URL); err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
}
