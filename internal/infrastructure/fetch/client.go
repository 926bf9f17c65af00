// Package fetch implements the shared HTTP retrieval discipline: randomized
// inter-request delays, rotating client identity, and bounded retry with
// exponential backoff on transient failures.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"InfoSpider/internal/config"
	"InfoSpider/internal/retry"
)

const maxBodyBytes = 4 << 20

// FetchError reports a source retrieval failure after the retry budget was
// spent (or immediately, for permanent failures). It is recovered at the
// orchestrator level: the source is skipped, the run continues.
type FetchError struct {
	Source   string
	URL      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s (%s) after %d attempt(s): %v", e.Source, e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// statusError carries the HTTP status for transient/permanent classification.
type statusError struct {
	code   int
	status string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %s", e.status)
}

// retryable treats network errors, 5xx and 429 as transient. Any other
// well-formed HTTP failure is permanent and fails without retry.
func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= http.StatusInternalServerError || se.code == http.StatusTooManyRequests
	}
	return true
}

// Client performs rate-disciplined retrieval for the crawl strategies.
// It is stateless beyond the underlying connection pool.
type Client struct {
	http       *http.Client
	userAgents []string
	delayMin   time.Duration
	delayMax   time.Duration
	policy     retry.Policy
	logger     *slog.Logger
}

// NewClient wires the crawl settings; a nil http.Client gets a default with
// the configured timeout.
func NewClient(cfg config.CrawlerConfig, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		http:       httpClient,
		userAgents: cfg.UserAgents,
		delayMin:   cfg.DelayMin,
		delayMax:   cfg.DelayMax,
		policy: retry.Policy{
			MaxAttempts:  cfg.MaxRetries,
			InitialDelay: time.Second,
			Multiplier:   2.0,
			IsRetryable:  retryable,
		},
		logger: logger,
	}
}

// Get retrieves one URL for the named source, returning the raw body.
func (c *Client) Get(ctx context.Context, sourceName, rawURL string) ([]byte, error) {
	var body []byte

	attempts, err := c.policy.Do(ctx, func() error {
		c.sleep(ctx)

		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if reqErr != nil {
			return reqErr
		}
		c.setHeaders(req)

		resp, doErr := c.http.Do(req)
		if doErr != nil {
			return doErr
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return &statusError{code: resp.StatusCode, status: resp.Status}
		}

		data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if readErr != nil {
			return fmt.Errorf("read body: %w", readErr)
		}
		body = data
		return nil
	})
	if err != nil {
		return nil, &FetchError{Source: sourceName, URL: rawURL, Attempts: attempts, Err: err}
	}

	c.debug("fetched", "source", sourceName, "url", rawURL, "bytes", len(body), "attempts", attempts)
	return body, nil
}

func (c *Client) setHeaders(req *http.Request) {
	ua := "InfoSpider/1.0"
	if len(c.userAgents) > 0 {
		ua = c.userAgents[rand.Intn(len(c.userAgents))]
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
}

// sleep applies the randomized inter-request delay. Parallel crawls each pass
// through here, so the discipline holds per request rather than globally.
func (c *Client) sleep(ctx context.Context) {
	if c.delayMax <= 0 || c.delayMax < c.delayMin {
		return
	}
	delay := c.delayMin
	if span := c.delayMax - c.delayMin; span > 0 {
		delay += time.Duration(rand.Int63n(int64(span)))
	}
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

func (c *Client) debug(msg string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
