// Package retry provides a bounded exponential-backoff policy shared by the
// fetcher and the webhook notifier.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrExhausted wraps the last failure once every attempt has been spent.
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy configures how an operation is retried. IsRetryable classifies
// failures; errors it rejects abort immediately (permanent failures).
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	IsRetryable  func(error) bool
}

// Default mirrors the crawl settings of the collector: three attempts with
// exponential backoff, everything considered transient.
func Default() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		IsRetryable:  func(error) bool { return true },
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 2.0
	}
	if p.IsRetryable == nil {
		p.IsRetryable = func(error) bool { return true }
	}
	return p
}

// Do runs fn until it succeeds, returns a permanent error, exhausts the
// attempt budget, or the context is cancelled. The returned attempt count
// includes the final one.
func (p Policy) Do(ctx context.Context, fn func() error) (int, error) {
	p = p.normalized()

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}

		err := fn()
		if err == nil {
			return attempt, nil
		}
		lastErr = err

		if !p.IsRetryable(err) {
			return attempt, err
		}

		if attempt == p.MaxAttempts {
			break
		}

		backoff := time.Duration(float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1)))
		if backoff > p.MaxDelay {
			backoff = p.MaxDelay
		}

		select {
		case <-ctx.Done():
			return attempt, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return p.MaxAttempts, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, p.MaxAttempts, lastErr)
}
