// Package scheduler runs the pipeline on a fixed interval in daemon mode.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Interval fires the job immediately on start and then once per period until
// stopped or the context ends.
type Interval struct {
	period time.Duration
	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewInterval validates the period up front.
func NewInterval(period time.Duration, logger *slog.Logger) (*Interval, error) {
	if period <= 0 {
		return nil, fmt.Errorf("scheduler period must be positive, got %s", period)
	}
	return &Interval{period: period, logger: logger}, nil
}

// Start launches the ticking loop. Calling Start twice without Stop is an
// error.
func (s *Interval) Start(ctx context.Context, job func(time.Time)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return fmt.Errorf("scheduler already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(runCtx, job)
	return nil
}

func (s *Interval) loop(ctx context.Context, job func(time.Time)) {
	defer close(s.done)

	job(time.Now())

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping")
			return
		case t := <-ticker.C:
			job(t)
		}
	}
}

// Stop cancels the loop and waits for the in-flight tick to finish.
func (s *Interval) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for scheduler shutdown: %w", ctx.Err())
	}
}
