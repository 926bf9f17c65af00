package usecase

import (
	"context"
	"log/slog"
	"time"

	"InfoSpider/internal/ports"
)

// Daemon runs the pipeline repeatedly under a scheduler until stopped.
type Daemon struct {
	pipeline  *Pipeline
	scheduler ports.Scheduler
	opts      RunOptions
	logger    *slog.Logger
}

// NewDaemon binds a pipeline and its run options to a scheduler.
func NewDaemon(pipeline *Pipeline, scheduler ports.Scheduler, opts RunOptions, logger *slog.Logger) *Daemon {
	return &Daemon{pipeline: pipeline, scheduler: scheduler, opts: opts, logger: logger}
}

// Run blocks until the context is cancelled, executing one pipeline run per
// scheduler tick. A failed run is logged and the daemon keeps going.
func (d *Daemon) Run(ctx context.Context) error {
	err := d.scheduler.Start(ctx, func(t time.Time) {
		d.logger.Info("scheduled run starting", "tick", t.Format(time.RFC3339))
		if _, err := d.pipeline.Run(ctx, d.opts); err != nil {
			d.logger.Error("scheduled run failed", "error", err)
		}
	})
	if err != nil {
		return err
	}

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return d.scheduler.Stop(stopCtx)
}
