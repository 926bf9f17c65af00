// Package app assembles the collector from configuration and runs the
// requested mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"InfoSpider/internal/config"
	"InfoSpider/internal/crawler"
	"InfoSpider/internal/domain"
	"InfoSpider/internal/filter"
	"InfoSpider/internal/infrastructure/crawl"
	"InfoSpider/internal/infrastructure/enrich"
	"InfoSpider/internal/infrastructure/fetch"
	"InfoSpider/internal/infrastructure/scheduler"
	"InfoSpider/internal/infrastructure/site"
	"InfoSpider/internal/infrastructure/storage"
	"InfoSpider/internal/infrastructure/webhook"
	"InfoSpider/internal/usecase"
)

// Options selects what one invocation does.
type Options struct {
	// Types limits the run to specific content types; empty means all.
	Types []domain.ContentType
	// DryRun crawls and filters without persisting or delivering.
	DryRun bool
	// TestMode builds webhook payloads without sending them.
	TestMode bool
	// Site regenerates the static archive instead of running the pipeline.
	Site bool
	// TestWebhook sends one connectivity message and exits.
	TestWebhook bool
	// Every switches to daemon mode with the given run interval.
	Every time.Duration
}

// App owns the wired components for one process lifetime.
type App struct {
	cfg      config.Config
	opts     Options
	logger   *slog.Logger
	ledger   *storage.SQLiteLedger
	pipeline *usecase.Pipeline
	notifier *webhook.Notifier
	site     *site.Generator
}

// New builds the full component graph. Close must be called when done.
func New(cfg config.Config, opts Options, logger *slog.Logger) (*App, error) {
	ledger, err := storage.Open(cfg.Database.Path, logger.With("component", "ledger"))
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}

	fetcher := fetch.NewClient(cfg.Crawler, nil, logger.With("component", "fetch"))

	registry := crawler.NewRegistry()
	registry.Register(crawl.NewNewsHTML(fetcher, logger.With("component", "news")))
	registry.Register(crawl.NewPatentHTML(fetcher, logger.With("component", "patent")))
	registry.Register(crawl.NewArxivAPI(fetcher, cfg.Crawler.MaxResults, logger.With("component", "arxiv")))

	taxonomies := map[domain.ContentType]domain.Taxonomy{}
	for _, ct := range domain.ContentTypes() {
		taxonomies[ct] = cfg.Keywords.Taxonomy(ct)
	}

	keywords := filter.NewKeyword(taxonomies)
	enhancer := filter.NewEnhancer(cfg.Keywords.Companies)
	backfill := enrich.NewFullText(fetcher, logger.With("component", "enrich"))
	notifier := webhook.NewNotifier(cfg.Webhook, opts.TestMode, logger.With("component", "webhook"))
	selector := usecase.NewSelector(ledger, cfg.Quotas)

	pipeline := usecase.NewPipeline(cfg, registry, keywords, enhancer, backfill,
		ledger, selector, notifier, logger.With("component", "pipeline"))

	generator, err := site.NewGenerator(ledger, cfg.Site, logger.With("component", "site"))
	if err != nil {
		ledger.Close()
		return nil, fmt.Errorf("building site generator: %w", err)
	}

	return &App{
		cfg:      cfg,
		opts:     opts,
		logger:   logger,
		ledger:   ledger,
		pipeline: pipeline,
		notifier: notifier,
		site:     generator,
	}, nil
}

// Close releases the ledger.
func (a *App) Close() error {
	return a.ledger.Close()
}

// Run dispatches to the selected mode and blocks until it completes.
func (a *App) Run(ctx context.Context) error {
	switch {
	case a.opts.TestWebhook:
		return a.testWebhook(ctx)
	case a.opts.Site:
		return a.site.Generate(ctx)
	case a.opts.Every > 0:
		return a.runDaemon(ctx)
	default:
		return a.runOnce(ctx)
	}
}

func (a *App) runOnce(ctx context.Context) error {
	summary, err := a.pipeline.Run(ctx, usecase.RunOptions{
		Types:  a.opts.Types,
		DryRun: a.opts.DryRun,
	})
	if err != nil {
		return err
	}

	for ct, stats := range summary.Stats {
		a.logger.Info("run finished", "run_id", summary.RunID, "type", ct,
			"fetched", stats.Fetched, "kept", stats.Kept,
			"stored", stats.Stored, "delivered", stats.Delivered)
	}

	if !a.opts.DryRun {
		if err := a.site.Generate(ctx); err != nil {
			a.logger.Error("site regeneration failed", "error", err)
		}
	}
	return nil
}

func (a *App) runDaemon(ctx context.Context) error {
	sched, err := scheduler.NewInterval(a.opts.Every, a.logger.With("component", "scheduler"))
	if err != nil {
		return err
	}
	daemon := usecase.NewDaemon(a.pipeline, sched, usecase.RunOptions{
		Types:  a.opts.Types,
		DryRun: a.opts.DryRun,
	}, a.logger.With("component", "daemon"))
	return daemon.Run(ctx)
}

func (a *App) testWebhook(ctx context.Context) error {
	text := fmt.Sprintf("✅ InfoSpider webhook 连通性测试 %s", time.Now().Format("2006-01-02 15:04:05"))
	if err := a.notifier.PublishText(ctx, text); err != nil {
		return fmt.Errorf("webhook test failed: %w", err)
	}
	a.logger.Info("webhook test message sent")
	return nil
}
