// Package usecase orchestrates one collection run: crawl, filter, persist,
// select and deliver.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"InfoSpider/internal/config"
	"InfoSpider/internal/crawler"
	"InfoSpider/internal/domain"
	"InfoSpider/internal/filter"
	"InfoSpider/internal/ports"
)

// SummaryBackfiller fills missing summaries by visiting the article pages.
type SummaryBackfiller interface {
	Backfill(ctx context.Context, records []domain.Record)
}

// TypeStats counts what happened to one content type during a run.
type TypeStats struct {
	Fetched   int
	Kept      int
	Stored    int
	Delivered int
}

// RunSummary is the outcome of one pipeline run.
type RunSummary struct {
	RunID         string
	Stats         map[domain.ContentType]*TypeStats
	FailedSources []string
}

// RunOptions narrows a run to selected content types or a dry rehearsal.
type RunOptions struct {
	Types  []domain.ContentType
	DryRun bool
}

// Pipeline drives the full collect-filter-store-deliver cycle.
type Pipeline struct {
	cfg      config.Config
	registry *crawler.Registry
	keywords *filter.Keyword
	enhancer *filter.Enhancer
	backfill SummaryBackfiller
	ledger   ports.Ledger
	selector *Selector
	notifier ports.Notifier
	logger   *slog.Logger
}

// NewPipeline wires the run dependencies; backfill may be nil to disable
// full-text summary recovery.
func NewPipeline(
	cfg config.Config,
	registry *crawler.Registry,
	keywords *filter.Keyword,
	enhancer *filter.Enhancer,
	backfill SummaryBackfiller,
	ledger ports.Ledger,
	selector *Selector,
	notifier ports.Notifier,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		registry: registry,
		keywords: keywords,
		enhancer: enhancer,
		backfill: backfill,
		ledger:   ledger,
		selector: selector,
		notifier: notifier,
		logger:   logger,
	}
}

// Run executes one full cycle for the requested content types. Source-level
// failures are tolerated; only an unreachable ledger aborts the run.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (RunSummary, error) {
	summary := RunSummary{
		RunID: uuid.NewString(),
		Stats: map[domain.ContentType]*TypeStats{},
	}
	log := p.logger.With("run_id", summary.RunID)

	if err := p.ledger.Ping(ctx); err != nil {
		return summary, fmt.Errorf("ledger unavailable: %w", err)
	}

	types := opts.Types
	if len(types) == 0 {
		types = domain.ContentTypes()
	}

	for _, ct := range types {
		stats := &TypeStats{}
		summary.Stats[ct] = stats

		records, failed := p.collect(ctx, ct, log)
		summary.FailedSources = append(summary.FailedSources, failed...)
		stats.Fetched = len(records)

		kept := p.keywords.Keep(records)
		if ct == domain.TypeNews {
			// Backfill only survivors; dropped records are not worth a page
			// fetch. Enrichment runs after so it sees the recovered text.
			if p.backfill != nil {
				p.backfill.Backfill(ctx, kept)
			}
			for i := range kept {
				p.enhancer.Enrich(&kept[i])
			}
		}
		stats.Kept = len(kept)

		if opts.DryRun {
			log.Info("dry run, skipping persistence", "type", ct, "kept", len(kept))
			continue
		}

		for _, rec := range kept {
			rec.Identity = domain.Fingerprint(rec)
			inserted, err := p.ledger.Upsert(ctx, rec)
			if err != nil {
				log.Error("upsert failed", "type", ct, "title", rec.Title, "error", err)
				continue
			}
			if inserted {
				stats.Stored++
			}
		}
		log.Info("collection stored", "type", ct,
			"fetched", stats.Fetched, "kept", stats.Kept, "new", stats.Stored)
	}

	if !opts.DryRun {
		if err := p.deliver(ctx, types, summary, log); err != nil {
			log.Error("delivery failed", "error", err)
			notice := fmt.Sprintf("⚠️ 推送失败: %v (run %s)", err, summary.RunID)
			if nerr := p.notifier.PublishText(ctx, notice); nerr != nil {
				log.Error("failure notice not sent", "error", nerr)
			}
		}
	}

	p.notifyTotalFailures(ctx, types, summary, log)

	return summary, nil
}

// collect crawls every enabled source of one type with bounded parallelism.
// It returns the fetched records plus the names of sources that failed
// entirely.
func (p *Pipeline) collect(ctx context.Context, ct domain.ContentType, log *slog.Logger) ([]domain.Record, []string) {
	sources := p.cfg.SourcesFor(ct)

	parallelism := p.cfg.Crawler.Parallelism
	if parallelism <= 0 {
		parallelism = 1
	}
	sem := make(chan struct{}, parallelism)

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		records []domain.Record
		failed  []string
	)

	for _, src := range sources {
		if !src.Enabled {
			log.Info("source disabled, skipping", "source", src.Name)
			continue
		}

		c, err := p.registry.Resolve(src)
		if err != nil {
			log.Error("source misconfigured", "source", src.Name, "error", err)
			mu.Lock()
			failed = append(failed, src.Name)
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(src domain.Source, c crawler.Crawler) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			req := crawler.Request{
				Source:   src,
				Keywords: p.crawlKeywords(ct),
				Limit:    p.cfg.Crawler.MaxResults,
			}
			recs, err := c.Crawl(ctx, req)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Error("source crawl failed", "source", src.Name, "error", err)
				failed = append(failed, src.Name)
				return
			}
			log.Info("source crawled", "source", src.Name, "records", len(recs))
			records = append(records, recs...)
		}(src, c)
	}

	wg.Wait()
	return records, failed
}

// crawlKeywords picks the query terms sent to sources; matching afterwards
// still uses the full taxonomy.
func (p *Pipeline) crawlKeywords(ct domain.ContentType) []string {
	return p.cfg.Keywords.Taxonomy(ct).Keywords()
}

// deliver sends the news card and the papers-and-patents digest. The two
// payloads are independent: a failed news card must not cost the digest its
// attempt. Only actually delivered batches are marked.
func (p *Pipeline) deliver(ctx context.Context, types []domain.ContentType, summary RunSummary, log *slog.Logger) error {
	requested := map[domain.ContentType]bool{}
	for _, ct := range types {
		requested[ct] = true
	}

	var errs []error
	if requested[domain.TypeNews] {
		if err := p.deliverNews(ctx, summary, log); err != nil {
			errs = append(errs, err)
		}
	}
	if requested[domain.TypePaper] || requested[domain.TypePatent] {
		if err := p.deliverDigest(ctx, requested, summary, log); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Pipeline) deliverNews(ctx context.Context, summary RunSummary, log *slog.Logger) error {
	batch, err := p.selector.Pick(ctx, domain.TypeNews)
	if err != nil {
		return err
	}
	outcome, err := p.notifier.PublishNews(ctx, batch)
	if err != nil {
		return err
	}
	if outcome != ports.DeliveryDelivered {
		return nil
	}
	if err := p.markDelivered(ctx, domain.TypeNews, batch); err != nil {
		return err
	}
	summary.Stats[domain.TypeNews].Delivered = len(batch)
	log.Info("news batch delivered", "count", len(batch))
	return nil
}

func (p *Pipeline) deliverDigest(ctx context.Context, requested map[domain.ContentType]bool, summary RunSummary, log *slog.Logger) error {
	var papers, patents []domain.Record
	var err error
	if requested[domain.TypePaper] {
		if papers, err = p.selector.Pick(ctx, domain.TypePaper); err != nil {
			return err
		}
	}
	if requested[domain.TypePatent] {
		if patents, err = p.selector.Pick(ctx, domain.TypePatent); err != nil {
			return err
		}
	}

	outcome, err := p.notifier.PublishDigest(ctx, papers, patents)
	if err != nil {
		return err
	}
	if outcome != ports.DeliveryDelivered {
		return nil
	}
	if err := p.markDelivered(ctx, domain.TypePaper, papers); err != nil {
		return err
	}
	if err := p.markDelivered(ctx, domain.TypePatent, patents); err != nil {
		return err
	}
	if s := summary.Stats[domain.TypePaper]; s != nil {
		s.Delivered = len(papers)
	}
	if s := summary.Stats[domain.TypePatent]; s != nil {
		s.Delivered = len(patents)
	}
	log.Info("digest delivered", "papers", len(papers), "patents", len(patents))
	return nil
}

func (p *Pipeline) markDelivered(ctx context.Context, ct domain.ContentType, batch []domain.Record) error {
	if len(batch) == 0 {
		return nil
	}
	identities := make([]string, 0, len(batch))
	for _, rec := range batch {
		identities = append(identities, rec.Identity)
	}
	if err := p.ledger.MarkDelivered(ctx, ct, identities, time.Now()); err != nil {
		return fmt.Errorf("marking %s batch delivered: %w", ct, err)
	}
	return nil
}

// notifyTotalFailures raises a text notice when every enabled source of a
// requested type failed, so a silent week does not go unnoticed.
func (p *Pipeline) notifyTotalFailures(ctx context.Context, types []domain.ContentType, summary RunSummary, log *slog.Logger) {
	failedSet := map[string]bool{}
	for _, name := range summary.FailedSources {
		failedSet[name] = true
	}

	for _, ct := range types {
		var enabled, failed int
		for _, src := range p.cfg.SourcesFor(ct) {
			if !src.Enabled {
				continue
			}
			enabled++
			if failedSet[src.Name] {
				failed++
			}
		}
		if enabled == 0 || failed < enabled {
			continue
		}

		text := fmt.Sprintf("⚠️ 采集告警: %s 类型的全部 %d 个来源在本次运行中失败 (run %s)", ct, enabled, summary.RunID)
		if err := p.notifier.PublishText(ctx, text); err != nil {
			log.Error("failure notice not sent", "type", ct, "error", err)
		}
	}
}
