// Package enrich backfills missing news summaries from the article pages
// themselves, using readability extraction with a small worker pool.
package enrich

import (
	"bytes"
	"context"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	readability "github.com/go-shiori/go-readability"

	"InfoSpider/internal/domain"
	"InfoSpider/internal/infrastructure/fetch"
)

const (
	workerCount     = 3
	maxSummaryRunes = 500
)

// FullText fetches article pages for records whose listing gave no summary.
// Pages go through the shared fetch client, so the crawl discipline (agent
// rotation, delays, retry) applies here too. Extraction failures leave the
// record unchanged.
type FullText struct {
	fetcher *fetch.Client
	logger  *slog.Logger
}

// NewFullText wires the shared fetch client.
func NewFullText(fetcher *fetch.Client, logger *slog.Logger) *FullText {
	return &FullText{fetcher: fetcher, logger: logger}
}

// Backfill mutates the slice in place, filling empty summaries where a page
// could be extracted.
func (f *FullText) Backfill(ctx context.Context, records []domain.Record) {
	var wg sync.WaitGroup
	jobs := make(chan int, len(records))

	for w := 0; w < workerCount; w++ {
		go func() {
			for i := range jobs {
				f.fill(ctx, &records[i])
				wg.Done()
			}
		}()
	}

	for i := range records {
		if records[i].Summary != "" || records[i].URL == "" {
			continue
		}
		wg.Add(1)
		jobs <- i
	}

	wg.Wait()
	close(jobs)
}

func (f *FullText) fill(ctx context.Context, rec *domain.Record) {
	if ctx.Err() != nil {
		return
	}

	pageURL, err := url.Parse(rec.URL)
	if err != nil {
		return
	}

	blob, err := f.fetcher.Get(ctx, rec.SourceName, rec.URL)
	if err != nil {
		f.debug("fulltext page fetch failed", "url", rec.URL, "error", err)
		return
	}

	article, err := readability.FromReader(bytes.NewReader(blob), pageURL)
	if err != nil {
		f.debug("fulltext extraction failed", "url", rec.URL, "error", err)
		return
	}

	text := article.TextContent
	if text == "" {
		text = article.Excerpt
	}
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return
	}

	runes := []rune(text)
	if len(runes) > maxSummaryRunes {
		text = string(runes[:maxSummaryRunes])
	}
	rec.Summary = text
}

func (f *FullText) debug(msg string, args ...interface{}) {
	if f.logger != nil {
		f.logger.Debug(msg, args...)
	}
}
