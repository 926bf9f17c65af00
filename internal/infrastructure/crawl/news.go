// Package crawl implements the per-content-type extraction strategies
// registered with the crawler registry.
package crawl

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"InfoSpider/internal/crawler"
	"InfoSpider/internal/domain"
	"InfoSpider/internal/infrastructure/fetch"
)

const (
	maxKeywordQueries = 5
	maxSummaryRunes   = 500
)

var defaultNewsSelectors = domain.Selectors{
	Item:    "article, div.article-item, li.news-item",
	Title:   "h3 a, h2 a, a.title",
	Summary: "p.summary, div.description",
	Date:    "time, span.time, span.date",
}

// NewsHTML scrapes listing pages of HTML news sources. For search-driven
// sources the entry set is one search page per configured keyword.
type NewsHTML struct {
	fetcher *fetch.Client
	logger  *slog.Logger
}

// NewNewsHTML wires the shared fetch client.
func NewNewsHTML(fetcher *fetch.Client, logger *slog.Logger) *NewsHTML {
	return &NewsHTML{fetcher: fetcher, logger: logger}
}

// Name identifies the strategy inside the registry.
func (n *NewsHTML) Name() string {
	return "news/html"
}

// Crawl fetches the source's entry pages and extracts normalized records.
// Individual page failures are tolerated; the source fails only when every
// entry page failed to fetch.
func (n *NewsHTML) Crawl(ctx context.Context, req crawler.Request) ([]domain.Record, error) {
	pages := entryURLs(req.Source, req.Keywords)
	if len(pages) == 0 {
		return nil, fmt.Errorf("source %s has no entry URL", req.Source.Name)
	}

	var (
		records []domain.Record
		fetched int
		lastErr error
	)

	for _, pageURL := range pages {
		blob, err := n.fetcher.Get(ctx, req.Source.Name, pageURL)
		if err != nil {
			lastErr = err
			n.warn("entry page failed", "source", req.Source.Name, "url", pageURL, "error", err)
			continue
		}
		fetched++

		items, err := extractNewsList(blob, req.Source, pageURL, req.Limit)
		if err != nil {
			n.warn("blob skipped", "source", req.Source.Name, "error", err)
			continue
		}
		records = append(records, items...)
	}

	if fetched == 0 && lastErr != nil {
		return nil, lastErr
	}

	return dedupeByURL(records), nil
}

// extractNewsList walks the item selector and isolates per-entry failures:
// a malformed entry is dropped, never the whole page.
func extractNewsList(blob []byte, src domain.Source, pageURL string, limit int) ([]domain.Record, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(blob))
	if err != nil {
		return nil, &crawler.ParseError{Source: src.Name, Err: err}
	}

	sel := mergeSelectors(src.Selectors, defaultNewsSelectors)
	var records []domain.Record

	doc.Find(sel.Item).EachWithBreak(func(i int, item *goquery.Selection) bool {
		if limit > 0 && len(records) >= limit {
			return false
		}

		rec, ok := parseNewsItem(item, sel, src.Name, pageURL)
		if !ok {
			return true
		}
		records = append(records, rec)
		return true
	})

	return records, nil
}

func parseNewsItem(item *goquery.Selection, sel domain.Selectors, sourceName, pageURL string) (domain.Record, bool) {
	titleNode := item.Find(sel.Title).First()
	title := strings.TrimSpace(titleNode.Text())

	href, _ := titleNode.Attr("href")
	if href == "" {
		linkSel := "a"
		if sel.Link != "" {
			linkSel = sel.Link
		}
		if link := item.Find(linkSel).First(); link.Length() > 0 {
			href, _ = link.Attr("href")
		}
	}
	href = absoluteURL(pageURL, href)

	if title == "" || href == "" {
		return domain.Record{}, false
	}

	summary := strings.TrimSpace(item.Find(sel.Summary).First().Text())
	dateText := strings.TrimSpace(item.Find(sel.Date).First().Text())

	rec := domain.Record{
		ContentType: domain.TypeNews,
		Title:       collapseSpace(title),
		URL:         href,
		SourceName:  sourceName,
		Summary:     truncateRunes(collapseSpace(summary), maxSummaryRunes),
		PublishedAt: parseDate(dateText),
		State:       domain.StateNew,
	}
	return rec, true
}

// entryURLs expands a source into its fixed entry set: either the listing URL
// or one search URL per keyword (bounded, to keep request volume predictable).
func entryURLs(src domain.Source, keywords []string) []string {
	if src.SearchURL == "" {
		if src.URL == "" {
			return nil
		}
		return []string{src.URL}
	}

	if len(keywords) > maxKeywordQueries {
		keywords = keywords[:maxKeywordQueries]
	}

	var pages []string
	for _, kw := range keywords {
		pages = append(pages, strings.ReplaceAll(src.SearchURL, "{keyword}", url.QueryEscape(kw)))
	}
	return pages
}

func dedupeByURL(records []domain.Record) []domain.Record {
	seen := map[string]struct{}{}
	out := records[:0]
	for _, rec := range records {
		if _, ok := seen[rec.URL]; ok {
			continue
		}
		seen[rec.URL] = struct{}{}
		out = append(out, rec)
	}
	return out
}

func mergeSelectors(override, fallback domain.Selectors) domain.Selectors {
	if override.Item == "" {
		override.Item = fallback.Item
	}
	if override.Title == "" {
		override.Title = fallback.Title
	}
	if override.Link == "" {
		override.Link = fallback.Link
	}
	if override.Summary == "" {
		override.Summary = fallback.Summary
	}
	if override.Date == "" {
		override.Date = fallback.Date
	}
	return override
}

func absoluteURL(pageURL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "javascript:") {
		return ""
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"2006年01月02日",
	"2006年1月2日",
	time.RFC3339,
}

// parseDate normalizes a date string best-effort; unparsable input yields nil
// rather than a fabricated date.
func parseDate(text string) *time.Time {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func (n *NewsHTML) warn(msg string, args ...interface{}) {
	if n.logger != nil {
		n.logger.Warn(msg, args...)
	}
}
