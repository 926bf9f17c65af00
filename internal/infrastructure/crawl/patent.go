package crawl

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"InfoSpider/internal/crawler"
	"InfoSpider/internal/domain"
	"InfoSpider/internal/infrastructure/fetch"
)

var defaultPatentSelectors = domain.Selectors{
	Item:    "div.result, div.c-result",
	Title:   "h3 a, a.title",
	Summary: "div.c_abstract, p.abstract",
}

var (
	applicationNoExpr = regexp.MustCompile(`(?:申请号|申请\(专利\)号)[:：]?\s*([A-Z]{2}\d{9,13}[.\dA-Z]*)`)
	applicantExpr     = regexp.MustCompile(`(?:申请人|权利人|专利权人)[:：]?\s*([^\s;；,，]{2,40})`)
	inventorExpr      = regexp.MustCompile(`发明人[:：]?\s*([^\s;；]{2,40})`)
)

// PatentHTML scrapes patent search result pages. Patent entries often lack a
// stable URL; the application number extracted from the snippet becomes the
// identity key instead.
type PatentHTML struct {
	fetcher *fetch.Client
	logger  *slog.Logger
}

// NewPatentHTML wires the shared fetch client.
func NewPatentHTML(fetcher *fetch.Client, logger *slog.Logger) *PatentHTML {
	return &PatentHTML{fetcher: fetcher, logger: logger}
}

// Name identifies the strategy inside the registry.
func (p *PatentHTML) Name() string {
	return "patent/html"
}

// Crawl runs one search page per keyword and extracts patent records.
func (p *PatentHTML) Crawl(ctx context.Context, req crawler.Request) ([]domain.Record, error) {
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
		blob, err := p.fetcher.Get(ctx, req.Source.Name, pageURL)
		if err != nil {
			lastErr = err
			p.warn("entry page failed", "source", req.Source.Name, "url", pageURL, "error", err)
			continue
		}
		fetched++

		items, err := extractPatentList(blob, req.Source, pageURL, req.Limit)
		if err != nil {
			p.warn("blob skipped", "source", req.Source.Name, "error", err)
			continue
		}
		records = append(records, items...)
	}

	if fetched == 0 && lastErr != nil {
		return nil, lastErr
	}

	return records, nil
}

func extractPatentList(blob []byte, src domain.Source, pageURL string, limit int) ([]domain.Record, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(blob))
	if err != nil {
		return nil, &crawler.ParseError{Source: src.Name, Err: err}
	}

	sel := mergeSelectors(src.Selectors, defaultPatentSelectors)
	var records []domain.Record

	doc.Find(sel.Item).EachWithBreak(func(i int, item *goquery.Selection) bool {
		if limit > 0 && len(records) >= limit {
			return false
		}

		rec, ok := parsePatentItem(item, sel, src.Name, pageURL)
		if !ok {
			return true
		}
		records = append(records, rec)
		return true
	})

	return records, nil
}

func parsePatentItem(item *goquery.Selection, sel domain.Selectors, sourceName, pageURL string) (domain.Record, bool) {
	titleNode := item.Find(sel.Title).First()
	title := strings.TrimSpace(titleNode.Text())
	if title == "" {
		return domain.Record{}, false
	}

	href, _ := titleNode.Attr("href")
	href = absoluteURL(pageURL, href)

	abstract := strings.TrimSpace(item.Find(sel.Summary).First().Text())
	snippet := collapseSpace(item.Text())

	rec := domain.Record{
		ContentType: domain.TypePatent,
		Title:       collapseSpace(title),
		URL:         href,
		SourceName:  sourceName,
		Summary:     truncateRunes(collapseSpace(abstract), maxSummaryRunes),
		State:       domain.StateNew,
	}

	if m := applicationNoExpr.FindStringSubmatch(snippet); m != nil {
		rec.SetExtra(domain.ExtraApplicationNo, m[1])
	}
	if m := applicantExpr.FindStringSubmatch(snippet); m != nil {
		rec.SetExtra(domain.ExtraApplicant, m[1])
	}
	if m := inventorExpr.FindStringSubmatch(snippet); m != nil {
		rec.SetExtra(domain.ExtraInventor, m[1])
	}

	// Without a link or an application number there is nothing to key on.
	if rec.URL == "" && rec.ExtraField(domain.ExtraApplicationNo) == "" {
		return domain.Record{}, false
	}

	return rec, true
}

func (p *PatentHTML) warn(msg string, args ...interface{}) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}
