package crawl

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/mmcdole/gofeed"

	"InfoSpider/internal/crawler"
	"InfoSpider/internal/domain"
	"InfoSpider/internal/infrastructure/fetch"
)

const defaultMaxResults = 30

// ArxivAPI queries the arXiv Atom API for recent papers matching the
// configured keywords and categories.
type ArxivAPI struct {
	fetcher    *fetch.Client
	parser     *gofeed.Parser
	maxResults int
	logger     *slog.Logger
}

// NewArxivAPI wires the shared fetch client; maxResults defaults to 30.
func NewArxivAPI(fetcher *fetch.Client, maxResults int, logger *slog.Logger) *ArxivAPI {
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	return &ArxivAPI{
		fetcher:    fetcher,
		parser:     gofeed.NewParser(),
		maxResults: maxResults,
		logger:     logger,
	}
}

// Name identifies the strategy inside the registry.
func (a *ArxivAPI) Name() string {
	return "paper/api"
}

// Crawl issues one API query combining all keywords, newest submissions
// first, and converts each Atom entry into a paper record. A malformed entry
// is skipped without failing the feed.
func (a *ArxivAPI) Crawl(ctx context.Context, req crawler.Request) ([]domain.Record, error) {
	if len(req.Keywords) == 0 {
		return nil, fmt.Errorf("source %s has no keywords to query", req.Source.Name)
	}

	queryURL, err := buildArxivQuery(req.Source, req.Keywords, a.maxResults)
	if err != nil {
		return nil, err
	}

	blob, err := a.fetcher.Get(ctx, req.Source.Name, queryURL)
	if err != nil {
		return nil, err
	}

	feed, err := a.parser.ParseString(string(blob))
	if err != nil {
		return nil, &crawler.ParseError{Source: req.Source.Name, Err: err}
	}

	var records []domain.Record
	for _, item := range feed.Items {
		rec, ok := parseArxivEntry(item, req.Source.Name)
		if !ok {
			a.warn("entry skipped", "source", req.Source.Name)
			continue
		}
		records = append(records, rec)
		if req.Limit > 0 && len(records) >= req.Limit {
			break
		}
	}

	return records, nil
}

// buildArxivQuery combines keywords with OR and restricts to the configured
// categories, sorted by submission date descending.
func buildArxivQuery(src domain.Source, keywords []string, maxResults int) (string, error) {
	base, err := url.Parse(src.URL)
	if err != nil {
		return "", fmt.Errorf("invalid api url %s: %w", src.URL, err)
	}

	if len(keywords) > maxKeywordQueries {
		keywords = keywords[:maxKeywordQueries]
	}

	terms := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		terms = append(terms, fmt.Sprintf("all:%q", kw))
	}
	search := strings.Join(terms, " OR ")

	if len(src.Categories) > 0 {
		cats := make([]string, 0, len(src.Categories))
		for _, cat := range src.Categories {
			cats = append(cats, "cat:"+cat)
		}
		search = fmt.Sprintf("(%s) AND (%s)", search, strings.Join(cats, " OR "))
	}

	q := base.Query()
	q.Set("search_query", search)
	q.Set("start", "0")
	q.Set("max_results", strconv.Itoa(maxResults))
	q.Set("sortBy", "submittedDate")
	q.Set("sortOrder", "descending")
	base.RawQuery = q.Encode()

	return base.String(), nil
}

func parseArxivEntry(item *gofeed.Item, sourceName string) (domain.Record, bool) {
	if item == nil || item.Title == "" || item.Link == "" {
		return domain.Record{}, false
	}

	rec := domain.Record{
		ContentType: domain.TypePaper,
		Title:       collapseSpace(item.Title),
		URL:         item.Link,
		SourceName:  sourceName,
		Summary:     truncateRunes(collapseSpace(item.Description), maxSummaryRunes),
		State:       domain.StateNew,
	}

	if item.PublishedParsed != nil {
		t := item.PublishedParsed.UTC()
		rec.PublishedAt = &t
	} else if item.UpdatedParsed != nil {
		t := item.UpdatedParsed.UTC()
		rec.PublishedAt = &t
	}

	if len(item.Authors) > 0 {
		names := make([]string, 0, len(item.Authors))
		for _, author := range item.Authors {
			if author != nil && author.Name != "" {
				names = append(names, author.Name)
			}
		}
		rec.SetExtra(domain.ExtraAuthors, strings.Join(names, ", "))
	}

	if id := arxivID(item); id != "" {
		rec.SetExtra(domain.ExtraArxivID, id)
		rec.SetExtra(domain.ExtraPDFURL, "https://arxiv.org/pdf/"+id)
	}

	return rec, true
}

// arxivID extracts "2501.00001" from GUIDs like
// "http://arxiv.org/abs/2501.00001v2".
func arxivID(item *gofeed.Item) string {
	id := item.GUID
	if id == "" {
		id = item.Link
	}
	idx := strings.LastIndex(id, "/abs/")
	if idx < 0 {
		return ""
	}
	id = id[idx+len("/abs/"):]
	if v := strings.LastIndex(id, "v"); v > 0 {
		if _, err := strconv.Atoi(id[v+1:]); err == nil {
			id = id[:v]
		}
	}
	return id
}

func (a *ArxivAPI) warn(msg string, args ...interface{}) {
	if a.logger != nil {
		a.logger.Warn(msg, args...)
	}
}
