package crawl

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"InfoSpider/internal/crawler"
	"InfoSpider/internal/domain"
)

const arxivFeedXML = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>ArXiv Query Results</title>
  <entry>
    <id>http://arxiv.org/abs/2608.01234v2</id>
    <title>Learning Dexterous Robot Manipulation</title>
    <summary>We present a method for robot manipulation.</summary>
    <published>2026-08-18T12:00:00Z</published>
    <link href="http://arxiv.org/abs/2608.01234v2" rel="alternate" type="text/html"/>
    <author><name>Alice Chen</name></author>
    <author><name>Bob Park</name></author>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2608.05678v1</id>
    <title>Visual Servoing Revisited</title>
    <summary>A survey of visual servoing.</summary>
    <published>2026-08-17T09:30:00Z</published>
    <link href="http://arxiv.org/abs/2608.05678v1" rel="alternate" type="text/html"/>
    <author><name>Carol Wu</name></author>
  </entry>
</feed>`

func TestArxivCrawlParsesFeed(t *testing.T) {
	t.Parallel()

	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("search_query")
		w.Header().Set("Content-Type", "application/atom+xml")
		_, _ = w.Write([]byte(arxivFeedXML))
	}))
	defer server.Close()

	c := NewArxivAPI(testFetcher(server), 30, nil)
	records, err := c.Crawl(context.Background(), crawler.Request{
		Source: domain.Source{
			Name:       "arXiv",
			Type:       domain.TypePaper,
			Strategy:   domain.StrategyAPI,
			URL:        server.URL + "/api/query",
			Categories: []string{"cs.RO", "cs.AI"},
		},
		Keywords: []string{"robot manipulation", "visual servoing"},
	})
	if err != nil {
		t.Fatalf("Crawl returned error: %v", err)
	}

	if !strings.Contains(gotQuery, `all:"robot manipulation" OR all:"visual servoing"`) {
		t.Fatalf("keywords not combined with OR: %s", gotQuery)
	}
	if !strings.Contains(gotQuery, "cat:cs.RO OR cat:cs.AI") {
		t.Fatalf("categories missing from query: %s", gotQuery)
	}

	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	first := records[0]
	if first.ContentType != domain.TypePaper {
		t.Fatalf("unexpected content type: %s", first.ContentType)
	}
	if first.Title != "Learning Dexterous Robot Manipulation" {
		t.Fatalf("unexpected title: %s", first.Title)
	}
	if first.ExtraField(domain.ExtraAuthors) != "Alice Chen, Bob Park" {
		t.Fatalf("authors not joined: %s", first.ExtraField(domain.ExtraAuthors))
	}
	if first.ExtraField(domain.ExtraArxivID) != "2608.01234" {
		t.Fatalf("version suffix not stripped: %s", first.ExtraField(domain.ExtraArxivID))
	}
	if first.ExtraField(domain.ExtraPDFURL) != "https://arxiv.org/pdf/2608.01234" {
		t.Fatalf("unexpected pdf url: %s", first.ExtraField(domain.ExtraPDFURL))
	}
	if first.PublishedAt == nil || first.PublishedAt.Format("2006-01-02") != "2026-08-18" {
		t.Fatalf("unexpected published date: %v", first.PublishedAt)
	}
}

func TestArxivCrawlRespectsLimit(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(arxivFeedXML))
	}))
	defer server.Close()

	c := NewArxivAPI(testFetcher(server), 30, nil)
	records, err := c.Crawl(context.Background(), crawler.Request{
		Source:   domain.Source{Name: "arXiv", Type: domain.TypePaper, URL: server.URL},
		Keywords: []string{"robot"},
		Limit:    1,
	})
	if err != nil {
		t.Fatalf("Crawl returned error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
}

func TestArxivCrawlRequiresKeywords(t *testing.T) {
	t.Parallel()

	c := NewArxivAPI(nil, 0, nil)
	_, err := c.Crawl(context.Background(), crawler.Request{
		Source: domain.Source{Name: "arXiv", Type: domain.TypePaper, URL: "http://example.com"},
	})
	if err == nil {
		t.Fatal("expected error without keywords")
	}
}
