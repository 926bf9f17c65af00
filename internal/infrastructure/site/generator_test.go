package site

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"InfoSpider/internal/config"
	"InfoSpider/internal/domain"
)

type stubLedger struct {
	byType map[domain.ContentType][]domain.Record
}

func (s *stubLedger) Upsert(context.Context, domain.Record) (bool, error) { return false, nil }

func (s *stubLedger) SelectUndelivered(context.Context, domain.ContentType, int) ([]domain.Record, error) {
	return nil, nil
}

func (s *stubLedger) MarkDelivered(context.Context, domain.ContentType, []string, time.Time) error {
	return nil
}

func (s *stubLedger) ListRecent(_ context.Context, ct domain.ContentType, _ int) ([]domain.Record, error) {
	return s.byType[ct], nil
}

func (s *stubLedger) Ping(context.Context) error { return nil }

func TestGenerateWritesAllPages(t *testing.T) {
	t.Parallel()

	published := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	ledger := &stubLedger{byType: map[domain.ContentType][]domain.Record{
		domain.TypeNews: {{
			ContentType: domain.TypeNews,
			Title:       "协作机器人销量创新高",
			URL:         "https://example.com/news/1",
			SourceName:  "36氪",
			PublishedAt: &published,
			Summary:     "市场持续增长。",
			Matched:     domain.KeywordMatches{"robot": {"协作机器人"}},
		}},
		domain.TypePaper: {{
			ContentType: domain.TypePaper,
			Title:       "Robot Manipulation",
			URL:         "https://arxiv.org/abs/2608.01234",
			SourceName:  "arXiv",
			Extra: map[string]string{
				domain.ExtraAuthors: "Alice Chen",
				domain.ExtraPDFURL:  "https://arxiv.org/pdf/2608.01234",
			},
		}},
		domain.TypePatent: {{
			ContentType: domain.TypePatent,
			Title:       "一种机械臂关节",
			SourceName:  "百度学术专利",
			Extra: map[string]string{
				domain.ExtraApplicant:     "节卡机器人股份有限公司",
				domain.ExtraApplicationNo: "CN202310123456.7",
			},
		}},
	}}

	dir := t.TempDir()
	g, err := NewGenerator(ledger, config.SiteConfig{
		Title:       "制造业信息资讯",
		Description: "测试描述",
		OutputDir:   dir,
		PageLimit:   100,
	}, nil)
	if err != nil {
		t.Fatalf("NewGenerator returned error: %v", err)
	}

	if err := g.Generate(context.Background()); err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}

	for _, page := range []string{"index.html", "news.html", "papers.html", "patents.html"} {
		if _, err := os.Stat(filepath.Join(dir, page)); err != nil {
			t.Fatalf("page %s not written: %v", page, err)
		}
	}

	news := readPage(t, dir, "news.html")
	if !strings.Contains(news, "协作机器人销量创新高") {
		t.Fatal("news title missing from page")
	}
	if !strings.Contains(news, "2026-08-20") {
		t.Fatal("published date missing from news page")
	}

	papers := readPage(t, dir, "papers.html")
	if !strings.Contains(papers, "Alice Chen") {
		t.Fatal("authors missing from papers page")
	}
	if !strings.Contains(papers, "https://arxiv.org/pdf/2608.01234") {
		t.Fatal("pdf link missing from papers page")
	}

	patents := readPage(t, dir, "patents.html")
	if !strings.Contains(patents, "CN202310123456.7") {
		t.Fatal("application number missing from patents page")
	}

	index := readPage(t, dir, "index.html")
	if !strings.Contains(index, "制造业信息资讯") {
		t.Fatal("site title missing from index")
	}
}

func TestGenerateEmptyLedger(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	g, err := NewGenerator(&stubLedger{}, config.SiteConfig{Title: "空站", OutputDir: dir}, nil)
	if err != nil {
		t.Fatalf("NewGenerator returned error: %v", err)
	}
	if err := g.Generate(context.Background()); err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}

	news := readPage(t, dir, "news.html")
	if !strings.Contains(news, "暂无内容") {
		t.Fatal("empty state missing from news page")
	}
}

func readPage(t *testing.T, dir, name string) string {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	return string(raw)
}
