// Package site renders the ledger into a static browsable archive.
package site

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"InfoSpider/internal/config"
	"InfoSpider/internal/domain"
	"InfoSpider/internal/ports"
)

//go:embed templates/*.html
var templateFS embed.FS

// Generator writes one HTML page per content type plus an index, reading
// everything from the ledger.
type Generator struct {
	ledger    ports.Ledger
	cfg       config.SiteConfig
	templates *template.Template
	logger    *slog.Logger
	now       func() time.Time
}

// NewGenerator parses the embedded templates once at construction.
func NewGenerator(ledger ports.Ledger, cfg config.SiteConfig, logger *slog.Logger) (*Generator, error) {
	tmpl, err := template.New("site").Funcs(template.FuncMap{
		"date": func(t *time.Time) string {
			if t == nil {
				return ""
			}
			return t.Format("2006-01-02")
		},
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing site templates: %w", err)
	}

	if cfg.PageLimit <= 0 {
		cfg.PageLimit = 200
	}

	return &Generator{
		ledger:    ledger,
		cfg:       cfg,
		templates: tmpl,
		logger:    logger,
		now:       time.Now,
	}, nil
}

type pageData struct {
	SiteTitle   string
	Description string
	PageTitle   string
	GeneratedAt string
	Records     []domain.Record
	Counts      map[string]int
}

var sections = []struct {
	ct       domain.ContentType
	template string
	file     string
	title    string
}{
	{domain.TypeNews, "news.html", "news.html", "新闻资讯"},
	{domain.TypePaper, "papers.html", "papers.html", "论文速递"},
	{domain.TypePatent, "patents.html", "patents.html", "专利动态"},
}

// Generate writes the archive into the configured output directory. Every
// page is rebuilt from scratch on each call.
func (g *Generator) Generate(ctx context.Context) error {
	if err := os.MkdirAll(g.cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("creating site output directory: %w", err)
	}

	generatedAt := g.now().Format("2006-01-02 15:04")
	counts := map[string]int{}

	for _, section := range sections {
		records, err := g.ledger.ListRecent(ctx, section.ct, g.cfg.PageLimit)
		if err != nil {
			return fmt.Errorf("listing %s records: %w", section.ct, err)
		}
		counts[string(section.ct)] = len(records)

		data := pageData{
			SiteTitle:   g.cfg.Title,
			Description: g.cfg.Description,
			PageTitle:   section.title,
			GeneratedAt: generatedAt,
			Records:     records,
		}
		if err := g.render(section.template, section.file, data); err != nil {
			return err
		}
		g.info("site page rendered", "page", section.file, "records", len(records))
	}

	index := pageData{
		SiteTitle:   g.cfg.Title,
		Description: g.cfg.Description,
		PageTitle:   g.cfg.Title,
		GeneratedAt: generatedAt,
		Counts:      counts,
	}
	if err := g.render("index.html", "index.html", index); err != nil {
		return err
	}

	g.info("site generated", "dir", g.cfg.OutputDir)
	return nil
}

func (g *Generator) render(templateName, fileName string, data pageData) error {
	path := filepath.Join(g.cfg.OutputDir, fileName)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	if err := g.templates.ExecuteTemplate(f, templateName, data); err != nil {
		return fmt.Errorf("rendering %s: %w", templateName, err)
	}
	return nil
}

func (g *Generator) info(msg string, args ...interface{}) {
	if g.logger != nil {
		g.logger.Info(msg, args...)
	}
}
