package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"InfoSpider/internal/domain"
)

const (
	configPathEnv    = "INFOSPIDER_CONFIG"
	databasePathEnv  = "INFOSPIDER_DB"
	webhookURLEnv    = "WEBHOOK_URL"
	webhookSecretEnv = "WEBHOOK_SECRET"
)

// Config holds every setting the collector needs for one run.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Database DatabaseConfig `yaml:"database"`
	Crawler  CrawlerConfig  `yaml:"crawler"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Quotas   QuotaConfig    `yaml:"quotas"`
	Site     SiteConfig     `yaml:"site"`
	Keywords KeywordsConfig `yaml:"keywords"`
	Sources  []SourceConfig `yaml:"sources"`
}

// LoggingConfig sets the slog level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DatabaseConfig locates the SQLite ledger file.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// CrawlerConfig tunes the shared HTTP fetch discipline.
type CrawlerConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	DelayMin    time.Duration `yaml:"delayMin"`
	DelayMax    time.Duration `yaml:"delayMax"`
	MaxRetries  int           `yaml:"maxRetries"`
	Parallelism int           `yaml:"parallelism"`
	MaxResults  int           `yaml:"maxResults"`
	UserAgents  []string      `yaml:"userAgents"`
}

// WebhookConfig wires the chat webhook. An empty URL switches the notifier
// into archive-only mode where every batch is reported as skipped.
type WebhookConfig struct {
	URL        string        `yaml:"url"`
	Secret     string        `yaml:"secret"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"maxRetries"`
}

// QuotaConfig caps how many records of each type one run may deliver.
type QuotaConfig struct {
	News    int `yaml:"news"`
	Papers  int `yaml:"papers"`
	Patents int `yaml:"patents"`
}

// Limit resolves the quota for a content type.
func (q QuotaConfig) Limit(ct domain.ContentType) int {
	switch ct {
	case domain.TypeNews:
		return q.News
	case domain.TypePaper:
		return q.Papers
	case domain.TypePatent:
		return q.Patents
	}
	return 0
}

// SiteConfig drives the static archive renderer.
type SiteConfig struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	OutputDir   string `yaml:"outputDir"`
	PageLimit   int    `yaml:"pageLimit"`
}

// KeywordsConfig is the taxonomy input: news keywords grouped by category,
// flat sets for papers and patents, plus a company list for enrichment.
type KeywordsConfig struct {
	News      map[string][]string `yaml:"news"`
	Papers    []string            `yaml:"papers"`
	Patents   []string            `yaml:"patents"`
	Companies []string            `yaml:"companies"`
}

// Taxonomy resolves the taxonomy for a content type.
func (k KeywordsConfig) Taxonomy(ct domain.ContentType) domain.Taxonomy {
	switch ct {
	case domain.TypeNews:
		return domain.NewTaxonomy(k.News)
	case domain.TypePaper:
		return domain.NewFlatTaxonomy(k.Papers)
	case domain.TypePatent:
		return domain.NewFlatTaxonomy(k.Patents)
	}
	return domain.NewFlatTaxonomy(nil)
}

// SourceConfig describes one upstream provider.
type SourceConfig struct {
	Name       string          `yaml:"name"`
	Type       string          `yaml:"type"`
	Strategy   string          `yaml:"strategy"`
	URL        string          `yaml:"url"`
	SearchURL  string          `yaml:"searchUrl"`
	Categories []string        `yaml:"categories"`
	Selectors  SelectorsConfig `yaml:"selectors"`
	Enabled    bool            `yaml:"enabled"`
}

// SelectorsConfig overrides the structural selectors for one HTML layout.
type SelectorsConfig struct {
	Item    string `yaml:"item"`
	Title   string `yaml:"title"`
	Link    string `yaml:"link"`
	Summary string `yaml:"summary"`
	Date    string `yaml:"date"`
}

// Domain converts the YAML descriptor into the pipeline's Source value.
func (s SourceConfig) Domain() domain.Source {
	return domain.Source{
		Name:       s.Name,
		Type:       domain.ContentType(s.Type),
		Strategy:   domain.FetchStrategy(s.Strategy),
		URL:        s.URL,
		SearchURL:  s.SearchURL,
		Categories: s.Categories,
		Selectors: domain.Selectors{
			Item:    s.Selectors.Item,
			Title:   s.Selectors.Title,
			Link:    s.Selectors.Link,
			Summary: s.Selectors.Summary,
			Date:    s.Selectors.Date,
		},
		Enabled: s.Enabled,
	}
}

// SourcesFor returns the sources of one content type, disabled ones included;
// the pipeline logs and skips the disabled entries itself.
func (c Config) SourcesFor(ct domain.ContentType) []domain.Source {
	var out []domain.Source
	for _, src := range c.Sources {
		if src.Type != string(ct) {
			continue
		}
		out = append(out, src.Domain())
	}
	return out
}

// Load reads YAML configuration (if present) and applies environment
// overrides. An empty path falls back to the INFOSPIDER_CONFIG variable.
func Load(path string) Config {
	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()

	if len(cfg.Sources) == 0 {
		cfg.Sources = defaultConfig().Sources
	}

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databasePathEnv); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv(webhookURLEnv); v != "" {
		c.Webhook.URL = v
	}
	if v := os.Getenv(webhookSecretEnv); v != "" {
		c.Webhook.Secret = v
	}
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging = override.Logging
	}
	if override.Database.Path != "" {
		base.Database = override.Database
	}

	if override.Crawler.Timeout > 0 {
		base.Crawler.Timeout = override.Crawler.Timeout
	}
	if override.Crawler.DelayMin > 0 {
		base.Crawler.DelayMin = override.Crawler.DelayMin
	}
	if override.Crawler.DelayMax > 0 {
		base.Crawler.DelayMax = override.Crawler.DelayMax
	}
	if override.Crawler.MaxRetries > 0 {
		base.Crawler.MaxRetries = override.Crawler.MaxRetries
	}
	if override.Crawler.Parallelism > 0 {
		base.Crawler.Parallelism = override.Crawler.Parallelism
	}
	if override.Crawler.MaxResults > 0 {
		base.Crawler.MaxResults = override.Crawler.MaxResults
	}
	if len(override.Crawler.UserAgents) > 0 {
		base.Crawler.UserAgents = override.Crawler.UserAgents
	}

	if override.Webhook.URL != "" {
		base.Webhook.URL = override.Webhook.URL
	}
	if override.Webhook.Secret != "" {
		base.Webhook.Secret = override.Webhook.Secret
	}
	if override.Webhook.Timeout > 0 {
		base.Webhook.Timeout = override.Webhook.Timeout
	}
	if override.Webhook.MaxRetries > 0 {
		base.Webhook.MaxRetries = override.Webhook.MaxRetries
	}

	if override.Quotas.News > 0 {
		base.Quotas.News = override.Quotas.News
	}
	if override.Quotas.Papers > 0 {
		base.Quotas.Papers = override.Quotas.Papers
	}
	if override.Quotas.Patents > 0 {
		base.Quotas.Patents = override.Quotas.Patents
	}

	if override.Site.Title != "" {
		base.Site.Title = override.Site.Title
	}
	if override.Site.Description != "" {
		base.Site.Description = override.Site.Description
	}
	if override.Site.OutputDir != "" {
		base.Site.OutputDir = override.Site.OutputDir
	}
	if override.Site.PageLimit > 0 {
		base.Site.PageLimit = override.Site.PageLimit
	}

	if len(override.Keywords.News) > 0 {
		base.Keywords.News = override.Keywords.News
	}
	if len(override.Keywords.Papers) > 0 {
		base.Keywords.Papers = override.Keywords.Papers
	}
	if len(override.Keywords.Patents) > 0 {
		base.Keywords.Patents = override.Keywords.Patents
	}
	if len(override.Keywords.Companies) > 0 {
		base.Keywords.Companies = override.Keywords.Companies
	}

	if len(override.Sources) > 0 {
		base.Sources = override.Sources
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Logging:  LoggingConfig{Level: "info"},
		Database: DatabaseConfig{Path: "data/infospider.db"},
		Crawler: CrawlerConfig{
			Timeout:     30 * time.Second,
			DelayMin:    time.Second,
			DelayMax:    3 * time.Second,
			MaxRetries:  3,
			Parallelism: 2,
			MaxResults:  30,
			UserAgents: []string{
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			},
		},
		Webhook: WebhookConfig{
			Timeout:    10 * time.Second,
			MaxRetries: 3,
		},
		Quotas: QuotaConfig{News: 3, Papers: 4, Patents: 5},
		Site: SiteConfig{
			Title:       "制造业信息资讯",
			Description: "智能制造、机器人、AI技术相关新闻、专利、论文汇总",
			OutputDir:   "output/website",
			PageLimit:   200,
		},
		Keywords: KeywordsConfig{
			News: map[string][]string{
				"robot":               {"协作机器人", "工业机器人", "人形机器人", "移动机器人", "机械臂"},
				"ai_tech":             {"人工智能", "大模型", "机器视觉", "具身智能"},
				"smart_manufacturing": {"智能制造", "数字化工厂", "工业互联网", "柔性生产"},
			},
			Papers: []string{
				"robot manipulation", "collaborative robot", "industrial automation",
				"robot learning", "visual servoing",
			},
			Patents: []string{"机器人", "机械臂", "伺服", "减速器", "末端执行器"},
			Companies: []string{
				"埃斯顿", "汇川技术", "新松机器人", "节卡机器人", "遨博智能",
				"ABB", "FANUC", "KUKA", "Universal Robots",
			},
		},
		Sources: []SourceConfig{
			{
				Name:      "36氪",
				Type:      "news",
				Strategy:  "html",
				SearchURL: "https://www.36kr.com/search/articles/{keyword}",
				Selectors: SelectorsConfig{
					Item:    "div.article-item, div.kr-flow-article-item",
					Title:   "a.article-item-title, p.title-wrapper a",
					Summary: "a.article-item-description, div.description",
					Date:    "span.kr-flow-bar-time, time",
				},
				Enabled: true,
			},
			{
				Name:     "OFweek机器人",
				Type:     "news",
				Strategy: "html",
				URL:      "https://robot.ofweek.com/news/",
				Selectors: SelectorsConfig{
					Item:    "div.main_left_news_list li, div.list-item",
					Title:   "h3 a, a.news-title",
					Summary: "p.zhaiyao, p.summary",
					Date:    "span.time, span.date",
				},
				Enabled: true,
			},
			{
				Name:       "arXiv",
				Type:       "paper",
				Strategy:   "api",
				URL:        "http://export.arxiv.org/api/query",
				Categories: []string{"cs.RO", "cs.AI"},
				Enabled:    true,
			},
			{
				Name:      "百度学术专利",
				Type:      "patent",
				Strategy:  "html",
				SearchURL: "https://xueshu.baidu.com/s?wd={keyword}%20专利",
				Selectors: SelectorsConfig{
					Item:    "div.result, div.c-result",
					Title:   "h3 a, a.title",
					Summary: "div.c_abstract, p.abstract",
				},
				Enabled: true,
			},
			{
				Name:     "国家知识产权局",
				Type:     "patent",
				Strategy: "api",
				URL:      "https://pss-system.cponline.cnipa.gov.cn",
				Enabled:  false,
			},
		},
	}
}
