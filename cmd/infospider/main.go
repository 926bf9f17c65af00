package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"InfoSpider/internal/app"
	"InfoSpider/internal/config"
	"InfoSpider/internal/domain"
	"InfoSpider/internal/logging"
)

func main() {
	var (
		typesFlag   = flag.String("type", "all", "content types to run: news|paper|patent|all (comma separated)")
		dryRun      = flag.Bool("dry-run", false, "crawl and filter without persisting or delivering")
		testMode    = flag.Bool("test", false, "build webhook payloads without sending them")
		siteOnly    = flag.Bool("site", false, "regenerate the static archive and exit")
		testWebhook = flag.Bool("test-webhook", false, "send a webhook connectivity message and exit")
		every       = flag.Duration("every", 0, "daemon mode: run repeatedly at this interval (e.g. 168h)")
		configPath  = flag.String("config", "", "path to the YAML config file (default: $INFOSPIDER_CONFIG)")
	)
	flag.Parse()

	// Missing .env is fine; environment variables may come from elsewhere.
	_ = godotenv.Load()

	cfg := config.Load(*configPath)
	logger := logging.New(cfg.Logging.Level)

	types, err := parseTypes(*typesFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(cfg, app.Options{
		Types:       types,
		DryRun:      *dryRun,
		TestMode:    *testMode,
		Site:        *siteOnly,
		TestWebhook: *testWebhook,
		Every:       *every,
	}, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}

	start := time.Now()
	runErr := application.Run(ctx)

	// Close before exiting; os.Exit would skip a deferred close.
	if err := application.Close(); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
	if runErr != nil {
		logger.Error("run failed", "error", runErr)
		os.Exit(1)
	}
	logger.Info("done", "elapsed", time.Since(start).Round(time.Millisecond))
}

func parseTypes(value string) ([]domain.ContentType, error) {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" || value == "all" {
		return nil, nil
	}

	known := map[string]domain.ContentType{
		"news":    domain.TypeNews,
		"paper":   domain.TypePaper,
		"papers":  domain.TypePaper,
		"patent":  domain.TypePatent,
		"patents": domain.TypePatent,
	}

	var types []domain.ContentType
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		ct, ok := known[part]
		if !ok {
			return nil, fmt.Errorf("unknown content type %q (want news, paper or patent)", part)
		}
		types = append(types, ct)
	}
	return types, nil
}
