package crawler

import (
	"context"
	"fmt"

	"InfoSpider/internal/domain"
)

// Request carries all parameters required to crawl one source.
type Request struct {
	Source   domain.Source
	Keywords []string
	Limit    int
}

// Crawler captures a single fetch-and-extract strategy for one combination of
// content type and fetch strategy.
type Crawler interface {
	Name() string
	Crawl(ctx context.Context, req Request) ([]domain.Record, error)
}

// Key derives the registry lookup key for a source descriptor.
func Key(src domain.Source) string {
	return fmt.Sprintf("%s/%s", src.Type, src.Strategy)
}

// Registry keeps a mapping from strategy keys to their implementations.
type Registry struct {
	crawlers map[string]Crawler
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{crawlers: map[string]Crawler{}}
}

// Register adds or replaces a crawler implementation.
func (r *Registry) Register(c Crawler) {
	if r.crawlers == nil {
		r.crawlers = map[string]Crawler{}
	}
	r.crawlers[c.Name()] = c
}

// Resolve returns the crawler for a source or an error if none is registered.
func (r *Registry) Resolve(src domain.Source) (Crawler, error) {
	if c, ok := r.crawlers[Key(src)]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("no crawler registered for %s", Key(src))
}

// ParseError marks a raw blob that could not be turned into records. It is
// recovered per blob: the blob is skipped, the run continues.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
