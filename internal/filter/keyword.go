// Package filter evaluates records against the keyword taxonomy and enriches
// the survivors before persistence.
package filter

import (
	"strings"

	"InfoSpider/internal/domain"
)

// Keyword matches taxonomy keywords against record text. A record with zero
// matches is excluded; that is expected filtering behaviour, not an error.
type Keyword struct {
	taxonomies map[domain.ContentType]domain.Taxonomy
}

// NewKeyword builds the filter from per-content-type taxonomies.
func NewKeyword(taxonomies map[domain.ContentType]domain.Taxonomy) *Keyword {
	if taxonomies == nil {
		taxonomies = map[domain.ContentType]domain.Taxonomy{}
	}
	return &Keyword{taxonomies: taxonomies}
}

// Apply annotates the record with every matched keyword (per category for
// news) and reports whether the record should be kept.
func (f *Keyword) Apply(rec domain.Record) (domain.Record, bool) {
	taxonomy, ok := f.taxonomies[rec.ContentType]
	if !ok || taxonomy.Empty() {
		return rec, false
	}

	haystack := strings.ToLower(rec.Title + " " + rec.Summary)
	matched := domain.KeywordMatches{}

	for category, keywords := range taxonomy.Categories {
		for _, kw := range keywords {
			if kw == "" {
				continue
			}
			if strings.Contains(haystack, strings.ToLower(kw)) {
				matched.Add(category, kw)
			}
		}
	}

	if matched.Empty() {
		return rec, false
	}

	rec.Matched = matched
	return rec, true
}

// Keep filters a batch, returning only annotated survivors.
func (f *Keyword) Keep(records []domain.Record) []domain.Record {
	var kept []domain.Record
	for _, rec := range records {
		if annotated, ok := f.Apply(rec); ok {
			kept = append(kept, annotated)
		}
	}
	return kept
}
