package domain

import (
	"sort"
	"time"
)

// ContentType partitions records into the three collected corpora.
type ContentType string

const (
	TypeNews   ContentType = "news"
	TypePatent ContentType = "patent"
	TypePaper  ContentType = "paper"
)

// ContentTypes lists every known content type in pipeline order.
func ContentTypes() []ContentType {
	return []ContentType{TypeNews, TypePaper, TypePatent}
}

// DeliveryState tracks how far a record has travelled through the pipeline.
// Transitions only move forward: new -> stored -> delivered.
type DeliveryState string

const (
	StateNew       DeliveryState = "new"
	StateStored    DeliveryState = "stored"
	StateDelivered DeliveryState = "delivered"
)

// Extra field keys for per-type metadata carried alongside the core record.
const (
	ExtraAuthors       = "authors"
	ExtraPDFURL        = "pdf_url"
	ExtraArxivID       = "arxiv_id"
	ExtraApplicant     = "applicant"
	ExtraInventor      = "inventor"
	ExtraApplicationNo = "application_no"
	ExtraPublicationNo = "publication_no"
)

// KeywordMatches maps a taxonomy category to the keywords that matched.
// Flat taxonomies (papers, patents) use the empty category.
type KeywordMatches map[string][]string

// Add records a matched keyword under its category, skipping duplicates.
func (m KeywordMatches) Add(category, keyword string) {
	for _, existing := range m[category] {
		if existing == keyword {
			return
		}
	}
	m[category] = append(m[category], keyword)
}

// Empty reports whether no keyword matched at all.
func (m KeywordMatches) Empty() bool {
	for _, kws := range m {
		if len(kws) > 0 {
			return false
		}
	}
	return true
}

// Flatten returns every matched keyword once, sorted for stable output.
func (m KeywordMatches) Flatten() []string {
	seen := map[string]struct{}{}
	var flat []string
	for _, kws := range m {
		for _, kw := range kws {
			if _, ok := seen[kw]; ok {
				continue
			}
			seen[kw] = struct{}{}
			flat = append(flat, kw)
		}
	}
	sort.Strings(flat)
	return flat
}

// Record is one unit of collected content, normalized across source layouts.
type Record struct {
	ContentType ContentType
	Identity    string
	Title       string
	URL         string
	SourceName  string
	PublishedAt *time.Time
	Summary     string
	Matched     KeywordMatches
	Extra       map[string]string
	State       DeliveryState
	FirstSeenAt time.Time
	DeliveredAt *time.Time
}

// ExtraField reads a metadata field, tolerating a nil map.
func (r *Record) ExtraField(key string) string {
	if r.Extra == nil {
		return ""
	}
	return r.Extra[key]
}

// SetExtra writes a metadata field, allocating the map on first use.
func (r *Record) SetExtra(key, value string) {
	if value == "" {
		return
	}
	if r.Extra == nil {
		r.Extra = map[string]string{}
	}
	r.Extra[key] = value
}
