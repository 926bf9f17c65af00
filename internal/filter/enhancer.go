package filter

import (
	"regexp"
	"strings"

	"InfoSpider/internal/domain"
)

// CompanyCategory labels company matches inside KeywordMatches so the
// notifier can render them apart from technical keywords.
const CompanyCategory = "companies"

var companySuffixExpr = regexp.MustCompile(`\p{Han}{2,10}(?:科技|智能|机器人|汽车|制造|集团|公司)`)

// Enhancer extracts company names from record text and files them under the
// company category of the matched-keyword set.
type Enhancer struct {
	companies []string
}

// NewEnhancer takes the configured company watch list.
func NewEnhancer(companies []string) *Enhancer {
	return &Enhancer{companies: companies}
}

// Enrich adds company mentions to an already-filtered record. It only ever
// widens the matched set.
func (e *Enhancer) Enrich(rec *domain.Record) {
	if rec == nil {
		return
	}
	text := rec.Title + " " + rec.Summary
	lower := strings.ToLower(text)

	if rec.Matched == nil {
		rec.Matched = domain.KeywordMatches{}
	}

	for _, company := range e.companies {
		if company == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(company)) {
			rec.Matched.Add(CompanyCategory, company)
		}
	}

	for _, match := range companySuffixExpr.FindAllString(text, -1) {
		rec.Matched.Add(CompanyCategory, match)
	}
}
