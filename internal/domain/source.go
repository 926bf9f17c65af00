package domain

// FetchStrategy selects how a source's entry points are retrieved.
type FetchStrategy string

const (
	StrategyHTML FetchStrategy = "html"
	StrategyAPI  FetchStrategy = "api"
)

// Selectors carries the structural CSS selectors tuned per source layout.
// Empty fields fall back to the extractor's defaults for the content type.
type Selectors struct {
	Item    string
	Title   string
	Link    string
	Summary string
	Date    string
}

// Source is a static descriptor of one upstream provider. It is read-only to
// the pipeline; only configuration changes between runs may alter it.
type Source struct {
	Name       string
	Type       ContentType
	Strategy   FetchStrategy
	URL        string
	SearchURL  string
	Categories []string
	Selectors  Selectors
	Enabled    bool
}

// Taxonomy maps category labels to keyword sets. Flat keyword lists (papers,
// patents) live under the empty category label.
type Taxonomy struct {
	Categories map[string][]string
}

// NewTaxonomy builds a category-labelled taxonomy (news).
func NewTaxonomy(categories map[string][]string) Taxonomy {
	if categories == nil {
		categories = map[string][]string{}
	}
	return Taxonomy{Categories: categories}
}

// NewFlatTaxonomy wraps an unlabelled keyword set (papers, patents).
func NewFlatTaxonomy(keywords []string) Taxonomy {
	return Taxonomy{Categories: map[string][]string{"": keywords}}
}

// Keywords flattens every category into one list, preserving config order.
func (t Taxonomy) Keywords() []string {
	var all []string
	for _, kws := range t.Categories {
		all = append(all, kws...)
	}
	return all
}

// Empty reports whether the taxonomy has no keywords configured.
func (t Taxonomy) Empty() bool {
	return len(t.Keywords()) == 0
}
