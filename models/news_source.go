package models

// SourceType selects the fetcher that handles a source.
type SourceType string

const (
	SourceRSS       SourceType = "rss"
	SourcePubMed    SourceType = "pubmed"
	SourceEuropePMC SourceType = "europepmc"
	SourceCSE       SourceType = "cse"
)

// SourceKind distinguishes peer-reviewed outlets from general news.
type SourceKind string

const (
	KindJournal SourceKind = "journal"
	KindNews    SourceKind = "news"
)

// NewsSource is one configured origin of candidates.
type NewsSource struct {
	Name     string     `json:"name" yaml:"name"`
	Type     SourceType `json:"type" yaml:"type"`
	URL      string     `json:"url,omitempty" yaml:"url"`
	Domain   string     `json:"domain,omitempty" yaml:"domain"`
	Category Category   `json:"category" yaml:"category"`
	Kind     SourceKind `json:"kind" yaml:"kind"`
	Enabled  bool       `json:"enabled" yaml:"-"`

	// Fast sources are the only ones used when a run asks for fast mode.
	Fast     bool     `json:"fast" yaml:"fast"`
	MaxItems int      `json:"max_items,omitempty" yaml:"max_items"`
	Queries  []string `json:"queries,omitempty" yaml:"queries"`
}

// IsSearch reports whether the source is driven by a query list rather than a feed URL.
func (s NewsSource) IsSearch() bool {
	return s.Type == SourcePubMed || s.Type == SourceEuropePMC || s.Type == SourceCSE
}
