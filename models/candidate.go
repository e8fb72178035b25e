package models

import (
	"time"
)

// Candidate is an unvetted item produced by a fetcher. It never reaches storage directly.
type Candidate struct {
	Title       string
	Link        string
	Snippet     string
	PublishedAt *time.Time
	// Venue is the journal or outlet of a literature record.
	Venue string

	SourceName string
	SourceType SourceType
	SourceKind SourceKind
	// AllowedDomain is the registrable domain the resolved link must stay on.
	// Empty means the link's own domain.
	AllowedDomain   string
	DefaultCategory Category
}
