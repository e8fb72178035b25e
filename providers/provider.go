package providers

import (
	"context"
	"time"

	"crc-news/models"
)

// Window bounds what a provider returns for one run.
type Window struct {
	// Since is the oldest publication time of interest.
	Since time.Time
	// Months is the same window expressed in whole months, for APIs that take it directly.
	Months int
	// Limit caps the number of candidates; 0 means the provider's default.
	Limit int
	// Queries replaces the source's configured queries when non-empty.
	Queries []string
}

// Provider is implemented by every candidate fetcher (RSS, PubMed, Europe PMC, keyword search).
type Provider interface {
	// Fetch returns the candidates of one configured source, at most Window.Limit of them.
	Fetch(ctx context.Context, src models.NewsSource, w Window) ([]*models.Candidate, error)

	// Name returns the unique provider name, matching models.SourceType.
	Name() string
}

// QueriesFor returns the override queries if set, else the source's own.
func (w Window) QueriesFor(src models.NewsSource) []string {
	if len(w.Queries) > 0 {
		return w.Queries
	}
	return src.Queries
}

// LimitFor resolves the effective cap from the window, the source and a fallback.
func (w Window) LimitFor(src models.NewsSource, fallback int) int {
	limit := fallback
	if src.MaxItems > 0 {
		limit = src.MaxItems
	}
	if w.Limit > 0 && w.Limit < limit {
		limit = w.Limit
	}
	return limit
}

// NewCandidate fills the source-derived fields of a candidate.
func NewCandidate(src models.NewsSource, title, link string) *models.Candidate {
	return &models.Candidate{
		Title:           title,
		Link:            link,
		SourceName:      src.Name,
		SourceType:      src.Type,
		SourceKind:      src.Kind,
		AllowedDomain:   src.Domain,
		DefaultCategory: src.Category,
	}
}
