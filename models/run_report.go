package models

import (
	"time"
)

// Skip reasons recorded in RunReport.Skipped.
const (
	SkipIrrelevant    = "irrelevant"
	SkipOffDomain     = "off_domain"
	SkipDuplicate     = "duplicate"
	SkipInvalidURL    = "invalid_url"
	SkipBudget        = "budget_exhausted"
	SkipSinkFailure   = "sink_failure"
	SkipMissingFields = "missing_fields"
)

// RunReport is the outcome of one ingestion run.
type RunReport struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DurationMS int64     `json:"duration_ms"`
	Stage      string    `json:"stage"`

	Months   int      `json:"months"`
	Limit    int      `json:"limit"`
	Fast     bool     `json:"fast"`
	Category Category `json:"category,omitempty"`
	Query    string   `json:"q,omitempty"`

	SourcesProcessed int      `json:"sources_processed"`
	SourcesFailed    int      `json:"sources_failed"`
	SourceErrors     []string `json:"source_errors,omitempty"`

	Fetched          int            `json:"fetched"`
	Accepted         int            `json:"accepted"`
	InsertedOrMerged int            `json:"inserted_or_merged"`
	Inserted         int            `json:"inserted"`
	Merged           int            `json:"merged"`
	Skipped          map[string]int `json:"skipped"`

	BudgetExhausted bool `json:"budget_exhausted"`
}

// Skip increments the counter for reason.
func (r *RunReport) Skip(reason string) {
	if r.Skipped == nil {
		r.Skipped = make(map[string]int)
	}
	r.Skipped[reason]++
}
