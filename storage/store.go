package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"crc-news/models"
)

// Columns rewritten when an existing url_key is ingested again. id, status and created_at are kept.
var mergeColumns = []string{
	"title", "url", "source_name", "source_domain", "category",
	"published_at", "summary", "venue", "topic_tags", "relevance_score", "hash", "updated_at",
}

// SinkWriteError is a failed write of one item.
type SinkWriteError struct {
	URLKey string
	Err    error
}

func (e *SinkWriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.URLKey, e.Err)
}

func (e *SinkWriteError) Unwrap() error { return e.Err }

// UpsertResult reports the outcome of a batch upsert.
type UpsertResult struct {
	Inserted int
	Merged   int
	// Unchanged counts items InsertNew left alone because their key already exists.
	Unchanged int
	Failed    int
	Errors    []error
}

// Written is the number of rows inserted or merged.
func (r UpsertResult) Written() int {
	return r.Inserted + r.Merged
}

// ListQuery filters the listing endpoint.
type ListQuery struct {
	Category models.Category
	Query    string
	Status   models.Status
	Limit    int
}

// Store persists news items keyed by url_key. It never deletes.
type Store interface {
	// Upsert inserts new keys and merges mutable fields into existing ones.
	// A failing item is reported in the result and does not stop the others.
	Upsert(ctx context.Context, items []models.NewsItem) (UpsertResult, error)
	// InsertNew writes only items whose url_key is not stored yet. Existing rows are left untouched.
	InsertNew(ctx context.Context, items []models.NewsItem) (UpsertResult, error)
	// List returns matching items ordered by published_at, newest first.
	List(ctx context.Context, q ListQuery) ([]models.NewsItem, error)
}

// existingRow holds the fields a merge must preserve.
type existingRow struct {
	ID        string    `json:"id"`
	URLKey    string    `json:"url_key"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// ErrEmptyKey rejects items that cannot be keyed.
var ErrEmptyKey = errors.New("empty url_key")

// prepare assigns identity fields: existing rows keep id, status and created_at, new rows get fresh ones.
// It returns the prepared items and which of them are merges.
func prepare(items []models.NewsItem, existing map[string]existingRow, now time.Time) ([]models.NewsItem, []bool) {
	out := make([]models.NewsItem, len(items))
	merged := make([]bool, len(items))
	for i, item := range items {
		if row, ok := existing[item.URLKey]; ok {
			item.ID = row.ID
			item.Status = models.Status(row.Status)
			item.CreatedAt = row.CreatedAt
			merged[i] = true
		} else {
			if item.ID == "" {
				item.ID = uuid.NewString()
			}
			if item.Status == "" {
				item.Status = models.StatusPending
			}
			item.CreatedAt = now
		}
		if item.TopicTags == nil {
			item.TopicTags = []string{}
		}
		item.UpdatedAt = now
		out[i] = item
	}
	return out, merged
}

// dedupeKeys keeps the last item per url_key and drops unkeyed items into failures.
func dedupeKeys(items []models.NewsItem) ([]models.NewsItem, []error) {
	index := make(map[string]int, len(items))
	out := make([]models.NewsItem, 0, len(items))
	var errs []error
	for _, item := range items {
		if item.URLKey == "" {
			errs = append(errs, &SinkWriteError{URLKey: item.URL, Err: ErrEmptyKey})
			continue
		}
		if i, ok := index[item.URLKey]; ok {
			out[i] = item
			continue
		}
		index[item.URLKey] = len(out)
		out = append(out, item)
	}
	return out, errs
}

// newOnly drops items whose key is in existing and counts them as unchanged.
func newOnly(items []models.NewsItem, existing map[string]existingRow, result *UpsertResult) []models.NewsItem {
	out := make([]models.NewsItem, 0, len(items))
	for _, item := range items {
		if _, ok := existing[item.URLKey]; ok {
			result.Unchanged++
			continue
		}
		out = append(out, item)
	}
	return out
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// escapeLike makes s match literally inside a LIKE pattern using the default backslash escape.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func keysOf(items []models.NewsItem) []string {
	keys := make([]string, len(items))
	for i, item := range items {
		keys[i] = item.URLKey
	}
	return keys
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 20
	case limit > 100:
		return 100
	}
	return limit
}
