package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"
	"go.uber.org/zap"

	"crc-news/models"
)

// SupabaseStore writes through the Supabase REST interface.
type SupabaseStore struct {
	client *supabase.Client
	table  string
	logger *zap.Logger
}

// NewSupabaseStore creates a REST-backed store for table.
func NewSupabaseStore(url, serviceKey, table string, logger *zap.Logger) (*SupabaseStore, error) {
	client, err := supabase.NewClient(url, serviceKey, nil)
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &SupabaseStore{client: client, table: table, logger: logger}, nil
}

// Upsert sends the batch with on_conflict=url_key. A rejected batch is retried item by item.
func (s *SupabaseStore) Upsert(ctx context.Context, items []models.NewsItem) (UpsertResult, error) {
	unique, errs := dedupeKeys(items)
	result := UpsertResult{Failed: len(errs), Errors: errs}
	if len(unique) == 0 {
		return result, nil
	}
	if err := ctx.Err(); err != nil {
		result.Failed += len(unique)
		return result, err
	}

	existing, err := s.existing(keysOf(unique))
	if err != nil {
		result.Failed += len(unique)
		return result, err
	}

	prepared, merged := prepare(unique, existing, time.Now().UTC())
	_, _, err = s.client.From(s.table).Upsert(prepared, "url_key", "minimal", "").Execute()
	if err == nil {
		countMerged(&result, merged)
		return result, nil
	}
	s.logger.Warn("Batch upsert rejected, retrying per item", zap.Int("items", len(prepared)), zap.Error(err))

	for i := range prepared {
		if ctx.Err() != nil {
			result.Failed += len(prepared) - i
			return result, ctx.Err()
		}
		if _, _, err := s.client.From(s.table).Upsert(prepared[i], "url_key", "minimal", "").Execute(); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, &SinkWriteError{URLKey: prepared[i].URLKey, Err: err})
			continue
		}
		if merged[i] {
			result.Merged++
		} else {
			result.Inserted++
		}
	}
	return result, nil
}

// InsertNew posts only the items whose key is not stored yet. Existing rows are left alone.
func (s *SupabaseStore) InsertNew(ctx context.Context, items []models.NewsItem) (UpsertResult, error) {
	unique, errs := dedupeKeys(items)
	result := UpsertResult{Failed: len(errs), Errors: errs}
	if len(unique) == 0 {
		return result, nil
	}
	if err := ctx.Err(); err != nil {
		result.Failed += len(unique)
		return result, err
	}
	existing, err := s.existing(keysOf(unique))
	if err != nil {
		result.Failed += len(unique)
		return result, err
	}
	fresh, _ := prepare(newOnly(unique, existing, &result), nil, time.Now().UTC())
	for i := range fresh {
		if ctx.Err() != nil {
			result.Failed += len(fresh) - i
			return result, ctx.Err()
		}
		if _, _, err := s.client.From(s.table).Insert(fresh[i], false, "", "minimal", "").Execute(); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, &SinkWriteError{URLKey: fresh[i].URLKey, Err: err})
			continue
		}
		result.Inserted++
	}
	return result, nil
}

func (s *SupabaseStore) existing(keys []string) (map[string]existingRow, error) {
	var rows []existingRow
	if _, err := s.client.From(s.table).
		Select("id,url_key,status,created_at", "", false).
		In("url_key", keys).
		ExecuteTo(&rows); err != nil {
		return nil, fmt.Errorf("look up existing keys: %w", err)
	}
	existing := make(map[string]existingRow, len(rows))
	for _, row := range rows {
		existing[row.URLKey] = row
	}
	return existing, nil
}

// List reads items newest first with optional category, status and title filters.
func (s *SupabaseStore) List(ctx context.Context, q ListQuery) ([]models.NewsItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query := s.client.From(s.table).Select("*", "", false)
	if q.Status != "" {
		query = query.Eq("status", string(q.Status))
	}
	if q.Category != "" {
		query = query.Eq("category", string(q.Category))
	}
	if q.Query != "" {
		query = query.Ilike("title", "*"+ilikePattern(q.Query)+"*")
	}

	var items []models.NewsItem
	if _, err := query.
		Order("published_at", &postgrest.OrderOpts{Ascending: false, NullsFirst: false}).
		Limit(clampLimit(q.Limit), "").
		ExecuteTo(&items); err != nil {
		return nil, fmt.Errorf("list news items: %w", err)
	}
	return items, nil
}

// ilikePattern escapes LIKE wildcards for a PostgREST ilike filter. PostgREST turns every * into %,
// so a literal * is matched with the single character wildcard instead.
func ilikePattern(s string) string {
	return strings.ReplaceAll(escapeLike(s), "*", "_")
}
