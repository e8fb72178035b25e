package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"crc-news/models"
)

// MemoryStore keeps items in process. It backs dry runs and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]models.NewsItem
	// FailOn, when set, makes Upsert fail for items it returns an error for.
	FailOn func(models.NewsItem) error
	now    func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]models.NewsItem), now: time.Now}
}

// Upsert stores items, preserving identity fields of existing keys.
func (s *MemoryStore) Upsert(_ context.Context, items []models.NewsItem) (UpsertResult, error) {
	unique, errs := dedupeKeys(items)
	result := UpsertResult{Failed: len(errs), Errors: errs}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := make(map[string]existingRow)
	for _, key := range keysOf(unique) {
		if row, ok := s.items[key]; ok {
			existing[key] = existingRow{ID: row.ID, URLKey: key, Status: string(row.Status), CreatedAt: row.CreatedAt}
		}
	}
	prepared, merged := prepare(unique, existing, s.now())
	for i, item := range prepared {
		if s.FailOn != nil {
			if err := s.FailOn(item); err != nil {
				result.Failed++
				result.Errors = append(result.Errors, &SinkWriteError{URLKey: item.URLKey, Err: err})
				continue
			}
		}
		s.items[item.URLKey] = item
		if merged[i] {
			result.Merged++
		} else {
			result.Inserted++
		}
	}
	return result, nil
}

// InsertNew stores items whose key is not present yet.
func (s *MemoryStore) InsertNew(_ context.Context, items []models.NewsItem) (UpsertResult, error) {
	unique, errs := dedupeKeys(items)
	result := UpsertResult{Failed: len(errs), Errors: errs}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := make(map[string]existingRow)
	for _, key := range keysOf(unique) {
		if row, ok := s.items[key]; ok {
			existing[key] = existingRow{ID: row.ID, URLKey: key}
		}
	}
	fresh, _ := prepare(newOnly(unique, existing, &result), nil, s.now())
	for _, item := range fresh {
		if s.FailOn != nil {
			if err := s.FailOn(item); err != nil {
				result.Failed++
				result.Errors = append(result.Errors, &SinkWriteError{URLKey: item.URLKey, Err: err})
				continue
			}
		}
		s.items[item.URLKey] = item
		result.Inserted++
	}
	return result, nil
}

// List filters and orders the stored items.
func (s *MemoryStore) List(_ context.Context, q ListQuery) ([]models.NewsItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(q.Query))
	var out []models.NewsItem
	for _, item := range s.items {
		if q.Status != "" && item.Status != q.Status {
			continue
		}
		if q.Category != "" && item.Category != q.Category {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(item.Title), needle) {
			continue
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].PublishedAt, out[j].PublishedAt
		switch {
		case a == nil && b == nil:
			return out[i].URLKey < out[j].URLKey
		case a == nil:
			return false
		case b == nil:
			return true
		case a.Equal(*b):
			return out[i].URLKey < out[j].URLKey
		default:
			return a.After(*b)
		}
	})
	if limit := clampLimit(q.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Get returns the item stored under key.
func (s *MemoryStore) Get(key string) (models.NewsItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[key]
	return item, ok
}

// Len returns the number of stored items.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// SetStatus changes the moderation status of a stored item.
func (s *MemoryStore) SetStatus(key string, status models.Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[key]
	if !ok {
		return false
	}
	item.Status = status
	s.items[key] = item
	return true
}
