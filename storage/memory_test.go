package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"crc-news/models"
)

func item(key, title string, published time.Time) models.NewsItem {
	return models.NewsItem{
		Title:       title,
		URL:         key,
		URLKey:      key,
		Category:    models.CategoryClinicalResearch,
		PublishedAt: &published,
		Status:      models.StatusApproved,
	}
}

func TestMemoryUpsertMergesAndPreservesIdentity(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	res, err := store.Upsert(ctx, []models.NewsItem{item("https://a.org/1", "First", day)})
	if err != nil || res.Inserted != 1 || res.Merged != 0 {
		t.Fatalf("first upsert = %+v, %v", res, err)
	}
	original, _ := store.Get("https://a.org/1")
	if original.ID == "" {
		t.Fatal("id not assigned")
	}

	// an editor hides the item; re-ingestion must not undo that
	store.SetStatus("https://a.org/1", models.StatusHidden)

	updated := item("https://a.org/1", "First (updated)", day)
	updated.RelevanceScore = 9
	res, err = store.Upsert(ctx, []models.NewsItem{updated})
	if err != nil || res.Inserted != 0 || res.Merged != 1 {
		t.Fatalf("second upsert = %+v, %v", res, err)
	}

	got, _ := store.Get("https://a.org/1")
	if got.ID != original.ID || !got.CreatedAt.Equal(original.CreatedAt) {
		t.Errorf("identity changed: %+v -> %+v", original, got)
	}
	if got.Status != models.StatusHidden {
		t.Errorf("Status = %q, want hidden to survive merge", got.Status)
	}
	if got.Title != "First (updated)" || got.RelevanceScore != 9 {
		t.Errorf("mutable fields not merged: %+v", got)
	}
	if store.Len() != 1 {
		t.Errorf("Len = %d", store.Len())
	}
}

func TestMemoryUpsertIsolatesFailures(t *testing.T) {
	store := NewMemoryStore()
	store.FailOn = func(it models.NewsItem) error {
		if it.URLKey == "https://a.org/bad" {
			return errors.New("constraint violation")
		}
		return nil
	}
	day := time.Now()
	res, err := store.Upsert(context.Background(), []models.NewsItem{
		item("https://a.org/1", "one", day),
		item("https://a.org/bad", "bad", day),
		item("", "no key", day),
		item("https://a.org/2", "two", day),
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if res.Inserted != 2 || res.Failed != 2 || len(res.Errors) != 2 {
		t.Fatalf("result = %+v", res)
	}
	var writeErr *SinkWriteError
	if !errors.As(res.Errors[0], &writeErr) {
		t.Errorf("errors should be SinkWriteError, got %T", res.Errors[0])
	}
	if _, ok := store.Get("https://a.org/2"); !ok {
		t.Error("item after the failure was not written")
	}
}

func TestMemoryUpsertDuplicateKeysInBatch(t *testing.T) {
	store := NewMemoryStore()
	day := time.Now()
	res, _ := store.Upsert(context.Background(), []models.NewsItem{
		item("https://a.org/1", "old title", day),
		item("https://a.org/1", "new title", day),
	})
	if res.Inserted != 1 {
		t.Fatalf("result = %+v", res)
	}
	got, _ := store.Get("https://a.org/1")
	if got.Title != "new title" {
		t.Errorf("Title = %q, last write should win", got.Title)
	}
}

func TestMemoryList(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	policy := item("https://a.org/policy", "USPSTF lowers screening age", base.AddDate(0, 2, 0))
	policy.Category = models.CategoryScreeningPolicy
	pending := item("https://a.org/pending", "Colonoscopy study", base.AddDate(0, 3, 0))
	pending.Status = models.StatusPending
	undated := item("https://a.org/undated", "Colonoscopy prep tips", base)
	undated.PublishedAt = nil

	store.Upsert(ctx, []models.NewsItem{
		item("https://a.org/old", "Colonoscopy history", base),
		item("https://a.org/new", "New colonoscopy device", base.AddDate(0, 1, 0)),
		policy, pending, undated,
	})

	got, err := store.List(ctx, ListQuery{Status: models.StatusApproved, Query: "COLONOSCOPY"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"https://a.org/new", "https://a.org/old", "https://a.org/undated"}
	if len(got) != len(want) {
		t.Fatalf("got %d items, want %d", len(got), len(want))
	}
	for i, key := range want {
		if got[i].URLKey != key {
			t.Errorf("position %d = %s, want %s", i, got[i].URLKey, key)
		}
	}

	got, _ = store.List(ctx, ListQuery{Category: models.CategoryScreeningPolicy})
	if len(got) != 1 || got[0].URLKey != "https://a.org/policy" {
		t.Errorf("category filter = %+v", got)
	}

	got, _ = store.List(ctx, ListQuery{Limit: 2})
	if len(got) != 2 || got[0].URLKey != "https://a.org/pending" {
		t.Errorf("limit/order = %+v", got)
	}
}

func TestReportKey(t *testing.T) {
	r := &models.RunReport{RunID: "abc", StartedAt: time.Date(2024, 7, 4, 23, 0, 0, 0, time.UTC)}
	if got := ReportKey(r); got != "reports/2024/07/04/abc.json" {
		t.Errorf("ReportKey = %q", got)
	}
}

func TestMemoryInsertNewLeavesExistingRows(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	kept := item("https://a.org/1", "Approved", day)
	kept.RelevanceScore = 8
	kept.Summary = "Kept summary."
	if _, err := store.Upsert(ctx, []models.NewsItem{kept}); err != nil {
		t.Fatal(err)
	}

	rejected := item("https://a.org/1", "Rejected copy", day)
	rejected.Status = models.StatusRejected
	res, err := store.InsertNew(ctx, []models.NewsItem{rejected, item("https://a.org/2", "Second", day)})
	if err != nil {
		t.Fatal(err)
	}
	if res.Inserted != 1 || res.Unchanged != 1 || res.Merged != 0 {
		t.Errorf("result = %+v", res)
	}
	got, _ := store.Get("https://a.org/1")
	if got.Title != "Approved" || got.RelevanceScore != 8 || got.Summary != "Kept summary." || got.Status != models.StatusApproved {
		t.Errorf("existing row changed: %+v", got)
	}
	if _, ok := store.Get("https://a.org/2"); !ok {
		t.Error("new key not inserted")
	}
}

func TestEscapeLike(t *testing.T) {
	tests := map[string]string{
		"polyps":    "polyps",
		"100%":      `100\%`,
		"a_b":       `a\_b`,
		`back\each`: `back\\each`,
	}
	for in, want := range tests {
		if got := escapeLike(in); got != want {
			t.Errorf("escapeLike(%q) = %q, want %q", in, got, want)
		}
	}
	if got := ilikePattern("5*_"); got != `5_\_` {
		t.Errorf("ilikePattern = %q", got)
	}
}
