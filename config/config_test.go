package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"crc-news/models"
)

func TestValidateRequiresStoreCredentials(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "supabase without key", cfg: Config{StoreBackend: BackendSupabase, SupabaseURL: "https://x.supabase.co", RunBudget: 1}, wantErr: true},
		{name: "supabase complete", cfg: Config{StoreBackend: BackendSupabase, SupabaseURL: "https://x.supabase.co", SupabaseServiceKey: "k", RunBudget: 1}},
		{name: "postgres without host", cfg: Config{StoreBackend: BackendPostgres, DBUser: "u", DBName: "n", RunBudget: 1}, wantErr: true},
		{name: "memory", cfg: Config{StoreBackend: BackendMemory, RunBudget: 1}},
		{name: "unknown backend", cfg: Config{StoreBackend: "mongo", RunBudget: 1}, wantErr: true},
		{name: "zero budget", cfg: Config{StoreBackend: BackendMemory}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrConfiguration) {
					t.Fatalf("Validate() = %v, want ErrConfiguration", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestCSEAllowedDomains(t *testing.T) {
	cfg := Config{GoogleCSEAllowedDomains: " Cancer.gov, ,nih.gov"}
	got := cfg.CSEAllowedDomains()
	if len(got) != 2 || got[0] != "cancer.gov" || got[1] != "nih.gov" {
		t.Fatalf("CSEAllowedDomains() = %v", got)
	}
}

func TestLoadSourcesEmbeddedDefault(t *testing.T) {
	sources, err := LoadSources("")
	if err != nil {
		t.Fatalf("LoadSources: %v", err)
	}
	if len(sources) == 0 {
		t.Fatal("expected embedded sources")
	}
	for _, s := range sources {
		if !s.Enabled {
			t.Errorf("source %s should default to enabled", s.Name)
		}
		if s.Type == models.SourceRSS && s.Domain == "" {
			t.Errorf("feed source %s has no domain", s.Name)
		}
	}
}

func TestParseSourcesDefaults(t *testing.T) {
	data := []byte(`
sources:
  - name: Example Feed
    type: rss
    url: https://www.example.org/feed
    domain: WWW.Example.org
  - name: Disabled Search
    type: pubmed
    enabled: false
    queries: [colon cancer]
`)
	sources, err := ParseSources(data)
	if err != nil {
		t.Fatalf("ParseSources: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("got %d sources", len(sources))
	}
	feed := sources[0]
	if feed.Domain != "example.org" {
		t.Errorf("Domain = %q, want example.org", feed.Domain)
	}
	if feed.Category != models.CategoryClinicalResearch || feed.Kind != models.KindNews || !feed.Enabled {
		t.Errorf("unexpected defaults: %+v", feed)
	}
	search := sources[1]
	if search.Enabled {
		t.Error("explicit enabled: false was ignored")
	}
	if search.Kind != models.KindJournal {
		t.Errorf("Kind = %q, want journal", search.Kind)
	}
}

func TestParseSourcesRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"feed without domain": `
sources:
  - name: a
    type: rss
    url: https://a.org/feed`,
		"search without query": `
sources:
  - name: a
    type: cse`,
		"unknown category": `
sources:
  - name: a
    type: pubmed
    category: Sports
    queries: [x]`,
		"duplicate name": `
sources:
  - {name: a, type: pubmed, queries: [x]}
  - {name: a, type: pubmed, queries: [y]}`,
		"unknown type": `
sources:
  - {name: a, type: sitemap}`,
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseSources([]byte(data)); !errors.Is(err, ErrConfiguration) {
				t.Fatalf("ParseSources() = %v, want ErrConfiguration", err)
			}
		})
	}
}

func TestLoadSourcesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	data := "sources:\n  - {name: b, type: cse, queries: [colorectal]}\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	sources, err := LoadSources(path)
	if err != nil {
		t.Fatalf("LoadSources: %v", err)
	}
	if len(sources) != 1 || sources[0].Type != models.SourceCSE {
		t.Fatalf("unexpected sources: %+v", sources)
	}

	if _, err := LoadSources(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("missing file error = %v", err)
	}
}
