package googlecse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"go.uber.org/zap"

	"crc-news/models"
	"crc-news/providers"
)

// pagedServer answers every query with full pages of distinct links.
func pagedServer(t *testing.T, starts *[]int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("dateRestrict") != "m3" || q.Get("key") != "k" || q.Get("cx") != "cx" {
			t.Errorf("unexpected params: %s", r.URL.RawQuery)
		}
		start, _ := strconv.Atoi(q.Get("start"))
		*starts = append(*starts, start)
		var resp SearchResponse
		for i := 0; i < pageSize; i++ {
			n := start + i
			item := Item{
				Title:       fmt.Sprintf("Result %d", n),
				Link:        fmt.Sprintf("https://www.news%d.com/a/%s/%d", n%2, q.Get("q"), n),
				Snippet:     "colorectal",
				DisplayLink: fmt.Sprintf("www.news%d.com", n%2),
			}
			if n == 1 {
				item.Pagemap.Metatags = []map[string]string{{"article:published_time": "2024-06-01T08:00:00Z"}}
			}
			resp.Items = append(resp.Items, item)
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestFetchPaginatesUpToLimit(t *testing.T) {
	var starts []int
	srv := pagedServer(t, &starts)
	defer srv.Close()

	f := &Fetcher{BaseURL: srv.URL, Key: "k", CX: "cx", PageDelay: time.Millisecond, Client: srv.Client(), Logger: zap.NewNop()}
	src := models.NewsSource{Name: "Web", Type: models.SourceCSE, Queries: []string{"crc", "colon"}}

	got, err := f.Fetch(context.Background(), src, providers.Window{Months: 3, Limit: 25})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 25 {
		t.Fatalf("got %d, want cap of 25", len(got))
	}
	if len(starts) != 3 || starts[0] != 1 || starts[1] != 11 || starts[2] != 21 {
		t.Errorf("page starts = %v", starts)
	}
	if got[0].SourceName != "news1.com" {
		t.Errorf("SourceName = %q", got[0].SourceName)
	}
	if got[0].PublishedAt == nil || got[0].PublishedAt.Month() != time.June {
		t.Errorf("PublishedAt = %v", got[0].PublishedAt)
	}
}

func TestFetchAppliesAllowList(t *testing.T) {
	var starts []int
	srv := pagedServer(t, &starts)
	defer srv.Close()

	f := &Fetcher{BaseURL: srv.URL, Key: "k", CX: "cx", AllowedDomains: []string{"news0.com"}, Client: srv.Client(), Logger: zap.NewNop()}
	src := models.NewsSource{Name: "Web", Type: models.SourceCSE, MaxItems: 5, Queries: []string{"crc"}}

	got, err := f.Fetch(context.Background(), src, providers.Window{Months: 3})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("got %d, want 5", len(got))
	}
	for _, c := range got {
		if c.AllowedDomain != "news0.com" {
			t.Errorf("candidate %s has AllowedDomain %q", c.Link, c.AllowedDomain)
		}
	}
}

func TestFetchWithoutCredentials(t *testing.T) {
	f := &Fetcher{Logger: zap.NewNop()}
	if _, err := f.Fetch(context.Background(), models.NewsSource{Queries: []string{"x"}}, providers.Window{}); err == nil {
		t.Fatal("expected error without credentials")
	}
}
