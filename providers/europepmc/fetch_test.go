package europepmc

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"crc-news/models"
	"crc-news/providers"
)

func TestFetchMapsHitsWithinWindow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("query")
		if !strings.Contains(q, "FIRST_PDATE:[") || !strings.HasPrefix(q, "(colorectal)") {
			t.Errorf("query = %q", q)
		}
		if r.URL.Query().Get("pageSize") != "2" {
			t.Errorf("pageSize = %q, want the window limit", r.URL.Query().Get("pageSize"))
		}
		fmt.Fprint(w, `{"hitCount":3,"resultList":{"result":[
			{"id":"1","source":"MED","pmid":"1","title":"Colonoscopy quality ","journalTitle":"Endoscopy","firstPublicationDate":"2024-05-01"},
			{"id":"PPR9","source":"PPR","title":"Blood test for CRC","abstractText":"A cfDNA assay.","firstPublicationDate":"2024-04","pubTypeList":{"pubType":["Preprint"]}},
			{"title":"no id"}
		]}}`)
	}))
	defer srv.Close()

	f := &Fetcher{BaseURL: srv.URL, Client: srv.Client(), Logger: zap.NewNop()}
	src := models.NewsSource{Name: "Europe PMC", Type: models.SourceEuropePMC, Kind: models.KindJournal, Queries: []string{"colorectal"}}

	got, err := f.Fetch(context.Background(), src, providers.Window{Since: time.Now().AddDate(0, -3, 0), Limit: 2})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2", len(got))
	}
	if got[0].Link != "https://europepmc.org/article/MED/1" || got[0].Title != "Colonoscopy quality" {
		t.Errorf("first = %+v", got[0])
	}
	if got[0].Venue != "Endoscopy" {
		t.Errorf("Venue = %q", got[0].Venue)
	}
	if got[0].Snippet != "Published in Endoscopy." {
		t.Errorf("venue snippet = %q", got[0].Snippet)
	}
	if got[1].Link != "https://europepmc.org/article/PPR/PPR9" || !strings.HasPrefix(got[1].Snippet, "Preprint.") {
		t.Errorf("second = %+v", got[1])
	}
	if got[1].PublishedAt == nil || got[1].PublishedAt.Month() != time.April {
		t.Errorf("PublishedAt = %v", got[1].PublishedAt)
	}
}
