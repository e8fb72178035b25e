package rss

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"crc-news/models"
	"crc-news/providers"
)

const rssFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Trusted Health</title>
  <link>https://www.trusted.org/</link>
  <item>
    <title>Old colon cancer story</title>
    <link>https://www.trusted.org/old</link>
    <pubDate>Mon, 01 Jan 2024 10:00:00 GMT</pubDate>
  </item>
  <item>
    <title>New screening guidance</title>
    <link>/news/screening</link>
    <description>&lt;p&gt;Colorectal cancer screening now starts at 45.&lt;/p&gt;</description>
    <pubDate>Wed, 10 Jul 2024 10:00:00 GMT</pubDate>
  </item>
  <item>
    <title>Syndicated elsewhere</title>
    <link>https://aggregator.example.com/trusted/123</link>
    <pubDate>Thu, 11 Jul 2024 10:00:00 GMT</pubDate>
  </item>
  <item>
    <title>Middle story</title>
    <link>https://blog.trusted.org/middle</link>
    <pubDate>Mon, 01 Apr 2024 10:00:00 GMT</pubDate>
  </item>
</channel>
</rss>`

const atomFeed = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Trusted Atom</title>
  <link href="https://trusted.org/"/>
  <updated>2024-07-01T00:00:00Z</updated>
  <entry>
    <title>Atom entry about colonoscopy</title>
    <link href="https://trusted.org/atom/1"/>
    <updated>2024-07-01T00:00:00Z</updated>
    <summary>Colonoscopy remains the reference test.</summary>
  </entry>
</feed>`

func serve(body string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, body)
	}))
}

func newFetcher(client *http.Client, max int) *Fetcher {
	return &Fetcher{MaxItems: max, Client: client, Logger: zap.NewNop()}
}

func TestFetchCapsAndFiltersDomain(t *testing.T) {
	srv := serve(rssFeed)
	defer srv.Close()

	src := models.NewsSource{Name: "Trusted", Type: models.SourceRSS, URL: srv.URL, Domain: "trusted.org", Category: models.CategoryAwareness, Kind: models.KindNews}
	got, err := newFetcher(srv.Client(), 2).Fetch(context.Background(), src, providers.Window{})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2 most recent on-domain", len(got))
	}
	if got[0].Link != "https://www.trusted.org/news/screening" {
		t.Errorf("relative link not resolved or wrong order: %q", got[0].Link)
	}
	if got[1].Link != "https://blog.trusted.org/middle" {
		t.Errorf("second = %q", got[1].Link)
	}
	if got[0].DefaultCategory != models.CategoryAwareness || got[0].AllowedDomain != "trusted.org" {
		t.Errorf("source fields not propagated: %+v", got[0])
	}
	if got[0].Snippet == "" {
		t.Error("description should become the snippet")
	}
}

func TestFetchHonoursWindow(t *testing.T) {
	srv := serve(rssFeed)
	defer srv.Close()

	src := models.NewsSource{Name: "Trusted", Type: models.SourceRSS, URL: srv.URL, Domain: "trusted.org"}
	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	got, err := newFetcher(srv.Client(), 0).Fetch(context.Background(), src, providers.Window{Since: since})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	for _, c := range got {
		if c.PublishedAt.Before(since) {
			t.Errorf("entry %q older than window", c.Title)
		}
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
}

func TestFetchParsesAtom(t *testing.T) {
	srv := serve(atomFeed)
	defer srv.Close()

	src := models.NewsSource{Name: "Atom", Type: models.SourceRSS, URL: srv.URL, Domain: "trusted.org"}
	got, err := newFetcher(srv.Client(), 20).Fetch(context.Background(), src, providers.Window{})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 1 || got[0].Link != "https://trusted.org/atom/1" || got[0].PublishedAt == nil {
		t.Fatalf("unexpected atom result: %+v", got)
	}
}

func TestFetchRequiresDomain(t *testing.T) {
	f := newFetcher(http.DefaultClient, 20)
	if _, err := f.Fetch(context.Background(), models.NewsSource{Name: "x", URL: "https://x.org/feed"}, providers.Window{}); err == nil {
		t.Fatal("expected error for feed without domain")
	}
}

func TestFetchBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	src := models.NewsSource{Name: "Gone", URL: srv.URL, Domain: "trusted.org"}
	if _, err := newFetcher(srv.Client(), 20).Fetch(context.Background(), src, providers.Window{}); err == nil {
		t.Fatal("expected error on 404")
	}
}

func TestFetchConcurrentFeeds(t *testing.T) {
	rssSrv := serve(rssFeed)
	defer rssSrv.Close()
	atomSrv := serve(atomFeed)
	defer atomSrv.Close()

	// one fetcher serves every feed source of a run, from several goroutines
	f := newFetcher(rssSrv.Client(), 20)
	var wg sync.WaitGroup
	counts := make([]int, 8)
	errs := make([]error, 8)
	for i := range counts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			url := rssSrv.URL
			if i%2 == 1 {
				url = atomSrv.URL
			}
			got, err := f.Fetch(context.Background(), models.NewsSource{Name: "feed", URL: url, Domain: "trusted.org"}, providers.Window{})
			counts[i], errs[i] = len(got), err
		}(i)
	}
	wg.Wait()

	for i := range counts {
		want := 3
		if i%2 == 1 {
			want = 1
		}
		if errs[i] != nil || counts[i] != want {
			t.Errorf("fetch %d: got %d entries (err %v), want %d", i, counts[i], errs[i], want)
		}
	}
}
