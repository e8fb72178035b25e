package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

const landingPage = `<!doctype html>
<html><head>
<title>Screening news</title>
<link rel="canonical" href="/articles/screening-at-45">
<meta property="og:url" content="https://elsewhere.example.com/copy">
</head><body>
<article>
<h1>Screening at 45</h1>
<p>Colorectal cancer screening now starts at age 45 for adults at average risk, according to new recommendations published this week.</p>
<p>Doctors say stool-based tests and colonoscopy are both acceptable options for most patients who are due for screening.</p>
<p>Insurers are expected to cover the earlier screening without cost sharing under existing rules.</p>
</article>
</body></html>`

func newCanonicalizer() *HTTPCanonicalizer {
	return NewHTTPCanonicalizer(NewHTTPClient("crc-news-test", 5*time.Second), zap.NewNop())
}

func TestHTTPCanonicalizerFollowsRedirectAndCanonical(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/r/123", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/articles/screening-at-45?utm_source=rss", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/articles/screening-at-45", func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != "crc-news-test" {
			t.Errorf("User-Agent = %q", ua)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, landingPage)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	res, err := newCanonicalizer().Resolve(context.Background(), srv.URL+"/r/123", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.FinalURL != srv.URL+"/articles/screening-at-45?utm_source=rss" {
		t.Errorf("FinalURL = %q", res.FinalURL)
	}
	// og:url is off-domain and must lose to rel=canonical
	if res.CanonicalURL != srv.URL+"/articles/screening-at-45" {
		t.Errorf("CanonicalURL = %q", res.CanonicalURL)
	}
	if !res.Fetched || !strings.Contains(res.PageText, "stool-based tests") {
		t.Errorf("page text not extracted: %+v", res)
	}
}

func TestHTTPCanonicalizerRejectsOffDomain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html></html>")
	}))
	defer srv.Close()

	_, err := newCanonicalizer().Resolve(context.Background(), srv.URL+"/a", "trusted.org")
	var mismatch *DomainMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("err = %v, want DomainMismatchError", err)
	}
	if mismatch.Allowed != "trusted.org" {
		t.Errorf("Allowed = %q", mismatch.Allowed)
	}
}

func TestHTTPCanonicalizerRejectsOffDomainRedirect(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html></html>")
	}))
	defer target.Close()
	// same listener, different host name: localhost is not on the 127.0.0.1 domain
	elsewhere := strings.Replace(target.URL, "127.0.0.1", "localhost", 1)

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, elsewhere+"/landing", http.StatusFound)
	}))
	defer origin.Close()

	_, err := newCanonicalizer().Resolve(context.Background(), origin.URL+"/go", "")
	var mismatch *DomainMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("err = %v, want DomainMismatchError", err)
	}
}

func TestHTTPCanonicalizerKeepsLinkWhenUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	link := srv.URL + "/gone"
	srv.Close()

	res, err := newCanonicalizer().Resolve(context.Background(), link, "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.CanonicalURL != link || res.Fetched {
		t.Errorf("res = %+v", res)
	}
}

func TestHTTPCanonicalizerNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	res, err := newCanonicalizer().Resolve(context.Background(), srv.URL+"/missing", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.CanonicalURL != srv.URL+"/missing" || res.Fetched {
		t.Errorf("res = %+v", res)
	}
}

func TestLinkCanonicalizer(t *testing.T) {
	res, err := LinkCanonicalizer{}.Resolve(context.Background(), "https://pubmed.ncbi.nlm.nih.gov/123/", "nih.gov")
	if err != nil || res.CanonicalURL != "https://pubmed.ncbi.nlm.nih.gov/123/" {
		t.Fatalf("res = %+v, err = %v", res, err)
	}

	_, err = LinkCanonicalizer{}.Resolve(context.Background(), "https://spam.example.com/x", "nih.gov")
	var mismatch *DomainMismatchError
	if !errors.As(err, &mismatch) {
		t.Errorf("err = %v, want DomainMismatchError", err)
	}

	if _, err := (LinkCanonicalizer{}).Resolve(context.Background(), "javascript:alert(1)", ""); !errors.Is(err, ErrInvalidURL) {
		t.Errorf("err = %v, want ErrInvalidURL", err)
	}
}
