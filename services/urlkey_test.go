package services

import (
	"errors"
	"testing"
)

func TestURLKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://Example.com/Article/?utm_source=x", "https://example.com/article"},
		{"https://example.com/article", "https://example.com/article"},
		{"http://example.com/article#comments", "https://example.com/article"},
		{"https://example.com:443/a/b/", "https://example.com/a/b"},
		{"http://example.com:8080/a", "https://example.com:8080/a"},
		{"https://example.com", "https://example.com"},
	}
	for _, tt := range tests {
		got, err := URLKey(tt.in)
		if err != nil {
			t.Errorf("URLKey(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("URLKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestURLKeyRejects(t *testing.T) {
	for _, in := range []string{"", "mailto:a@b.org", "ftp://example.com/x", "https:///nohost", "://broken"} {
		if _, err := URLKey(in); !errors.Is(err, ErrInvalidURL) {
			t.Errorf("URLKey(%q) err = %v, want ErrInvalidURL", in, err)
		}
	}
}

func TestContentHashIsStable(t *testing.T) {
	a := ContentHash("Title", "https://example.com/a")
	if a != ContentHash("Title", "https://example.com/a") {
		t.Fatal("hash not deterministic")
	}
	if len(a) != 64 {
		t.Errorf("len = %d, want 64 hex chars", len(a))
	}
	if a == ContentHash("Title", "https://example.com/b") {
		t.Error("different URLs share a hash")
	}
}

func TestRootDomainAndOnDomain(t *testing.T) {
	roots := map[string]string{
		"news.example.co.uk": "example.co.uk",
		"www.cancer.org":     "cancer.org",
		"WWW.Cancer.Org.":    "cancer.org",
		"127.0.0.1":          "127.0.0.1",
		"localhost":          "localhost",
	}
	for host, want := range roots {
		if got := RootDomain(host); got != want {
			t.Errorf("RootDomain(%q) = %q, want %q", host, got, want)
		}
	}

	if !OnDomain("blog.cancer.org", "cancer.org") || !OnDomain("cancer.org", "cancer.org") {
		t.Error("subdomain and exact host should be on domain")
	}
	if OnDomain("notcancer.org", "cancer.org") || OnDomain("", "cancer.org") {
		t.Error("suffix without a dot must not match")
	}
}
