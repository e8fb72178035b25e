package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"go.uber.org/zap"
)

const maxPageBytes = 2 << 20

// Resolution is the result of canonicalizing one link.
type Resolution struct {
	FinalURL     string
	CanonicalURL string
	PageText     string
	// Fetched is false when the landing page could not be loaded and the link was used as is.
	Fetched bool
}

// Canonicalizer resolves a link to its canonical form on an allowed domain.
type Canonicalizer interface {
	Resolve(ctx context.Context, link, allowedRoot string) (Resolution, error)
}

// userAgentTransport sets the User-Agent on every outgoing request.
type userAgentTransport struct {
	agent     string
	transport http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.agent)
	return t.transport.RoundTrip(req)
}

// NewHTTPClient returns a client that identifies itself with userAgent.
func NewHTTPClient(userAgent string, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &userAgentTransport{
			agent:     userAgent,
			transport: http.DefaultTransport,
		},
	}
}

// allowedFor returns the domain a link must stay on.
func allowedFor(link, allowedRoot string) string {
	if allowedRoot != "" {
		return strings.ToLower(allowedRoot)
	}
	return RootDomain(Hostname(link))
}

// LinkCanonicalizer treats the link itself as canonical. It only enforces the domain allow-list.
type LinkCanonicalizer struct{}

// Resolve checks the link's domain and returns it unchanged.
func (LinkCanonicalizer) Resolve(_ context.Context, link, allowedRoot string) (Resolution, error) {
	if _, err := URLKey(link); err != nil {
		return Resolution{}, err
	}
	allowed := allowedFor(link, allowedRoot)
	if !OnDomain(Hostname(link), allowed) {
		return Resolution{}, &DomainMismatchError{URL: link, Allowed: allowed}
	}
	return Resolution{FinalURL: link, CanonicalURL: link}, nil
}

// HTTPCanonicalizer follows redirects, reads rel=canonical / og:url and extracts the article text.
type HTTPCanonicalizer struct {
	Client *http.Client
	Logger *zap.Logger
}

// NewHTTPCanonicalizer creates a canonicalizer using client.
func NewHTTPCanonicalizer(client *http.Client, logger *zap.Logger) *HTTPCanonicalizer {
	return &HTTPCanonicalizer{Client: client, Logger: logger}
}

// Resolve loads the landing page. A link or redirect target outside the allowed domain is a
// DomainMismatchError. An unreachable page falls back to the link itself.
func (c *HTTPCanonicalizer) Resolve(ctx context.Context, link, allowedRoot string) (Resolution, error) {
	if _, err := URLKey(link); err != nil {
		return Resolution{}, err
	}
	allowed := allowedFor(link, allowedRoot)
	if !OnDomain(Hostname(link), allowed) {
		return Resolution{}, &DomainMismatchError{URL: link, Allowed: allowed}
	}
	log := c.Logger.With(zap.String("url", link))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return Resolution{}, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.Client.Do(req)
	if err != nil {
		log.Warn("Landing page unreachable, keeping original link", zap.Error(err))
		return Resolution{FinalURL: link, CanonicalURL: link}, nil
	}
	defer resp.Body.Close()

	final := resp.Request.URL
	if !OnDomain(strings.ToLower(final.Hostname()), allowed) {
		return Resolution{}, &DomainMismatchError{URL: final.String(), Allowed: allowed}
	}
	res := Resolution{FinalURL: final.String(), CanonicalURL: final.String()}

	if resp.StatusCode != http.StatusOK {
		log.Warn("Landing page returned non-200 status", zap.Int("status", resp.StatusCode))
		return res, nil
	}
	if ct := strings.ToLower(resp.Header.Get("Content-Type")); ct != "" && !strings.Contains(ct, "html") {
		res.Fetched = true
		return res, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		log.Warn("Reading landing page failed", zap.Error(err))
		return res, nil
	}
	res.Fetched = true

	if canonical := canonicalFromHTML(body, final, allowed); canonical != "" {
		res.CanonicalURL = canonical
	}
	if article, err := readability.FromReader(bytes.NewReader(body), final); err == nil {
		res.PageText = CleanText(article.TextContent)
	} else {
		log.Debug("Readability extraction failed", zap.Error(err))
	}
	return res, nil
}

// canonicalFromHTML returns the rel=canonical link, else og:url, resolved against base.
// Candidates off the allowed domain are ignored.
func canonicalFromHTML(body []byte, base *url.URL, allowed string) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	candidates := []string{
		doc.Find(`link[rel~="canonical"]`).First().AttrOr("href", ""),
		doc.Find(`meta[property="og:url"]`).First().AttrOr("content", ""),
	}
	for _, raw := range candidates {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		ref, err := url.Parse(raw)
		if err != nil {
			continue
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			continue
		}
		if !OnDomain(strings.ToLower(abs.Hostname()), allowed) {
			continue
		}
		return abs.String()
	}
	return ""
}
