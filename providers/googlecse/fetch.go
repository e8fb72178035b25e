// Package googlecse runs keyword searches against the Google Custom Search JSON API.
package googlecse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"crc-news/config"
	"crc-news/models"
	"crc-news/providers"
)

const (
	pageSize = 10
	// the API never serves results past position 100
	maxStart     = 91
	defaultLimit = 50
)

// SearchResponse is the subset of the API answer we read.
type SearchResponse struct {
	Items []Item `json:"items"`
}

// Item is one search hit.
type Item struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Snippet     string `json:"snippet"`
	DisplayLink string `json:"displayLink"`
	Pagemap     struct {
		Metatags []map[string]string `json:"metatags"`
	} `json:"pagemap"`
}

// Fetcher implements providers.Provider for keyword search.
type Fetcher struct {
	BaseURL        string
	Key            string
	CX             string
	PageDelay      time.Duration
	AllowedDomains []string
	Client         *http.Client
	Logger         *zap.Logger
}

// NewFetcher creates a keyword-search fetcher.
func NewFetcher(cfg *config.Config, client *http.Client, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		BaseURL:        cfg.GoogleCSEBaseURL,
		Key:            cfg.GoogleCSEKey,
		CX:             cfg.GoogleCSECX,
		PageDelay:      cfg.GoogleCSEPageDelay,
		AllowedDomains: cfg.CSEAllowedDomains(),
		Client:         client,
		Logger:         logger,
	}
}

// Name returns the provider name.
func (f *Fetcher) Name() string {
	return string(models.SourceCSE)
}

// Fetch pages through every query, newest first, restricted to the last Window.Months months.
// Pages are spaced by PageDelay and the total across queries never exceeds the limit.
func (f *Fetcher) Fetch(ctx context.Context, src models.NewsSource, w providers.Window) ([]*models.Candidate, error) {
	if f.Key == "" || f.CX == "" {
		return nil, fmt.Errorf("keyword search credentials missing")
	}
	limit := w.LimitFor(src, defaultLimit)
	months := w.Months
	if months <= 0 {
		months = 6
	}

	var limiter *rate.Limiter
	if f.PageDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(f.PageDelay), 1)
	}

	var out []*models.Candidate
	seen := make(map[string]bool)
	for _, q := range w.QueriesFor(src) {
		for start := 1; start <= maxStart && len(out) < limit; start += pageSize {
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					return out, err
				}
			}
			items, err := f.page(ctx, q, months, start)
			if err != nil {
				if len(out) > 0 {
					// keep what earlier pages returned
					f.Logger.Warn("Search page failed, returning partial results", zap.String("query", q), zap.Int("start", start), zap.Error(err))
					return out, nil
				}
				return nil, fmt.Errorf("search %q: %w", q, err)
			}
			for _, item := range items {
				c := f.toCandidate(src, item)
				if c == nil || seen[c.Link] {
					continue
				}
				seen[c.Link] = true
				out = append(out, c)
				if len(out) >= limit {
					break
				}
			}
			if len(items) < pageSize {
				break
			}
		}
		if len(out) >= limit {
			break
		}
	}
	f.Logger.Info("Keyword search finished", zap.String("source", src.Name), zap.Int("found", len(out)), zap.Int("limit", limit))
	return out, nil
}

func (f *Fetcher) page(ctx context.Context, query string, months, start int) ([]Item, error) {
	params := url.Values{}
	params.Set("key", f.Key)
	params.Set("cx", f.CX)
	params.Set("q", query)
	params.Set("num", strconv.Itoa(pageSize))
	params.Set("start", strconv.Itoa(start))
	params.Set("dateRestrict", fmt.Sprintf("m%d", months))
	params.Set("sort", "date")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search request failed: status %d", resp.StatusCode)
	}
	var sr SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode search answer: %w", err)
	}
	return sr.Items, nil
}

// toCandidate maps a hit. With an allow-list configured, hits from other domains are dropped.
func (f *Fetcher) toCandidate(src models.NewsSource, item Item) *models.Candidate {
	u, err := url.Parse(item.Link)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil
	}
	host := strings.ToLower(u.Hostname())
	allowed := ""
	if len(f.AllowedDomains) > 0 {
		for _, d := range f.AllowedDomains {
			if host == d || strings.HasSuffix(host, "."+d) {
				allowed = d
				break
			}
		}
		if allowed == "" {
			return nil
		}
	}

	c := providers.NewCandidate(src, strings.TrimSpace(item.Title), item.Link)
	c.SourceName = strings.TrimPrefix(strings.ToLower(item.DisplayLink), "www.")
	if c.SourceName == "" {
		c.SourceName = strings.TrimPrefix(host, "www.")
	}
	c.AllowedDomain = allowed
	c.Snippet = item.Snippet
	c.PublishedAt = publishedFromMeta(item.Pagemap.Metatags)
	return c
}

func publishedFromMeta(tags []map[string]string) *time.Time {
	keys := []string{"article:published_time", "og:published_time", "datepublished", "date", "dc.date"}
	for _, m := range tags {
		for _, k := range keys {
			v := strings.TrimSpace(m[k])
			if v == "" {
				continue
			}
			for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05Z0700", "2006-01-02"} {
				if t, err := time.Parse(layout, v); err == nil {
					return &t
				}
			}
		}
	}
	return nil
}
