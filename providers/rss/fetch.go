// Package rss reads RSS 2.0 and Atom feeds of allow-listed sites.
package rss

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"crc-news/config"
	"crc-news/models"
	"crc-news/providers"
)

const maxFeedBytes = 5 << 20

// Fetcher implements providers.Provider for syndication feeds.
type Fetcher struct {
	MaxItems int
	Client   *http.Client
	Logger   *zap.Logger
}

// NewFetcher creates a feed fetcher capped at FEED_MAX_ITEMS entries per feed.
func NewFetcher(cfg *config.Config, client *http.Client, logger *zap.Logger) *Fetcher {
	return &Fetcher{MaxItems: cfg.FeedMaxItems, Client: client, Logger: logger}
}

// Name returns the provider name.
func (f *Fetcher) Name() string {
	return string(models.SourceRSS)
}

// Fetch downloads the feed of src and returns its most recent entries whose links stay on src.Domain.
// Entries older than the window are dropped; entries without a date are kept.
func (f *Fetcher) Fetch(ctx context.Context, src models.NewsSource, w providers.Window) ([]*models.Candidate, error) {
	if src.Domain == "" {
		return nil, fmt.Errorf("feed %s has no allow-listed domain", src.Name)
	}
	data, err := f.download(ctx, src.URL)
	if err != nil {
		return nil, err
	}
	// gofeed.Parser keeps per-parse state, so each fetch gets its own
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	base, _ := url.Parse(cmpOr(feed.Link, src.URL))
	entries := make([]*models.Candidate, 0, len(feed.Items))
	offDomain := 0
	for _, item := range feed.Items {
		link := resolveLink(base, strings.TrimSpace(item.Link))
		if link == "" {
			continue
		}
		u, err := url.Parse(link)
		if err != nil || !onDomain(strings.ToLower(u.Hostname()), src.Domain) {
			offDomain++
			continue
		}

		c := providers.NewCandidate(src, strings.TrimSpace(item.Title), link)
		c.Snippet = cmpOr(item.Description, item.Content)
		c.PublishedAt = cmpOr(item.PublishedParsed, item.UpdatedParsed)
		if c.PublishedAt != nil && !w.Since.IsZero() && c.PublishedAt.Before(w.Since) {
			continue
		}
		entries = append(entries, c)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return newer(entries[i].PublishedAt, entries[j].PublishedAt)
	})
	limit := f.MaxItems
	if src.MaxItems > 0 && (limit <= 0 || src.MaxItems < limit) {
		limit = src.MaxItems
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	f.Logger.Info("Feed parsed",
		zap.String("source", src.Name),
		zap.Int("items", len(feed.Items)),
		zap.Int("kept", len(entries)),
		zap.Int("off_domain", offDomain))
	return entries, nil
}

func (f *Fetcher) download(ctx context.Context, feedURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed request failed: status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
}

// newer orders dated entries before undated ones, newest first.
func newer(a, b *time.Time) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	default:
		return a.After(*b)
	}
}

func resolveLink(base *url.URL, raw string) string {
	if raw == "" {
		return ""
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}
	return ref.String()
}

func onDomain(host, root string) bool {
	return host == root || strings.HasSuffix(host, "."+root)
}
