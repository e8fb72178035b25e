package europepmc

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

	"crc-news/config"
	"crc-news/models"
	"crc-news/providers"
)

const (
	defaultLimit = 25
	maxPageSize  = 100
)

// Fetcher implements providers.Provider for the Europe PMC search API.
type Fetcher struct {
	BaseURL string
	Client  *http.Client
	Logger  *zap.Logger
}

// NewFetcher creates a Europe PMC fetcher.
func NewFetcher(cfg *config.Config, client *http.Client, logger *zap.Logger) *Fetcher {
	return &Fetcher{BaseURL: cfg.EuropePMCBaseURL, Client: client, Logger: logger}
}

// Name returns the provider name.
func (f *Fetcher) Name() string {
	return string(models.SourceEuropePMC)
}

// Fetch runs each query restricted to the publication window, newest first.
func (f *Fetcher) Fetch(ctx context.Context, src models.NewsSource, w providers.Window) ([]*models.Candidate, error) {
	limit := w.LimitFor(src, defaultLimit)
	since := w.Since
	if since.IsZero() {
		since = time.Now().AddDate(0, -6, 0)
	}

	var out []*models.Candidate
	seen := make(map[string]bool)
	for _, term := range w.QueriesFor(src) {
		if len(out) >= limit {
			break
		}
		articles, err := f.search(ctx, term, since, limit-len(out))
		if err != nil {
			return nil, fmt.Errorf("europepmc search %q: %w", term, err)
		}
		for i := range articles {
			c := mapArticle(src, &articles[i])
			if c == nil || seen[c.Link] {
				continue
			}
			seen[c.Link] = true
			out = append(out, c)
			if len(out) >= limit {
				break
			}
		}
	}
	f.Logger.Info("Europe PMC search finished", zap.String("source", src.Name), zap.Int("found", len(out)))
	return out, nil
}

func (f *Fetcher) search(ctx context.Context, term string, since time.Time, pageSize int) ([]Article, error) {
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	query := fmt.Sprintf("(%s) AND FIRST_PDATE:[%s TO %s]", term, since.Format("2006-01-02"), time.Now().Format("2006-01-02"))
	params := url.Values{}
	params.Set("query", query)
	params.Set("format", "json")
	params.Set("resultType", "core")
	params.Set("sort", "FIRST_PDATE desc")
	params.Set("pageSize", strconv.Itoa(pageSize))

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
		return nil, fmt.Errorf("search failed: status %d", resp.StatusCode)
	}

	var searchResponse SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResponse); err != nil {
		return nil, fmt.Errorf("decode search answer: %w", err)
	}
	return searchResponse.ResultList.Result, nil
}

// mapArticle converts a hit into a candidate linking to its Europe PMC page. Hits without an id are dropped.
func mapArticle(src models.NewsSource, article *Article) *models.Candidate {
	var link string
	switch {
	case article.PMID != "":
		link = fmt.Sprintf("https://europepmc.org/article/MED/%s", article.PMID)
	case article.Source != "" && article.ID != "":
		link = fmt.Sprintf("https://europepmc.org/article/%s/%s", article.Source, article.ID)
	default:
		return nil
	}

	c := providers.NewCandidate(src, strings.TrimSpace(article.Title), link)
	c.AllowedDomain = "europepmc.org"
	c.Venue = strings.TrimSpace(article.JournalTitle)
	c.Snippet = article.AbstractText
	if c.Snippet == "" && c.Venue != "" {
		c.Snippet = "Published in " + c.Venue + "."
	}
	c.PublishedAt = parseEuroDate(article.FirstPublicationDate)
	for _, pubType := range article.PubTypeList.PubType {
		if strings.EqualFold(pubType, "preprint") {
			c.Snippet = "Preprint. " + c.Snippet
			break
		}
	}
	return c
}
