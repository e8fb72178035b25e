package pubmed

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
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
	defaultLimit = 40
	// efetch accepts a few hundred ids per request
	fetchBatchSize = 200
)

// Fetcher implements providers.Provider for PubMed: esearch for ids, then one batch efetch.
type Fetcher struct {
	BaseURL string
	APIKey  string
	Email   string
	Tool    string
	Days    int
	Client  *http.Client
	Logger  *zap.Logger
}

// NewFetcher creates a PubMed fetcher.
func NewFetcher(cfg *config.Config, client *http.Client, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		BaseURL: strings.TrimRight(cfg.PubMedBaseURL, "/"),
		APIKey:  cfg.PubMedAPIKey,
		Email:   cfg.PubMedEmail,
		Tool:    cfg.PubMedTool,
		Days:    cfg.PubMedDays,
		Client:  client,
		Logger:  logger,
	}
}

// Name returns the provider name.
func (f *Fetcher) Name() string {
	return string(models.SourcePubMed)
}

// Fetch searches every query of src within the window and returns at most the effective limit of records.
// Ids missing from the detail answer are skipped.
func (f *Fetcher) Fetch(ctx context.Context, src models.NewsSource, w providers.Window) ([]*models.Candidate, error) {
	limit := w.LimitFor(src, defaultLimit)
	days := f.windowDays(w)
	log := f.Logger.With(zap.String("source", src.Name), zap.Int("days", days), zap.Int("limit", limit))

	var ids []string
	seen := make(map[string]bool)
	for _, term := range w.QueriesFor(src) {
		if len(ids) >= limit {
			break
		}
		found, err := f.searchIDs(ctx, term, days, limit-len(ids))
		if err != nil {
			return nil, fmt.Errorf("pubmed esearch %q: %w", term, err)
		}
		for _, id := range found {
			if !seen[id] && len(ids) < limit {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	log.Info("PubMed ESearch finished", zap.Int("ids", len(ids)))
	if len(ids) == 0 {
		return nil, nil
	}

	details := make(map[string]*PubmedArticle, len(ids))
	for start := 0; start < len(ids); start += fetchBatchSize {
		end := start + fetchBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		if err := f.fetchDetails(ctx, ids[start:end], details); err != nil {
			return nil, fmt.Errorf("pubmed efetch: %w", err)
		}
	}

	candidates := make([]*models.Candidate, 0, len(ids))
	for _, id := range ids {
		article, ok := details[id]
		if !ok {
			log.Debug("PMID missing from detail answer, skipping", zap.String("pmid", id))
			continue
		}
		candidates = append(candidates, mapArticle(src, article))
	}
	return candidates, nil
}

func (f *Fetcher) windowDays(w providers.Window) int {
	if !w.Since.IsZero() {
		if days := int(time.Since(w.Since).Hours()/24) + 1; days > 0 {
			return days
		}
	}
	if f.Days > 0 {
		return f.Days
	}
	return 30
}

// searchIDs runs one esearch restricted to the last days of publication dates.
func (f *Fetcher) searchIDs(ctx context.Context, term string, days, retmax int) ([]string, error) {
	params := f.baseParams()
	params.Set("db", "pubmed")
	params.Set("term", term)
	params.Set("retmode", "json")
	params.Set("retmax", strconv.Itoa(retmax))
	params.Set("sort", "pub_date")
	params.Set("datetype", "pdat")
	params.Set("reldate", strconv.Itoa(days))

	body, err := f.get(ctx, "esearch.fcgi", params)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var resp ESearchResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode esearch answer: %w", err)
	}
	return resp.ESearchResult.IdList, nil
}

// fetchDetails loads records for ids in one request and adds them to out keyed by PMID.
func (f *Fetcher) fetchDetails(ctx context.Context, ids []string, out map[string]*PubmedArticle) error {
	params := f.baseParams()
	params.Set("db", "pubmed")
	params.Set("id", strings.Join(ids, ","))
	params.Set("retmode", "xml")

	body, err := f.get(ctx, "efetch.fcgi", params)
	if err != nil {
		return err
	}
	defer body.Close()

	var set PubmedArticleSet
	if err := xml.NewDecoder(body).Decode(&set); err != nil {
		return fmt.Errorf("decode efetch answer: %w", err)
	}
	for i := range set.PubmedArticle {
		article := &set.PubmedArticle[i]
		if pmid := strings.TrimSpace(article.MedlineCitation.PMID); pmid != "" {
			out[pmid] = article
		}
	}
	return nil
}

func (f *Fetcher) baseParams() url.Values {
	params := url.Values{}
	if f.APIKey != "" {
		params.Set("api_key", f.APIKey)
	}
	if f.Email != "" {
		params.Set("email", f.Email)
	}
	if f.Tool != "" {
		params.Set("tool", f.Tool)
	}
	return params
}

func (f *Fetcher) get(ctx context.Context, endpoint string, params url.Values) (io.ReadCloser, error) {
	reqURL := fmt.Sprintf("%s/%s?%s", f.BaseURL, endpoint, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		f.Logger.Warn("E-utilities returned non-200 status",
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(snippet)))
		return nil, fmt.Errorf("%s failed: status %d", endpoint, resp.StatusCode)
	}
	return resp.Body, nil
}

// mapArticle turns an efetch record into a candidate. The abstract serves as snippet.
func mapArticle(src models.NewsSource, article *PubmedArticle) *models.Candidate {
	citation := article.MedlineCitation
	pmid := strings.TrimSpace(citation.PMID)

	c := providers.NewCandidate(src, string(citation.Article.Title), fmt.Sprintf("https://pubmed.ncbi.nlm.nih.gov/%s/", pmid))
	c.AllowedDomain = "nih.gov"
	c.Venue = strings.TrimSpace(citation.Article.Journal.Title)

	parts := make([]string, 0, len(citation.Article.Abstract.Text)+1)
	for _, p := range citation.Article.Abstract.Text {
		if s := strings.TrimSpace(string(p)); s != "" {
			parts = append(parts, s)
		}
	}
	c.Snippet = strings.Join(parts, " ")
	if c.Snippet == "" && c.Venue != "" {
		c.Snippet = "Published in " + c.Venue + "."
	}

	if len(citation.Article.ArticleDate) > 0 {
		d := citation.Article.ArticleDate[0]
		c.PublishedAt = parseDate(d.Year, d.Month, d.Day)
	}
	if c.PublishedAt == nil {
		pd := citation.Article.Journal.PubDate
		if pd.Year != "" {
			c.PublishedAt = parseDate(pd.Year, pd.Month, pd.Day)
		} else if fields := strings.Fields(pd.MedlineDate); len(fields) > 0 {
			// e.g. "2024 Jan-Feb"
			month := ""
			if len(fields) > 1 {
				month = strings.SplitN(fields[1], "-", 2)[0]
			}
			c.PublishedAt = parseDate(fields[0], month, "")
		}
	}
	return c
}

// parseDate accepts numeric or abbreviated English months and defaults missing parts to 1.
func parseDate(year, month, day string) *time.Time {
	y, err := strconv.Atoi(strings.TrimSpace(year))
	if err != nil {
		return nil
	}
	m := time.January
	if month != "" {
		if n, err := strconv.Atoi(month); err == nil && n >= 1 && n <= 12 {
			m = time.Month(n)
		} else if t, err := time.Parse("Jan", month); err == nil {
			m = t.Month()
		}
	}
	d := 1
	if n, err := strconv.Atoi(day); err == nil && n >= 1 && n <= 31 {
		d = n
	}
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}
