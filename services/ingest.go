package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"crc-news/config"
	"crc-news/models"
	"crc-news/providers"
	"crc-news/storage"
)

// Stage is the position of a run in the pipeline.
type Stage string

const (
	StageIdle           Stage = "idle"
	StageFetching       Stage = "fetching"
	StageFiltering      Stage = "filtering"
	StageCanonicalizing Stage = "canonicalizing"
	StageSummarizing    Stage = "summarizing"
	StageUpserting      Stage = "upserting"
	StageDone           Stage = "done"
)

const (
	maxMonths = 24
	maxLimit  = 500
	// upsertGrace lets already processed items be written after the budget ran out
	upsertGrace    = 10 * time.Second
	archiveTimeout = 15 * time.Second
)

// RunOptions are the per-run parameters of an ingestion.
type RunOptions struct {
	Months   int
	Limit    int
	Fast     bool
	Category models.Category
	Query    string
}

// Normalize clamps the options and fills defaults from cfg.
func (o RunOptions) Normalize(cfg *config.Config) RunOptions {
	if o.Months <= 0 {
		o.Months = cfg.DefaultMonths
	}
	if o.Months <= 0 {
		o.Months = 6
	}
	if o.Months > maxMonths {
		o.Months = maxMonths
	}
	if o.Limit <= 0 {
		o.Limit = cfg.DefaultLimit
	}
	if o.Limit <= 0 {
		o.Limit = 100
	}
	if o.Limit > maxLimit {
		o.Limit = maxLimit
	}
	o.Query = strings.TrimSpace(o.Query)
	return o
}

// ErrRunInProgress is returned when a run is requested while another one is active.
var ErrRunInProgress = errors.New("ingestion run already in progress")

// ReportArchiver stores finished run reports.
type ReportArchiver interface {
	Archive(ctx context.Context, report *models.RunReport) (string, error)
}

// IngestService orchestrates fetch, filter, canonicalize, summarize and upsert for one run.
type IngestService struct {
	Config        *config.Config
	Store         storage.Store
	Logger        *zap.Logger
	Providers     map[models.SourceType]providers.Provider
	Sources       []models.NewsSource
	Relevance     *RelevanceFilter
	Canonicalizer Canonicalizer
	Summarizer    *Summarizer
	Archive       ReportArchiver

	running atomic.Bool
}

// NewIngestService wires the orchestrator. Relevance, Summarizer and Canonicalizer default to
// their deterministic variants when nil.
func NewIngestService(cfg *config.Config, store storage.Store, logger *zap.Logger, sources []models.NewsSource, provs []providers.Provider) *IngestService {
	byType := make(map[models.SourceType]providers.Provider, len(provs))
	for _, p := range provs {
		byType[models.SourceType(p.Name())] = p
	}
	return &IngestService{
		Config:        cfg,
		Store:         store,
		Logger:        logger,
		Providers:     byType,
		Sources:       sources,
		Relevance:     NewRelevanceFilter(nil, logger),
		Canonicalizer: LinkCanonicalizer{},
		Summarizer:    NewSummarizer(nil, logger),
	}
}

// work carries one candidate through the stages.
type work struct {
	cand       *models.Candidate
	doc        Document
	decision   Decision
	resolution Resolution
	key        string
	summary    string
}

// Run executes one ingestion. Per-source and per-item failures are counted in the report;
// only a configuration problem returns an error.
func (s *IngestService) Run(ctx context.Context, opts RunOptions) (*models.RunReport, error) {
	if s.Store == nil {
		return nil, fmt.Errorf("%w: no datastore configured", config.ErrConfiguration)
	}
	if s.Config == nil {
		return nil, fmt.Errorf("%w: missing configuration", config.ErrConfiguration)
	}
	if !s.anyEnabledSource() {
		return nil, fmt.Errorf("%w: no enabled sources", config.ErrConfiguration)
	}
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer s.running.Store(false)
	opts = opts.Normalize(s.Config)

	start := time.Now()
	report := &models.RunReport{
		RunID:     uuid.NewString(),
		StartedAt: start.UTC(),
		Stage:     string(StageIdle),
		Months:    opts.Months,
		Limit:     opts.Limit,
		Fast:      opts.Fast,
		Category:  opts.Category,
		Query:     opts.Query,
		Skipped:   make(map[string]int),
	}
	log := s.Logger.With(zap.String("run_id", report.RunID))
	log.Info("Starting ingestion run",
		zap.Int("months", opts.Months),
		zap.Int("limit", opts.Limit),
		zap.Bool("fast", opts.Fast),
		zap.String("category", string(opts.Category)),
		zap.String("q", opts.Query))

	runCtx, cancel := context.WithTimeout(ctx, s.Config.RunBudget)
	defer cancel()
	useLLM := !opts.Fast

	s.setStage(report, log, StageFetching)
	window := providers.Window{
		Since:  start.AddDate(0, -opts.Months, 0),
		Months: opts.Months,
		Limit:  opts.Limit,
	}
	if opts.Query != "" {
		window.Queries = []string{opts.Query}
	}
	candidates := s.fetchAll(runCtx, log, s.selectSources(opts), window, report)
	report.Fetched = len(candidates)

	s.setStage(report, log, StageFiltering)
	accepted, rejected := s.filter(runCtx, candidates, useLLM, start, report)
	report.Accepted = len(accepted)

	s.setStage(report, log, StageCanonicalizing)
	resolved := s.canonicalize(runCtx, log, accepted, report)

	s.setStage(report, log, StageSummarizing)
	for _, w := range resolved {
		if runCtx.Err() != nil {
			// out of budget: the remaining items fall back to the extract
			w.summary = Excerpt(summaryInput(w))
			continue
		}
		w.summary = s.Summarizer.Summarize(runCtx, summaryInput(w), useLLM)
	}
	if runCtx.Err() != nil && ctx.Err() == nil {
		report.BudgetExhausted = true
	}

	s.setStage(report, log, StageUpserting)
	items := make([]models.NewsItem, 0, len(resolved))
	for _, w := range resolved {
		items = append(items, s.buildItem(w, start))
	}
	if len(items) > 0 || len(rejected) > 0 {
		upCtx, upCancel := context.WithTimeout(context.WithoutCancel(ctx), upsertGrace)
		if len(items) > 0 {
			result, err := s.Store.Upsert(upCtx, items)
			if err != nil {
				log.Error("Upsert failed", zap.Error(err))
			}
			s.countWrites(report, log, result)
		}
		// rejected items are insert-only
		if len(rejected) > 0 {
			result, err := s.Store.InsertNew(upCtx, rejected)
			if err != nil {
				log.Error("Storing rejected items failed", zap.Error(err))
			}
			s.countWrites(report, log, result)
		}
		upCancel()
	}

	s.setStage(report, log, StageDone)
	report.FinishedAt = time.Now().UTC()
	report.DurationMS = time.Since(start).Milliseconds()
	runDurationHistogram.Observe(time.Since(start).Seconds())
	log.Info("Ingestion run finished",
		zap.Int("sources_processed", report.SourcesProcessed),
		zap.Int("sources_failed", report.SourcesFailed),
		zap.Int("fetched", report.Fetched),
		zap.Int("accepted", report.Accepted),
		zap.Int("inserted_or_merged", report.InsertedOrMerged),
		zap.Any("skipped", report.Skipped),
		zap.Bool("budget_exhausted", report.BudgetExhausted))

	if s.Archive != nil {
		archCtx, archCancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
		if link, err := s.Archive.Archive(archCtx, report); err != nil {
			log.Warn("Archiving run report failed", zap.Error(err))
		} else {
			log.Info("Run report archived", zap.String("location", link))
		}
		archCancel()
	}
	return report, nil
}

func (s *IngestService) countWrites(report *models.RunReport, log *zap.Logger, result storage.UpsertResult) {
	for _, e := range result.Errors {
		log.Warn("Item write failed", zap.Error(e))
	}
	report.Inserted += result.Inserted
	report.Merged += result.Merged
	report.InsertedOrMerged += result.Written()
	for i := 0; i < result.Failed; i++ {
		s.skip(report, models.SkipSinkFailure)
	}
	itemsUpsertedCounter.Add(float64(result.Written()))
}

func (s *IngestService) setStage(report *models.RunReport, log *zap.Logger, stage Stage) {
	report.Stage = string(stage)
	log.Debug("Stage", zap.String("stage", string(stage)))
}

func (s *IngestService) skip(report *models.RunReport, reason string) {
	report.Skip(reason)
	itemsSkippedCounter.WithLabelValues(reason).Inc()
}

func (s *IngestService) anyEnabledSource() bool {
	for _, src := range s.Sources {
		if src.Enabled {
			return true
		}
	}
	return false
}

// selectSources returns the enabled sources matching the run's category and fast flag
// that have a registered provider.
func (s *IngestService) selectSources(opts RunOptions) []models.NewsSource {
	var out []models.NewsSource
	for _, src := range s.Sources {
		if !src.Enabled {
			continue
		}
		if opts.Fast && !src.Fast {
			continue
		}
		if opts.Category != "" && src.Category != opts.Category {
			continue
		}
		if _, ok := s.Providers[src.Type]; !ok {
			s.Logger.Debug("No provider registered for source, skipping", zap.String("source", src.Name), zap.String("type", string(src.Type)))
			continue
		}
		out = append(out, src)
	}
	return out
}

// fetchAll queries sources with bounded concurrency. Results keep source order.
func (s *IngestService) fetchAll(ctx context.Context, log *zap.Logger, sources []models.NewsSource, w providers.Window, report *models.RunReport) []*models.Candidate {
	results := make([][]*models.Candidate, len(sources))
	errs := make([]error, len(sources))

	limit := s.Config.FetchConcurrency
	if limit < 1 {
		limit = 1
	}
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, limit)

	for i, src := range sources {
		if ctx.Err() != nil {
			errs[i] = &SourceFetchError{Source: src.Name, Err: ctx.Err()}
			continue
		}
		wg.Add(1)
		semaphore <- struct{}{}

		go func(i int, src models.NewsSource) {
			defer wg.Done()
			defer func() { <-semaphore }()

			srcCtx := ctx
			if s.Config.SourceTimeout > 0 {
				var cancel context.CancelFunc
				srcCtx, cancel = context.WithTimeout(ctx, s.Config.SourceTimeout)
				defer cancel()
			}
			started := time.Now()
			cands, err := s.Providers[src.Type].Fetch(srcCtx, src, w)
			if err != nil {
				errs[i] = &SourceFetchError{Source: src.Name, Err: err}
				return
			}
			results[i] = cands
			log.Info("Source fetched",
				zap.String("source", src.Name),
				zap.Int("candidates", len(cands)),
				zap.Duration("duration", time.Since(started)))
		}(i, src)
	}
	wg.Wait()

	var all []*models.Candidate
	for i, src := range sources {
		if errs[i] != nil {
			if errors.Is(errs[i], context.DeadlineExceeded) && ctx.Err() != nil {
				report.BudgetExhausted = true
			}
			report.SourcesFailed++
			report.SourceErrors = append(report.SourceErrors, errs[i].Error())
			sourceFailuresCounter.WithLabelValues(src.Name).Inc()
			log.Warn("Source failed", zap.String("source", src.Name), zap.Error(errs[i]))
			continue
		}
		report.SourcesProcessed++
		all = append(all, results[i]...)
	}
	return all
}

// filter drops malformed and duplicate candidates and applies the relevance decision.
// Rejected candidates become items only when PERSIST_REJECTED is set.
func (s *IngestService) filter(ctx context.Context, candidates []*models.Candidate, useLLM bool, ingested time.Time, report *models.RunReport) ([]*work, []models.NewsItem) {
	seen := make(map[string]bool)
	var accepted []*work
	var rejected []models.NewsItem
	for i, cand := range candidates {
		if ctx.Err() != nil {
			for range candidates[i:] {
				s.skip(report, models.SkipBudget)
			}
			report.BudgetExhausted = report.BudgetExhausted || errors.Is(ctx.Err(), context.DeadlineExceeded)
			break
		}
		cand.Title = CleanText(cand.Title)
		if cand.Title == "" || cand.Link == "" {
			s.skip(report, models.SkipMissingFields)
			continue
		}
		key, err := URLKey(cand.Link)
		if err != nil {
			s.skip(report, models.SkipInvalidURL)
			continue
		}
		if seen[key] {
			s.skip(report, models.SkipDuplicate)
			continue
		}
		seen[key] = true

		doc := Document{Title: cand.Title, Text: CleanText(cand.Snippet)}
		decision := s.Relevance.Evaluate(ctx, doc, useLLM)
		if !decision.Accepted {
			s.skip(report, models.SkipIrrelevant)
			if s.Config.PersistRejected {
				rejected = append(rejected, s.rejectedItem(cand, key, decision, ingested))
			}
			continue
		}
		accepted = append(accepted, &work{cand: cand, doc: doc, decision: decision})
	}
	return accepted, rejected
}

// canonicalize resolves each accepted link and drops off-domain and duplicate results.
// Journal records link to stable identifiers and are not fetched.
func (s *IngestService) canonicalize(ctx context.Context, log *zap.Logger, accepted []*work, report *models.RunReport) []*work {
	seen := make(map[string]bool)
	out := make([]*work, 0, len(accepted))
	for i, w := range accepted {
		if ctx.Err() != nil {
			for range accepted[i:] {
				s.skip(report, models.SkipBudget)
			}
			report.BudgetExhausted = report.BudgetExhausted || errors.Is(ctx.Err(), context.DeadlineExceeded)
			break
		}
		canon := s.Canonicalizer
		if w.cand.SourceKind == models.KindJournal || canon == nil {
			canon = LinkCanonicalizer{}
		}
		res, err := canon.Resolve(ctx, w.cand.Link, w.cand.AllowedDomain)
		if err != nil {
			var mismatch *DomainMismatchError
			if errors.As(err, &mismatch) {
				log.Info("Dropping off-domain link", zap.String("url", mismatch.URL), zap.String("allowed", mismatch.Allowed))
				s.skip(report, models.SkipOffDomain)
			} else {
				log.Info("Dropping unresolvable link", zap.String("url", w.cand.Link), zap.Error(err))
				s.skip(report, models.SkipInvalidURL)
			}
			continue
		}
		key, err := URLKey(res.CanonicalURL)
		if err != nil {
			s.skip(report, models.SkipInvalidURL)
			continue
		}
		if seen[key] {
			s.skip(report, models.SkipDuplicate)
			continue
		}
		seen[key] = true
		w.resolution = res
		w.key = key
		out = append(out, w)
	}
	return out
}

func summaryInput(w *work) SummaryInput {
	return SummaryInput{
		Title:      w.cand.Title,
		Snippet:    w.cand.Snippet,
		PageText:   w.resolution.PageText,
		SourceName: w.cand.SourceName,
		Suggested:  w.decision.Summary,
	}
}

// itemCategory prefers a category signalled by the text over the source default.
func itemCategory(decision Decision, cand *models.Candidate) models.Category {
	if decision.Category != models.CategoryClinicalResearch || !cand.DefaultCategory.Valid() {
		return decision.Category
	}
	return cand.DefaultCategory
}

// publishedOr falls back to the ingestion time for undated candidates.
func publishedOr(published *time.Time, ingested time.Time) *time.Time {
	if published != nil && !published.IsZero() {
		return published
	}
	t := ingested.UTC()
	return &t
}

func (s *IngestService) buildItem(w *work, ingested time.Time) models.NewsItem {
	status := models.StatusPending
	if w.decision.Deterministic && s.Config.AutoApprove {
		status = models.StatusApproved
	}
	return models.NewsItem{
		Title:          w.cand.Title,
		URL:            w.resolution.CanonicalURL,
		URLKey:         w.key,
		SourceName:     w.cand.SourceName,
		SourceDomain:   RootDomain(Hostname(w.resolution.CanonicalURL)),
		Category:       itemCategory(w.decision, w.cand),
		PublishedAt:    publishedOr(w.cand.PublishedAt, ingested),
		Summary:        w.summary,
		Venue:          w.cand.Venue,
		TopicTags:      w.decision.Tags,
		RelevanceScore: w.decision.Score,
		Status:         status,
		Hash:           ContentHash(w.cand.Title, w.resolution.FinalURL),
	}
}

func (s *IngestService) rejectedItem(cand *models.Candidate, key string, decision Decision, ingested time.Time) models.NewsItem {
	return models.NewsItem{
		Title:          cand.Title,
		URL:            cand.Link,
		URLKey:         key,
		SourceName:     cand.SourceName,
		SourceDomain:   RootDomain(Hostname(cand.Link)),
		Category:       itemCategory(decision, cand),
		PublishedAt:    publishedOr(cand.PublishedAt, ingested),
		Summary:        FallbackExcerpt(cand.SourceName),
		Venue:          cand.Venue,
		TopicTags:      []string{},
		RelevanceScore: 0,
		Status:         models.StatusRejected,
		Hash:           ContentHash(cand.Title, cand.Link),
	}
}
