package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"crc-news/config"
	"crc-news/models"
	"crc-news/providers"
	"crc-news/providers/europepmc"
	"crc-news/providers/googlecse"
	"crc-news/providers/pubmed"
	"crc-news/providers/rss"
	"crc-news/storage"
)

// OpenStore connects the backend selected by STORE_BACKEND.
func OpenStore(cfg *config.Config, logger *zap.Logger) (storage.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendSupabase:
		return storage.NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseTable, logger)
	case config.BackendPostgres:
		return storage.OpenPostgres(cfg, logger)
	case config.BackendMemory:
		logger.Warn("Using in-memory store, items are lost on exit")
		return storage.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("%w: unknown STORE_BACKEND %q", config.ErrConfiguration, cfg.StoreBackend)
}

// Build wires a complete ingestion service from configuration: store, providers,
// optional OpenAI scoring, landing-page canonicalization and the optional report archive.
func Build(ctx context.Context, cfg *config.Config, sources []models.NewsSource, logger *zap.Logger) (*IngestService, error) {
	store, err := OpenStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	client := NewHTTPClient(cfg.UserAgent, cfg.SourceTimeout)
	provs := []providers.Provider{
		rss.NewFetcher(cfg, client, logger),
		pubmed.NewFetcher(cfg, client, logger),
		europepmc.NewFetcher(cfg, client, logger),
	}
	if cfg.CSEEnabled() {
		provs = append(provs, googlecse.NewFetcher(cfg, client, logger))
	} else {
		logger.Info("GOOGLE_CSE_KEY/GOOGLE_CSE_CX not set, keyword search sources are skipped")
	}

	svc := NewIngestService(cfg, store, logger, sources, provs)
	svc.Canonicalizer = NewHTTPCanonicalizer(client, logger)

	if cfg.LLMEnabled() {
		backend := NewOpenAIBackend(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL, cfg.LLMTimeout, logger)
		svc.Relevance = NewRelevanceFilter(backend, logger)
		svc.Summarizer = NewSummarizer(backend, logger)
		logger.Info("Scored relevance enabled", zap.String("model", cfg.OpenAIModel))
	}

	if cfg.S3Enabled() {
		s3Client, err := storage.NewS3Client(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("s3 client: %w", err)
		}
		svc.Archive = storage.NewReportArchive(s3Client, cfg)
		logger.Info("Run reports will be archived", zap.String("bucket", cfg.S3Bucket))
	}
	return svc, nil
}
