package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"crc-news/config"
	"crc-news/models"
	"crc-news/services"
)

const backfillBudget = 15 * time.Minute

func main() {
	months := flag.Int("months", 0, "backfill window in months (default DEFAULT_MONTHS)")
	limit := flag.Int("limit", 0, "result cap per search source (default DEFAULT_LIMIT)")
	fast := flag.Bool("fast", false, "only fast sources, no classifier calls")
	category := flag.String("category", "", "only sources with this default category")
	query := flag.String("q", "", "replace the query list of search sources")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Config load error: %v", err)
	}
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	opts := services.RunOptions{Months: *months, Limit: *limit, Fast: *fast, Query: *query}
	if *category != "" {
		opts.Category = models.Category(*category)
		if !opts.Category.Valid() {
			logging.Fatal("Unknown category", zap.String("category", *category), zap.Any("valid", models.Categories))
		}
	}

	sources, err := config.LoadSources(cfg.SourcesFile)
	if err != nil {
		logging.Fatal("Source catalog error", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ingestService, err := services.Build(ctx, cfg, sources, logging)
	if err != nil {
		logging.Fatal("Service setup failed", zap.Error(err))
	}

	// backfills are not bound by the HTTP trigger's budget
	if cfg.RunBudget < backfillBudget {
		cfg.RunBudget = backfillBudget
	}
	report, err := ingestService.Run(ctx, opts)
	if err != nil {
		logging.Fatal("Backfill failed", zap.Error(err))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		logging.Fatal("Writing report failed", zap.Error(err))
	}
}
