package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"crc-news/config"
	"crc-news/services"
)

func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Config load error: %v", err)
	}

	logging, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	sources, err := config.LoadSources(cfg.SourcesFile)
	if err != nil {
		logging.Fatal("Source catalog error", zap.Error(err))
	}
	logging.Info("Source catalog loaded", zap.Int("sources", len(sources)))

	ingestService, err := services.Build(context.Background(), cfg, sources, logging)
	if err != nil {
		logging.Fatal("Service setup failed", zap.Error(err))
	}

	if os.Getenv(gin.EnvGinMode) == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := newRouter(ingestService, ingestService.Store, sources, logging)

	var cronScheduler *cron.Cron
	if cfg.CronSchedule != "" {
		cronScheduler = cron.New()
		_, err := cronScheduler.AddFunc(cfg.CronSchedule, func() {
			logging.Info("Running scheduled ingestion...")
			report, err := ingestService.Run(context.Background(), services.RunOptions{})
			if err != nil {
				logging.Error("Scheduled ingestion failed", zap.Error(err))
				return
			}
			logging.Info("Scheduled ingestion completed",
				zap.String("run_id", report.RunID),
				zap.Int("inserted_or_merged", report.InsertedOrMerged))
		})
		if err != nil {
			logging.Fatal("Invalid CRON_SCHEDULE", zap.String("schedule", cfg.CronSchedule), zap.Error(err))
		}
		cronScheduler.Start()
		logging.Info("Scheduled ingestion enabled", zap.String("schedule", cfg.CronSchedule))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		// a run may use its whole budget plus the upsert grace period
		WriteTimeout: cfg.RunBudget + 60*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		logging.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		logging.Error("Server error", zap.Error(err))
	}

	if cronScheduler != nil {
		<-cronScheduler.Stop().Done()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error("HTTP server shutdown error", zap.Error(err))
	}
	logging.Info("Server stopped")
}
