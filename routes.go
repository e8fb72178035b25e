package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"crc-news/models"
	"crc-news/services"
	"crc-news/storage"
)

// ingestRunner is the part of the ingest service the routes need.
type ingestRunner interface {
	Run(ctx context.Context, opts services.RunOptions) (*models.RunReport, error)
}

func newRouter(runner ingestRunner, store storage.Store, sources []models.NewsSource, log *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	setupIngestRoutes(router, runner, log)
	setupNewsRoutes(router, store, log)
	setupSourceRoutes(router, sources)
	return router
}

func setupIngestRoutes(router *gin.Engine, runner ingestRunner, log *zap.Logger) {
	handler := func(c *gin.Context) {
		opts, err := parseRunOptions(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		report, err := runner.Run(c.Request.Context(), opts)
		if err != nil {
			if errors.Is(err, services.ErrRunInProgress) {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			log.Error("Ingestion run failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, report)
	}
	router.GET("/ingest", handler)
	router.POST("/ingest", handler)
}

// parseRunOptions reads months, limit, fast, category and q. Range clamping happens in the service.
func parseRunOptions(c *gin.Context) (services.RunOptions, error) {
	var opts services.RunOptions
	if v := c.Query("months"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return opts, errors.New("months must be an integer")
		}
		opts.Months = n
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return opts, errors.New("limit must be an integer")
		}
		opts.Limit = n
	}
	if v := c.Query("fast"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, errors.New("fast must be a boolean")
		}
		opts.Fast = b
	}
	if v := c.Query("category"); v != "" {
		cat := models.Category(v)
		if !cat.Valid() {
			return opts, errors.New("unknown category")
		}
		opts.Category = cat
	}
	opts.Query = c.Query("q")
	return opts, nil
}

func setupNewsRoutes(router *gin.Engine, store storage.Store, log *zap.Logger) {
	router.GET("/news", func(c *gin.Context) {
		q := storage.ListQuery{
			Query:  strings.TrimSpace(c.Query("q")),
			Status: models.StatusApproved,
		}
		if v := c.Query("category"); v != "" {
			q.Category = models.Category(v)
			if !q.Category.Valid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unknown category"})
				return
			}
		}
		switch v := c.Query("status"); v {
		case "":
		case "all":
			q.Status = ""
		default:
			q.Status = models.Status(v)
			if !q.Status.Valid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
				return
			}
		}
		if v := c.Query("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
				return
			}
			q.Limit = n
		}

		items, err := store.List(c.Request.Context(), q)
		if err != nil {
			log.Error("Listing news failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		if items == nil {
			items = []models.NewsItem{}
		}
		c.JSON(http.StatusOK, gin.H{"items": items})
	})
}

func setupSourceRoutes(router *gin.Engine, sources []models.NewsSource) {
	router.GET("/sources", func(c *gin.Context) {
		c.JSON(http.StatusOK, sources)
	})
}
