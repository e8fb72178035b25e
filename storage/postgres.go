package storage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"crc-news/config"
	"crc-news/models"
)

// PostgresStore writes directly to PostgreSQL through GORM.
type PostgresStore struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

// OpenPostgres connects, migrates news_items and returns the store.
func OpenPostgres(cfg *config.Config, log *zap.Logger) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := db.AutoMigrate(&models.NewsItem{}); err != nil {
		return nil, fmt.Errorf("migrate news_items: %w", err)
	}
	return &PostgresStore{DB: db, Logger: log}, nil
}

// Upsert writes the batch with ON CONFLICT (url_key) DO UPDATE. When the batch statement fails,
// items are retried one by one so a single bad row does not block the rest.
func (s *PostgresStore) Upsert(ctx context.Context, items []models.NewsItem) (UpsertResult, error) {
	unique, errs := dedupeKeys(items)
	result := UpsertResult{Failed: len(errs), Errors: errs}
	if len(unique) == 0 {
		return result, nil
	}

	existing, err := s.existing(ctx, keysOf(unique))
	if err != nil {
		result.Failed += len(unique)
		return result, err
	}

	prepared, merged := prepare(unique, existing, time.Now().UTC())
	err = s.upsertClause(ctx).Create(&prepared).Error
	if err == nil {
		countMerged(&result, merged)
		return result, nil
	}
	s.Logger.Warn("Batch upsert failed, retrying per item", zap.Int("items", len(prepared)), zap.Error(err))

	for i := range prepared {
		if err := s.upsertClause(ctx).Create(&prepared[i]).Error; err != nil {
			result.Failed++
			result.Errors = append(result.Errors, &SinkWriteError{URLKey: prepared[i].URLKey, Err: err})
			continue
		}
		if merged[i] {
			result.Merged++
		} else {
			result.Inserted++
		}
	}
	return result, nil
}

// InsertNew creates rows for unknown keys with ON CONFLICT DO NOTHING.
func (s *PostgresStore) InsertNew(ctx context.Context, items []models.NewsItem) (UpsertResult, error) {
	unique, errs := dedupeKeys(items)
	result := UpsertResult{Failed: len(errs), Errors: errs}
	if len(unique) == 0 {
		return result, nil
	}
	existing, err := s.existing(ctx, keysOf(unique))
	if err != nil {
		result.Failed += len(unique)
		return result, err
	}
	fresh, _ := prepare(newOnly(unique, existing, &result), nil, time.Now().UTC())
	for i := range fresh {
		if err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&fresh[i]).Error; err != nil {
			result.Failed++
			result.Errors = append(result.Errors, &SinkWriteError{URLKey: fresh[i].URLKey, Err: err})
			continue
		}
		result.Inserted++
	}
	return result, nil
}

func (s *PostgresStore) existing(ctx context.Context, keys []string) (map[string]existingRow, error) {
	var rows []existingRow
	if err := s.DB.WithContext(ctx).
		Model(&models.NewsItem{}).
		Select("id", "url_key", "status", "created_at").
		Where("url_key IN ?", keys).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("look up existing keys: %w", err)
	}
	existing := make(map[string]existingRow, len(rows))
	for _, row := range rows {
		existing[row.URLKey] = row
	}
	return existing, nil
}

func (s *PostgresStore) upsertClause(ctx context.Context) *gorm.DB {
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "url_key"}},
		DoUpdates: clause.AssignmentColumns(mergeColumns),
	})
}

// List queries news_items with optional category, status and title filters.
func (s *PostgresStore) List(ctx context.Context, q ListQuery) ([]models.NewsItem, error) {
	var items []models.NewsItem
	if err := s.listQuery(ctx, q).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list news items: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) listQuery(ctx context.Context, q ListQuery) *gorm.DB {
	query := s.DB.WithContext(ctx).Model(&models.NewsItem{})
	if q.Status != "" {
		query = query.Where("status = ?", q.Status)
	}
	if q.Category != "" {
		query = query.Where("category = ?", q.Category)
	}
	if q.Query != "" {
		query = query.Where(`title ILIKE ? ESCAPE '\'`, "%"+escapeLike(q.Query)+"%")
	}
	return query.Order("published_at DESC NULLS LAST").Limit(clampLimit(q.Limit))
}

func countMerged(result *UpsertResult, merged []bool) {
	for _, m := range merged {
		if m {
			result.Merged++
		} else {
			result.Inserted++
		}
	}
}
