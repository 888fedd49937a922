// Package storage persists cached quotes in SQLite as the durable cache
// tier. Rows expire by timestamp comparison on read (soft expiry); Sweep
// reclaims rows that have been stale longer than a grace period.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"idxquote/internal/domain"
)

// QuoteRow is one durable cache entry: a serialized quote for a (symbol,
// asset class) pair with an absolute expiry.
type QuoteRow struct {
	ID         uint              `gorm:"primaryKey"`
	Symbol     string            `gorm:"uniqueIndex:idx_symbol_class;size:64"`
	AssetClass domain.AssetClass `gorm:"uniqueIndex:idx_symbol_class;size:16"`
	Data       []byte
	ExpiresAt  time.Time         `gorm:"index"`
	UpdatedAt  time.Time
}

// Storage implements domain.DurableStore over SQLite.
type Storage struct {
	db *gorm.DB
}

// NewStorage opens (or creates) the SQLite database at path and migrates the
// schema.
func NewStorage(path string) (*Storage, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create DB directory: %w", err)
		}
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&QuoteRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// Load returns the serialized quote and its expiry. Absent rows come back as
// domain.ErrCacheMiss; expiry is left to the caller so a stale row can still
// serve as a last-resort value.
func (s *Storage) Load(ctx context.Context, class domain.AssetClass, symbol string) ([]byte, time.Time, error) {
	var row QuoteRow
	err := s.db.WithContext(ctx).
		First(&row, "symbol = ? AND asset_class = ?", symbol, class).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, time.Time{}, domain.ErrCacheMiss
	}
	if err != nil {
		return nil, time.Time{}, err
	}
	return row.Data, row.ExpiresAt, nil
}

// Store creates or overwrites the row for (symbol, asset class).
func (s *Storage) Store(ctx context.Context, class domain.AssetClass, symbol string, data []byte, expiresAt time.Time) error {
	row := QuoteRow{
		Symbol:     symbol,
		AssetClass: class,
		Data:       data,
		ExpiresAt:  expiresAt,
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "asset_class"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "expires_at", "updated_at"}),
		}).
		Create(&row).Error
}

// Close releases the underlying database handle.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Sweep deletes rows whose expiry is more than grace in the past and reports
// how many were reclaimed.
func (s *Storage) Sweep(ctx context.Context, grace time.Duration) (int64, error) {
	cutoff := time.Now().Add(-grace)
	res := s.db.WithContext(ctx).
		Where("expires_at < ?", cutoff).
		Delete(&QuoteRow{})
	return res.RowsAffected, res.Error
}
