package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"rentscout/server/internal/models"
)

// upsertColumns are overwritten when an identity is seen again.
var upsertColumns = []string{
	"url", "title", "price", "size_area", "size_detail", "layout", "floor_info",
	"house_type", "parking", "address", "images", "latitude", "longitude",
	"city", "district", "region_hint", "geo_box", "active", "fetched_at", "updated_at",
}

// Database is the SQLite-backed Store.
type Database struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewDatabase(dbPath string, logger *logrus.Logger) (*Database, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	dsn := dbPath
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = dbPath + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.New(logger, gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, err
	}

	// SQLite allows one writer; a single connection serializes transactions
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	return &Database{db: db, logger: logger}, nil
}

// GetDB exposes the underlying handle for migrations and tests.
func (d *Database) GetDB() *gorm.DB {
	return d.db
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (d *Database) UpsertListings(ctx context.Context, records []*models.ListingRecord) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return UpsertListings(tx, records)
	})
}

// UpsertListings writes a batch inside an open transaction.
func UpsertListings(tx *gorm.DB, records []*models.ListingRecord) error {
	batch, err := prepareForWrite(records, time.Now().UTC())
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}

	result := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "identity"}},
		DoUpdates: clause.AssignmentColumns(upsertColumns),
	}).Create(&batch)
	if result.Error != nil {
		return fmt.Errorf("failed to upsert %d listings: %w", len(batch), result.Error)
	}
	return nil
}

func (d *Database) MarkStaleBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := d.db.WithContext(ctx).
		Model(&models.ListingRecord{}).
		Where("active = ? AND fetched_at < ?", true, cutoff.UTC()).
		Updates(map[string]interface{}{
			"active":     false,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to mark stale listings: %w", result.Error)
	}

	d.logger.WithFields(logrus.Fields{
		"cutoff":   cutoff.UTC().Format(time.RFC3339),
		"affected": result.RowsAffected,
	}).Info("Marked stale listings inactive")
	return result.RowsAffected, nil
}

func (d *Database) GetByIdentity(ctx context.Context, identity string) (*models.ListingRecord, error) {
	var rec models.ListingRecord
	err := d.db.WithContext(ctx).Where("identity = ?", identity).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (d *Database) ListListings(ctx context.Context, filter ListingFilter) ([]models.ListingRecord, error) {
	q := d.db.WithContext(ctx).Model(&models.ListingRecord{})
	if filter.City != "" {
		q = q.Where("city = ?", filter.City)
	}
	if filter.District != "" {
		q = q.Where("district = ?", filter.District)
	}
	if filter.ActiveOnly {
		q = q.Where("active = ?", true)
	} else if filter.InactiveOnly {
		q = q.Where("active = ?", false)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var records []models.ListingRecord
	if err := q.Order("fetched_at DESC").Order("id").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (d *Database) SaveRun(ctx context.Context, report *models.RunReport) error {
	return d.db.WithContext(ctx).Create(report).Error
}

func (d *Database) LatestRun(ctx context.Context) (*models.RunReport, error) {
	var report models.RunReport
	err := d.db.WithContext(ctx).Order("started_at DESC").First(&report).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &report, nil
}
