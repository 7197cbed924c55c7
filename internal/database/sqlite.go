package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/ThiagoRGoveia/patron-ingestion/internal/models"
)

// SQLiteDBManager is the single-file backend for small deployments and
// tests.
type SQLiteDBManager struct {
	db *gorm.DB
}

func OpenSQLite(path string) (*SQLiteDBManager, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database %s: %w", path, err)
	}
	return NewSQLiteDBManager(db), nil
}

func NewSQLiteDBManager(db *gorm.DB) *SQLiteDBManager {
	return &SQLiteDBManager{db: db}
}

func (m *SQLiteDBManager) Close() {
	sqlDB, err := m.db.DB()
	if err != nil {
		return
	}
	_ = sqlDB.Close()
}

func (m *SQLiteDBManager) CreateTables(ctx context.Context) error {
	if err := m.db.WithContext(ctx).AutoMigrate(&models.ChecksumRecord{}); err != nil {
		return fmt.Errorf("auto-migrate patron_checksums: %w", err)
	}
	if err := m.db.WithContext(ctx).AutoMigrate(&models.RunRecord{}); err != nil {
		return fmt.Errorf("auto-migrate ingest_runs: %w", err)
	}
	return nil
}

func (m *SQLiteDBManager) GetChecksum(ctx context.Context, key string) (*models.ChecksumRecord, error) {
	var record models.ChecksumRecord
	err := m.db.WithContext(ctx).Where("external_key = ?", key).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChecksumNotFound
		}
		return nil, fmt.Errorf("error finding checksum for %s: %w", key, err)
	}
	return &record, nil
}

func (m *SQLiteDBManager) PutChecksum(ctx context.Context, key, digest string, at time.Time) error {
	record := &models.ChecksumRecord{ExternalKey: key, Digest: digest, DateAdded: at, DateUpdated: at, LastSeen: at}
	err := m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"digest", "date_updated", "last_seen"}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "patron_checksums.digest <> excluded.digest"},
		}},
	}).Create(record).Error
	if err != nil {
		return fmt.Errorf("error saving checksum for %s: %w", key, err)
	}
	return nil
}

func (m *SQLiteDBManager) TouchChecksum(ctx context.Context, key string, at time.Time) error {
	err := m.db.WithContext(ctx).Model(&models.ChecksumRecord{}).
		Where("external_key = ? AND last_seen < ?", key, at).
		Update("last_seen", at).Error
	if err != nil {
		return fmt.Errorf("error touching checksum for %s: %w", key, err)
	}
	return nil
}

func (m *SQLiteDBManager) DeleteChecksum(ctx context.Context, key string) error {
	err := m.db.WithContext(ctx).Where("external_key = ?", key).Delete(&models.ChecksumRecord{}).Error
	if err != nil {
		return fmt.Errorf("error deleting checksum for %s: %w", key, err)
	}
	return nil
}

func (m *SQLiteDBManager) ExpireChecksums(ctx context.Context, before time.Time) (int64, error) {
	result := m.db.WithContext(ctx).Where("last_seen < ?", before).Delete(&models.ChecksumRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("error expiring checksums: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (m *SQLiteDBManager) InsertRunRecord(ctx context.Context, run *models.RunRecord) error {
	if err := m.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("error inserting run record: %w", err)
	}
	return nil
}

func (m *SQLiteDBManager) UpdateRunRecord(ctx context.Context, run *models.RunRecord) error {
	err := m.db.WithContext(ctx).Model(run).
		Select("status", "finished_at", "total", "unchanged", "created", "updated", "ambiguous", "invalid", "failed", "errors").
		Updates(run).Error
	if err != nil {
		return fmt.Errorf("error updating run record %s: %w", run.ID, err)
	}
	return nil
}

func (m *SQLiteDBManager) ListRunRecords(ctx context.Context, clientID string, limit int) ([]models.RunRecord, error) {
	var runs []models.RunRecord
	err := m.db.WithContext(ctx).Where("client_id = ?", clientID).
		Order("started_at DESC").Limit(limit).Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("error listing runs for %s: %w", clientID, err)
	}
	return runs, nil
}
