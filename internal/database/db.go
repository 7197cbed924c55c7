package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ThiagoRGoveia/patron-ingestion/internal/models"
)

const (
	RUN_STATUS_PROCESSING       = "PROCESSING"
	RUN_STATUS_DONE             = "DONE"
	RUN_STATUS_DONE_WITH_ERRORS = "DONE_WITH_ERRORS"
	RUN_STATUS_FATAL            = "FATAL"
)

var ErrChecksumNotFound = errors.New("database: checksum not found")

// ChecksumStore keeps one digest per external student key.
type ChecksumStore interface {
	GetChecksum(ctx context.Context, key string) (*models.ChecksumRecord, error)
	// PutChecksum inserts the digest or replaces it when it differs. An equal
	// digest leaves the row untouched.
	PutChecksum(ctx context.Context, key, digest string, at time.Time) error
	// TouchChecksum moves last_seen forward without changing the digest. A
	// missing key is not an error.
	TouchChecksum(ctx context.Context, key string, at time.Time) error
	DeleteChecksum(ctx context.Context, key string) error
	// ExpireChecksums removes rows not seen since before.
	ExpireChecksums(ctx context.Context, before time.Time) (int64, error)
}

// RunStore records ingest runs.
type RunStore interface {
	InsertRunRecord(ctx context.Context, run *models.RunRecord) error
	UpdateRunRecord(ctx context.Context, run *models.RunRecord) error
	ListRunRecords(ctx context.Context, clientID string, limit int) ([]models.RunRecord, error)
}

type DBManager interface {
	ChecksumStore
	RunStore
	CreateTables(ctx context.Context) error
	Close()
}

// Open picks the backend from the URL scheme: postgres:// and
// postgresql:// use Postgres, sqlite:// uses a SQLite file.
func Open(ctx context.Context, url string) (DBManager, error) {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		pool, err := ConnectDB(ctx, url)
		if err != nil {
			return nil, err
		}
		return NewPostgresDBManager(pool), nil
	case strings.HasPrefix(url, "sqlite://"):
		manager, err := OpenSQLite(strings.TrimPrefix(url, "sqlite://"))
		if err != nil {
			return nil, err
		}
		return manager, nil
	}
	return nil, fmt.Errorf("unsupported DATABASE_URL scheme: %q", url)
}
