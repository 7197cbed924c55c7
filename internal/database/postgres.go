package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ThiagoRGoveia/patron-ingestion/internal/models"
)

func ConnectDB(ctx context.Context, connStr string) (*pgxpool.Pool, error) {
	dbpool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := dbpool.Ping(ctx); err != nil {
		dbpool.Close()
		return nil, fmt.Errorf("unable to reach database: %w", err)
	}

	return dbpool, nil
}

type PostgresDBManager struct {
	dbpool *pgxpool.Pool
}

func NewPostgresDBManager(pool *pgxpool.Pool) *PostgresDBManager {
	return &PostgresDBManager{dbpool: pool}
}

func (m *PostgresDBManager) Close() {
	m.dbpool.Close()
}

func (m *PostgresDBManager) CreateTables(ctx context.Context) error {
	if err := m.createChecksumsTable(ctx); err != nil {
		return err
	}
	return m.createRunsTable(ctx)
}

func (m *PostgresDBManager) createChecksumsTable(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS patron_checksums (
		external_key VARCHAR(255) PRIMARY KEY,
		digest CHAR(64) NOT NULL,
		date_added TIMESTAMPTZ NOT NULL,
		date_updated TIMESTAMPTZ NOT NULL,
		last_seen TIMESTAMPTZ NOT NULL
	);
	ALTER TABLE patron_checksums ADD COLUMN IF NOT EXISTS last_seen TIMESTAMPTZ NOT NULL DEFAULT now();
	DROP INDEX IF EXISTS idx_patron_checksums_updated;
	CREATE INDEX IF NOT EXISTS idx_patron_checksums_last_seen ON patron_checksums (last_seen);`

	if _, err := m.dbpool.Exec(ctx, query); err != nil {
		return fmt.Errorf("error creating patron_checksums table: %w", err)
	}
	return nil
}

func (m *PostgresDBManager) createRunsTable(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS ingest_runs (
		id VARCHAR(36) PRIMARY KEY,
		client_id VARCHAR(64) NOT NULL,
		namespace VARCHAR(64) NOT NULL,
		file_name VARCHAR(255) NOT NULL,
		file_checksum VARCHAR(64),
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ,
		status VARCHAR(50) NOT NULL CHECK (status IN ('DONE', 'DONE_WITH_ERRORS', 'PROCESSING', 'FATAL')),
		total INTEGER NOT NULL DEFAULT 0,
		unchanged INTEGER NOT NULL DEFAULT 0,
		created INTEGER NOT NULL DEFAULT 0,
		updated INTEGER NOT NULL DEFAULT 0,
		ambiguous INTEGER NOT NULL DEFAULT 0,
		invalid INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		errors jsonb
	);
	CREATE INDEX IF NOT EXISTS idx_runs_client_started ON ingest_runs (client_id, started_at);`

	if _, err := m.dbpool.Exec(ctx, query); err != nil {
		return fmt.Errorf("error creating ingest_runs table: %w", err)
	}
	return nil
}

func (m *PostgresDBManager) GetChecksum(ctx context.Context, key string) (*models.ChecksumRecord, error) {
	query := `
	SELECT external_key, digest, date_added, date_updated, last_seen
	FROM patron_checksums
	WHERE external_key = $1;`

	var record models.ChecksumRecord
	err := m.dbpool.QueryRow(ctx, query, key).Scan(&record.ExternalKey, &record.Digest, &record.DateAdded,
		&record.DateUpdated, &record.LastSeen)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrChecksumNotFound
		}
		return nil, fmt.Errorf("error finding checksum for %s: %w", key, err)
	}
	return &record, nil
}

func (m *PostgresDBManager) PutChecksum(ctx context.Context, key, digest string, at time.Time) error {
	query := `
	INSERT INTO patron_checksums (external_key, digest, date_added, date_updated, last_seen)
	VALUES ($1, $2, $3, $3, $3)
	ON CONFLICT (external_key) DO UPDATE
	SET digest = EXCLUDED.digest,
		date_updated = EXCLUDED.date_updated,
		last_seen = EXCLUDED.last_seen
	WHERE patron_checksums.digest <> EXCLUDED.digest;`

	if _, err := m.dbpool.Exec(ctx, query, key, digest, at); err != nil {
		return fmt.Errorf("error saving checksum for %s: %w", key, err)
	}
	return nil
}

func (m *PostgresDBManager) TouchChecksum(ctx context.Context, key string, at time.Time) error {
	query := `UPDATE patron_checksums SET last_seen = $2 WHERE external_key = $1 AND last_seen < $2;`
	if _, err := m.dbpool.Exec(ctx, query, key, at); err != nil {
		return fmt.Errorf("error touching checksum for %s: %w", key, err)
	}
	return nil
}

func (m *PostgresDBManager) DeleteChecksum(ctx context.Context, key string) error {
	if _, err := m.dbpool.Exec(ctx, `DELETE FROM patron_checksums WHERE external_key = $1;`, key); err != nil {
		return fmt.Errorf("error deleting checksum for %s: %w", key, err)
	}
	return nil
}

func (m *PostgresDBManager) ExpireChecksums(ctx context.Context, before time.Time) (int64, error) {
	tag, err := m.dbpool.Exec(ctx, `DELETE FROM patron_checksums WHERE last_seen < $1;`, before)
	if err != nil {
		return 0, fmt.Errorf("error expiring checksums: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (m *PostgresDBManager) InsertRunRecord(ctx context.Context, run *models.RunRecord) error {
	query := `
	INSERT INTO ingest_runs (id, client_id, namespace, file_name, file_checksum, started_at, status)
	VALUES ($1, $2, $3, $4, $5, $6, $7);`

	_, err := m.dbpool.Exec(ctx, query, run.ID, run.ClientID, run.Namespace, run.FileName, run.FileChecksum, run.StartedAt, run.Status)
	if err != nil {
		return fmt.Errorf("error inserting run record: %w", err)
	}
	return nil
}

func (m *PostgresDBManager) UpdateRunRecord(ctx context.Context, run *models.RunRecord) error {
	query := `
	UPDATE ingest_runs
	SET status = $1,
		finished_at = $2,
		total = $3,
		unchanged = $4,
		created = $5,
		updated = $6,
		ambiguous = $7,
		invalid = $8,
		failed = $9,
		errors = $10
	WHERE id = $11;`

	_, err := m.dbpool.Exec(ctx, query, run.Status, run.FinishedAt, run.Total, run.Unchanged, run.Created,
		run.Updated, run.Ambiguous, run.Invalid, run.Failed, run.Errors, run.ID)
	if err != nil {
		return fmt.Errorf("error updating run record %s: %w", run.ID, err)
	}
	return nil
}

func (m *PostgresDBManager) ListRunRecords(ctx context.Context, clientID string, limit int) ([]models.RunRecord, error) {
	query := `
	SELECT id, client_id, namespace, file_name, COALESCE(file_checksum, ''), started_at, finished_at, status,
		total, unchanged, created, updated, ambiguous, invalid, failed, COALESCE(errors, '[]'::jsonb)
	FROM ingest_runs
	WHERE client_id = $1
	ORDER BY started_at DESC
	LIMIT $2;`

	rows, err := m.dbpool.Query(ctx, query, clientID, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing runs for %s: %w", clientID, err)
	}
	defer rows.Close()

	var runs []models.RunRecord
	for rows.Next() {
		var run models.RunRecord
		if err := rows.Scan(&run.ID, &run.ClientID, &run.Namespace, &run.FileName, &run.FileChecksum, &run.StartedAt,
			&run.FinishedAt, &run.Status, &run.Total, &run.Unchanged, &run.Created, &run.Updated, &run.Ambiguous,
			&run.Invalid, &run.Failed, &run.Errors); err != nil {
			return nil, fmt.Errorf("error scanning run record: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over run records: %w", err)
	}
	return runs, nil
}
