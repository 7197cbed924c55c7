package ingestion

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ThiagoRGoveia/patron-ingestion/internal/database"
	"github.com/ThiagoRGoveia/patron-ingestion/internal/models"
	"github.com/ThiagoRGoveia/patron-ingestion/pkg/checksum"
)

// FileProcessor opens and closes the run record for one data file.
type FileProcessor struct {
	runs database.RunStore
	now  func() time.Time
}

func NewFileProcessor(runs database.RunStore) *FileProcessor {
	return &FileProcessor{
		runs: runs,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Start checksums the file and stores a PROCESSING run for it.
func (fp *FileProcessor) Start(ctx context.Context, client *models.ClientConfig, path string) (*models.RunRecord, error) {
	fileChecksum, err := checksum.GetFileChecksum(path)
	if err != nil {
		return nil, fmt.Errorf("could not read data file %s: %w", path, err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("could not generate run id: %w", err)
	}

	run := &models.RunRecord{
		ID:           id.String(),
		ClientID:     client.ID,
		Namespace:    client.Namespace,
		FileName:     filepath.Base(path),
		FileChecksum: fileChecksum,
		StartedAt:    fp.now(),
		Status:       database.RUN_STATUS_PROCESSING,
	}
	if err := fp.runs.InsertRunRecord(ctx, run); err != nil {
		return nil, fmt.Errorf("could not insert run record: %w", err)
	}
	return run, nil
}

// Finish stores the final counters and status of a run.
func (fp *FileProcessor) Finish(ctx context.Context, run *models.RunRecord, stats *RunStats, status string) error {
	finished := fp.now()
	run.FinishedAt = &finished
	run.Status = status
	if stats != nil {
		stats.Apply(run)
	}
	if err := fp.runs.UpdateRunRecord(ctx, run); err != nil {
		return fmt.Errorf("could not update run record %s: %w", run.ID, err)
	}
	return nil
}
