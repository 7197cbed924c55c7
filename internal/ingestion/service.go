package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ThiagoRGoveia/patron-ingestion/internal/database"
	"github.com/ThiagoRGoveia/patron-ingestion/internal/match"
	"github.com/ThiagoRGoveia/patron-ingestion/internal/models"
	"github.com/ThiagoRGoveia/patron-ingestion/internal/parser"
	"github.com/ThiagoRGoveia/patron-ingestion/pkg/checksum"
)

// Audit actions, one per terminal row outcome.
const (
	ActionChecksum  = "Checksum"
	ActionUpdate    = "Update"
	ActionCreate    = "Create"
	ActionAmbiguous = "Ambiguous"
)

type RecordValidator interface {
	ValidateRecord(raw map[string]string, row int) (*models.StudentRecord, []error)
}

type Matcher interface {
	Resolve(ctx context.Context, record *models.StudentRecord) (models.MatchOutcome, error)
}

type PayloadBuilder interface {
	Build(record *models.StudentRecord, mode models.BuildMode, target *models.MatchCandidate) (*models.Payload, error)
}

type PatronWriter interface {
	Create(ctx context.Context, payload *models.Payload) (string, error)
	Update(ctx context.Context, key string, payload *models.Payload) (string, error)
}

// Auditor receives one line per terminal row outcome.
type Auditor interface {
	Audit(action, reason string, record *models.StudentRecord) error
}

type Components struct {
	Client    *models.ClientConfig
	Validator RecordValidator
	Matcher   Matcher
	Builder   PayloadBuilder
	Writer    PatronWriter
	Auditor   Auditor
	Store     database.DBManager
	Logger    *slog.Logger
}

type IngestionService struct {
	client        *models.ClientConfig
	validator     RecordValidator
	matcher       Matcher
	builder       PayloadBuilder
	writer        PatronWriter
	auditor       Auditor
	gate          *ChecksumGate
	fileProcessor *FileProcessor
	logger        *slog.Logger
}

func NewIngestionService(c Components) *IngestionService {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestionService{
		client:        c.Client,
		validator:     c.Validator,
		matcher:       c.Matcher,
		builder:       c.Builder,
		writer:        c.Writer,
		auditor:       c.Auditor,
		gate:          NewChecksumGate(c.Store),
		fileProcessor: NewFileProcessor(c.Store),
		logger:        logger,
	}
}

// Execute runs one data file through the pipeline, strictly one row at a
// time. Row failures are counted and never abort the run. The returned error
// is only set for conditions that stop the whole run.
func (s *IngestionService) Execute(ctx context.Context, path string) (*models.RunRecord, *RunStats, error) {
	stats := NewRunStats()

	// Step 1: Register the run with the file checksum.
	run, err := s.fileProcessor.Start(ctx, s.client, path)
	if err != nil {
		return nil, stats, err
	}
	logger := s.logger.With("run", run.ID, "client", s.client.ID)
	logger.Info("run started", "file", run.FileName, "checksum", run.FileChecksum)

	// Step 2: Open the file against the client's column layout.
	schema, err := parser.SchemaFor(s.client.Schema)
	if err != nil {
		return run, stats, s.abort(ctx, run, stats, err)
	}
	reader, err := parser.Open(path, schema)
	if err != nil {
		return run, stats, s.abort(ctx, run, stats, err)
	}
	logger.Debug("data file opened", "encoding", reader.Encoding, "schema", schema.Kind)

	// Step 3: Process rows in file order.
	for {
		if err := ctx.Err(); err != nil {
			return run, stats, s.abort(ctx, run, stats, err)
		}
		raw, row, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var rowErr *parser.RowError
			if !errors.As(err, &rowErr) {
				return run, stats, s.abort(ctx, run, stats, err)
			}
			stats.Total++
			stats.Invalid++
			stats.AddError(err)
			logger.Warn("row skipped", "row", row, "error", err)
			continue
		}
		stats.Total++
		s.processRow(ctx, logger, raw, row, stats)
	}

	// Step 4: Close the run with its counters.
	if err := s.fileProcessor.Finish(ctx, run, stats, stats.Status()); err != nil {
		logger.Error("failed to finish run", "error", err)
	}
	logger.Info("run finished",
		"status", run.Status,
		"total", stats.Total,
		"unchanged", stats.Unchanged,
		"created", stats.Created,
		"updated", stats.Updated,
		"ambiguous", stats.Ambiguous,
		"invalid", stats.Invalid,
		"failed", stats.Failed,
	)
	return run, stats, nil
}

func (s *IngestionService) abort(ctx context.Context, run *models.RunRecord, stats *RunStats, cause error) error {
	stats.AddError(cause)
	if err := s.fileProcessor.Finish(context.WithoutCancel(ctx), run, stats, database.RUN_STATUS_FATAL); err != nil {
		s.logger.Error("failed to finish run", "run", run.ID, "error", err)
	}
	return cause
}

func (s *IngestionService) processRow(ctx context.Context, logger *slog.Logger, raw map[string]string, row int, stats *RunStats) {
	record, errs := s.validator.ValidateRecord(raw, row)
	if len(errs) > 0 {
		stats.Invalid++
		for _, err := range errs {
			stats.AddError(err)
			logger.Warn("invalid field", "row", row, "error", err)
		}
		return
	}
	logger = logger.With("row", row, "barcode", record.Barcode)

	digest, err := checksum.RecordDigest(record.Fields())
	if err != nil {
		s.fail(logger, stats, &models.AppError{Row: row, Message: "could not hash record", Err: err})
		return
	}
	checksumKey := s.client.ChecksumKey(record.Barcode)
	verdict, err := s.gate.Check(ctx, checksumKey, digest)
	if err != nil {
		s.fail(logger, stats, &models.AppError{Row: row, Message: "checksum lookup failed", Err: err})
		return
	}
	if verdict == Unchanged {
		stats.Unchanged++
		if err := s.gate.Seen(ctx, checksumKey); err != nil {
			logger.Warn("failed to refresh checksum last seen", "row", row, "error", err)
		}
		s.audit(logger, ActionChecksum, "", record)
		return
	}

	outcome, err := s.matcher.Resolve(ctx, record)
	for _, searchErr := range outcome.SearchErrors {
		stats.AddError(searchErr)
		logger.Warn("search failed", "error", searchErr)
	}
	if err != nil {
		if errors.Is(err, match.ErrNoEvidence) {
			logger.Error("no search succeeded, row left untouched")
		}
		s.fail(logger, stats, &models.AppError{Row: row, Message: "match failed", Err: err, Record: record})
		return
	}

	switch outcome.Kind {
	case models.OutcomeAmbiguous:
		stats.recordAmbiguous(record, outcome.Candidates)
		s.audit(logger, ActionAmbiguous, string(models.ReasonDOBStreet), record)
		for _, candidate := range outcome.Candidates {
			logger.Warn("ambiguous candidate", "key", candidate.Key, "candidate_barcode", candidate.Fields[models.FieldBarcode])
		}

	case models.OutcomeUpdate:
		payload, err := s.builder.Build(record, models.ModeOverlay, &outcome.Candidates[0])
		if err != nil {
			s.fail(logger, stats, buildError(row, err))
			return
		}
		if _, err := s.writer.Update(ctx, outcome.Key, payload); err != nil {
			s.fail(logger, stats, &models.AppError{Row: row, Message: fmt.Sprintf("update of %s failed", outcome.Key), Err: err})
			return
		}
		stats.recordUpdate(outcome.Reason)
		s.commit(ctx, logger, stats, row, checksumKey, digest)
		s.audit(logger, ActionUpdate, string(outcome.Reason), record)
		logger.Info("patron updated", "key", outcome.Key, "reason", outcome.Reason)

	default:
		payload, err := s.builder.Build(record, models.ModeCreate, nil)
		if err != nil {
			s.fail(logger, stats, buildError(row, err))
			return
		}
		key, err := s.writer.Create(ctx, payload)
		if err != nil {
			s.fail(logger, stats, &models.AppError{Row: row, Message: "create failed", Err: err})
			return
		}
		stats.Created++
		s.commit(ctx, logger, stats, row, checksumKey, digest)
		s.audit(logger, ActionCreate, "", record)
		logger.Info("patron created", "key", key)
	}
}

// commit records the digest after a successful remote write. A failure here
// only means the row is sent again next run.
func (s *IngestionService) commit(ctx context.Context, logger *slog.Logger, stats *RunStats, row int, key, digest string) {
	if err := s.gate.Commit(ctx, key, digest); err != nil {
		err = &models.AppError{Row: row, Message: "checksum commit failed", Err: err}
		stats.AddError(err)
		logger.Error("checksum commit failed", "error", err)
	}
}

func (s *IngestionService) fail(logger *slog.Logger, stats *RunStats, err error) {
	stats.Failed++
	stats.AddError(err)
	logger.Error("row failed", "error", err)
}

func (s *IngestionService) audit(logger *slog.Logger, action, reason string, record *models.StudentRecord) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Audit(action, reason, record); err != nil {
		logger.Error("audit write failed", "action", action, "error", err)
	}
}

func buildError(row int, err error) error {
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return &models.AppError{Row: row, Message: "could not build payload", Err: err}
}
