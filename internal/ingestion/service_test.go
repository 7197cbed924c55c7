package ingestion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ThiagoRGoveia/patron-ingestion/internal/builder"
	"github.com/ThiagoRGoveia/patron-ingestion/internal/database"
	"github.com/ThiagoRGoveia/patron-ingestion/internal/directory"
	"github.com/ThiagoRGoveia/patron-ingestion/internal/match"
	"github.com/ThiagoRGoveia/patron-ingestion/internal/models"
	"github.com/ThiagoRGoveia/patron-ingestion/internal/parser"
	"github.com/ThiagoRGoveia/patron-ingestion/internal/validator"
)

var today = time.Date(2026, time.October, 14, 0, 0, 0, 0, time.UTC)

type testSetup struct {
	service *IngestionService
	matcher *MockMatcher
	writer  *MockWriter
	auditor *recordingAuditor
	store   database.DBManager
	client  *models.ClientConfig
}

func BuildTestSetup(t *testing.T) *testSetup {
	t.Helper()
	client := testClient()
	registry, err := validator.NewRegistry(client)
	require.NoError(t, err)

	setup := &testSetup{
		matcher: new(MockMatcher),
		writer:  new(MockWriter),
		auditor: &recordingAuditor{},
		store:   openTestStore(t),
		client:  client,
	}
	setup.service = NewIngestionService(Components{
		Client:    client,
		Validator: registry,
		Matcher:   setup.matcher,
		Builder:   builder.New(client, registry).WithClock(func() time.Time { return today }),
		Writer:    setup.writer,
		Auditor:   setup.auditor,
		Store:     setup.store,
		Logger:    discardLogger(),
	})
	return setup
}

func (s *testSetup) checksumStored(t *testing.T, barcode string) bool {
	t.Helper()
	_, err := s.store.GetChecksum(context.Background(), s.client.ChecksumKey(barcode))
	if errors.Is(err, database.ErrChecksumNotFound) {
		return false
	}
	require.NoError(t, err)
	return true
}

func TestIngestionService_Execute(t *testing.T) {
	ctx := context.Background()

	t.Run("Expect: unmatched record is created and committed", func(t *testing.T) {
		setup := BuildTestSetup(t)
		path := writeDataFile(t, createTestCSVContent([]StudentRow{newDefaultStudentRow()}))

		setup.matcher.On("Resolve", mock.Anything, mock.Anything).
			Return(models.MatchOutcome{Kind: models.OutcomeCreate}, nil).Once()
		setup.writer.On("Create", mock.Anything, mock.MatchedBy(func(p *models.Payload) bool {
			return p.Key == "" && p.Fields["pin"] == "1001"
		})).Return("501", nil).Once()

		run, stats, err := setup.service.Execute(ctx, path)
		require.NoError(t, err)

		assert.Equal(t, 1, stats.Total)
		assert.Equal(t, 1, stats.Created)
		assert.Equal(t, database.RUN_STATUS_DONE, run.Status)
		assert.Equal(t, "students.csv", run.FileName)
		assert.Len(t, run.FileChecksum, 16)
		assert.True(t, setup.checksumStored(t, "2100020451001"))
		assert.Equal(t, []auditLine{{Action: ActionCreate, Barcode: "2100020451001"}}, setup.auditor.lines)
		setup.writer.AssertExpectations(t)
	})

	t.Run("Expect: decisive match updates the target key", func(t *testing.T) {
		setup := BuildTestSetup(t)
		path := writeDataFile(t, createTestCSVContent([]StudentRow{newDefaultStudentRow()}))

		target := models.MatchCandidate{Key: "123456", Fields: map[string]string{"barcode": "2100020451001"}}
		setup.matcher.On("Resolve", mock.Anything, mock.Anything).Return(models.MatchOutcome{
			Kind:       models.OutcomeUpdate,
			Key:        "123456",
			Reason:     models.ReasonID,
			Candidates: []models.MatchCandidate{target},
		}, nil).Once()
		setup.writer.On("Update", mock.Anything, "123456", mock.MatchedBy(func(p *models.Payload) bool {
			_, hasPin := p.Fields["pin"]
			return p.Key == "123456" && !hasPin
		})).Return("123456", nil).Once()

		_, stats, err := setup.service.Execute(ctx, path)
		require.NoError(t, err)

		assert.Equal(t, 1, stats.Updated)
		assert.Equal(t, 1, stats.Reasons[models.ReasonID])
		assert.Equal(t, []auditLine{{Action: ActionUpdate, Reason: "ID", Barcode: "2100020451001"}}, setup.auditor.lines)
		assert.True(t, setup.checksumStored(t, "2100020451001"))
		setup.writer.AssertExpectations(t)
	})

	t.Run("Expect: three candidates are reported and nothing is written", func(t *testing.T) {
		setup := BuildTestSetup(t)
		path := writeDataFile(t, createTestCSVContent([]StudentRow{newDefaultStudentRow()}))

		candidates := []models.MatchCandidate{{Key: "A"}, {Key: "B"}, {Key: "C"}}
		setup.matcher.On("Resolve", mock.Anything, mock.Anything).Return(models.MatchOutcome{
			Kind:       models.OutcomeAmbiguous,
			Reason:     models.ReasonDOBStreet,
			Candidates: candidates,
		}, nil).Once()

		run, stats, err := setup.service.Execute(ctx, path)
		require.NoError(t, err)

		assert.Equal(t, 1, stats.Ambiguous)
		require.Len(t, stats.Ambiguities, 1)
		assert.Equal(t, candidates, stats.Ambiguities[0].Candidates)
		assert.Equal(t, "Ada Lovelace", stats.Ambiguities[0].Name)
		assert.Equal(t, database.RUN_STATUS_DONE, run.Status)
		assert.False(t, setup.checksumStored(t, "2100020451001"))
		setup.writer.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		setup.writer.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Expect: invalid rows are counted and never matched", func(t *testing.T) {
		setup := BuildTestSetup(t)
		bad := newDefaultStudentRow()
		bad.LastName = ""
		bad.State = "Washington"
		path := writeDataFile(t, createTestCSVContent([]StudentRow{bad}))

		run, stats, err := setup.service.Execute(ctx, path)
		require.NoError(t, err)

		assert.Equal(t, 1, stats.Invalid)
		assert.Len(t, stats.Errors, 2)
		assert.Equal(t, database.RUN_STATUS_DONE_WITH_ERRORS, run.Status)
		setup.matcher.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
	})

	t.Run("Expect: failed write is counted and not committed", func(t *testing.T) {
		setup := BuildTestSetup(t)
		path := writeDataFile(t, createTestCSVContent([]StudentRow{newDefaultStudentRow()}))

		setup.matcher.On("Resolve", mock.Anything, mock.Anything).
			Return(models.MatchOutcome{Kind: models.OutcomeCreate}, nil).Once()
		setup.writer.On("Create", mock.Anything, mock.Anything).
			Return("", &directory.StatusError{Method: "POST", Path: "/user/patron", StatusCode: 400}).Once()

		run, stats, err := setup.service.Execute(ctx, path)
		require.NoError(t, err)

		assert.Equal(t, 1, stats.Failed)
		assert.Zero(t, stats.Created)
		assert.Equal(t, database.RUN_STATUS_DONE_WITH_ERRORS, run.Status)
		assert.False(t, setup.checksumStored(t, "2100020451001"))
		assert.Empty(t, setup.auditor.lines)
	})

	t.Run("Expect: no search evidence fails the row without writing", func(t *testing.T) {
		setup := BuildTestSetup(t)
		path := writeDataFile(t, createTestCSVContent([]StudentRow{newDefaultStudentRow()}))

		searchErr := &models.AppError{Row: 1, Strategy: "Alt ID", Message: "search failed"}
		setup.matcher.On("Resolve", mock.Anything, mock.Anything).
			Return(models.MatchOutcome{SearchErrors: []error{searchErr}}, match.ErrNoEvidence).Once()

		_, stats, err := setup.service.Execute(ctx, path)
		require.NoError(t, err)

		assert.Equal(t, 1, stats.Failed)
		assert.Len(t, stats.Errors, 2)
		setup.writer.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("Expect: one failing row does not stop the run", func(t *testing.T) {
		setup := BuildTestSetup(t)
		second := newDefaultStudentRow()
		second.StudentID = "20451002"
		second.FirstName = "Grace"
		path := writeDataFile(t, createTestCSVContent([]StudentRow{newDefaultStudentRow(), second}))

		setup.matcher.On("Resolve", mock.Anything, mock.Anything).
			Return(models.MatchOutcome{Kind: models.OutcomeCreate}, nil).Twice()
		setup.writer.On("Create", mock.Anything, mock.Anything).Return("", errors.New("connection reset")).Once()
		setup.writer.On("Create", mock.Anything, mock.Anything).Return("502", nil).Once()

		_, stats, err := setup.service.Execute(ctx, path)
		require.NoError(t, err)

		assert.Equal(t, 2, stats.Total)
		assert.Equal(t, 1, stats.Failed)
		assert.Equal(t, 1, stats.Created)
		assert.True(t, setup.checksumStored(t, "2100020451002"))
	})

	t.Run("Expect: schema mismatch is fatal", func(t *testing.T) {
		setup := BuildTestSetup(t)
		path := writeDataFile(t, "id,name\n1,Ada\n")

		run, _, err := setup.service.Execute(ctx, path)
		assert.ErrorIs(t, err, parser.ErrSchemaMismatch)
		require.NotNil(t, run)

		runs, listErr := setup.store.ListRunRecords(ctx, setup.client.ID, 10)
		require.NoError(t, listErr)
		require.Len(t, runs, 1)
		assert.Equal(t, database.RUN_STATUS_FATAL, runs[0].Status)
	})

	t.Run("Expect: unreadable file is fatal before a run exists", func(t *testing.T) {
		setup := BuildTestSetup(t)

		run, _, err := setup.service.Execute(ctx, filepath.Join(t.TempDir(), "missing.csv"))
		assert.Error(t, err)
		assert.Nil(t, run)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

// A second run over the same file must not touch the directory.
func TestIngestionService_SecondRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	client := testClient()
	registry, err := validator.NewRegistry(client)
	require.NoError(t, err)
	store := openTestStore(t)
	remote := new(MockDirectory)
	logger := discardLogger()

	remote.On("Search", mock.Anything, "tok", mock.Anything, mock.Anything, mock.Anything).
		Return(&directory.SearchResult{}, nil)
	remote.On("Create", mock.Anything, "tok", mock.Anything).Return("501", nil).Once()

	newService := func(auditor Auditor) *IngestionService {
		return NewIngestionService(Components{
			Client:    client,
			Validator: registry,
			Matcher:   match.NewEngine(remote, "tok", match.Options{FieldsToReturn: match.FieldsToReturn(client), Logger: logger}),
			Builder:   builder.New(client, registry).WithClock(func() time.Time { return today }),
			Writer:    NewRetryWriter(remote, "tok", RetryConfig{MaxAttempts: 3, InitialInterval: time.Millisecond}, logger),
			Auditor:   auditor,
			Store:     store,
			Logger:    logger,
		})
	}
	path := writeDataFile(t, createTestCSVContent([]StudentRow{newDefaultStudentRow()}))

	_, first, err := newService(&recordingAuditor{}).Execute(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Created)
	searches := len(remote.Calls)

	key := client.ChecksumKey("2100020451001")
	stored, err := store.GetChecksum(ctx, key)
	require.NoError(t, err)
	lastMonth := time.Now().UTC().Truncate(time.Second).AddDate(0, -1, 0)
	require.NoError(t, store.DeleteChecksum(ctx, key))
	require.NoError(t, store.PutChecksum(ctx, key, stored.Digest, lastMonth))

	auditor := &recordingAuditor{}
	_, second, err := newService(auditor).Execute(ctx, path)
	require.NoError(t, err)

	t.Run("Expect: the unchanged row is marked as seen", func(t *testing.T) {
		record, err := store.GetChecksum(ctx, key)
		require.NoError(t, err)
		assert.True(t, record.LastSeen.After(lastMonth))
		assert.True(t, record.DateUpdated.Equal(lastMonth))
	})

	t.Run("Expect: zero remote calls on the second run", func(t *testing.T) {
		assert.Len(t, remote.Calls, searches)
		remote.AssertNumberOfCalls(t, "Create", 1)
		remote.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Expect: the row is audited as unchanged", func(t *testing.T) {
		assert.Equal(t, 1, second.Unchanged)
		assert.Equal(t, []auditLine{{Action: ActionChecksum, Barcode: "2100020451001"}}, auditor.lines)
	})
}
