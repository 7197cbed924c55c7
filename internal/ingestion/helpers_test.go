package ingestion

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ThiagoRGoveia/patron-ingestion/internal/database"
	"github.com/ThiagoRGoveia/patron-ingestion/internal/directory"
	"github.com/ThiagoRGoveia/patron-ingestion/internal/models"
)

const csvHeader = "student_id,last_name,first_name,middle_name,street,city,state,zip,birth_date,email"

type StudentRow struct {
	StudentID  string
	LastName   string
	FirstName  string
	MiddleName string
	Street     string
	City       string
	State      string
	Zip        string
	BirthDate  string
	Email      string
}

func newDefaultStudentRow() StudentRow {
	return StudentRow{
		StudentID: "20451001",
		LastName:  "Lovelace",
		FirstName: "Ada",
		Street:    "12 Main St",
		City:      "Spokane",
		State:     "WA",
		Zip:       "99201",
		BirthDate: "2012-05-01",
		Email:     "null",
	}
}

func createTestCSVContent(rows []StudentRow) string {
	var content strings.Builder
	content.WriteString(csvHeader + "\n")

	for _, r := range rows {
		row := []string{r.StudentID, r.LastName, r.FirstName, r.MiddleName, r.Street, r.City, r.State, r.Zip, r.BirthDate, r.Email}
		content.WriteString(strings.Join(row, ",") + "\n")
	}

	return content.String()
}

func writeDataFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "students.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testClient() *models.ClientConfig {
	return &models.ClientConfig{
		ID:           "21000",
		Namespace:    "spokane",
		Schema:       models.SchemaDistrict,
		AdultAge:     18,
		AdultProfile: "ADULT",
		YouthProfile: "STUDENT",
		EmailPattern: `@district\.org$`,
		Fields: map[string]models.FieldConfig{
			"barcode":     {Type: models.FieldTypeScalar, Source: models.FieldBarcode, Rule: "required", Transform: "barcode"},
			"alternateID": {Type: models.FieldTypeScalar, Source: models.FieldAlternateID, Rule: "required"},
			"firstName":   {Type: models.FieldTypeScalar, Source: models.FieldFirstName, Overlay: true},
			"lastName":    {Type: models.FieldTypeScalar, Source: models.FieldLastName, Overlay: true},
			"pin":         {Type: models.FieldTypeScalar, Source: models.FieldStudentID, Rule: "digits", Transform: "pin"},
			"profile":     {Type: models.FieldTypeResource, Resource: "/policy/userProfile", Transform: "age_profile", Overlay: true},
			"street":      {Type: models.FieldTypeAddress, Code: "STREET", Source: models.FieldStreet, Overlay: true},
			"zip":         {Type: models.FieldTypeAddress, Code: "ZIP", Source: models.FieldPostalCode, Rule: "postal", Overlay: true},
		},
	}
}

func openTestStore(t *testing.T) database.DBManager {
	t.Helper()
	store, err := database.OpenSQLite(filepath.Join(t.TempDir(), "patron.db"))
	require.NoError(t, err)
	require.NoError(t, store.CreateTables(context.Background()))
	t.Cleanup(store.Close)
	return store
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type MockMatcher struct {
	mock.Mock
}

func (m *MockMatcher) Resolve(ctx context.Context, record *models.StudentRecord) (models.MatchOutcome, error) {
	args := m.Called(ctx, record)
	return args.Get(0).(models.MatchOutcome), args.Error(1)
}

type MockWriter struct {
	mock.Mock
}

func (m *MockWriter) Create(ctx context.Context, payload *models.Payload) (string, error) {
	args := m.Called(ctx, payload)
	return args.String(0), args.Error(1)
}

func (m *MockWriter) Update(ctx context.Context, key string, payload *models.Payload) (string, error) {
	args := m.Called(ctx, key, payload)
	return args.String(0), args.Error(1)
}

// MockDirectory stands in for the remote patron service.
type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) Authenticate(ctx context.Context, creds directory.Credentials) (string, error) {
	args := m.Called(ctx, creds)
	return args.String(0), args.Error(1)
}

func (m *MockDirectory) Search(ctx context.Context, token, index, value string, opts directory.SearchOptions) (*directory.SearchResult, error) {
	args := m.Called(ctx, token, index, value, opts)
	result, _ := args.Get(0).(*directory.SearchResult)
	return result, args.Error(1)
}

func (m *MockDirectory) Create(ctx context.Context, token string, payload *models.Payload) (string, error) {
	args := m.Called(ctx, token, payload)
	return args.String(0), args.Error(1)
}

func (m *MockDirectory) Update(ctx context.Context, token, key string, payload *models.Payload) (string, error) {
	args := m.Called(ctx, token, key, payload)
	return args.String(0), args.Error(1)
}

type auditLine struct {
	Action  string
	Reason  string
	Barcode string
}

type recordingAuditor struct {
	lines []auditLine
}

func (a *recordingAuditor) Audit(action, reason string, record *models.StudentRecord) error {
	a.lines = append(a.lines, auditLine{Action: action, Reason: reason, Barcode: record.Barcode})
	return nil
}
