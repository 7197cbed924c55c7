package parser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ThiagoRGoveia/patron-ingestion/internal/models"
)

var (
	ErrSchemaMismatch = errors.New("parser: header does not match schema")
	ErrEmptyFile      = errors.New("parser: file has no header")
)

// Schema is the column order of one export layout.
type Schema struct {
	Kind    models.SchemaKind
	Columns []string
}

var (
	DistrictSchema = Schema{
		Kind: models.SchemaDistrict,
		Columns: []string{
			models.FieldStudentID,
			models.FieldLastName,
			models.FieldFirstName,
			models.FieldMiddleName,
			models.FieldStreet,
			models.FieldCity,
			models.FieldState,
			models.FieldPostalCode,
			models.FieldBirthDate,
			models.FieldEmail,
		},
	}
	AlternateSchema = Schema{
		Kind: models.SchemaAlternate,
		Columns: []string{
			models.FieldStudentID,
			models.FieldFirstName,
			models.FieldMiddleName,
			models.FieldLastName,
			models.FieldBirthDate,
			models.FieldStreet,
			models.FieldCity,
			models.FieldState,
			models.FieldPostalCode,
			models.FieldEmail,
		},
	}
)

func SchemaFor(kind models.SchemaKind) (Schema, error) {
	switch kind {
	case models.SchemaDistrict:
		return DistrictSchema, nil
	case models.SchemaAlternate:
		return AlternateSchema, nil
	}
	return Schema{}, fmt.Errorf("unknown schema kind %q", kind)
}

// RowError is a data row that could not be split into the schema's columns.
type RowError struct {
	Row int
	Err error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// Reader yields data rows keyed by column name.
type Reader struct {
	csv      *csv.Reader
	schema   Schema
	row      int
	Encoding string
}

// Open reads the whole file, decodes it and checks the header against the
// schema. A header mismatch is returned as ErrSchemaMismatch.
func Open(path string, schema Schema) (*Reader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return NewReader(data, schema)
}

func NewReader(data []byte, schema Schema) (*Reader, error) {
	decoded, encoding, err := decode(data)
	if err != nil {
		return nil, err
	}
	if encoding != "utf-8" {
		slog.Info("decoded data file", "encoding", encoding)
	}

	reader := csv.NewReader(bytes.NewReader(decoded))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, ErrEmptyFile
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if err := checkHeader(header, schema); err != nil {
		return nil, err
	}

	return &Reader{csv: reader, schema: schema, Encoding: encoding}, nil
}

func checkHeader(header []string, schema Schema) error {
	if len(header) != len(schema.Columns) {
		return fmt.Errorf("%w: expected %d columns, got %d", ErrSchemaMismatch, len(schema.Columns), len(header))
	}
	for i, column := range schema.Columns {
		if normalizeHeader(header[i]) != column {
			return fmt.Errorf("%w: column %d is %q, expected %q", ErrSchemaMismatch, i+1, header[i], column)
		}
	}
	return nil
}

func normalizeHeader(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(name)
}

// Next returns the next data row and its 1-based row number. It returns
// io.EOF at the end of the file. A malformed row is returned as a *RowError
// and reading may continue.
func (r *Reader) Next() (map[string]string, int, error) {
	for {
		record, err := r.csv.Read()
		if err == io.EOF {
			return nil, r.row, io.EOF
		}
		r.row++
		if err != nil {
			return nil, r.row, &RowError{Row: r.row, Err: err}
		}
		if isBlank(record) {
			continue
		}
		if len(record) != len(r.schema.Columns) {
			return nil, r.row, &RowError{
				Row: r.row,
				Err: fmt.Errorf("expected %d columns, got %d", len(r.schema.Columns), len(record)),
			}
		}

		row := make(map[string]string, len(record))
		for i, column := range r.schema.Columns {
			row[column] = record[i]
		}
		return row, r.row, nil
	}
}

func isBlank(record []string) bool {
	for _, value := range record {
		if strings.TrimSpace(value) != "" {
			return false
		}
	}
	return true
}
