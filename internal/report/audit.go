package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ThiagoRGoveia/patron-ingestion/internal/models"
)

// AuditWriter writes one CSV line per terminal row outcome: action,
// match reason, then the normalized record fields.
type AuditWriter struct {
	w      *csv.Writer
	closer io.Closer
}

func NewAuditWriter(w io.Writer) (*AuditWriter, error) {
	a := &AuditWriter{w: csv.NewWriter(w)}
	header := append([]string{"action", "reason"}, models.AuditColumns...)
	if err := a.write(header); err != nil {
		return nil, err
	}
	return a, nil
}

// CreateAuditFile creates path, and its directory, and writes the header.
func CreateAuditFile(path string) (*AuditWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit file %s: %w", path, err)
	}
	a, err := NewAuditWriter(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	a.closer = file
	return a, nil
}

func (a *AuditWriter) Audit(action, reason string, record *models.StudentRecord) error {
	fields := record.Fields()
	line := make([]string, 0, len(models.AuditColumns)+2)
	line = append(line, action, reason)
	for _, column := range models.AuditColumns {
		line = append(line, fields[column])
	}
	return a.write(line)
}

// write flushes every line to the underlying file.
func (a *AuditWriter) write(line []string) error {
	if err := a.w.Write(line); err != nil {
		return err
	}
	a.w.Flush()
	return a.w.Error()
}

func (a *AuditWriter) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}
