package ingestion

import (
	"github.com/ThiagoRGoveia/patron-ingestion/internal/database"
	"github.com/ThiagoRGoveia/patron-ingestion/internal/models"
)

// Errors past this count are logged but not kept for the report.
const maxReportedErrors = 100

type Ambiguity struct {
	Row        int
	Barcode    string
	Name       string
	Candidates []models.MatchCandidate
}

// RunStats accumulates the outcome of one run.
type RunStats struct {
	Total         int
	Unchanged     int
	Created       int
	Updated       int
	Ambiguous     int
	Invalid       int
	Failed        int
	Reasons       map[models.MatchReason]int
	Errors        []string
	DroppedErrors int
	Ambiguities   []Ambiguity
}

func NewRunStats() *RunStats {
	return &RunStats{Reasons: map[models.MatchReason]int{}}
}

func (s *RunStats) AddError(err error) {
	if len(s.Errors) >= maxReportedErrors {
		s.DroppedErrors++
		return
	}
	s.Errors = append(s.Errors, err.Error())
}

func (s *RunStats) recordUpdate(reason models.MatchReason) {
	s.Updated++
	s.Reasons[reason]++
}

func (s *RunStats) recordAmbiguous(record *models.StudentRecord, candidates []models.MatchCandidate) {
	s.Ambiguous++
	s.Ambiguities = append(s.Ambiguities, Ambiguity{
		Row:        record.Row,
		Barcode:    record.Barcode,
		Name:       record.FirstName + " " + record.LastName,
		Candidates: candidates,
	})
}

// Status is the run status stored for a completed run.
func (s *RunStats) Status() string {
	if s.Invalid > 0 || s.Failed > 0 || len(s.Errors) > 0 {
		return database.RUN_STATUS_DONE_WITH_ERRORS
	}
	return database.RUN_STATUS_DONE
}

// Apply copies the counters onto a run record.
func (s *RunStats) Apply(run *models.RunRecord) {
	run.Total = s.Total
	run.Unchanged = s.Unchanged
	run.Created = s.Created
	run.Updated = s.Updated
	run.Ambiguous = s.Ambiguous
	run.Invalid = s.Invalid
	run.Failed = s.Failed
	run.Errors = s.Errors
}
