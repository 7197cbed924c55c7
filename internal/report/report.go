package report

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/ThiagoRGoveia/patron-ingestion/internal/ingestion"
	"github.com/ThiagoRGoveia/patron-ingestion/internal/models"
)

const timeLayout = "2006-01-02 15:04:05 MST"

var reasonOrder = []models.MatchReason{
	models.ReasonAltID,
	models.ReasonEmail,
	models.ReasonID,
	models.ReasonDOBStreet,
}

// Subject is the mail subject for a finished run.
func Subject(client *models.ClientConfig, run *models.RunRecord) string {
	return fmt.Sprintf("Patron ingest %s (%s): %s", client.Name, client.ID, run.Status)
}

// Render writes the human readable summary of a run.
func Render(w io.Writer, client *models.ClientConfig, run *models.RunRecord, stats *ingestion.RunStats) error {
	b := bufio.NewWriter(w)

	fmt.Fprintf(b, "Patron ingest report for %s (%s)\n", client.Name, client.ID)
	fmt.Fprintf(b, "Run:      %s\n", run.ID)
	fmt.Fprintf(b, "File:     %s (%s)\n", run.FileName, run.FileChecksum)
	fmt.Fprintf(b, "Started:  %s\n", run.StartedAt.Format(timeLayout))
	if run.FinishedAt != nil {
		fmt.Fprintf(b, "Finished: %s\n", run.FinishedAt.Format(timeLayout))
	}
	fmt.Fprintf(b, "Status:   %s\n\n", run.Status)

	counters := []struct {
		label string
		value int
	}{
		{"Records", stats.Total},
		{"Unchanged", stats.Unchanged},
		{"Updated", stats.Updated},
		{"Created", stats.Created},
		{"Ambiguous", stats.Ambiguous},
		{"Invalid", stats.Invalid},
		{"Failed", stats.Failed},
	}
	for _, c := range counters {
		fmt.Fprintf(b, "%-10s %6d\n", c.label+":", c.value)
	}

	if stats.Updated > 0 {
		b.WriteString("\nUpdates by match reason:\n")
		for _, reason := range reasonOrder {
			fmt.Fprintf(b, "  %-16s %6d\n", reason, stats.Reasons[reason])
		}
	}

	if len(stats.Ambiguities) > 0 {
		b.WriteString("\nAmbiguous records (resolve by hand):\n")
		for _, a := range stats.Ambiguities {
			fmt.Fprintf(b, "  Row %d: %s %s\n", a.Row, a.Barcode, a.Name)
			for _, candidate := range a.Candidates {
				fmt.Fprintf(b, "    candidate %s%s\n", candidate.Key, describe(candidate))
			}
		}
	}

	if len(stats.Errors) > 0 {
		b.WriteString("\nErrors:\n")
		for _, e := range stats.Errors {
			fmt.Fprintf(b, "  %s\n", e)
		}
		if stats.DroppedErrors > 0 {
			fmt.Fprintf(b, "  ... %d more errors in the run log\n", stats.DroppedErrors)
		}
	}

	return b.Flush()
}

func describe(candidate models.MatchCandidate) string {
	var parts []string
	for _, name := range []string{"barcode", "firstName", "lastName"} {
		if value := candidate.Fields[name]; value != "" {
			parts = append(parts, value)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, " ") + ")"
}
