package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// AppError attributes a failure to the row, field or match strategy that
// produced it.
type AppError struct {
	Row      int
	Field    string
	Strategy string
	Message  string
	Err      error
	Record   *StudentRecord
}

func (e *AppError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Row %d", e.Row)
	if e.Field != "" {
		fmt.Fprintf(&b, " [%s]", e.Field)
	}
	if e.Strategy != "" {
		fmt.Fprintf(&b, " (%s)", e.Strategy)
	}
	fmt.Fprintf(&b, ": %s", e.Message)
	if e.Err != nil {
		fmt.Fprintf(&b, " - %v", e.Err)
	}
	if e.Record != nil {
		recordJSON, err := json.Marshal(e.Record)
		if err != nil {
			b.WriteString(" - Record: failed to marshal record to JSON")
		} else {
			fmt.Fprintf(&b, " - Record: %s", recordJSON)
		}
	}
	return b.String()
}

func (e *AppError) Unwrap() error {
	return e.Err
}
