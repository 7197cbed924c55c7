package models

import (
	"fmt"
	"time"
)

// Normalized field names. Raw CSV columns use the same names, the rest are
// derived during validation.
const (
	FieldStudentID   = "student_id"
	FieldFirstName   = "first_name"
	FieldMiddleName  = "middle_name"
	FieldLastName    = "last_name"
	FieldStreet      = "street"
	FieldCity        = "city"
	FieldState       = "state"
	FieldPostalCode  = "zip"
	FieldBirthDate   = "birth_date"
	FieldEmail       = "email"
	FieldBarcode     = "barcode"
	FieldAlternateID = "alternate_id"
	FieldCityState   = "city_state"
)

const DateLayout = "2006-01-02"

// StudentRecord is one validated CSV row.
type StudentRecord struct {
	Row         int       `json:"row"`
	StudentID   string    `json:"student_id"`
	FirstName   string    `json:"first_name"`
	MiddleName  string    `json:"middle_name,omitempty"`
	LastName    string    `json:"last_name"`
	Street      string    `json:"street"`
	City        string    `json:"city"`
	State       string    `json:"state"`
	PostalCode  string    `json:"zip"`
	BirthDate   time.Time `json:"birth_date"`
	Email       *string   `json:"email,omitempty"`
	Barcode     string    `json:"barcode"`
	AlternateID string    `json:"alternate_id"`
}

// HasEmail reports whether the record carries a usable email.
func (r *StudentRecord) HasEmail() bool {
	return r.Email != nil && *r.Email != ""
}

// CityState renders the combined city/state address line.
func (r *StudentRecord) CityState() string {
	switch {
	case r.City == "":
		return r.State
	case r.State == "":
		return r.City
	}
	return fmt.Sprintf("%s, %s", r.City, r.State)
}

// Fields returns the normalized field map. It is the input to the record
// digest, the audit line and the payload builder. An absent email is left
// out of the map instead of being represented by a placeholder.
func (r *StudentRecord) Fields() map[string]string {
	fields := map[string]string{
		FieldStudentID:   r.StudentID,
		FieldFirstName:   r.FirstName,
		FieldMiddleName:  r.MiddleName,
		FieldLastName:    r.LastName,
		FieldStreet:      r.Street,
		FieldCity:        r.City,
		FieldState:       r.State,
		FieldPostalCode:  r.PostalCode,
		FieldCityState:   r.CityState(),
		FieldBarcode:     r.Barcode,
		FieldAlternateID: r.AlternateID,
	}
	if !r.BirthDate.IsZero() {
		fields[FieldBirthDate] = r.BirthDate.Format(DateLayout)
	}
	if r.HasEmail() {
		fields[FieldEmail] = *r.Email
	}
	return fields
}

// AuditColumns is the stable column order used for audit lines.
var AuditColumns = []string{
	FieldBarcode,
	FieldAlternateID,
	FieldStudentID,
	FieldLastName,
	FieldFirstName,
	FieldMiddleName,
	FieldStreet,
	FieldCity,
	FieldState,
	FieldPostalCode,
	FieldBirthDate,
	FieldEmail,
}

// InputColumns are the raw columns every schema provides.
var InputColumns = []string{
	FieldStudentID,
	FieldFirstName,
	FieldMiddleName,
	FieldLastName,
	FieldStreet,
	FieldCity,
	FieldState,
	FieldPostalCode,
	FieldBirthDate,
	FieldEmail,
}

// IsInputColumn reports whether name is a raw CSV column.
func IsInputColumn(name string) bool {
	for _, column := range InputColumns {
		if column == name {
			return true
		}
	}
	return false
}
