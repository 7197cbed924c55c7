package validator

import (
	"fmt"
	"strings"
	"time"

	"github.com/ThiagoRGoveia/patron-ingestion/internal/models"
)

// Built-in handling per raw column. Client inputs replace the rule and add
// transforms after these ones.
var defaultInputs = map[string]models.InputConfig{
	models.FieldStudentID:  {Rule: "required,max=20", Transform: "trim"},
	models.FieldFirstName:  {Rule: "required,max=40", Transform: "trim"},
	models.FieldMiddleName: {Rule: "max=40", Transform: "trim"},
	models.FieldLastName:   {Rule: "required,max=40", Transform: "trim"},
	models.FieldStreet:     {Rule: "required,max=128", Transform: "trim"},
	models.FieldCity:       {Rule: "required,max=64", Transform: "trim"},
	models.FieldState:      {Rule: "required,state", Transform: "trim,upper"},
	models.FieldPostalCode: {Rule: "required,postal", Transform: "postal"},
	models.FieldBirthDate:  {Rule: "required,date", Transform: "trim,date"},
	models.FieldEmail:      {Rule: "email", Transform: "trim"},
}

type pipeline struct {
	transforms []Transform
	rule       Rule
}

func (p pipeline) apply(value string, ctx *TransformContext) (string, error) {
	var err error
	for _, t := range p.transforms {
		if value, err = t(value, ctx); err != nil {
			return "", err
		}
	}
	if p.rule != nil {
		if err := p.rule(value); err != nil {
			return "", err
		}
	}
	return value, nil
}

// Registry holds the rules and transforms of one client, resolved once when
// the client is loaded.
type Registry struct {
	client *models.ClientConfig
	inputs map[string]pipeline
	rules  map[string]Rule
	fields map[string][]Transform
}

// NewRegistry resolves every rule and transform the client names. Unknown
// names fail here instead of during the run.
func NewRegistry(client *models.ClientConfig) (*Registry, error) {
	named, err := namedTransforms(client)
	if err != nil {
		return nil, err
	}

	r := &Registry{
		client: client,
		inputs: make(map[string]pipeline, len(models.InputColumns)),
		rules:  make(map[string]Rule, len(client.Fields)),
		fields: make(map[string][]Transform, len(client.Fields)),
	}

	for _, column := range models.InputColumns {
		base := defaultInputs[column]
		override := client.Inputs[column]

		ruleList := base.Rule
		if override.Rule != "" {
			ruleList = override.Rule
		}
		rule, err := ParseRule(ruleList)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", column, err)
		}

		transforms, err := resolveTransforms(named, base.Transform, override.Transform)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", column, err)
		}
		r.inputs[column] = pipeline{transforms: transforms, rule: rule}
	}

	for name := range client.Inputs {
		if !models.IsInputColumn(name) {
			return nil, fmt.Errorf("input %s: not a known column", name)
		}
	}

	for _, name := range client.FieldNames() {
		field := client.Fields[name]
		rule, err := ParseRule(field.Rule)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		if rule != nil {
			r.rules[name] = rule
		}

		transforms, err := resolveTransforms(named, field.Transform)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		if len(transforms) > 0 {
			r.fields[name] = transforms
		}
	}

	return r, nil
}

func resolveTransforms(named map[string]Transform, lists ...string) ([]Transform, error) {
	var transforms []Transform
	for _, list := range lists {
		for _, name := range strings.Split(list, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			t, ok := named[name]
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnknownTransform, name)
			}
			transforms = append(transforms, t)
		}
	}
	return transforms, nil
}

func (r *Registry) Client() *models.ClientConfig {
	return r.client
}

// Validate checks value against the rule configured for a remote field.
func (r *Registry) Validate(field, value string) (string, error) {
	rule, ok := r.rules[field]
	if !ok {
		return value, nil
	}
	if err := rule(value); err != nil {
		return "", err
	}
	return value, nil
}

// Transform runs the transforms configured for a remote field.
func (r *Registry) Transform(field, value string, ctx *TransformContext) (string, error) {
	var err error
	for _, t := range r.fields[field] {
		if value, err = t(value, ctx); err != nil {
			return "", fmt.Errorf("transform %s: %w", field, err)
		}
	}
	return value, nil
}

// ValidateRecord normalizes one raw row. Every failing column produces its
// own error and no record is returned when any column fails.
func (r *Registry) ValidateRecord(raw map[string]string, row int) (*models.StudentRecord, []error) {
	ctx := &TransformContext{Client: r.client}
	clean := make(map[string]string, len(models.InputColumns))
	var errs []error

	for _, column := range models.InputColumns {
		value := raw[column]
		if column == models.FieldEmail && strings.EqualFold(strings.TrimSpace(value), "null") {
			value = ""
		}

		value, err := r.inputs[column].apply(value, ctx)
		if err != nil {
			errs = append(errs, &models.AppError{
				Row:     row,
				Field:   column,
				Message: fmt.Sprintf("invalid value %q", raw[column]),
				Err:     err,
			})
			continue
		}
		clean[column] = value
	}

	if len(errs) > 0 {
		return nil, errs
	}

	record := &models.StudentRecord{
		Row:        row,
		StudentID:  clean[models.FieldStudentID],
		FirstName:  clean[models.FieldFirstName],
		MiddleName: clean[models.FieldMiddleName],
		LastName:   clean[models.FieldLastName],
		Street:     clean[models.FieldStreet],
		City:       clean[models.FieldCity],
		State:      clean[models.FieldState],
		PostalCode: clean[models.FieldPostalCode],
	}
	record.Barcode = r.client.ExternalID(record.StudentID)
	record.AlternateID = r.client.ExternalID(record.StudentID)

	if dob := clean[models.FieldBirthDate]; dob != "" {
		birthDate, err := time.Parse(models.DateLayout, dob)
		if err != nil {
			return nil, []error{&models.AppError{Row: row, Field: models.FieldBirthDate, Message: "invalid date", Err: err}}
		}
		record.BirthDate = birthDate
	}
	if email := clean[models.FieldEmail]; email != "" {
		record.Email = &email
	}

	return record, nil
}
