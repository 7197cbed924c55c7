package builder

import (
	"fmt"
	"time"

	"github.com/ThiagoRGoveia/patron-ingestion/internal/models"
	"github.com/ThiagoRGoveia/patron-ingestion/internal/validator"
)

// FieldRules validates and transforms remote field values.
type FieldRules interface {
	Validate(field, value string) (string, error)
	Transform(field, value string, ctx *validator.TransformContext) (string, error)
}

// Builder turns validated records into directory payloads for one client.
type Builder struct {
	client *models.ClientConfig
	rules  FieldRules
	now    func() time.Time
}

func New(client *models.ClientConfig, rules FieldRules) *Builder {
	return &Builder{client: client, rules: rules, now: time.Now}
}

// WithClock fixes the day used for age based transforms.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build produces the create payload when target is nil and the overlay
// payload for target otherwise. Fields whose final value is empty are left
// out so they never blank remote data.
func (b *Builder) Build(record *models.StudentRecord, mode models.BuildMode, target *models.MatchCandidate) (*models.Payload, error) {
	if mode == models.ModeOverlay && (target == nil || target.Key == "") {
		return nil, fmt.Errorf("overlay of row %d needs a target key", record.Row)
	}

	var existing map[string]string
	payload := models.NewPayload()
	if target != nil {
		existing = target.Fields
		if mode == models.ModeOverlay {
			payload.Key = target.Key
		}
	}

	incoming := record.Fields()
	today := b.now()

	for _, name := range b.client.FieldNames() {
		field := b.client.Fields[name]
		if mode == models.ModeOverlay && !field.Overlay {
			continue
		}

		remoteKey := field.RemoteKey(name)
		raw := incoming[field.Source]
		value := raw

		switch mode {
		case models.ModeCreate:
			if value == "" && field.NewDefault != "" {
				value = field.NewDefault
			}
			if field.NewValue != "" {
				value = field.NewValue
			}
		case models.ModeOverlay:
			if field.OverlayDefault != "" && existing[remoteKey] == "" {
				value = field.OverlayDefault
			}
			if field.OverlayValue != "" {
				value = field.OverlayValue
			}
		}

		value, err := b.rules.Transform(name, value, &validator.TransformContext{
			Client:    b.client,
			Record:    record,
			Existing:  existing,
			RemoteKey: remoteKey,
			Mode:      mode,
			Today:     today,
		})
		if err != nil {
			return nil, &models.AppError{Row: record.Row, Field: name, Message: "transform failed", Err: err}
		}

		if !models.IsInputColumn(field.Source) || value != raw {
			if _, err := b.rules.Validate(name, value); err != nil {
				return nil, &models.AppError{Row: record.Row, Field: name, Message: fmt.Sprintf("invalid value %q", value), Err: err}
			}
		}

		if value == "" {
			continue
		}

		switch field.Type {
		case models.FieldTypeResource:
			payload.Fields[name] = models.ResourceRef{Resource: field.Resource, Key: value}
		case models.FieldTypeAddress:
			payload.AddAddress(field.Code, value)
		default:
			payload.Fields[name] = value
		}
	}

	return payload, nil
}
