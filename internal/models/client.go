package models

import "sort"

type SchemaKind string

const (
	SchemaDistrict  SchemaKind = "district"
	SchemaAlternate SchemaKind = "alternate"
)

type FieldType string

const (
	FieldTypeScalar   FieldType = "scalar"
	FieldTypeResource FieldType = "resource"
	FieldTypeAddress  FieldType = "address"
)

// FieldConfig describes how one remote patron field is produced.
type FieldConfig struct {
	Type           FieldType `yaml:"type"`
	Source         string    `yaml:"source"`
	Resource       string    `yaml:"resource"`
	Code           string    `yaml:"code"`
	Rule           string    `yaml:"rule"`
	Transform      string    `yaml:"transform"`
	Overlay        bool      `yaml:"overlay"`
	NewDefault     string    `yaml:"new_default"`
	OverlayDefault string    `yaml:"overlay_default"`
	NewValue       string    `yaml:"new_value"`
	OverlayValue   string    `yaml:"overlay_value"`
}

// InputConfig overrides the rule or transform for one raw CSV column.
type InputConfig struct {
	Rule      string `yaml:"rule"`
	Transform string `yaml:"transform"`
}

type Contact struct {
	Name string   `yaml:"name"`
	To   []string `yaml:"to"`
	CC   []string `yaml:"cc"`
}

// ClientConfig is one district's configuration. It is loaded once and not
// modified during a run.
type ClientConfig struct {
	ID           string                 `yaml:"id"`
	Namespace    string                 `yaml:"namespace"`
	Name         string                 `yaml:"name"`
	Schema       SchemaKind             `yaml:"schema"`
	AdultAge     int                    `yaml:"adult_age"`
	AdultProfile string                 `yaml:"adult_profile"`
	YouthProfile string                 `yaml:"youth_profile"`
	EmailPattern string                 `yaml:"email_pattern"`
	Contact      Contact                `yaml:"contact"`
	Inputs       map[string]InputConfig `yaml:"inputs"`
	Fields       map[string]FieldConfig `yaml:"fields"`
}

// ExternalID is the client-prefixed student identifier used for the barcode
// and the alternate ID.
func (c *ClientConfig) ExternalID(studentID string) string {
	return c.ID + studentID
}

// ChecksumKey is the checksum store key for one student.
func (c *ClientConfig) ChecksumKey(barcode string) string {
	return c.Namespace + "|" + c.ID + "|" + barcode
}

// FieldNames returns the configured remote field names in lexicographic order.
func (c *ClientConfig) FieldNames() []string {
	names := make([]string, 0, len(c.Fields))
	for name := range c.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RemoteKey is the key under which an existing remote value is found in a
// flattened field map.
func (f FieldConfig) RemoteKey(name string) string {
	if f.Type == FieldTypeAddress {
		return AddressListField + "." + f.Code
	}
	return name
}
