package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/ThiagoRGoveia/patron-ingestion/internal/models"
)

var ErrInvalidClient = errors.New("config: invalid client configuration")

const defaultAdultAge = 18

// LoadClient reads and validates one client YAML file. Unknown keys are
// rejected.
func LoadClient(path string) (*models.ClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read client config %s: %w", path, err)
	}
	return ParseClient(data)
}

func ParseClient(data []byte) (*models.ClientConfig, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var client models.ClientConfig
	if err := decoder.Decode(&client); err != nil {
		return nil, fmt.Errorf("failed to parse client config: %w", err)
	}

	if client.AdultAge == 0 {
		client.AdultAge = defaultAdultAge
	}
	if client.Schema == "" {
		client.Schema = models.SchemaDistrict
	}

	if err := validateClient(&client); err != nil {
		return nil, err
	}
	return &client, nil
}

func validateClient(client *models.ClientConfig) error {
	if client.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidClient)
	}
	if client.Namespace == "" {
		return fmt.Errorf("%w: namespace is required", ErrInvalidClient)
	}
	switch client.Schema {
	case models.SchemaDistrict, models.SchemaAlternate:
	default:
		return fmt.Errorf("%w: unknown schema %q", ErrInvalidClient, client.Schema)
	}
	if client.AdultAge < 0 {
		return fmt.Errorf("%w: adult_age must be positive", ErrInvalidClient)
	}
	if client.EmailPattern != "" {
		if _, err := regexp.Compile(client.EmailPattern); err != nil {
			return fmt.Errorf("%w: email_pattern: %v", ErrInvalidClient, err)
		}
	}
	if len(client.Fields) == 0 {
		return fmt.Errorf("%w: no fields configured", ErrInvalidClient)
	}

	for _, name := range client.FieldNames() {
		field := client.Fields[name]
		if field.Type == "" {
			field.Type = models.FieldTypeScalar
			client.Fields[name] = field
		}
		switch field.Type {
		case models.FieldTypeScalar:
		case models.FieldTypeResource:
			if field.Resource == "" {
				return fmt.Errorf("%w: field %s: resource fields need a resource path", ErrInvalidClient, name)
			}
		case models.FieldTypeAddress:
			if field.Code == "" {
				return fmt.Errorf("%w: field %s: address fields need a code", ErrInvalidClient, name)
			}
		default:
			return fmt.Errorf("%w: field %s: unknown type %q", ErrInvalidClient, name, field.Type)
		}
	}
	return nil
}
