package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseURL           string
	DirectoryBaseURL      string
	DirectoryClientID     string
	DirectoryLogin        string
	DirectoryPassword     string
	DirectoryAppID        string
	DirectoryTimeout      time.Duration
	WriteMaxAttempts      int
	WriteBackoff          time.Duration
	MatchResultCap        int
	LogDir                string
	SMTPHost              string
	SMTPPort              int
	SMTPFrom              string
	SMTPUser              string
	SMTPPassword          string
	ChecksumRetentionDays int
	APIPort               int
}

func New() (*Config, error) {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	cfg := &Config{
		DatabaseURL:           databaseURL,
		DirectoryBaseURL:      os.Getenv("DIRECTORY_BASE_URL"),
		DirectoryClientID:     os.Getenv("DIRECTORY_CLIENT_ID"),
		DirectoryLogin:        os.Getenv("DIRECTORY_LOGIN"),
		DirectoryPassword:     os.Getenv("DIRECTORY_PASSWORD"),
		DirectoryAppID:        getEnv("DIRECTORY_APP_ID", "patron-ingest"),
		LogDir:                getEnv("LOG_DIR", "logs"),
		SMTPHost:              os.Getenv("SMTP_HOST"),
		SMTPFrom:              getEnv("SMTP_FROM", "patron-ingest@localhost"),
		SMTPUser:              os.Getenv("SMTP_USER"),
		SMTPPassword:          os.Getenv("SMTP_PASSWORD"),
		WriteMaxAttempts:      3,
		MatchResultCap:        20,
		SMTPPort:              25,
		ChecksumRetentionDays: 365,
		APIPort:               8080,
	}

	timeoutSeconds, err := getEnvAsInt("DIRECTORY_TIMEOUT_SECONDS", 30)
	if err != nil {
		return nil, err
	}
	cfg.DirectoryTimeout = time.Duration(timeoutSeconds) * time.Second

	cfg.WriteMaxAttempts, err = getEnvAsInt("WRITE_MAX_ATTEMPTS", cfg.WriteMaxAttempts)
	if err != nil {
		return nil, err
	}
	if cfg.WriteMaxAttempts < 1 {
		return nil, fmt.Errorf("invalid value for WRITE_MAX_ATTEMPTS: must be at least 1, got %d", cfg.WriteMaxAttempts)
	}

	backoffMillis, err := getEnvAsInt("WRITE_BACKOFF_MS", 500)
	if err != nil {
		return nil, err
	}
	cfg.WriteBackoff = time.Duration(backoffMillis) * time.Millisecond

	cfg.MatchResultCap, err = getEnvAsInt("MATCH_RESULT_CAP", cfg.MatchResultCap)
	if err != nil {
		return nil, err
	}

	cfg.SMTPPort, err = getEnvAsInt("SMTP_PORT", cfg.SMTPPort)
	if err != nil {
		return nil, err
	}

	cfg.ChecksumRetentionDays, err = getEnvAsInt("CHECKSUM_RETENTION_DAYS", cfg.ChecksumRetentionDays)
	if err != nil {
		return nil, err
	}

	cfg.APIPort, err = getEnvAsInt("API_PORT", cfg.APIPort)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// RequireDirectory checks the settings a run needs before it contacts the
// directory service.
func (c *Config) RequireDirectory() error {
	missing := []string{}
	if c.DirectoryBaseURL == "" {
		missing = append(missing, "DIRECTORY_BASE_URL")
	}
	if c.DirectoryClientID == "" {
		missing = append(missing, "DIRECTORY_CLIENT_ID")
	}
	if c.DirectoryLogin == "" {
		missing = append(missing, "DIRECTORY_LOGIN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing directory settings: %v", missing)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: expected an integer, got '%s'", key, valueStr)
	}

	return value, nil
}
