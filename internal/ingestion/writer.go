package ingestion

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ThiagoRGoveia/patron-ingestion/internal/directory"
	"github.com/ThiagoRGoveia/patron-ingestion/internal/models"
)

type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
}

// RetryWriter sends creates and updates with bounded exponential backoff.
// Client errors that cannot succeed on retry stop immediately.
type RetryWriter struct {
	client directory.Client
	token  string
	config RetryConfig
	logger *slog.Logger
}

func NewRetryWriter(client directory.Client, token string, cfg RetryConfig, logger *slog.Logger) *RetryWriter {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryWriter{client: client, token: token, config: cfg, logger: logger}
}

func (w *RetryWriter) Create(ctx context.Context, payload *models.Payload) (string, error) {
	return w.retry(ctx, "create", func() (string, error) {
		return w.client.Create(ctx, w.token, payload)
	})
}

func (w *RetryWriter) Update(ctx context.Context, key string, payload *models.Payload) (string, error) {
	return w.retry(ctx, "update", func() (string, error) {
		return w.client.Update(ctx, w.token, key, payload)
	})
}

func (w *RetryWriter) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.config.InitialInterval
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(w.config.MaxAttempts-1)), ctx)
}

func (w *RetryWriter) retry(ctx context.Context, op string, call func() (string, error)) (string, error) {
	var key string
	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		k, err := call()
		if err != nil {
			if !directory.Retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		key = k
		return nil
	}, w.policy(ctx), func(err error, wait time.Duration) {
		w.logger.Warn("directory write failed, retrying", "op", op, "attempt", attempt, "wait", wait, "error", err)
	})
	return key, err
}
