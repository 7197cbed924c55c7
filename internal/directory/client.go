package directory

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/ThiagoRGoveia/patron-ingestion/internal/models"
)

// Search indexes of the patron directory.
const (
	IndexAltID     = "ALT_ID"
	IndexEmail     = "EMAIL"
	IndexID        = "ID"
	IndexBirthDate = "BIRTHDATE"
	IndexStreet    = "STREET"
)

var (
	ErrUnauthorized = errors.New("directory: authentication failed")
	ErrNoKey        = errors.New("directory: response carries no record key")
	ErrDecode       = errors.New("directory: malformed response body")
)

type Credentials struct {
	Login    string
	Password string
}

type SearchOptions struct {
	ResultCap      int
	StartRow       int
	FieldsToReturn []string
}

// SearchResult is one page of a search. TotalResults is the count reported
// by the service and may exceed len(Results).
type SearchResult struct {
	TotalResults int
	Results      []models.MatchCandidate
}

// Client is the patron directory service.
type Client interface {
	Authenticate(ctx context.Context, creds Credentials) (string, error)
	Search(ctx context.Context, token, index, value string, opts SearchOptions) (*SearchResult, error)
	Create(ctx context.Context, token string, payload *models.Payload) (string, error)
	Update(ctx context.Context, token, key string, payload *models.Payload) (string, error)
}

// StatusError is a non-success response from the service.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Retryable reports whether a write that failed with err may succeed on a
// later attempt. Only transport failures, timeouts, throttling and server
// errors qualify. A 2xx answer that could not be read is final, since the
// write may already have been applied.
func Retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrNoKey) || errors.Is(err, ErrDecode) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case 408, 429:
			return true
		}
		return statusErr.StatusCode >= 500
	}
	var transportErr *url.Error
	return errors.As(err, &transportErr)
}
