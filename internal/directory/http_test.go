package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ThiagoRGoveia/patron-ingestion/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewHTTPClient(server.URL+"/", "PATRON_SYNC", "patron-ingest", 5*time.Second)
}

func TestAuthenticate(t *testing.T) {
	t.Run("Expect: session token is returned", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/user/staff/login", r.URL.Path)
			assert.Equal(t, "PATRON_SYNC", r.Header.Get("x-sirs-clientID"))

			var body loginRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "sync", body.Login)

			_ = json.NewEncoder(w).Encode(loginResponse{SessionToken: "tok-1"})
		})

		token, err := client.Authenticate(context.Background(), Credentials{Login: "sync", Password: "secret"})
		require.NoError(t, err)
		assert.Equal(t, "tok-1", token)
	})

	t.Run("Expect: rejected credentials are ErrUnauthorized", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"messageList":[{"code":"unrecognizedLogin"}]}`, http.StatusUnauthorized)
		})

		_, err := client.Authenticate(context.Background(), Credentials{Login: "sync"})
		assert.ErrorIs(t, err, ErrUnauthorized)
	})
}

func TestSearch(t *testing.T) {
	t.Run("Expect: query parameters and flattened results", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/user/patron/search", r.URL.Path)
			assert.Equal(t, "EMAIL:ada@district.org", r.URL.Query().Get("q"))
			assert.Equal(t, "2", r.URL.Query().Get("ct"))
			assert.Equal(t, "barcode,address1", r.URL.Query().Get("includeFields"))
			assert.Equal(t, "tok-1", r.Header.Get("x-sirs-sessionToken"))

			_, _ = w.Write([]byte(`{
				"totalResults": 3,
				"result": [
					{"resource": "/user/patron", "key": "11", "fields": {"barcode": "2100011",
						"address1": [{"resource": "/user/patron/address1", "fields": {"code": {"resource": "/policy/patronAddress1", "key": "EMAIL"}, "data": "ada@district.org"}}]}},
					{"resource": "/user/patron", "key": "12", "fields": {"barcode": "2100012"}}
				]
			}`))
		})

		result, err := client.Search(context.Background(), "tok-1", IndexEmail, "ada@district.org",
			SearchOptions{ResultCap: 2, FieldsToReturn: []string{"barcode", "address1"}})
		require.NoError(t, err)

		assert.Equal(t, 3, result.TotalResults)
		require.Len(t, result.Results, 2)
		assert.Equal(t, "11", result.Results[0].Key)
		assert.Equal(t, "ada@district.org", result.Results[0].Fields["address1.EMAIL"])
	})

	t.Run("Expect: non-success status is a StatusError", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "index offline", http.StatusServiceUnavailable)
		})

		_, err := client.Search(context.Background(), "tok-1", IndexAltID, "x", SearchOptions{})
		var statusErr *StatusError
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
		assert.Equal(t, "index offline", statusErr.Body)
	})
}

func TestWrites(t *testing.T) {
	payload := models.NewPayload()
	payload.Fields["firstName"] = "Ada"

	t.Run("Expect: create posts the payload and returns the key", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/user/patron", r.URL.Path)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

			var body models.Payload
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "Ada", body.Fields["firstName"])
			assert.Empty(t, body.Key)

			_, _ = w.Write([]byte(`{"resource": "/user/patron", "key": "501"}`))
		})

		key, err := client.Create(context.Background(), "tok-1", payload)
		require.NoError(t, err)
		assert.Equal(t, "501", key)
	})

	t.Run("Expect: create without key in response fails", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{}`))
		})

		_, err := client.Create(context.Background(), "tok-1", payload)
		assert.ErrorIs(t, err, ErrNoKey)
	})

	t.Run("Expect: update puts to the keyed path", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPut, r.Method)
			assert.Equal(t, "/user/patron/key/123456", r.URL.Path)
			w.WriteHeader(http.StatusOK)
		})

		key, err := client.Update(context.Background(), "tok-1", "123456", payload)
		require.NoError(t, err)
		assert.Equal(t, "123456", key)
	})
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(&StatusError{StatusCode: http.StatusBadGateway}))
	assert.True(t, Retryable(&StatusError{StatusCode: http.StatusTooManyRequests}))
	assert.False(t, Retryable(&StatusError{StatusCode: http.StatusBadRequest}))
	assert.True(t, Retryable(&url.Error{Op: "Post", URL: "http://ils/user/patron", Err: errors.New("connection reset")}))
	assert.False(t, Retryable(context.Canceled))
	assert.False(t, Retryable(ErrNoKey))
	assert.False(t, Retryable(fmt.Errorf("%w: POST /user/patron: unexpected EOF", ErrDecode)))
	assert.False(t, Retryable(errors.New("failed to marshal body")))
}
