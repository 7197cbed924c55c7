package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ThiagoRGoveia/patron-ingestion/internal/models"
)

const maxErrorBody = 512

// HTTPClient talks JSON to the ILS web services.
type HTTPClient struct {
	baseURL  string
	clientID string
	appID    string
	http     *http.Client
}

func NewHTTPClient(baseURL, clientID, appID string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		clientID: clientID,
		appID:    appID,
		http:     &http.Client{Timeout: timeout},
	}
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type loginResponse struct {
	SessionToken string `json:"sessionToken"`
}

type remoteRecord struct {
	Resource string                     `json:"resource"`
	Key      string                     `json:"key"`
	Fields   map[string]json.RawMessage `json:"fields"`
}

type searchResponse struct {
	TotalResults int            `json:"totalResults"`
	Result       []remoteRecord `json:"result"`
}

func (c *HTTPClient) Authenticate(ctx context.Context, creds Credentials) (string, error) {
	var resp loginResponse
	err := c.do(ctx, http.MethodPost, "/user/staff/login", "", nil, loginRequest{Login: creds.Login, Password: creds.Password}, &resp)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && (statusErr.StatusCode == http.StatusUnauthorized || statusErr.StatusCode == http.StatusForbidden) {
			return "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		return "", err
	}
	if resp.SessionToken == "" {
		return "", fmt.Errorf("%w: no session token returned", ErrUnauthorized)
	}
	return resp.SessionToken, nil
}

func (c *HTTPClient) Search(ctx context.Context, token, index, value string, opts SearchOptions) (*SearchResult, error) {
	query := url.Values{}
	query.Set("q", index+":"+value)
	if opts.StartRow > 0 {
		query.Set("rw", strconv.Itoa(opts.StartRow))
	}
	if opts.ResultCap > 0 {
		query.Set("ct", strconv.Itoa(opts.ResultCap))
	}
	if len(opts.FieldsToReturn) > 0 {
		query.Set("includeFields", strings.Join(opts.FieldsToReturn, ","))
	}

	var resp searchResponse
	if err := c.do(ctx, http.MethodGet, "/user/patron/search", token, query, nil, &resp); err != nil {
		return nil, err
	}

	result := &SearchResult{TotalResults: resp.TotalResults}
	for _, record := range resp.Result {
		result.Results = append(result.Results, models.MatchCandidate{
			Key:    record.Key,
			Fields: models.FlattenFields(record.Fields),
		})
	}
	return result, nil
}

func (c *HTTPClient) Create(ctx context.Context, token string, payload *models.Payload) (string, error) {
	var resp remoteRecord
	if err := c.do(ctx, http.MethodPost, "/user/patron", token, nil, payload, &resp); err != nil {
		return "", err
	}
	if resp.Key == "" {
		return "", ErrNoKey
	}
	return resp.Key, nil
}

func (c *HTTPClient) Update(ctx context.Context, token, key string, payload *models.Payload) (string, error) {
	var resp remoteRecord
	path := "/user/patron/key/" + url.PathEscape(key)
	if err := c.do(ctx, http.MethodPut, path, token, nil, payload, &resp); err != nil {
		return "", err
	}
	if resp.Key == "" {
		return key, nil
	}
	return resp.Key, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path, token string, query url.Values, body, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal %s %s body: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to build %s %s request: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-sirs-clientID", c.clientID)
	req.Header.Set("SD-Originating-App-Id", c.appID)
	if token != "" {
		req.Header.Set("x-sirs-sessionToken", token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("%w: %s %s: %v", ErrDecode, method, path, err)
	}
	return nil
}
