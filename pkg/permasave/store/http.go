package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPStore talks to the external blob store over its JSON API, authenticating
// every request with a bearer token. It holds no state beyond the credential
// and is safe to share across concurrent operations.
type HTTPStore struct {
	baseURL string
	token   string
	client  *http.Client
}

// HTTPOption configures an HTTPStore.
type HTTPOption func(*HTTPStore)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(s *HTTPStore) {
		s.client = client
	}
}

// WithTimeout sets the per-request timeout on the store's HTTP client.
func WithTimeout(d time.Duration) HTTPOption {
	return func(s *HTTPStore) {
		s.client.Timeout = d
	}
}

// WithRetry wraps the client's transport with exponential backoff for
// idempotent requests. Uploads are never retried here; retry policy for
// writes belongs to the caller.
func WithRetry(maxElapsed time.Duration) HTTPOption {
	return func(s *HTTPStore) {
		next := s.client.Transport
		if next == nil {
			next = http.DefaultTransport
		}
		s.client.Transport = &retryTransport{next: next, maxElapsed: maxElapsed}
	}
}

// NewHTTPStore creates a client for the blob store at baseURL.
// The token is sent as an Authorization bearer credential on every request.
func NewHTTPStore(baseURL, token string, opts ...HTTPOption) *HTTPStore {
	s := &HTTPStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HTTPError is a non-2xx response from the blob store.
type HTTPError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Endpoint != "" {
		return fmt.Sprintf("HTTP %d at %s: %s", e.StatusCode, e.Endpoint, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// uploadRequest is the JSON body for object creation.
type uploadRequest struct {
	Content []byte `json:"content"` // base64-encoded by encoding/json
	Tags    Tags   `json:"tags"`
}

// uploadResponse carries the store-assigned content identifier.
type uploadResponse struct {
	ID string `json:"id"`
}

// queryResponse is the tag-query result envelope.
type queryResponse struct {
	Objects []queryObject `json:"objects"`
}

type queryObject struct {
	ID   string `json:"id"`
	Tags Tags   `json:"tags"`
}

// Upload implements ContentStore.
func (s *HTTPStore) Upload(ctx context.Context, body []byte, tags Tags) (string, error) {
	reqBody, err := json.Marshal(uploadRequest{Content: body, Tags: tags})
	if err != nil {
		return "", fmt.Errorf("marshal upload request: %w", err)
	}

	endpoint := s.baseURL + "/v1/objects"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if result.ID == "" {
		return "", fmt.Errorf("store returned empty object id")
	}
	return result.ID, nil
}

// Query implements ContentStore.
func (s *HTTPStore) Query(ctx context.Context, filter Tags) ([]Entry, error) {
	params := url.Values{}
	for name, value := range filter {
		params.Set(name, value)
	}

	endpoint := s.baseURL + "/v1/objects"
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create query request: %w", err)
	}

	resp, err := s.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode query response: %w", err)
	}

	entries := make([]Entry, 0, len(result.Objects))
	for _, obj := range result.Objects {
		entries = append(entries, Entry{ID: obj.ID, Tags: obj.Tags})
	}
	return entries, nil
}

// Fetch implements ContentStore.
func (s *HTTPStore) Fetch(ctx context.Context, id string) ([]byte, error) {
	endpoint := s.baseURL + "/v1/objects/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create fetch request: %w", err)
	}

	resp, err := s.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read object body: %w", err)
	}
	return body, nil
}

// do sends the request with the bearer credential attached and converts
// non-2xx responses into errors. 404 maps to ErrNotFound so callers can
// distinguish absence from transport failure.
func (s *HTTPStore) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("store request failed: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, fmt.Errorf("%s: %w", req.URL.Path, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Message:    readErrorMessage(resp.Body),
			Endpoint:   req.URL.Path,
		}
	}
	return resp, nil
}

// readErrorMessage extracts a human-readable message from an error response.
// The store answers with {"error": "..."}; anything else is passed through
// verbatim, truncated to keep log lines sane.
func readErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return "no response body"
	}

	var envelope struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Error != "" {
		return envelope.Error
	}
	return strings.TrimSpace(string(data))
}
