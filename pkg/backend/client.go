package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/posync/pkg/config"
	pkgerrors "github.com/angelmondragon/posync/pkg/errors"
)

const (
	defaultTimeout             = 15 * time.Second
	responseBodyReadLimit int64 = 1024
	listBodyReadLimit     int64 = 32 << 20

	// IdempotencyHeader carries the client-generated key for replay-safe writes.
	IdempotencyHeader = "Idempotency-Key"
)

var errBaseURLRequired = errors.New("backend base url is required")

// Client talks to the POS backend REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenSource
	userAgent  string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithToken sets a static bearer token sent on every request.
func WithToken(token string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(token); trimmed != "" {
			c.tokens = staticToken(trimmed)
		}
	}
}

// WithTokenSource replaces the static token with per-request tokens.
func WithTokenSource(src TokenSource) Option {
	return func(c *Client) {
		if src != nil {
			c.tokens = src
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(ua); trimmed != "" {
			c.userAgent = trimmed
		}
	}
}

// NewClient builds a backend client rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}

	client := &Client{
		baseURL:    trimmed,
		userAgent:  "posync-agent",
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return client, nil
}

// NewFromConfig builds a client from the agent configuration. A configured
// device secret takes precedence over the static token.
func NewFromConfig(cfg config.BackendConfig, deviceID string) (*Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	opts := []Option{
		WithHTTPClient(&http.Client{Timeout: timeout}),
		WithToken(cfg.Token),
		WithUserAgent(cfg.UserAgent),
	}
	if cfg.DeviceSecret != "" {
		src, err := NewDeviceTokenSource(cfg.DeviceSecret, deviceID, cfg.DeviceTokenTTL)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithTokenSource(src))
	}
	return NewClient(cfg.BaseURL, opts...)
}

// Request is a single call against the backend.
type Request struct {
	Method         string
	Path           string
	Body           json.RawMessage
	IdempotencyKey string
}

// Response is a successful (2xx) backend reply.
type Response struct {
	StatusCode int
	Body       []byte
}

// Do executes req. Any 2xx status is success; everything else is returned as a
// typed error classified as rejected (4xx) or unavailable (transport, 5xx, 408, 429).
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "backend client not configured")
	}
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request method is required")
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.buildURL(req.Path), body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "build backend request")
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "backend credentials")
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	if req.IdempotencyKey != "" {
		httpReq.Header.Set(IdempotencyHeader, req.IdempotencyKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeBackendUnavailable, err, fmt.Sprintf("%s %s", method, req.Path))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return nil, statusError(method, req.Path, resp.StatusCode, msg)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, listBodyReadLimit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeBackendUnavailable, err, "read backend response")
	}
	return &Response{StatusCode: resp.StatusCode, Body: payload}, nil
}

// StatusError details carry the HTTP status for callers that need it.
type StatusError struct {
	Status int    `json:"status"`
	Body   string `json:"body,omitempty"`
}

func statusError(method, path string, status int, body []byte) error {
	code := pkgerrors.CodeBackendRejected
	if Retryable(status) {
		code = pkgerrors.CodeBackendUnavailable
	}
	snippet := strings.TrimSpace(string(body))
	msg := fmt.Sprintf("%s %s returned %d", method, path, status)
	if snippet != "" {
		msg = msg + ": " + snippet
	}
	return pkgerrors.New(code, msg).WithDetails(StatusError{Status: status, Body: snippet})
}

// Retryable reports whether a response status may succeed on a later attempt.
func Retryable(status int) bool {
	return status >= 500 || status == http.StatusRequestTimeout || status == http.StatusTooManyRequests
}

// StatusOf extracts the HTTP status from an error returned by Do, or 0.
func StatusOf(err error) int {
	typed := pkgerrors.As(err)
	if typed == nil {
		return 0
	}
	if details, ok := typed.Details().(StatusError); ok {
		return details.Status
	}
	return 0
}

// Health probes the backend health endpoint.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.Do(ctx, Request{Method: http.MethodGet, Path: "/health"})
	return err
}

// OfflineTransaction is the body of a transaction push.
type OfflineTransaction struct {
	OfflineID     string          `json:"offlineId"`
	SessionID     string          `json:"sessionId"`
	Items         json.RawMessage `json:"items"`
	Subtotal      json.Number     `json:"subtotal"`
	TaxTotal      json.Number     `json:"taxTotal"`
	DiscountTotal json.Number     `json:"discountTotal"`
	Total         json.Number     `json:"total"`
	Payments      json.RawMessage `json:"payments"`
	CustomerID    *string         `json:"customerId"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// PushTransaction submits a transaction captured offline. The backend
// deduplicates on OfflineID, which is also sent as the idempotency key.
func (c *Client) PushTransaction(ctx context.Context, tx OfflineTransaction) error {
	if strings.TrimSpace(tx.OfflineID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "offlineId is required")
	}
	body, err := json.Marshal(tx)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "marshal offline transaction")
	}
	_, err = c.Do(ctx, Request{
		Method:         http.MethodPost,
		Path:           "/transactions/offline-sync",
		Body:           body,
		IdempotencyKey: tx.OfflineID,
	})
	return err
}

// ListProducts fetches up to limit raw product records.
func (c *Client) ListProducts(ctx context.Context, limit int) ([]map[string]any, error) {
	return c.list(ctx, "/products", limit)
}

// ListCustomers fetches up to limit raw customer records.
func (c *Client) ListCustomers(ctx context.Context, limit int) ([]map[string]any, error) {
	return c.list(ctx, "/customers", limit)
}

func (c *Client) list(ctx context.Context, path string, limit int) ([]map[string]any, error) {
	if limit > 0 {
		path = path + "?limit=" + strconv.Itoa(limit)
	}
	resp, err := c.Do(ctx, Request{Method: http.MethodGet, Path: path})
	if err != nil {
		return nil, err
	}
	records, err := decodeList(resp.Body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeBackendRejected, err, "decode "+path+" response")
	}
	return records, nil
}

// decodeList accepts a bare array or an envelope with the records under "data".
func decodeList(body []byte) ([]map[string]any, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errors.New("empty response body")
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	if trimmed[0] == '[' {
		var records []map[string]any
		if err := dec.Decode(&records); err != nil {
			return nil, err
		}
		return records, nil
	}

	var envelope struct {
		Data []map[string]any `json:"data"`
	}
	if err := dec.Decode(&envelope); err != nil {
		return nil, err
	}
	if envelope.Data == nil {
		return nil, errors.New("response has no data array")
	}
	return envelope.Data, nil
}

func (c *Client) buildURL(path string) string {
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}
