// Package backend is the client of the ingestion REST API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TokenSource supplies the bearer token for each call. An empty token or an
// error fails the call before any request is sent.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed bearer token.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// Observer receives the outcome of every call. outcome is "ok" or an error kind.
type Observer interface {
	ObserveBackendCall(op, outcome string, d time.Duration)
}

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 << 10

// Client is an ingestion API client
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	observer   Observer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithObserver reports call outcomes to o.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// NewClient creates a new ingestion API client
func NewClient(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithTokens returns a copy of the client authorizing calls with ts.
func (c *Client) WithTokens(ts TokenSource) *Client {
	cp := *c
	cp.tokens = ts
	return &cp
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// request performs a JSON request and decodes the response into result.
func (c *Client) request(ctx context.Context, op Operation, method, path string, body any, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	data, err := c.do(ctx, op, method, path, "application/json", reqBody)
	if err != nil {
		return err
	}
	if result == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, result); err != nil {
		return invalidResponse(op, err)
	}
	return nil
}

// do sends one request and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, op Operation, method, path, contentType string, body io.Reader) (data []byte, err error) {
	start := time.Now()
	defer func() {
		c.observe(op, err, time.Since(start))
	}()

	token, err := c.token(ctx)
	if err != nil {
		return nil, noTokenError(op, err)
	}
	if token == "" {
		return nil, noTokenError(op, nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, statusError(op, resp.StatusCode, resp.Header.Get("Content-Type"), raw)
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	data, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(op, fmt.Errorf("read response: %w", err))
	}
	return data, nil
}

func (c *Client) token(ctx context.Context) (string, error) {
	if c.tokens == nil {
		return "", nil
	}
	return c.tokens.Token(ctx)
}

func (c *Client) observe(op Operation, err error, d time.Duration) {
	if c.observer == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = KindOf(err).String()
	}
	c.observer.ObserveBackendCall(string(op), outcome, d)
}

func invalidResponse(op Operation, err error) *Error {
	return &Error{
		Kind:    KindUnknown,
		Op:      op,
		Message: "Invalid response format from API",
		Detail:  err.Error(),
		Err:     err,
	}
}

func missingArray(op Operation, field string) *Error {
	article := "a"
	if strings.ContainsAny(field[:1], "aeiou") {
		article = "an"
	}
	return &Error{
		Kind:    KindUnknown,
		Op:      op,
		Message: fmt.Sprintf("Response does not contain %s %s array", article, field),
	}
}
