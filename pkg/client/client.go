// Package client talks to the waypoint HTTP API. Client implements the
// engine's SessionAPI and Catalog, the catalog Store and the offline
// queue's Applier, so a player can run the engine against a remote server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yosida95/uritemplate/v3"

	"github.com/waypointgames/waypoint/pkg/session"
)

// Endpoint templates, relative to the base URL.
var (
	pagesTemplate    = uritemplate.MustNew("/api/v1/games/{gameID}/pages{?chapterId}")
	batchTemplate    = uritemplate.MustNew("/api/v1/games/{gameID}/pages/batch")
	currentTemplate  = uritemplate.MustNew("/api/v1/games/{gameID}/session{?chapterId}")
	createTemplate   = uritemplate.MustNew("/api/v1/games/{gameID}/sessions")
	progressTemplate = uritemplate.MustNew("/api/v1/sessions/{sessionID}/progress")
)

const defaultHTTPTimeout = 10 * time.Second

// Error codes carried in API error bodies.
const (
	CodeNotFound          = "not_found"
	CodeSessionCompleted  = "session_completed"
	CodeSessionSuperseded = "session_superseded"
	CodeInvalidRequest    = "invalid_request"
	CodeUnauthorized      = "unauthorized"
	CodeInternal          = "internal"
)

// StatusError is a non-2xx API response.
type StatusError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"error"`
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api status %d", e.StatusCode)
	}
	return fmt.Sprintf("api status %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps session error codes to the session package's sentinels.
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case CodeSessionCompleted:
		return session.ErrCompleted
	case CodeSessionSuperseded:
		return session.ErrSuperseded
	case CodeNotFound:
		return session.ErrNotFound
	}
	return nil
}

// IsTransient reports whether err may succeed if retried later: network
// failures, timeouts and 5xx responses. Other API responses are answers,
// not outages.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= http.StatusInternalServerError ||
			se.StatusCode == http.StatusTooManyRequests ||
			se.StatusCode == http.StatusRequestTimeout
	}
	return true
}

// Client is an HTTP client for the waypoint API.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New creates a client for the API at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func expand(tmpl *uritemplate.Template, vars map[string]string) (string, error) {
	values := uritemplate.Values{}
	for k, v := range vars {
		if v != "" {
			values.Set(k, uritemplate.String(v))
		}
	}
	path, err := tmpl.Expand(values)
	if err != nil {
		return "", fmt.Errorf("expanding %s: %w", tmpl.Raw(), err)
	}
	return path, nil
}

// do sends a JSON request and decodes a JSON response into out, if out is
// not nil. Non-2xx responses are returned as *StatusError.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{StatusCode: resp.StatusCode}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(se)
		return se
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}
