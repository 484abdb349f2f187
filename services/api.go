package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const forbiddenMessage = "You are not authorized to perform this action"

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// APIError is returned by every Client call that fails. StatusCode is zero
// when the request never produced a response.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Is matches ErrUnauthorized and ErrForbidden by status code.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrForbidden:
		return e.StatusCode == http.StatusForbidden
	}
	return false
}

// TokenSource yields the bearer token to attach, or "" for none.
type TokenSource interface {
	Token() string
}

// TokenFunc adapts a func to TokenSource.
type TokenFunc func() string

func (f TokenFunc) Token() string {
	return f()
}

// Client talks to the task-collaboration REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	tokens     TokenSource
	bus        *Bus
}

// NewClient creates a client for the API rooted at baseURL. Every request
// carries the token from tokens and reports 401/403 responses on bus.
func NewClient(baseURL string, timeout time.Duration, tokens TokenSource, bus *Bus) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	return &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
		bus:        bus,
	}, nil
}

type errorBody struct {
	Message string `json:"message"`
}

// do issues one request. op is the generic failure message used when the
// server does not supply one.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any, op string) error {
	u := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return &APIError{Op: op, Message: op, Err: fmt.Errorf("marshal request: %w", err)}
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return &APIError{Op: op, Message: op, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Debug("request failed", "method", method, "path", path, "err", err)
		return &APIError{Op: op, Message: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{Op: op, StatusCode: resp.StatusCode, Message: op, Err: fmt.Errorf("read response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.fail(op, method, path, resp.StatusCode, raw)
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &APIError{Op: op, StatusCode: resp.StatusCode, Message: op, Err: fmt.Errorf("parse response: %w", err)}
	}
	return nil
}

func (c *Client) fail(op, method, path string, status int, raw []byte) error {
	var eb errorBody
	_ = json.Unmarshal(raw, &eb)

	apiErr := &APIError{Op: op, StatusCode: status, Message: op}
	if eb.Message != "" {
		apiErr.Message = eb.Message
	}

	switch status {
	case http.StatusUnauthorized:
		slog.Info("session rejected by server", "method", method, "path", path)
		c.bus.Publish(Signal{Kind: SignalUnauthorized, Message: apiErr.Message})
	case http.StatusForbidden:
		if eb.Message == "" {
			apiErr.Message = forbiddenMessage
		}
		slog.Warn("forbidden action", "method", method, "path", path, "message", apiErr.Message)
		c.bus.Publish(Signal{Kind: SignalForbidden, Message: apiErr.Message})
	default:
		slog.Debug("request rejected", "method", method, "path", path, "status", status, "message", apiErr.Message)
	}
	return apiErr
}
