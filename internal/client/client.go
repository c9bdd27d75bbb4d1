// Package client talks to the deployment server over HTTP.
//
// It covers the three endpoints the deploy client needs:
//   - GET  /health  server health probe
//   - GET  /deploy  listing of deployed projects
//   - POST /deploy  multipart archive upload
//
// Every call is a single attempt. Retry policy lives in internal/deployment.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"deplopush/internal/project"
)

const (
	// MaxResponseBytes caps how much of a response body is read.
	MaxResponseBytes = 1_000_000 // 1 MB

	// RequestIDHeader carries a per-request correlation id.
	RequestIDHeader = "X-Request-Id"
)

// Client provides typed access to the deployment server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	userAgent  string
	progress   io.Writer
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithLogger sets the logger used for request-level debug output.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithProgress renders a byte progress bar for each upload on w.
func WithProgress(w io.Writer) Option {
	return func(c *Client) {
		c.progress = w
	}
}

// NewHTTPClient returns an HTTP client with separate connect and read timeouts.
// There is no overall request deadline because archive uploads can be large.
func NewHTTPClient(connectTimeout, readTimeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.TLSHandshakeTimeout = connectTimeout
	transport.ResponseHeaderTimeout = readTimeout

	return &http.Client{Transport: transport}
}

// New constructs a Client pointing at the provided server base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(base), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("server base url is empty")
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid server base url: %w", err)
	}

	c := &Client{
		baseURL:    trimmed,
		httpClient: NewHTTPClient(30*time.Second, 300*time.Second),
		logger:     slog.New(slog.DiscardHandler),
		userAgent:  "deplopush",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the normalised server address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	return req, nil
}

// Health is the outcome of a single health probe.
type Health struct {
	Healthy bool
	Status  int             // HTTP status, 0 if no response
	Payload json.RawMessage // raw JSON body when healthy
	Err     error           // reason when unhealthy
}

// Health probes GET /health once. Any network error, non-2xx status or
// non-JSON body yields an unhealthy result.
func (c *Client) Health(ctx context.Context) Health {
	req, err := c.newRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return Health{Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Health{Err: fmt.Errorf("perform request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes))
	if err != nil {
		return Health{Status: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Health{Status: resp.StatusCode, Err: APIError{Status: resp.StatusCode, Message: extractMessage(body)}}
	}

	if !json.Valid(body) {
		return Health{Status: resp.StatusCode, Err: fmt.Errorf("decode response: body is not valid JSON")}
	}

	return Health{Healthy: true, Status: resp.StatusCode, Payload: json.RawMessage(body)}
}

// ListProjects fetches the deployed projects from GET /deploy.
func (c *Client) ListProjects(ctx context.Context) ([]project.Project, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/deploy", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, APIError{Status: resp.StatusCode, Message: extractMessage(body)}
	}

	var list project.ListResponse
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if list.Projects == nil {
		list.Projects = []project.Project{}
	}
	return list.Projects, nil
}

// extractMessage pulls a human readable reason out of an error body.
func extractMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		msg := strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:200] + "..."
		}
		return msg
	}
	if payload.Message != "" {
		return strings.TrimSpace(payload.Message)
	}
	return strings.TrimSpace(payload.Error)
}
