// File: internal/backend/client.go
// Brief: HTTP client for the Nephelios deployment backend.

// Package backend talks to the Nephelios deployment backend: submitting
// deployments, listing deployed applications, and opening the progress stream.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/example/nephelios/internal/progress"
)

var (
	// ErrInvalidRequest wraps validation failures of a DeploymentRequest.
	ErrInvalidRequest = errors.New("invalid deployment request")
	// ErrServerUnreachable is returned when the backend cannot be reached or is unavailable.
	ErrServerUnreachable = errors.New("failed to reach the server")
	// ErrAppNotFound is returned when no deployed application matches a name.
	ErrAppNotFound = errors.New("application not found")
)

// HTTPError describes a non-success response from the backend.
type HTTPError struct {
	Method     string
	Path       string
	StatusCode int
	Status     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Method, e.Path, e.Status)
}

const (
	DefaultBaseURL = "http://localhost"
	DefaultPort    = 3030

	maxErrorBody = 4 << 10
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger attaches a logger for request diagnostics.
func WithLogger(log logr.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = strings.TrimSpace(ua)
	}
}

// Client calls the backend REST endpoints.
type Client struct {
	base      *url.URL
	http      *http.Client
	log       logr.Logger
	userAgent string
}

// NewClient builds a client for baseURL and port. A zero port keeps whatever port
// baseURL already names.
func NewClient(baseURL string, port int, opts ...Option) (*Client, error) {
	base, err := resolveBase(baseURL, port)
	if err != nil {
		return nil, err
	}
	c := &Client{
		base: base,
		http: &http.Client{Timeout: 30 * time.Second},
		log:  logr.Discard(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

func resolveBase(raw string, port int) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = DefaultBaseURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend url %q must use http or https", raw)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("backend url %q has no host", raw)
	}
	if port > 0 {
		u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(port))
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

// BaseURL returns the resolved backend address.
func (c *Client) BaseURL() string {
	return c.base.String()
}

func (c *Client) endpoint(path string) string {
	u := *c.base
	u.Path = u.Path + path
	return u.String()
}

// StreamURL returns the WebSocket address of the progress stream for appName.
func (c *Client) StreamURL(appName string) string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = u.Path + "/ws"
	q := url.Values{}
	q.Set("app_name", appName)
	u.RawQuery = q.Encode()
	return u.String()
}

// CreateResponse is the acknowledgement returned by POST /create.
type CreateResponse struct {
	Message string `json:"message,omitempty"`
	AppName string `json:"app_name,omitempty"`
}

// Create submits a deployment request.
func (c *Client) Create(ctx context.Context, req DeploymentRequest) (CreateResponse, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return CreateResponse{}, err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return CreateResponse{}, fmt.Errorf("encode deployment request: %w", err)
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/create", body, &raw); err != nil {
		return CreateResponse{}, err
	}
	out := CreateResponse{AppName: req.AppName}
	if len(raw) > 0 {
		// Older backends acknowledge with a bare string.
		if err := json.Unmarshal(raw, &out); err != nil {
			var msg string
			if json.Unmarshal(raw, &msg) == nil {
				out.Message = msg
			}
		}
	}
	if out.AppName == "" {
		out.AppName = req.AppName
	}
	return out, nil
}

type appsResponse struct {
	Apps []progress.DeployedApplication `json:"apps"`
}

// ListApps returns every application known to the backend.
func (c *Client) ListApps(ctx context.Context) ([]progress.DeployedApplication, error) {
	var out appsResponse
	if err := c.do(ctx, http.MethodGet, "/get-apps", nil, &out); err != nil {
		return nil, err
	}
	return out.Apps, nil
}

// FindApp returns the application whose app_name matches name.
func (c *Client) FindApp(ctx context.Context, name string) (progress.DeployedApplication, error) {
	apps, err := c.ListApps(ctx)
	if err != nil {
		return progress.DeployedApplication{}, err
	}
	name = strings.TrimSpace(name)
	for _, app := range apps {
		if app.AppName == name {
			return app, nil
		}
	}
	return progress.DeployedApplication{}, fmt.Errorf("%w: %s", ErrAppNotFound, name)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), reader)
	if err != nil {
		return fmt.Errorf("build %s %s request: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.log.V(1).Info("backend request", "method", method, "url", req.URL.String())
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", ErrServerUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusGatewayTimeout {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%w: %s %s returned %s", ErrServerUnreachable, method, path, resp.Status)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return &HTTPError{Method: method, Path: path, StatusCode: resp.StatusCode, Status: resp.Status}
	}
	if out == nil {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
