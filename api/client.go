// Package api is the single point of contact with the remote merchant API.
// It owns URL construction, bearer-token auth headers, the response envelope
// and the mapping from HTTP status codes to the typed error taxonomy. It
// carries no business logic, no retries and no caching: every call is a
// fresh round trip.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/snag21205/unimerch/core"
)

// TokenSource supplies the current bearer token; an empty string means
// unauthenticated. Implemented by session.Store.
type TokenSource interface {
	Token() string
}

// Client wraps HTTP calls to the merchant API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource

	// onSessionExpired runs on any 401 before the error is returned: it
	// invalidates the session and forces navigation to the login entry
	// point. The in-flight call still fails; callers must tolerate the
	// side effect.
	onSessionExpired func()

	logger    core.Logger
	telemetry core.Telemetry
}

// Options configures a Client.
type Options struct {
	BaseURL          string
	HTTPClient       *http.Client
	Tokens           TokenSource
	OnSessionExpired func()
	Logger           core.Logger
	Telemetry        core.Telemetry
}

// New creates a merchant API client.
func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	telemetry := opts.Telemetry
	if telemetry == nil {
		telemetry = &core.NoOpTelemetry{}
	}
	return &Client{
		baseURL:          opts.BaseURL,
		httpClient:       httpClient,
		tokens:           opts.Tokens,
		onSessionExpired: opts.OnSessionExpired,
		logger:           logger,
		telemetry:        telemetry,
	}
}

// Request describes one API call.
type Request struct {
	Endpoint    Endpoint
	Body        interface{}
	PathParams  map[string]string
	Query       url.Values
	RequireAuth bool
}

// Envelope is the merchant API's uniform response shape. Data is kept raw
// for caller-side decoding.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
	Errors  []string        `json:"errors,omitempty"`
}

// Do executes the request and returns the decoded envelope, or one of the
// taxonomy errors from core.
func (c *Client) Do(ctx context.Context, r Request) (*Envelope, error) {
	ctx, span := c.telemetry.StartSpan(ctx, "api.request")
	defer span.End()

	path, err := BuildPath(r.Endpoint.Path, r.PathParams)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	fullURL := c.baseURL + path
	if len(r.Query) > 0 {
		fullURL += "?" + r.Query.Encode()
	}

	span.SetAttribute("http.method", r.Endpoint.Method)
	span.SetAttribute("http.route", r.Endpoint.Path)

	var bodyReader io.Reader
	if r.Body != nil && r.Endpoint.Method != http.MethodGet {
		payload, err := json.Marshal(r.Body)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, r.Endpoint.Method, fullURL, bodyReader)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("building request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("Accept", "application/json")
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.RequireAuth && c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	c.logger.Debug("API request", map[string]interface{}{
		"operation":  "api_request",
		"request_id": requestID,
		"method":     r.Endpoint.Method,
		"path":       path,
	})
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		c.logger.Error("API request failed", map[string]interface{}{
			"operation":  "api_request_error",
			"request_id": requestID,
			"path":       path,
			"error":      err.Error(),
		})
		return nil, core.NewStoreError("api.Do", "api", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		return nil, core.NewStoreError("api.Do", "api", err)
	}

	span.SetAttribute("http.status_code", resp.StatusCode)
	c.logger.Debug("API response", map[string]interface{}{
		"operation":   "api_response",
		"request_id":  requestID,
		"path":        path,
		"status_code": resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	c.telemetry.RecordMetric("api.requests", 1, map[string]string{
		"route":  r.Endpoint.Path,
		"status": fmt.Sprintf("%d", resp.StatusCode),
	})

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var env Envelope
		if err := json.Unmarshal(body, &env); err != nil {
			span.RecordError(core.ErrMalformedResponse)
			return nil, fmt.Errorf("%w: %v", core.ErrMalformedResponse, err)
		}
		return &env, nil
	}

	apiErr := c.mapError(resp.StatusCode, body)
	span.RecordError(apiErr)
	return nil, apiErr
}

// DoInto executes the request and decodes the envelope's data into out.
func (c *Client) DoInto(ctx context.Context, r Request, out interface{}) error {
	env, err := c.Do(ctx, r)
	if err != nil {
		return err
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: decoding data: %v", core.ErrMalformedResponse, err)
	}
	return nil
}

// mapError translates an error status into the typed taxonomy. Error bodies
// are decoded best-effort; junk bodies are tolerated since the status alone
// classifies the failure.
func (c *Client) mapError(status int, body []byte) error {
	var env Envelope
	_ = json.Unmarshal(body, &env)

	switch {
	case status == http.StatusUnauthorized:
		// Global side effect: the session is invalidated and navigation is
		// forced, while the call itself still fails.
		if c.onSessionExpired != nil {
			c.onSessionExpired()
		}
		return core.ErrSessionExpired
	case status == http.StatusForbidden:
		return core.ErrForbidden
	case status == http.StatusNotFound:
		return core.ErrNotFound
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return core.NewValidationError(env.Errors, env.Message)
	case status >= 500:
		return core.ErrServerUnavailable
	default:
		return &core.UnknownAPIError{Status: status}
	}
}
