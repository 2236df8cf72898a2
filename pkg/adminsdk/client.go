package adminsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/quietgrove/backoffice/pkg/credstore"
)

// Client is the typed entry point to the back-office API. It owns the
// session manager, the refresh coordinator, and an http.Client whose
// transport is the request pipeline; every call through it gets bearer
// injection, transient retry, refresh-on-401, and failure observation.
type Client struct {
	BaseURL     string
	Session     *SessionManager
	Coordinator *Coordinator
	HTTPClient  *http.Client

	notifier Notifier
	logger   *slog.Logger
}

// ClientConfig configures NewClient. Only BaseURL is required.
type ClientConfig struct {
	BaseURL string

	// Store persists credentials; defaults to in-memory.
	Store credstore.Store

	// Scope requested on password grants.
	Scope string

	// Notifier observes failures and successes; nil disables notifications.
	Notifier Notifier

	// Limiter bounds the outgoing request rate; nil disables throttling.
	Limiter *rate.Limiter

	// RejectConcurrentRefresh restores the historical policy where a 401
	// racing an in-flight refresh fails with ErrRefreshInProgress instead
	// of waiting for the shared result.
	RejectConcurrentRefresh bool

	// OnLogout is invoked whenever the session ends, for navigation.
	OnLogout func()

	// Base replaces the innermost transport, for tests.
	Base http.RoundTripper

	Logger *slog.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// NewClient wires the session manager, coordinator, and pipeline together.
func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sess := NewSessionManager(SessionConfig{
		BaseURL:  cfg.BaseURL,
		Store:    cfg.Store,
		Scope:    cfg.Scope,
		OnLogout: cfg.OnLogout,
		Logger:   logger,
		Now:      cfg.Now,
		HTTPClient: &http.Client{
			Timeout:   10 * time.Second,
			Transport: cfg.Base,
		},
	})

	coord := NewCoordinator(sess.Refresh)
	if cfg.RejectConcurrentRefresh {
		coord.RejectConcurrent()
	}
	sess.useCoordinator(coord)

	pipeline := NewPipeline(PipelineConfig{
		Base:        cfg.Base,
		Session:     sess,
		Coordinator: coord,
		Notifier:    cfg.Notifier,
		Limiter:     cfg.Limiter,
		Logger:      logger,
	})

	return &Client{
		BaseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		Session:     sess,
		Coordinator: coord,
		HTTPClient:  &http.Client{Transport: pipeline, Timeout: 30 * time.Second},
		notifier:    cfg.Notifier,
		logger:      logger,
	}
}

type silentKey struct{}

// Silent marks the context so failures of requests issued under it are not
// surfaced as notifications. They still propagate as errors.
func Silent(ctx context.Context) context.Context {
	return context.WithValue(ctx, silentKey{}, true)
}

func isSilent(ctx context.Context) bool {
	v, _ := ctx.Value(silentKey{}).(bool)
	return v
}

// Get fetches path and decodes the envelope's data into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// Post sends in as JSON and decodes the envelope's data into out.
func (c *Client) Post(ctx context.Context, path string, in, out any) error {
	return c.do(ctx, http.MethodPost, path, in, out)
}

// Put sends in as JSON and decodes the envelope's data into out.
func (c *Client) Put(ctx context.Context, path string, in, out any) error {
	return c.do(ctx, http.MethodPut, path, in, out)
}

// Delete issues a DELETE to path.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// UserInfo fetches the authenticated user's profile. The userinfo endpoint
// is skip-listed, so the bearer token is attached here explicitly.
func (c *Client) UserInfo(ctx context.Context) (*UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/connect/userinfo", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	tok := c.Session.Token()
	if tok == "" {
		return nil, &AuthError{StatusCode: http.StatusUnauthorized, Message: "not logged in"}
	}
	req.Header.Set(HeaderAuthorization, "Bearer "+tok)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if cerr := classifyResponse(resp.StatusCode, raw); cerr != nil {
		return nil, cerr
	}

	var info UserInfo
	if err := decodePayload(raw, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// do dispatches one API call through the pipeline and normalizes the
// response envelope into either out or a typed error.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if isSilent(ctx) {
		req.Header.Set(HeaderSilent, "1")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		// Transport failures were already observed by the pipeline.
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if cerr := classifyResponse(resp.StatusCode, raw); cerr != nil {
		if c.notifier != nil && !isSilent(ctx) {
			c.notifier.Failure(cerr)
		}
		return cerr
	}

	if out != nil {
		return decodePayload(raw, out)
	}
	return nil
}

// classifyResponse turns an API response into a typed error, or nil for
// success. A non-empty errors list wins over the status code: the server
// answered per field and the caller should surface each one.
func classifyResponse(status int, raw []byte) error {
	var env Envelope
	envOK := len(raw) > 0 && json.Unmarshal(raw, &env) == nil

	if envOK && len(env.Errors) > 0 {
		return &ValidationError{
			StatusCode:    status,
			CorrelationID: env.CorrelationID,
			Errors:        env.Errors,
		}
	}
	if status >= 200 && status < 300 {
		return nil
	}

	msg := env.Message
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &APIError{StatusCode: status, Message: msg, CorrelationID: env.CorrelationID}
}

// decodePayload decodes the envelope's data field into out, falling back to
// the raw body for endpoints that answer without an envelope.
func decodePayload(raw []byte, out any) error {
	var env Envelope
	if json.Unmarshal(raw, &env) == nil && len(env.Data) > 0 {
		raw = env.Data
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
