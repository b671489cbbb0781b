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

const maxErrorBody = 4 << 10

// Notifier shows a transient message to the user (a toast).
type Notifier interface {
	Notify(level slog.Level, message string)
}

// NotifierFunc adapts a function into a Notifier.
type NotifierFunc func(level slog.Level, message string)

func (f NotifierFunc) Notify(level slog.Level, message string) {
	if f != nil {
		f(level, message)
	}
}

// TokenSource yields the current access token. *store.AuthStore implements it.
type TokenSource interface {
	AccessToken() string
}

// Envelope is the API's {code, data, msg} response body.
type Envelope struct {
	Code int             `json:"code"`
	Data json.RawMessage `json:"data"`
	Msg  string          `json:"msg"`
}

// RequestOptions describes one REST call.
type RequestOptions struct {
	Method  string
	Data    any
	Params  url.Values
	NoAuth  bool
	Timeout time.Duration
}

// Client wraps the REST API: bearer auth, client-side expiry check, status to
// message mapping and the shared sign-out on auth failures. It never retries.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	notify  Notifier
	signOut func()
	now     func() time.Time
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default 30s-timeout http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithNotifier routes failure messages to n.
func WithNotifier(n Notifier) ClientOption {
	return func(c *Client) {
		if n != nil {
			c.notify = n
		}
	}
}

// WithSignOut installs the action run on 401/403 and transport failures.
func WithSignOut(fn func()) ClientOption {
	return func(c *Client) {
		if fn != nil {
			c.signOut = fn
		}
	}
}

// WithClock lets tests control the expiry check.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

func NewClient(baseURL string, tokens TokenSource, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		tokens:  tokens,
		notify: NotifierFunc(func(level slog.Level, message string) {
			slog.Log(context.Background(), level, message)
		}),
		signOut: func() {},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// Request performs one call and returns the decoded envelope. A cancelled ctx
// yields (nil, nil). Failures are shown once through the Notifier and returned.
func (c *Client) Request(ctx context.Context, path string, opts RequestOptions) (*Envelope, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	var token string
	if !opts.NoAuth {
		token = c.tokens.AccessToken()
		if TokenExpired(token, c.now()) {
			return nil, c.fail(method, path, &APIError{
				Status:  http.StatusUnauthorized,
				Message: ErrorMessage(http.StatusUnauthorized),
				Err:     ErrTokenExpired,
			})
		}
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	u := c.baseURL + path
	if len(opts.Params) > 0 {
		u += "?" + opts.Params.Encode()
	}

	var body io.Reader
	if opts.Data != nil {
		payload, err := json.Marshal(opts.Data)
		if err != nil {
			return nil, fmt.Errorf("marshal %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if !opts.NoAuth {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			slog.Debug("request cancelled", "method", method, "path", path)
			return nil, nil
		}
		return nil, c.fail(method, path, &APIError{Message: MsgNetworkError, Err: err})
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, c.fail(method, path, &APIError{
			Status:  resp.StatusCode,
			Message: ErrorMessage(resp.StatusCode),
			Err:     errors.New(strings.TrimSpace(string(b))),
		})
	}

	var env Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, nil
		}
		return nil, c.fail(method, path, &APIError{
			Status:  resp.StatusCode,
			Message: MsgGeneric,
			Err:     fmt.Errorf("decode response: %w", err),
		})
	}
	return &env, nil
}

// fail surfaces e once and runs sign-out when the failure ends the session.
func (c *Client) fail(method, path string, e *APIError) error {
	slog.Error("api request failed", "method", method, "path", path, "status", e.Status, "err", e.Err)
	c.notify.Notify(slog.LevelError, e.Message)
	if forcesSignOut(e.Status) {
		c.signOut()
	}
	return e
}
