// Package client is a Go client for the nanny HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ardnew/nanny/envtext"
	"github.com/ardnew/nanny/nanny"
	"github.com/ardnew/nanny/pkg"
	"github.com/ardnew/nanny/server"
)

var (
	ErrInvalidURL = pkg.NewError("invalid server url")
	ErrRequest    = pkg.NewError("request failed")
)

// DefaultTimeout bounds each request made with the default HTTP client.
const DefaultTimeout = 2 * time.Minute

// Error is a request the server did not complete.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, http.StatusText(e.Status), e.Message)
}

// Client talks to a nanny server.
type Client struct {
	base *url.URL
	http *http.Client
}

// Option modifies a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// New returns a client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, ErrInvalidURL.Wrap(err).With(slog.String("url", baseURL))
	}

	if u.Scheme == "" || u.Host == "" {
		return nil, ErrInvalidURL.With(slog.String("url", baseURL))
	}

	c := &Client{
		base: u,
		http: &http.Client{Timeout: DefaultTimeout},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c, nil
}

// List returns every app keyed by name.
func (c *Client) List(ctx context.Context) (map[string]nanny.Info, error) {
	var apps map[string]nanny.Info

	return apps, c.do(ctx, http.MethodGet, "/apps", nil, &apps)
}

// Create clones and starts a new app and returns its port.
func (c *Client) Create(ctx context.Context, req nanny.CreateRequest) (int, error) {
	var resp server.MessageResponse

	err := c.do(ctx, http.MethodPost, "/create", req, &resp)

	return resp.Port, err
}

// Start launches the named app and returns its port.
func (c *Client) Start(ctx context.Context, name string) (int, error) {
	var resp server.MessageResponse

	err := c.do(ctx, http.MethodPost, "/start/"+url.PathEscape(name), nil, &resp)

	return resp.Port, err
}

// Stop stops the named app.
func (c *Client) Stop(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPost, "/stop/"+url.PathEscape(name), nil, nil)
}

// Restart updates and restarts the named app and returns its port.
func (c *Client) Restart(ctx context.Context, name string) (int, error) {
	var resp server.MessageResponse

	err := c.do(ctx, http.MethodPost, "/restart/"+url.PathEscape(name), nil, &resp)

	return resp.Port, err
}

// Heartbeat records an access to the named app.
func (c *Client) Heartbeat(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPost, "/heartbeat/"+url.PathEscape(name), nil, nil)
}

// Env returns the named app's environment.
func (c *Client) Env(ctx context.Context, name string) (*envtext.Map, error) {
	env := envtext.New(0)

	return env, c.do(ctx, http.MethodGet, "/env/"+url.PathEscape(name), nil, env)
}

// SetEnv replaces the named app's environment.
func (c *Client) SetEnv(ctx context.Context, name string, env *envtext.Map) error {
	return c.do(ctx, http.MethodPost, "/env/"+url.PathEscape(name), env, nil)
}

// ImportEnv merges .env text into the named app's environment and returns
// the result.
func (c *Client) ImportEnv(
	ctx context.Context,
	name, text string,
	mode envtext.Mode,
) (*envtext.Map, error) {
	env := envtext.New(0)
	body := server.ImportRequest{Text: text, Mode: mode.String()}

	return env, c.do(ctx, http.MethodPost, "/env/"+url.PathEscape(name)+"/import", body, env)
}

// do sends body as JSON and decodes the data of a successful JSend response
// into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return ErrRequest.Wrap(err)
		}

		rd = bytes.NewReader(payload)
	}

	endpoint := c.base.JoinPath(path)

	attrs := []slog.Attr{slog.String("method", method), slog.String("url", endpoint.String())}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), rd)
	if err != nil {
		return ErrRequest.Wrap(err).With(attrs...)
	}

	req.Header.Set("Accept", "application/json")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return ErrRequest.Wrap(err).With(attrs...)
	}
	defer resp.Body.Close()

	var envelope struct {
		Status  string          `json:"status"`
		Data    json.RawMessage `json:"data"`
		Message string          `json:"message"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return &Error{Status: resp.StatusCode, Message: "malformed response: " + err.Error()}
	}

	switch envelope.Status {
	case server.StatusSuccess:
		if out == nil || len(envelope.Data) == 0 {
			return nil
		}

		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return ErrRequest.Wrap(err).With(attrs...)
		}

		return nil

	case server.StatusFail:
		var data struct {
			Message string `json:"message"`
		}

		_ = json.Unmarshal(envelope.Data, &data)

		return &Error{Status: resp.StatusCode, Message: data.Message}

	default:
		msg := envelope.Message
		if msg == "" {
			msg = "status " + envelope.Status
		}

		return &Error{Status: resp.StatusCode, Message: msg}
	}
}
