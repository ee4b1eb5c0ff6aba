// Package client calls the yote REST api and returns its response envelope.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.trai.ch/zerr"
)

// Envelope is the body of every api response: {success, message?, <key>: ...}.
type Envelope struct {
	Success bool
	Message string
	Fields  map[string]json.RawMessage
}

func (e *Envelope) UnmarshalJSON(data []byte) error {
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	e.Fields = fields
	e.Success = false
	if raw, ok := fields["success"]; ok {
		if err := json.Unmarshal(raw, &e.Success); err != nil {
			return zerr.Wrap(err, "failed to decode success flag")
		}
	}
	e.Message = ""
	if raw, ok := fields["message"]; ok {
		// store errors are sometimes forwarded as objects rather than strings
		if err := json.Unmarshal(raw, &e.Message); err != nil {
			e.Message = string(raw)
		}
	}
	return nil
}

// Decode reads the payload under key into out.
func (e *Envelope) Decode(key string, out any) error {
	raw, ok := e.Fields[key]
	if !ok {
		return zerr.With(zerr.New("response has no such key"), "key", key)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to decode response"), "key", key)
	}
	return nil
}

// Err returns an *APIError when the server reported failure.
func (e *Envelope) Err() error {
	if e.Success {
		return nil
	}
	return &APIError{Message: e.Message}
}

// APIError carries the message of a {success: false} response.
type APIError struct {
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return "api request failed"
	}
	return e.Message
}

// Client is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

type Option func(*Client)

// WithToken sends a bearer token on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithTimeout bounds each request. The default is no timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to parse base url")
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, zerr.With(zerr.New("base url must be absolute"), "url", baseURL)
	}
	c := &Client{
		baseURL:    strings.TrimSuffix(u.String(), "/"),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the server root, without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) Token() string {
	return c.token
}

// Call sends a request to target, a path with an optional query string such as
// "/api/tasks/by-_id-list?_id=a&". A {success: false} reply is not an error here; check
// Envelope.Err.
func (c *Client) Call(ctx context.Context, method, target string, body any) (*Envelope, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, zerr.Wrap(err, "failed to encode body")
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+target, reader)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to call api"), "target", target)
	}
	defer resp.Body.Close()

	var env Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to read response"), "status", resp.StatusCode)
	}
	return &env, nil
}
