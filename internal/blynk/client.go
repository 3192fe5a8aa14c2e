package blynk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to the Blynk HTTP API. Calls are independent: no retries,
// no backoff, every failure is reported once to the caller.
type Client struct {
	// httpClient performs the requests.
	httpClient *http.Client
	// baseURL is the scheme and host of the Blynk server.
	baseURL string
	// token authenticates the device.
	token string
	// callTimeout bounds a single call.
	callTimeout time.Duration
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets the per-call timeout.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// DefaultCallTimeout is used when no timeout option is given.
const DefaultCallTimeout = 5 * time.Second

// maxBodySize caps how much of a response is read.
const maxBodySize = 4 << 10

var (
	// ErrServerRequired is returned when the server address is empty.
	ErrServerRequired = errors.New("blynk server must be provided")
	// ErrTokenRequired is returned when the auth token is empty.
	ErrTokenRequired = errors.New("blynk token must be provided")
	// errPinRequired is returned when a call names no pin.
	errPinRequired = errors.New("pin must be provided")
)

// HTTPStatusError reports a non-200 response.
type HTTPStatusError struct {
	// StatusCode is the HTTP status returned by the server.
	StatusCode int
	// Body is the beginning of the response body.
	Body string
}

// Error implements error.
func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected http status %d: %s", e.StatusCode, e.Body)
}

// New creates a client for server, which is either a host name (https is
// implied) or a base URL with scheme.
func New(server, token string, opts ...Option) (*Client, error) {
	server = strings.TrimRight(strings.TrimSpace(server), "/")
	if server == "" {
		return nil, ErrServerRequired
	}

	if token == "" {
		return nil, ErrTokenRequired
	}

	if !strings.Contains(server, "://") {
		server = "https://" + server
	}

	if _, err := url.ParseRequestURI(server); err != nil {
		return nil, fmt.Errorf("parse blynk server: %w", err)
	}

	client := &Client{
		httpClient:  http.DefaultClient,
		baseURL:     server,
		token:       token,
		callTimeout: DefaultCallTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// ReadFlag returns the trimmed value of pin. An empty string means the pin
// holds no value.
func (c *Client) ReadFlag(ctx context.Context, pin string) (string, error) {
	if pin == "" {
		return "", errPinRequired
	}

	body, err := c.get(ctx, "get", url.QueryEscape(pin))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", pin, err)
	}

	return unwrapValue(body), nil
}

// WriteFlag sets pin to value.
func (c *Client) WriteFlag(ctx context.Context, pin, value string) error {
	if pin == "" {
		return errPinRequired
	}

	if _, err := c.get(ctx, "update", url.QueryEscape(pin)+"="+url.QueryEscape(value)); err != nil {
		return fmt.Errorf("write %s=%s: %w", pin, value, err)
	}

	return nil
}

// get performs GET {base}/external/api/{method}?token={token}&{query}.
// The pin is a bare query key, so the query string is assembled by hand.
func (c *Client) get(ctx context.Context, method, query string) (string, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	endpoint := c.baseURL + "/external/api/" + method + "?token=" + url.QueryEscape(c.token) + "&" + query

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &HTTPStatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
	}

	return string(data), nil
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}

// unwrapValue trims the payload and strips an optional single-element JSON
// array wrapper: `["1"]` and `[1]` both become "1".
func unwrapValue(body string) string {
	value := strings.TrimSpace(body)
	if !strings.HasPrefix(value, "[") || !strings.HasSuffix(value, "]") {
		return value
	}

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(value), &items); err != nil || len(items) != 1 {
		return value
	}

	var text string
	if err := json.Unmarshal(items[0], &text); err == nil {
		return strings.TrimSpace(text)
	}

	return strings.TrimSpace(string(items[0]))
}
