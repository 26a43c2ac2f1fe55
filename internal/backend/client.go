package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/nerrad567/tapowatt/internal/device"
)

// Client talks to the tapo-rest HTTP API. It logs in once, caches the
// session token, and transparently re-authenticates a single time when
// the backend reports the token as expired.
//
// Client is safe for concurrent use; the aggregation endpoint fans out
// one FetchPower call per device.
type Client struct {
	http     *resty.Client
	password string

	mu    sync.Mutex
	token string
}

// NewClient creates a backend client for the given base URL.
// timeout bounds each individual HTTP exchange.
func NewClient(apiURL, password string, timeout time.Duration) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(apiURL, "/")).
			SetTimeout(timeout),
		password: password,
	}
}

// Login authenticates against the backend and caches the session token.
func (c *Client) Login(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loginLocked(ctx)
}

// loginLocked performs the login exchange. Callers must hold c.mu.
func (c *Client) loginLocked(ctx context.Context) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"password": c.password}).
		Post("/login")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: status %d", ErrLoginFailed, resp.StatusCode())
	}

	// The backend returns the token as the raw response body,
	// sometimes JSON-quoted.
	token := strings.Trim(strings.TrimSpace(string(resp.Body())), `"`)
	if token == "" {
		return fmt.Errorf("%w: empty token in response", ErrLoginFailed)
	}

	c.token = token
	return nil
}

// currentToken returns the cached session token, which may be empty
// before the first login.
func (c *Client) currentToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// refreshToken re-authenticates unless another goroutine already
// replaced the stale token, in which case the fresh token is reused.
func (c *Client) refreshToken(ctx context.Context, stale string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.token != stale {
		return c.token, nil
	}
	if err := c.loginLocked(ctx); err != nil {
		return "", err
	}
	return c.token, nil
}

// FetchPower queries the backend for the device's current power
// reading and returns the decoded JSON payload.
func (c *Client) FetchPower(ctx context.Context, d device.Descriptor) (map[string]any, error) {
	token := c.currentToken()
	if token == "" {
		var err error
		if token, err = c.refreshToken(ctx, ""); err != nil {
			return nil, err
		}
	}

	resp, err := c.fetchPower(ctx, d, token)
	if err != nil {
		return nil, fmt.Errorf("fetching power for %s: %w", d.Name, err)
	}

	// Expired session: re-login once and retry.
	if resp.StatusCode() == http.StatusUnauthorized {
		if token, err = c.refreshToken(ctx, token); err != nil {
			return nil, err
		}
		if resp, err = c.fetchPower(ctx, d, token); err != nil {
			return nil, fmt.Errorf("fetching power for %s: %w", d.Name, err)
		}
	}

	if resp.IsError() {
		return nil, fmt.Errorf("backend returned status %d for device %s", resp.StatusCode(), d.Name)
	}

	var data map[string]any
	if err := json.Unmarshal(resp.Body(), &data); err != nil {
		return nil, fmt.Errorf("decoding power payload for %s: %w", d.Name, err)
	}
	return data, nil
}

func (c *Client) fetchPower(ctx context.Context, d device.Descriptor, token string) (*resty.Response, error) {
	return c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetQueryParam("device", d.Name).
		Get("/actions/" + d.RouteType() + "/get-current-power")
}
