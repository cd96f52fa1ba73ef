package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const DefaultTimeout = 10 * time.Second

// Client is the node REST gateway. It is safe for concurrent use; the only
// mutable state is the session id assigned by the node on ready.
type Client struct {
	base     string
	password string
	http     *http.Client

	mu        sync.RWMutex
	sessionID string
}

// New builds a client for the node at address (e.g. http://localhost:2333).
// Routes are rooted at address + "/v4".
func New(address, password string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		base:     strings.TrimRight(address, "/") + "/v4",
		password: password,
		http:     &http.Client{Timeout: timeout},
	}
}

func (c *Client) BaseURL() string { return c.base }

func (c *Client) SetSessionID(id string) {
	c.mu.Lock()
	c.sessionID = id
	c.mu.Unlock()
}

func (c *Client) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

func (c *Client) sessionPath(parts ...string) (string, error) {
	sid := c.SessionID()
	if sid == "" {
		return "", ErrNoSession
	}
	segs := []string{"sessions", url.PathEscape(sid)}
	for _, p := range parts {
		segs = append(segs, url.PathEscape(p))
	}
	return strings.Join(segs, "/"), nil
}

// do issues a request and maps the status. 200 decodes into out when out is
// non-nil; 204 is an empty success; 400/401/404 map to sentinels; anything
// else comes back as *StatusError.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	raw, err := c.doRaw(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("rest: decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) doRaw(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	u := c.base + "/" + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("rest: encode %s %s: %w", method, path, err)
		}
		rd = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, fmt.Errorf("rest: build %s %s: %w", method, path, err)
	}
	req.Header.Set("Authorization", c.password)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransport(method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransport(method, path, err)
	}
	slog.Debug("rest request", "method", method, "path", path, "status", resp.StatusCode, "took", time.Since(start))

	switch resp.StatusCode {
	case http.StatusOK:
		return raw, nil
	case http.StatusNoContent:
		return nil, nil
	case http.StatusBadRequest:
		return nil, fmt.Errorf("%w: %s %s", ErrBadRequest, method, path)
	case http.StatusUnauthorized:
		return nil, fmt.Errorf("%w: %s %s", ErrUnauthorized, method, path)
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, method, path)
	default:
		return nil, &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: raw}
	}
}

func classifyTransport(method, path string, err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Errorf("%w: %s %s: %w", ErrTimeout, method, path, err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("rest: %s %s: %w", method, path, err)
	}
	return fmt.Errorf("%w: %s %s: %w", ErrTransport, method, path, err)
}
