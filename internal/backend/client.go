// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend is the HTTP client for the RAG chat service.
package backend

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Configuration constants for the backend client.
const (
	// DefaultTimeout is the default timeout for non-streaming requests.
	DefaultTimeout = 30 * time.Second

	// DefaultUserAgent identifies the client to the backend.
	DefaultUserAgent = "ragchat/0.1.0"

	// MaxResponseSize is the maximum allowed non-streaming response body size.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB limit

	// maxErrorBody bounds how much of an error response is read.
	maxErrorBody = 64 * 1024
)

// sharedTransport pools connections for every client in the process.
var sharedTransport = &http.Transport{
	Proxy:               http.ProxyFromEnvironment,
	MaxIdleConns:        100,
	MaxIdleConnsPerHost: 10,
	IdleConnTimeout:     90 * time.Second,
	TLSHandshakeTimeout: 10 * time.Second,
	TLSClientConfig: &tls.Config{
		MinVersion: tls.VersionTLS12,
	},
}

// =============================================================================
// CLIENT
// =============================================================================

// Config configures a Client.
type Config struct {
	// BaseURL is the service root, e.g. "https://rag.example.com".
	BaseURL string

	// Token is sent as "Authorization: Bearer <token>".
	Token string

	// Timeout bounds non-streaming requests. Streams are bounded only by
	// their context.
	Timeout time.Duration

	UserAgent string

	// Logger receives request logs and stream warnings. Nil discards them.
	Logger *log.Logger

	// Transport overrides the shared transport, mainly for tests.
	Transport http.RoundTripper
}

// Client talks to the RAG backend. It is safe for concurrent use.
type Client struct {
	baseURL   string
	userAgent string
	logger    *log.Logger

	mu    sync.RWMutex
	token string

	http      *http.Client
	streaming *http.Client
}

// New creates a client from cfg.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	var transport http.RoundTripper = sharedTransport
	if cfg.Transport != nil {
		transport = cfg.Transport
	}

	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		logger:    cfg.Logger,
		token:     cfg.Token,
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		// No timeout for streaming - controlled via context
		streaming: &http.Client{
			Transport: transport,
		},
	}
}

// SetToken replaces the bearer token, e.g. after the config file changed.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// BaseURL returns the configured service root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// IsConfigured returns true if a base URL is set.
func (c *Client) IsConfigured() bool {
	return c.baseURL != ""
}

// =============================================================================
// REQUEST HELPERS
// =============================================================================

// setHeaders sets the headers every request carries.
func (c *Client) setHeaders(req *http.Request) {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
}

// newRequest builds a request against path with an optional JSON body.
func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do sends req and decodes a JSON response into out (if non-nil).
func (c *Client) do(req *http.Request, out any) error {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	c.logger.Printf("%s %s -> %d (%v)", req.Method, req.URL.Path, resp.StatusCode, time.Since(start).Round(time.Millisecond))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return handleErrorResponse(resp, body)
	}

	if out == nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return nil
	}

	body, err := readResponse(resp)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// readResponse reads the response body with size limits to prevent memory exhaustion.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(body) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}
