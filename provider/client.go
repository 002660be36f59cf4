// Package provider is the HTTP client for the Coze v3 chat API: chat
// creation, streamed chat creation and message listing.
//
// The conversation a call targets is always a parameter of that call; the
// client holds no per-conversation state and is safe for concurrent use.
package provider

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"github.com/tailored-agentic-units/relay/core/fault"
	"github.com/tailored-agentic-units/relay/core/response"
)

const (
	maxEnvelopeSize = 4 << 20
	maxErrorBody    = 512
)

// Client calls the provider API.
type Client struct {
	cfg     Config
	http    *http.Client
	stream  *http.Client
	limiter *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the client used for all calls, streaming
// included.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
		c.stream = hc
	}
}

// WithLimiter replaces the rate limiter derived from RequestsPerSecond.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

// New creates a Client. The configuration is merged over DefaultConfig and
// validated.
func New(cfg *Config, opts ...Option) (*Client, error) {
	merged := DefaultConfig()
	if cfg != nil {
		merged.Merge(cfg)
	}
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	merged.BaseURL = strings.TrimRight(merged.BaseURL, "/")

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: merged.InsecureSkipVerify,
	}
	streamTransport := transport.Clone()
	streamTransport.ResponseHeaderTimeout = merged.StreamTimeout

	c := &Client{
		cfg:    merged,
		http:   &http.Client{Transport: transport, Timeout: merged.Timeout},
		stream: &http.Client{Transport: streamTransport},
	}
	if merged.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(merged.RequestsPerSecond), max(1, int(merged.RequestsPerSecond)))
	}

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Config returns the effective configuration.
func (c *Client) Config() Config {
	return c.cfg
}

func (c *Client) newRequest(ctx context.Context, method, path string, query map[string]string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if len(query) > 0 {
		q := req.URL.Query()
		for k, v := range query {
			if v != "" {
				q.Set(k, v)
			}
		}
		req.URL.RawQuery = q.Encode()
	}

	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	return req, nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// doEnvelope executes req and decodes an envelope, turning transport errors,
// non-2xx statuses and non-zero codes into upstream faults.
func (c *Client) doEnvelope(op string, req *http.Request) (*response.Envelope, error) {
	if err := c.wait(req.Context()); err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fault.Upstream(op, 0, "", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxEnvelopeSize))
	if err != nil {
		return nil, fault.Upstream(op, resp.StatusCode, "", fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fault.Upstream(op, resp.StatusCode, truncate(body),
			fmt.Errorf("unexpected status %s", resp.Status))
	}

	env, err := response.ParseEnvelope(body)
	if err != nil {
		return nil, fault.Upstream(op, resp.StatusCode, truncate(body), err)
	}
	if err := env.Err(op, resp.StatusCode); err != nil {
		return nil, err
	}
	return env, nil
}

func truncate(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}
