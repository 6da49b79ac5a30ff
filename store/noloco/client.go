/*
Package noloco talks to the Noloco data API over GraphQL.

PURPOSE:
  Implements the payroll repository contracts against the hosted platform:
  paginated collection reads, payroll create/update, timesheet unlink and
  the employee pay-rate lookup.

TRANSPORT:
  POST {"query": ...} to https://api.portals.noloco.io/data/{projectID}
  with a bearer token. Every call goes through one retry loop:

    401              → ErrUnauthorized, never retried, aborts the run
    429, 5xx         → retried
    timeout / dial   → retried
    other non-200    → HTTPStatusError, not retried
    errors[] in body → GraphQLError, not retried

  Retries wait RetryDelay × attempt (2s, 4s, 6s by default) up to
  MaxRetries extra attempts. Every mutation is followed by a fixed
  RateLimitDelay pause.

SEE ALSO:
  - repository.go: payroll.Platform implementation
  - queries.go: Query and mutation text
  - payroll/store.go: The contracts
*/
package noloco

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// DefaultBaseURL is the data API root; the project id is appended.
const DefaultBaseURL = "https://api.portals.noloco.io/data"

// Config holds connection and retry settings.
type Config struct {
	ProjectID string
	Token     string

	// BaseURL overrides DefaultBaseURL. Endpoint overrides both.
	BaseURL  string
	Endpoint string

	MaxRetries     int
	RetryDelay     time.Duration
	RateLimitDelay time.Duration
	Timeout        time.Duration
	PageSize       int

	// Location interprets clock timestamps without an offset and renders
	// period boundaries as local midnight.
	Location *time.Location
}

// DefaultConfig returns the production retry policy.
func DefaultConfig() Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		MaxRetries:     3,
		RetryDelay:     2 * time.Second,
		RateLimitDelay: 500 * time.Millisecond,
		Timeout:        30 * time.Second,
		PageSize:       100,
		Location:       time.UTC,
	}
}

// URL returns the endpoint requests are sent to.
func (c Config) URL() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	base := c.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return strings.TrimRight(base, "/") + "/" + c.ProjectID
}

// Client executes GraphQL documents with retry.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// NewClient validates cfg. httpClient may be nil.
func NewClient(cfg Config, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("noloco: API token is required")
	}
	if cfg.Endpoint == "" && strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, fmt.Errorf("noloco: project id is required")
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{cfg: cfg, http: httpClient, logger: logger}, nil
}

// Config returns the effective configuration.
func (c *Client) Config() Config { return c.cfg }

type graphQLRequest struct {
	Query string `json:"query"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Query runs a read and decodes data into out.
func (c *Client) Query(ctx context.Context, query string, out any) error {
	return c.do(ctx, query, out)
}

// Mutate runs a write, decodes data into out, then pauses RateLimitDelay.
func (c *Client) Mutate(ctx context.Context, mutation string, out any) error {
	if err := c.do(ctx, mutation, out); err != nil {
		return err
	}
	return c.throttle(ctx)
}

func (c *Client) throttle(ctx context.Context) error {
	if c.cfg.RateLimitDelay <= 0 {
		return nil
	}
	t := time.NewTimer(c.cfg.RateLimitDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Client) do(ctx context.Context, query string, out any) error {
	body, err := json.Marshal(graphQLRequest{Query: query})
	if err != nil {
		return fmt.Errorf("noloco: encode request: %w", err)
	}

	attempts := 0
	var lastTransient error
	err = retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		attempts++
		err := c.attempt(ctx, body, out)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if IsRetryable(err) {
			lastTransient = err
			c.logger.Warn("noloco call failed, will retry",
				zap.Int("attempt", attempts),
				zap.Int("max_retries", c.cfg.MaxRetries),
				zap.Error(err))
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil && lastTransient != nil && err == lastTransient {
		return &RetryError{Attempts: attempts, Err: err}
	}
	return err
}

// backoff waits RetryDelay × n before retry n, capped at MaxRetries.
func (c *Client) backoff() retry.Backoff {
	var n time.Duration
	linear := retry.BackoffFunc(func() (time.Duration, bool) {
		n++
		return c.cfg.RetryDelay * n, false
	})
	return retry.WithMaxRetries(uint64(c.cfg.MaxRetries), linear)
}

func (c *Client) attempt(ctx context.Context, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("noloco: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(c.cfg.Token))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &transportError{err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &transportError{err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		return &HTTPStatusError{StatusCode: resp.StatusCode, Body: truncate(string(raw), 200)}
	}

	var envelope graphQLResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("noloco: decode response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		gqlErr := &GraphQLError{}
		for _, e := range envelope.Errors {
			msg := e.Message
			if msg == "" {
				msg = "unknown error"
			}
			gqlErr.Messages = append(gqlErr.Messages, msg)
		}
		return gqlErr
	}
	if out == nil || len(envelope.Data) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(envelope.Data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("noloco: decode data: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
