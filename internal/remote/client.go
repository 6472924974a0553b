package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Collection names a resource of the backend.
type Collection string

const (
	Chats         Collection = "chats"
	Messages      Collection = "messages"
	Users         Collection = "users"
	Notifications Collection = "notifications"
	Statuses      Collection = "statuses"
	Contacts      Collection = "contacts"
)

// Options configures a Client.
type Options struct {
	BaseURL         string
	Timeout         time.Duration
	RatePerSecond   float64
	BreakerFailures uint32
	BreakerCooldown time.Duration
	// RetryFor bounds how long an idempotent GET is retried.
	RetryFor   time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client talks to the json-server style backend. No authentication is sent
// beyond the ids carried in the records themselves.
type Client struct {
	base     *url.URL
	http     *http.Client
	cb       *gobreaker.CircuitBreaker
	limiter  *rate.Limiter
	retryFor time.Duration
	logger   *zap.Logger
}

// New creates a client for opts.BaseURL.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", opts.BaseURL)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	burst := 1
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
		burst = max(1, int(opts.RatePerSecond))
	}

	failures := opts.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	cooldown := opts.BreakerCooldown
	if cooldown <= 0 {
		cooldown = 15 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "remote",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state", zap.String("name", name),
				zap.String("from", from.String()), zap.String("to", to.String()))
		},
		// Only an unreachable backend counts against the breaker.
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrUnavailable)
		},
	})

	return &Client{
		base:     base,
		http:     httpClient,
		cb:       cb,
		limiter:  rate.NewLimiter(limit, burst),
		retryFor: opts.RetryFor,
		logger:   logger,
	}, nil
}

// BaseURL returns the backend address.
func (c *Client) BaseURL() string { return c.base.String() }

// Available reports whether the circuit breaker currently admits requests.
func (c *Client) Available() bool { return c.cb.State() != gobreaker.StateOpen }

// List fetches a collection filtered by equality on the given fields and
// decodes the JSON array into out.
func (c *Client) List(ctx context.Context, coll Collection, filter url.Values, out any) error {
	return c.get(ctx, "/"+string(coll), filter, out)
}

// Get fetches one record by id.
func (c *Client) Get(ctx context.Context, coll Collection, id string, out any) error {
	return c.get(ctx, "/"+string(coll)+"/"+url.PathEscape(id), nil, out)
}

// Create POSTs a record and decodes the stored copy into out when non-nil.
func (c *Client) Create(ctx context.Context, coll Collection, in, out any) error {
	return c.do(ctx, http.MethodPost, "/"+string(coll), nil, in, out)
}

// Patch merges fields into a record.
func (c *Client) Patch(ctx context.Context, coll Collection, id string, fields, out any) error {
	return c.do(ctx, http.MethodPatch, "/"+string(coll)+"/"+url.PathEscape(id), nil, fields, out)
}

// Delete removes a record.
func (c *Client) Delete(ctx context.Context, coll Collection, id string) error {
	return c.do(ctx, http.MethodDelete, "/"+string(coll)+"/"+url.PathEscape(id), nil, nil, nil)
}

// get retries transient failures for a bounded time; writes never retry.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	if c.retryFor <= 0 {
		return c.do(ctx, http.MethodGet, path, query, nil, out)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxElapsedTime = c.retryFor
	operation := func() error {
		err := c.do(ctx, http.MethodGet, path, query, nil, out)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrUnavailable) || errors.Is(err, gobreaker.ErrOpenState) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	_, err := c.cb.Execute(func() (any, error) {
		return nil, c.roundTrip(ctx, method, path, query, body, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, body []byte, out any) error {
	u := *c.base
	u.Path = c.base.Path + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrUnavailable, method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug("remote request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: %s %s", ErrNotFound, method, path)
	case resp.StatusCode >= 500:
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: %s %s: status %d", ErrUnavailable, method, path, resp.StatusCode)
	case resp.StatusCode >= 400:
		_, _ = io.Copy(io.Discard, resp.Body)
		return &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
