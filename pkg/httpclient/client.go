// Package httpclient performs JSON REST calls with bounded latency:
// every call is admitted by the shared rate limiter, carries a hard
// per-attempt deadline, and transient failures are retried with
// jittered exponential backoff.
package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gtmarket/polyscope/pkg/ratelimit"
)

const (
	defaultTimeout    = 10 * time.Second
	defaultMaxRetries = 2

	defaultBackoffBase = 200 * time.Millisecond
	defaultBackoffCap  = 30 * time.Second

	userAgent = "polyscope/1.0"
)

// Request describes one logical fetch. Zero values fall back to the
// client defaults.
type Request struct {
	URL        string
	Method     string
	Timeout    time.Duration
	MaxRetries int // extra attempts after the first; -1 disables retries
}

type Client struct {
	http    *http.Client
	limiter *ratelimit.Limiter
	logger  *logrus.Logger

	backoffBase time.Duration
	backoffCap  time.Duration
}

type Option func(*Client)

// WithBackoff overrides the retry backoff base and cap.
func WithBackoff(base, cap time.Duration) Option {
	return func(c *Client) {
		c.backoffBase = base
		c.backoffCap = cap
	}
}

func New(limiter *ratelimit.Limiter, logger *logrus.Logger, opts ...Option) *Client {
	c := &Client{
		// Per-attempt deadlines come from the request context; the
		// transport itself is left unbounded.
		http:        &http.Client{},
		limiter:     limiter,
		logger:      logger,
		backoffBase: defaultBackoffBase,
		backoffCap:  defaultBackoffCap,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchJSON performs the request and decodes the response body into
// out. It retries on transport failures, 429 and 5xx, up to
// req.MaxRetries extra attempts, and returns the last error once the
// budget is spent.
func (c *Client) FetchJSON(ctx context.Context, req Request, out interface{}) error {
	maxRetries := req.MaxRetries
	if maxRetries == 0 {
		maxRetries = defaultMaxRetries
	} else if maxRetries < 0 {
		maxRetries = 0
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = c.do(ctx, req, out)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return lastErr
		}
		if attempt >= maxRetries || !retryable(lastErr) {
			return lastErr
		}

		delay := c.backoffDelay(attempt + 1)
		c.logger.WithError(lastErr).WithFields(logrus.Fields{
			"url":     req.URL,
			"attempt": attempt + 1,
			"delay":   delay.String(),
		}).Warn("request failed, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}
}

func (c *Client) do(ctx context.Context, req Request, out interface{}) error {
	if err := c.limiter.Acquire(ctx, req.URL); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, method, req.URL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("User-Agent", userAgent)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &HTTPError{Status: resp.StatusCode, URL: req.URL, Body: string(body)}
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDecode, req.URL, err)
	}
	return nil
}

// backoffDelay returns base*2^(attempt-1) + jitter(0,100ms), bounded
// above by the configured cap.
func (c *Client) backoffDelay(attempt int) time.Duration {
	d := c.backoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= c.backoffCap {
			break
		}
	}
	if d > c.backoffCap {
		d = c.backoffCap
	}
	return d + time.Duration(rand.Int63n(int64(100*time.Millisecond)))
}
