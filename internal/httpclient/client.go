// Package httpclient provides a resilient JSON request client for outbound
// provider calls: capped exponential backoff with jitter, Retry-After
// handling, and structured error classification.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/averyhale/booking-concierge/pkg/logging"
)

const (
	defaultBaseDelay   = time.Second
	defaultMaxDelay    = 30 * time.Second
	defaultMaxAttempts = 3
	maxAttemptsCeiling = 5
	defaultTimeout     = 15 * time.Second
)

// RetryConfig controls the retry policy for a request.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Zero means the default of 3; values above 5 are clamped.
	MaxAttempts int
	// BaseDelay is the backoff base, doubled per attempt. Zero means 1s.
	BaseDelay time.Duration
	// MaxDelay caps the computed backoff. Zero means 30s.
	MaxDelay time.Duration
}

func (rc RetryConfig) normalized() RetryConfig {
	if rc.MaxAttempts <= 0 {
		rc.MaxAttempts = defaultMaxAttempts
	}
	if rc.MaxAttempts > maxAttemptsCeiling {
		rc.MaxAttempts = maxAttemptsCeiling
	}
	if rc.BaseDelay <= 0 {
		rc.BaseDelay = defaultBaseDelay
	}
	if rc.MaxDelay <= 0 {
		rc.MaxDelay = defaultMaxDelay
	}
	return rc
}

// APIError is a structured error decoded from a provider response.
type APIError struct {
	Status     int             `json:"status"`
	StatusText string          `json:"statusText"`
	Message    string          `json:"message"`
	Code       string          `json:"code,omitempty"`
	Details    json.RawMessage `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("httpclient: %s (status=%d)", e.Message, e.Status)
	}
	return fmt.Sprintf("httpclient: %s (status=%d)", e.StatusText, e.Status)
}

// Retryable reports whether the error represents a transient condition.
func (e *APIError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || (e.Status >= 500 && e.Status <= 599)
}

// Config controls how the Client behaves.
type Config struct {
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *logging.Logger
	UserAgent  string
}

// Client issues JSON requests with bounded retries.
type Client struct {
	httpClient *http.Client
	logger     *logging.Logger
	userAgent  string

	// jitter and sleep are injectable for tests.
	jitter func() float64
	sleep  func(ctx context.Context, d time.Duration) error
}

// New creates a configured Client with sane defaults.
func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "booking-concierge/0.1"
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		userAgent:  userAgent,
		jitter:     rand.Float64,
		sleep:      sleepCtx,
	}
}

// RequestJSON performs an HTTP request with a JSON body and decodes the JSON
// response into out (which may be nil). Transient failures (429, 5xx, network
// errors) are retried per the RetryConfig; other 4xx responses fail
// immediately with an *APIError. The last error is returned once attempts
// are exhausted.
func (c *Client) RequestJSON(ctx context.Context, method, url string, headers http.Header, body, out any, retry RetryConfig) error {
	rc := retry.normalized()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("httpclient: marshal request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt < rc.MaxAttempts; attempt++ {
		data, retryAfter, err := c.do(ctx, method, url, headers, payload)
		if err == nil {
			if out == nil || len(data) == 0 {
				return nil
			}
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("httpclient: decode response: %w", err)
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !isRetryable(err) || attempt == rc.MaxAttempts-1 {
			return err
		}
		lastErr = err

		delay := c.backoffDelay(rc, attempt)
		// A Retry-After header overrides the computed backoff verbatim.
		if retryAfter > 0 {
			delay = retryAfter
		}
		c.logger.Warn("retrying request",
			"url", url,
			"attempt", attempt+1,
			"delay_ms", delay.Milliseconds(),
			"error", err,
		)
		if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
			return sleepErr
		}
	}
	return lastErr
}

// do performs a single attempt and returns the body, any Retry-After hint,
// and an error for non-2xx responses or transport failures.
func (c *Client) do(ctx context.Context, method, url string, headers http.Header, payload []byte) ([]byte, time.Duration, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, 0, fmt.Errorf("httpclient: build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("httpclient: http error: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("httpclient: read response: %w", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return data, 0, nil
	}
	return nil, parseRetryAfter(resp.Header.Get("Retry-After")), decodeAPIError(resp, data)
}

// backoffDelay computes min(base * 2^attempt, cap) scaled by a jitter factor
// uniform in [0.5, 1.5).
func (c *Client) backoffDelay(rc RetryConfig, attempt int) time.Duration {
	delay := rc.BaseDelay << uint(attempt)
	if delay > rc.MaxDelay || delay <= 0 {
		delay = rc.MaxDelay
	}
	factor := 0.5 + c.jitter()
	return time.Duration(float64(delay) * factor)
}

func isRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	// Remaining transport-level failures (connection refused, reset) are
	// treated as transient.
	return true
}

// parseRetryAfter understands both delta-seconds and HTTP-date forms.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func decodeAPIError(resp *http.Response, body []byte) error {
	apiErr := &APIError{
		Status:     resp.StatusCode,
		StatusText: http.StatusText(resp.StatusCode),
	}
	var parsed struct {
		Message string          `json:"message"`
		Error   string          `json:"error"`
		Code    string          `json:"code"`
		Details json.RawMessage `json:"details"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		apiErr.Message = parsed.Message
		if apiErr.Message == "" {
			apiErr.Message = parsed.Error
		}
		apiErr.Code = parsed.Code
		apiErr.Details = parsed.Details
	} else if len(body) > 0 {
		apiErr.Message = string(body)
	}
	return apiErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
