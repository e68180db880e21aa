package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"token-aggregator/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout     = 10 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 500 * time.Millisecond
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
	DefaultUserAgent   = "token-aggregator/1.0"

	maxErrorBody = 512
)

// StatusError is a non-retryable upstream HTTP status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Transport performs JSON GET requests against one upstream host with
// rate limiting, retries and exponential backoff.
type Transport struct {
	source      string
	baseURL     string
	client      *http.Client
	limiter     *rate.Limiter
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	userAgent   string
}

// TransportOption configures Transport.
type TransportOption func(*Transport)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) TransportOption {
	return func(t *Transport) {
		t.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) TransportOption {
	return func(t *Transport) {
		t.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) TransportOption {
	return func(t *Transport) {
		t.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) TransportOption {
	return func(t *Transport) {
		t.maxDelay = d
	}
}

// WithRateLimit allows rps requests per second with the given burst.
// rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) TransportOption {
	return func(t *Transport) {
		if rps <= 0 {
			t.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) TransportOption {
	return func(t *Transport) {
		t.client = client
	}
}

// NewTransport creates a transport for source rooted at baseURL.
func NewTransport(source, baseURL string, opts ...TransportOption) *Transport {
	t := &Transport{
		source:      source,
		baseURL:     strings.TrimRight(baseURL, "/"),
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
		userAgent:   DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// GetJSON fetches baseURL+path with query and decodes the body into out.
// Transport errors, 429 and 5xx are retried; 404 yields ErrNotFound and
// other statuses a *StatusError.
func (t *Transport) GetJSON(ctx context.Context, operation, path string, query url.Values, out any) error {
	endpoint := t.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	start := time.Now()
	defer func() {
		observability.RecordSourceLatency(t.source, operation, time.Since(start).Seconds())
	}()

	delay := t.retryDelay
	var lastErr error

	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		if attempt > 0 {
			observability.RecordSourceRetry(t.source)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * t.backoffMult)
			if delay > t.maxDelay {
				delay = t.maxDelay
			}
		}

		if t.limiter != nil {
			if err := t.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("rate limiter: %w", err)
			}
		}

		body, retryAfter, err := t.do(ctx, endpoint)
		if err == nil {
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("%s %s: unmarshal response: %w", t.source, operation, err)
			}
			return nil
		}
		if !retryable(err) {
			return fmt.Errorf("%s %s: %w", t.source, operation, err)
		}
		lastErr = err
		if retryAfter > delay {
			delay = min(retryAfter, t.maxDelay)
		}
	}

	return fmt.Errorf("%s %s: max retries exceeded: %w", t.source, operation, lastErr)
}

// do performs one request. retryAfter is set from a 429 Retry-After header.
func (t *Transport) do(ctx context.Context, endpoint string) ([]byte, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, &permanentError{fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", t.userAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, &permanentError{ctx.Err()}
		}
		return nil, 0, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, 0, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, parseRetryAfter(resp.Header.Get("Retry-After")), fmt.Errorf("rate limited (429)")
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, 0, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(body))
	case resp.StatusCode == http.StatusNotFound:
		return nil, 0, &permanentError{ErrNotFound}
	default:
		return nil, 0, &permanentError{&StatusError{StatusCode: resp.StatusCode, Body: truncate(body)}}
	}
}

// permanentError marks a failure that retrying cannot fix.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func retryable(err error) bool {
	_, permanent := err.(*permanentError)
	return !permanent
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func truncate(body []byte) string {
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody])
	}
	return string(body)
}
