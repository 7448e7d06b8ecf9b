package httpclient

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// idempotentMethods is the set of methods retryTransport will retry. The
// vendor dispatch API's writes (task create/cancel, token fetch) are POST
// and have no idempotency key, so they run once through this transport;
// vendorclient.Client.do owns retrying those at the application level via
// its own 401/403-refresh-and-retry-once contract.
var idempotentMethods = map[string]struct{}{
	http.MethodGet:     {},
	http.MethodHead:    {},
	http.MethodOptions: {},
}

// retryTransport retries a request against transient failures: 5xx, 429,
// 408, and a handful of network-level errors, with exponential backoff
// and jitter. A Retry-After response header replaces the backoff only when
// it is shorter.
type retryTransport struct {
	base        http.RoundTripper
	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

func newRetryTransport(base http.RoundTripper, cfg Config) *retryTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &retryTransport{
		base:        base,
		maxAttempts: cfg.RetryAttempts + 1,
		baseBackoff: cfg.RetryBackoff,
		maxBackoff:  cfg.MaxBackoff,
	}
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if _, ok := idempotentMethods[strings.ToUpper(req.Method)]; !ok {
		return t.base.RoundTrip(req)
	}

	var lastErr error
	var lastResp *http.Response

	for attempt := 1; attempt <= t.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := t.wait(req, attempt-1, lastResp); err != nil {
				return nil, err
			}
		}

		resp, err := t.base.RoundTrip(req)
		lastErr, lastResp = err, resp

		if err != nil {
			if !t.isRetryableError(err) {
				return nil, err
			}
		} else if !t.shouldRetryStatus(resp.StatusCode) {
			return resp, nil
		} else if resp.Body != nil {
			resp.Body.Close()
		}

		if req.Context().Err() != nil {
			return nil, req.Context().Err()
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return lastResp, nil
}

// wait blocks for this attempt's backoff, capped by a Retry-After header
// on the previous response if it's the smaller of the two, and returns
// early with the context's error if the request is canceled first.
func (t *retryTransport) wait(req *http.Request, attempt int, prevResp *http.Response) error {
	delay := t.calculateBackoff(attempt)
	if prevResp != nil {
		if retryAfter := t.parseRetryAfter(prevResp); retryAfter > 0 && retryAfter < delay {
			delay = retryAfter
		}
	}

	select {
	case <-time.After(delay):
		return nil
	case <-req.Context().Done():
		return req.Context().Err()
	}
}

func (t *retryTransport) shouldRetryStatus(statusCode int) bool {
	switch {
	case statusCode >= 500 && statusCode < 600:
		return true
	case statusCode == http.StatusRequestTimeout, statusCode == http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

// isRetryableError reports whether err looks transient: a context
// cancellation is never retried, a net.Error's Timeout/Temporary flags
// are honored, and a handful of common dial/DNS failure strings are
// matched as a fallback for errors that don't implement net.Error.
func (t *retryTransport) isRetryableError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout() || netErr.Temporary()
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return t.isRetryableError(urlErr.Err)
	}

	errMsg := strings.ToLower(err.Error())
	for _, keyword := range [...]string{
		"connection refused",
		"connection reset",
		"no such host",
		"network unreachable",
		"temporary failure in name resolution",
		"eof",
	} {
		if strings.Contains(errMsg, keyword) {
			return true
		}
	}
	return false
}

// calculateBackoff returns baseBackoff*2^(attempt-1), capped at
// maxBackoff, plus up to 20% jitter.
func (t *retryTransport) calculateBackoff(attempt int) time.Duration {
	backoff := float64(t.baseBackoff) * math.Pow(2.0, float64(attempt-1))
	if backoff > float64(t.maxBackoff) {
		backoff = float64(t.maxBackoff)
	}
	jitter := rand.Float64() * backoff * 0.2
	return time.Duration(backoff + jitter)
}

// parseRetryAfter reads Retry-After as either a seconds count or an
// HTTP-date, returning 0 if absent, malformed, or already past.
func (t *retryTransport) parseRetryAfter(resp *http.Response) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if retryTime, err := http.ParseTime(header); err == nil {
		if delay := time.Until(retryTime); delay > 0 {
			return delay
		}
	}
	return 0
}
