// Package upstream wraps outbound calls to failure-prone services with
// retry-with-exponential-backoff and bounded polling for asynchronous jobs.
package upstream

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/framelens/promptforge/internal/domain"
	"github.com/framelens/promptforge/internal/metrics"
)

// Response is the transport-agnostic result of one upstream call.
type Response struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// CallFunc performs one attempt. A non-nil error means the call never produced
// a response (network failure); an error-status response comes back as Response.
type CallFunc func(ctx context.Context) (*Response, error)

// Policy controls retry behavior for one class of calls.
type Policy struct {
	MaxRetries     int
	InitialBackoff time.Duration
}

// DefaultPolicy governs synchronous upstream calls.
var DefaultPolicy = Policy{MaxRetries: 3, InitialBackoff: 2 * time.Second}

// JobPolicy governs retries of whole asynchronous jobs.
var JobPolicy = Policy{MaxRetries: 4, InitialBackoff: 5 * time.Second}

// Error carries the last failure after retries are exhausted.
type Error struct {
	Service    string
	Attempts   int
	StatusCode int // 0 when the last attempt was a network failure
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %d attempts exhausted: %v", e.Service, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s: %d attempts exhausted, last status %d", e.Service, e.Attempts, e.StatusCode)
}

func (e *Error) Unwrap() error { return domain.ErrUpstreamTransient }

// Transient reports whether a status code warrants a retry: 429 or any 5xx.
func Transient(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode >= 500
}

// Do performs fn with retry-with-exponential-backoff.
//
// A 2xx response returns immediately. A 4xx other than 429 returns the response
// as-is without retrying; the caller decides how to interpret it. Network
// failures, 5xx, and 429 are retried up to policy.MaxRetries additional times,
// sleeping backoff before each retry and doubling it after each attempt. When
// retries are exhausted, Do returns an *Error wrapping ErrUpstreamTransient.
func Do(ctx context.Context, service string, policy Policy, logger *zap.Logger, fn CallFunc) (*Response, error) {
	backoff := policy.InitialBackoff
	attempts := policy.MaxRetries + 1

	var lastResp *Response
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			metrics.UpstreamRetriesTotal.WithLabelValues(service).Inc()
			logger.Warn("retrying upstream call",
				zap.String("service", service),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
			)
			if err := sleep(ctx, backoff); err != nil {
				return nil, fmt.Errorf("upstream %s: %w", service, err)
			}
			backoff *= 2
		}

		resp, err := fn(ctx)
		if err != nil {
			lastResp, lastErr = nil, err
			continue
		}
		if resp.OK() {
			return resp, nil
		}
		if !Transient(resp.StatusCode) {
			// Non-retryable client error: hand the response back unchanged.
			return resp, nil
		}
		lastResp, lastErr = resp, nil
	}

	uerr := &Error{Service: service, Attempts: attempts, Err: lastErr}
	if lastResp != nil {
		uerr.StatusCode = lastResp.StatusCode
	}
	return lastResp, uerr
}

// sleep waits for d or until ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
