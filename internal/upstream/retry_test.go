package upstream

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/framelens/promptforge/internal/domain"
	"github.com/framelens/promptforge/internal/metrics"
)

// fastPolicy keeps test wall-clock time low while preserving the doubling shape.
var fastPolicy = Policy{MaxRetries: 3, InitialBackoff: 10 * time.Millisecond}

func TestDo_SuccessFirstAttempt(t *testing.T) {
	calls := 0
	resp, err := Do(context.Background(), "gen", fastPolicy, zap.NewNop(), func(_ context.Context) (*Response, error) {
		calls++
		return &Response{StatusCode: 200, Body: []byte("ok")}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if string(resp.Body) != "ok" {
		t.Errorf("unexpected body: %s", resp.Body)
	}
}

func TestDo_RecoversAfterServerErrors(t *testing.T) {
	// 500 three times, then 200: the 200 response must come back,
	// and the elapsed time must cover the geometric backoff sum.
	calls := 0
	start := time.Now()
	resp, err := Do(context.Background(), "gen", fastPolicy, zap.NewNop(), func(_ context.Context) (*Response, error) {
		calls++
		if calls <= 3 {
			return &Response{StatusCode: 500}, nil
		}
		return &Response{StatusCode: 200, Body: []byte("recovered")}, nil
	})
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 4 {
		t.Errorf("expected 4 calls, got %d", calls)
	}
	if resp.StatusCode != 200 {
		t.Errorf("expected the 200 response, got %d", resp.StatusCode)
	}

	// Waits: 10ms + 20ms + 40ms = 70ms minimum.
	if want := 70 * time.Millisecond; elapsed < want {
		t.Errorf("elapsed %v, want at least %v", elapsed, want)
	}
}

func TestDo_ClientErrorNotRetried(t *testing.T) {
	calls := 0
	resp, err := Do(context.Background(), "gen", fastPolicy, zap.NewNop(), func(_ context.Context) (*Response, error) {
		calls++
		return &Response{StatusCode: http.StatusBadRequest, Body: []byte("bad input")}, nil
	})
	if err != nil {
		t.Fatalf("a 4xx must be returned, not raised: %v", err)
	}
	if calls != 1 {
		t.Errorf("4xx must not be retried, got %d calls", calls)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("response must come back as-is, got %d", resp.StatusCode)
	}
}

func TestDo_RateLimitIsRetried(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), "gen", Policy{MaxRetries: 2, InitialBackoff: time.Millisecond}, zap.NewNop(),
		func(_ context.Context) (*Response, error) {
			calls++
			return &Response{StatusCode: http.StatusTooManyRequests}, nil
		})
	if calls != 3 {
		t.Errorf("429 must be retried, got %d calls", calls)
	}
	if !errors.Is(err, domain.ErrUpstreamTransient) {
		t.Errorf("exhaustion must wrap ErrUpstreamTransient, got %v", err)
	}
}

func TestDo_ExhaustionCarriesLastStatus(t *testing.T) {
	_, err := Do(context.Background(), "vision", Policy{MaxRetries: 1, InitialBackoff: time.Millisecond}, zap.NewNop(),
		func(_ context.Context) (*Response, error) {
			return &Response{StatusCode: 503}, nil
		})

	var uerr *Error
	if !errors.As(err, &uerr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if uerr.StatusCode != 503 {
		t.Errorf("StatusCode = %d, want 503", uerr.StatusCode)
	}
	if uerr.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", uerr.Attempts)
	}
}

func TestDo_NetworkErrorRetriedThenExhausted(t *testing.T) {
	netErr := errors.New("connection refused")
	calls := 0
	_, err := Do(context.Background(), "embed", Policy{MaxRetries: 2, InitialBackoff: time.Millisecond}, zap.NewNop(),
		func(_ context.Context) (*Response, error) {
			calls++
			return nil, netErr
		})
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	var uerr *Error
	if !errors.As(err, &uerr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if !errors.Is(uerr.Err, netErr) {
		t.Errorf("last error not carried: %v", uerr.Err)
	}
}

func TestDo_BackoffDoublesExactly(t *testing.T) {
	var waits []time.Duration
	var last time.Time

	policy := Policy{MaxRetries: 3, InitialBackoff: 20 * time.Millisecond}
	_, _ = Do(context.Background(), "gen", policy, zap.NewNop(), func(_ context.Context) (*Response, error) {
		now := time.Now()
		if !last.IsZero() {
			waits = append(waits, now.Sub(last))
		}
		last = now
		return &Response{StatusCode: 500}, nil
	})

	if len(waits) != 3 {
		t.Fatalf("expected 3 waits, got %d", len(waits))
	}
	expected := policy.InitialBackoff
	for i, w := range waits {
		if w < expected {
			t.Errorf("wait %d = %v, want at least %v", i, w, expected)
		}
		// Generous upper bound: each wait must stay well under the next doubling.
		if w > 2*expected {
			t.Errorf("wait %d = %v, exceeds doubled bound %v", i, w, 2*expected)
		}
		expected *= 2
	}
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	_, err := Do(ctx, "gen", Policy{MaxRetries: 3, InitialBackoff: time.Second}, zap.NewNop(),
		func(_ context.Context) (*Response, error) {
			calls++
			return &Response{StatusCode: 500}, nil
		})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call before cancellation, got %d", calls)
	}
}

func TestTransient(t *testing.T) {
	cases := []struct {
		status int
		want   bool
	}{
		{200, false}, {400, false}, {404, false}, {422, false},
		{429, true}, {500, true}, {502, true}, {503, true},
	}
	for _, tc := range cases {
		if got := Transient(tc.status); got != tc.want {
			t.Errorf("Transient(%d) = %v, want %v", tc.status, got, tc.want)
		}
	}
}

func TestDo_CountsEachRetry(t *testing.T) {
	// Two transient failures then success: exactly two retries recorded
	// under the service label.
	before := testutil.ToFloat64(metrics.UpstreamRetriesTotal.WithLabelValues("retry-count"))

	calls := 0
	_, err := Do(context.Background(), "retry-count", fastPolicy, zap.NewNop(), func(_ context.Context) (*Response, error) {
		calls++
		if calls <= 2 {
			return &Response{StatusCode: 503}, nil
		}
		return &Response{StatusCode: 200}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := testutil.ToFloat64(metrics.UpstreamRetriesTotal.WithLabelValues("retry-count")) - before
	if got != 2 {
		t.Errorf("recorded %v retries, want 2", got)
	}
}
