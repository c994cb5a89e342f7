package upstream

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/framelens/promptforge/internal/domain"
)

// PollFunc performs one poll of an asynchronous job.
// done=true with a payload means the completion signature appeared.
// A non-nil error means an explicit failure status: polling stops immediately.
type PollFunc func(ctx context.Context) (done bool, payload []byte, err error)

// PollConfig bounds a polling loop.
type PollConfig struct {
	Interval    time.Duration
	MaxAttempts int
}

// PollDefault is the standard submit-then-poll ceiling (2s x 60 = 120s).
var PollDefault = PollConfig{Interval: 2 * time.Second, MaxAttempts: 60}

// PollJob polls fn on a fixed interval until completion, explicit failure, or
// the attempt ceiling. Exhausting attempts returns ErrUpstreamTimeout.
func PollJob(ctx context.Context, service string, cfg PollConfig, logger *zap.Logger, fn PollFunc) ([]byte, error) {
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := sleep(ctx, cfg.Interval); err != nil {
			return nil, fmt.Errorf("poll %s: %w", service, err)
		}

		done, payload, err := fn(ctx)
		if err != nil {
			// Explicit failure status: no further polling.
			return nil, fmt.Errorf("poll %s: %w", service, err)
		}
		if done {
			logger.Debug("async job completed",
				zap.String("service", service),
				zap.Int("polls", attempt),
			)
			return payload, nil
		}
	}

	return nil, fmt.Errorf("poll %s: ceiling of %d attempts reached: %w",
		service, cfg.MaxAttempts, domain.ErrUpstreamTimeout)
}
