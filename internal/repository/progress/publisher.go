// Package progress publishes per-stage pipeline updates. Delivery is
// fire-and-forget; a failed publish never fails the pipeline.
package progress

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

const publishTimeout = 2 * time.Second

// store is the consumer interface for progress publishing (ISP).
type store interface {
	Publish(ctx context.Context, channel string, message []byte) error
}

// Update is one stage notification sent to subscribers of the correlation key.
type Update struct {
	Stage  string `json:"stage"`
	Detail string `json:"detail,omitempty"`
}

// Publisher sends pipeline stage updates over pub/sub.
type Publisher struct {
	store  store
	logger *zap.Logger
}

// New creates a progress publisher.
func New(s store, logger *zap.Logger) *Publisher {
	return &Publisher{store: s, logger: logger}
}

// Notify publishes a stage update under the correlation key. Errors are logged
// and swallowed; the call does not block beyond a short timeout.
func (p *Publisher) Notify(ctx context.Context, correlationKey, stage, detail string) {
	if correlationKey == "" {
		return
	}

	data, err := json.Marshal(Update{Stage: stage, Detail: detail})
	if err != nil {
		p.logger.Warn("marshal progress update", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := p.store.Publish(ctx, channelKey(correlationKey), data); err != nil {
		p.logger.Warn("publish progress update",
			zap.String("correlation_key", correlationKey),
			zap.String("stage", stage),
			zap.Error(err),
		)
	}
}

func channelKey(correlationKey string) string {
	return "progress:" + correlationKey
}
