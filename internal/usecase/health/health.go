// Package health aggregates readiness checks over the store and the
// embedding provider.
package health

import (
	"context"
	"fmt"
	"time"

	"github.com/framelens/promptforge/internal/domain"
)

const checkTimeout = 3 * time.Second

// Pinger verifies store connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Service runs readiness checks.
type Service struct {
	store    Pinger
	embedder domain.HealthChecker
}

// New creates a health service. embedder may be nil when the provider check
// is disabled.
func New(store Pinger, embedder domain.HealthChecker) *Service {
	return &Service{store: store, embedder: embedder}
}

// Check reports the first failing dependency, or nil when ready.
func (s *Service) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if s.embedder != nil {
		if err := s.embedder.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding provider: %w", err)
		}
	}
	return nil
}
