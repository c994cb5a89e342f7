// Package ratelimit gates expensive pipeline runs with layered fixed-window
// limits keyed by caller identity.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Layer is one window limit: at most Limit acquisitions per Window.
type Layer struct {
	Limit  int
	Window time.Duration
}

// Decision is the outcome of a TryAcquire call. RetryAfter is set by the first
// rejecting layer and is always positive on rejection.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Store persists window counters write-behind so limits survive restarts.
// Implementations must be safe for concurrent use.
type Store interface {
	IncrBy(ctx context.Context, key string, val int64) error
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

type window struct {
	start time.Time
	count int
}

type bucket struct {
	name   string
	layers []Layer
	// windows[layerIdx][key]
	windows []map[string]*window
}

// sweepInterval bounds how often expired window entries are pruned.
const sweepInterval = time.Minute

// Limiter holds independent named buckets. All accounting per key is atomic
// under the limiter mutex; no lock is held across I/O.
type Limiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	store     Store
	logger    *zap.Logger
	now       func() time.Time
	lastSweep time.Time
}

// New creates an empty limiter.
func New(logger *zap.Logger) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		logger:  logger,
		now:     time.Now,
	}
}

// WithStore attaches write-behind counter persistence.
func (l *Limiter) WithStore(store Store) *Limiter {
	l.store = store
	return l
}

// AddBucket registers a named bucket with its layered limits.
func (l *Limiter) AddBucket(name string, layers ...Layer) *Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := &bucket{name: name, layers: layers}
	for range layers {
		b.windows = append(b.windows, make(map[string]*window))
	}
	l.buckets[name] = b
	return l
}

// TryAcquire consumes one slot for key in the named bucket. A request must pass
// every layer; the first rejecting layer determines RetryAfter. Exhaustion is
// reported through the Decision, never as an error.
func (l *Limiter) TryAcquire(ctx context.Context, bucketName, key string) Decision {
	l.mu.Lock()

	b, ok := l.buckets[bucketName]
	if !ok {
		// Unknown bucket: no limit configured, allow.
		l.mu.Unlock()
		return Decision{Allowed: true}
	}

	now := l.now()
	if now.Sub(l.lastSweep) >= sweepInterval {
		l.sweep(now)
		l.lastSweep = now
	}

	// All layers must pass before any is charged.
	for i, layer := range b.layers {
		w := b.windows[i][key]
		if w != nil && now.Sub(w.start) < layer.Window && w.count >= layer.Limit {
			retryAfter := layer.Window - now.Sub(w.start)
			l.mu.Unlock()
			return Decision{Allowed: false, RetryAfter: retryAfter}
		}
	}

	for i, layer := range b.layers {
		w := b.windows[i][key]
		if w == nil || now.Sub(w.start) >= layer.Window {
			w = &window{start: now}
			b.windows[i][key] = w
		}
		w.count++
	}

	store := l.store
	l.mu.Unlock()

	if store != nil {
		l.persist(ctx, b, key)
	}
	return Decision{Allowed: true}
}

// sweep drops window entries whose window has elapsed, so the per-key maps
// do not grow without bound as distinct callers come and go. Caller holds mu.
func (l *Limiter) sweep(now time.Time) {
	for _, b := range l.buckets {
		for i, layer := range b.layers {
			for key, w := range b.windows[i] {
				if now.Sub(w.start) >= layer.Window {
					delete(b.windows[i], key)
				}
			}
		}
	}
}

// persist mirrors the acquisition to the counter store, write-behind.
// Store failures never affect the admission decision.
func (l *Limiter) persist(ctx context.Context, b *bucket, key string) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	for _, layer := range b.layers {
		counterKey := counterKey(b.name, key, layer.Window)
		if err := l.store.IncrBy(ctx, counterKey, 1); err != nil {
			l.logger.Warn("failed to persist rate-limit counter",
				zap.String("key", counterKey), zap.Error(err))
			continue
		}
		if err := l.store.Expire(ctx, counterKey, layer.Window, true); err != nil {
			l.logger.Warn("failed to expire rate-limit counter",
				zap.String("key", counterKey), zap.Error(err))
		}
	}
}

func counterKey(bucket, key string, window time.Duration) string {
	return fmt.Sprintf("ratelimit:%s:%s:%ds", bucket, key, int(window.Seconds()))
}
