// Package cache memoizes leaderboard results behind a short TTL.
//
// A Memoizer sits in front of a byte-oriented Store (Redis or an embedded
// badger instance), encodes values as JSON and collapses concurrent misses
// for the same key into a single computation.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/alem-hub/challenges-leaderboard/internal/infrastructure/metrics"
	"github.com/alem-hub/challenges-leaderboard/pkg/logger"
)

// flightTimeout bounds a shared computation once it no longer follows the
// context of the caller that started it.
const flightTimeout = 30 * time.Second

// ErrCacheMiss is returned by a Store when the key is absent or expired.
var ErrCacheMiss = errors.New("cache: key not found")

// Store is the storage behind a Memoizer.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Ping(ctx context.Context) error
}

// Memoizer caches computed values for a fixed TTL. Errors are never cached.
type Memoizer struct {
	store Store
	ttl   time.Duration
	group singleflight.Group
	log   *logger.Logger
}

// NewMemoizer creates a Memoizer over store.
func NewMemoizer(store Store, ttl time.Duration, log *logger.Logger) *Memoizer {
	if log == nil {
		log = logger.Nop()
	}
	return &Memoizer{
		store: store,
		ttl:   ttl,
		log:   log.With(logger.Component("memoizer")),
	}
}

// TTL returns the lifetime of cached values.
func (m *Memoizer) TTL() time.Duration { return m.ttl }

// Ping checks the underlying store.
func (m *Memoizer) Ping(ctx context.Context) error { return m.store.Ping(ctx) }

// Memoize returns the cached value for key or computes and stores it.
// Concurrent callers missing the same key share one compute call.
// A nil Memoizer computes every time.
func Memoize[T any](ctx context.Context, m *Memoizer, key Key, compute func(context.Context) (T, error)) (T, error) {
	if m == nil {
		return compute(ctx)
	}

	k := key.String()
	if v, ok := lookup[T](ctx, m, k); ok {
		metrics.CacheHits.WithLabelValues(key.Namespace).Inc()
		return v, nil
	}
	metrics.CacheMisses.WithLabelValues(key.Namespace).Inc()

	// The flight outlives any single caller: followers must not inherit the
	// leader's cancellation. Each caller still stops waiting on its own ctx.
	ch := m.group.DoChan(k, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flightTimeout)
		defer cancel()

		// another flight may have filled the key while we waited
		if v, ok := lookup[T](fctx, m, k); ok {
			return v, nil
		}

		v, err := compute(fctx)
		if err != nil {
			return nil, err
		}
		m.put(fctx, k, v)
		return v, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		if res.Shared {
			m.log.Debug("shared in-flight computation", logger.CacheKey(k))
		}
		return res.Val.(T), nil
	}
}

// lookup reads and decodes key. Store and decode failures count as misses.
func lookup[T any](ctx context.Context, m *Memoizer, key string) (T, bool) {
	var v T

	data, err := m.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			metrics.CacheErrors.WithLabelValues("get").Inc()
			m.log.Warn("cache read failed", logger.CacheKey(key), logger.Err(err))
		}
		return v, false
	}

	if err := json.Unmarshal(data, &v); err != nil {
		metrics.CacheErrors.WithLabelValues("decode").Inc()
		m.log.Warn("cache entry is not decodable", logger.CacheKey(key), logger.Err(err))
		return v, false
	}
	return v, true
}

// put stores v best-effort. A failed write only costs a future recompute.
func (m *Memoizer) put(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		metrics.CacheErrors.WithLabelValues("encode").Inc()
		m.log.Warn("cache value is not encodable", logger.CacheKey(key), logger.Err(err))
		return
	}
	if err := m.store.Set(ctx, key, data, m.ttl); err != nil {
		metrics.CacheErrors.WithLabelValues("set").Inc()
		m.log.Warn("cache write failed", logger.CacheKey(key), logger.Err(err))
	}
}
