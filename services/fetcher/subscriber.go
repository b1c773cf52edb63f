// Package fetcher wraps a data-producing operation with a shared cache,
// retry with exponential backoff, and last-request-wins cancellation.
package fetcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/revops/pipeline-monitor/services"
)

// Options configures a Subscriber.
type Options struct {
	// CacheKey identifies the operation in the shared Store. Empty disables caching.
	CacheKey   string
	TTL        time.Duration
	RetryLimit int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// SkipCache forces every Fetch to go to the operation.
	SkipCache bool
	// NoRevalidate serves a fresh entry without the background refresh.
	NoRevalidate bool
}

// DefaultOptions returns the stock fetch policy for key.
func DefaultOptions(key string) Options {
	return Options{
		CacheKey:   key,
		TTL:        5 * time.Minute,
		RetryLimit: 3,
		BaseDelay:  time.Second,
		MaxDelay:   10 * time.Second,
	}
}

func (o Options) policy() RetryPolicy {
	return RetryPolicy{Limit: o.RetryLimit, BaseDelay: o.BaseDelay, MaxDelay: o.MaxDelay}
}

// State is the visible result of a subscriber.
type State[T any] struct {
	Data    T      `json:"data"`
	HasData bool   `json:"has_data"`
	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`
}

// Subscriber owns one view of an operation. Only the most recently issued
// request may change its State; earlier requests are cancelled and their
// results discarded.
type Subscriber[T any] struct {
	op     Operation[T]
	opts   Options
	store  Store
	logger *zap.Logger
	now    func() time.Time
	sleep  sleepFunc

	mu      sync.Mutex
	state   State[T]
	gen     uint64
	cancel  context.CancelFunc
	mounted bool

	background sync.WaitGroup
}

// NewSubscriber creates a mounted subscriber for op.
func NewSubscriber[T any](store Store, op Operation[T], opts Options, logger *zap.Logger) (*Subscriber[T], error) {
	if op == nil {
		return nil, fmt.Errorf("fetcher: operation is required")
	}
	if err := opts.policy().Validate(); err != nil {
		return nil, fmt.Errorf("fetcher: %w", err)
	}
	if store == nil {
		store = NewMemoryStore(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Subscriber[T]{
		op:      op,
		opts:    opts,
		store:   store,
		logger:  logger,
		now:     time.Now,
		sleep:   sleepContext,
		mounted: true,
	}, nil
}

// Fetch supersedes any in-flight request and returns the resulting state.
// A fresh cache entry is returned at once and refreshed in the background
// unless NoRevalidate is set.
func (s *Subscriber[T]) Fetch(ctx context.Context) State[T] {
	return s.fetch(ctx, !s.opts.SkipCache)
}

// Refetch evicts the cache entry and performs an uncached fetch.
func (s *Subscriber[T]) Refetch(ctx context.Context) State[T] {
	if s.opts.CacheKey != "" {
		s.store.Delete(s.opts.CacheKey)
	}
	return s.fetch(ctx, false)
}

// State returns a snapshot of the visible state.
func (s *Subscriber[T]) State() State[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close unmounts the subscriber, cancels outstanding work and waits for
// background refreshes to exit. Later fetches return the last state.
func (s *Subscriber[T]) Close() {
	s.mu.Lock()
	s.mounted = false
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()

	s.background.Wait()
}

// Wait blocks until running background refreshes finish.
func (s *Subscriber[T]) Wait() {
	s.background.Wait()
}

func (s *Subscriber[T]) fetch(parent context.Context, useCache bool) State[T] {
	key := s.opts.CacheKey

	s.mu.Lock()
	if !s.mounted {
		st := s.state
		s.mu.Unlock()
		return st
	}
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	s.gen++
	gen := s.gen
	s.cancel = cancel

	if useCache && key != "" {
		if entry, ok := s.store.Get(key); ok && entry.IsFresh(s.now(), s.opts.TTL) {
			if v, ok := entry.Value.(T); ok {
				s.state = State[T]{Data: v, HasData: true}
				st := s.state
				if s.opts.NoRevalidate {
					cancel()
					s.cancel = nil
					s.mu.Unlock()
					return st
				}
				s.background.Add(1)
				s.mu.Unlock()

				go s.refresh(ctx, gen)
				return st
			}
		}
	}

	s.state.Loading = true
	s.state.Error = ""
	s.mu.Unlock()

	v, err := retry(ctx, s.opts.policy(), s.op, s.sleep)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen || !s.mounted {
		// Superseded or unmounted; the newer owner of the state decides.
		return s.state
	}
	cancel()
	s.cancel = nil
	s.state.Loading = false

	switch {
	case err == nil:
		if key != "" {
			s.store.Set(key, v)
		}
		s.state.Data = v
		s.state.HasData = true
	case services.IsCancelledError(err):
		s.logger.Debug("fetch cancelled", zap.String("cache_key", key))
	default:
		s.state.Error = err.Error()
	}
	return s.state
}

func (s *Subscriber[T]) refresh(ctx context.Context, gen uint64) {
	defer s.background.Done()

	key := s.opts.CacheKey
	v, err := retry(ctx, s.opts.policy(), s.op, s.sleep)
	if err != nil {
		if !services.IsCancelledError(err) && ctx.Err() == nil {
			s.logger.Warn("background refresh failed",
				zap.String("cache_key", key),
				zap.Error(err),
			)
		}
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ctx.Err() != nil || gen != s.gen || !s.mounted {
		return
	}
	s.store.Set(key, v)
	s.state.Data = v
	s.state.HasData = true
}
