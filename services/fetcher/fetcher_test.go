package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/revops/pipeline-monitor/services"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *sleepRecorder) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func testOptions(key string) Options {
	return Options{
		CacheKey:   key,
		TTL:        time.Minute,
		RetryLimit: 3,
		BaseDelay:  time.Second,
		MaxDelay:   10 * time.Second,
	}
}

func newTestSubscriber(t *testing.T, store Store, op Operation[string], opts Options, logger *zap.Logger) (*Subscriber[string], *sleepRecorder) {
	t.Helper()
	sub, err := NewSubscriber(store, op, opts, logger)
	require.NoError(t, err)
	rec := &sleepRecorder{}
	sub.sleep = rec.sleep
	t.Cleanup(sub.Close)
	return sub, rec
}

func TestBackoffDelay(t *testing.T) {
	base := 1000 * time.Millisecond
	maxDelay := 10000 * time.Millisecond
	expected := []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
		10000 * time.Millisecond,
		10000 * time.Millisecond,
	}
	for attempt, want := range expected {
		assert.Equal(t, want, BackoffDelay(attempt, base, maxDelay), "attempt %d", attempt)
	}

	assert.Equal(t, maxDelay, BackoffDelay(200, base, maxDelay))
	assert.Equal(t, 5*time.Second, BackoffDelay(0, 5*time.Second, 5*time.Second))
}

func TestRetryPolicy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		policy  RetryPolicy
		wantErr bool
	}{
		{name: "valid", policy: RetryPolicy{Limit: 0, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}},
		{name: "negative limit", policy: RetryPolicy{Limit: -1, BaseDelay: time.Second, MaxDelay: time.Second}, wantErr: true},
		{name: "zero base", policy: RetryPolicy{Limit: 1, BaseDelay: 0, MaxDelay: time.Second}, wantErr: true},
		{name: "max below base", policy: RetryPolicy{Limit: 1, BaseDelay: time.Second, MaxDelay: time.Millisecond}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil", err: nil, expected: false},
		{name: "transport", err: services.WrapTransport("dial failed", errors.New("connection refused")), expected: true},
		{name: "500", err: services.NewUpstreamError(http.StatusInternalServerError, "boom"), expected: true},
		{name: "503", err: services.NewUpstreamError(http.StatusServiceUnavailable, "down"), expected: true},
		{name: "404", err: services.NewUpstreamError(http.StatusNotFound, "missing"), expected: false},
		{name: "429", err: services.NewUpstreamError(http.StatusTooManyRequests, "slow down"), expected: false},
		{name: "cancelled", err: services.WrapError(services.ErrorTypeCancelled, "request superseded", nil), expected: false},
		{name: "context canceled", err: context.Canceled, expected: false},
		{name: "plain error", err: errors.New("decode failed"), expected: false},
		{name: "validation", err: services.NewDomainError(services.ErrorTypeValidation, "view response does not match the view contract", nil), expected: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryable(tt.err))
		})
	}
}

func TestRetry(t *testing.T) {
	policy := RetryPolicy{Limit: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second}

	t.Run("succeeds after transient failures", func(t *testing.T) {
		rec := &sleepRecorder{}
		calls := 0
		v, err := retry(context.Background(), policy, func(ctx context.Context) (int, error) {
			calls++
			if calls < 3 {
				return 0, services.NewUpstreamError(http.StatusBadGateway, "bad gateway")
			}
			return 42, nil
		}, rec.sleep)

		require.NoError(t, err)
		assert.Equal(t, 42, v)
		assert.Equal(t, 3, calls)
		assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.recorded())
	})

	t.Run("terminal error is not retried", func(t *testing.T) {
		rec := &sleepRecorder{}
		calls := 0
		_, err := retry(context.Background(), policy, func(ctx context.Context) (int, error) {
			calls++
			return 0, services.NewUpstreamError(http.StatusBadRequest, "bad request")
		}, rec.sleep)

		require.Error(t, err)
		assert.Equal(t, http.StatusBadRequest, services.StatusCode(err))
		assert.Equal(t, 1, calls)
		assert.Empty(t, rec.recorded())
	})

	t.Run("retries are exhausted", func(t *testing.T) {
		rec := &sleepRecorder{}
		calls := 0
		_, err := retry(context.Background(), policy, func(ctx context.Context) (int, error) {
			calls++
			return 0, services.WrapTransport("timeout", context.DeadlineExceeded)
		}, rec.sleep)

		require.Error(t, err)
		assert.True(t, services.IsTransportError(err))
		assert.Equal(t, 4, calls)
		assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, rec.recorded())
	})

	t.Run("cancellation is never retried", func(t *testing.T) {
		rec := &sleepRecorder{}
		calls := 0
		_, err := retry(context.Background(), policy, func(ctx context.Context) (int, error) {
			calls++
			return 0, services.WrapError(services.ErrorTypeCancelled, "request superseded", nil)
		}, rec.sleep)

		assert.True(t, services.IsCancelledError(err))
		assert.Equal(t, 1, calls)
		assert.Empty(t, rec.recorded())
	})

	t.Run("cancelled context stops before the first attempt", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		calls := 0
		_, err := retry(ctx, policy, func(ctx context.Context) (int, error) {
			calls++
			return 1, nil
		}, sleepContext)

		assert.True(t, services.IsCancelledError(err))
		assert.Zero(t, calls)
	})

	t.Run("cancellation during backoff", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		_, err := retry(ctx, policy, func(ctx context.Context) (int, error) {
			calls++
			cancel()
			return 0, services.NewUpstreamError(http.StatusServiceUnavailable, "unavailable")
		}, sleepContext)

		assert.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("zero retry limit makes one attempt", func(t *testing.T) {
		calls := 0
		_, err := Retry(context.Background(), RetryPolicy{Limit: 0, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
			func(ctx context.Context) (int, error) {
				calls++
				return 0, services.NewUpstreamError(http.StatusInternalServerError, "boom")
			})
		assert.Error(t, err)
		assert.Equal(t, 1, calls)
	})
}

func TestSubscriber_FreshCacheHitRefreshesInBackground(t *testing.T) {
	store := NewMemoryStore(0)
	var calls atomic.Int32
	op := func(ctx context.Context) (string, error) {
		if calls.Add(1) == 1 {
			return "v1", nil
		}
		return "v2", nil
	}
	sub, _ := newTestSubscriber(t, store, op, testOptions("views:pipeline"), nil)

	first := sub.Fetch(context.Background())
	assert.Equal(t, "v1", first.Data)
	assert.False(t, first.Loading)
	assert.Equal(t, int32(1), calls.Load())

	second := sub.Fetch(context.Background())
	assert.Equal(t, "v1", second.Data)
	assert.True(t, second.HasData)
	assert.False(t, second.Loading)

	sub.Wait()
	assert.Equal(t, int32(2), calls.Load(), "exactly one background refresh")
	assert.Equal(t, "v2", sub.State().Data)

	entry, ok := store.Get("views:pipeline")
	require.True(t, ok)
	assert.Equal(t, "v2", entry.Value)
}

func TestSubscriber_NoRevalidateServesFreshEntryOnly(t *testing.T) {
	store := NewMemoryStore(0)
	var calls atomic.Int32
	opts := testOptions("health:platform")
	opts.NoRevalidate = true
	sub, _ := newTestSubscriber(t, store, func(ctx context.Context) (string, error) {
		return fmt.Sprintf("check-%d", calls.Add(1)), nil
	}, opts, nil)

	assert.Equal(t, "check-1", sub.Fetch(context.Background()).Data)
	assert.Equal(t, "check-1", sub.Fetch(context.Background()).Data)
	sub.Wait()
	assert.Equal(t, int32(1), calls.Load())

	assert.Equal(t, "check-2", sub.Refetch(context.Background()).Data)
}

func TestSubscriber_StaleEntryIsFetchedInForeground(t *testing.T) {
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }

	store := NewMemoryStore(0)
	store.now = now
	store.Set("k", "old")

	var calls atomic.Int32
	sub, _ := newTestSubscriber(t, store, func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "new", nil
	}, testOptions("k"), nil)
	sub.now = func() time.Time { return clock.Add(2 * time.Minute) }

	st := sub.Fetch(context.Background())
	assert.Equal(t, "new", st.Data)
	assert.Equal(t, int32(1), calls.Load())

	sub.Wait()
	assert.Equal(t, int32(1), calls.Load(), "no background refresh for a stale entry")
}

func TestSubscriber_SharedKeyAcrossSubscribers(t *testing.T) {
	store := NewMemoryStore(0)
	var aCalls, bCalls atomic.Int32

	a, _ := newTestSubscriber(t, store, func(ctx context.Context) (string, error) {
		aCalls.Add(1)
		return "from-a", nil
	}, testOptions("shared"), nil)
	b, _ := newTestSubscriber(t, store, func(ctx context.Context) (string, error) {
		bCalls.Add(1)
		return "from-b", nil
	}, testOptions("shared"), nil)
	other, _ := newTestSubscriber(t, store, func(ctx context.Context) (string, error) {
		return "other", nil
	}, testOptions("different"), nil)

	a.Fetch(context.Background())
	st := b.Fetch(context.Background())
	assert.Equal(t, "from-a", st.Data, "second subscriber served from the shared entry")
	b.Wait()
	assert.Equal(t, int32(1), bCalls.Load())

	assert.Equal(t, "other", other.Fetch(context.Background()).Data)
}

func TestSubscriber_RefetchEvictsCache(t *testing.T) {
	store := NewMemoryStore(0)
	var calls atomic.Int32
	sub, _ := newTestSubscriber(t, store, func(ctx context.Context) (string, error) {
		if calls.Add(1) == 1 {
			return "first", nil
		}
		return "second", nil
	}, testOptions("k"), nil)

	sub.Fetch(context.Background())
	st := sub.Refetch(context.Background())

	assert.Equal(t, "second", st.Data)
	assert.Equal(t, int32(2), calls.Load())
	sub.Wait()
	assert.Equal(t, int32(2), calls.Load(), "refetch does not spawn a refresh")

	entry, ok := store.Get("k")
	require.True(t, ok)
	assert.Equal(t, "second", entry.Value)
}

func TestSubscriber_TerminalErrorSurfacesAsMessage(t *testing.T) {
	sub, rec := newTestSubscriber(t, NewMemoryStore(0), func(ctx context.Context) (string, error) {
		return "", services.NewUpstreamError(http.StatusNotFound, "view not found")
	}, testOptions("k"), nil)

	st := sub.Fetch(context.Background())
	assert.False(t, st.Loading)
	assert.False(t, st.HasData)
	assert.Contains(t, st.Error, "view not found")
	assert.Empty(t, rec.recorded())
}

func TestSubscriber_ExhaustedRetriesSurface(t *testing.T) {
	var calls atomic.Int32
	sub, rec := newTestSubscriber(t, NewMemoryStore(0), func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "", services.NewUpstreamError(http.StatusServiceUnavailable, "unavailable")
	}, testOptions(""), nil)

	st := sub.Fetch(context.Background())
	assert.Contains(t, st.Error, "unavailable")
	assert.Equal(t, int32(4), calls.Load())
	assert.Len(t, rec.recorded(), 3)
}

func TestSubscriber_LatestRequestWins(t *testing.T) {
	for _, lateErr := range []error{nil, errors.New("late failure")} {
		name := "late success"
		if lateErr != nil {
			name = "late failure"
		}
		t.Run(name, func(t *testing.T) {
			started := make(chan struct{})
			release := make(chan struct{})
			var calls atomic.Int32

			sub, _ := newTestSubscriber(t, NewMemoryStore(0), func(ctx context.Context) (string, error) {
				if calls.Add(1) == 1 {
					close(started)
					<-release
					if lateErr != nil {
						return "", lateErr
					}
					return "superseded", nil
				}
				return "latest", nil
			}, testOptions(""), nil)

			done := make(chan State[string], 1)
			go func() { done <- sub.Fetch(context.Background()) }()
			<-started

			latest := sub.Fetch(context.Background())
			assert.Equal(t, "latest", latest.Data)

			close(release)
			<-done

			st := sub.State()
			assert.Equal(t, "latest", st.Data)
			assert.Empty(t, st.Error)
			assert.False(t, st.Loading)
		})
	}
}

func TestSubscriber_CloseCancelsBackgroundRefresh(t *testing.T) {
	store := NewMemoryStore(0)
	store.Set("k", "cached")
	refreshing := make(chan struct{})

	sub, err := NewSubscriber(store, func(ctx context.Context) (string, error) {
		close(refreshing)
		<-ctx.Done()
		return "", ctx.Err()
	}, testOptions("k"), nil)
	require.NoError(t, err)

	st := sub.Fetch(context.Background())
	assert.Equal(t, "cached", st.Data)

	<-refreshing
	sub.Close()

	assert.Equal(t, "cached", sub.State().Data)
	assert.Equal(t, "cached", sub.Fetch(context.Background()).Data, "unmounted subscribers do not fetch")
}

func TestSubscriber_BackgroundFailureIsLoggedNotSurfaced(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	store := NewMemoryStore(0)
	store.Set("k", "cached")

	sub, _ := newTestSubscriber(t, store, func(ctx context.Context) (string, error) {
		return "", services.NewUpstreamError(http.StatusBadRequest, "rejected")
	}, testOptions("k"), zap.New(core))

	st := sub.Fetch(context.Background())
	sub.Wait()

	assert.Equal(t, "cached", st.Data)
	assert.Empty(t, sub.State().Error)
	require.Equal(t, 1, logs.FilterMessage("background refresh failed").Len())
}

func TestSubscriber_SkipCache(t *testing.T) {
	store := NewMemoryStore(0)
	store.Set("k", "cached")
	opts := testOptions("k")
	opts.SkipCache = true

	sub, _ := newTestSubscriber(t, store, func(ctx context.Context) (string, error) {
		return "live", nil
	}, opts, nil)

	assert.Equal(t, "live", sub.Fetch(context.Background()).Data)
}

func TestNewSubscriber_RejectsInvalidOptions(t *testing.T) {
	opts := testOptions("k")
	opts.BaseDelay = 0
	_, err := NewSubscriber[string](nil, func(ctx context.Context) (string, error) { return "", nil }, opts, nil)
	assert.Error(t, err)

	_, err = NewSubscriber[string](nil, nil, testOptions("k"), nil)
	assert.Error(t, err)
}

func TestMemoryStore(t *testing.T) {
	t.Run("stale entries are kept", func(t *testing.T) {
		clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		store := NewMemoryStore(0)
		store.now = func() time.Time { return clock }
		store.Set("k", 1)

		entry, ok := store.Get("k")
		require.True(t, ok)
		assert.False(t, entry.IsFresh(clock.Add(time.Hour), time.Minute))
		assert.True(t, entry.IsFresh(clock.Add(30*time.Second), time.Minute))

		_, ok = store.Get("k")
		assert.True(t, ok)
	})

	t.Run("evicts least recently used", func(t *testing.T) {
		store := NewMemoryStore(2)
		store.Set("a", 1)
		store.Set("b", 2)
		store.Get("a")
		store.Set("c", 3)

		_, ok := store.Get("b")
		assert.False(t, ok)
		_, ok = store.Get("a")
		assert.True(t, ok)
		assert.Equal(t, 2, store.Stats().Size)
	})

	t.Run("stats and clear", func(t *testing.T) {
		store := NewMemoryStore(10)
		store.Set("a", 1)
		store.Get("a")
		store.Get("missing")

		stats := store.Stats()
		assert.Equal(t, uint64(1), stats.Hits)
		assert.Equal(t, uint64(1), stats.Misses)
		assert.Equal(t, 0.5, stats.HitRate)

		store.Delete("a")
		assert.Equal(t, 0, store.Stats().Size)

		store.Set("b", 2)
		store.Clear()
		assert.Equal(t, StoreStats{MaxSize: 10}, store.Stats())
	})
}
