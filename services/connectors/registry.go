// Package connectors keeps the list of data sources behind the dashboard
// and caches the result of their health checks.
package connectors

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/revops/pipeline-monitor/services"
	"github.com/revops/pipeline-monitor/services/fetcher"
)

// DefaultHealthTTL is how long a health check result is served from cache.
const DefaultHealthTTL = 60 * time.Second

// Status is the health of one connector.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusMock     Status = "mock"
	StatusFailed   Status = "failed"
	StatusDisabled Status = "disabled"
)

// ErrDisabled marks a connector switched off by configuration. Checks may
// wrap it to say why.
var ErrDisabled = errors.New("connector disabled")

// CheckFunc tests one connector.
type CheckFunc func(ctx context.Context) error

// Connector is one registered data source.
type Connector struct {
	Name        string
	Type        string
	Description string
	// Mock connectors serve local data; a passing check reports StatusMock.
	Mock  bool
	Check CheckFunc
}

// Health is the cached outcome of one check.
type Health struct {
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	LatencyMS int64     `json:"latency_ms"`
	CheckedAt time.Time `json:"checked_at"`
}

// Info describes a connector and its latest health.
type Info struct {
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Status      Status    `json:"status"`
	Error       string    `json:"error,omitempty"`
	LatencyMS   int64     `json:"latency_ms"`
	LastChecked time.Time `json:"last_checked"`
}

type entry struct {
	connector Connector
	key       string

	// mu serialises checks of one connector so concurrent callers share a result.
	mu  sync.Mutex
	sub *fetcher.Subscriber[Health]
}

// Registry holds the connectors in registration order.
type Registry struct {
	store  fetcher.Store
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time

	mu      sync.RWMutex
	order   []string
	entries map[string]*entry
}

// NewRegistry creates an empty registry whose checks are cached in store
// for ttl. A non-positive ttl uses DefaultHealthTTL.
func NewRegistry(store fetcher.Store, ttl time.Duration, logger *zap.Logger) *Registry {
	if store == nil {
		store = fetcher.NewMemoryStore(0)
	}
	if ttl <= 0 {
		ttl = DefaultHealthTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		store:   store,
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]*entry),
	}
}

// Register adds c. Names are unique.
func (r *Registry) Register(c Connector) error {
	if c.Name == "" {
		return fmt.Errorf("connectors: name is required")
	}
	if c.Check == nil {
		return fmt.Errorf("connectors: %s: check is required", c.Name)
	}

	key := "connectors:health:" + c.Name
	sub, err := fetcher.NewSubscriber(r.store, r.check(c), fetcher.Options{
		CacheKey:     key,
		TTL:          r.ttl,
		BaseDelay:    time.Millisecond,
		MaxDelay:     time.Millisecond,
		NoRevalidate: true,
	}, r.logger.With(zap.String("connector", c.Name)))
	if err != nil {
		return fmt.Errorf("connectors: %s: %w", c.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[c.Name]; exists {
		sub.Close()
		return fmt.Errorf("connectors: %s is already registered", c.Name)
	}
	r.entries[c.Name] = &entry{connector: c, key: key, sub: sub}
	r.order = append(r.order, c.Name)
	return nil
}

// Unregister removes the named connector and its cached health.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	e, ok := r.entries[name]
	if ok {
		delete(r.entries, name)
		for i, n := range r.order {
			if n == name {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	e.sub.Close()
	r.store.Delete(e.key)
	return true
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Status returns the health of one connector. force skips the cached result.
func (r *Registry) Status(ctx context.Context, name string, force bool) (Info, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return Info{}, services.NewDomainError(services.ErrorTypeNotFound, "connector not found", nil).
			WithDetail("connector", name)
	}
	return e.info(ctx, force), nil
}

// List returns every connector with its health. Checks run concurrently.
func (r *Registry) List(ctx context.Context, force bool) []Info {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.order))
	for _, name := range r.order {
		entries = append(entries, r.entries[name])
	}
	r.mu.RUnlock()

	infos := make([]Info, len(entries))
	var g errgroup.Group
	for i, e := range entries {
		i, e := i, e
		g.Go(func() error {
			infos[i] = e.info(ctx, force)
			return nil
		})
	}
	_ = g.Wait()
	return infos
}

// Close stops every subscriber.
func (r *Registry) Close() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		e.sub.Close()
	}
}

// check adapts a CheckFunc to a fetcher operation. Every completed check
// is a successful operation so failed and disabled results are cached too.
func (r *Registry) check(c Connector) fetcher.Operation[Health] {
	return func(ctx context.Context) (Health, error) {
		start := r.now()
		err := c.Check(ctx)
		if err != nil && ctx.Err() != nil {
			return Health{}, services.WrapError(services.ErrorTypeCancelled, "health check cancelled", ctx.Err())
		}

		h := Health{CheckedAt: start, LatencyMS: r.now().Sub(start).Milliseconds()}
		switch {
		case err == nil && c.Mock:
			h.Status = StatusMock
		case err == nil:
			h.Status = StatusHealthy
		case errors.Is(err, ErrDisabled):
			h.Status = StatusDisabled
			h.Error = err.Error()
		default:
			h.Status = StatusFailed
			h.Error = err.Error()
			r.logger.Warn("connector check failed", zap.String("connector", c.Name), zap.Error(err))
		}
		return h, nil
	}
}

func (e *entry) info(ctx context.Context, force bool) Info {
	e.mu.Lock()
	defer e.mu.Unlock()

	var st fetcher.State[Health]
	if force {
		st = e.sub.Refetch(ctx)
	} else {
		st = e.sub.Fetch(ctx)
	}

	info := Info{
		Name:        e.connector.Name,
		Type:        e.connector.Type,
		Description: e.connector.Description,
	}
	switch {
	case st.HasData:
		info.Status = st.Data.Status
		info.Error = st.Data.Error
		info.LatencyMS = st.Data.LatencyMS
		info.LastChecked = st.Data.CheckedAt
	case st.Error != "":
		info.Status = StatusFailed
		info.Error = st.Error
	default:
		info.Status = StatusFailed
		info.Error = "health check did not complete"
	}
	return info
}
