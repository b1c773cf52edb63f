package fallback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Monitor defaults.
const (
	DefaultCapacity  = 100
	DefaultWindow    = 5 * time.Minute
	DefaultThreshold = 3
)

// MonitorConfig tunes the monitor.
type MonitorConfig struct {
	Capacity  int
	Window    time.Duration
	Threshold int
	// Persist saves the log to the session store after every change.
	// Enabled in development.
	Persist bool
}

// Monitor is the session-scoped, bounded log of fallback events.
// It is safe for concurrent use.
type Monitor struct {
	config    MonitorConfig
	store     SessionStore
	logger    *zap.Logger
	now       func() time.Time
	sessionID string

	// persistMu orders store writes after the appends that produced them.
	// Lock order is persistMu, then mu.
	persistMu sync.Mutex

	mu    sync.RWMutex
	buf   []Event
	start int
	size  int
}

// NewMonitor creates a monitor with a fresh session id. store may be nil
// when persistence is off.
func NewMonitor(config MonitorConfig, store SessionStore, logger *zap.Logger) *Monitor {
	if config.Capacity <= 0 {
		config.Capacity = DefaultCapacity
	}
	if config.Window <= 0 {
		config.Window = DefaultWindow
	}
	if config.Threshold <= 0 {
		config.Threshold = DefaultThreshold
	}
	if store == nil {
		store = NewMemorySessionStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		config:    config,
		store:     store,
		logger:    logger,
		now:       time.Now,
		sessionID: uuid.NewString(),
		buf:       make([]Event, config.Capacity),
	}
}

// SessionID identifies this monitor's log in the session store.
func (m *Monitor) SessionID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessionID
}

// Track appends an event, stamping it with the current time when it has
// none, and evicts the oldest event once the log is full.
func (m *Monitor) Track(ctx context.Context, e Event) Event {
	if e.Timestamp.IsZero() {
		e.Timestamp = m.now()
	}

	if !m.config.Persist {
		m.mu.Lock()
		m.appendLocked(e)
		m.mu.Unlock()
		m.log(e)
		return e
	}

	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	m.mu.Lock()
	m.appendLocked(e)
	snapshot := m.eventsLocked()
	sessionID := m.sessionID
	m.mu.Unlock()

	m.log(e)

	if err := m.store.Save(ctx, sessionID, snapshot); err != nil {
		m.logger.Warn("failed to persist fallback log",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
	return e
}

// Restore loads the persisted log of sessionID and adopts that session.
func (m *Monitor) Restore(ctx context.Context, sessionID string) error {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	events, err := m.store.Load(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load fallback log: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionID = sessionID
	m.start, m.size = 0, 0
	for _, e := range events {
		m.appendLocked(e)
	}
	return nil
}

// Events returns the log, oldest first.
func (m *Monitor) Events() []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.eventsLocked()
}

// LastEvent returns the most recent event.
func (m *Monitor) LastEvent() (Event, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.size == 0 {
		return Event{}, false
	}
	return m.buf[(m.start+m.size-1)%len(m.buf)], true
}

// Stats aggregates the current log. Ties for the most frequent reason go
// to the reason seen first.
func (m *Monitor) Stats() Stats {
	events := m.Events()

	stats := Stats{
		Total:    len(events),
		ByType:   make(map[QueryType]int),
		ByReason: make(map[Reason]int),
	}
	order := make([]Reason, 0, 3)
	for _, e := range events {
		stats.ByType[e.Type]++
		if stats.ByReason[e.Reason] == 0 {
			order = append(order, e.Reason)
		}
		stats.ByReason[e.Reason]++
	}
	if len(events) > 0 {
		last := events[len(events)-1].Timestamp
		stats.LastOccurrence = &last
	}

	best := 0
	for _, r := range order {
		if n := stats.ByReason[r]; n > best {
			best = n
			stats.MostFrequentReason = r
		}
	}
	return stats
}

// HasRepeatedFailures reports whether at least Threshold error events fall
// inside the trailing Window.
func (m *Monitor) HasRepeatedFailures() bool {
	cutoff := m.now().Add(-m.config.Window)

	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for i := 0; i < m.size; i++ {
		e := m.buf[(m.start+i)%len(m.buf)]
		if e.Severity == SeverityError && !e.Timestamp.Before(cutoff) {
			count++
		}
	}
	return count >= m.config.Threshold
}

// DataSourceStatus classifies the current state of the primary source.
func (m *Monitor) DataSourceStatus() Status {
	var last *Event
	if e, ok := m.LastEvent(); ok {
		last = &e
	}
	st, _ := classify(last, m.HasRepeatedFailures())
	return st
}

// Clear empties the log and its persisted copy.
func (m *Monitor) Clear(ctx context.Context) error {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	m.mu.Lock()
	m.start, m.size = 0, 0
	sessionID := m.sessionID
	m.mu.Unlock()

	if err := m.store.Clear(ctx, sessionID); err != nil {
		return fmt.Errorf("clear fallback log: %w", err)
	}
	return nil
}

// appendLocked must be called with lock held
func (m *Monitor) appendLocked(e Event) {
	if m.size < len(m.buf) {
		m.buf[(m.start+m.size)%len(m.buf)] = e
		m.size++
		return
	}
	m.buf[m.start] = e
	m.start = (m.start + 1) % len(m.buf)
}

func (m *Monitor) eventsLocked() []Event {
	out := make([]Event, m.size)
	for i := 0; i < m.size; i++ {
		out[i] = m.buf[(m.start+i)%len(m.buf)]
	}
	return out
}

func (m *Monitor) log(e Event) {
	fields := []zap.Field{
		zap.String("type", string(e.Type)),
		zap.String("reason", string(e.Reason)),
		zap.Bool("primary_enabled", e.PrimaryEnabled),
	}
	if e.Error != "" {
		fields = append(fields, zap.String("error", e.Error))
	}

	if !m.config.Persist {
		m.logger.Debug("fallback event", fields...)
		return
	}

	switch e.Severity {
	case SeverityError:
		m.logger.Error("[FALLBACK:ERROR] serving local data", fields...)
	case SeverityWarning:
		m.logger.Warn("[FALLBACK:WARN] serving local data", fields...)
	default:
		m.logger.Info("[FALLBACK:INFO] serving local data", fields...)
	}
}
