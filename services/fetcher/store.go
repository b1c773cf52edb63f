package fetcher

import (
	"container/list"
	"sync"
	"time"
)

// Entry is one cached operation result.
type Entry struct {
	Key      string
	Value    any
	StoredAt time.Time
}

// IsFresh reports whether the entry may be served without a refresh.
func (e Entry) IsFresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.StoredAt) < ttl
}

// Store is the cache shared by every subscriber in the process.
// Staleness is decided by the reader; a store never drops an entry for age.
type Store interface {
	Get(key string) (Entry, bool)
	Set(key string, value any)
	Delete(key string)
	Clear()
}

// StoreStats represents cache statistics
type StoreStats struct {
	Size    int     `json:"size"`
	MaxSize int     `json:"max_size"`
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

type memoryEntry struct {
	entry   Entry
	element *list.Element
}

// MemoryStore is an in-memory LRU Store.
// Thread-safe implementation using sync.RWMutex
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	lruList *list.List
	maxSize int // zero or less means unbounded
	hits    uint64
	misses  uint64
	now     func() time.Time
}

// NewMemoryStore creates an empty store holding at most maxSize entries.
func NewMemoryStore(maxSize int) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		lruList: list.New(),
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Get returns the entry for key, fresh or not.
func (s *MemoryStore) Get(key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		s.misses++
		return Entry{}, false
	}
	s.lruList.MoveToFront(e.element)
	s.hits++
	return e.entry, true
}

// Set stores value under key, stamping it with the current time.
func (s *MemoryStore) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok {
		e.entry.Value = value
		e.entry.StoredAt = s.now()
		s.lruList.MoveToFront(e.element)
		return
	}

	if s.maxSize > 0 && s.lruList.Len() >= s.maxSize {
		s.evictLRU()
	}

	e := &memoryEntry{entry: Entry{Key: key, Value: value, StoredAt: s.now()}}
	e.element = s.lruList.PushFront(key)
	s.entries[key] = e
}

// Delete removes a specific cache entry
func (s *MemoryStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeEntry(key)
}

// Clear removes all entries and resets the counters.
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*memoryEntry)
	s.lruList.Init()
	s.hits, s.misses = 0, 0
}

// Stats returns cache statistics
func (s *MemoryStore) Stats() StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rate float64
	if total := s.hits + s.misses; total > 0 {
		rate = float64(s.hits) / float64(total)
	}
	return StoreStats{
		Size:    s.lruList.Len(),
		MaxSize: s.maxSize,
		Hits:    s.hits,
		Misses:  s.misses,
		HitRate: rate,
	}
}

// removeEntry must be called with lock held
func (s *MemoryStore) removeEntry(key string) {
	if e, ok := s.entries[key]; ok {
		s.lruList.Remove(e.element)
		delete(s.entries, key)
	}
}

// evictLRU must be called with lock held
func (s *MemoryStore) evictLRU() {
	back := s.lruList.Back()
	if back == nil {
		return
	}
	s.removeEntry(back.Value.(string))
}
