package cache

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type MemoryConfig struct {
	Name       string
	MaxEntries int
	Expiry     time.Duration
	SweepEvery time.Duration

	// Disabled turns the tier into a no-op: Get always misses and
	// Set/Delete do nothing.
	Disabled bool
}

func (c MemoryConfig) withDefaultValues() MemoryConfig {
	if c.Name == "" {
		c.Name = "memory"
	}
	if c.MaxEntries == 0 {
		c.MaxEntries = 500
	}
	if c.Expiry == 0 {
		c.Expiry = 4 * time.Hour
	}
	if c.SweepEvery == 0 {
		c.SweepEvery = 5 * time.Minute
	}
	return c
}

// Memory is the bounded in-process hot tier. All operations are safe
// for concurrent use, including the periodic sweep.
type Memory struct {
	logger zerolog.Logger
	config MemoryConfig
	stats  *Stats

	entries map[string]Entry
	mu      sync.RWMutex

	shutdown chan struct{}
	started  bool
	startMu  sync.Mutex
}

func NewMemory(config MemoryConfig, stats *Stats) *Memory {
	config = config.withDefaultValues()

	return &Memory{
		logger:  log.With().Str("module", "cache").Str("tier", config.Name).Logger(),
		config:  config,
		stats:   stats,
		entries: map[string]Entry{},
	}
}

// Start launches the periodic sweep.
func (m *Memory) Start() {
	m.startMu.Lock()
	defer m.startMu.Unlock()

	if m.started || m.config.Disabled {
		return
	}

	m.shutdown = make(chan struct{})
	m.started = true

	go func() {
		ticker := time.NewTicker(m.config.SweepEvery)
		defer ticker.Stop()

		for {
			select {
			case <-m.shutdown:
				return
			case <-ticker.C:
				m.logger.Debug().Msg("performing sweep")
				m.Sweep()
			}
		}
	}()
}

func (m *Memory) Stop() {
	m.startMu.Lock()
	defer m.startMu.Unlock()

	if !m.started {
		return
	}

	m.started = false
	close(m.shutdown)
}

// Get returns a copy of the entry, or misses when the entry is absent
// or older than the configured expiry. Expired entries are evicted.
func (m *Memory) Get(key string) (Entry, bool) {
	if m.config.Disabled {
		return Entry{}, false
	}

	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		m.stats.Miss()
		return Entry{}, false
	}

	if time.Since(entry.Timestamp) > m.config.Expiry {
		m.evictIfExpired(key)
		m.stats.Miss()
		return Entry{}, false
	}

	m.stats.Hit()
	return entry.Clone(), true
}

// evictIfExpired removes the key only when the stored entry is still
// past expiry, so a concurrent Set that refreshed it is never thrown
// away.
func (m *Memory) evictIfExpired(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.entries[key]; ok && time.Since(entry.Timestamp) > m.config.Expiry {
		delete(m.entries, key)
	}
}

// Has reports whether an unexpired entry exists without counting a hit
// or a miss.
func (m *Memory) Has(key string) bool {
	if m.config.Disabled {
		return false
	}

	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()

	return ok && time.Since(entry.Timestamp) <= m.config.Expiry
}

// Set inserts or replaces an entry and enforces the capacity bound by
// evicting oldest-by-timestamp entries.
func (m *Memory) Set(key string, entry Entry) {
	if m.config.Disabled {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = entry.Clone()

	if len(m.entries) <= m.config.MaxEntries {
		return
	}

	type aged struct {
		key string
		ts  time.Time
	}

	oldest := make([]aged, 0, len(m.entries))
	for k, e := range m.entries {
		oldest = append(oldest, aged{k, e.Timestamp})
	}

	sort.Slice(oldest, func(i, j int) bool {
		if oldest[i].ts.Equal(oldest[j].ts) {
			return oldest[i].key < oldest[j].key
		}
		return oldest[i].ts.Before(oldest[j].ts)
	})

	for _, victim := range oldest {
		if len(m.entries) <= m.config.MaxEntries {
			break
		}
		delete(m.entries, victim.key)
		m.logger.Debug().Str("key", victim.key).Msg("evicted over capacity")
	}
}

func (m *Memory) Delete(key string) {
	if m.config.Disabled {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.entries)
}

// Sweep removes all expired entries. The key set is snapshotted before
// mutating so the sweep stays safe alongside concurrent reads/writes.
func (m *Memory) Sweep() {
	m.mu.RLock()
	keys := make([]string, 0, len(m.entries))
	for key := range m.entries {
		keys = append(keys, key)
	}
	m.mu.RUnlock()

	for _, key := range keys {
		m.mu.Lock()
		entry, ok := m.entries[key]
		if ok && time.Since(entry.Timestamp) > m.config.Expiry {
			delete(m.entries, key)
			m.logger.Debug().Str("key", key).Msg("sweep removed expired")
		}
		m.mu.Unlock()
	}
}
