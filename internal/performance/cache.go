// Package performance provides the result cache used by the search
// pipeline. The default backend is an in-process LRU with per-entry TTL;
// deployments that want a shared cache can select the Redis backend, which
// implements the same interface.
package performance

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"openapi-mcp/internal/config"
	"openapi-mcp/internal/logging"
)

// Cache stores serialized response envelopes keyed by request fingerprint.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string)
	Stats() Stats
	Close() error
}

// Stats is a point-in-time snapshot of cache activity.
type Stats struct {
	Backend   string  `json:"backend"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Sets      int64   `json:"sets"`
	Evictions int64   `json:"evictions"`
	Items     int     `json:"items"`
	HitRate   float64 `json:"hit_rate"`
}

func (s Stats) withHitRate() Stats {
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

// New builds the cache backend selected by the configuration.
func New(cfg config.CacheConfig, logger logging.Logger) (Cache, error) {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	ttl := time.Duration(cfg.TTLSeconds) * time.Second
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryCache(cfg.Capacity, ttl), nil
	case "redis":
		return NewRedisCache(cfg.Redis, ttl, logger)
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s", cfg.Backend)
	}
}

// memoryEntry is one cached value plus its LRU bookkeeping.
type memoryEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// MemoryCache is a bounded LRU with per-entry TTL.
type MemoryCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	order    *list.List // front = most recently used
	entries  map[string]*list.Element
	closed   bool

	hits      int64
	misses    int64
	sets      int64
	evictions int64
}

// NewMemoryCache creates an in-process cache holding at most capacity
// entries, each valid for ttl.
func NewMemoryCache(capacity int, ttl time.Duration) *MemoryCache {
	if capacity <= 0 {
		capacity = 1000
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &MemoryCache{
		capacity: capacity,
		ttl:      ttl,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
	}
}

// Get returns the cached value for key, refreshing its LRU position.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, false
	}

	elem, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	entry := elem.Value.(*memoryEntry)
	if time.Now().After(entry.expiresAt) {
		c.removeLocked(elem)
		c.misses++
		return nil, false
	}

	c.order.MoveToFront(elem)
	c.hits++
	return entry.value, true
}

// Set stores value under key, evicting the least recently used entry when
// the cache is full.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("cache is closed")
	}

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*memoryEntry)
		entry.value = value
		entry.expiresAt = time.Now().Add(c.ttl)
		c.order.MoveToFront(elem)
		c.sets++
		return nil
	}

	for len(c.entries) >= c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
		c.evictions++
	}

	entry := &memoryEntry{key: key, value: value, expiresAt: time.Now().Add(c.ttl)}
	c.entries[key] = c.order.PushFront(entry)
	c.sets++
	return nil
}

// Delete removes one entry.
func (c *MemoryCache) Delete(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[key]; ok {
		c.removeLocked(elem)
	}
}

func (c *MemoryCache) removeLocked(elem *list.Element) {
	entry := elem.Value.(*memoryEntry)
	c.order.Remove(elem)
	delete(c.entries, entry.key)
}

// Stats reports cache activity.
func (c *MemoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Backend:   "memory",
		Hits:      c.hits,
		Misses:    c.misses,
		Sets:      c.sets,
		Evictions: c.evictions,
		Items:     len(c.entries),
	}.withHitRate()
}

// Close releases the cache; further operations are no-ops.
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.order.Init()
	c.entries = make(map[string]*list.Element)
	return nil
}
