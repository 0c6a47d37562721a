// Package cache holds preview results in memory, keyed by query.
//
// The cache is bounded by entry count (least recently used entries are
// evicted first) and by age (entries older than the TTL are dropped on
// access). All bookkeeping is guarded by one mutex; payload encoding and
// decoding happen outside of it.
package cache

import (
	"container/list"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/hugr-lab/preview-go/internal/serialize"
	"github.com/hugr-lab/preview-go/store"
)

const (
	DefaultCapacity = 100
	DefaultTTL      = 5 * time.Minute
)

// Options configures a Cache.
type Options struct {
	// Capacity is the maximum number of entries.
	// OPTIONAL: defaults to DefaultCapacity.
	Capacity int

	// TTL is the maximum age of an entry.
	// OPTIONAL: defaults to DefaultTTL.
	TTL time.Duration

	// Compress enables zstd compression of stored payloads.
	Compress bool

	// Clock returns the current time.
	// OPTIONAL: defaults to time.Now.
	Clock func() time.Time

	// Logger for cache events.
	// OPTIONAL: Uses slog.Default() if nil.
	Logger *slog.Logger
}

// Entry is a preview result as stored in the cache.
type Entry struct {
	Rows          []map[string]any `msgpack:"rows"`
	Columns       []store.Column   `msgpack:"columns"`
	TotalRowCount *int64           `msgpack:"total_row_count"`
	ExecutionTime time.Duration    `msgpack:"execution_time"`

	// Truncated is set when Rows were cut at the executor row cap.
	Truncated bool `msgpack:"truncated,omitempty"`

	Approximate    bool    `msgpack:"approximate"`
	SamplePercent  float64 `msgpack:"sample_percent"`
	Fallback       bool    `msgpack:"fallback"`
	FallbackReason string  `msgpack:"fallback_reason,omitempty"`
}

// CachedResult is an Entry returned by Get.
type CachedResult struct {
	Entry
	CachedAt time.Time
	Key      string
}

// Stats are cumulative cache counters.
type Stats struct {
	Hits        uint64
	Misses      uint64
	Evictions   uint64
	Expirations uint64
	Invalidated uint64
	Entries     int
}

type item struct {
	key      string
	datasets []string
	cachedAt time.Time
	payload  []byte
}

// Cache is an LRU cache of preview results with a TTL.
// Safe for concurrent use.
type Cache struct {
	capacity int
	ttl      time.Duration
	now      func() time.Time
	codec    *serialize.Codec
	logger   *slog.Logger

	mu    sync.Mutex
	order *list.List // front is most recently used
	items map[string]*list.Element
	stats Stats
}

// New creates a cache. Call Close to release compression resources.
func New(opts Options) (*Cache, error) {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	codec, err := serialize.NewCodec(opts.Compress)
	if err != nil {
		return nil, fmt.Errorf("cache codec: %w", err)
	}

	return &Cache{
		capacity: opts.Capacity,
		ttl:      opts.TTL,
		now:      opts.Clock,
		codec:    codec,
		logger:   opts.Logger,
		order:    list.New(),
		items:    make(map[string]*list.Element, opts.Capacity),
	}, nil
}

// Get returns the cached result for q, or nil on a miss.
// An entry older than the TTL is removed and reported as a miss.
func (c *Cache) Get(q *Query) (*CachedResult, error) {
	key, err := q.Key()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	el, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		c.mu.Unlock()
		return nil, nil
	}
	it := el.Value.(*item)
	if c.now().Sub(it.cachedAt) > c.ttl {
		c.remove(el)
		c.stats.Expirations++
		c.stats.Misses++
		c.mu.Unlock()
		c.logger.Debug("Cache entry expired", "key", key)
		return nil, nil
	}
	c.order.MoveToFront(el)
	c.stats.Hits++
	payload, cachedAt := it.payload, it.cachedAt
	c.mu.Unlock()

	res := &CachedResult{CachedAt: cachedAt, Key: key}
	if err := c.codec.Unmarshal(payload, &res.Entry); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	return res, nil
}

// Put stores entry under q, replacing any previous entry. When the cache is
// full and the key is new, the least recently used entry is evicted.
func (c *Cache) Put(q *Query, entry *Entry) error {
	key, err := q.Key()
	if err != nil {
		return err
	}
	payload, err := c.codec.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	datasets := q.datasets()

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if el, ok := c.items[key]; ok {
		it := el.Value.(*item)
		it.payload = payload
		it.cachedAt = now
		it.datasets = datasets
		c.order.MoveToFront(el)
		return nil
	}

	if c.order.Len() >= c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.remove(oldest)
			c.stats.Evictions++
		}
	}
	c.items[key] = c.order.PushFront(&item{
		key:      key,
		datasets: datasets,
		cachedAt: now,
		payload:  payload,
	})
	return nil
}

// InvalidateDataset removes every entry whose sources reference datasetID
// and returns how many were removed.
func (c *Cache) InvalidateDataset(datasetID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if slices.Contains(el.Value.(*item).datasets, datasetID) {
			c.remove(el)
			removed++
		}
		el = next
	}
	c.stats.Invalidated += uint64(removed)

	if removed > 0 {
		c.logger.Debug("Cache invalidated", "dataset_id", datasetID, "entries", removed)
	}
	return removed
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	clear(c.items)
}

// Len returns the number of entries, including expired ones not yet
// accessed.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Entries = c.order.Len()
	return s
}

// Close releases compression resources.
func (c *Cache) Close() error {
	return c.codec.Close()
}

// remove must be called with c.mu held.
func (c *Cache) remove(el *list.Element) {
	c.order.Remove(el)
	delete(c.items, el.Value.(*item).key)
}
