package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/Policy-Gate/policygate/internal/domain/policy"
)

// Event identifies a cache lifecycle event delivered to hooks.
type Event string

const (
	EventHit        Event = "hit"
	EventMiss       Event = "miss"
	EventSet        Event = "set"
	EventEvict      Event = "evict"
	EventInvalidate Event = "invalidate"
)

// HookFunc observes cache events. Hooks fire synchronously after the cache
// lock is released and must be used for observability only, never control flow.
type HookFunc func(event Event, key string)

// Entry is the cache payload for one compiled policy. AccessCount and
// LastAccessedAt are the only mutable shared state in the system; the cache
// updates them under its own lock on every hit. Callers treat entries as
// read-only.
type Entry struct {
	Document      *policy.Document
	CompiledRules []policy.CompiledRule
	// Fingerprint is the source document hash, for change detection.
	Fingerprint    uint64
	CachedAt       time.Time
	LastAccessedAt time.Time
	AccessCount    int64
	CacheKey       string
}

// Config configures a Cache.
type Config struct {
	// MaxSize bounds the number of entries; the least-recently-used entry is
	// evicted at capacity. Zero or negative falls back to DefaultMaxSize.
	MaxSize int
	// TTL is the default per-entry time-to-live. Only honored when TTLEnabled.
	TTL time.Duration
	// TTLEnabled turns expiry on. When false, entries never expire.
	TTLEnabled bool
}

// DefaultMaxSize is used when Config.MaxSize is unset.
const DefaultMaxSize = 1000

// node is a doubly-linked list node for LRU bookkeeping.
type node struct {
	key       string
	entry     *Entry
	expiresAt time.Time // zero means no expiry
	bytes     int64
	prev      *node
	next      *node
}

// Stats is a point-in-time snapshot of cache statistics.
type Stats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	// Evictions counts entries removed by LRU capacity pressure.
	Evictions uint64 `json:"evictions"`
	// Invalidations counts single-key Invalidate removals.
	Invalidations uint64 `json:"invalidations"`
	// BulkInvalidations counts entries removed by tenant/repo prefix sweeps.
	BulkInvalidations uint64 `json:"bulk_invalidations"`
	// Expired counts entries removed on TTL expiry (lazy or via Prune).
	Expired        uint64  `json:"expired"`
	HitRate        float64 `json:"hit_rate"`
	AvgAccessCount float64 `json:"avg_access_count"`
	// EstimatedBytes is a rough accounting of resident entry memory.
	EstimatedBytes int64 `json:"estimated_bytes"`
	Size           int   `json:"size"`
	MaxSize        int   `json:"max_size"`
}

// Cache is a thread-safe LRU+TTL cache over compiled policies, keyed by the
// composite tenant[:repo[:branch]]:policyID string. It is a performance
// optimization, not a correctness dependency: every operation degrades to a
// miss rather than an error.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*node
	head    *node // most recently used
	tail    *node // least recently used

	maxSize    int
	defaultTTL time.Duration
	ttlEnabled bool

	hits              uint64
	misses            uint64
	evictions         uint64
	invalidations     uint64
	bulkInvalidations uint64
	expired           uint64
	totalBytes        int64

	hooks []HookFunc

	// now is swappable for TTL tests.
	now func() time.Time
}

// New creates a cache with the given configuration.
func New(cfg Config) *Cache {
	size := cfg.MaxSize
	if size <= 0 {
		size = DefaultMaxSize
	}
	return &Cache{
		entries:    make(map[string]*node, size),
		maxSize:    size,
		defaultTTL: cfg.TTL,
		ttlEnabled: cfg.TTLEnabled,
		now:        time.Now,
	}
}

// OnEvent registers a hook. Not safe to call concurrently with cache use;
// register hooks before the cache is shared.
func (c *Cache) OnEvent(fn HookFunc) {
	c.hooks = append(c.hooks, fn)
}

// event captures a pending hook notification while the lock is held.
type event struct {
	ev  Event
	key string
}

func (c *Cache) fire(events []event) {
	for _, e := range events {
		for _, h := range c.hooks {
			h(e.ev, e.key)
		}
	}
}

// Get returns the entry for key, or nil on miss or TTL expiry. A hit
// increments the entry's access count and promotes it to most recently used.
// Expiry is checked lazily here; no background timer is required.
func (c *Cache) Get(key string) *Entry {
	var events []event
	c.mu.Lock()

	n, ok := c.entries[key]
	if ok && c.isExpired(n) {
		c.removeLocked(n)
		c.expired++
		ok = false
	}

	var e *Entry
	if ok {
		n.entry.AccessCount++
		n.entry.LastAccessedAt = c.now()
		c.moveToHeadLocked(n)
		c.hits++
		e = n.entry
		events = append(events, event{EventHit, key})
	} else {
		c.misses++
		events = append(events, event{EventMiss, key})
	}

	c.mu.Unlock()
	c.fire(events)
	return e
}

// Has reports whether a live entry exists for key, without promoting it or
// touching statistics.
func (c *Cache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.entries[key]
	return ok && !c.isExpired(n)
}

// Set inserts or replaces the entry under the cache's default TTL policy.
func (c *Cache) Set(key string, e *Entry) {
	c.SetWithTTL(key, e, c.defaultTTL)
}

// SetWithTTL inserts or replaces the entry with a per-entry TTL. A zero ttl
// means no expiry for this entry. TTLs are ignored entirely when expiry is
// disabled in the config. At capacity the least-recently-used entry is
// evicted first.
func (c *Cache) SetWithTTL(key string, e *Entry, ttl time.Duration) {
	var events []event
	c.mu.Lock()

	now := c.now()
	e.CacheKey = key
	e.CachedAt = now
	e.LastAccessedAt = now

	var expiresAt time.Time
	if c.ttlEnabled && ttl > 0 {
		expiresAt = now.Add(ttl)
	}

	if n, ok := c.entries[key]; ok {
		c.totalBytes -= n.bytes
		n.entry = e
		n.expiresAt = expiresAt
		n.bytes = estimateBytes(key, e)
		c.totalBytes += n.bytes
		c.moveToHeadLocked(n)
	} else {
		if len(c.entries) >= c.maxSize {
			if victim := c.tail; victim != nil {
				c.removeLocked(victim)
				c.evictions++
				events = append(events, event{EventEvict, victim.key})
			}
		}
		n := &node{key: key, entry: e, expiresAt: expiresAt, bytes: estimateBytes(key, e)}
		c.entries[key] = n
		c.totalBytes += n.bytes
		c.pushHeadLocked(n)
	}

	events = append(events, event{EventSet, key})
	c.mu.Unlock()
	c.fire(events)
}

// Invalidate removes a single entry. Returns whether an entry was removed.
func (c *Cache) Invalidate(key string) bool {
	var events []event
	c.mu.Lock()

	n, ok := c.entries[key]
	if ok {
		c.removeLocked(n)
		c.invalidations++
		events = append(events, event{EventInvalidate, key})
	}

	c.mu.Unlock()
	c.fire(events)
	return ok
}

// InvalidateByTenant removes every entry belonging to the tenant.
// Returns the number of entries removed.
func (c *Cache) InvalidateByTenant(tenantID string) int {
	return c.invalidatePrefix(tenantPrefix(tenantID))
}

// InvalidateByRepo removes every entry belonging to the tenant's repo.
// Returns the number of entries removed.
func (c *Cache) InvalidateByRepo(tenantID, repo string) int {
	return c.invalidatePrefix(repoPrefix(tenantID, repo))
}

func (c *Cache) invalidatePrefix(prefix string) int {
	var events []event
	c.mu.Lock()

	var victims []*node
	for key, n := range c.entries {
		if strings.HasPrefix(key, prefix) {
			victims = append(victims, n)
		}
	}
	for _, n := range victims {
		c.removeLocked(n)
		c.bulkInvalidations++
		events = append(events, event{EventInvalidate, n.key})
	}

	c.mu.Unlock()
	c.fire(events)
	return len(victims)
}

// Prune eagerly removes all TTL-expired entries and returns the count.
// Correctness does not depend on it; Get already expires lazily.
func (c *Cache) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var victims []*node
	for _, n := range c.entries {
		if c.isExpired(n) {
			victims = append(victims, n)
		}
	}
	for _, n := range victims {
		c.removeLocked(n)
		c.expired++
	}
	return len(victims)
}

// PruneLoop runs Prune on the given interval until ctx is done.
// Intended to be launched as a goroutine for operational sweeps.
func (c *Cache) PruneLoop(done <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.Prune()
		}
	}
}

// Len returns the current number of entries, including any not yet lazily expired.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of cache statistics.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Hits:              c.hits,
		Misses:            c.misses,
		Evictions:         c.evictions,
		Invalidations:     c.invalidations,
		BulkInvalidations: c.bulkInvalidations,
		Expired:           c.expired,
		EstimatedBytes:    c.totalBytes,
		Size:              len(c.entries),
		MaxSize:           c.maxSize,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	if len(c.entries) > 0 {
		var accesses int64
		for _, n := range c.entries {
			accesses += n.entry.AccessCount
		}
		s.AvgAccessCount = float64(accesses) / float64(len(c.entries))
	}
	return s
}

func (c *Cache) isExpired(n *node) bool {
	return !n.expiresAt.IsZero() && !c.now().Before(n.expiresAt)
}

// removeLocked deletes a node from the map and list. Must hold the lock.
func (c *Cache) removeLocked(n *node) {
	delete(c.entries, n.key)
	c.totalBytes -= n.bytes
	c.unlinkLocked(n)
}

// moveToHeadLocked promotes an existing node. Must hold the lock.
func (c *Cache) moveToHeadLocked(n *node) {
	if c.head == n {
		return
	}
	c.unlinkLocked(n)
	c.pushHeadLocked(n)
}

// pushHeadLocked inserts a node at the head. Must hold the lock.
func (c *Cache) pushHeadLocked(n *node) {
	n.prev = nil
	n.next = c.head
	if c.head != nil {
		c.head.prev = n
	}
	c.head = n
	if c.tail == nil {
		c.tail = n
	}
}

// unlinkLocked removes a node from the list. Must hold the lock.
func (c *Cache) unlinkLocked(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		c.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		c.tail = n.prev
	}
	n.prev = nil
	n.next = nil
}

// estimateBytes is a rough per-entry memory accounting used for the
// EstimatedBytes statistic. It does not aim for allocator precision.
func estimateBytes(key string, e *Entry) int64 {
	const entryOverhead = 160
	size := int64(entryOverhead + len(key))
	for _, r := range e.CompiledRules {
		size += int64(96 + len(r.ID) + len(r.Name) + len(r.Origin))
		for _, cond := range r.Conditions {
			size += int64(64 + len(cond.Expression))
			for _, s := range cond.Labels {
				size += int64(len(s))
			}
			for _, s := range cond.Patterns {
				size += int64(len(s))
			}
			for _, s := range cond.Roles {
				size += int64(len(s))
			}
			for _, s := range cond.Agents {
				size += int64(len(s))
			}
		}
	}
	if e.Document != nil {
		size += int64(128 + len(e.Document.Name) + 48*len(e.Document.Rules))
	}
	return size
}
