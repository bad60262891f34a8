package catalog

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"quotr/internal/platform/models"
	"quotr/internal/platform/observability"
)

const cacheName = "quota_types"

// Cache keeps recently read quota types by id. Entries expire after the TTL
// and are dropped on every write to the type. Every invalidation bumps a
// generation so a read that started before the write cannot store its row
// afterwards.
type Cache struct {
	store   *lru.LRU[string, models.QuotaType]
	metrics *observability.Metrics

	mu         sync.Mutex
	generation uint64
}

func NewCache(size int, ttl time.Duration, metrics *observability.Metrics) *Cache {
	if size <= 0 {
		size = 1024
	}
	return &Cache{
		store:   lru.NewLRU[string, models.QuotaType](size, nil, ttl),
		metrics: metrics,
	}
}

func (c *Cache) Get(id string) (*models.QuotaType, bool) {
	if c == nil {
		return nil, false
	}
	qt, ok := c.store.Get(id)
	if !ok {
		c.metrics.RecordCacheMiss(cacheName)
		return nil, false
	}
	c.metrics.RecordCacheHit(cacheName)
	return &qt, true
}

func (c *Cache) Set(qt *models.QuotaType) {
	if c == nil || qt == nil {
		return
	}
	c.store.Add(qt.ID, *qt)
}

// Generation returns the current invalidation counter. Take it before
// reading the row that is later passed to SetIfCurrent.
func (c *Cache) Generation() uint64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// SetIfCurrent stores qt unless an invalidation happened since gen was
// taken. It reports whether the entry was stored.
func (c *Cache) SetIfCurrent(qt *models.QuotaType, gen uint64) bool {
	if c == nil || qt == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return false
	}
	c.store.Add(qt.ID, *qt)
	return true
}

func (c *Cache) Invalidate(id string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.store.Remove(id)
}

func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.store.Len()
}
