package cache

import (
	"sync"
	"time"
)

const defaultMaxEntries = 1024

type entry struct {
	b   []byte
	exp time.Time // zero never expires
}

// TTLCache is the in-process BytesCache used when Redis is off. Expired
// entries are dropped on read, and swept once the map reaches its bound.
type TTLCache struct {
	mu  sync.Mutex
	m   map[string]entry
	max int
	now func() time.Time
}

var _ BytesCache = (*TTLCache)(nil)

func NewTTLCache() *TTLCache {
	return &TTLCache{m: make(map[string]entry), max: defaultMaxEntries, now: time.Now}
}

func (c *TTLCache) GetBytes(key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[key]
	if !ok {
		return nil, false, nil
	}
	if e.expired(c.now()) {
		delete(c.m, key)
		return nil, false, nil
	}
	return e.b, true, nil
}

// SetBytes stores value for ttl, forever when ttl <= 0. At the bound the
// expired entries go first; if none did, the write is skipped.
func (c *TTLCache) SetBytes(key string, value []byte, ttl time.Duration) error {
	now := c.now()
	var exp time.Time
	if ttl > 0 {
		exp = now.Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.m[key]; !exists && len(c.m) >= c.max {
		for k, e := range c.m {
			if e.expired(now) {
				delete(c.m, k)
			}
		}
		if len(c.m) >= c.max {
			return nil
		}
	}
	c.m[key] = entry{b: value, exp: exp}
	return nil
}

// Invalidate drops keys, e.g. after an accuracy reset.
func (c *TTLCache) Invalidate(keys ...string) {
	c.mu.Lock()
	for _, k := range keys {
		delete(c.m, k)
	}
	c.mu.Unlock()
}

func (e entry) expired(now time.Time) bool {
	return !e.exp.IsZero() && now.After(e.exp)
}
