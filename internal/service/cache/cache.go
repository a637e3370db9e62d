package cache

import (
	"encoding/json"
	"time"

	"golang.org/x/sync/singleflight"
)

// BytesCache is a minimal cache API storing raw bytes with TTL.
type BytesCache interface {
	GetBytes(key string) (b []byte, ok bool, err error)
	SetBytes(key string, value []byte, ttl time.Duration) error
}

var loads singleflight.Group

// GetOrLoad returns the cached JSON value under key, or calls load and
// caches its result for ttl. Concurrent misses of one key share a single
// load. Cache errors fall through to load; a failed load is never cached.
func GetOrLoad[T any](c BytesCache, key string, ttl time.Duration, load func() (T, error)) (T, error) {
	if c != nil {
		if b, ok, err := c.GetBytes(key); err == nil && ok {
			var v T
			if json.Unmarshal(b, &v) == nil {
				return v, nil
			}
		}
	}

	out, err, _ := loads.Do(key, func() (interface{}, error) {
		v, err := load()
		if err != nil {
			return v, err
		}
		if c != nil {
			if b, err := json.Marshal(v); err == nil {
				_ = c.SetBytes(key, b, ttl)
			}
		}
		return v, nil
	})
	v, _ := out.(T)
	return v, err
}
