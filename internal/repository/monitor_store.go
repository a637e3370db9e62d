package repository

import (
	"context"
	"fmt"
	"time"

	"DexSignal/internal/domain/models"
	domrepo "DexSignal/internal/domain/repository"
	"DexSignal/pkg/cache"
	"DexSignal/pkg/util"
)

const monitorPrefix = "monitor"

var _ domrepo.MonitorStateStore = (*CacheMonitorStore)(nil)

// CacheMonitorStore keeps monitor entries under monitor:{pair} in a cache
// service (Redis, or the in-process cache when Redis is disabled). An entry
// lives until its expiry plus the stale period.
type CacheMonitorStore struct {
	c          cache.Service
	staleAfter time.Duration
	now        func() time.Time
}

func NewCacheMonitorStore(c cache.Service, staleAfter time.Duration) *CacheMonitorStore {
	if staleAfter <= 0 {
		staleAfter = 24 * time.Hour
	}
	return &CacheMonitorStore{c: c, staleAfter: staleAfter, now: time.Now}
}

func (s *CacheMonitorStore) Save(ctx context.Context, st models.MonitorState) error {
	ttl := st.PredictionExpiry.Add(s.staleAfter).Sub(s.now())
	if ttl <= 0 {
		ttl = time.Minute
	}
	key := cache.GenerateKey(monitorPrefix, util.NormalizeAddress(st.PairAddress))
	if err := s.c.Set(ctx, key, st, ttl); err != nil {
		return fmt.Errorf("save monitor state: %w", err)
	}
	return nil
}

func (s *CacheMonitorStore) Delete(ctx context.Context, pairAddress string) error {
	key := cache.GenerateKey(monitorPrefix, util.NormalizeAddress(pairAddress))
	if err := s.c.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete monitor state: %w", err)
	}
	return nil
}

func (s *CacheMonitorStore) LoadAll(ctx context.Context) ([]models.MonitorState, error) {
	keys, err := s.c.Keys(ctx, cache.BuildPattern(monitorPrefix))
	if err != nil {
		return nil, fmt.Errorf("list monitor states: %w", err)
	}
	byKey, err := cache.MGetTyped[models.MonitorState](ctx, s.c, keys...)
	if err != nil {
		return nil, fmt.Errorf("load monitor states: %w", err)
	}
	out := make([]models.MonitorState, 0, len(byKey))
	for _, k := range keys {
		if st, ok := byKey[k]; ok && st.PairAddress != "" {
			out = append(out, st)
		}
	}
	return out, nil
}
