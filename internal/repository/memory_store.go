package repository

import (
	"context"
	"sort"
	"sync"

	"DexSignal/internal/domain/models"
	domrepo "DexSignal/internal/domain/repository"
	"DexSignal/pkg/util"
)

var (
	_ domrepo.PairStore     = (*MemoryStore)(nil)
	_ domrepo.TradeLogStore = (*MemoryStore)(nil)
)

// MemoryStore keeps records in maps. Reads and writes copy the record so no
// caller shares memory with the store.
type MemoryStore struct {
	mu     sync.RWMutex
	pairs  map[string]*models.TokenPairRecord
	trades []*models.TradeLog
	seen   map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pairs: make(map[string]*models.TokenPairRecord),
		seen:  make(map[string]struct{}),
	}
}

func (s *MemoryStore) Init(context.Context) error { return nil }

func (s *MemoryStore) Get(_ context.Context, pairAddress string) (*models.TokenPairRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.pairs[util.NormalizeAddress(pairAddress)]
	if !ok {
		return nil, domrepo.ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, rec *models.TokenPairRecord) error {
	cp := rec.Clone()
	cp.PairAddress = util.NormalizeAddress(cp.PairAddress)
	s.mu.Lock()
	s.pairs[cp.PairAddress] = cp
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) List(context.Context) ([]*models.TokenPairRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.TokenPairRecord, 0, len(s.pairs))
	for _, rec := range s.pairs {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PairAddress < out[j].PairAddress })
	return out, nil
}

func (s *MemoryStore) ListAddresses(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.pairs))
	for addr := range s.pairs {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) Insert(_ context.Context, t *models.TradeLog) (bool, error) {
	key := tradeKey(t)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.seen[key]; dup {
		return false, nil
	}
	s.seen[key] = struct{}{}
	cp := *t
	s.trades = append(s.trades, &cp)
	return true, nil
}

// ListTrades returns the newest trade logs first, filtered by typ when set.
func (s *MemoryStore) ListTrades(_ context.Context, typ models.TradeLogType, limit int) ([]*models.TradeLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.TradeLog
	for i := len(s.trades) - 1; i >= 0; i-- {
		t := s.trades[i]
		if typ != "" && t.Type != typ {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Health(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func tradeKey(t *models.TradeLog) string {
	return t.TxHash + "|" + string(t.Type)
}
