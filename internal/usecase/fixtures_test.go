package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"DexSignal/internal/domain/models"
	"DexSignal/internal/repository"
)

const (
	testToken = "0xAAAA000000000000000000000000000000000001"
	testPair  = "0xPAIR000000000000000000000000000000000001"
	otherPair = "0xPAIR000000000000000000000000000000000002"
)

var testNow = time.Date(2025, 3, 1, 14, 30, 0, 0, time.UTC)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newHistory(t *testing.T, c *clock, cfg HistoryConfig) *HistoryStore {
	t.Helper()
	return NewHistoryStore(repository.NewMemoryStore(), []string{testToken}, cfg, WithHistoryClock(c.Now))
}

func seedPair(t *testing.T, h *HistoryStore, pair string) {
	t.Helper()
	_, err := h.InitializeOrUpdateMetadata(context.Background(), models.PairMetadata{
		PairAddress:        pair,
		ChainID:            "bsc",
		PairName:           "CAKE/WBNB",
		BaseTokenSymbol:    "WBNB",
		TargetTokenAddress: testToken,
		TargetTokenSymbol:  "CAKE",
	})
	require.NoError(t, err)
}
