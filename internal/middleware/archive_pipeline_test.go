package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DexSignal/internal/domain/models"
	"DexSignal/pkg/metrics"
)

type fakeArchive struct {
	mu      sync.Mutex
	batches [][]models.ArchiveRow
	fails   int
}

func (f *fakeArchive) Init(context.Context) error   { return nil }
func (f *fakeArchive) Health(context.Context) error { return nil }
func (f *fakeArchive) Close() error                 { return nil }

func (f *fakeArchive) StoreBatch(_ context.Context, rows []models.ArchiveRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return errors.New("clickhouse unavailable")
	}
	f.batches = append(f.batches, rows)
	return nil
}

func (f *fakeArchive) rows() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func tick(pair string) models.ArchiveRow {
	return models.ArchiveRow{Kind: models.ArchiveTick, PairAddress: pair, Timestamp: time.Now(), Price: models.Float(1)}
}

func TestArchivePipelineBatchesBySize(t *testing.T) {
	fa := &fakeArchive{}
	p := NewArchivePipeline(fa, metrics.Nop{}, WithBatchSize(2), WithFlushInterval(time.Hour))
	p.Start(context.Background())

	for i := 0; i < 4; i++ {
		require.NoError(t, p.Enqueue(tick("0xabc")))
	}
	assert.Eventually(t, func() bool { return fa.rows() == 4 }, time.Second, 5*time.Millisecond)

	fa.mu.Lock()
	for _, b := range fa.batches {
		assert.Len(t, b, 2)
	}
	fa.mu.Unlock()
	require.NoError(t, p.Stop(context.Background()))
}

func TestArchivePipelineDrainsOnStop(t *testing.T) {
	fa := &fakeArchive{}
	p := NewArchivePipeline(fa, metrics.Nop{}, WithBatchSize(100), WithFlushInterval(time.Hour))
	p.Start(context.Background())

	require.NoError(t, p.Enqueue(tick("0xabc")))
	require.NoError(t, p.Enqueue(tick("0xdef")))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Stop(ctx))
	assert.Equal(t, 2, fa.rows())
}

func TestArchivePipelineRetriesFailedFlush(t *testing.T) {
	fa := &fakeArchive{fails: 2}
	p := NewArchivePipeline(fa, metrics.Nop{}, WithBatchSize(1), WithFlushRetries(3))
	p.Start(context.Background())

	require.NoError(t, p.Enqueue(tick("0xabc")))
	assert.Eventually(t, func() bool { return fa.rows() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, p.Stop(context.Background()))
}

func TestArchivePipelineRejects(t *testing.T) {
	p := NewArchivePipeline(&fakeArchive{}, metrics.Nop{}, WithBufferSize(1))

	assert.Error(t, p.Enqueue(models.ArchiveRow{Kind: "bogus", PairAddress: "0x1", Timestamp: time.Now()}))
	assert.Error(t, p.Enqueue(models.ArchiveRow{Kind: models.ArchiveTick, Timestamp: time.Now()}))
	assert.Error(t, p.Enqueue(models.ArchiveRow{Kind: models.ArchiveTick, PairAddress: "0x1"}))

	neg := tick("0x1")
	neg.Price = models.Float(-1)
	assert.Error(t, p.Enqueue(neg))

	// not started, so the single slot stays taken
	require.NoError(t, p.Enqueue(tick("0x1")))
	assert.Error(t, p.Enqueue(tick("0x1")), "buffer full")
}
