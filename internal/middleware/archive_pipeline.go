package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"DexSignal/internal/domain/models"
	domrepo "DexSignal/internal/domain/repository"
	"DexSignal/pkg/logger"
)

// ArchivePipeline sits between the cycles and the analytics archive.
// It validates rows, batches them and retries the downstream with backoff,
// dropping rows only when its buffer is full.
type ArchivePipeline struct {
	archive  domrepo.Archive
	metrics  domrepo.Metrics
	log      *logger.Logger
	batch    int
	interval time.Duration
	retries  int
	bufCh    chan models.ArchiveRow
	stopCh   chan struct{}
	done     chan struct{}
	started  bool
	mu       sync.Mutex
}

type PipelineOption func(*ArchivePipeline)

// WithBatchSize sets the number of rows written per StoreBatch call.
func WithBatchSize(n int) PipelineOption {
	return func(p *ArchivePipeline) {
		if n > 0 {
			p.batch = n
		}
	}
}

// WithFlushInterval sets the longest time a row waits for its batch to fill.
func WithFlushInterval(d time.Duration) PipelineOption {
	return func(p *ArchivePipeline) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithBufferSize sets the number of rows held while the archive is slow.
func WithBufferSize(n int) PipelineOption {
	return func(p *ArchivePipeline) {
		if n > 0 {
			p.bufCh = make(chan models.ArchiveRow, n)
		}
	}
}

// WithFlushRetries bounds the attempts per batch.
func WithFlushRetries(n int) PipelineOption {
	return func(p *ArchivePipeline) {
		if n >= 0 {
			p.retries = n
		}
	}
}

func WithPipelineLogger(l *logger.Logger) PipelineOption {
	return func(p *ArchivePipeline) { p.log = l }
}

// NewArchivePipeline creates a new pipeline.
func NewArchivePipeline(archive domrepo.Archive, metrics domrepo.Metrics, opts ...PipelineOption) *ArchivePipeline {
	p := &ArchivePipeline{
		archive:  archive,
		metrics:  metrics,
		log:      logger.NewNop(),
		batch:    200,
		interval: 5 * time.Second,
		retries:  3,
		bufCh:    make(chan models.ArchiveRow, 5000),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Enqueue accepts a row without blocking. It returns an error when the row
// is invalid or the buffer is full.
func (p *ArchivePipeline) Enqueue(row models.ArchiveRow) error {
	if err := validateRow(row); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	select {
	case p.bufCh <- row:
		return nil
	default:
		p.metrics.RecordError("pipeline_buffer_full")
		return errors.New("archive buffer full")
	}
}

// Start launches background batching of buffered rows.
func (p *ArchivePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		defer close(p.done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		pending := make([]models.ArchiveRow, 0, p.batch)
		flush := func() {
			if len(pending) == 0 {
				return
			}
			p.flush(ctx, pending)
			pending = pending[:0]
		}
		for {
			select {
			case <-p.stopCh:
				// drain what is already buffered
				for {
					select {
					case row := <-p.bufCh:
						pending = append(pending, row)
						if len(pending) >= p.batch {
							flush()
						}
					default:
						flush()
						return
					}
				}
			case <-ctx.Done():
				flush()
				return
			case row := <-p.bufCh:
				pending = append(pending, row)
				if len(pending) >= p.batch {
					flush()
				}
			case <-ticker.C:
				flush()
			}
		}
	}()
}

// Stop flushes the buffer and waits for the background writer, or for ctx.
func (p *ArchivePipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *ArchivePipeline) flush(ctx context.Context, rows []models.ArchiveRow) {
	start := time.Now()
	batch := append([]models.ArchiveRow(nil), rows...)
	backoff := 50 * time.Millisecond

	var err error
	for attempt := 0; attempt <= p.retries; attempt++ {
		if err = p.archive.StoreBatch(context.WithoutCancel(ctx), batch); err == nil {
			p.metrics.RecordLatency("pipeline_flush", time.Since(start).Seconds())
			return
		}
		p.metrics.RecordError("pipeline_flush")
		if attempt == p.retries {
			break
		}
		time.Sleep(backoff)
		// exponential backoff with cap
		if backoff < 2*time.Second {
			backoff *= 2
		}
	}
	p.metrics.RecordError("pipeline_batch_drop")
	p.log.Error("archive batch dropped", logger.Int("rows", len(batch)), logger.Error(err))
}

func validateRow(r models.ArchiveRow) error {
	switch r.Kind {
	case models.ArchiveTick, models.ArchiveForecast, models.ArchiveOutcome:
	default:
		return fmt.Errorf("archive row kind %q invalid", r.Kind)
	}
	if r.PairAddress == "" {
		return errors.New("archive row pair empty")
	}
	if r.Timestamp.IsZero() {
		return errors.New("archive row timestamp invalid")
	}
	if r.Price != nil && *r.Price < 0 {
		return errors.New("archive row negative price")
	}
	return nil
}
