package repository

import (
	"context"

	"DexSignal/internal/domain/models"
)

// PairStore persists TokenPairRecords keyed by lowercase pair address.
// Get returns ErrNotFound for unknown pairs.
type PairStore interface {
	Init(ctx context.Context) error // ensure tables, health checks
	Get(ctx context.Context, pairAddress string) (*models.TokenPairRecord, error)
	Save(ctx context.Context, rec *models.TokenPairRecord) error
	List(ctx context.Context) ([]*models.TokenPairRecord, error)
	ListAddresses(ctx context.Context) ([]string, error)
	Health(ctx context.Context) error // ping
	Close() error
}

// TradeLogStore persists relayed contract events. Insert reports false when
// the event (tx hash + type) was already stored.
type TradeLogStore interface {
	Init(ctx context.Context) error
	Insert(ctx context.Context, t *models.TradeLog) (bool, error)
	ListTrades(ctx context.Context, typ models.TradeLogType, limit int) ([]*models.TradeLog, error)
	Close() error
}

// MonitorStateStore keeps monitor entries across restarts.
type MonitorStateStore interface {
	Save(ctx context.Context, st models.MonitorState) error
	Delete(ctx context.Context, pairAddress string) error
	LoadAll(ctx context.Context) ([]models.MonitorState, error)
}

// EventPublisher ships domain events to the message bus.
type EventPublisher interface {
	Publish(ctx context.Context, ev models.Event) error
	Close() error
}

type Metrics interface {
	RecordMessageSent(backend, topic string)
	RecordError(kind string)
	RecordSourceError(source string)
	RecordPairProcessed(stage string)
	RecordLastPrice(pair string, price float64)
	RecordLatency(op string, seconds float64)
	RecordOutcome(hit bool)
}
