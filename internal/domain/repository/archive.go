package repository

import (
	"context"

	"DexSignal/internal/domain/models"
)

// Archive is the append-only analytics sink for ticks, forecasts and outcomes.
type Archive interface {
	Init(ctx context.Context) error
	StoreBatch(ctx context.Context, rows []models.ArchiveRow) error
	Health(ctx context.Context) error
	Close() error
}
