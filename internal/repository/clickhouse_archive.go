package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"DexSignal/internal/domain/models"
	domrepo "DexSignal/internal/domain/repository"
	pkgch "DexSignal/pkg/clickhouse"
	applogger "DexSignal/pkg/logger"
)

var _ domrepo.Archive = (*CHArchive)(nil)

// CHArchive appends ticks, forecasts and outcomes to ClickHouse.
type CHArchive struct {
	ch       *pkgch.Client
	database string
	l        *applogger.Logger
}

func NewCHArchive(ch *pkgch.Client, database string, l *applogger.Logger) *CHArchive {
	if database == "" {
		database = ch.Database()
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &CHArchive{ch: ch, database: database, l: l}
}

// ArchiveSchema returns the idempotent DDL of the archive tables.
func ArchiveSchema(database string) []string {
	return []string{
		fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS %s`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.market_ticks (
            pair      LowCardinality(String),
            ts        DateTime64(3, 'UTC'),
            price     Nullable(Float64),
            volume    Nullable(Float64),
            liquidity Nullable(Float64)
        ) ENGINE = MergeTree ORDER BY (pair, ts)`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.forecasts (
            pair     LowCardinality(String),
            ts       DateTime64(3, 'UTC'),
            price    Nullable(Float64),
            lstm     Nullable(Float64),
            gbt      Nullable(Float64),
            combined Nullable(Float64),
            target   Nullable(Float64),
            cycle    String
        ) ENGINE = MergeTree ORDER BY (pair, ts)`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.outcomes (
            pair   LowCardinality(String),
            cycle  String,
            hit    UInt8,
            price  Nullable(Float64),
            target Nullable(Float64),
            ts     DateTime64(3, 'UTC')
        ) ENGINE = ReplacingMergeTree ORDER BY (pair, cycle)`, database),
	}
}

func (s *CHArchive) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, ArchiveSchema(s.database))
}

// StoreBatch groups rows by kind and writes each group with multi-row
// VALUES inserts to reduce round-trips.
func (s *CHArchive) StoreBatch(ctx context.Context, rows []models.ArchiveRow) error {
	if len(rows) == 0 {
		return nil
	}
	start := time.Now()
	byKind := make(map[models.ArchiveKind][]models.ArchiveRow, 3)
	for _, r := range rows {
		byKind[r.Kind] = append(byKind[r.Kind], r)
	}

	for kind, group := range byKind {
		table, cols, args := s.insertFor(kind)
		if table == "" {
			continue
		}
		if err := s.insert(ctx, table, cols, group, args); err != nil {
			s.l.Error("clickhouse archive insert error",
				applogger.String("table", table),
				applogger.Int("rows", len(group)),
				applogger.Error(err),
			)
			return fmt.Errorf("archive %s: %w", kind, err)
		}
	}
	s.l.Debug("clickhouse archive batch ok",
		applogger.Int("rows", len(rows)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

func (s *CHArchive) insertFor(kind models.ArchiveKind) (string, []string, func(models.ArchiveRow) []interface{}) {
	switch kind {
	case models.ArchiveTick:
		return "market_ticks", []string{"pair", "ts", "price", "volume", "liquidity"},
			func(r models.ArchiveRow) []interface{} {
				return []interface{}{r.PairAddress, r.Timestamp.UTC(), r.Price, r.Volume, r.Liquidity}
			}
	case models.ArchiveForecast:
		return "forecasts", []string{"pair", "ts", "price", "lstm", "gbt", "combined", "target", "cycle"},
			func(r models.ArchiveRow) []interface{} {
				return []interface{}{r.PairAddress, r.Timestamp.UTC(), r.Price, r.LSTM, r.GBT, r.Combined, r.Target, r.CycleID}
			}
	case models.ArchiveOutcome:
		return "outcomes", []string{"pair", "cycle", "hit", "price", "target", "ts"},
			func(r models.ArchiveRow) []interface{} {
				hit := uint8(0)
				if r.Hit {
					hit = 1
				}
				return []interface{}{r.PairAddress, r.CycleID, hit, r.Price, r.Target, r.Timestamp.UTC()}
			}
	default:
		return "", nil, nil
	}
}

func (s *CHArchive) insert(ctx context.Context, table string, cols []string, rows []models.ArchiveRow, argsOf func(models.ArchiveRow) []interface{}) error {
	const chunkSize = 2000
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"
	for start := 0; start < len(rows); start += chunkSize {
		end := min(start+chunkSize, len(rows))
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*len(cols))
		for _, r := range rows[start:end] {
			values = append(values, placeholder)
			args = append(args, argsOf(r)...)
		}
		q := fmt.Sprintf("INSERT INTO %s.%s (%s) VALUES %s", s.database, table, strings.Join(cols, ", "), strings.Join(values, ","))
		if err := s.ch.Exec(ctx, q, args...); err != nil {
			return err
		}
	}
	return nil
}

func (s *CHArchive) Health(ctx context.Context) error { return s.ch.Health(ctx) }

// Close is a no-op; the pool belongs to the pkg/clickhouse client.
func (s *CHArchive) Close() error { return nil }
