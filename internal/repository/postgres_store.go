package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"DexSignal/internal/domain/models"
	domrepo "DexSignal/internal/domain/repository"
	"DexSignal/pkg/util"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS token_pairs (
    pair_address         TEXT PRIMARY KEY,
    target_token_address TEXT NOT NULL DEFAULT '',
    doc                  JSONB NOT NULL,
    updated_at           TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pairs_target ON token_pairs(target_token_address);

CREATE TABLE IF NOT EXISTS trade_logs (
    tx_hash    TEXT NOT NULL,
    type       TEXT NOT NULL,
    token_in   TEXT,
    token_out  TEXT,
    token      TEXT,
    name       TEXT,
    amount_in  TEXT,
    amount_out TEXT,
    amount     TEXT,
    ts         TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (tx_hash, type)
);

CREATE INDEX IF NOT EXISTS idx_trades_ts ON trade_logs(ts DESC);
`

var (
	_ domrepo.PairStore     = (*PostgresStore)(nil)
	_ domrepo.TradeLogStore = (*PostgresStore)(nil)
)

// PostgresStore keeps one JSONB document per pair.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects and pings.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Init(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("postgres apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, pairAddress string) (*models.TokenPairRecord, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM token_pairs WHERE pair_address = $1`,
		util.NormalizeAddress(pairAddress)).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domrepo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres get pair: %w", err)
	}
	return decodeRecord(doc)
}

func (s *PostgresStore) Save(ctx context.Context, rec *models.TokenPairRecord) error {
	key, doc, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO token_pairs (pair_address, target_token_address, doc, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (pair_address) DO UPDATE SET
			target_token_address = EXCLUDED.target_token_address,
			doc                  = EXCLUDED.doc,
			updated_at           = EXCLUDED.updated_at`,
		key, util.NormalizeAddress(rec.TargetTokenAddress), doc, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("postgres save pair %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.TokenPairRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT doc FROM token_pairs ORDER BY pair_address`)
	if err != nil {
		return nil, fmt.Errorf("postgres list pairs: %w", err)
	}
	docs, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, fmt.Errorf("postgres list pairs: %w", err)
	}
	out := make([]*models.TokenPairRecord, 0, len(docs))
	for _, d := range docs {
		rec, err := decodeRecord(d)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *PostgresStore) ListAddresses(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT pair_address FROM token_pairs ORDER BY pair_address`)
	if err != nil {
		return nil, fmt.Errorf("postgres list addresses: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres list addresses: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Insert(ctx context.Context, t *models.TradeLog) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO trade_logs (tx_hash, type, token_in, token_out, token, name, amount_in, amount_out, amount, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (tx_hash, type) DO NOTHING`,
		t.TxHash, string(t.Type), t.TokenIn, t.TokenOut, t.Token, t.Name,
		decString(t.AmountIn), decString(t.AmountOut), decString(t.Amount), t.Timestamp.UTC())
	if err != nil {
		return false, fmt.Errorf("postgres insert trade log: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) ListTrades(ctx context.Context, typ models.TradeLogType, limit int) ([]*models.TradeLog, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tx_hash, type, COALESCE(token_in, ''), COALESCE(token_out, ''), COALESCE(token, ''), COALESCE(name, ''),
		       amount_in, amount_out, amount, ts
		FROM trade_logs
		WHERE $1 = '' OR type = $1
		ORDER BY ts DESC
		LIMIT $2`, string(typ), limitOrDefault(limit, 50))
	if err != nil {
		return nil, fmt.Errorf("postgres list trade logs: %w", err)
	}
	defer rows.Close()

	var out []*models.TradeLog
	for rows.Next() {
		var (
			t                         models.TradeLog
			typ                       string
			amountIn, amountOut, amnt *string
		)
		if err := rows.Scan(&t.TxHash, &typ, &t.TokenIn, &t.TokenOut, &t.Token, &t.Name, &amountIn, &amountOut, &amnt, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("scan trade log: %w", err)
		}
		t.Type = models.TradeLogType(typ)
		if t.AmountIn, err = parseDec(nullString(amountIn)); err != nil {
			return nil, err
		}
		if t.AmountOut, err = parseDec(nullString(amountOut)); err != nil {
			return nil, err
		}
		if t.Amount, err = parseDec(nullString(amnt)); err != nil {
			return nil, err
		}
		t.Timestamp = t.Timestamp.UTC()
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Health(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
