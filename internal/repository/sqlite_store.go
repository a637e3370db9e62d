package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"DexSignal/internal/domain/models"
	domrepo "DexSignal/internal/domain/repository"
	"DexSignal/pkg/util"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS token_pairs (
    pair_address         TEXT PRIMARY KEY,
    target_token_address TEXT NOT NULL DEFAULT '',
    doc                  TEXT NOT NULL,
    updated_at           DATETIME NOT NULL
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
    ts         DATETIME NOT NULL,
    PRIMARY KEY (tx_hash, type)
);

CREATE INDEX IF NOT EXISTS idx_trades_ts ON trade_logs(ts DESC);
`

var (
	_ domrepo.PairStore     = (*SQLiteStore)(nil)
	_ domrepo.TradeLogStore = (*SQLiteStore)(nil)
)

// SQLiteStore keeps one JSON document per pair (pure Go driver, no CGo).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path. ":memory:" works
// for tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // single writer
	db.SetMaxIdleConns(1)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("sqlite apply schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, pairAddress string) (*models.TokenPairRecord, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM token_pairs WHERE pair_address = ?`,
		util.NormalizeAddress(pairAddress)).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domrepo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite get pair: %w", err)
	}
	return decodeRecord([]byte(doc))
}

func (s *SQLiteStore) Save(ctx context.Context, rec *models.TokenPairRecord) error {
	key, doc, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO token_pairs (pair_address, target_token_address, doc, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(pair_address) DO UPDATE SET
			target_token_address = excluded.target_token_address,
			doc                  = excluded.doc,
			updated_at           = excluded.updated_at`,
		key, util.NormalizeAddress(rec.TargetTokenAddress), string(doc), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("sqlite save pair %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]*models.TokenPairRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM token_pairs ORDER BY pair_address`)
	if err != nil {
		return nil, fmt.Errorf("sqlite list pairs: %w", err)
	}
	defer rows.Close()

	var out []*models.TokenPairRecord
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("sqlite scan pair: %w", err)
		}
		rec, err := decodeRecord([]byte(doc))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListAddresses(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT pair_address FROM token_pairs ORDER BY pair_address`)
	if err != nil {
		return nil, fmt.Errorf("sqlite list addresses: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, fmt.Errorf("sqlite scan address: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Insert(ctx context.Context, t *models.TradeLog) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO trade_logs (tx_hash, type, token_in, token_out, token, name, amount_in, amount_out, amount, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tx_hash, type) DO NOTHING`,
		t.TxHash, string(t.Type), t.TokenIn, t.TokenOut, t.Token, t.Name,
		decString(t.AmountIn), decString(t.AmountOut), decString(t.Amount), t.Timestamp.UTC())
	if err != nil {
		return false, fmt.Errorf("sqlite insert trade log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite insert trade log: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) ListTrades(ctx context.Context, typ models.TradeLogType, limit int) ([]*models.TradeLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tx_hash, type, token_in, token_out, token, name, amount_in, amount_out, amount, ts
		FROM trade_logs
		WHERE ? = '' OR type = ?
		ORDER BY ts DESC
		LIMIT ?`, string(typ), string(typ), limitOrDefault(limit, 50))
	if err != nil {
		return nil, fmt.Errorf("sqlite list trade logs: %w", err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

func (s *SQLiteStore) Health(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLiteStore) Close() error { return s.db.Close() }

func scanTrades(rows *sql.Rows) ([]*models.TradeLog, error) {
	var out []*models.TradeLog
	for rows.Next() {
		var (
			t                         models.TradeLog
			typ                       string
			tokenIn, tokenOut, token  sql.NullString
			name                      sql.NullString
			amountIn, amountOut, amnt sql.NullString
		)
		if err := rows.Scan(&t.TxHash, &typ, &tokenIn, &tokenOut, &token, &name, &amountIn, &amountOut, &amnt, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("scan trade log: %w", err)
		}
		t.Type = models.TradeLogType(typ)
		t.TokenIn, t.TokenOut, t.Token, t.Name = tokenIn.String, tokenOut.String, token.String, name.String
		var err error
		if t.AmountIn, err = parseDec(amountIn); err != nil {
			return nil, err
		}
		if t.AmountOut, err = parseDec(amountOut); err != nil {
			return nil, err
		}
		if t.Amount, err = parseDec(amnt); err != nil {
			return nil, err
		}
		t.Timestamp = t.Timestamp.UTC()
		out = append(out, &t)
	}
	return out, rows.Err()
}
