package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"DexSignal/internal/domain/models"
	"DexSignal/pkg/util"
)

func encodeRecord(rec *models.TokenPairRecord) (string, []byte, error) {
	key := util.NormalizeAddress(rec.PairAddress)
	cp := *rec
	cp.PairAddress = key
	b, err := json.Marshal(&cp)
	if err != nil {
		return "", nil, fmt.Errorf("encode record %s: %w", key, err)
	}
	return key, b, nil
}

func decodeRecord(b []byte) (*models.TokenPairRecord, error) {
	var rec models.TokenPairRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &rec, nil
}

func decString(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseDec(s sql.NullString) (*decimal.Decimal, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil, fmt.Errorf("decode amount %q: %w", s.String, err)
	}
	return &d, nil
}

func limitOrDefault(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return limit
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}
