package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"DexSignal/internal/domain/models"
	domrepo "DexSignal/internal/domain/repository"
	pkgkafka "DexSignal/pkg/kafka"
	"DexSignal/pkg/logger"
)

// ErrInvalidTradeLog marks a message that can never be stored; retrying it
// is pointless.
var ErrInvalidTradeLog = errors.New("invalid trade log")

// TradeLogHandler consumes contract events relayed by the on-chain listener
// and stores them.
type TradeLogHandler struct {
	topic   string
	store   domrepo.TradeLogStore
	metrics domrepo.Metrics
	log     *logger.Logger
}

func NewTradeLogHandler(topic string, store domrepo.TradeLogStore, metrics domrepo.Metrics, log *logger.Logger) *TradeLogHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &TradeLogHandler{topic: topic, store: store, metrics: metrics, log: log}
}

func (h *TradeLogHandler) Topic() string { return h.topic }

// incoming message schema: {type, tokenIn, tokenOut, token, name, amountIn, amountOut, amount, txHash, timestamp}
func (h *TradeLogHandler) Handle(ctx context.Context, b []byte) error {
	t, err := ParseTradeLog(b)
	if err != nil {
		h.metrics.RecordError("tradelog_parse")
		// invalid payloads are dropped so the offset can advance
		h.log.Warn("trade log rejected", logger.Error(err))
		return nil
	}
	h.metrics.RecordLatency("tradelog_e2e_seconds", time.Since(t.Timestamp).Seconds())

	start := time.Now()
	inserted, err := h.store.Insert(ctx, t)
	h.metrics.RecordLatency("tradelog_insert_seconds", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("tradelog_store")
		return fmt.Errorf("store trade log %s: %w", t.TxHash, err)
	}
	if !inserted {
		h.log.Debug("duplicate trade log", logger.String("tx", t.TxHash), logger.String("type", string(t.Type)))
		return nil
	}
	h.metrics.RecordMessageSent("tradelog", string(t.Type))
	return nil
}

type tradeLogMessage struct {
	Type      string `json:"type"`
	TokenIn   string `json:"tokenIn"`
	TokenOut  string `json:"tokenOut"`
	Token     string `json:"token"`
	Name      string `json:"name"`
	AmountIn  string `json:"amountIn"`
	AmountOut string `json:"amountOut"`
	Amount    string `json:"amount"`
	TxHash    string `json:"txHash"`
	Timestamp int64  `json:"timestamp"`
}

// ParseTradeLog decodes and validates one relayed event. Amounts are decimal
// strings; the timestamp is unix seconds or milliseconds.
func ParseTradeLog(b []byte) (*models.TradeLog, error) {
	var m tradeLogMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTradeLog, err)
	}

	typ := models.TradeLogType(m.Type)
	switch typ {
	case models.TradeBuy, models.TradeSell, models.TradeDeposit, models.TradeWithdrawn, models.TradeTokenAdded:
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidTradeLog, m.Type)
	}
	hash := strings.ToLower(strings.TrimSpace(m.TxHash))
	if len(hash) != 2+2*common.HashLength || !strings.HasPrefix(hash, "0x") {
		return nil, fmt.Errorf("%w: tx hash %q", ErrInvalidTradeLog, m.TxHash)
	}

	t := &models.TradeLog{Type: typ, Name: m.Name, TxHash: hash}
	var err error
	if t.TokenIn, err = address(m.TokenIn); err != nil {
		return nil, err
	}
	if t.TokenOut, err = address(m.TokenOut); err != nil {
		return nil, err
	}
	if t.Token, err = address(m.Token); err != nil {
		return nil, err
	}
	if t.AmountIn, err = amount(m.AmountIn); err != nil {
		return nil, err
	}
	if t.AmountOut, err = amount(m.AmountOut); err != nil {
		return nil, err
	}
	if t.Amount, err = amount(m.Amount); err != nil {
		return nil, err
	}

	switch typ {
	case models.TradeBuy, models.TradeSell:
		if t.TokenIn == "" || t.TokenOut == "" || t.AmountIn == nil || t.AmountOut == nil {
			return nil, fmt.Errorf("%w: %s needs tokens and amounts", ErrInvalidTradeLog, typ)
		}
	case models.TradeDeposit, models.TradeWithdrawn:
		if t.Token == "" || t.Amount == nil {
			return nil, fmt.Errorf("%w: %s needs token and amount", ErrInvalidTradeLog, typ)
		}
	case models.TradeTokenAdded:
		if t.Token == "" {
			return nil, fmt.Errorf("%w: %s needs token", ErrInvalidTradeLog, typ)
		}
	}

	ts := m.Timestamp
	switch {
	case ts <= 0:
		t.Timestamp = time.Now().UTC()
	case ts > 1e11: // ms
		t.Timestamp = time.UnixMilli(ts).UTC()
	default:
		t.Timestamp = time.Unix(ts, 0).UTC()
	}
	return t, nil
}

func address(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	if !common.IsHexAddress(s) {
		return "", fmt.Errorf("%w: address %q", ErrInvalidTradeLog, s)
	}
	return strings.ToLower(common.HexToAddress(s).Hex()), nil
}

func amount(s string) (*decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: amount %q", ErrInvalidTradeLog, s)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: negative amount %q", ErrInvalidTradeLog, s)
	}
	return &d, nil
}

var _ pkgkafka.MessageHandler = (*TradeLogHandler)(nil)
