package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TradeLogType string

const (
	TradeBuy        TradeLogType = "Buy"
	TradeSell       TradeLogType = "Sell"
	TradeDeposit    TradeLogType = "Deposit"
	TradeWithdrawn  TradeLogType = "Withdrawn"
	TradeTokenAdded TradeLogType = "TokenAdded"
)

// TradeLog is one contract event relayed by the on-chain listener.
// Amounts are raw token units and may exceed float precision.
type TradeLog struct {
	Type      TradeLogType     `json:"type"`
	TokenIn   string           `json:"tokenIn,omitempty"`
	TokenOut  string           `json:"tokenOut,omitempty"`
	Token     string           `json:"token,omitempty"`
	Name      string           `json:"name,omitempty"`
	AmountIn  *decimal.Decimal `json:"amountIn,omitempty"`
	AmountOut *decimal.Decimal `json:"amountOut,omitempty"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
	TxHash    string           `json:"txHash"`
	Timestamp time.Time        `json:"timestamp"`
}
