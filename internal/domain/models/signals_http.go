package models

// Requests for the read API. Defined in domain for consistency and reuse.

type PairRequest struct {
	Address string `param:"address" json:"address" validate:"required,hexaddr"`
}

type HistoryRequest struct {
	Address string `param:"address" json:"address" validate:"required,hexaddr"`
	Limit   int    `query:"limit" json:"limit" default:"200" validate:"gte=1,lte=5000"`
}

type SignalsRequest struct {
	Signal string `query:"signal" json:"signal" validate:"omitempty,oneof=Buy Sell Hold Error"`
	Limit  int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=1000"`
}

type TradesRequest struct {
	Type  string `query:"type" json:"type" validate:"omitempty,oneof=Buy Sell Deposit Withdrawn TokenAdded"`
	Limit int    `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=1000"`
}
