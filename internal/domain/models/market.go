package models

// TokenRef identifies a token inside a pair.
type TokenRef struct {
	Address string `json:"address"`
	Symbol  string `json:"symbol"`
	Name    string `json:"name"`
}

// MarketSnapshot is what one successful aggregation returns. Price is always
// set; volume and liquidity stay nil when no source could provide them.
type MarketSnapshot struct {
	PairAddress      string       `json:"pairAddress"`
	ChainID          string       `json:"chainId"`
	PairName         string       `json:"pairName"`
	TargetToken      TokenRef     `json:"targetToken"`
	BaseToken        TokenRef     `json:"baseToken"`
	QuoteToken       TokenRef     `json:"quoteToken"`
	Price            float64      `json:"price"`
	Volume           *float64     `json:"volume"`
	Liquidity        *float64     `json:"liquidity"`
	HistoricalPrices []PricePoint `json:"historicalPrices"`
}

// PairMetadata is the identity part of a TokenPairRecord.
type PairMetadata struct {
	PairAddress        string
	ChainID            string
	PairName           string
	BaseTokenAddress   string
	BaseTokenSymbol    string
	TargetTokenAddress string
	TargetTokenSymbol  string
	TargetTokenName    string
}

// Metadata derives the identity of the pair a snapshot was taken from.
// TargetToken is the monitored token the snapshot was requested for.
func (s *MarketSnapshot) Metadata() PairMetadata {
	return PairMetadata{
		PairAddress:        s.PairAddress,
		ChainID:            s.ChainID,
		PairName:           s.PairName,
		BaseTokenAddress:   s.BaseToken.Address,
		BaseTokenSymbol:    s.BaseToken.Symbol,
		TargetTokenAddress: s.TargetToken.Address,
		TargetTokenSymbol:  s.TargetToken.Symbol,
		TargetTokenName:    s.TargetToken.Name,
	}
}

// DiscoveredPair is the pool chosen for a token by the pair discovery source.
type DiscoveredPair struct {
	PairAddress string
	ChainID     string
	DexID       string
	BaseToken   TokenRef
	QuoteToken  TokenRef
	Volume      *float64
	Liquidity   *float64
}
