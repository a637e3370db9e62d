package marketdata

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"DexSignal/internal/domain/models"
	"DexSignal/internal/domain/repository"
	"DexSignal/internal/domain/service"
	xhttp "DexSignal/pkg/http"
)

var _ service.PairDiscovery = (*Dexscreener)(nil)

// PairFilter selects the pools eligible for a monitored token.
type PairFilter struct {
	DexID        string // compared case-insensitively
	QuoteSymbol  string // compared upper-cased
	QuoteAddress string
}

// Dexscreener discovers the most liquid eligible pool of a token.
type Dexscreener struct {
	httpBase
	baseURL string
	filter  PairFilter
}

func NewDexscreener(baseURL string, filter PairFilter, opts ...Option) *Dexscreener {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	return &Dexscreener{
		httpBase: newHTTPBase(SourceDexscreener, s),
		baseURL:  strings.TrimRight(baseURL, "/"),
		filter:   filter,
	}
}

// dexToken mirrors models.TokenRef field for field.
type dexToken struct {
	Address string `json:"address"`
	Symbol  string `json:"symbol"`
	Name    string `json:"name"`
}

type dexPair struct {
	ChainID     string   `json:"chainId"`
	DexID       string   `json:"dexId"`
	PairAddress string   `json:"pairAddress"`
	BaseToken   dexToken `json:"baseToken"`
	QuoteToken  dexToken `json:"quoteToken"`
	Volume      struct {
		H24 optFloat `json:"h24"`
	} `json:"volume"`
	Liquidity struct {
		USD optFloat `json:"usd"`
	} `json:"liquidity"`
}

// BestPair returns the eligible pool with the highest USD liquidity. A zero
// volume or liquidity is reported as missing so the backfill source gets a
// chance to fill it.
func (d *Dexscreener) BestPair(ctx context.Context, chainID, token string) (*models.DiscoveredPair, error) {
	var pairs []dexPair
	err := d.do(ctx, 0, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    fmt.Sprintf("%s/token-pairs/v1/%s/%s", d.baseURL, chainID, token),
	}, &pairs)
	if err != nil {
		return nil, fmt.Errorf("token pairs: %w: %w", repository.ErrSourceUnavailable, err)
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("dexscreener: no pairs for %s: %w", token, repository.ErrSourceUnavailable)
	}

	var best *dexPair
	for i := range pairs {
		p := &pairs[i]
		if !d.eligible(p) {
			continue
		}
		if best == nil || p.Liquidity.USD.v > best.Liquidity.USD.v {
			best = p
		}
	}
	if best == nil {
		return nil, fmt.Errorf("dexscreener: no %s %s pair for %s: %w",
			d.filter.DexID, d.filter.QuoteSymbol, token, repository.ErrSourceUnavailable)
	}

	return &models.DiscoveredPair{
		PairAddress: best.PairAddress,
		ChainID:     best.ChainID,
		DexID:       best.DexID,
		BaseToken:   models.TokenRef(best.BaseToken),
		QuoteToken:  models.TokenRef(best.QuoteToken),
		Volume:      nonZero(best.Volume.H24),
		Liquidity:   nonZero(best.Liquidity.USD),
	}, nil
}

func (d *Dexscreener) eligible(p *dexPair) bool {
	if !strings.EqualFold(p.DexID, d.filter.DexID) {
		return false
	}
	if strings.ToUpper(p.QuoteToken.Symbol) != strings.ToUpper(d.filter.QuoteSymbol) {
		return false
	}
	return sameAddress(p.QuoteToken.Address, d.filter.QuoteAddress)
}

func sameAddress(a, b string) bool {
	if !common.IsHexAddress(a) || !common.IsHexAddress(b) {
		return false
	}
	return common.HexToAddress(a) == common.HexToAddress(b)
}

func nonZero(f optFloat) *float64 {
	if !f.ok || f.v == 0 {
		return nil
	}
	return f.ptr()
}
