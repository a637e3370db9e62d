package marketdata

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"DexSignal/internal/domain/models"
	"DexSignal/internal/domain/repository"
	"DexSignal/internal/domain/service"
	xhttp "DexSignal/pkg/http"
	"DexSignal/pkg/util"
)

var _ service.PriceSource = (*Alchemy)(nil)

// Alchemy reads current and historical USD prices from the Alchemy Prices API.
type Alchemy struct {
	httpBase
	baseURL        string
	apiKey         string
	historyTimeout time.Duration
}

// NewAlchemy builds the price source. WithTimeout sets the current price
// timeout; historyTimeout bounds the (larger) historical request.
func NewAlchemy(baseURL, apiKey string, historyTimeout time.Duration, opts ...Option) *Alchemy {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	if historyTimeout <= 0 {
		historyTimeout = 15 * time.Second
	}
	return &Alchemy{
		httpBase:       newHTTPBase(SourceAlchemy, s),
		baseURL:        strings.TrimRight(baseURL, "/"),
		apiKey:         apiKey,
		historyTimeout: historyTimeout,
	}
}

// Network maps a chain id to Alchemy's network name.
func Network(chainID string) string {
	switch strings.ToLower(chainID) {
	case "bsc":
		return "bnb-mainnet"
	default:
		return chainID
	}
}

type alchemyAddress struct {
	Network string `json:"network"`
	Address string `json:"address"`
}

type alchemyPricesResponse struct {
	Data []struct {
		Address string `json:"address"`
		Prices  []struct {
			Currency string   `json:"currency"`
			Value    optFloat `json:"value"`
		} `json:"prices"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	} `json:"data"`
}

type alchemyHistoryRequest struct {
	Network   string `json:"network"`
	Address   string `json:"address"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

type alchemyHistoryResponse struct {
	Data []struct {
		Value     optFloat `json:"value"`
		Timestamp string   `json:"timestamp"`
	} `json:"data"`
}

// CurrentPrice returns the USD price of token. Any failure, including a
// missing API key or a response without a usd entry, is ErrSourceUnavailable.
func (a *Alchemy) CurrentPrice(ctx context.Context, chainID, token string) (float64, error) {
	if a.apiKey == "" {
		return 0, fmt.Errorf("alchemy api key not set: %w", repository.ErrSourceUnavailable)
	}

	var resp alchemyPricesResponse
	err := a.do(ctx, 0, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    fmt.Sprintf("%s/%s/tokens/by-address", a.baseURL, a.apiKey),
		Body: map[string]interface{}{
			"addresses": []alchemyAddress{{Network: Network(chainID), Address: token}},
		},
	}, &resp)
	if err != nil {
		return 0, fmt.Errorf("current price: %w: %w", repository.ErrSourceUnavailable, err)
	}
	if len(resp.Data) == 0 {
		a.fail()
		return 0, fmt.Errorf("alchemy: empty data for %s: %w", token, repository.ErrSourceUnavailable)
	}
	entry := resp.Data[0]
	for _, p := range entry.Prices {
		if strings.EqualFold(p.Currency, "usd") && p.Value.ok {
			return p.Value.v, nil
		}
	}
	if entry.Error != nil && entry.Error.Message != "" {
		a.fail()
		return 0, fmt.Errorf("alchemy: %s: %w", entry.Error.Message, repository.ErrSourceUnavailable)
	}
	a.fail()
	return 0, fmt.Errorf("alchemy: no usd price for %s: %w", token, repository.ErrSourceUnavailable)
}

// HistoricalPrices returns the price series between from and to, sorted
// ascending. Points whose value or timestamp cannot be parsed are dropped.
func (a *Alchemy) HistoricalPrices(ctx context.Context, chainID, token string, from, to time.Time) ([]models.PricePoint, error) {
	if a.apiKey == "" {
		return nil, fmt.Errorf("alchemy api key not set: %w", repository.ErrSourceUnavailable)
	}

	var resp alchemyHistoryResponse
	err := a.do(ctx, a.historyTimeout, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    fmt.Sprintf("%s/%s/tokens/historical", a.baseURL, a.apiKey),
		Body: alchemyHistoryRequest{
			Network:   Network(chainID),
			Address:   token,
			StartTime: from.UTC().Format(time.RFC3339),
			EndTime:   to.UTC().Format(time.RFC3339),
		},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("historical prices: %w: %w", repository.ErrSourceUnavailable, err)
	}

	out := make([]models.PricePoint, 0, len(resp.Data))
	for _, p := range resp.Data {
		if !p.Value.ok {
			continue
		}
		ts, ok := util.ParseTime(p.Timestamp)
		if !ok {
			continue
		}
		out = append(out, models.PricePoint{Price: p.Value.v, Timestamp: ts.UTC()})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}
