package marketdata

import (
	"context"
	"fmt"
	"strings"

	"DexSignal/internal/domain/repository"
	"DexSignal/internal/domain/service"
	xhttp "DexSignal/pkg/http"
)

var _ service.PoolStatsSource = (*Subgraph)(nil)

const poolQuery = `query GetPairData($pairAddress: ID!) {
  pool(id: $pairAddress) {
    totalValueLockedUSD
    volumeUSD
  }
}`

// Subgraph reads pool volume and TVL from the PancakeSwap v3 subgraph.
type Subgraph struct {
	httpBase
	url    string
	apiKey string
}

func NewSubgraph(url, apiKey string, opts ...Option) *Subgraph {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	return &Subgraph{httpBase: newHTTPBase(SourceSubgraph, s), url: url, apiKey: apiKey}
}

type graphqlRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

type poolResponse struct {
	Data struct {
		Pool *struct {
			TotalValueLockedUSD optFloat `json:"totalValueLockedUSD"`
			VolumeUSD           optFloat `json:"volumeUSD"`
		} `json:"pool"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Enabled reports whether the subgraph can be queried at all.
func (g *Subgraph) Enabled() bool { return g.apiKey != "" && g.url != "" }

// PoolStats returns the pool's cumulative USD volume and its TVL. Either may
// be nil when the subgraph has no value for it.
func (g *Subgraph) PoolStats(ctx context.Context, pairAddress string) (*float64, *float64, error) {
	if !g.Enabled() {
		return nil, nil, fmt.Errorf("subgraph api key not set: %w", repository.ErrSourceUnavailable)
	}

	var resp poolResponse
	err := g.do(ctx, 0, &xhttp.RequestOptions{
		Method:  xhttp.MethodPost,
		URL:     g.url,
		Headers: map[string]string{"Authorization": "Bearer " + g.apiKey},
		Body: graphqlRequest{
			Query:     poolQuery,
			Variables: map[string]interface{}{"pairAddress": strings.ToLower(pairAddress)},
		},
	}, &resp)
	if err != nil {
		return nil, nil, fmt.Errorf("pool stats: %w: %w", repository.ErrSourceUnavailable, err)
	}
	if len(resp.Errors) > 0 {
		g.fail()
		return nil, nil, fmt.Errorf("subgraph: %s: %w", resp.Errors[0].Message, repository.ErrSourceUnavailable)
	}
	if resp.Data.Pool == nil {
		return nil, nil, fmt.Errorf("subgraph: no pool %s: %w", pairAddress, repository.ErrNotFound)
	}
	return resp.Data.Pool.VolumeUSD.ptr(), resp.Data.Pool.TotalValueLockedUSD.ptr(), nil
}
