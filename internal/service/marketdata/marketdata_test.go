package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DexSignal/internal/domain/repository"
	"DexSignal/internal/service/ratelimit"
)

const (
	wbnb  = "0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c"
	token = "0x0E09FaBB73Bd3Ade0a17ECC321fD13a19e81cE82"
)

func noRetry() Option { return WithRetry(0, 0) }

func TestAlchemyCurrentPrice(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/key/tokens/by-address", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"data":[{"address":"x","prices":[{"currency":"eur","value":"1.0"},{"currency":"USD","value":"2.45"}]}]}`))
	}))
	defer srv.Close()

	a := NewAlchemy(srv.URL, "key", time.Second, noRetry())
	price, err := a.CurrentPrice(context.Background(), "bsc", token)
	require.NoError(t, err)
	assert.InDelta(t, 2.45, price, 1e-12)

	addrs := body["addresses"].([]interface{})
	first := addrs[0].(map[string]interface{})
	assert.Equal(t, "bnb-mainnet", first["network"])
	assert.Equal(t, token, first["address"])
}

func TestAlchemyCurrentPriceMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"prices":[],"error":{"message":"token not found"}}]}`))
	}))
	defer srv.Close()

	_, err := NewAlchemy(srv.URL, "key", time.Second, noRetry()).CurrentPrice(context.Background(), "bsc", token)
	assert.ErrorIs(t, err, repository.ErrSourceUnavailable)

	_, err = NewAlchemy(srv.URL, "", time.Second).CurrentPrice(context.Background(), "bsc", token)
	assert.ErrorIs(t, err, repository.ErrSourceUnavailable)
}

func TestAlchemyRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"prices":[{"currency":"usd","value":3}]}]}`))
	}))
	defer srv.Close()

	a := NewAlchemy(srv.URL, "key", time.Second, WithRetry(3, time.Millisecond))
	price, err := a.CurrentPrice(context.Background(), "bsc", token)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, price, 1e-12)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestAlchemyHistoricalPrices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/key/tokens/historical", r.URL.Path)
		var req alchemyHistoryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "bnb-mainnet", req.Network)
		assert.Equal(t, "2025-01-01T00:00:00Z", req.StartTime)
		_, _ = w.Write([]byte(`{"data":[
			{"value":"1.2","timestamp":"2025-01-02T00:00:00Z"},
			{"value":"oops","timestamp":"2025-01-01T12:00:00Z"},
			{"value":"1.1","timestamp":"2025-01-01T00:00:00Z"},
			{"value":"1.3","timestamp":"not a time"}
		]}`))
	}))
	defer srv.Close()

	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	pts, err := NewAlchemy(srv.URL, "key", time.Second, noRetry()).
		HistoricalPrices(context.Background(), "bsc", token, from, from.AddDate(0, 0, 2))
	require.NoError(t, err)
	require.Len(t, pts, 2)
	assert.InDelta(t, 1.1, pts[0].Price, 1e-12)
	assert.InDelta(t, 1.2, pts[1].Price, 1e-12)
	assert.True(t, pts[0].Timestamp.Before(pts[1].Timestamp))
}

func TestDexscreenerBestPair(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/token-pairs/v1/bsc/"+token, r.URL.Path)
		_, _ = w.Write([]byte(`[
			{"chainId":"bsc","dexId":"uniswap","pairAddress":"0xaaa","baseToken":{"address":"` + token + `","symbol":"CAKE"},"quoteToken":{"address":"` + wbnb + `","symbol":"WBNB"},"liquidity":{"usd":9000000}},
			{"chainId":"bsc","dexId":"pancakeswap","pairAddress":"0xbbb","baseToken":{"address":"` + token + `","symbol":"CAKE"},"quoteToken":{"address":"` + wbnb + `","symbol":"wbnb"},"liquidity":{"usd":1000},"volume":{"h24":50}},
			{"chainId":"bsc","dexId":"PancakeSwap","pairAddress":"0xccc","baseToken":{"address":"` + token + `","symbol":"CAKE","name":"PancakeSwap Token"},"quoteToken":{"address":"0xBB4CDB9CBD36B01BD1CBAEBF2DE08D9173BC095C","symbol":"WBNB"},"liquidity":{"usd":5000},"volume":{"h24":0}},
			{"chainId":"bsc","dexId":"pancakeswap","pairAddress":"0xddd","baseToken":{"address":"` + token + `","symbol":"CAKE"},"quoteToken":{"address":"0x55d398326f99059fF775485246999027B3197955","symbol":"WBNB"},"liquidity":{"usd":8000}}
		]`))
	}))
	defer srv.Close()

	d := NewDexscreener(srv.URL, PairFilter{DexID: "pancakeswap", QuoteSymbol: "WBNB", QuoteAddress: wbnb}, noRetry())
	p, err := d.BestPair(context.Background(), "bsc", token)
	require.NoError(t, err)
	assert.Equal(t, "0xccc", p.PairAddress)
	assert.Equal(t, "bsc", p.ChainID)
	assert.Equal(t, "PancakeSwap Token", p.BaseToken.Name)
	require.NotNil(t, p.Liquidity)
	assert.InDelta(t, 5000.0, *p.Liquidity, 1e-9)
	assert.Nil(t, p.Volume, "zero volume is treated as missing")
}

func TestDexscreenerNoEligiblePair(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"dexId":"biswap","pairAddress":"0x1","quoteToken":{"address":"` + wbnb + `","symbol":"WBNB"}}]`))
	}))
	defer srv.Close()

	d := NewDexscreener(srv.URL, PairFilter{DexID: "pancakeswap", QuoteSymbol: "WBNB", QuoteAddress: wbnb}, noRetry())
	_, err := d.BestPair(context.Background(), "bsc", token)
	assert.ErrorIs(t, err, repository.ErrSourceUnavailable)
}

func TestSubgraphPoolStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer graph-key", r.Header.Get("Authorization"))
		var req graphqlRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "0xabcdef", req.Variables["pairAddress"])
		assert.Contains(t, req.Query, "pool(id: $pairAddress)")
		_, _ = w.Write([]byte(`{"data":{"pool":{"totalValueLockedUSD":"1234.5","volumeUSD":null}}}`))
	}))
	defer srv.Close()

	g := NewSubgraph(srv.URL, "graph-key", noRetry())
	vol, liq, err := g.PoolStats(context.Background(), "0xABCDEF")
	require.NoError(t, err)
	assert.Nil(t, vol)
	require.NotNil(t, liq)
	assert.InDelta(t, 1234.5, *liq, 1e-9)
}

func TestSubgraphMissingPoolAndKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"pool":null}}`))
	}))
	defer srv.Close()

	_, _, err := NewSubgraph(srv.URL, "k", noRetry()).PoolStats(context.Background(), "0x1")
	assert.True(t, errors.Is(err, repository.ErrNotFound))

	g := NewSubgraph(srv.URL, "")
	assert.False(t, g.Enabled())
	_, _, err = g.PoolStats(context.Background(), "0x1")
	assert.ErrorIs(t, err, repository.ErrSourceUnavailable)
}

func TestLimiterCancelsWait(t *testing.T) {
	lim := ratelimit.New()
	lim.Register(SourceDexscreener, 0.001, 1)
	require.True(t, lim.Allow(SourceDexscreener))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not be sent")
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	d := NewDexscreener(srv.URL, PairFilter{}, WithLimiter(lim), noRetry())
	_, err := d.BestPair(ctx, "bsc", token)
	assert.Error(t, err)
}
