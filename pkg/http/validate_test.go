package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pairQuery struct {
	Address string `param:"address" validate:"required,hexaddr"`
	Limit   int    `query:"limit" default:"20" validate:"gte=1,lte=100"`
	Side    string `query:"side" validate:"omitempty,oneof=Buy Sell"`
}

func bindPair(t *testing.T, addr, query string) (*pairQuery, []ValidationError) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/pairs/x?"+query, nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("address")
	c.SetParamValues(addr)
	out := &pairQuery{}
	return out, ReadAndValidateRequest(c, out)
}

func TestReadAndValidateRequestDefaults(t *testing.T) {
	got, verr := bindPair(t, "0x0ed7e52944161450477ee417de9cd3a859b14fd0", "")
	require.Nil(t, verr)
	assert.Equal(t, 20, got.Limit)
}

func TestReadAndValidateRequestReportsClientNames(t *testing.T) {
	_, verr := bindPair(t, "0xnothex", "limit=500&side=Hold")
	require.Len(t, verr, 3)

	byField := map[string]ValidationError{}
	for _, v := range verr {
		byField[v.Field] = v
	}
	assert.Equal(t, "ERR_HEXADDR", byField["address"].Code)
	assert.Equal(t, "address must be a 20 byte hex address", byField["address"].Message)
	assert.Equal(t, "limit must be at most 100", byField["limit"].Message)
	assert.Equal(t, "100", byField["limit"].Params["max"])
	assert.Equal(t, "side must be one of: Buy, Sell", byField["side"].Message)
}

func TestReadAndValidateRequestBindFailure(t *testing.T) {
	_, verr := bindPair(t, "0x0ed7e52944161450477ee417de9cd3a859b14fd0", "limit=many")
	require.Len(t, verr, 1)
	assert.Equal(t, "ERR_BIND", verr[0].Code)
}
