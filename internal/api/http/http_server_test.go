package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/olyamironova/escrow-book/internal/adapter/in_memory"
	"github.com/olyamironova/escrow-book/internal/api/dto"
	"github.com/olyamironova/escrow-book/internal/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	escrowAcct = common.HexToAddress("0x000000000000000000000000000000000000e5c0")
	tokenA     = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tokenB     = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	maker      = common.HexToAddress("0x1000000000000000000000000000000000000001")
	filler     = common.HexToAddress("0x2000000000000000000000000000000000000001")
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ledger := in_memory.NewTokenLedger(escrowAcct)
	for _, who := range []common.Address{maker, filler} {
		for _, asset := range []common.Address{tokenA, tokenB} {
			ledger.Mint(asset, who, decimal.NewFromInt(100))
			ledger.Approve(asset, who, decimal.NewFromInt(100))
		}
	}
	reg := prometheus.NewRegistry()
	log := zaptest.NewLogger(t)
	eng := core.NewEngine(ledger, core.Config{},
		core.WithLogger(log),
		core.WithMetrics(core.NewMetrics(reg)))
	return NewHTTPServer(eng, log, 0, reg).Router()
}

func call(t *testing.T, h http.Handler, method, path string, caller common.Address, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if caller != (common.Address{}) {
		req.Header.Set("X-Client-ID", caller.Hex())
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestOrderLifecycle(t *testing.T) {
	h := newTestServer(t)

	w := call(t, h, http.MethodPost, "/orders", maker, map[string]any{
		"asset_a": tokenA, "asset_b": tokenB,
		"amount_a": "10", "amount_b": "20", "kind": "LIMIT", "side": "SELL",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[dto.OrderResponse](t, w).Order
	assert.Equal(t, uint64(0), created.ID)
	assert.Equal(t, dto.Open, created.Status)
	assert.Equal(t, maker, created.Maker)

	w = call(t, h, http.MethodPost, "/orders/0/fill", filler, map[string]any{"amount_to_fill": "4"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	fill := decode[dto.FillOrderResponse](t, w).Fill
	assert.True(t, fill.AmountToReceive.Equal(decimal.NewFromInt(8)))

	w = call(t, h, http.MethodGet, "/orders/0", filler, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dto.PartiallyFilled, decode[dto.OrderResponse](t, w).Order.Status)

	w = call(t, h, http.MethodGet, "/market/book?base="+tokenA.Hex()+"&quote="+tokenB.Hex(), filler, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[dto.BookResponse](t, w).Asks, 1)

	w = call(t, h, http.MethodPost, "/orders/0/cancel", filler, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Unauthorized", decode[dto.ErrorResponse](t, w).Kind)

	w = call(t, h, http.MethodPost, "/orders/0/cancel", maker, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dto.Cancelled, decode[dto.OrderResponse](t, w).Order.Status)

	w = call(t, h, http.MethodPost, "/orders/0/cancel", maker, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "AlreadyTerminal", decode[dto.ErrorResponse](t, w).Kind)

	w = call(t, h, http.MethodGet, "/orders/0/fills", maker, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[dto.GetFillsResponse](t, w).Fills, 1)

	w = call(t, h, http.MethodGet, "/makers/"+maker.Hex()+"/orders", maker, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []uint64{0}, decode[dto.UserOrdersResponse](t, w).OrderIDs)

	w = call(t, h, http.MethodGet, "/events?from=2&limit=1", maker, nil)
	require.Equal(t, http.StatusOK, w.Code)
	events := decode[dto.EventsResponse](t, w)
	require.Len(t, events.Events, 1)
	assert.Equal(t, uint64(2), events.Events[0].Seq)
	assert.Equal(t, uint64(3), events.Next)
}

func TestMarketFill(t *testing.T) {
	h := newTestServer(t)
	for i := 0; i < 2; i++ {
		w := call(t, h, http.MethodPost, "/orders", maker, map[string]any{
			"asset_a": tokenA, "asset_b": tokenB,
			"amount_a": "5", "amount_b": "10", "kind": "LIMIT", "side": "SELL",
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w := call(t, h, http.MethodPost, "/market/fill", filler, map[string]any{
		"side": "BUY", "base": tokenA, "quote": tokenB, "amount_to_fill": "8",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[dto.FillMarketOrderResponse](t, w)
	require.Len(t, res.Fills, 2)
	assert.True(t, res.Filled.Equal(decimal.NewFromInt(8)))
	assert.True(t, res.Paid.Equal(decimal.NewFromInt(16)))

	w = call(t, h, http.MethodPost, "/market/fill", filler, map[string]any{
		"side": "SELL", "base": tokenA, "quote": tokenB, "amount_to_fill": "1",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "NoMatch", decode[dto.ErrorResponse](t, w).Kind)
}

func TestRequestErrors(t *testing.T) {
	h := newTestServer(t)

	w := call(t, h, http.MethodGet, "/orders/0", common.Address{}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = call(t, h, http.MethodGet, "/orders/abc", maker, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = call(t, h, http.MethodGet, "/orders/7", maker, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NotFound", decode[dto.ErrorResponse](t, w).Kind)

	w = call(t, h, http.MethodPost, "/orders", maker, map[string]any{
		"asset_a": tokenA, "asset_b": tokenB, "amount_a": "0", "amount_b": "1", "kind": "LIMIT",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "InvalidAmount", decode[dto.ErrorResponse](t, w).Kind)

	w = call(t, h, http.MethodPost, "/orders", maker, map[string]any{
		"asset_a": tokenA, "asset_b": tokenB, "amount_a": "1000", "amount_b": "1", "kind": "LIMIT",
	})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "TransferFailed", decode[dto.ErrorResponse](t, w).Kind)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestServer(t)
	call(t, h, http.MethodPost, "/orders", maker, map[string]any{
		"asset_a": tokenA, "asset_b": tokenB, "amount_a": "1", "amount_b": "1", "kind": "LIMIT",
	})

	w := call(t, h, http.MethodGet, "/healthz", common.Address{}, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = call(t, h, http.MethodGet, "/metrics", common.Address{}, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "escrowbook_orders_created_total")
}
