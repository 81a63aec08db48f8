package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/olyamironova/escrow-book/internal/adapter/in_memory"
	"github.com/olyamironova/escrow-book/internal/api/dto"
	"github.com/olyamironova/escrow-book/internal/config"
	"github.com/olyamironova/escrow-book/internal/core"
	"github.com/olyamironova/escrow-book/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	tokenA = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tokenB = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	maker  = common.HexToAddress("0x1000000000000000000000000000000000000001")
	filler = common.HexToAddress("0x2000000000000000000000000000000000000001")
)

func newTestApp(t *testing.T, faucet bool) *app {
	t.Helper()
	gin.SetMode(gin.TestMode)
	t.Setenv("ESCROWBOOK_LEDGER_SEED", tokenA.Hex()+":"+maker.Hex()+":100")
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.RateLimit.Interval = 0
	cfg.Ledger.Faucet = faucet

	a, err := newApp(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func do(t *testing.T, h http.Handler, method, path string, caller common.Address, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Client-ID", caller.Hex())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func balance(t *testing.T, h http.Handler, asset, holder common.Address) decimal.Decimal {
	t.Helper()
	w := do(t, h, http.MethodGet, "/ledger/"+asset.Hex()+"/"+holder.Hex(), holder, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res dto.BalanceResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	return res.Balance
}

func TestServedOrderLifecycle(t *testing.T) {
	a := newTestApp(t, true)
	h := a.http.Router()

	w := do(t, h, http.MethodPost, "/ledger/deposit", filler, map[string]any{"asset": tokenB, "amount": "50"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = do(t, h, http.MethodPost, "/ledger/approve", filler, map[string]any{"asset": tokenB, "amount": "50"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, h, http.MethodPost, "/orders", maker, map[string]any{
		"asset_a": tokenA, "asset_b": tokenB,
		"amount_a": "10", "amount_b": "20", "kind": "LIMIT", "side": "SELL",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, h, http.MethodPost, "/orders/0/fill", filler, map[string]any{"amount_to_fill": "4"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, h, http.MethodPost, "/orders/0/cancel", maker, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.True(t, balance(t, h, tokenA, maker).Equal(decimal.NewFromInt(96)))
	assert.True(t, balance(t, h, tokenB, maker).Equal(decimal.NewFromInt(8)))
	assert.True(t, balance(t, h, tokenA, filler).Equal(decimal.NewFromInt(4)))
	assert.True(t, balance(t, h, tokenB, filler).Equal(decimal.NewFromInt(42)))
	assert.True(t, a.ledger.BalanceOf(tokenA, a.ledger.EscrowAccount()).IsZero())
}

func TestFaucetRoutesCanBeDisabled(t *testing.T) {
	a := newTestApp(t, false)
	h := a.http.Router()

	w := do(t, h, http.MethodPost, "/ledger/deposit", filler, map[string]any{"asset": tokenB, "amount": "50"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Seeded balances still fund orders.
	w = do(t, h, http.MethodPost, "/orders", maker, map[string]any{
		"asset_a": tokenA, "asset_b": tokenB,
		"amount_a": "10", "amount_b": "20", "kind": "LIMIT",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestBackEscrowFundsRestoredOrders(t *testing.T) {
	ctx := context.Background()
	repo := in_memory.NewMemoryRepo()
	escrow := common.HexToAddress("0x000000000000000000000000000000000000e5c0")

	before := in_memory.NewTokenLedger(escrow)
	before.Mint(tokenA, maker, decimal.NewFromInt(100))
	before.Approve(tokenA, maker, decimal.NewFromInt(100))
	eng := core.NewEngine(before, core.Config{}, core.WithRepository(repo))
	o, err := eng.CreateOrder(ctx, core.CreateOrderRequest{
		Maker: maker, AssetA: tokenA, AssetB: tokenB,
		AmountA: decimal.NewFromInt(10), AmountB: decimal.NewFromInt(20), Kind: domain.Limit,
	})
	require.NoError(t, err)

	after := in_memory.NewTokenLedger(escrow)
	restarted := core.NewEngine(after, core.Config{}, core.WithRepository(repo))
	require.NoError(t, restarted.Restore(ctx))
	backEscrow(ctx, restarted, after, zaptest.NewLogger(t))
	assert.True(t, after.BalanceOf(tokenA, escrow).Equal(decimal.NewFromInt(10)))

	_, err = restarted.CancelOrder(ctx, maker, o.ID)
	require.NoError(t, err)
	assert.True(t, after.BalanceOf(tokenA, maker).Equal(decimal.NewFromInt(10)))
	assert.True(t, after.BalanceOf(tokenA, escrow).IsZero())
}
