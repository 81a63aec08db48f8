package pg

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/olyamironova/escrow-book/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *PgRepo {
	t.Helper()
	dsn := os.Getenv("ESCROWBOOK_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("ESCROWBOOK_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	repo, err := NewPgRepo(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close(ctx) })
	require.NoError(t, repo.Migrate(ctx))
	_, err = repo.pool.Exec(ctx, `TRUNCATE orders, order_events`)
	require.NoError(t, err)
	return repo
}

func TestPgRepoRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	o := &domain.Order{
		ID:         3,
		Maker:      common.HexToAddress("0x1000000000000000000000000000000000000001"),
		AssetA:     common.HexToAddress("0xaa"),
		AssetB:     common.HexToAddress("0xbb"),
		AmountA:    decimal.RequireFromString("123456789012345678901234567890"),
		AmountB:    decimal.NewFromInt(20),
		RemainingA: decimal.RequireFromString("123456789012345678901234567890"),
		RemainingB: decimal.NewFromInt(20),
		Active:     true,
		Kind:       domain.Limit,
		Side:       domain.Sell,
		CreatedAt:  time.Now().UTC().Truncate(time.Microsecond),
	}
	ev := domain.NewOrderCreated(o)
	ev.Seq = 1
	ev.ID = uuid.NewString()
	ev.Timestamp = o.CreatedAt

	tx, err := repo.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.SaveOrder(ctx, o))
	require.NoError(t, tx.AppendEvents(ctx, []domain.Event{ev}))
	require.NoError(t, tx.Commit(ctx))

	o.RemainingA = decimal.Zero
	o.Active = false
	tx, err = repo.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.SaveOrder(ctx, o))
	require.NoError(t, tx.Commit(ctx))

	orders, err := repo.LoadOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	got := orders[0]
	assert.Equal(t, o.ID, got.ID)
	assert.Equal(t, o.Maker, got.Maker)
	assert.Equal(t, domain.Sell, got.Side)
	assert.False(t, got.Active)
	assert.True(t, got.AmountA.Equal(o.AmountA))
	assert.True(t, got.RemainingA.IsZero())
	assert.Equal(t, common.Address{}, got.PriceFeedA)

	events, err := repo.LoadEvents(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ev.ID, events[0].ID)
	assert.Equal(t, domain.OrderCreated, events[0].Type)
}

func TestPgRepoRollbackDiscards(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	tx, err := repo.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.SaveOrder(ctx, &domain.Order{
		ID: 1, Kind: domain.Limit,
		AmountA: decimal.NewFromInt(1), AmountB: decimal.NewFromInt(1),
		RemainingA: decimal.NewFromInt(1), RemainingB: decimal.NewFromInt(1),
		CreatedAt: time.Now(),
	}))
	require.NoError(t, tx.Rollback(ctx))

	orders, err := repo.LoadOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, orders)
}
