package in_memory

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/olyamironova/escrow-book/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	escrow = common.HexToAddress("0xe5c0")
	asset  = common.HexToAddress("0xaa")
	alice  = common.HexToAddress("0xa11ce")
	bob    = common.HexToAddress("0xb0b")
)

func amt(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestLedgerCommit(t *testing.T) {
	ctx := context.Background()
	l := NewTokenLedger(escrow)
	l.Mint(asset, alice, amt(10))
	l.Approve(asset, alice, amt(10))

	tx, err := l.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Pull(ctx, asset, alice, amt(6)))
	require.NoError(t, tx.Push(ctx, asset, bob, amt(2)))
	require.NoError(t, tx.Move(ctx, asset, alice, bob, amt(1)))
	require.NoError(t, tx.Commit(ctx))

	assert.True(t, l.BalanceOf(asset, alice).Equal(amt(3)))
	assert.True(t, l.BalanceOf(asset, bob).Equal(amt(3)))
	assert.True(t, l.BalanceOf(asset, escrow).Equal(amt(4)))
	assert.True(t, l.Allowance(asset, alice).Equal(amt(3)))

	require.Error(t, tx.Pull(ctx, asset, alice, amt(1)))
}

func TestLedgerRollbackRestoresEverything(t *testing.T) {
	ctx := context.Background()
	l := NewTokenLedger(escrow)
	l.Mint(asset, alice, amt(10))
	l.Approve(asset, alice, amt(10))

	tx, err := l.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Pull(ctx, asset, alice, amt(5)))
	require.NoError(t, tx.Push(ctx, asset, bob, amt(5)))
	require.NoError(t, tx.Rollback(ctx))

	assert.True(t, l.BalanceOf(asset, alice).Equal(amt(10)))
	assert.True(t, l.BalanceOf(asset, bob).IsZero())
	assert.True(t, l.BalanceOf(asset, escrow).IsZero())
	assert.True(t, l.Allowance(asset, alice).Equal(amt(10)))
}

func TestLedgerRejections(t *testing.T) {
	ctx := context.Background()
	l := NewTokenLedger(escrow)
	l.Mint(asset, alice, amt(5))
	l.Approve(asset, alice, amt(3))

	tx, err := l.Begin(ctx)
	require.NoError(t, err)
	require.ErrorIs(t, tx.Pull(ctx, asset, alice, amt(4)), domain.ErrInsufficientAllowance)

	l.Approve(asset, alice, amt(100))
	require.ErrorIs(t, tx.Pull(ctx, asset, alice, amt(6)), domain.ErrInsufficientBalance)
	require.ErrorIs(t, tx.Push(ctx, asset, bob, amt(1)), domain.ErrInsufficientBalance)
	require.Error(t, tx.Move(ctx, asset, alice, bob, amt(-1)))
}

func TestLedgerHook(t *testing.T) {
	ctx := context.Background()
	l := NewTokenLedger(escrow)
	l.Mint(asset, alice, amt(5))
	l.Approve(asset, alice, amt(5))

	var seen []Transfer
	l.OnTransfer(func(_ context.Context, tr Transfer) error {
		seen = append(seen, tr)
		if tr.To == bob {
			return errors.New("receiver reverted")
		}
		return nil
	})

	tx, err := l.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Pull(ctx, asset, alice, amt(2)))
	require.Error(t, tx.Push(ctx, asset, bob, amt(1)))
	require.NoError(t, tx.Rollback(ctx))

	require.Len(t, seen, 2)
	assert.Equal(t, escrow, seen[0].To)
	assert.True(t, l.BalanceOf(asset, bob).IsZero())
	assert.True(t, l.BalanceOf(asset, alice).Equal(amt(5)))
}
