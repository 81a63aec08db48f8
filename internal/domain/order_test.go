package domain

import (
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestOrderState(t *testing.T) {
	now := time.Unix(1000, 0)
	o := &Order{
		AmountA:    decimal.NewFromInt(10),
		RemainingA: decimal.NewFromInt(10),
		Active:     true,
	}
	assert.False(t, o.Expired(now))
	assert.True(t, o.Fillable(now))
	assert.False(t, o.PartiallyFilled())

	o.Expiry = 1000
	assert.True(t, o.Expired(now))
	assert.False(t, o.Fillable(now))
	o.Expiry = 1001
	assert.True(t, o.Fillable(now))

	o.RemainingA = decimal.NewFromInt(4)
	assert.True(t, o.PartiallyFilled())

	c := o.Clone()
	c.Active = false
	assert.True(t, o.Active)
}

func TestOrderPair(t *testing.T) {
	base, quote := common.HexToAddress("0xaa"), common.HexToAddress("0xbb")
	sell := &Order{AssetA: base, AssetB: quote, Side: Sell}
	buy := &Order{AssetA: quote, AssetB: base, Side: Buy}
	assert.Equal(t, Pair{Base: base, Quote: quote}, sell.Pair())
	assert.Equal(t, sell.Pair(), buy.Pair())

	assert.Equal(t, Sell, Buy.Opposite())
	assert.Equal(t, Buy, Sell.Opposite())
	assert.Equal(t, NoSide, NoSide.Opposite())
}

func TestKind(t *testing.T) {
	assert.Equal(t, "TransferFailed", Kind(fmt.Errorf("%w: %w", ErrTransferFailed, ErrInsufficientBalance)))
	assert.Equal(t, "NotFound", Kind(fmt.Errorf("order 3: %w", ErrNotFound)))
	assert.Equal(t, "internal", Kind(fmt.Errorf("boom")))
}
