package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

type Side string
type OrderKind string

const (
	Buy    Side      = "BUY"
	Sell   Side      = "SELL"
	NoSide Side      = ""
	Limit  OrderKind = "LIMIT"
	Market OrderKind = "MARKET"
)

// Opposite returns the side a flow of this side executes against.
func (s Side) Opposite() Side {
	switch s {
	case Buy:
		return Sell
	case Sell:
		return Buy
	}
	return NoSide
}

func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

func (k OrderKind) Valid() bool {
	return k == Limit || k == Market
}

// Order is an escrowed offer to give AssetA in exchange for AssetB.
// AmountA/AmountB are the quantities at creation; RemainingA/RemainingB only decrease.
type Order struct {
	ID         uint64          `json:"id"`
	Maker      common.Address  `json:"maker"`
	AssetA     common.Address  `json:"asset_a"`
	AssetB     common.Address  `json:"asset_b"`
	AmountA    decimal.Decimal `json:"amount_a"`
	AmountB    decimal.Decimal `json:"amount_b"`
	RemainingA decimal.Decimal `json:"remaining_a"`
	RemainingB decimal.Decimal `json:"remaining_b"`
	Active     bool            `json:"active"`
	Expiry     int64           `json:"expiry"`
	Kind       OrderKind       `json:"kind"`
	Side       Side            `json:"side,omitempty"`
	PriceFeedA common.Address  `json:"price_feed_a,omitzero"`
	PriceFeedB common.Address  `json:"price_feed_b,omitzero"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Expired reports whether the order can no longer be filled at now.
func (o *Order) Expired(now time.Time) bool {
	return o.Expiry != 0 && o.Expiry <= now.Unix()
}

// Fillable reports whether the order is active and not expired.
func (o *Order) Fillable(now time.Time) bool {
	return o.Active && !o.Expired(now)
}

func (o *Order) PartiallyFilled() bool {
	return o.RemainingA.GreaterThan(decimal.Zero) &&
		o.RemainingA.LessThan(o.AmountA)
}

// Pair returns the base/quote pair of a resting order. A SELL order escrows
// the base asset, a BUY order escrows the quote asset.
func (o *Order) Pair() Pair {
	if o.Side == Buy {
		return Pair{Base: o.AssetB, Quote: o.AssetA}
	}
	return Pair{Base: o.AssetA, Quote: o.AssetB}
}

// Clone returns an independent copy of the order.
func (o *Order) Clone() *Order {
	c := *o
	return &c
}

// Pair identifies a market for continuous matching.
type Pair struct {
	Base  common.Address `json:"base"`
	Quote common.Address `json:"quote"`
}

func (p Pair) String() string {
	return p.Base.Hex() + "/" + p.Quote.Hex()
}
