package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

type EventType string

const (
	OrderCreated   EventType = "OrderCreated"
	OrderCancelled EventType = "OrderCancelled"
	OrderFilled    EventType = "OrderFilled"
)

// Event is one entry of the append-only log emitted per state transition.
// Only the fields relevant to Type are set.
type Event struct {
	Seq       uint64    `json:"seq"`
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	OrderID   uint64    `json:"order_id"`
	Timestamp time.Time `json:"timestamp"`

	Maker   common.Address  `json:"maker,omitzero"`
	AssetA  common.Address  `json:"asset_a,omitzero"`
	AssetB  common.Address  `json:"asset_b,omitzero"`
	AmountA decimal.Decimal `json:"amount_a,omitzero"`
	AmountB decimal.Decimal `json:"amount_b,omitzero"`
	Expiry  int64           `json:"expiry,omitzero"`
	Kind    OrderKind       `json:"kind,omitempty"`

	Filler          common.Address  `json:"filler,omitzero"`
	AmountToFill    decimal.Decimal `json:"amount_to_fill,omitzero"`
	AmountToReceive decimal.Decimal `json:"amount_to_receive,omitzero"`
}

func NewOrderCreated(o *Order) Event {
	return Event{
		Type:    OrderCreated,
		OrderID: o.ID,
		Maker:   o.Maker,
		AssetA:  o.AssetA,
		AssetB:  o.AssetB,
		AmountA: o.AmountA,
		AmountB: o.AmountB,
		Expiry:  o.Expiry,
		Kind:    o.Kind,
	}
}

func NewOrderCancelled(o *Order) Event {
	return Event{
		Type:    OrderCancelled,
		OrderID: o.ID,
		Maker:   o.Maker,
	}
}

func NewOrderFilled(id uint64, filler common.Address, amountToFill, amountToReceive decimal.Decimal) Event {
	return Event{
		Type:            OrderFilled,
		OrderID:         id,
		Filler:          filler,
		AmountToFill:    amountToFill,
		AmountToReceive: amountToReceive,
	}
}

// Fill is a settled fill of a single order, derived from an OrderFilled event.
type Fill struct {
	OrderID         uint64          `json:"order_id"`
	Filler          common.Address  `json:"filler"`
	AmountToFill    decimal.Decimal `json:"amount_to_fill"`
	AmountToReceive decimal.Decimal `json:"amount_to_receive"`
	Timestamp       time.Time       `json:"timestamp"`
}
