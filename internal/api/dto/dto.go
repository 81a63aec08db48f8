package dto

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/olyamironova/escrow-book/internal/core"
	"github.com/olyamironova/escrow-book/internal/domain"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	Open            OrderStatus = "OPEN"
	PartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	Filled          OrderStatus = "FILLED"
	Cancelled       OrderStatus = "CANCELLED"
)

// CreateOrderRequest carries a new order. The maker is the authenticated caller.
type CreateOrderRequest struct {
	AssetA     common.Address  `json:"asset_a"`
	AssetB     common.Address  `json:"asset_b"`
	AmountA    decimal.Decimal `json:"amount_a"`
	AmountB    decimal.Decimal `json:"amount_b"`
	Expiry     int64           `json:"expiry"`
	Kind       string          `json:"kind" binding:"required"`
	Side       string          `json:"side,omitempty"`
	PriceFeedA common.Address  `json:"price_feed_a,omitzero"`
	PriceFeedB common.Address  `json:"price_feed_b,omitzero"`
}

func (r CreateOrderRequest) ToCore(maker common.Address) core.CreateOrderRequest {
	return core.CreateOrderRequest{
		Maker:      maker,
		AssetA:     r.AssetA,
		AssetB:     r.AssetB,
		AmountA:    r.AmountA,
		AmountB:    r.AmountB,
		Expiry:     r.Expiry,
		Kind:       domain.OrderKind(r.Kind),
		Side:       domain.Side(r.Side),
		PriceFeedA: r.PriceFeedA,
		PriceFeedB: r.PriceFeedB,
	}
}

type OrderResponse struct {
	Order Order `json:"order"`
}

type OrderIDRequest struct {
	OrderID uint64 `json:"order_id"`
}

type FillOrderRequest struct {
	OrderID      uint64          `json:"order_id,omitempty"`
	AmountToFill decimal.Decimal `json:"amount_to_fill"`
}

type FillOrderResponse struct {
	Fill Fill `json:"fill"`
}

type FillMarketOrderRequest struct {
	Side         string          `json:"side" binding:"required"`
	Base         common.Address  `json:"base"`
	Quote        common.Address  `json:"quote"`
	AmountToFill decimal.Decimal `json:"amount_to_fill"`
}

type FillMarketOrderResponse struct {
	Fills    []Fill          `json:"fills"`
	Filled   decimal.Decimal `json:"filled"`
	Paid     decimal.Decimal `json:"paid"`
	Unfilled decimal.Decimal `json:"unfilled"`
	Visited  int             `json:"visited"`
}

type GetFillsResponse struct {
	Fills []Fill `json:"fills"`
}

type UserOrdersRequest struct {
	Maker common.Address `json:"maker"`
}

type UserOrdersResponse struct {
	Maker    common.Address `json:"maker"`
	OrderIDs []uint64       `json:"order_ids"`
}

type EventsResponse struct {
	Events []domain.Event `json:"events"`
	// Next is the sequence number to resume from.
	Next uint64 `json:"next"`
}

type BookResponse struct {
	Base      common.Address `json:"base"`
	Quote     common.Address `json:"quote"`
	Bids      []Order        `json:"bids"`
	Asks      []Order        `json:"asks"`
	Timestamp time.Time      `json:"timestamp"`
}

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
	Status     OrderStatus     `json:"status"`
	Expiry     int64           `json:"expiry"`
	Kind       string          `json:"kind"`
	Side       string          `json:"side,omitempty"`
	PriceFeedA common.Address  `json:"price_feed_a,omitzero"`
	PriceFeedB common.Address  `json:"price_feed_b,omitzero"`
	CreatedAt  time.Time       `json:"created_at"`
}

type Fill struct {
	OrderID         uint64          `json:"order_id"`
	Filler          common.Address  `json:"filler"`
	AmountToFill    decimal.Decimal `json:"amount_to_fill"`
	AmountToReceive decimal.Decimal `json:"amount_to_receive"`
	Timestamp       time.Time       `json:"timestamp"`
}

func ConvertOrder(o *domain.Order) Order {
	return Order{
		ID:         o.ID,
		Maker:      o.Maker,
		AssetA:     o.AssetA,
		AssetB:     o.AssetB,
		AmountA:    o.AmountA,
		AmountB:    o.AmountB,
		RemainingA: o.RemainingA,
		RemainingB: o.RemainingB,
		Active:     o.Active,
		Status:     status(o),
		Expiry:     o.Expiry,
		Kind:       string(o.Kind),
		Side:       string(o.Side),
		PriceFeedA: o.PriceFeedA,
		PriceFeedB: o.PriceFeedB,
		CreatedAt:  o.CreatedAt,
	}
}

func status(o *domain.Order) OrderStatus {
	switch {
	case o.Active && o.PartiallyFilled():
		return PartiallyFilled
	case o.Active:
		return Open
	case o.RemainingA.IsZero():
		return Filled
	default:
		return Cancelled
	}
}

func ConvertOrders(orders []domain.Order) []Order {
	res := make([]Order, len(orders))
	for i := range orders {
		res[i] = ConvertOrder(&orders[i])
	}
	return res
}

func ConvertFills(fills []domain.Fill) []Fill {
	res := make([]Fill, len(fills))
	for i, f := range fills {
		res[i] = Fill(f)
	}
	return res
}

func ConvertMatch(m core.MatchResult) FillMarketOrderResponse {
	return FillMarketOrderResponse{
		Fills:    ConvertFills(m.Fills),
		Filled:   m.Filled,
		Paid:     m.Paid,
		Unfilled: m.Unfilled,
		Visited:  m.Visited,
	}
}

func ConvertBook(b *domain.BookSnapshot) BookResponse {
	return BookResponse{
		Base:      b.Pair.Base,
		Quote:     b.Pair.Quote,
		Bids:      ConvertOrders(b.Bids),
		Asks:      ConvertOrders(b.Asks),
		Timestamp: b.Timestamp,
	}
}

func ConvertEvents(events []domain.Event, from uint64) EventsResponse {
	next := from
	if len(events) > 0 {
		next = events[len(events)-1].Seq + 1
	}
	if events == nil {
		events = []domain.Event{}
	}
	return EventsResponse{Events: events, Next: next}
}

// LedgerRequest credits or approves amount of asset for the caller.
type LedgerRequest struct {
	Asset  common.Address  `json:"asset"`
	Amount decimal.Decimal `json:"amount"`
}

type BalanceResponse struct {
	Asset     common.Address  `json:"asset"`
	Holder    common.Address  `json:"holder"`
	Balance   decimal.Decimal `json:"balance"`
	Allowance decimal.Decimal `json:"allowance"`
}
