package core

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/olyamironova/escrow-book/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// FillOrder takes amountToFill of the order's escrowed asset, paying the
// maker in proportion to the order's remaining balances.
func (e *Engine) FillOrder(ctx context.Context, filler common.Address, id uint64, amountToFill decimal.Decimal) (domain.Fill, error) {
	var fill domain.Fill
	err := e.withTx(ctx, func(u *unit) error {
		o, ok := e.orders[id]
		if !ok {
			return domain.ErrNotFound
		}
		if !o.Active {
			return domain.ErrInactive
		}
		if o.Expired(e.now()) {
			return domain.ErrExpired
		}
		if !isWhole(amountToFill) || !amountToFill.IsPositive() || amountToFill.GreaterThan(o.RemainingA) {
			return fmt.Errorf("%w: fill %s of remaining %s", domain.ErrInvalidAmount, amountToFill, o.RemainingA)
		}
		var err error
		fill, err = e.settle(u, o, filler, amountToFill)
		return err
	})
	if err != nil {
		e.metrics.rejected("fill", err)
		return domain.Fill{}, err
	}
	e.metrics.filled(1)
	e.log.Debug("order filled",
		zap.Uint64("id", id),
		zap.Stringer("filler", filler),
		zap.Stringer("amount_to_fill", fill.AmountToFill),
		zap.Stringer("amount_to_receive", fill.AmountToReceive))
	return fill, nil
}

// settle executes one fill of o. The ledger is debited before any transfer so
// a reentrant observer sees the post-fill state; the unit restores it if a
// transfer fails. Both engines price fills against the remaining balances,
// so a fill of all of RemainingA leaves no RemainingB dust.
func (e *Engine) settle(u *unit, o *domain.Order, taker common.Address, amountToFill decimal.Decimal) (domain.Fill, error) {
	amountToReceive := mulDiv(amountToFill, o.RemainingB, o.RemainingA)

	u.touch(o)
	o.RemainingA = o.RemainingA.Sub(amountToFill)
	o.RemainingB = o.RemainingB.Sub(amountToReceive)
	if o.RemainingA.IsZero() {
		o.Active = false
	}

	if err := u.escrow.Move(u.ctx, o.AssetB, taker, o.Maker, amountToReceive); err != nil {
		return domain.Fill{}, transferErr(err)
	}
	if err := u.escrow.Push(u.ctx, o.AssetA, taker, amountToFill); err != nil {
		return domain.Fill{}, transferErr(err)
	}
	u.emit(domain.NewOrderFilled(o.ID, taker, amountToFill, amountToReceive))
	return domain.Fill{
		OrderID:         o.ID,
		Filler:          taker,
		AmountToFill:    amountToFill,
		AmountToReceive: amountToReceive,
		Timestamp:       e.now().UTC(),
	}, nil
}
