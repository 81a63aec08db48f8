package core

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/olyamironova/escrow-book/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MatchResult summarizes one continuous match.
type MatchResult struct {
	Fills []domain.Fill
	// Filled is the total taken from resting escrow, in the resting orders' assetA.
	Filled decimal.Decimal
	// Paid is the total paid to makers, in the resting orders' assetB.
	Paid decimal.Decimal
	// Unfilled is the part of the incoming flow left when the scan stopped.
	Unfilled decimal.Decimal
	// Visited counts every resting order looked at, expired ones included.
	Visited int
}

// FillMarketOrder executes an incoming flow of the given side against the
// opposite side of pair, oldest resting order first. amountToFill is measured
// in the resting orders' escrowed asset: base for a BUY flow, quote for a SELL
// flow. For every match the caller pays the maker assetB and receives assetA
// from escrow, i.e. base<-quote for BUY and quote<-base for SELL.
//
// At most MaxMatchesPerCall resting orders are settled. Expired orders met on
// the way are skipped without counting against that cap and leave the book
// for good; the maker can still cancel them.
func (e *Engine) FillMarketOrder(ctx context.Context, taker common.Address, side domain.Side, pair domain.Pair, amountToFill decimal.Decimal) (MatchResult, error) {
	var res MatchResult
	err := e.withTx(ctx, func(u *unit) error {
		if !isWhole(amountToFill) || !amountToFill.IsPositive() {
			return fmt.Errorf("%w: flow %s", domain.ErrInvalidAmount, amountToFill)
		}
		if !side.Valid() {
			return domain.ErrInvalidSide
		}
		if pair.Base == (common.Address{}) || pair.Quote == (common.Address{}) {
			return domain.ErrInvalidAsset
		}

		res = MatchResult{Filled: decimal.Zero, Paid: decimal.Zero}
		book, ok := e.books.lookupBook(pair, side.Opposite())
		if !ok {
			return domain.ErrNoMatch
		}

		outstanding := amountToFill
		now := e.now()
		var scanErr error
		book.Ascend(func(id uint64) bool {
			if len(res.Fills) >= e.cfg.MaxMatchesPerCall || !outstanding.IsPositive() {
				return false
			}
			res.Visited++
			o := e.orders[id]
			if !o.Fillable(now) {
				u.stale = append(u.stale, bookEntry{pair: pair, side: side.Opposite(), id: id})
				return true
			}
			fillAmount := decimal.Min(outstanding, o.RemainingA)
			fill, err := e.settle(u, o, taker, fillAmount)
			if err != nil {
				scanErr = err
				return false
			}
			outstanding = outstanding.Sub(fillAmount)
			res.Filled = res.Filled.Add(fill.AmountToFill)
			res.Paid = res.Paid.Add(fill.AmountToReceive)
			res.Fills = append(res.Fills, fill)
			return true
		})
		if scanErr != nil {
			return scanErr
		}
		if res.Filled.IsZero() {
			return domain.ErrNoMatch
		}
		res.Unfilled = outstanding
		return nil
	})
	if err != nil {
		e.metrics.rejected("match", err)
		return MatchResult{}, err
	}
	e.metrics.filled(len(res.Fills))
	e.metrics.visited(res.Visited)
	e.log.Debug("market flow matched",
		zap.String("side", string(side)),
		zap.Stringer("pair", pair),
		zap.Int("visited", res.Visited),
		zap.Int("fills", len(res.Fills)),
		zap.Stringer("filled", res.Filled),
		zap.Stringer("unfilled", res.Unfilled))
	return res, nil
}
