package core

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/olyamironova/escrow-book/internal/domain"
	"github.com/olyamironova/escrow-book/internal/port"
	"github.com/shopspring/decimal"
)

// marketAmountB prices amountA of the escrowed asset in units of the wanted
// asset: floor(amountA * priceA / priceB).
func (e *Engine) marketAmountB(ctx context.Context, amountA decimal.Decimal, feedA, feedB common.Address) (decimal.Decimal, error) {
	if e.oracle == nil {
		return decimal.Zero, fmt.Errorf("%w: no price oracle configured", domain.ErrInvalidPrice)
	}
	pa, err := e.readPrice(ctx, feedA)
	if err != nil {
		return decimal.Zero, err
	}
	pb, err := e.readPrice(ctx, feedB)
	if err != nil {
		return decimal.Zero, err
	}
	a, b := normalize(pa, pb)
	return mulDiv(amountA, decimal.NewFromBigInt(a, 0), decimal.NewFromBigInt(b, 0)), nil
}

// readPrice must run inside a unit; the oracle is called with the state released.
func (e *Engine) readPrice(ctx context.Context, feed common.Address) (port.Price, error) {
	var p port.Price
	err := e.outside(func() (err error) {
		p, err = e.oracle.LatestPrice(ctx, feed)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrStalePrice) || errors.Is(err, domain.ErrInvalidPrice) {
			return p, err
		}
		return p, fmt.Errorf("%w: feed %s: %w", domain.ErrInvalidPrice, feed.Hex(), err)
	}
	if p.Answer == nil || p.Answer.Sign() <= 0 {
		return p, fmt.Errorf("%w: feed %s answered %v", domain.ErrInvalidPrice, feed.Hex(), p.Answer)
	}
	if p.RoundID != nil && p.AnsweredInRound != nil && p.AnsweredInRound.Cmp(p.RoundID) < 0 {
		return p, fmt.Errorf("%w: feed %s answered in round %s of %s",
			domain.ErrStalePrice, feed.Hex(), p.AnsweredInRound, p.RoundID)
	}
	if e.cfg.MaxPriceAge > 0 {
		if p.UpdatedAt.IsZero() || e.now().Sub(p.UpdatedAt) > e.cfg.MaxPriceAge {
			return p, fmt.Errorf("%w: feed %s updated at %s", domain.ErrStalePrice, feed.Hex(), p.UpdatedAt)
		}
	}
	return p, nil
}

// normalize scales both answers to the larger of the two feeds' decimals.
func normalize(pa, pb port.Price) (*big.Int, *big.Int) {
	a := new(big.Int).Set(pa.Answer)
	b := new(big.Int).Set(pb.Answer)
	switch {
	case pa.Decimals < pb.Decimals:
		a.Mul(a, pow10(pb.Decimals-pa.Decimals))
	case pb.Decimals < pa.Decimals:
		b.Mul(b, pow10(pa.Decimals-pb.Decimals))
	}
	return a, b
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// mulDiv returns floor(x * y / z) for non-negative whole x, y and positive z.
func mulDiv(x, y, z decimal.Decimal) decimal.Decimal {
	q, _ := x.Mul(y).QuoRem(z, 0)
	return q
}
