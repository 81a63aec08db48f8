package port

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Price is one oracle reading for a feed.
type Price struct {
	Answer          *big.Int
	Decimals        uint8
	RoundID         *big.Int
	AnsweredInRound *big.Int
	UpdatedAt       time.Time
}

type PriceOracle interface {
	LatestPrice(ctx context.Context, feed common.Address) (Price, error)
}
