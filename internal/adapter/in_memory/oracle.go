package in_memory

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/olyamironova/escrow-book/internal/port"
)

var _ port.PriceOracle = (*StaticOracle)(nil)

// StaticOracle serves prices set by the operator, one round per update.
type StaticOracle struct {
	mu     sync.Mutex
	now    func() time.Time
	prices map[common.Address]port.Price
}

func NewStaticOracle() *StaticOracle {
	return &StaticOracle{
		now:    time.Now,
		prices: make(map[common.Address]port.Price),
	}
}

// SetPrice publishes a new round for feed.
func (o *StaticOracle) SetPrice(feed common.Address, answer int64, decimals uint8) {
	o.mu.Lock()
	defer o.mu.Unlock()
	round := big.NewInt(1)
	if prev, ok := o.prices[feed]; ok {
		round = new(big.Int).Add(prev.RoundID, big.NewInt(1))
	}
	o.prices[feed] = port.Price{
		Answer:          big.NewInt(answer),
		Decimals:        decimals,
		RoundID:         round,
		AnsweredInRound: new(big.Int).Set(round),
		UpdatedAt:       o.now(),
	}
}

// SetReading stores a raw reading, e.g. a stale or incomplete round.
func (o *StaticOracle) SetReading(feed common.Address, p port.Price) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prices[feed] = p
}

func (o *StaticOracle) LatestPrice(ctx context.Context, feed common.Address) (port.Price, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.prices[feed]
	if !ok {
		return port.Price{}, fmt.Errorf("no price for feed %s", feed.Hex())
	}
	return p, nil
}
