package chainlink

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/olyamironova/escrow-book/internal/port"
)

var _ port.PriceOracle = (*Oracle)(nil)

const aggregatorV3ABI = `[
  {"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"latestRoundData","outputs":[
    {"internalType":"uint80","name":"roundId","type":"uint80"},
    {"internalType":"int256","name":"answer","type":"int256"},
    {"internalType":"uint256","name":"startedAt","type":"uint256"},
    {"internalType":"uint256","name":"updatedAt","type":"uint256"},
    {"internalType":"uint80","name":"answeredInRound","type":"uint80"}
  ],"stateMutability":"view","type":"function"}
]`

var aggregatorABI = parseABI(aggregatorV3ABI)

func parseABI(abiStr string) *abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(abiStr))
	if err != nil {
		panic(fmt.Sprintf("failed to parse aggregator abi: %v", err))
	}
	return &parsed
}

// Caller executes read-only contract calls. *ethclient.Client satisfies it.
type Caller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Oracle reads Chainlink AggregatorV3 feeds. Feed decimals never change, so
// they are fetched once per feed.
type Oracle struct {
	caller Caller

	mu       sync.Mutex
	decimals map[common.Address]uint8
}

func NewOracle(caller Caller) *Oracle {
	return &Oracle{
		caller:   caller,
		decimals: make(map[common.Address]uint8),
	}
}

func (o *Oracle) LatestPrice(ctx context.Context, feed common.Address) (port.Price, error) {
	dec, err := o.feedDecimals(ctx, feed)
	if err != nil {
		return port.Price{}, err
	}
	out, err := o.call(ctx, feed, "latestRoundData")
	if err != nil {
		return port.Price{}, err
	}
	if len(out) != 5 {
		return port.Price{}, fmt.Errorf("chainlink: latestRoundData returned %d values", len(out))
	}
	roundID, ok1 := out[0].(*big.Int)
	answer, ok2 := out[1].(*big.Int)
	updatedAt, ok3 := out[3].(*big.Int)
	answeredInRound, ok4 := out[4].(*big.Int)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return port.Price{}, errors.New("chainlink: unexpected latestRoundData types")
	}
	return port.Price{
		Answer:          answer,
		Decimals:        dec,
		RoundID:         roundID,
		AnsweredInRound: answeredInRound,
		UpdatedAt:       time.Unix(updatedAt.Int64(), 0).UTC(),
	}, nil
}

func (o *Oracle) feedDecimals(ctx context.Context, feed common.Address) (uint8, error) {
	o.mu.Lock()
	dec, ok := o.decimals[feed]
	o.mu.Unlock()
	if ok {
		return dec, nil
	}
	out, err := o.call(ctx, feed, "decimals")
	if err != nil {
		return 0, err
	}
	if len(out) != 1 {
		return 0, fmt.Errorf("chainlink: decimals returned %d values", len(out))
	}
	dec, ok = out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("chainlink: decimals returned %T", out[0])
	}
	o.mu.Lock()
	o.decimals[feed] = dec
	o.mu.Unlock()
	return dec, nil
}

func (o *Oracle) call(ctx context.Context, feed common.Address, method string) ([]interface{}, error) {
	data, err := aggregatorABI.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("chainlink: pack %s: %w", method, err)
	}
	res, err := o.caller.CallContract(ctx, ethereum.CallMsg{To: &feed, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("chainlink: call %s on %s: %w", method, feed.Hex(), err)
	}
	out, err := aggregatorABI.Unpack(method, res)
	if err != nil {
		return nil, fmt.Errorf("chainlink: unpack %s: %w", method, err)
	}
	return out, nil
}
