package chainlink

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type round struct {
	id, answer, updatedAt, answeredIn int64
}

type fakeFeed struct {
	t        *testing.T
	decimals uint8
	round    round
	calls    map[string]int
	err      error
}

func (f *fakeFeed) CallContract(ctx context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	for name, m := range aggregatorABI.Methods {
		if !bytes.Equal(call.Data[:4], m.ID) {
			continue
		}
		f.calls[name]++
		switch name {
		case "decimals":
			out, err := m.Outputs.Pack(f.decimals)
			require.NoError(f.t, err)
			return out, nil
		case "latestRoundData":
			out, err := m.Outputs.Pack(
				big.NewInt(f.round.id),
				big.NewInt(f.round.answer),
				big.NewInt(f.round.updatedAt),
				big.NewInt(f.round.updatedAt),
				big.NewInt(f.round.answeredIn),
			)
			require.NoError(f.t, err)
			return out, nil
		}
	}
	return nil, errors.New("unknown selector")
}

func TestLatestPrice(t *testing.T) {
	feed := &fakeFeed{
		t:        t,
		decimals: 8,
		round:    round{id: 7, answer: 200_000_000, updatedAt: 1_700_000_000, answeredIn: 6},
		calls:    make(map[string]int),
	}
	o := NewOracle(feed)
	addr := common.HexToAddress("0x00000000000000000000000000000000000f00da")

	p, err := o.LatestPrice(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, uint8(8), p.Decimals)
	assert.Equal(t, int64(200_000_000), p.Answer.Int64())
	assert.Equal(t, int64(7), p.RoundID.Int64())
	assert.Equal(t, int64(6), p.AnsweredInRound.Int64())
	assert.Equal(t, time.Unix(1_700_000_000, 0).UTC(), p.UpdatedAt)

	_, err = o.LatestPrice(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, 1, feed.calls["decimals"])
	assert.Equal(t, 2, feed.calls["latestRoundData"])
}

func TestLatestPriceNegativeAnswer(t *testing.T) {
	feed := &fakeFeed{
		t:        t,
		decimals: 0,
		round:    round{id: 1, answer: -5, updatedAt: 1, answeredIn: 1},
		calls:    make(map[string]int),
	}
	p, err := NewOracle(feed).LatestPrice(context.Background(), common.Address{1})
	require.NoError(t, err)
	assert.Equal(t, -1, p.Answer.Sign())
}

func TestLatestPriceCallError(t *testing.T) {
	feed := &fakeFeed{t: t, err: errors.New("rpc unavailable"), calls: make(map[string]int)}
	_, err := NewOracle(feed).LatestPrice(context.Background(), common.Address{1})
	require.ErrorContains(t, err, "rpc unavailable")
}
