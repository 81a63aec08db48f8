package port

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Escrow is the asset transfer primitive. All transfers made through one
// EscrowTx take effect together on Commit or not at all.
type Escrow interface {
	Begin(ctx context.Context) (EscrowTx, error)
}

type EscrowTx interface {
	// Pull moves amount of asset from an account into escrow.
	Pull(ctx context.Context, asset, from common.Address, amount decimal.Decimal) error
	// Push moves amount of asset out of escrow to an account.
	Push(ctx context.Context, asset, to common.Address, amount decimal.Decimal) error
	// Move transfers amount of asset between two accounts on behalf of from.
	Move(ctx context.Context, asset, from, to common.Address, amount decimal.Decimal) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
