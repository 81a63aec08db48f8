package port

import (
	"context"

	"github.com/olyamironova/escrow-book/internal/domain"
)

// Repository is the durable mirror of the order ledger and event log.
type Repository interface {
	LoadOrders(ctx context.Context) ([]*domain.Order, error)
	LoadEvents(ctx context.Context, fromSeq uint64, limit int) ([]domain.Event, error)
	BeginTx(ctx context.Context) (Tx, error)
}

type Tx interface {
	SaveOrder(ctx context.Context, o *domain.Order) error
	AppendEvents(ctx context.Context, events []domain.Event) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
