package port

import (
	"context"

	"github.com/olyamironova/escrow-book/internal/domain"
)

// Cache holds read copies of orders. A miss returns (nil, nil).
type Cache interface {
	SetOrder(ctx context.Context, o *domain.Order) error
	GetOrder(ctx context.Context, id uint64) (*domain.Order, error)
	Invalidate(ctx context.Context, id uint64) error
}
