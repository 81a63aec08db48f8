package core

import (
	"context"

	"github.com/olyamironova/escrow-book/internal/domain"
	"github.com/olyamironova/escrow-book/internal/port"
	"go.uber.org/zap"
)

func cachedOrder(ctx context.Context, cache port.Cache, id uint64) *domain.Order {
	if cache == nil {
		return nil
	}
	o, err := cache.GetOrder(ctx, id)
	if err != nil || o == nil {
		return nil
	}
	return o
}

// refreshCache writes committed copies of the touched orders. An order that
// cannot be written is invalidated so readers fall back to the ledger.
func refreshCache(ctx context.Context, cache port.Cache, log *zap.Logger, orders map[uint64]*domain.Order, ids []uint64) {
	if cache == nil {
		return
	}
	for _, id := range ids {
		if err := cache.SetOrder(ctx, orders[id].Clone()); err != nil {
			log.Warn("cache write failed", zap.Uint64("id", id), zap.Error(err))
			_ = cache.Invalidate(ctx, id)
		}
	}
}
