package in_memory

import (
	"context"
	"sync"

	"github.com/olyamironova/escrow-book/internal/domain"
	"github.com/olyamironova/escrow-book/internal/port"
)

type Cache struct {
	mu    sync.Mutex
	store map[uint64]*domain.Order
}

var _ port.Cache = (*Cache)(nil)

func NewCache() *Cache {
	return &Cache{store: make(map[uint64]*domain.Order)}
}

func (c *Cache) SetOrder(ctx context.Context, o *domain.Order) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[o.ID] = o.Clone()
	return nil
}

func (c *Cache) GetOrder(ctx context.Context, id uint64) (*domain.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.store[id]
	if !ok {
		return nil, nil
	}
	return o.Clone(), nil
}

func (c *Cache) Invalidate(ctx context.Context, id uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, id)
	return nil
}
