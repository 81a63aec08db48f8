package in_memory

import (
	"context"
	"errors"
	"sync"

	"github.com/olyamironova/escrow-book/internal/domain"
	"github.com/olyamironova/escrow-book/internal/port"
)

var _ port.Repository = (*MemoryRepo)(nil)

type MemoryRepo struct {
	mu     sync.Mutex
	orders map[uint64]*domain.Order
	events []domain.Event
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{orders: make(map[uint64]*domain.Order)}
}

func (r *MemoryRepo) LoadOrders(ctx context.Context) ([]*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]*domain.Order, 0, len(r.orders))
	for _, o := range r.orders {
		res = append(res, o.Clone())
	}
	return res, nil
}

func (r *MemoryRepo) LoadEvents(ctx context.Context, fromSeq uint64, limit int) ([]domain.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []domain.Event
	for _, ev := range r.events {
		if ev.Seq < fromSeq {
			continue
		}
		if limit > 0 && len(res) == limit {
			break
		}
		res = append(res, ev)
	}
	return res, nil
}

func (r *MemoryRepo) BeginTx(ctx context.Context) (port.Tx, error) {
	return &memoryTx{repo: r}, nil
}

// memoryTx buffers writes until Commit.
type memoryTx struct {
	repo   *MemoryRepo
	orders []*domain.Order
	events []domain.Event
	done   bool
}

func (t *memoryTx) SaveOrder(ctx context.Context, o *domain.Order) error {
	if o == nil {
		return errors.New("nil order")
	}
	t.orders = append(t.orders, o.Clone())
	return nil
}

func (t *memoryTx) AppendEvents(ctx context.Context, events []domain.Event) error {
	t.events = append(t.events, events...)
	return nil
}

func (t *memoryTx) Commit(ctx context.Context) error {
	if t.done {
		return errors.New("tx already closed")
	}
	t.done = true
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	for _, o := range t.orders {
		t.repo.orders[o.ID] = o
	}
	t.repo.events = append(t.repo.events, t.events...)
	return nil
}

func (t *memoryTx) Rollback(ctx context.Context) error {
	t.done = true
	return nil
}
