package in_memory

import (
	"context"
	"sync"

	"github.com/olyamironova/escrow-book/internal/domain"
	"github.com/olyamironova/escrow-book/internal/port"
)

var _ port.Publisher = (*Publisher)(nil)

// Publisher keeps published events in memory.
type Publisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func NewPublisher() *Publisher {
	return &Publisher{}
}

func (p *Publisher) Publish(ctx context.Context, events ...domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *Publisher) Events() []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	res := make([]domain.Event, len(p.events))
	copy(res, p.events)
	return res
}
