package port

import (
	"context"

	"github.com/olyamironova/escrow-book/internal/domain"
)

// Publisher forwards committed events to external observers.
type Publisher interface {
	Publish(ctx context.Context, events ...domain.Event) error
}
