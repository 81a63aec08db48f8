package core

import (
	"context"

	"github.com/olyamironova/escrow-book/internal/domain"
	"github.com/tidwall/btree"
)

// RestingBook holds the ids of one side of a pair in insertion order. The
// continuous matching engine visits orders strictly oldest first; there is no
// price priority.
type RestingBook interface {
	Push(id uint64)
	Remove(id uint64)
	// Ascend calls fn for each id, oldest first, until fn returns false.
	Ascend(fn func(id uint64) bool)
	Len() int
}

// fifoBook keys entries by an insertion sequence so removal is O(log n)
// and the visiting order never depends on how ids were allocated.
type fifoBook struct {
	seq     uint64
	entries btree.Map[uint64, uint64] // insertion seq -> order id
	index   map[uint64]uint64         // order id -> insertion seq
}

func NewFIFOBook() RestingBook {
	return &fifoBook{index: make(map[uint64]uint64)}
}

func (b *fifoBook) Push(id uint64) {
	if _, ok := b.index[id]; ok {
		return
	}
	b.seq++
	b.entries.Set(b.seq, id)
	b.index[id] = b.seq
}

func (b *fifoBook) Remove(id uint64) {
	seq, ok := b.index[id]
	if !ok {
		return
	}
	b.entries.Delete(seq)
	delete(b.index, id)
}

func (b *fifoBook) Ascend(fn func(id uint64) bool) {
	b.entries.Scan(func(_ uint64, id uint64) bool {
		return fn(id)
	})
}

func (b *fifoBook) Len() int {
	return b.entries.Len()
}

type bookKey struct {
	pair domain.Pair
	side domain.Side
}

type books struct {
	sides map[bookKey]RestingBook
}

func newBooks() *books {
	return &books{sides: make(map[bookKey]RestingBook)}
}

func (b *books) get(pair domain.Pair, side domain.Side) RestingBook {
	k := bookKey{pair: pair, side: side}
	book, ok := b.sides[k]
	if !ok {
		book = NewFIFOBook()
		b.sides[k] = book
	}
	return book
}

// lookupBook returns the book for a side without creating it.
func (b *books) lookupBook(pair domain.Pair, side domain.Side) (RestingBook, bool) {
	book, ok := b.sides[bookKey{pair: pair, side: side}]
	return book, ok
}

// GetBook lists the resting orders of a pair. Bids are resting BUY orders,
// asks resting SELL orders, each in the order they will be matched.
func (e *Engine) GetBook(ctx context.Context, pair domain.Pair) *domain.BookSnapshot {
	release, _ := e.view(ctx)
	defer release()
	return &domain.BookSnapshot{
		Pair:      pair,
		Bids:      e.restingOrders(pair, domain.Buy),
		Asks:      e.restingOrders(pair, domain.Sell),
		Timestamp: e.now().UTC(),
	}
}

func (e *Engine) restingOrders(pair domain.Pair, side domain.Side) []domain.Order {
	res := []domain.Order{}
	book, ok := e.books.lookupBook(pair, side)
	if !ok {
		return res
	}
	book.Ascend(func(id uint64) bool {
		res = append(res, *e.orders[id])
		return true
	})
	return res
}
