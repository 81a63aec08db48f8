package core

import (
	"context"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/olyamironova/escrow-book/internal/domain"
	"github.com/olyamironova/escrow-book/internal/port"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// unit is the state of one top-level mutating call. It records pre-images of
// every order it touches so a failed call leaves the ledger untouched.
type unit struct {
	ctx     context.Context
	escrow  port.EscrowTx
	startID uint64
	pre     map[uint64]*domain.Order // nil pre-image: created by this unit
	touched []uint64
	events  []domain.Event
	// stale lists resting entries found expired or closed during a scan.
	stale []bookEntry
}

type bookEntry struct {
	pair domain.Pair
	side domain.Side
	id   uint64
}

func (u *unit) touch(o *domain.Order) {
	if _, ok := u.pre[o.ID]; ok {
		return
	}
	u.pre[o.ID] = o.Clone()
	u.touched = append(u.touched, o.ID)
}

func (u *unit) create(o *domain.Order) {
	u.pre[o.ID] = nil
	u.touched = append(u.touched, o.ID)
}

func (u *unit) emit(ev domain.Event) {
	u.events = append(u.events, ev)
}

type guardKey struct{}

// entered reports whether ctx belongs to a call already running inside this
// engine.
func (e *Engine) entered(ctx context.Context) bool {
	g, _ := ctx.Value(guardKey{}).(*Engine)
	return g == e
}

// acquire admits a top-level mutating call. A call that arrives while the
// running one is out in an escrow or oracle call is a re-entry, whatever
// context it carries.
func (e *Engine) acquire(ctx context.Context) (release func(), err error) {
	if e.entered(ctx) {
		return nil, domain.ErrReentrant
	}
	if !e.mu.TryLock() {
		if e.external.Load() {
			return nil, domain.ErrReentrant
		}
		e.mu.Lock()
	}
	e.state.Lock()
	return func() {
		e.state.Unlock()
		e.mu.Unlock()
	}, nil
}

// view admits a read. exclusive is false for reads made from inside a running
// call; those see the call's uncommitted state.
func (e *Engine) view(ctx context.Context) (release func(), exclusive bool) {
	if !e.entered(ctx) {
		if e.mu.TryLock() {
			return e.mu.Unlock, true
		}
		if !e.external.Load() {
			e.mu.Lock()
			return e.mu.Unlock, true
		}
	}
	e.state.RLock()
	return e.state.RUnlock, false
}

// outside runs an external call with the ledger state released, so whatever
// the callee calls back into is admitted as a re-entry instead of blocking.
func (e *Engine) outside(fn func() error) error {
	e.external.Store(true)
	e.state.Unlock()
	defer func() {
		e.state.Lock()
		e.external.Store(false)
	}()
	return fn()
}

// guardedTx routes every escrow call through outside.
type guardedTx struct {
	e   *Engine
	etx port.EscrowTx
}

func (g guardedTx) Pull(ctx context.Context, asset, from common.Address, amount decimal.Decimal) error {
	return g.e.outside(func() error { return g.etx.Pull(ctx, asset, from, amount) })
}

func (g guardedTx) Push(ctx context.Context, asset, to common.Address, amount decimal.Decimal) error {
	return g.e.outside(func() error { return g.etx.Push(ctx, asset, to, amount) })
}

func (g guardedTx) Move(ctx context.Context, asset, from, to common.Address, amount decimal.Decimal) error {
	return g.e.outside(func() error { return g.etx.Move(ctx, asset, from, to, amount) })
}

func (g guardedTx) Commit(ctx context.Context) error {
	return g.e.outside(func() error { return g.etx.Commit(ctx) })
}

func (g guardedTx) Rollback(ctx context.Context) error {
	return g.e.outside(func() error { return g.etx.Rollback(ctx) })
}

// withTx runs fn as one all-or-nothing call: the reentrancy guard is held,
// transfers go through a single escrow tx, and on any error every touched
// order is restored and no event is emitted.
func (e *Engine) withTx(ctx context.Context, fn func(*unit) error) error {
	release, err := e.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	ctx = context.WithValue(ctx, guardKey{}, e)

	var etx port.EscrowTx
	if err := e.outside(func() (err error) {
		etx, err = e.escrow.Begin(ctx)
		return err
	}); err != nil {
		return transferErr(err)
	}
	u := &unit{
		ctx:     ctx,
		escrow:  guardedTx{e: e, etx: etx},
		startID: e.nextID,
		pre:     make(map[uint64]*domain.Order),
	}
	committed := false
	defer func() {
		if !committed {
			_ = u.escrow.Rollback(ctx)
			e.revert(u)
		}
		e.prune(u.stale)
	}()

	if err := fn(u); err != nil {
		return err
	}
	e.stamp(u)
	if err := e.persist(ctx, u); err != nil {
		return err
	}
	committed = true
	e.apply(ctx, u)
	return nil
}

func (e *Engine) revert(u *unit) {
	for id, pre := range u.pre {
		if pre == nil {
			delete(e.orders, id)
			continue
		}
		*e.orders[id] = *pre
	}
	e.nextID = u.startID
}

// prune drops resting entries that can never match again. Expiry is absolute,
// so this holds whether or not the unit committed.
func (e *Engine) prune(stale []bookEntry) {
	for _, s := range stale {
		if book, ok := e.books.lookupBook(s.pair, s.side); ok {
			book.Remove(s.id)
		}
	}
}

// stamp assigns log positions and identities to the unit's events.
func (e *Engine) stamp(u *unit) {
	now := e.now().UTC()
	next := uint64(len(e.events)) + 1
	for i := range u.events {
		u.events[i].Seq = next + uint64(i)
		u.events[i].ID = uuid.NewString()
		u.events[i].Timestamp = now
	}
}

// persist stages the unit in a repository tx, settles the escrow tx, then
// commits the repository tx. Once the escrow tx commits, transfers are final,
// so a failing repository commit is logged rather than reverted.
func (e *Engine) persist(ctx context.Context, u *unit) error {
	if e.repo == nil {
		if err := u.escrow.Commit(ctx); err != nil {
			return transferErr(err)
		}
		return nil
	}
	rtx, err := e.repo.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin repository tx: %w", err)
	}
	if err := e.stage(ctx, rtx, u); err != nil {
		_ = rtx.Rollback(ctx)
		return err
	}
	if err := u.escrow.Commit(ctx); err != nil {
		_ = rtx.Rollback(ctx)
		return transferErr(err)
	}
	if err := rtx.Commit(ctx); err != nil {
		e.log.Error("repository commit failed after settlement",
			zap.Uint64s("orders", u.touched),
			zap.Int("events", len(u.events)),
			zap.Error(err))
	}
	return nil
}

func (e *Engine) stage(ctx context.Context, rtx port.Tx, u *unit) error {
	for _, id := range u.touched {
		if err := rtx.SaveOrder(ctx, e.orders[id]); err != nil {
			return fmt.Errorf("save order %d: %w", id, err)
		}
	}
	if err := rtx.AppendEvents(ctx, u.events); err != nil {
		return fmt.Errorf("append events: %w", err)
	}
	return nil
}

// apply publishes a committed unit: event log, fill history, maker index,
// resting books, cache and external publisher.
func (e *Engine) apply(ctx context.Context, u *unit) {
	e.events = append(e.events, u.events...)
	for _, ev := range u.events {
		if ev.Type == domain.OrderFilled {
			e.fills[ev.OrderID] = append(e.fills[ev.OrderID], fillFromEvent(ev))
		}
	}
	for _, id := range u.touched {
		o := e.orders[id]
		if u.pre[id] == nil {
			e.byMaker[o.Maker] = append(e.byMaker[o.Maker], o.ID)
			if o.Side.Valid() {
				e.books.get(o.Pair(), o.Side).Push(o.ID)
			}
		} else if !o.Active && o.Side.Valid() {
			e.books.get(o.Pair(), o.Side).Remove(o.ID)
		}
	}
	refreshCache(ctx, e.cache, e.log, e.orders, u.touched)
	if e.pub != nil && len(u.events) > 0 {
		if err := e.pub.Publish(ctx, u.events...); err != nil {
			e.log.Warn("publish events failed",
				zap.Uint64("first_seq", u.events[0].Seq),
				zap.Int("count", len(u.events)),
				zap.Error(err))
		}
	}
}

func sortByID(orders []*domain.Order) {
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].ID < orders[j].ID
	})
}
