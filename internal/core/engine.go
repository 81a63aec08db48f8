package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/olyamironova/escrow-book/internal/domain"
	"github.com/olyamironova/escrow-book/internal/port"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Variant string

const (
	// VariantBase accepts any expiry and a zero amountB at creation.
	VariantBase Variant = "base"
	// VariantExtended requires amountB > 0 and a future expiry.
	VariantExtended Variant = "extended"
)

const DefaultMaxMatchesPerCall = 64

type Config struct {
	Variant           Variant
	MaxMatchesPerCall int
	// MaxPriceAge rejects oracle readings older than this. Zero disables the check.
	MaxPriceAge time.Duration
}

type Option func(*Engine)

func WithRepository(repo port.Repository) Option { return func(e *Engine) { e.repo = repo } }
func WithCache(cache port.Cache) Option          { return func(e *Engine) { e.cache = cache } }
func WithPublisher(pub port.Publisher) Option    { return func(e *Engine) { e.pub = pub } }
func WithOracle(oracle port.PriceOracle) Option  { return func(e *Engine) { e.oracle = oracle } }
func WithLogger(log *zap.Logger) Option          { return func(e *Engine) { e.log = log } }
func WithMetrics(m *Metrics) Option              { return func(e *Engine) { e.metrics = m } }
func WithClock(now func() time.Time) Option      { return func(e *Engine) { e.now = now } }

// Engine implements the order ledger and its state machine (create, cancel,
// fill, continuous matching). Mutations are serialized and all-or-nothing.
type Engine struct {
	cfg     Config
	escrow  port.Escrow
	oracle  port.PriceOracle
	repo    port.Repository
	cache   port.Cache
	pub     port.Publisher
	log     *zap.Logger
	metrics *Metrics
	now     func() time.Time

	// mu serializes top-level calls. state guards the ledger below and is
	// released while the running call is out in an escrow or oracle call.
	mu       sync.Mutex
	state    sync.RWMutex
	external atomic.Bool

	nextID  uint64
	orders  map[uint64]*domain.Order
	byMaker map[common.Address][]uint64
	books   *books
	events  []domain.Event
	fills   map[uint64][]domain.Fill
}

func NewEngine(escrow port.Escrow, cfg Config, opts ...Option) *Engine {
	if cfg.Variant == "" {
		cfg.Variant = VariantBase
	}
	if cfg.MaxMatchesPerCall <= 0 {
		cfg.MaxMatchesPerCall = DefaultMaxMatchesPerCall
	}
	e := &Engine{
		cfg:     cfg,
		escrow:  escrow,
		log:     zap.NewNop(),
		now:     time.Now,
		orders:  make(map[uint64]*domain.Order),
		byMaker: make(map[common.Address][]uint64),
		books:   newBooks(),
		fills:   make(map[uint64][]domain.Fill),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateOrderRequest describes a new order. Maker is the caller.
type CreateOrderRequest struct {
	Maker      common.Address
	AssetA     common.Address
	AssetB     common.Address
	AmountA    decimal.Decimal
	AmountB    decimal.Decimal
	Expiry     int64
	Kind       domain.OrderKind
	Side       domain.Side
	PriceFeedA common.Address
	PriceFeedB common.Address
}

// CreateOrder escrows AmountA of AssetA from the maker and records a new
// active order. Market orders get AmountB from the oracle.
func (e *Engine) CreateOrder(ctx context.Context, req CreateOrderRequest) (*domain.Order, error) {
	var created *domain.Order
	err := e.withTx(ctx, func(u *unit) error {
		if err := e.validateCreate(&req); err != nil {
			return err
		}
		amountB := req.AmountB
		if req.Kind == domain.Market {
			b, err := e.marketAmountB(u.ctx, req.AmountA, req.PriceFeedA, req.PriceFeedB)
			if err != nil {
				return err
			}
			if e.cfg.Variant == VariantExtended && !b.IsPositive() {
				return fmt.Errorf("%w: market amountB rounds to %s", domain.ErrInvalidAmount, b)
			}
			amountB = b
		}

		if err := u.escrow.Pull(u.ctx, req.AssetA, req.Maker, req.AmountA); err != nil {
			return transferErr(err)
		}

		o := &domain.Order{
			ID:         e.nextID,
			Maker:      req.Maker,
			AssetA:     req.AssetA,
			AssetB:     req.AssetB,
			AmountA:    req.AmountA,
			AmountB:    amountB,
			RemainingA: req.AmountA,
			RemainingB: amountB,
			Active:     true,
			Expiry:     req.Expiry,
			Kind:       req.Kind,
			Side:       req.Side,
			PriceFeedA: req.PriceFeedA,
			PriceFeedB: req.PriceFeedB,
			CreatedAt:  e.now().UTC(),
		}
		e.nextID++
		e.orders[o.ID] = o
		u.create(o)
		u.emit(domain.NewOrderCreated(o))
		created = o.Clone()
		return nil
	})
	if err != nil {
		e.metrics.rejected("create", err)
		return nil, err
	}
	e.metrics.created(created.Kind)
	e.log.Debug("order created",
		zap.Uint64("id", created.ID),
		zap.Stringer("maker", created.Maker),
		zap.String("kind", string(created.Kind)),
		zap.Stringer("amount_a", created.AmountA),
		zap.Stringer("amount_b", created.AmountB))
	return created, nil
}

func (e *Engine) validateCreate(req *CreateOrderRequest) error {
	if req.AssetA == (common.Address{}) || req.AssetB == (common.Address{}) {
		return domain.ErrInvalidAsset
	}
	if !isWhole(req.AmountA) || !req.AmountA.IsPositive() {
		return fmt.Errorf("%w: amountA must be a positive whole amount", domain.ErrInvalidAmount)
	}
	if !isWhole(req.AmountB) || req.AmountB.IsNegative() {
		return fmt.Errorf("%w: amountB must be a whole amount", domain.ErrInvalidAmount)
	}
	if !req.Kind.Valid() {
		return domain.ErrInvalidKind
	}
	if req.Side != domain.NoSide && !req.Side.Valid() {
		return domain.ErrInvalidSide
	}
	if e.cfg.Variant == VariantExtended {
		if req.Kind == domain.Limit && !req.AmountB.IsPositive() {
			return fmt.Errorf("%w: amountB must be positive", domain.ErrInvalidAmount)
		}
		if req.Expiry != 0 && req.Expiry <= e.now().Unix() {
			return domain.ErrInvalidExpiry
		}
	}
	if req.Kind == domain.Market &&
		(req.PriceFeedA == (common.Address{}) || req.PriceFeedB == (common.Address{})) {
		return fmt.Errorf("%w: market orders need both price feeds", domain.ErrInvalidAsset)
	}
	return nil
}

// CancelOrder closes an active order and refunds its remaining escrow to the maker.
func (e *Engine) CancelOrder(ctx context.Context, caller common.Address, id uint64) (*domain.Order, error) {
	var cancelled *domain.Order
	err := e.withTx(ctx, func(u *unit) error {
		o, ok := e.orders[id]
		if !ok {
			return domain.ErrNotFound
		}
		if o.Maker != caller {
			return domain.ErrUnauthorized
		}
		if !o.Active {
			return domain.ErrAlreadyTerminal
		}
		u.touch(o)
		o.Active = false
		refund := o.RemainingA
		if err := u.escrow.Push(u.ctx, o.AssetA, o.Maker, refund); err != nil {
			return transferErr(err)
		}
		u.emit(domain.NewOrderCancelled(o))
		cancelled = o.Clone()
		return nil
	})
	if err != nil {
		e.metrics.rejected("cancel", err)
		return nil, err
	}
	e.metrics.cancelled()
	e.log.Debug("order cancelled", zap.Uint64("id", id), zap.Stringer("refund", cancelled.RemainingA))
	return cancelled, nil
}

// GetOrderDetails returns a copy of the order, including terminal ones.
func (e *Engine) GetOrderDetails(ctx context.Context, id uint64) (*domain.Order, error) {
	if !e.entered(ctx) {
		if o := cachedOrder(ctx, e.cache, id); o != nil {
			return o, nil
		}
	}
	release, exclusive := e.view(ctx)
	defer release()
	o, err := e.lookup(id)
	if err != nil {
		return nil, err
	}
	// Filled under the lock so a later commit's refresh always lands last.
	if exclusive && e.cache != nil {
		_ = e.cache.SetOrder(ctx, o)
	}
	return o, nil
}

func (e *Engine) lookup(id uint64) (*domain.Order, error) {
	o, ok := e.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return o.Clone(), nil
}

// GetUserOrders returns the ids of every order the maker created, oldest first.
func (e *Engine) GetUserOrders(ctx context.Context, maker common.Address) []uint64 {
	release, _ := e.view(ctx)
	defer release()
	ids := e.byMaker[maker]
	res := make([]uint64, len(ids))
	copy(res, ids)
	return res
}

// GetOrderFills returns the settled fills of an order in execution order.
func (e *Engine) GetOrderFills(ctx context.Context, id uint64) ([]domain.Fill, error) {
	release, _ := e.view(ctx)
	defer release()
	if _, ok := e.orders[id]; !ok {
		return nil, domain.ErrNotFound
	}
	fills := e.fills[id]
	res := make([]domain.Fill, len(fills))
	copy(res, fills)
	return res, nil
}

// Events returns up to limit committed events with Seq >= fromSeq.
func (e *Engine) Events(ctx context.Context, fromSeq uint64, limit int) []domain.Event {
	release, _ := e.view(ctx)
	defer release()
	if fromSeq == 0 {
		fromSeq = 1
	}
	start := int(fromSeq - 1)
	if start >= len(e.events) {
		return nil
	}
	end := len(e.events)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	res := make([]domain.Event, end-start)
	copy(res, e.events[start:end])
	return res
}

// Escrowed totals the remaining escrow of active orders per asset.
func (e *Engine) Escrowed(ctx context.Context) map[common.Address]decimal.Decimal {
	release, _ := e.view(ctx)
	defer release()
	res := make(map[common.Address]decimal.Decimal)
	for _, o := range e.orders {
		if o.Active {
			res[o.AssetA] = res[o.AssetA].Add(o.RemainingA)
		}
	}
	return res
}

// Restore rebuilds the ledger from the repository. It must run before the
// engine serves any call.
func (e *Engine) Restore(ctx context.Context) error {
	if e.repo == nil {
		return nil
	}
	orders, err := e.repo.LoadOrders(ctx)
	if err != nil {
		return fmt.Errorf("load orders: %w", err)
	}
	events, err := e.repo.LoadEvents(ctx, 1, 0)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.Lock()
	defer e.state.Unlock()
	sortByID(orders)
	for _, o := range orders {
		e.orders[o.ID] = o
		e.byMaker[o.Maker] = append(e.byMaker[o.Maker], o.ID)
		if o.ID >= e.nextID {
			e.nextID = o.ID + 1
		}
		if o.Active && o.Side.Valid() {
			e.books.get(o.Pair(), o.Side).Push(o.ID)
		}
	}
	e.events = events
	for _, ev := range events {
		if ev.Type == domain.OrderFilled {
			e.fills[ev.OrderID] = append(e.fills[ev.OrderID], fillFromEvent(ev))
		}
	}
	e.log.Info("ledger restored",
		zap.Int("orders", len(orders)),
		zap.Int("events", len(events)),
		zap.Uint64("next_id", e.nextID))
	return nil
}

func fillFromEvent(ev domain.Event) domain.Fill {
	return domain.Fill{
		OrderID:         ev.OrderID,
		Filler:          ev.Filler,
		AmountToFill:    ev.AmountToFill,
		AmountToReceive: ev.AmountToReceive,
		Timestamp:       ev.Timestamp,
	}
}

func transferErr(err error) error {
	return fmt.Errorf("%w: %w", domain.ErrTransferFailed, err)
}

func isWhole(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(0))
}
