package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/olyamironova/escrow-book/internal/domain"
	"github.com/olyamironova/escrow-book/internal/port"
	"github.com/shopspring/decimal"
)

var _ port.Repository = (*PgRepo)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
  id           BIGINT PRIMARY KEY,
  maker        TEXT NOT NULL,
  asset_a      TEXT NOT NULL,
  asset_b      TEXT NOT NULL,
  amount_a     NUMERIC(78,0) NOT NULL,
  amount_b     NUMERIC(78,0) NOT NULL,
  remaining_a  NUMERIC(78,0) NOT NULL,
  remaining_b  NUMERIC(78,0) NOT NULL,
  active       BOOLEAN NOT NULL,
  expiry       BIGINT NOT NULL,
  kind         TEXT NOT NULL,
  side         TEXT NOT NULL DEFAULT '',
  price_feed_a TEXT NOT NULL DEFAULT '',
  price_feed_b TEXT NOT NULL DEFAULT '',
  created_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS orders_maker_idx ON orders (maker);

CREATE TABLE IF NOT EXISTS order_events (
  seq        BIGINT PRIMARY KEY,
  id         UUID NOT NULL,
  type       TEXT NOT NULL,
  order_id   BIGINT NOT NULL,
  payload    JSONB NOT NULL,
  created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS order_events_order_idx ON order_events (order_id);
`

type PgRepo struct {
	pool *pgxpool.Pool
}

// call Close when finish to work with database.
func NewPgRepo(ctx context.Context, dsn string) (*PgRepo, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping: %w", err)
	}
	return &PgRepo{pool: pool}, nil
}

func (p *PgRepo) Close(ctx context.Context) {
	if p.pool != nil {
		p.pool.Close()
	}
}

// Migrate creates the orders and order_events tables if they are missing.
func (p *PgRepo) Migrate(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, schema)
	return err
}

// LoadOrders returns every order ordered by id.
func (p *PgRepo) LoadOrders(ctx context.Context) ([]*domain.Order, error) {
	rows, err := p.pool.Query(ctx, `
SELECT id, maker, asset_a, asset_b, amount_a::TEXT, amount_b::TEXT, remaining_a::TEXT, remaining_b::TEXT,
       active, expiry, kind, side, price_feed_a, price_feed_b, created_at
FROM orders
ORDER BY id ASC
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

// LoadEvents returns up to limit events with seq >= fromSeq. A limit <= 0 means no limit.
func (p *PgRepo) LoadEvents(ctx context.Context, fromSeq uint64, limit int) ([]domain.Event, error) {
	q := `SELECT payload FROM order_events WHERE seq >= $1 ORDER BY seq ASC`
	args := []any{int64(fromSeq)}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Event
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var ev domain.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		res = append(res, ev)
	}
	return res, rows.Err()
}

func (p *PgRepo) BeginTx(ctx context.Context) (port.Tx, error) {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("pg: begin: %w", err)
	}
	return &pgTx{tx: tx}, nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) SaveOrder(ctx context.Context, o *domain.Order) error {
	if o == nil {
		return errors.New("nil order")
	}
	_, err := t.tx.Exec(ctx, `
INSERT INTO orders(id, maker, asset_a, asset_b, amount_a, amount_b, remaining_a, remaining_b,
                   active, expiry, kind, side, price_feed_a, price_feed_b, created_at)
VALUES($1,$2,$3,$4,$5::NUMERIC,$6::NUMERIC,$7::NUMERIC,$8::NUMERIC,$9,$10,$11,$12,$13,$14,$15)
ON CONFLICT (id) DO UPDATE SET
  remaining_a = EXCLUDED.remaining_a,
  remaining_b = EXCLUDED.remaining_b,
  active = EXCLUDED.active
`, int64(o.ID), o.Maker.Hex(), o.AssetA.Hex(), o.AssetB.Hex(),
		o.AmountA.String(), o.AmountB.String(), o.RemainingA.String(), o.RemainingB.String(),
		o.Active, o.Expiry, string(o.Kind), string(o.Side),
		addrOrEmpty(o.PriceFeedA), addrOrEmpty(o.PriceFeedB), o.CreatedAt)
	return err
}

func (t *pgTx) AppendEvents(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encode event %d: %w", ev.Seq, err)
		}
		batch.Queue(`
INSERT INTO order_events(seq, id, type, order_id, payload, created_at)
VALUES($1,$2,$3,$4,$5,$6)
`, int64(ev.Seq), ev.ID, string(ev.Type), int64(ev.OrderID), payload, ev.Timestamp)
	}
	return t.tx.SendBatch(ctx, batch).Close()
}

func (t *pgTx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *pgTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o                      domain.Order
		id                     int64
		maker, assetA, assetB  string
		amtA, amtB, remA, remB string
		kind, side             string
		feedA, feedB           string
		createdAt              time.Time
	)
	if err := row.Scan(&id, &maker, &assetA, &assetB, &amtA, &amtB, &remA, &remB,
		&o.Active, &o.Expiry, &kind, &side, &feedA, &feedB, &createdAt); err != nil {
		return nil, err
	}
	var err error
	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{{&o.AmountA, amtA}, {&o.AmountB, amtB}, {&o.RemainingA, remA}, {&o.RemainingB, remB}} {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return nil, fmt.Errorf("order %d: %w", id, err)
		}
	}
	o.ID = uint64(id)
	o.Maker = common.HexToAddress(maker)
	o.AssetA = common.HexToAddress(assetA)
	o.AssetB = common.HexToAddress(assetB)
	o.Kind = domain.OrderKind(kind)
	o.Side = domain.Side(side)
	if feedA != "" {
		o.PriceFeedA = common.HexToAddress(feedA)
	}
	if feedB != "" {
		o.PriceFeedB = common.HexToAddress(feedB)
	}
	o.CreatedAt = createdAt.UTC()
	return &o, nil
}

func addrOrEmpty(a common.Address) string {
	if a == (common.Address{}) {
		return ""
	}
	return a.Hex()
}
