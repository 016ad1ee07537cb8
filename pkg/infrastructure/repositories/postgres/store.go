// Package postgres persists the versioned inventory snapshot and committed
// purchase batches in PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/vsinha/prodplan/pkg/domain/entities"
	"github.com/vsinha/prodplan/pkg/domain/repositories"
)

// Pool is the subset of pgxpool.Pool the store uses
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PoolConfig holds optional connection pool sizing
type PoolConfig struct {
	MaxConns int32 `mapstructure:"max_conns"`
	MinConns int32 `mapstructure:"min_conns"`
}

// Store implements the inventory repository and the purchase batch store
type Store struct {
	pool    Pool
	closeFn func()
	now     func() time.Time
}

var (
	_ repositories.InventoryRepository = (*Store)(nil)
	_ repositories.PurchaseBatchStore  = (*Store)(nil)
)

// New creates a Store with a connection pool
func New(ctx context.Context, connString string, poolCfg *PoolConfig) (*Store, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &Store{pool: pool, closeFn: pool.Close, now: time.Now}, nil
}

// NewWithPool wraps an existing pool
func NewWithPool(pool Pool) *Store {
	return &Store{pool: pool, closeFn: func() {}, now: time.Now}
}

const migration = `
CREATE TABLE IF NOT EXISTS inventory_snapshot (
	id      SMALLINT PRIMARY KEY CHECK (id = 1),
	version BIGINT NOT NULL,
	as_of   TIMESTAMPTZ
);

INSERT INTO inventory_snapshot (id, version) VALUES (1, 0) ON CONFLICT (id) DO NOTHING;

CREATE TABLE IF NOT EXISTS inventory_positions (
	component_code TEXT PRIMARY KEY,
	qty_on_hand    BIGINT NOT NULL CHECK (qty_on_hand >= 0),
	qty_reserved   BIGINT NOT NULL CHECK (qty_reserved >= 0),
	as_of          TIMESTAMPTZ NOT NULL,
	epoch          BIGINT NOT NULL DEFAULT 0
);

ALTER TABLE inventory_positions ADD COLUMN IF NOT EXISTS epoch BIGINT NOT NULL DEFAULT 0;

CREATE TABLE IF NOT EXISTS purchase_batches (
	id               TEXT PRIMARY KEY,
	supplier_ref     TEXT NOT NULL,
	snapshot_version BIGINT NOT NULL,
	total_value      NUMERIC NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS purchase_batch_lines (
	batch_id       TEXT NOT NULL REFERENCES purchase_batches(id),
	line_no        INTEGER NOT NULL,
	suggestion_id  TEXT NOT NULL,
	component_code TEXT NOT NULL,
	qty            BIGINT NOT NULL,
	estimated_cost NUMERIC NOT NULL,
	required_date  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (batch_id, line_no)
);

CREATE TABLE IF NOT EXISTS consumed_suggestions (
	suggestion_id TEXT PRIMARY KEY,
	batch_id      TEXT NOT NULL REFERENCES purchase_batches(id),
	consumed_at   TIMESTAMPTZ NOT NULL
);
`

// Migrate creates the schema
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, migration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close closes the pool
func (s *Store) Close() {
	s.closeFn()
}

// CurrentVersion returns the current snapshot version
func (s *Store) CurrentVersion(ctx context.Context) (entities.SnapshotVersion, error) {
	var version int64
	if err := s.pool.QueryRow(ctx, `SELECT version FROM inventory_snapshot WHERE id = 1`).Scan(&version); err != nil {
		return 0, eris.Wrap(err, "postgres: current version")
	}
	return entities.SnapshotVersion(version), nil
}

// CurrentSnapshot reads the version and every position in one
// repeatable-read transaction
func (s *Store) CurrentSnapshot(ctx context.Context) (*entities.InventorySnapshot, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin snapshot")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `SET TRANSACTION ISOLATION LEVEL REPEATABLE READ`); err != nil {
		return nil, eris.Wrap(err, "postgres: set isolation")
	}

	var (
		version int64
		asOf    *time.Time
	)
	if err := tx.QueryRow(ctx, `SELECT version, as_of FROM inventory_snapshot WHERE id = 1`).Scan(&version, &asOf); err != nil {
		return nil, eris.Wrap(err, "postgres: read snapshot version")
	}

	rows, err := tx.Query(ctx,
		`SELECT component_code, qty_on_hand, qty_reserved, as_of, epoch FROM inventory_positions ORDER BY component_code`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query positions")
	}
	defer rows.Close()

	snapshot := &entities.InventorySnapshot{
		Version:   entities.SnapshotVersion(version),
		Positions: make([]entities.InventoryPosition, 0),
	}
	if asOf != nil {
		snapshot.AsOf = asOf.UTC()
	}
	for rows.Next() {
		var (
			code     string
			onHand   int64
			reserved int64
			posAsOf  time.Time
			epoch    int64
		)
		if err := rows.Scan(&code, &onHand, &reserved, &posAsOf, &epoch); err != nil {
			return nil, eris.Wrap(err, "postgres: scan position")
		}
		snapshot.Positions = append(snapshot.Positions, entities.InventoryPosition{
			ComponentRef: entities.ComponentCode(code),
			QtyOnHand:    entities.Quantity(onHand),
			QtyReserved:  entities.Quantity(reserved),
			AsOf:         posAsOf.UTC(),
			Epoch:        entities.SnapshotVersion(epoch),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate positions")
	}
	return snapshot, nil
}

// LoadPositions upserts positions and advances the snapshot version.
// Positions whose quantities change take the new version as their epoch.
// Nothing is stored if any position is invalid.
func (s *Store) LoadPositions(ctx context.Context, positions []entities.InventoryPosition) (entities.SnapshotVersion, error) {
	asOf := time.Time{}
	for _, p := range positions {
		if err := p.Validate(); err != nil {
			return 0, err
		}
		if p.AsOf.After(asOf) {
			asOf = p.AsOf
		}
	}
	if asOf.IsZero() {
		asOf = s.now()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin load positions")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var current int64
	if err := tx.QueryRow(ctx, `SELECT version FROM inventory_snapshot WHERE id = 1 FOR UPDATE`).Scan(&current); err != nil {
		return 0, eris.Wrap(err, "postgres: lock snapshot version")
	}
	next := current + 1

	for _, p := range positions {
		stamp := p.AsOf
		if stamp.IsZero() {
			stamp = asOf
		}
		_, err := tx.Exec(ctx, upsertPosition,
			string(p.ComponentRef), int64(p.QtyOnHand), int64(p.QtyReserved), stamp.UTC(), next)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: upsert position %s", p.ComponentRef)
		}
	}

	_, err = tx.Exec(ctx,
		`UPDATE inventory_snapshot SET version = $1, as_of = $2 WHERE id = 1`, next, asOf.UTC())
	if err != nil {
		return 0, eris.Wrap(err, "postgres: advance snapshot version")
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit load positions")
	}
	return entities.SnapshotVersion(next), nil
}

// an unchanged position keeps its epoch
const upsertPosition = `
INSERT INTO inventory_positions (component_code, qty_on_hand, qty_reserved, as_of, epoch)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (component_code) DO UPDATE SET
	qty_on_hand = EXCLUDED.qty_on_hand,
	qty_reserved = EXCLUDED.qty_reserved,
	as_of = EXCLUDED.as_of,
	epoch = CASE
		WHEN inventory_positions.qty_on_hand = EXCLUDED.qty_on_hand
			AND inventory_positions.qty_reserved = EXCLUDED.qty_reserved
		THEN inventory_positions.epoch
		ELSE EXCLUDED.epoch
	END`

// CommitBatches stores all batches or none. The snapshot row is locked
// for the duration of the transaction.
func (s *Store) CommitBatches(ctx context.Context, in repositories.CommitBatchesInput) (entities.SnapshotVersion, error) {
	ids, err := entities.BatchSuggestionIDs(in.Batches)
	if err != nil {
		return 0, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin commit batches")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var current int64
	if err := tx.QueryRow(ctx, `SELECT version FROM inventory_snapshot WHERE id = 1 FOR UPDATE`).Scan(&current); err != nil {
		return 0, eris.Wrap(err, "postgres: lock snapshot version")
	}

	consumed, err := consumedIn(ctx, tx, ids)
	if err != nil {
		return 0, err
	}
	if len(consumed) > 0 {
		return 0, &entities.AlreadyConsumedError{SuggestionIDs: consumed}
	}
	if entities.SnapshotVersion(current) != in.ExpectedVersion {
		return 0, &entities.StaleSnapshotError{Expected: in.ExpectedVersion, Current: entities.SnapshotVersion(current)}
	}

	consumedAt := s.now().UTC()
	for _, b := range in.Batches {
		_, err := tx.Exec(ctx,
			`INSERT INTO purchase_batches (id, supplier_ref, snapshot_version, total_value, created_at) VALUES ($1, $2, $3, $4, $5)`,
			b.ID, b.SupplierRef, int64(b.SnapshotVersion), b.TotalValue.String(), b.CreatedAt.UTC())
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: insert batch %s", b.ID)
		}
		for i, l := range b.Lines {
			_, err := tx.Exec(ctx, `
				INSERT INTO purchase_batch_lines
					(batch_id, line_no, suggestion_id, component_code, qty, estimated_cost, required_date)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				b.ID, i, l.SuggestionID, string(l.ComponentRef), int64(l.Qty), l.EstimatedCost.String(), l.RequiredDate.UTC())
			if err != nil {
				return 0, eris.Wrapf(err, "postgres: insert line %d of batch %s", i, b.ID)
			}
			_, err = tx.Exec(ctx,
				`INSERT INTO consumed_suggestions (suggestion_id, batch_id, consumed_at) VALUES ($1, $2, $3)`,
				l.SuggestionID, b.ID, consumedAt)
			if err != nil {
				return 0, eris.Wrapf(err, "postgres: consume suggestion %s", l.SuggestionID)
			}
		}
	}

	var next int64
	if err := tx.QueryRow(ctx,
		`UPDATE inventory_snapshot SET version = version + 1 WHERE id = 1 RETURNING version`).Scan(&next); err != nil {
		return 0, eris.Wrap(err, "postgres: advance snapshot version")
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit batches")
	}
	return entities.SnapshotVersion(next), nil
}

// GetBatch returns a committed batch with its lines
func (s *Store) GetBatch(ctx context.Context, id string) (*entities.PurchaseBatch, error) {
	var (
		b          entities.PurchaseBatch
		version    int64
		totalValue string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, supplier_ref, snapshot_version, total_value::text, created_at FROM purchase_batches WHERE id = $1`, id).
		Scan(&b.ID, &b.SupplierRef, &version, &totalValue, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("purchase batch %s: %w", id, repositories.ErrNotFound)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get batch %s", id)
	}
	b.SnapshotVersion = entities.SnapshotVersion(version)
	b.CreatedAt = b.CreatedAt.UTC()
	if b.TotalValue, err = decimal.NewFromString(totalValue); err != nil {
		return nil, eris.Wrapf(err, "postgres: total value of batch %s", id)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT suggestion_id, component_code, qty, estimated_cost::text, required_date
		FROM purchase_batch_lines WHERE batch_id = $1 ORDER BY line_no`, id)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: query lines of batch %s", id)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			l    entities.PurchaseBatchLine
			code string
			qty  int64
			cost string
		)
		if err := rows.Scan(&l.SuggestionID, &code, &qty, &cost, &l.RequiredDate); err != nil {
			return nil, eris.Wrap(err, "postgres: scan batch line")
		}
		l.ComponentRef = entities.ComponentCode(code)
		l.Qty = entities.Quantity(qty)
		l.RequiredDate = l.RequiredDate.UTC()
		if l.EstimatedCost, err = decimal.NewFromString(cost); err != nil {
			return nil, eris.Wrapf(err, "postgres: estimated cost of %s", l.SuggestionID)
		}
		b.Lines = append(b.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate batch lines")
	}
	return &b, nil
}

// ConsumedSuggestions returns the subset of ids already consumed, sorted
func (s *Store) ConsumedSuggestions(ctx context.Context, ids []string) ([]string, error) {
	return consumedIn(ctx, s.pool, ids)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func consumedIn(ctx context.Context, q querier, ids []string) ([]string, error) {
	consumed := make([]string, 0)
	if len(ids) == 0 {
		return consumed, nil
	}
	rows, err := q.Query(ctx,
		`SELECT suggestion_id FROM consumed_suggestions WHERE suggestion_id = ANY($1) ORDER BY suggestion_id`, ids)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query consumed suggestions")
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan consumed suggestion")
		}
		consumed = append(consumed, id)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate consumed suggestions")
	}
	return consumed, nil
}
