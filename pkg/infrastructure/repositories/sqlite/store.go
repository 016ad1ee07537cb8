// Package sqlite persists the versioned inventory snapshot and committed
// purchase batches in a single SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/vsinha/prodplan/pkg/domain/entities"
	"github.com/vsinha/prodplan/pkg/domain/repositories"
)

// Store implements the inventory repository and the purchase batch store.
// All access goes through one connection, so transactions are serialised.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ repositories.InventoryRepository = (*Store)(nil)
	_ repositories.PurchaseBatchStore  = (*Store)(nil)
)

// New opens a SQLite database at dsn and configures WAL mode
func New(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &Store{db: db, now: time.Now}, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS inventory_snapshot (
	id      INTEGER PRIMARY KEY CHECK (id = 1),
	version INTEGER NOT NULL,
	as_of   TEXT NOT NULL DEFAULT ''
);

INSERT OR IGNORE INTO inventory_snapshot (id, version) VALUES (1, 0);

CREATE TABLE IF NOT EXISTS inventory_positions (
	component_code TEXT PRIMARY KEY,
	qty_on_hand    INTEGER NOT NULL CHECK (qty_on_hand >= 0),
	qty_reserved   INTEGER NOT NULL CHECK (qty_reserved >= 0),
	as_of          TEXT NOT NULL,
	epoch          INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS purchase_batches (
	id               TEXT PRIMARY KEY,
	supplier_ref     TEXT NOT NULL,
	snapshot_version INTEGER NOT NULL,
	total_value      TEXT NOT NULL,
	created_at       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS purchase_batch_lines (
	batch_id       TEXT NOT NULL REFERENCES purchase_batches(id),
	line_no        INTEGER NOT NULL,
	suggestion_id  TEXT NOT NULL,
	component_code TEXT NOT NULL,
	qty            INTEGER NOT NULL,
	estimated_cost TEXT NOT NULL,
	required_date  TEXT NOT NULL,
	PRIMARY KEY (batch_id, line_no)
);

CREATE TABLE IF NOT EXISTS consumed_suggestions (
	suggestion_id TEXT PRIMARY KEY,
	batch_id      TEXT NOT NULL REFERENCES purchase_batches(id),
	consumed_at   TEXT NOT NULL
);
`

// Migrate creates the schema
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, migration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// CurrentVersion returns the current snapshot version
func (s *Store) CurrentVersion(ctx context.Context) (entities.SnapshotVersion, error) {
	var version int64
	err := s.db.QueryRowContext(ctx, `SELECT version FROM inventory_snapshot WHERE id = 1`).Scan(&version)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: current version")
	}
	return entities.SnapshotVersion(version), nil
}

// CurrentSnapshot reads the version and every position in one transaction
func (s *Store) CurrentSnapshot(ctx context.Context) (*entities.InventorySnapshot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin snapshot")
	}
	defer tx.Rollback() //nolint:errcheck

	var (
		version int64
		asOf    string
	)
	if err := tx.QueryRowContext(ctx, `SELECT version, as_of FROM inventory_snapshot WHERE id = 1`).Scan(&version, &asOf); err != nil {
		return nil, eris.Wrap(err, "sqlite: read snapshot version")
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT component_code, qty_on_hand, qty_reserved, as_of, epoch FROM inventory_positions ORDER BY component_code`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query positions")
	}
	defer rows.Close()

	snapshot := &entities.InventorySnapshot{
		Version:   entities.SnapshotVersion(version),
		AsOf:      parseTime(asOf),
		Positions: make([]entities.InventoryPosition, 0),
	}
	for rows.Next() {
		var (
			p        entities.InventoryPosition
			code     string
			posAsOf  string
			onHand   int64
			reserved int64
			epoch    int64
		)
		if err := rows.Scan(&code, &onHand, &reserved, &posAsOf, &epoch); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan position")
		}
		p.ComponentRef = entities.ComponentCode(code)
		p.QtyOnHand = entities.Quantity(onHand)
		p.QtyReserved = entities.Quantity(reserved)
		p.AsOf = parseTime(posAsOf)
		p.Epoch = entities.SnapshotVersion(epoch)
		snapshot.Positions = append(snapshot.Positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate positions")
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin load positions")
	}
	defer tx.Rollback() //nolint:errcheck

	var current int64
	if err := tx.QueryRowContext(ctx, `SELECT version FROM inventory_snapshot WHERE id = 1`).Scan(&current); err != nil {
		return 0, eris.Wrap(err, "sqlite: read snapshot version")
	}
	next := current + 1

	for _, p := range positions {
		stamp := p.AsOf
		if stamp.IsZero() {
			stamp = asOf
		}
		_, err := tx.ExecContext(ctx, upsertPosition,
			string(p.ComponentRef), int64(p.QtyOnHand), int64(p.QtyReserved), formatTime(stamp), next)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert position %s", p.ComponentRef)
		}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE inventory_snapshot SET version = ?, as_of = ? WHERE id = 1`, next, formatTime(asOf))
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: advance snapshot version")
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit load positions")
	}
	return entities.SnapshotVersion(next), nil
}

// an unchanged position keeps its epoch
const upsertPosition = `
INSERT INTO inventory_positions (component_code, qty_on_hand, qty_reserved, as_of, epoch)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (component_code) DO UPDATE SET
	qty_on_hand = excluded.qty_on_hand,
	qty_reserved = excluded.qty_reserved,
	as_of = excluded.as_of,
	epoch = CASE
		WHEN inventory_positions.qty_on_hand = excluded.qty_on_hand
			AND inventory_positions.qty_reserved = excluded.qty_reserved
		THEN inventory_positions.epoch
		ELSE excluded.epoch
	END`

// CommitBatches stores all batches or none
func (s *Store) CommitBatches(ctx context.Context, in repositories.CommitBatchesInput) (entities.SnapshotVersion, error) {
	ids, err := entities.BatchSuggestionIDs(in.Batches)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin commit batches")
	}
	defer tx.Rollback() //nolint:errcheck

	var current int64
	if err := tx.QueryRowContext(ctx, `SELECT version FROM inventory_snapshot WHERE id = 1`).Scan(&current); err != nil {
		return 0, eris.Wrap(err, "sqlite: lock snapshot version")
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

	consumedAt := formatTime(s.now())
	for _, b := range in.Batches {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO purchase_batches (id, supplier_ref, snapshot_version, total_value, created_at) VALUES (?, ?, ?, ?, ?)`,
			b.ID, b.SupplierRef, int64(b.SnapshotVersion), b.TotalValue.String(), formatTime(b.CreatedAt))
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert batch %s", b.ID)
		}
		for i, l := range b.Lines {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO purchase_batch_lines
					(batch_id, line_no, suggestion_id, component_code, qty, estimated_cost, required_date)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				b.ID, i, l.SuggestionID, string(l.ComponentRef), int64(l.Qty), l.EstimatedCost.String(), formatTime(l.RequiredDate))
			if err != nil {
				return 0, eris.Wrapf(err, "sqlite: insert line %d of batch %s", i, b.ID)
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO consumed_suggestions (suggestion_id, batch_id, consumed_at) VALUES (?, ?, ?)`,
				l.SuggestionID, b.ID, consumedAt)
			if err != nil {
				return 0, eris.Wrapf(err, "sqlite: consume suggestion %s", l.SuggestionID)
			}
		}
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE inventory_snapshot SET version = version + 1 WHERE id = 1 AND version = ?`, current)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: advance snapshot version")
	}
	if n, err := res.RowsAffected(); err != nil || n != 1 {
		return 0, &entities.StaleSnapshotError{Expected: in.ExpectedVersion, Current: entities.SnapshotVersion(current)}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit batches")
	}
	return entities.SnapshotVersion(current + 1), nil
}

// GetBatch returns a committed batch with its lines
func (s *Store) GetBatch(ctx context.Context, id string) (*entities.PurchaseBatch, error) {
	var (
		b          entities.PurchaseBatch
		version    int64
		totalValue string
		createdAt  string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, supplier_ref, snapshot_version, total_value, created_at FROM purchase_batches WHERE id = ?`, id).
		Scan(&b.ID, &b.SupplierRef, &version, &totalValue, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("purchase batch %s: %w", id, repositories.ErrNotFound)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get batch %s", id)
	}
	b.SnapshotVersion = entities.SnapshotVersion(version)
	b.CreatedAt = parseTime(createdAt)
	if b.TotalValue, err = decimal.NewFromString(totalValue); err != nil {
		return nil, eris.Wrapf(err, "sqlite: total value of batch %s", id)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT suggestion_id, component_code, qty, estimated_cost, required_date
		FROM purchase_batch_lines WHERE batch_id = ? ORDER BY line_no`, id)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query lines of batch %s", id)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			l        entities.PurchaseBatchLine
			code     string
			qty      int64
			cost     string
			required string
		)
		if err := rows.Scan(&l.SuggestionID, &code, &qty, &cost, &required); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan batch line")
		}
		l.ComponentRef = entities.ComponentCode(code)
		l.Qty = entities.Quantity(qty)
		l.RequiredDate = parseTime(required)
		if l.EstimatedCost, err = decimal.NewFromString(cost); err != nil {
			return nil, eris.Wrapf(err, "sqlite: estimated cost of %s", l.SuggestionID)
		}
		b.Lines = append(b.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate batch lines")
	}
	return &b, nil
}

// ConsumedSuggestions returns the subset of ids already consumed, sorted
func (s *Store) ConsumedSuggestions(ctx context.Context, ids []string) ([]string, error) {
	return consumedIn(ctx, s.db, ids)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func consumedIn(ctx context.Context, q queryer, ids []string) ([]string, error) {
	consumed := make([]string, 0)
	if len(ids) == 0 {
		return consumed, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	rows, err := q.QueryContext(ctx,
		`SELECT suggestion_id FROM consumed_suggestions WHERE suggestion_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query consumed suggestions")
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan consumed suggestion")
		}
		consumed = append(consumed, id)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate consumed suggestions")
	}
	sort.Strings(consumed)
	return consumed, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
