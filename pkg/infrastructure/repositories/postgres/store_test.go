package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vsinha/prodplan/pkg/domain/entities"
	"github.com/vsinha/prodplan/pkg/domain/repositories"
)

var asOf = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store := NewWithPool(mock)
	store.now = func() time.Time { return asOf }
	return store, mock
}

func testBatch(id string, suggestionIDs ...string) entities.PurchaseBatch {
	lines := make([]entities.PurchaseBatchLine, 0, len(suggestionIDs))
	for _, s := range suggestionIDs {
		lines = append(lines, entities.PurchaseBatchLine{
			SuggestionID:  s,
			ComponentRef:  "WINCH",
			Qty:           3,
			EstimatedCost: decimal.RequireFromString("112.5"),
			RequiredDate:  asOf.AddDate(0, 0, 14),
		})
	}
	return entities.PurchaseBatch{
		ID:          id,
		SupplierRef: "LEWMAR",
		Lines:       lines,
		TotalValue:  decimal.RequireFromString("112.5").Mul(decimal.NewFromInt(int64(len(lines)))),
		CreatedAt:   asOf,
	}
}

func TestMigrate(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS inventory_snapshot").WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCurrentVersion(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT version FROM inventory_snapshot").
		WillReturnRows(pgxmock.NewRows([]string{"version"}).AddRow(int64(4)))

	version, err := store.CurrentVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, entities.SnapshotVersion(4), version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadPositions(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT version FROM inventory_snapshot WHERE id = 1 FOR UPDATE").
		WillReturnRows(pgxmock.NewRows([]string{"version"}).AddRow(int64(3)))
	mock.ExpectExec("INSERT INTO inventory_positions").
		WithArgs("WINCH", int64(4), int64(1), asOf, int64(4)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO inventory_positions").
		WithArgs("CLEAT", int64(40), int64(0), asOf, int64(4)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE inventory_snapshot SET version").
		WithArgs(int64(4), asOf).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	version, err := store.LoadPositions(context.Background(), []entities.InventoryPosition{
		{ComponentRef: "WINCH", QtyOnHand: 4, QtyReserved: 1, AsOf: asOf},
		{ComponentRef: "CLEAT", QtyOnHand: 40, AsOf: asOf},
	})
	require.NoError(t, err)
	assert.Equal(t, entities.SnapshotVersion(4), version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCurrentSnapshot_ReadsEpoch(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("SET TRANSACTION ISOLATION LEVEL REPEATABLE READ").
		WillReturnResult(pgxmock.NewResult("SET", 0))
	mock.ExpectQuery("SELECT version, as_of FROM inventory_snapshot").
		WillReturnRows(pgxmock.NewRows([]string{"version", "as_of"}).AddRow(int64(5), &asOf))
	mock.ExpectQuery("SELECT component_code, qty_on_hand, qty_reserved, as_of, epoch FROM inventory_positions").
		WillReturnRows(pgxmock.NewRows([]string{"component_code", "qty_on_hand", "qty_reserved", "as_of", "epoch"}).
			AddRow("WINCH", int64(4), int64(1), asOf, int64(3)))
	mock.ExpectRollback()

	snapshot, err := store.CurrentSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, entities.SnapshotVersion(5), snapshot.Version)
	require.Len(t, snapshot.Positions, 1)
	assert.Equal(t, entities.SnapshotVersion(3), snapshot.Positions[0].Epoch)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadPositions_InvalidTouchesNothing(t *testing.T) {
	store, mock := newMockStore(t)

	_, err := store.LoadPositions(context.Background(), []entities.InventoryPosition{
		{ComponentRef: "WINCH", QtyOnHand: -4},
	})
	var validation *entities.ValidationError
	require.True(t, errors.As(err, &validation), "got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitBatches(t *testing.T) {
	store, mock := newMockStore(t)
	batch := testBatch("b1", "s1", "s2")

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT version FROM inventory_snapshot").
		WillReturnRows(pgxmock.NewRows([]string{"version"}).AddRow(int64(3)))
	mock.ExpectQuery("FROM consumed_suggestions").
		WithArgs([]string{"s1", "s2"}).
		WillReturnRows(pgxmock.NewRows([]string{"suggestion_id"}))
	mock.ExpectExec("INSERT INTO purchase_batches").
		WithArgs("b1", "LEWMAR", int64(3), "225", asOf).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	for i, id := range []string{"s1", "s2"} {
		mock.ExpectExec("INSERT INTO purchase_batch_lines").
			WithArgs("b1", i, id, "WINCH", int64(3), "112.5", asOf.AddDate(0, 0, 14)).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec("INSERT INTO consumed_suggestions").
			WithArgs(id, "b1", asOf).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectQuery("UPDATE inventory_snapshot SET version").
		WillReturnRows(pgxmock.NewRows([]string{"version"}).AddRow(int64(4)))
	mock.ExpectCommit()

	batch.SnapshotVersion = 3
	version, err := store.CommitBatches(context.Background(), repositories.CommitBatchesInput{
		ExpectedVersion: 3,
		Batches:         []entities.PurchaseBatch{batch},
	})
	require.NoError(t, err)
	assert.Equal(t, entities.SnapshotVersion(4), version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitBatches_Stale(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT version FROM inventory_snapshot").
		WillReturnRows(pgxmock.NewRows([]string{"version"}).AddRow(int64(5)))
	mock.ExpectQuery("FROM consumed_suggestions").
		WithArgs([]string{"s1"}).
		WillReturnRows(pgxmock.NewRows([]string{"suggestion_id"}))
	mock.ExpectRollback()

	_, err := store.CommitBatches(context.Background(), repositories.CommitBatchesInput{
		ExpectedVersion: 3,
		Batches:         []entities.PurchaseBatch{testBatch("b1", "s1")},
	})
	var stale *entities.StaleSnapshotError
	require.True(t, errors.As(err, &stale), "got %v", err)
	assert.Equal(t, entities.SnapshotVersion(5), stale.Current)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitBatches_AlreadyConsumed(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT version FROM inventory_snapshot").
		WillReturnRows(pgxmock.NewRows([]string{"version"}).AddRow(int64(3)))
	mock.ExpectQuery("FROM consumed_suggestions").
		WithArgs([]string{"s1", "s2"}).
		WillReturnRows(pgxmock.NewRows([]string{"suggestion_id"}).AddRow("s2"))
	mock.ExpectRollback()

	_, err := store.CommitBatches(context.Background(), repositories.CommitBatchesInput{
		ExpectedVersion: 3,
		Batches:         []entities.PurchaseBatch{testBatch("b1", "s1", "s2")},
	})
	var consumed *entities.AlreadyConsumedError
	require.True(t, errors.As(err, &consumed), "got %v", err)
	assert.Equal(t, []string{"s2"}, consumed.SuggestionIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitBatches_InsertFailureRollsBack(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT version FROM inventory_snapshot").
		WillReturnRows(pgxmock.NewRows([]string{"version"}).AddRow(int64(3)))
	mock.ExpectQuery("FROM consumed_suggestions").
		WillReturnRows(pgxmock.NewRows([]string{"suggestion_id"}))
	mock.ExpectExec("INSERT INTO purchase_batches").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := store.CommitBatches(context.Background(), repositories.CommitBatchesInput{
		ExpectedVersion: 3,
		Batches:         []entities.PurchaseBatch{testBatch("b1", "s1")},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: insert batch b1")
	assert.False(t, entities.IsFatal(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBatch(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("FROM purchase_batches").
		WithArgs("b1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "supplier_ref", "snapshot_version", "total_value", "created_at"}).
			AddRow("b1", "LEWMAR", int64(3), "225.00", asOf))
	mock.ExpectQuery("FROM purchase_batch_lines").
		WithArgs("b1").
		WillReturnRows(pgxmock.NewRows([]string{"suggestion_id", "component_code", "qty", "estimated_cost", "required_date"}).
			AddRow("s1", "WINCH", int64(3), "112.50", asOf).
			AddRow("s2", "WINCH", int64(3), "112.50", asOf))

	batch, err := store.GetBatch(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, entities.SnapshotVersion(3), batch.SnapshotVersion)
	assert.True(t, batch.TotalValue.Equal(decimal.NewFromInt(225)))
	assert.Equal(t, []string{"s1", "s2"}, batch.SuggestionIDs())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBatch_NotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("FROM purchase_batches").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := store.GetBatch(context.Background(), "missing")
	assert.True(t, errors.Is(err, repositories.ErrNotFound), "got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsumedSuggestions(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("FROM consumed_suggestions").
		WithArgs([]string{"s3", "s1"}).
		WillReturnRows(pgxmock.NewRows([]string{"suggestion_id"}).AddRow("s1"))

	consumed, err := store.ConsumedSuggestions(context.Background(), []string{"s3", "s1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, consumed)

	none, err := store.ConsumedSuggestions(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.NoError(t, mock.ExpectationsWereMet())
}
