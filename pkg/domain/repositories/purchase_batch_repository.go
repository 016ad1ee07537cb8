package repositories

import (
	"context"

	"github.com/vsinha/prodplan/pkg/domain/entities"
)

// CommitBatchesInput is one atomic purchase-batch commit
type CommitBatchesInput struct {
	ExpectedVersion entities.SnapshotVersion
	Batches         []entities.PurchaseBatch
}

// PurchaseBatchStore persists committed purchase batches.
//
// CommitBatches must run as a single transaction: it rejects suggestions
// that were already consumed (entities.ErrAlreadyConsumed), rejects a
// snapshot version that moved (entities.ErrStaleSnapshot), and otherwise
// writes every batch, marks every line's suggestion consumed and advances
// the snapshot version. Nothing is written on any error.
type PurchaseBatchStore interface {
	CommitBatches(ctx context.Context, in CommitBatchesInput) (entities.SnapshotVersion, error)
	GetBatch(ctx context.Context, id string) (*entities.PurchaseBatch, error)
	ConsumedSuggestions(ctx context.Context, ids []string) ([]string, error)
}
