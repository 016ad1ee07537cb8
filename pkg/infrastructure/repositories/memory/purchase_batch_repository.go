package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/vsinha/prodplan/pkg/domain/entities"
	"github.com/vsinha/prodplan/pkg/domain/repositories"
)

// PurchaseBatchRepository stores committed purchase batches in memory. It
// shares the snapshot version of the inventory repository it is bound to.
type PurchaseBatchRepository struct {
	mu        sync.Mutex
	inventory *InventoryRepository
	batches   map[string]entities.PurchaseBatch
	consumed  map[string]string
}

// NewPurchaseBatchRepository creates a store bound to an inventory repository
func NewPurchaseBatchRepository(inventory *InventoryRepository) *PurchaseBatchRepository {
	return &PurchaseBatchRepository{
		inventory: inventory,
		batches:   make(map[string]entities.PurchaseBatch),
		consumed:  make(map[string]string),
	}
}

// Verify interface compliance
var _ repositories.PurchaseBatchStore = (*PurchaseBatchRepository)(nil)

// CommitBatches stores all batches or none
func (r *PurchaseBatchRepository) CommitBatches(ctx context.Context, in repositories.CommitBatchesInput) (entities.SnapshotVersion, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ids, err := entities.BatchSuggestionIDs(in.Batches)
	if err != nil {
		return 0, err
	}

	var consumed []string
	for _, id := range ids {
		if _, done := r.consumed[id]; done {
			consumed = append(consumed, id)
		}
	}
	if len(consumed) > 0 {
		sort.Strings(consumed)
		return 0, &entities.AlreadyConsumedError{SuggestionIDs: consumed}
	}

	version, err := r.inventory.advance(in.ExpectedVersion)
	if err != nil {
		return 0, err
	}

	for _, b := range in.Batches {
		r.batches[b.ID] = b
		for _, id := range b.SuggestionIDs() {
			r.consumed[id] = b.ID
		}
	}
	return version, nil
}

// GetBatch returns a committed batch by id
func (r *PurchaseBatchRepository) GetBatch(ctx context.Context, id string) (*entities.PurchaseBatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	batch, exists := r.batches[id]
	if !exists {
		return nil, fmt.Errorf("purchase batch %s: %w", id, repositories.ErrNotFound)
	}
	return &batch, nil
}

// ConsumedSuggestions returns the subset of ids already consumed, sorted
func (r *PurchaseBatchRepository) ConsumedSuggestions(ctx context.Context, ids []string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	consumed := make([]string, 0)
	for _, id := range ids {
		if _, done := r.consumed[id]; done {
			consumed = append(consumed, id)
		}
	}
	sort.Strings(consumed)
	return consumed, nil
}
