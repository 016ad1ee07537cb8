package repositories

import (
	"context"

	"github.com/vsinha/prodplan/pkg/domain/entities"
)

// InventorySnapshotProvider exposes versioned point-in-time inventory
type InventorySnapshotProvider interface {
	CurrentVersion(ctx context.Context) (entities.SnapshotVersion, error)
	CurrentSnapshot(ctx context.Context) (*entities.InventorySnapshot, error)
}

// InventoryRepository is a snapshot provider that can also ingest
// positions from an external inventory feed. Every load advances the
// snapshot version.
type InventoryRepository interface {
	InventorySnapshotProvider
	LoadPositions(ctx context.Context, positions []entities.InventoryPosition) (entities.SnapshotVersion, error)
}
