package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vsinha/prodplan/pkg/domain/entities"
	"github.com/vsinha/prodplan/pkg/domain/repositories"
)

// InventoryRepository provides versioned in-memory inventory positions
type InventoryRepository struct {
	mu        sync.RWMutex
	version   entities.SnapshotVersion
	asOf      time.Time
	positions map[entities.ComponentCode]entities.InventoryPosition
	now       func() time.Time
}

// NewInventoryRepository creates an empty repository at snapshot version 0
func NewInventoryRepository() *InventoryRepository {
	return &InventoryRepository{
		positions: make(map[entities.ComponentCode]entities.InventoryPosition),
		now:       time.Now,
	}
}

// Verify interface compliance
var _ repositories.InventoryRepository = (*InventoryRepository)(nil)

// CurrentVersion returns the current snapshot version
func (r *InventoryRepository) CurrentVersion(ctx context.Context) (entities.SnapshotVersion, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version, nil
}

// CurrentSnapshot returns a copy of all positions ordered by component code
func (r *InventoryRepository) CurrentSnapshot(ctx context.Context) (*entities.InventorySnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	positions := make([]entities.InventoryPosition, 0, len(r.positions))
	for _, p := range r.positions {
		positions = append(positions, p)
	}
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].ComponentRef < positions[j].ComponentRef
	})
	return &entities.InventorySnapshot{
		Version:   r.version,
		AsOf:      r.asOf,
		Positions: positions,
	}, nil
}

// LoadPositions upserts positions by component code and advances the
// snapshot version. A position whose quantities changed takes the new
// version as its epoch. Nothing is stored if any position is invalid.
func (r *InventoryRepository) LoadPositions(ctx context.Context, positions []entities.InventoryPosition) (entities.SnapshotVersion, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	for _, p := range positions {
		if err := p.Validate(); err != nil {
			return 0, err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.version + 1
	for _, p := range positions {
		p.Epoch = next
		if prev, ok := r.positions[p.ComponentRef]; ok && prev.SameStock(p) {
			p.Epoch = prev.Epoch
		}
		r.positions[p.ComponentRef] = p
		if p.AsOf.After(r.asOf) {
			r.asOf = p.AsOf
		}
	}
	if r.asOf.IsZero() {
		r.asOf = r.now().UTC()
	}
	r.version = next
	return r.version, nil
}

// advance moves the version forward if it still equals expected
func (r *InventoryRepository) advance(expected entities.SnapshotVersion) (entities.SnapshotVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.version != expected {
		return r.version, &entities.StaleSnapshotError{Expected: expected, Current: r.version}
	}
	r.version++
	return r.version, nil
}
