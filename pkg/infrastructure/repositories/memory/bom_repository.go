package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/vsinha/prodplan/pkg/domain/entities"
	"github.com/vsinha/prodplan/pkg/domain/repositories"
)

// BOMRepository provides in-memory storage of BOM revisions and their
// node arenas
type BOMRepository struct {
	mu        sync.RWMutex
	revisions map[string]entities.BOMRevision
	byModel   map[string][]string
	nodes     map[string][]entities.BOMNode
}

// NewBOMRepository creates an empty BOM repository
func NewBOMRepository(expectedRevisions int) *BOMRepository {
	return &BOMRepository{
		revisions: make(map[string]entities.BOMRevision, expectedRevisions),
		byModel:   make(map[string][]string),
		nodes:     make(map[string][]entities.BOMNode, expectedRevisions),
	}
}

// Verify interface compliance
var _ repositories.BOMRepository = (*BOMRepository)(nil)

// LoadRevision stores a revision with its nodes, replacing any earlier copy
// of the same revision id
func (r *BOMRepository) LoadRevision(revision entities.BOMRevision, nodes []entities.BOMNode) error {
	if revision.ModelRef == "" || revision.RevisionID == "" {
		return &entities.ValidationError{
			ModelRef: revision.ModelRef,
			Field:    "revision_id",
			Message:  "revision needs a model and a revision id",
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if revision.Active {
		for _, id := range r.byModel[revision.ModelRef] {
			other := r.revisions[id]
			other.Active = false
			r.revisions[id] = other
		}
	}

	if _, exists := r.revisions[revision.RevisionID]; !exists {
		r.byModel[revision.ModelRef] = append(r.byModel[revision.ModelRef], revision.RevisionID)
	}
	r.revisions[revision.RevisionID] = revision

	stored := make([]entities.BOMNode, len(nodes))
	copy(stored, nodes)
	sort.SliceStable(stored, func(i, j int) bool {
		return stored[i].ID < stored[j].ID
	})
	r.nodes[revision.RevisionID] = stored
	return nil
}

// GetModels returns every model with at least one revision, sorted
func (r *BOMRepository) GetModels() ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	models := make([]string, 0, len(r.byModel))
	for model := range r.byModel {
		models = append(models, model)
	}
	sort.Strings(models)
	return models, nil
}

// GetRevisions returns a model's revisions ordered by effective date
func (r *BOMRepository) GetRevisions(modelRef string) ([]entities.BOMRevision, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	revisions := make([]entities.BOMRevision, 0, len(r.byModel[modelRef]))
	for _, id := range r.byModel[modelRef] {
		revisions = append(revisions, r.revisions[id])
	}
	sort.Slice(revisions, func(i, j int) bool {
		if !revisions[i].EffectiveDate.Equal(revisions[j].EffectiveDate) {
			return revisions[i].EffectiveDate.Before(revisions[j].EffectiveDate)
		}
		return revisions[i].RevisionID < revisions[j].RevisionID
	})
	return revisions, nil
}

// GetActiveRevision returns the active revision of a model
func (r *BOMRepository) GetActiveRevision(modelRef string) (*entities.BOMRevision, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.byModel[modelRef] {
		if rev := r.revisions[id]; rev.Active {
			return &rev, nil
		}
	}
	return nil, fmt.Errorf("active revision of model %s: %w", modelRef, repositories.ErrNotFound)
}

// GetNodes returns a copy of a revision's node arena ordered by node id
func (r *BOMRepository) GetNodes(revisionID string) ([]entities.BOMNode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, exists := r.nodes[revisionID]
	if !exists {
		return nil, fmt.Errorf("revision %s: %w", revisionID, repositories.ErrNotFound)
	}
	nodes := make([]entities.BOMNode, len(stored))
	copy(nodes, stored)
	return nodes, nil
}
