package memory

import (
	"sort"
	"sync"

	"github.com/vsinha/prodplan/pkg/domain/entities"
	"github.com/vsinha/prodplan/pkg/domain/repositories"
)

// StandardEquipmentRepository provides in-memory storage of promised
// equipment lines. Duplicate (model, component) lines are kept as loaded;
// reconciliation reports them.
type StandardEquipmentRepository struct {
	mu      sync.RWMutex
	entries map[string][]entities.StandardEquipmentEntry
}

// NewStandardEquipmentRepository creates an empty repository
func NewStandardEquipmentRepository() *StandardEquipmentRepository {
	return &StandardEquipmentRepository{
		entries: make(map[string][]entities.StandardEquipmentEntry),
	}
}

// Verify interface compliance
var _ repositories.StandardEquipmentRepository = (*StandardEquipmentRepository)(nil)

// LoadEntries appends entries to their models
func (r *StandardEquipmentRepository) LoadEntries(entries []entities.StandardEquipmentEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range entries {
		r.entries[e.ModelRef] = append(r.entries[e.ModelRef], e)
	}
	return nil
}

// GetModels returns every model with standard equipment, sorted
func (r *StandardEquipmentRepository) GetModels() ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	models := make([]string, 0, len(r.entries))
	for model := range r.entries {
		models = append(models, model)
	}
	sort.Strings(models)
	return models, nil
}

// GetEntries returns a copy of a model's entries in load order
func (r *StandardEquipmentRepository) GetEntries(modelRef string) ([]entities.StandardEquipmentEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]entities.StandardEquipmentEntry, len(r.entries[modelRef]))
	copy(entries, r.entries[modelRef])
	return entries, nil
}
