package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/vsinha/prodplan/pkg/domain/entities"
	"github.com/vsinha/prodplan/pkg/domain/repositories"
)

// ComponentRepository provides in-memory component master storage
type ComponentRepository struct {
	mu            sync.RWMutex
	components    []entities.Component
	componentsMap map[entities.ComponentCode]int
}

// NewComponentRepository creates a new in-memory component repository
func NewComponentRepository(expectedComponents int) *ComponentRepository {
	return &ComponentRepository{
		components:    make([]entities.Component, 0, expectedComponents),
		componentsMap: make(map[entities.ComponentCode]int, expectedComponents),
	}
}

// Verify interface compliance
var _ repositories.ComponentRepository = (*ComponentRepository)(nil)

// LoadComponents loads components into the repository. A component whose
// code already exists replaces the stored record.
func (r *ComponentRepository) LoadComponents(components []*entities.Component) error {
	for _, c := range components {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	for _, c := range components {
		r.AddComponent(*c)
	}
	return nil
}

// AddComponent adds a component to the repository
func (r *ComponentRepository) AddComponent(component entities.Component) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if index, exists := r.componentsMap[component.Code]; exists {
		r.components[index] = component
		return
	}
	r.componentsMap[component.Code] = len(r.components)
	r.components = append(r.components, component)
}

// GetComponent returns component master data for a code
func (r *ComponentRepository) GetComponent(code entities.ComponentCode) (*entities.Component, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	index, exists := r.componentsMap[code]
	if !exists {
		return nil, fmt.Errorf("component %s: %w", code, repositories.ErrNotFound)
	}
	component := r.components[index]
	return &component, nil
}

// GetAllComponents returns all components ordered by code
func (r *ComponentRepository) GetAllComponents() ([]*entities.Component, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	components := make([]*entities.Component, 0, len(r.components))
	for i := range r.components {
		component := r.components[i]
		components = append(components, &component)
	}
	sort.Slice(components, func(i, j int) bool {
		return components[i].Code < components[j].Code
	})
	return components, nil
}
