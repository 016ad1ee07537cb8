package repositories

import "github.com/vsinha/prodplan/pkg/domain/entities"

// ComponentRepository provides access to component master data
type ComponentRepository interface {
	GetComponent(code entities.ComponentCode) (*entities.Component, error)
	GetAllComponents() ([]*entities.Component, error)
	LoadComponents(components []*entities.Component) error
}
