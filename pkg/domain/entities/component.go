package entities

import (
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

// ComponentCode represents a unique component identifier
type ComponentCode string

// Quantity represents an integer quantity value for discrete stock units
type Quantity int64

// Component represents a part record from the component master
type Component struct {
	Code         ComponentCode   `json:"code"`
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	LeadTimeDays int             `json:"lead_time_days"`
	MinStock     Quantity        `json:"min_stock"`
	SupplierRef  string          `json:"supplier_ref"`
}

// NewComponent creates a validated Component
func NewComponent(
	code ComponentCode,
	name, category string,
	unitCost decimal.Decimal,
	leadTimeDays int,
	minStock Quantity,
	supplierRef string,
) (*Component, error) {
	c := Component{
		Code:         code,
		Name:         name,
		Category:     category,
		UnitCost:     unitCost,
		LeadTimeDays: leadTimeDays,
		MinStock:     minStock,
		SupplierRef:  supplierRef,
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the component master invariants
func (c Component) Validate() error {
	if c.Code == "" {
		return &ValidationError{Field: "code", Message: "component code cannot be empty"}
	}
	if c.UnitCost.IsNegative() {
		return &ValidationError{
			ComponentRef: c.Code,
			Field:        "unit_cost",
			Message:      "unit cost cannot be negative, got " + c.UnitCost.String(),
		}
	}
	if c.LeadTimeDays < 0 {
		return &ValidationError{
			ComponentRef: c.Code,
			Field:        "lead_time_days",
			Message:      "lead time cannot be negative",
		}
	}
	if c.MinStock < 0 {
		return &ValidationError{
			ComponentRef: c.Code,
			Field:        "min_stock",
			Message:      "min stock cannot be negative",
		}
	}
	return nil
}

// Catalog resolves component master records by code
type Catalog interface {
	Lookup(code ComponentCode) (Component, bool)
}

// ComponentIndex is an in-memory Catalog keyed by component code
type ComponentIndex map[ComponentCode]Component

// NewComponentIndex indexes components by code. The first record of a
// code wins; use IndexComponents where duplicates must be reported.
func NewComponentIndex(components []Component) ComponentIndex {
	idx, _ := IndexComponents(components)
	return idx
}

// IndexComponents indexes components by code, keeping the first record of
// each code. Every later record of a code is returned as a ValidationError.
func IndexComponents(components []Component) (ComponentIndex, error) {
	idx := make(ComponentIndex, len(components))
	var errs []error
	for _, c := range components {
		if _, exists := idx[c.Code]; exists {
			errs = append(errs, &ValidationError{
				ComponentRef: c.Code,
				Field:        "code",
				Message:      "component listed more than once",
			})
			continue
		}
		idx[c.Code] = c
	}
	return idx, multierr.Combine(errs...)
}

// Lookup implements Catalog
func (idx ComponentIndex) Lookup(code ComponentCode) (Component, bool) {
	c, ok := idx[code]
	return c, ok
}
