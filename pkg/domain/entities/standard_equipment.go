package entities

import "github.com/shopspring/decimal"

// StandardEquipmentEntry is a promised-equipment line for a model
type StandardEquipmentEntry struct {
	ModelRef     string          `json:"model_ref"`
	ComponentRef ComponentCode   `json:"component_ref"`
	Qty          decimal.Decimal `json:"qty"`
	Notes        string          `json:"notes,omitempty"`
}

// NewStandardEquipmentEntry creates a validated StandardEquipmentEntry
func NewStandardEquipmentEntry(modelRef string, componentRef ComponentCode, qty decimal.Decimal, notes string) (*StandardEquipmentEntry, error) {
	e := StandardEquipmentEntry{ModelRef: modelRef, ComponentRef: componentRef, Qty: qty, Notes: notes}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}

// Validate checks the entry invariants
func (e StandardEquipmentEntry) Validate() error {
	return validateModelLine(e.ModelRef, e.ComponentRef, e.Qty)
}

// Validate checks the BOM line invariants
func (l BOMLine) Validate() error {
	if err := validateModelLine(l.ModelRef, l.ComponentRef, l.Qty); err != nil {
		return err
	}
	if l.UnitCost.Valid && l.UnitCost.Decimal.IsNegative() {
		return &ValidationError{
			ModelRef:     l.ModelRef,
			ComponentRef: l.ComponentRef,
			Field:        "unit_cost",
			Message:      "unit cost cannot be negative, got " + l.UnitCost.Decimal.String(),
		}
	}
	return nil
}

func validateModelLine(modelRef string, componentRef ComponentCode, qty decimal.Decimal) error {
	if modelRef == "" {
		return &ValidationError{ComponentRef: componentRef, Field: "model_ref", Message: "model cannot be empty"}
	}
	if componentRef == "" {
		return &ValidationError{ModelRef: modelRef, Field: "component_ref", Message: "component code cannot be empty"}
	}
	if !qty.IsPositive() {
		return &ValidationError{
			ModelRef:     modelRef,
			ComponentRef: componentRef,
			Field:        "qty",
			Message:      "quantity must be positive, got " + qty.String(),
		}
	}
	return nil
}
