package entities

import (
	"time"
)

// SnapshotVersion identifies the state of inventory data a computation was
// based on. It only ever increases.
type SnapshotVersion int64

// InventoryPosition is the on-hand and reserved stock of one component
type InventoryPosition struct {
	ComponentRef ComponentCode `json:"component_ref"`
	QtyOnHand    Quantity      `json:"qty_on_hand"`
	QtyReserved  Quantity      `json:"qty_reserved"`
	AsOf         time.Time     `json:"as_of"`
	// Epoch is the snapshot version at which the on-hand or reserved
	// quantity last changed. Stores set it on load.
	Epoch SnapshotVersion `json:"epoch,omitempty"`
}

// NewInventoryPosition creates a validated InventoryPosition
func NewInventoryPosition(componentRef ComponentCode, onHand, reserved Quantity, asOf time.Time) (*InventoryPosition, error) {
	p := InventoryPosition{
		ComponentRef: componentRef,
		QtyOnHand:    onHand,
		QtyReserved:  reserved,
		AsOf:         asOf,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the position invariants. Reserved above on-hand is a
// policy violation the netting engine tolerates, so it is not rejected here.
func (p InventoryPosition) Validate() error {
	if p.ComponentRef == "" {
		return &ValidationError{Field: "component_ref", Message: "component code cannot be empty"}
	}
	if p.QtyOnHand < 0 {
		return &ValidationError{ComponentRef: p.ComponentRef, Field: "qty_on_hand", Message: "on-hand quantity cannot be negative"}
	}
	if p.QtyReserved < 0 {
		return &ValidationError{ComponentRef: p.ComponentRef, Field: "qty_reserved", Message: "reserved quantity cannot be negative"}
	}
	return nil
}

// Available returns on-hand minus reserved, which may be negative
func (p InventoryPosition) Available() Quantity {
	return p.QtyOnHand - p.QtyReserved
}

// SameStock reports whether two positions hold the same quantities
func (p InventoryPosition) SameStock(other InventoryPosition) bool {
	return p.QtyOnHand == other.QtyOnHand && p.QtyReserved == other.QtyReserved
}

// InventorySnapshot is a versioned, point-in-time view of all positions
type InventorySnapshot struct {
	Version   SnapshotVersion     `json:"version"`
	AsOf      time.Time           `json:"as_of"`
	Positions []InventoryPosition `json:"positions"`
}
