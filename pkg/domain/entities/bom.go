package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// BOMRevision identifies one revision of a model's bill of materials
type BOMRevision struct {
	ModelRef      string    `json:"model_ref"`
	RevisionID    string    `json:"revision_id"`
	EffectiveDate time.Time `json:"effective_date"`
	Active        bool      `json:"active"`
}

// BOMNode is a single entry in a flat BOM arena. Hierarchy is expressed
// through ParentID; an empty ParentID marks a root.
type BOMNode struct {
	ID           string          `json:"id"`
	ComponentRef ComponentCode   `json:"component_ref"`
	ParentID     string          `json:"parent_id,omitempty"`
	Quantity     decimal.Decimal `json:"quantity"`
	ScrapFactor  decimal.Decimal `json:"scrap_factor"`
	IsAssembly   bool            `json:"is_assembly"`
}

// NewBOMNode creates a validated BOMNode
func NewBOMNode(
	id string,
	componentRef ComponentCode,
	parentID string,
	quantity, scrapFactor decimal.Decimal,
	isAssembly bool,
) (*BOMNode, error) {
	n := BOMNode{
		ID:           id,
		ComponentRef: componentRef,
		ParentID:     parentID,
		Quantity:     quantity,
		ScrapFactor:  scrapFactor,
		IsAssembly:   isAssembly,
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return &n, nil
}

// IsRoot reports whether the node has no parent
func (n BOMNode) IsRoot() bool {
	return n.ParentID == ""
}

// Validate checks the per-node invariants. Structural checks (cycles,
// dangling parents) belong to the BOM validator.
func (n BOMNode) Validate() error {
	if n.ID == "" {
		return &ValidationError{ComponentRef: n.ComponentRef, Field: "id", Message: "node id cannot be empty"}
	}
	if n.ParentID == n.ID {
		return &ValidationError{NodeID: n.ID, Field: "parent_id", Message: "node cannot be its own parent"}
	}
	if n.ComponentRef == "" && !n.IsAssembly {
		return &ValidationError{NodeID: n.ID, Field: "component_ref", Message: "leaf node must reference a component"}
	}
	if !n.Quantity.IsPositive() {
		return &ValidationError{
			NodeID:       n.ID,
			ComponentRef: n.ComponentRef,
			Field:        "quantity",
			Message:      "quantity must be positive, got " + n.Quantity.String(),
		}
	}
	if n.ScrapFactor.LessThan(decimal.NewFromInt(1)) {
		return &ValidationError{
			NodeID:       n.ID,
			ComponentRef: n.ComponentRef,
			Field:        "scrap_factor",
			Message:      "scrap factor must be at least 1.0, got " + n.ScrapFactor.String(),
		}
	}
	return nil
}

// ExtendedCost returns quantity × unitCost × scrapFactor
func (n BOMNode) ExtendedCost(unitCost decimal.Decimal) decimal.Decimal {
	return n.Quantity.Mul(unitCost).Mul(n.ScrapFactor)
}

// BOMLine is a flattened leaf usage of a component within a model,
// ignoring hierarchy. UnitCost is set when the line carries its own cost.
type BOMLine struct {
	ModelRef     string              `json:"model_ref"`
	ComponentRef ComponentCode       `json:"component_ref"`
	Qty          decimal.Decimal     `json:"qty"`
	UnitCost     decimal.NullDecimal `json:"unit_cost"`
}
