package entities

import "fmt"

// RequirementStatus classifies a component's stock position. Values are
// ordered by severity.
type RequirementStatus int

const (
	StatusOK RequirementStatus = iota
	StatusLow
	StatusReorder
	StatusCritical
)

// String method for RequirementStatus enum
func (s RequirementStatus) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusLow:
		return "LOW"
	case StatusReorder:
		return "REORDER"
	case StatusCritical:
		return "CRITICAL"
	default:
		return "Unknown"
	}
}

// ParseRequirementStatus is the inverse of String
func ParseRequirementStatus(s string) (RequirementStatus, error) {
	switch s {
	case "OK":
		return StatusOK, nil
	case "LOW":
		return StatusLow, nil
	case "REORDER":
		return StatusReorder, nil
	case "CRITICAL":
		return StatusCritical, nil
	}
	return StatusOK, &ValidationError{Field: "status", Message: fmt.Sprintf("unknown requirement status %q", s)}
}

func (s RequirementStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *RequirementStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseRequirementStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// NeedsOrder reports whether the status produces a purchase suggestion
func (s RequirementStatus) NeedsOrder() bool {
	return s == StatusReorder || s == StatusCritical
}

// ClassifyStock applies the status precedence. CRITICAL is decided before
// and independently of minStock, so minStock=0 with nothing available is
// still CRITICAL. The LOW band (available < 1.5 × minStock) is evaluated
// in integers.
func ClassifyStock(available, minStock Quantity) RequirementStatus {
	switch {
	case available <= 0:
		return StatusCritical
	case available < minStock:
		return StatusReorder
	case 2*available < 3*minStock:
		return StatusLow
	default:
		return StatusOK
	}
}

// NetRequirement returns max(0, minStock − available)
func NetRequirement(available, minStock Quantity) Quantity {
	if net := minStock - available; net > 0 {
		return net
	}
	return 0
}

// RequirementRecord is the netting result for one component
type RequirementRecord struct {
	ComponentRef   ComponentCode     `json:"component_ref"`
	QtyOnHand      Quantity          `json:"qty_on_hand"`
	QtyReserved    Quantity          `json:"qty_reserved"`
	MinStock       Quantity          `json:"min_stock"`
	Available      Quantity          `json:"available"`
	NetRequirement Quantity          `json:"net_requirement"`
	Status         RequirementStatus `json:"status"`
	// PositionEpoch is the epoch of the position the record was netted against
	PositionEpoch SnapshotVersion `json:"position_epoch,omitempty"`
}
