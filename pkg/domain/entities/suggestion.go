package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Priority ranks a purchase suggestion
type Priority int

const (
	PriorityHigh Priority = iota
	PriorityCritical
)

// String method for Priority enum
func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

func (p Priority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Priority) UnmarshalText(text []byte) error {
	switch string(text) {
	case "high":
		*p = PriorityHigh
	case "critical":
		*p = PriorityCritical
	default:
		return &ValidationError{Field: "priority", Message: fmt.Sprintf("unknown priority %q", text)}
	}
	return nil
}

// suggestionNamespace seeds the name-based suggestion ids
var suggestionNamespace = uuid.MustParse("6f1c7a52-2d0b-4b8e-9a51-3c0f5e1d9b27")

// SuggestionID derives the id of the suggestion for a component from the
// stock position it was netted against. A rerun over an unchanged position
// regenerates the same id, so a consumed suggestion stays recognisable
// across the version bump of its commit. Once a load changes the position
// its epoch moves and every later suggestion gets a new id, even when the
// stock returns to an earlier level.
func SuggestionID(code ComponentCode, epoch SnapshotVersion, available, suggestedQty Quantity) string {
	name := fmt.Sprintf("%s/%d/%d/%d", code, epoch, available, suggestedQty)
	return uuid.NewSHA1(suggestionNamespace, []byte(name)).String()
}

// MRPSuggestion is a reorder proposal produced by an MRP run
type MRPSuggestion struct {
	ID                 string          `json:"id"`
	ComponentRef       ComponentCode   `json:"component_ref"`
	SuggestedQty       Quantity        `json:"suggested_qty"`
	SuggestedOrderDate time.Time       `json:"suggested_order_date"`
	RequiredDate       time.Time       `json:"required_date"`
	Priority           Priority        `json:"priority"`
	EstimatedCost      decimal.Decimal `json:"estimated_cost"`
	SupplierRef        string          `json:"supplier_ref"`
	SnapshotVersion    SnapshotVersion `json:"snapshot_version"`
}
