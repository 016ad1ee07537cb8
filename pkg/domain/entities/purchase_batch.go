package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// DraftPurchaseBatch groups suggestions for one supplier before commit
type DraftPurchaseBatch struct {
	SupplierRef string          `json:"supplier_ref"`
	Lines       []MRPSuggestion `json:"lines"`
	TotalValue  decimal.Decimal `json:"total_value"`
}

// PurchaseBatchLine is a committed suggestion
type PurchaseBatchLine struct {
	SuggestionID  string          `json:"suggestion_id"`
	ComponentRef  ComponentCode   `json:"component_ref"`
	Qty           Quantity        `json:"qty"`
	EstimatedCost decimal.Decimal `json:"estimated_cost"`
	RequiredDate  time.Time       `json:"required_date"`
}

// PurchaseBatch is the persisted form of a committed draft batch
type PurchaseBatch struct {
	ID              string              `json:"id"`
	SupplierRef     string              `json:"supplier_ref"`
	SnapshotVersion SnapshotVersion     `json:"snapshot_version"`
	Lines           []PurchaseBatchLine `json:"lines"`
	TotalValue      decimal.Decimal     `json:"total_value"`
	CreatedAt       time.Time           `json:"created_at"`
}

// NewPurchaseBatch converts a draft into a batch ready to persist
func NewPurchaseBatch(id string, draft DraftPurchaseBatch, version SnapshotVersion, createdAt time.Time) PurchaseBatch {
	lines := make([]PurchaseBatchLine, 0, len(draft.Lines))
	for _, s := range draft.Lines {
		lines = append(lines, PurchaseBatchLine{
			SuggestionID:  s.ID,
			ComponentRef:  s.ComponentRef,
			Qty:           s.SuggestedQty,
			EstimatedCost: s.EstimatedCost,
			RequiredDate:  s.RequiredDate,
		})
	}
	return PurchaseBatch{
		ID:              id,
		SupplierRef:     draft.SupplierRef,
		SnapshotVersion: version,
		Lines:           lines,
		TotalValue:      draft.TotalValue,
		CreatedAt:       createdAt,
	}
}

// SuggestionIDs returns the ids of the suggestions the batch consumes
func (b PurchaseBatch) SuggestionIDs() []string {
	ids := make([]string, 0, len(b.Lines))
	for _, l := range b.Lines {
		ids = append(ids, l.SuggestionID)
	}
	return ids
}

// BatchSuggestionIDs returns the suggestion ids of all batches in order.
// A suggestion may appear in at most one line of one batch.
func BatchSuggestionIDs(batches []PurchaseBatch) ([]string, error) {
	var ids []string
	seen := make(map[string]bool)
	for _, b := range batches {
		for _, id := range b.SuggestionIDs() {
			if seen[id] {
				return nil, &ValidationError{Field: "suggestion_id", Message: "suggestion " + id + " selected twice"}
			}
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}
