package aggregator

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/vsinha/prodplan/pkg/domain/entities"
)

// GroupBySupplier partitions suggestions into one draft batch per
// supplier. Batches are ordered by supplier and lines by component.
func GroupBySupplier(suggestions []entities.MRPSuggestion) []entities.DraftPurchaseBatch {
	bySupplier := make(map[string]*entities.DraftPurchaseBatch)
	for _, s := range suggestions {
		draft, exists := bySupplier[s.SupplierRef]
		if !exists {
			draft = &entities.DraftPurchaseBatch{
				SupplierRef: s.SupplierRef,
				Lines:       make([]entities.MRPSuggestion, 0),
				TotalValue:  decimal.Zero,
			}
			bySupplier[s.SupplierRef] = draft
		}
		draft.Lines = append(draft.Lines, s)
		draft.TotalValue = draft.TotalValue.Add(s.EstimatedCost)
	}

	drafts := make([]entities.DraftPurchaseBatch, 0, len(bySupplier))
	for _, draft := range bySupplier {
		sort.Slice(draft.Lines, func(i, j int) bool {
			if draft.Lines[i].ComponentRef != draft.Lines[j].ComponentRef {
				return draft.Lines[i].ComponentRef < draft.Lines[j].ComponentRef
			}
			return draft.Lines[i].ID < draft.Lines[j].ID
		})
		drafts = append(drafts, *draft)
	}
	sort.Slice(drafts, func(i, j int) bool {
		return drafts[i].SupplierRef < drafts[j].SupplierRef
	})
	return drafts
}
