package entities

import "github.com/shopspring/decimal"

// ReconciliationStatus is the outcome of comparing one (model, component)
// key across standard equipment and BOM
type ReconciliationStatus string

const (
	ReconciliationMatched         ReconciliationStatus = "matched"
	ReconciliationMissingBOM      ReconciliationStatus = "missing_bom"
	ReconciliationMissingStandard ReconciliationStatus = "missing_standard"
	ReconciliationQtyMismatch     ReconciliationStatus = "qty_mismatch"
)

// ReconciliationRecord is one row of the standard-vs-BOM diff
type ReconciliationRecord struct {
	ModelRef     string               `json:"model_ref"`
	ComponentRef ComponentCode        `json:"component_ref"`
	InStandard   bool                 `json:"in_standard"`
	InBOM        bool                 `json:"in_bom"`
	QtyStandard  decimal.Decimal      `json:"qty_standard"`
	QtyBOM       decimal.Decimal      `json:"qty_bom"`
	UnitCost     decimal.Decimal      `json:"unit_cost"`
	CostVariance decimal.Decimal      `json:"cost_variance"`
	Status       ReconciliationStatus `json:"status"`
}

// ModelSummary aggregates a model's reconciliation records
type ModelSummary struct {
	ModelRef        string          `json:"model_ref"`
	Matched         int             `json:"matched"`
	MissingBOM      int             `json:"missing_bom"`
	MissingStandard int             `json:"missing_standard"`
	QtyMismatch     int             `json:"qty_mismatch"`
	StandardCost    decimal.Decimal `json:"standard_cost"`
	BOMCost         decimal.Decimal `json:"bom_cost"`
	CostVariance    decimal.Decimal `json:"cost_variance"`
}

// Discrepancies returns the number of records that are not matched
func (s ModelSummary) Discrepancies() int {
	return s.MissingBOM + s.MissingStandard + s.QtyMismatch
}
