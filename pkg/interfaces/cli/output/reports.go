package output

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vsinha/prodplan/pkg/application/dto"
	"github.com/vsinha/prodplan/pkg/domain/entities"
)

const dateLayout = "2006-01-02"

type errorRow struct {
	Kind          string `csv:"kind"`
	Message       string `csv:"message"`
	NodeID        string `csv:"node_id"`
	ComponentCode string `csv:"component_code"`
	ModelRef      string `csv:"model_ref"`
}

type rollupLineRow struct {
	NodeID                 string          `csv:"node_id"`
	ParentID               string          `csv:"parent_id"`
	Level                  int             `csv:"level"`
	ComponentCode          string          `csv:"component_code"`
	IsAssembly             bool            `csv:"is_assembly"`
	Quantity               decimal.Decimal `csv:"quantity"`
	ScrapFactor            decimal.Decimal `csv:"scrap_factor"`
	UnitCost               decimal.Decimal `csv:"unit_cost"`
	OwnCost                decimal.Decimal `csv:"own_cost"`
	ExtendedCost           decimal.Decimal `csv:"extended_cost"`
	CumulativeLeadTimeDays int             `csv:"cumulative_lead_time_days"`
}

type rollupTotalsRow struct {
	ModelRef                 string          `csv:"model_ref"`
	RevisionID               string          `csv:"revision_id"`
	Material                 decimal.Decimal `csv:"material"`
	Labor                    decimal.Decimal `csv:"labor"`
	Overhead                 decimal.Decimal `csv:"overhead"`
	Total                    decimal.Decimal `csv:"total"`
	CriticalPathLeadTimeDays int             `csv:"critical_path_lead_time_days"`
}

type marginRow struct {
	Retail               decimal.Decimal `csv:"retail"`
	DiscountPct          decimal.Decimal `csv:"discount_pct"`
	EffectiveRetail      decimal.Decimal `csv:"effective_retail"`
	GrossMargin          decimal.Decimal `csv:"gross_margin"`
	GrossMarginPct       decimal.Decimal `csv:"gross_margin_pct"`
	BreakEvenDiscountPct decimal.Decimal `csv:"break_even_discount_pct"`
}

type requirementRow struct {
	ComponentCode  string `csv:"component_code"`
	QtyOnHand      int64  `csv:"qty_on_hand"`
	QtyReserved    int64  `csv:"qty_reserved"`
	MinStock       int64  `csv:"min_stock"`
	Available      int64  `csv:"available"`
	NetRequirement int64  `csv:"net_requirement"`
	Status         string `csv:"status"`
}

type suggestionRow struct {
	ID                 string          `csv:"id"`
	ComponentCode      string          `csv:"component_code"`
	SuggestedQty       int64           `csv:"suggested_qty"`
	SuggestedOrderDate string          `csv:"suggested_order_date"`
	RequiredDate       string          `csv:"required_date"`
	Priority           string          `csv:"priority"`
	EstimatedCost      decimal.Decimal `csv:"estimated_cost"`
	SupplierRef        string          `csv:"supplier_ref"`
}

type batchLineRow struct {
	BatchID       string          `csv:"batch_id"`
	SupplierRef   string          `csv:"supplier_ref"`
	SuggestionID  string          `csv:"suggestion_id"`
	ComponentCode string          `csv:"component_code"`
	Qty           int64           `csv:"qty"`
	EstimatedCost decimal.Decimal `csv:"estimated_cost"`
	RequiredDate  string          `csv:"required_date"`
}

type reconciliationRow struct {
	ModelRef      string          `csv:"model_ref"`
	ComponentCode string          `csv:"component_code"`
	Status        string          `csv:"status"`
	QtyStandard   decimal.Decimal `csv:"qty_standard"`
	QtyBOM        decimal.Decimal `csv:"qty_bom"`
	UnitCost      decimal.Decimal `csv:"unit_cost"`
	CostVariance  decimal.Decimal `csv:"cost_variance"`
}

type summaryRow struct {
	ModelRef        string          `csv:"model_ref"`
	Matched         int             `csv:"matched"`
	MissingBOM      int             `csv:"missing_bom"`
	MissingStandard int             `csv:"missing_standard"`
	QtyMismatch     int             `csv:"qty_mismatch"`
	StandardCost    decimal.Decimal `csv:"standard_cost"`
	BOMCost         decimal.Decimal `csv:"bom_cost"`
	CostVariance    decimal.Decimal `csv:"cost_variance"`
}

type committedRow struct {
	Kind string `csv:"kind"`
	ID   string `csv:"id"`
}

// RollupReport lays out a rollup response
func RollupReport(resp dto.RollupResponse) (Report, error) {
	lines := make([]rollupLineRow, 0, len(resp.Lines))
	for _, l := range resp.Lines {
		lines = append(lines, rollupLineRow{
			NodeID:                 l.NodeID,
			ParentID:               l.ParentID,
			Level:                  l.Level,
			ComponentCode:          string(l.ComponentRef),
			IsAssembly:             l.IsAssembly,
			Quantity:               l.Quantity,
			ScrapFactor:            l.ScrapFactor,
			UnitCost:               l.UnitCost,
			OwnCost:                l.OwnCost,
			ExtendedCost:           l.ExtendedCost,
			CumulativeLeadTimeDays: l.CumulativeLeadTimeDays,
		})
	}
	totals := []rollupTotalsRow{{
		ModelRef:                 resp.ModelRef,
		RevisionID:               resp.RevisionID,
		Material:                 resp.Totals.Material,
		Labor:                    resp.Totals.Labor,
		Overhead:                 resp.Totals.Overhead,
		Total:                    resp.Totals.Total,
		CriticalPathLeadTimeDays: resp.CriticalPathLeadTimeDays,
	}}

	report := Report{
		Name:  "rollup",
		Title: fmt.Sprintf("Cost Rollup %s / %s", resp.ModelRef, resp.RevisionID),
		Value: resp,
		Summary: []string{
			fmt.Sprintf("Material: %s", resp.Totals.Material.StringFixed(2)),
			fmt.Sprintf("Labor:    %s", resp.Totals.Labor.StringFixed(2)),
			fmt.Sprintf("Overhead: %s", resp.Totals.Overhead.StringFixed(2)),
			fmt.Sprintf("Total:    %s", resp.Totals.Total.StringFixed(2)),
			fmt.Sprintf("Critical path: %s (%d days)", strings.Join(resp.CriticalPath, " > "), resp.CriticalPathLeadTimeDays),
		},
	}

	tables, err := tablesOf(
		tableFunc(func() (Table, error) { return NewTable("totals", totals) }),
		tableFunc(func() (Table, error) { return NewTable("lines", lines) }),
	)
	if err != nil {
		return Report{}, err
	}
	if resp.Margin != nil {
		m := resp.Margin
		t, err := NewTable("margin", []marginRow{{
			Retail:               m.Retail,
			DiscountPct:          m.DiscountPct,
			EffectiveRetail:      m.EffectiveRetail,
			GrossMargin:          m.GrossMargin,
			GrossMarginPct:       m.GrossMarginPct,
			BreakEvenDiscountPct: m.BreakEvenDiscountPct,
		}})
		if err != nil {
			return Report{}, err
		}
		tables = append(tables, t)
		report.Summary = append(report.Summary, fmt.Sprintf("Gross margin: %s (%s%%)",
			m.GrossMargin.StringFixed(2), m.GrossMarginPct.StringFixed(2)))
	}
	return withErrors(report, tables, resp.Errors)
}

// MRPReport lays out an MRP response
func MRPReport(resp dto.MRPResponse) (Report, error) {
	requirements := make([]requirementRow, 0, len(resp.Requirements))
	for _, r := range resp.Requirements {
		requirements = append(requirements, requirementRow{
			ComponentCode:  string(r.ComponentRef),
			QtyOnHand:      int64(r.QtyOnHand),
			QtyReserved:    int64(r.QtyReserved),
			MinStock:       int64(r.MinStock),
			Available:      int64(r.Available),
			NetRequirement: int64(r.NetRequirement),
			Status:         r.Status.String(),
		})
	}
	suggestions := make([]suggestionRow, 0, len(resp.Suggestions))
	for _, s := range resp.Suggestions {
		suggestions = append(suggestions, suggestionRow{
			ID:                 s.ID,
			ComponentCode:      string(s.ComponentRef),
			SuggestedQty:       int64(s.SuggestedQty),
			SuggestedOrderDate: s.SuggestedOrderDate.Format(dateLayout),
			RequiredDate:       s.RequiredDate.Format(dateLayout),
			Priority:           s.Priority.String(),
			EstimatedCost:      s.EstimatedCost,
			SupplierRef:        s.SupplierRef,
		})
	}
	batches := make([]batchLineRow, 0)
	for _, b := range resp.Batches {
		for _, s := range b.Lines {
			batches = append(batches, batchLineRow{
				SupplierRef:   b.SupplierRef,
				SuggestionID:  s.ID,
				ComponentCode: string(s.ComponentRef),
				Qty:           int64(s.SuggestedQty),
				EstimatedCost: s.EstimatedCost,
				RequiredDate:  s.RequiredDate.Format(dateLayout),
			})
		}
	}

	report := Report{
		Name:  "mrp",
		Title: "MRP Results",
		Value: resp,
		Summary: []string{
			fmt.Sprintf("Snapshot version: %d", resp.SnapshotVersion),
			fmt.Sprintf("Components: %d", len(resp.Requirements)),
			fmt.Sprintf("Suggestions: %d", len(resp.Suggestions)),
			fmt.Sprintf("Draft batches: %d", len(resp.Batches)),
		},
	}
	for _, b := range resp.Batches {
		report.Summary = append(report.Summary, fmt.Sprintf("  %s: %d lines, %s",
			b.SupplierRef, len(b.Lines), b.TotalValue.StringFixed(2)))
	}

	tables, err := tablesOf(
		tableFunc(func() (Table, error) { return NewTable("requirements", requirements) }),
		tableFunc(func() (Table, error) { return NewTable("suggestions", suggestions) }),
		tableFunc(func() (Table, error) { return NewTable("batches", batches) }),
	)
	if err != nil {
		return Report{}, err
	}
	return withErrors(report, tables, resp.Errors)
}

// ReconcileReport lays out a reconciliation response
func ReconcileReport(resp dto.ReconcileResponse) (Report, error) {
	records := make([]reconciliationRow, 0, len(resp.Records))
	for _, r := range resp.Records {
		records = append(records, reconciliationRow{
			ModelRef:      r.ModelRef,
			ComponentCode: string(r.ComponentRef),
			Status:        string(r.Status),
			QtyStandard:   r.QtyStandard,
			QtyBOM:        r.QtyBOM,
			UnitCost:      r.UnitCost,
			CostVariance:  r.CostVariance,
		})
	}
	summaries := make([]summaryRow, 0, len(resp.ModelSummaries))
	report := Report{Name: "reconciliation", Title: "Standard Equipment Reconciliation", Value: resp}
	for _, s := range resp.ModelSummaries {
		summaries = append(summaries, summaryRow{
			ModelRef:        s.ModelRef,
			Matched:         s.Matched,
			MissingBOM:      s.MissingBOM,
			MissingStandard: s.MissingStandard,
			QtyMismatch:     s.QtyMismatch,
			StandardCost:    s.StandardCost,
			BOMCost:         s.BOMCost,
			CostVariance:    s.CostVariance,
		})
		report.Summary = append(report.Summary, fmt.Sprintf("%s: %d matched, %d discrepancies, variance %s",
			s.ModelRef, s.Matched, s.Discrepancies(), s.CostVariance.StringFixed(2)))
	}

	tables, err := tablesOf(
		tableFunc(func() (Table, error) { return NewTable("summaries", summaries) }),
		tableFunc(func() (Table, error) { return NewTable("records", records) }),
	)
	if err != nil {
		return Report{}, err
	}
	return withErrors(report, tables, resp.Errors)
}

// CommitReport lays out a commit response
func CommitReport(resp dto.CommitResponse) (Report, error) {
	report := Report{Name: "commit", Title: "Commit", Value: resp}
	if resp.Error != nil {
		report.Summary = []string{fmt.Sprintf("Rejected (%s): %s", resp.Error.Kind, resp.Error.Message)}
		return withErrors(report, nil, []dto.ErrorRecord{*resp.Error})
	}

	rows := make([]committedRow, 0, len(resp.BatchIDs)+len(resp.ConsumedSuggestionIDs))
	for _, id := range resp.BatchIDs {
		rows = append(rows, committedRow{Kind: "batch", ID: id})
	}
	for _, id := range resp.ConsumedSuggestionIDs {
		rows = append(rows, committedRow{Kind: "suggestion", ID: id})
	}
	report.Summary = []string{
		fmt.Sprintf("Batches: %d", len(resp.BatchIDs)),
		fmt.Sprintf("Consumed suggestions: %d", len(resp.ConsumedSuggestionIDs)),
		fmt.Sprintf("Snapshot version: %d", resp.SnapshotVersion),
	}
	t, err := NewTable("committed", rows)
	if err != nil {
		return Report{}, err
	}
	report.Tables = []Table{t}
	return report, nil
}

// BatchReport lays out a committed purchase batch
func BatchReport(batch *entities.PurchaseBatch) (Report, error) {
	rows := make([]batchLineRow, 0, len(batch.Lines))
	for _, l := range batch.Lines {
		rows = append(rows, batchLineRow{
			BatchID:       batch.ID,
			SupplierRef:   batch.SupplierRef,
			SuggestionID:  l.SuggestionID,
			ComponentCode: string(l.ComponentRef),
			Qty:           int64(l.Qty),
			EstimatedCost: l.EstimatedCost,
			RequiredDate:  l.RequiredDate.Format(dateLayout),
		})
	}
	t, err := NewTable("lines", rows)
	if err != nil {
		return Report{}, err
	}
	return Report{
		Name:  "batch_" + batch.ID,
		Title: "Purchase Batch " + batch.ID,
		Value: batch,
		Summary: []string{
			fmt.Sprintf("Supplier: %s", batch.SupplierRef),
			fmt.Sprintf("Snapshot version: %d", batch.SnapshotVersion),
			fmt.Sprintf("Total value: %s", batch.TotalValue.StringFixed(2)),
			fmt.Sprintf("Created: %s", batch.CreatedAt.Format("2006-01-02 15:04:05")),
		},
		Tables: []Table{t},
	}, nil
}

type tableFunc func() (Table, error)

func tablesOf(fns ...tableFunc) ([]Table, error) {
	tables := make([]Table, 0, len(fns)+1)
	for _, fn := range fns {
		t, err := fn()
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, nil
}

func withErrors(report Report, tables []Table, records []dto.ErrorRecord) (Report, error) {
	rows := make([]errorRow, 0, len(records))
	for _, r := range records {
		rows = append(rows, errorRow{
			Kind:          r.Kind,
			Message:       r.Message,
			NodeID:        r.NodeID,
			ComponentCode: r.ComponentCode,
			ModelRef:      r.ModelRef,
		})
	}
	t, err := NewTable("errors", rows)
	if err != nil {
		return Report{}, err
	}
	report.Tables = append(tables, t)
	return report, nil
}
