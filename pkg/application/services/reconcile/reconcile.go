package reconcile

import (
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/vsinha/prodplan/pkg/domain/entities"
)

type key struct {
	model     string
	component entities.ComponentCode
}

func less(a, b key) bool {
	if a.model != b.model {
		return a.model < b.model
	}
	return a.component < b.component
}

// Reconcile diffs promised equipment against built BOM lines per (model,
// component). Unit costs come from the catalog, falling back to the cost a
// BOM line carries for a component the catalog does not know.
//
// Duplicate keys in either list and components with no cost from either
// source abort with no records. Lines that fail validation are left out and
// returned as combined errors next to the records.
func Reconcile(
	standard []entities.StandardEquipmentEntry,
	bom []entities.BOMLine,
	catalog entities.Catalog,
) ([]entities.ReconciliationRecord, []entities.ModelSummary, error) {
	if catalog == nil {
		catalog = entities.ComponentIndex{}
	}

	var problems, fatal []error

	standardQty := make(map[key]decimal.Decimal, len(standard))
	var standardDup []key
	for _, e := range standard {
		if err := e.Validate(); err != nil {
			problems = append(problems, err)
			continue
		}
		k := key{e.ModelRef, e.ComponentRef}
		if _, exists := standardQty[k]; exists {
			standardDup = append(standardDup, k)
			continue
		}
		standardQty[k] = e.Qty
	}

	bomQty := make(map[key]decimal.Decimal, len(bom))
	lineCosts := make(map[entities.ComponentCode]decimal.Decimal)
	var bomDup []key
	for _, l := range bom {
		if err := l.Validate(); err != nil {
			problems = append(problems, err)
			continue
		}
		k := key{l.ModelRef, l.ComponentRef}
		if _, exists := bomQty[k]; exists {
			bomDup = append(bomDup, k)
			continue
		}
		bomQty[k] = l.Qty
		if _, seen := lineCosts[l.ComponentRef]; !seen && l.UnitCost.Valid {
			lineCosts[l.ComponentRef] = l.UnitCost.Decimal
		}
	}

	fatal = append(fatal, duplicates("standard", standardDup)...)
	fatal = append(fatal, duplicates("bom", bomDup)...)
	if len(fatal) > 0 {
		return nil, nil, multierr.Combine(fatal...)
	}

	keys := make([]key, 0, len(standardQty)+len(bomQty))
	for k := range standardQty {
		keys = append(keys, k)
	}
	for k := range bomQty {
		if _, inStandard := standardQty[k]; !inStandard {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return less(keys[i], keys[j]) })

	unitCosts := make(map[entities.ComponentCode]decimal.Decimal)
	for _, k := range keys {
		if _, done := unitCosts[k.component]; done {
			continue
		}
		if c, ok := catalog.Lookup(k.component); ok {
			unitCosts[k.component] = c.UnitCost
			continue
		}
		if cost, ok := lineCosts[k.component]; ok {
			unitCosts[k.component] = cost
			continue
		}
		fatal = append(fatal, &entities.MissingReferenceError{ModelRef: k.model, ComponentRef: k.component})
	}
	if len(fatal) > 0 {
		return nil, nil, multierr.Combine(fatal...)
	}

	records := make([]entities.ReconciliationRecord, 0, len(keys))
	summaries := make([]entities.ModelSummary, 0)
	for _, k := range keys {
		stdQty, inStandard := standardQty[k]
		builtQty, inBOM := bomQty[k]
		unitCost := unitCosts[k.component]

		rec := entities.ReconciliationRecord{
			ModelRef:     k.model,
			ComponentRef: k.component,
			InStandard:   inStandard,
			InBOM:        inBOM,
			QtyStandard:  stdQty,
			QtyBOM:       builtQty,
			UnitCost:     unitCost,
			CostVariance: builtQty.Sub(stdQty).Mul(unitCost),
		}
		switch {
		case !inBOM:
			rec.Status = entities.ReconciliationMissingBOM
		case !inStandard:
			rec.Status = entities.ReconciliationMissingStandard
		case !stdQty.Equal(builtQty):
			rec.Status = entities.ReconciliationQtyMismatch
		default:
			rec.Status = entities.ReconciliationMatched
		}
		records = append(records, rec)

		// keys are sorted by model, so a model's records are contiguous
		if len(summaries) == 0 || summaries[len(summaries)-1].ModelRef != k.model {
			summaries = append(summaries, entities.ModelSummary{
				ModelRef:     k.model,
				StandardCost: decimal.Zero,
				BOMCost:      decimal.Zero,
				CostVariance: decimal.Zero,
			})
		}
		summarize(&summaries[len(summaries)-1], rec)
	}

	return records, summaries, multierr.Combine(problems...)
}

func summarize(s *entities.ModelSummary, rec entities.ReconciliationRecord) {
	switch rec.Status {
	case entities.ReconciliationMatched:
		s.Matched++
	case entities.ReconciliationMissingBOM:
		s.MissingBOM++
	case entities.ReconciliationMissingStandard:
		s.MissingStandard++
	case entities.ReconciliationQtyMismatch:
		s.QtyMismatch++
	}
	s.StandardCost = s.StandardCost.Add(rec.QtyStandard.Mul(rec.UnitCost))
	s.BOMCost = s.BOMCost.Add(rec.QtyBOM.Mul(rec.UnitCost))
	s.CostVariance = s.BOMCost.Sub(s.StandardCost)
}

func duplicates(source string, keys []key) []error {
	sort.Slice(keys, func(i, j int) bool { return less(keys[i], keys[j]) })
	errs := make([]error, 0, len(keys))
	for i, k := range keys {
		if i > 0 && keys[i-1] == k {
			continue
		}
		errs = append(errs, &entities.DuplicateEntryError{Source: source, ModelRef: k.model, ComponentRef: k.component})
	}
	return errs
}
