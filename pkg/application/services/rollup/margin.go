package rollup

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// EffectiveRetail returns retail × (1 − discountPct/100)
func EffectiveRetail(retail, discountPct decimal.Decimal) decimal.Decimal {
	return retail.Mul(decimal.NewFromInt(1).Sub(discountPct.Div(hundred)))
}

// GrossMargin returns effectiveRetail − totalCost
func GrossMargin(effectiveRetail, totalCost decimal.Decimal) decimal.Decimal {
	return effectiveRetail.Sub(totalCost)
}

// GrossMarginPct returns the gross margin as a percentage of effective
// retail. A zero effective retail yields zero.
func GrossMarginPct(effectiveRetail, totalCost decimal.Decimal) decimal.Decimal {
	if effectiveRetail.IsZero() {
		return decimal.Zero
	}
	return GrossMargin(effectiveRetail, totalCost).Div(effectiveRetail).Mul(hundred)
}

// BreakEvenDiscountPct returns the discount at which retail only just
// covers totalCost. A zero retail yields zero.
func BreakEvenDiscountPct(retail, totalCost decimal.Decimal) decimal.Decimal {
	if retail.IsZero() {
		return decimal.Zero
	}
	return retail.Sub(totalCost).Div(retail).Mul(hundred)
}

// MarginEstimate holds the pricing view of a rolled-up model
type MarginEstimate struct {
	Retail               decimal.Decimal `json:"retail"`
	DiscountPct          decimal.Decimal `json:"discount_pct"`
	EffectiveRetail      decimal.Decimal `json:"effective_retail"`
	GrossMargin          decimal.Decimal `json:"gross_margin"`
	GrossMarginPct       decimal.Decimal `json:"gross_margin_pct"`
	BreakEvenDiscountPct decimal.Decimal `json:"break_even_discount_pct"`
}

// Margin prices the totals at the given retail and discount
func (t Totals) Margin(retail, discountPct decimal.Decimal) MarginEstimate {
	effective := EffectiveRetail(retail, discountPct)
	return MarginEstimate{
		Retail:               retail,
		DiscountPct:          discountPct,
		EffectiveRetail:      effective,
		GrossMargin:          GrossMargin(effective, t.Total),
		GrossMarginPct:       GrossMarginPct(effective, t.Total),
		BreakEvenDiscountPct: BreakEvenDiscountPct(retail, t.Total),
	}
}
