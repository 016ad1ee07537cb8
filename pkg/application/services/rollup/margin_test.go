package rollup

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestMarginHelpers(t *testing.T) {
	tests := []struct {
		name            string
		retail          string
		discount        string
		total           string
		wantEffective   string
		wantMargin      string
		wantMarginPct   string
		wantBreakEvenPc string
	}{
		{
			name: "no discount", retail: "100000", discount: "0", total: "80000",
			wantEffective: "100000", wantMargin: "20000", wantMarginPct: "20", wantBreakEvenPc: "20",
		},
		{
			name: "ten percent discount", retail: "100000", discount: "10", total: "80000",
			wantEffective: "90000", wantMargin: "10000", wantMarginPct: "11.11", wantBreakEvenPc: "20",
		},
		{
			name: "loss", retail: "50000", discount: "0", total: "60000",
			wantEffective: "50000", wantMargin: "-10000", wantMarginPct: "-20", wantBreakEvenPc: "-20",
		},
		{
			name: "zero retail", retail: "0", discount: "0", total: "60000",
			wantEffective: "0", wantMargin: "-60000", wantMarginPct: "0", wantBreakEvenPc: "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			totals := Totals{Total: decimal.RequireFromString(tt.total)}
			m := totals.Margin(decimal.RequireFromString(tt.retail), decimal.RequireFromString(tt.discount))

			check := func(field string, got decimal.Decimal, want string) {
				if !got.Round(2).Equal(decimal.RequireFromString(want)) {
					t.Errorf("%s: expected %s, got %s", field, want, got)
				}
			}
			check("effective retail", m.EffectiveRetail, tt.wantEffective)
			check("gross margin", m.GrossMargin, tt.wantMargin)
			check("gross margin pct", m.GrossMarginPct, tt.wantMarginPct)
			check("break-even discount", m.BreakEvenDiscountPct, tt.wantBreakEvenPc)
		})
	}
}
