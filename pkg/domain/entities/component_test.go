package entities

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

func TestIndexComponents_ReportsDuplicates(t *testing.T) {
	idx, err := IndexComponents([]Component{
		{Code: "CLEAT-SS", UnitCost: decimal.RequireFromString("18.75")},
		{Code: "WINCH", UnitCost: decimal.NewFromInt(450)},
		{Code: "CLEAT-SS", UnitCost: decimal.NewFromInt(99)},
	})

	if len(idx) != 2 {
		t.Fatalf("Expected 2 indexed components, got %d", len(idx))
	}
	cleat, _ := idx.Lookup("CLEAT-SS")
	if !cleat.UnitCost.Equal(decimal.RequireFromString("18.75")) {
		t.Errorf("Expected the first CLEAT-SS record to win, got cost %s", cleat.UnitCost)
	}

	errs := multierr.Errors(err)
	if len(errs) != 1 {
		t.Fatalf("Expected 1 error, got %v", err)
	}
	var validation *ValidationError
	if !errors.As(errs[0], &validation) || validation.ComponentRef != "CLEAT-SS" || validation.Field != "code" {
		t.Errorf("Expected duplicate code validation error for CLEAT-SS, got %v", errs[0])
	}
	if IsFatal(err) {
		t.Error("Expected duplicate catalog codes to be non-fatal")
	}
}

func TestNewComponentIndex_FirstWins(t *testing.T) {
	idx := NewComponentIndex([]Component{
		{Code: "WINCH", SupplierRef: "LEWMAR"},
		{Code: "WINCH", SupplierRef: "HARKEN"},
	})
	if c, _ := idx.Lookup("WINCH"); c.SupplierRef != "LEWMAR" {
		t.Errorf("Expected LEWMAR, got %s", c.SupplierRef)
	}
}
