package entities

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestBOMNode_Validation(t *testing.T) {
	one := decimal.NewFromInt(1)

	validNode, err := NewBOMNode("N1", "HULL-PANEL", "", decimal.NewFromInt(2), one, false)
	if err != nil {
		t.Fatalf("Expected valid node creation to succeed: %v", err)
	}
	if !validNode.IsRoot() {
		t.Error("Expected node without parent to be a root")
	}

	testCases := []struct {
		name        string
		id          string
		component   ComponentCode
		parentID    string
		quantity    decimal.Decimal
		scrap       decimal.Decimal
		isAssembly  bool
		expectError string
	}{
		{"empty id", "", "C1", "", one, one, false, "validation error (component C1): node id cannot be empty"},
		{"self parent", "N1", "C1", "N1", one, one, false, "validation error (node N1): node cannot be its own parent"},
		{"leaf without component", "N1", "", "", one, one, false, "validation error (node N1): leaf node must reference a component"},
		{"zero quantity", "N1", "C1", "", decimal.Zero, one, false, "validation error (node N1, component C1): quantity must be positive, got 0"},
		{"negative quantity", "N1", "C1", "", decimal.NewFromInt(-1), one, false, "validation error (node N1, component C1): quantity must be positive, got -1"},
		{"scrap below one", "N1", "C1", "", one, decimal.RequireFromString("0.5"), false, "validation error (node N1, component C1): scrap factor must be at least 1.0, got 0.5"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewBOMNode(tc.id, tc.component, tc.parentID, tc.quantity, tc.scrap, tc.isAssembly)
			if err == nil {
				t.Fatalf("Expected error for %s, but got none", tc.name)
			}
			if err.Error() != tc.expectError {
				t.Errorf("Expected error '%s', got '%s'", tc.expectError, err.Error())
			}
		})
	}

	// Grouping assemblies may omit the component
	if _, err := NewBOMNode("ASM", "", "", one, one, true); err != nil {
		t.Errorf("Expected grouping assembly without component to be valid: %v", err)
	}
}

func TestBOMNode_ExtendedCost(t *testing.T) {
	node := BOMNode{
		ID:          "N1",
		Quantity:    decimal.NewFromInt(4),
		ScrapFactor: decimal.RequireFromString("1.08"),
	}

	got := node.ExtendedCost(decimal.RequireFromString("137.5"))
	want := decimal.RequireFromString("594")
	if !got.Equal(want) {
		t.Errorf("Expected extended cost %s, got %s", want, got)
	}
}

func TestBOMLine_Validation(t *testing.T) {
	line := BOMLine{ModelRef: "D28CC", ComponentRef: "PUMP-BILGE", Qty: decimal.NewFromInt(2), UnitCost: decimal.NewNullDecimal(decimal.NewFromInt(-5))}
	err := line.Validate()
	if err == nil {
		t.Fatal("Expected error for negative unit cost")
	}
	if err.Error() != "validation error (model D28CC, component PUMP-BILGE): unit cost cannot be negative, got -5" {
		t.Errorf("Unexpected error: %s", err.Error())
	}

	line.UnitCost = decimal.NewNullDecimal(decimal.NewFromInt(5))
	if err := line.Validate(); err != nil {
		t.Errorf("Expected valid line, got %v", err)
	}

	line.UnitCost = decimal.NullDecimal{}
	if err := line.Validate(); err != nil {
		t.Errorf("Expected line without its own cost to be valid, got %v", err)
	}
}
