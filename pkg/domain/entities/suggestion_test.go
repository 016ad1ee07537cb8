package entities

import (
	"errors"
	"testing"
)

func TestSuggestionID_Deterministic(t *testing.T) {
	a := SuggestionID("HULL-PANEL", 3, 5, 20)
	b := SuggestionID("HULL-PANEL", 3, 5, 20)
	if a != b {
		t.Errorf("Expected identical ids, got %s and %s", a, b)
	}
	if a == SuggestionID("HULL-PANEL", 3, 4, 20) {
		t.Error("Expected id to change with available stock")
	}
	if a == SuggestionID("HULL-PANEL", 3, 5, 21) {
		t.Error("Expected id to change with suggested quantity")
	}
	if a == SuggestionID("HULL-PANEL-2", 3, 5, 20) {
		t.Error("Expected id to change with component")
	}
	if a == SuggestionID("HULL-PANEL", 4, 5, 20) {
		t.Error("Expected id to change with position epoch")
	}
}

func TestInventoryPosition_SameStock(t *testing.T) {
	p := InventoryPosition{ComponentRef: "CLEAT", QtyOnHand: 25, QtyReserved: 10, Epoch: 1}
	if !p.SameStock(InventoryPosition{ComponentRef: "CLEAT", QtyOnHand: 25, QtyReserved: 10, Epoch: 4}) {
		t.Error("Expected equal quantities to be the same stock")
	}
	if p.SameStock(InventoryPosition{ComponentRef: "CLEAT", QtyOnHand: 25, QtyReserved: 9}) {
		t.Error("Expected reserved change to differ")
	}
}

func TestErrors_FatalClassification(t *testing.T) {
	testCases := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"validation", &ValidationError{Message: "bad"}, false},
		{"cycle", &CycleDetectedError{NodeID: "N1"}, true},
		{"missing", &MissingReferenceError{NodeID: "N1", ComponentRef: "X"}, true},
		{"duplicate", &DuplicateEntryError{Source: "bom", ModelRef: "M", ComponentRef: "X"}, true},
		{"stale", &StaleSnapshotError{Expected: 1, Current: 2}, true},
		{"consumed", &AlreadyConsumedError{SuggestionIDs: []string{"a"}}, true},
		{"nil", nil, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsFatal(tc.err); got != tc.fatal {
				t.Errorf("IsFatal = %v, want %v", got, tc.fatal)
			}
		})
	}

	if !errors.Is(&StaleSnapshotError{Expected: 1, Current: 2}, ErrStaleSnapshot) {
		t.Error("Expected StaleSnapshotError to match ErrStaleSnapshot")
	}
	if !errors.Is(&AlreadyConsumedError{}, ErrAlreadyConsumed) {
		t.Error("Expected AlreadyConsumedError to match ErrAlreadyConsumed")
	}
}

func TestErrors_IdentifyOffendingRow(t *testing.T) {
	err := &MissingReferenceError{NodeID: "N7", ComponentRef: "GHOST"}
	if err.Error() != "missing reference (node N7): unknown component GHOST" {
		t.Errorf("Unexpected message: %s", err.Error())
	}

	parentErr := &MissingReferenceError{NodeID: "N8", ParentID: "N99"}
	if parentErr.Error() != "missing reference (node N8): unknown parent node N99" {
		t.Errorf("Unexpected message: %s", parentErr.Error())
	}
}
