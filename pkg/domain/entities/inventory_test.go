package entities

import (
	"testing"
	"time"
)

func TestInventoryPosition_Validation(t *testing.T) {
	asOf := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	validPos, err := NewInventoryPosition("HULL-PANEL", 20, 15, asOf)
	if err != nil {
		t.Fatalf("Expected valid position creation to succeed: %v", err)
	}
	if validPos.Available() != 5 {
		t.Errorf("Expected available 5, got %d", validPos.Available())
	}

	testCases := []struct {
		name        string
		component   ComponentCode
		onHand      Quantity
		reserved    Quantity
		expectError string
	}{
		{"empty component", "", 1, 0, "validation error: component code cannot be empty"},
		{"negative on hand", "C1", -1, 0, "validation error (component C1): on-hand quantity cannot be negative"},
		{"negative reserved", "C1", 1, -1, "validation error (component C1): reserved quantity cannot be negative"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewInventoryPosition(tc.component, tc.onHand, tc.reserved, asOf)
			if err == nil {
				t.Fatalf("Expected error for %s, but got none", tc.name)
			}
			if err.Error() != tc.expectError {
				t.Errorf("Expected error '%s', got '%s'", tc.expectError, err.Error())
			}
		})
	}
}

func TestInventoryPosition_OverReserved(t *testing.T) {
	// Reserved above on-hand is tolerated and yields negative availability
	pos, err := NewInventoryPosition("C1", 3, 5, time.Now())
	if err != nil {
		t.Fatalf("Expected over-reserved position to be accepted: %v", err)
	}
	if pos.Available() != -2 {
		t.Errorf("Expected available -2, got %d", pos.Available())
	}
}
