package entities

import (
	"encoding/json"
	"testing"
)

func TestClassifyStock(t *testing.T) {
	testCases := []struct {
		name      string
		available Quantity
		minStock  Quantity
		want      RequirementStatus
	}{
		{"nothing available", 0, 5, StatusCritical},
		{"negative available", -3, 5, StatusCritical},
		{"zero policy still critical at zero", 0, 0, StatusCritical},
		{"below min", 5, 10, StatusReorder},
		{"at min", 10, 10, StatusLow},
		{"just below 1.5x", 14, 10, StatusLow},
		{"at 1.5x", 15, 10, StatusOK},
		{"odd min stock below band", 4, 3, StatusLow},
		{"odd min stock at band", 5, 3, StatusOK},
		{"zero policy with stock", 1, 0, StatusOK},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyStock(tc.available, tc.minStock); got != tc.want {
				t.Errorf("ClassifyStock(%d, %d) = %s, want %s", tc.available, tc.minStock, got, tc.want)
			}
		})
	}
}

func TestClassifyStock_MonotonicInAvailable(t *testing.T) {
	for minStock := Quantity(0); minStock <= 40; minStock++ {
		prev := ClassifyStock(-10, minStock)
		for available := Quantity(-9); available <= 100; available++ {
			cur := ClassifyStock(available, minStock)
			if cur > prev {
				t.Fatalf("severity increased from %s to %s at available=%d minStock=%d", prev, cur, available, minStock)
			}
			if net := NetRequirement(available, minStock); net < 0 {
				t.Fatalf("negative net requirement %d at available=%d minStock=%d", net, available, minStock)
			}
			prev = cur
		}
	}
}

func TestNetRequirement(t *testing.T) {
	if got := NetRequirement(5, 10); got != 5 {
		t.Errorf("Expected 5, got %d", got)
	}
	if got := NetRequirement(-2, 10); got != 12 {
		t.Errorf("Expected 12, got %d", got)
	}
	if got := NetRequirement(30, 10); got != 0 {
		t.Errorf("Expected 0, got %d", got)
	}
}

func TestRequirementStatus_Text(t *testing.T) {
	data, err := json.Marshal(map[string]RequirementStatus{"s": StatusReorder})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"s":"REORDER"}` {
		t.Errorf("Unexpected JSON %s", data)
	}

	var decoded map[string]RequirementStatus
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["s"] != StatusReorder {
		t.Errorf("Expected REORDER, got %s", decoded["s"])
	}

	if _, err := ParseRequirementStatus("MAYBE"); err == nil {
		t.Error("Expected error for unknown status")
	}
}
