package testing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vsinha/prodplan/pkg/domain/entities"
	"github.com/vsinha/prodplan/pkg/infrastructure/repositories/memory"
)

// AsOf is the planning date used by every fixture
var AsOf = time.Date(2025, 3, 3, 9, 30, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// D28CCComponents returns the component master of the D28CC center console
// model
func D28CCComponents() []entities.Component {
	return []entities.Component{
		{Code: "HULL-ASSY", Name: "Hull assembly", Category: "assembly", UnitCost: decimal.Zero, LeadTimeDays: 5, MinStock: 0, SupplierRef: "IN-HOUSE"},
		{Code: "STRINGER-ALU", Name: "Aluminium stringer", Category: "structure", UnitCost: dec("137.5"), LeadTimeDays: 14, MinStock: 10, SupplierRef: "ALUFAB"},
		{Code: "ENGINE-MOUNT", Name: "Engine mount", Category: "propulsion", UnitCost: dec("510"), LeadTimeDays: 21, MinStock: 4, SupplierRef: "MARINEPWR"},
		{Code: "WIRING-HARNESS", Name: "Main wiring harness", Category: "electrical", UnitCost: dec("245"), LeadTimeDays: 10, MinStock: 2, SupplierRef: "MARINEPWR"},
		{Code: "UPH-SILVERTEX", Name: "Silvertex upholstery set", Category: "interior", UnitCost: dec("420"), LeadTimeDays: 30, MinStock: 2, SupplierRef: "SILVERTEX"},
		{Code: "PUMP-BILGE", Name: "Bilge pump 1100gph", Category: "plumbing", UnitCost: dec("89.5"), LeadTimeDays: 7, MinStock: 5, SupplierRef: "RULE"},
		{Code: "CLEAT-SS", Name: "Stainless cleat 8in", Category: "hardware", UnitCost: dec("18.75"), LeadTimeDays: 3, MinStock: 20, SupplierRef: "SEADOG"},
	}
}

// ScenarioDRevision returns a hull assembly whose three leaves extend to
// 594.0, 1101.6 and 1097.6, rolling up to 2793.2
func ScenarioDRevision() (entities.BOMRevision, []entities.BOMNode) {
	rev := entities.BOMRevision{
		ModelRef:      "HULL",
		RevisionID:    "HULL-2025",
		EffectiveDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Active:        true,
	}
	return rev, []entities.BOMNode{
		{ID: "N1", ComponentRef: "HULL-ASSY", Quantity: dec("1"), ScrapFactor: dec("1"), IsAssembly: true},
		{ID: "N2", ComponentRef: "STRINGER-ALU", ParentID: "N1", Quantity: dec("4"), ScrapFactor: dec("1.08")},
		{ID: "N3", ComponentRef: "ENGINE-MOUNT", ParentID: "N1", Quantity: dec("2"), ScrapFactor: dec("1.08")},
		{ID: "N4", ComponentRef: "WIRING-HARNESS", ParentID: "N1", Quantity: dec("4"), ScrapFactor: dec("1.12")},
	}
}

// D28CCRevision returns the active D28CC BOM: the Scenario D hull plus a
// deck sub-assembly
func D28CCRevision() (entities.BOMRevision, []entities.BOMNode) {
	_, hull := ScenarioDRevision()
	rev := entities.BOMRevision{
		ModelRef:      "D28CC",
		RevisionID:    "D28CC-B",
		EffectiveDate: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		Active:        true,
	}
	nodes := append(hull,
		entities.BOMNode{ID: "N5", ParentID: "N1", Quantity: dec("1"), ScrapFactor: dec("1"), IsAssembly: true},
		entities.BOMNode{ID: "N6", ComponentRef: "PUMP-BILGE", ParentID: "N5", Quantity: dec("2"), ScrapFactor: dec("1")},
		entities.BOMNode{ID: "N7", ComponentRef: "CLEAT-SS", ParentID: "N5", Quantity: dec("6"), ScrapFactor: dec("1")},
	)
	return rev, nodes
}

// D28CCStandardEquipment returns the promised equipment of the D28CC. The
// upholstery is promised but not built, the bilge pump is built but not
// promised and the cleat count disagrees.
func D28CCStandardEquipment() []entities.StandardEquipmentEntry {
	return []entities.StandardEquipmentEntry{
		{ModelRef: "D28CC", ComponentRef: "STRINGER-ALU", Qty: dec("4")},
		{ModelRef: "D28CC", ComponentRef: "ENGINE-MOUNT", Qty: dec("2")},
		{ModelRef: "D28CC", ComponentRef: "WIRING-HARNESS", Qty: dec("4")},
		{ModelRef: "D28CC", ComponentRef: "UPH-SILVERTEX", Qty: dec("1"), Notes: "Silvertex helm seat"},
		{ModelRef: "D28CC", ComponentRef: "CLEAT-SS", Qty: dec("8")},
	}
}

// D28CCInventory returns positions covering every MRP status
func D28CCInventory() []entities.InventoryPosition {
	return []entities.InventoryPosition{
		{ComponentRef: "STRINGER-ALU", QtyOnHand: 30, AsOf: AsOf},
		{ComponentRef: "ENGINE-MOUNT", QtyOnHand: 3, AsOf: AsOf},
		{ComponentRef: "WIRING-HARNESS", QtyOnHand: 0, AsOf: AsOf},
		{ComponentRef: "UPH-SILVERTEX", QtyOnHand: 3, AsOf: AsOf},
		{ComponentRef: "PUMP-BILGE", QtyOnHand: 6, AsOf: AsOf},
		{ComponentRef: "CLEAT-SS", QtyOnHand: 25, QtyReserved: 10, AsOf: AsOf},
	}
}

// ScenarioA returns a component that nets to REORDER: available 5 against
// a minimum of 10
func ScenarioA() (entities.Component, entities.InventoryPosition) {
	return entities.Component{Code: "FILTER-FUEL", Name: "Fuel filter", UnitCost: dec("12.5"), LeadTimeDays: 14, MinStock: 10, SupplierRef: "RACOR"},
		entities.InventoryPosition{ComponentRef: "FILTER-FUEL", QtyOnHand: 20, QtyReserved: 15, AsOf: AsOf}
}

// ScenarioB returns a component that nets to CRITICAL: nothing on hand
func ScenarioB() (entities.Component, entities.InventoryPosition) {
	return entities.Component{Code: "IMPELLER-RAW", Name: "Raw water impeller", UnitCost: dec("38"), LeadTimeDays: 5, MinStock: 5, SupplierRef: "JOHNSON"},
		entities.InventoryPosition{ComponentRef: "IMPELLER-RAW", QtyOnHand: 0, QtyReserved: 0, AsOf: AsOf}
}

// Repositories bundles in-memory repositories loaded with the D28CC data
type Repositories struct {
	Components *memory.ComponentRepository
	BOMs       *memory.BOMRepository
	Standard   *memory.StandardEquipmentRepository
	Inventory  *memory.InventoryRepository
	Batches    *memory.PurchaseBatchRepository
}

// BuildD28CCRepositories loads the D28CC model into memory repositories.
// The inventory ends at snapshot version 1.
func BuildD28CCRepositories(ctx context.Context) (*Repositories, error) {
	repos := &Repositories{
		Components: memory.NewComponentRepository(8),
		BOMs:       memory.NewBOMRepository(2),
		Standard:   memory.NewStandardEquipmentRepository(),
		Inventory:  memory.NewInventoryRepository(),
	}
	repos.Batches = memory.NewPurchaseBatchRepository(repos.Inventory)

	components := D28CCComponents()
	ptrs := make([]*entities.Component, 0, len(components))
	for i := range components {
		ptrs = append(ptrs, &components[i])
	}
	if err := repos.Components.LoadComponents(ptrs); err != nil {
		return nil, err
	}

	rev, nodes := D28CCRevision()
	if err := repos.BOMs.LoadRevision(rev, nodes); err != nil {
		return nil, err
	}
	hullRev, hullNodes := ScenarioDRevision()
	if err := repos.BOMs.LoadRevision(hullRev, hullNodes); err != nil {
		return nil, err
	}

	if err := repos.Standard.LoadEntries(D28CCStandardEquipment()); err != nil {
		return nil, err
	}
	if _, err := repos.Inventory.LoadPositions(ctx, D28CCInventory()); err != nil {
		return nil, err
	}
	return repos, nil
}
