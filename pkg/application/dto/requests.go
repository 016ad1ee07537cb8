package dto

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/vsinha/prodplan/pkg/domain/entities"
)

// DateLayout is the calendar date format used by requests
const DateLayout = "2006-01-02"

var validate = validator.New()

// NodeInput is one BOM node of a rollup request
type NodeInput struct {
	ID            string          `json:"id" validate:"required"`
	ComponentCode string          `json:"component_code"`
	ParentID      string          `json:"parent_id,omitempty"`
	Quantity      decimal.Decimal `json:"quantity"`
	// ScrapFactor defaults to 1.0 when omitted
	ScrapFactor *decimal.Decimal `json:"scrap_factor,omitempty"`
	IsAssembly  bool             `json:"is_assembly"`
}

// ComponentInput is one component master record
type ComponentInput struct {
	Code         string          `json:"code" validate:"required"`
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	LeadTimeDays int             `json:"lead_time_days"`
	MinStock     int64           `json:"min_stock"`
	SupplierRef  string          `json:"supplier_ref"`
}

// InventoryInput is one inventory position. "code" is accepted for
// component_code.
type InventoryInput struct {
	ComponentCode string `json:"component_code" validate:"required"`
	QtyOnHand     int64  `json:"qty_on_hand"`
	QtyReserved   int64  `json:"qty_reserved"`
}

// ModelLineInput is a (model, component, qty) line of a standard equipment
// or flattened BOM list. "model" and "code" are accepted for model_ref and
// component_code.
type ModelLineInput struct {
	ModelRef      string          `json:"model_ref" validate:"required"`
	ComponentCode string          `json:"component_code" validate:"required"`
	Qty           decimal.Decimal `json:"qty"`
	// UnitCost costs a BOM line whose component the catalog does not know.
	// Standard equipment lines ignore it.
	UnitCost *decimal.Decimal `json:"unit_cost,omitempty"`
	Notes    string           `json:"notes,omitempty"`
}

// RollupRequest asks for the cost rollup of one revision
type RollupRequest struct {
	RevisionID string      `json:"revision_id" validate:"required"`
	ModelRef   string      `json:"model_ref,omitempty"`
	Nodes      []NodeInput `json:"nodes" validate:"required,min=1,dive"`
	// ComponentCosts maps component code to unit cost
	ComponentCosts map[string]decimal.Decimal `json:"component_costs"`
	// Components optionally supplies lead times for the critical path.
	// ComponentCosts wins where both give a cost.
	Components     []ComponentInput `json:"components,omitempty" validate:"omitempty,dive"`
	LaborFactor    *decimal.Decimal `json:"labor_factor,omitempty"`
	OverheadFactor *decimal.Decimal `json:"overhead_factor,omitempty"`
	RetailPrice    *decimal.Decimal `json:"retail_price,omitempty"`
	DiscountPct    *decimal.Decimal `json:"discount_pct,omitempty"`
}

// MRPRequest asks for a netting run over the given positions
type MRPRequest struct {
	Components      []ComponentInput `json:"components" validate:"required,min=1,dive"`
	Inventory       []InventoryInput `json:"inventory" validate:"dive"`
	AsOfDate        string           `json:"as_of_date" validate:"required,datetime=2006-01-02"`
	SnapshotVersion int64            `json:"snapshot_version" validate:"gte=0"`
}

// ReconcileRequest asks for a reconciliation of promised against built
// equipment. Components is optional when the BOM lines carry their costs.
type ReconcileRequest struct {
	Standard   []ModelLineInput `json:"standard" validate:"dive"`
	BOM        []ModelLineInput `json:"bom" validate:"dive"`
	Components []ComponentInput `json:"components,omitempty" validate:"omitempty,dive"`
}

// CommitRequest selects suggestions of an MRP run for purchase
type CommitRequest struct {
	SnapshotVersion       int64    `json:"snapshot_version" validate:"gte=0"`
	SelectedSuggestionIDs []string `json:"selected_suggestion_ids" validate:"required,min=1,dive,required"`
}

var (
	inventoryAliases = map[string]string{"code": "component_code"}
	modelLineAliases = map[string]string{"model": "model_ref", "code": "component_code"}
)

func (n *NodeInput) UnmarshalJSON(data []byte) error {
	type plain NodeInput
	return unmarshalKeys(data, (*plain)(n), nil)
}

func (c *ComponentInput) UnmarshalJSON(data []byte) error {
	type plain ComponentInput
	return unmarshalKeys(data, (*plain)(c), nil)
}

func (i *InventoryInput) UnmarshalJSON(data []byte) error {
	type plain InventoryInput
	return unmarshalKeys(data, (*plain)(i), inventoryAliases)
}

func (l *ModelLineInput) UnmarshalJSON(data []byte) error {
	type plain ModelLineInput
	return unmarshalKeys(data, (*plain)(l), modelLineAliases)
}

func (r *RollupRequest) UnmarshalJSON(data []byte) error {
	type plain RollupRequest
	return unmarshalKeys(data, (*plain)(r), nil)
}

func (r *MRPRequest) UnmarshalJSON(data []byte) error {
	type plain MRPRequest
	return unmarshalKeys(data, (*plain)(r), nil)
}

func (r *ReconcileRequest) UnmarshalJSON(data []byte) error {
	type plain ReconcileRequest
	return unmarshalKeys(data, (*plain)(r), nil)
}

func (r *CommitRequest) UnmarshalJSON(data []byte) error {
	type plain CommitRequest
	return unmarshalKeys(data, (*plain)(r), nil)
}

// Validate checks the structural shape of a request. Field invariants of
// the records themselves are left to the engines, which skip and report
// offending records.
func Validate(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	var errs []error
	for _, fe := range fieldErrs {
		errs = append(errs, &entities.ValidationError{
			Field:   fe.Namespace(),
			Message: fmt.Sprintf("failed %q constraint", fe.Tag()),
		})
	}
	return multierr.Combine(errs...)
}

// ToComponent converts the input into a component record
func (c ComponentInput) ToComponent() entities.Component {
	return entities.Component{
		Code:         entities.ComponentCode(c.Code),
		Name:         c.Name,
		Category:     c.Category,
		UnitCost:     c.UnitCost,
		LeadTimeDays: c.LeadTimeDays,
		MinStock:     entities.Quantity(c.MinStock),
		SupplierRef:  c.SupplierRef,
	}
}

func toComponents(inputs []ComponentInput) []entities.Component {
	components := make([]entities.Component, 0, len(inputs))
	for _, c := range inputs {
		components = append(components, c.ToComponent())
	}
	return components
}

// Revision returns the revision the request rolls up
func (r RollupRequest) Revision() entities.BOMRevision {
	return entities.BOMRevision{ModelRef: r.ModelRef, RevisionID: r.RevisionID, Active: true}
}

// BOMNodes converts the request nodes into BOM nodes
func (r RollupRequest) BOMNodes() []entities.BOMNode {
	nodes := make([]entities.BOMNode, 0, len(r.Nodes))
	for _, n := range r.Nodes {
		scrap := decimal.NewFromInt(1)
		if n.ScrapFactor != nil {
			scrap = *n.ScrapFactor
		}
		nodes = append(nodes, entities.BOMNode{
			ID:           n.ID,
			ComponentRef: entities.ComponentCode(n.ComponentCode),
			ParentID:     n.ParentID,
			Quantity:     n.Quantity,
			ScrapFactor:  scrap,
			IsAssembly:   n.IsAssembly,
		})
	}
	return nodes
}

// Catalog merges Components and ComponentCosts into a component index.
// A code listed twice in Components is reported as a ValidationError and
// the first record is kept.
func (r RollupRequest) Catalog() (entities.ComponentIndex, error) {
	catalog, err := entities.IndexComponents(toComponents(r.Components))
	for code, cost := range r.ComponentCosts {
		c := catalog[entities.ComponentCode(code)]
		c.Code = entities.ComponentCode(code)
		c.UnitCost = cost
		catalog[c.Code] = c
	}
	return catalog, err
}

// ComponentRecords converts the request component master
func (r MRPRequest) ComponentRecords() []entities.Component {
	return toComponents(r.Components)
}

// Snapshot converts the request inventory into a snapshot
func (r MRPRequest) Snapshot() (*entities.InventorySnapshot, error) {
	asOf, err := r.AsOf()
	if err != nil {
		return nil, err
	}
	positions := make([]entities.InventoryPosition, 0, len(r.Inventory))
	for _, p := range r.Inventory {
		positions = append(positions, entities.InventoryPosition{
			ComponentRef: entities.ComponentCode(p.ComponentCode),
			QtyOnHand:    entities.Quantity(p.QtyOnHand),
			QtyReserved:  entities.Quantity(p.QtyReserved),
			AsOf:         asOf,
		})
	}
	return &entities.InventorySnapshot{
		Version:   entities.SnapshotVersion(r.SnapshotVersion),
		AsOf:      asOf,
		Positions: positions,
	}, nil
}

// AsOf parses the planning date
func (r MRPRequest) AsOf() (time.Time, error) {
	asOf, err := time.Parse(DateLayout, r.AsOfDate)
	if err != nil {
		return time.Time{}, &entities.ValidationError{Field: "as_of_date", Message: "expected YYYY-MM-DD, got " + r.AsOfDate}
	}
	return asOf, nil
}

// StandardEntries converts the promised equipment lines
func (r ReconcileRequest) StandardEntries() []entities.StandardEquipmentEntry {
	entries := make([]entities.StandardEquipmentEntry, 0, len(r.Standard))
	for _, l := range r.Standard {
		entries = append(entries, entities.StandardEquipmentEntry{
			ModelRef:     l.ModelRef,
			ComponentRef: entities.ComponentCode(l.ComponentCode),
			Qty:          l.Qty,
			Notes:        l.Notes,
		})
	}
	return entries
}

// BOMLines converts the flattened BOM lines with the costs they carry
func (r ReconcileRequest) BOMLines() []entities.BOMLine {
	lines := make([]entities.BOMLine, 0, len(r.BOM))
	for _, l := range r.BOM {
		line := entities.BOMLine{
			ModelRef:     l.ModelRef,
			ComponentRef: entities.ComponentCode(l.ComponentCode),
			Qty:          l.Qty,
		}
		if l.UnitCost != nil {
			line.UnitCost = decimal.NewNullDecimal(*l.UnitCost)
		}
		lines = append(lines, line)
	}
	return lines
}

// Catalog indexes the request components. Duplicate codes are reported
// as ValidationErrors and the first record is kept.
func (r ReconcileRequest) Catalog() (entities.ComponentIndex, error) {
	return entities.IndexComponents(toComponents(r.Components))
}
