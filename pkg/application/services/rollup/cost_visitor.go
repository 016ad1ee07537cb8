package rollup

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/vsinha/prodplan/pkg/application/services/shared"
	"github.com/vsinha/prodplan/pkg/domain/entities"
)

// NodeCost is the rolled-up cost and lead time of one BOM node
type NodeCost struct {
	NodeID       string                 `json:"node_id"`
	ComponentRef entities.ComponentCode `json:"component_ref,omitempty"`
	ParentID     string                 `json:"parent_id,omitempty"`
	Level        int                    `json:"level"`
	IsAssembly   bool                   `json:"is_assembly"`
	Quantity     decimal.Decimal        `json:"quantity"`
	ScrapFactor  decimal.Decimal        `json:"scrap_factor"`
	UnitCost     decimal.Decimal        `json:"unit_cost"`
	// OwnCost is quantity × unitCost × scrapFactor of the node itself
	OwnCost decimal.Decimal `json:"own_cost"`
	// ExtendedCost adds the extended cost of every child to OwnCost
	ExtendedCost           decimal.Decimal `json:"extended_cost"`
	LeadTimeDays           int             `json:"lead_time_days"`
	CumulativeLeadTimeDays int             `json:"cumulative_lead_time_days"`
	CriticalChildID        string          `json:"critical_child_id,omitempty"`
}

// CostVisitor implements NodeVisitor for cost rollup. It is not safe for
// concurrent use; each rollup gets its own visitor.
type CostVisitor struct {
	lines []NodeCost
}

// NewCostVisitor creates a new cost visitor
func NewCostVisitor() *CostVisitor {
	return &CostVisitor{}
}

// VisitNode always descends; costs are computed on the way back up
func (v *CostVisitor) VisitNode(context.Context, shared.NodeContext) (interface{}, bool, error) {
	return nil, true, nil
}

// ProcessChildren computes the node's own cost and adds its children
func (v *CostVisitor) ProcessChildren(
	_ context.Context,
	nodeCtx shared.NodeContext,
	_ interface{},
	childResults []interface{},
) (interface{}, error) {
	node := nodeCtx.Node
	cost := NodeCost{
		NodeID:       node.ID,
		ComponentRef: node.ComponentRef,
		ParentID:     node.ParentID,
		Level:        nodeCtx.Level,
		IsAssembly:   node.IsAssembly,
		Quantity:     node.Quantity,
		ScrapFactor:  node.ScrapFactor,
		UnitCost:     decimal.Zero,
		OwnCost:      decimal.Zero,
	}
	if nodeCtx.Component != nil {
		cost.UnitCost = nodeCtx.Component.UnitCost
		cost.OwnCost = node.ExtendedCost(nodeCtx.Component.UnitCost)
		cost.LeadTimeDays = nodeCtx.Component.LeadTimeDays
	}

	cost.ExtendedCost = cost.OwnCost
	longestChild := 0
	for _, r := range childResults {
		child := r.(NodeCost)
		cost.ExtendedCost = cost.ExtendedCost.Add(child.ExtendedCost)
		if cost.CriticalChildID == "" || child.CumulativeLeadTimeDays > longestChild {
			longestChild = child.CumulativeLeadTimeDays
			cost.CriticalChildID = child.NodeID
		}
	}
	cost.CumulativeLeadTimeDays = cost.LeadTimeDays + longestChild

	v.lines = append(v.lines, cost)
	return cost, nil
}

// Lines returns the costs computed so far in post-order
func (v *CostVisitor) Lines() []NodeCost {
	return v.lines
}
