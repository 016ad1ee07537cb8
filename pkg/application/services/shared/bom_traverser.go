package shared

import (
	"context"
	"sort"

	"github.com/vsinha/prodplan/pkg/domain/entities"
)

// Arena is a flat BOM keyed by node id with explicit parent links.
// Children and roots are kept sorted by id so every walk is deterministic.
type Arena struct {
	nodes    map[string]entities.BOMNode
	children map[string][]string
	roots    []string
	parents  map[string]bool
}

// NewArena indexes nodes, leaving out any id in excluded. The first node
// with a given id wins; duplicates are the validator's concern.
func NewArena(nodes []entities.BOMNode, excluded map[string]bool) *Arena {
	a := &Arena{
		nodes:    make(map[string]entities.BOMNode, len(nodes)),
		children: make(map[string][]string),
		parents:  make(map[string]bool),
	}
	for _, n := range nodes {
		if !n.IsRoot() {
			a.parents[n.ParentID] = true
		}
		if n.ID == "" || excluded[n.ID] {
			continue
		}
		if _, exists := a.nodes[n.ID]; exists {
			continue
		}
		a.nodes[n.ID] = n
	}
	for id, n := range a.nodes {
		if n.IsRoot() {
			a.roots = append(a.roots, id)
			continue
		}
		a.children[n.ParentID] = append(a.children[n.ParentID], id)
	}
	sort.Strings(a.roots)
	for _, ids := range a.children {
		sort.Strings(ids)
	}
	return a
}

// Node returns the node with the given id
func (a *Arena) Node(id string) (entities.BOMNode, bool) {
	n, ok := a.nodes[id]
	return n, ok
}

// Roots returns the ids of nodes without a parent
func (a *Arena) Roots() []string {
	return a.roots
}

// Children returns the ids of the direct children of a node
func (a *Arena) Children(id string) []string {
	return a.children[id]
}

// IsLeaf reports whether no node names id as its parent. Excluded
// children still count, so an assembly never turns into a leaf.
func (a *Arena) IsLeaf(id string) bool {
	return !a.parents[id]
}

// Len returns the number of nodes in the arena
func (a *Arena) Len() int {
	return len(a.nodes)
}

// NodeContext provides context information during BOM traversal
type NodeContext struct {
	Node entities.BOMNode
	// Component is nil for a grouping assembly that references no component
	// or when the traverser has no catalog.
	Component *entities.Component
	Level     int
}

// NodeVisitor defines the interface for processing nodes during BOM traversal
type NodeVisitor interface {
	// VisitNode is called for each node in the BOM structure
	// Returns data to be passed to children and whether to continue traversal
	VisitNode(ctx context.Context, nodeCtx NodeContext) (interface{}, bool, error)

	// ProcessChildren is called after visiting all children
	// Receives the node context, data from VisitNode, and results from children
	ProcessChildren(
		ctx context.Context,
		nodeCtx NodeContext,
		nodeData interface{},
		childResults []interface{},
	) (interface{}, error)
}

// BOMTraverser walks an arena depth-first, post-order
type BOMTraverser struct {
	arena   *Arena
	catalog entities.Catalog
}

// NewBOMTraverser creates a new BOM traverser. catalog may be nil when the
// visitor does not need component master data.
func NewBOMTraverser(arena *Arena, catalog entities.Catalog) *BOMTraverser {
	return &BOMTraverser{
		arena:   arena,
		catalog: catalog,
	}
}

// TraverseAll traverses every root in id order
func (bt *BOMTraverser) TraverseAll(ctx context.Context, visitor NodeVisitor) ([]interface{}, error) {
	results := make([]interface{}, 0, len(bt.arena.Roots()))
	for _, id := range bt.arena.Roots() {
		result, err := bt.TraverseBOM(ctx, id, visitor)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

// TraverseBOM traverses the subtree rooted at nodeID using the visitor pattern
func (bt *BOMTraverser) TraverseBOM(ctx context.Context, nodeID string, visitor NodeVisitor) (interface{}, error) {
	return bt.traverse(ctx, nodeID, 0, make(map[string]bool), visitor)
}

func (bt *BOMTraverser) traverse(
	ctx context.Context,
	nodeID string,
	level int,
	visiting map[string]bool,
	visitor NodeVisitor,
) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if visiting[nodeID] {
		return nil, &entities.CycleDetectedError{NodeID: nodeID}
	}

	node, ok := bt.arena.Node(nodeID)
	if !ok {
		return nil, &entities.MissingReferenceError{NodeID: nodeID, ParentID: nodeID}
	}

	nodeCtx := NodeContext{Node: node, Level: level}
	if bt.catalog != nil && node.ComponentRef != "" {
		component, found := bt.catalog.Lookup(node.ComponentRef)
		if !found {
			return nil, &entities.MissingReferenceError{NodeID: node.ID, ComponentRef: node.ComponentRef}
		}
		nodeCtx.Component = &component
	}

	nodeData, shouldContinue, err := visitor.VisitNode(ctx, nodeCtx)
	if err != nil {
		return nil, err
	}
	if !shouldContinue {
		return visitor.ProcessChildren(ctx, nodeCtx, nodeData, nil)
	}

	visiting[nodeID] = true
	defer delete(visiting, nodeID)

	children := bt.arena.Children(nodeID)
	childResults := make([]interface{}, 0, len(children))
	for _, childID := range children {
		childResult, err := bt.traverse(ctx, childID, level+1, visiting, visitor)
		if err != nil {
			return nil, err
		}
		childResults = append(childResults, childResult)
	}

	return visitor.ProcessChildren(ctx, nodeCtx, nodeData, childResults)
}

// LeafCollector is a visitor that gathers leaf nodes in traversal order
type LeafCollector struct {
	arena  *Arena
	Leaves []entities.BOMNode
}

// NewLeafCollector creates a collector bound to an arena
func NewLeafCollector(arena *Arena) *LeafCollector {
	return &LeafCollector{arena: arena}
}

// VisitNode records leaves
func (c *LeafCollector) VisitNode(_ context.Context, nodeCtx NodeContext) (interface{}, bool, error) {
	if c.arena.IsLeaf(nodeCtx.Node.ID) {
		c.Leaves = append(c.Leaves, nodeCtx.Node)
		return nil, false, nil
	}
	return nil, true, nil
}

// ProcessChildren is a no-op for leaf collection
func (c *LeafCollector) ProcessChildren(context.Context, NodeContext, interface{}, []interface{}) (interface{}, error) {
	return nil, nil
}
