package services

import (
	"fmt"
	"sort"

	"github.com/vsinha/prodplan/pkg/domain/entities"
)

// BOMValidator provides validation for BOM structure integrity
type BOMValidator struct{}

// NewBOMValidator creates a new BOM validator
func NewBOMValidator() *BOMValidator {
	return &BOMValidator{}
}

// ValidationResult contains the results of BOM validation
type ValidationResult struct {
	// Excluded holds nodes left out of any computation: invalid nodes and
	// everything below them.
	Excluded map[string]bool
	// Problems are per-node errors that do not abort the revision
	Problems []error
	// Fatal is set when the arena cannot be traversed at all
	Fatal     error
	CyclePath []string
}

// HasFatal reports whether the arena is unusable
func (r *ValidationResult) HasFatal() bool {
	return r.Fatal != nil
}

// ValidateNodes checks a revision's flat node arena: per-node invariants,
// duplicate ids, parents that do not exist and parent links that loop.
func (v *BOMValidator) ValidateNodes(nodes []entities.BOMNode) *ValidationResult {
	result := &ValidationResult{
		Excluded: make(map[string]bool),
		Problems: make([]error, 0),
	}

	byID := make(map[string]entities.BOMNode, len(nodes))
	for _, node := range nodes {
		if node.ID == "" {
			result.Problems = append(result.Problems, node.Validate())
			continue
		}
		if _, exists := byID[node.ID]; exists {
			result.Problems = append(result.Problems, &entities.ValidationError{
				NodeID:       node.ID,
				ComponentRef: node.ComponentRef,
				Field:        "id",
				Message:      "duplicate node id",
			})
			continue
		}
		byID[node.ID] = node
		if err := node.Validate(); err != nil {
			result.Problems = append(result.Problems, err)
			result.Excluded[node.ID] = true
		}
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	// Dangling parents
	for _, id := range ids {
		node := byID[id]
		if node.IsRoot() {
			continue
		}
		if _, exists := byID[node.ParentID]; !exists {
			result.Fatal = &entities.MissingReferenceError{
				NodeID:       node.ID,
				ComponentRef: node.ComponentRef,
				ParentID:     node.ParentID,
			}
			return result
		}
	}

	// Cycles
	if path := v.detectCycle(ids, byID); path != nil {
		result.CyclePath = path
		result.Fatal = &entities.CycleDetectedError{NodeID: path[len(path)-1]}
		return result
	}

	// Everything under an excluded node is unreachable for costing
	for _, id := range ids {
		if v.hasExcludedAncestor(id, byID, result.Excluded) {
			result.Excluded[id] = true
		}
	}

	return result
}

// detectCycle walks every node's parent chain with a visited set. The
// returned path ends with the node that was reached twice.
func (v *BOMValidator) detectCycle(ids []string, byID map[string]entities.BOMNode) []string {
	const (
		unvisited = iota
		onPath
		acyclic
	)
	state := make(map[string]int, len(ids))

	for _, start := range ids {
		if state[start] == acyclic {
			continue
		}
		path := make([]string, 0)
		current := start
		for {
			if state[current] == acyclic {
				break
			}
			if state[current] == onPath {
				return append(path, current)
			}
			state[current] = onPath
			path = append(path, current)
			node := byID[current]
			if node.IsRoot() {
				break
			}
			current = node.ParentID
		}
		for _, id := range path {
			state[id] = acyclic
		}
	}
	return nil
}

func (v *BOMValidator) hasExcludedAncestor(id string, byID map[string]entities.BOMNode, excluded map[string]bool) bool {
	for current := byID[id]; !current.IsRoot(); current = byID[current.ParentID] {
		if excluded[current.ParentID] {
			return true
		}
	}
	return false
}

// ValidateRevisions checks that each model has at most one active revision
func (v *BOMValidator) ValidateRevisions(revisions []entities.BOMRevision) error {
	active := make(map[string]string)
	for _, rev := range revisions {
		if !rev.Active {
			continue
		}
		if other, exists := active[rev.ModelRef]; exists {
			return &entities.ValidationError{
				ModelRef: rev.ModelRef,
				Field:    "active",
				Message:  fmt.Sprintf("revisions %s and %s are both active", other, rev.RevisionID),
			}
		}
		active[rev.ModelRef] = rev.RevisionID
	}
	return nil
}
