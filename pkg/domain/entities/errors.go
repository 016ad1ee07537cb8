package entities

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrStaleSnapshot is returned when a commit was computed against an
	// inventory snapshot version that is no longer current.
	ErrStaleSnapshot = errors.New("stale inventory snapshot")
	// ErrAlreadyConsumed is returned when a commit selects suggestions that
	// an earlier commit already turned into a purchase batch.
	ErrAlreadyConsumed = errors.New("suggestion already consumed")
)

// ValidationError reports a record that violates a field invariant. The
// offending record is excluded; the computation continues.
type ValidationError struct {
	NodeID       string
	ComponentRef ComponentCode
	ModelRef     string
	Field        string
	Message      string
}

func (e *ValidationError) Error() string {
	return "validation error" + locate(e.NodeID, e.ComponentRef, e.ModelRef) + ": " + e.Message
}

// CycleDetectedError aborts a rollup whose parent links loop back
type CycleDetectedError struct {
	NodeID string
}

func (e *CycleDetectedError) Error() string {
	return fmt.Sprintf("cycle detected at node %s", e.NodeID)
}

// MissingReferenceError reports a line that names a component (or parent
// node) that does not exist.
type MissingReferenceError struct {
	NodeID       string
	ComponentRef ComponentCode
	ModelRef     string
	ParentID     string
}

func (e *MissingReferenceError) Error() string {
	if e.ParentID != "" {
		return fmt.Sprintf("missing reference%s: unknown parent node %s", locate(e.NodeID, "", e.ModelRef), e.ParentID)
	}
	return fmt.Sprintf("missing reference%s: unknown component %s", locate(e.NodeID, "", e.ModelRef), e.ComponentRef)
}

// DuplicateEntryError reports a (model, component) key that occurs more
// than once within one source list.
type DuplicateEntryError struct {
	Source       string
	ModelRef     string
	ComponentRef ComponentCode
}

func (e *DuplicateEntryError) Error() string {
	return fmt.Sprintf("duplicate %s entry for model %s component %s", e.Source, e.ModelRef, e.ComponentRef)
}

// StaleSnapshotError carries the versions involved in a rejected commit
type StaleSnapshotError struct {
	Expected SnapshotVersion
	Current  SnapshotVersion
}

func (e *StaleSnapshotError) Error() string {
	return fmt.Sprintf("stale inventory snapshot: computed against version %d, current is %d", e.Expected, e.Current)
}

func (e *StaleSnapshotError) Unwrap() error { return ErrStaleSnapshot }

// AlreadyConsumedError lists the selected suggestions that were consumed
type AlreadyConsumedError struct {
	SuggestionIDs []string
}

func (e *AlreadyConsumedError) Error() string {
	return "suggestion already consumed: " + strings.Join(e.SuggestionIDs, ", ")
}

func (e *AlreadyConsumedError) Unwrap() error { return ErrAlreadyConsumed }

// IsFatal reports whether err aborts a whole computation rather than a
// single record.
func IsFatal(err error) bool {
	var (
		cycle     *CycleDetectedError
		missing   *MissingReferenceError
		duplicate *DuplicateEntryError
	)
	switch {
	case err == nil:
		return false
	case errors.As(err, &cycle), errors.As(err, &missing), errors.As(err, &duplicate):
		return true
	case errors.Is(err, ErrStaleSnapshot), errors.Is(err, ErrAlreadyConsumed):
		return true
	}
	return false
}

func locate(nodeID string, componentRef ComponentCode, modelRef string) string {
	var parts []string
	if modelRef != "" {
		parts = append(parts, "model "+modelRef)
	}
	if nodeID != "" {
		parts = append(parts, "node "+nodeID)
	}
	if componentRef != "" {
		parts = append(parts, "component "+string(componentRef))
	}
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, ", ") + ")"
}
