package entities

import (
	"time"

	"github.com/google/uuid"
)

// RunKind names the engine that produced a run
type RunKind string

const (
	RunKindRollup         RunKind = "rollup"
	RunKindMRP            RunKind = "mrp"
	RunKindReconciliation RunKind = "reconciliation"
)

// RunMeta identifies an immutable computation result. Results are passed
// or archived explicitly rather than held as mutable state.
type RunMeta struct {
	RunID           string          `json:"run_id"`
	Kind            RunKind         `json:"kind"`
	SnapshotVersion SnapshotVersion `json:"snapshot_version"`
	ComputedAt      time.Time       `json:"computed_at"`
}

// NewRunMeta stamps a new run
func NewRunMeta(kind RunKind, version SnapshotVersion, computedAt time.Time) RunMeta {
	return RunMeta{
		RunID:           uuid.NewString(),
		Kind:            kind,
		SnapshotVersion: version,
		ComputedAt:      computedAt.UTC(),
	}
}
