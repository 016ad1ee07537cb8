package dto

import (
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/vsinha/prodplan/pkg/application/services/aggregator"
	"github.com/vsinha/prodplan/pkg/application/services/mrp"
	"github.com/vsinha/prodplan/pkg/application/services/reconcile"
	"github.com/vsinha/prodplan/pkg/application/services/rollup"
	"github.com/vsinha/prodplan/pkg/domain/entities"
)

// Error kinds
const (
	KindValidation       = "validation"
	KindCycleDetected    = "cycle_detected"
	KindMissingReference = "missing_reference"
	KindDuplicateEntry   = "duplicate_entry"
	KindStaleSnapshot    = "stale_snapshot"
	KindAlreadyConsumed  = "already_consumed"
	KindInternal         = "internal"
)

// ErrorRecord locates one problem for a human reader
type ErrorRecord struct {
	Kind          string `json:"kind"`
	Message       string `json:"message"`
	NodeID        string `json:"node_id,omitempty"`
	ComponentCode string `json:"component_code,omitempty"`
	ModelRef      string `json:"model_ref,omitempty"`
}

// ErrorRecords flattens a possibly combined error into records
func ErrorRecords(err error) []ErrorRecord {
	records := make([]ErrorRecord, 0)
	for _, e := range multierr.Errors(err) {
		records = append(records, NewErrorRecord(e))
	}
	return records
}

// NewErrorRecord classifies a single error
func NewErrorRecord(err error) ErrorRecord {
	var (
		validation *entities.ValidationError
		cycle      *entities.CycleDetectedError
		missing    *entities.MissingReferenceError
		duplicate  *entities.DuplicateEntryError
	)
	rec := ErrorRecord{Kind: KindInternal, Message: err.Error()}
	switch {
	case errors.As(err, &validation):
		rec.Kind = KindValidation
		rec.NodeID = validation.NodeID
		rec.ComponentCode = string(validation.ComponentRef)
		rec.ModelRef = validation.ModelRef
	case errors.As(err, &cycle):
		rec.Kind = KindCycleDetected
		rec.NodeID = cycle.NodeID
	case errors.As(err, &missing):
		rec.Kind = KindMissingReference
		rec.NodeID = missing.NodeID
		rec.ComponentCode = string(missing.ComponentRef)
		rec.ModelRef = missing.ModelRef
	case errors.As(err, &duplicate):
		rec.Kind = KindDuplicateEntry
		rec.ComponentCode = string(duplicate.ComponentRef)
		rec.ModelRef = duplicate.ModelRef
	case errors.Is(err, entities.ErrStaleSnapshot):
		rec.Kind = KindStaleSnapshot
	case errors.Is(err, entities.ErrAlreadyConsumed):
		rec.Kind = KindAlreadyConsumed
	}
	return rec
}

// RollupResponse is the result of a cost rollup
type RollupResponse struct {
	ModelRef                 string                     `json:"model_ref"`
	RevisionID               string                     `json:"revision_id"`
	PerNode                  map[string]decimal.Decimal `json:"per_node"`
	Lines                    []rollup.NodeCost          `json:"lines"`
	Totals                   rollup.Totals              `json:"totals"`
	CriticalPath             []string                   `json:"critical_path"`
	CriticalPathLeadTimeDays int                        `json:"critical_path_lead_time_days"`
	Margin                   *rollup.MarginEstimate     `json:"margin,omitempty"`
	Errors                   []ErrorRecord              `json:"errors"`
}

// NewRollupResponse builds a response from a rollup result. A nil result
// yields a response carrying only the errors.
func NewRollupResponse(result *rollup.Result, err error) RollupResponse {
	resp := RollupResponse{
		PerNode:      map[string]decimal.Decimal{},
		Lines:        []rollup.NodeCost{},
		CriticalPath: []string{},
		Errors:       ErrorRecords(err),
	}
	if result == nil {
		return resp
	}
	resp.ModelRef = result.ModelRef
	resp.RevisionID = result.RevisionID
	resp.PerNode = result.PerNode
	resp.Lines = result.Lines
	resp.Totals = result.Totals
	resp.CriticalPath = result.CriticalPath
	resp.CriticalPathLeadTimeDays = result.CriticalPathLeadTimeDays
	return resp
}

// MRPResponse is the result of a netting run
type MRPResponse struct {
	RunID           string                        `json:"run_id,omitempty"`
	SnapshotVersion int64                         `json:"snapshot_version"`
	Requirements    []entities.RequirementRecord  `json:"requirements"`
	Suggestions     []entities.MRPSuggestion      `json:"suggestions"`
	Batches         []entities.DraftPurchaseBatch `json:"batches"`
	Errors          []ErrorRecord                 `json:"errors"`
}

// NewMRPResponse builds a response from an MRP run and the draft batches
// of its suggestions
func NewMRPResponse(run *mrp.Run, err error) MRPResponse {
	resp := MRPResponse{
		Requirements: []entities.RequirementRecord{},
		Suggestions:  []entities.MRPSuggestion{},
		Batches:      []entities.DraftPurchaseBatch{},
		Errors:       ErrorRecords(err),
	}
	if run == nil {
		return resp
	}
	resp.RunID = run.RunID
	resp.SnapshotVersion = int64(run.SnapshotVersion)
	resp.Requirements = run.Requirements
	resp.Suggestions = run.Suggestions
	resp.Batches = aggregator.GroupBySupplier(run.Suggestions)
	return resp
}

// ReconcileResponse is the result of a reconciliation
type ReconcileResponse struct {
	Records        []entities.ReconciliationRecord `json:"records"`
	ModelSummaries []entities.ModelSummary         `json:"model_summaries"`
	Errors         []ErrorRecord                   `json:"errors"`
}

// NewReconcileResponse builds a response from reconciliation output
func NewReconcileResponse(records []entities.ReconciliationRecord, summaries []entities.ModelSummary, err error) ReconcileResponse {
	resp := ReconcileResponse{
		Records:        records,
		ModelSummaries: summaries,
		Errors:         ErrorRecords(err),
	}
	if resp.Records == nil {
		resp.Records = []entities.ReconciliationRecord{}
	}
	if resp.ModelSummaries == nil {
		resp.ModelSummaries = []entities.ModelSummary{}
	}
	return resp
}

// NewReconcileRunResponse builds a response from a repository-backed run
func NewReconcileRunResponse(run *reconcile.Run, err error) ReconcileResponse {
	if run == nil {
		return NewReconcileResponse(nil, nil, err)
	}
	return NewReconcileResponse(run.Records, run.Summaries, err)
}

// CommitResponse is the result of a commit. On rejection only Error is set.
type CommitResponse struct {
	BatchIDs              []string     `json:"batch_ids,omitempty"`
	ConsumedSuggestionIDs []string     `json:"consumed_suggestion_ids,omitempty"`
	SnapshotVersion       int64        `json:"snapshot_version,omitempty"`
	Error                 *ErrorRecord `json:"error,omitempty"`
}

// NewCommitResponse builds a response from a commit outcome
func NewCommitResponse(result *aggregator.CommitResult, err error) CommitResponse {
	if err != nil {
		rec := NewErrorRecord(err)
		return CommitResponse{Error: &rec}
	}
	return CommitResponse{
		BatchIDs:              result.BatchIDs,
		ConsumedSuggestionIDs: result.ConsumedSuggestionIDs,
		SnapshotVersion:       int64(result.SnapshotVersion),
	}
}

// ToCommitRequest converts the request for the aggregator
func (r CommitRequest) ToCommitRequest() aggregator.CommitRequest {
	return aggregator.CommitRequest{
		SnapshotVersion:       entities.SnapshotVersion(r.SnapshotVersion),
		SelectedSuggestionIDs: r.SelectedSuggestionIDs,
	}
}
