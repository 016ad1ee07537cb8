package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vsinha/prodplan/pkg/application/services/mrp"
	"github.com/vsinha/prodplan/pkg/domain/entities"
	"github.com/vsinha/prodplan/pkg/domain/repositories"
	"github.com/vsinha/prodplan/pkg/infrastructure/events"
	"github.com/vsinha/prodplan/pkg/infrastructure/metrics"
)

// CommitRequest selects suggestions of an MRP run for purchase
type CommitRequest struct {
	SnapshotVersion       entities.SnapshotVersion
	SelectedSuggestionIDs []string
}

// CommitResult describes a successful commit
type CommitResult struct {
	BatchIDs              []string                 `json:"batch_ids"`
	ConsumedSuggestionIDs []string                 `json:"consumed_suggestion_ids"`
	Batches               []entities.PurchaseBatch `json:"batches"`
	// SnapshotVersion is the version after the commit
	SnapshotVersion entities.SnapshotVersion `json:"snapshot_version"`
}

// Service turns selected MRP suggestions into persisted purchase batches
type Service struct {
	mrp        *mrp.MRPService
	components repositories.ComponentRepository
	inventory  repositories.InventorySnapshotProvider
	store      repositories.PurchaseBatchStore

	logger  *zap.Logger
	events  events.EventStore
	metrics *metrics.Recorder
	now     func() time.Time
	newID   func() string
}

// Option configures a Service
type Option func(*Service)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithEventStore publishes batch and consumption events to store
func WithEventStore(store events.EventStore) Option {
	return func(s *Service) { s.events = store }
}

// WithMetrics records commit outcomes
func WithMetrics(recorder *metrics.Recorder) Option {
	return func(s *Service) { s.metrics = recorder }
}

// WithClock overrides the clock used for planning dates and timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a commit service
func NewService(
	mrpService *mrp.MRPService,
	components repositories.ComponentRepository,
	inventory repositories.InventorySnapshotProvider,
	store repositories.PurchaseBatchStore,
	opts ...Option,
) *Service {
	s := &Service{
		mrp:        mrpService,
		components: components,
		inventory:  inventory,
		store:      store,
		logger:     zap.NewNop(),
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Pending drops suggestions that an earlier commit already consumed
func (s *Service) Pending(ctx context.Context, suggestions []entities.MRPSuggestion) ([]entities.MRPSuggestion, error) {
	ids := make([]string, 0, len(suggestions))
	for _, sg := range suggestions {
		ids = append(ids, sg.ID)
	}
	consumed, err := s.store.ConsumedSuggestions(ctx, ids)
	if err != nil {
		return nil, eris.Wrap(err, "aggregator: consumed suggestions")
	}
	done := make(map[string]bool, len(consumed))
	for _, id := range consumed {
		done[id] = true
	}

	pending := make([]entities.MRPSuggestion, 0, len(suggestions))
	for _, sg := range suggestions {
		if !done[sg.ID] {
			pending = append(pending, sg)
		}
	}
	return pending, nil
}

// Commit converts the selected suggestions into purchase batches, one per
// supplier, and marks them consumed. Either every selected suggestion is
// committed or none is. The selection is resolved against a fresh MRP run
// of the current snapshot, which must still be the version the caller
// computed against.
func (s *Service) Commit(ctx context.Context, req CommitRequest) (*CommitResult, error) {
	result, err := s.commit(ctx, req)
	s.observe(result, err)
	return result, err
}

func (s *Service) commit(ctx context.Context, req CommitRequest) (*CommitResult, error) {
	if err := validateSelection(req.SelectedSuggestionIDs); err != nil {
		return nil, err
	}

	consumed, err := s.store.ConsumedSuggestions(ctx, req.SelectedSuggestionIDs)
	if err != nil {
		return nil, eris.Wrap(err, "aggregator: consumed suggestions")
	}
	if len(consumed) > 0 {
		return nil, &entities.AlreadyConsumedError{SuggestionIDs: consumed}
	}

	current, err := s.inventory.CurrentVersion(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "aggregator: current snapshot version")
	}
	if current != req.SnapshotVersion {
		return nil, &entities.StaleSnapshotError{Expected: req.SnapshotVersion, Current: current}
	}

	run, err := s.mrp.RunCurrent(ctx, s.components, s.inventory, s.now())
	if run == nil {
		return nil, err
	}
	if run.SnapshotVersion != req.SnapshotVersion {
		return nil, &entities.StaleSnapshotError{Expected: req.SnapshotVersion, Current: run.SnapshotVersion}
	}

	selected := make([]entities.MRPSuggestion, 0, len(req.SelectedSuggestionIDs))
	var unknown []string
	for _, id := range req.SelectedSuggestionIDs {
		sg, ok := run.Suggestion(id)
		if !ok {
			unknown = append(unknown, id)
			continue
		}
		selected = append(selected, sg)
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, &entities.ValidationError{
			Field:   "selected_suggestion_ids",
			Message: "unknown suggestion " + strings.Join(unknown, ", "),
		}
	}

	createdAt := s.now().UTC()
	drafts := GroupBySupplier(selected)
	batches := make([]entities.PurchaseBatch, 0, len(drafts))
	for _, draft := range drafts {
		batches = append(batches, entities.NewPurchaseBatch(s.newID(), draft, req.SnapshotVersion, createdAt))
	}

	newVersion, err := s.store.CommitBatches(ctx, repositories.CommitBatchesInput{
		ExpectedVersion: req.SnapshotVersion,
		Batches:         batches,
	})
	if err != nil {
		if entities.IsFatal(err) {
			return nil, err
		}
		return nil, eris.Wrap(err, "aggregator: commit batches")
	}

	result := &CommitResult{
		BatchIDs:              make([]string, 0, len(batches)),
		ConsumedSuggestionIDs: make([]string, 0, len(selected)),
		Batches:               batches,
		SnapshotVersion:       newVersion,
	}
	for _, b := range batches {
		result.BatchIDs = append(result.BatchIDs, b.ID)
		result.ConsumedSuggestionIDs = append(result.ConsumedSuggestionIDs, b.SuggestionIDs()...)
	}

	s.publish(result)
	return result, nil
}

func validateSelection(ids []string) error {
	if len(ids) == 0 {
		return &entities.ValidationError{Field: "selected_suggestion_ids", Message: "no suggestions selected"}
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" {
			return &entities.ValidationError{Field: "selected_suggestion_ids", Message: "empty suggestion id"}
		}
		if seen[id] {
			return &entities.ValidationError{
				Field:   "selected_suggestion_ids",
				Message: fmt.Sprintf("suggestion %s selected twice", id),
			}
		}
		seen[id] = true
	}
	return nil
}

func (s *Service) publish(result *CommitResult) {
	if s.events == nil {
		return
	}
	at := s.now()
	for _, b := range result.Batches {
		stream := events.BatchStream(b.ID)
		if err := s.events.AppendEvent(stream, events.NewEvent(events.BatchCommittedEvent, stream,
			events.BatchCommitted{Batch: b, NewVersion: result.SnapshotVersion}, at)); err != nil {
			s.logger.Warn("aggregator: publish batch event", zap.String("batch_id", b.ID), zap.Error(err))
		}
		for _, line := range b.Lines {
			if err := s.events.AppendEvent(stream, events.NewEvent(events.SuggestionConsumedEvent, stream,
				events.SuggestionConsumed{SuggestionID: line.SuggestionID, ComponentRef: line.ComponentRef, BatchID: b.ID}, at)); err != nil {
				s.logger.Warn("aggregator: publish consumption event", zap.String("suggestion_id", line.SuggestionID), zap.Error(err))
			}
		}
	}
}

func (s *Service) observe(result *CommitResult, err error) {
	switch {
	case err == nil:
		value := decimal.Zero
		for _, b := range result.Batches {
			value = value.Add(b.TotalValue)
		}
		s.metrics.ObserveCommit(metrics.OutcomeCommitted, value.InexactFloat64())
		s.metrics.SetSnapshotVersion(int64(result.SnapshotVersion))
		s.logger.Info("aggregator: commit complete",
			zap.Strings("batch_ids", result.BatchIDs),
			zap.Int("suggestions", len(result.ConsumedSuggestionIDs)),
			zap.Int64("snapshot_version", int64(result.SnapshotVersion)),
			zap.String("value", value.StringFixed(2)),
		)
	case errors.Is(err, entities.ErrStaleSnapshot):
		s.metrics.ObserveCommit(metrics.OutcomeStale, 0)
		s.logger.Info("aggregator: commit rejected", zap.Error(err))
	case errors.Is(err, entities.ErrAlreadyConsumed):
		s.metrics.ObserveCommit(metrics.OutcomeAlreadyConsumed, 0)
		s.logger.Info("aggregator: commit rejected", zap.Error(err))
	default:
		s.metrics.ObserveCommit(metrics.OutcomeRejected, 0)
		s.logger.Warn("aggregator: commit failed", zap.Error(err))
	}
}
