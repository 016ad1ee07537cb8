package orchestration

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/vsinha/prodplan/pkg/application/dto"
	"github.com/vsinha/prodplan/pkg/application/services/aggregator"
	"github.com/vsinha/prodplan/pkg/application/services/mrp"
	"github.com/vsinha/prodplan/pkg/application/services/reconcile"
	"github.com/vsinha/prodplan/pkg/application/services/rollup"
	"github.com/vsinha/prodplan/pkg/domain/entities"
	"github.com/vsinha/prodplan/pkg/domain/repositories"
	"github.com/vsinha/prodplan/pkg/infrastructure/archive"
	"github.com/vsinha/prodplan/pkg/infrastructure/events"
	"github.com/vsinha/prodplan/pkg/infrastructure/metrics"
)

// Config holds the engine settings
type Config struct {
	Rollup rollup.Config
	MRP    mrp.Config
	// MaxConcurrency bounds per-model work in reconciliation
	MaxConcurrency int
}

// DefaultConfig returns the default engine settings
func DefaultConfig() Config {
	return Config{
		Rollup:         rollup.DefaultConfig(),
		MRP:            mrp.DefaultConfig(),
		MaxConcurrency: 4,
	}
}

// Repositories are the stores the orchestrator reads and writes
type Repositories struct {
	Components repositories.ComponentRepository
	BOMs       repositories.BOMRepository
	Standard   repositories.StandardEquipmentRepository
	Inventory  repositories.InventoryRepository
	Batches    repositories.PurchaseBatchStore
}

// RequestError marks a request rejected before any engine ran
type RequestError struct {
	Err error
}

func (e *RequestError) Error() string { return "invalid request: " + e.Err.Error() }

func (e *RequestError) Unwrap() error { return e.Err }

// AbortError marks an engine call that produced no result. Errors
// returned next to a result are never wrapped.
type AbortError struct {
	Err error
}

func (e *AbortError) Error() string { return e.Err.Error() }

func (e *AbortError) Unwrap() error { return e.Err }

// PlanningOrchestrator coordinates the rollup, MRP, reconciliation and
// commit engines with persistence, run archiving, events and metrics
type PlanningOrchestrator struct {
	config     Config
	repos      Repositories
	rollup     *rollup.Service
	mrp        *mrp.MRPService
	reconcile  *reconcile.Service
	aggregator *aggregator.Service
	archive    archive.Store
	events     events.EventStore
	metrics    *metrics.Recorder
	logger     *zap.Logger
	now        func() time.Time
}

// Option configures a PlanningOrchestrator
type Option func(*PlanningOrchestrator)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *PlanningOrchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithArchive archives every repository-backed run to store
func WithArchive(store archive.Store) Option {
	return func(o *PlanningOrchestrator) { o.archive = store }
}

// WithEventStore publishes run and commit events
func WithEventStore(store events.EventStore) Option {
	return func(o *PlanningOrchestrator) { o.events = store }
}

// WithMetrics records run and commit metrics
func WithMetrics(recorder *metrics.Recorder) Option {
	return func(o *PlanningOrchestrator) { o.metrics = recorder }
}

// WithClock replaces the wall clock
func WithClock(now func() time.Time) Option {
	return func(o *PlanningOrchestrator) { o.now = now }
}

// NewPlanningOrchestrator creates a new planning orchestrator
func NewPlanningOrchestrator(config Config, repos Repositories, opts ...Option) *PlanningOrchestrator {
	o := &PlanningOrchestrator{
		config: config,
		repos:  repos,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	o.rollup = rollup.NewService(config.Rollup, o.logger.Named("rollup"))
	o.mrp = mrp.NewMRPService(config.MRP, o.logger.Named("mrp"))
	o.reconcile = reconcile.NewService(config.MaxConcurrency, o.logger.Named("reconcile"))

	aggOpts := []aggregator.Option{
		aggregator.WithLogger(o.logger.Named("aggregator")),
		aggregator.WithMetrics(o.metrics),
		aggregator.WithClock(o.now),
	}
	if o.events != nil {
		aggOpts = append(aggOpts, aggregator.WithEventStore(o.events))
	}
	o.aggregator = aggregator.NewService(o.mrp, repos.Components, repos.Inventory, repos.Batches, aggOpts...)
	return o
}

// RunRollup rolls up the active revision of a model. The run is stamped
// with the current snapshot version.
func (o *PlanningOrchestrator) RunRollup(ctx context.Context, modelRef string) (*rollup.Run, error) {
	start := o.now()
	result, err := o.rollup.RollupActive(ctx, modelRef, o.repos.BOMs, o.repos.Components)
	if result == nil {
		o.metrics.ObserveRun(string(entities.RunKindRollup), o.now().Sub(start), 0, err)
		return nil, aborted(false, err)
	}

	version, verr := o.repos.Inventory.CurrentVersion(ctx)
	if verr != nil {
		return nil, eris.Wrap(verr, "orchestration: snapshot version")
	}
	run := o.rollup.NewRun(result, version, err)
	o.metrics.ObserveRun(string(entities.RunKindRollup), o.now().Sub(start), len(run.Problems), nil)

	o.store(ctx, run.RunMeta, run)
	o.publish(events.RunsStream, events.RollupCompletedEvent, events.RollupCompleted{
		Run:        run.RunMeta,
		ModelRef:   run.ModelRef,
		RevisionID: run.RevisionID,
		Total:      run.Totals.Total,
		Problems:   len(run.Problems),
	})
	return run, err
}

// RunMRP nets the current inventory snapshot. Suggestions consumed by
// an earlier commit are left out.
func (o *PlanningOrchestrator) RunMRP(ctx context.Context, asOf time.Time) (*mrp.Run, error) {
	start := o.now()
	run, err := o.mrp.RunCurrent(ctx, o.repos.Components, o.repos.Inventory, asOf)
	if run == nil {
		o.metrics.ObserveRun(string(entities.RunKindMRP), o.now().Sub(start), 0, err)
		return nil, aborted(false, err)
	}

	pending, perr := o.aggregator.Pending(ctx, run.Suggestions)
	if perr != nil {
		return nil, perr
	}
	run.Suggestions = pending
	o.metrics.ObserveRun(string(entities.RunKindMRP), o.now().Sub(start), len(run.Problems), nil)
	o.metrics.SetSnapshotVersion(int64(run.SnapshotVersion))

	o.store(ctx, run.RunMeta, run)
	o.publish(events.RunsStream, events.MRPCompletedEvent, events.MRPCompleted{
		Run:         run.RunMeta,
		Components:  len(run.Requirements),
		Suggestions: len(run.Suggestions),
		Problems:    len(run.Problems),
	})
	return run, err
}

// RunReconciliation reconciles the given models, or every known model
// when none are given
func (o *PlanningOrchestrator) RunReconciliation(ctx context.Context, models []string) (*reconcile.Run, error) {
	start := o.now()
	run, err := o.reconcile.ReconcileModels(ctx, models, reconcile.Sources{
		Standard:   o.repos.Standard,
		BOMs:       o.repos.BOMs,
		Components: o.repos.Components,
	})
	if run == nil {
		o.metrics.ObserveRun(string(entities.RunKindReconciliation), o.now().Sub(start), 0, err)
		return nil, aborted(false, err)
	}
	o.metrics.ObserveRun(string(entities.RunKindReconciliation), o.now().Sub(start), len(run.Problems), nil)

	discrepancies := 0
	for _, s := range run.Summaries {
		discrepancies += s.Discrepancies()
	}
	o.store(ctx, run.RunMeta, run)
	o.publish(events.RunsStream, events.ReconciliationCompletedEvent, events.ReconciliationCompleted{
		Run:           run.RunMeta,
		Models:        len(run.Summaries),
		Discrepancies: discrepancies,
		Problems:      len(run.Problems),
	})
	return run, err
}

// Commit turns selected suggestions into purchase batches
func (o *PlanningOrchestrator) Commit(ctx context.Context, req aggregator.CommitRequest) (*aggregator.CommitResult, error) {
	result, err := o.aggregator.Commit(ctx, req)
	if err != nil {
		return nil, err
	}
	o.metrics.SetSnapshotVersion(int64(result.SnapshotVersion))
	return result, nil
}

// GetBatch returns a committed purchase batch
func (o *PlanningOrchestrator) GetBatch(ctx context.Context, id string) (*entities.PurchaseBatch, error) {
	return o.repos.Batches.GetBatch(ctx, id)
}

// LoadInventory ingests an inventory feed as a new snapshot
func (o *PlanningOrchestrator) LoadInventory(ctx context.Context, positions []entities.InventoryPosition) (entities.SnapshotVersion, error) {
	version, err := o.repos.Inventory.LoadPositions(ctx, positions)
	if err != nil {
		return 0, err
	}
	o.metrics.SetSnapshotVersion(int64(version))
	o.publish(events.InventoryStream, events.InventoryLoadedEvent, events.InventoryLoaded{
		Positions:  len(positions),
		NewVersion: version,
	})
	o.logger.Info("orchestration: inventory loaded",
		zap.Int("positions", len(positions)),
		zap.Int64("snapshot_version", int64(version)),
	)
	return version, nil
}

// HandleRollup rolls up the revision carried by the request. Factor
// overrides apply to this request only; a retail price adds a margin
// estimate.
func (o *PlanningOrchestrator) HandleRollup(ctx context.Context, req dto.RollupRequest) (dto.RollupResponse, error) {
	if err := dto.Validate(req); err != nil {
		return dto.NewRollupResponse(nil, err), &RequestError{Err: err}
	}

	cfg := o.config.Rollup
	if req.LaborFactor != nil {
		cfg.LaborFactor = *req.LaborFactor
	}
	if req.OverheadFactor != nil {
		cfg.OverheadFactor = *req.OverheadFactor
	}
	svc := o.rollup
	if req.LaborFactor != nil || req.OverheadFactor != nil {
		svc = rollup.NewService(cfg, o.logger.Named("rollup"))
	}

	start := o.now()
	catalog, catalogErr := req.Catalog()
	result, err := svc.Rollup(ctx, req.Revision(), req.BOMNodes(), catalog)
	err = multierr.Append(catalogErr, err)
	o.metrics.ObserveRun(string(entities.RunKindRollup), o.now().Sub(start), problemCount(result != nil, err), fatal(result != nil, err))

	resp := dto.NewRollupResponse(result, err)
	if result != nil && req.RetailPrice != nil {
		discount := decimal.Zero
		if req.DiscountPct != nil {
			discount = *req.DiscountPct
		}
		margin := result.Totals.Margin(*req.RetailPrice, discount)
		resp.Margin = &margin
	}
	return resp, aborted(result != nil, err)
}

// HandleMRP nets the positions carried by the request
func (o *PlanningOrchestrator) HandleMRP(ctx context.Context, req dto.MRPRequest) (dto.MRPResponse, error) {
	if err := dto.Validate(req); err != nil {
		return dto.NewMRPResponse(nil, err), &RequestError{Err: err}
	}
	snapshot, err := req.Snapshot()
	if err != nil {
		return dto.NewMRPResponse(nil, err), &RequestError{Err: err}
	}

	start := o.now()
	run, err := o.mrp.Run(ctx, req.ComponentRecords(), snapshot, snapshot.AsOf)
	o.metrics.ObserveRun(string(entities.RunKindMRP), o.now().Sub(start), problemCount(run != nil, err), fatal(run != nil, err))
	return dto.NewMRPResponse(run, err), aborted(run != nil, err)
}

// HandleReconcile reconciles the lists carried by the request
func (o *PlanningOrchestrator) HandleReconcile(ctx context.Context, req dto.ReconcileRequest) (dto.ReconcileResponse, error) {
	if err := dto.Validate(req); err != nil {
		return dto.NewReconcileResponse(nil, nil, err), &RequestError{Err: err}
	}
	if err := ctx.Err(); err != nil {
		return dto.NewReconcileResponse(nil, nil, err), err
	}

	start := o.now()
	catalog, catalogErr := req.Catalog()
	records, summaries, err := reconcile.Reconcile(req.StandardEntries(), req.BOMLines(), catalog)
	err = multierr.Append(catalogErr, err)
	o.metrics.ObserveRun(string(entities.RunKindReconciliation), o.now().Sub(start),
		problemCount(records != nil, err), fatal(records != nil, err))
	return dto.NewReconcileResponse(records, summaries, err), aborted(records != nil, err)
}

// HandleCommit commits the selection carried by the request
func (o *PlanningOrchestrator) HandleCommit(ctx context.Context, req dto.CommitRequest) (dto.CommitResponse, error) {
	if err := dto.Validate(req); err != nil {
		return dto.NewCommitResponse(nil, err), &RequestError{Err: err}
	}
	result, err := o.Commit(ctx, req.ToCommitRequest())
	return dto.NewCommitResponse(result, err), err
}

func (o *PlanningOrchestrator) store(ctx context.Context, meta entities.RunMeta, run interface{}) {
	if o.archive == nil {
		return
	}
	key, err := archive.SaveRun(ctx, o.archive, meta, run)
	if err != nil {
		o.logger.Warn("orchestration: archive run failed",
			zap.String("run_id", meta.RunID),
			zap.String("kind", string(meta.Kind)),
			zap.Error(err),
		)
		return
	}
	o.logger.Debug("orchestration: run archived", zap.String("key", key))
}

func (o *PlanningOrchestrator) publish(stream, eventType string, data interface{}) {
	if o.events == nil {
		return
	}
	if err := o.events.AppendEvent(stream, events.NewEvent(eventType, stream, data, o.now())); err != nil {
		o.logger.Warn("orchestration: publish failed", zap.String("event", eventType), zap.Error(err))
	}
}

// problemCount counts the non-fatal problems of an engine call that
// produced a result
func problemCount(produced bool, err error) int {
	if !produced {
		return 0
	}
	return len(multierr.Errors(err))
}

// aborted wraps the outcome of an engine call in an AbortError when it
// produced nothing
func aborted(produced bool, err error) error {
	if produced {
		return err
	}
	return &AbortError{Err: fatal(false, err)}
}

func fatal(produced bool, err error) error {
	if produced {
		return nil
	}
	if err == nil {
		return eris.New("orchestration: engine produced no result")
	}
	return err
}
