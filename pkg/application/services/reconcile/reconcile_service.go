package reconcile

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vsinha/prodplan/pkg/application/services/shared"
	"github.com/vsinha/prodplan/pkg/domain/entities"
	"github.com/vsinha/prodplan/pkg/domain/repositories"
	"github.com/vsinha/prodplan/pkg/domain/services"
)

// Run is an immutable reconciliation run
type Run struct {
	entities.RunMeta
	Records   []entities.ReconciliationRecord `json:"records"`
	Summaries []entities.ModelSummary         `json:"model_summaries"`
	Problems  []error                         `json:"-"`
}

// Sources bundles the repositories a reconciliation reads
type Sources struct {
	Standard   repositories.StandardEquipmentRepository
	BOMs       repositories.BOMRepository
	Components repositories.ComponentRepository
}

// Service reconciles standard equipment against active BOM revisions
type Service struct {
	maxConcurrency int
	validator      *services.BOMValidator
	logger         *zap.Logger
	now            func() time.Time
}

// NewService creates a reconciliation service. maxConcurrency bounds the
// number of models loaded at once (0 = unlimited).
func NewService(maxConcurrency int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		maxConcurrency: maxConcurrency,
		validator:      services.NewBOMValidator(),
		logger:         logger,
		now:            time.Now,
	}
}

// FlattenLeaves returns the leaf usage of a revision with hierarchy
// ignored. Unit costs are filled from the catalog when it knows the
// component.
func (s *Service) FlattenLeaves(
	ctx context.Context,
	revision entities.BOMRevision,
	nodes []entities.BOMNode,
	catalog entities.Catalog,
) ([]entities.BOMLine, error) {
	validation := s.validator.ValidateNodes(nodes)
	if validation.HasFatal() {
		return nil, validation.Fatal
	}

	arena := shared.NewArena(nodes, validation.Excluded)
	collector := shared.NewLeafCollector(arena)
	if _, err := shared.NewBOMTraverser(arena, nil).TraverseAll(ctx, collector); err != nil {
		return nil, err
	}

	lines := make([]entities.BOMLine, 0, len(collector.Leaves))
	for _, leaf := range collector.Leaves {
		if leaf.ComponentRef == "" {
			continue
		}
		line := entities.BOMLine{
			ModelRef:     revision.ModelRef,
			ComponentRef: leaf.ComponentRef,
			Qty:          leaf.Quantity,
		}
		if catalog != nil {
			if c, ok := catalog.Lookup(leaf.ComponentRef); ok {
				line.UnitCost = decimal.NewNullDecimal(c.UnitCost)
			}
		}
		lines = append(lines, line)
	}
	return lines, multierr.Combine(validation.Problems...)
}

// ReconcileModels loads the standard equipment and the active BOM revision
// of each model and reconciles them in one pass. With no models given,
// every model known to either repository is reconciled. A model without
// an active revision reconciles against an empty BOM.
func (s *Service) ReconcileModels(ctx context.Context, models []string, src Sources) (*Run, error) {
	start := s.now()

	if len(models) == 0 {
		var err error
		if models, err = s.knownModels(src); err != nil {
			return nil, err
		}
	}

	catalog, err := loadCatalog(src.Components)
	if err != nil {
		return nil, err
	}

	var (
		mu       sync.Mutex
		standard []entities.StandardEquipmentEntry
		bom      []entities.BOMLine
		problems []error
	)

	g, gctx := errgroup.WithContext(ctx)
	if s.maxConcurrency > 0 {
		g.SetLimit(s.maxConcurrency)
	}
	for _, model := range models {
		g.Go(func() error {
			entries, err := src.Standard.GetEntries(model)
			if err != nil {
				return eris.Wrapf(err, "reconcile: standard equipment of %s", model)
			}
			lines, lineProblems, err := s.activeLines(gctx, model, src.BOMs, catalog)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			standard = append(standard, entries...)
			bom = append(bom, lines...)
			problems = append(problems, lineProblems...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	records, summaries, err := Reconcile(standard, bom, catalog)
	if records == nil && err != nil {
		return nil, err
	}
	problems = append(problems, multierr.Errors(err)...)

	run := &Run{
		RunMeta:   entities.NewRunMeta(entities.RunKindReconciliation, 0, s.now()),
		Records:   records,
		Summaries: summaries,
		Problems:  problems,
	}

	s.logger.Info("reconcile: run complete",
		zap.String("run_id", run.RunID),
		zap.Int("models", len(summaries)),
		zap.Int("records", len(records)),
		zap.Int("problems", len(problems)),
		zap.Duration("elapsed", s.now().Sub(start)),
	)
	return run, multierr.Combine(problems...)
}

func (s *Service) activeLines(
	ctx context.Context,
	model string,
	boms repositories.BOMRepository,
	catalog entities.Catalog,
) ([]entities.BOMLine, []error, error) {
	revision, err := boms.GetActiveRevision(model)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, eris.Wrapf(err, "reconcile: active revision of %s", model)
	}
	nodes, err := boms.GetNodes(revision.RevisionID)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "reconcile: nodes of %s", revision.RevisionID)
	}

	lines, err := s.FlattenLeaves(ctx, *revision, nodes, catalog)
	if lines == nil && err != nil {
		return nil, nil, err
	}
	return lines, multierr.Errors(err), nil
}

func (s *Service) knownModels(src Sources) ([]string, error) {
	standardModels, err := src.Standard.GetModels()
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: standard equipment models")
	}
	bomModels, err := src.BOMs.GetModels()
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: bom models")
	}

	seen := make(map[string]bool)
	models := make([]string, 0, len(standardModels)+len(bomModels))
	for _, m := range append(standardModels, bomModels...) {
		if !seen[m] {
			seen[m] = true
			models = append(models, m)
		}
	}
	sort.Strings(models)
	return models, nil
}

func loadCatalog(componentRepo repositories.ComponentRepository) (entities.ComponentIndex, error) {
	components, err := componentRepo.GetAllComponents()
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: load components")
	}
	index := make(entities.ComponentIndex, len(components))
	for _, c := range components {
		index[c.Code] = *c
	}
	return index, nil
}
