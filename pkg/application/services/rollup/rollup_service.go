package rollup

import (
	"context"
	"sort"
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

// Config holds the secondary estimate coefficients
type Config struct {
	LaborFactor    decimal.Decimal
	OverheadFactor decimal.Decimal
	// MaxConcurrency bounds RollupRevisions (0 = unlimited)
	MaxConcurrency int
}

// DefaultConfig returns labor 25% of material and overhead 15% of
// material plus labor
func DefaultConfig() Config {
	return Config{
		LaborFactor:    decimal.RequireFromString("0.25"),
		OverheadFactor: decimal.RequireFromString("0.15"),
		MaxConcurrency: 4,
	}
}

// Totals are the estimated cost components of a rolled-up revision
type Totals struct {
	Material decimal.Decimal `json:"material"`
	Labor    decimal.Decimal `json:"labor"`
	Overhead decimal.Decimal `json:"overhead"`
	Total    decimal.Decimal `json:"total"`
}

// Result is the pure output of a rollup. Identical inputs give identical
// results.
type Result struct {
	ModelRef   string                     `json:"model_ref"`
	RevisionID string                     `json:"revision_id"`
	PerNode    map[string]decimal.Decimal `json:"per_node"`
	// Lines are sorted by node id
	Lines                    []NodeCost `json:"lines"`
	Totals                   Totals     `json:"totals"`
	CriticalPath             []string   `json:"critical_path"`
	CriticalPathLeadTimeDays int        `json:"critical_path_lead_time_days"`
}

// Run is an immutable, stamped rollup result
type Run struct {
	entities.RunMeta
	*Result
	Problems []error `json:"-"`
}

// Input is one revision to roll up
type Input struct {
	Revision entities.BOMRevision
	Nodes    []entities.BOMNode
	Catalog  entities.Catalog
}

// Service implements the cost rollup engine
type Service struct {
	config    Config
	validator *services.BOMValidator
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates a new rollup service
func NewService(config Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		config:    config,
		validator: services.NewBOMValidator(),
		logger:    logger,
		now:       time.Now,
	}
}

// Rollup computes per-node extended costs and totals for one revision.
//
// A cycle or a dangling reference aborts with a nil result. Invalid nodes
// are left out together with their subtree; the result is returned along
// with the combined validation errors.
func (s *Service) Rollup(
	ctx context.Context,
	revision entities.BOMRevision,
	nodes []entities.BOMNode,
	catalog entities.Catalog,
) (*Result, error) {
	if catalog == nil {
		catalog = entities.ComponentIndex{}
	}

	validation := s.validator.ValidateNodes(nodes)
	if validation.HasFatal() {
		return nil, validation.Fatal
	}

	arena := shared.NewArena(nodes, validation.Excluded)
	visitor := NewCostVisitor()
	rootResults, err := shared.NewBOMTraverser(arena, catalog).TraverseAll(ctx, visitor)
	if err != nil {
		return nil, err
	}

	result := &Result{
		ModelRef:     revision.ModelRef,
		RevisionID:   revision.RevisionID,
		PerNode:      make(map[string]decimal.Decimal, arena.Len()),
		Lines:        visitor.Lines(),
		CriticalPath: make([]string, 0),
	}

	material := decimal.Zero
	var critical *NodeCost
	for _, r := range rootResults {
		root := r.(NodeCost)
		material = material.Add(root.ExtendedCost)
		if critical == nil || root.CumulativeLeadTimeDays > critical.CumulativeLeadTimeDays {
			critical = &root
		}
	}
	result.Totals = s.estimate(material)

	byID := make(map[string]NodeCost, len(result.Lines))
	for _, line := range result.Lines {
		result.PerNode[line.NodeID] = line.ExtendedCost
		byID[line.NodeID] = line
	}
	sort.Slice(result.Lines, func(i, j int) bool {
		return result.Lines[i].NodeID < result.Lines[j].NodeID
	})

	if critical != nil {
		result.CriticalPathLeadTimeDays = critical.CumulativeLeadTimeDays
		for id := critical.NodeID; id != ""; id = byID[id].CriticalChildID {
			result.CriticalPath = append(result.CriticalPath, id)
		}
	}

	return result, multierr.Combine(validation.Problems...)
}

func (s *Service) estimate(material decimal.Decimal) Totals {
	labor := material.Mul(s.config.LaborFactor)
	overhead := material.Add(labor).Mul(s.config.OverheadFactor)
	return Totals{
		Material: material,
		Labor:    labor,
		Overhead: overhead,
		Total:    material.Add(labor).Add(overhead),
	}
}

// NewRun stamps a result as an immutable run
func (s *Service) NewRun(result *Result, version entities.SnapshotVersion, problems error) *Run {
	return &Run{
		RunMeta:  entities.NewRunMeta(entities.RunKindRollup, version, s.now()),
		Result:   result,
		Problems: multierr.Errors(problems),
	}
}

// RollupRevisions rolls up independent revisions concurrently. Results are
// aligned with inputs; an input that failed fatally has a nil result. All
// errors are combined.
func (s *Service) RollupRevisions(ctx context.Context, inputs []Input) ([]*Result, error) {
	start := s.now()
	results := make([]*Result, len(inputs))
	errs := make([]error, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	if s.config.MaxConcurrency > 0 {
		g.SetLimit(s.config.MaxConcurrency)
	}
	for i, in := range inputs {
		g.Go(func() error {
			results[i], errs[i] = s.Rollup(gctx, in.Revision, in.Nodes, in.Catalog)
			// Per-revision failures are reported, not propagated, so one
			// broken BOM does not cancel the others.
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.logger.Info("rollup: revisions complete",
		zap.Int("revisions", len(inputs)),
		zap.Duration("elapsed", s.now().Sub(start)),
	)
	return results, multierr.Combine(errs...)
}

// RollupActive rolls up the active revision of a model from repositories
func (s *Service) RollupActive(
	ctx context.Context,
	modelRef string,
	bomRepo repositories.BOMRepository,
	componentRepo repositories.ComponentRepository,
) (*Result, error) {
	revision, err := bomRepo.GetActiveRevision(modelRef)
	if err != nil {
		return nil, eris.Wrapf(err, "rollup: active revision of %s", modelRef)
	}
	nodes, err := bomRepo.GetNodes(revision.RevisionID)
	if err != nil {
		return nil, eris.Wrapf(err, "rollup: nodes of %s", revision.RevisionID)
	}
	catalog, err := LoadCatalog(componentRepo)
	if err != nil {
		return nil, err
	}

	result, err := s.Rollup(ctx, *revision, nodes, catalog)
	if result != nil {
		s.logger.Info("rollup: complete",
			zap.String("model", modelRef),
			zap.String("revision", revision.RevisionID),
			zap.Int("nodes", len(result.Lines)),
			zap.String("total", result.Totals.Total.StringFixed(2)),
			zap.Int("problems", len(multierr.Errors(err))),
		)
	}
	return result, err
}

// LoadCatalog indexes the full component master
func LoadCatalog(componentRepo repositories.ComponentRepository) (entities.ComponentIndex, error) {
	components, err := componentRepo.GetAllComponents()
	if err != nil {
		return nil, eris.Wrap(err, "rollup: load components")
	}
	index := make(entities.ComponentIndex, len(components))
	for _, c := range components {
		index[c.Code] = *c
	}
	return index, nil
}
