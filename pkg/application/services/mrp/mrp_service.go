package mrp

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/vsinha/prodplan/pkg/domain/entities"
	"github.com/vsinha/prodplan/pkg/domain/repositories"
)

// Config holds MRP engine settings
type Config struct {
	// CriticalLeadOffsetDays is subtracted from a component's lead time to
	// get the suggested order date offset
	CriticalLeadOffsetDays int
}

// DefaultConfig returns the standard one-week order offset
func DefaultConfig() Config {
	return Config{CriticalLeadOffsetDays: 7}
}

// Run is an immutable MRP run over one inventory snapshot
type Run struct {
	entities.RunMeta
	AsOf         time.Time                    `json:"as_of"`
	Requirements []entities.RequirementRecord `json:"requirements"`
	Suggestions  []entities.MRPSuggestion     `json:"suggestions"`
	Problems     []error                      `json:"-"`
}

// StatusCounts tallies requirement records by status
func (r *Run) StatusCounts() map[entities.RequirementStatus]int {
	counts := make(map[entities.RequirementStatus]int, 4)
	for _, rec := range r.Requirements {
		counts[rec.Status]++
	}
	return counts
}

// Suggestion returns the suggestion with the given id
func (r *Run) Suggestion(id string) (entities.MRPSuggestion, bool) {
	for _, s := range r.Suggestions {
		if s.ID == id {
			return s, true
		}
	}
	return entities.MRPSuggestion{}, false
}

// MRPService implements requirement netting and suggestion generation
type MRPService struct {
	config Config
	logger *zap.Logger
	now    func() time.Time
}

// NewMRPService creates a new MRP service
func NewMRPService(config Config, logger *zap.Logger) *MRPService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MRPService{
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// ComputeRequirements nets every valid component against its inventory
// position. Components without a position are netted as zero stock.
// Invalid records and positions for unknown components are skipped and
// returned as combined errors next to the records.
func (s *MRPService) ComputeRequirements(
	components []entities.Component,
	inventory []entities.InventoryPosition,
) ([]entities.RequirementRecord, error) {
	var problems []error

	catalog := make(map[entities.ComponentCode]entities.Component, len(components))
	for _, c := range components {
		if err := c.Validate(); err != nil {
			problems = append(problems, err)
			continue
		}
		if _, exists := catalog[c.Code]; exists {
			problems = append(problems, &entities.ValidationError{
				ComponentRef: c.Code,
				Field:        "code",
				Message:      "component listed more than once",
			})
			continue
		}
		catalog[c.Code] = c
	}

	positions := make(map[entities.ComponentCode]entities.InventoryPosition, len(inventory))
	for _, p := range inventory {
		if err := p.Validate(); err != nil {
			problems = append(problems, err)
			continue
		}
		if _, known := catalog[p.ComponentRef]; !known {
			problems = append(problems, &entities.MissingReferenceError{ComponentRef: p.ComponentRef})
			continue
		}
		if _, exists := positions[p.ComponentRef]; exists {
			problems = append(problems, &entities.ValidationError{
				ComponentRef: p.ComponentRef,
				Field:        "component_ref",
				Message:      "inventory position listed more than once",
			})
			continue
		}
		positions[p.ComponentRef] = p
	}

	codes := make([]entities.ComponentCode, 0, len(catalog))
	for code := range catalog {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })

	records := make([]entities.RequirementRecord, 0, len(codes))
	for _, code := range codes {
		c := catalog[code]
		p := positions[code]
		available := p.Available()
		records = append(records, entities.RequirementRecord{
			ComponentRef:   code,
			QtyOnHand:      p.QtyOnHand,
			QtyReserved:    p.QtyReserved,
			MinStock:       c.MinStock,
			Available:      available,
			NetRequirement: entities.NetRequirement(available, c.MinStock),
			Status:         entities.ClassifyStock(available, c.MinStock),
			PositionEpoch:  p.Epoch,
		})
	}

	return records, multierr.Combine(problems...)
}

// GenerateSuggestions proposes a purchase for every REORDER or CRITICAL
// record. Dates are whole days after asOf. A zero quantity is not
// suggested.
func (s *MRPService) GenerateSuggestions(
	records []entities.RequirementRecord,
	catalog entities.Catalog,
	asOf time.Time,
	version entities.SnapshotVersion,
) []entities.MRPSuggestion {
	today := truncateDay(asOf)
	suggestions := make([]entities.MRPSuggestion, 0)

	for _, rec := range records {
		if !rec.Status.NeedsOrder() {
			continue
		}
		c, ok := catalog.Lookup(rec.ComponentRef)
		if !ok {
			continue
		}

		qty := rec.NetRequirement
		if double := 2 * c.MinStock; double > qty {
			qty = double
		}
		if qty <= 0 {
			continue
		}

		priority := entities.PriorityHigh
		if rec.Status == entities.StatusCritical {
			priority = entities.PriorityCritical
		}

		orderOffset := c.LeadTimeDays - s.config.CriticalLeadOffsetDays
		if orderOffset < 0 {
			orderOffset = 0
		}

		suggestions = append(suggestions, entities.MRPSuggestion{
			ID:                 entities.SuggestionID(c.Code, rec.PositionEpoch, rec.Available, qty),
			ComponentRef:       c.Code,
			SuggestedQty:       qty,
			SuggestedOrderDate: today.AddDate(0, 0, orderOffset),
			RequiredDate:       today.AddDate(0, 0, c.LeadTimeDays),
			Priority:           priority,
			EstimatedCost:      c.UnitCost.Mul(decimal.NewFromInt(int64(qty))),
			SupplierRef:        c.SupplierRef,
			SnapshotVersion:    version,
		})
	}

	sort.Slice(suggestions, func(i, j int) bool {
		return suggestions[i].ComponentRef < suggestions[j].ComponentRef
	})
	return suggestions
}

// Run nets a snapshot and generates its suggestions
func (s *MRPService) Run(
	ctx context.Context,
	components []entities.Component,
	snapshot *entities.InventorySnapshot,
	asOf time.Time,
) (*Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if snapshot == nil {
		snapshot = &entities.InventorySnapshot{}
	}

	start := s.now()
	records, problems := s.ComputeRequirements(components, snapshot.Positions)
	suggestions := s.GenerateSuggestions(records, entities.NewComponentIndex(components), asOf, snapshot.Version)

	run := &Run{
		RunMeta:      entities.NewRunMeta(entities.RunKindMRP, snapshot.Version, s.now()),
		AsOf:         truncateDay(asOf),
		Requirements: records,
		Suggestions:  suggestions,
		Problems:     multierr.Errors(problems),
	}

	s.logger.Info("mrp: run complete",
		zap.String("run_id", run.RunID),
		zap.Int64("snapshot_version", int64(snapshot.Version)),
		zap.Int("components", len(records)),
		zap.Int("suggestions", len(suggestions)),
		zap.Int("problems", len(run.Problems)),
		zap.Duration("elapsed", s.now().Sub(start)),
	)
	return run, problems
}

// RunCurrent loads the component master and the current inventory
// snapshot, then runs MRP over them
func (s *MRPService) RunCurrent(
	ctx context.Context,
	componentRepo repositories.ComponentRepository,
	inventory repositories.InventorySnapshotProvider,
	asOf time.Time,
) (*Run, error) {
	ptrs, err := componentRepo.GetAllComponents()
	if err != nil {
		return nil, eris.Wrap(err, "mrp: load components")
	}
	components := make([]entities.Component, 0, len(ptrs))
	for _, c := range ptrs {
		components = append(components, *c)
	}

	snapshot, err := inventory.CurrentSnapshot(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "mrp: load inventory snapshot")
	}
	return s.Run(ctx, components, snapshot, asOf)
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
