package commands

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/vsinha/prodplan/internal/config"
	"github.com/vsinha/prodplan/pkg/application/services/mrp"
	"github.com/vsinha/prodplan/pkg/application/services/orchestration"
	"github.com/vsinha/prodplan/pkg/application/services/rollup"
	"github.com/vsinha/prodplan/pkg/domain/repositories"
	"github.com/vsinha/prodplan/pkg/infrastructure/archive"
	"github.com/vsinha/prodplan/pkg/infrastructure/events"
	"github.com/vsinha/prodplan/pkg/infrastructure/metrics"
	"github.com/vsinha/prodplan/pkg/infrastructure/repositories/csv"
	"github.com/vsinha/prodplan/pkg/infrastructure/repositories/memory"
	"github.com/vsinha/prodplan/pkg/infrastructure/repositories/postgres"
	"github.com/vsinha/prodplan/pkg/infrastructure/repositories/sqlite"
)

// planEnv holds the repositories and the orchestrator a command runs
// against.
type planEnv struct {
	Dataset      *csv.Dataset
	Orchestrator *orchestration.PlanningOrchestrator
	Metrics      *metrics.Recorder
	Events       *events.InMemoryEventStore

	closers []func()
}

// Close releases the store.
func (pe *planEnv) Close() {
	for i := len(pe.closers) - 1; i >= 0; i-- {
		pe.closers[i]()
	}
}

// snapshotStore is a store that keeps both inventory snapshots and
// committed batches.
type snapshotStore interface {
	repositories.InventoryRepository
	repositories.PurchaseBatchStore
}

// initEnv loads master data from the scenario directory, opens the
// configured snapshot store and builds the orchestrator. Callers should
// defer env.Close().
func initEnv(ctx context.Context, command string) (*planEnv, error) {
	if err := cfg.Validate(command); err != nil {
		return nil, err
	}
	logger := zap.L()
	env := &planEnv{}

	asOf := time.Now().UTC().Truncate(24 * time.Hour)
	ds, err := csv.NewLoader().LoadDirectory(cfg.Data.Dir, asOf)
	if ds == nil {
		return nil, err
	}
	for _, rowErr := range multierr.Errors(err) {
		logger.Warn("skipped scenario row", zap.Error(rowErr))
	}
	env.Dataset = ds

	store, closeStore, err := initStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	env.closers = append(env.closers, closeStore)

	components := memory.NewComponentRepository(len(ds.Components))
	boms := memory.NewBOMRepository(len(ds.Revisions))
	standard := memory.NewStandardEquipmentRepository()

	// a store that already holds a snapshot keeps it
	seed := *ds
	version, err := store.CurrentVersion(ctx)
	if err != nil {
		env.Close()
		return nil, eris.Wrap(err, "read snapshot version")
	}
	if version > 0 {
		seed.Inventory = nil
	}
	if err := seed.Populate(ctx, components, boms, standard, store); err != nil {
		env.Close()
		return nil, err
	}

	arch, err := initArchive(ctx, cfg.Archive)
	if err != nil {
		env.Close()
		return nil, err
	}

	env.Metrics = metrics.NewRecorder()
	env.Events = events.NewInMemoryEventStore(logger, events.WithCapacity(cfg.Events.Capacity))
	eventLog := events.NewLogSubscriber(logger.Named("events"))
	if err := env.Events.Subscribe(eventLog.Types, eventLog); err != nil {
		env.Close()
		return nil, err
	}
	opts := []orchestration.Option{
		orchestration.WithLogger(logger),
		orchestration.WithMetrics(env.Metrics),
		orchestration.WithEventStore(env.Events),
	}
	if arch != nil {
		opts = append(opts, orchestration.WithArchive(arch))
	}

	env.Orchestrator = orchestration.NewPlanningOrchestrator(engineConfig(cfg), orchestration.Repositories{
		Components: components,
		BOMs:       boms,
		Standard:   standard,
		Inventory:  store,
		Batches:    store,
	}, opts...)

	logger.Debug("planning environment ready",
		zap.String("data", cfg.Data.Dir),
		zap.String("store", cfg.Store.Driver),
		zap.Int("components", len(ds.Components)),
		zap.Int("revisions", len(ds.Revisions)),
	)
	return env, nil
}

// initStore opens the snapshot store for the configured driver. The
// returned func closes it.
func initStore(ctx context.Context, sc config.StoreConfig) (snapshotStore, func(), error) {
	switch sc.Driver {
	case "memory":
		inventory := memory.NewInventoryRepository()
		return &memoryStore{
			InventoryRepository:     inventory,
			PurchaseBatchRepository: memory.NewPurchaseBatchRepository(inventory),
		}, func() {}, nil
	case "sqlite":
		st, err := sqlite.New(sc.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, nil, err
		}
		return st, func() { _ = st.Close() }, nil
	case "postgres":
		st, err := postgres.New(ctx, sc.DatabaseURL, &postgres.PoolConfig{MaxConns: sc.MaxConns, MinConns: sc.MinConns})
		if err != nil {
			return nil, nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, nil, err
		}
		return st, st.Close, nil
	default:
		return nil, nil, eris.Errorf("unsupported store driver: %s", sc.Driver)
	}
}

// memoryStore pairs the in-process snapshot and batch repositories
type memoryStore struct {
	*memory.InventoryRepository
	*memory.PurchaseBatchRepository
}

func initArchive(ctx context.Context, ac config.ArchiveConfig) (archive.Store, error) {
	switch ac.Driver {
	case "none", "":
		return nil, nil
	case "fs":
		return archive.NewFSStore(ac.Dir)
	case "s3":
		return archive.NewS3Store(ctx, archive.S3Config{
			Bucket:          ac.S3.Bucket,
			Region:          ac.S3.Region,
			Endpoint:        ac.S3.Endpoint,
			Prefix:          ac.S3.Prefix,
			PathStyle:       ac.S3.PathStyle,
			AccessKeyID:     ac.S3.AccessKeyID,
			SecretAccessKey: ac.S3.SecretAccessKey,
		})
	default:
		return nil, eris.Errorf("unsupported archive driver: %s", ac.Driver)
	}
}

func engineConfig(c *config.Config) orchestration.Config {
	return orchestration.Config{
		Rollup: rollup.Config{
			LaborFactor:    decimal.NewFromFloat(c.Rollup.LaborFactor),
			OverheadFactor: decimal.NewFromFloat(c.Rollup.OverheadFactor),
			MaxConcurrency: c.Engine.MaxConcurrency,
		},
		MRP:            mrp.Config{CriticalLeadOffsetDays: c.MRP.CriticalLeadOffsetDays},
		MaxConcurrency: c.Engine.MaxConcurrency,
	}
}
