package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func validDefaults() *Config {
	return &Config{
		Store:   StoreConfig{Driver: "memory", SQLitePath: "prodplan.db", MaxConns: 10, MinConns: 2},
		Data:    DataConfig{Dir: "scenarios/d28cc"},
		Rollup:  RollupConfig{LaborFactor: 0.25, OverheadFactor: 0.15},
		MRP:     MRPConfig{CriticalLeadOffsetDays: 7},
		Engine:  EngineConfig{MaxConcurrency: 4},
		Server:  ServerConfig{Port: 8080},
		Archive: ArchiveConfig{Driver: "none"},
		Events:  EventsConfig{Capacity: 10000},
		Log:     LogConfig{Level: "info", Format: "json"},
	}
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "prodplan.db", cfg.Store.SQLitePath)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, "scenarios/d28cc", cfg.Data.Dir)
	assert.InDelta(t, 0.25, cfg.Rollup.LaborFactor, 0.0001)
	assert.InDelta(t, 0.15, cfg.Rollup.OverheadFactor, 0.0001)
	assert.Equal(t, 7, cfg.MRP.CriticalLeadOffsetDays)
	assert.Equal(t, 4, cfg.Engine.MaxConcurrency)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "none", cfg.Archive.Driver)
	assert.Equal(t, "us-east-1", cfg.Archive.S3.Region)
	assert.Equal(t, 10000, cfg.Events.Capacity)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  sqlite_path: /var/lib/prodplan/plan.db
rollup:
  labor_factor: 0.3
mrp:
  critical_lead_offset_days: 5
archive:
  driver: s3
  s3:
    bucket: prodplan-runs
    endpoint: http://localhost:9000
    path_style: true
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "/var/lib/prodplan/plan.db", cfg.Store.SQLitePath)
	assert.InDelta(t, 0.3, cfg.Rollup.LaborFactor, 0.0001)
	assert.InDelta(t, 0.15, cfg.Rollup.OverheadFactor, 0.0001)
	assert.Equal(t, 5, cfg.MRP.CriticalLeadOffsetDays)
	assert.Equal(t, "s3", cfg.Archive.Driver)
	assert.Equal(t, "prodplan-runs", cfg.Archive.S3.Bucket)
	assert.True(t, cfg.Archive.S3.PathStyle)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoadEnvOverride(t *testing.T) {
	chdirTemp(t)

	t.Setenv("PRODPLAN_STORE_DRIVER", "postgres")
	t.Setenv("PRODPLAN_STORE_DATABASE_URL", "postgres://localhost/prodplan")
	t.Setenv("PRODPLAN_SERVER_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/prodplan", cfg.Store.DatabaseURL)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("PRODPLAN_DATA_DIR=/srv/scenarios\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("PRODPLAN_DATA_DIR") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/srv/scenarios", cfg.Data.Dir)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [driver"), 0o644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestValidateDefaults(t *testing.T) {
	cfg := validDefaults()
	for _, cmd := range []string{"rollup", "mrp", "reconcile", "commit", "load-inventory", "batch", "serve"} {
		assert.NoError(t, cfg.Validate(cmd), cmd)
	}
}

func TestValidateStoreDrivers(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"
	err := cfg.Validate("mrp")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/prodplan"
	assert.NoError(t, cfg.Validate("mrp"))

	cfg.Store.MinConns = 20
	err = cfg.Validate("mrp")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_conns must not exceed")

	cfg.Store.Driver = "mysql"
	err = cfg.Validate("mrp")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be")
}

func TestValidateArchive(t *testing.T) {
	cfg := validDefaults()
	cfg.Archive.Driver = "s3"
	err := cfg.Validate("mrp")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archive.s3.bucket is required")

	cfg.Archive.S3.Bucket = "runs"
	assert.NoError(t, cfg.Validate("mrp"))

	cfg.Archive.Driver = "fs"
	cfg.Archive.Dir = ""
	err = cfg.Validate("mrp")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archive.dir is required")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateMigrate(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sqlite or postgres")

	cfg.Store.Driver = "sqlite"
	assert.NoError(t, cfg.Validate("migrate"))
}

func TestValidateEngineBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Engine.MaxConcurrency = 0
	err := cfg.Validate("rollup")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine.max_concurrency must be between 1 and 64")

	cfg.Engine.MaxConcurrency = 64
	assert.NoError(t, cfg.Validate("rollup"))

	cfg.Rollup.LaborFactor = -0.1
	err = cfg.Validate("rollup")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rollup factors must be >= 0")
}

func TestValidateEventsCapacity(t *testing.T) {
	cfg := validDefaults()

	cfg.Events.Capacity = 0
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "events.capacity must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("explode")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestInitLogger(t *testing.T) {
	orig := zap.L()
	t.Cleanup(func() { zap.ReplaceGlobals(orig) })

	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.True(t, zap.L().Core().Enabled(zap.DebugLevel))

	require.NoError(t, InitLogger(LogConfig{Level: "warn", Format: "json"}))
	assert.False(t, zap.L().Core().Enabled(zap.InfoLevel))

	err := InitLogger(LogConfig{Level: "loud", Format: "json"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: parse log level")
}
