package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config is the top-level configuration.
type Config struct {
	Store   StoreConfig   `mapstructure:"store"`
	Data    DataConfig    `mapstructure:"data"`
	Rollup  RollupConfig  `mapstructure:"rollup"`
	MRP     MRPConfig     `mapstructure:"mrp"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Server  ServerConfig  `mapstructure:"server"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Events  EventsConfig  `mapstructure:"events"`
	Log     LogConfig     `mapstructure:"log"`
}

// StoreConfig selects where inventory snapshots and purchase batches live.
type StoreConfig struct {
	Driver      string `mapstructure:"driver"`
	DatabaseURL string `mapstructure:"database_url"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	MaxConns    int32  `mapstructure:"max_conns"`
	MinConns    int32  `mapstructure:"min_conns"`
}

// DataConfig locates the scenario CSV files.
type DataConfig struct {
	Dir string `mapstructure:"dir"`
}

// RollupConfig holds the cost estimate factors.
type RollupConfig struct {
	LaborFactor    float64 `mapstructure:"labor_factor"`
	OverheadFactor float64 `mapstructure:"overhead_factor"`
}

// MRPConfig holds netting settings.
type MRPConfig struct {
	CriticalLeadOffsetDays int `mapstructure:"critical_lead_offset_days"`
}

// EngineConfig bounds parallel per-model work.
type EngineConfig struct {
	MaxConcurrency int `mapstructure:"max_concurrency"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port        int      `mapstructure:"port"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// ArchiveConfig selects where engine runs are archived.
type ArchiveConfig struct {
	Driver string   `mapstructure:"driver"`
	Dir    string   `mapstructure:"dir"`
	S3     S3Config `mapstructure:"s3"`
}

// S3Config holds S3 or MinIO archive settings.
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	Prefix          string `mapstructure:"prefix"`
	PathStyle       bool   `mapstructure:"path_style"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// EventsConfig bounds the in-process event log. The oldest events are
// dropped beyond Capacity.
type EventsConfig struct {
	Capacity int `mapstructure:"capacity"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from .env, config.yaml and PRODPLAN_ environment
// variables, in increasing precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: read .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PRODPLAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.sqlite_path", "prodplan.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("data.dir", "scenarios/d28cc")
	v.SetDefault("rollup.labor_factor", 0.25)
	v.SetDefault("rollup.overhead_factor", 0.15)
	v.SetDefault("mrp.critical_lead_offset_days", 7)
	v.SetDefault("engine.max_concurrency", 4)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("archive.driver", "none")
	v.SetDefault("archive.dir", "runs")
	v.SetDefault("archive.s3.bucket", "")
	v.SetDefault("archive.s3.region", "us-east-1")
	v.SetDefault("archive.s3.endpoint", "")
	v.SetDefault("archive.s3.prefix", "")
	v.SetDefault("archive.s3.path_style", false)
	v.SetDefault("archive.s3.access_key_id", "")
	v.SetDefault("archive.s3.secret_access_key", "")
	v.SetDefault("events.capacity", 10000)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs.
func (c *Config) Validate(command string) error {
	var problems []string

	switch c.Store.Driver {
	case "memory":
	case "sqlite":
		if c.Store.SQLitePath == "" {
			problems = append(problems, "store.sqlite_path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
		if c.Store.MinConns > c.Store.MaxConns {
			problems = append(problems, "store.min_conns must not exceed store.max_conns")
		}
	default:
		problems = append(problems, "store.driver must be memory, sqlite or postgres")
	}

	switch c.Archive.Driver {
	case "none":
	case "fs":
		if c.Archive.Dir == "" {
			problems = append(problems, "archive.dir is required for the fs driver")
		}
	case "s3":
		if c.Archive.S3.Bucket == "" {
			problems = append(problems, "archive.s3.bucket is required for the s3 driver")
		}
	default:
		problems = append(problems, "archive.driver must be none, fs or s3")
	}

	if c.Rollup.LaborFactor < 0 || c.Rollup.OverheadFactor < 0 {
		problems = append(problems, "rollup factors must be >= 0")
	}
	if c.MRP.CriticalLeadOffsetDays < 0 {
		problems = append(problems, "mrp.critical_lead_offset_days must be >= 0")
	}
	if c.Engine.MaxConcurrency < 1 || c.Engine.MaxConcurrency > 64 {
		problems = append(problems, "engine.max_concurrency must be between 1 and 64")
	}
	if c.Events.Capacity < 1 {
		problems = append(problems, "events.capacity must be > 0")
	}

	switch command {
	case "rollup", "mrp", "reconcile", "commit", "load-inventory", "batch":
		if c.Data.Dir == "" {
			problems = append(problems, "data.dir is required")
		}
	case "serve":
		if c.Data.Dir == "" {
			problems = append(problems, "data.dir is required")
		}
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "migrate":
		if c.Store.Driver == "memory" {
			problems = append(problems, "migrate needs the sqlite or postgres driver")
		}
	default:
		problems = append(problems, "unknown mode "+command)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
