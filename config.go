package preview

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"gopkg.in/yaml.v3"

	"github.com/hugr-lab/preview-go/cache"
	"github.com/hugr-lab/preview-go/filter"
	"github.com/hugr-lab/preview-go/sampling"
)

// Standard errors returned by the preview package.
var (
	// ErrInvalidConfig indicates Config or ServerConfig validation failed.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrUnsupportedDriver indicates an unknown database driver.
	ErrUnsupportedDriver = errors.New("unsupported database driver")
)

// Supported database drivers.
const (
	DriverDuckDB   = "duckdb"
	DriverPostgres = "postgres"
)

// Config is the file configuration of a preview server.
type Config struct {
	// Listen is the gRPC listen address.
	Listen string `yaml:"listen"`

	Database DatabaseConfig `yaml:"database"`
	Tables   TablesConfig   `yaml:"tables"`
	Filter   FilterConfig   `yaml:"filter"`
	Sampling SamplingConfig `yaml:"sampling"`
	Cache    CacheConfig    `yaml:"cache"`

	// QueryTimeout bounds the database work of one preview.
	// 0 disables the timeout.
	QueryTimeout time.Duration `yaml:"query_timeout"`

	// MaxRows caps the rows materialized per query. 0 means no cap.
	MaxRows int `yaml:"max_rows"`

	// MaxMessageSize sets maximum gRPC message size in bytes.
	// 0 uses the gRPC default (4MB).
	MaxMessageSize int `yaml:"max_message_size"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// DatabaseConfig selects the row store.
type DatabaseConfig struct {
	// Driver is DriverDuckDB or DriverPostgres.
	Driver string `yaml:"driver"`

	// DSN is passed to sql.Open. An empty DuckDB DSN opens an in-memory database.
	DSN string `yaml:"dsn"`

	MaxOpenConns int `yaml:"max_open_conns"`
}

// TablesConfig names the row store tables. Names may be schema-qualified.
type TablesConfig struct {
	CommitRows string `yaml:"commit_rows"`
	Rows       string `yaml:"rows"`
}

// FilterConfig bounds filter expressions.
type FilterConfig struct {
	MaxLength int `yaml:"max_length"`
	MaxDepth  int `yaml:"max_depth"`
}

// SamplingConfig configures sampled previews and JSON extraction.
type SamplingConfig struct {
	DefaultPercent float64 `yaml:"default_percent"`
	NestedKey      string  `yaml:"nested_key"`
	DisableNesting bool    `yaml:"disable_nesting"`
}

// CacheConfig configures the preview cache.
type CacheConfig struct {
	Disabled bool          `yaml:"disabled"`
	Capacity int           `yaml:"capacity"`
	TTL      time.Duration `yaml:"ttl"`
	Compress bool          `yaml:"compress"`
}

// Defaults returns a configuration with default values.
func Defaults() *Config {
	return &Config{
		Listen: ":50051",
		Database: DatabaseConfig{
			Driver: DriverDuckDB,
		},
		Tables: TablesConfig{
			CommitRows: sampling.DefaultCommitRowsTable,
			Rows:       sampling.DefaultRowsTable,
		},
		Filter: FilterConfig{
			MaxLength: filter.DefaultMaxLength,
			MaxDepth:  filter.DefaultMaxDepth,
		},
		Sampling: SamplingConfig{
			DefaultPercent: sampling.DefaultSamplePercent,
			NestedKey:      "data",
		},
		Cache: CacheConfig{
			Capacity: cache.DefaultCapacity,
			TTL:      cache.DefaultTTL,
		},
		QueryTimeout: 30 * time.Second,
		LogLevel:     "info",
	}
}

// LoadConfig reads a YAML configuration file over Defaults. ${VAR} and
// ${VAR:-default} references are replaced with environment values before
// parsing. A nil getenv uses os.Getenv.
func LoadConfig(path string, getenv func(string) string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return ParseConfig(data, getenv)
}

// ParseConfig parses YAML configuration data. See LoadConfig.
func ParseConfig(data []byte, getenv func(string) string) (*Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	data = interpolateEnv(data, getenv)

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envPattern matches ${VAR} or ${VAR:-default}
var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// interpolateEnv replaces ${VAR} and ${VAR:-default} patterns with environment values.
func interpolateEnv(data []byte, getenv func(string) string) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		parts := envPattern.FindSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		value := getenv(string(parts[1]))
		if value == "" && len(parts) >= 3 && len(parts[2]) > 0 {
			value = string(parts[2])
		}
		return []byte(value)
	})
}

// Validate checks configuration ranges.
func (c *Config) Validate() error {
	var errs []string

	if c.Listen == "" {
		errs = append(errs, "listen address is required")
	}
	switch c.Database.Driver {
	case DriverDuckDB:
	case DriverPostgres:
		if c.Database.DSN == "" {
			errs = append(errs, "database.dsn is required for postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q: %v", c.Database.Driver, ErrUnsupportedDriver))
	}
	if err := sampling.ValidateTable(c.Tables.CommitRows); err != nil {
		errs = append(errs, fmt.Sprintf("tables.commit_rows: %v", err))
	}
	if err := sampling.ValidateTable(c.Tables.Rows); err != nil {
		errs = append(errs, fmt.Sprintf("tables.rows: %v", err))
	}
	if err := sampling.ValidatePercent(c.Sampling.DefaultPercent); err != nil {
		errs = append(errs, fmt.Sprintf("sampling.default_percent: %v", err))
	}
	if c.Filter.MaxLength < 0 || c.Filter.MaxDepth < 0 {
		errs = append(errs, "filter limits must not be negative")
	}
	if c.Cache.Capacity < 0 {
		errs = append(errs, fmt.Sprintf("invalid cache.capacity: %d", c.Cache.Capacity))
	}
	if c.Cache.TTL < 0 {
		errs = append(errs, fmt.Sprintf("invalid cache.ttl: %s", c.Cache.TTL))
	}
	if c.QueryTimeout < 0 {
		errs = append(errs, fmt.Sprintf("invalid query_timeout: %s", c.QueryTimeout))
	}
	if c.MaxRows < 0 {
		errs = append(errs, fmt.Sprintf("invalid max_rows: %d", c.MaxRows))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	return level, nil
}

// FilterLimits returns the configured filter limits.
func (c *Config) FilterLimits() filter.Limits {
	return filter.Limits{MaxLength: c.Filter.MaxLength, MaxDepth: c.Filter.MaxDepth}
}

// PlannerOptions returns the sampling planner options.
func (c *Config) PlannerOptions() sampling.Options {
	return sampling.Options{
		CommitRowsTable:      c.Tables.CommitRows,
		RowsTable:            c.Tables.Rows,
		DefaultSamplePercent: c.Sampling.DefaultPercent,
		FilterLimits:         c.FilterLimits(),
		NestedKey:            c.Sampling.NestedKey,
		DisableNesting:       c.Sampling.DisableNesting,
	}
}

// CacheOptions returns the cache options.
func (c *Config) CacheOptions(logger *slog.Logger) cache.Options {
	return cache.Options{
		Capacity: c.Cache.Capacity,
		TTL:      c.Cache.TTL,
		Compress: c.Cache.Compress,
		Logger:   logger,
	}
}

// ServerConfig contains configuration for the preview Flight server.
type ServerConfig struct {
	// Engine serves preview requests.
	// REQUIRED: MUST NOT be nil.
	Engine Engine

	// Allocator for Arrow memory management.
	// OPTIONAL: Uses memory.DefaultAllocator if nil.
	Allocator memory.Allocator

	// Logger for internal logging.
	// OPTIONAL: Uses slog.Default() if nil.
	// Note: If LogLevel is specified, a new logger will be created with that level.
	Logger *slog.Logger

	// LogLevel sets the logging level.
	// OPTIONAL: If nil, uses Info level.
	// If Logger is also provided, LogLevel is ignored (use pre-configured logger).
	LogLevel *slog.Level

	// MaxMessageSize sets maximum gRPC message size in bytes.
	// OPTIONAL: If 0, uses gRPC default (4MB).
	// Recommended: 16MB for large previews.
	MaxMessageSize int
}

func (c *ServerConfig) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	if c.LogLevel != nil {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: *c.LogLevel}))
	}
	return slog.Default()
}
