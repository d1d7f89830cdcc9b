// Package config holds the settings shared by the userbase CLI and by
// programs embedding the migrator and repository.
//
// Settings come from, in increasing precedence: built-in defaults, an
// optional YAML/TOML/JSON file, USERBASE_* environment variables and finally
// programmatic options (which the CLI derives from its flags).
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/stokaro/userbase/core/platform"
	"github.com/stokaro/userbase/dbschema"
	"github.com/stokaro/userbase/migration/migrator"
)

// EnvPrefix prefixes every environment variable, e.g. USERBASE_DATABASE_URL.
const EnvPrefix = "USERBASE"

// Config holds the application configuration.
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Migrations MigrationsConfig `mapstructure:"migrations"`
	Log        LogConfig        `mapstructure:"log"`
}

// DatabaseConfig describes the relational store.
type DatabaseConfig struct {
	// URL selects the dialect by scheme: postgres://, mysql://, mariadb:// or sqlite://.
	URL string `mapstructure:"url"`
	// Driver picks the PostgreSQL driver: "pgx" or "pq".
	Driver          string        `mapstructure:"driver"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	// Timeout bounds every CLI operation. Zero means no deadline.
	Timeout time.Duration `mapstructure:"timeout"`
}

// MigrationsConfig locates the migration scripts and the ledger.
type MigrationsConfig struct {
	// Dir holds NNNN_name.up.sql / NNNN_name.down.sql pairs. Empty selects
	// the bundled users schema for the configured dialect.
	Dir   string `mapstructure:"dir"`
	Table string `mapstructure:"table"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Option changes a Config after it has been loaded.
type Option func(*Config)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:  dbschema.DriverPgx,
			Timeout: 30 * time.Second,
		},
		Migrations: MigrationsConfig{
			Table: migrator.DefaultLedgerTable,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from path (optional) and the environment, then
// applies opts. With an empty path, userbase.{yaml,toml,json} is looked up in
// the working directory; a missing file there is not an error.
func Load(path string, opts ...Option) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("userbase")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("database.url", d.Database.URL)
	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.max_open_conns", d.Database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", d.Database.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", d.Database.ConnMaxLifetime)
	v.SetDefault("database.timeout", d.Database.Timeout)
	v.SetDefault("migrations.dir", d.Migrations.Dir)
	v.SetDefault("migrations.table", d.Migrations.Table)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// WithDatabaseURL overrides the database URL when url is not empty.
func WithDatabaseURL(url string) Option {
	return func(c *Config) {
		if url != "" {
			c.Database.URL = url
		}
	}
}

// WithMigrationsDir overrides the migrations directory when dir is not empty.
func WithMigrationsDir(dir string) Option {
	return func(c *Config) {
		if dir != "" {
			c.Migrations.Dir = dir
		}
	}
}

// WithLedgerTable overrides the ledger table when table is not empty.
func WithLedgerTable(table string) Option {
	return func(c *Config) {
		if table != "" {
			c.Migrations.Table = table
		}
	}
}

// WithLogLevel overrides the log level when level is not empty.
func WithLogLevel(level string) Option {
	return func(c *Config) {
		if level != "" {
			c.Log.Level = level
		}
	}
}

// Validate checks values that cannot be checked by type alone. An empty
// database URL is allowed here; commands that need a store report it.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "", dbschema.DriverPgx, dbschema.DriverPq:
	default:
		return fmt.Errorf("invalid database driver %q (expected %s or %s)", c.Database.Driver, dbschema.DriverPgx, dbschema.DriverPq)
	}
	if c.Database.MaxOpenConns == 1 && usesSessionLock(c.Database.URL) {
		return errors.New("invalid database max_open_conns 1: the migration lock pins a connection, so PostgreSQL and MySQL need at least 2")
	}
	if c.Database.Timeout < 0 {
		return fmt.Errorf("invalid database timeout %s", c.Database.Timeout)
	}
	if _, err := c.Log.level(); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid log format %q (expected text or json)", c.Log.Format)
	}
	return nil
}

// usesSessionLock reports whether the URL selects a store whose migration lock
// is held on a dedicated session.
func usesSessionLock(url string) bool {
	scheme, _, ok := strings.Cut(url, "://")
	if !ok {
		return false
	}
	dialect := platform.NormalizeDialect(scheme)
	return dialect == platform.Postgres || platform.IsMySQLFamily(dialect)
}

// ConnectOptions converts the database settings for dbschema.ConnectWithOptions.
func (d DatabaseConfig) ConnectOptions() dbschema.Options {
	return dbschema.Options{
		PostgresDriver:  d.Driver,
		MaxOpenConns:    d.MaxOpenConns,
		MaxIdleConns:    d.MaxIdleConns,
		ConnMaxLifetime: d.ConnMaxLifetime,
	}
}

// NewLogger builds a slog logger writing to w.
func (l LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := l.level()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(l.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func (l LogConfig) level() (slog.Level, error) {
	var level slog.Level
	if l.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", l.Level, err)
	}
	return level, nil
}
