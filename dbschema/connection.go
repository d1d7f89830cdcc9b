// Package dbschema owns the connection to the relational store: it resolves
// the dialect from a database URL, opens the matching database/sql driver,
// applies pool settings and classifies driver errors.
package dbschema

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "github.com/lib/pq"              // registers the "postgres" driver
	_ "modernc.org/sqlite"             // registers the "sqlite" driver

	"github.com/stokaro/userbase/core/platform"
)

const (
	// DriverPgx selects the pgx stdlib driver for PostgreSQL (default).
	DriverPgx = "pgx"
	// DriverPq selects the lib/pq driver for PostgreSQL.
	DriverPq = "pq"
)

const (
	poolMaxConnsParam = "pool_max_conns"
	poolMinConnsParam = "pool_min_conns"
)

// DBInfo describes an open connection.
type DBInfo struct {
	Dialect    string
	DriverName string
	Database   string
}

// Options tunes how a connection is opened.
type Options struct {
	// PostgresDriver is DriverPgx or DriverPq. Empty means DriverPgx.
	PostgresDriver  string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DatabaseConnection wraps a connection pool together with its dialect.
type DatabaseConnection struct {
	db   *sql.DB
	info DBInfo
}

// NewDatabaseConnection wraps an already opened pool.
func NewDatabaseConnection(db *sql.DB, dialect string) *DatabaseConnection {
	return &DatabaseConnection{
		db:   db,
		info: DBInfo{Dialect: platform.NormalizeDialect(dialect)},
	}
}

// ConnectToDatabase opens and pings a connection using default options.
func ConnectToDatabase(dbURL string) (*DatabaseConnection, error) {
	return ConnectWithOptions(context.Background(), dbURL, Options{})
}

// ConnectWithOptions opens a pool for dbURL and verifies it is reachable.
// An unreachable store is reported as ErrStoreUnavailable.
func ConnectWithOptions(ctx context.Context, dbURL string, opts Options) (*DatabaseConnection, error) {
	target, err := resolve(dbURL, opts)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(target.driverName, target.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", target.info.Dialect, err)
	}

	maxOpen := opts.MaxOpenConns
	if target.maxConns > 0 {
		maxOpen = target.maxConns
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	maxIdle := opts.MaxIdleConns
	if target.minConns > 0 {
		maxIdle = target.minConns
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: failed to ping %s: %w", ErrStoreUnavailable, target.info.Dialect, err)
	}

	return &DatabaseConnection{db: db, info: target.info}, nil
}

// Connect opens a raw pool for dbURL without wrapping it.
func Connect(dbURL string) (*sql.DB, error) {
	target, err := resolve(dbURL, Options{})
	if err != nil {
		return nil, err
	}
	return sql.Open(target.driverName, target.dsn)
}

// DB returns the underlying pool.
func (c *DatabaseConnection) DB() *sql.DB {
	return c.db
}

// Info returns the connection description.
func (c *DatabaseConnection) Info() DBInfo {
	return c.info
}

// Dialect is shorthand for Info().Dialect.
func (c *DatabaseConnection) Dialect() string {
	return c.info.Dialect
}

// Close closes the pool.
func (c *DatabaseConnection) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// ExecContext executes a statement outside of any transaction.
func (c *DatabaseConnection) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.db.ExecContext(ctx, query, args...)
}

// QueryContext runs a query outside of any transaction.
func (c *DatabaseConnection) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.db.QueryContext(ctx, query, args...)
}

// QueryRowContext runs a single-row query outside of any transaction.
func (c *DatabaseConnection) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return c.db.QueryRowContext(ctx, query, args...)
}

// BeginTx starts a transaction at the store's default isolation level.
func (c *DatabaseConnection) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return c.db.BeginTx(ctx, nil)
}

// Conn pins a single connection from the pool. Session-scoped state such as
// advisory locks must be taken and released on the same pinned connection.
func (c *DatabaseConnection) Conn(ctx context.Context) (*sql.Conn, error) {
	return c.db.Conn(ctx)
}

// Rebind rewrites '?' markers in query for this connection's dialect.
func (c *DatabaseConnection) Rebind(query string) string {
	return platform.Rebind(c.info.Dialect, query)
}

type connectTarget struct {
	driverName string
	dsn        string
	info       DBInfo
	maxConns   int
	minConns   int
}

func resolve(dbURL string, opts Options) (*connectTarget, error) {
	scheme, _, found := strings.Cut(dbURL, "://")
	if !found {
		if strings.HasPrefix(dbURL, "file:") {
			scheme = "file"
		} else {
			return nil, fmt.Errorf("invalid database URL: missing scheme")
		}
	}

	dialect := platform.NormalizeDialect(scheme)
	switch dialect {
	case platform.Postgres:
		return resolvePostgres(dbURL, opts)
	case platform.MySQL, platform.MariaDB:
		return resolveMySQL(dbURL, dialect)
	case platform.SQLite:
		return resolveSQLite(dbURL)
	default:
		return nil, fmt.Errorf("unsupported database scheme %q", scheme)
	}
}

func resolvePostgres(dbURL string, opts Options) (*connectTarget, error) {
	target := &connectTarget{
		driverName: "pgx",
		info:       DBInfo{Dialect: platform.Postgres, DriverName: "pgx"},
	}
	switch strings.ToLower(opts.PostgresDriver) {
	case "", DriverPgx:
	case DriverPq:
		target.driverName = "postgres"
		target.info.DriverName = "postgres"
	default:
		return nil, fmt.Errorf("unsupported postgres driver %q", opts.PostgresDriver)
	}

	if u, err := url.Parse(dbURL); err == nil {
		target.info.Database = strings.TrimPrefix(u.Path, "/")
		target.maxConns, _ = strconv.Atoi(u.Query().Get(poolMaxConnsParam))
		target.minConns, _ = strconv.Atoi(u.Query().Get(poolMinConnsParam))
	}

	// The stdlib drivers reject pgxpool-only parameters, so they are applied to
	// database/sql's pool instead and removed from the DSN.
	target.dsn = removePostgresPoolParams(dbURL)
	return target, nil
}

// removePostgresPoolParams strips pool_max_conns and pool_min_conns from a
// PostgreSQL URL. Unparseable input is returned unchanged.
func removePostgresPoolParams(dbURL string) string {
	u, err := url.Parse(dbURL)
	if err != nil || u.Scheme == "" {
		return dbURL
	}

	q := u.Query()
	if !q.Has(poolMaxConnsParam) && !q.Has(poolMinConnsParam) {
		return dbURL
	}
	q.Del(poolMaxConnsParam)
	q.Del(poolMinConnsParam)
	u.RawQuery = q.Encode()
	return u.String()
}

func resolveMySQL(dbURL, dialect string) (*connectTarget, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return nil, fmt.Errorf("invalid %s URL: %w", dialect, err)
	}

	cfg := mysql.NewConfig()
	cfg.User = u.User.Username()
	cfg.Passwd, _ = u.User.Password()
	cfg.Net = "tcp"
	cfg.Addr = u.Host
	if u.Port() == "" {
		cfg.Addr = u.Host + ":3306"
	}
	cfg.DBName = strings.TrimPrefix(u.Path, "/")
	// Timestamps are scanned into time.Time.
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	for key, values := range u.Query() {
		if len(values) == 0 {
			continue
		}
		if cfg.Params == nil {
			cfg.Params = map[string]string{}
		}
		cfg.Params[key] = values[0]
	}

	return &connectTarget{
		driverName: "mysql",
		dsn:        cfg.FormatDSN(),
		info:       DBInfo{Dialect: dialect, DriverName: "mysql", Database: cfg.DBName},
	}, nil
}

func resolveSQLite(dbURL string) (*connectTarget, error) {
	path := dbURL
	for _, prefix := range []string{"sqlite3://", "sqlite://", "file://", "file:"} {
		if strings.HasPrefix(path, prefix) {
			path = strings.TrimPrefix(path, prefix)
			break
		}
	}

	path, rawQuery, _ := strings.Cut(path, "?")
	if path == "" {
		return nil, fmt.Errorf("invalid sqlite URL: missing path")
	}

	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, fmt.Errorf("invalid sqlite URL: %w", err)
	}
	pragmas := strings.Join(query["_pragma"], ",")
	if !strings.Contains(pragmas, "foreign_keys") {
		query.Add("_pragma", "foreign_keys(1)")
	}
	if !strings.Contains(pragmas, "busy_timeout") {
		query.Add("_pragma", "busy_timeout(5000)")
	}
	// Writers take the write lock at BEGIN so concurrent transactions queue
	// on busy_timeout instead of failing on lock upgrade.
	if !query.Has("_txlock") {
		query.Set("_txlock", "immediate")
	}

	return &connectTarget{
		driverName: "sqlite",
		dsn:        "file:" + path + "?" + query.Encode(),
		info:       DBInfo{Dialect: platform.SQLite, DriverName: "sqlite", Database: path},
	}, nil
}
