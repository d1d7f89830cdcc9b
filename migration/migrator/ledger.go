package migrator

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/stokaro/userbase/core/platform"
	"github.com/stokaro/userbase/dbschema"
)

// DefaultLedgerTable is the table that records applied migrations.
const DefaultLedgerTable = "schema_migrations"

// Record is one applied migration as stored in the ledger.
type Record struct {
	Version   int64     `json:"version"`
	Name      string    `json:"name"`
	Checksum  string    `json:"checksum"`
	AppliedAt time.Time `json:"applied_at"`
}

// Querier is satisfied by *sql.DB, *sql.Tx and *sql.Conn. Passing the
// migration's own transaction makes ledger writes commit or roll back
// together with the schema change.
type Querier interface {
	Execer
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Ledger reads and writes the applied-migrations table.
type Ledger struct {
	dialect string
	table   string
}

// NewLedger returns a ledger stored in table. An empty table name selects
// DefaultLedgerTable.
func NewLedger(dialect, table string) *Ledger {
	if table == "" {
		table = DefaultLedgerTable
	}
	return &Ledger{dialect: dialect, table: table}
}

// Table returns the unquoted ledger table name.
func (l *Ledger) Table() string {
	return l.table
}

// Initialize creates the ledger table if it doesn't exist.
func (l *Ledger) Initialize(ctx context.Context, q Querier) error {
	if _, err := q.ExecContext(ctx, fmt.Sprintf(migrationsSchemaSQL, l.quotedTable())); err != nil {
		return l.unavailable("failed to create migrations table", err)
	}
	return nil
}

// HasApplied reports whether version is recorded as applied.
func (l *Ledger) HasApplied(ctx context.Context, q Querier, version int64) (bool, error) {
	query := l.rebind(fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE version = ?", l.quotedTable()))

	var count int
	if err := q.QueryRowContext(ctx, query, version).Scan(&count); err != nil {
		return false, l.unavailable("failed to query migration", err)
	}
	return count > 0, nil
}

// RecordApplied inserts a ledger row. applied_at is assigned by the store.
func (l *Ledger) RecordApplied(ctx context.Context, q Querier, version int64, name, checksum string) error {
	query := l.rebind(fmt.Sprintf("INSERT INTO %s (version, name, checksum) VALUES (?, ?, ?)", l.quotedTable()))

	if _, err := q.ExecContext(ctx, query, version, name, checksum); err != nil {
		return fmt.Errorf("failed to record migration %d: %w", version, dbschema.WrapError(err))
	}
	return nil
}

// RecordReverted deletes the ledger row for version. It fails if the version
// was not recorded.
func (l *Ledger) RecordReverted(ctx context.Context, q Querier, version int64) error {
	query := l.rebind(fmt.Sprintf("DELETE FROM %s WHERE version = ?", l.quotedTable()))

	result, err := q.ExecContext(ctx, query, version)
	if err != nil {
		return fmt.Errorf("failed to record migration reversion %d: %w", version, dbschema.WrapError(err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to record migration reversion %d: %w", version, err)
	}
	if affected == 0 {
		return fmt.Errorf("failed to record migration reversion %d: version not in ledger", version)
	}
	return nil
}

// ListApplied returns all applied migrations ordered by version.
func (l *Ledger) ListApplied(ctx context.Context, q Querier) ([]Record, error) {
	query := fmt.Sprintf("SELECT version, name, checksum, applied_at FROM %s ORDER BY version", l.quotedTable())

	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, l.unavailable("failed to query applied migrations", err)
	}
	defer rows.Close()

	var applied []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Version, &rec.Name, &rec.Checksum, dbschema.ScanTimestamp(&rec.AppliedAt)); err != nil {
			return nil, l.unavailable("failed to scan migration record", err)
		}
		applied = append(applied, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, l.unavailable("error iterating migration rows", err)
	}

	return applied, nil
}

func (l *Ledger) unavailable(msg string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrLedgerUnavailable, msg, dbschema.WrapError(err))
}

func (l *Ledger) rebind(query string) string {
	return platform.Rebind(l.dialect, query)
}

func (l *Ledger) quotedTable() string {
	return quoteIdentifier(l.dialect, l.table)
}

func (l *Ledger) quotedLockTable() string {
	return quoteIdentifier(l.dialect, l.table+"_lock")
}

func quoteIdentifier(dialect, name string) string {
	if platform.IsMySQLFamily(dialect) {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	// PostgreSQL and SQLite share ANSI double-quoted identifiers.
	return pq.QuoteIdentifier(name)
}
