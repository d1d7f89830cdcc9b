package migrator

import (
	"context"
	"crypto/sha256"
	"database/sql"
	_ "embed"
	"encoding/hex"
	"fmt"

	"github.com/stokaro/userbase/core/sqlutil"
)

//go:embed base/schema.sql
var migrationsSchemaSQL string

//go:embed base/lock_schema.sql
var lockSchemaSQL string

// Execer is satisfied by *sql.DB, *sql.Tx and *sql.Conn.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SplitSQLStatements splits a SQL script into individual statements.
// This is needed because MySQL doesn't handle multiple statements in a single Exec call.
// Semicolons within string literals, quoted identifiers and comments are not delimiters.
func SplitSQLStatements(sql string) []string {
	return sqlutil.SplitSQLStatements(sqlutil.StripComments(sql))
}

// Migration is a versioned pair of scripts. The scripts are opaque,
// store-native statement text.
type Migration struct {
	Version     int64
	Description string
	UpSQL       string
	DownSQL     string
}

// Checksum returns the hex-encoded SHA-256 of the up script. It is recorded
// in the ledger when the migration is applied and used for drift detection.
func (m *Migration) Checksum() string {
	sum := sha256.Sum256([]byte(m.UpSQL))
	return hex.EncodeToString(sum[:])
}

// CreateMigrationFromSQL creates a migration from SQL strings
// This is useful for programmatically creating migrations
func CreateMigrationFromSQL(version int64, description, upSQL, downSQL string) *Migration {
	return &Migration{
		Version:     version,
		Description: description,
		UpSQL:       upSQL,
		DownSQL:     downSQL,
	}
}

// executeScript splits script into statements and executes them in order on q.
func executeScript(ctx context.Context, q Execer, script string) error {
	for _, stmt := range SplitSQLStatements(script) {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute SQL statement: %w\nSQL: %s", err, stmt)
		}
	}
	return nil
}
