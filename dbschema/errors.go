package dbschema

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrTimeout reports that the caller's deadline expired. The transaction
	// in flight was rolled back.
	ErrTimeout = errors.New("operation timed out")

	// ErrStoreUnavailable reports that the relational store could not be reached.
	ErrStoreUnavailable = errors.New("store unavailable")
)

const (
	pgUniqueViolation    = "23505"
	mysqlDuplicateEntry  = 1062
	mysqlLockWaitTimeout = 1205
)

// WrapError maps deadline and connectivity failures onto ErrTimeout and
// ErrStoreUnavailable. Other errors are returned unchanged.
func WrapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrStoreUnavailable):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	case IsConnectionError(err):
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	default:
		return err
	}
}

// errDBClosedMessage is the text of database/sql's unexported error for use
// of a closed pool.
const errDBClosedMessage = "sql: database is closed"

// IsConnectionError reports whether err means the store is unreachable. A
// closed pool counts as unreachable.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	if strings.Contains(err.Error(), errDBClosedMessage) {
		return true
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xff == sqlite3.SQLITE_CANTOPEN
	}
	return false
}

var (
	mysqlDuplicateKeyRegex = regexp.MustCompile(`for key '([^']+)'`)
	sqliteUniqueRegex      = regexp.MustCompile(`UNIQUE constraint failed: ([^(]+)`)
)

// UniqueViolation reports whether err is a unique-constraint violation. The
// returned name identifies what was violated without echoing the offending
// value: the constraint name on PostgreSQL, the key name on MySQL (possibly
// table-qualified, e.g. "users.uq_users_email") and the table.column list on
// SQLite, e.g. "users.email".
func UniqueViolation(err error) (string, bool) {
	if err == nil {
		return "", false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return pgErr.ConstraintName, true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation {
		return pqErr.Constraint, true
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
		if m := mysqlDuplicateKeyRegex.FindStringSubmatch(mysqlErr.Message); m != nil {
			return m[1], true
		}
		return "", true
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		unique := code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY ||
			(code == sqlite3.SQLITE_CONSTRAINT && strings.Contains(sqliteErr.Error(), "UNIQUE constraint failed"))
		if unique {
			if m := sqliteUniqueRegex.FindStringSubmatch(sqliteErr.Error()); m != nil {
				return strings.TrimSpace(m[1]), true
			}
			return "", true
		}
	}

	return "", false
}

// IsLockContention reports whether err means a lock held by another session
// could not be obtained without waiting.
func IsLockContention(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlLockWaitTimeout
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		// Extended codes keep the primary code in the low byte.
		code := sqliteErr.Code() & 0xff
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	}
	return false
}
