package migrator

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/stokaro/userbase/core/platform"
	"github.com/stokaro/userbase/dbschema"
)

// releaseFunc releases a lock obtained by a locker.
type releaseFunc func(context.Context) error

// locker provides mutual exclusion between runner instances sharing a ledger.
// Acquire never blocks waiting for another holder: contention is ErrRunnerBusy.
type locker interface {
	Acquire(ctx context.Context) (releaseFunc, error)
	// ForceRelease clears a lock left behind by a dead session, where the
	// lock mechanism outlives sessions.
	ForceRelease(ctx context.Context) error
}

func newLocker(conn *dbschema.DatabaseConnection, ledger *Ledger) locker {
	switch dialect := conn.Dialect(); {
	case dialect == platform.Postgres:
		return &advisoryLocker{conn: conn, key: int64(xxhash.Sum64String("userbase:" + ledger.Table()))}
	case platform.IsMySQLFamily(dialect):
		return &namedLocker{conn: conn, name: mysqlLockName(ledger.Table())}
	default:
		return &tableLocker{conn: conn, ledger: ledger}
	}
}

// advisoryLocker uses a PostgreSQL session-level advisory lock held on a
// pinned connection for the whole run. The migrations themselves need a second
// connection from the pool.
type advisoryLocker struct {
	conn *dbschema.DatabaseConnection
	key  int64
}

func (l *advisoryLocker) Acquire(ctx context.Context) (releaseFunc, error) {
	conn, err := l.conn.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to pin connection for migration lock: %w", dbschema.WrapError(err))
	}

	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.key).Scan(&acquired); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to acquire migration lock: %w", dbschema.WrapError(err))
	}
	if !acquired {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: advisory lock %d is held by another session", ErrRunnerBusy, l.key)
	}

	return func(ctx context.Context) error {
		defer conn.Close()
		var released bool
		if err := conn.QueryRowContext(ctx, "SELECT pg_advisory_unlock($1)", l.key).Scan(&released); err != nil {
			return fmt.Errorf("failed to release migration lock: %w", err)
		}
		return nil
	}, nil
}

// ForceRelease is a no-op: advisory locks die with their session.
func (l *advisoryLocker) ForceRelease(context.Context) error {
	return nil
}

// namedLocker uses MySQL's GET_LOCK with a zero timeout on a pinned connection.
type namedLocker struct {
	conn *dbschema.DatabaseConnection
	name string
}

func (l *namedLocker) Acquire(ctx context.Context) (releaseFunc, error) {
	conn, err := l.conn.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to pin connection for migration lock: %w", dbschema.WrapError(err))
	}

	var acquired sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, 0)", l.name).Scan(&acquired); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to acquire migration lock: %w", dbschema.WrapError(err))
	}
	if !acquired.Valid {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to acquire migration lock %q", l.name)
	}
	if acquired.Int64 != 1 {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: lock %q is held by another session", ErrRunnerBusy, l.name)
	}

	return func(ctx context.Context) error {
		defer conn.Close()
		var released sql.NullInt64
		if err := conn.QueryRowContext(ctx, "SELECT RELEASE_LOCK(?)", l.name).Scan(&released); err != nil {
			return fmt.Errorf("failed to release migration lock: %w", err)
		}
		return nil
	}, nil
}

// ForceRelease is a no-op: named locks die with their session.
func (l *namedLocker) ForceRelease(context.Context) error {
	return nil
}

// mysqlLockName keeps lock names within MySQL's 64 character limit.
func mysqlLockName(table string) string {
	name := "userbase:" + table
	if len(name) > 64 {
		name = fmt.Sprintf("userbase:%x", xxhash.Sum64String(table))
	}
	return name
}

// tableLocker claims a single row in <ledger>_lock. It serves stores without
// session locks, such as SQLite. The row survives a crashed runner and must
// then be cleared with ForceRelease.
type tableLocker struct {
	conn   *dbschema.DatabaseConnection
	ledger *Ledger
}

func (l *tableLocker) Acquire(ctx context.Context) (releaseFunc, error) {
	if _, err := l.conn.ExecContext(ctx, fmt.Sprintf(lockSchemaSQL, l.ledger.quotedLockTable())); err != nil {
		if dbschema.IsLockContention(err) {
			return nil, fmt.Errorf("%w: %w", ErrRunnerBusy, err)
		}
		return nil, fmt.Errorf("failed to create migration lock table: %w", dbschema.WrapError(err))
	}

	insert := fmt.Sprintf("INSERT INTO %s (id) VALUES (1)", l.ledger.quotedLockTable())
	if _, err := l.conn.ExecContext(ctx, insert); err != nil {
		if _, ok := dbschema.UniqueViolation(err); ok || dbschema.IsLockContention(err) {
			return nil, fmt.Errorf("%w: lock row in %s is held", ErrRunnerBusy, l.ledger.quotedLockTable())
		}
		return nil, fmt.Errorf("failed to acquire migration lock: %w", dbschema.WrapError(err))
	}

	return l.ForceRelease, nil
}

func (l *tableLocker) ForceRelease(ctx context.Context) error {
	if _, err := l.conn.ExecContext(ctx, fmt.Sprintf(lockSchemaSQL, l.ledger.quotedLockTable())); err != nil {
		return fmt.Errorf("failed to create migration lock table: %w", dbschema.WrapError(err))
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE id = 1", l.ledger.quotedLockTable())
	if _, err := l.conn.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to release migration lock: %w", dbschema.WrapError(err))
	}
	return nil
}
