package migrator

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/stokaro/userbase/dbschema"
)

// MigrationStatus represents the current state of migrations
type MigrationStatus struct {
	CurrentVersion    int64   `json:"current_version"`
	AppliedMigrations []int64 `json:"applied_migrations"`
	PendingMigrations []int64 `json:"pending_migrations"`
	DriftedMigrations []int64 `json:"drifted_migrations"`
	TotalMigrations   int     `json:"total_migrations"`
	HasPendingChanges bool    `json:"has_pending_changes"`
}

// Result lists the versions an Up or Down run applied or reverted, in the
// order they were processed. An empty result means there was nothing to do.
type Result struct {
	Direction string  `json:"direction"`
	Versions  []int64 `json:"versions"`
}

// Count returns the number of migrations processed.
func (r *Result) Count() int {
	return len(r.Versions)
}

// Migrator applies and reverts versioned migrations and keeps the ledger in
// step with what actually committed.
//
// Every Up or Down invocation holds a lock scoped to the ledger, so two
// runners cannot interleave. Each migration runs in its own transaction
// together with its ledger write. On MySQL most DDL statements commit
// implicitly, so a failing MySQL script can leave earlier statements of that
// same script applied.
type Migrator struct {
	conn              *dbschema.DatabaseConnection
	migrationProvider MigrationProvider
	ledger            *Ledger
	logger            *slog.Logger
}

// NewFSMigrator creates a new migrator that loads migrations from a filesystem.
// It scans the provided filesystem for migration files following the naming convention
// NNNNNNNNNN_description.up.sql and NNNNNNNNNN_description.down.sql.
// Returns an error if the filesystem cannot be scanned or if any migrations are incomplete.
func NewFSMigrator(conn *dbschema.DatabaseConnection, fsys fs.FS) (*Migrator, error) {
	provider, err := NewFSMigrationProvider(fsys)
	if err != nil {
		return nil, err
	}
	return NewMigrator(conn, provider), nil
}

// NewMigrator creates a new migrator with the given database connection
func NewMigrator(conn *dbschema.DatabaseConnection, provider MigrationProvider) *Migrator {
	dialect := ""
	if conn != nil {
		dialect = conn.Dialect()
	}
	return &Migrator{
		conn:              conn,
		migrationProvider: provider,
		ledger:            NewLedger(dialect, DefaultLedgerTable),
		logger:            slog.Default(),
	}
}

// WithLogger sets the logger for the migrator
func (m *Migrator) WithLogger(l *slog.Logger) *Migrator {
	tmp := *m
	tmp.logger = l
	return &tmp
}

// WithLedgerTable stores the ledger in table instead of DefaultLedgerTable.
func (m *Migrator) WithLedgerTable(table string) *Migrator {
	tmp := *m
	tmp.ledger = NewLedger(m.ledger.dialect, table)
	return &tmp
}

// MigrationProvider returns the migration provider
func (m *Migrator) MigrationProvider() MigrationProvider {
	return m.migrationProvider
}

// Ledger returns the ledger the migrator records into.
func (m *Migrator) Ledger() *Ledger {
	return m.ledger
}

// MigrateUp applies every pending migration.
func (m *Migrator) MigrateUp(ctx context.Context) (*Result, error) {
	return m.Up(ctx, nil)
}

// MigrateUpTo applies pending migrations with versions up to and including target.
func (m *Migrator) MigrateUpTo(ctx context.Context, target int64) (*Result, error) {
	return m.Up(ctx, &target)
}

// MigrateDown reverts the most recently applied migration.
func (m *Migrator) MigrateDown(ctx context.Context) (*Result, error) {
	return m.Down(ctx, 1)
}

// Up applies pending migrations in ascending version order, stopping after
// target when it is non-nil. Applied scripts are checked for drift first;
// any mismatch aborts the run before the schema is touched. A pending
// migration older than the newest applied one is refused with ErrOutOfOrder.
// The first failing migration halts the run; earlier ones stay applied.
func (m *Migrator) Up(ctx context.Context, target *int64) (*Result, error) {
	result := &Result{Direction: DirectionUp}

	release, err := m.lock(ctx)
	if err != nil {
		return result, err
	}
	defer m.unlock(ctx, release)

	applied, err := m.prepare(ctx)
	if err != nil {
		return result, err
	}

	appliedSet := make(map[int64]bool, len(applied))
	var currentVersion int64
	for _, rec := range applied {
		appliedSet[rec.Version] = true
		currentVersion = max(currentVersion, rec.Version)
	}

	migrations := m.migrationProvider.Migrations()
	m.logger.Info("Migrating up", "currentVersion", currentVersion, "targetVersion", target, "totalMigrations", len(migrations))

	for _, migration := range migrations {
		if appliedSet[migration.Version] {
			m.logger.Debug("Skipping migration", "version", migration.Version, "description", migration.Description)
			continue
		}
		if target != nil && migration.Version > *target {
			break
		}
		if migration.Version < currentVersion {
			return result, &MigrationFailedError{
				Version:     migration.Version,
				Description: migration.Description,
				Cause:       fmt.Errorf("%w: version %d is older than applied version %d", ErrOutOfOrder, migration.Version, currentVersion),
			}
		}

		m.logger.Info("Applying migration", "version", migration.Version, "description", migration.Description)
		if err := m.apply(ctx, migration); err != nil {
			m.logger.Error("Migration failed", "version", migration.Version, "error", err)
			return result, err
		}
		result.Versions = append(result.Versions, migration.Version)
		currentVersion = migration.Version
		m.logger.Info("Applied migration", "version", migration.Version, "description", migration.Description)
	}

	if result.Count() == 0 {
		m.logger.Info("No pending migrations")
	} else {
		m.logger.Info("Migrated up successfully", "applied", result.Count(), "currentVersion", currentVersion)
	}
	return result, nil
}

// Down reverts the steps most recently applied migrations, newest first, using
// each one's down script. steps larger than the number of applied migrations
// reverts all of them; steps <= 0 does nothing.
func (m *Migrator) Down(ctx context.Context, steps int) (*Result, error) {
	result := &Result{Direction: DirectionDown}
	if steps <= 0 {
		return result, nil
	}

	release, err := m.lock(ctx)
	if err != nil {
		return result, err
	}
	defer m.unlock(ctx, release)

	applied, err := m.prepare(ctx)
	if err != nil {
		return result, err
	}

	byVersion := m.migrationsByVersion()

	m.logger.Info("Migrating down", "steps", steps, "appliedMigrations", len(applied))

	for i := len(applied) - 1; i >= 0 && result.Count() < steps; i-- {
		rec := applied[i]
		migration, ok := byVersion[rec.Version]
		if !ok {
			return result, &MigrationFailedError{Version: rec.Version, Description: rec.Name, Cause: ErrUnknownMigration}
		}

		m.logger.Info("Rolling back migration", "version", migration.Version, "description", migration.Description)
		if err := m.revert(ctx, migration); err != nil {
			m.logger.Error("Rollback failed", "version", migration.Version, "error", err)
			return result, err
		}
		result.Versions = append(result.Versions, migration.Version)
		m.logger.Info("Rolled back migration", "version", migration.Version, "description", migration.Description)
	}

	m.logger.Info("Migrated down successfully", "reverted", result.Count())
	return result, nil
}

// GetAppliedMigrations returns the ledger contents ordered by version.
func (m *Migrator) GetAppliedMigrations(ctx context.Context) ([]Record, error) {
	if err := m.ledger.Initialize(ctx, m.conn.DB()); err != nil {
		return nil, err
	}
	return m.ledger.ListApplied(ctx, m.conn.DB())
}

// GetPendingMigrations returns the versions that have not been applied yet.
func (m *Migrator) GetPendingMigrations(ctx context.Context) ([]int64, error) {
	status, err := m.GetMigrationStatus(ctx)
	if err != nil {
		return nil, err
	}
	return status.PendingMigrations, nil
}

// GetMigrationStatus reports applied, pending and drifted migrations. It
// takes no lock and changes nothing except creating the ledger table.
func (m *Migrator) GetMigrationStatus(ctx context.Context) (*MigrationStatus, error) {
	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	migrations := m.migrationProvider.Migrations()
	byVersion := m.migrationsByVersion()

	status := &MigrationStatus{
		AppliedMigrations: []int64{},
		PendingMigrations: []int64{},
		DriftedMigrations: []int64{},
		TotalMigrations:   len(migrations),
	}

	appliedSet := make(map[int64]bool, len(applied))
	for _, rec := range applied {
		appliedSet[rec.Version] = true
		status.AppliedMigrations = append(status.AppliedMigrations, rec.Version)
		status.CurrentVersion = max(status.CurrentVersion, rec.Version)
		if migration, ok := byVersion[rec.Version]; ok && migration.Checksum() != rec.Checksum {
			status.DriftedMigrations = append(status.DriftedMigrations, rec.Version)
		}
	}

	for _, migration := range migrations {
		if !appliedSet[migration.Version] {
			status.PendingMigrations = append(status.PendingMigrations, migration.Version)
		}
	}
	status.HasPendingChanges = len(status.PendingMigrations) > 0

	return status, nil
}

// Verify checks every applied migration against its current script content
// and returns the first drift found as a *ChecksumMismatchError.
func (m *Migrator) Verify(ctx context.Context) error {
	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}
	return m.verifyChecksums(applied)
}

// Unlock clears a migration lock left behind by a crashed runner. It only
// has an effect on stores where the lock is a table row (SQLite); session
// locks on PostgreSQL and MySQL are released when their session ends.
func (m *Migrator) Unlock(ctx context.Context) error {
	if err := newLocker(m.conn, m.ledger).ForceRelease(ctx); err != nil {
		return err
	}
	m.logger.Warn("Migration lock released", "table", m.ledger.Table())
	return nil
}

func (m *Migrator) lock(ctx context.Context) (releaseFunc, error) {
	release, err := newLocker(m.conn, m.ledger).Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return release, nil
}

func (m *Migrator) unlock(ctx context.Context, release releaseFunc) {
	// The lock must be released even when the caller's deadline has passed.
	if err := release(context.WithoutCancel(ctx)); err != nil {
		m.logger.Error("Failed to release migration lock", "error", err)
	}
}

// prepare makes sure the ledger exists, loads it and rejects drift.
func (m *Migrator) prepare(ctx context.Context) ([]Record, error) {
	if err := m.validateProvider(); err != nil {
		return nil, err
	}
	if err := m.ledger.Initialize(ctx, m.conn.DB()); err != nil {
		return nil, err
	}
	applied, err := m.ledger.ListApplied(ctx, m.conn.DB())
	if err != nil {
		return nil, err
	}
	if err := m.verifyChecksums(applied); err != nil {
		return nil, err
	}
	return applied, nil
}

func (m *Migrator) validateProvider() error {
	seen := make(map[int64]bool)
	for _, migration := range m.migrationProvider.Migrations() {
		if migration.Version <= 0 {
			return fmt.Errorf("invalid migration version %d (%s)", migration.Version, migration.Description)
		}
		if seen[migration.Version] {
			return fmt.Errorf("duplicate migration version %d", migration.Version)
		}
		seen[migration.Version] = true
	}
	return nil
}

func (m *Migrator) verifyChecksums(applied []Record) error {
	byVersion := m.migrationsByVersion()

	var firstMismatch error
	for _, rec := range applied {
		migration, ok := byVersion[rec.Version]
		if !ok {
			m.logger.Warn("Applied migration has no script", "version", rec.Version, "name", rec.Name)
			continue
		}
		if actual := migration.Checksum(); actual != rec.Checksum {
			m.logger.Error("Migration drift detected", "version", rec.Version, "recorded", rec.Checksum, "actual", actual)
			if firstMismatch == nil {
				firstMismatch = &ChecksumMismatchError{Version: rec.Version, Recorded: rec.Checksum, Actual: actual}
			}
		}
	}
	return firstMismatch
}

func (m *Migrator) migrationsByVersion() map[int64]*Migration {
	migrations := m.migrationProvider.Migrations()
	byVersion := make(map[int64]*Migration, len(migrations))
	for _, migration := range migrations {
		byVersion[migration.Version] = migration
	}
	return byVersion
}

// apply runs the up script and the ledger insert in one transaction.
func (m *Migrator) apply(ctx context.Context, migration *Migration) error {
	return m.inTransaction(ctx, migration, func(q Querier) error {
		if err := executeScript(ctx, q, migration.UpSQL); err != nil {
			return err
		}
		return m.ledger.RecordApplied(ctx, q, migration.Version, migration.Description, migration.Checksum())
	})
}

// revert runs the down script and the ledger delete in one transaction.
func (m *Migrator) revert(ctx context.Context, migration *Migration) error {
	return m.inTransaction(ctx, migration, func(q Querier) error {
		if err := executeScript(ctx, q, migration.DownSQL); err != nil {
			return err
		}
		return m.ledger.RecordReverted(ctx, q, migration.Version)
	})
}

func (m *Migrator) inTransaction(ctx context.Context, migration *Migration, fn func(Querier) error) error {
	failed := func(err error) error {
		return &MigrationFailedError{
			Version:     migration.Version,
			Description: migration.Description,
			Cause:       dbschema.WrapError(err),
		}
	}

	tx, err := m.conn.BeginTx(ctx)
	if err != nil {
		return failed(fmt.Errorf("failed to begin transaction: %w", err))
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return failed(err)
	}

	if err := tx.Commit(); err != nil {
		return failed(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}
