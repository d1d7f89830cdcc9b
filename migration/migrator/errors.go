package migrator

import (
	"errors"
	"fmt"
)

var (
	// ErrChecksumMismatch reports drift: an applied migration's script no
	// longer hashes to the checksum stored in the ledger.
	ErrChecksumMismatch = errors.New("migration checksum mismatch")

	// ErrLedgerUnavailable reports that the ledger table could not be created or read.
	ErrLedgerUnavailable = errors.New("migration ledger unavailable")

	// ErrRunnerBusy reports that another runner holds the migration lock.
	ErrRunnerBusy = errors.New("migration runner busy")

	// ErrMigrationFailed matches any *MigrationFailedError.
	ErrMigrationFailed = errors.New("migration failed")

	// ErrOutOfOrder reports a pending migration older than the latest applied one.
	ErrOutOfOrder = errors.New("migration out of order")

	// ErrUnknownMigration reports an applied version with no known scripts.
	ErrUnknownMigration = errors.New("unknown migration")
)

// ChecksumMismatchError describes a single drifted migration.
type ChecksumMismatchError struct {
	Version  int64
	Recorded string
	Actual   string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("%s: version %d recorded %s, script hashes to %s", ErrChecksumMismatch, e.Version, e.Recorded, e.Actual)
}

// Is makes errors.Is(err, ErrChecksumMismatch) succeed.
func (e *ChecksumMismatchError) Is(target error) bool {
	return target == ErrChecksumMismatch
}

// MigrationFailedError reports which migration failed and why. Migrations
// applied earlier in the same run stay applied.
type MigrationFailedError struct {
	Version     int64
	Description string
	Cause       error
}

func (e *MigrationFailedError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("migration %d failed: %v", e.Version, e.Cause)
	}
	return fmt.Sprintf("migration %d (%s) failed: %v", e.Version, e.Description, e.Cause)
}

func (e *MigrationFailedError) Unwrap() error {
	return e.Cause
}

// Is makes errors.Is(err, ErrMigrationFailed) succeed.
func (e *MigrationFailedError) Is(target error) bool {
	return target == ErrMigrationFailed
}
