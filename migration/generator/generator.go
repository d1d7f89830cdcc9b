// Package generator writes new, empty migration file pairs in the layout the
// migrator loads.
package generator

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/stokaro/userbase/migration/migrator"
)

// GenerateEmptyMigrationOptions contains options for migration generation
type GenerateEmptyMigrationOptions struct {
	// MigrationName becomes the file name suffix, e.g. "add_users"
	MigrationName string
	// OutputDir is the directory where migration files will be saved
	OutputDir string
	// Now overrides the clock used for the version. Zero means time.Now.
	Now time.Time
}

// MigrationFiles represents the generated migration files
type MigrationFiles struct {
	UpFile   string // Path to the up migration file
	DownFile string // Path to the down migration file
	Version  int64  // Migration version (timestamp)
}

// GenerateEmptyMigration creates an up/down pair containing only a header.
// When a migration with the same version already exists in OutputDir the
// version is bumped until it is free.
func GenerateEmptyMigration(opts GenerateEmptyMigrationOptions) (*MigrationFiles, error) {
	if opts.MigrationName == "" {
		return nil, errors.New("migration name is required")
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	version := migrator.VersionFromTime(now)
	slog.Debug("Generated migration version", "version", version)

	upSQL := header(opts.MigrationName, "UP", now)
	downSQL := header(opts.MigrationName, "DOWN", now)

	files, err := createMigrationFiles(opts.OutputDir, version, opts.MigrationName, upSQL, downSQL)
	if err != nil {
		return nil, fmt.Errorf("error creating migration files: %w", err)
	}
	return files, nil
}

func header(name, direction string, now time.Time) string {
	return fmt.Sprintf("-- Migration: %s\n-- Created on: %s\n-- Direction: %s\n\n",
		name, now.UTC().Format(time.RFC3339), direction)
}

// createMigrationFiles creates the up and down migration files
func createMigrationFiles(outputDir string, version int64, migrationName, upSQL, downSQL string) (*MigrationFiles, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	for {
		taken, err := versionTaken(outputDir, version)
		if err != nil {
			return nil, err
		}
		if !taken {
			break
		}
		version++
	}

	upFilePath := filepath.Join(outputDir, migrator.GenerateMigrationFileName(version, migrationName, migrator.DirectionUp))
	downFilePath := filepath.Join(outputDir, migrator.GenerateMigrationFileName(version, migrationName, migrator.DirectionDown))

	if err := os.WriteFile(upFilePath, []byte(upSQL), 0644); err != nil { //nolint:gosec // 0644 is fine
		return nil, fmt.Errorf("failed to write up migration file: %w", err)
	}
	if err := os.WriteFile(downFilePath, []byte(downSQL), 0644); err != nil { //nolint:gosec // 0644 is fine
		return nil, fmt.Errorf("failed to write down migration file: %w", err)
	}

	return &MigrationFiles{
		UpFile:   upFilePath,
		DownFile: downFilePath,
		Version:  version,
	}, nil
}

// versionTaken reports whether any migration file in dir already uses version.
func versionTaken(dir string, version int64) (bool, error) {
	matches, err := filepath.Glob(filepath.Join(dir, fmt.Sprintf("%d_*.sql", version)))
	if err != nil {
		return false, fmt.Errorf("failed to scan output directory: %w", err)
	}
	return len(matches) > 0, nil
}
