package migrator

import (
	"fmt"
	"io/fs"
	"maps"
	"slices"
	"sort"
)

// MigrationProvider provides a list of migrations
type MigrationProvider interface {
	// Migrations provides a list of migrations sorted by version in ascending order
	Migrations() []*Migration
}

// RegisteredMigrationProvider is a simple in-memory implementation of MigrationProvider
type RegisteredMigrationProvider struct {
	migrations []*Migration
	sorted     bool
}

// NewRegisteredMigrationProvider creates a new in-memory migration provider with the given migrations.
// The migrations will be sorted by version when accessed through the Migrations() method.
func NewRegisteredMigrationProvider(migrations ...*Migration) *RegisteredMigrationProvider {
	return &RegisteredMigrationProvider{
		migrations: migrations,
	}
}

// Register adds a migration to the provider
func (p *RegisteredMigrationProvider) Register(migration *Migration) {
	p.migrations = append(p.migrations, migration)
	p.sorted = false
}

// Migrations returns the list of migrations sorted by version in ascending order
func (p *RegisteredMigrationProvider) Migrations() []*Migration {
	p.maybeSort()
	return p.migrations
}

// maybeSort sorts the migrations if they haven't been sorted yet
func (p *RegisteredMigrationProvider) maybeSort() {
	if p.sorted {
		return
	}
	sortMigrations(p.migrations)
	p.sorted = true
}

// FSMigrationProvider is a migration provider that loads migrations from a filesystem.
// It scans the filesystem for migration files following the naming convention and
// reads both scripts of every migration up front, so checksums reflect the
// content at load time.
type FSMigrationProvider struct {
	fsys       fs.FS
	migrations []*Migration
}

// NewFSMigrationProvider creates a new filesystem-based migration provider.
// It returns an error if the filesystem cannot be scanned, if any migration is
// missing its up or down file, or if two files claim the same version and direction.
func NewFSMigrationProvider(fsys fs.FS) (*FSMigrationProvider, error) {
	p := &FSMigrationProvider{fsys: fsys}
	if err := p.load(); err != nil {
		return nil, err
	}
	return p, nil
}

// Migrations returns the list of migrations loaded from the filesystem, sorted by version in ascending order.
func (p *FSMigrationProvider) Migrations() []*Migration {
	return p.migrations
}

type migrationParts struct {
	migration *Migration
	hasUp     bool
	hasDown   bool
}

func (p *FSMigrationProvider) load() error {
	partsMap := make(map[int64]*migrationParts) // version -> migration

	err := fs.WalkDir(p.fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return nil
		}

		migrationFile, err := ParseMigrationFileName(d.Name())
		if err != nil {
			// Skip files that don't match migration pattern
			return nil
		}

		content, err := fs.ReadFile(p.fsys, path)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", path, err)
		}

		parts, exists := partsMap[migrationFile.Version]
		if !exists {
			parts = &migrationParts{migration: &Migration{
				Version:     migrationFile.Version,
				Description: migrationFile.Name,
			}}
			partsMap[migrationFile.Version] = parts
		}

		switch migrationFile.Direction {
		case DirectionUp:
			if parts.hasUp {
				return fmt.Errorf("duplicate up migration for version %d: %s", migrationFile.Version, path)
			}
			parts.migration.UpSQL = string(content)
			parts.hasUp = true
		case DirectionDown:
			if parts.hasDown {
				return fmt.Errorf("duplicate down migration for version %d: %s", migrationFile.Version, path)
			}
			parts.migration.DownSQL = string(content)
			parts.hasDown = true
		default:
			return fmt.Errorf("invalid migration direction: %s", migrationFile.Direction)
		}

		return nil
	})

	if err != nil {
		return fmt.Errorf("failed to scan migrations directory: %w", err)
	}

	var incompleteMigrations []int64
	for version, parts := range partsMap {
		if !parts.hasUp || !parts.hasDown {
			incompleteMigrations = append(incompleteMigrations, version)
		}
	}

	if len(incompleteMigrations) > 0 {
		slices.Sort(incompleteMigrations)
		return fmt.Errorf("incomplete migrations found (missing up or down files): %v", incompleteMigrations)
	}

	p.migrations = make([]*Migration, 0, len(partsMap))
	for _, version := range slices.Sorted(maps.Keys(partsMap)) {
		p.migrations = append(p.migrations, partsMap[version].migration)
	}

	return nil
}

func sortMigrations(migrations []*Migration) {
	sort.SliceStable(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
}
