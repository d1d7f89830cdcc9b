package generator_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/userbase/migration/generator"
	"github.com/stokaro/userbase/migration/migrator"
)

var fixedNow = time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)

func TestGenerateEmptyMigration(t *testing.T) {
	c := qt.New(t)

	dir := filepath.Join(c.TempDir(), "migrations")
	files, err := generator.GenerateEmptyMigration(generator.GenerateEmptyMigrationOptions{
		MigrationName: "Add user avatars",
		OutputDir:     dir,
		Now:           fixedNow,
	})
	c.Assert(err, qt.IsNil)
	c.Assert(files.Version, qt.Equals, int64(20250601123000))
	c.Assert(files.UpFile, qt.Equals, filepath.Join(dir, "20250601123000_add_user_avatars.up.sql"))
	c.Assert(files.DownFile, qt.Equals, filepath.Join(dir, "20250601123000_add_user_avatars.down.sql"))

	up, err := os.ReadFile(files.UpFile)
	c.Assert(err, qt.IsNil)
	c.Assert(string(up), qt.Contains, "-- Migration: Add user avatars")
	c.Assert(string(up), qt.Contains, "-- Direction: UP")

	down, err := os.ReadFile(files.DownFile)
	c.Assert(err, qt.IsNil)
	c.Assert(string(down), qt.Contains, "-- Direction: DOWN")
}

func TestGenerateEmptyMigration_LoadsIntoProvider(t *testing.T) {
	c := qt.New(t)

	dir := c.TempDir()
	_, err := generator.GenerateEmptyMigration(generator.GenerateEmptyMigrationOptions{
		MigrationName: "create_users",
		OutputDir:     dir,
		Now:           fixedNow,
	})
	c.Assert(err, qt.IsNil)

	provider, err := migrator.NewFSMigrationProvider(os.DirFS(dir))
	c.Assert(err, qt.IsNil)
	c.Assert(provider.Migrations(), qt.HasLen, 1)
	c.Assert(provider.Migrations()[0].Version, qt.Equals, int64(20250601123000))
	c.Assert(provider.Migrations()[0].Description, qt.Equals, "Create Users")
}

func TestGenerateEmptyMigration_BumpsTakenVersion(t *testing.T) {
	c := qt.New(t)

	dir := c.TempDir()
	opts := generator.GenerateEmptyMigrationOptions{MigrationName: "first", OutputDir: dir, Now: fixedNow}
	first, err := generator.GenerateEmptyMigration(opts)
	c.Assert(err, qt.IsNil)

	opts.MigrationName = "second"
	second, err := generator.GenerateEmptyMigration(opts)
	c.Assert(err, qt.IsNil)
	c.Assert(second.Version, qt.Equals, first.Version+1)

	provider, err := migrator.NewFSMigrationProvider(os.DirFS(dir))
	c.Assert(err, qt.IsNil)
	c.Assert(provider.Migrations(), qt.HasLen, 2)
}

func TestGenerateEmptyMigration_RequiresName(t *testing.T) {
	c := qt.New(t)

	_, err := generator.GenerateEmptyMigration(generator.GenerateEmptyMigrationOptions{OutputDir: c.TempDir()})
	c.Assert(err, qt.ErrorMatches, "migration name is required")
}
