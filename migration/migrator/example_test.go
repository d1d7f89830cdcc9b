package migrator_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing/fstest"

	"github.com/go-extras/go-kit/must"

	"github.com/stokaro/userbase/dbschema"
	"github.com/stokaro/userbase/migration/migrator"
	"github.com/stokaro/userbase/schema"
)

// ExampleMigrator_Up applies migrations registered in code.
func ExampleMigrator_Up() {
	dir := must.Must(os.MkdirTemp("", "migrator-example"))
	defer os.RemoveAll(dir)

	conn := must.Must(dbschema.ConnectToDatabase("sqlite://" + filepath.Join(dir, "app.db")))
	defer conn.Close()

	provider := migrator.NewRegisteredMigrationProvider(
		migrator.CreateMigrationFromSQL(1, "Create notes",
			"CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT NOT NULL);",
			"DROP TABLE notes;"),
		migrator.CreateMigrationFromSQL(2, "Index notes",
			"CREATE INDEX idx_notes_body ON notes (body);",
			"DROP INDEX idx_notes_body;"),
	)

	m := migrator.NewMigrator(conn, provider).WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

	result, err := m.Up(context.Background(), nil)
	if err != nil {
		fmt.Printf("Migration failed: %v\n", err)
		return
	}
	fmt.Println("applied:", result.Versions)

	result = must.Must(m.Down(context.Background(), 1))
	fmt.Println("reverted:", result.Versions)
	// Output:
	// applied: [1 2]
	// reverted: [2]
}

// ExampleNewFSMigrator loads migration files from a file system.
func ExampleNewFSMigrator() {
	dir := must.Must(os.MkdirTemp("", "migrator-example"))
	defer os.RemoveAll(dir)

	conn := must.Must(dbschema.ConnectToDatabase("sqlite://" + filepath.Join(dir, "app.db")))
	defer conn.Close()

	fsys := fstest.MapFS{
		"0001_create_notes.up.sql":   {Data: []byte("CREATE TABLE notes (id INTEGER PRIMARY KEY);")},
		"0001_create_notes.down.sql": {Data: []byte("DROP TABLE notes;")},
	}

	m := must.Must(migrator.NewFSMigrator(conn, fsys)).WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

	status := must.Must(m.GetMigrationStatus(context.Background()))
	fmt.Println("pending:", status.PendingMigrations)
	// Output:
	// pending: [1]
}

// Example_bundledSchema applies the bundled users schema.
func Example_bundledSchema() {
	dir := must.Must(os.MkdirTemp("", "migrator-example"))
	defer os.RemoveAll(dir)

	conn := must.Must(dbschema.ConnectToDatabase("sqlite://" + filepath.Join(dir, "app.db")))
	defer conn.Close()

	fsys := must.Must(schema.Migrations(conn.Dialect()))
	m := must.Must(migrator.NewFSMigrator(conn, fsys)).WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

	result := must.Must(m.Up(context.Background(), nil))
	fmt.Println("applied:", result.Count())
	// Output:
	// applied: 2
}
