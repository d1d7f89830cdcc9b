// Package schema bundles the migrations that create the users model, one
// set per supported dialect.
package schema

import (
	"embed"
	"fmt"
	"io/fs"

	"github.com/go-extras/go-kit/must"

	"github.com/stokaro/userbase/core/platform"
)

//go:embed postgres mysql sqlite
var migrations embed.FS

// Migrations returns the migration files for dialect, laid out for
// migrator.NewFSMigrator. MariaDB shares the MySQL set.
func Migrations(dialect string) (fs.FS, error) {
	var dir string
	switch d := platform.NormalizeDialect(dialect); {
	case d == platform.Postgres:
		dir = "postgres"
	case platform.IsMySQLFamily(d):
		dir = "mysql"
	case d == platform.SQLite:
		dir = "sqlite"
	default:
		return nil, fmt.Errorf("no bundled migrations for dialect %q", dialect)
	}
	return must.Must(fs.Sub(migrations, dir)), nil
}
