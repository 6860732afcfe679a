package migrations

import "github.com/uptrace/bun/migrate"

// Migrations collects the schema migrations. Each file registers itself; the
// file name carries the migration version.
var Migrations = migrate.NewMigrations()
