package migrations

import "github.com/uptrace/bun/migrate"

// Migrations is the set of schema changes applied by the migrate command.
var Migrations = migrate.NewMigrations()
