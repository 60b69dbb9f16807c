// Package bridgedb holds all the migrations for the bridge engine database
package bridgedb

import (
	"github.com/uptrace/bun/migrate"
)

// Migrations is the collection of all migrations for the bridge engine database
var Migrations = migrate.NewMigrations()
