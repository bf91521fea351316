// Package donationdb holds all the migrations for the donation database
package donationdb

import (
	"github.com/uptrace/bun/migrate"
)

// Migrations is the collection of all migrations for the donation database
var Migrations = migrate.NewMigrations()
