package database

import (
	"github.com/viot-io/viot/internal/database/migration_20241001_0000"
	"github.com/viot-io/viot/internal/database/migration_20241022_0000"
	"github.com/viot-io/viot/internal/database/migrations"
)

// Migrations returns the full, ordered migration set.
//
// Migration rules:
//
//  1. IDs are numerical timestamps that must sort ascending.
//     Use YYYYMMDD-HHMM w/ 24 hour time for format
//     Example: August 21 2018 at 2:54pm would be 20180821-1454.
//
//  2. Include models inline with migrations to see the evolution of the
//     object over time. Using our internal type models directly in the
//     first migration would fail in future clean installations.
//
//  3. Migrations must be backwards compatible. There are no new
//     required fields allowed.
func Migrations() *migrations.Migrations {
	return migrations.New(
		migration_20241001_0000.Migrate(),
		migration_20241022_0000.Migrate(),
	)
}
