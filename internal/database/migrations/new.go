package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
)

// New wraps a migration set with the gormigrate options used by the
// apiserver. The dated migration packages each contribute one
// *gormigrate.Migration; the ordered list is assembled in the database
// package to keep this package free of import cycles.
func New(list ...*gormigrate.Migration) *Migrations {
	return &Migrations{
		GormOptions: &gormigrate.Options{
			TableName:      "viot_migrations",
			IDColumnName:   "id",
			IDColumnSize:   40,
			UseTransaction: false,
		},
		Migrations: list,
	}
}
