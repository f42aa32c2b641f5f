package migrations

import (
	"context"
	"fmt"
	"runtime"

	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

var tracer trace.Tracer

func init() {
	tracer = otel.Tracer("github.com/viot-io/viot/internal/database/migrations")
}

type Migrations struct {
	Migrations  []*gormigrate.Migration
	GormOptions *gormigrate.Options
}

func (m *Migrations) Migrate(ctx context.Context, db *gorm.DB) error {
	_, span := tracer.Start(ctx, "Migrate")
	defer span.End()
	return gormigrate.New(db, m.GormOptions, m.Migrations).Migrate()
}

// MigrateTo migrates to a specific migration id. Mainly for testing
// schema evolution.
func (m *Migrations) MigrateTo(ctx context.Context, db *gorm.DB, migrationID string) error {
	_, span := tracer.Start(ctx, "MigrateTo")
	defer span.End()

	gm := gormigrate.New(db, m.GormOptions, m.Migrations)
	return gm.MigrateTo(migrationID)
}

func (m *Migrations) RollbackLast(ctx context.Context, db *gorm.DB) error {
	_, span := tracer.Start(ctx, "RollbackLast")
	defer span.End()

	gm := gormigrate.New(db, m.GormOptions, m.Migrations)
	return gm.RollbackLast()
}

type MigrationAction func(tx *gorm.DB, apply bool) error

func CreateTableAction(table interface{}) MigrationAction {
	caller := ""
	if _, file, no, ok := runtime.Caller(1); ok {
		caller = fmt.Sprintf("[ %s:%d ]", file, no)
	}
	return func(tx *gorm.DB, apply bool) error {
		if apply {
			err := tx.AutoMigrate(table)
			if err != nil {
				return errors.Wrap(err, caller)
			}
		} else {
			err := tx.Migrator().DropTable(table)
			if err != nil {
				return errors.Wrap(err, caller)
			}
		}
		return nil
	}
}

func ExecAction(applySql string, unapplySql string) MigrationAction {
	caller := ""
	if _, file, no, ok := runtime.Caller(1); ok {
		caller = fmt.Sprintf("[ %s:%d ]", file, no)
	}
	return func(tx *gorm.DB, apply bool) error {
		if apply {
			if applySql != "" {
				if err := tx.Exec(applySql).Error; err != nil {
					return errors.Wrap(err, caller)
				}
			}
		} else {
			if unapplySql != "" {
				if err := tx.Exec(unapplySql).Error; err != nil {
					return errors.Wrap(err, caller)
				}
			}
		}
		return nil
	}
}

func FuncAction(applyFunc func(tx *gorm.DB) error, unapplyFunc func(tx *gorm.DB) error) MigrationAction {
	caller := ""
	if _, file, no, ok := runtime.Caller(1); ok {
		caller = fmt.Sprintf("[ %s:%d ]", file, no)
	}
	return func(tx *gorm.DB, apply bool) error {
		if apply {
			if err := applyFunc(tx); err != nil {
				return errors.Wrap(err, caller)
			}
		} else {
			if err := unapplyFunc(tx); err != nil {
				return errors.Wrap(err, caller)
			}
		}
		return nil
	}
}

func CreateMigrationFromActions(id string, actions ...MigrationAction) *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: id,
		Migrate: func(tx *gorm.DB) error {
			for _, action := range actions {
				if err := action(tx, true); err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			for i := len(actions) - 1; i >= 0; i-- {
				if err := actions[i](tx, false); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
