package migration_20241022_0000

import (
	"time"

	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/google/uuid"
	"github.com/viot-io/viot/internal/database/migrations"
	"gorm.io/gorm"
)

type Device struct {
	LastOnlineAt *time.Time
}

type ConnectLog struct {
	DeviceID uuid.UUID `gorm:"type:uuid;primary_key"`
	Ts       time.Time `gorm:"primary_key"`
	Status   string
	IP       string
}

type Permission struct {
	ID          int64  `gorm:"primary_key"`
	Scope       string `gorm:"uniqueIndex"`
	Title       string
	Description string
}

// Device data permissions land in their own migration: the broker
// bridge and the device-data read APIs shipped after the team CRUD.
// Owner roles need no backfill, the resolver short-circuits them.
var permissionSeed = []Permission{
	{Scope: "team:device_data:read", Title: "Read device data"},
	{Scope: "team:device_data:write", Title: "Write device data"},
}

func Migrate() *gormigrate.Migration {
	migrationId := "20241022-0000"

	return migrations.CreateMigrationFromActions(migrationId,
		migrations.CreateTableAction(&ConnectLog{}),
		migrations.FuncAction(
			func(tx *gorm.DB) error {
				return tx.Migrator().AddColumn(&Device{}, "LastOnlineAt")
			},
			func(tx *gorm.DB) error {
				return tx.Migrator().DropColumn(&Device{}, "LastOnlineAt")
			},
		),
		migrations.FuncAction(
			func(tx *gorm.DB) error {
				return tx.Create(&permissionSeed).Error
			},
			func(tx *gorm.DB) error {
				scopes := make([]string, 0, len(permissionSeed))
				for _, p := range permissionSeed {
					scopes = append(scopes, p.Scope)
				}
				return tx.Where("scope IN ?", scopes).Delete(&Permission{}).Error
			},
		),
	)
}
