package migration_20241001_0000

import (
	"encoding/json"
	"time"

	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/google/uuid"
	"github.com/viot-io/viot/internal/database/migrations"
	"gorm.io/gorm"
)

type Base struct {
	ID        uuid.UUID  `gorm:"type:uuid;primary_key;"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time `sql:"index"`
}

type User struct {
	Base
	IdpID    string `gorm:"uniqueIndex"`
	UserName string
	Email    string
}

type Team struct {
	Base
	Name        string `gorm:"uniqueIndex"`
	Description string
	Default     bool
}

type Role struct {
	Base
	TeamID      uuid.UUID `gorm:"index"`
	Name        string
	Description string
	IsOwner     bool
}

type Permission struct {
	ID          int64  `gorm:"primary_key"`
	Scope       string `gorm:"uniqueIndex"`
	Title       string
	Description string
}

type RolePermission struct {
	RoleID       uuid.UUID `gorm:"type:uuid;primary_key"`
	PermissionID int64     `gorm:"primary_key"`
}

type UserTeamRole struct {
	UserID   uuid.UUID `gorm:"type:uuid;primary_key"`
	TeamID   uuid.UUID `gorm:"type:uuid;primary_key"`
	RoleID   uuid.UUID `gorm:"type:uuid"`
	JoinedAt time.Time
}

type Invitation struct {
	Base
	Email      string    `gorm:"index"`
	TeamID     uuid.UUID `gorm:"index"`
	RoleID     uuid.UUID
	InviterID  uuid.UUID
	Token      string `gorm:"uniqueIndex"`
	ExpiresAt  time.Time
	AcceptedAt *time.Time
}

type Device struct {
	Base
	TeamID      uuid.UUID `gorm:"index"`
	Name        string
	Description string
	Status      string
	AccessToken string
}

type DeviceAttribute struct {
	DeviceID   uuid.UUID `gorm:"type:uuid;primary_key"`
	Key        string    `gorm:"primary_key"`
	Scope      int16     `gorm:"type:smallint;primary_key"`
	LastUpdate time.Time
	BoolV      *bool           `gorm:"column:bool_v"`
	StrV       *string         `gorm:"column:str_v"`
	LongV      *int64          `gorm:"column:long_v"`
	DoubleV    *float64        `gorm:"column:double_v"`
	JSONV      json.RawMessage `gorm:"column:json_v;type:JSONB"`
}

type DeviceData struct {
	DeviceID uuid.UUID `gorm:"type:uuid;primary_key"`
	Key      string    `gorm:"primary_key"`
	Ts       time.Time `gorm:"primary_key"`
	BoolV    *bool           `gorm:"column:bool_v"`
	StrV     *string         `gorm:"column:str_v"`
	LongV    *int64          `gorm:"column:long_v"`
	DoubleV  *float64        `gorm:"column:double_v"`
	JSONV    json.RawMessage `gorm:"column:json_v;type:JSONB"`
}

// The initial permission catalog. The owner role is not granted these
// explicitly: the resolver short-circuits owner roles, so new scopes
// never need a backfill migration.
var permissionSeed = []Permission{
	{Scope: "team:profile:read", Title: "Read team profile"},
	{Scope: "team:profile:manage", Title: "Manage team profile"},
	{Scope: "team:member:read", Title: "Read team members"},
	{Scope: "team:member:manage", Title: "Manage team members"},
	{Scope: "team:member:delete", Title: "Remove team members"},
	{Scope: "team:invitation:read", Title: "Read team invitations"},
	{Scope: "team:invitation:manage", Title: "Manage team invitations"},
	{Scope: "team:invitation:revoke", Title: "Revoke team invitations"},
	{Scope: "team:device:read", Title: "Read team devices"},
	{Scope: "team:device:manage", Title: "Manage team devices"},
	{Scope: "team:device:delete", Title: "Delete team devices"},
}

func Migrate() *gormigrate.Migration {
	migrationId := "20241001-0000"

	return migrations.CreateMigrationFromActions(migrationId,
		migrations.CreateTableAction(&User{}),
		migrations.CreateTableAction(&Team{}),
		migrations.CreateTableAction(&Role{}),
		migrations.CreateTableAction(&Permission{}),
		migrations.CreateTableAction(&RolePermission{}),
		migrations.CreateTableAction(&UserTeamRole{}),
		migrations.CreateTableAction(&Invitation{}),
		migrations.CreateTableAction(&Device{}),
		migrations.CreateTableAction(&DeviceAttribute{}),
		migrations.CreateTableAction(&DeviceData{}),
		migrations.ExecAction(
			`CREATE INDEX IF NOT EXISTS "idx_device_data_device_id_key_ts" ON "device_data" ("device_id", "key", "ts" DESC)`,
			`DROP INDEX IF EXISTS "idx_device_data_device_id_key_ts"`,
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
