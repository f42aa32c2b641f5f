package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/viot-io/viot/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AttributeStore owns the sparse per-device attribute table. All
// methods run against the db handle the store was built with; callers
// that own a transaction derive a store bound to it with WithTx, the
// store never opens transactions itself.
type AttributeStore struct {
	db *gorm.DB
}

func NewAttributeStore(db *gorm.DB) *AttributeStore {
	return &AttributeStore{db: db}
}

func (s *AttributeStore) WithTx(tx *gorm.DB) *AttributeStore {
	return &AttributeStore{db: tx}
}

// FindAllKeysWithScope returns the full key inventory of a device. No
// pagination: key cardinality is bounded by the device schema.
func (s *AttributeStore) FindAllKeysWithScope(ctx context.Context, deviceID uuid.UUID) ([]models.KeyWithScope, error) {
	var rows []models.KeyWithScope
	result := s.db.WithContext(ctx).
		Model(&models.DeviceAttribute{}).
		Select("key", "scope").
		Where("device_id = ?", deviceID).
		Order("key").
		Scan(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list attribute keys: %w", result.Error)
	}
	return rows, nil
}

func (s *AttributeStore) FindKeysByScope(ctx context.Context, deviceID uuid.UUID, scope models.AttributeScope) ([]string, error) {
	keys := []string{}
	result := s.db.WithContext(ctx).
		Model(&models.DeviceAttribute{}).
		Where("device_id = ? AND scope = ?", deviceID, scope).
		Order("key").
		Pluck("key", &keys)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list attribute keys for scope %s: %w", scope, result.Error)
	}
	return keys, nil
}

// FindByKeys is a bulk point lookup. An empty key set returns an empty
// list, not all attributes.
func (s *AttributeStore) FindByKeys(ctx context.Context, deviceID uuid.UUID, scope models.AttributeScope, keys []string) ([]models.Attribute, error) {
	attributes := []models.Attribute{}
	if len(keys) == 0 {
		return attributes, nil
	}

	var rows []models.DeviceAttribute
	result := s.db.WithContext(ctx).
		Where("device_id = ? AND scope = ? AND key IN ?", deviceID, scope, keys).
		Order("key").
		Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to fetch attributes: %w", result.Error)
	}

	for _, row := range rows {
		attributes = append(attributes, models.Attribute{
			Key:        row.Key,
			Value:      row.Value(),
			LastUpdate: row.LastUpdate,
		})
	}
	return attributes, nil
}

// Upsert writes one attribute. Insert-or-replace on (device_id, key,
// scope); last_update is set to the write time and exactly one typed
// column is populated. Concurrent writers race last-write-wins.
func (s *AttributeStore) Upsert(ctx context.Context, deviceID uuid.UUID, scope models.AttributeScope, key string, value models.Value) error {
	if value.IsNull() {
		return models.ErrInvalidValueEncoding
	}

	attr := models.DeviceAttribute{
		DeviceID:   deviceID,
		Key:        key,
		Scope:      scope,
		LastUpdate: time.Now().UTC(),
	}
	attr.SetValue(value)

	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "device_id"},
			{Name: "key"},
			{Name: "scope"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"last_update", "bool_v", "str_v", "long_v", "double_v", "json_v",
		}),
	}).Create(&attr)
	if result.Error != nil {
		return fmt.Errorf("failed to upsert attribute %q: %w", key, result.Error)
	}
	return nil
}

// DeleteByKeys removes the given keys across all scopes. Keys that do
// not exist are a no-op, not an error.
func (s *AttributeStore) DeleteByKeys(ctx context.Context, deviceID uuid.UUID, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	result := s.db.WithContext(ctx).
		Where("device_id = ? AND key IN ?", deviceID, keys).
		Delete(&models.DeviceAttribute{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete attributes: %w", result.Error)
	}
	return nil
}
