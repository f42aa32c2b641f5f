// Package devicedata is the access-gated facade in front of the
// attribute and timeseries stores. Every operation authorizes the
// actor against the team, then verifies the device belongs to the
// team, and only then touches a store.
package devicedata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/viot-io/viot/internal/auth"
	"github.com/viot-io/viot/internal/models"
	"github.com/viot-io/viot/internal/store"
	"gorm.io/gorm"
)

// ErrDeviceNotFound covers both a device that does not exist and a
// device that exists in another team. Callers cannot distinguish the
// two, so device ids do not leak across team boundaries.
var ErrDeviceNotFound = errors.New("device not found")

// ErrScopeNotWritable rejects writes to device-authored scopes.
var ErrScopeNotWritable = errors.New("attribute scope is not writable")

// Authorizer is the slice of auth.Resolver the facade needs.
type Authorizer interface {
	Authorize(ctx context.Context, userID, teamID uuid.UUID, scope string) error
}

type AttributeStore interface {
	FindAllKeysWithScope(ctx context.Context, deviceID uuid.UUID) ([]models.KeyWithScope, error)
	FindKeysByScope(ctx context.Context, deviceID uuid.UUID, scope models.AttributeScope) ([]string, error)
	FindByKeys(ctx context.Context, deviceID uuid.UUID, scope models.AttributeScope, keys []string) ([]models.Attribute, error)
	Upsert(ctx context.Context, deviceID uuid.UUID, scope models.AttributeScope, key string, value models.Value) error
	DeleteByKeys(ctx context.Context, deviceID uuid.UUID, keys []string) error
}

type TimeseriesStore interface {
	FindAllKeys(ctx context.Context, deviceID uuid.UUID) ([]string, error)
	FindLatestByKeys(ctx context.Context, deviceID uuid.UUID, keys []string) ([]models.DataPoint, error)
	FindRangeByKeys(ctx context.Context, deviceID uuid.UUID, keys []string, from, to time.Time, agg store.RangeAggregation) (map[string][]models.TimeValue, error)
}

type Service struct {
	db         *gorm.DB
	authorizer Authorizer
	attributes AttributeStore
	timeseries TimeseriesStore
}

func New(db *gorm.DB, authorizer Authorizer, attributes AttributeStore, timeseries TimeseriesStore) *Service {
	return &Service{
		db:         db,
		authorizer: authorizer,
		attributes: attributes,
		timeseries: timeseries,
	}
}

// checkDevice verifies the device is bound to the team. It runs after
// authorization so an actor without access learns nothing about the
// device id space.
func (s *Service) checkDevice(ctx context.Context, teamID, deviceID uuid.UUID) error {
	var count int64
	result := s.db.WithContext(ctx).
		Model(&models.Device{}).
		Where("id = ? AND team_id = ?", deviceID, teamID).
		Count(&count)
	if result.Error != nil {
		return fmt.Errorf("failed to check device binding: %w", result.Error)
	}
	if count == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

func (s *Service) gate(ctx context.Context, actorID, teamID, deviceID uuid.UUID, scope string) error {
	if err := s.authorizer.Authorize(ctx, actorID, teamID, scope); err != nil {
		return err
	}
	return s.checkDevice(ctx, teamID, deviceID)
}

// AttributeKeys returns the device's attribute keys grouped by scope.
func (s *Service) AttributeKeys(ctx context.Context, actorID, teamID, deviceID uuid.UUID) (models.ScopeKeys, error) {
	if err := s.gate(ctx, actorID, teamID, deviceID, auth.TeamDeviceDataRead); err != nil {
		return models.ScopeKeys{}, err
	}
	kws, err := s.attributes.FindAllKeysWithScope(ctx, deviceID)
	if err != nil {
		return models.ScopeKeys{}, err
	}
	return models.GroupKeysByScope(kws), nil
}

func (s *Service) AttributeKeysByScope(ctx context.Context, actorID, teamID, deviceID uuid.UUID, scope models.AttributeScope) ([]string, error) {
	if err := s.gate(ctx, actorID, teamID, deviceID, auth.TeamDeviceDataRead); err != nil {
		return nil, err
	}
	return s.attributes.FindKeysByScope(ctx, deviceID, scope)
}

func (s *Service) AttributesByKeys(ctx context.Context, actorID, teamID, deviceID uuid.UUID, scope models.AttributeScope, keys []string) ([]models.Attribute, error) {
	if err := s.gate(ctx, actorID, teamID, deviceID, auth.TeamDeviceDataRead); err != nil {
		return nil, err
	}
	return s.attributes.FindByKeys(ctx, deviceID, scope, keys)
}

// SetAttribute writes one attribute on behalf of the platform. Only
// SERVER and SHARED scopes accept platform writes; CLIENT attributes
// are authored by the device itself.
func (s *Service) SetAttribute(ctx context.Context, actorID, teamID, deviceID uuid.UUID, scope models.AttributeScope, key string, value models.Value) error {
	if scope != models.ScopeServer && scope != models.ScopeShared {
		return ErrScopeNotWritable
	}
	if err := s.gate(ctx, actorID, teamID, deviceID, auth.TeamDeviceDataWrite); err != nil {
		return err
	}
	return s.attributes.Upsert(ctx, deviceID, scope, key, value)
}

func (s *Service) DeleteAttributes(ctx context.Context, actorID, teamID, deviceID uuid.UUID, keys []string) error {
	if err := s.gate(ctx, actorID, teamID, deviceID, auth.TeamDeviceDataWrite); err != nil {
		return err
	}
	return s.attributes.DeleteByKeys(ctx, deviceID, keys)
}

func (s *Service) TimeseriesKeys(ctx context.Context, actorID, teamID, deviceID uuid.UUID) ([]string, error) {
	if err := s.gate(ctx, actorID, teamID, deviceID, auth.TeamDeviceDataRead); err != nil {
		return nil, err
	}
	return s.timeseries.FindAllKeys(ctx, deviceID)
}

func (s *Service) LatestTimeseries(ctx context.Context, actorID, teamID, deviceID uuid.UUID, keys []string) ([]models.DataPoint, error) {
	if err := s.gate(ctx, actorID, teamID, deviceID, auth.TeamDeviceDataRead); err != nil {
		return nil, err
	}
	return s.timeseries.FindLatestByKeys(ctx, deviceID, keys)
}

func (s *Service) TimeseriesRange(ctx context.Context, actorID, teamID, deviceID uuid.UUID, keys []string, from, to time.Time, agg store.RangeAggregation) (map[string][]models.TimeValue, error) {
	if err := s.gate(ctx, actorID, teamID, deviceID, auth.TeamDeviceDataRead); err != nil {
		return nil, err
	}
	return s.timeseries.FindRangeByKeys(ctx, deviceID, keys, from, to, agg)
}
