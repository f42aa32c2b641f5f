package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/viot-io/viot/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("viot.io/auth")

// ErrAccessDenied means the actor holds no role in the team, or holds a
// role that does not grant the required scope. Callers map it to 403.
var ErrAccessDenied = errors.New("access denied")

// Resolver answers permission questions against the role tables. It
// reads the database on every call; role changes take effect on the
// next request without any cache invalidation.
type Resolver struct {
	db *gorm.DB
}

func NewResolver(db *gorm.DB) *Resolver {
	return &Resolver{db: db}
}

// HasPermission reports whether the user's role in the team grants the
// scope. A user with no role in the team is not an error, just false.
// Owner roles are authorized for every scope, present and future, so
// new scopes never need a grant backfill.
func (r *Resolver) HasPermission(ctx context.Context, userID, teamID uuid.UUID, scope string) (bool, error) {
	ctx, span := tracer.Start(ctx, "HasPermission", trace.WithAttributes(
		attribute.String("user_id", userID.String()),
		attribute.String("team_id", teamID.String()),
		attribute.String("scope", scope),
	))
	defer span.End()

	var membership models.UserTeamRole
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND team_id = ?", userID, teamID).
		First(&membership)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to resolve team membership: %w", result.Error)
	}

	var role models.Role
	result = r.db.WithContext(ctx).First(&role, "id = ?", membership.RoleID)
	if result.Error != nil {
		return false, fmt.Errorf("failed to resolve role: %w", result.Error)
	}
	if role.IsOwner {
		return true, nil
	}

	var count int64
	result = r.db.WithContext(ctx).
		Model(&models.RolePermission{}).
		Joins("JOIN permissions ON permissions.id = role_permissions.permission_id").
		Where("role_permissions.role_id = ? AND permissions.scope = ?", role.ID, scope).
		Count(&count)
	if result.Error != nil {
		return false, fmt.Errorf("failed to resolve role permissions: %w", result.Error)
	}
	return count > 0, nil
}

// Authorize is HasPermission with the boolean folded into the error.
func (r *Resolver) Authorize(ctx context.Context, userID, teamID uuid.UUID, scope string) error {
	ok, err := r.HasPermission(ctx, userID, teamID, scope)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAccessDenied
	}
	return nil
}

// GetAllPermissions returns the global permission catalog.
func (r *Resolver) GetAllPermissions(ctx context.Context) ([]models.Permission, error) {
	permissions := []models.Permission{}
	result := r.db.WithContext(ctx).Order("id").Find(&permissions)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", result.Error)
	}
	return permissions, nil
}
