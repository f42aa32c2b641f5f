package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/viot-io/viot/internal/auth"
	"github.com/viot-io/viot/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

var (
	errRoleNotFound       = errors.New("role not found")
	errRoleIsOwner        = errors.New("role is the owner role")
	errPermissionNotFound = errors.New("permission not found")
	errRoleInUse          = errors.New("role is still assigned")
)

// resolvePermissionIDs turns an AddRole grant list into permission ids.
// Permissions can be addressed by id or by scope string; unknown ones
// fail the request instead of being silently dropped.
func resolvePermissionIDs(tx *gorm.DB, ids []int64, scopes []string) ([]int64, error) {
	set := map[int64]struct{}{}
	if len(ids) > 0 {
		var found []int64
		if res := tx.Model(&models.Permission{}).Where("id IN ?", ids).Pluck("id", &found); res.Error != nil {
			return nil, res.Error
		}
		if len(found) != len(ids) {
			return nil, errPermissionNotFound
		}
		for _, id := range found {
			set[id] = struct{}{}
		}
	}
	if len(scopes) > 0 {
		var perms []models.Permission
		if res := tx.Where("scope IN ?", scopes).Find(&perms); res.Error != nil {
			return nil, res.Error
		}
		if len(perms) != len(scopes) {
			return nil, errPermissionNotFound
		}
		for _, p := range perms {
			set[p.ID] = struct{}{}
		}
	}
	result := make([]int64, 0, len(set))
	for id := range set {
		result = append(result, id)
	}
	return result, nil
}

// ListRoles lists the roles of a Team
// @Summary      List Roles
// @Description  Lists the roles of a team with their permissions
// @Id 			 ListRoles
// @Tags         Roles
// @Accept       json
// @Produce      json
// @Param		 id   path      string true "Team ID"
// @Success      200  {object}  []models.Role
// @Failure      400  {object}  models.BaseError
// @Failure		 401  {object}  models.BaseError
// @Failure		 403  {object}  models.NotAllowedError
// @Failure      404  {object}  models.BaseError
// @Failure      500  {object}  models.InternalServerError "Internal Server Error"
// @Router       /api/teams/{id}/roles [get]
func (api *API) ListRoles(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "ListRoles",
		trace.WithAttributes(
			attribute.String("id", c.Param("id")),
		))
	defer span.End()
	teamId, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewBadPathParameterError("id"))
		return
	}
	if !api.authorizeTeam(c, ctx, teamId, auth.TeamMemberRead) {
		return
	}

	roles := []models.Role{}
	result := api.db.WithContext(ctx).
		Preload("Permissions").
		Where("team_id = ?", teamId).
		Order("name").
		Find(&roles)
	if result.Error != nil {
		api.SendInternalServerError(c, result.Error)
		return
	}

	c.JSON(http.StatusOK, roles)
}

// CreateRole creates a Role in a Team
// @Summary      Create Role
// @Description  Creates a named role granting the listed permissions
// @Id 			 CreateRole
// @Tags         Roles
// @Accept       json
// @Produce      json
// @Param		 id    path     string true "Team ID"
// @Param        Role  body     models.AddRole true "Add Role"
// @Success      201  {object}  models.Role
// @Failure      400  {object}  models.BaseError
// @Failure		 401  {object}  models.BaseError
// @Failure		 403  {object}  models.NotAllowedError
// @Failure      404  {object}  models.BaseError
// @Failure      500  {object}  models.InternalServerError "Internal Server Error"
// @Router       /api/teams/{id}/roles [post]
func (api *API) CreateRole(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "CreateRole",
		trace.WithAttributes(
			attribute.String("id", c.Param("id")),
		))
	defer span.End()
	teamId, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewBadPathParameterError("id"))
		return
	}

	var request models.AddRole
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, models.NewBadPayloadError())
		return
	}
	if request.Name == "" {
		c.JSON(http.StatusBadRequest, models.NewFieldNotPresentError("name"))
		return
	}

	if !api.authorizeTeam(c, ctx, teamId, auth.TeamMemberManage) {
		return
	}

	var role models.Role
	err = api.transaction(ctx, func(tx *gorm.DB) error {
		permissionIDs, err := resolvePermissionIDs(tx, request.PermissionIDs, request.Scopes)
		if err != nil {
			return err
		}

		role = models.Role{
			Base:        models.Base{ID: uuid.New()},
			TeamID:      teamId,
			Name:        request.Name,
			Description: request.Description,
		}
		if res := tx.Create(&role); res.Error != nil {
			return res.Error
		}
		for _, id := range permissionIDs {
			grant := models.RolePermission{RoleID: role.ID, PermissionID: id}
			if res := tx.Create(&grant); res.Error != nil {
				return res.Error
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errPermissionNotFound) {
			c.JSON(http.StatusBadRequest, models.NewFieldValidationError("permissions", "unknown permission"))
		} else {
			api.SendInternalServerError(c, err)
		}
		return
	}

	c.JSON(http.StatusCreated, role)
}

// UpdateRole updates a Role
// @Summary      Update Role
// @Description  Updates a role's name, description or grants. The
// owner role cannot be edited.
// @Id 			 UpdateRole
// @Tags         Roles
// @Accept       json
// @Produce      json
// @Param		 id      path   string true "Team ID"
// @Param		 roleid  path   string true "Role ID"
// @Param        Role    body   models.UpdateRole true "Update Role"
// @Success      200  {object}  models.Role
// @Failure      400  {object}  models.BaseError
// @Failure		 401  {object}  models.BaseError
// @Failure		 403  {object}  models.NotAllowedError
// @Failure      404  {object}  models.BaseError
// @Failure      500  {object}  models.InternalServerError "Internal Server Error"
// @Router       /api/teams/{id}/roles/{roleid} [patch]
func (api *API) UpdateRole(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "UpdateRole",
		trace.WithAttributes(
			attribute.String("id", c.Param("id")),
			attribute.String("roleid", c.Param("roleid")),
		))
	defer span.End()
	teamId, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewBadPathParameterError("id"))
		return
	}
	roleId, err := uuid.Parse(c.Param("roleid"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewBadPathParameterError("roleid"))
		return
	}

	var request models.UpdateRole
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, models.NewBadPayloadError())
		return
	}

	if !api.authorizeTeam(c, ctx, teamId, auth.TeamMemberManage) {
		return
	}

	var role models.Role
	err = api.transaction(ctx, func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND team_id = ?", roleId, teamId).First(&role)
		if res.Error != nil {
			if errors.Is(res.Error, gorm.ErrRecordNotFound) {
				return errRoleNotFound
			}
			return res.Error
		}
		if role.IsOwner {
			return errRoleIsOwner
		}

		if request.Name != nil {
			role.Name = *request.Name
		}
		if request.Description != nil {
			role.Description = *request.Description
		}
		if res := tx.Save(&role); res.Error != nil {
			return res.Error
		}

		if request.PermissionIDs != nil {
			permissionIDs, err := resolvePermissionIDs(tx, *request.PermissionIDs, nil)
			if err != nil {
				return err
			}
			if res := tx.Where("role_id = ?", role.ID).Delete(&models.RolePermission{}); res.Error != nil {
				return res.Error
			}
			for _, id := range permissionIDs {
				grant := models.RolePermission{RoleID: role.ID, PermissionID: id}
				if res := tx.Create(&grant); res.Error != nil {
					return res.Error
				}
			}
		}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, errRoleNotFound):
			c.JSON(http.StatusNotFound, models.NewNotFoundError("role"))
		case errors.Is(err, errRoleIsOwner):
			c.JSON(http.StatusForbidden, models.NewNotAllowedError("the owner role cannot be edited"))
		case errors.Is(err, errPermissionNotFound):
			c.JSON(http.StatusBadRequest, models.NewFieldValidationError("permissions", "unknown permission"))
		default:
			api.SendInternalServerError(c, err)
		}
		return
	}

	c.JSON(http.StatusOK, role)
}

// DeleteRole deletes a Role
// @Summary      Delete Role
// @Description  Deletes a role and its grants. The owner role and
// roles still assigned to members cannot be deleted.
// @Id 			 DeleteRole
// @Tags         Roles
// @Accept       json
// @Produce      json
// @Param		 id      path   string true "Team ID"
// @Param		 roleid  path   string true "Role ID"
// @Success      200  {object}  models.Role
// @Failure      400  {object}  models.BaseError
// @Failure		 401  {object}  models.BaseError
// @Failure		 403  {object}  models.NotAllowedError
// @Failure      404  {object}  models.BaseError
// @Failure      409  {object}  models.BaseError
// @Failure      500  {object}  models.InternalServerError "Internal Server Error"
// @Router       /api/teams/{id}/roles/{roleid} [delete]
func (api *API) DeleteRole(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "DeleteRole",
		trace.WithAttributes(
			attribute.String("id", c.Param("id")),
			attribute.String("roleid", c.Param("roleid")),
		))
	defer span.End()
	teamId, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewBadPathParameterError("id"))
		return
	}
	roleId, err := uuid.Parse(c.Param("roleid"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewBadPathParameterError("roleid"))
		return
	}

	if !api.authorizeTeam(c, ctx, teamId, auth.TeamMemberManage) {
		return
	}

	var role models.Role
	err = api.transaction(ctx, func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND team_id = ?", roleId, teamId).First(&role)
		if res.Error != nil {
			if errors.Is(res.Error, gorm.ErrRecordNotFound) {
				return errRoleNotFound
			}
			return res.Error
		}
		if role.IsOwner {
			return errRoleIsOwner
		}

		var assigned int64
		if res := tx.Model(&models.UserTeamRole{}).Where("role_id = ?", role.ID).Count(&assigned); res.Error != nil {
			return res.Error
		}
		if assigned > 0 {
			return errRoleInUse
		}

		if res := tx.Where("role_id = ?", role.ID).Delete(&models.RolePermission{}); res.Error != nil {
			return res.Error
		}
		return tx.Delete(&role).Error
	})
	if err != nil {
		switch {
		case errors.Is(err, errRoleNotFound):
			c.JSON(http.StatusNotFound, models.NewNotFoundError("role"))
		case errors.Is(err, errRoleIsOwner):
			c.JSON(http.StatusForbidden, models.NewNotAllowedError("the owner role cannot be deleted"))
		case errors.Is(err, errRoleInUse):
			c.JSON(http.StatusConflict, models.NewConflictsError(role.ID.String()))
		default:
			api.SendInternalServerError(c, err)
		}
		return
	}

	c.JSON(http.StatusOK, role)
}

// ListPermissions lists the permission catalog
// @Summary      List Permissions
// @Description  Lists the global permission catalog
// @Id 			 ListPermissions
// @Tags         Roles
// @Accept       json
// @Produce      json
// @Success      200  {object}  []models.Permission
// @Failure		 401  {object}  models.BaseError
// @Failure      500  {object}  models.InternalServerError "Internal Server Error"
// @Router       /api/permissions [get]
func (api *API) ListPermissions(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "ListPermissions")
	defer span.End()

	permissions, err := api.resolver.GetAllPermissions(ctx)
	if err != nil {
		api.SendInternalServerError(c, err)
		return
	}
	c.JSON(http.StatusOK, permissions)
}
