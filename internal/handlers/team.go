package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/viot-io/viot/internal/auth"
	"github.com/viot-io/viot/internal/database"
	"github.com/viot-io/viot/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

var errTeamNotFound = errors.New("team not found")

type errDuplicateTeam struct {
	ID string
}

func (e errDuplicateTeam) Error() string {
	return "team already exists"
}

// TeamIsReadableByCurrentUser scopes a team query to the teams the
// current user is a member of.
func (api *API) TeamIsReadableByCurrentUser(c *gin.Context, db *gorm.DB) *gorm.DB {
	userId := api.GetCurrentUserID(c)
	if api.dialect == database.DialectSqlLite {
		return db.Where("id IN (SELECT team_id FROM user_team_roles WHERE user_id = ?)", userId)
	}
	return db.Where("id::text IN (SELECT team_id::text FROM user_team_roles WHERE user_id = ?)", userId)
}

// CreateTeam creates a new Team
// @Summary      Create a Team
// @Description  Creates a named team with the current user as owner
// @Id			 CreateTeam
// @Tags         Teams
// @Accept       json
// @Produce      json
// @Param        Team  body     models.AddTeam  true  "Add Team"
// @Success      201  {object}  models.Team
// @Failure      400  {object}  models.BaseError
// @Failure		 401  {object}  models.BaseError
// @Failure		 405  {object}  models.BaseError
// @Failure      409  {object}  models.ConflictsError
// @Failure      500  {object}  models.InternalServerError "Internal Server Error"
// @Router       /api/teams [post]
func (api *API) CreateTeam(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "CreateTeam")
	defer span.End()
	if !api.FlagCheck(c, "multi-team") {
		return
	}
	userId := api.GetCurrentUserID(c)

	var request models.AddTeam
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, models.NewBadPayloadError())
		return
	}
	if request.Name == "" {
		c.JSON(http.StatusBadRequest, models.NewFieldNotPresentError("name"))
		return
	}

	var team models.Team
	err := api.transaction(ctx, func(tx *gorm.DB) error {
		var user models.User
		if res := tx.First(&user, "id = ?", userId); res.Error != nil {
			return errUserNotFound
		}

		team = models.Team{
			Name:        request.Name,
			Description: request.Description,
		}
		if res := tx.Create(&team); res.Error != nil {
			if database.IsDuplicateError(res.Error) {
				return errDuplicateTeam{ID: team.ID.String()}
			}
			return res.Error
		}

		if err := createOwnerMembership(tx, team.ID, userId); err != nil {
			return err
		}

		span.SetAttributes(attribute.String("id", team.ID.String()))
		api.Logger(ctx).Infof("New team request [ %s ]", team.Name)
		return nil
	})
	if err != nil {
		var duplicate errDuplicateTeam
		if errors.Is(err, errUserNotFound) {
			c.JSON(http.StatusNotFound, models.NewApiError(err))
		} else if errors.As(err, &duplicate) {
			c.JSON(http.StatusConflict, models.NewConflictsError(duplicate.ID))
		} else {
			api.SendInternalServerError(c, err)
		}
		return
	}

	c.JSON(http.StatusCreated, team)
}

// ListTeams lists all Teams
// @Summary      List Teams
// @Description  Lists the teams the current user is a member of
// @Id 			 ListTeams
// @Tags         Teams
// @Accept       json
// @Produce      json
// @Success      200  {object}  []models.Team
// @Failure		 401  {object}  models.BaseError
// @Failure      500  {object}  models.InternalServerError "Internal Server Error"
// @Router       /api/teams [get]
func (api *API) ListTeams(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "ListTeams")
	defer span.End()
	var teams []models.Team

	db := api.db.WithContext(ctx)
	db = api.TeamIsReadableByCurrentUser(c, db)
	db = db.Scopes(FilterAndPaginate(&models.Team{}, c, "name"))
	result := db.Find(&teams)
	if result.Error != nil {
		api.SendInternalServerError(c, result.Error)
		return
	}

	c.JSON(http.StatusOK, teams)
}

// GetTeam gets a specific Team
// @Summary      Get Team
// @Description  Gets a team by id
// @Id 			 GetTeam
// @Tags         Teams
// @Accept       json
// @Produce      json
// @Param		 id   path      string true "Team ID"
// @Success      200  {object}  models.Team
// @Failure      400  {object}  models.BaseError
// @Failure		 401  {object}  models.BaseError
// @Failure      404  {object}  models.BaseError
// @Failure      500  {object}  models.InternalServerError "Internal Server Error"
// @Router       /api/teams/{id} [get]
func (api *API) GetTeam(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "GetTeam",
		trace.WithAttributes(
			attribute.String("id", c.Param("id")),
		))
	defer span.End()
	teamId, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewBadPathParameterError("id"))
		return
	}

	var team models.Team
	db := api.db.WithContext(ctx)
	result := api.TeamIsReadableByCurrentUser(c, db).
		First(&team, "id = ?", teamId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, models.NewNotFoundError("team"))
		} else {
			api.SendInternalServerError(c, result.Error)
		}
		return
	}

	c.JSON(http.StatusOK, team)
}

// UpdateTeam updates a Team
// @Summary      Update Team
// @Description  Updates a team's name or description
// @Id 			 UpdateTeam
// @Tags         Teams
// @Accept       json
// @Produce      json
// @Param		 id    path     string true "Team ID"
// @Param        Team  body     models.UpdateTeam  true  "Update Team"
// @Success      200  {object}  models.Team
// @Failure      400  {object}  models.BaseError
// @Failure		 401  {object}  models.BaseError
// @Failure		 403  {object}  models.NotAllowedError
// @Failure      404  {object}  models.BaseError
// @Failure      500  {object}  models.InternalServerError "Internal Server Error"
// @Router       /api/teams/{id} [patch]
func (api *API) UpdateTeam(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "UpdateTeam",
		trace.WithAttributes(
			attribute.String("id", c.Param("id")),
		))
	defer span.End()
	teamId, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewBadPathParameterError("id"))
		return
	}

	var request models.UpdateTeam
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, models.NewBadPayloadError())
		return
	}

	var team models.Team
	db := api.db.WithContext(ctx)
	result := api.TeamIsReadableByCurrentUser(c, db).
		First(&team, "id = ?", teamId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, models.NewNotFoundError("team"))
		} else {
			api.SendInternalServerError(c, result.Error)
		}
		return
	}

	if err := api.resolver.Authorize(ctx, api.GetCurrentUserID(c), teamId, auth.TeamProfileManage); err != nil {
		if errors.Is(err, auth.ErrAccessDenied) {
			c.JSON(http.StatusForbidden, models.NewNotAllowedError("access denied"))
		} else {
			api.SendInternalServerError(c, err)
		}
		return
	}

	if request.Name != nil {
		team.Name = *request.Name
	}
	if request.Description != nil {
		team.Description = *request.Description
	}
	if res := db.Save(&team); res.Error != nil {
		if database.IsDuplicateError(res.Error) {
			c.JSON(http.StatusConflict, models.NewConflictsError(team.ID.String()))
		} else {
			api.SendInternalServerError(c, res.Error)
		}
		return
	}

	c.JSON(http.StatusOK, team)
}

// DeleteTeam deletes a Team
// @Summary      Delete Team
// @Description  Deletes a team and everything in it. Requires the
// owner role; the default team cannot be deleted.
// @Id 			 DeleteTeam
// @Tags         Teams
// @Accept       json
// @Produce      json
// @Param        id   path      string  true "Team ID"
// @Success      200  {object}  models.Team
// @Failure      400  {object}  models.BaseError
// @Failure		 401  {object}  models.BaseError
// @Failure		 403  {object}  models.NotAllowedError
// @Failure      404  {object}  models.BaseError
// @Failure      500  {object}  models.InternalServerError "Internal Server Error"
// @Router       /api/teams/{id} [delete]
func (api *API) DeleteTeam(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "DeleteTeam",
		trace.WithAttributes(
			attribute.String("id", c.Param("id")),
		))
	defer span.End()
	teamId, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewBadPathParameterError("id"))
		return
	}

	var team models.Team
	db := api.db.WithContext(ctx)
	result := api.TeamIsReadableByCurrentUser(c, db).
		First(&team, "id = ?", teamId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, models.NewNotFoundError("team"))
		} else {
			api.SendInternalServerError(c, result.Error)
		}
		return
	}

	if team.Default {
		c.JSON(http.StatusForbidden, models.NewNotAllowedError("the default team cannot be deleted"))
		return
	}

	owner, err := api.userIsTeamOwner(ctx, api.GetCurrentUserID(c), teamId)
	if err != nil {
		api.SendInternalServerError(c, err)
		return
	}
	if !owner {
		c.JSON(http.StatusForbidden, models.NewNotAllowedError("only the team owner can delete a team"))
		return
	}

	err = api.transaction(ctx, func(tx *gorm.DB) error {
		return deleteTeamInTx(tx, teamId)
	})
	if err != nil {
		if errors.Is(err, errTeamNotFound) {
			c.JSON(http.StatusNotFound, models.NewNotFoundError("team"))
		} else {
			api.SendInternalServerError(c, fmt.Errorf("failed to delete the team: %w", err))
		}
		return
	}

	c.JSON(http.StatusOK, team)
}

// userIsTeamOwner reports whether the user holds the owner role in the
// team. A non-member is simply not an owner.
func (api *API) userIsTeamOwner(ctx context.Context, userID, teamID uuid.UUID) (bool, error) {
	var membership models.UserTeamRole
	res := api.db.WithContext(ctx).
		Where("user_id = ? AND team_id = ?", userID, teamID).
		First(&membership)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, res.Error
	}
	var role models.Role
	if res := api.db.WithContext(ctx).First(&role, "id = ?", membership.RoleID); res.Error != nil {
		return false, res.Error
	}
	return role.IsOwner, nil
}

// deleteTeamInTx cascades a team deletion: devices with their data,
// roles with their grants, memberships and invitations. The global
// permission catalog is left alone.
func deleteTeamInTx(tx *gorm.DB, teamID uuid.UUID) error {
	var team models.Team
	if res := tx.First(&team, "id = ?", teamID); res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return errTeamNotFound
		}
		return res.Error
	}

	var deviceIDs []uuid.UUID
	if res := tx.Model(&models.Device{}).Where("team_id = ?", teamID).Pluck("id", &deviceIDs); res.Error != nil {
		return res.Error
	}
	if len(deviceIDs) > 0 {
		if res := tx.Where("device_id IN ?", deviceIDs).Delete(&models.DeviceAttribute{}); res.Error != nil {
			return res.Error
		}
		if res := tx.Where("device_id IN ?", deviceIDs).Delete(&models.DeviceData{}); res.Error != nil {
			return res.Error
		}
		if res := tx.Where("device_id IN ?", deviceIDs).Delete(&models.ConnectLog{}); res.Error != nil {
			return res.Error
		}
		if res := tx.Where("team_id = ?", teamID).Delete(&models.Device{}); res.Error != nil {
			return res.Error
		}
	}

	var roleIDs []uuid.UUID
	if res := tx.Model(&models.Role{}).Where("team_id = ?", teamID).Pluck("id", &roleIDs); res.Error != nil {
		return res.Error
	}
	if len(roleIDs) > 0 {
		if res := tx.Where("role_id IN ?", roleIDs).Delete(&models.RolePermission{}); res.Error != nil {
			return res.Error
		}
	}
	if res := tx.Where("team_id = ?", teamID).Delete(&models.UserTeamRole{}); res.Error != nil {
		return res.Error
	}
	if res := tx.Where("team_id = ?", teamID).Delete(&models.Role{}); res.Error != nil {
		return res.Error
	}
	if res := tx.Where("team_id = ?", teamID).Delete(&models.Invitation{}); res.Error != nil {
		return res.Error
	}
	return tx.Delete(&team).Error
}
