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

var errMemberNotFound = errors.New("member not found")

// ListMembers lists the members of a Team
// @Summary      List Team Members
// @Description  Lists the members of a team with the role each holds
// @Id 			 ListMembers
// @Tags         Members
// @Accept       json
// @Produce      json
// @Param		 id   path      string true "Team ID"
// @Success      200  {object}  []models.TeamMember
// @Failure      400  {object}  models.BaseError
// @Failure		 401  {object}  models.BaseError
// @Failure		 403  {object}  models.NotAllowedError
// @Failure      404  {object}  models.BaseError
// @Failure      500  {object}  models.InternalServerError "Internal Server Error"
// @Router       /api/teams/{id}/members [get]
func (api *API) ListMembers(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "ListMembers",
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

	members := []models.TeamMember{}
	result := api.db.WithContext(ctx).
		Model(&models.UserTeamRole{}).
		Select("user_team_roles.user_id", "users.user_name", "users.email", "user_team_roles.role_id", "roles.name AS role").
		Joins("JOIN users ON users.id = user_team_roles.user_id").
		Joins("JOIN roles ON roles.id = user_team_roles.role_id").
		Where("user_team_roles.team_id = ?", teamId).
		Order("users.user_name").
		Scan(&members)
	if result.Error != nil {
		api.SendInternalServerError(c, result.Error)
		return
	}

	c.JSON(http.StatusOK, members)
}

// UpdateMember replaces the role a member holds in a Team
// @Summary      Update Team Member
// @Description  Assigns a different role to a team member. The owner
// membership cannot be reassigned.
// @Id 			 UpdateMember
// @Tags         Members
// @Accept       json
// @Produce      json
// @Param		 id      path   string true "Team ID"
// @Param		 userid  path   string true "User ID"
// @Param        Member  body   models.UpdateTeamMember true "Update Member"
// @Success      200  {object}  models.UserTeamRole
// @Failure      400  {object}  models.BaseError
// @Failure		 401  {object}  models.BaseError
// @Failure		 403  {object}  models.NotAllowedError
// @Failure      404  {object}  models.BaseError
// @Failure      500  {object}  models.InternalServerError "Internal Server Error"
// @Router       /api/teams/{id}/members/{userid} [put]
func (api *API) UpdateMember(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "UpdateMember",
		trace.WithAttributes(
			attribute.String("id", c.Param("id")),
			attribute.String("userid", c.Param("userid")),
		))
	defer span.End()
	teamId, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewBadPathParameterError("id"))
		return
	}
	memberId, err := uuid.Parse(c.Param("userid"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewBadPathParameterError("userid"))
		return
	}

	var request models.UpdateTeamMember
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, models.NewBadPayloadError())
		return
	}
	if request.RoleID == uuid.Nil {
		c.JSON(http.StatusBadRequest, models.NewFieldNotPresentError("role_id"))
		return
	}

	if !api.authorizeTeam(c, ctx, teamId, auth.TeamMemberManage) {
		return
	}

	var membership models.UserTeamRole
	err = api.transaction(ctx, func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND team_id = ?", memberId, teamId).First(&membership)
		if res.Error != nil {
			if errors.Is(res.Error, gorm.ErrRecordNotFound) {
				return errMemberNotFound
			}
			return res.Error
		}

		var currentRole models.Role
		if res := tx.First(&currentRole, "id = ?", membership.RoleID); res.Error != nil {
			return res.Error
		}
		if currentRole.IsOwner {
			return errRoleIsOwner
		}

		// The new role must belong to this team.
		var role models.Role
		res = tx.Where("id = ? AND team_id = ?", request.RoleID, teamId).First(&role)
		if res.Error != nil {
			if errors.Is(res.Error, gorm.ErrRecordNotFound) {
				return errRoleNotFound
			}
			return res.Error
		}

		membership.RoleID = role.ID
		return tx.Model(&models.UserTeamRole{}).
			Where("user_id = ? AND team_id = ?", memberId, teamId).
			Update("role_id", role.ID).Error
	})
	if err != nil {
		switch {
		case errors.Is(err, errMemberNotFound):
			c.JSON(http.StatusNotFound, models.NewNotFoundError("member"))
		case errors.Is(err, errRoleNotFound):
			c.JSON(http.StatusNotFound, models.NewNotFoundError("role"))
		case errors.Is(err, errRoleIsOwner):
			c.JSON(http.StatusForbidden, models.NewNotAllowedError("the owner membership cannot be reassigned"))
		default:
			api.SendInternalServerError(c, err)
		}
		return
	}

	c.JSON(http.StatusOK, membership)
}

// DeleteMember removes a member from a Team
// @Summary      Delete Team Member
// @Description  Removes a member from a team. The owner cannot be
// removed.
// @Id 			 DeleteMember
// @Tags         Members
// @Accept       json
// @Produce      json
// @Param		 id      path   string true "Team ID"
// @Param		 userid  path   string true "User ID"
// @Success      200  {object}  models.UserTeamRole
// @Failure      400  {object}  models.BaseError
// @Failure		 401  {object}  models.BaseError
// @Failure		 403  {object}  models.NotAllowedError
// @Failure      404  {object}  models.BaseError
// @Failure      500  {object}  models.InternalServerError "Internal Server Error"
// @Router       /api/teams/{id}/members/{userid} [delete]
func (api *API) DeleteMember(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "DeleteMember",
		trace.WithAttributes(
			attribute.String("id", c.Param("id")),
			attribute.String("userid", c.Param("userid")),
		))
	defer span.End()
	teamId, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewBadPathParameterError("id"))
		return
	}
	memberId, err := uuid.Parse(c.Param("userid"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewBadPathParameterError("userid"))
		return
	}

	if !api.authorizeTeam(c, ctx, teamId, auth.TeamMemberDelete) {
		return
	}

	var membership models.UserTeamRole
	err = api.transaction(ctx, func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND team_id = ?", memberId, teamId).First(&membership)
		if res.Error != nil {
			if errors.Is(res.Error, gorm.ErrRecordNotFound) {
				return errMemberNotFound
			}
			return res.Error
		}

		var role models.Role
		if res := tx.First(&role, "id = ?", membership.RoleID); res.Error != nil {
			return res.Error
		}
		if role.IsOwner {
			return errRoleIsOwner
		}

		return tx.Where("user_id = ? AND team_id = ?", memberId, teamId).
			Delete(&models.UserTeamRole{}).Error
	})
	if err != nil {
		switch {
		case errors.Is(err, errMemberNotFound):
			c.JSON(http.StatusNotFound, models.NewNotFoundError("member"))
		case errors.Is(err, errRoleIsOwner):
			c.JSON(http.StatusForbidden, models.NewNotAllowedError("the team owner cannot be removed"))
		default:
			api.SendInternalServerError(c, err)
		}
		return
	}

	c.JSON(http.StatusOK, membership)
}
