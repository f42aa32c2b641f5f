package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/viot-io/viot/internal/auth"
	"github.com/viot-io/viot/internal/email"
	"github.com/viot-io/viot/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const invitationTTL = 7 * 24 * time.Hour

var (
	errInvitationNotFound = errors.New("invitation not found")
	errInvitationExpired  = errors.New("invitation expired")
	errAlreadyMember      = errors.New("already a team member")
)

func newInvitationToken() (string, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf[:]), nil
}

// ListInvitations lists the pending invitations of a Team
// @Summary      List Invitations
// @Description  Lists the pending invitations of a team
// @Id 			 ListInvitations
// @Tags         Invitations
// @Accept       json
// @Produce      json
// @Param		 id   path      string true "Team ID"
// @Success      200  {object}  []models.Invitation
// @Failure      400  {object}  models.BaseError
// @Failure		 401  {object}  models.BaseError
// @Failure		 403  {object}  models.NotAllowedError
// @Failure      404  {object}  models.BaseError
// @Failure      500  {object}  models.InternalServerError "Internal Server Error"
// @Router       /api/teams/{id}/invitations [get]
func (api *API) ListInvitations(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "ListInvitations",
		trace.WithAttributes(
			attribute.String("id", c.Param("id")),
		))
	defer span.End()
	teamId, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewBadPathParameterError("id"))
		return
	}
	if !api.authorizeTeam(c, ctx, teamId, auth.TeamInvitationRead) {
		return
	}

	invitations := []models.Invitation{}
	result := api.db.WithContext(ctx).
		Where("team_id = ? AND accepted_at IS NULL", teamId).
		Order("created_at").
		Find(&invitations)
	if result.Error != nil {
		api.SendInternalServerError(c, result.Error)
		return
	}

	c.JSON(http.StatusOK, invitations)
}

// CreateInvitation invites a user to a Team
// @Summary      Create Invitation
// @Description  Invites a user by email to join a team with a role
// @Id 			 CreateInvitation
// @Tags         Invitations
// @Accept       json
// @Produce      json
// @Param		 id          path   string true "Team ID"
// @Param        Invitation  body   models.AddInvitation true "Add Invitation"
// @Success      201  {object}  models.Invitation
// @Failure      400  {object}  models.BaseError
// @Failure		 401  {object}  models.BaseError
// @Failure		 403  {object}  models.NotAllowedError
// @Failure      404  {object}  models.BaseError
// @Failure		 405  {object}  models.BaseError
// @Failure      500  {object}  models.InternalServerError "Internal Server Error"
// @Router       /api/teams/{id}/invitations [post]
func (api *API) CreateInvitation(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "CreateInvitation",
		trace.WithAttributes(
			attribute.String("id", c.Param("id")),
		))
	defer span.End()
	if !api.FlagCheck(c, "invitations") {
		return
	}
	teamId, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewBadPathParameterError("id"))
		return
	}

	var request models.AddInvitation
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, models.NewBadPayloadError())
		return
	}
	if request.Email == "" {
		c.JSON(http.StatusBadRequest, models.NewFieldNotPresentError("email"))
		return
	}
	if request.RoleID == uuid.Nil {
		c.JSON(http.StatusBadRequest, models.NewFieldNotPresentError("role_id"))
		return
	}

	if !api.authorizeTeam(c, ctx, teamId, auth.TeamInvitationManage) {
		return
	}

	token, err := newInvitationToken()
	if err != nil {
		api.SendInternalServerError(c, err)
		return
	}

	var invitation models.Invitation
	var team models.Team
	err = api.transaction(ctx, func(tx *gorm.DB) error {
		if res := tx.First(&team, "id = ?", teamId); res.Error != nil {
			return errTeamNotFound
		}
		var role models.Role
		res := tx.Where("id = ? AND team_id = ?", request.RoleID, teamId).First(&role)
		if res.Error != nil {
			if errors.Is(res.Error, gorm.ErrRecordNotFound) {
				return errRoleNotFound
			}
			return res.Error
		}
		if role.IsOwner {
			return errRoleIsOwner
		}

		invitation = models.Invitation{
			Base:      models.Base{ID: uuid.New()},
			Email:     request.Email,
			TeamID:    teamId,
			RoleID:    role.ID,
			InviterID: api.GetCurrentUserID(c),
			Token:     token,
			ExpiresAt: time.Now().UTC().Add(invitationTTL),
		}
		return tx.Create(&invitation).Error
	})
	if err != nil {
		switch {
		case errors.Is(err, errTeamNotFound):
			c.JSON(http.StatusNotFound, models.NewNotFoundError("team"))
		case errors.Is(err, errRoleNotFound):
			c.JSON(http.StatusNotFound, models.NewNotFoundError("role"))
		case errors.Is(err, errRoleIsOwner):
			c.JSON(http.StatusForbidden, models.NewNotAllowedError("the owner role cannot be granted by invitation"))
		default:
			api.SendInternalServerError(c, err)
		}
		return
	}

	if err := api.sendInvitationEmail(team, invitation); err != nil {
		// The invitation is created; the mail can be re-sent.
		api.Logger(ctx).Warnw("failed to send invitation email", "error", err)
	}

	c.JSON(http.StatusCreated, invitation)
}

func (api *API) sendInvitationEmail(team models.Team, invitation models.Invitation) error {
	link := fmt.Sprintf("%s/invitations/accept?token=%s", api.FrontendURL, invitation.Token)
	return api.SendEmail(email.Message{
		To:      []string{invitation.Email},
		Subject: fmt.Sprintf("You have been invited to the %s team", team.Name),
		PlainBody: fmt.Sprintf(
			"You have been invited to join the %s team.\r\n\r\nAccept the invitation: %s\r\n",
			team.Name, link),
		HtmlBody: fmt.Sprintf(
			`<p>You have been invited to join the <b>%s</b> team.</p><p><a href="%s">Accept the invitation</a></p>`,
			team.Name, link),
	})
}

// AcceptInvitation redeems an invitation token
// @Summary      Accept Invitation
// @Description  Redeems an invitation token, adding the current user
// to the team with the invited role
// @Id 			 AcceptInvitation
// @Tags         Invitations
// @Accept       json
// @Produce      json
// @Param        Accept  body   models.AcceptInvitation true "Accept Invitation"
// @Success      200  {object}  models.UserTeamRole
// @Failure      400  {object}  models.BaseError
// @Failure		 401  {object}  models.BaseError
// @Failure      404  {object}  models.BaseError
// @Failure      409  {object}  models.BaseError
// @Failure      410  {object}  models.BaseError
// @Failure      500  {object}  models.InternalServerError "Internal Server Error"
// @Router       /api/invitations/accept [post]
func (api *API) AcceptInvitation(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "AcceptInvitation")
	defer span.End()

	var request models.AcceptInvitation
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, models.NewBadPayloadError())
		return
	}
	if request.Token == "" {
		c.JSON(http.StatusBadRequest, models.NewFieldNotPresentError("token"))
		return
	}
	userId := api.GetCurrentUserID(c)

	var membership models.UserTeamRole
	err := api.transaction(ctx, func(tx *gorm.DB) error {
		var invitation models.Invitation
		res := tx.Where("token = ? AND accepted_at IS NULL", request.Token).First(&invitation)
		if res.Error != nil {
			if errors.Is(res.Error, gorm.ErrRecordNotFound) {
				return errInvitationNotFound
			}
			return res.Error
		}
		if time.Now().UTC().After(invitation.ExpiresAt) {
			return errInvitationExpired
		}

		var existing int64
		if res := tx.Model(&models.UserTeamRole{}).
			Where("user_id = ? AND team_id = ?", userId, invitation.TeamID).
			Count(&existing); res.Error != nil {
			return res.Error
		}
		if existing > 0 {
			return errAlreadyMember
		}

		membership = models.UserTeamRole{
			UserID:   userId,
			TeamID:   invitation.TeamID,
			RoleID:   invitation.RoleID,
			JoinedAt: time.Now().UTC(),
		}
		if res := tx.Create(&membership); res.Error != nil {
			return res.Error
		}

		now := time.Now().UTC()
		invitation.AcceptedAt = &now
		return tx.Save(&invitation).Error
	})
	if err != nil {
		switch {
		case errors.Is(err, errInvitationNotFound):
			c.JSON(http.StatusNotFound, models.NewNotFoundError("invitation"))
		case errors.Is(err, errInvitationExpired):
			c.JSON(http.StatusGone, models.NewApiError(errInvitationExpired))
		case errors.Is(err, errAlreadyMember):
			c.JSON(http.StatusConflict, models.NewApiError(errAlreadyMember))
		default:
			api.SendInternalServerError(c, err)
		}
		return
	}

	c.JSON(http.StatusOK, membership)
}

// DeleteInvitation revokes an Invitation
// @Summary      Delete Invitation
// @Description  Revokes a pending invitation
// @Id 			 DeleteInvitation
// @Tags         Invitations
// @Accept       json
// @Produce      json
// @Param		 id     path    string true "Team ID"
// @Param		 invid  path    string true "Invitation ID"
// @Success      200  {object}  models.Invitation
// @Failure      400  {object}  models.BaseError
// @Failure		 401  {object}  models.BaseError
// @Failure		 403  {object}  models.NotAllowedError
// @Failure      404  {object}  models.BaseError
// @Failure      500  {object}  models.InternalServerError "Internal Server Error"
// @Router       /api/teams/{id}/invitations/{invid} [delete]
func (api *API) DeleteInvitation(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "DeleteInvitation",
		trace.WithAttributes(
			attribute.String("id", c.Param("id")),
			attribute.String("invid", c.Param("invid")),
		))
	defer span.End()
	teamId, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewBadPathParameterError("id"))
		return
	}
	invId, err := uuid.Parse(c.Param("invid"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewBadPathParameterError("invid"))
		return
	}

	if !api.authorizeTeam(c, ctx, teamId, auth.TeamInvitationRevoke) {
		return
	}

	var invitation models.Invitation
	db := api.db.WithContext(ctx)
	res := db.Where("id = ? AND team_id = ?", invId, teamId).First(&invitation)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, models.NewNotFoundError("invitation"))
		} else {
			api.SendInternalServerError(c, res.Error)
		}
		return
	}
	if res := db.Delete(&invitation); res.Error != nil {
		api.SendInternalServerError(c, res.Error)
		return
	}

	c.JSON(http.StatusOK, invitation)
}
