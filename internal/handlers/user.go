package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/viot-io/viot/internal/database"
	"github.com/viot-io/viot/internal/models"
	"github.com/viot-io/viot/internal/util"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

var errUserNotFound = errors.New("user not found")

// CreateUserIfNotExists resolves the IDP subject to a local user,
// creating the user together with its default team on first sight. The
// default team gets an owner role and a membership for the user, all in
// one transaction.
func (api *API) CreateUserIfNotExists(ctx context.Context, idpId string, userName string, userEmail string) (uuid.UUID, error) {
	ctx, span := tracer.Start(ctx, "CreateUserIfNotExists", trace.WithAttributes(
		attribute.String("idp_id", idpId),
		attribute.String("username", userName),
	))
	defer span.End()

	var user models.User
	res := api.db.WithContext(ctx).First(&user, "idp_id = ?", idpId)
	if res.Error == nil {
		return user.ID, nil
	}
	if !errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return uuid.Nil, res.Error
	}

	// Concurrent first requests race on the idp_id unique index, the
	// loser retries and finds the user created by the winner.
	err := util.RetryOperationForErrors(ctx, time.Millisecond*10, 1, []error{gorm.ErrDuplicatedKey}, func() error {
		return api.transaction(ctx, func(tx *gorm.DB) error {
			res := tx.First(&user, "idp_id = ?", idpId)
			if res.Error == nil {
				return nil
			}
			if !errors.Is(res.Error, gorm.ErrRecordNotFound) {
				return res.Error
			}

			user = models.User{
				Base:     models.Base{ID: uuid.New()},
				IdpID:    idpId,
				UserName: userName,
				Email:    userEmail,
			}
			if res := tx.Create(&user); res.Error != nil {
				if database.IsDuplicateError(res.Error) {
					res.Error = gorm.ErrDuplicatedKey
				}
				return res.Error
			}

			team := models.Team{
				Base:        models.Base{ID: user.ID},
				Name:        userName,
				Description: fmt.Sprintf("%s's team", userName),
				Default:     true,
			}
			if res := tx.Create(&team); res.Error != nil {
				if database.IsDuplicateError(res.Error) {
					res.Error = gorm.ErrDuplicatedKey
				}
				return res.Error
			}

			return createOwnerMembership(tx, team.ID, user.ID)
		})
	})
	if err != nil {
		return uuid.Nil, err
	}
	return user.ID, nil
}

// createOwnerMembership seeds the owner role of a new team and binds
// the user to it.
func createOwnerMembership(tx *gorm.DB, teamID uuid.UUID, userID uuid.UUID) error {
	role := models.Role{
		Base:        models.Base{ID: uuid.New()},
		TeamID:      teamID,
		Name:        "owner",
		Description: "Team owner",
		IsOwner:     true,
	}
	if res := tx.Create(&role); res.Error != nil {
		return res.Error
	}
	return tx.Create(&models.UserTeamRole{
		UserID:   userID,
		TeamID:   teamID,
		RoleID:   role.ID,
		JoinedAt: time.Now().UTC(),
	}).Error
}

// GetUser gets a user
// @Summary      Get User
// @Description  Gets a user
// @Id           GetUser
// @Tags         Users
// @Accept       json
// @Produce      json
// @Param        id  path       string  true  "User ID"
// @Success      200  {object}  models.User
// @Failure      400  {object}  models.BaseError
// @Failure		 401  {object}  models.BaseError
// @Failure      404  {object}  models.BaseError
// @Failure      500  {object}  models.InternalServerError "Internal Server Error"
// @Router       /api/users/{id} [get]
func (api *API) GetUser(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "GetUser",
		trace.WithAttributes(
			attribute.String("id", c.Param("id")),
		))
	defer span.End()

	var userId uuid.UUID
	var err error
	if c.Param("id") == "me" {
		userId = api.GetCurrentUserID(c)
	} else {
		userId, err = uuid.Parse(c.Param("id"))
		if err != nil || userId == uuid.Nil {
			c.JSON(http.StatusBadRequest, models.NewBadPathParameterError("id"))
			return
		}
	}

	// Users can only read their own record.
	if userId != api.GetCurrentUserID(c) {
		c.JSON(http.StatusNotFound, models.NewNotFoundError("user"))
		return
	}

	var user models.User
	db := api.db.WithContext(ctx)
	if res := db.First(&user, "id = ?", userId); res.Error != nil {
		c.JSON(http.StatusNotFound, models.NewNotFoundError("user"))
		return
	}
	c.JSON(http.StatusOK, user)
}

// DeleteUser deletes a user
// @Summary      Delete User
// @Description  Deletes a user and its team memberships. The default
// team of the user is deleted as well.
// @Id           DeleteUser
// @Tags         Users
// @Accept       json
// @Produce      json
// @Param        id  path       string  true  "User ID"
// @Success      200  {object}  models.User
// @Failure      400  {object}  models.BaseError
// @Failure		 401  {object}  models.BaseError
// @Failure      404  {object}  models.BaseError
// @Failure      500  {object}  models.InternalServerError "Internal Server Error"
// @Router       /api/users/{id} [delete]
func (api *API) DeleteUser(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "DeleteUser",
		trace.WithAttributes(
			attribute.String("id", c.Param("id")),
		))
	defer span.End()

	userId, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewBadPathParameterError("id"))
		return
	}
	if userId != api.GetCurrentUserID(c) {
		c.JSON(http.StatusNotFound, models.NewNotFoundError("user"))
		return
	}

	var user models.User
	err = api.transaction(ctx, func(tx *gorm.DB) error {
		if res := tx.First(&user, "id = ?", userId); res.Error != nil {
			if errors.Is(res.Error, gorm.ErrRecordNotFound) {
				return errUserNotFound
			}
			return res.Error
		}
		if res := tx.Where("user_id = ?", userId).Delete(&models.UserTeamRole{}); res.Error != nil {
			return res.Error
		}
		// The default team shares the user's id.
		if err := deleteTeamInTx(tx, userId); err != nil && !errors.Is(err, errTeamNotFound) {
			return err
		}
		return tx.Delete(&user).Error
	})
	if err != nil {
		if errors.Is(err, errUserNotFound) {
			c.JSON(http.StatusNotFound, models.NewNotFoundError("user"))
		} else {
			api.SendInternalServerError(c, err)
		}
		return
	}
	c.JSON(http.StatusOK, user)
}
