package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/viot-io/viot/internal/models"
)

func (suite *HandlerTestSuite) createInvitation(teamID, roleID uuid.UUID, email string) models.Invitation {
	require := suite.Require()
	reqBody, err := json.Marshal(models.AddInvitation{Email: email, RoleID: roleID})
	require.NoError(err)
	_, res, err := suite.ServeRequest(
		http.MethodPost,
		"/:id/invitations", fmt.Sprintf("/%s/invitations", teamID),
		func(c *gin.Context) {
			suite.api.CreateInvitation(c)
		},
		bytes.NewBuffer(reqBody),
	)
	require.NoError(err)
	body, err := io.ReadAll(res.Body)
	require.NoError(err)
	require.Equal(http.StatusCreated, res.Code, string(body))

	var invitation models.Invitation
	require.NoError(json.Unmarshal(body, &invitation))
	return invitation
}

func (suite *HandlerTestSuite) TestCreateListInvitations() {
	require := suite.Require()

	roleID := suite.createTeamRole(suite.testUserID, "viewer", "team:member:read")
	invitation := suite.createInvitation(suite.testUserID, roleID, "invitee@example.com")
	require.Equal("invitee@example.com", invitation.Email)
	require.Equal(roleID, invitation.RoleID)
	require.True(invitation.ExpiresAt.After(time.Now()))

	_, res, err := suite.ServeRequest(
		http.MethodGet,
		"/:id/invitations", fmt.Sprintf("/%s/invitations", suite.testUserID),
		func(c *gin.Context) {
			suite.api.ListInvitations(c)
		},
		nil,
	)
	require.NoError(err)
	body, err := io.ReadAll(res.Body)
	require.NoError(err)
	require.Equal(http.StatusOK, res.Code, string(body))

	var invitations []models.Invitation
	require.NoError(json.Unmarshal(body, &invitations))
	require.Len(invitations, 1)
}

// The owner role cannot be handed out by invitation.
func (suite *HandlerTestSuite) TestCreateInvitationOwnerRole() {
	require := suite.Require()

	var ownerRole models.Role
	require.NoError(suite.api.db.Where("team_id = ? AND is_owner = ?", suite.testUserID, true).First(&ownerRole).Error)

	reqBody, err := json.Marshal(models.AddInvitation{Email: "invitee@example.com", RoleID: ownerRole.ID})
	require.NoError(err)
	_, res, err := suite.ServeRequest(
		http.MethodPost,
		"/:id/invitations", fmt.Sprintf("/%s/invitations", suite.testUserID),
		func(c *gin.Context) {
			suite.api.CreateInvitation(c)
		},
		bytes.NewBuffer(reqBody),
	)
	require.NoError(err)
	require.Equal(http.StatusForbidden, res.Code)
}

func (suite *HandlerTestSuite) TestAcceptInvitation() {
	require := suite.Require()

	roleID := suite.createTeamRole(suite.testUserID, "viewer", "team:member:read")
	invitation := suite.createInvitation(suite.testUserID, roleID, "invitee@example.com")

	// The token is not in the response body, only in the mail link
	var stored models.Invitation
	require.NoError(suite.api.db.First(&stored, "id = ?", invitation.ID).Error)
	require.NotEmpty(stored.Token)

	invitee := suite.createSecondUser("invitee")
	reqBody, err := json.Marshal(models.AcceptInvitation{Token: stored.Token})
	require.NoError(err)
	_, res, err := suite.ServeRequestAs(invitee,
		http.MethodPost,
		"/accept", "/accept",
		func(c *gin.Context) {
			suite.api.AcceptInvitation(c)
		},
		bytes.NewBuffer(reqBody),
	)
	require.NoError(err)
	body, err := io.ReadAll(res.Body)
	require.NoError(err)
	require.Equal(http.StatusOK, res.Code, string(body))

	var membership models.UserTeamRole
	require.NoError(json.Unmarshal(body, &membership))
	require.Equal(invitee, membership.UserID)
	require.Equal(roleID, membership.RoleID)

	// The invitee can now read the team
	_, res, err = suite.ServeRequestAs(invitee,
		http.MethodGet,
		"/:id", fmt.Sprintf("/%s", suite.testUserID),
		func(c *gin.Context) {
			suite.api.GetTeam(c)
		},
		nil,
	)
	require.NoError(err)
	require.Equal(http.StatusOK, res.Code)

	// Redeeming the same token again fails
	_, res, err = suite.ServeRequestAs(invitee,
		http.MethodPost,
		"/accept", "/accept",
		func(c *gin.Context) {
			suite.api.AcceptInvitation(c)
		},
		bytes.NewBuffer(reqBody),
	)
	require.NoError(err)
	require.Equal(http.StatusNotFound, res.Code)
}

func (suite *HandlerTestSuite) TestAcceptExpiredInvitation() {
	require := suite.Require()

	roleID := suite.createTeamRole(suite.testUserID, "viewer", "team:member:read")
	invitation := suite.createInvitation(suite.testUserID, roleID, "invitee@example.com")

	require.NoError(suite.api.db.Model(&models.Invitation{}).
		Where("id = ?", invitation.ID).
		Update("expires_at", time.Now().UTC().Add(-time.Hour)).Error)

	var stored models.Invitation
	require.NoError(suite.api.db.First(&stored, "id = ?", invitation.ID).Error)

	invitee := suite.createSecondUser("invitee")
	reqBody, err := json.Marshal(models.AcceptInvitation{Token: stored.Token})
	require.NoError(err)
	_, res, err := suite.ServeRequestAs(invitee,
		http.MethodPost,
		"/accept", "/accept",
		func(c *gin.Context) {
			suite.api.AcceptInvitation(c)
		},
		bytes.NewBuffer(reqBody),
	)
	require.NoError(err)
	require.Equal(http.StatusGone, res.Code)
}

func (suite *HandlerTestSuite) TestDeleteInvitation() {
	require := suite.Require()

	roleID := suite.createTeamRole(suite.testUserID, "viewer", "team:member:read")
	invitation := suite.createInvitation(suite.testUserID, roleID, "invitee@example.com")

	_, res, err := suite.ServeRequest(
		http.MethodDelete,
		"/:id/invitations/:invid", fmt.Sprintf("/%s/invitations/%s", suite.testUserID, invitation.ID),
		func(c *gin.Context) {
			suite.api.DeleteInvitation(c)
		},
		nil,
	)
	require.NoError(err)
	require.Equal(http.StatusOK, res.Code)

	var count int64
	suite.api.db.Model(&models.Invitation{}).Where("team_id = ?", suite.testUserID).Count(&count)
	require.Zero(count)
}
