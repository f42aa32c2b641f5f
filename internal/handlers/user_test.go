package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/viot-io/viot/internal/models"
)

func (suite *HandlerTestSuite) TestCreateUserIfNotExists() {
	require := suite.Require()

	// The user exists with its default team and owner membership
	var user models.User
	require.NoError(suite.api.db.First(&user, "id = ?", suite.testUserID).Error)
	require.Equal("testuser", user.UserName)

	var team models.Team
	require.NoError(suite.api.db.First(&team, "id = ?", suite.testUserID).Error)
	require.True(team.Default)

	var membership models.UserTeamRole
	require.NoError(suite.api.db.
		Where("user_id = ? AND team_id = ?", suite.testUserID, suite.testUserID).
		First(&membership).Error)
	var role models.Role
	require.NoError(suite.api.db.First(&role, "id = ?", membership.RoleID).Error)
	require.True(role.IsOwner)

	// A second sign-in with the same subject is idempotent
	again, err := suite.api.CreateUserIfNotExists(context.Background(), TestIdpID, "testuser", "testuser@example.com")
	require.NoError(err)
	require.Equal(suite.testUserID, again)
}

func (suite *HandlerTestSuite) TestGetUser() {
	require := suite.Require()

	for _, path := range []string{"me", suite.testUserID.String()} {
		_, res, err := suite.ServeRequest(
			http.MethodGet,
			"/:id", fmt.Sprintf("/%s", path),
			func(c *gin.Context) {
				suite.api.GetUser(c)
			},
			nil,
		)
		require.NoError(err)
		body, err := io.ReadAll(res.Body)
		require.NoError(err)
		require.Equal(http.StatusOK, res.Code, string(body))

		var user models.User
		require.NoError(json.Unmarshal(body, &user))
		require.Equal(suite.testUserID, user.ID)
	}
}

// Users cannot read each other's records.
func (suite *HandlerTestSuite) TestGetOtherUser() {
	require := suite.Require()

	other := suite.createSecondUser("otheruser")
	_, res, err := suite.ServeRequest(
		http.MethodGet,
		"/:id", fmt.Sprintf("/%s", other),
		func(c *gin.Context) {
			suite.api.GetUser(c)
		},
		nil,
	)
	require.NoError(err)
	require.Equal(http.StatusNotFound, res.Code)
}

func (suite *HandlerTestSuite) TestDeleteUser() {
	require := suite.Require()

	device := suite.createDevice(suite.testUserID, "boiler-7")

	_, res, err := suite.ServeRequest(
		http.MethodDelete,
		"/:id", fmt.Sprintf("/%s", suite.testUserID),
		func(c *gin.Context) {
			suite.api.DeleteUser(c)
		},
		nil,
	)
	require.NoError(err)
	require.Equal(http.StatusOK, res.Code)

	// The user, its default team and the team's devices are gone
	var count int64
	suite.api.db.Model(&models.User{}).Where("id = ?", suite.testUserID).Count(&count)
	require.Zero(count)
	suite.api.db.Model(&models.Team{}).Where("id = ?", suite.testUserID).Count(&count)
	require.Zero(count)
	suite.api.db.Model(&models.Device{}).Where("id = ?", device.ID).Count(&count)
	require.Zero(count)
}

func (suite *HandlerTestSuite) TestDeleteOtherUser() {
	require := suite.Require()

	other := suite.createSecondUser("otheruser")
	_, res, err := suite.ServeRequest(
		http.MethodDelete,
		"/:id", fmt.Sprintf("/%s", other),
		func(c *gin.Context) {
			suite.api.DeleteUser(c)
		},
		nil,
	)
	require.NoError(err)
	require.Equal(http.StatusNotFound, res.Code)
}
