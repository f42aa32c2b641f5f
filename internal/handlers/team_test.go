package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/viot-io/viot/internal/models"
)

func (suite *HandlerTestSuite) TestCreateGetTeam() {
	require := suite.Require()
	assert := suite.Assert()

	teams := []models.AddTeam{
		{Name: "team-a", Description: "team a"},
		{Name: "team-b", Description: "team b"},
		{Name: "team-c", Description: "team c"},
	}

	teamDenied := models.AddTeam{Name: "team-a"}

	for _, team := range teams {
		reqBody, err := json.Marshal(team)
		assert.NoError(err)
		_, res, err := suite.ServeRequest(
			http.MethodPost,
			"/", "/",
			func(c *gin.Context) {
				suite.api.CreateTeam(c)
			},
			bytes.NewBuffer(reqBody),
		)
		require.NoError(err)
		body, err := io.ReadAll(res.Body)
		require.NoError(err)
		require.Equal(http.StatusCreated, res.Code, string(body))

		var actual models.Team
		err = json.Unmarshal(body, &actual)
		require.NoError(err)
		require.Equal(team.Name, actual.Name)
		require.Equal(team.Description, actual.Description)
		require.False(actual.Default)
	}

	// Creating a team with a duplicate name is a conflict
	reqBody, err := json.Marshal(teamDenied)
	assert.NoError(err)
	_, res, err := suite.ServeRequest(
		http.MethodPost,
		"/", "/",
		func(c *gin.Context) {
			suite.api.CreateTeam(c)
		},
		bytes.NewBuffer(reqBody),
	)
	require.NoError(err)
	require.Equal(http.StatusConflict, res.Code)

	// The list contains the default team plus the three created ones
	_, res, err = suite.ServeRequest(
		http.MethodGet,
		"/", "/",
		func(c *gin.Context) {
			suite.api.ListTeams(c)
		},
		nil,
	)
	require.NoError(err)
	body, err := io.ReadAll(res.Body)
	require.NoError(err)
	require.Equal(http.StatusOK, res.Code, string(body))

	var actual []models.Team
	err = json.Unmarshal(body, &actual)
	require.NoError(err)
	require.Len(actual, 4)
}

func (suite *HandlerTestSuite) TestCreateTeamRequiresName() {
	require := suite.Require()

	reqBody, err := json.Marshal(models.AddTeam{Description: "no name"})
	require.NoError(err)
	_, res, err := suite.ServeRequest(
		http.MethodPost,
		"/", "/",
		func(c *gin.Context) {
			suite.api.CreateTeam(c)
		},
		bytes.NewBuffer(reqBody),
	)
	require.NoError(err)
	require.Equal(http.StatusBadRequest, res.Code)
}

func (suite *HandlerTestSuite) TestGetTeamNotMine() {
	require := suite.Require()

	// The other user's default team is invisible to the test user
	otherUser := suite.createSecondUser("otheruser")
	_, res, err := suite.ServeRequest(
		http.MethodGet,
		"/:id", fmt.Sprintf("/%s", otherUser),
		func(c *gin.Context) {
			suite.api.GetTeam(c)
		},
		nil,
	)
	require.NoError(err)
	require.Equal(http.StatusNotFound, res.Code)

	_, res, err = suite.ServeRequest(
		http.MethodGet,
		"/:id", fmt.Sprintf("/%s", suite.testUserID),
		func(c *gin.Context) {
			suite.api.GetTeam(c)
		},
		nil,
	)
	require.NoError(err)
	body, err := io.ReadAll(res.Body)
	require.NoError(err)
	require.Equal(http.StatusOK, res.Code, string(body))

	var team models.Team
	require.NoError(json.Unmarshal(body, &team))
	require.True(team.Default)
}

func (suite *HandlerTestSuite) TestUpdateTeam() {
	require := suite.Require()

	newName := "renamed"
	reqBody, err := json.Marshal(models.UpdateTeam{Name: &newName})
	require.NoError(err)
	_, res, err := suite.ServeRequest(
		http.MethodPatch,
		"/:id", fmt.Sprintf("/%s", suite.testUserID),
		func(c *gin.Context) {
			suite.api.UpdateTeam(c)
		},
		bytes.NewBuffer(reqBody),
	)
	require.NoError(err)
	body, err := io.ReadAll(res.Body)
	require.NoError(err)
	require.Equal(http.StatusOK, res.Code, string(body))

	var team models.Team
	require.NoError(json.Unmarshal(body, &team))
	require.Equal(newName, team.Name)
}

// A member without the profile scope can read the team but not update it.
func (suite *HandlerTestSuite) TestUpdateTeamRequiresProfileManage() {
	require := suite.Require()

	viewer := suite.createSecondUser("vieweruser")
	roleID := suite.createTeamRole(suite.testUserID, "viewer", "team:profile:read")
	suite.addMember(suite.testUserID, viewer, roleID)

	newName := "renamed"
	reqBody, err := json.Marshal(models.UpdateTeam{Name: &newName})
	require.NoError(err)
	_, res, err := suite.ServeRequestAs(viewer,
		http.MethodPatch,
		"/:id", fmt.Sprintf("/%s", suite.testUserID),
		func(c *gin.Context) {
			suite.api.UpdateTeam(c)
		},
		bytes.NewBuffer(reqBody),
	)
	require.NoError(err)
	require.Equal(http.StatusForbidden, res.Code)
}

func (suite *HandlerTestSuite) TestDeleteTeam() {
	require := suite.Require()

	// The default team cannot be deleted
	_, res, err := suite.ServeRequest(
		http.MethodDelete,
		"/:id", fmt.Sprintf("/%s", suite.testUserID),
		func(c *gin.Context) {
			suite.api.DeleteTeam(c)
		},
		nil,
	)
	require.NoError(err)
	require.Equal(http.StatusForbidden, res.Code)

	// A created team can
	reqBody, err := json.Marshal(models.AddTeam{Name: "doomed"})
	require.NoError(err)
	_, res, err = suite.ServeRequest(
		http.MethodPost,
		"/", "/",
		func(c *gin.Context) {
			suite.api.CreateTeam(c)
		},
		bytes.NewBuffer(reqBody),
	)
	require.NoError(err)
	require.Equal(http.StatusCreated, res.Code)
	var team models.Team
	require.NoError(json.Unmarshal(res.Body.Bytes(), &team))

	_, res, err = suite.ServeRequest(
		http.MethodDelete,
		"/:id", fmt.Sprintf("/%s", team.ID),
		func(c *gin.Context) {
			suite.api.DeleteTeam(c)
		},
		nil,
	)
	require.NoError(err)
	require.Equal(http.StatusOK, res.Code)

	_, res, err = suite.ServeRequest(
		http.MethodGet,
		"/:id", fmt.Sprintf("/%s", team.ID),
		func(c *gin.Context) {
			suite.api.GetTeam(c)
		},
		nil,
	)
	require.NoError(err)
	require.Equal(http.StatusNotFound, res.Code)
}

// Only the owner role may delete a team, even for members holding every
// granted scope.
func (suite *HandlerTestSuite) TestDeleteTeamRequiresOwner() {
	require := suite.Require()

	reqBody, err := json.Marshal(models.AddTeam{Name: "shared-team"})
	require.NoError(err)
	_, res, err := suite.ServeRequest(
		http.MethodPost,
		"/", "/",
		func(c *gin.Context) {
			suite.api.CreateTeam(c)
		},
		bytes.NewBuffer(reqBody),
	)
	require.NoError(err)
	require.Equal(http.StatusCreated, res.Code)
	var team models.Team
	require.NoError(json.Unmarshal(res.Body.Bytes(), &team))

	member := suite.createSecondUser("memberuser")
	roleID := suite.createTeamRole(team.ID, "manager", "team:profile:manage", "team:member:manage")
	suite.addMember(team.ID, member, roleID)

	_, res, err = suite.ServeRequestAs(member,
		http.MethodDelete,
		"/:id", fmt.Sprintf("/%s", team.ID),
		func(c *gin.Context) {
			suite.api.DeleteTeam(c)
		},
		nil,
	)
	require.NoError(err)
	require.Equal(http.StatusForbidden, res.Code)
}
