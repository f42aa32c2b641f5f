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

func (suite *HandlerTestSuite) TestListMembers() {
	require := suite.Require()

	member := suite.createSecondUser("memberuser")
	roleID := suite.createTeamRole(suite.testUserID, "viewer", "team:member:read")
	suite.addMember(suite.testUserID, member, roleID)

	_, res, err := suite.ServeRequest(
		http.MethodGet,
		"/:id/members", fmt.Sprintf("/%s/members", suite.testUserID),
		func(c *gin.Context) {
			suite.api.ListMembers(c)
		},
		nil,
	)
	require.NoError(err)
	body, err := io.ReadAll(res.Body)
	require.NoError(err)
	require.Equal(http.StatusOK, res.Code, string(body))

	var members []models.TeamMember
	require.NoError(json.Unmarshal(body, &members))
	require.Len(members, 2)

	byName := map[string]models.TeamMember{}
	for _, m := range members {
		byName[m.UserName] = m
	}
	require.Equal("owner", byName["testuser"].Role)
	require.Equal("viewer", byName["memberuser"].Role)
}

func (suite *HandlerTestSuite) TestUpdateMemberRole() {
	require := suite.Require()

	member := suite.createSecondUser("memberuser")
	viewerRole := suite.createTeamRole(suite.testUserID, "viewer", "team:member:read")
	managerRole := suite.createTeamRole(suite.testUserID, "manager", "team:member:manage")
	suite.addMember(suite.testUserID, member, viewerRole)

	reqBody, err := json.Marshal(models.UpdateTeamMember{RoleID: managerRole})
	require.NoError(err)
	_, res, err := suite.ServeRequest(
		http.MethodPut,
		"/:id/members/:userid", fmt.Sprintf("/%s/members/%s", suite.testUserID, member),
		func(c *gin.Context) {
			suite.api.UpdateMember(c)
		},
		bytes.NewBuffer(reqBody),
	)
	require.NoError(err)
	body, err := io.ReadAll(res.Body)
	require.NoError(err)
	require.Equal(http.StatusOK, res.Code, string(body))

	var membership models.UserTeamRole
	require.NoError(json.Unmarshal(body, &membership))
	require.Equal(managerRole, membership.RoleID)
}

// The owner membership can neither be reassigned nor removed.
func (suite *HandlerTestSuite) TestOwnerMembershipIsImmutable() {
	require := suite.Require()

	viewerRole := suite.createTeamRole(suite.testUserID, "viewer", "team:member:read")

	reqBody, err := json.Marshal(models.UpdateTeamMember{RoleID: viewerRole})
	require.NoError(err)
	_, res, err := suite.ServeRequest(
		http.MethodPut,
		"/:id/members/:userid", fmt.Sprintf("/%s/members/%s", suite.testUserID, suite.testUserID),
		func(c *gin.Context) {
			suite.api.UpdateMember(c)
		},
		bytes.NewBuffer(reqBody),
	)
	require.NoError(err)
	require.Equal(http.StatusForbidden, res.Code)

	_, res, err = suite.ServeRequest(
		http.MethodDelete,
		"/:id/members/:userid", fmt.Sprintf("/%s/members/%s", suite.testUserID, suite.testUserID),
		func(c *gin.Context) {
			suite.api.DeleteMember(c)
		},
		nil,
	)
	require.NoError(err)
	require.Equal(http.StatusForbidden, res.Code)
}

func (suite *HandlerTestSuite) TestDeleteMember() {
	require := suite.Require()

	member := suite.createSecondUser("memberuser")
	roleID := suite.createTeamRole(suite.testUserID, "viewer", "team:member:read")
	suite.addMember(suite.testUserID, member, roleID)

	_, res, err := suite.ServeRequest(
		http.MethodDelete,
		"/:id/members/:userid", fmt.Sprintf("/%s/members/%s", suite.testUserID, member),
		func(c *gin.Context) {
			suite.api.DeleteMember(c)
		},
		nil,
	)
	require.NoError(err)
	require.Equal(http.StatusOK, res.Code)

	// The removed member no longer sees the team
	_, res, err = suite.ServeRequestAs(member,
		http.MethodGet,
		"/:id", fmt.Sprintf("/%s", suite.testUserID),
		func(c *gin.Context) {
			suite.api.GetTeam(c)
		},
		nil,
	)
	require.NoError(err)
	require.Equal(http.StatusNotFound, res.Code)
}

func (suite *HandlerTestSuite) TestUpdateMemberUnknownRole() {
	require := suite.Require()

	member := suite.createSecondUser("memberuser")
	roleID := suite.createTeamRole(suite.testUserID, "viewer", "team:member:read")
	suite.addMember(suite.testUserID, member, roleID)

	// A role from another team cannot be assigned
	otherUser := suite.createSecondUser("otherowner")
	foreignRole := suite.createTeamRole(otherUser, "foreign", "team:member:read")

	reqBody, err := json.Marshal(models.UpdateTeamMember{RoleID: foreignRole})
	require.NoError(err)
	_, res, err := suite.ServeRequest(
		http.MethodPut,
		"/:id/members/:userid", fmt.Sprintf("/%s/members/%s", suite.testUserID, member),
		func(c *gin.Context) {
			suite.api.UpdateMember(c)
		},
		bytes.NewBuffer(reqBody),
	)
	require.NoError(err)
	require.Equal(http.StatusNotFound, res.Code)
}
