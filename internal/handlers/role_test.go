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

func (suite *HandlerTestSuite) TestCreateListRoles() {
	require := suite.Require()

	reqBody, err := json.Marshal(models.AddRole{
		Name:   "operator",
		Scopes: []string{"team:device:read", "team:device_data:read"},
	})
	require.NoError(err)
	_, res, err := suite.ServeRequest(
		http.MethodPost,
		"/:id/roles", fmt.Sprintf("/%s/roles", suite.testUserID),
		func(c *gin.Context) {
			suite.api.CreateRole(c)
		},
		bytes.NewBuffer(reqBody),
	)
	require.NoError(err)
	body, err := io.ReadAll(res.Body)
	require.NoError(err)
	require.Equal(http.StatusCreated, res.Code, string(body))

	var created models.Role
	require.NoError(json.Unmarshal(body, &created))
	require.Equal("operator", created.Name)
	require.False(created.IsOwner)

	_, res, err = suite.ServeRequest(
		http.MethodGet,
		"/:id/roles", fmt.Sprintf("/%s/roles", suite.testUserID),
		func(c *gin.Context) {
			suite.api.ListRoles(c)
		},
		nil,
	)
	require.NoError(err)
	body, err = io.ReadAll(res.Body)
	require.NoError(err)
	require.Equal(http.StatusOK, res.Code, string(body))

	var roles []models.Role
	require.NoError(json.Unmarshal(body, &roles))
	// owner role plus the created one, sorted by name
	require.Len(roles, 2)
	require.Equal("operator", roles[0].Name)
	require.Len(roles[0].Permissions, 2)
	require.Equal("owner", roles[1].Name)
	require.True(roles[1].IsOwner)
}

func (suite *HandlerTestSuite) TestCreateRoleUnknownScope() {
	require := suite.Require()

	reqBody, err := json.Marshal(models.AddRole{
		Name:   "operator",
		Scopes: []string{"team:nonsense:scope"},
	})
	require.NoError(err)
	_, res, err := suite.ServeRequest(
		http.MethodPost,
		"/:id/roles", fmt.Sprintf("/%s/roles", suite.testUserID),
		func(c *gin.Context) {
			suite.api.CreateRole(c)
		},
		bytes.NewBuffer(reqBody),
	)
	require.NoError(err)
	require.Equal(http.StatusBadRequest, res.Code)
}

func (suite *HandlerTestSuite) TestUpdateRole() {
	require := suite.Require()

	roleID := suite.createTeamRole(suite.testUserID, "operator", "team:device:read")

	newName := "supervisor"
	permissionIDs := []int64{}
	var perms []models.Permission
	require.NoError(suite.api.db.Where("scope IN ?", []string{"team:device:read", "team:device:manage"}).Find(&perms).Error)
	for _, p := range perms {
		permissionIDs = append(permissionIDs, p.ID)
	}

	reqBody, err := json.Marshal(models.UpdateRole{Name: &newName, PermissionIDs: &permissionIDs})
	require.NoError(err)
	_, res, err := suite.ServeRequest(
		http.MethodPatch,
		"/:id/roles/:roleid", fmt.Sprintf("/%s/roles/%s", suite.testUserID, roleID),
		func(c *gin.Context) {
			suite.api.UpdateRole(c)
		},
		bytes.NewBuffer(reqBody),
	)
	require.NoError(err)
	body, err := io.ReadAll(res.Body)
	require.NoError(err)
	require.Equal(http.StatusOK, res.Code, string(body))

	var role models.Role
	require.NoError(json.Unmarshal(body, &role))
	require.Equal(newName, role.Name)

	var grants int64
	suite.api.db.Model(&models.RolePermission{}).Where("role_id = ?", roleID).Count(&grants)
	require.Equal(int64(2), grants)
}

func (suite *HandlerTestSuite) TestOwnerRoleIsImmutable() {
	require := suite.Require()

	var ownerRole models.Role
	require.NoError(suite.api.db.Where("team_id = ? AND is_owner = ?", suite.testUserID, true).First(&ownerRole).Error)

	newName := "renamed"
	reqBody, err := json.Marshal(models.UpdateRole{Name: &newName})
	require.NoError(err)
	_, res, err := suite.ServeRequest(
		http.MethodPatch,
		"/:id/roles/:roleid", fmt.Sprintf("/%s/roles/%s", suite.testUserID, ownerRole.ID),
		func(c *gin.Context) {
			suite.api.UpdateRole(c)
		},
		bytes.NewBuffer(reqBody),
	)
	require.NoError(err)
	require.Equal(http.StatusForbidden, res.Code)

	_, res, err = suite.ServeRequest(
		http.MethodDelete,
		"/:id/roles/:roleid", fmt.Sprintf("/%s/roles/%s", suite.testUserID, ownerRole.ID),
		func(c *gin.Context) {
			suite.api.DeleteRole(c)
		},
		nil,
	)
	require.NoError(err)
	require.Equal(http.StatusForbidden, res.Code)
}

func (suite *HandlerTestSuite) TestDeleteRole() {
	require := suite.Require()

	roleID := suite.createTeamRole(suite.testUserID, "operator", "team:device:read")

	// While assigned the role cannot be deleted
	member := suite.createSecondUser("memberuser")
	suite.addMember(suite.testUserID, member, roleID)

	_, res, err := suite.ServeRequest(
		http.MethodDelete,
		"/:id/roles/:roleid", fmt.Sprintf("/%s/roles/%s", suite.testUserID, roleID),
		func(c *gin.Context) {
			suite.api.DeleteRole(c)
		},
		nil,
	)
	require.NoError(err)
	require.Equal(http.StatusConflict, res.Code)

	require.NoError(suite.api.db.Where("user_id = ? AND team_id = ?", member, suite.testUserID).
		Delete(&models.UserTeamRole{}).Error)

	_, res, err = suite.ServeRequest(
		http.MethodDelete,
		"/:id/roles/:roleid", fmt.Sprintf("/%s/roles/%s", suite.testUserID, roleID),
		func(c *gin.Context) {
			suite.api.DeleteRole(c)
		},
		nil,
	)
	require.NoError(err)
	require.Equal(http.StatusOK, res.Code)

	var grants int64
	suite.api.db.Model(&models.RolePermission{}).Where("role_id = ?", roleID).Count(&grants)
	require.Zero(grants)
}

func (suite *HandlerTestSuite) TestListPermissions() {
	require := suite.Require()

	_, res, err := suite.ServeRequest(
		http.MethodGet,
		"/", "/",
		func(c *gin.Context) {
			suite.api.ListPermissions(c)
		},
		nil,
	)
	require.NoError(err)
	body, err := io.ReadAll(res.Body)
	require.NoError(err)
	require.Equal(http.StatusOK, res.Code, string(body))

	var permissions []models.Permission
	require.NoError(json.Unmarshal(body, &permissions))
	require.Len(permissions, 13)
}
