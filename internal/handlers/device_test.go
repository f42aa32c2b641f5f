package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/viot-io/viot/internal/models"
)

func (suite *HandlerTestSuite) createDevice(teamID uuid.UUID, name string) models.Device {
	require := suite.Require()
	reqBody, err := json.Marshal(models.AddDevice{Name: name})
	require.NoError(err)
	_, res, err := suite.ServeRequest(
		http.MethodPost,
		"/:id/devices", fmt.Sprintf("/%s/devices", teamID),
		func(c *gin.Context) {
			suite.api.CreateDevice(c)
		},
		bytes.NewBuffer(reqBody),
	)
	require.NoError(err)
	body, err := io.ReadAll(res.Body)
	require.NoError(err)
	require.Equal(http.StatusCreated, res.Code, string(body))

	var device models.Device
	require.NoError(json.Unmarshal(body, &device))
	return device
}

func (suite *HandlerTestSuite) TestCreateGetDevice() {
	require := suite.Require()

	device := suite.createDevice(suite.testUserID, "boiler-7")
	// The broker access token is returned exactly once, on create
	require.NotEmpty(device.AccessToken)
	require.Equal(models.DeviceStatusOffline, device.Status)

	_, res, err := suite.ServeRequest(
		http.MethodGet,
		"/:id/devices/:deviceid", fmt.Sprintf("/%s/devices/%s", suite.testUserID, device.ID),
		func(c *gin.Context) {
			suite.api.GetDevice(c)
		},
		nil,
	)
	require.NoError(err)
	body, err := io.ReadAll(res.Body)
	require.NoError(err)
	require.Equal(http.StatusOK, res.Code, string(body))

	var fetched models.Device
	require.NoError(json.Unmarshal(body, &fetched))
	require.Equal(device.ID, fetched.ID)
	require.Equal("boiler-7", fetched.Name)
	require.Empty(fetched.AccessToken)
}

func (suite *HandlerTestSuite) TestListDevices() {
	require := suite.Require()

	for _, name := range []string{"boiler-1", "boiler-2", "boiler-3"} {
		suite.createDevice(suite.testUserID, name)
	}

	_, res, err := suite.ServeRequest(
		http.MethodGet,
		"/:id/devices", fmt.Sprintf("/%s/devices", suite.testUserID),
		func(c *gin.Context) {
			suite.api.ListDevices(c)
		},
		nil,
	)
	require.NoError(err)
	body, err := io.ReadAll(res.Body)
	require.NoError(err)
	require.Equal(http.StatusOK, res.Code, string(body))

	var devices []models.Device
	require.NoError(json.Unmarshal(body, &devices))
	require.Len(devices, 3)
	for _, device := range devices {
		require.Empty(device.AccessToken)
	}
}

func (suite *HandlerTestSuite) TestUpdateDevice() {
	require := suite.Require()

	device := suite.createDevice(suite.testUserID, "boiler-7")

	newName := "boiler-8"
	reqBody, err := json.Marshal(models.UpdateDevice{Name: &newName})
	require.NoError(err)
	_, res, err := suite.ServeRequest(
		http.MethodPatch,
		"/:id/devices/:deviceid", fmt.Sprintf("/%s/devices/%s", suite.testUserID, device.ID),
		func(c *gin.Context) {
			suite.api.UpdateDevice(c)
		},
		bytes.NewBuffer(reqBody),
	)
	require.NoError(err)
	body, err := io.ReadAll(res.Body)
	require.NoError(err)
	require.Equal(http.StatusOK, res.Code, string(body))

	var updated models.Device
	require.NoError(json.Unmarshal(body, &updated))
	require.Equal(newName, updated.Name)
}

func (suite *HandlerTestSuite) TestDeleteDevice() {
	require := suite.Require()

	device := suite.createDevice(suite.testUserID, "boiler-7")

	_, res, err := suite.ServeRequest(
		http.MethodDelete,
		"/:id/devices/:deviceid", fmt.Sprintf("/%s/devices/%s", suite.testUserID, device.ID),
		func(c *gin.Context) {
			suite.api.DeleteDevice(c)
		},
		nil,
	)
	require.NoError(err)
	require.Equal(http.StatusOK, res.Code)

	_, res, err = suite.ServeRequest(
		http.MethodGet,
		"/:id/devices/:deviceid", fmt.Sprintf("/%s/devices/%s", suite.testUserID, device.ID),
		func(c *gin.Context) {
			suite.api.GetDevice(c)
		},
		nil,
	)
	require.NoError(err)
	require.Equal(http.StatusNotFound, res.Code)
}

// A non-member sees 404 rather than 403 so team ids do not leak.
func (suite *HandlerTestSuite) TestDeviceAccessOtherTeam() {
	require := suite.Require()

	device := suite.createDevice(suite.testUserID, "boiler-7")
	outsider := suite.createSecondUser("outsideruser")

	_, res, err := suite.ServeRequestAs(outsider,
		http.MethodGet,
		"/:id/devices/:deviceid", fmt.Sprintf("/%s/devices/%s", suite.testUserID, device.ID),
		func(c *gin.Context) {
			suite.api.GetDevice(c)
		},
		nil,
	)
	require.NoError(err)
	require.Equal(http.StatusNotFound, res.Code)
}

// A member whose role lacks the device scopes gets 403.
func (suite *HandlerTestSuite) TestDeviceAccessInsufficientRole() {
	require := suite.Require()

	device := suite.createDevice(suite.testUserID, "boiler-7")

	member := suite.createSecondUser("profileonly")
	roleID := suite.createTeamRole(suite.testUserID, "profile-only", "team:profile:read")
	suite.addMember(suite.testUserID, member, roleID)

	_, res, err := suite.ServeRequestAs(member,
		http.MethodGet,
		"/:id/devices/:deviceid", fmt.Sprintf("/%s/devices/%s", suite.testUserID, device.ID),
		func(c *gin.Context) {
			suite.api.GetDevice(c)
		},
		nil,
	)
	require.NoError(err)
	require.Equal(http.StatusForbidden, res.Code)

	// With the read scope granted the same request succeeds
	readerRole := suite.createTeamRole(suite.testUserID, "device-reader", "team:device:read")
	require.NoError(suite.api.db.Model(&models.UserTeamRole{}).
		Where("user_id = ? AND team_id = ?", member, suite.testUserID).
		Update("role_id", readerRole).Error)

	_, res, err = suite.ServeRequestAs(member,
		http.MethodGet,
		"/:id/devices/:deviceid", fmt.Sprintf("/%s/devices/%s", suite.testUserID, device.ID),
		func(c *gin.Context) {
			suite.api.GetDevice(c)
		},
		nil,
	)
	require.NoError(err)
	require.Equal(http.StatusOK, res.Code)
}
