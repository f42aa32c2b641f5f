package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/viot-io/viot/internal/models"
)

func (suite *HandlerTestSuite) putAttribute(teamID, deviceID uuid.UUID, scope, key, rawValue string) *int {
	require := suite.Require()
	reqBody := []byte(fmt.Sprintf(`{"value": %s}`, rawValue))
	_, res, err := suite.ServeRequest(
		http.MethodPut,
		"/:id/devices/:deviceid/attributes/:scope/:key",
		fmt.Sprintf("/%s/devices/%s/attributes/%s/%s", teamID, deviceID, scope, key),
		func(c *gin.Context) {
			suite.api.SetDeviceAttribute(c)
		},
		bytes.NewBuffer(reqBody),
	)
	require.NoError(err)
	return &res.Code
}

func (suite *HandlerTestSuite) TestAttributeRoundTrip() {
	require := suite.Require()
	device := suite.createDevice(suite.testUserID, "boiler-7")

	require.Equal(http.StatusNoContent, *suite.putAttribute(suite.testUserID, device.ID, "SERVER", "serial", `"A1"`))
	require.Equal(http.StatusNoContent, *suite.putAttribute(suite.testUserID, device.ID, "SHARED", "target_fw", `"2.0"`))
	require.Equal(http.StatusNoContent, *suite.putAttribute(suite.testUserID, device.ID, "SHARED", "reboot_count", `3`))

	// Keys grouped by scope
	_, res, err := suite.ServeRequest(
		http.MethodGet,
		"/:id/devices/:deviceid/attributes/keys",
		fmt.Sprintf("/%s/devices/%s/attributes/keys", suite.testUserID, device.ID),
		func(c *gin.Context) {
			suite.api.GetAttributeKeys(c)
		},
		nil,
	)
	require.NoError(err)
	body, err := io.ReadAll(res.Body)
	require.NoError(err)
	require.Equal(http.StatusOK, res.Code, string(body))

	var keys models.ScopeKeys
	require.NoError(json.Unmarshal(body, &keys))
	require.Equal([]string{"serial"}, keys.Server)
	require.Equal([]string{"reboot_count", "target_fw"}, keys.Shared)
	require.Empty(keys.Client)

	// Values by key
	_, res, err = suite.ServeRequest(
		http.MethodGet,
		"/:id/devices/:deviceid/attributes",
		fmt.Sprintf("/%s/devices/%s/attributes?scope=SHARED&keys=target_fw,reboot_count", suite.testUserID, device.ID),
		func(c *gin.Context) {
			suite.api.GetAttributes(c)
		},
		nil,
	)
	require.NoError(err)
	body, err = io.ReadAll(res.Body)
	require.NoError(err)
	require.Equal(http.StatusOK, res.Code, string(body))

	var attributes []models.Attribute
	require.NoError(json.Unmarshal(body, &attributes))
	require.Len(attributes, 2)
	require.Equal("reboot_count", attributes[0].Key)
	require.Equal("target_fw", attributes[1].Key)

	// Delete across scopes
	_, res, err = suite.ServeRequest(
		http.MethodDelete,
		"/:id/devices/:deviceid/attributes",
		fmt.Sprintf("/%s/devices/%s/attributes?keys=serial,target_fw", suite.testUserID, device.ID),
		func(c *gin.Context) {
			suite.api.DeleteDeviceAttributes(c)
		},
		nil,
	)
	require.NoError(err)
	require.Equal(http.StatusNoContent, res.Code)

	_, res, err = suite.ServeRequest(
		http.MethodGet,
		"/:id/devices/:deviceid/attributes/keys/:scope",
		fmt.Sprintf("/%s/devices/%s/attributes/keys/SHARED", suite.testUserID, device.ID),
		func(c *gin.Context) {
			suite.api.GetAttributeKeysByScope(c)
		},
		nil,
	)
	require.NoError(err)
	body, err = io.ReadAll(res.Body)
	require.NoError(err)
	require.Equal(http.StatusOK, res.Code, string(body))

	var sharedKeys []string
	require.NoError(json.Unmarshal(body, &sharedKeys))
	require.Equal([]string{"reboot_count"}, sharedKeys)
}

// CLIENT attributes are device-authored; the REST side cannot write them.
func (suite *HandlerTestSuite) TestSetAttributeClientScope() {
	require := suite.Require()
	device := suite.createDevice(suite.testUserID, "boiler-7")
	require.Equal(http.StatusBadRequest, *suite.putAttribute(suite.testUserID, device.ID, "CLIENT", "uptime", `12`))
}

func (suite *HandlerTestSuite) TestSetAttributeUnknownDevice() {
	require := suite.Require()
	require.Equal(http.StatusNotFound, *suite.putAttribute(suite.testUserID, uuid.New(), "SERVER", "serial", `"A1"`))
}

func (suite *HandlerTestSuite) TestSetAttributeNullValue() {
	require := suite.Require()
	device := suite.createDevice(suite.testUserID, "boiler-7")
	require.Equal(http.StatusBadRequest, *suite.putAttribute(suite.testUserID, device.ID, "SERVER", "serial", `null`))
}

// Device data requires its own scopes; a member with only device:read
// is denied.
func (suite *HandlerTestSuite) TestDeviceDataRequiresDataScope() {
	require := suite.Require()
	device := suite.createDevice(suite.testUserID, "boiler-7")

	member := suite.createSecondUser("devicereader")
	roleID := suite.createTeamRole(suite.testUserID, "device-reader", "team:device:read")
	suite.addMember(suite.testUserID, member, roleID)

	_, res, err := suite.ServeRequestAs(member,
		http.MethodGet,
		"/:id/devices/:deviceid/attributes/keys",
		fmt.Sprintf("/%s/devices/%s/attributes/keys", suite.testUserID, device.ID),
		func(c *gin.Context) {
			suite.api.GetAttributeKeys(c)
		},
		nil,
	)
	require.NoError(err)
	require.Equal(http.StatusForbidden, res.Code)

	// data read does not imply data write
	dataReader := suite.createTeamRole(suite.testUserID, "data-reader", "team:device_data:read")
	require.NoError(suite.api.db.Model(&models.UserTeamRole{}).
		Where("user_id = ? AND team_id = ?", member, suite.testUserID).
		Update("role_id", dataReader).Error)

	_, res, err = suite.ServeRequestAs(member,
		http.MethodGet,
		"/:id/devices/:deviceid/attributes/keys",
		fmt.Sprintf("/%s/devices/%s/attributes/keys", suite.testUserID, device.ID),
		func(c *gin.Context) {
			suite.api.GetAttributeKeys(c)
		},
		nil,
	)
	require.NoError(err)
	require.Equal(http.StatusOK, res.Code)

	reqBody := []byte(`{"value": "A1"}`)
	_, res, err = suite.ServeRequestAs(member,
		http.MethodPut,
		"/:id/devices/:deviceid/attributes/:scope/:key",
		fmt.Sprintf("/%s/devices/%s/attributes/SERVER/serial", suite.testUserID, device.ID),
		func(c *gin.Context) {
			suite.api.SetDeviceAttribute(c)
		},
		bytes.NewBuffer(reqBody),
	)
	require.NoError(err)
	require.Equal(http.StatusForbidden, res.Code)
}

func (suite *HandlerTestSuite) insertPoints(deviceID uuid.UUID, key string, base time.Time, values ...float64) {
	require := suite.Require()
	for i, v := range values {
		require.NoError(suite.api.timeseries.Insert(context.Background(), deviceID, key,
			models.DoubleValue(v), base.Add(time.Duration(i)*time.Minute)))
	}
}

func (suite *HandlerTestSuite) TestTimeseriesEndpoints() {
	require := suite.Require()
	device := suite.createDevice(suite.testUserID, "boiler-7")
	base := time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC)

	suite.insertPoints(device.ID, "temperature", base, 20, 21, 22)
	suite.insertPoints(device.ID, "humidity", base, 40)

	// Keys
	_, res, err := suite.ServeRequest(
		http.MethodGet,
		"/:id/devices/:deviceid/timeseries/keys",
		fmt.Sprintf("/%s/devices/%s/timeseries/keys", suite.testUserID, device.ID),
		func(c *gin.Context) {
			suite.api.GetTimeseriesKeys(c)
		},
		nil,
	)
	require.NoError(err)
	body, err := io.ReadAll(res.Body)
	require.NoError(err)
	require.Equal(http.StatusOK, res.Code, string(body))
	var keys []string
	require.NoError(json.Unmarshal(body, &keys))
	require.Equal([]string{"humidity", "temperature"}, keys)

	// Latest
	_, res, err = suite.ServeRequest(
		http.MethodGet,
		"/:id/devices/:deviceid/timeseries/latest",
		fmt.Sprintf("/%s/devices/%s/timeseries/latest?keys=temperature", suite.testUserID, device.ID),
		func(c *gin.Context) {
			suite.api.GetLatestTimeseries(c)
		},
		nil,
	)
	require.NoError(err)
	body, err = io.ReadAll(res.Body)
	require.NoError(err)
	require.Equal(http.StatusOK, res.Code, string(body))
	var latest []models.DataPoint
	require.NoError(json.Unmarshal(body, &latest))
	require.Len(latest, 1)

	// Raw range, inclusive bounds
	query := url.Values{}
	query.Set("keys", "temperature")
	query.Set("from", base.Format(time.RFC3339))
	query.Set("to", base.Add(time.Minute).Format(time.RFC3339))
	_, res, err = suite.ServeRequest(
		http.MethodGet,
		"/:id/devices/:deviceid/timeseries",
		fmt.Sprintf("/%s/devices/%s/timeseries?%s", suite.testUserID, device.ID, query.Encode()),
		func(c *gin.Context) {
			suite.api.GetTimeseriesRange(c)
		},
		nil,
	)
	require.NoError(err)
	body, err = io.ReadAll(res.Body)
	require.NoError(err)
	require.Equal(http.StatusOK, res.Code, string(body))
	var series map[string][]models.TimeValue
	require.NoError(json.Unmarshal(body, &series))
	require.Len(series["temperature"], 2)

	// Aggregated range
	query.Set("to", base.Add(time.Hour).Format(time.RFC3339))
	query.Set("agg", "avg")
	query.Set("interval_type", "hour")
	query.Set("interval", "1")
	_, res, err = suite.ServeRequest(
		http.MethodGet,
		"/:id/devices/:deviceid/timeseries",
		fmt.Sprintf("/%s/devices/%s/timeseries?%s", suite.testUserID, device.ID, query.Encode()),
		func(c *gin.Context) {
			suite.api.GetTimeseriesRange(c)
		},
		nil,
	)
	require.NoError(err)
	body, err = io.ReadAll(res.Body)
	require.NoError(err)
	require.Equal(http.StatusOK, res.Code, string(body))
	series = map[string][]models.TimeValue{}
	require.NoError(json.Unmarshal(body, &series))
	require.Len(series["temperature"], 1)
}

func (suite *HandlerTestSuite) TestTimeseriesRangeValidation() {
	require := suite.Require()
	device := suite.createDevice(suite.testUserID, "boiler-7")

	// from is required
	_, res, err := suite.ServeRequest(
		http.MethodGet,
		"/:id/devices/:deviceid/timeseries",
		fmt.Sprintf("/%s/devices/%s/timeseries?keys=temperature", suite.testUserID, device.ID),
		func(c *gin.Context) {
			suite.api.GetTimeseriesRange(c)
		},
		nil,
	)
	require.NoError(err)
	require.Equal(http.StatusBadRequest, res.Code)

	// unknown aggregate function
	query := url.Values{}
	query.Set("keys", "temperature")
	query.Set("from", time.Now().UTC().Add(-time.Hour).Format(time.RFC3339))
	query.Set("agg", "median")
	_, res, err = suite.ServeRequest(
		http.MethodGet,
		"/:id/devices/:deviceid/timeseries",
		fmt.Sprintf("/%s/devices/%s/timeseries?%s", suite.testUserID, device.ID, query.Encode()),
		func(c *gin.Context) {
			suite.api.GetTimeseriesRange(c)
		},
		nil,
	)
	require.NoError(err)
	require.Equal(http.StatusBadRequest, res.Code)
}
