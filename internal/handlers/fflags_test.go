package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

func (suite *HandlerTestSuite) TestListFeatureFlags() {
	require := suite.Require()

	_, res, err := suite.ServeRequest(
		http.MethodGet,
		"/fflags", "/fflags",
		func(c *gin.Context) {
			suite.api.ListFeatureFlags(c)
		},
		nil,
	)
	require.NoError(err)
	body, err := io.ReadAll(res.Body)
	require.NoError(err)
	require.Equal(http.StatusOK, res.Code, string(body))

	var flags map[string]bool
	require.NoError(json.Unmarshal(body, &flags))
	require.True(flags["multi-team"])
	require.True(flags["invitations"])
}

func (suite *HandlerTestSuite) TestGetFeatureFlag() {
	require := suite.Require()

	_, res, err := suite.ServeRequest(
		http.MethodGet,
		"/fflags/:name", "/fflags/multi-team",
		func(c *gin.Context) {
			suite.api.GetFeatureFlag(c)
		},
		nil,
	)
	require.NoError(err)
	body, err := io.ReadAll(res.Body)
	require.NoError(err)
	require.Equal(http.StatusOK, res.Code, string(body))

	var flag map[string]bool
	require.NoError(json.Unmarshal(body, &flag))
	require.True(flag["multi-team"])

	_, res, err = suite.ServeRequest(
		http.MethodGet,
		"/fflags/:name", "/fflags/no-such-flag",
		func(c *gin.Context) {
			suite.api.GetFeatureFlag(c)
		},
		nil,
	)
	require.NoError(err)
	require.Equal(http.StatusNotFound, res.Code)
}
