package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/viot-io/viot/internal/models"
	"github.com/viot-io/viot/internal/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// deviceDataParams pulls the team and device ids out of the path.
func deviceDataParams(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	teamId, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewBadPathParameterError("id"))
		return uuid.Nil, uuid.Nil, false
	}
	deviceId, err := uuid.Parse(c.Param("deviceid"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewBadPathParameterError("deviceid"))
		return uuid.Nil, uuid.Nil, false
	}
	return teamId, deviceId, true
}

// keysParam splits the comma-separated keys query parameter. An absent
// parameter is an empty selection, not all keys.
func keysParam(c *gin.Context) []string {
	raw := c.Query("keys")
	if raw == "" {
		return []string{}
	}
	keys := []string{}
	for _, key := range strings.Split(raw, ",") {
		key = strings.TrimSpace(key)
		if key != "" {
			keys = append(keys, key)
		}
	}
	return keys
}

// GetAttributeKeys lists a device's attribute keys grouped by scope
// @Summary      Get Attribute Keys
// @Description  Lists the attribute keys of a device, grouped by scope
// @Id 			 GetAttributeKeys
// @Tags         DeviceData
// @Accept       json
// @Produce      json
// @Param		 id        path  string true "Team ID"
// @Param		 deviceid  path  string true "Device ID"
// @Success      200  {object}  models.ScopeKeys
// @Failure      400  {object}  models.BaseError
// @Failure		 401  {object}  models.BaseError
// @Failure		 403  {object}  models.NotAllowedError
// @Failure      404  {object}  models.BaseError
// @Failure      500  {object}  models.InternalServerError "Internal Server Error"
// @Router       /api/teams/{id}/devices/{deviceid}/attributes/keys [get]
func (api *API) GetAttributeKeys(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "GetAttributeKeys",
		trace.WithAttributes(
			attribute.String("deviceid", c.Param("deviceid")),
		))
	defer span.End()
	teamId, deviceId, ok := deviceDataParams(c)
	if !ok {
		return
	}

	keys, err := api.deviceData.AttributeKeys(ctx, api.GetCurrentUserID(c), teamId, deviceId)
	if err != nil {
		api.sendDeviceDataError(c, err)
		return
	}
	c.JSON(http.StatusOK, keys)
}

// GetAttributeKeysByScope lists a device's attribute keys for one scope
// @Summary      Get Attribute Keys By Scope
// @Description  Lists the attribute keys of a device for one scope
// @Id 			 GetAttributeKeysByScope
// @Tags         DeviceData
// @Accept       json
// @Produce      json
// @Param		 id        path  string true "Team ID"
// @Param		 deviceid  path  string true "Device ID"
// @Param		 scope     path  string true "Attribute Scope"
// @Success      200  {object}  []string
// @Failure      400  {object}  models.BaseError
// @Failure		 401  {object}  models.BaseError
// @Failure		 403  {object}  models.NotAllowedError
// @Failure      404  {object}  models.BaseError
// @Failure      500  {object}  models.InternalServerError "Internal Server Error"
// @Router       /api/teams/{id}/devices/{deviceid}/attributes/keys/{scope} [get]
func (api *API) GetAttributeKeysByScope(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "GetAttributeKeysByScope",
		trace.WithAttributes(
			attribute.String("deviceid", c.Param("deviceid")),
			attribute.String("scope", c.Param("scope")),
		))
	defer span.End()
	teamId, deviceId, ok := deviceDataParams(c)
	if !ok {
		return
	}
	scope, err := models.ParseAttributeScope(c.Param("scope"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewBadPathParameterError("scope"))
		return
	}

	keys, err := api.deviceData.AttributeKeysByScope(ctx, api.GetCurrentUserID(c), teamId, deviceId, scope)
	if err != nil {
		api.sendDeviceDataError(c, err)
		return
	}
	c.JSON(http.StatusOK, keys)
}

// GetAttributes reads a device's attributes by key
// @Summary      Get Attributes
// @Description  Reads device attributes for one scope and key set
// @Id 			 GetAttributes
// @Tags         DeviceData
// @Accept       json
// @Produce      json
// @Param		 id        path   string true "Team ID"
// @Param		 deviceid  path   string true "Device ID"
// @Param		 scope     query  string true "Attribute Scope"
// @Param		 keys      query  string true "Comma-separated keys"
// @Success      200  {object}  []models.Attribute
// @Failure      400  {object}  models.BaseError
// @Failure		 401  {object}  models.BaseError
// @Failure		 403  {object}  models.NotAllowedError
// @Failure      404  {object}  models.BaseError
// @Failure      500  {object}  models.InternalServerError "Internal Server Error"
// @Router       /api/teams/{id}/devices/{deviceid}/attributes [get]
func (api *API) GetAttributes(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "GetAttributes",
		trace.WithAttributes(
			attribute.String("deviceid", c.Param("deviceid")),
		))
	defer span.End()
	teamId, deviceId, ok := deviceDataParams(c)
	if !ok {
		return
	}
	scope, err := models.ParseAttributeScope(c.Query("scope"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewFieldValidationError("scope", "unknown attribute scope"))
		return
	}

	attributes, err := api.deviceData.AttributesByKeys(ctx, api.GetCurrentUserID(c), teamId, deviceId, scope, keysParam(c))
	if err != nil {
		api.sendDeviceDataError(c, err)
		return
	}
	c.JSON(http.StatusOK, attributes)
}

// SetDeviceAttribute writes one device attribute
// @Summary      Set Attribute
// @Description  Writes one attribute in the SERVER or SHARED scope
// @Id 			 SetDeviceAttribute
// @Tags         DeviceData
// @Accept       json
// @Produce      json
// @Param		 id         path  string true "Team ID"
// @Param		 deviceid   path  string true "Device ID"
// @Param		 scope      path  string true "Attribute Scope"
// @Param		 key        path  string true "Attribute Key"
// @Param        Attribute  body  models.SetAttribute true "Attribute value"
// @Success      204  "No Content"
// @Failure      400  {object}  models.BaseError
// @Failure		 401  {object}  models.BaseError
// @Failure		 403  {object}  models.NotAllowedError
// @Failure      404  {object}  models.BaseError
// @Failure      500  {object}  models.InternalServerError "Internal Server Error"
// @Router       /api/teams/{id}/devices/{deviceid}/attributes/{scope}/{key} [put]
func (api *API) SetDeviceAttribute(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "SetDeviceAttribute",
		trace.WithAttributes(
			attribute.String("deviceid", c.Param("deviceid")),
			attribute.String("scope", c.Param("scope")),
			attribute.String("key", c.Param("key")),
		))
	defer span.End()
	teamId, deviceId, ok := deviceDataParams(c)
	if !ok {
		return
	}
	scope, err := models.ParseAttributeScope(c.Param("scope"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewBadPathParameterError("scope"))
		return
	}
	key := c.Param("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, models.NewBadPathParameterError("key"))
		return
	}

	var request models.SetAttribute
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, models.NewBadPayloadError())
		return
	}
	value, err := models.DecodeValue(request.Value)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewFieldValidationError("value", "invalid value encoding"))
		return
	}

	err = api.deviceData.SetAttribute(ctx, api.GetCurrentUserID(c), teamId, deviceId, scope, key, value)
	if err != nil {
		api.sendDeviceDataError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteDeviceAttributes deletes device attributes by key
// @Summary      Delete Attributes
// @Description  Deletes the named attribute keys across all scopes.
// Missing keys are ignored.
// @Id 			 DeleteDeviceAttributes
// @Tags         DeviceData
// @Accept       json
// @Produce      json
// @Param		 id        path   string true "Team ID"
// @Param		 deviceid  path   string true "Device ID"
// @Param		 keys      query  string true "Comma-separated keys"
// @Success      204  "No Content"
// @Failure      400  {object}  models.BaseError
// @Failure		 401  {object}  models.BaseError
// @Failure		 403  {object}  models.NotAllowedError
// @Failure      404  {object}  models.BaseError
// @Failure      500  {object}  models.InternalServerError "Internal Server Error"
// @Router       /api/teams/{id}/devices/{deviceid}/attributes [delete]
func (api *API) DeleteDeviceAttributes(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "DeleteDeviceAttributes",
		trace.WithAttributes(
			attribute.String("deviceid", c.Param("deviceid")),
		))
	defer span.End()
	teamId, deviceId, ok := deviceDataParams(c)
	if !ok {
		return
	}

	err := api.deviceData.DeleteAttributes(ctx, api.GetCurrentUserID(c), teamId, deviceId, keysParam(c))
	if err != nil {
		api.sendDeviceDataError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetTimeseriesKeys lists a device's timeseries keys
// @Summary      Get Timeseries Keys
// @Description  Lists the timeseries keys a device has reported
// @Id 			 GetTimeseriesKeys
// @Tags         DeviceData
// @Accept       json
// @Produce      json
// @Param		 id        path  string true "Team ID"
// @Param		 deviceid  path  string true "Device ID"
// @Success      200  {object}  []string
// @Failure      400  {object}  models.BaseError
// @Failure		 401  {object}  models.BaseError
// @Failure		 403  {object}  models.NotAllowedError
// @Failure      404  {object}  models.BaseError
// @Failure      500  {object}  models.InternalServerError "Internal Server Error"
// @Router       /api/teams/{id}/devices/{deviceid}/timeseries/keys [get]
func (api *API) GetTimeseriesKeys(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "GetTimeseriesKeys",
		trace.WithAttributes(
			attribute.String("deviceid", c.Param("deviceid")),
		))
	defer span.End()
	teamId, deviceId, ok := deviceDataParams(c)
	if !ok {
		return
	}

	keys, err := api.deviceData.TimeseriesKeys(ctx, api.GetCurrentUserID(c), teamId, deviceId)
	if err != nil {
		api.sendDeviceDataError(c, err)
		return
	}
	c.JSON(http.StatusOK, keys)
}

// GetLatestTimeseries reads the latest point per key
// @Summary      Get Latest Timeseries
// @Description  Reads the most recent point per requested key. Keys
// with no points are omitted.
// @Id 			 GetLatestTimeseries
// @Tags         DeviceData
// @Accept       json
// @Produce      json
// @Param		 id        path   string true "Team ID"
// @Param		 deviceid  path   string true "Device ID"
// @Param		 keys      query  string true "Comma-separated keys"
// @Success      200  {object}  []models.DataPoint
// @Failure      400  {object}  models.BaseError
// @Failure		 401  {object}  models.BaseError
// @Failure		 403  {object}  models.NotAllowedError
// @Failure      404  {object}  models.BaseError
// @Failure      500  {object}  models.InternalServerError "Internal Server Error"
// @Router       /api/teams/{id}/devices/{deviceid}/timeseries/latest [get]
func (api *API) GetLatestTimeseries(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "GetLatestTimeseries",
		trace.WithAttributes(
			attribute.String("deviceid", c.Param("deviceid")),
		))
	defer span.End()
	teamId, deviceId, ok := deviceDataParams(c)
	if !ok {
		return
	}

	points, err := api.deviceData.LatestTimeseries(ctx, api.GetCurrentUserID(c), teamId, deviceId, keysParam(c))
	if err != nil {
		api.sendDeviceDataError(c, err)
		return
	}
	c.JSON(http.StatusOK, points)
}

// GetTimeseriesRange reads raw or aggregated points over a time range
// @Summary      Get Timeseries Range
// @Description  Reads points per key over [from, to], optionally
// bucketed server-side with avg/sum/min/max/count
// @Id 			 GetTimeseriesRange
// @Tags         DeviceData
// @Accept       json
// @Produce      json
// @Param		 id             path   string true  "Team ID"
// @Param		 deviceid       path   string true  "Device ID"
// @Param		 keys           query  string true  "Comma-separated keys"
// @Param		 from           query  string true  "RFC3339 range start"
// @Param		 to             query  string false "RFC3339 range end, defaults to now"
// @Param		 agg            query  string false "Aggregate function"
// @Param		 interval_type  query  string false "second|minute|hour|day"
// @Param		 interval       query  int    false "Bucket width in interval_type units"
// @Success      200  {object}  map[string][]models.TimeValue
// @Failure      400  {object}  models.BaseError
// @Failure		 401  {object}  models.BaseError
// @Failure		 403  {object}  models.NotAllowedError
// @Failure      404  {object}  models.BaseError
// @Failure      500  {object}  models.InternalServerError "Internal Server Error"
// @Router       /api/teams/{id}/devices/{deviceid}/timeseries [get]
func (api *API) GetTimeseriesRange(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "GetTimeseriesRange",
		trace.WithAttributes(
			attribute.String("deviceid", c.Param("deviceid")),
		))
	defer span.End()
	teamId, deviceId, ok := deviceDataParams(c)
	if !ok {
		return
	}

	from, err := time.Parse(time.RFC3339, c.Query("from"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewFieldValidationError("from", "must be an RFC3339 timestamp"))
		return
	}
	to := time.Now().UTC()
	if raw := c.Query("to"); raw != "" {
		to, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.NewFieldValidationError("to", "must be an RFC3339 timestamp"))
			return
		}
	}

	agg := store.RangeAggregation{}
	if fn := c.Query("agg"); fn != "" {
		interval := 1
		if raw := c.Query("interval"); raw != "" {
			interval, err = strconv.Atoi(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, models.NewFieldValidationError("interval", "must be an integer"))
				return
			}
		}
		agg = store.RangeAggregation{
			Fn:           store.AggregateFn(fn),
			IntervalType: store.IntervalType(c.DefaultQuery("interval_type", string(store.IntervalMinute))),
			Interval:     interval,
		}
		if _, err := agg.BucketSeconds(); err != nil {
			c.JSON(http.StatusBadRequest, models.NewFieldValidationError("agg", err.Error()))
			return
		}
	}

	series, err := api.deviceData.TimeseriesRange(ctx, api.GetCurrentUserID(c), teamId, deviceId, keysParam(c), from, to, agg)
	if err != nil {
		api.sendDeviceDataError(c, err)
		return
	}
	c.JSON(http.StatusOK, series)
}
