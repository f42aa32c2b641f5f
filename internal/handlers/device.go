package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/viot-io/viot/internal/auth"
	"github.com/viot-io/viot/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

var errDeviceNotFound = errors.New("device not found")

func newDeviceAccessToken() (string, error) {
	var buf [24]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf[:]), nil
}

// ListDevices lists the devices of a Team
// @Summary      List Devices
// @Description  Lists the devices of a team
// @Id 			 ListDevices
// @Tags         Devices
// @Accept       json
// @Produce      json
// @Param		 id   path      string true "Team ID"
// @Success      200  {object}  []models.Device
// @Failure      400  {object}  models.BaseError
// @Failure		 401  {object}  models.BaseError
// @Failure		 403  {object}  models.NotAllowedError
// @Failure      404  {object}  models.BaseError
// @Failure      500  {object}  models.InternalServerError "Internal Server Error"
// @Router       /api/teams/{id}/devices [get]
func (api *API) ListDevices(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "ListDevices",
		trace.WithAttributes(
			attribute.String("id", c.Param("id")),
		))
	defer span.End()
	teamId, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewBadPathParameterError("id"))
		return
	}
	if !api.authorizeTeam(c, ctx, teamId, auth.TeamDeviceRead) {
		return
	}

	devices := []models.Device{}
	db := api.db.WithContext(ctx).
		Where("team_id = ?", teamId).
		Scopes(FilterAndPaginate(&models.Device{}, c, "name"))
	result := db.Find(&devices)
	if result.Error != nil {
		api.SendInternalServerError(c, result.Error)
		return
	}
	for i := range devices {
		devices[i].AccessToken = ""
	}

	c.JSON(http.StatusOK, devices)
}

// CreateDevice creates a Device in a Team
// @Summary      Create Device
// @Description  Registers a device and returns its broker access token
// @Id 			 CreateDevice
// @Tags         Devices
// @Accept       json
// @Produce      json
// @Param		 id      path   string true "Team ID"
// @Param        Device  body   models.AddDevice true "Add Device"
// @Success      201  {object}  models.Device
// @Failure      400  {object}  models.BaseError
// @Failure		 401  {object}  models.BaseError
// @Failure		 403  {object}  models.NotAllowedError
// @Failure      404  {object}  models.BaseError
// @Failure      500  {object}  models.InternalServerError "Internal Server Error"
// @Router       /api/teams/{id}/devices [post]
func (api *API) CreateDevice(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "CreateDevice",
		trace.WithAttributes(
			attribute.String("id", c.Param("id")),
		))
	defer span.End()
	teamId, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewBadPathParameterError("id"))
		return
	}

	var request models.AddDevice
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, models.NewBadPayloadError())
		return
	}
	if request.Name == "" {
		c.JSON(http.StatusBadRequest, models.NewFieldNotPresentError("name"))
		return
	}

	if !api.authorizeTeam(c, ctx, teamId, auth.TeamDeviceManage) {
		return
	}

	accessToken, err := newDeviceAccessToken()
	if err != nil {
		api.SendInternalServerError(c, err)
		return
	}

	device := models.Device{
		TeamID:      teamId,
		Name:        request.Name,
		Description: request.Description,
		Status:      models.DeviceStatusOffline,
		AccessToken: accessToken,
	}
	if res := api.db.WithContext(ctx).Create(&device); res.Error != nil {
		api.SendInternalServerError(c, res.Error)
		return
	}
	span.SetAttributes(attribute.String("device_id", device.ID.String()))

	c.JSON(http.StatusCreated, device)
}

// GetDevice gets a Device
// @Summary      Get Device
// @Description  Gets a device by id
// @Id 			 GetDevice
// @Tags         Devices
// @Accept       json
// @Produce      json
// @Param		 id        path  string true "Team ID"
// @Param		 deviceid  path  string true "Device ID"
// @Success      200  {object}  models.Device
// @Failure      400  {object}  models.BaseError
// @Failure		 401  {object}  models.BaseError
// @Failure		 403  {object}  models.NotAllowedError
// @Failure      404  {object}  models.BaseError
// @Failure      500  {object}  models.InternalServerError "Internal Server Error"
// @Router       /api/teams/{id}/devices/{deviceid} [get]
func (api *API) GetDevice(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "GetDevice",
		trace.WithAttributes(
			attribute.String("id", c.Param("id")),
			attribute.String("deviceid", c.Param("deviceid")),
		))
	defer span.End()
	teamId, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewBadPathParameterError("id"))
		return
	}
	deviceId, err := uuid.Parse(c.Param("deviceid"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewBadPathParameterError("deviceid"))
		return
	}
	if !api.authorizeTeam(c, ctx, teamId, auth.TeamDeviceRead) {
		return
	}

	var device models.Device
	res := api.db.WithContext(ctx).
		Where("id = ? AND team_id = ?", deviceId, teamId).
		First(&device)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, models.NewNotFoundError("device"))
		} else {
			api.SendInternalServerError(c, res.Error)
		}
		return
	}
	device.AccessToken = ""

	c.JSON(http.StatusOK, device)
}

// UpdateDevice updates a Device
// @Summary      Update Device
// @Description  Updates a device's name or description
// @Id 			 UpdateDevice
// @Tags         Devices
// @Accept       json
// @Produce      json
// @Param		 id        path  string true "Team ID"
// @Param		 deviceid  path  string true "Device ID"
// @Param        Device    body  models.UpdateDevice true "Update Device"
// @Success      200  {object}  models.Device
// @Failure      400  {object}  models.BaseError
// @Failure		 401  {object}  models.BaseError
// @Failure		 403  {object}  models.NotAllowedError
// @Failure      404  {object}  models.BaseError
// @Failure      500  {object}  models.InternalServerError "Internal Server Error"
// @Router       /api/teams/{id}/devices/{deviceid} [patch]
func (api *API) UpdateDevice(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "UpdateDevice",
		trace.WithAttributes(
			attribute.String("id", c.Param("id")),
			attribute.String("deviceid", c.Param("deviceid")),
		))
	defer span.End()
	teamId, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewBadPathParameterError("id"))
		return
	}
	deviceId, err := uuid.Parse(c.Param("deviceid"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewBadPathParameterError("deviceid"))
		return
	}

	var request models.UpdateDevice
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, models.NewBadPayloadError())
		return
	}

	if !api.authorizeTeam(c, ctx, teamId, auth.TeamDeviceManage) {
		return
	}

	var device models.Device
	err = api.transaction(ctx, func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND team_id = ?", deviceId, teamId).First(&device)
		if res.Error != nil {
			if errors.Is(res.Error, gorm.ErrRecordNotFound) {
				return errDeviceNotFound
			}
			return res.Error
		}
		if request.Name != nil {
			device.Name = *request.Name
		}
		if request.Description != nil {
			device.Description = *request.Description
		}
		return tx.Save(&device).Error
	})
	if err != nil {
		if errors.Is(err, errDeviceNotFound) {
			c.JSON(http.StatusNotFound, models.NewNotFoundError("device"))
		} else {
			api.SendInternalServerError(c, err)
		}
		return
	}
	device.AccessToken = ""

	c.JSON(http.StatusOK, device)
}

// DeleteDevice deletes a Device
// @Summary      Delete Device
// @Description  Deletes a device together with its attributes, data
// points and connect logs
// @Id 			 DeleteDevice
// @Tags         Devices
// @Accept       json
// @Produce      json
// @Param		 id        path  string true "Team ID"
// @Param		 deviceid  path  string true "Device ID"
// @Success      200  {object}  models.Device
// @Failure      400  {object}  models.BaseError
// @Failure		 401  {object}  models.BaseError
// @Failure		 403  {object}  models.NotAllowedError
// @Failure      404  {object}  models.BaseError
// @Failure      500  {object}  models.InternalServerError "Internal Server Error"
// @Router       /api/teams/{id}/devices/{deviceid} [delete]
func (api *API) DeleteDevice(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "DeleteDevice",
		trace.WithAttributes(
			attribute.String("id", c.Param("id")),
			attribute.String("deviceid", c.Param("deviceid")),
		))
	defer span.End()
	teamId, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewBadPathParameterError("id"))
		return
	}
	deviceId, err := uuid.Parse(c.Param("deviceid"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewBadPathParameterError("deviceid"))
		return
	}

	if !api.authorizeTeam(c, ctx, teamId, auth.TeamDeviceDelete) {
		return
	}

	var device models.Device
	err = api.transaction(ctx, func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND team_id = ?", deviceId, teamId).First(&device)
		if res.Error != nil {
			if errors.Is(res.Error, gorm.ErrRecordNotFound) {
				return errDeviceNotFound
			}
			return res.Error
		}
		if res := tx.Where("device_id = ?", device.ID).Delete(&models.DeviceAttribute{}); res.Error != nil {
			return res.Error
		}
		if res := tx.Where("device_id = ?", device.ID).Delete(&models.DeviceData{}); res.Error != nil {
			return res.Error
		}
		if res := tx.Where("device_id = ?", device.ID).Delete(&models.ConnectLog{}); res.Error != nil {
			return res.Error
		}
		return tx.Delete(&device).Error
	})
	if err != nil {
		if errors.Is(err, errDeviceNotFound) {
			c.JSON(http.StatusNotFound, models.NewNotFoundError("device"))
		} else {
			api.SendInternalServerError(c, err)
		}
		return
	}
	device.AccessToken = ""

	c.JSON(http.StatusOK, device)
}
