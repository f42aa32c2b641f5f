package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/viot-io/viot/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	emqxClientConnected    = "client.connected"
	emqxClientDisconnected = "client.disconnected"
)

// EmqxEvent is the broker webhook payload. The broker client id is the
// device id; events for unknown clients are acknowledged and dropped so
// the broker does not retry them forever.
type EmqxEvent struct {
	Event     string `json:"event"`
	ClientID  string `json:"clientid"`
	Username  string `json:"username"`
	IPAddress string `json:"ipaddress"`
	// Timestamp is the broker event time in milliseconds.
	Timestamp int64 `json:"timestamp"`
}

func (e EmqxEvent) eventTime() time.Time {
	if e.Timestamp == 0 {
		return time.Now().UTC()
	}
	return time.UnixMilli(e.Timestamp).UTC()
}

// HandleEmqxEvent ingests a broker connect/disconnect event
// @Summary      EMQX Webhook
// @Description  Ingests client.connected and client.disconnected
// events from the broker: device status, connect log and online
// tracker are updated
// @Id 			 HandleEmqxEvent
// @Tags         Webhooks
// @Accept       json
// @Produce      json
// @Param        Event  body   EmqxEvent true "Broker event"
// @Success      204  "No Content"
// @Failure      400  {object}  models.BaseError
// @Failure		 401  {object}  models.BaseError
// @Failure      500  {object}  models.InternalServerError "Internal Server Error"
// @Router       /webhook/emqx [post]
func (api *API) HandleEmqxEvent(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "HandleEmqxEvent")
	defer span.End()

	var event EmqxEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, models.NewBadPayloadError())
		return
	}
	span.SetAttributes(
		attribute.String("event", event.Event),
		attribute.String("clientid", event.ClientID),
	)

	deviceId, err := uuid.Parse(event.ClientID)
	if err != nil {
		// Not a device session, e.g. a dashboard subscriber.
		c.Status(http.StatusNoContent)
		return
	}

	var device models.Device
	res := api.db.WithContext(ctx).First(&device, "id = ?", deviceId)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			c.Status(http.StatusNoContent)
			return
		}
		api.SendInternalServerError(c, res.Error)
		return
	}

	switch event.Event {
	case emqxClientConnected:
		err = api.deviceConnected(ctx, device, event)
	case emqxClientDisconnected:
		err = api.deviceDisconnected(ctx, device, event)
	default:
		c.Status(http.StatusNoContent)
		return
	}
	if err != nil {
		api.SendInternalServerError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (api *API) deviceConnected(ctx context.Context, device models.Device, event EmqxEvent) error {
	if err := api.onlineTracker.Connected(ctx, device.ID); err != nil {
		return err
	}
	if err := api.appendConnectLog(ctx, device.ID, "connected", event); err != nil {
		return err
	}

	now := event.eventTime()
	device.Status = models.DeviceStatusOnline
	device.LastOnlineAt = &now
	return api.db.WithContext(ctx).
		Select("status", "last_online_at").
		Updates(&device).Error
}

func (api *API) deviceDisconnected(ctx context.Context, device models.Device, event EmqxEvent) error {
	if err := api.appendConnectLog(ctx, device.ID, "disconnected", event); err != nil {
		return err
	}

	deviceId := device.ID
	return api.onlineTracker.Disconnected(ctx, deviceId, func() {
		// Runs after the grace period, outside the request.
		err := api.db.Model(&models.Device{}).
			Where("id = ? AND status = ?", deviceId, models.DeviceStatusOnline).
			Update("status", models.DeviceStatusOffline).Error
		if err != nil {
			api.logger.Warnw("failed to mark device offline", "device-id", deviceId, "error", err)
		}
	})
}

// appendConnectLog records the event for the audit trail. The broker
// re-delivers webhooks, duplicates at the same timestamp are dropped.
func (api *API) appendConnectLog(ctx context.Context, deviceID uuid.UUID, status string, event EmqxEvent) error {
	log := models.ConnectLog{
		DeviceID: deviceID,
		Ts:       event.eventTime(),
		Status:   status,
		IP:       event.IPAddress,
	}
	return api.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&log).Error
}
