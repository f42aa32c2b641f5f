package models

import (
	"time"

	"github.com/google/uuid"
)

type DeviceStatus string

const (
	DeviceStatusOnline  DeviceStatus = "online"
	DeviceStatusOffline DeviceStatus = "offline"
)

// Device is a telemetry-producing endpoint. Devices belong to exactly
// one team; deleting a device cascades its attributes, data points and
// connect logs.
type Device struct {
	Base
	TeamID      uuid.UUID    `json:"team_id" gorm:"index"`
	Name        string       `json:"name" example:"boiler-7"`
	Description string       `json:"description"`
	Status      DeviceStatus `json:"status" example:"offline"`
	// AccessToken authenticates the device on the MQTT side. Not
	// returned on reads, only on create.
	AccessToken  string     `json:"access_token,omitempty"`
	LastOnlineAt *time.Time `json:"last_online_at"`
}

type AddDevice struct {
	Name        string `json:"name" example:"boiler-7"`
	Description string `json:"description"`
}

type UpdateDevice struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// ConnectLog is one connect or disconnect observation delivered by the
// broker bridge.
type ConnectLog struct {
	DeviceID uuid.UUID `json:"device_id" gorm:"type:uuid;primary_key"`
	Ts       time.Time `json:"ts" gorm:"primary_key"`
	Status   string    `json:"status" example:"disconnected"`
	IP       string    `json:"ip" example:"10.1.2.3"`
}
