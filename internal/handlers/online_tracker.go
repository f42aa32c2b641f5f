package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/viot-io/viot/internal/util"
	"go.uber.org/zap"
)

// DeviceTracker keeps the authoritative online state of devices in
// redis, shared across apiserver replicas. Broker sessions flap on
// reconnect, so a disconnect only becomes an offline transition after
// a grace period with no reconnect.
type DeviceTracker struct {
	logger               *zap.Logger
	redis                *redis.Client
	keyPrefix            string
	reconnectGracePeriod time.Duration
}

func NewDeviceTracker(logger *zap.Logger) (*DeviceTracker, error) {
	redisAddr := util.Getenv("VIOT_REDIS_SERVER", "redis:6379")
	redisDB, err := util.GetenvInt("VIOT_REDIS_DB", "1")
	if err != nil {
		return nil, err
	}

	return &DeviceTracker{
		logger: logger,
		redis: redis.NewClient(&redis.Options{
			Addr:             redisAddr,
			DB:               redisDB,
			DisableIndentity: true,
		}),
		keyPrefix:            "device-online:",
		reconnectGracePeriod: time.Second * 5,
	}, nil
}

func (dt *DeviceTracker) Connected(ctx context.Context, deviceID uuid.UUID) error {
	return dt.redis.Set(ctx, dt.keyPrefix+deviceID.String(), "online", 0).Err()
}

// Disconnected records the disconnect and schedules stillOffline to run
// after the grace period unless the device reconnected in the meantime.
func (dt *DeviceTracker) Disconnected(ctx context.Context, deviceID uuid.UUID, stillOffline func()) error {
	if err := dt.redis.Set(ctx, dt.keyPrefix+deviceID.String(), "offline", 0).Err(); err != nil {
		return err
	}

	logger := dt.logger.With(zap.String("device-id", deviceID.String()))
	time.AfterFunc(dt.reconnectGracePeriod, func() {
		connected, err := dt.IsConnected(context.Background(), deviceID)
		if err != nil {
			logger.Warn("failed to get online state for device", zap.Error(err))
			return
		}
		if connected {
			return
		}
		stillOffline()
	})
	return nil
}

func (dt *DeviceTracker) IsConnected(ctx context.Context, deviceID uuid.UUID) (bool, error) {
	state, err := dt.redis.Get(ctx, dt.keyPrefix+deviceID.String()).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return state == "online", nil
}
