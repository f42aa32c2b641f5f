package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/viot-io/viot/internal/auth"
	"github.com/viot-io/viot/internal/database"
	"github.com/viot-io/viot/internal/devicedata"
	"github.com/viot-io/viot/internal/email"
	"github.com/viot-io/viot/internal/fflags"
	"github.com/viot-io/viot/internal/models"
	"github.com/viot-io/viot/internal/store"
	"github.com/viot-io/viot/internal/util"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var tracer trace.Tracer

func init() {
	tracer = otel.Tracer("github.com/viot-io/viot/internal/handlers")
}

type API struct {
	logger        *zap.SugaredLogger
	db            *gorm.DB
	fflags        *fflags.FFlags
	transaction   database.TransactionFunc
	dialect       database.Dialect
	resolver      *auth.Resolver
	attributes    *store.AttributeStore
	timeseries    *store.TimeseriesStore
	deviceData    *devicedata.Service
	onlineTracker *DeviceTracker
	SmtpServer    email.SmtpServer
	SmtpFrom      string
	FrontendURL   string
	WebhookSecret string
}

func NewAPI(
	parent context.Context,
	logger *zap.SugaredLogger,
	db *gorm.DB,
	fflags *fflags.FFlags,
) (*API, error) {

	fflags.RegisterEnvFlag("multi-team", "VIOT_FFLAG_MULTI_TEAM", true)
	fflags.RegisterEnvFlag("invitations", "VIOT_FFLAG_INVITATIONS", true)

	_, span := tracer.Start(parent, "NewAPI")
	defer span.End()

	transactionFunc, dialect, err := database.GetTransactionFunc(db)
	if err != nil {
		return nil, err
	}

	onlineTracker, err := NewDeviceTracker(logger.Desugar())
	if err != nil {
		return nil, err
	}

	resolver := auth.NewResolver(db)
	attributes := store.NewAttributeStore(db)
	timeseries := store.NewTimeseriesStore(db, dialect)

	api := &API{
		logger:        logger,
		db:            db,
		fflags:        fflags,
		transaction:   transactionFunc,
		dialect:       dialect,
		resolver:      resolver,
		attributes:    attributes,
		timeseries:    timeseries,
		deviceData:    devicedata.New(db, resolver, attributes, timeseries),
		onlineTracker: onlineTracker,
	}

	return api, nil
}

func (api *API) Logger(ctx context.Context) *zap.SugaredLogger {
	return util.WithTrace(ctx, api.logger)
}

func (api *API) SendInternalServerError(c *gin.Context, err error) {
	SendInternalServerError(c, api.logger, err)
}

func SendInternalServerError(c *gin.Context, logger *zap.SugaredLogger, err error) {
	ctx := c.Request.Context()
	util.WithTrace(ctx, logger).Errorw("internal server error", "error", err)

	result := models.InternalServerError{
		BaseError: models.BaseError{
			Error: "internal server error",
		},
	}
	sc := trace.SpanFromContext(ctx).SpanContext()
	if sc.HasTraceID() {
		result.TraceId = sc.TraceID().String()
	}
	c.JSON(http.StatusInternalServerError, result)
}

func (api *API) GetCurrentUserID(c *gin.Context) uuid.UUID {
	userId, found := c.Get(gin.AuthUserKey)
	if !found {
		api.SendInternalServerError(c, fmt.Errorf("no current user found"))
		panic("no current user found")
	}
	return userId.(uuid.UUID)
}

func (api *API) FlagCheck(c *gin.Context, name string) bool {
	enabled, err := api.fflags.GetFlag(name)
	if err != nil {
		api.SendInternalServerError(c, err)
		return false
	}
	if !enabled {
		c.JSON(http.StatusMethodNotAllowed, models.NewNotAllowedError(fmt.Sprintf("%s support is disabled", name)))
		return false
	}
	return true
}

// SendEmail delivers a message through the configured smtp relay. With
// no relay configured mail is silently dropped, which is what dev
// environments want.
func (api *API) SendEmail(message email.Message) error {
	if api.SmtpServer.HostPort == "" {
		return nil
	}
	message.From = api.SmtpFrom
	return email.Send(api.SmtpServer, message)
}
