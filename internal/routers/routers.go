package routers

import (
	"context"
	"net/http"
	"strings"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/viot-io/viot/internal/handlers"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const name = "github.com/viot-io/viot/internal/routers"

type APIRouterOptions struct {
	Logger          *zap.SugaredLogger
	Api             *handlers.API
	ClientID        string
	OidcURL         string
	OidcBackchannel string
	InsecureTLS     bool
}

func NewAPIRouter(ctx context.Context, o APIRouterOptions) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	loggerMiddleware := ginzap.GinzapWithConfig(o.Logger.Desugar(), &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		Context: func(c *gin.Context) []zapcore.Field {
			return []zapcore.Field{
				zap.String("traceID", trace.SpanFromContext(c.Request.Context()).SpanContext().TraceID().String()),
			}
		},
	})

	r.Use(otelgin.Middleware(name, otelgin.WithPropagators(
		propagation.TraceContext{},
	)))
	r.Use(ginzap.RecoveryWithZap(o.Logger.Desugar(), true))

	newPrometheus().Use(r)

	private := r.Group("/api", loggerMiddleware)
	{
		api := o.Api

		validateJWT, err := newValidateJWT(ctx, o)
		if err != nil {
			return nil, err
		}
		private.Use(validateJWT)

		// Feature Flags
		private.GET("/fflags", api.ListFeatureFlags)
		private.GET("/fflags/:name", api.GetFeatureFlag)

		// Users
		private.GET("/users/:id", api.GetUser)
		private.DELETE("/users/:id", api.DeleteUser)

		// Teams
		private.GET("/teams", api.ListTeams)
		private.POST("/teams", api.CreateTeam)
		private.GET("/teams/:id", api.GetTeam)
		private.PATCH("/teams/:id", api.UpdateTeam)
		private.DELETE("/teams/:id", api.DeleteTeam)

		// Members
		private.GET("/teams/:id/members", api.ListMembers)
		private.PUT("/teams/:id/members/:userid", api.UpdateMember)
		private.DELETE("/teams/:id/members/:userid", api.DeleteMember)

		// Roles
		private.GET("/permissions", api.ListPermissions)
		private.GET("/teams/:id/roles", api.ListRoles)
		private.POST("/teams/:id/roles", api.CreateRole)
		private.PATCH("/teams/:id/roles/:roleid", api.UpdateRole)
		private.DELETE("/teams/:id/roles/:roleid", api.DeleteRole)

		// Invitations
		private.GET("/teams/:id/invitations", api.ListInvitations)
		private.POST("/teams/:id/invitations", api.CreateInvitation)
		private.DELETE("/teams/:id/invitations/:invid", api.DeleteInvitation)
		private.POST("/invitations/accept", api.AcceptInvitation)

		// Devices
		private.GET("/teams/:id/devices", api.ListDevices)
		private.POST("/teams/:id/devices", api.CreateDevice)
		private.GET("/teams/:id/devices/:deviceid", api.GetDevice)
		private.PATCH("/teams/:id/devices/:deviceid", api.UpdateDevice)
		private.DELETE("/teams/:id/devices/:deviceid", api.DeleteDevice)

		// Device attributes
		private.GET("/teams/:id/devices/:deviceid/attributes/keys", api.GetAttributeKeys)
		private.GET("/teams/:id/devices/:deviceid/attributes/keys/:scope", api.GetAttributeKeysByScope)
		private.GET("/teams/:id/devices/:deviceid/attributes", api.GetAttributes)
		private.PUT("/teams/:id/devices/:deviceid/attributes/:scope/:key", api.SetDeviceAttribute)
		private.DELETE("/teams/:id/devices/:deviceid/attributes", api.DeleteDeviceAttributes)

		// Device timeseries
		private.GET("/teams/:id/devices/:deviceid/timeseries/keys", api.GetTimeseriesKeys)
		private.GET("/teams/:id/devices/:deviceid/timeseries/latest", api.GetLatestTimeseries)
		private.GET("/teams/:id/devices/:deviceid/timeseries", api.GetTimeseriesRange)
	}

	// The broker authenticates with a shared-secret token, not OIDC.
	webhook := r.Group("/webhook", loggerMiddleware)
	{
		webhook.Use(ValidateWebhookToken(o.Api.WebhookSecret))
		webhook.POST("/emqx", o.Api.HandleEmqxEvent)
	}

	// Don't log the health/readiness checks.
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "UP",
		})
	})
	r.GET("/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "UP",
		})
	})

	return r, nil
}

func newPrometheus() *ginprometheus.Prometheus {
	p := ginprometheus.NewPrometheus("apiserver")
	p.ReqCntURLLabelMappingFn = func(c *gin.Context) string {
		url := c.Request.URL.Path
		for _, p := range c.Params {
			if p.Key == "id" {
				url = strings.Replace(url, p.Value, ":id", 1)
				break
			}
		}
		return url
	}
	return p
}
