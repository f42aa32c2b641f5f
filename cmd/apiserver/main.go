package main

import (
	"context"
	"crypto/tls"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"github.com/viot-io/viot/internal/database"
	"github.com/viot-io/viot/internal/email"
	"github.com/viot-io/viot/internal/fflags"
	"github.com/viot-io/viot/internal/handlers"
	"github.com/viot-io/viot/internal/routers"
	"github.com/viot-io/viot/internal/util"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc/credentials"
	"gorm.io/gorm"
)

var tracer trace.Tracer

func init() {
	tracer = otel.Tracer("apiserver")
}

// @title               Viot API
// @description         This is the Viot API Server.
// @version             1.0
// @BasePath            /
func main() {
	// Override to capitalize "Show"
	cli.HelpFlag.(*cli.BoolFlag).Usage = "Show help"
	app := &cli.Command{
		Name: "apiserver",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "debug",
				Value:   false,
				Usage:   "Enable debug logging",
				Sources: cli.EnvVars("VIOT_DEBUG"),
			},
			&cli.StringFlag{
				Name:    "listen",
				Value:   "0.0.0.0:8080",
				Usage:   "The address and port to listen for HTTP requests on",
				Sources: cli.EnvVars("VIOT_LISTEN"),
			},
			&cli.StringFlag{
				Name:    "oidc-url",
				Value:   "https://auth.viot.127.0.0.1.nip.io",
				Usage:   "Address of oidc provider",
				Sources: cli.EnvVars("VIOT_OIDC_URL"),
			},
			&cli.StringFlag{
				Name:    "oidc-backchannel-url",
				Value:   "",
				Usage:   "Backend address of oidc provider",
				Sources: cli.EnvVars("VIOT_OIDC_BACKCHANNEL"),
			},
			&cli.StringFlag{
				Name:    "oidc-client-id",
				Value:   "viot-web",
				Usage:   "OIDC client id expected in the token audience",
				Sources: cli.EnvVars("VIOT_OIDC_CLIENT_ID"),
			},
			&cli.BoolFlag{
				Name:    "insecure-tls",
				Value:   false,
				Usage:   "Trust any TLS certificate",
				Sources: cli.EnvVars("VIOT_INSECURE_TLS"),
			},
			&cli.StringFlag{
				Name:    "db-host",
				Value:   "apiserver-db",
				Usage:   "Database host name",
				Sources: cli.EnvVars("VIOT_DB_HOST"),
			},
			&cli.StringFlag{
				Name:    "db-port",
				Value:   "5432",
				Usage:   "Database port",
				Sources: cli.EnvVars("VIOT_DB_PORT"),
			},
			&cli.StringFlag{
				Name:    "db-user",
				Value:   "apiserver",
				Usage:   "Database user",
				Sources: cli.EnvVars("VIOT_DB_USER"),
			},
			&cli.StringFlag{
				Name:    "db-password",
				Value:   "secret",
				Usage:   "Database password",
				Sources: cli.EnvVars("VIOT_DB_PASSWORD"),
			},
			&cli.StringFlag{
				Name:    "db-name",
				Value:   "apiserver",
				Usage:   "Database name",
				Sources: cli.EnvVars("VIOT_DB_NAME"),
			},
			&cli.StringFlag{
				Name:    "db-sslmode",
				Value:   "disable",
				Usage:   "Database ssl mode",
				Sources: cli.EnvVars("VIOT_DB_SSLMODE"),
			},
			&cli.StringFlag{
				Name:    "redis-server",
				Usage:   "Redis host:port address",
				Value:   "redis:6379",
				Sources: cli.EnvVars("VIOT_REDIS_SERVER"),
			},
			&cli.IntFlag{
				Name:    "redis-db",
				Usage:   "Redis database to be selected after connecting to the server.",
				Value:   1,
				Sources: cli.EnvVars("VIOT_REDIS_DB"),
			},
			&cli.BoolFlag{
				Name:    "trace-insecure",
				Value:   false,
				Usage:   "Set OTLP endpoint to insecure mode",
				Sources: cli.EnvVars("VIOT_TRACE_INSECURE"),
			},
			&cli.StringFlag{
				Name:    "trace-endpoint",
				Value:   "",
				Usage:   "OTLP endpoint for trace data",
				Sources: cli.EnvVars("VIOT_TRACE_ENDPOINT_OTLP"),
			},
			&cli.StringFlag{
				Name:    "frontend-url",
				Value:   "https://viot.127.0.0.1.nip.io",
				Usage:   "Base url of the frontend, used in invitation links",
				Sources: cli.EnvVars("VIOT_FRONTEND_URL"),
			},
			&cli.StringFlag{
				Name:    "webhook-secret",
				Usage:   "Shared secret for the broker webhook tokens",
				Sources: cli.EnvVars("VIOT_WEBHOOK_SECRET"),
			},
			&cli.StringFlag{
				Name:    "smtp-host-port",
				Usage:   "SMTP server host:port address",
				Sources: cli.EnvVars("VIOT_SMTP_HOST_PORT"),
			},
			&cli.StringFlag{
				Name:    "smtp-user",
				Usage:   "SMTP server user name",
				Sources: cli.EnvVars("VIOT_SMTP_USER"),
			},
			&cli.StringFlag{
				Name:    "smtp-password",
				Usage:   "SMTP server password",
				Sources: cli.EnvVars("VIOT_SMTP_PASSWORD"),
			},
			&cli.BoolFlag{
				Name:    "smtp-tls",
				Usage:   "Use TLS to connect to the SMTP server",
				Sources: cli.EnvVars("VIOT_SMTP_TLS"),
			},
			&cli.StringFlag{
				Name:    "smtp-from",
				Usage:   "The from address to use for emails",
				Sources: cli.EnvVars("VIOT_SMTP_FROM"),
			},
		},

		Action: func(ctx context.Context, command *cli.Command) error {
			ctx, _ = signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGINT)
			ctx, span := tracer.Start(ctx, "Run")
			defer span.End()
			withLoggerAndDB(ctx, command, func(logger *zap.Logger, db *gorm.DB) {

				fflags := fflags.NewFFlags(logger.Sugar())

				api, err := handlers.NewAPI(ctx, logger.Sugar(), db, fflags)
				if err != nil {
					log.Fatal(err)
				}

				smtpServer := email.SmtpServer{
					HostPort: command.String("smtp-host-port"),
					User:     command.String("smtp-user"),
					Password: command.String("smtp-password"),
				}
				if command.Bool("smtp-tls") { // #nosec G402
					smtpServer.Tls = &tls.Config{
						InsecureSkipVerify: command.Bool("insecure-tls"),
					}
				}
				api.SmtpServer = smtpServer
				api.SmtpFrom = command.String("smtp-from")
				api.FrontendURL = command.String("frontend-url")
				api.WebhookSecret = command.String("webhook-secret")

				router, err := routers.NewAPIRouter(ctx, routers.APIRouterOptions{
					Logger:          logger.Sugar(),
					Api:             api,
					ClientID:        command.String("oidc-client-id"),
					OidcURL:         command.String("oidc-url"),
					OidcBackchannel: command.String("oidc-backchannel-url"),
					InsecureTLS:     command.Bool("insecure-tls"),
				})
				if err != nil {
					log.Fatal(err)
				}

				httpServer := &http.Server{
					Addr:              command.String("listen"),
					Handler:           router,
					ReadTimeout:       5 * time.Second,
					ReadHeaderTimeout: 5 * time.Second,
					WriteTimeout:      10 * time.Second,
				}
				defer util.IgnoreError(httpServer.Close)

				wg := &sync.WaitGroup{}
				serveErrors := make(chan error, 1)
				util.GoWithWaitGroup(wg, func() {
					if err := httpServer.ListenAndServe(); err != nil {
						serveErrors <- err
					}
				})

				// Wait for a shutdown signal or a server error
				var serveErr error
				select {
				case serveErr = <-serveErrors:
				case <-ctx.Done():
				}

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = httpServer.Shutdown(shutdownCtx)
				wg.Wait()

				if serveErr != nil && serveErr != http.ErrServerClosed {
					log.Fatal(serveErr)
				}
			})
			return nil
		},
	}
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "rollback",
		Usage: "Rollback the last database migration",
		Action: func(ctx context.Context, command *cli.Command) error {
			withLoggerAndDB(ctx, command, func(logger *zap.Logger, db *gorm.DB) {
				if err := database.Migrations().RollbackLast(ctx, db); err != nil {
					log.Fatal(err)
				}
			})
			return nil
		},
	})

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func getLogger(command *cli.Command) *zap.Logger {
	var logger *zap.Logger
	var err error
	if command.Bool("debug") {
		logConfig := zap.NewProductionConfig()
		logConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		logger, err = logConfig.Build()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatal(err)
	}
	return logger
}

func withLoggerAndDB(ctx context.Context, command *cli.Command, f func(logger *zap.Logger, db *gorm.DB)) {
	logger := getLogger(command)
	cleanup := initTracer(logger.Sugar(), command.Bool("trace-insecure"), command.String("trace-endpoint"))
	defer func() {
		if cleanup == nil {
			return
		}
		if err := cleanup(ctx); err != nil {
			logger.Error(err.Error())
		}
	}()

	db, err := database.NewDatabase(
		ctx,
		logger.Sugar(),
		command.String("db-host"),
		command.String("db-user"),
		command.String("db-password"),
		command.String("db-name"),
		command.String("db-port"),
		command.String("db-sslmode"),
	)
	if err != nil {
		log.Fatal(err)
	}

	f(logger, db)
}

func initTracer(logger *zap.SugaredLogger, insecure bool, collector string) func(context.Context) error {
	if collector == "" {
		logger.Info("No collector endpoint configured")
		otel.SetTracerProvider(
			sdktrace.NewTracerProvider(
				sdktrace.WithSampler(sdktrace.AlwaysSample()),
			),
		)
		return nil
	}
	secureOption := otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, ""))
	if insecure {
		secureOption = otlptracegrpc.WithInsecure()
	}
	exporter, err := otlptrace.New(
		context.Background(),
		otlptracegrpc.NewClient(
			secureOption,
			otlptracegrpc.WithEndpoint(collector),
		),
	)
	if err != nil {
		logger.Errorf("Unable to create open telemetry exporter: %s", err.Error())
		return nil
	}
	resources, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", "apiserver"),
			attribute.String("library.language", "go"),
		),
	)
	if err != nil {
		logger.Errorf("Unable to create resources: %s", err.Error())
		return nil
	}

	otel.SetTracerProvider(
		sdktrace.NewTracerProvider(
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(resources),
		),
	)
	return exporter.Shutdown
}
