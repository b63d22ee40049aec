package main

import (
	"context"
	"log/slog"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/dukex/stageflow/pkg/cmd"
	"github.com/dukex/stageflow/pkg/persistence"
	"github.com/dukex/stageflow/pkg/registry"
	"github.com/dukex/stageflow/pkg/schema"
	"github.com/dukex/stageflow/pkg/services"
	"github.com/dukex/stageflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"
)

const defaultPort = 9091

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	dispatcher  web.Dispatcher
	metrics     *prometheus.Registry
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *registry.Registry,
	dispatcher web.Dispatcher,
	metrics *prometheus.Registry,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		registry:    registry,
		dispatcher:  dispatcher,
		metrics:     metrics,
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(
		a.persistence,
		a.registry,
		services.NewActionInstance(a.persistence, schema.NewValidator(a.registry)),
		a.dispatcher,
		validator.New(validator.WithRequiredStructEnabled()),
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("stageflow API")
	})

	app.Get("/metrics", metricsHandler(a.metrics))

	handlers.Register(app)

	return app
}

func metricsHandler(reg *prometheus.Registry) fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
}

func NewAPICommand() *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Serve the HTTP API",
		Flags: concat(storeFlags(), registryFlags(), engineFlags(), busFlags(false), []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
		}),
		Action: func(ctx context.Context, command *cli.Command) error {
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := newRuntime(ctx, command, "stageflow-api")
			if err != nil {
				return err
			}

			defer rt.Close(context.WithoutCancel(ctx))

			rt.logger.InfoContext(ctx, "Initializing stageflow API")

			if err := rt.withRegistry(command); err != nil {
				return err
			}

			promRegistry := prometheus.NewRegistry()
			promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

			var dispatcher web.Dispatcher

			if provider := command.String("event-bus"); provider != "" {
				eventBus, err := cmd.NewEventBus(provider, command.String("kafka-brokers"), "stageflow-api", rt.logger)
				if err != nil {
					return err
				}

				rt.onClose(func(context.Context) error { return eventBus.Close() })
				rt.registry.Seal()

				dispatcher = web.NewBusDispatcher(eventBus)
			} else {
				eng, err := rt.newEngine(ctx, command, "stageflow-api", promRegistry)
				if err != nil {
					return err
				}

				dispatcher = web.NewEngineDispatcher(eng, web.FatalDispatchError)
			}

			app := NewAPI(rt.logger, rt.persistence, rt.registry, dispatcher, promRegistry).App()

			go func() {
				<-ctx.Done()

				if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
					rt.logger.Error("Failed to shut down API", "error", err)
				}
			}()

			return app.Listen(":" + strconv.Itoa(command.Int("port")))
		},
	}
}
