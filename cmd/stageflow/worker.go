package main

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/dukex/stageflow/pkg/cmd"
	"github.com/dukex/stageflow/pkg/events"
	"github.com/dukex/stageflow/pkg/models"
	"github.com/dukex/stageflow/pkg/scheduler"
	"github.com/dukex/stageflow/pkg/worker"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"
)

func NewWorkerCommand() *cli.Command {
	return &cli.Command{
		Name:    "worker",
		Aliases: []string{"w"},
		Usage:   "Consume pub events from the event bus and run their rules",
		Flags: concat(storeFlags(), registryFlags(), engineFlags(), busFlags(true), []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.BoolFlag{
				Name:    "scheduler",
				Usage:   "Fire scheduled rules from this worker; enable on exactly one worker",
				Sources: cli.EnvVars("SCHEDULER_ENABLED"),
			},
			&cli.IntFlag{
				Name:    "metrics-port",
				Usage:   "Port serving /metrics (0 disables)",
				Value:   9093,
				Sources: cli.EnvVars("METRICS_PORT"),
			},
		}),
		Action: func(ctx context.Context, command *cli.Command) error {
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			rt, err := newRuntime(ctx, command, "stageflow-worker")
			if err != nil {
				return err
			}

			defer rt.Close(context.WithoutCancel(ctx))

			logger := rt.logger.With("worker_id", workerID)
			logger.InfoContext(ctx, "Initializing stageflow worker")

			if err := rt.withRegistry(command); err != nil {
				return err
			}

			promRegistry := prometheus.NewRegistry()

			eng, err := rt.newEngine(ctx, command, "stageflow-worker", promRegistry)
			if err != nil {
				return err
			}

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), "stageflow-worker", logger)
			if err != nil {
				return err
			}

			rt.onClose(func(context.Context) error { return eventBus.Close() })

			if command.Bool("scheduler") {
				sched := scheduler.New(rt.persistence, func(ctx context.Context, event models.Event) error {
					submitted := events.NewPubEventSubmitted(event)

					return eventBus.Publish(ctx, submitted.Key(), submitted)
				}, logger)

				if err := sched.Start(ctx); err != nil {
					return fmt.Errorf("failed to start scheduler: %w", err)
				}

				rt.onClose(sched.Stop)
			}

			if port := command.Int("metrics-port"); port > 0 {
				app := fiber.New()
				app.Get("/metrics", metricsHandler(promRegistry))

				go func() {
					if err := app.Listen(":" + strconv.Itoa(port)); err != nil {
						logger.ErrorContext(ctx, "Metrics server stopped", "error", err)
					}
				}()

				rt.onClose(app.ShutdownWithContext)
			}

			return worker.NewWorkerManager(workerID, eng, eventBus, logger).Start(ctx)
		},
	}
}
