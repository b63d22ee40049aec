package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/stageflow/pkg/cmd"
	"github.com/dukex/stageflow/pkg/engine"
	"github.com/dukex/stageflow/pkg/log"
	"github.com/dukex/stageflow/pkg/metrics"
	"github.com/dukex/stageflow/pkg/otelhelper"
	"github.com/dukex/stageflow/pkg/persistence"
	"github.com/dukex/stageflow/pkg/registry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"
)

// runtime holds what every command that touches the store needs.
type runtime struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	closers     []func(context.Context) error
}

func newRuntime(ctx context.Context, command *cli.Command, module string) (*runtime, error) {
	log.Setup(command.String("log-level"))

	rt := &runtime{logger: log.WithModule(module)}

	store, err := cmd.NewPersistence(ctx, rt.logger, command.String("database-url"))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	withLedger, err := cmd.WithLedger(ctx, rt.logger, store, command.String("ledger-url"))
	if err != nil {
		_ = store.Close(ctx)

		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	rt.persistence = withLedger
	rt.closers = append(rt.closers, withLedger.Close)

	return rt, nil
}

// withRegistry loads the built-in action kinds and plugins.
func (rt *runtime) withRegistry(command *cli.Command) error {
	reg, err := cmd.NewRegistry(rt.logger, command.String("plugins-path"), command.String("smtp-url"))
	if err != nil {
		return fmt.Errorf("failed to load actions: %w", err)
	}

	rt.registry = reg

	return nil
}

// newEngine builds the engine, seals the registry and registers metrics with reg.
func (rt *runtime) newEngine(ctx context.Context, command *cli.Command, service string, reg prometheus.Registerer) (*engine.Engine, error) {
	opts := []engine.Option{
		engine.WithConfig(engineConfig(command)),
		engine.WithObserver(metrics.New(reg)),
	}

	if command.Bool("tracing") {
		tracer, shutdown, err := otelhelper.NewTracer(ctx, service)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}

		rt.closers = append(rt.closers, shutdown)
		opts = append(opts, engine.WithTracer(tracer))
	}

	return engine.New(rt.persistence, rt.registry, rt.logger, opts...)
}

func (rt *runtime) onClose(closer func(context.Context) error) {
	rt.closers = append(rt.closers, closer)
}

// Close releases resources in reverse order of acquisition.
func (rt *runtime) Close(ctx context.Context) {
	var errs []error

	for i := len(rt.closers) - 1; i >= 0; i-- {
		errs = append(errs, rt.closers[i](ctx))
	}

	if err := errors.Join(errs...); err != nil {
		rt.logger.ErrorContext(ctx, "Failed to release resources", "error", err)
	}
}
