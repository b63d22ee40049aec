package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dukex/stageflow/pkg/cmd"
	"github.com/dukex/stageflow/pkg/models"
	"github.com/dukex/stageflow/pkg/web"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"
)

func NewSubmitCommand() *cli.Command {
	return &cli.Command{
		Name:  "submit",
		Usage: "Submit one pub event and print the resulting runs",
		Flags: concat(storeFlags(), registryFlags(), engineFlags(), busFlags(false), []cli.Flag{
			&cli.StringFlag{Name: "kind", Usage: "Event kind", Required: true},
			&cli.StringFlag{Name: "community", Usage: "Community ID", Required: true},
			&cli.StringFlag{Name: "pub", Usage: "Pub ID"},
			&cli.StringFlag{Name: "stage", Usage: "Stage ID"},
			&cli.StringFlag{Name: "payload", Usage: "Event payload as a JSON object"},
		}),
		Action: func(ctx context.Context, command *cli.Command) error {
			req := web.SubmitEventRequest{
				Kind:        models.EventKind(command.String("kind")),
				CommunityID: command.String("community"),
				PubID:       command.String("pub"),
				StageID:     command.String("stage"),
			}

			if raw := command.String("payload"); raw != "" {
				if err := json.Unmarshal([]byte(raw), &req.Payload); err != nil {
					return fmt.Errorf("invalid payload: %w", err)
				}
			}

			rt, err := newRuntime(ctx, command, "stageflow-submit")
			if err != nil {
				return err
			}

			defer rt.Close(context.WithoutCancel(ctx))

			dispatcher, err := newDispatcher(ctx, rt, command)
			if err != nil {
				return err
			}

			dispatch, err := dispatcher.Submit(ctx, req.Event())
			if err != nil {
				return err
			}

			return printJSON(command, dispatch)
		},
	}
}

// newDispatcher publishes to the bus when one is configured and otherwise runs
// the engine in this process.
func newDispatcher(ctx context.Context, rt *runtime, command *cli.Command) (web.Dispatcher, error) {
	if provider := command.String("event-bus"); provider != "" {
		eventBus, err := cmd.NewEventBus(provider, command.String("kafka-brokers"), "stageflow-cli", rt.logger)
		if err != nil {
			return nil, err
		}

		rt.onClose(func(context.Context) error { return eventBus.Close() })

		return web.NewBusDispatcher(eventBus), nil
	}

	if err := rt.withRegistry(command); err != nil {
		return nil, err
	}

	eng, err := rt.newEngine(ctx, command, "stageflow-cli", prometheus.NewRegistry())
	if err != nil {
		return nil, err
	}

	return web.NewEngineDispatcher(eng, web.FatalDispatchError), nil
}
