package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/dukex/stageflow/pkg/schema"
	"github.com/dukex/stageflow/pkg/services"
	"github.com/dukex/stageflow/pkg/workflowfile"
	"github.com/urfave/cli/v3"
)

func NewImportCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Create or update stages, action instances and rules from a YAML file",
		ArgsUsage: "<workflow.yaml>",
		Flags: concat(storeFlags(), registryFlags(), []cli.Flag{
			&cli.BoolFlag{Name: "watch", Usage: "Re-import whenever the file changes"},
		}),
		Action: func(ctx context.Context, command *cli.Command) error {
			path := command.Args().First()
			if path == "" {
				return cli.Exit("a workflow file is required", 1)
			}

			rt, err := newRuntime(ctx, command, "stageflow-import")
			if err != nil {
				return err
			}

			defer rt.Close(context.WithoutCancel(ctx))

			if err := rt.withRegistry(command); err != nil {
				return err
			}

			rt.registry.Seal()

			importer := workflowfile.NewImporter(
				services.NewStage(rt.persistence),
				services.NewActionInstance(rt.persistence, schema.NewValidator(rt.registry)),
				services.NewRule(rt.persistence),
			)

			importFile := func(ctx context.Context) error {
				file, err := workflowfile.Load(path)
				if err != nil {
					return err
				}

				result, err := importer.Import(ctx, file)
				if err != nil {
					return err
				}

				rt.logger.InfoContext(ctx, "Imported workflow file", "path", path,
					"stages", result.Stages, "action_instances", result.ActionInstances, "rules", result.Rules)

				return printJSON(command, result)
			}

			if err := importFile(ctx); err != nil {
				return err
			}

			if !command.Bool("watch") {
				return nil
			}

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return workflowfile.Watch(ctx, path, rt.logger, func(ctx context.Context) {
				if err := importFile(ctx); err != nil {
					rt.logger.ErrorContext(ctx, "Failed to re-import workflow file", "path", path, "error", err)
				}
			})
		},
	}
}
