package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dukex/stageflow/pkg/cmd"
	"github.com/dukex/stageflow/pkg/log"
	"github.com/dukex/stageflow/pkg/schema"
	"github.com/dukex/stageflow/pkg/web"
	"github.com/dukex/stageflow/pkg/workflowfile"
	"github.com/urfave/cli/v3"
)

var ErrConfigInvalid = errors.New("config is invalid")

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "Validate an action config or a workflow file without touching a store",
		Flags: concat(registryFlags(), []cli.Flag{
			&cli.StringFlag{Name: "kind", Usage: "Action kind whose config to validate"},
			&cli.StringFlag{Name: "config", Usage: "Action config as a JSON object", Value: "{}"},
			&cli.StringFlag{Name: "file", Usage: "Workflow YAML file to validate"},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "warn",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		}),
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.Setup(command.String("log-level"))

			switch {
			case command.String("file") != "":
				file, err := workflowfile.Load(command.String("file"))
				if err != nil {
					return err
				}

				return printJSON(command, map[string]any{
					"valid":            true,
					"community":        file.Community,
					"stages":           len(file.Stages),
					"action_instances": len(file.ActionInstances),
					"rules":            len(file.Rules),
				})

			case command.String("kind") != "":
				var config map[string]any
				if err := json.Unmarshal([]byte(command.String("config")), &config); err != nil {
					return fmt.Errorf("invalid config JSON: %w", err)
				}

				reg, err := cmd.NewRegistry(logger, command.String("plugins-path"), command.String("smtp-url"))
				if err != nil {
					return err
				}

				merged, fieldErrors, err := schema.NewValidator(reg).MergeAndValidate(command.String("kind"), config)
				if err != nil {
					return err
				}

				if err := printJSON(command, web.ValidateConfigResponse{
					Valid:  len(fieldErrors) == 0,
					Config: merged,
					Errors: fieldErrors,
				}); err != nil {
					return err
				}

				if len(fieldErrors) > 0 {
					return fmt.Errorf("%w: %s", ErrConfigInvalid, schema.FormatErrors(fieldErrors))
				}

				return nil

			default:
				return errors.New("either --kind or --file is required")
			}
		},
	}
}
