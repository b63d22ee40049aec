package main

import (
	"context"
	"errors"

	"github.com/dukex/stageflow/pkg/ledger"
	"github.com/dukex/stageflow/pkg/models"
	"github.com/urfave/cli/v3"
)

func NewRunsCommand() *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "List the runs of a rule or an action instance",
		Flags: concat(storeFlags(), []cli.Flag{
			&cli.StringFlag{Name: "rule", Usage: "Rule ID"},
			&cli.StringFlag{Name: "instance", Usage: "Action instance ID"},
			&cli.BoolFlag{Name: "summary", Usage: "Print outcome counts instead of the runs"},
			&cli.BoolFlag{Name: "final", Usage: "Only the final attempt of each attempt group"},
		}),
		Action: func(ctx context.Context, command *cli.Command) error {
			ruleID, instanceID := command.String("rule"), command.String("instance")
			if (ruleID == "") == (instanceID == "") {
				return errors.New("exactly one of --rule or --instance is required")
			}

			rt, err := newRuntime(ctx, command, "stageflow-runs")
			if err != nil {
				return err
			}

			defer rt.Close(context.WithoutCancel(ctx))

			var runs []*models.Run
			if ruleID != "" {
				runs, err = rt.persistence.RunRepository().ListForRule(ctx, ruleID)
			} else {
				runs, err = rt.persistence.RunRepository().ListForInstance(ctx, instanceID)
			}

			if err != nil {
				return err
			}

			switch {
			case command.Bool("summary"):
				return printJSON(command, ledger.Summarize(runs))
			case command.Bool("final"):
				return printJSON(command, ledger.Authoritative(runs))
			default:
				return printJSON(command, runs)
			}
		},
	}
}
