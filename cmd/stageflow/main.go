// Command stageflow runs the stage workflow engine: the bus worker, the HTTP
// API and one-shot authoring and inspection commands.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:                  "stageflow",
		Usage:                 "Run stage-based workflow automation",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			NewWorkerCommand(),
			NewAPICommand(),
			NewSubmitCommand(),
			NewValidateCommand(),
			NewImportCommand(),
			NewRunsCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
