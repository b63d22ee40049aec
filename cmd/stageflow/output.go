package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/urfave/cli/v3"
)

func writer(command *cli.Command) io.Writer {
	if root := command.Root(); root != nil && root.Writer != nil {
		return root.Writer
	}

	return os.Stdout
}

func printJSON(command *cli.Command, value any) error {
	encoder := json.NewEncoder(writer(command))
	encoder.SetIndent("", "  ")

	return encoder.Encode(value)
}
