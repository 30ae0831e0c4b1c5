package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/kiln-llm/kiln/internal/version"
)

func versionCmd() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print the kiln version",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			fmt.Println("kiln " + version.String())
			return nil
		},
	}
}
