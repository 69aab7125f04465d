package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// NewTypesCommand returns the types subcommand.
func NewTypesCommand() *cli.Command {
	return &cli.Command{
		Name:  "types",
		Usage: "List the task types this configuration registers",
		Action: func(_ context.Context, cmd *cli.Command) error {
			cfg, _, err := setup(cmd)
			if err != nil {
				return err
			}
			reg, err := buildRegistry(cfg)
			if err != nil {
				return err
			}
			for _, t := range reg.Types() {
				fmt.Println(t)
			}
			return nil
		},
	}
}
