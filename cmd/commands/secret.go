package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/dohr-michael/taskd/internal/config"
	"github.com/dohr-michael/taskd/internal/secrets"
)

// NewSecretCommand returns the secret subcommand.
func NewSecretCommand() *cli.Command {
	return &cli.Command{
		Name:  "secret",
		Usage: "Manage age-sealed values in the taskd .env file",
		Commands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Create the age key if it does not exist",
				Action: func(_ context.Context, _ *cli.Command) error {
					k, created, err := secrets.InitKeyring(secrets.KeyPath())
					if err != nil {
						return err
					}
					if created {
						fmt.Printf("Created %s\n", secrets.KeyPath())
					}
					fmt.Printf("Public key: %s\n", k.Recipient())
					return nil
				},
			},
			{
				Name:      "set",
				Usage:     "Seal a value and store it in .env (reads stdin when VALUE is omitted)",
				ArgsUsage: "NAME [VALUE]",
				Action:    runSecretSet,
			},
		},
	}
}

func runSecretSet(_ context.Context, cmd *cli.Command) error {
	name := cmd.Args().Get(0)
	if name == "" {
		return fmt.Errorf("missing NAME argument")
	}

	value := cmd.Args().Get(1)
	if cmd.Args().Len() < 2 {
		v, err := readSecretValue(os.Stdin)
		if err != nil {
			return err
		}
		value = v
	}

	k, _, err := secrets.InitKeyring(secrets.KeyPath())
	if err != nil {
		return err
	}
	sealed, err := k.Seal(value)
	if err != nil {
		return err
	}
	if err := secrets.SetEntry(config.DotenvPath(), name, sealed); err != nil {
		return err
	}
	fmt.Printf("Stored %s in %s\n", name, config.DotenvPath())
	return nil
}

// readSecretValue prompts without echo on a terminal, otherwise reads all of r.
func readSecretValue(f *os.File) (string, error) {
	if term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(os.Stderr, "Value: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("read value: %w", err)
		}
		return string(b), nil
	}
	b, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("read value: %w", err)
	}
	return strings.TrimRight(string(b), "\r\n"), nil
}
