package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/taskd/internal/storage"
)

// NewHistoryCommand returns the history subcommand.
func NewHistoryCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show recently finished tasks from the history journal",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Number of records to show",
				Value:   20,
			},
		},
		Action: runHistory,
	}
}

func runHistory(ctx context.Context, cmd *cli.Command) error {
	cfg, _, err := setup(cmd)
	if err != nil {
		return err
	}
	if !cfg.History.Enabled {
		return fmt.Errorf("history is disabled (set history.enabled in %s)", cmd.String("config"))
	}
	if _, err := os.Stat(cfg.History.Path); err != nil {
		return fmt.Errorf("no history at %s", cfg.History.Path)
	}

	store, err := storage.OpenHistory(cfg.History.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.List(ctx, cmd.Int("limit"))
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No finished tasks recorded.")
		return nil
	}
	fmt.Println(historyTable(records))
	return nil
}

// historyTable renders records newest first.
func historyTable(records []storage.HistoryRecord) string {
	header := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED")).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#374151"))).
		Headers("ID", "TYPE", "OWNER", "STATUS", "DURATION", "FINISHED", "ERROR").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		})

	for _, r := range records {
		t.Row(
			r.TaskID,
			r.Type,
			r.Owner,
			r.Status,
			strconv.FormatInt(r.DurationMs, 10)+"ms",
			r.CompletedAt.Local().Format("2006-01-02 15:04:05"),
			r.ErrorMessage,
		)
	}
	return t.String()
}
