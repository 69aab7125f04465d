package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	wsclient "github.com/dohr-michael/taskd/clients/ws"
	"github.com/dohr-michael/taskd/internal/events"
	"github.com/dohr-michael/taskd/internal/gateway/ws"
)

// NewSubmitCommand returns the submit subcommand.
func NewSubmitCommand() *cli.Command {
	flags := append(taskFlags(),
		&cli.StringFlag{
			Name:  "gateway",
			Usage: "Gateway WebSocket URL (default from config)",
		},
		&cli.BoolFlag{
			Name:    "wait",
			Aliases: []string{"w"},
			Usage:   "Follow the task events until it ends",
		},
	)
	return &cli.Command{
		Name:      "submit",
		Usage:     "Submit a task to a running taskd",
		ArgsUsage: "<type>",
		Flags:     flags,
		Action:    runSubmit,
	}
}

func runSubmit(ctx context.Context, cmd *cli.Command) error {
	cfg, _, err := setup(cmd)
	if err != nil {
		return err
	}
	taskType, input, opts, err := taskArgs(cmd)
	if err != nil {
		return err
	}

	url := cmd.String("gateway")
	if url == "" {
		url = fmt.Sprintf("ws://%s:%d/api/ws", cfg.Gateway.Host, cfg.Gateway.Port)
	}

	client, err := wsclient.Dial(ctx, url, opts.Owner)
	if err != nil {
		return fmt.Errorf("connect to gateway: %w", err)
	}
	defer client.Close()

	id, err := client.Submit(ws.SubmitParams{
		Type:  taskType,
		Input: input,
		Options: ws.SubmitOptions{
			TaskID:    opts.TaskID,
			Priority:  string(opts.Priority),
			TimeoutMs: opts.Timeout.Milliseconds(),
			Owner:     opts.Owner,
		},
	})
	if err != nil {
		return err
	}
	fmt.Println(id)

	if !cmd.Bool("wait") {
		return nil
	}

	printer := newEventPrinter(os.Stdout)
	sawTerminal := false
	snap, err := client.Wait(id, func(f ws.Frame) {
		if f.TaskID != id {
			return
		}
		printer.print(f.Event, f.Payload)
		sawTerminal = sawTerminal || events.EventType(f.Event).IsTerminal()
	})
	if err != nil {
		return fmt.Errorf("wait for %s: %w", id, err)
	}
	if !sawTerminal {
		if p, ok := events.TerminalPayload(snap); ok {
			printer.printEvent(events.NewTaskEvent(id, snap.Owner, p))
		}
	}
	return outcomeError(snap)
}
