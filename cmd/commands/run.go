package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/taskd/internal/events"
	"github.com/dohr-michael/taskd/internal/executor"
	"github.com/dohr-michael/taskd/internal/tasks"
)

// taskFlags are shared by run and submit.
func taskFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "input",
			Aliases: []string{"i"},
			Usage:   "Task input as JSON",
			Value:   "{}",
		},
		&cli.StringFlag{
			Name:    "priority",
			Aliases: []string{"p"},
			Usage:   "Priority: low, normal or high",
			Value:   string(tasks.PriorityNormal),
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Cancel the task after this duration (0 = none)",
		},
		&cli.StringFlag{
			Name:  "owner",
			Usage: "Owner tag used to route events",
		},
		&cli.StringFlag{
			Name:  "id",
			Usage: "Task id (generated when empty)",
		},
	}
}

// taskArgs reads the task type argument and the shared task flags.
func taskArgs(cmd *cli.Command) (string, json.RawMessage, tasks.SubmitOptions, error) {
	taskType := cmd.Args().First()
	if taskType == "" {
		return "", nil, tasks.SubmitOptions{}, fmt.Errorf("missing task type argument")
	}
	input := json.RawMessage(cmd.String("input"))
	if !json.Valid(input) {
		return "", nil, tasks.SubmitOptions{}, fmt.Errorf("--input is not valid JSON")
	}
	prio, err := tasks.ParsePriority(cmd.String("priority"))
	if err != nil {
		return "", nil, tasks.SubmitOptions{}, err
	}
	return taskType, input, tasks.SubmitOptions{
		TaskID:   cmd.String("id"),
		Priority: prio,
		Timeout:  cmd.Duration("timeout"),
		Owner:    cmd.String("owner"),
	}, nil
}

// NewRunCommand returns the run subcommand.
func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Run one task in-process and print its events",
		ArgsUsage: "<type>",
		Flags:     taskFlags(),
		Action:    runTask,
	}
}

func runTask(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	taskType, input, opts, err := taskArgs(cmd)
	if err != nil {
		return err
	}

	reg, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	if opts.TaskID == "" {
		opts.TaskID = tasks.GenerateTaskID()
	}

	bus := events.NewBus(cfg.Events.BufferSize)
	defer bus.Close()
	ch, unsubscribe := bus.WatchChan(events.Filter{TaskID: opts.TaskID}, cfg.Events.BufferSize)
	defer unsubscribe()

	exec, err := executor.New(executor.Config{
		Registry:       reg,
		Sink:           bus,
		MaxConcurrency: 1,
		GCInterval:     -1,
		DefaultTimeout: cfg.Executor.DefaultTimeout.Duration(),
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	defer exec.Destroy()

	id, err := exec.Submit(taskType, input, opts)
	if err != nil {
		return err
	}

	return followTask(ctx, exec, id, ch, newEventPrinter(os.Stdout))
}

// followTask prints the task's events until the executor reports its
// outcome. The first cancellation of ctx cancels the task.
func followTask(ctx context.Context, exec *executor.Executor, id string, ch <-chan events.Event, printer *eventPrinter) error {
	type outcome struct {
		snap tasks.Snapshot
		err  error
	}
	finished := make(chan outcome, 1)
	go func() {
		snap, err := exec.Wait(context.Background(), id)
		finished <- outcome{snap, err}
	}()

	sawTerminal := false
	done := ctx.Done()
	for {
		select {
		case <-done:
			exec.Cancel(id)
			done = nil
		case e, ok := <-ch:
			if !ok {
				ch = nil
				continue
			}
			printer.printEvent(e)
			sawTerminal = sawTerminal || e.Type.IsTerminal()
		case o := <-finished:
			if o.err != nil {
				return o.err
			}
			if !drainEvents(printer, ch) && !sawTerminal {
				if p, ok := events.TerminalPayload(o.snap); ok {
					printer.printEvent(events.NewTaskEvent(id, o.snap.Owner, p))
				}
			}
			return outcomeError(o.snap)
		}
	}
}

// drainEvents prints the events already buffered on ch and reports whether a
// terminal one was among them.
func drainEvents(p *eventPrinter, ch <-chan events.Event) bool {
	terminal := false
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return terminal
			}
			p.printEvent(e)
			terminal = terminal || e.Type.IsTerminal()
		default:
			return terminal
		}
	}
}

// outcomeError is nil for a completed task.
func outcomeError(s tasks.Snapshot) error {
	switch s.Status {
	case tasks.TaskCompleted:
		return nil
	case tasks.TaskFailed:
		if s.Error != nil {
			return fmt.Errorf("task %s failed: %s: %s", s.ID, s.Error.Code, s.Error.Message)
		}
	}
	return fmt.Errorf("task %s ended %s", s.ID, s.Status)
}
