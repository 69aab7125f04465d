package commands

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/taskd/internal/executor"
	taskdmcp "github.com/dohr-michael/taskd/internal/mcp"
)

// NewMCPServeCommand returns the mcp-serve subcommand.
func NewMCPServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "mcp-serve",
		Usage: "Run an in-process executor exposed as an MCP server (stdio)",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "tool",
				Usage: "Tool to expose (repeatable, default all)",
			},
		},
		Action: runMCPServe,
	}
}

func runMCPServe(ctx context.Context, cmd *cli.Command) error {
	// stdout carries the MCP transport; setup logs to stderr.
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	reg, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	exec, err := executor.New(executor.Config{
		Registry:       reg,
		MaxConcurrency: cfg.Executor.MaxConcurrency,
		CompletedTTL:   cfg.Executor.CompletedTTL.Duration(),
		GCInterval:     cfg.Executor.GCInterval.Duration(),
		DefaultTimeout: cfg.Executor.DefaultTimeout.Duration(),
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("init executor: %w", err)
	}
	defer exec.Destroy()

	server := taskdmcp.NewServer(taskdmcp.Options{
		Service: exec,
		Types:   reg.Types,
		Tools:   cmd.StringSlice("tool"),
	})
	logger.Debug("starting MCP server", "types", reg.Types())
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}
