// Copyright 2026 The Switcheroo Control Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xzl01/switcheroo-control/cmd/switcherooctl/cli"
	"github.com/xzl01/switcheroo-control/lib/logging"
	"github.com/xzl01/switcheroo-control/lib/version"
)

// requestTimeout bounds a single query to the daemon. Anything
// slower than this means the daemon is wedged, not busy.
const requestTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		// Commands that print their own output (like status) return an
		// ExitError with the desired exit code. Don't print a redundant
		// "error:" line for those.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.New("warn", "auto")
	return rootCommand().Execute(ctx, os.Args[1:], logger)
}

// rootCommand builds the switcherooctl command tree. The bare
// invocation behaves as "list", matching what users of the original
// tool expect.
func rootCommand() *cli.Command {
	list := listCommand()

	return &cli.Command{
		Name: "switcherooctl",
		Description: `switcherooctl: query the dual-GPU daemon and launch programs on a
chosen GPU.

Run without arguments to list the GPUs the daemon knows about.`,
		Usage: "switcherooctl [command] [flags]",
		Subcommands: []*cli.Command{
			list,
			launchCommand(),
			watchCommand(),
			statusCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(context.Context, []string, *slog.Logger) error {
					fmt.Printf("switcherooctl %s\n", version.Full())
					return nil
				},
			},
		},
		// Bare "switcherooctl" (optionally with list's flags) lists.
		Flags: list.Flags,
		Run:   list.Run,
		Examples: []cli.Example{
			{
				Description: "Show all GPUs",
				Command:     "switcherooctl list",
			},
			{
				Description: "Run a game on the discrete GPU",
				Command:     "switcherooctl launch --gpu 0 -- steam",
			},
			{
				Description: "Follow GPU state changes live",
				Command:     "switcherooctl watch",
			},
		},
	}
}
