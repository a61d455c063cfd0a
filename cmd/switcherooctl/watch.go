// Copyright 2026 The Switcheroo Control Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/xzl01/switcheroo-control/cmd/switcherooctl/cli"
	"github.com/xzl01/switcheroo-control/lib/config"
	"github.com/xzl01/switcheroo-control/lib/control"
	"github.com/xzl01/switcheroo-control/lib/watchui"
)

type watchParams struct {
	socket string
	once   bool
}

func watchCommand() *cli.Command {
	var params watchParams

	return &cli.Command{
		Name:    "watch",
		Summary: "Follow GPU state changes live",
		Description: `Subscribe to the daemon's state stream. On a terminal this opens a
live view that updates on every change; when piped it prints one
line per state change instead.

The daemon sends the current state immediately on subscription, so
the view never starts empty while the daemon is reachable.`,
		Usage: "switcherooctl watch [flags]",
		Examples: []cli.Example{
			{
				Description: "Open the live view",
				Command:     "switcherooctl watch",
			},
			{
				Description: "Log state changes from a script",
				Command:     "switcherooctl watch >> gpu-changes.log",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("watch", pflag.ContinueOnError)
			flagSet.StringVar(&params.socket, "socket", config.DefaultSocket,
				"daemon control socket path")
			flagSet.BoolVar(&params.once, "once", false,
				"print the current state and exit")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}

			if params.once {
				ctx, cancel := context.WithTimeout(ctx, requestTimeout)
				defer cancel()
				state, err := control.NewClient(params.socket).State(ctx)
				if err != nil {
					return err
				}
				printState(os.Stdout, state)
				return nil
			}

			// The subscription lives exactly as long as the command:
			// cancelling tears down the connection and closes the
			// states channel.
			watchCtx, cancel := context.WithCancel(ctx)
			defer cancel()

			states, err := control.NewClient(params.socket).Watch(watchCtx)
			if err != nil {
				return fmt.Errorf("subscribing to state changes: %w", err)
			}

			if term.IsTerminal(int(os.Stdout.Fd())) {
				program := tea.NewProgram(watchui.NewModel(states), tea.WithAltScreen())
				_, err := program.Run()
				return err
			}
			return printStateLines(watchCtx, os.Stdout, states)
		},
	}
}

// printStateLines renders one line per state change until the stream
// ends. A stream that closes without the user interrupting means the
// daemon went away, which a logging consumer needs to see as a
// failure.
func printStateLines(ctx context.Context, w io.Writer, states <-chan control.State) error {
	for state := range states {
		defaultName := ""
		for _, record := range state.GPUs {
			if record.Default {
				defaultName = record.Name
			}
		}
		fmt.Fprintf(w, "%s gpus=%d dual_gpu=%v default=%q\n",
			time.Now().Format(time.RFC3339), state.NumGPUs, state.HasDualGPU, defaultName)
	}
	if ctx.Err() != nil {
		return nil
	}
	return fmt.Errorf("state stream closed by the daemon")
}
