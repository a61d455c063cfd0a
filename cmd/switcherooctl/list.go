// Copyright 2026 The Switcheroo Control Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/xzl01/switcheroo-control/cmd/switcherooctl/cli"
	"github.com/xzl01/switcheroo-control/lib/config"
	"github.com/xzl01/switcheroo-control/lib/control"
)

// listGPU is one adapter in the list command's --json output.
type listGPU struct {
	Index       int      `json:"index"`
	Name        string   `json:"name"`
	Default     bool     `json:"default"`
	Environment []string `json:"environment"`
}

// listResult is the list command's --json output.
type listResult struct {
	HasDualGPU bool      `json:"has_dual_gpu"`
	NumGPUs    uint32    `json:"num_gpus"`
	GPUs       []listGPU `json:"gpus"`
}

type listParams struct {
	cli.JSONOutput
	socket string
}

func listCommand() *cli.Command {
	var params listParams

	return &cli.Command{
		Name:    "list",
		Summary: "Show the GPUs the daemon knows about",
		Description: `Query the daemon and print one block per GPU: its display name,
whether it is the default launch target, and the environment
variables that route a launched process onto it.

Device indices follow the daemon's published order: alternative GPUs
first, the default GPU last. The same indices select a GPU for
"switcherooctl launch --gpu".`,
		Usage: "switcherooctl list [flags]",
		Examples: []cli.Example{
			{
				Description: "Show all GPUs",
				Command:     "switcherooctl list",
			},
			{
				Description: "JSON output for scripting",
				Command:     "switcherooctl list --json",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
			flagSet.StringVar(&params.socket, "socket", config.DefaultSocket,
				"daemon control socket path")
			params.AddFlag(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}

			ctx, cancel := context.WithTimeout(ctx, requestTimeout)
			defer cancel()

			state, err := control.NewClient(params.socket).State(ctx)
			if err != nil {
				return err
			}

			if done, err := params.EmitJSON(newListResult(state)); done {
				return err
			}
			printState(os.Stdout, state)
			return nil
		},
	}
}

// printState renders the published GPU list in the traditional
// switcherooctl block format, one block per device.
func printState(w io.Writer, state control.State) {
	for i, record := range state.GPUs {
		if i > 0 {
			fmt.Fprintln(w)
		}
		defaultMark := "no"
		if record.Default {
			defaultMark = "yes"
		}
		fmt.Fprintf(w, "Device: %d\n", i)
		fmt.Fprintf(w, "  Name:        %s\n", record.Name)
		fmt.Fprintf(w, "  Default:     %s\n", defaultMark)
		fmt.Fprintf(w, "  Environment: %s\n", strings.Join(record.EnvironmentStrings(), " "))
	}
}

func newListResult(state control.State) listResult {
	gpus := make([]listGPU, 0, len(state.GPUs))
	for i, record := range state.GPUs {
		gpus = append(gpus, listGPU{
			Index:       i,
			Name:        record.Name,
			Default:     record.Default,
			Environment: record.EnvironmentStrings(),
		})
	}
	return listResult{
		HasDualGPU: state.HasDualGPU,
		NumGPUs:    state.NumGPUs,
		GPUs:       gpus,
	}
}
