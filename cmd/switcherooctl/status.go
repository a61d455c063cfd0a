// Copyright 2026 The Switcheroo Control Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/xzl01/switcheroo-control/cmd/switcherooctl/cli"
	"github.com/xzl01/switcheroo-control/lib/config"
	"github.com/xzl01/switcheroo-control/lib/control"
)

// statusResult is the status command's --json output.
type statusResult struct {
	Socket     string `json:"socket"`
	Reachable  bool   `json:"reachable"`
	Error      string `json:"error,omitempty"`
	NumGPUs    uint32 `json:"num_gpus"`
	HasDualGPU bool   `json:"has_dual_gpu"`
}

type statusParams struct {
	cli.JSONOutput
	socket string
}

func statusCommand() *cli.Command {
	var params statusParams

	return &cli.Command{
		Name:    "status",
		Summary: "Check daemon liveness",
		Description: `Ping the daemon and print a one-line summary of its state. Exits 1
when the daemon is unreachable, which makes this usable from scripts
and health checks.`,
		Usage: "switcherooctl status [flags]",
		Examples: []cli.Example{
			{
				Description: "Check that the daemon is up",
				Command:     "switcherooctl status",
			},
			{
				Description: "Machine-readable health check",
				Command:     "switcherooctl status --json",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("status", pflag.ContinueOnError)
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

			unreachable := func(err error) error {
				result := statusResult{Socket: params.socket, Error: err.Error()}
				if done, jsonErr := params.EmitJSON(result); done {
					if jsonErr != nil {
						return jsonErr
					}
				} else {
					fmt.Fprintf(os.Stderr, "switcheroo-control unreachable at %s: %v\n",
						params.socket, err)
				}
				return &cli.ExitError{Code: 1}
			}

			client := control.NewClient(params.socket)
			if err := client.Ping(ctx); err != nil {
				return unreachable(err)
			}
			state, err := client.State(ctx)
			if err != nil {
				return unreachable(err)
			}

			result := statusResult{
				Socket:     params.socket,
				Reachable:  true,
				NumGPUs:    state.NumGPUs,
				HasDualGPU: state.HasDualGPU,
			}
			if done, err := params.EmitJSON(result); done {
				return err
			}
			fmt.Println(statusLine(params.socket, state))
			return nil
		},
	}
}

// statusLine is the one-line human summary.
func statusLine(socket string, state control.State) string {
	noun := "GPUs"
	if state.NumGPUs == 1 {
		noun = "GPU"
	}
	suffix := ""
	if state.HasDualGPU {
		suffix = ", dual-GPU system"
	}
	return fmt.Sprintf("switcheroo-control at %s: %d %s%s",
		socket, state.NumGPUs, noun, suffix)
}
