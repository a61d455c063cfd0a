// Copyright 2026 The Switcheroo Control Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"

	"github.com/xzl01/switcheroo-control/cmd/switcherooctl/cli"
	"github.com/xzl01/switcheroo-control/lib/config"
	"github.com/xzl01/switcheroo-control/lib/control"
)

type launchParams struct {
	socket string
	gpu    int
}

func launchCommand() *cli.Command {
	var params launchParams

	return &cli.Command{
		Name:    "launch",
		Summary: "Launch a program on a chosen GPU",
		Description: `Query the daemon for the selected GPU's environment variables, apply
them over the inherited environment, and replace this process with
the given command.

Without --gpu the daemon's default GPU is used (or device 0 when the
daemon has not marked a default). Indices match "switcherooctl list".
Put -- before the command so its own flags are not parsed here.`,
		Usage: "switcherooctl launch [flags] -- <command> [args...]",
		Examples: []cli.Example{
			{
				Description: "Run a game on the discrete GPU (device 0 on a dual-GPU laptop)",
				Command:     "switcherooctl launch --gpu 0 -- steam",
			},
			{
				Description: "Run on the default GPU",
				Command:     "switcherooctl launch -- glxgears",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("launch", pflag.ContinueOnError)
			// Stop at the first positional so the launched command's
			// flags pass through untouched even without --.
			flagSet.SetInterspersed(false)
			flagSet.StringVar(&params.socket, "socket", config.DefaultSocket,
				"daemon control socket path")
			flagSet.IntVarP(&params.gpu, "gpu", "g", -1,
				"index of the GPU to launch on (default: the daemon's default GPU)")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if len(args) == 0 {
				return fmt.Errorf("launch requires a command: switcherooctl launch [flags] -- <command> [args...]")
			}

			ctx, cancel := context.WithTimeout(ctx, requestTimeout)
			defer cancel()

			state, err := control.NewClient(params.socket).State(ctx)
			if err != nil {
				return fmt.Errorf("querying gpu state: %w", err)
			}

			record, err := selectGPU(state, params.gpu)
			if err != nil {
				return err
			}

			binary, err := exec.LookPath(args[0])
			if err != nil {
				return fmt.Errorf("resolving %q: %w", args[0], err)
			}

			environment := mergeEnvironment(os.Environ(), record.EnvironmentStrings())
			if err := unix.Exec(binary, args, environment); err != nil {
				return fmt.Errorf("exec %s: %w", binary, err)
			}
			// Exec replaced the process; this is unreachable.
			return nil
		},
	}
}

// selectGPU picks the launch target from the published list. A
// negative index means "unselected": the default GPU wins, then
// device 0. An explicit index outside the list is the caller's
// mistake and is reported without touching the daemon again. With no
// GPUs published and no explicit index, the zero record launches the
// command with an unmodified environment.
func selectGPU(state control.State, index int) (control.GPURecord, error) {
	if index >= 0 {
		if index >= len(state.GPUs) {
			return control.GPURecord{}, fmt.Errorf(
				"gpu index %d out of range: the daemon reports %d GPUs", index, len(state.GPUs))
		}
		return state.GPUs[index], nil
	}
	for _, record := range state.GPUs {
		if record.Default {
			return record, nil
		}
	}
	if len(state.GPUs) > 0 {
		return state.GPUs[0], nil
	}
	return control.GPURecord{}, nil
}

// mergeEnvironment layers the GPU's "KEY=VALUE" pairs over the base
// environment. Entries shadowed by an override are dropped rather
// than duplicated, and the overrides keep their published order at
// the end.
func mergeEnvironment(base, overrides []string) []string {
	shadowed := make(map[string]bool, len(overrides))
	for _, pair := range overrides {
		if i := strings.IndexByte(pair, '='); i >= 0 {
			shadowed[pair[:i]] = true
		}
	}

	merged := make([]string, 0, len(base)+len(overrides))
	for _, pair := range base {
		if i := strings.IndexByte(pair, '='); i >= 0 && shadowed[pair[:i]] {
			continue
		}
		merged = append(merged, pair)
	}
	return append(merged, overrides...)
}
