// Copyright 2026 The Switcheroo Control Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command-line framework for switcherooctl.
//
// The central type is [Command], which represents a named subcommand with
// optional nested [Command.Subcommands], a [pflag.FlagSet] factory, and a
// Run function. Commands are assembled into a tree in
// cmd/switcherooctl/main.go and dispatched via [Command.Execute], which
// handles flag parsing, subcommand routing, and structured help output
// with examples.
//
// When a user types an unknown subcommand or flag, the framework computes
// Levenshtein edit distance against all known names and suggests the
// closest match (threshold: distance <= 3). This is implemented in
// suggest.go.
//
// Commands that print their own diagnosis and want a bare non-zero exit
// return [ExitError]; main checks for its ExitCode method instead of
// printing a redundant error line. [JSONOutput] is embeddable in a
// command's parameter struct to add a --json flag and machine-readable
// output for scripts.
package cli
