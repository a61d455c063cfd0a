// Copyright 2026 The Switcheroo Control Authors
// SPDX-License-Identifier: Apache-2.0

// Package logging builds the process-wide structured logger.
package logging

import (
	"log/slog"
	"os"

	"golang.org/x/term"
)

// New creates the logger for a daemon or CLI process. level is one of
// debug, info, warn, error; format is text, json, or auto. Auto picks
// text when stderr is a terminal and JSON when piped or redirected
// (scripts, service managers, log shippers), matching the daemon's
// machine-parseable output either way the process is run.
//
// Unrecognized values fall back to info and auto: logging has to come
// up even when its own configuration is wrong.
func New(level, format string) *slog.Logger {
	options := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	switch format {
	case "text":
		handler = slog.NewTextHandler(os.Stderr, options)
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, options)
	default:
		if term.IsTerminal(int(os.Stderr.Fd())) {
			handler = slog.NewTextHandler(os.Stderr, options)
		} else {
			handler = slog.NewJSONHandler(os.Stderr, options)
		}
	}
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
