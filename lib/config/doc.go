// Copyright 2026 The Switcheroo Control Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the
// switcheroo-control daemon.
//
// Configuration is read from a single file specified by either the
// SWITCHEROO_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There is no ~/.config discovery and no
// automatic file search; unlike most daemons the file itself is
// optional, because every field has a working default for a bare
// dual-GPU laptop.
//
// Environment variables never override configuration values. The
// only expansion performed is ${VAR} and ${VAR:-default} patterns
// inside path fields after loading, so a file can say
// ${XDG_RUNTIME_DIR:-/run}/switcheroo-control/control.sock and stay
// portable.
//
// Key exports:
//
//   - [Config] -- daemon settings (socket, pci_ids, journal, metrics,
//     devices, log)
//   - [Default] -- returns a Config with the stock defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other switcheroo-control packages.
package config
