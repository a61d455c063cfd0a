// Copyright 2026 The Switcheroo Control Authors
// SPDX-License-Identifier: Apache-2.0

// Switcherooctl is the query and launch client for the
// switcheroo-control daemon. It lists the GPUs the daemon has
// classified, launches programs with the environment variables that
// route them to a chosen GPU, and follows state changes live.
//
// All commands talk to the daemon over its Unix control socket; pass
// --socket to reach a daemon on a non-default path.
package main
