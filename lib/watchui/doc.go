// Copyright 2026 The Switcheroo Control Authors
// SPDX-License-Identifier: Apache-2.0

// Package watchui implements the terminal user interface behind
// "switcherooctl watch". Built on bubbletea (Elm architecture), it
// renders the daemon's GPU state as a live list and repaints whenever
// the control socket's watch stream delivers a new state.
//
// The model consumes a plain receive channel of [control.State]; the
// CLI owns the connection and the channel's lifetime. When the channel
// closes (daemon shutdown, socket loss) the viewer keeps the last
// known state on screen behind a disconnect notice instead of tearing
// down the terminal mid-read.
//
// Data flow:
//
//	[control socket watch stream]
//	        | (<-chan control.State)
//	    [Model] <- bubbletea event loop
//	        |
//	  [terminal output]
package watchui
