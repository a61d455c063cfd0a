// Copyright 2026 The Switcheroo Control Authors
// SPDX-License-Identifier: Apache-2.0

package watchui

import "github.com/charmbracelet/lipgloss"

// Theme defines the color palette for the live state viewer. All
// colors use lipgloss ANSI 256-color codes for broad terminal
// compatibility.
type Theme struct {
	// Text colors.
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	// Selected GPU row.
	SelectedBackground lipgloss.Color
	SelectedForeground lipgloss.Color

	// UI chrome.
	HeaderForeground lipgloss.Color
	BorderColor      lipgloss.Color
	HelpText         lipgloss.Color

	// DefaultBadge colors the "[default]" marker on the default GPU.
	DefaultBadge lipgloss.Color

	// UpdateAccent is the background tint applied to the summary line
	// right after a state change, so updates register even when the
	// visible values did not move.
	UpdateAccent lipgloss.Color

	// DisconnectText colors the banner shown when the watch stream
	// closes.
	DisconnectText lipgloss.Color
}

// DefaultTheme is the built-in dark-terminal color scheme. Designed
// for 256-color terminals with a dark background.
var DefaultTheme = Theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("245"),

	SelectedBackground: lipgloss.Color("236"),
	SelectedForeground: lipgloss.Color("255"),

	HeaderForeground: lipgloss.Color("255"),
	BorderColor:      lipgloss.Color("240"),
	HelpText:         lipgloss.Color("241"),

	DefaultBadge:   lipgloss.Color("114"), // green
	UpdateAccent:   lipgloss.Color("58"),  // dark amber background tint
	DisconnectText: lipgloss.Color("196"), // red
}
