// Copyright 2026 The Switcheroo Control Authors
// SPDX-License-Identifier: Apache-2.0

package watchui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/xzl01/switcheroo-control/lib/control"
)

// stateMsg wraps a state from the watch stream for delivery through
// the bubbletea message loop.
type stateMsg struct {
	state control.State
}

// streamClosedMsg is sent when the watch stream channel closes: the
// daemon went away or the connection dropped.
type streamClosedMsg struct{}

// updateFadeMsg is sent after a short delay to clear the update accent
// from the summary line.
type updateFadeMsg struct{}

// updateFadeDelay is how long the summary line stays tinted after a
// state change.
const updateFadeDelay = 800 * time.Millisecond

// Model is the top-level bubbletea model for the live GPU state
// viewer.
type Model struct {
	states <-chan control.State
	theme  Theme
	keys   KeyMap

	// Terminal dimensions (set by WindowSizeMsg).
	width  int
	height int
	ready  bool

	// Last state received from the stream. haveState distinguishes
	// "no update yet" from a genuine zero-GPU state.
	state     control.State
	haveState bool

	// Selected GPU row.
	cursor int

	updates      int       // States received so far.
	lastUpdate   time.Time // Arrival time of the most recent state.
	justUpdated  bool      // Summary accent; cleared by updateFadeMsg.
	disconnected bool      // The watch stream channel closed.
}

// NewModel creates a Model reading live states from the given channel.
// The caller owns the channel: typically [control.Client.Watch] feeds
// it, and cancelling that watch closes it.
func NewModel(states <-chan control.State) Model {
	return Model{
		states: states,
		theme:  DefaultTheme,
		keys:   DefaultKeyMap,
	}
}

// Init implements tea.Model. Starts listening on the watch stream.
func (model Model) Init() tea.Cmd {
	return listenForState(model.states)
}

// listenForState returns a tea.Cmd that blocks until the next state
// arrives, then delivers it as a stateMsg. A closed channel becomes a
// streamClosedMsg.
func listenForState(channel <-chan control.State) tea.Cmd {
	return func() tea.Msg {
		state, ok := <-channel
		if !ok {
			return streamClosedMsg{}
		}
		return stateMsg{state: state}
	}
}

// Update implements tea.Model.
func (model Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(message, model.keys.Quit):
			return model, tea.Quit

		case key.Matches(message, model.keys.Up):
			if model.cursor > 0 {
				model.cursor--
			}

		case key.Matches(message, model.keys.Down):
			if model.cursor < len(model.state.GPUs)-1 {
				model.cursor++
			}

		case key.Matches(message, model.keys.Home):
			model.cursor = 0

		case key.Matches(message, model.keys.End):
			if len(model.state.GPUs) > 0 {
				model.cursor = len(model.state.GPUs) - 1
			}
		}

	case tea.WindowSizeMsg:
		model.width = message.Width
		model.height = message.Height
		model.ready = true

	case stateMsg:
		model.state = message.state
		model.haveState = true
		model.updates++
		model.lastUpdate = time.Now()
		model.justUpdated = true
		// An adapter removal can shrink the list out from under the
		// cursor.
		if model.cursor >= len(model.state.GPUs) {
			model.cursor = max(len(model.state.GPUs)-1, 0)
		}
		return model, tea.Batch(
			listenForState(model.states),
			tea.Tick(updateFadeDelay, func(time.Time) tea.Msg {
				return updateFadeMsg{}
			}),
		)

	case updateFadeMsg:
		model.justUpdated = false

	case streamClosedMsg:
		model.disconnected = true
	}
	return model, nil
}

// View implements tea.Model.
func (model Model) View() string {
	if !model.ready {
		return "Loading..."
	}

	var sections []string
	sections = append(sections, model.renderSummary())
	if model.disconnected {
		sections = append(sections, model.renderDisconnectNotice())
	}
	sections = append(sections, "")

	switch {
	case !model.haveState:
		sections = append(sections, lipgloss.NewStyle().
			Foreground(model.theme.FaintText).
			Render("  waiting for the first state from the daemon..."))
	case len(model.state.GPUs) == 0:
		sections = append(sections, lipgloss.NewStyle().
			Foreground(model.theme.FaintText).
			Render("  no GPUs detected"))
	default:
		for index, record := range model.state.GPUs {
			sections = append(sections, model.renderGPU(index, record)...)
		}
	}

	sections = append(sections, "")
	sections = append(sections, model.renderSeparator())
	sections = append(sections, model.renderHelp())
	return strings.Join(sections, "\n")
}

// renderSummary renders the top line: GPU count and whether the
// machine qualifies as a dual-GPU system.
func (model Model) renderSummary() string {
	summary := "connecting"
	if model.haveState {
		switch model.state.NumGPUs {
		case 0:
			summary = "no GPUs"
		case 1:
			summary = "1 GPU"
		default:
			summary = fmt.Sprintf("%d GPUs", model.state.NumGPUs)
		}
		if model.state.HasDualGPU {
			summary += ", dual-GPU system"
		}
	}

	style := lipgloss.NewStyle().
		Bold(true).
		Foreground(model.theme.HeaderForeground)
	if model.justUpdated {
		style = style.Background(model.theme.UpdateAccent)
	}
	return style.Render(" switcheroo-control: " + summary)
}

// renderDisconnectNotice renders the banner shown once the watch
// stream has closed. The last known state stays visible below it.
func (model Model) renderDisconnectNotice() string {
	return lipgloss.NewStyle().
		Foreground(model.theme.DisconnectText).
		Render(" connection to the daemon closed; showing last known state")
}

// renderGPU renders one GPU as a block: a name row with the default
// badge and selection highlight, then its environment variables
// indented beneath it.
func (model Model) renderGPU(index int, record control.GPURecord) []string {
	var row string
	if index == model.cursor {
		// Selected rows are styled as one span so the background
		// covers the badge too.
		line := "> " + record.Name
		if record.Default {
			line += "  [default]"
		}
		row = lipgloss.NewStyle().
			Background(model.theme.SelectedBackground).
			Foreground(model.theme.SelectedForeground).
			Render(line)
	} else {
		row = "  " + lipgloss.NewStyle().
			Foreground(model.theme.NormalText).
			Render(record.Name)
		if record.Default {
			row += "  " + lipgloss.NewStyle().
				Foreground(model.theme.DefaultBadge).
				Render("[default]")
		}
	}

	lines := []string{row}
	faint := lipgloss.NewStyle().Foreground(model.theme.FaintText)
	for _, entry := range record.EnvironmentStrings() {
		lines = append(lines, faint.Render("      "+entry))
	}
	return lines
}

func (model Model) renderSeparator() string {
	return lipgloss.NewStyle().
		Foreground(model.theme.BorderColor).
		Render(strings.Repeat("─", max(model.width, 1)))
}

// renderHelp renders the bottom help bar with the update status
// right-aligned.
func (model Model) renderHelp() string {
	help := "j/k move   g/G top/bottom   q quit"

	status := "waiting for updates"
	switch {
	case model.disconnected:
		status = "stream closed"
	case model.updates == 1:
		status = "updated " + model.lastUpdate.Format("15:04:05")
	case model.updates > 1:
		status = fmt.Sprintf("updated %s (%d updates)",
			model.lastUpdate.Format("15:04:05"), model.updates)
	}

	gap := model.width - lipgloss.Width(help) - lipgloss.Width(status) - 1
	if gap < 1 {
		gap = 1
	}
	return lipgloss.NewStyle().
		Foreground(model.theme.HelpText).
		Render(help + strings.Repeat(" ", gap) + status)
}
