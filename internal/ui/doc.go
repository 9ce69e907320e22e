// Package ui implements an interactive import monitor using bubbletea's Elm architecture.
//
// The TUI walks one import through a multi-view workflow:
//  1. [ConfirmView] : Review the user, platform and files before starting
//  2. [ProgressView] : Follow each pipeline phase with live counters
//  3. [ResultView] : Show the outcome, match rate, resulting data source mode and guidance on failure
//  4. [TopView] : Browse the refreshed top artists and tracks
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Progress comes from a [tasks.Job] subscription, so the view replays every event the job has logged even if it starts late.
//
// Keyboard navigation uses vim-style bindings (j/k, tab, t, esc, y/n, r, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
