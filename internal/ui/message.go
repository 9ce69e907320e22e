package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/histx/internal/models"
	"github.com/desertthunder/histx/internal/repositories"
	"github.com/desertthunder/histx/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgImportStarted MsgKind = iota
	MsgProgressUpdate
	MsgImportComplete
	MsgTopFetched
)

type importStarted struct {
	job *tasks.Job
	err error
}

type topFetched struct {
	artists []repositories.ArtistCount
	tracks  []repositories.TrackCount
	err     error
}

// importStartedMsg is the constructor for [MsgImportStarted]
func importStartedMsg(job *tasks.Job, err error) Msg {
	return Msg{kind: MsgImportStarted, data: importStarted{job, err}}
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// importCompleteMsg is the constructor for [MsgImportComplete]
func importCompleteMsg(result models.ImportResult) Msg {
	return Msg{kind: MsgImportComplete, data: result}
}

// topFetchedMsg is the constructor for [MsgTopFetched]
func topFetchedMsg(artists []repositories.ArtistCount, tracks []repositories.TrackCount, err error) Msg {
	return Msg{kind: MsgTopFetched, data: topFetched{artists, tracks, err}}
}
