package ui

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/histx/internal/formatter"
	"github.com/desertthunder/histx/internal/importer"
	"github.com/desertthunder/histx/internal/models"
	"github.com/desertthunder/histx/internal/repositories"
	"github.com/desertthunder/histx/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	ConfirmView ViewState = iota
	ProgressView
	ResultView
	TopView
)

// TopLoader fetches a user's current rankings.
type TopLoader func(ctx context.Context, userID string) ([]repositories.ArtistCount, []repositories.TrackCount, error)

// Model represents the TUI application state.
type Model struct {
	ctx     context.Context
	view    ViewState
	runner  *tasks.JobRunner
	req     tasks.Request
	cleanup func()
	loadTop TopLoader
	width   int
	height  int

	job      *tasks.Job
	events   <-chan tasks.ProgressUpdate
	phases   map[tasks.Phase]tasks.ProgressUpdate
	current  tasks.Phase
	progress tasks.ProgressUpdate
	result   *models.ImportResult
	err      error

	topLists   [2]list.Model
	topTab     int
	topFetched bool

	spinner spinner.Model
	help    help.Model
	keys    keyMap
}

// NewModel creates a new TUI model for one import request. cleanup runs when the job finishes; loadTop may be nil.
func NewModel(ctx context.Context, runner *tasks.JobRunner, req tasks.Request, cleanup func(), loadTop TopLoader) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.title.UnsetMarginBottom()

	return &Model{
		ctx:     ctx,
		view:    ConfirmView,
		runner:  runner,
		req:     req,
		cleanup: cleanup,
		loadTop: loadTop,
		phases:  map[tasks.Phase]tasks.ProgressUpdate{},
		spinner: s,
		help:    help.New(),
		keys:    newKeyMap(),
	}
}

// Result returns the terminal import result, if the import finished.
func (m *Model) Result() (models.ImportResult, bool) {
	if m.result == nil {
		return models.ImportResult{}, false
	}
	return *m.result, true
}

// Err returns the error that prevented the import from starting.
func (m *Model) Err() error { return m.err }

// Job returns the submitted job, or nil when the import was never confirmed.
func (m *Model) Job() *tasks.Job { return m.job }

// Init starts the spinner; the import waits for confirmation.
func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		for i := range m.topLists {
			m.topLists[i].SetSize(msg.Width-4, msg.Height-8)
		}
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case ProgressView:
			if key.Matches(msg, m.keys.quit) {
				return m, tea.Quit
			}
			return m, nil
		case ResultView:
			return m.handleResultKeys(msg)
		case TopView:
			return m.handleTopKeys(msg)
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case Msg:
		return m.handleMsg(msg)
	}

	return m, nil
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgImportStarted:
		d := msg.data.(importStarted)
		if d.err != nil {
			m.err = d.err
			m.view = ResultView
			return m, nil
		}
		m.job = d.job
		m.events = d.job.Subscribe(m.ctx, 0)
		return m, m.waitForProgress()

	case MsgProgressUpdate:
		u := msg.data.(tasks.ProgressUpdate)
		m.progress = u
		m.current = u.Phase
		m.phases[u.Phase] = u
		return m, m.waitForProgress()

	case MsgImportComplete:
		res := msg.data.(models.ImportResult)
		m.result = &res
		m.events = nil
		m.view = ResultView
		return m, nil

	case MsgTopFetched:
		d := msg.data.(topFetched)
		m.topFetched = true
		if d.err != nil {
			m.err = d.err
			return m, nil
		}
		m.topLists[0] = m.newTopList("Top artists", artistItems(d.artists))
		m.topLists[1] = m.newTopList("Top tracks", trackItems(d.tracks))
		return m, nil
	}
	return m, nil
}

func (m *Model) newTopList(title string, items []list.Item) list.Model {
	l := list.New(items, list.NewDefaultDelegate(), m.width-4, m.height-8)
	l.Title = title
	l.SetShowStatusBar(false)
	return l
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case ConfirmView:
		return m.renderConfirm()
	case ProgressView:
		return m.renderProgress()
	case ResultView:
		return m.renderResult()
	case TopView:
		return m.renderTop()
	default:
		return ""
	}
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit), key.Matches(msg, m.keys.no):
		if m.cleanup != nil {
			m.cleanup()
			m.cleanup = nil
		}
		return m, tea.Quit
	case key.Matches(msg, m.keys.yes):
		m.view = ProgressView
		return m, m.startImport()
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.top):
		if m.loadTop == nil || m.result == nil || m.result.Status != models.StatusSuccess {
			return m, nil
		}
		m.view = TopView
		if !m.topFetched {
			return m, m.fetchTop()
		}
	}
	return m, nil
}

func (m *Model) handleTopKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = ResultView
		return m, nil
	case key.Matches(msg, m.keys.tab):
		m.topTab = (m.topTab + 1) % len(m.topLists)
		return m, nil
	}

	if !m.topFetched {
		return m, nil
	}
	var cmd tea.Cmd
	m.topLists[m.topTab], cmd = m.topLists[m.topTab].Update(msg)
	return m, cmd
}

func (m *Model) startImport() tea.Cmd {
	return func() tea.Msg {
		job, err := m.runner.Submit(m.req, m.cleanup)
		if err != nil && m.cleanup != nil {
			m.cleanup()
		}
		return importStartedMsg(job, err)
	}
}

func (m *Model) waitForProgress() tea.Cmd {
	events, job := m.events, m.job
	return func() tea.Msg {
		update, ok := <-events
		if !ok {
			res, _ := job.Result()
			return importCompleteMsg(res)
		}
		return progressUpdateMsg(update)
	}
}

func (m *Model) fetchTop() tea.Cmd {
	return func() tea.Msg {
		artists, tracks, err := m.loadTop(m.ctx, m.req.UserID)
		return topFetchedMsg(artists, tracks, err)
	}
}

func (m *Model) renderConfirm() string {
	title := styles.title.Render(fmt.Sprintf("Import %s history for %s?", m.req.Platform.DisplayName(), m.req.UserID))

	var b strings.Builder
	fmt.Fprintf(&b, "Files: %d\n", len(m.req.Files))
	for _, f := range m.req.Files {
		fmt.Fprintf(&b, "  • %s\n", filepath.Base(f.Name))
	}

	helpView := m.help.ShortHelpView([]key.Binding{m.keys.yes, m.keys.no, m.keys.quit})
	return fmt.Sprintf("%s\n%s\n%s", title, b.String(), helpView)
}

// pipelinePhases lists the stages this import goes through.
func (m *Model) pipelinePhases() []tasks.Phase {
	resolves := false
	if p, err := importer.For(m.req.Platform); err == nil {
		resolves = p.NeedsResolution()
	}
	out := make([]tasks.Phase, 0, len(tasks.Phases))
	for _, ph := range tasks.Phases {
		if ph == tasks.PhaseResolve && !resolves {
			continue
		}
		out = append(out, ph)
	}
	return out
}

func (m *Model) renderProgress() string {
	title := styles.title.Render(fmt.Sprintf("Importing %s history", m.req.Platform.DisplayName()))

	var b strings.Builder
	for _, ph := range m.pipelinePhases() {
		u, seen := m.phases[ph]
		switch {
		case seen && ph < m.current:
			fmt.Fprintf(&b, "%s %s\n", styles.ok.Render("✓"), u.Message)
		case seen:
			fmt.Fprintf(&b, "%s %s\n", m.spinner.View(), u.Message)
		default:
			fmt.Fprintf(&b, "%s\n", styles.dim.Render("· "+ph.String()))
		}
	}

	c := m.progress.Counts
	counts := styles.help.Render(fmt.Sprintf("records %d • canonical %d • duplicates %d • new %d",
		c.Records, c.Canonical, c.Duplicates, c.Accepted))

	return fmt.Sprintf("%s\n%s\n%s", title, b.String(), counts)
}

func (m *Model) renderResult() string {
	if m.err != nil && m.result == nil {
		return styles.err.Render(fmt.Sprintf("Import could not start: %v\n\nPress q to quit", m.err))
	}
	if m.result == nil {
		return styles.err.Render("No result available\n\nPress q to quit")
	}

	res := *m.result
	var title string
	if res.Status.Failed() {
		title = styles.err.Render(fmt.Sprintf("✗ Import failed (%s)", res.Status))
	} else {
		title = styles.ok.Render("✓ Import complete")
	}

	body := string(formatter.ResultToText(res))
	if res.Status.Failed() && res.Guidance != "" {
		body = strings.Replace(body, res.Guidance, styles.warn.Render(res.Guidance), 1)
	}

	keys := []key.Binding{m.keys.quit}
	if m.loadTop != nil && res.Status == models.StatusSuccess {
		keys = []key.Binding{m.keys.top, m.keys.quit}
	}
	return fmt.Sprintf("%s\n\n%s\n%s", title, body, m.help.ShortHelpView(keys))
}

func (m *Model) renderTop() string {
	if !m.topFetched {
		return fmt.Sprintf("%s Loading top lists...", m.spinner.View())
	}
	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Failed to load top lists: %v\n\nPress esc to go back", m.err))
	}
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.tab, m.keys.back, m.keys.quit})
	return fmt.Sprintf("%s\n\n%s", m.topLists[m.topTab].View(), helpView)
}
