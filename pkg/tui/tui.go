// Package tui renders live batch progress in the terminal. It consumes the
// progress events published by the Monte Carlo driver.
package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dd0wney/cluso-epinet/pkg/disease"
	"github.com/dd0wney/cluso-epinet/pkg/pubsub"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF00FF")).
			MarginLeft(2).
			MarginTop(1)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#FF00FF")).
			Padding(0, 2)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#666666")).
				Padding(0, 2)

	contentStyle = lipgloss.NewStyle().
			MarginLeft(2).
			MarginTop(1)

	statsBoxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00FF00")).
			Padding(1, 2).
			MarginRight(2)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			MarginTop(1).
			MarginLeft(2)
)

type view int

const (
	seedsView view = iota
	compartmentsView
	numViews
)

type keyMap struct {
	Tab      key.Binding
	ShiftTab key.Binding
	Up       key.Binding
	Down     key.Binding
	Quit     key.Binding
}

var keys = keyMap{
	Tab: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "next view"),
	),
	ShiftTab: key.NewBinding(
		key.WithKeys("shift+tab"),
		key.WithHelp("shift+tab", "prev view"),
	),
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "cancel and quit"),
	),
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Tab, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Tab, k.ShiftTab},
		{k.Up, k.Down},
		{k.Quit},
	}
}

type seedRow struct {
	seed     int64
	status   string
	timestep int
	total    int
	counts   disease.Counts
	err      string
	started  time.Time
	finished time.Time
}

// Model is the bubbletea model for a running batch.
type Model struct {
	runID      string
	totalSeeds int
	events     <-chan pubsub.Event
	cancel     func()

	seeds       map[int64]*seedRow
	currentView view
	bar         progress.Model
	seedTable   table.Model
	help        help.Model
	keys        keyMap
	width       int
	startTime   time.Time
	done        bool
	cancelled   bool
}

type eventMsg pubsub.Event

type closedMsg struct{}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitForEvent(ch <-chan pubsub.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return closedMsg{}
		}
		return eventMsg(ev)
	}
}

// New returns a model for a batch of totalSeeds seeds. cancel is called
// when the user quits before the batch finishes.
func New(runID string, totalSeeds int, events <-chan pubsub.Event, cancel func()) Model {
	columns := []table.Column{
		{Title: "Seed", Width: 8},
		{Title: "Status", Width: 11},
		{Title: "Step", Width: 10},
		{Title: "S", Width: 7},
		{Title: "E", Width: 7},
		{Title: "I", Width: 7},
		{Title: "R", Width: 7},
		{Title: "D", Width: 7},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(12),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("#00FFFF")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(lipgloss.Color("#FF00FF")).
		Bold(false)
	t.SetStyles(s)

	if cancel == nil {
		cancel = func() {}
	}
	return Model{
		runID:      runID,
		totalSeeds: totalSeeds,
		events:     events,
		cancel:     cancel,
		seeds:      make(map[int64]*seedRow),
		bar:        progress.New(progress.WithDefaultGradient(), progress.WithWidth(50)),
		seedTable:  t,
		help:       help.New(),
		keys:       keys,
		startTime:  time.Now(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.events), tickCmd())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		m.bar.Width = min(max(msg.Width-20, 10), 80)

	case tickMsg:
		if m.done {
			return m, nil
		}
		return m, tickCmd()

	case eventMsg:
		m.apply(pubsub.Event(msg))
		if m.done {
			return m, tea.Quit
		}
		return m, waitForEvent(m.events)

	case closedMsg:
		m.done = true
		return m, tea.Quit

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			if !m.done {
				m.cancelled = true
				m.cancel()
			}
			return m, tea.Quit
		case key.Matches(msg, m.keys.Tab):
			m.currentView = (m.currentView + 1) % numViews
		case key.Matches(msg, m.keys.ShiftTab):
			m.currentView = (m.currentView + numViews - 1) % numViews
		}
	}

	if m.currentView == seedsView {
		m.seedTable, cmd = m.seedTable.Update(msg)
	}
	return m, cmd
}

// apply folds one progress event into the model.
func (m *Model) apply(ev pubsub.Event) {
	if ev.Kind == pubsub.RunFinished {
		m.done = true
		return
	}
	row, ok := m.seeds[ev.Seed]
	if !ok {
		row = &seedRow{seed: ev.Seed, status: "queued", started: ev.At}
		m.seeds[ev.Seed] = row
	}
	row.total = ev.Total

	switch ev.Kind {
	case pubsub.SeedStarted:
		row.status = "running"
		row.started = ev.At
	case pubsub.TimestepDone:
		row.status = "running"
		row.timestep = ev.Timestep
		row.counts = ev.Counts
	case pubsub.SeedFinished:
		row.status = ev.Status
		row.err = ev.Err
		row.finished = ev.At
	}
	m.seedTable.SetRows(m.rows())
}

func (m Model) sortedSeeds() []*seedRow {
	out := make([]*seedRow, 0, len(m.seeds))
	for _, r := range m.seeds {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seed < out[j].seed })
	return out
}

func (m Model) rows() []table.Row {
	var rows []table.Row
	for _, r := range m.sortedSeeds() {
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", r.seed),
			r.status,
			fmt.Sprintf("%d/%d", r.timestep, r.total),
			fmt.Sprintf("%d", r.counts[disease.Susceptible]),
			fmt.Sprintf("%d", r.counts[disease.Exposed]),
			fmt.Sprintf("%d", r.counts.Infectious()),
			fmt.Sprintf("%d", r.counts[disease.Recovered]),
			fmt.Sprintf("%d", r.counts[disease.Deceased]),
		})
	}
	return rows
}

// Fraction is the share of the batch that has been simulated. A finished
// seed counts in full whatever its horizon.
func (m Model) Fraction() float64 {
	if m.totalSeeds == 0 {
		return 0
	}
	var done float64
	for _, r := range m.seeds {
		switch {
		case r.status != "running" && r.status != "queued":
			done++
		case r.total > 0:
			done += float64(r.timestep) / float64(r.total)
		}
	}
	return min(1, done/float64(m.totalSeeds))
}

// Finished returns the number of seeds that reported a final status.
func (m Model) Finished() int {
	n := 0
	for _, r := range m.seeds {
		if r.status != "running" && r.status != "queued" {
			n++
		}
	}
	return n
}

// Cancelled reports whether the user quit before the batch finished.
func (m Model) Cancelled() bool { return m.cancelled }

func (m Model) View() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("epinet - Monte Carlo run " + m.runID))
	s.WriteString("\n\n")
	s.WriteString(m.renderTabs())
	s.WriteString("\n\n")

	s.WriteString(contentStyle.Render(m.bar.ViewAs(m.Fraction())))
	s.WriteString("\n")
	s.WriteString(contentStyle.Render(fmt.Sprintf("%d/%d seeds finished  elapsed %s",
		m.Finished(), m.totalSeeds, time.Since(m.startTime).Round(time.Second))))
	s.WriteString("\n")

	switch m.currentView {
	case seedsView:
		s.WriteString(contentStyle.Render(m.seedTable.View()))
	case compartmentsView:
		s.WriteString(m.renderCompartments())
	}

	for _, r := range m.sortedSeeds() {
		if r.err != "" {
			s.WriteString("\n")
			s.WriteString(errorStyle.Render(fmt.Sprintf("  ✗ seed %d %s: %s", r.seed, r.status, r.err)))
		}
	}
	if m.done {
		s.WriteString("\n\n")
		s.WriteString(successStyle.Render("  ✓ batch finished"))
	}

	s.WriteString("\n\n")
	s.WriteString(helpStyle.Render(m.help.ShortHelpView(m.keys.ShortHelp())))
	return s.String()
}

func (m Model) renderTabs() string {
	tabs := []string{"Seeds", "Compartments"}
	var rendered []string
	for i, tab := range tabs {
		if view(i) == m.currentView {
			rendered = append(rendered, activeTabStyle.Render(tab))
		} else {
			rendered = append(rendered, inactiveTabStyle.Render(tab))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
}

// renderCompartments sums the latest counts of every seed.
func (m Model) renderCompartments() string {
	var total disease.Counts
	for _, r := range m.seeds {
		for i, v := range r.counts {
			total[i] += v
		}
	}
	var b strings.Builder
	b.WriteString("Latest counts (all seeds)\n")
	for _, state := range disease.AllStates {
		fmt.Fprintf(&b, "%-15s %8d\n", state.String(), total[state])
	}
	return contentStyle.Render(statsBoxStyle.Render(strings.TrimRight(b.String(), "\n")))
}
