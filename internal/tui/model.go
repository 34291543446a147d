// Package tui is the operator dashboard served over SSH.
package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cryptothreads/internal/ledger"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
)

const (
	DefaultRefresh = 15 * time.Second
	fetchTimeout   = 10 * time.Second
)

type dataMsg struct {
	status  Status
	entries []ledger.Entry
	err     error
	at      time.Time
}

type tickMsg time.Time

// Model shows rate budgets, quota, the scheduler state and recent threads.
// Tab moves focus between the two tables.
type Model struct {
	src      Source
	username string
	refresh  time.Duration

	budgets table.Model
	threads table.Model
	focus   int

	status  Status
	entries []ledger.Entry
	err     error
	updated time.Time
	loaded  bool

	width, height int
}

func NewModel(src Source, username string) *Model {
	budgets := table.New(
		table.WithColumns([]table.Column{
			{Title: "Service", Width: 12},
			{Title: "Used", Width: 9},
			{Title: "Window", Width: 8},
			{Title: "Waits", Width: 6},
			{Title: "State", Width: 8},
		}),
		table.WithFocused(true),
		table.WithHeight(5),
		table.WithStyles(tableStyles()),
	)
	threads := table.New(
		table.WithColumns([]table.Column{
			{Title: "Published (UTC)", Width: 17},
			{Title: "Posts", Width: 5},
			{Title: "Lead", Width: 10},
			{Title: "Influencers", Width: 36},
		}),
		table.WithHeight(8),
		table.WithStyles(tableStyles()),
	)
	return &Model{
		src:      src,
		username: username,
		refresh:  DefaultRefresh,
		budgets:  budgets,
		threads:  threads,
	}
}

// SetSize fits the tables to the terminal.
func (m *Model) SetSize(width, height int) {
	m.width, m.height = width, height
	if height <= 0 {
		return
	}
	// title, status lines, two section headers, help and borders
	avail := height - 16
	if avail < 6 {
		avail = 6
	}
	m.budgets.SetHeight(min(5, avail/3+1))
	m.threads.SetHeight(avail - m.budgets.Height())
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.fetch(), m.tick())
}

func (m *Model) fetch() tea.Cmd {
	src := m.src
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		msg := dataMsg{at: time.Now()}
		msg.status, msg.err = src.Status(ctx)
		if msg.err != nil {
			return msg
		}
		msg.entries, msg.err = src.Threads(ctx)
		return msg
	}
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, m.fetch()
		case "tab":
			m.toggleFocus()
			return m, nil
		}
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
		return m, nil
	case tickMsg:
		return m, tea.Batch(m.fetch(), m.tick())
	case dataMsg:
		m.apply(msg)
		return m, nil
	}

	var cmd tea.Cmd
	if m.focus == 0 {
		m.budgets, cmd = m.budgets.Update(msg)
	} else {
		m.threads, cmd = m.threads.Update(msg)
	}
	return m, cmd
}

func (m *Model) toggleFocus() {
	m.focus = 1 - m.focus
	if m.focus == 0 {
		m.threads.Blur()
		m.budgets.Focus()
	} else {
		m.budgets.Blur()
		m.threads.Focus()
	}
}

// apply keeps the last good data when a refresh fails.
func (m *Model) apply(msg dataMsg) {
	m.err = msg.err
	if msg.err != nil {
		return
	}
	m.status = msg.status
	m.entries = msg.entries
	m.updated = msg.at
	m.loaded = true

	rows := make([]table.Row, 0, len(msg.status.Budgets))
	for _, b := range msg.status.Budgets {
		state := "ok"
		if b.Waiting {
			state = "waiting"
		}
		rows = append(rows, table.Row{
			b.Service,
			fmt.Sprintf("%d/%d", b.State.Count, b.Limit),
			b.Window.String(),
			strconv.FormatInt(b.Waits, 10),
			state,
		})
	}
	m.budgets.SetRows(rows)

	rows = make([]table.Row, 0, len(msg.entries))
	for _, e := range msg.entries {
		lead := ""
		if len(e.Fingerprints) > 0 {
			lead = e.Fingerprints[0]
			if len(lead) > 8 {
				lead = lead[:8]
			}
		}
		rows = append(rows, table.Row{
			e.Timestamp.UTC().Format("2006-01-02 15:04"),
			strconv.Itoa(len(e.Fingerprints)),
			lead,
			strings.Join(e.Influencers, " "),
		})
	}
	m.threads.SetRows(rows)
}

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("cryptothreads"))
	if m.username != "" {
		b.WriteString("  " + m.username)
	}
	b.WriteString("\n")

	switch {
	case !m.loaded && m.err == nil:
		b.WriteString("\nLoading...\n")
		return b.String()
	case !m.loaded:
		b.WriteString("\n" + errStyle.Render("Error: "+m.err.Error()) + "\n")
		b.WriteString(helpStyle.Render("r: retry • q: quit"))
		return b.String()
	}

	b.WriteString(m.statusLine() + "\n")
	if m.err != nil {
		b.WriteString(warnStyle.Render("Refresh failed: "+m.err.Error()) + "\n")
	}

	b.WriteString(sectionStyle.Render("Rate budgets") + "\n")
	b.WriteString(tableBorder.Render(m.budgets.View()) + "\n")
	b.WriteString(sectionStyle.Render(fmt.Sprintf("Threads, last 48h (%d)", len(m.entries))) + "\n")
	b.WriteString(tableBorder.Render(m.threads.View()) + "\n")
	b.WriteString(helpStyle.Render(fmt.Sprintf("tab: switch table • r: refresh • q: quit • updated %s", m.updated.Format("15:04:05"))))
	return b.String()
}

func (m *Model) statusLine() string {
	var parts []string
	if m.status.CycleRunning {
		parts = append(parts, warnStyle.Render("cycle running"))
	} else {
		parts = append(parts, okStyle.Render("idle"))
	}
	if m.status.QuotaRemaining < 0 {
		parts = append(parts, "quota unlimited")
	} else {
		parts = append(parts, fmt.Sprintf("quota %d left", m.status.QuotaRemaining))
	}
	if last := m.status.LastCycle; last != nil {
		switch {
		case last.Error != "":
			parts = append(parts, errStyle.Render("last cycle failed: "+last.Error))
		case last.Result.Published:
			parts = append(parts, okStyle.Render(fmt.Sprintf("last cycle published %d posts", last.Result.Posts)))
		case last.Result.Skipped != "":
			parts = append(parts, "last cycle skipped ("+last.Result.Skipped+")")
		}
	}
	return strings.Join(parts, " • ")
}
