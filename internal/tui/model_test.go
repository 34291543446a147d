package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"cryptothreads/internal/job"
	"cryptothreads/internal/ledger"
	"cryptothreads/internal/ratebudget"
	"cryptothreads/internal/service"

	tea "github.com/charmbracelet/bubbletea"
)

type sourceStub struct {
	status  Status
	entries []ledger.Entry
	err     error
}

func (s sourceStub) Threads(context.Context) ([]ledger.Entry, error) { return s.entries, s.err }
func (s sourceStub) Status(context.Context) (Status, error)          { return s.status, s.err }

func sampleSource() sourceStub {
	return sourceStub{
		status: Status{
			Budgets:        []ratebudget.Status{{Service: "coingecko", Limit: 30, Window: time.Minute, State: ratebudget.State{Count: 3}}},
			QuotaRemaining: 412,
			LastCycle:      &job.LastRun{Result: service.CycleResult{Published: true, Posts: 12}},
		},
		entries: []ledger.Entry{{
			Timestamp:    time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC),
			Fingerprints: []string{"0123456789abcdef", "ff"},
			Influencers:  []string{"@xrpnews", "@hbar"},
		}},
	}
}

func TestModelLoadingView(t *testing.T) {
	m := NewModel(sampleSource(), "ops")
	if !strings.Contains(m.View(), "Loading") {
		t.Fatalf("expected loading view, got %q", m.View())
	}
}

func TestModelFetchPopulatesTables(t *testing.T) {
	m := NewModel(sampleSource(), "ops")
	msg := m.fetch()()
	if _, ok := msg.(dataMsg); !ok {
		t.Fatalf("expected dataMsg, got %T", msg)
	}
	m.Update(msg)

	view := m.View()
	for _, want := range []string{"quota 412 left", "last cycle published 12 posts", "coingecko", "3/30", "2026-05-04 12:00", "01234567", "@xrpnews @hbar"} {
		if !strings.Contains(view, want) {
			t.Fatalf("expected %q in view:\n%s", want, view)
		}
	}
}

func TestModelKeepsDataOnRefreshError(t *testing.T) {
	m := NewModel(sampleSource(), "ops")
	m.Update(m.fetch()())
	m.Update(dataMsg{err: errors.New("connection refused")})

	view := m.View()
	if !strings.Contains(view, "Refresh failed: connection refused") || !strings.Contains(view, "coingecko") {
		t.Fatalf("expected stale data with warning:\n%s", view)
	}
}

func TestModelInitialErrorView(t *testing.T) {
	m := NewModel(sourceStub{err: errors.New("boom")}, "")
	m.Update(m.fetch()())
	if !strings.Contains(m.View(), "Error: boom") {
		t.Fatalf("unexpected view: %s", m.View())
	}
}

func TestModelKeys(t *testing.T) {
	m := NewModel(sampleSource(), "ops")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("expected tea.QuitMsg")
	}

	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	if m.focus != 1 || !m.threads.Focused() || m.budgets.Focused() {
		t.Fatal("tab should move focus to the threads table")
	}

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	if cmd == nil {
		t.Fatal("expected refresh command")
	}
}

func TestModelSetSize(t *testing.T) {
	m := NewModel(sampleSource(), "ops")
	m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	if m.width != 120 || m.threads.Height() <= m.budgets.Height() {
		t.Fatalf("unexpected sizing: budgets=%d threads=%d", m.budgets.Height(), m.threads.Height())
	}
}
