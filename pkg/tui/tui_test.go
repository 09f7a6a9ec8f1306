package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dd0wney/cluso-epinet/pkg/disease"
	"github.com/dd0wney/cluso-epinet/pkg/pubsub"
)

func send(m Model, msg tea.Msg) (Model, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func TestModel_TracksSeeds(t *testing.T) {
	m := New("run-1", 2, make(chan pubsub.Event), nil)
	m, _ = send(m, tea.WindowSizeMsg{Width: 120, Height: 40})

	var c disease.Counts
	c[disease.Susceptible] = 90
	c[disease.Exposed] = 6
	c[disease.Symptomatic] = 4

	now := time.Now()
	for _, ev := range []pubsub.Event{
		{Kind: pubsub.SeedStarted, Seed: 0, Total: 10, At: now},
		{Kind: pubsub.TimestepDone, Seed: 0, Timestep: 5, Total: 10, Counts: c, At: now},
		{Kind: pubsub.SeedStarted, Seed: 1, Total: 10, At: now},
		{Kind: pubsub.SeedFinished, Seed: 1, Total: 10, Status: "failed", Err: "no wards", At: now},
	} {
		m, _ = send(m, eventMsg(ev))
	}

	if got := m.Finished(); got != 1 {
		t.Errorf("Finished() = %d, want 1", got)
	}
	if got := m.Fraction(); got != 0.75 {
		t.Errorf("Fraction() = %g, want 0.75", got)
	}

	out := m.View()
	for _, want := range []string{"run-1", "1/2 seeds finished", "5/10", "seed 1 failed: no wards"} {
		if !strings.Contains(out, want) {
			t.Errorf("view missing %q", want)
		}
	}

	m, _ = send(m, tea.KeyMsg{Type: tea.KeyTab})
	if !strings.Contains(m.View(), "Symptomatic") {
		t.Error("compartments view should list states")
	}
}

func TestModel_QuitsWhenRunFinishes(t *testing.T) {
	m := New("run-2", 1, make(chan pubsub.Event), nil)
	m, cmd := send(m, eventMsg(pubsub.Event{Kind: pubsub.RunFinished}))
	if !m.done {
		t.Fatal("model should be done")
	}
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}

func TestModel_QuitCancelsRun(t *testing.T) {
	cancelled := false
	m := New("run-3", 3, make(chan pubsub.Event), func() { cancelled = true })
	m, _ = send(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if !cancelled || !m.Cancelled() {
		t.Error("quitting an unfinished batch should cancel it")
	}
}

func TestWaitForEvent_Closed(t *testing.T) {
	ch := make(chan pubsub.Event)
	close(ch)
	if _, ok := waitForEvent(ch)().(closedMsg); !ok {
		t.Error("closed channel should yield closedMsg")
	}
}
