package dashboard

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ardnew/nanny/log"
	"github.com/ardnew/nanny/nanny"
)

type fakeSource struct {
	apps    map[string]nanny.Info
	listErr error
	calls   []string
}

func (f *fakeSource) List(context.Context) (map[string]nanny.Info, error) {
	return f.apps, f.listErr
}

func (f *fakeSource) Start(_ context.Context, name string) (int, error) {
	f.calls = append(f.calls, "start "+name)

	return 8080, nil
}

func (f *fakeSource) Stop(_ context.Context, name string) error {
	f.calls = append(f.calls, "stop "+name)

	return nil
}

func (f *fakeSource) Restart(_ context.Context, name string) (int, error) {
	f.calls = append(f.calls, "restart "+name)

	return 0, errors.New("pull failed")
}

func newFake() *fakeSource {
	return &fakeSource{apps: map[string]nanny.Info{
		"gamma":  {Name: "gamma", Kind: nanny.KindGradio},
		"alpha":  {Name: "alpha", Kind: nanny.KindFlask, Running: true, Port: 8081, Uptime: 60},
		"beta":   {Name: "beta", Kind: nanny.KindVoila},
		"alpine": {Name: "alpine", Kind: nanny.KindCommand},
	}}
}

func testModel(t *testing.T, src Source) model {
	t.Helper()

	m := newModel(t.Context(), src, 0, log.Make(io.Discard))

	// Load the apps synchronously.
	next, _ := m.Update(m.fetch()())

	return next.(model)
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

func press(m model, keys ...string) (model, tea.Cmd) {
	var cmd tea.Cmd

	for _, k := range keys {
		var next tea.Model

		next, cmd = m.Update(key(k))
		m = next.(model)
	}

	return m, cmd
}

func names(m model) []string {
	out := make([]string, 0, len(m.matches))
	for _, match := range m.matches {
		out = append(out, m.apps[match.Index].Name)
	}

	return out
}

func TestModel_LoadsSorted(t *testing.T) {
	m := testModel(t, newFake())

	if got := strings.Join(names(m), ","); got != "alpha,alpine,beta,gamma" {
		t.Errorf("rows = %s", got)
	}

	if m.loading {
		t.Error("loading should be cleared after a refresh")
	}

	if m.refresh != DefaultRefresh {
		t.Errorf("refresh = %v, want default", m.refresh)
	}
}

func TestModel_Filter(t *testing.T) {
	m := testModel(t, newFake())

	m, _ = press(m, "/", "a", "l", "p")

	if !m.filtering {
		t.Fatal("should be filtering")
	}

	got := names(m)
	if len(got) != 2 || !strings.HasPrefix(got[0], "alp") || !strings.HasPrefix(got[1], "alp") {
		t.Errorf("filtered rows = %q", got)
	}

	// Enter keeps the filter, esc clears it.
	m, _ = press(m, "enter")
	if m.filtering || len(m.matches) != 2 {
		t.Errorf("after enter: filtering=%v rows=%d", m.filtering, len(m.matches))
	}

	m, _ = press(m, "esc")
	if len(m.matches) != 4 {
		t.Errorf("after esc: rows=%d", len(m.matches))
	}
}

func TestModel_Actions(t *testing.T) {
	src := newFake()
	m := testModel(t, src)

	m, cmd := press(m, "down", "s")
	if cmd == nil {
		t.Fatal("start should return a command")
	}

	next, _ := m.Update(cmd())
	m = next.(model)

	if m.failed || m.status != "start alpine on port 8080" {
		t.Errorf("status = %q failed=%v", m.status, m.failed)
	}

	m, cmd = press(m, "j", "r")
	next, _ = m.Update(cmd())
	m = next.(model)

	if !m.failed || !strings.Contains(m.status, "pull failed") {
		t.Errorf("status = %q failed=%v", m.status, m.failed)
	}

	m, cmd = press(m, "k", "k", "k", "x")
	_ = cmd()

	want := "start alpine,restart beta,stop alpha"
	if got := strings.Join(src.calls, ","); got != want {
		t.Errorf("calls = %s, want %s", got, want)
	}
}

func TestModel_RefreshError(t *testing.T) {
	src := newFake()
	m := testModel(t, src)

	src.listErr = errors.New("connection refused")

	next, _ := m.Update(m.fetch()())
	m = next.(model)

	if !m.failed || !strings.Contains(m.status, "connection refused") {
		t.Errorf("status = %q", m.status)
	}

	if len(m.matches) != 4 {
		t.Error("a failed refresh should keep the previous rows")
	}
}

func TestModel_View(t *testing.T) {
	m := testModel(t, newFake())

	view := m.View()

	for _, want := range []string{"NAME", "alpha", "running", "8081", "1m0s", "stopped", "q quit"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}

	m, cmd := press(m, "q")
	if cmd == nil || m.View() != "" {
		t.Error("q should quit and clear the view")
	}
}

func TestModel_EmptySelection(t *testing.T) {
	m := testModel(t, &fakeSource{})

	if _, cmd := press(m, "s"); cmd != nil {
		t.Error("actions with no apps should do nothing")
	}

	if !strings.Contains(m.View(), "no apps") {
		t.Error("empty view should say so")
	}
}
