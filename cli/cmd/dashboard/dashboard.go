package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/lipgloss"
	"github.com/sahilm/fuzzy"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ardnew/nanny/log"
	"github.com/ardnew/nanny/nanny"
)

// Source is the server the dashboard reads from and acts on.
type Source interface {
	List(ctx context.Context) (map[string]nanny.Info, error)
	Start(ctx context.Context, name string) (int, error)
	Stop(ctx context.Context, name string) error
	Restart(ctx context.Context, name string) (int, error)
}

// DefaultRefresh is the interval between automatic refreshes.
const DefaultRefresh = 30 * time.Second

// appsMsg carries the result of a refresh.
type appsMsg struct {
	apps []nanny.Info
	err  error
}

// tickMsg triggers an automatic refresh.
type tickMsg time.Time

// actionMsg carries the result of a lifecycle action.
type actionMsg struct {
	verb string
	name string
	port int
	err  error
}

// Styles.
var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("6")).
			Bold(true)
	headerStyle    = lipgloss.NewStyle().Bold(true)
	runningStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	stoppedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	resultStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	hintStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("4")).
			Bold(true)
	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("4"))
)

// apps implements [fuzzy.Source] over app names.
type apps []nanny.Info

func (a apps) String(i int) string { return a[i].Name }

func (a apps) Len() int { return len(a) }

// model is the Bubble Tea model for the dashboard.
type model struct {
	ctxFunc   func() context.Context
	src       Source
	logger    log.Logger
	refresh   time.Duration
	apps      apps
	matches   fuzzy.Matches // visible rows, best match first when filtering
	filter    textinput.Model
	filtering bool
	cursor    int
	status    string
	failed    bool
	loading   bool
	width     int
	quitting  bool
}

// Run starts the dashboard and blocks until the user quits or ctx is done.
func Run(
	ctx context.Context,
	src Source,
	refresh time.Duration,
	logger log.Logger,
) error {
	logger.TraceContext(ctx, "dashboard start", slog.Duration("refresh", refresh))

	p := tea.NewProgram(newModel(ctx, src, refresh, logger), tea.WithContext(ctx))
	_, err := p.Run()

	return err
}

const defaultWidth = 80

func newModel(
	ctx context.Context,
	src Source,
	refresh time.Duration,
	logger log.Logger,
) model {
	if refresh <= 0 {
		refresh = DefaultRefresh
	}

	ti := textinput.New()
	ti.Prompt = "/"
	ti.CharLimit = 64
	ti.Placeholder = "filter by name"

	return model{
		ctxFunc: func() context.Context { return ctx },
		src:     src,
		logger:  logger,
		refresh: refresh,
		filter:  ti,
		loading: true,
		width:   defaultWidth,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.fetch(), m.tick())
}

// fetch lists the apps in the background.
func (m model) fetch() tea.Cmd {
	ctx, src := m.ctxFunc(), m.src

	return func() tea.Msg {
		infos, err := src.List(ctx)
		if err != nil {
			return appsMsg{err: err}
		}

		list := make(apps, 0, len(infos))
		for _, name := range slices.Sorted(maps.Keys(infos)) {
			list = append(list, infos[name])
		}

		return appsMsg{apps: list}
	}
}

func (m model) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// act runs a lifecycle action on the named app in the background.
func (m model) act(verb, name string) tea.Cmd {
	ctx, src := m.ctxFunc(), m.src

	return func() tea.Msg {
		msg := actionMsg{verb: verb, name: name}

		switch verb {
		case "start":
			msg.port, msg.err = src.Start(ctx, name)
		case "stop":
			msg.err = src.Stop(ctx, name)
		case "restart":
			msg.port, msg.err = src.Restart(ctx, name)
		}

		return msg
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width

		return m, nil

	case appsMsg:
		m.loading = false

		if msg.err != nil {
			m.setStatus("refresh failed: "+msg.err.Error(), true)

			return m, nil
		}

		m.apps = msg.apps
		m.refilter()

		return m, nil

	case tickMsg:
		return m, tea.Batch(m.fetch(), m.tick())

	case actionMsg:
		m.logger.DebugContext(m.ctxFunc(), "dashboard action",
			slog.String("verb", msg.verb),
			slog.String("app", msg.name),
			slog.Any("error", msg.err),
		)

		if msg.err != nil {
			m.setStatus(msg.verb+" "+msg.name+": "+msg.err.Error(), true)

			return m, nil
		}

		status := msg.verb + " " + msg.name
		if msg.port > 0 {
			status += " on port " + strconv.Itoa(msg.port)
		}

		m.setStatus(status, false)

		return m, m.fetch()
	}

	if m.filtering {
		var cmd tea.Cmd

		m.filter, cmd = m.filter.Update(msg)

		return m, cmd
	}

	return m, nil
}

func (m *model) setStatus(status string, failed bool) {
	m.status, m.failed = status, failed
}

// refilter recomputes the visible rows and keeps the cursor in range.
func (m *model) refilter() {
	pattern := strings.TrimSpace(m.filter.Value())

	if pattern == "" {
		m.matches = make(fuzzy.Matches, len(m.apps))
		for i, a := range m.apps {
			m.matches[i] = fuzzy.Match{Str: a.Name, Index: i}
		}
	} else {
		m.matches = fuzzy.FindFrom(pattern, m.apps)
	}

	m.cursor = max(0, min(m.cursor, len(m.matches)-1))
}

// selected returns the app under the cursor.
func (m model) selected() (nanny.Info, bool) {
	if m.cursor < 0 || m.cursor >= len(m.matches) {
		return nanny.Info{}, false
	}

	return m.apps[m.matches[m.cursor].Index], true
}

func (m model) handleKey(msg tea.KeyMsg) (model, tea.Cmd) {
	m.logger.TraceContext(m.ctxFunc(), "dashboard keypress",
		slog.String("key", msg.String()),
	)

	if msg.Type == tea.KeyCtrlC {
		m.quitting = true

		return m, tea.Quit
	}

	if m.filtering {
		return m.handleFilterKey(msg)
	}

	switch msg.String() {
	case "q":
		m.quitting = true

		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < len(m.matches)-1 {
			m.cursor++
		}

	case "/":
		m.filtering = true
		cmd := m.filter.Focus()

		return m, cmd

	case "esc":
		m.filter.SetValue("")
		m.refilter()

	case "g":
		m.loading = true

		return m, m.fetch()

	case "s", "x", "r":
		app, ok := m.selected()
		if !ok {
			return m, nil
		}

		verb := map[string]string{"s": "start", "x": "stop", "r": "restart"}[msg.String()]
		m.setStatus(verb+" "+app.Name+"...", false)

		return m, m.act(verb, app.Name)
	}

	return m, nil
}

func (m model) handleFilterKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		m.filtering = false
		m.filter.Blur()

		return m, nil

	case tea.KeyEsc:
		m.filtering = false
		m.filter.Blur()
		m.filter.SetValue("")
		m.refilter()

		return m, nil
	}

	var cmd tea.Cmd

	m.filter, cmd = m.filter.Update(msg)
	m.refilter()

	return m, cmd
}

func (m model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("nanny"))

	if m.loading {
		b.WriteString(hintStyle.Render("  refreshing..."))
	}

	b.WriteString("\n\n")
	b.WriteString(headerStyle.Render(row("NAME", "TYPE", "STATE", "PORT", "UPTIME", "IDLE")))
	b.WriteString("\n")

	for i, match := range m.matches {
		b.WriteString(m.renderRow(m.apps[match.Index], match, i == m.cursor))
		b.WriteString("\n")
	}

	if len(m.matches) == 0 && !m.loading {
		b.WriteString(hintStyle.Render("no apps"))
		b.WriteString("\n")
	}

	b.WriteString("\n")

	if m.filtering || m.filter.Value() != "" {
		b.WriteString(m.filter.View())
		b.WriteString("\n")
	}

	switch {
	case m.status == "":
		b.WriteString(hintStyle.Render("s start  x stop  r restart  / filter  g refresh  q quit"))
	case m.failed:
		b.WriteString(errorStyle.Render("🗴 " + m.status))
	default:
		b.WriteString(resultStyle.Render("✔ " + m.status))
	}

	b.WriteString("\n")

	return b.String()
}

// Column widths.
const (
	nameWidth  = 24
	typeWidth  = 10
	stateWidth = 8
	portWidth  = 6
	timeWidth  = 10
)

func row(name, kind, state, port, uptime, idle string) string {
	return fmt.Sprintf("%-*s %-*s %-*s %-*s %-*s %s",
		nameWidth, name,
		typeWidth, kind,
		stateWidth, state,
		portWidth, port,
		timeWidth, uptime,
		idle,
	)
}

// renderRow renders one app with the matched characters of its name
// highlighted.
func (m model) renderRow(app nanny.Info, match fuzzy.Match, selected bool) string {
	state, port := "stopped", "-"
	if app.Running {
		state, port = "running", strconv.Itoa(app.Port)
	}

	line := row(
		strings.Repeat(" ", len(app.Name)), // placeholder, highlighted below
		string(app.Kind),
		state,
		port,
		formatSeconds(app.Uptime),
		formatSeconds(app.Idle),
	)

	if selected {
		return selectedStyle.Render(app.Name + line[len(app.Name):])
	}

	stateStyle := stoppedStyle
	if app.Running {
		stateStyle = runningStyle
	}

	return renderName(match) + stateStyle.Render(line[len(app.Name):])
}

// renderName renders a name with its fuzzy-matched characters highlighted.
func renderName(match fuzzy.Match) string {
	matched := make(map[int]bool, len(match.MatchedIndexes))
	for _, idx := range match.MatchedIndexes {
		matched[idx] = true
	}

	var b strings.Builder

	for i, r := range match.Str {
		if matched[i] {
			b.WriteString(highlightStyle.Render(string(r)))
		} else {
			b.WriteRune(r)
		}
	}

	return b.String()
}

func formatSeconds(s int64) string {
	if s <= 0 {
		return "-"
	}

	return (time.Duration(s) * time.Second).String()
}
