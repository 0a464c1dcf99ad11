package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/reglet-dev/reglet-fetch/application/config"
	"github.com/reglet-dev/reglet-fetch/bridge"
	"github.com/reglet-dev/reglet-fetch/domain/entities"
	"github.com/reglet-dev/reglet-fetch/domain/ports"
	"github.com/reglet-dev/reglet-fetch/host"
)

func watchCommand(args []string, stderr io.Writer) error {
	fs, configPath := newFlagSet("watch", stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	targets := fs.Args()
	if len(targets) == 0 {
		return errors.New("fetchbridge watch: at least one url or path required")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	// The view owns the terminal; only warnings reach stderr.
	cfg.Log.Level = "warn"
	logger := config.NewLogger(cfg.Log, stderr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	exec, err := host.NewExecutor(ctx, config.ExecutorOptions(cfg, logger)...)
	if err != nil {
		return err
	}
	defer func() { _ = exec.Close(context.Background()) }()

	m := newWatchModel(ctx, exec, targets)
	_, err = tea.NewProgram(m).Run()

	// Unblock responders before the executor drains its loop.
	cancel()
	m.releaseAll()
	return err
}

type entryState int

const (
	statePending entryState = iota
	stateDone
	stateFailed
	stateCancelled
)

type entry struct {
	started time.Time
	ref     *bridge.Ref
	target  string
	resp    entities.Response
	elapsed time.Duration
	gen     int
	state   entryState
}

// responseMsg carries a delivered response into the view. gen identifies
// which attempt of the entry it answers.
type responseMsg struct {
	at    time.Time
	resp  entities.Response
	index int
	gen   int
}

type watchKeyMap struct {
	Up        key.Binding
	Down      key.Binding
	Cancel    key.Binding
	CancelAll key.Binding
	Retry     key.Binding
	Quit      key.Binding
}

func (k watchKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Cancel, k.CancelAll, k.Retry, k.Quit}
}

func (k watchKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var watchKeys = watchKeyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "cancel"),
	),
	CancelAll: key.NewBinding(
		key.WithKeys("C"),
		key.WithHelp("C", "cancel all"),
	),
	Retry: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "retry"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

type watchModel struct {
	ctx      context.Context
	host     fetchHost
	results  chan responseMsg
	entries  []entry
	spinner  spinner.Model
	help     help.Model
	cursor   int
	width    int
	quitting bool
}

func newWatchModel(ctx context.Context, h fetchHost, targets []string) *watchModel {
	m := &watchModel{
		ctx:     ctx,
		host:    h,
		results: make(chan responseMsg, len(targets)),
		entries: make([]entry, len(targets)),
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(selectedStyle)),
		help:    help.New(),
	}
	for i, target := range targets {
		m.entries[i].target = target
		m.start(i)
	}
	return m
}

// start issues a new attempt for entry i. Responses to earlier attempts are
// ignored once gen moves on.
func (m *watchModel) start(i int) {
	e := &m.entries[i]
	e.gen++
	e.state = statePending
	e.started = time.Now()
	e.resp = entities.Response{}
	e.elapsed = 0

	gen := e.gen
	src := ports.ResponderFunc(func(resp entities.Response) {
		select {
		case m.results <- responseMsg{index: i, gen: gen, resp: resp, at: time.Now()}:
		case <-m.ctx.Done():
		}
	})

	ref, err := m.host.Fetch(m.ctx, resourceFor(e.target), src)
	if err != nil {
		e.state = stateFailed
		e.resp = entities.Failure(entities.ErrorKindOther, err.Error())
		return
	}
	e.ref = ref
}

// cancel tears down entry i. If the response was already on its way the
// entry flips to its real outcome when it arrives.
func (m *watchModel) cancel(i int) {
	e := &m.entries[i]
	if e.state != statePending || e.ref == nil {
		return
	}
	e.ref.Release()
	e.state = stateCancelled
	e.elapsed = time.Since(e.started)
}

func (m *watchModel) releaseAll() {
	for i := range m.entries {
		if ref := m.entries[i].ref; ref != nil {
			ref.Release()
		}
	}
}

func (m *watchModel) waitForResponse() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-m.results:
			return msg
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m *watchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForResponse())
}

func (m *watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case responseMsg:
		m.apply(msg)
		return m, m.waitForResponse()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, watchKeys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, watchKeys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, watchKeys.Down):
			if m.cursor < len(m.entries)-1 {
				m.cursor++
			}
		case key.Matches(msg, watchKeys.Cancel):
			m.cancel(m.cursor)
		case key.Matches(msg, watchKeys.CancelAll):
			for i := range m.entries {
				m.cancel(i)
			}
		case key.Matches(msg, watchKeys.Retry):
			if m.entries[m.cursor].state != statePending {
				m.start(m.cursor)
			}
		}
	}
	return m, nil
}

func (m *watchModel) apply(msg responseMsg) {
	if msg.index < 0 || msg.index >= len(m.entries) {
		return
	}
	e := &m.entries[msg.index]
	if msg.gen != e.gen {
		return
	}
	e.resp = msg.resp
	e.elapsed = msg.at.Sub(e.started)
	switch msg.resp.Status {
	case entities.StatusSuccess:
		e.state = stateDone
	case entities.StatusError:
		e.state = stateFailed
	default:
		e.state = stateCancelled
	}
}

func (m *watchModel) counts() (pending, done int) {
	for _, e := range m.entries {
		if e.state == statePending {
			pending++
		} else {
			done++
		}
	}
	return pending, done
}

func (m *watchModel) View() string {
	if m.quitting {
		return mutedStyle.Render("Bye.\n")
	}

	var b strings.Builder
	pending, done := m.counts()
	b.WriteString(headerStyle.Render("fetchbridge"))
	b.WriteString(mutedStyle.Render(fmt.Sprintf(" %d pending, %d finished", pending, done)))
	b.WriteString("\n\n")

	for i, e := range m.entries {
		marker := "  "
		target := e.target
		if i == m.cursor {
			marker = selectedStyle.Render("> ")
			target = selectedStyle.Render(target)
		}
		b.WriteString(marker + m.statusCell(e) + " " + target + " " + m.detail(e) + "\n")
	}

	b.WriteString("\n" + m.help.View(watchKeys) + "\n")
	return b.String()
}

func (m *watchModel) statusCell(e entry) string {
	switch e.state {
	case statePending:
		return m.spinner.View()
	case stateDone:
		return successStyle.Render("✓")
	case stateFailed:
		return errorStyle.Render("✗")
	default:
		return cancelStyle.Render("-")
	}
}

func (m *watchModel) detail(e entry) string {
	switch e.state {
	case statePending:
		return mutedStyle.Render(time.Since(e.started).Round(100 * time.Millisecond).String())
	case stateDone:
		size := formatSize(len(e.resp.Data))
		if e.resp.NotModified {
			size = "not modified"
		}
		return mutedStyle.Render(size + " in " + e.elapsed.Round(time.Millisecond).String())
	case stateFailed:
		return errorStyle.Render(fmt.Sprintf("%s: %s", e.resp.ErrorKind, e.resp.ErrorMessage))
	default:
		return cancelStyle.Render("cancelled")
	}
}
