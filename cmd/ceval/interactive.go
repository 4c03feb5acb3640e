package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wippyai/ceval"
	"github.com/wippyai/ceval/assets"
	"github.com/wippyai/ceval/config"
	"github.com/wippyai/ceval/engines"
	"github.com/wippyai/ceval/errors"
	"github.com/wippyai/ceval/protocol"
	"github.com/wippyai/ceval/worker"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	scoreStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#98FB98"))

	pvStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#87CEEB"))

	stateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#44475A")).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

const pollInterval = 100 * time.Millisecond

type progressMsg struct {
	label string
	p     assets.Progress
}

type evalMsg struct {
	ev protocol.Eval
}

type bestMoveMsg struct {
	best string
}

type failedMsg struct {
	err error
}

type pollMsg struct{}

type interactiveModel struct {
	err      error
	worker   *worker.Controller
	info     engines.Info
	settings engines.Settings
	evals    map[int]protocol.Eval
	fen      string
	variant  string
	best     string
	download string
	moves    []string
	spinner  spinner.Model
	bar      progress.Model
	input    textinput.Model
	percent  float64
	state    ceval.State
	running  bool
	editing  bool
}

func newInteractiveModel(info engines.Info, settings engines.Settings, fen string, moves []string, variant string) *interactiveModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	ti := textinput.New()
	ti.Placeholder = "e2e4 e7e5"
	ti.Prompt = "moves: "
	ti.Width = 60

	return &interactiveModel{
		info:     info,
		settings: settings,
		fen:      fen,
		moves:    moves,
		variant:  variant,
		evals:    make(map[int]protocol.Eval),
		spinner:  sp,
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		input:    ti,
	}
}

func poll() tea.Cmd {
	return tea.Tick(pollInterval, func(time.Time) tea.Msg { return pollMsg{} })
}

func (m *interactiveModel) Init() tea.Cmd {
	m.start()
	return tea.Batch(m.spinner.Tick, poll())
}

func (m *interactiveModel) work() *protocol.Work {
	return m.settings.Work(m.fen, m.moves, m.variant)
}

func (m *interactiveModel) start() {
	m.evals = make(map[int]protocol.Eval)
	m.best = ""
	m.running = true
	m.worker.Start(m.work())
}

func (m *interactiveModel) stop() {
	m.running = false
	m.worker.Stop()
}

func (m *interactiveModel) restart() {
	if m.running {
		m.start()
	}
}

func (m *interactiveModel) quit() tea.Cmd {
	ctx, cancel := context.WithTimeout(context.Background(), stopGrace)
	defer cancel()
	_ = m.worker.Close(ctx)
	return tea.Quit
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.editing {
			return m.updateInput(msg)
		}
		switch msg.String() {
		case "ctrl+c", "q":
			return m, m.quit()

		case " ":
			if m.running {
				m.stop()
			} else {
				m.start()
			}

		case "+", "=":
			m.settings.MultiPV++
			m.settings = m.settings.Clamp(m.info)
			m.restart()

		case "-":
			m.settings.MultiPV--
			m.settings = m.settings.Clamp(m.info)
			m.restart()

		case "]":
			m.settings.SearchTime = nextPip(m.settings.SearchTime, 1)
			m.restart()

		case "[":
			m.settings.SearchTime = nextPip(m.settings.SearchTime, -1)
			m.restart()

		case "m":
			m.editing = true
			m.input.SetValue(strings.Join(m.moves, " "))
			m.input.Focus()
			return m, textinput.Blink
		}

	case progressMsg:
		m.download = msg.label
		if msg.p.Done {
			m.download = ""
			m.percent = 0
		} else if msg.p.Total > 0 {
			m.percent = float64(msg.p.Loaded) / float64(msg.p.Total)
		}

	case evalMsg:
		m.evals[msg.ev.MultiPV] = msg.ev

	case bestMoveMsg:
		m.best = msg.best
		if m.worker.State() != ceval.Computing {
			m.running = false
		}

	case failedMsg:
		m.err = msg.err

	case pollMsg:
		m.state = m.worker.State()
		return m, poll()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *interactiveModel) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.moves = strings.Fields(m.input.Value())
		m.editing = false
		m.input.Blur()
		m.running = true
		m.start()
		return m, nil
	case "esc":
		m.editing = false
		m.input.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// nextPip moves the search time one pip in dir along engines.SearchPips.
func nextPip(current time.Duration, dir int) time.Duration {
	idx := len(engines.SearchPips) - 1
	for i, pip := range engines.SearchPips {
		if pip == current {
			idx = i
			break
		}
	}
	idx += dir
	if idx < 0 || idx >= len(engines.SearchPips) {
		return current
	}
	return engines.SearchPips[idx]
}

func pipLabel(d time.Duration) string {
	if d == 0 {
		return "∞"
	}
	return fmt.Sprintf("%ds", int(d.Seconds()))
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	name := m.worker.EngineName()
	if name == "" {
		name = m.info.Name
	}
	b.WriteString(titleStyle.Render("ceval"))
	b.WriteString(" ")
	b.WriteString(name)
	b.WriteString(" ")
	b.WriteString(stateStyle.Render(m.state.String()))
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Engine unavailable: %v", m.err)))
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("q quit"))
		return b.String()
	}

	switch {
	case m.download != "":
		b.WriteString(fmt.Sprintf("%s downloading %s\n", m.spinner.View(), m.download))
		b.WriteString(m.bar.ViewAs(m.percent))
		b.WriteString("\n")
	case m.state == ceval.Loading:
		b.WriteString(m.spinner.View() + " loading engine\n")
	}

	position := "startpos"
	if m.fen != "" {
		position = m.fen
	}
	b.WriteString(fmt.Sprintf("position %s", position))
	if len(m.moves) > 0 {
		b.WriteString(" moves " + strings.Join(m.moves, " "))
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(fmt.Sprintf("lines %d/%d  search %s  threads %d/%d  hash %s",
		m.settings.MultiPV, engines.MaxMultiPV,
		pipLabel(m.settings.SearchTime),
		m.settings.Threads, max(m.info.MaxThreads, 1),
		formatHash(m.settings.HashMB))))
	b.WriteString("\n\n")

	lines := make([]int, 0, len(m.evals))
	for pv := range m.evals {
		lines = append(lines, pv)
	}
	sort.Ints(lines)
	for _, pv := range lines {
		ev := m.evals[pv]
		b.WriteString(scoreStyle.Render(fmt.Sprintf("%7s", formatScore(ev))))
		b.WriteString(fmt.Sprintf("  d%-3d ", ev.Depth))
		b.WriteString(pvStyle.Render(strings.Join(ev.PV, " ")))
		b.WriteString("\n")
	}
	if m.best != "" {
		b.WriteString("\nbest move " + scoreStyle.Render(m.best) + "\n")
	}

	b.WriteString("\n")
	if m.editing {
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter analyze • esc back"))
	} else {
		b.WriteString(helpStyle.Render("space start/stop • +/- lines • [/] search time • m moves • q quit"))
	}
	return b.String()
}

func logFile(cfg *config.Config) string {
	dir := filepath.Dir(cfg.CacheDB)
	_ = os.MkdirAll(dir, 0o755)
	return filepath.Join(dir, "ceval.log")
}

type interactiveOptions struct {
	fen     string
	moves   string
	variant string
}

func newInteractiveCommand(a *app) *cobra.Command {
	opts := &interactiveOptions{}

	cmd := &cobra.Command{
		Use:   "interactive",
		Short: "Analyze positions in a terminal UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdout.Fd())) {
				return errors.Unsupported(errors.PhaseConfig, "interactive mode needs a terminal")
			}
			return runInteractive(cmd.Context(), a, opts)
		},
	}

	cmd.Flags().StringVar(&opts.fen, "fen", "", "initial position (default: start position)")
	cmd.Flags().StringVar(&opts.moves, "moves", "", "space separated UCI moves from the initial position")
	cmd.Flags().StringVar(&opts.variant, "variant", "", "chess variant key")

	return cmd
}

func runInteractive(ctx context.Context, a *app, opts *interactiveOptions) error {
	var p *tea.Program
	send := func(msg tea.Msg) {
		if p != nil {
			p.Send(msg)
		}
	}

	reg, err := a.registry(ctx, progressHooks{
		binary:  func(pr assets.Progress) { send(progressMsg{label: "engine", p: pr}) },
		weights: func(pr assets.Progress) { send(progressMsg{label: "weights", p: pr}) },
	})
	if err != nil {
		return err
	}
	info, err := reg.Select(a.cfg.Engine, opts.variant)
	if err != nil {
		return err
	}

	m := newInteractiveModel(info, a.settings(info), opts.fen, strings.Fields(opts.moves), opts.variant)
	m.worker, err = info.NewWorker(worker.Options{
		Logger:    a.logger,
		OnFailure: func(err error) { send(failedMsg{err: err}) },
		OnEval: func(_ *protocol.Work, ev protocol.Eval) {
			send(evalMsg{ev: ev})
		},
		OnBestMove: func(_ *protocol.Work, best, _ string) {
			send(bestMoveMsg{best: best})
		},
	})
	if err != nil {
		return err
	}

	p = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = p.Run()
	return err
}
