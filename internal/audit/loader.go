package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

var errLoadCancelled = errors.New("cancelled")

// Progress reports the stage a snapshot load has reached.
type Progress func(stage string)

// LoadFunc builds a snapshot, reporting each stage it enters.
type LoadFunc func(ctx context.Context, progress Progress) (Snapshot, error)

type loadDoneMsg struct {
	snap Snapshot
	err  error
}

type stageMsg struct {
	stage string
	ok    bool
}

type spinnerTickMsg struct{}

type loaderModel struct {
	label   string
	timeout time.Duration
	load    LoadFunc
	stages  chan string
	stage   string
	done    []string // stages already passed
	frame   int
	result  Snapshot
	err     error
	over    bool
}

func newLoaderModel(label string, timeout time.Duration, load LoadFunc) loaderModel {
	return loaderModel{
		label:   label,
		timeout: timeout,
		load:    load,
		stages:  make(chan string, 16),
	}
}

func (m loaderModel) Init() tea.Cmd {
	return tea.Batch(m.runLoad(), m.nextStage(), m.tick())
}

func (m loaderModel) runLoad() tea.Cmd {
	load, timeout, stages := m.load, m.timeout, m.stages
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		defer close(stages)
		report := func(stage string) {
			select {
			case stages <- stage:
			default:
			}
		}
		snap, err := load(ctx, report)
		return loadDoneMsg{snap: snap, err: err}
	}
}

func (m loaderModel) nextStage() tea.Cmd {
	stages := m.stages
	return func() tea.Msg {
		s, ok := <-stages
		return stageMsg{stage: s, ok: ok}
	}
}

func (m loaderModel) tick() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(time.Time) tea.Msg {
		return spinnerTickMsg{}
	})
}

func (m loaderModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadDoneMsg:
		m.result = msg.snap
		m.err = msg.err
		m.over = true
		return m, tea.Quit
	case stageMsg:
		if !msg.ok {
			return m, nil
		}
		if m.stage != "" {
			m.done = append(m.done, m.stage)
		}
		m.stage = msg.stage
		return m, m.nextStage()
	case spinnerTickMsg:
		m.frame = (m.frame + 1) % len(spinnerFrames)
		return m, m.tick()
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.over = true
			m.err = errLoadCancelled
			return m, tea.Quit
		}
	}
	return m, nil
}

var loaderDoneStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

func (m loaderModel) View() string {
	if m.over {
		return ""
	}
	var s string
	for _, d := range m.done {
		s += loaderDoneStyle.Render("✓ "+d) + "\n"
	}
	stage := m.stage
	if stage == "" {
		stage = "loading"
	}
	spinner := lipgloss.NewStyle().Foreground(lipgloss.Color("33")).Render(spinnerFrames[m.frame])
	return s + fmt.Sprintf("%s %s: %s...\n", spinner, m.label, stage)
}

// RunLoader shows a spinner and the current stage while load builds the
// snapshot. It renders inline (no alt screen).
func RunLoader(label string, timeout time.Duration, load LoadFunc) (Snapshot, error) {
	p := tea.NewProgram(newLoaderModel(label, timeout, load))
	result, err := p.Run()
	if err != nil {
		return Snapshot{}, err
	}
	final := result.(loaderModel)
	return final.result, final.err
}
