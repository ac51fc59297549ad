package audit

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amishk599/jobdigest/internal/model"
)

var (
	pickerTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39")).
				Padding(1, 0, 1, 2)

	pickerItemStyle = lipgloss.NewStyle().
			Padding(0, 0, 0, 4)

	pickerSelectedStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("39")).
				Bold(true).
				Padding(0, 0, 0, 2)

	pickerHintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Padding(1, 0, 0, 2)
)

// UserEntry is one picker line: a user and their most recent run, if any.
type UserEntry struct {
	User model.User
	Last *model.RunOutcome
}

// label renders the entry relative to now.
func (e UserEntry) label(now time.Time) string {
	head := fmt.Sprintf("%-16s %-28s", e.User.ID, "<"+e.User.Email+">")
	if e.Last == nil {
		return head + "  never run"
	}
	o := e.Last
	line := fmt.Sprintf("%s  %s %s ago", head, statusLabel(string(o.Status)), since(now, o.StartedAt))
	switch o.Status {
	case model.RunSuccess:
		line += fmt.Sprintf(", %d emailed", o.Emailed)
	case model.RunSkipped, model.RunError:
		if o.Detail != "" {
			line += ", " + truncate(o.Detail, 40)
		}
	}
	return line
}

func since(now, t time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "<1m"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

type pickerModel struct {
	entries []UserEntry
	now     time.Time
	cursor  int
	chosen  int // -1 = no choice yet, -2 = quit
}

func (m pickerModel) Init() tea.Cmd {
	return nil
}

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.chosen = -2
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.entries)-1 {
				m.cursor++
			}
		case "enter":
			m.chosen = m.cursor
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m pickerModel) View() string {
	s := pickerTitleStyle.Render("Digest audit: select a user")
	s += "\n"

	for i, e := range m.entries {
		label := e.label(m.now)
		if i == m.cursor {
			s += pickerSelectedStyle.Render("> "+label) + "\n"
		} else {
			s += pickerItemStyle.Render(label) + "\n"
		}
	}

	s += pickerHintStyle.Render("↑/↓/j/k navigate  enter audit  q quit")
	return s
}

// RunUserPicker lists entries with each user's last run and returns the
// chosen index, or a negative value if the user quit.
func RunUserPicker(entries []UserEntry) (int, error) {
	m := pickerModel{
		entries: entries,
		now:     time.Now(),
		chosen:  -1,
	}

	p := tea.NewProgram(m)
	result, err := p.Run()
	if err != nil {
		return -1, err
	}

	final := result.(pickerModel)
	return final.chosen, nil
}
