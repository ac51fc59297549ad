package audit

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Lines per row in the list view (title + subtitle + blank separator).
const rowItemHeight = 3

const timeLayout = "2006-01-02 15:04 MST"

type viewState int

const (
	viewList viewState = iota
	viewDetail
	viewHistory
)

var (
	activeBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("39")) // bright blue

	inactiveBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("240")) // dim gray

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	activeHeaderStyle = headerStyle.
				Foreground(lipgloss.Color("39"))

	inactiveHeaderStyle = headerStyle.
				Foreground(lipgloss.Color("240"))

	statusBarStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("236"))

	rowTitleStyle = lipgloss.NewStyle().
			Bold(true)

	rowSubtitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245"))

	selectedRowTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				Background(lipgloss.Color("24"))

	selectedRowSubtitleStyle = lipgloss.NewStyle().
					Foreground(lipgloss.Color("252")).
					Background(lipgloss.Color("24"))

	detailLabelStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39")).
				Width(16)

	detailValueStyle = lipgloss.NewStyle()

	detailTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				MarginBottom(1)

	descDividerStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240"))

	descHintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)

	descBodyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	statusStyles = map[string]lipgloss.Style{
		"new":       lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		"carryover": lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		"expired":   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		"filtered":  lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		"success":   lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		"skipped":   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		"error":     lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

func statusLabel(s string) string {
	if st, ok := statusStyles[s]; ok {
		return st.Render(s)
	}
	return s
}

type auditModel struct {
	snap          Snapshot
	leftViewport  viewport.Model
	rightViewport viewport.Model
	activePane    int // 0=left, 1=right
	leftCursor    int
	rightCursor   int
	width         int
	height        int
	ready         bool

	// Detail view state
	view            viewState
	detailRow       Row
	detailViewport  viewport.Model
	showDescription bool

	wantQuit bool
}

func (m auditModel) Init() tea.Cmd {
	return nil
}

func (m auditModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.recalcLayout()
		if m.view != viewList {
			m.detailViewport.Width = m.width - 4
			m.detailViewport.Height = m.height - 4
			m.detailViewport.SetContent(m.renderOverlay())
		}
		return m, nil

	case tea.KeyMsg:
		if m.view != viewList {
			return m.updateOverlayView(msg)
		}
		return m.updateListView(msg)
	}

	return m, nil
}

func (m auditModel) updateListView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.wantQuit = true
		return m, tea.Quit
	case "esc", "b":
		m.wantQuit = false
		return m, tea.Quit
	case "tab", "left", "right":
		m.activePane = 1 - m.activePane
		m.recalcContent()
		return m, nil
	case "up", "k":
		m.moveCursor(-1)
		m.recalcContent()
		m.ensureCursorVisible()
		return m, nil
	case "down", "j":
		m.moveCursor(1)
		m.recalcContent()
		m.ensureCursorVisible()
		return m, nil
	case "enter":
		return m.openDetailView()
	case "h":
		m.view = viewHistory
		m.detailViewport = viewport.New(m.width-4, m.height-4)
		m.detailViewport.SetContent(m.renderOverlay())
		return m, nil
	}

	// Forward other keys (pgup/pgdn/home/end) to the active viewport.
	var cmd tea.Cmd
	if m.activePane == 0 {
		m.leftViewport, cmd = m.leftViewport.Update(msg)
	} else {
		m.rightViewport, cmd = m.rightViewport.Update(msg)
	}
	return m, cmd
}

func (m auditModel) updateOverlayView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.wantQuit = true
		return m, tea.Quit
	case "esc", "backspace":
		m.view = viewList
		return m, nil
	case "o":
		if m.view == viewDetail && m.detailRow.Posting.URL != "" {
			openURL(m.detailRow.Posting.URL)
		}
		return m, nil
	case "r":
		if m.view == viewDetail && m.detailRow.Posting.Description != "" {
			m.showDescription = !m.showDescription
			m.detailViewport.SetContent(m.renderOverlay())
			m.detailViewport.SetYOffset(0)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.detailViewport, cmd = m.detailViewport.Update(msg)
	return m, cmd
}

func (m *auditModel) moveCursor(delta int) {
	if m.activePane == 0 {
		m.leftCursor = clamp(m.leftCursor+delta, 0, max(len(m.snap.All)-1, 0))
	} else {
		m.rightCursor = clamp(m.rightCursor+delta, 0, max(len(m.snap.Matched)-1, 0))
	}
}

func (m *auditModel) ensureCursorVisible() {
	var vp *viewport.Model
	var cursor int
	if m.activePane == 0 {
		vp = &m.leftViewport
		cursor = m.leftCursor
	} else {
		vp = &m.rightViewport
		cursor = m.rightCursor
	}

	cursorTop := cursor * rowItemHeight
	cursorBottom := cursorTop + rowItemHeight - 1

	if cursorTop < vp.YOffset {
		vp.SetYOffset(cursorTop)
	} else if cursorBottom >= vp.YOffset+vp.Height {
		vp.SetYOffset(cursorBottom - vp.Height + 1)
	}
}

func (m auditModel) openDetailView() (tea.Model, tea.Cmd) {
	rows := m.activeRows()
	if len(rows) == 0 {
		return m, nil
	}

	m.view = viewDetail
	m.detailRow = rows[m.activeCursor()]
	m.showDescription = false
	m.detailViewport = viewport.New(m.width-4, m.height-4)
	m.detailViewport.SetContent(m.renderOverlay())
	return m, nil
}

func (m *auditModel) recalcLayout() {
	// 2 border chars per pane + 1 gap between panes.
	paneWidth := max((m.width-5)/2, 20)

	// Header (1 line) + border top/bottom (2) + status bar (1) = 4 lines overhead.
	paneHeight := max(m.height-4, 5)

	if !m.ready {
		m.leftViewport = viewport.New(paneWidth, paneHeight)
		m.rightViewport = viewport.New(paneWidth, paneHeight)
		m.ready = true
	} else {
		m.leftViewport.Width = paneWidth
		m.leftViewport.Height = paneHeight
		m.rightViewport.Width = paneWidth
		m.rightViewport.Height = paneHeight
	}

	m.recalcContent()
}

func (m *auditModel) recalcContent() {
	m.leftViewport.SetContent(renderRows(m.snap.All, m.leftCursor, m.activePane == 0))
	m.rightViewport.SetContent(renderRows(m.snap.Matched, m.rightCursor, m.activePane == 1))
}

func (m auditModel) activeRows() []Row {
	if m.activePane == 0 {
		return m.snap.All
	}
	return m.snap.Matched
}

func (m auditModel) activeCursor() int {
	if m.activePane == 0 {
		return m.leftCursor
	}
	return m.rightCursor
}

func (m auditModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	switch m.view {
	case viewDetail:
		return m.viewOverlay("Posting Details", " o open URL  r desc  esc/backspace back  ↑/↓ scroll  q quit")
	case viewHistory:
		return m.viewOverlay("Run History — "+m.snap.User.ID, " esc/backspace back  ↑/↓ scroll  q quit")
	}
	return m.viewList()
}

func (m auditModel) viewList() string {
	paneWidth := m.leftViewport.Width

	leftHeader := fmt.Sprintf(" Fetched (%d)", len(m.snap.All))
	rightHeader := fmt.Sprintf(" Matched for %s (%d)", m.snap.User.ID, len(m.snap.Matched))

	var leftHeaderRendered, rightHeaderRendered string
	var leftBorder, rightBorder lipgloss.Style

	if m.activePane == 0 {
		leftHeaderRendered = activeHeaderStyle.Render(leftHeader)
		rightHeaderRendered = inactiveHeaderStyle.Render(rightHeader)
		leftBorder = activeBorderStyle.Width(paneWidth)
		rightBorder = inactiveBorderStyle.Width(paneWidth)
	} else {
		leftHeaderRendered = inactiveHeaderStyle.Render(leftHeader)
		rightHeaderRendered = activeHeaderStyle.Render(rightHeader)
		leftBorder = inactiveBorderStyle.Width(paneWidth)
		rightBorder = activeBorderStyle.Width(paneWidth)
	}

	leftPane := leftBorder.Render(m.leftViewport.View())
	rightPane := rightBorder.Render(m.rightViewport.View())

	headerRow := lipgloss.JoinHorizontal(lipgloss.Top,
		lipgloss.NewStyle().Width(paneWidth+2).Render(leftHeaderRendered),
		" ",
		lipgloss.NewStyle().Width(paneWidth+2).Render(rightHeaderRendered),
	)

	panes := lipgloss.JoinHorizontal(lipgloss.Top, leftPane, " ", rightPane)

	counts := m.snap.Counts()
	statusText := fmt.Sprintf(" %d new | %d carryover | %d expired | %d filtered out | %d failed sources    Tab switch  Enter detail  h history  Esc back  q quit",
		counts["new"], counts["carryover"], counts["expired"],
		len(m.snap.All)-len(m.snap.Matched), len(m.snap.Failed))
	statusBar := statusBarStyle.Width(m.width).Render(statusText)

	return headerRow + "\n" + panes + "\n" + statusBar
}

func (m auditModel) viewOverlay(title, hints string) string {
	border := activeBorderStyle.Width(m.width - 2)
	content := border.Render(m.detailViewport.View())
	statusBar := statusBarStyle.Width(m.width).Render(hints)
	return detailTitleStyle.Render(title) + "\n" + content + "\n" + statusBar
}

func (m auditModel) renderOverlay() string {
	if m.view == viewHistory {
		return renderHistory(m.snap)
	}
	return m.renderDetail()
}

func (m auditModel) renderDetail() string {
	r := m.detailRow
	p := r.Posting
	var b strings.Builder

	addField := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString(detailLabelStyle.Render(label))
		b.WriteString(detailValueStyle.Render(value))
		b.WriteByte('\n')
	}

	addField("Title", p.Title)
	addField("Company", p.Company)
	addField("Location", p.Location)
	addField("Normalized", p.NormalizedLocation)
	addField("Remote Mode", string(p.RemoteMode))
	addField("Job Key", string(p.Key()))
	addField("Source", p.SourceID)
	if p.PostedAt != nil {
		addField("Posted At", p.PostedAt.Format(timeLayout))
	}
	if len(p.Tags) > 0 {
		addField("Tags", strings.Join(p.Tags, ", "))
	}

	b.WriteByte('\n')
	addField("Status", statusLabel(r.Status()))
	if r.Ranked != nil {
		addField("Score", fmt.Sprintf("%d", r.Ranked.Score))
		if len(r.Ranked.Signals) > 0 {
			addField("Signals", strings.Join(r.Ranked.Signals, ", "))
		}
	}
	if r.Record != nil {
		addField("First Sent", r.Record.FirstSentAt.Format(timeLayout))
		addField("Last Seen", r.Record.LastSeenAt.Format(timeLayout))
	}

	b.WriteByte('\n')
	addField("Job URL", p.URL)

	wrapWidth := max(m.width-8, 20)
	if p.Description != "" {
		b.WriteByte('\n')
		if m.showDescription {
			fill := strings.Repeat("─", max(wrapWidth-len("── Description "), 3))
			b.WriteString(descDividerStyle.Render("── Description "+fill) + "\n\n")
			b.WriteString(descBodyStyle.Render(wordWrap(p.Description, wrapWidth)) + "\n")
		} else {
			b.WriteString(descHintStyle.Render("  press r to read job description") + "\n")
		}
	}

	return b.String()
}

func renderHistory(s Snapshot) string {
	if len(s.Outcomes) == 0 {
		return "  (no runs recorded)"
	}
	var b strings.Builder
	for _, o := range s.Outcomes {
		fmt.Fprintf(&b, "%s  %-9s %-8s fetched %-4d matched %-4d emailed %-3d %s\n",
			o.StartedAt.Local().Format(timeLayout),
			string(o.Type),
			statusLabel(string(o.Status)),
			o.Fetched, o.KeywordMatched, o.Emailed,
			o.FinishedAt.Sub(o.StartedAt).Round(time.Millisecond),
		)
		if o.Detail != "" {
			b.WriteString(descHintStyle.Render("    "+o.Detail) + "\n")
		}
	}
	if len(s.Failed) > 0 {
		b.WriteString("\n" + descHintStyle.Render("  sources failing now: "+strings.Join(s.Failed, ", ")) + "\n")
	}
	return b.String()
}

func renderRows(rows []Row, cursor int, isActive bool) string {
	if len(rows) == 0 {
		return "  (no postings)"
	}

	var b strings.Builder
	for i, r := range rows {
		isSelected := isActive && i == cursor

		titleSt := rowTitleStyle
		subtitleSt := rowSubtitleStyle
		prefix := "  "
		if isSelected {
			titleSt = selectedRowTitleStyle
			subtitleSt = selectedRowSubtitleStyle
			prefix = "> "
		}

		b.WriteString(prefix)
		b.WriteString(titleSt.Render(r.Posting.Title))
		b.WriteByte('\n')

		posted := "n/a"
		if r.Posting.PostedAt != nil {
			posted = r.Posting.PostedAt.Format("2006-01-02")
		}
		b.WriteString(prefix)
		b.WriteString(subtitleSt.Render(fmt.Sprintf("%s · %s · %s · ", r.Posting.Company, r.Posting.Location, posted)))
		b.WriteString(statusLabel(r.Status()))
		b.WriteByte('\n')

		if i < len(rows)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func wordWrap(text string, width int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		if len(line)+1+len(w) <= width {
			line += " " + w
		} else {
			lines = append(lines, line)
			line = w
		}
	}
	lines = append(lines, line)
	return strings.Join(lines, "\n")
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// openURL opens url in the default system browser, fire-and-forget.
func openURL(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return
	}
	_ = cmd.Start()
}

// RunAuditTUI launches the split-pane audit view for one snapshot.
// Returns wantQuit=true if the user pressed q/ctrl+c, false if they pressed
// esc to return to the picker.
func RunAuditTUI(snap Snapshot) (bool, error) {
	p := tea.NewProgram(auditModel{snap: snap}, tea.WithAltScreen())
	result, err := p.Run()
	if err != nil {
		return false, err
	}
	final := result.(auditModel)
	return final.wantQuit, nil
}
