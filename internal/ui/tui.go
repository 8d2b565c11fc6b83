// Package ui provides the terminal board.
package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nibzard/ralphban-go/internal/board"
	"github.com/nibzard/ralphban-go/internal/task"
)

// Board is the part of *board.Board the terminal view needs.
type Board interface {
	Name() string
	Join(board.Peer) error
	Leave(board.Peer) int
	Handle(context.Context, board.Peer, board.Message) error
}

// TUIOption configures the TUI behavior.
type TUIOption func(*tuiConfig)

type tuiConfig struct {
	altScreen bool
	input     io.Reader
	output    io.Writer
}

// WithAltScreen toggles the alternate screen buffer.
func WithAltScreen(enabled bool) TUIOption {
	return func(c *tuiConfig) {
		c.altScreen = enabled
	}
}

// WithIO sets the program input and output.
func WithIO(in io.Reader, out io.Writer) TUIOption {
	return func(c *tuiConfig) {
		c.input = in
		c.output = out
	}
}

// RunTUI joins b as a peer and runs the terminal board until the user quits
// or ctx ends.
func RunTUI(ctx context.Context, b Board, opts ...TUIOption) error {
	c := &tuiConfig{altScreen: true, output: os.Stdout}
	for _, opt := range opts {
		opt(c)
	}
	if c.input == nil && !IsTTY(c.output) {
		return fmt.Errorf("tui requires a TTY")
	}

	peer := newChanPeer(8)
	if err := b.Join(peer); err != nil {
		return err
	}
	defer func() {
		b.Leave(peer)
		peer.close()
	}()

	programOpts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithOutput(c.output)}
	if c.input != nil {
		programOpts = append(programOpts, tea.WithInput(c.input))
	}
	if c.altScreen {
		programOpts = append(programOpts, tea.WithAltScreen())
	}
	model := newTUIModel(ctx, b, peer)
	_, err := tea.NewProgram(model, programOpts...).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

type tuiModel struct {
	ctx   context.Context
	board Board
	peer  board.Peer
	inbox <-chan board.Outbound

	snapshot   *board.Snapshot
	categories []string
	errMsg     string
	errLines   []string
	notice     string
	closed     bool

	col, row    int
	filter      task.Filter
	categoryIdx int
	searching   bool
	confirming  bool
	showHelp    bool
	width       int
}

type outboundMsg struct {
	msg board.Outbound
}

type inboxClosedMsg struct{}

type handledMsg struct {
	err error
}

func newTUIModel(ctx context.Context, b Board, peer *chanPeer) *tuiModel {
	return &tuiModel{
		ctx:         ctx,
		board:       b,
		peer:        peer,
		inbox:       peer.ch,
		categoryIdx: -1,
		width:       100,
	}
}

func (m *tuiModel) Init() tea.Cmd {
	return waitForOutbound(m.inbox)
}

func waitForOutbound(ch <-chan board.Outbound) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return inboxClosedMsg{}
		}
		return outboundMsg{msg: msg}
	}
}

// send hands msg to the board off the update loop.
func (m *tuiModel) send(msg board.Message) tea.Cmd {
	return func() tea.Msg {
		return handledMsg{err: m.board.Handle(m.ctx, m.peer, msg)}
	}
}

func (m *tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case outboundMsg:
		m.apply(msg.msg)
		return m, waitForOutbound(m.inbox)
	case inboxClosedMsg:
		m.closed = true
		return m, nil
	case handledMsg:
		// Failures also arrive as error messages from the board.
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

// apply folds one board message into the model.
func (m *tuiModel) apply(msg board.Outbound) {
	switch msg.Type {
	case board.TypeUpdate:
		m.snapshot = msg.Data
		if len(msg.Categories) > 0 {
			m.categories = msg.Categories
		}
		m.errMsg, m.errLines = "", nil
		m.clamp()
	case board.TypeError:
		m.errMsg, m.errLines = msg.Message, msg.Errors
	case board.TypeNotice:
		m.notice = msg.Message
	case board.TypeClosed:
		m.closed = true
		m.errMsg, m.errLines = msg.Message, nil
	}
}

func (m *tuiModel) handleKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Type == tea.KeyCtrlC {
		return m, tea.Quit
	}
	if m.searching {
		return m.handleSearchKey(key)
	}
	if m.confirming {
		m.confirming = false
		if key.String() == "y" {
			if t := m.selected(); t != nil {
				return m, m.send(board.Message{Type: board.TypeDeleteTask, TaskID: t.Key()})
			}
		}
		m.notice = "Delete cancelled."
		return m, nil
	}

	switch key.String() {
	case "q":
		return m, tea.Quit
	case "?":
		m.showHelp = !m.showHelp
		return m, nil
	}
	if m.closed {
		return m, nil
	}

	switch key.String() {
	case "left", "h":
		m.moveColumn(-1)
	case "right", "l":
		m.moveColumn(1)
	case "up", "k":
		if m.row > 0 {
			m.row--
		}
	case "down", "j":
		if m.row < len(m.visible(m.col))-1 {
			m.row++
		}
	case "[":
		return m, m.shiftStatus(-1)
	case "]":
		return m, m.shiftStatus(1)
	case "d":
		if m.selected() != nil {
			m.confirming = true
		}
	case "r":
		return m, m.send(board.Message{Type: board.TypeRefreshTasks})
	case "c":
		m.cycleCategory()
	case "/":
		m.searching = true
	}
	return m, nil
}

func (m *tuiModel) handleSearchKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.Type {
	case tea.KeyEnter:
		m.searching = false
	case tea.KeyEsc:
		m.searching = false
		m.filter.Search = ""
	case tea.KeyBackspace:
		if r := []rune(m.filter.Search); len(r) > 0 {
			m.filter.Search = string(r[:len(r)-1])
		}
	case tea.KeyRunes:
		m.filter.Search += string(key.Runes)
	case tea.KeySpace:
		m.filter.Search += " "
	}
	m.clamp()
	return m, nil
}

func (m *tuiModel) moveColumn(delta int) {
	next := m.col + delta
	if next < 0 || next >= len(task.Statuses) {
		return
	}
	m.col = next
	m.clamp()
}

// shiftStatus moves the selected task to the neighbouring status column.
func (m *tuiModel) shiftStatus(delta int) tea.Cmd {
	t := m.selected()
	next := m.col + delta
	if t == nil || next < 0 || next >= len(task.Statuses) {
		return nil
	}
	status := task.Statuses[next]
	return m.send(board.Message{Type: board.TypeUpdateTaskStatus, TaskID: t.Key(), NewStatus: string(status)})
}

func (m *tuiModel) cycleCategory() {
	if len(m.categories) == 0 {
		return
	}
	m.categoryIdx++
	if m.categoryIdx >= len(m.categories) {
		m.categoryIdx = -1
		m.filter.Category = ""
	} else {
		m.filter.Category = m.categories[m.categoryIdx]
	}
	m.clamp()
}

// visible returns the filtered tasks of column i.
func (m *tuiModel) visible(i int) []task.Task {
	if m.snapshot == nil || i < 0 || i >= len(m.snapshot.Columns) {
		return nil
	}
	return m.filter.Apply(m.snapshot.Columns[i].Tasks)
}

func (m *tuiModel) selected() *task.Task {
	tasks := m.visible(m.col)
	if m.row < 0 || m.row >= len(tasks) {
		return nil
	}
	return &tasks[m.row]
}

func (m *tuiModel) clamp() {
	n := len(m.visible(m.col))
	if m.row >= n {
		m.row = n - 1
	}
	if m.row < 0 {
		m.row = 0
	}
}

func (m *tuiModel) View() string {
	var b strings.Builder
	m.writeHeader(&b)

	if m.showHelp {
		writeHelp(&b)
		return b.String()
	}
	if m.errMsg != "" {
		b.WriteString(errorStyle.Render(m.errMsg) + "\n")
		for _, line := range m.errLines {
			b.WriteString(errorStyle.Render("  - "+line) + "\n")
		}
		b.WriteString("\n")
	}
	if m.snapshot != nil && !m.closed {
		b.WriteString(m.renderColumns() + "\n")
	} else if m.snapshot == nil && m.errMsg == "" {
		b.WriteString("Loading...\n")
	}
	m.writeFooter(&b)
	return b.String()
}

func (m *tuiModel) writeHeader(b *strings.Builder) {
	title := "Kanban Board: " + m.board.Name()
	if m.snapshot != nil && m.snapshot.Feature != "" {
		title += " | " + m.snapshot.Feature
	}
	b.WriteString(titleStyle.Render(title) + "\n")
	if m.snapshot != nil {
		if m.snapshot.Description != "" {
			b.WriteString(mutedStyle.Render(m.snapshot.Description) + "\n")
		}
		s := m.snapshot.Stats
		b.WriteString(fmt.Sprintf("Total Tasks: %d  Completed: %d (%d%%)", s.Total, s.Completed, s.Percent))
	}
	if m.filter.Category != "" {
		b.WriteString("  " + mutedStyle.Render("category: "+m.filter.Category))
	}
	if m.filter.Search != "" || m.searching {
		b.WriteString("  " + mutedStyle.Render("search: "+m.filter.Search))
	}
	b.WriteString("\n\n")
}

func (m *tuiModel) renderColumns() string {
	colWidth := (m.width - 4*4) / 4
	if colWidth < 18 {
		colWidth = 18
	}
	cols := make([]string, len(m.snapshot.Columns))
	for i, col := range m.snapshot.Columns {
		var body strings.Builder
		tasks := m.visible(i)
		body.WriteString(headingStyle(col.ID).Render(fmt.Sprintf("%s (%d)", col.Label, len(tasks))) + "\n")
		for j, t := range tasks {
			body.WriteString(m.renderCard(t, colWidth, i == m.col && j == m.row) + "\n")
		}
		style := columnStyle
		if i == m.col {
			style = activeColumnStyle
		}
		cols[i] = style.Width(colWidth).Render(strings.TrimRight(body.String(), "\n"))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cols...)
}

func (m *tuiModel) renderCard(t task.Task, width int, selected bool) string {
	line := truncate(t.Description, width-2)
	meta := string(t.Category)
	if t.Priority != "" && t.Priority != "none" {
		meta += " " + priorityStyle(t.Priority).Render(t.Priority)
	}
	if m.snapshot.Blocked[t.Key()] {
		meta += " " + blockedStyle.Render("blocked")
	}
	if selected {
		return selectedStyle.Render(line) + "\n" + cardStyle.Render(mutedStyle.Render(meta))
	}
	return cardStyle.Render(line) + "\n" + cardStyle.Render(mutedStyle.Render(meta))
}

func (m *tuiModel) writeFooter(b *strings.Builder) {
	switch {
	case m.searching:
		b.WriteString(promptStyle.Render("Search: "+m.filter.Search+"_") + "  (enter to apply, esc to clear)\n")
	case m.confirming:
		if t := m.selected(); t != nil {
			b.WriteString(promptStyle.Render(fmt.Sprintf("Delete %q? (y/N)", truncate(t.Description, 50))) + "\n")
		}
	case m.closed:
		b.WriteString(mutedStyle.Render("Board closed. Press q to quit.") + "\n")
	default:
		if m.notice != "" {
			b.WriteString(noticeStyle.Render(m.notice) + "\n")
		}
		b.WriteString(mutedStyle.Render("←/→ column  ↑/↓ task  [/] move  d delete  c category  / search  r refresh  ? help  q quit") + "\n")
	}
}

func writeHelp(b *strings.Builder) {
	b.WriteString("Keyboard Shortcuts\n\n")
	b.WriteString("  ←/→, h/l     Select column\n")
	b.WriteString("  ↑/↓, j/k     Select task\n")
	b.WriteString("  [ / ]        Move task to previous/next status\n")
	b.WriteString("  d            Delete task (confirm with y)\n")
	b.WriteString("  r            Refresh from disk\n")
	b.WriteString("  c            Cycle category filter\n")
	b.WriteString("  /            Search\n")
	b.WriteString("  ?            Toggle this help screen\n")
	b.WriteString("  q, ctrl+c    Quit\n\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 3 || len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// IsTTY returns true if w is a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
