// Package inboxtui is the terminal inbox client: a conversation list pane
// with unread badges and filter tabs, a thread pane with date dividers, and
// a compose line, all driven reactively from the session's stores.
package inboxtui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wanderdesk/wanderdesk/internal/inbox"
)

const updateBuffer = 64

type focusArea int

const (
	focusList focusArea = iota
	focusThread
	focusSearch
)

// Config carries the TUI's collaborators and identity.
type Config struct {
	Session  *inbox.Session
	AgencyID string
}

type listUpdatedMsg struct {
	snapshot inbox.ListSnapshot
}

type threadUpdatedMsg struct {
	snapshot inbox.ThreadSnapshot
}

type noticeMsg struct {
	notice inbox.Notice
}

// Model is the root bubbletea model.
type Model struct {
	session  *inbox.Session
	agencyID string

	width  int
	height int

	focus    focusArea
	tab      inbox.Tab
	search   string
	selected int

	list    inbox.ListSnapshot
	visible []inbox.Conversation
	thread  inbox.ThreadSnapshot
	entries []inbox.Entry
	notice  string
	compose string

	updates      chan tea.Msg
	cancelList   func()
	cancelThread func()
}

func NewModel(cfg Config) *Model {
	m := &Model{
		session:  cfg.Session,
		agencyID: cfg.AgencyID,
		tab:      inbox.TabAll,
		updates:  make(chan tea.Msg, updateBuffer),
	}

	m.cancelList = cfg.Session.List().Subscribe(func(snapshot inbox.ListSnapshot) {
		m.push(listUpdatedMsg{snapshot: snapshot})
	})
	m.cancelThread = cfg.Session.Thread().Subscribe(func(snapshot inbox.ThreadSnapshot) {
		m.push(threadUpdatedMsg{snapshot: snapshot})
	})

	m.list = cfg.Session.List().Snapshot()
	m.refreshVisible()
	return m
}

// Run drives the program until quit.
func Run(cfg Config) error {
	model := NewModel(cfg)
	defer model.Close()

	program := tea.NewProgram(model, tea.WithAltScreen())
	_, err := program.Run()
	return err
}

func (m *Model) Close() {
	if m.cancelList != nil {
		m.cancelList()
	}
	if m.cancelThread != nil {
		m.cancelThread()
	}
}

// push forwards a store snapshot into the bubbletea loop. Drops are fine:
// a newer snapshot always follows.
func (m *Model) push(msg tea.Msg) {
	select {
	case m.updates <- msg:
	default:
	}
}

func (m *Model) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		return <-m.updates
	}
}

func (m *Model) listenNotices() tea.Cmd {
	return func() tea.Msg {
		notice, ok := <-m.session.Notices()
		if !ok {
			return nil
		}
		return noticeMsg{notice: notice}
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.waitForUpdate(), m.listenNotices())
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		return m, nil

	case listUpdatedMsg:
		m.list = typed.snapshot
		m.refreshVisible()
		return m, m.waitForUpdate()

	case threadUpdatedMsg:
		m.thread = typed.snapshot
		m.entries = m.session.Thread().Entries()
		return m, m.waitForUpdate()

	case noticeMsg:
		m.notice = typed.notice.Text
		return m, m.listenNotices()

	case tea.KeyMsg:
		return m.handleKey(typed)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.focus == focusSearch {
		return m.handleSearchKey(msg)
	}
	if m.focus == focusThread {
		return m.handleThreadKey(msg)
	}
	return m.handleListKey(msg)
}

func (m *Model) handleListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
	case "down", "j":
		if m.selected < len(m.visible)-1 {
			m.selected++
		}
	case "tab":
		m.tab = nextTab(m.tab)
		m.refreshVisible()
	case "/":
		m.focus = focusSearch
	case "enter":
		if m.selected >= 0 && m.selected < len(m.visible) {
			conv := m.visible[m.selected]
			if err := m.session.Select(conv.ID); err != nil {
				m.notice = err.Error()
				return m, nil
			}
			m.focus = focusThread
			m.compose = ""
		}
	}
	return m, nil
}

func (m *Model) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.search = ""
		m.focus = focusList
		m.refreshVisible()
	case "enter":
		m.focus = focusList
	case "backspace":
		if len(m.search) > 0 {
			m.search = trimLastRune(m.search)
			m.refreshVisible()
		}
	default:
		if msg.Type == tea.KeyRunes {
			m.search += string(msg.Runes)
			m.refreshVisible()
		}
	}
	return m, nil
}

func (m *Model) handleThreadKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.focus = focusList
		m.compose = ""
		if err := m.session.Deselect(); err != nil {
			m.notice = err.Error()
		}
	case "enter":
		body := strings.TrimSpace(m.compose)
		if body == "" {
			return m, nil
		}
		// The engine promises at most one identical pending send; the
		// compose line is where that promise is kept.
		if m.session.Thread().HasPendingBody(body) {
			m.notice = "Previous identical message still sending."
			return m, nil
		}
		if err := m.session.Send(body); err != nil {
			m.notice = err.Error()
			return m, nil
		}
		m.compose = ""
	case "backspace":
		if len(m.compose) > 0 {
			m.compose = trimLastRune(m.compose)
		}
	default:
		if msg.Type == tea.KeyRunes {
			m.compose += string(msg.Runes)
		}
		if msg.Type == tea.KeySpace {
			m.compose += " "
		}
	}
	return m, nil
}

func (m *Model) View() string {
	if m.width == 0 {
		return "loading..."
	}

	header := m.renderHeader()
	footer := m.renderFooter()
	contentHeight := m.height - lipgloss.Height(header) - lipgloss.Height(footer)
	if contentHeight < 0 {
		contentHeight = 0
	}

	listWidth := m.width / 3
	if listWidth < 24 {
		listWidth = minInt(24, m.width)
	}
	threadWidth := m.width - listWidth

	listPane := m.renderList(listWidth, contentHeight)
	threadPane := m.renderThread(threadWidth, contentHeight)
	body := lipgloss.JoinHorizontal(lipgloss.Top, listPane, threadPane)

	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

func (m *Model) refreshVisible() {
	m.visible = m.session.List().Filter(m.tab, m.search)
	if m.selected >= len(m.visible) {
		m.selected = len(m.visible) - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}
}

func nextTab(tab inbox.Tab) inbox.Tab {
	switch tab {
	case inbox.TabAll:
		return inbox.TabUnread
	case inbox.TabUnread:
		return inbox.TabArchived
	default:
		return inbox.TabAll
	}
}

func trimLastRune(s string) string {
	runes := []rune(s)
	if len(runes) == 0 {
		return s
	}
	return string(runes[:len(runes)-1])
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	if width == 1 {
		return "…"
	}
	return string(runes[:width-1]) + "…"
}

func (m *Model) renderHeader() string {
	left := "wanderdesk inbox"
	right := fmt.Sprintf("unread: %d", m.list.TotalUnread)
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	line := left + strings.Repeat(" ", gap) + right
	return headerStyle.Width(maxInt(0, m.width)).Render(truncate(line, maxInt(0, m.width-2)))
}

func (m *Model) renderFooter() string {
	var hint string
	switch m.focus {
	case focusThread:
		hint = "[enter] send  [esc] back  type to compose"
	case focusSearch:
		hint = "search: " + m.search + "█  [enter] apply  [esc] clear"
	default:
		hint = "[enter] open  [tab] " + string(m.tab) + "  [/] search  [q] quit"
	}
	if m.notice != "" {
		hint = noticeStyle.Render(m.notice) + "  " + hint
	}
	return footerStyle.Width(maxInt(0, m.width)).Render(truncate(hint, maxInt(0, m.width-2)))
}
