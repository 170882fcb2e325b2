package inboxtui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/wanderdesk/wanderdesk/internal/inbox"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("24")).
			Padding(0, 1)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250")).
			Background(lipgloss.Color("236")).
			Padding(0, 1)

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("203")).
			Bold(true)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("238")).
			Bold(true)

	unreadBadgeStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("16")).
				Background(lipgloss.Color("214")).
				Bold(true)

	bookingTagStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("37"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))

	dividerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("109")).
			Bold(true)

	agencyMsgStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("117"))

	counterpartyMsgStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252"))

	pendingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")).
			Italic(true)

	listPaneStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, true, false, false).
			BorderForeground(lipgloss.Color("238"))
)

func (m *Model) renderList(width, height int) string {
	inner := width - 2
	lines := make([]string, 0, height)

	title := fmt.Sprintf("Conversations — %s", string(m.tab))
	if m.search != "" {
		title += fmt.Sprintf(" /%s", m.search)
	}
	lines = append(lines, mutedStyle.Render(truncate(title, inner)))

	if len(m.visible) == 0 {
		lines = append(lines, mutedStyle.Render("no conversations"))
	}

	for i, conv := range m.visible {
		if len(lines) >= height {
			break
		}
		lines = append(lines, m.renderConversationRow(conv, i == m.selected, inner))
	}

	for len(lines) < height {
		lines = append(lines, "")
	}
	return listPaneStyle.Width(width).Render(strings.Join(lines[:height], "\n"))
}

func (m *Model) renderConversationRow(conv inbox.Conversation, selected bool, width int) string {
	name := conv.Participant.Name
	if name == "" {
		name = conv.Participant.Email
	}

	badge := ""
	if conv.Unread > 0 {
		badge = unreadBadgeStyle.Render(fmt.Sprintf(" %d ", conv.Unread))
	}
	tag := ""
	if conv.BookingRef != "" {
		tag = bookingTagStyle.Render("⟨" + conv.BookingRef + "⟩")
	}

	head := strings.TrimSpace(name + " " + tag)
	preview := mutedStyle.Render(truncate(conv.LastPreview.Body, maxInt(0, width-lipgloss.Width(head)-lipgloss.Width(badge)-3)))

	row := truncate(head, width)
	if preview != "" || badge != "" {
		row = truncate(head+"  "+preview, maxInt(0, width-lipgloss.Width(badge))) + badge
	}
	if selected {
		return selectedStyle.Render(truncate("> "+row, width))
	}
	return "  " + row
}

func (m *Model) renderThread(width, height int) string {
	inner := maxInt(0, width-2)
	lines := make([]string, 0, height)

	if m.thread.ConversationID == "" {
		empty := mutedStyle.Render("select a conversation")
		for len(lines) < height-1 {
			lines = append(lines, "")
		}
		return lipgloss.NewStyle().Width(width).Render(empty + "\n" + strings.Join(lines, "\n"))
	}

	for _, entry := range m.entries {
		if entry.Divider {
			lines = append(lines, dividerStyle.Render("── "+entry.DividerLabel+" ──"))
		}
		lines = append(lines, renderMessageLine(entry.Message, inner))
	}

	compose := "> " + m.compose
	if m.focus == focusThread {
		compose += "█"
	}

	// Keep the tail of the thread plus the compose line in view.
	available := height - 1
	if len(lines) > available {
		lines = lines[len(lines)-available:]
	}
	for len(lines) < available {
		lines = append(lines, "")
	}
	lines = append(lines, truncate(compose, inner))

	return lipgloss.NewStyle().Width(width).PaddingLeft(1).Render(strings.Join(lines, "\n"))
}

func renderMessageLine(msg inbox.Message, width int) string {
	stamp := mutedStyle.Render(msg.Time.Local().Format("15:04"))

	var body string
	switch {
	case msg.State == inbox.StatePending:
		body = pendingStyle.Render(msg.Body + " …")
	case msg.Direction == inbox.DirectionAgency:
		body = agencyMsgStyle.Render(msg.Body)
	default:
		body = counterpartyMsgStyle.Render(msg.Body)
	}

	prefix := "· "
	if msg.Direction == inbox.DirectionAgency {
		prefix = "» "
	}
	return truncate(stamp+" "+prefix+body, width)
}
