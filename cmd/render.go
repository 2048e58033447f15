package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/xiaoyuanzhu-com/buildchat/session"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")).
			Padding(0, 1)

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	userLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	assistantLabelStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("135")).
				Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	badgeStyles = map[string]lipgloss.Style{
		"active": lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
		"busy":   lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),
		"idle":   lipgloss.NewStyle().Foreground(lipgloss.Color("243")).Bold(true),
	}
)

func renderBadge(st session.Status) string {
	return badgeStyles[st.Tone()].Render("● " + st.Label())
}

func renderHeader(st session.State) string {
	title := st.Title
	if title == "" {
		title = "New project"
	}
	id := st.SessionID
	if st.Provisional() {
		id = "not created yet"
	}
	return headerStyle.Render(title) + " " + metaStyle.Render("session "+id)
}

func roleLabel(r session.Role) string {
	if r == session.RoleUser {
		return userLabelStyle.Render("you")
	}
	return assistantLabelStyle.Render("assistant")
}

// printer turns successive snapshots into terminal output, printing each
// message once and streamed replies incrementally. Messages typed at this
// terminal are not echoed back.
type printer struct {
	sessionID string
	status    session.Status
	seen      map[session.MessageID]bool
	streamed  string
	followUps string
	lastError string
}

func newPrinter() *printer {
	return &printer{seen: make(map[session.MessageID]bool)}
}

func (p *printer) update(st session.State) string {
	var b strings.Builder

	if st.SessionID != p.sessionID {
		p.sessionID = st.SessionID
		p.status = ""
		p.streamed = ""
		b.WriteString(renderHeader(st) + "\n")
	}

	if st.Status != p.status {
		p.status = st.Status
		line := renderBadge(st.Status)
		if reason := st.Status.Reason(); reason != "" {
			line += " " + metaStyle.Render(reason)
		}
		if st.Status == session.StatusReady && st.PreviewEndpoint != "" {
			line += " " + metaStyle.Render("preview "+st.PreviewEndpoint)
		}
		b.WriteString(line + "\n")
	}

	for _, m := range st.Transcript {
		switch {
		case !m.Persisted() && m.Role == session.RoleAssistant:
			p.printStream(&b, m.Content)
		case !m.Persisted() || p.seen[m.ID]:
		case m.Role == session.RoleUser:
			p.seen[m.ID] = true
			if m.LocalID == "" {
				fmt.Fprintf(&b, "%s %s\n", roleLabel(m.Role), m.Content)
			}
		default:
			p.seen[m.ID] = true
			if p.streamed != "" && strings.HasPrefix(m.Content, p.streamed) {
				b.WriteString(m.Content[len(p.streamed):] + "\n")
			} else {
				if p.streamed != "" {
					b.WriteString("\n")
				}
				fmt.Fprintf(&b, "%s %s\n", roleLabel(m.Role), m.Content)
			}
			p.streamed = ""
		}
	}

	if f := strings.Join(st.SuggestedFollowUps, "\n"); f != p.followUps {
		p.followUps = f
		if f != "" {
			b.WriteString(metaStyle.Render("try:") + "\n")
			for _, s := range st.SuggestedFollowUps {
				b.WriteString(metaStyle.Render("  - "+s) + "\n")
			}
		}
	}

	if st.LastError != p.lastError {
		p.lastError = st.LastError
		if st.LastError != "" {
			b.WriteString(errorStyle.Render("error: "+st.LastError) + "\n")
		}
	}

	return b.String()
}

func (p *printer) printStream(b *strings.Builder, content string) {
	if p.streamed == "" && content != "" {
		b.WriteString(roleLabel(session.RoleAssistant) + " ")
	}
	if strings.HasPrefix(content, p.streamed) {
		b.WriteString(content[len(p.streamed):])
	}
	p.streamed = content
}
