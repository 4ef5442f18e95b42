package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"go-hivechat/internal/infrastructure/realtime"
	chat "go-hivechat/internal/pkg/chat/domain"
	"go-hivechat/internal/pkg/user"
)

var (
	selfStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	senderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("99")).Bold(true)
	timeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	stateStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Italic(true)
	convStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("45"))
)

func renderMessage(ctx context.Context, m chat.Message, selfID string, names *user.Client) string {
	sender := senderStyle.Render(names.ResolveName(ctx, m.SenderID))
	if m.SenderID == selfID {
		sender = selfStyle.Render("you")
	}
	line := fmt.Sprintf("%s %s %s",
		timeStyle.Render(m.Timestamp.Local().Format("15:04")), sender, m.Content)
	if m.Status == chat.DeliveryFailed {
		line += " " + failStyle.Render("(failed)")
	}
	if m.IsEdited {
		line += " " + timeStyle.Render("(edited)")
	}
	return line
}

func renderConversation(n int, c chat.Conversation) string {
	name := c.Name
	if name == "" {
		name = c.ID
	}
	last := ""
	if c.LastMessage != nil {
		last = ": " + c.LastMessage.Content
	}
	return fmt.Sprintf("%2d. %s%s", n, convStyle.Render(name), timeStyle.Render(last))
}

func renderProfile(p user.Profile) string {
	line := convStyle.Render(p.DisplayName())
	if p.Username != "" && p.Username != p.DisplayName() {
		line += " " + timeStyle.Render("@"+p.Username)
	}
	if p.Status != "" {
		line += " " + timeStyle.Render("("+p.Status+")")
	}
	return line
}

func renderState(st realtime.State) string {
	return stateStyle.Render("[connection " + st.String() + "]")
}

func renderError(err error) string {
	return failStyle.Render("error: " + err.Error())
}
