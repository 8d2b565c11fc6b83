package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nibzard/ralphban-go/internal/task"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	noticeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	promptStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	blockedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))

	columnStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Padding(0, 1)
	activeColumnStyle = columnStyle.BorderForeground(lipgloss.Color("12"))

	cardStyle     = lipgloss.NewStyle().PaddingLeft(1)
	selectedStyle = lipgloss.NewStyle().PaddingLeft(1).Bold(true).
			Foreground(lipgloss.Color("0")).Background(lipgloss.Color("12"))
)

var statusColors = map[task.Status]lipgloss.Color{
	task.StatusPending:    lipgloss.Color("7"),
	task.StatusInProgress: lipgloss.Color("11"),
	task.StatusCompleted:  lipgloss.Color("10"),
	task.StatusCancelled:  lipgloss.Color("8"),
}

var priorityColors = map[string]lipgloss.Color{
	"high":   lipgloss.Color("9"),
	"medium": lipgloss.Color("11"),
	"low":    lipgloss.Color("12"),
}

func headingStyle(s task.Status) lipgloss.Style {
	return lipgloss.NewStyle().Bold(true).Foreground(statusColors[s])
}

func priorityStyle(p string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(priorityColors[p])
}
