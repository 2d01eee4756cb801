package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/term"

	"github.com/marktoda/astrotask/internal/tree"
	"github.com/marktoda/astrotask/internal/types"
)

// shouldUseColor mirrors the teacher's NO_COLOR/CLICOLOR convention,
// falling back to TTY detection so piped or CI output stays plain.
func shouldUseColor() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("CLICOLOR_FORCE") != "" {
		return true
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func plainStyle() lipgloss.Style { return lipgloss.NewStyle() }

func headerStyle() lipgloss.Style {
	if !shouldUseColor() {
		return plainStyle().Bold(true)
	}
	return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
}

func doneStyle() lipgloss.Style {
	if !shouldUseColor() {
		return plainStyle()
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Strikethrough(true)
}

func renderTaskTable(tasks []*types.Task) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("ID", "STATUS", "PRIORITY", "TITLE").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle()
			}
			return plainStyle()
		})
	for _, task := range tasks {
		t.Row(task.ID, string(task.Status), fmt.Sprintf("%d", task.PriorityScore), task.Title)
	}
	return t.Render()
}

func renderTaskDetail(task *types.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s\n", headerStyle().Render(task.ID), task.Title)
	fmt.Fprintf(&b, "status:   %s\n", task.Status)
	fmt.Fprintf(&b, "priority: %d\n", task.PriorityScore)
	if task.ParentID != "" {
		fmt.Fprintf(&b, "parent:   %s\n", task.ParentID)
	}
	if task.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", task.Description)
	}
	return b.String()
}

func renderTree(t *tree.Tree, depth int) string {
	task := t.Task()
	line := strings.Repeat("  ", depth) + "- " + task.ID + " " + task.Title
	if task.Status == types.StatusDone {
		line = doneStyle().Render(line)
	}
	var b strings.Builder
	fmt.Fprintln(&b, line)
	for _, child := range t.GetChildren() {
		fmt.Fprint(&b, renderTree(child, depth+1))
	}
	return b.String()
}
