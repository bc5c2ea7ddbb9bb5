package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/agentkit-forge/agentkit/pkg/models"
	"github.com/fatih/color"
)

var (
	okColor   = color.New(color.FgGreen)
	busyColor = color.New(color.FgCyan)
	warnColor = color.New(color.FgYellow)
	badColor  = color.New(color.FgRed, color.Bold)
)

var taskStatusIcons = map[models.TaskStatus]string{
	models.StatusSubmitted:         "📩",
	models.StatusAccepted:          "✅",
	models.StatusWorking:           "🔨",
	models.StatusInputRequired:     "❓",
	models.StatusCompleted:         "✔️",
	models.StatusFailed:            "❌",
	models.StatusRejected:          "🚫",
	models.StatusCanceled:          "🗑️",
	models.StatusBlockedOnCanceled: "⛔",
}

// FormatTaskSummary renders the detail view of one task.
func FormatTaskSummary(t *models.Task) string {
	lines := []string{
		"Task: " + orDefault(t.ID, "unknown"),
		"Title: " + orDefault(t.Title, "(untitled)"),
		fmt.Sprintf("Type: %s | Priority: %s | Status: %s",
			orDefault(string(t.Type), "unknown"), orDefault(string(t.Priority), "unknown"), orDefault(string(t.Status), "unknown")),
		fmt.Sprintf("Delegator: %s → Assignees: %s", orDefault(t.Delegator, "unknown"), strings.Join(t.Assignees, ", ")),
	}
	if len(t.DependsOn) > 0 {
		lines = append(lines, "Depends on: "+strings.Join(t.DependsOn, ", "))
	}
	if len(t.BlockedBy) > 0 {
		blocked := "Blocked by: " + strings.Join(t.BlockedBy, ", ")
		if t.BlockedReason != "" {
			blocked += " (" + t.BlockedReason + ")"
		}
		lines = append(lines, blocked)
	}
	if len(t.HandoffTo) > 0 {
		lines = append(lines, "Handoff to: "+strings.Join(t.HandoffTo, ", "))
	}
	if len(t.Artifacts) > 0 {
		lines = append(lines, fmt.Sprintf("Artifacts: %d", len(t.Artifacts)))
	}
	lines = append(lines,
		"Created: "+formatTime(t.CreatedAt),
		"Updated: "+formatTime(t.UpdatedAt),
		fmt.Sprintf("Messages: %d", len(t.Messages)),
	)
	return strings.Join(lines, "\n")
}

// FormatTaskList renders tasks as a markdown table.
func FormatTaskList(tasks []*models.Task) string {
	if len(tasks) == 0 {
		return "No tasks found."
	}
	lines := []string{
		"| ID | Priority | Status | Type | Title | Assignees |",
		"|----|----------|--------|------|-------|-----------|",
	}
	for _, t := range tasks {
		icon, ok := taskStatusIcons[t.Status]
		if !ok {
			icon = "?"
		}
		lines = append(lines, fmt.Sprintf("| %s | %s | %s | %s | %s | %s |",
			escapeCell(t.ID),
			escapeCell(string(t.Priority)),
			escapeCell(icon+" "+orDefault(string(t.Status), "unknown")),
			escapeCell(string(t.Type)),
			escapeCell(t.Title),
			escapeCell(strings.Join(t.Assignees, ", ")),
		))
	}
	return strings.Join(lines, "\n")
}

// TasksSummary renders the queue overview used by the orchestrator: active
// tasks in listing order followed by a count of closed ones.
func TasksSummary(tasks []*models.Task) string {
	if len(tasks) == 0 {
		return "No tasks in the task queue."
	}
	var active []*models.Task
	closed := 0
	for _, t := range tasks {
		if IsTerminal(t.Status) {
			closed++
			continue
		}
		active = append(active, t)
	}

	var lines []string
	if len(active) > 0 {
		lines = append(lines, fmt.Sprintf("Active tasks: %d", len(active)))
		for _, t := range active {
			lines = append(lines, fmt.Sprintf("  [%s] %s: %s (%s) → %s",
				t.Priority, t.ID, t.Title, t.Status, strings.Join(t.Assignees, ", ")))
		}
	}
	lines = append(lines, fmt.Sprintf("Completed/closed tasks: %d", closed))
	return strings.Join(lines, "\n")
}

// RecentEvent is the slice of an event log entry shown on the status screen.
type RecentEvent struct {
	Timestamp time.Time
	Action    string
	Team      string
}

// StatusReport gathers everything FormatStatus renders.
type StatusReport struct {
	State  *models.OrchestratorState
	Lock   *LockStatus
	Teams  []string
	Events []RecentEvent
}

// maxStatusTodos caps how many todo items the status screen lists.
const maxStatusTodos = 10

// FormatStatus renders the orchestrator status screen.
func FormatStatus(r StatusReport) string {
	s := r.State
	session := s.SessionID
	if session == "" {
		session = "(none)"
	}
	completed := "No"
	if s.Completed {
		completed = "Yes"
	}

	lines := []string{
		"=== AgentKit Forge — Orchestrator Status ===",
		"",
		"Repo:      " + s.RepoID,
		"Branch:    " + s.Branch,
		"Session:   " + session,
		fmt.Sprintf("Phase:     %d/%d — %s", s.CurrentPhase, FinalPhase, s.PhaseName),
		"Completed: " + completed,
		"Next:      " + s.NextAction,
		"",
	}

	if r.Lock != nil && r.Lock.Locked {
		state := "LOCKED"
		if r.Lock.Stale {
			state += " " + badColor.Sprint("(STALE)")
		}
		lines = append(lines,
			"Lock:      "+state,
			fmt.Sprintf("  PID:     %d", r.Lock.Lock.PID),
			"  Since:   "+formatTime(r.Lock.Lock.StartedAt),
			"",
		)
	}

	lines = append(lines, "--- Team Progress ---")
	for _, id := range r.Teams {
		p, ok := s.TeamProgress[id]
		if !ok {
			p.Status = models.TeamIdle
		}
		line := fmt.Sprintf("  [%s] %-16s %s", teamIcon(p.Status), id, p.Status)
		if p.Notes != "" {
			line += " — " + p.Notes
		}
		lines = append(lines, line)
	}
	lines = append(lines, "")

	if n := len(s.TodoItems); n > 0 {
		lines = append(lines, fmt.Sprintf("--- Todo Items (%d) ---", n))
		for i, item := range s.TodoItems {
			if i == maxStatusTodos {
				break
			}
			lines = append(lines, fmt.Sprintf("  [%s] %s: %s (%s)", todoIcon(item.Status), item.ID, item.Title, item.Status))
		}
		if n > maxStatusTodos {
			lines = append(lines, fmt.Sprintf("  ... and %d more", n-maxStatusTodos))
		}
		lines = append(lines, "")
	}

	if len(r.Events) > 0 {
		lines = append(lines, "--- Recent Events ---")
		for _, e := range r.Events {
			line := "  " + formatTime(e.Timestamp) + "  " + e.Action
			if e.Team != "" {
				line += " (" + e.Team + ")"
			}
			lines = append(lines, line)
		}
	}

	return strings.Join(lines, "\n")
}

func teamIcon(status models.TeamStatus) string {
	switch status {
	case models.TeamInProgress:
		return busyColor.Sprint("▶")
	case models.TeamBlocked:
		return warnColor.Sprint("!")
	case models.TeamDone:
		return okColor.Sprint("✓")
	}
	return " "
}

func todoIcon(status string) string {
	switch status {
	case "in_progress":
		return busyColor.Sprint("▶")
	case "done":
		return okColor.Sprint("✓")
	case "blocked":
		return warnColor.Sprint("!")
	}
	return "○"
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(s, "\r\n", " ")
	return strings.ReplaceAll(s, "\n", " ")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// formatTime renders t as "YYYY-MM-DD HH:MM:SS" in UTC.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.UTC().Format(time.DateTime)
}
