package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentkit-forge/agentkit/internal/core"
	"github.com/agentkit-forge/agentkit/internal/observability"
	"github.com/agentkit-forge/agentkit/pkg/models"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// Dashboard panel indices.
const (
	panelPhase = iota
	panelTeams
	panelQueue
	panelAlerts
	panelCount
)

type dashboardModel struct {
	activePanel int
	width       int
	height      int

	phase      *phaseSnapshot
	teams      []teamSnapshot
	taskCounts map[models.TaskStatus]int
	alerts     []observability.Alert

	loading bool
	err     error
}

type phaseSnapshot struct {
	number    int
	name      string
	next      string
	completed bool
	session   string
	locked    bool
	stale     bool
}

type teamSnapshot struct {
	id     string
	status models.TeamStatus
	notes  string
}

// dataLoadedMsg carries loaded data back to the model.
type dataLoadedMsg struct {
	phase      *phaseSnapshot
	teams      []teamSnapshot
	taskCounts map[models.TaskStatus]int
	alerts     []observability.Alert
	err        error
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(1, 2)

	activePanelStyle = panelStyle.BorderForeground(lipgloss.Color("62"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			MarginBottom(1)

	statusActive   = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	statusDone     = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	statusBlocked  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	statusWaiting  = lipgloss.NewStyle().Foreground(lipgloss.Color("141"))
	statusInactive = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	severityHigh   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	severityMedium = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	severityLow    = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))

	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func newDashboardModel() dashboardModel {
	return dashboardModel{
		activePanel: panelPhase,
		loading:     true,
		taskCounts:  make(map[models.TaskStatus]int),
	}
}

func (m dashboardModel) Init() tea.Cmd {
	return loadData
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "tab":
			m.activePanel = (m.activePanel + 1) % panelCount
			return m, nil
		case "shift+tab":
			m.activePanel = (m.activePanel - 1 + panelCount) % panelCount
			return m, nil
		case "r":
			m.loading = true
			return m, loadData
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case dataLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.phase = msg.phase
		m.teams = msg.teams
		m.taskCounts = msg.taskCounts
		m.alerts = msg.alerts
		m.err = nil
		return m, nil
	}

	return m, nil
}

func (m dashboardModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	title := titleStyle.Render(" AgentKit Dashboard ")
	help := helpStyle.Render("tab: switch panel | r: refresh | q: quit")

	if m.loading {
		return fmt.Sprintf("%s\n\n  Loading data...\n\n%s", title, help)
	}
	if m.err != nil {
		return fmt.Sprintf("%s\n\n  Error: %s\n\n%s", title, m.err, help)
	}

	panels := []string{
		m.renderPhasePanel(),
		m.renderTeamsPanel(),
		m.renderQueuePanel(),
		m.renderAlertsPanel(),
	}

	availableWidth := m.width - 2
	var body string
	if availableWidth > 120 {
		// Two rows of two.
		colWidth := availableWidth/2 - 4
		for i := range panels {
			panels[i] = m.applyPanelStyle(i, panels[i], colWidth)
		}
		top := lipgloss.JoinHorizontal(lipgloss.Top, panels[panelPhase], panels[panelTeams])
		bottom := lipgloss.JoinHorizontal(lipgloss.Top, panels[panelQueue], panels[panelAlerts])
		body = lipgloss.JoinVertical(lipgloss.Left, top, bottom)
	} else {
		panelWidth := availableWidth - 4
		if panelWidth < 20 {
			panelWidth = 20
		}
		for i := range panels {
			panels[i] = m.applyPanelStyle(i, panels[i], panelWidth)
		}
		body = lipgloss.JoinVertical(lipgloss.Left, panels...)
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", title, body, help)
}

func (m dashboardModel) applyPanelStyle(panel int, content string, width int) string {
	style := panelStyle
	if m.activePanel == panel {
		style = activePanelStyle
	}
	return style.Width(width).Render(content)
}

func (m dashboardModel) renderPhasePanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Phase"))
	b.WriteString("\n")

	p := m.phase
	if p == nil {
		b.WriteString("  No orchestrator state.")
		return b.String()
	}
	if p.completed {
		b.WriteString(statusDone.Render("  All phases complete"))
	} else {
		b.WriteString(fmt.Sprintf("  %d/%d %s", p.number, core.FinalPhase, p.name))
	}
	b.WriteString("\n  Next: " + p.next)
	if p.session != "" {
		b.WriteString("\n  Session: " + p.session)
	}
	switch {
	case p.locked && p.stale:
		b.WriteString("\n  " + statusBlocked.Render("Lock: STALE"))
	case p.locked:
		b.WriteString("\n  " + statusActive.Render("Lock: held"))
	}
	return b.String()
}

func (m dashboardModel) renderTeamsPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Teams"))
	b.WriteString("\n")

	if len(m.teams) == 0 {
		b.WriteString("  No teams configured.")
		return b.String()
	}
	for _, t := range m.teams {
		label := fmt.Sprintf("  %-16s %s", t.id, t.status)
		if t.notes != "" {
			label += " — " + t.notes
		}
		b.WriteString(styleForTeam(t.status).Render(label))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m dashboardModel) renderQueuePanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Task Queue"))
	b.WriteString("\n")

	total := 0
	for _, c := range m.taskCounts {
		total += c
	}
	if total == 0 {
		b.WriteString("  No tasks found.")
		return b.String()
	}

	for _, status := range models.TaskStatuses {
		count := m.taskCounts[status]
		if count == 0 {
			continue
		}
		label := fmt.Sprintf("  %-20s %d", status, count)
		b.WriteString(styleForTaskStatus(status).Render(label))
		b.WriteString("\n")
	}
	b.WriteString(fmt.Sprintf("\n  Total: %d", total))
	return b.String()
}

func (m dashboardModel) renderAlertsPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Alerts"))
	b.WriteString("\n")

	if len(m.alerts) == 0 {
		b.WriteString("  No active alerts.")
		return b.String()
	}
	for _, a := range m.alerts {
		sev := styleForSeverity(a.Severity).Render(fmt.Sprintf("[%s]", strings.ToUpper(string(a.Severity))))
		b.WriteString(fmt.Sprintf("  %s %s\n", sev, a.Message))
	}
	b.WriteString(fmt.Sprintf("\n  Total: %d alert(s)", len(m.alerts)))
	return b.String()
}

func styleForTaskStatus(status models.TaskStatus) lipgloss.Style {
	switch status {
	case models.StatusAccepted, models.StatusWorking:
		return statusActive
	case models.StatusCompleted:
		return statusDone
	case models.StatusFailed, models.StatusBlockedOnCanceled:
		return statusBlocked
	case models.StatusInputRequired:
		return statusWaiting
	case models.StatusRejected, models.StatusCanceled:
		return statusInactive
	}
	return lipgloss.NewStyle()
}

func styleForTeam(status models.TeamStatus) lipgloss.Style {
	switch status {
	case models.TeamInProgress:
		return statusActive
	case models.TeamDone:
		return statusDone
	case models.TeamBlocked:
		return statusBlocked
	}
	return statusInactive
}

func styleForSeverity(severity observability.AlertSeverity) lipgloss.Style {
	switch severity {
	case observability.SeverityHigh:
		return severityHigh
	case observability.SeverityMedium:
		return severityMedium
	case observability.SeverityLow:
		return severityLow
	}
	return lipgloss.NewStyle()
}

func loadData() tea.Msg {
	ctx := context.Background()
	result := dataLoadedMsg{taskCounts: make(map[models.TaskStatus]int)}

	if Orchestrator != nil {
		report, err := Orchestrator.Status()
		if err != nil {
			result.err = fmt.Errorf("loading orchestrator status: %w", err)
			return result
		}
		s := report.State
		result.phase = &phaseSnapshot{
			number:    s.CurrentPhase,
			name:      s.PhaseName,
			next:      s.NextAction,
			completed: s.Completed,
			session:   s.SessionID,
		}
		if report.Lock != nil {
			result.phase.locked = report.Lock.Locked
			result.phase.stale = report.Lock.Stale
		}
		for _, id := range report.Teams {
			p, ok := s.TeamProgress[id]
			if !ok {
				p.Status = models.TeamIdle
			}
			result.teams = append(result.teams, teamSnapshot{id: id, status: p.Status, notes: p.Notes})
		}
	}

	if Tasks != nil {
		tasks, err := Tasks.List(ctx, models.TaskFilter{})
		if err != nil {
			result.err = fmt.Errorf("loading tasks: %w", err)
			return result
		}
		for _, t := range tasks {
			result.taskCounts[t.Status]++
		}
	}

	if AlertEngine != nil {
		alerts, err := AlertEngine.Evaluate(ctx)
		if err != nil {
			result.err = fmt.Errorf("loading alerts: %w", err)
			return result
		}
		result.alerts = alerts
	}

	return result
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Interactive TUI dashboard for phase, teams, tasks and alerts",
	Long: `Launch an interactive terminal dashboard showing the current phase, team
progress, the task queue and active alerts.

Navigate between panels with Tab, refresh with r, quit with q.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Orchestrator == nil || Tasks == nil {
			return fmt.Errorf("services not initialized")
		}
		p := tea.NewProgram(newDashboardModel(), tea.WithAltScreen())
		_, err := p.Run()
		return err
	},
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}
