package core

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/agentkit-forge/agentkit/internal/storage"
	"github.com/agentkit-forge/agentkit/pkg/models"
	"go.uber.org/zap"
)

const (
	// SessionHandoffDir is where saved session hand-offs are written,
	// relative to the project root.
	SessionHandoffDir = "docs/ai_handoffs"

	sessionEventCount = 10
)

// GitStateFunc snapshots the git working copy at projectRoot.
type GitStateFunc func(projectRoot string) models.GitState

// SessionHandoff is one generated session hand-off document and the inputs
// it was rendered from.
type SessionHandoff struct {
	GeneratedAt time.Time
	Git         models.GitState
	State       *models.OrchestratorState
	Events      []RecentEvent
	Document    string
	// SavedPath is relative to the project root and empty unless saved.
	SavedPath string
}

// SessionHandoffWriter produces the document a session leaves for the next
// one: where git stands, which phase the project is in, and what happened
// recently.
type SessionHandoffWriter interface {
	Generate(save bool) (*SessionHandoff, error)
}

type sessionHandoffWriter struct {
	projectRoot string
	states      StateStore
	git         GitStateFunc
	reader      EventReader
	events      EventLogger
	logger      *zap.Logger
	now         Clock
}

// NewSessionHandoffWriter wires a SessionHandoffWriter. git, reader, events
// and logger may be nil; now defaults to time.Now.
func NewSessionHandoffWriter(projectRoot string, states StateStore, git GitStateFunc, reader EventReader, events EventLogger, logger *zap.Logger, now Clock) SessionHandoffWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &sessionHandoffWriter{
		projectRoot: projectRoot,
		states:      states,
		git:         git,
		reader:      reader,
		events:      events,
		logger:      logger,
		now:         now,
	}
}

// Generate renders the hand-off document without taking the session lock
// or touching the orchestrator state. With save set the document is also
// written under SessionHandoffDir.
func (w *sessionHandoffWriter) Generate(save bool) (*SessionHandoff, error) {
	h := &SessionHandoff{GeneratedAt: w.now().UTC()}

	state, err := w.states.Peek()
	if err != nil {
		return nil, fmt.Errorf("loading orchestrator state: %w", err)
	}
	h.State = state

	if w.git != nil {
		h.Git = w.git(w.projectRoot)
	} else {
		h.Git = models.GitState{Branch: "unknown"}
	}
	if w.reader != nil {
		events, err := w.reader.RecentEvents(sessionEventCount)
		if err != nil {
			w.logger.Warn("reading recent events failed", zap.Error(err))
		}
		h.Events = events
	}

	h.Document = FormatSessionHandoff(*h)

	if save {
		rel := filepath.Join(SessionHandoffDir, "handoff-"+h.GeneratedAt.Format("2006-01-02T15-04-05")+".md")
		if err := storage.WriteFileAtomic(filepath.Join(w.projectRoot, rel), []byte(h.Document), 0o644); err != nil {
			return nil, fmt.Errorf("saving session hand-off: %w", err)
		}
		h.SavedPath = filepath.ToSlash(rel)
	}

	emitEvent(w.events, w.logger, "handoff_generated", map[string]any{
		"branch":            h.Git.Branch,
		"uncommitted_count": h.Git.UncommittedCount,
		"phase":             state.CurrentPhase,
		"saved":             save,
	})
	return h, nil
}

// FormatSessionHandoff renders h as markdown. Idle teams, finished todos
// and empty sections are left out.
func FormatSessionHandoff(h SessionHandoff) string {
	s, g := h.State, h.Git
	lines := []string{
		"# Session Handoff",
		"",
		"**Date:** " + h.GeneratedAt.UTC().Format(time.RFC3339),
		"**Branch:** " + g.Branch,
		fmt.Sprintf("**Phase:** %d/%d — %s", s.CurrentPhase, FinalPhase, s.PhaseName),
		"",
		"---",
		"",
		"## Summary",
		"",
		fmt.Sprintf("Session ended at phase %d (%s).", s.CurrentPhase, s.PhaseName),
		"Next action: " + s.NextAction,
		"",
		"## Git State",
		"",
		"- **Branch:** " + g.Branch,
		"- **Last commit:** " + orDefault(g.LastCommit, "(none)"),
		fmt.Sprintf("- **Uncommitted changes:** %d", g.UncommittedCount),
		"",
	}

	lines = appendList(lines, "### Recent Commits", g.RecentCommits)
	if g.UncommittedCount > 0 {
		lines = appendList(lines, "### Uncommitted Files", g.UncommittedFiles)
	}

	var active []string
	for id, p := range s.TeamProgress {
		if p.Status != models.TeamIdle {
			active = append(active, id)
		}
	}
	sort.Strings(active)
	if len(active) > 0 {
		lines = append(lines, "## Team Progress", "", "| Team | Status | Notes |", "|------|--------|-------|")
		for _, id := range active {
			p := s.TeamProgress[id]
			lines = append(lines, fmt.Sprintf("| %s | %s | %s |", id, p.Status, escapeCell(p.Notes)))
		}
		lines = append(lines, "")
	}

	var open []string
	for _, item := range s.TodoItems {
		if item.Status == "done" {
			continue
		}
		open = append(open, fmt.Sprintf("%s **%s**: %s (%s)", todoBox(item.Status), item.ID, item.Title, item.Status))
	}
	lines = appendList(lines, "## Open Items", open)

	var activity []string
	for _, e := range h.Events {
		line := "`" + formatTime(e.Timestamp) + "` " + e.Action
		if e.Team != "" {
			line += " (" + e.Team + ")"
		}
		activity = append(activity, line)
	}
	lines = appendList(lines, "## Recent Activity", activity)

	lines = append(lines, "## Next Steps", "", "1. "+s.NextAction)
	if g.UncommittedCount > 0 {
		lines = append(lines, fmt.Sprintf("2. Review and commit %d uncommitted change(s)", g.UncommittedCount))
	}
	lines = append(lines, "")

	return strings.Join(lines, "\n")
}

func appendList(lines []string, heading string, items []string) []string {
	if len(items) == 0 {
		return lines
	}
	lines = append(lines, heading, "")
	for _, item := range items {
		lines = append(lines, "- "+item)
	}
	return append(lines, "")
}

// todoBox is the plain-text counterpart of todoIcon for markdown output.
func todoBox(status string) string {
	switch status {
	case "in_progress":
		return "[~]"
	case "blocked":
		return "[!]"
	}
	return "[ ]"
}
