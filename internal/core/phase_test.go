package core

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/agentkit-forge/agentkit/pkg/models"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func phaseState(phase int) *models.OrchestratorState {
	return &models.OrchestratorState{
		SchemaVersion: models.StateSchemaVersion,
		CurrentPhase:  phase,
		PhaseName:     Phases[phase],
		NextAction:    InitialNextAction,
		TeamProgress:  map[string]models.TeamProgress{"team-backend": {Status: models.TeamIdle}},
		TodoItems:     []models.TodoItem{},
	}
}

func TestAdvance_WalksEveryPhase(t *testing.T) {
	m := NewPhaseMachine(nil)
	state := phaseState(PhaseDiscovery)

	for want := PhasePlanning; want <= FinalPhase; want++ {
		next, err := m.Advance(state)
		if err != nil {
			t.Fatalf("Advance to %d: %v", want, err)
		}
		if next.CurrentPhase != want || next.PhaseName != Phases[want] {
			t.Errorf("phase = %d %s, want %d %s", next.CurrentPhase, next.PhaseName, want, Phases[want])
		}
		if next.LastPhaseCompleted != want-1 {
			t.Errorf("LastPhaseCompleted = %d, want %d", next.LastPhaseCompleted, want-1)
		}
		if next.NextAction != NextActionFor(want) {
			t.Errorf("NextAction = %q", next.NextAction)
		}
		if state.CurrentPhase != want-1 {
			t.Fatalf("Advance modified its input")
		}
		state = next
	}

	done, err := m.Advance(state)
	if err != nil {
		t.Fatalf("Advance past final phase: %v", err)
	}
	if !done.Completed || done.CurrentPhase != FinalPhase || done.NextAction != CompleteNextAction {
		t.Errorf("completed state = %+v", done)
	}

	if _, err := m.Advance(done); !errors.Is(err, ErrAllPhasesComplete) {
		t.Errorf("Advance after completion err = %v, want ErrAllPhasesComplete", err)
	}
}

func TestSetPhase(t *testing.T) {
	m := NewPhaseMachine(nil)
	completed := phaseState(FinalPhase)
	completed.Completed = true

	next, err := m.SetPhase(completed, PhaseImplementation)
	if err != nil {
		t.Fatalf("SetPhase: %v", err)
	}
	if next.CurrentPhase != 3 || next.PhaseName != "Implementation" || next.LastPhaseCompleted != 2 || next.Completed {
		t.Errorf("state = %+v", next)
	}
	if !completed.Completed {
		t.Error("SetPhase modified its input")
	}

	for _, bad := range []int{0, 6, -1} {
		_, err := m.SetPhase(completed, bad)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("SetPhase(%d) err = %v, want ValidationError", bad, err)
		}
	}
	if _, err := m.SetPhase(completed, 9); err == nil || err.Error() != "invalid phase: 9. Must be 1-5" {
		t.Errorf("err = %v", err)
	}
}

func TestUpdateTeamStatus(t *testing.T) {
	m := NewPhaseMachine(nil)
	state := phaseState(PhaseImplementation)
	at := time.Date(2026, 3, 14, 10, 30, 0, 0, time.FixedZone("AEST", 10*3600))

	notes := "API done, wiring UI"
	next, err := m.UpdateTeamStatus(state, "team-frontend", models.TeamInProgress, &notes, at)
	if err != nil {
		t.Fatalf("UpdateTeamStatus: %v", err)
	}
	got := next.TeamProgress["team-frontend"]
	if got.Status != models.TeamInProgress || got.Notes != notes {
		t.Errorf("progress = %+v", got)
	}
	if got.LastUpdated == nil || !got.LastUpdated.Equal(at) || got.LastUpdated.Location() != time.UTC {
		t.Errorf("LastUpdated = %v, want %v in UTC", got.LastUpdated, at)
	}
	if _, touched := state.TeamProgress["team-frontend"]; touched {
		t.Error("UpdateTeamStatus modified its input")
	}

	again, err := m.UpdateTeamStatus(next, "team-frontend", models.TeamDone, nil, at)
	if err != nil {
		t.Fatalf("UpdateTeamStatus: %v", err)
	}
	if again.TeamProgress["team-frontend"].Notes != notes {
		t.Error("nil notes must keep the previous notes")
	}

	if _, err := m.UpdateTeamStatus(state, "team-marketing", models.TeamDone, nil, at); err == nil || !strings.HasPrefix(err.Error(), "unknown team: team-marketing. Valid teams: team-backend, ") {
		t.Errorf("unknown team err = %v", err)
	}
	if _, err := m.UpdateTeamStatus(state, "team-backend", "paused", nil, at); err == nil || err.Error() != "invalid status: paused. Valid: idle, in_progress, blocked, done" {
		t.Errorf("invalid status err = %v", err)
	}
}

func TestUpdateTeamStatus_UsesConfiguredRoster(t *testing.T) {
	m := NewPhaseMachine(NewTeamRoster([]models.Team{{ID: "team-alpha"}}))
	state := phaseState(PhaseDiscovery)

	if _, err := m.UpdateTeamStatus(state, "team-alpha", models.TeamBlocked, nil, time.Now()); err != nil {
		t.Errorf("rostered team rejected: %v", err)
	}
	if _, err := m.UpdateTeamStatus(state, "team-backend", models.TeamBlocked, nil, time.Now()); err == nil {
		t.Error("team outside the configured roster was accepted")
	}
}

func TestNewTeamRoster_DropsBlankAndDuplicateIDs(t *testing.T) {
	r := NewTeamRoster([]models.Team{{ID: "a"}, {ID: ""}, {ID: "b", Name: "B"}, {ID: "a", Name: "again"}})
	if want := []string{"a", "b"}; !reflect.DeepEqual(r.IDs(), want) {
		t.Errorf("IDs = %v, want %v", r.IDs(), want)
	}
	if r.Teams()[1].Name != "B" {
		t.Errorf("Teams = %+v", r.Teams())
	}
}

func TestLoadTeamRoster(t *testing.T) {
	writeTeams := func(t *testing.T, content string) string {
		t.Helper()
		root := t.TempDir()
		if err := os.MkdirAll(filepath.Join(root, "spec"), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(root, "spec", "teams.yaml"), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		return root
	}

	t.Run("reads the roster file", func(t *testing.T) {
		root := writeTeams(t, "teams:\n  - id: team-api\n    name: API\n    focus: endpoints\n  - id: team-web\n")
		r := LoadTeamRoster(root, nil)
		if want := []string{"team-api", "team-web"}; !reflect.DeepEqual(r.IDs(), want) {
			t.Errorf("IDs = %v, want %v", r.IDs(), want)
		}
		if r.Teams()[0].Focus != "endpoints" {
			t.Errorf("Teams = %+v", r.Teams())
		}
	})

	t.Run("missing file falls back quietly", func(t *testing.T) {
		core, logs := observer.New(zap.WarnLevel)
		r := LoadTeamRoster(t.TempDir(), zap.New(core))
		if !reflect.DeepEqual(r.IDs(), DefaultTeamIDs) {
			t.Errorf("IDs = %v, want defaults", r.IDs())
		}
		if logs.Len() != 0 {
			t.Errorf("unexpected warnings: %v", logs.All())
		}
	})

	for name, content := range map[string]string{
		"invalid yaml": "teams: [unclosed",
		"no teams":     "teams: []\n",
	} {
		t.Run(name+" falls back with a warning", func(t *testing.T) {
			core, logs := observer.New(zap.WarnLevel)
			r := LoadTeamRoster(writeTeams(t, content), zap.New(core))
			if !reflect.DeepEqual(r.IDs(), DefaultTeamIDs) {
				t.Errorf("IDs = %v, want defaults", r.IDs())
			}
			if logs.FilterMessage("could not load teams from spec, using defaults").Len() != 1 {
				t.Errorf("expected one fallback warning, got %v", logs.All())
			}
		})
	}
}
