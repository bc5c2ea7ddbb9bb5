package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/agentkit-forge/agentkit/internal/core"
	"github.com/agentkit-forge/agentkit/internal/observability"
	"github.com/agentkit-forge/agentkit/pkg/models"
)

func TestOrchestrateCmd_Subcommands(t *testing.T) {
	expected := []string{"status", "advance", "set-phase", "team", "force-unlock", "todo", "invoke"}
	subs := make(map[string]bool)
	for _, cmd := range orchestrateCmd.Commands() {
		subs[cmd.Name()] = true
	}
	for _, name := range expected {
		if !subs[name] {
			t.Errorf("expected subcommand %q on 'orchestrate'", name)
		}
	}
}

func TestOrchestrate_NilOrchestrator(t *testing.T) {
	setFlag(t, &Orchestrator, nil)

	_, err := run(t, orchestrateStatusCmd)
	if err == nil || !strings.Contains(err.Error(), "orchestrator not initialized") {
		t.Errorf("err = %v, want orchestrator not initialized", err)
	}
}

func TestOrchestrateStatus(t *testing.T) {
	setupServices(t)
	setFlag(t, &orchestrateStatusJSON, false)

	out := mustRun(t, orchestrateStatusCmd)
	if !strings.Contains(out, "Discovery") {
		t.Errorf("status output missing phase name:\n%s", out)
	}

	setFlag(t, &orchestrateStatusJSON, true)
	var state models.OrchestratorState
	if err := json.Unmarshal([]byte(mustRun(t, orchestrateStatusCmd)), &state); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if state.CurrentPhase != 1 || state.SchemaVersion != models.StateSchemaVersion {
		t.Errorf("state = phase %d schema %q", state.CurrentPhase, state.SchemaVersion)
	}
}

func TestOrchestrateAdvance(t *testing.T) {
	env := setupServices(t)

	out := mustRun(t, orchestrateAdvanceCmd)
	want := fmt.Sprintf("Phase 2/5 — Planning\nNext: %s\n", core.NextActionFor(core.PhasePlanning))
	if out != want {
		t.Errorf("output = %q, want %q", out, want)
	}

	events, err := env.events.Read(observability.EventFilter{Action: "phase_advanced"})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Errorf("phase_advanced events = %d, want 1", len(events))
	}
	if _, err := os.Stat(filepath.Join(env.stateDir, "orchestrator.lock")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("session lock left behind after advance: %v", err)
	}
}

func TestOrchestrateAdvance_ToCompletion(t *testing.T) {
	setupServices(t)
	mustRun(t, orchestrateSetPhaseCmd, "5")

	out := mustRun(t, orchestrateAdvanceCmd)
	if !strings.HasPrefix(out, "All phases complete.\n") {
		t.Errorf("output = %q", out)
	}
	if _, err := run(t, orchestrateAdvanceCmd); err == nil {
		t.Error("expected error advancing a completed workflow")
	}
}

func TestOrchestrateSetPhase(t *testing.T) {
	setupServices(t)

	out := mustRun(t, orchestrateSetPhaseCmd, "3")
	if !strings.HasPrefix(out, "Phase 3/5 — Implementation\n") {
		t.Errorf("output = %q", out)
	}

	_, err := run(t, orchestrateSetPhaseCmd, "three")
	if err == nil || err.Error() != "invalid phase: three. Must be 1-5" {
		t.Errorf("err = %v", err)
	}
	if _, err := run(t, orchestrateSetPhaseCmd, "9"); err == nil {
		t.Error("expected error for phase 9")
	}
}

func TestOrchestrateTeam(t *testing.T) {
	setupServices(t)
	team := core.DefaultTeamIDs[0]

	setFlag(t, &orchestrateTeamNotes, "")
	out := mustRun(t, orchestrateTeamCmd, team, "in_progress")
	if out != team+" is now in_progress\n" {
		t.Errorf("output = %q", out)
	}

	if err := orchestrateTeamCmd.Flags().Set("notes", "waiting on schema"); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { orchestrateTeamCmd.Flags().Lookup("notes").Changed = false })
	out = mustRun(t, orchestrateTeamCmd, team, "blocked")
	if out != team+" is now blocked — waiting on schema\n" {
		t.Errorf("output = %q", out)
	}

	if _, err := run(t, orchestrateTeamCmd, "team-nobody", "done"); err == nil {
		t.Error("expected error for unknown team")
	}
	if _, err := run(t, orchestrateTeamCmd, team, "sleeping"); err == nil {
		t.Error("expected error for invalid team status")
	}
}

func TestOrchestrateTodoAdd(t *testing.T) {
	setupServices(t)
	setFlag(t, &todoTeam, "")

	if out := mustRun(t, orchestrateTodoAddCmd, "write", "the", "runbook"); out != "Added todo-1: write the runbook\n" {
		t.Errorf("output = %q", out)
	}
	if out := mustRun(t, orchestrateTodoAddCmd, "second"); out != "Added todo-2: second\n" {
		t.Errorf("output = %q", out)
	}
}

func TestOrchestrateForceUnlock(t *testing.T) {
	env := setupServices(t)

	if out := mustRun(t, orchestrateForceUnlockCmd); out != "No session lock to release.\n" {
		t.Errorf("output = %q", out)
	}

	lock := fmt.Sprintf(`{"pid":4242,"hostname":"ci","started_at":"%s","session_id":"s-1"}`, time.Now().UTC().Format(time.RFC3339))
	writeFile(t, filepath.Join(env.stateDir, "orchestrator.lock"), lock)

	_, err := run(t, orchestrateAdvanceCmd)
	if !errors.Is(err, core.ErrLockHeld) {
		t.Fatalf("advance with a live lock: err = %v, want ErrLockHeld", err)
	}

	if out := mustRun(t, orchestrateForceUnlockCmd); out != "Session lock released.\n" {
		t.Errorf("output = %q", out)
	}
	mustRun(t, orchestrateAdvanceCmd)
}

func TestOrchestrateInvoke(t *testing.T) {
	setupServices(t)

	out := mustRun(t, orchestrateInvokeCmd)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[0], "Session ") || lines[1] != "Phase 1/5 — Discovery" {
		t.Errorf("output = %q", out)
	}

	var state models.OrchestratorState
	setFlag(t, &orchestrateStatusJSON, true)
	if err := json.Unmarshal([]byte(mustRun(t, orchestrateStatusCmd)), &state); err != nil {
		t.Fatal(err)
	}
	if state.SessionID == "" || lines[0] != "Session "+state.SessionID {
		t.Errorf("session %q not recorded in state (output %q)", state.SessionID, lines[0])
	}
}
