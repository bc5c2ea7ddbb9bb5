package core

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/agentkit-forge/agentkit/internal/storage"
	"github.com/agentkit-forge/agentkit/pkg/models"
)

// Phase numbers of the project workflow.
const (
	PhaseDiscovery = iota + 1
	PhasePlanning
	PhaseImplementation
	PhaseValidation
	PhaseShip
)

// FinalPhase is the last phase of the workflow.
const FinalPhase = PhaseShip

// Phases maps phase numbers to their display names.
var Phases = map[int]string{
	PhaseDiscovery:      "Discovery",
	PhasePlanning:       "Planning",
	PhaseImplementation: "Implementation",
	PhaseValidation:     "Validation",
	PhaseShip:           "Ship",
}

var phaseHints = map[int]string{
	PhaseDiscovery:      "Run /discover to scan the repository and identify tech stacks",
	PhasePlanning:       "Run /plan to create implementation plans for identified work items",
	PhaseImplementation: "Delegate to team agents (/team-*) to implement planned changes",
	PhaseValidation:     "Run /check to validate all changes pass quality gates",
	PhaseShip:           "Run /review for final review, then prepare deployment",
}

// Next-action hints outside the per-phase table.
const (
	InitialNextAction  = storage.InitialNextAction
	CompleteNextAction = "Project workflow complete. All phases finished."
)

// ErrAllPhasesComplete is returned when advancing a finished workflow.
var ErrAllPhasesComplete = errors.New("all phases are already complete")

// NextActionFor returns the hint shown while phase is current.
func NextActionFor(phase int) string {
	return phaseHints[phase]
}

// PhaseMachine applies phase and team-status changes to orchestrator state.
// Every method works on a copy and leaves its input untouched.
type PhaseMachine struct {
	roster *TeamRoster
}

// NewPhaseMachine creates a PhaseMachine validating team IDs against roster.
// A nil roster uses the default teams.
func NewPhaseMachine(roster *TeamRoster) *PhaseMachine {
	if roster == nil {
		roster = DefaultTeamRoster()
	}
	return &PhaseMachine{roster: roster}
}

// Roster returns the team roster the machine validates against.
func (m *PhaseMachine) Roster() *TeamRoster {
	return m.roster
}

// Advance moves to the next phase. Advancing from the final phase marks the
// workflow completed instead.
func (m *PhaseMachine) Advance(state *models.OrchestratorState) (*models.OrchestratorState, error) {
	if state.Completed {
		return nil, ErrAllPhasesComplete
	}
	next := state.Clone()
	if state.CurrentPhase >= FinalPhase {
		next.Completed = true
		next.NextAction = CompleteNextAction
		return next, nil
	}
	phase := state.CurrentPhase + 1
	if phase < PhaseDiscovery {
		phase = PhaseDiscovery
	}
	next.CurrentPhase = phase
	next.PhaseName = Phases[phase]
	next.LastPhaseCompleted = state.CurrentPhase
	next.NextAction = phaseHints[phase]
	return next, nil
}

// SetPhase jumps directly to phase and clears the completed flag.
func (m *PhaseMachine) SetPhase(state *models.OrchestratorState, phase int) (*models.OrchestratorState, error) {
	if phase < PhaseDiscovery || phase > FinalPhase {
		return nil, &ValidationError{Subject: "phase", Problems: []string{
			fmt.Sprintf("invalid phase: %d. Must be 1-5", phase),
		}}
	}
	next := state.Clone()
	next.CurrentPhase = phase
	next.PhaseName = Phases[phase]
	next.LastPhaseCompleted = phase - 1
	next.NextAction = phaseHints[phase]
	next.Completed = false
	return next, nil
}

// UpdateTeamStatus sets one team's status. A nil notes keeps the team's
// previous notes.
func (m *PhaseMachine) UpdateTeamStatus(state *models.OrchestratorState, team string, status models.TeamStatus, notes *string, now time.Time) (*models.OrchestratorState, error) {
	if !m.roster.Has(team) {
		return nil, &ValidationError{Subject: "team", Problems: []string{
			fmt.Sprintf("unknown team: %s. Valid teams: %s", team, joinEnum(m.roster.IDs())),
		}}
	}
	if !slices.Contains(models.TeamStatuses, status) {
		return nil, &ValidationError{Subject: "team", Problems: []string{
			fmt.Sprintf("invalid status: %s. Valid: %s", status, joinEnum(models.TeamStatuses)),
		}}
	}

	next := state.Clone()
	entry := next.TeamProgress[team]
	entry.Status = status
	if notes != nil {
		entry.Notes = *notes
	}
	ts := now.UTC()
	entry.LastUpdated = &ts
	next.TeamProgress[team] = entry
	return next, nil
}
