package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/agentkit-forge/agentkit/pkg/models"
	"github.com/go-git/go-git/v5"
	"go.uber.org/zap"
)

const (
	repoMarkerFile = ".agentkit-repo"
	defaultBranch  = "main"
	unknownRepoID  = "unknown"

	// InitialNextAction is the hint written into a freshly created state.
	InitialNextAction = "Run /orchestrate to begin project assessment"
)

// ErrStateCorrupt is returned when orchestrator.json exists but cannot be
// decoded. The file is left in place for inspection.
var ErrStateCorrupt = errors.New("orchestrator state is corrupt")

// StateStore loads and persists the orchestrator state record.
type StateStore interface {
	Load() (*models.OrchestratorState, error)
	Peek() (*models.OrchestratorState, error)
	Save(state *models.OrchestratorState) error
}

// fileStateStore implements StateStore as a single JSON file.
type fileStateStore struct {
	path        string
	projectRoot string
	teamIDs     []string
	logger      *zap.Logger
}

// NewStateStore creates a StateStore persisting to path. projectRoot is used
// to derive the repo id and branch of a new state; teamIDs seeds its
// team_progress map.
func NewStateStore(path, projectRoot string, teamIDs []string, logger *zap.Logger) StateStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &fileStateStore{path: path, projectRoot: projectRoot, teamIDs: teamIDs, logger: logger}
}

// Load returns the persisted state. A missing file is replaced with a
// default state, which is saved before returning. A file that exists but
// cannot be decoded yields an error wrapping ErrStateCorrupt and is never
// overwritten.
func (s *fileStateStore) Load() (*models.OrchestratorState, error) {
	state, found, err := s.read()
	if err != nil || found {
		return state, err
	}
	if err := s.Save(state); err != nil {
		return nil, err
	}
	return state, nil
}

// Peek is Load without side effects: a missing file yields the default state
// in memory only.
func (s *fileStateStore) Peek() (*models.OrchestratorState, error) {
	state, _, err := s.read()
	return state, err
}

// read decodes the state file. found is false when the file does not exist,
// in which case the default state is returned.
func (s *fileStateStore) read() (*models.OrchestratorState, bool, error) {
	var state models.OrchestratorState
	err := ReadJSON(s.path, &state)
	switch {
	case err == nil:
		if state.TeamProgress == nil {
			state.TeamProgress = make(map[string]models.TeamProgress)
		}
		return &state, true, nil
	case errors.Is(err, os.ErrNotExist):
		return s.defaultState(), false, nil
	default:
		s.logger.Error("orchestrator state unreadable",
			zap.String("path", s.path), zap.Error(err))
		return nil, true, fmt.Errorf("%w: %w", ErrStateCorrupt, err)
	}
}

// Save writes the state atomically.
func (s *fileStateStore) Save(state *models.OrchestratorState) error {
	if err := WriteJSONAtomic(s.path, state); err != nil {
		return fmt.Errorf("saving orchestrator state: %w", err)
	}
	return nil
}

func (s *fileStateStore) defaultState() *models.OrchestratorState {
	progress := make(map[string]models.TeamProgress, len(s.teamIDs))
	for _, id := range s.teamIDs {
		progress[id] = models.TeamProgress{Status: models.TeamIdle}
	}
	return &models.OrchestratorState{
		SchemaVersion:      models.StateSchemaVersion,
		RepoID:             readRepoID(s.projectRoot),
		Branch:             DetectBranch(s.projectRoot),
		CurrentPhase:       1,
		PhaseName:          "Discovery",
		LastPhaseCompleted: 0,
		NextAction:         InitialNextAction,
		TeamProgress:       progress,
		TodoItems:          []models.TodoItem{},
		RecentResults:      []json.RawMessage{},
	}
}

func readRepoID(projectRoot string) string {
	data, err := os.ReadFile(filepath.Join(projectRoot, repoMarkerFile))
	if err != nil {
		return unknownRepoID
	}
	if id := strings.TrimSpace(string(data)); id != "" {
		return id
	}
	return unknownRepoID
}

// DetectBranch returns the branch checked out at projectRoot, or "main" when
// the directory is not a git repository or HEAD is detached.
func DetectBranch(projectRoot string) string {
	repo, err := git.PlainOpenWithOptions(projectRoot, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return defaultBranch
	}
	head, err := repo.Head()
	if err != nil {
		return defaultBranch
	}
	if head.Name().IsBranch() {
		return head.Name().Short()
	}
	return defaultBranch
}
