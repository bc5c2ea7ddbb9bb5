package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/agentkit-forge/agentkit/pkg/models"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// DefaultTeamIDs are the teams used when no roster file is present.
var DefaultTeamIDs = []string{
	"team-backend", "team-frontend", "team-data", "team-infra", "team-devops",
	"team-testing", "team-security", "team-docs", "team-product", "team-quality",
}

// TeamRoster is the set of teams tasks and team-status updates may name. It
// is loaded once per process and passed to the components that need it.
type TeamRoster struct {
	teams []models.Team
}

// NewTeamRoster creates a roster from teams, dropping entries without an ID
// and repeated IDs.
func NewTeamRoster(teams []models.Team) *TeamRoster {
	r := &TeamRoster{}
	for _, t := range teams {
		if t.ID == "" || r.Has(t.ID) {
			continue
		}
		r.teams = append(r.teams, t)
	}
	return r
}

// DefaultTeamRoster returns a roster of DefaultTeamIDs.
func DefaultTeamRoster() *TeamRoster {
	teams := make([]models.Team, len(DefaultTeamIDs))
	for i, id := range DefaultTeamIDs {
		teams[i] = models.Team{ID: id}
	}
	return NewTeamRoster(teams)
}

// Teams returns the roster entries in file order.
func (r *TeamRoster) Teams() []models.Team {
	return slices.Clone(r.teams)
}

// IDs returns the team IDs in roster order.
func (r *TeamRoster) IDs() []string {
	ids := make([]string, len(r.teams))
	for i, t := range r.teams {
		ids[i] = t.ID
	}
	return ids
}

// Has reports whether id names a rostered team.
func (r *TeamRoster) Has(id string) bool {
	for _, t := range r.teams {
		if t.ID == id {
			return true
		}
	}
	return false
}

// teamsFile is the shape of spec/teams.yaml.
type teamsFile struct {
	Teams []models.Team `yaml:"teams"`
}

// LoadTeamRoster reads <agentkitRoot>/spec/teams.yaml. A missing file, a
// file that does not parse, or one that names no teams yields the default
// roster; the latter two are logged as warnings.
func LoadTeamRoster(agentkitRoot string, logger *zap.Logger) *TeamRoster {
	if logger == nil {
		logger = zap.NewNop()
	}
	path := filepath.Join(agentkitRoot, "spec", "teams.yaml")

	roster, err := readTeamsFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("could not load teams from spec, using defaults", zap.String("path", path), zap.Error(err))
		}
		return DefaultTeamRoster()
	}
	return roster
}

func readTeamsFile(path string) (*TeamRoster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f teamsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	roster := NewTeamRoster(f.Teams)
	if len(roster.teams) == 0 {
		return nil, fmt.Errorf("%s lists no teams with an id", path)
	}
	return roster, nil
}
