package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ArtifactType identifies the kind of payload an artifact carries.
type ArtifactType string

const (
	ArtifactFilesChanged   ArtifactType = "files-changed"
	ArtifactTestResults    ArtifactType = "test-results"
	ArtifactReviewFindings ArtifactType = "review-findings"
	ArtifactPlan           ArtifactType = "plan"
	ArtifactSummary        ArtifactType = "summary"
)

// ArtifactTypes lists every valid artifact type.
var ArtifactTypes = []ArtifactType{
	ArtifactFilesChanged, ArtifactTestResults, ArtifactReviewFindings,
	ArtifactPlan, ArtifactSummary,
}

// Valid reports whether t is a known artifact type.
func (t ArtifactType) Valid() bool {
	for _, known := range ArtifactTypes {
		if t == known {
			return true
		}
	}
	return false
}

// FilesChanged lists paths touched by the executor.
type FilesChanged struct {
	Paths []string
}

// TestResults summarises a test run.
type TestResults struct {
	Passed int
	Failed int
	Added  int
}

// Finding is a single review remark.
type Finding struct {
	Severity string `json:"severity,omitempty"`
	File     string `json:"file,omitempty"`
	Line     int    `json:"line,omitempty"`
	Message  string `json:"message"`
}

// ReviewFindings collects the remarks of a review pass.
type ReviewFindings struct {
	Findings []Finding
}

// PlanArtifact is an ordered list of intended steps.
type PlanArtifact struct {
	Steps []string
}

// Artifact is a typed output attached to a task. Exactly one payload field
// matching Type is set; the summary artifact carries only Summary.
type Artifact struct {
	Type    ArtifactType
	Summary string
	AddedAt time.Time

	FilesChanged   *FilesChanged
	TestResults    *TestResults
	ReviewFindings *ReviewFindings
	Plan           *PlanArtifact
}

// NewFilesChangedArtifact builds a files-changed artifact.
func NewFilesChangedArtifact(summary string, paths ...string) Artifact {
	return Artifact{Type: ArtifactFilesChanged, Summary: summary, FilesChanged: &FilesChanged{Paths: paths}}
}

// NewTestResultsArtifact builds a test-results artifact.
func NewTestResultsArtifact(summary string, passed, failed, added int) Artifact {
	return Artifact{
		Type:        ArtifactTestResults,
		Summary:     summary,
		TestResults: &TestResults{Passed: passed, Failed: failed, Added: added},
	}
}

// NewReviewFindingsArtifact builds a review-findings artifact.
func NewReviewFindingsArtifact(summary string, findings ...Finding) Artifact {
	return Artifact{Type: ArtifactReviewFindings, Summary: summary, ReviewFindings: &ReviewFindings{Findings: findings}}
}

// NewPlanArtifact builds a plan artifact.
func NewPlanArtifact(summary string, steps ...string) Artifact {
	return Artifact{Type: ArtifactPlan, Summary: summary, Plan: &PlanArtifact{Steps: steps}}
}

// NewSummaryArtifact builds a summary artifact.
func NewSummaryArtifact(summary string) Artifact {
	return Artifact{Type: ArtifactSummary, Summary: summary}
}

// Validate checks that the type is known and that no payload belonging to
// another type is set.
func (a Artifact) Validate() error {
	if !a.Type.Valid() {
		return fmt.Errorf("invalid artifact type: %q", a.Type)
	}
	set := map[ArtifactType]bool{
		ArtifactFilesChanged:   a.FilesChanged != nil,
		ArtifactTestResults:    a.TestResults != nil,
		ArtifactReviewFindings: a.ReviewFindings != nil,
		ArtifactPlan:           a.Plan != nil,
	}
	for kind, present := range set {
		if present && kind != a.Type {
			return fmt.Errorf("%s artifact carries a %s payload", a.Type, kind)
		}
	}
	return nil
}

// artifactWire is the flat on-disk shape shared by every artifact kind.
type artifactWire struct {
	Type     ArtifactType `json:"type"`
	Summary  string       `json:"summary,omitempty"`
	Paths    []string     `json:"paths,omitempty"`
	Passed   *int         `json:"passed,omitempty"`
	Failed   *int         `json:"failed,omitempty"`
	Added    *int         `json:"added,omitempty"`
	Findings []Finding    `json:"findings,omitempty"`
	Steps    []string     `json:"steps,omitempty"`
	AddedAt  *time.Time   `json:"addedAt,omitempty"`
}

// MarshalJSON writes the artifact in its flat wire form.
func (a Artifact) MarshalJSON() ([]byte, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	w := artifactWire{Type: a.Type, Summary: a.Summary}
	if !a.AddedAt.IsZero() {
		at := a.AddedAt
		w.AddedAt = &at
	}
	switch a.Type {
	case ArtifactFilesChanged:
		if a.FilesChanged != nil {
			w.Paths = a.FilesChanged.Paths
		}
	case ArtifactTestResults:
		var tr TestResults
		if a.TestResults != nil {
			tr = *a.TestResults
		}
		w.Passed, w.Failed, w.Added = &tr.Passed, &tr.Failed, &tr.Added
	case ArtifactReviewFindings:
		if a.ReviewFindings != nil {
			w.Findings = a.ReviewFindings.Findings
		}
	case ArtifactPlan:
		if a.Plan != nil {
			w.Steps = a.Plan.Steps
		}
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the flat wire form, rejecting unknown types.
func (a *Artifact) UnmarshalJSON(data []byte) error {
	var w artifactWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if !w.Type.Valid() {
		return fmt.Errorf("invalid artifact type: %q", w.Type)
	}

	*a = Artifact{Type: w.Type, Summary: w.Summary}
	if w.AddedAt != nil {
		a.AddedAt = *w.AddedAt
	}
	switch w.Type {
	case ArtifactFilesChanged:
		a.FilesChanged = &FilesChanged{Paths: w.Paths}
	case ArtifactTestResults:
		a.TestResults = &TestResults{Passed: deref(w.Passed), Failed: deref(w.Failed), Added: deref(w.Added)}
	case ArtifactReviewFindings:
		a.ReviewFindings = &ReviewFindings{Findings: w.Findings}
	case ArtifactPlan:
		a.Plan = &PlanArtifact{Steps: w.Steps}
	}
	return nil
}

func deref(n *int) int {
	if n == nil {
		return 0
	}
	return *n
}
