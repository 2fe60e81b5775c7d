// Package thought defines the validated data model for a sequential
// thinking session: one Thought per recorded step, tagged with a workflow
// stage and optional coding metadata.
//
// Validation here only accepts already-typed values and fails closed.
// Loose inbound coercion (stringified numbers, stage aliases) is the
// dispatch layer's job and happens before this boundary.
package thought

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidInput is returned when a thought field fails validation.
// The wrap message names the offending field and the violated constraint.
var ErrInvalidInput = errors.New("pensee: invalid input")

// Stage is the workflow phase a thought belongs to.
type Stage string

// Canonical stages, in workflow order.
const (
	StageScoping        Stage = "Scoping"
	StageResearch       Stage = "Research & Spike"
	StageImplementation Stage = "Implementation"
	StageTesting        Stage = "Testing"
	StageReview         Stage = "Review"
)

// Stages lists the canonical stages in workflow order.
func Stages() []Stage {
	return []Stage{StageScoping, StageResearch, StageImplementation, StageTesting, StageReview}
}

// ParseStage resolves a string to a canonical Stage, case-insensitively.
// An empty string defaults to Implementation. Synonyms ("planning",
// "build", ...) are resolved upstream by the dispatcher, never here.
func ParseStage(s string) (Stage, error) {
	if strings.TrimSpace(s) == "" {
		return StageImplementation, nil
	}
	folded := strings.ToLower(strings.TrimSpace(s))
	for _, stage := range Stages() {
		if strings.ToLower(string(stage)) == folded {
			return stage, nil
		}
	}
	return "", fmt.Errorf("%w: unknown stage %q (valid: %s)", ErrInvalidInput, s, stageList())
}

func stageList() string {
	names := make([]string, 0, 5)
	for _, stage := range Stages() {
		names = append(names, string(stage))
	}
	return strings.Join(names, ", ")
}

// RiskLevel is the relative risk of a thought.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// ParseRiskLevel resolves a string to a RiskLevel. Empty defaults to medium.
func ParseRiskLevel(s string) (RiskLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return RiskMedium, nil
	case "low":
		return RiskLow, nil
	case "medium":
		return RiskMedium, nil
	case "high":
		return RiskHigh, nil
	}
	return "", fmt.Errorf("%w: unknown risk_level %q (valid: low, medium, high)", ErrInvalidInput, s)
}

// Thought is one validated, immutable step in a thinking session.
type Thought struct {
	ID                    string    `json:"id"`
	Thought               string    `json:"thought"`
	ThoughtNumber         int       `json:"thought_number"`
	TotalThoughts         int       `json:"total_thoughts"`
	NextThoughtNeeded     bool      `json:"next_thought_needed"`
	Stage                 Stage     `json:"stage"`
	Tags                  []string  `json:"tags"`
	AxiomsUsed            []string  `json:"axioms_used"`
	AssumptionsChallenged []string  `json:"assumptions_challenged"`
	FilesTouched          []string  `json:"files_touched"`
	TestsToRun            []string  `json:"tests_to_run"`
	Dependencies          []string  `json:"dependencies"`
	RiskLevel             RiskLevel `json:"risk_level"`
	ConfidenceScore       float64   `json:"confidence_score"`
	ProjectID             string    `json:"project_id"`
	CreatedAt             int64     `json:"created_at"` // unix ms
}

// Input carries the already-typed raw fields for one thought.
// Optional defaults (risk=medium, confidence=0.5, project="default") are
// applied by the dispatcher before New is called; New only fills the
// structural defaults it owns (ID, CreatedAt, risk when blank).
type Input struct {
	Thought               string
	ThoughtNumber         int
	TotalThoughts         int
	NextThoughtNeeded     bool
	Stage                 Stage
	Tags                  []string
	AxiomsUsed            []string
	AssumptionsChallenged []string
	FilesTouched          []string
	TestsToRun            []string
	Dependencies          []string
	RiskLevel             RiskLevel
	ConfidenceScore       float64
	ProjectID             string
}

// New validates in and builds a Thought. id and createdAt come from the
// caller so the service controls ID strategy and the clock is testable.
func New(in Input, id string, createdAt int64) (*Thought, error) {
	if in.RiskLevel == "" {
		in.RiskLevel = RiskMedium
	}
	if err := validate(&in); err != nil {
		return nil, err
	}
	return &Thought{
		ID:                    id,
		Thought:               strings.TrimSpace(in.Thought),
		ThoughtNumber:         in.ThoughtNumber,
		TotalThoughts:         in.TotalThoughts,
		NextThoughtNeeded:     in.NextThoughtNeeded,
		Stage:                 in.Stage,
		Tags:                  emptyIfNil(in.Tags),
		AxiomsUsed:            emptyIfNil(in.AxiomsUsed),
		AssumptionsChallenged: emptyIfNil(in.AssumptionsChallenged),
		FilesTouched:          emptyIfNil(in.FilesTouched),
		TestsToRun:            emptyIfNil(in.TestsToRun),
		Dependencies:          emptyIfNil(in.Dependencies),
		RiskLevel:             in.RiskLevel,
		ConfidenceScore:       in.ConfidenceScore,
		ProjectID:             in.ProjectID,
		CreatedAt:             createdAt,
	}, nil
}

// validate checks the field invariants. total_thoughts >= thought_number is
// deliberately not enforced: the planned total is an informational hint the
// caller revises as the session grows.
func validate(in *Input) error {
	if strings.TrimSpace(in.Thought) == "" {
		return fmt.Errorf("%w: thought text is required", ErrInvalidInput)
	}
	if in.ThoughtNumber < 1 {
		return fmt.Errorf("%w: thought_number must be >= 1, got %d", ErrInvalidInput, in.ThoughtNumber)
	}
	if in.TotalThoughts < 1 {
		return fmt.Errorf("%w: total_thoughts must be >= 1, got %d", ErrInvalidInput, in.TotalThoughts)
	}
	switch in.Stage {
	case StageScoping, StageResearch, StageImplementation, StageTesting, StageReview:
	default:
		return fmt.Errorf("%w: unknown stage %q (valid: %s)", ErrInvalidInput, in.Stage, stageList())
	}
	// Canonicalise so a mixed-case spelling never persists raw.
	risk, err := ParseRiskLevel(string(in.RiskLevel))
	if err != nil {
		return err
	}
	in.RiskLevel = risk
	if in.ConfidenceScore < 0.0 || in.ConfidenceScore > 1.0 {
		return fmt.Errorf("%w: confidence_score must be between 0.0 and 1.0, got %g", ErrInvalidInput, in.ConfidenceScore)
	}
	return nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
