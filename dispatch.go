package pensee

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hazyhaar/pensee/internal/store"
	"github.com/hazyhaar/pensee/internal/thought"
)

// ThoughtRequest is the wire-level input for ProcessThought. Fields use
// snake_case; a set of camelCase legacy aliases is accepted on unmarshal
// for older tool bridges. Normalization and defaulting happen here so the
// validation layer only ever sees typed values.
type ThoughtRequest struct {
	Thought               string   `json:"thought"`
	ThoughtNumber         int      `json:"thought_number"`
	TotalThoughts         int      `json:"total_thoughts"`
	NextThoughtNeeded     bool     `json:"next_thought_needed"`
	Stage                 string   `json:"stage"`
	Tags                  []string `json:"tags"`
	AxiomsUsed            []string `json:"axioms_used"`
	AssumptionsChallenged []string `json:"assumptions_challenged"`
	FilesTouched          []string `json:"files_touched"`
	TestsToRun            []string `json:"tests_to_run"`
	Dependencies          []string `json:"dependencies"`
	RiskLevel             string   `json:"risk_level"`
	ConfidenceScore       *float64 `json:"confidence_score"`
	ProjectID             string   `json:"project_id"`
}

// legacyAliases maps canonical keys to accepted camelCase spellings.
var legacyAliases = map[string][]string{
	"thought_number":         {"thoughtNumber"},
	"total_thoughts":         {"totalThoughts"},
	"next_thought_needed":    {"nextThoughtNeeded"},
	"axioms_used":            {"axiomsUsed"},
	"assumptions_challenged": {"assumptionsChallenged"},
	"files_touched":          {"filesTouched"},
	"tests_to_run":           {"testsToRun"},
	"risk_level":             {"riskLevel"},
	"confidence_score":       {"confidenceScore"},
	"project_id":             {"projectId"},
}

// UnmarshalJSON folds legacy aliases into their canonical keys before
// decoding. A canonical key always wins over its alias.
func (r *ThoughtRequest) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for canonical, aliases := range legacyAliases {
		if _, ok := raw[canonical]; ok {
			continue
		}
		for _, alias := range aliases {
			if v, ok := raw[alias]; ok {
				raw[canonical] = v
				break
			}
		}
	}
	folded, err := json.Marshal(raw)
	if err != nil {
		return err
	}

	// Alias-free shadow type to avoid recursing into this method.
	type plain ThoughtRequest
	var p plain
	if err := json.Unmarshal(folded, &p); err != nil {
		return err
	}
	*r = ThoughtRequest(p)
	return nil
}

// stageSynonyms smooths over the stage names other tools use.
var stageSynonyms = map[string]thought.Stage{
	"scope":            thought.StageScoping,
	"requirements":     thought.StageScoping,
	"planning (scope)": thought.StageScoping,
	"project scoping":  thought.StageScoping,
	"research":         thought.StageResearch,
	"spike":            thought.StageResearch,
	"spike/research":   thought.StageResearch,
	"investigate":      thought.StageResearch,
	"r&d":              thought.StageResearch,
	"implement":        thought.StageImplementation,
	"build":            thought.StageImplementation,
	"coding":           thought.StageImplementation,
	"develop":          thought.StageImplementation,
	"development":      thought.StageImplementation,
	"plan":             thought.StageImplementation,
	"planning":         thought.StageImplementation,
	"test":             thought.StageTesting,
	"qa":               thought.StageTesting,
	"validate":         thought.StageTesting,
	"verification":     thought.StageTesting,
	"code review":      thought.StageReview,
	"finalize":         thought.StageReview,
	"ship":             thought.StageReview,
	"pr review":        thought.StageReview,
}

// ResolveStage maps a raw stage string to a canonical Stage, accepting the
// canonical names (any case), common synonyms, and empty for the default.
func ResolveStage(raw string) (thought.Stage, error) {
	stage, err := thought.ParseStage(raw)
	if err == nil {
		return stage, nil
	}
	if s, ok := stageSynonyms[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return s, nil
	}
	return "", err
}

// defaultConfidence applies when the caller omits confidence_score.
const defaultConfidence = 0.5

// normalize converts a wire request into validated-input form: stage
// synonyms resolved, absent optionals defaulted, project identifier
// sanitized. A blank project_id falls back to defaultProject.
func normalize(req *ThoughtRequest, defaultProject string) (thought.Input, error) {
	stage, err := ResolveStage(req.Stage)
	if err != nil {
		return thought.Input{}, err
	}
	risk, err := thought.ParseRiskLevel(req.RiskLevel)
	if err != nil {
		return thought.Input{}, err
	}
	confidence := defaultConfidence
	if req.ConfidenceScore != nil {
		confidence = *req.ConfidenceScore
	}
	project := req.ProjectID
	if strings.TrimSpace(project) == "" {
		project = defaultProject
	}
	return thought.Input{
		Thought:               req.Thought,
		ThoughtNumber:         req.ThoughtNumber,
		TotalThoughts:         req.TotalThoughts,
		NextThoughtNeeded:     req.NextThoughtNeeded,
		Stage:                 stage,
		Tags:                  req.Tags,
		AxiomsUsed:            req.AxiomsUsed,
		AssumptionsChallenged: req.AssumptionsChallenged,
		FilesTouched:          req.FilesTouched,
		TestsToRun:            req.TestsToRun,
		Dependencies:          req.Dependencies,
		RiskLevel:             risk,
		ConfidenceScore:       confidence,
		ProjectID:             store.SanitizeProjectID(project),
	}, nil
}

// requireFilePath validates a caller-supplied file path argument.
func requireFilePath(path, field string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidInput, field)
	}
	return nil
}
