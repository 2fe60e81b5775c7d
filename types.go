package pensee

import (
	"github.com/hazyhaar/pensee/internal/analysis"
	"github.com/hazyhaar/pensee/internal/thought"
)

// Re-exported domain types so callers need only the root package.
type (
	Thought   = thought.Thought
	Stage     = thought.Stage
	RiskLevel = thought.RiskLevel
	Summary   = analysis.Summary
	Analysis  = analysis.Analysis
)

const (
	StageScoping        = thought.StageScoping
	StageResearch       = thought.StageResearch
	StageImplementation = thought.StageImplementation
	StageTesting        = thought.StageTesting
	StageReview         = thought.StageReview
)

const (
	RiskLow    = thought.RiskLow
	RiskMedium = thought.RiskMedium
	RiskHigh   = thought.RiskHigh
)
