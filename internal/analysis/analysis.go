// Package analysis derives read-only insights from a thought history:
// session summaries, relatedness ranking and per-thought guidance.
// Nothing here mutates state; callers pass the history they loaded.
package analysis

import (
	"sort"

	"github.com/hazyhaar/pensee/internal/thought"
)

// maxRelated caps how many related thoughts are reported.
const maxRelated = 3

// TimelineEntry is one point on the session timeline.
type TimelineEntry struct {
	Number int    `json:"number"`
	Stage  string `json:"stage"`
}

// TagCount is one entry of the top-tags ranking.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// CompletionStatus reports how far the session has progressed against the
// largest planned total seen so far.
type CompletionStatus struct {
	HasAllStages    bool    `json:"hasAllStages"`
	PercentComplete float64 `json:"percentComplete"`
}

// RiskProfile counts thoughts per risk level.
type RiskProfile struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// Summary is the aggregate view of one project's history.
type Summary struct {
	Note              string           `json:"note,omitempty"`
	TotalThoughts     int              `json:"totalThoughts"`
	Stages            map[string]int   `json:"stages"`
	Timeline          []TimelineEntry  `json:"timeline"`
	TopTags           []TagCount       `json:"topTags"`
	CompletionStatus  CompletionStatus `json:"completionStatus"`
	ConfidenceAverage float64          `json:"confidenceAverage"`
	FilesTouched      []string         `json:"filesTouched"`
	RiskProfile       RiskProfile      `json:"riskProfile"`
	DependencyMap     map[string][]int `json:"dependencyMap"`
}

// Summarize aggregates the history. An empty history yields a zeroed
// summary with every stage present at count 0.
func Summarize(hist []*thought.Thought) *Summary {
	s := &Summary{
		TotalThoughts: len(hist),
		Stages:        make(map[string]int, 5),
		Timeline:      []TimelineEntry{},
		TopTags:       []TagCount{},
		FilesTouched:  []string{},
		DependencyMap: make(map[string][]int),
	}
	for _, stage := range thought.Stages() {
		s.Stages[string(stage)] = 0
	}
	if len(hist) == 0 {
		s.Note = "No thoughts recorded yet"
		return s
	}

	maxTotal := 0
	tagCounts := make(map[string]int)
	fileSet := make(map[string]bool)
	var confidenceSum float64
	for _, th := range hist {
		s.Stages[string(th.Stage)]++
		if th.TotalThoughts > maxTotal {
			maxTotal = th.TotalThoughts
		}
		for _, tag := range th.Tags {
			tagCounts[tag]++
		}
		for _, f := range th.FilesTouched {
			fileSet[f] = true
		}
		for _, dep := range th.Dependencies {
			s.DependencyMap[dep] = append(s.DependencyMap[dep], th.ThoughtNumber)
		}
		confidenceSum += th.ConfidenceScore
		switch th.RiskLevel {
		case thought.RiskHigh:
			s.RiskProfile.High++
		case thought.RiskLow:
			s.RiskProfile.Low++
		default:
			s.RiskProfile.Medium++
		}
	}

	ordered := make([]*thought.Thought, len(hist))
	copy(ordered, hist)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ThoughtNumber < ordered[j].ThoughtNumber
	})
	for _, th := range ordered {
		s.Timeline = append(s.Timeline, TimelineEntry{Number: th.ThoughtNumber, Stage: string(th.Stage)})
	}

	s.TopTags = topTags(tagCounts, 5)

	for f := range fileSet {
		s.FilesTouched = append(s.FilesTouched, f)
	}
	sort.Strings(s.FilesTouched)

	hasAll := true
	for _, stage := range thought.Stages() {
		if s.Stages[string(stage)] == 0 {
			hasAll = false
			break
		}
	}
	s.CompletionStatus.HasAllStages = hasAll
	if maxTotal > 0 {
		s.CompletionStatus.PercentComplete = float64(len(hist)) / float64(maxTotal) * 100
	}
	s.ConfidenceAverage = confidenceSum / float64(len(hist))
	return s
}

// topTags ranks tags by count descending, tag ascending for a stable order.
func topTags(counts map[string]int, n int) []TagCount {
	out := make([]TagCount, 0, len(counts))
	for tag, count := range counts {
		out = append(out, TagCount{Tag: tag, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Tag < out[j].Tag
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// Related ranks the history against current and returns at most three
// relatives. A thought relates when it shares the stage, a tag, a touched
// file, a dependency, or the risk level with a positive combined score:
// same stage weighs 3, each shared file 2, each shared tag or dependency 1,
// matching risk 1. Ties break toward the higher thought number.
func Related(current *thought.Thought, hist []*thought.Thought) []*thought.Thought {
	tags := toSet(current.Tags)
	files := toSet(current.FilesTouched)
	deps := toSet(current.Dependencies)

	type scored struct {
		score int
		th    *thought.Thought
	}
	var candidates []scored
	for _, th := range hist {
		if th.ID == current.ID {
			continue
		}
		score := 0
		if th.Stage == current.Stage {
			score += 3
		}
		score += overlap(tags, th.Tags)
		score += overlap(files, th.FilesTouched) * 2
		score += overlap(deps, th.Dependencies)
		if th.RiskLevel == current.RiskLevel {
			score++
		}
		if score > 0 {
			candidates = append(candidates, scored{score, th})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].th.ThoughtNumber > candidates[j].th.ThoughtNumber
	})
	if len(candidates) > maxRelated {
		candidates = candidates[:maxRelated]
	}
	out := make([]*thought.Thought, len(candidates))
	for i, c := range candidates {
		out[i] = c.th
	}
	return out
}

func toSet(vals []string) map[string]bool {
	set := make(map[string]bool, len(vals))
	for _, v := range vals {
		set[v] = true
	}
	return set
}

func overlap(set map[string]bool, vals []string) int {
	n := 0
	for _, v := range vals {
		if set[v] {
			n++
		}
	}
	return n
}

// RelatedSummary is the compact form of a related thought.
type RelatedSummary struct {
	ThoughtNumber int    `json:"thoughtNumber"`
	Stage         string `json:"stage"`
	Snippet       string `json:"snippet"`
}

// CurrentThought echoes the analyzed thought's key fields.
type CurrentThought struct {
	ThoughtNumber     int      `json:"thoughtNumber"`
	TotalThoughts     int      `json:"totalThoughts"`
	NextThoughtNeeded bool     `json:"nextThoughtNeeded"`
	Stage             string   `json:"stage"`
	Tags              []string `json:"tags"`
	CreatedAt         int64    `json:"createdAt"`
}

// ThoughtInsights carries the per-thought findings.
type ThoughtInsights struct {
	RelatedThoughtsCount    int              `json:"relatedThoughtsCount"`
	RelatedThoughtSummaries []RelatedSummary `json:"relatedThoughtSummaries"`
	Progress                float64          `json:"progress"`
	IsFirstInStage          bool             `json:"isFirstInStage"`
	ConfidenceScore         float64          `json:"confidenceScore"`
	MetadataAlerts          []string         `json:"metadataAlerts"`
	StageCoverage           map[string]int   `json:"stageCoverage"`
	PendingStages           []string         `json:"pendingStages"`
}

// SessionContext situates the thought in the wider history.
type SessionContext struct {
	ThoughtHistoryLength int               `json:"thoughtHistoryLength"`
	CurrentStage         string            `json:"currentStage"`
	ProjectDependencies  DependencySummary `json:"projectDependencies"`
}

// DependencySummary lists the distinct dependencies seen in the history.
type DependencySummary struct {
	Count int      `json:"count"`
	Items []string `json:"items"`
}

// SessionInsights are cross-thought signals.
type SessionInsights struct {
	TestingReady         bool `json:"testingReady"`
	HighRiskPendingTests int  `json:"highRiskPendingTests"`
}

// Guidance says whether driving further thoughts looks worthwhile.
type Guidance struct {
	RecommendedNextThoughtNeeded bool   `json:"recommendedNextThoughtNeeded"`
	Reason                       string `json:"reason"`
}

// Analysis is the full per-thought report.
type Analysis struct {
	CurrentThought CurrentThought  `json:"currentThought"`
	Insights       ThoughtInsights `json:"analysis"`
	Context        SessionContext  `json:"context"`
	Session        SessionInsights `json:"insights"`
	Guidance       Guidance        `json:"guidance"`
}

// Analyze reports on one thought in the context of the full history
// (which is expected to include the thought itself).
func Analyze(th *thought.Thought, hist []*thought.Thought) *Analysis {
	related := Related(th, hist)
	summaries := make([]RelatedSummary, len(related))
	for i, r := range related {
		summaries[i] = RelatedSummary{
			ThoughtNumber: r.ThoughtNumber,
			Stage:         string(r.Stage),
			Snippet:       snippet(r.Thought, 100),
		}
	}

	sameStage := 0
	coverage := make(map[string]int, 5)
	for _, stage := range thought.Stages() {
		coverage[string(stage)] = 0
	}
	for _, t := range hist {
		coverage[string(t.Stage)]++
		if t.Stage == th.Stage {
			sameStage++
		}
	}
	var pending []string
	for _, stage := range thought.Stages() {
		if coverage[string(stage)] == 0 {
			pending = append(pending, string(stage))
		}
	}
	if pending == nil {
		pending = []string{}
	}

	progress := 0.0
	if th.TotalThoughts > 0 {
		progress = float64(th.ThoughtNumber) / float64(th.TotalThoughts) * 100
	}

	recommended := true
	reason := "Continue to next step."
	switch {
	case th.ThoughtNumber >= th.TotalThoughts:
		recommended = false
		reason = "Reached total planned thoughts."
	case th.Stage == thought.StageReview:
		recommended = false
		reason = "Review stage complete."
	case len(pending) == 0 && progress >= 80:
		recommended = false
		reason = "Core stages covered; diminishing returns."
	}

	return &Analysis{
		CurrentThought: CurrentThought{
			ThoughtNumber:     th.ThoughtNumber,
			TotalThoughts:     th.TotalThoughts,
			NextThoughtNeeded: th.NextThoughtNeeded,
			Stage:             string(th.Stage),
			Tags:              th.Tags,
			CreatedAt:         th.CreatedAt,
		},
		Insights: ThoughtInsights{
			RelatedThoughtsCount:    len(related),
			RelatedThoughtSummaries: summaries,
			Progress:                progress,
			IsFirstInStage:          sameStage <= 1,
			ConfidenceScore:         th.ConfidenceScore,
			MetadataAlerts:          metadataAlerts(th),
			StageCoverage:           coverage,
			PendingStages:           pending,
		},
		Context: SessionContext{
			ThoughtHistoryLength: len(hist),
			CurrentStage:         string(th.Stage),
			ProjectDependencies:  dependencySummary(hist),
		},
		Session: SessionInsights{
			TestingReady:         testingAfterImplementation(hist),
			HighRiskPendingTests: highRiskWithoutTests(hist),
		},
		Guidance: Guidance{
			RecommendedNextThoughtNeeded: recommended,
			Reason:                       reason,
		},
	}
}

// metadataAlerts flags missing metadata that weakens traceability.
func metadataAlerts(th *thought.Thought) []string {
	alerts := []string{}
	if th.Stage == thought.StageImplementation && len(th.FilesTouched) == 0 {
		alerts = append(alerts, "Implementation thoughts should list filesTouched for traceability.")
	}
	if (th.Stage == thought.StageTesting || th.Stage == thought.StageReview) && len(th.TestsToRun) == 0 {
		alerts = append(alerts, "Capture testsToRun to keep testing expectations explicit.")
	}
	if th.RiskLevel == thought.RiskHigh && th.ConfidenceScore < 0.5 {
		alerts = append(alerts, "High-risk thought marked with low confidence; consider another research thought.")
	}
	return alerts
}

func dependencySummary(hist []*thought.Thought) DependencySummary {
	set := make(map[string]bool)
	for _, th := range hist {
		for _, dep := range th.Dependencies {
			set[dep] = true
		}
	}
	items := make([]string, 0, len(set))
	for dep := range set {
		items = append(items, dep)
	}
	sort.Strings(items)
	return DependencySummary{Count: len(items), Items: items}
}

// testingAfterImplementation reports whether at least one testing thought
// arrived at or after the latest implementation thought.
func testingAfterImplementation(hist []*thought.Thought) bool {
	lastImpl := 0
	for _, th := range hist {
		if th.Stage == thought.StageImplementation && th.ThoughtNumber > lastImpl {
			lastImpl = th.ThoughtNumber
		}
	}
	if lastImpl == 0 {
		return false
	}
	for _, th := range hist {
		if th.Stage == thought.StageTesting && th.ThoughtNumber >= lastImpl {
			return true
		}
	}
	return false
}

func highRiskWithoutTests(hist []*thought.Thought) int {
	n := 0
	for _, th := range hist {
		if th.RiskLevel == thought.RiskHigh && len(th.TestsToRun) == 0 {
			n++
		}
	}
	return n
}

// snippet truncates s to max runes with an ellipsis marker.
func snippet(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
