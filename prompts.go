package pensee

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterPrompts registers one guidance prompt per workflow stage.
func (svc *Service) RegisterPrompts(srv *mcp.Server) {
	registerScopingPrompt(srv)
	registerResearchPrompt(srv)
	registerImplementationPrompt(srv)
	registerTestingPrompt(srv)
	registerReviewPrompt(srv)
}

func promptArg(name, desc string, required bool) *mcp.PromptArgument {
	return &mcp.PromptArgument{Name: name, Description: desc, Required: required}
}

func promptResult(desc, framing, body string) *mcp.GetPromptResult {
	return &mcp.GetPromptResult{
		Description: desc,
		Messages: []*mcp.PromptMessage{
			{Role: "user", Content: &mcp.TextContent{Text: framing + "\n\n" + body}},
		},
	}
}

// argOr returns the named argument or a fallback when absent or blank.
func argOr(args map[string]string, name, fallback string) string {
	if v, ok := args[name]; ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

func registerScopingPrompt(srv *mcp.Server) {
	prompt := &mcp.Prompt{
		Name:        "scoping_prompt",
		Description: "Keep scoping thoughts grounded in outcomes, risks and finish signals",
		Arguments: []*mcp.PromptArgument{
			promptArg("problem_statement", "The problem being scoped", true),
			promptArg("constraints", "Known constraints", false),
		},
	}
	srv.AddPrompt(prompt, func(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		args := req.Params.Arguments
		body := fmt.Sprintf(
			"Problem Statement:\n%s\n\nKnown constraints: %s\n"+
				"Clarify:\n"+
				"1. Desired outcome and non-goals.\n"+
				"2. Risks or unknowns that require spikes.\n"+
				"3. Metrics or signals that prove the work is finished.",
			argOr(args, "problem_statement", ""), argOr(args, "constraints", "n/a"))
		return promptResult("Scoping guidance",
			"You are a planning assistant who ensures coding work starts with a clear scope, "+
				"definition of done, and success metrics.", body), nil
	})
}

func registerResearchPrompt(srv *mcp.Server) {
	prompt := &mcp.Prompt{
		Name:        "research_prompt",
		Description: "Accelerate research and spike stages",
		Arguments: []*mcp.PromptArgument{
			promptArg("hypothesis", "Hypothesis or question to investigate", true),
			promptArg("repo_context", "Relevant repository context", false),
			promptArg("blocking_dependencies", "Known blockers or dependencies", false),
		},
	}
	srv.AddPrompt(prompt, func(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		args := req.Params.Arguments
		body := fmt.Sprintf(
			"Hypothesis/Question:\n%s\n\nRepo context: %s\nKnown blockers/dependencies: %s\n"+
				"Respond with:\n"+
				"- Key docs or code paths to inspect\n"+
				"- Proof-of-concept notes or pseudocode\n"+
				"- Open questions to answer before coding",
			argOr(args, "hypothesis", ""),
			argOr(args, "repo_context", "not provided"),
			argOr(args, "blocking_dependencies", "none"))
		return promptResult("Research guidance",
			"You are a technical researcher providing lightweight spikes and references "+
				"before implementation begins.", body), nil
	})
}

func registerImplementationPrompt(srv *mcp.Server) {
	prompt := &mcp.Prompt{
		Name:        "implementation_prompt",
		Description: "Map implementation plans into sequenced steps",
		Arguments: []*mcp.PromptArgument{
			promptArg("plan_outline", "Outline of the implementation plan", true),
			promptArg("files_targeted", "Files or areas targeted, comma separated", false),
			promptArg("risk_level", "Risk level: low, medium or high", false),
		},
	}
	srv.AddPrompt(prompt, func(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		args := req.Params.Arguments
		body := fmt.Sprintf(
			"Implementation outline:\n%s\n\nFiles/areas targeted: %s\nRisk level: %s\n"+
				"Return:\n"+
				"- Ordered sub-tasks with owners/tools\n"+
				"- Tests to run at the end\n"+
				"- Instrumentation/logging hooks if risk is high",
			argOr(args, "plan_outline", ""),
			argOr(args, "files_targeted", "not specified"),
			argOr(args, "risk_level", "medium"))
		return promptResult("Implementation guidance",
			"You help map implementation steps into sequenced commits.", body), nil
	})
}

func registerTestingPrompt(srv *mcp.Server) {
	prompt := &mcp.Prompt{
		Name:        "testing_prompt",
		Description: "Keep testing thoughts thorough",
		Arguments: []*mcp.PromptArgument{
			promptArg("feature_summary", "Summary of the feature under test", true),
			promptArg("tests_to_run", "Planned tests, comma separated", false),
			promptArg("risk_level", "Risk level: low, medium or high", false),
		},
	}
	srv.AddPrompt(prompt, func(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		args := req.Params.Arguments
		body := fmt.Sprintf(
			"Feature summary:\n%s\n\nPlanned tests: %s\nRisk level: %s\n"+
				"Deliver:\n"+
				"- Targeted unit/integration tests to execute now\n"+
				"- Regression areas to watch\n"+
				"- Data or fixtures needed for reproduction",
			argOr(args, "feature_summary", ""),
			argOr(args, "tests_to_run", "derive from implementation diff"),
			argOr(args, "risk_level", "medium"))
		return promptResult("Testing guidance",
			"You are a test strategist ensuring coverage for recent changes.", body), nil
	})
}

func registerReviewPrompt(srv *mcp.Server) {
	prompt := &mcp.Prompt{
		Name:        "review_prompt",
		Description: "Finalize the review stage",
		Arguments: []*mcp.PromptArgument{
			promptArg("diff_summary", "Summary of the changes under review", true),
			promptArg("confidence_score", "Confidence between 0.0 and 1.0", false),
			promptArg("follow_up_items", "Follow-up items to carry forward", false),
		},
	}
	srv.AddPrompt(prompt, func(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		args := req.Params.Arguments
		body := fmt.Sprintf(
			"Diff summary:\n%s\n\nConfidence score: %s\nFollow-up items: %s\n"+
				"Summarize:\n"+
				"- Checklist for reviewers (tests, docs, migration notes)\n"+
				"- Items to carry into the next iteration (tech debt, monitoring)\n"+
				"- Final go/no-go recommendation",
			argOr(args, "diff_summary", ""),
			argOr(args, "confidence_score", "0.5"),
			argOr(args, "follow_up_items", "none logged"))
		return promptResult("Review guidance",
			"You conduct code reviews and bake in lessons for future iterations.", body), nil
	})
}
