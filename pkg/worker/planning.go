package worker

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/undercity/undercity/pkg/llmclient"
	"github.com/undercity/undercity/pkg/models"
)

// ExecutionPlan is the structured output of the planning phase.
type ExecutionPlan struct {
	FilesToRead        []string            `json:"filesToRead"`
	FilesToModify      []string            `json:"filesToModify"`
	FilesToCreate      []string            `json:"filesToCreate"`
	Steps              []string            `json:"steps"`
	Risks              []string            `json:"risks"`
	ExpectedOutcome    string              `json:"expectedOutcome"`
	AlreadyComplete    *models.AlreadyComplete  `json:"alreadyComplete,omitempty"`
	NeedsDecomposition *models.Decomposition    `json:"needsDecomposition,omitempty"`
}

func (p *ExecutionPlan) formatForPrompt() string {
	var b strings.Builder
	b.WriteString("Approved execution plan:\n")
	if len(p.Steps) > 0 {
		b.WriteString("Steps:\n")
		for _, s := range p.Steps {
			b.WriteString("- " + s + "\n")
		}
	}
	if len(p.FilesToModify) > 0 {
		b.WriteString("Files to modify: " + strings.Join(p.FilesToModify, ", ") + "\n")
	}
	if len(p.FilesToCreate) > 0 {
		b.WriteString("Files to create: " + strings.Join(p.FilesToCreate, ", ") + "\n")
	}
	if p.ExpectedOutcome != "" {
		b.WriteString("Expected outcome: " + p.ExpectedOutcome + "\n")
	}
	return b.String()
}

// planReviewVerdict is the mid-tier reviewer's approve/reject decision.
type planReviewVerdict struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason"`
}

// plan has a cheap-tier planner propose a plan, then a mid-tier
// reviewer approve or reject it. Three outcomes: reject fails with
// PLAN_REJECTED; "already complete" re-verifies before trusting
// itself; otherwise the plan becomes executor context.
func (w *Worker) plan(ctx context.Context, st *state) (*ExecutionPlan, *models.TaskResult) {
	planText, err := w.callSingleTurn(ctx, models.TierCheap, w.buildPlannerPrompt(st))
	if err != nil {
		w.Logger.Warn("worker: planner call failed, proceeding without a plan", "task", st.task.ID, "error", err)
		return nil, nil
	}

	plan := parsePlan(planText)
	if plan == nil {
		return nil, nil
	}

	reviewText, err := w.callSingleTurn(ctx, models.TierMid, w.buildPlanReviewPrompt(st, plan))
	if err != nil {
		w.Logger.Warn("worker: plan reviewer call failed, proceeding with unreviewed plan", "task", st.task.ID, "error", err)
		return plan, nil
	}
	review := parsePlanReview(reviewText)

	if review != nil && !review.Approved {
		return nil, failed(models.ErrTagPlanRejected, review.Reason)
	}

	if plan.NeedsDecomposition != nil && plan.NeedsDecomposition.Needed {
		return nil, needsDecomposition("planner judged this objective too broad", plan.NeedsDecomposition.SuggestedSubtasks)
	}

	if plan.AlreadyComplete != nil && plan.AlreadyComplete.Likely {
		verdict, vErr := w.verify(ctx, st)
		if vErr == nil && verdict.Passed && verdict.FilesChanged == 0 {
			return nil, alreadyComplete(verdict)
		}
		// Hallucinated completion: the planner was wrong, proceed with the plan.
	}

	return plan, nil
}

func (w *Worker) buildPlannerPrompt(st *state) string {
	var b strings.Builder
	b.WriteString("You are planning work for the following objective. Respond with a single JSON object matching this shape: {filesToRead, filesToModify, filesToCreate, steps, risks, expectedOutcome, alreadyComplete:{likely,why}, needsDecomposition:{needed,suggestedSubtasks}}.\n\n")
	b.WriteString("Objective: " + st.task.Objective + "\n")
	if ctxStr := st.briefing.formatForPrompt(); ctxStr != "" {
		b.WriteString("\n" + ctxStr)
	}
	return b.String()
}

func (w *Worker) buildPlanReviewPrompt(st *state, plan *ExecutionPlan) string {
	raw, _ := json.Marshal(plan)
	return "Review this execution plan for objective \"" + st.task.Objective +
		"\" and respond with JSON {approved: bool, reason: string}.\n\nPlan:\n" + string(raw)
}

// callSingleTurn runs one non-streaming-from-the-worker's-perspective LLM
// turn, returning
// the accumulated result text.
func (w *Worker) callSingleTurn(ctx context.Context, tier models.Tier, prompt string) (string, error) {
	ch, err := w.LLM.Generate(ctx, llmclient.Input{
		Messages:  []llmclient.Message{{Role: llmclient.RoleUser, Content: prompt}},
		MaxTokens: 4096,
	})
	if err != nil {
		return "", err
	}
	var text string
	for ev := range ch {
		switch v := ev.(type) {
		case *llmclient.ResultEvent:
			text = v.Text
		case *llmclient.ErrorEvent:
			return "", errorEventToErr(v)
		}
	}
	return text, nil
}

func parsePlan(text string) *ExecutionPlan {
	obj := extractJSONObject(text)
	if obj == "" {
		return nil
	}
	var plan ExecutionPlan
	if err := json.Unmarshal([]byte(obj), &plan); err != nil {
		return nil
	}
	return &plan
}

func parsePlanReview(text string) *planReviewVerdict {
	obj := extractJSONObject(text)
	if obj == "" {
		return nil
	}
	var v planReviewVerdict
	if err := json.Unmarshal([]byte(obj), &v); err != nil {
		return nil
	}
	return &v
}

// extractJSONObject finds the first balanced {...} substring in text,
// tolerating surrounding prose the LLM may emit around the JSON.
func extractJSONObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
