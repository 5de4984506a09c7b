package worker

import (
	"context"
	"fmt"
	"strings"

	"github.com/undercity/undercity/pkg/llmclient"
	"github.com/undercity/undercity/pkg/models"
)

// errorEventToErr converts a terminal llmclient.ErrorEvent into a Go
// error, used by the single-turn planning/post-mortem calls where there
// is no surrounding retry loop to interpret the event itself.
func errorEventToErr(ev *llmclient.ErrorEvent) error {
	return fmt.Errorf("llm error (%s): %s", ev.Kind, ev.Message)
}

// attemptOutcome is the per-attempt result the executor loop's decision
// step branches on.
type attemptOutcome struct {
	terminal        *models.TaskResult // non-nil: stop the loop immediately
	verdict         *models.Verdict
	sentinel        *Sentinel
	thrashed        bool
	errorCategories []models.IssueCategory
}

// executorLoop runs attempts up to MaxAttempts, applying the escalation
// policy between attempts.
func (w *Worker) executorLoop(ctx context.Context, st *state) *models.TaskResult {
	for st.attempts < w.Limits.MaxAttempts {
		st.attempts++
		st.sameTierRetries++
		w.checkpoint(st, models.PhaseExecuting, nil)

		filesBefore, _ := w.repo.DiffNameOnly(ctx, "HEAD")
		st.filesBefore = filesBefore

		outcome := w.runAttempt(ctx, st)
		if outcome.terminal != nil {
			return outcome.terminal
		}

		w.checkpoint(st, models.PhaseVerifying, lastVerificationFrom(outcome.verdict))

		record := models.TaskAttemptRecord{
			Model:           st.tier,
			Success:         outcome.verdict != nil && outcome.verdict.Passed,
			ErrorCategories: outcome.errorCategories,
		}
		st.attemptRecords = append(st.attemptRecords, record)

		if outcome.thrashed {
			return failed(models.ErrTagVerificationFailed, "a single file exceeded the write cap without verification passing")
		}

		if outcome.sentinel != nil && outcome.sentinel.Kind == SentinelInvalidTarget {
			return failed(models.ErrTagInvalidTarget, outcome.sentinel.Reason)
		}
		if outcome.sentinel != nil && outcome.sentinel.Kind == SentinelNeedsDecomposition {
			return needsDecomposition(outcome.sentinel.Reason, suggestedSubtasksFromReason(outcome.sentinel.Reason))
		}

		if outcome.verdict != nil && outcome.verdict.Passed && outcome.verdict.FilesChanged == 0 &&
			(sentinelIs(outcome.sentinel, SentinelAlreadyComplete) || st.noOpEditCount > 0) {
			return alreadyComplete(outcome.verdict)
		}

		if outcome.verdict != nil && outcome.verdict.Passed {
			st.lastVerdict = outcome.verdict
			return w.onVerificationPassed(ctx, st, outcome.verdict)
		}

		// Verification failed: try auto-remediation once per task, then
		// record the pending signature and decide retry/escalate/fail.
		st.lastVerdict = outcome.verdict
		if result := w.handleVerificationFailure(ctx, st, outcome); result != nil {
			return result
		}
	}

	return failed(models.ErrTagVerificationFailed, "max attempts exhausted")
}

func sentinelIs(s *Sentinel, kind SentinelKind) bool {
	return s != nil && s.Kind == kind
}

func lastVerificationFrom(v *models.Verdict) *models.LastVerification {
	if v == nil {
		return nil
	}
	lv := &models.LastVerification{Passed: v.Passed}
	for _, iss := range v.Issues {
		lv.Errors = append(lv.Errors, iss.Message)
	}
	return lv
}

// runAttempt invokes the LLM with the two supervisory hooks installed,
// parses sentinels, dispatches by task kind, and verifies.
func (w *Worker) runAttempt(ctx context.Context, st *state) attemptOutcome {
	input := w.buildAttemptInput(st)

	ch, err := w.LLM.Generate(ctx, input)
	if err != nil {
		return attemptOutcome{terminal: failed(models.ErrTagVerificationFailed, "LLM call failed: "+err.Error())}
	}

	var transcript strings.Builder
	var sentinel *Sentinel
	successfulWrites := 0
	pendingTools := map[string]llmclient.ToolUseRequestEvent{}

	for ev := range ch {
		switch v := ev.(type) {
		case *llmclient.AssistantTextChunkEvent:
			transcript.WriteString(v.Text)
			if s := ParseSentinel(v.Text); s != nil && sentinel == nil {
				sentinel = s
			}
		case *llmclient.ToolUseRequestEvent:
			pendingTools[v.ID] = *v
		case *llmclient.ToolResultEvent:
			req, known := pendingTools[v.ID]
			delete(pendingTools, v.ID)
			if !known {
				continue
			}
			if !isWriteTool(req.Name) {
				continue
			}
			if llmclient.IsToolSuccess(v) {
				successfulWrites++
				path := extractPathFromInput(req.Input)
				if path == "" {
					continue
				}
				if isNoOpEdit(v.Content) {
					st.noOpEditCount++
					continue
				}
				st.writesPerFile[path]++
				if st.writesPerFile[path] > w.Limits.MaxWritesPerFile {
					return attemptOutcome{thrashed: true}
				}
			}
		case *llmclient.ResultEvent:
			if sentinel == nil {
				if s := ParseSentinel(v.Text); s != nil {
					sentinel = s
				}
			}
			st.conversationID = v.ConversationID
			st.tokenUsage.Add(v.Tokens.Input + v.Tokens.Output)
		case *llmclient.ErrorEvent:
			if v.Kind == llmclient.ErrorRateLimit {
				// Rate limits pause-and-retry at the same tier rather than
				// counting as a failed attempt against the escalation policy.
				st.sameTierRetries--
				st.attempts--
			}
			return attemptOutcome{verdict: &models.Verdict{Passed: false, Feedback: v.Message}}
		}
	}

	// Stop-hook: zero successful writes on a non-meta,
	// non-research task is tracked as a consecutive streak.
	if successfulWrites == 0 && st.kind == KindImplementation {
		st.zeroWriteStreak++
		if st.zeroWriteStreak >= 3 {
			return attemptOutcome{terminal: failed(models.ErrTagVagueTask, "no successful writes across three consecutive attempts")}
		}
	} else {
		st.zeroWriteStreak = 0
	}

	switch st.kind {
	case KindMeta:
		return w.dispatchMeta(ctx, st, transcript.String())
	case KindResearch:
		return w.dispatchResearch(ctx, st)
	default:
		return w.dispatchImplementation(ctx, st, sentinel)
	}
}

// buildAttemptInput assembles the per-attempt LLM input,
// including session continuity: resume on a same-tier retry, start fresh
// (with one-shot post-mortem) on escalation.
func (w *Worker) buildAttemptInput(st *state) llmclient.Input {
	var prompt strings.Builder
	prompt.WriteString("Objective: " + st.task.Objective + "\n\n")
	if st.task.HandoffContext != "" {
		prompt.WriteString("Handoff context:\n" + st.task.HandoffContext + "\n\n")
	}
	if ctxStr := st.briefing.formatForPrompt(); ctxStr != "" {
		prompt.WriteString(ctxStr + "\n")
	}
	if st.postMortem != "" {
		prompt.WriteString("Post-mortem from the previous (failed) tier:\n" + st.postMortem + "\n\n")
		st.postMortem = "" // one-shot: cleared after inclusion
	}
	if st.lastVerdict != nil && !st.lastVerdict.Passed {
		prompt.WriteString("Verification feedback from the previous attempt:\n" + st.lastVerdict.Feedback + "\n\n")
	}
	prompt.WriteString(sentinelRules)

	conversationID := ""
	if st.sameTierRetries > 1 {
		// Resuming at the same tier: preserve exploration context.
		conversationID = st.conversationID
	}

	content := prompt.String()
	if w.Masker != nil {
		content = w.Masker.Mask(content)
	}

	return llmclient.Input{
		ConversationID: conversationID,
		Messages:       []llmclient.Message{{Role: llmclient.RoleUser, Content: content}},
		MaxTokens:      8192,
	}
}

const sentinelRules = `
If this task is already complete in the current state of the repository, respond with a line: TASK_ALREADY_COMPLETE: <reason>
If the objective's target does not exist and cannot reasonably be created, respond with: INVALID_TARGET: <reason>
If the objective is too vague or broad to execute as a single task, respond with: NEEDS_DECOMPOSITION: <reason or suggested subtasks>
`

func isWriteTool(name string) bool {
	switch name {
	case "write_file", "edit_file", "str_replace", "create_file", "apply_patch":
		return true
	default:
		return false
	}
}

func isNoOpEdit(content string) bool {
	lower := strings.ToLower(content)
	return strings.Contains(lower, "content already correct") || strings.Contains(lower, "no changes needed")
}

// extractPathFromInput pulls a "path" field out of a tool call's JSON
// input without requiring a full schema-aware parse.
func extractPathFromInput(input string) string {
	const key = `"path"`
	idx := strings.Index(input, key)
	if idx < 0 {
		return ""
	}
	rest := input[idx+len(key):]
	start := strings.IndexByte(rest, '"')
	if start < 0 {
		return ""
	}
	rest = rest[start+1:]
	end := strings.IndexByte(rest, '"')
	if end < 0 {
		return ""
	}
	return rest[:end]
}

// verify runs the verification harness for the task's working directory
// using the worker's configured checks.
func (w *Worker) verify(ctx context.Context, st *state) (*models.Verdict, error) {
	if w.Harness == nil {
		return &models.Verdict{Passed: true}, nil
	}
	return w.Harness.Run(ctx, models.VerificationOptions{
		RunTypecheck: true,
		RunTests:     true,
		RunLint:      true,
		RunBuild:     true,
		RunSpell:     true,
		WorkingDirectory: st.task.WorkingDirectory,
	})
}
