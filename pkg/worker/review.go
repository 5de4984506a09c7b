package worker

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/undercity/undercity/pkg/llmclient"
	"github.com/undercity/undercity/pkg/models"
)

// reviewAngles are the independent lenses an annealing review fans out
// across.
var reviewAngles = []string{
	"correctness and edge cases",
	"security implications",
	"whether the change actually satisfies the objective",
}

// review runs an escalating review loop, budgeted per tier
// (MaxReviewPassesPerTier for cheap/mid, MaxStrongReviewPasses for
// strong), up to MaxReviewTier. A pass that finds nothing actionable
// converges immediately; running out of budget at the review ceiling
// records unresolved tickets rather than blocking the commit.
func (w *Worker) review(ctx context.Context, st *state, verdict *models.Verdict) (*models.Verdict, []string) {
	tier := st.tier
	if w.Limits.MaxReviewTier < tier {
		tier = w.Limits.MaxReviewTier
	}

	passes := w.Limits.MaxReviewPassesPerTier
	if tier == models.TierStrong {
		passes = w.Limits.MaxStrongReviewPasses
	}

	var unresolved []string
	for pass := 0; pass < passes; pass++ {
		var tickets []string
		var err error
		if w.Limits.Annealing && tier == models.TierStrong {
			tickets, err = w.annealingReviewPass(ctx, st)
		} else {
			tickets, err = w.singleReviewPass(ctx, st, tier)
		}
		if err != nil {
			w.Logger.Warn("worker: review pass failed, treating as converged", "task", st.task.ID, "error", err)
			return verdict, nil
		}
		if len(tickets) == 0 {
			return verdict, nil // converged: nothing actionable found
		}

		unresolved = tickets
		reverified, vErr := w.addressReviewTickets(ctx, st, tickets)
		if vErr != nil {
			continue
		}
		verdict = reverified
		unresolved = nil
	}

	return verdict, unresolved
}

// singleReviewPass runs one reviewer turn at tier and parses its output
// into a ticket list (one line per actionable finding; "NONE" or an
// empty response means converged).
func (w *Worker) singleReviewPass(ctx context.Context, st *state, tier models.Tier) ([]string, error) {
	text, err := w.callSingleTurn(ctx, tier, buildReviewPrompt(st, reviewAngles[0]))
	if err != nil {
		return nil, err
	}
	return parseReviewTickets(text), nil
}

// annealingReviewPass fans the configured angles out concurrently at the
// strong tier and joins every angle's tickets.
func (w *Worker) annealingReviewPass(ctx context.Context, st *state) ([]string, error) {
	results := make([][]string, len(reviewAngles))
	g, gctx := errgroup.WithContext(ctx)
	for i, angle := range reviewAngles {
		i, angle := i, angle
		g.Go(func() error {
			text, err := w.callSingleTurn(gctx, models.TierStrong, buildReviewPrompt(st, angle))
			if err != nil {
				return err
			}
			results[i] = parseReviewTickets(text)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var all []string
	for _, r := range results {
		all = append(all, r...)
	}
	return all, nil
}

func buildReviewPrompt(st *state, angle string) string {
	return "Review the uncommitted changes in this working tree for the objective \"" + st.task.Objective +
		"\", focusing on " + angle + ". Respond with one actionable finding per line, or the single word NONE if there is nothing to fix."
}

func parseReviewTickets(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || strings.EqualFold(trimmed, "NONE") {
		return nil
	}
	var tickets []string
	for _, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.EqualFold(line, "NONE") {
			tickets = append(tickets, line)
		}
	}
	return tickets
}

// addressReviewTickets asks the model to fix the listed tickets, in the
// same conversation so it retains the context it just reviewed, and
// re-runs verification, giving the review loop a fresh verdict to judge
// convergence against.
func (w *Worker) addressReviewTickets(ctx context.Context, st *state, tickets []string) (*models.Verdict, error) {
	prompt := "Address the following review findings in the working tree, then stop:\n- " + strings.Join(tickets, "\n- ")
	ch, err := w.LLM.Generate(ctx, llmclient.Input{
		ConversationID: st.conversationID,
		Messages:       []llmclient.Message{{Role: llmclient.RoleUser, Content: prompt}},
		MaxTokens:      8192,
	})
	if err != nil {
		return nil, err
	}
	for ev := range ch {
		switch v := ev.(type) {
		case *llmclient.ResultEvent:
			st.conversationID = v.ConversationID
			st.tokenUsage.Add(v.Tokens.Input + v.Tokens.Output)
		case *llmclient.ErrorEvent:
			return nil, errorEventToErr(v)
		}
	}
	return w.verify(ctx, st)
}
