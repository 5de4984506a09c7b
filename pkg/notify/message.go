package notify

import (
	"fmt"

	goslack "github.com/slack-go/slack"
)

// BuildEscalationMessage renders a "task escalated to a stronger tier"
// alert.
func BuildEscalationMessage(taskID, objective, fromTier, toTier, dashboardURL string) []goslack.Block {
	text := fmt.Sprintf(":arrow_up: Task `%s` escalated %s -> %s\n*Objective:* %s", taskID, fromTier, toTier, objective)
	return withDashboardLink(text, taskID, dashboardURL)
}

// BuildConflictMessage renders an "elevator hit a merge conflict" alert.
func BuildConflictMessage(taskID, objective, detail, dashboardURL string) []goslack.Block {
	text := fmt.Sprintf(":warning: Merge conflict for task `%s`\n*Objective:* %s\n*Detail:* %s", taskID, objective, detail)
	return withDashboardLink(text, taskID, dashboardURL)
}

// BuildFailureMessage renders a "task permanently failed" alert.
func BuildFailureMessage(taskID, objective, reason, dashboardURL string) []goslack.Block {
	text := fmt.Sprintf(":x: Task `%s` failed permanently\n*Objective:* %s\n*Reason:* %s", taskID, objective, reason)
	return withDashboardLink(text, taskID, dashboardURL)
}

func withDashboardLink(text, taskID, dashboardURL string) []goslack.Block {
	blocks := []goslack.Block{
		goslack.NewSectionBlock(goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false), nil, nil),
	}
	if dashboardURL == "" {
		return blocks
	}
	link := fmt.Sprintf("<%s/tasks/%s|View in dashboard>", dashboardURL, taskID)
	blocks = append(blocks, goslack.NewSectionBlock(goslack.NewTextBlockObject(goslack.MarkdownType, link, false, false), nil, nil))
	return blocks
}
