package models

import "time"

// ElevatorStatus is the lifecycle status of one queued merge item.
type ElevatorStatus string

const (
	ElevatorPending   ElevatorStatus = "pending"
	ElevatorRebasing  ElevatorStatus = "rebasing"
	ElevatorTesting   ElevatorStatus = "testing"
	ElevatorMerging   ElevatorStatus = "merging"
	ElevatorPushing   ElevatorStatus = "pushing"
	ElevatorComplete  ElevatorStatus = "complete"
	ElevatorConflict  ElevatorStatus = "conflict"
	ElevatorTestFailed ElevatorStatus = "test_failed"
)

// MergeStrategy records which merge fallback strategy succeeded.
type MergeStrategy string

const (
	StrategyPlain      MergeStrategy = "plain"
	StrategyFavorTheirs MergeStrategy = "favor_integration"
)

// ElevatorItem is one (branch, task) entry in the serial merge queue
//. Owned by the elevator from enqueue to removal.
type ElevatorItem struct {
	Branch          string         `json:"branch"`
	TaskID          string         `json:"taskId"`
	AgentID         string         `json:"agentId"`
	Status          ElevatorStatus `json:"status"`
	QueuedAt        time.Time      `json:"queuedAt"`
	CompletedAt     *time.Time     `json:"completedAt,omitempty"`
	Error           string         `json:"error,omitempty"`
	StrategyUsed    MergeStrategy  `json:"strategyUsed,omitempty"`
	ConflictFiles   []string       `json:"conflictFiles,omitempty"`
	RetryCount      int            `json:"retryCount"`
	MaxRetries      int            `json:"maxRetries"`
	LastFailedAt    *time.Time     `json:"lastFailedAt,omitempty"`
	NextRetryAfter  *time.Time     `json:"nextRetryAfter,omitempty"`
	OriginalError   string         `json:"originalError,omitempty"`
	IsRetry         bool           `json:"isRetry"`
	ModifiedFiles   []string       `json:"modifiedFiles,omitempty"`
}

// EligibleForRetry reports whether the item may be retried right now.
func (i *ElevatorItem) EligibleForRetry(now time.Time) bool {
	if i.Status != ElevatorConflict && i.Status != ElevatorTestFailed {
		return false
	}
	if i.RetryCount >= i.MaxRetries {
		return false
	}
	if i.NextRetryAfter != nil && now.Before(*i.NextRetryAfter) {
		return false
	}
	return true
}

// ConflictHint is a pair of queued items whose modified-file sets
// intersect, surfaced by the pre-merge conflict hint API.
type ConflictHint struct {
	BranchA      string   `json:"branchA"`
	BranchB      string   `json:"branchB"`
	SharedFiles  []string `json:"sharedFiles"`
	Severity     int      `json:"severity"`
}
