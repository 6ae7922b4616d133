package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusExecuted  TaskStatus = "executed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// IsTerminal reports whether the status admits no further transitions.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusExecuted || s == TaskStatusFailed || s == TaskStatusCancelled
}

type ScheduledTask struct {
	ID       string            `json:"id"        db:"id"`
	TaskType ActionType        `json:"task_type" db:"task_type"`
	Payload  map[string]string `json:"payload"`
	RunAt    time.Time         `json:"run_at"    db:"run_at"`
	Status   TaskStatus        `json:"status"    db:"status"`

	// ClaimedAt marks the task as picked up by a scheduler tick. A claimed
	// task is excluded from later tick queries and cannot be cancelled.
	ClaimedAt    *time.Time `json:"claimed_at,omitempty" db:"claimed_at"`
	AttemptCount int        `json:"attempt_count" db:"attempt_count"`
	LastError    *string    `json:"last_error,omitempty" db:"last_error"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// IsDue reports whether the task should fire as of now.
func (t *ScheduledTask) IsDue(now time.Time) bool {
	return t.Status == TaskStatusPending && !t.RunAt.After(now)
}

// MemberUpdate is one entry of a bulk_modify_members task, carried
// JSON-encoded under the "updates" payload key. A zero TimeoutMinutes
// clears an active timeout.
type MemberUpdate struct {
	UserID         string   `json:"user_id"`
	Nickname       *string  `json:"nickname,omitempty"`
	TimeoutMinutes *float64 `json:"timeout_minutes,omitempty"`
}

// ParseMemberUpdates decodes and checks the "updates" payload value.
func ParseMemberUpdates(raw string) ([]MemberUpdate, error) {
	var updates []MemberUpdate
	if err := json.Unmarshal([]byte(raw), &updates); err != nil {
		return nil, fmt.Errorf("failed to decode member updates: %w", err)
	}
	if len(updates) == 0 {
		return nil, fmt.Errorf("member updates cannot be empty")
	}
	for i, update := range updates {
		if update.UserID == "" {
			return nil, fmt.Errorf("member update %d has no user_id", i)
		}
		if update.Nickname == nil && update.TimeoutMinutes == nil {
			return nil, fmt.Errorf("member update for %s has no changes", update.UserID)
		}
	}
	return updates, nil
}

// SplitIDList splits a comma-separated ID list, dropping blanks.
func SplitIDList(raw string) []string {
	var ids []string
	for _, part := range strings.Split(raw, ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
