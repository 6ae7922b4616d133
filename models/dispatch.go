package models

import (
	"time"
)

type DispatchStatus string

const (
	DispatchStatusSuccess     DispatchStatus = "success"
	DispatchStatusFailed      DispatchStatus = "failed"
	DispatchStatusRateLimited DispatchStatus = "rate_limited"
)

// DispatchOutcome is the recorded result of executing one action. The
// executor caches successful outcomes in its idempotency ledger so a
// retried tick or a redelivered event is a no-op.
type DispatchOutcome struct {
	Status         DispatchStatus `json:"status"`
	ActionType     ActionType     `json:"action_type"`
	IdempotencyKey string         `json:"idempotency_key"`
	Attempts       int            `json:"attempts"`
	Error          string         `json:"error,omitempty"`
	DispatchedAt   time.Time      `json:"dispatched_at"`

	// Deduplicated is true when the outcome came from the ledger rather
	// than a fresh platform call.
	Deduplicated bool `json:"deduplicated,omitempty"`
}

func (o *DispatchOutcome) Succeeded() bool {
	return o != nil && o.Status == DispatchStatusSuccess
}
