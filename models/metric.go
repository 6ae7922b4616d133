package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Metric is one recorded sample. Besides operator-defined metrics this
// is also the durable audit trail for auto-moderation: every proposed
// or enforced action is tracked as a sample with descriptive tags.
type Metric struct {
	ID         string            `json:"id"          db:"id"`
	Name       string            `json:"metric_name" db:"metric_name"`
	Value      decimal.Decimal   `json:"value"       db:"value"`
	Tags       map[string]string `json:"tags"`
	RecordedAt time.Time         `json:"recorded_at" db:"recorded_at"`
}

// Metric names used by the engine itself.
const (
	MetricAutoModProposed = "automod.proposed"
	MetricAutoModEnforced = "automod.enforced"
)
