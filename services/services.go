package services

import (
	"context"
	"time"

	"github.com/samber/mo"
	"github.com/shopspring/decimal"

	"discordautomation/models"
)

// CreateRuleParams carries everything needed to define an automation
// rule. Trigger-specific fields are validated jointly with TriggerType.
type CreateRuleParams struct {
	Name          string
	GuildID       *string
	TriggerType   models.TriggerType
	Keywords      []string // message_contains only
	Emoji         string   // reaction_added only
	ActionType    models.ActionType
	ActionPayload map[string]string
	Enabled       bool
}

type AutomationRulesService interface {
	CreateRule(ctx context.Context, params CreateRuleParams) (*models.AutomationRule, error)
	GetRuleByID(ctx context.Context, id string) (mo.Option[*models.AutomationRule], error)
	ListEnabledRulesByTrigger(ctx context.Context, triggerType models.TriggerType) ([]*models.AutomationRule, error)
	ListRules(ctx context.Context) ([]*models.AutomationRule, error)
	SetRuleEnabled(ctx context.Context, id string, enabled bool) error
	DeleteRule(ctx context.Context, id string) error
}

type ScheduleTaskParams struct {
	TaskType models.ActionType
	Payload  map[string]string
	RunAt    time.Time
}

type ScheduledTasksService interface {
	ScheduleTask(ctx context.Context, params ScheduleTaskParams) (*models.ScheduledTask, error)
	GetTaskByID(ctx context.Context, id string) (mo.Option[*models.ScheduledTask], error)
	ListTasksByStatus(ctx context.Context, status models.TaskStatus) ([]*models.ScheduledTask, error)
	// CancelTask cancels a pending, unclaimed task. Returns
	// core.ErrConflict once a tick has claimed the task or it reached a
	// terminal status, core.ErrNotFound when the task does not exist.
	CancelTask(ctx context.Context, id string) (*models.ScheduledTask, error)
	// RescheduleTask is the only path that may change run_at.
	RescheduleTask(ctx context.Context, id string, runAt time.Time) (*models.ScheduledTask, error)
	ClaimDueTasks(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledTask, error)
	CompleteTask(ctx context.Context, id string) error
	FailTask(ctx context.Context, id string, lastError string) error
	ReleaseStaleClaims(ctx context.Context, maxAge time.Duration) (int64, error)
}

type MetricsService interface {
	TrackMetric(ctx context.Context, name string, value decimal.Decimal, tags map[string]string) (*models.Metric, error)
	GetMetrics(ctx context.Context, name string, since time.Time) ([]*models.Metric, error)
}

// ExecuteActionRequest is one action to dispatch through the executor.
type ExecuteActionRequest struct {
	ActionType models.ActionType
	// Payload holds the action parameters (channel_id, content, role_id,
	// user_id, ...) with placeholders still unresolved.
	Payload map[string]string
	// Placeholders resolve {user}, {server} and friends against the
	// triggering context.
	Placeholders map[string]string
	// IdempotencyKey dedups retried ticks and redelivered events within
	// the ledger retention window.
	IdempotencyKey string
}

type ActionExecutorService interface {
	Execute(ctx context.Context, req ExecuteActionRequest) (*models.DispatchOutcome, error)
}

type TransactionManager interface {
	// Execute function within a transaction (recommended approach)
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Manual transaction control (for complex scenarios)
	BeginTransaction(ctx context.Context) (context.Context, error)
	CommitTransaction(ctx context.Context) error
	RollbackTransaction(ctx context.Context) error
}
