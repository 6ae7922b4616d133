package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/samber/mo"

	"discordautomation/core"
	"discordautomation/db"
	"discordautomation/models"
	"discordautomation/services"
)

// statusWriteAttempts bounds retries of a terminal-status persistence
// write before the claim is released and the next tick re-attempts.
const statusWriteAttempts = 3

type ScheduledTasksService struct {
	tasksRepo *db.PostgresScheduledTasksRepository
	txManager services.TransactionManager
}

func NewScheduledTasksService(
	repo *db.PostgresScheduledTasksRepository,
	txManager services.TransactionManager,
) *ScheduledTasksService {
	return &ScheduledTasksService{tasksRepo: repo, txManager: txManager}
}

// validateTask checks the task type and the payload fields it needs.
func validateTask(params *services.ScheduleTaskParams) error {
	if !models.IsKnownActionType(params.TaskType) {
		return core.NewValidationError("task_type", fmt.Sprintf("unknown task type: %s", params.TaskType))
	}
	if params.RunAt.IsZero() {
		return core.NewValidationError("run_at", "run_at is required")
	}

	switch params.TaskType {
	case models.ActionTypeSendMessage:
		if params.Payload["channel_id"] == "" {
			return core.NewValidationError("payload", "send_message task requires channel_id")
		}
		if params.Payload["content"] == "" {
			return core.NewValidationError("payload", "send_message task requires content")
		}
	case models.ActionTypeAssignRole, models.ActionTypeRemoveRole:
		if params.Payload["guild_id"] == "" || params.Payload["user_id"] == "" || params.Payload["role_id"] == "" {
			return core.NewValidationError("payload", fmt.Sprintf("%s task requires guild_id, user_id and role_id", params.TaskType))
		}
	case models.ActionTypeDeleteMessage:
		if params.Payload["channel_id"] == "" || params.Payload["message_id"] == "" {
			return core.NewValidationError("payload", "delete_message task requires channel_id and message_id")
		}
	case models.ActionTypeTimeoutMember:
		if params.Payload["guild_id"] == "" || params.Payload["user_id"] == "" {
			return core.NewValidationError("payload", "timeout_member task requires guild_id and user_id")
		}
	case models.ActionTypeBulkAddRoles:
		if params.Payload["guild_id"] == "" || params.Payload["role_id"] == "" {
			return core.NewValidationError("payload", "bulk_add_roles task requires guild_id and role_id")
		}
		if len(models.SplitIDList(params.Payload["user_ids"])) == 0 {
			return core.NewValidationError("payload", "bulk_add_roles task requires at least one user id")
		}
	case models.ActionTypeBulkModifyMembers:
		if params.Payload["guild_id"] == "" {
			return core.NewValidationError("payload", "bulk_modify_members task requires guild_id")
		}
		if _, err := models.ParseMemberUpdates(params.Payload["updates"]); err != nil {
			return core.NewValidationError("payload", err.Error())
		}
	}
	return nil
}

func (s *ScheduledTasksService) ScheduleTask(
	ctx context.Context,
	params services.ScheduleTaskParams,
) (*models.ScheduledTask, error) {
	log.Printf("📋 Starting to schedule task (type: %s, run_at: %s)", params.TaskType, params.RunAt.UTC().Format(time.RFC3339))

	if err := validateTask(&params); err != nil {
		return nil, err
	}

	task := &models.ScheduledTask{
		ID:       core.NewID(core.IDPrefixTask),
		TaskType: params.TaskType,
		Payload:  params.Payload,
		RunAt:    params.RunAt.UTC(),
		Status:   models.TaskStatusPending,
	}
	if task.Payload == nil {
		task.Payload = map[string]string{}
	}

	if err := s.tasksRepo.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to schedule task: %w", err)
	}

	log.Printf("📋 Completed successfully - scheduled task with ID: %s", task.ID)
	return task, nil
}

func (s *ScheduledTasksService) GetTaskByID(
	ctx context.Context,
	id string,
) (mo.Option[*models.ScheduledTask], error) {
	if !core.IsValidULID(id) {
		return mo.None[*models.ScheduledTask](), fmt.Errorf("task id must be a valid ULID")
	}
	maybeTask, err := s.tasksRepo.GetTaskByID(ctx, id)
	if err != nil {
		return mo.None[*models.ScheduledTask](), fmt.Errorf("failed to get task: %w", err)
	}
	return maybeTask, nil
}

func (s *ScheduledTasksService) ListTasksByStatus(
	ctx context.Context,
	status models.TaskStatus,
) ([]*models.ScheduledTask, error) {
	tasks, err := s.tasksRepo.ListTasksByStatus(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

// CancelTask cancels a pending, unclaimed task. Once a tick has claimed
// the task cancellation loses the race and returns core.ErrConflict.
func (s *ScheduledTasksService) CancelTask(ctx context.Context, id string) (*models.ScheduledTask, error) {
	log.Printf("📋 Starting to cancel task: %s", id)
	if !core.IsValidULID(id) {
		return nil, fmt.Errorf("task id must be a valid ULID")
	}

	var cancelledTask *models.ScheduledTask
	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		cancelled, err := s.tasksRepo.CancelTask(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to cancel task: %w", err)
		}
		if !cancelled {
			maybeTask, err := s.tasksRepo.GetTaskByID(ctx, id)
			if err != nil {
				return fmt.Errorf("failed to get task after cancel miss: %w", err)
			}
			if !maybeTask.IsPresent() {
				return core.ErrNotFound
			}
			task := maybeTask.MustGet()
			log.Printf("⚠️ Cancel conflict for task %s (status: %s, claimed: %t)", id, task.Status, task.ClaimedAt != nil)
			return core.ErrConflict
		}

		maybeTask, err := s.tasksRepo.GetTaskByID(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to reload cancelled task: %w", err)
		}
		if !maybeTask.IsPresent() {
			return core.ErrNotFound
		}
		cancelledTask = maybeTask.MustGet()
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("📋 Completed successfully - cancelled task: %s", id)
	return cancelledTask, nil
}

// RescheduleTask moves run_at for a pending, unclaimed task. This is the
// only path that may change run_at after creation.
func (s *ScheduledTasksService) RescheduleTask(
	ctx context.Context,
	id string,
	runAt time.Time,
) (*models.ScheduledTask, error) {
	log.Printf("📋 Starting to reschedule task %s to %s", id, runAt.UTC().Format(time.RFC3339))
	if !core.IsValidULID(id) {
		return nil, fmt.Errorf("task id must be a valid ULID")
	}
	if runAt.IsZero() {
		return nil, core.NewValidationError("run_at", "run_at is required")
	}

	var rescheduledTask *models.ScheduledTask
	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		rescheduled, err := s.tasksRepo.RescheduleTask(ctx, id, runAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to reschedule task: %w", err)
		}
		if !rescheduled {
			maybeTask, err := s.tasksRepo.GetTaskByID(ctx, id)
			if err != nil {
				return fmt.Errorf("failed to get task after reschedule miss: %w", err)
			}
			if !maybeTask.IsPresent() {
				return core.ErrNotFound
			}
			return core.ErrConflict
		}

		maybeTask, err := s.tasksRepo.GetTaskByID(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to reload rescheduled task: %w", err)
		}
		if !maybeTask.IsPresent() {
			return core.ErrNotFound
		}
		rescheduledTask = maybeTask.MustGet()
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("📋 Completed successfully - rescheduled task: %s", id)
	return rescheduledTask, nil
}

func (s *ScheduledTasksService) ClaimDueTasks(
	ctx context.Context,
	now time.Time,
	limit int,
) ([]*models.ScheduledTask, error) {
	tasks, err := s.tasksRepo.ClaimDueTasks(ctx, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim due tasks: %w", err)
	}
	return tasks, nil
}

// CompleteTask marks a claimed task as executed. The write is retried a
// bounded number of times; if it keeps failing the claim is released so
// the next tick re-attempts rather than silently losing the task.
func (s *ScheduledTasksService) CompleteTask(ctx context.Context, id string) error {
	return s.transitionWithRetry(ctx, id, models.TaskStatusExecuted, nil)
}

// FailTask marks a claimed task as failed with last_error populated.
func (s *ScheduledTasksService) FailTask(ctx context.Context, id string, lastError string) error {
	return s.transitionWithRetry(ctx, id, models.TaskStatusFailed, &lastError)
}

func (s *ScheduledTasksService) transitionWithRetry(
	ctx context.Context,
	id string,
	to models.TaskStatus,
	lastError *string,
) error {
	if !core.IsValidULID(id) {
		return fmt.Errorf("task id must be a valid ULID")
	}

	var writeErr error
	for attempt := 1; attempt <= statusWriteAttempts; attempt++ {
		transitioned, err := s.tasksRepo.TransitionStatus(ctx, id, to, lastError)
		if err == nil {
			if !transitioned {
				// Already in a terminal status - nothing to do
				log.Printf("⏭️ Task %s already terminal, skipping transition to %s", id, to)
				return nil
			}
			log.Printf("📋 Task %s transitioned to %s", id, to)
			return nil
		}
		writeErr = err
		log.Printf("⚠️ Failed to persist task %s transition to %s (attempt %d/%d): %v", id, to, attempt, statusWriteAttempts, err)
	}

	if _, releaseErr := s.tasksRepo.ReleaseClaim(ctx, id); releaseErr != nil {
		log.Printf("❌ Failed to release claim for task %s after persistence failure: %v", id, releaseErr)
	}
	return fmt.Errorf("failed to persist task %s transition to %s: %w", id, to, writeErr)
}

func (s *ScheduledTasksService) ReleaseStaleClaims(ctx context.Context, maxAge time.Duration) (int64, error) {
	released, err := s.tasksRepo.ReleaseStaleClaims(ctx, maxAge)
	if err != nil {
		return 0, fmt.Errorf("failed to release stale claims: %w", err)
	}
	return released, nil
}
