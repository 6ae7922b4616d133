// Package scheduler drives time-based task execution. Each tick claims
// the batch of due pending tasks, dispatches them through the shared
// action executor and records the terminal status.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"discordautomation/config"
	"discordautomation/models"
	"discordautomation/services"
)

type SchedulerUseCase struct {
	tasksService   services.ScheduledTasksService
	actionExecutor services.ActionExecutorService
	cfg            config.SchedulerConfig
}

func NewSchedulerUseCase(
	tasksService services.ScheduledTasksService,
	actionExecutor services.ActionExecutorService,
	cfg config.SchedulerConfig,
) *SchedulerUseCase {
	return &SchedulerUseCase{
		tasksService:   tasksService,
		actionExecutor: actionExecutor,
		cfg:            cfg,
	}
}

// Tick claims and executes every task due at now. One failing task never
// blocks the rest of the batch.
func (u *SchedulerUseCase) Tick(ctx context.Context, now time.Time) error {
	// A claim older than ClaimMaxAge was leaked mid-execution, so free
	// it before claiming. Failures here never block the batch.
	if released, err := u.tasksService.ReleaseStaleClaims(ctx, u.cfg.ClaimMaxAge); err != nil {
		log.Printf("⚠️ Failed to release stale claims: %v", err)
	} else if released > 0 {
		log.Printf("🔄 Released %d stale claim(s)", released)
	}

	tasks, err := u.tasksService.ClaimDueTasks(ctx, now, u.cfg.ClaimBatchSize)
	if err != nil {
		return fmt.Errorf("failed to claim due tasks: %w", err)
	}
	if len(tasks) == 0 {
		return nil
	}

	log.Printf("📋 Scheduler tick claimed %d due task(s)", len(tasks))
	for _, task := range tasks {
		if err := u.executeTask(ctx, task); err != nil {
			log.Printf("❌ Task %s execution failed: %v", task.ID, err)
		}
	}
	return nil
}

func (u *SchedulerUseCase) executeTask(ctx context.Context, task *models.ScheduledTask) error {
	log.Printf("🔄 Executing task %s (%s), attempt %d, due %s",
		task.ID, task.TaskType, task.AttemptCount, task.RunAt.Format(time.RFC3339))

	outcome, err := u.actionExecutor.Execute(ctx, services.ExecuteActionRequest{
		ActionType:     task.TaskType,
		Payload:        task.Payload,
		IdempotencyKey: fmt.Sprintf("task:%s", task.ID),
	})
	if err != nil {
		// The request itself was rejected, nothing was dispatched
		if failErr := u.tasksService.FailTask(ctx, task.ID, err.Error()); failErr != nil {
			return fmt.Errorf("failed to record rejection for task %s: %w", task.ID, failErr)
		}
		return err
	}

	if outcome.Succeeded() {
		if err := u.tasksService.CompleteTask(ctx, task.ID); err != nil {
			return fmt.Errorf("failed to mark task %s executed: %w", task.ID, err)
		}
		log.Printf("✅ Task %s executed after %d dispatch attempt(s)", task.ID, outcome.Attempts)
		return nil
	}

	if err := u.tasksService.FailTask(ctx, task.ID, outcome.Error); err != nil {
		return fmt.Errorf("failed to mark task %s failed: %w", task.ID, err)
	}
	log.Printf("⚠️ Task %s failed after %d dispatch attempt(s): %s", task.ID, outcome.Attempts, outcome.Error)
	return nil
}

// RecoverOnStartup releases claims left behind by a previous process
// that died mid-tick, so those tasks become claimable again. Only one
// scheduler process ever runs, so every claim present at startup is an
// orphan regardless of age.
func (u *SchedulerUseCase) RecoverOnStartup(ctx context.Context) error {
	released, err := u.tasksService.ReleaseStaleClaims(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to release stale claims: %w", err)
	}
	if released > 0 {
		log.Printf("🔄 Startup recovery released %d stale claim(s)", released)
	}
	return nil
}

// Run ticks at the configured interval until the context is cancelled.
func (u *SchedulerUseCase) Run(ctx context.Context) {
	log.Printf("📋 Scheduler loop starting, tick interval %s", u.cfg.TickInterval)
	ticker := time.NewTicker(u.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("📋 Scheduler loop stopping: %v", ctx.Err())
			return
		case now := <-ticker.C:
			if err := u.Tick(ctx, now.UTC()); err != nil {
				log.Printf("❌ Scheduler tick failed: %v", err)
			}
		}
	}
}
