package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/samber/mo"

	// necessary import to wire up the postgres driver
	_ "github.com/lib/pq"

	dbtx "discordautomation/db/tx"
	"discordautomation/models"
)

type PostgresScheduledTasksRepository struct {
	db     *sqlx.DB
	schema string
}

// DBScheduledTask represents the database schema for the scheduled_tasks table
type DBScheduledTask struct {
	ID           string     `db:"id"`
	TaskType     string     `db:"task_type"`
	Payload      []byte     `db:"payload"`
	RunAt        time.Time  `db:"run_at"`
	Status       string     `db:"status"`
	ClaimedAt    *time.Time `db:"claimed_at"`
	AttemptCount int        `db:"attempt_count"`
	LastError    *string    `db:"last_error"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
}

// Column names for scheduled_tasks table
var scheduledTasksColumns = []string{
	"id",
	"task_type",
	"payload",
	"run_at",
	"status",
	"claimed_at",
	"attempt_count",
	"last_error",
	"created_at",
	"updated_at",
}

func NewPostgresScheduledTasksRepository(db *sqlx.DB, schema string) *PostgresScheduledTasksRepository {
	return &PostgresScheduledTasksRepository{db: db, schema: schema}
}

func dbTaskToModel(dbTask *DBScheduledTask) (*models.ScheduledTask, error) {
	task := &models.ScheduledTask{
		ID:           dbTask.ID,
		TaskType:     models.ActionType(dbTask.TaskType),
		RunAt:        dbTask.RunAt,
		Status:       models.TaskStatus(dbTask.Status),
		ClaimedAt:    dbTask.ClaimedAt,
		AttemptCount: dbTask.AttemptCount,
		LastError:    dbTask.LastError,
		CreatedAt:    dbTask.CreatedAt,
		UpdatedAt:    dbTask.UpdatedAt,
	}
	if len(dbTask.Payload) > 0 {
		if err := json.Unmarshal(dbTask.Payload, &task.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode payload for task %s: %w", dbTask.ID, err)
		}
	}
	return task, nil
}

func (r *PostgresScheduledTasksRepository) CreateTask(ctx context.Context, task *models.ScheduledTask) error {
	db := dbtx.GetTransactional(ctx, r.db)

	payload, err := json.Marshal(task.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode task payload: %w", err)
	}

	columnsStr := strings.Join(scheduledTasksColumns, ", ")
	query := fmt.Sprintf(`
		INSERT INTO %s.scheduled_tasks (id, task_type, payload, run_at, status, claimed_at, attempt_count, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULL, 0, NULL, NOW(), NOW())
		RETURNING %s`, r.schema, columnsStr)

	var returnedDBTask DBScheduledTask
	err = db.QueryRowxContext(ctx, query,
		task.ID, string(task.TaskType), payload, task.RunAt, string(models.TaskStatusPending)).
		StructScan(&returnedDBTask)
	if err != nil {
		return fmt.Errorf("failed to create scheduled task: %w", err)
	}

	convertedTask, err := dbTaskToModel(&returnedDBTask)
	if err != nil {
		return fmt.Errorf("failed to convert created task: %w", err)
	}
	*task = *convertedTask
	return nil
}

func (r *PostgresScheduledTasksRepository) GetTaskByID(
	ctx context.Context,
	id string,
) (mo.Option[*models.ScheduledTask], error) {
	db := dbtx.GetTransactional(ctx, r.db)
	columnsStr := strings.Join(scheduledTasksColumns, ", ")
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s.scheduled_tasks
		WHERE id = $1`, columnsStr, r.schema)

	var dbTask DBScheduledTask
	err := db.GetContext(ctx, &dbTask, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return mo.None[*models.ScheduledTask](), nil
		}
		return mo.None[*models.ScheduledTask](), fmt.Errorf("failed to get scheduled task: %w", err)
	}

	convertedTask, err := dbTaskToModel(&dbTask)
	if err != nil {
		return mo.None[*models.ScheduledTask](), fmt.Errorf("failed to convert task: %w", err)
	}
	return mo.Some(convertedTask), nil
}

func (r *PostgresScheduledTasksRepository) ListTasksByStatus(
	ctx context.Context,
	status models.TaskStatus,
) ([]*models.ScheduledTask, error) {
	db := dbtx.GetTransactional(ctx, r.db)
	columnsStr := strings.Join(scheduledTasksColumns, ", ")
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s.scheduled_tasks
		WHERE status = $1
		ORDER BY run_at ASC, id ASC`, columnsStr, r.schema)

	var dbTasks []DBScheduledTask
	if err := db.SelectContext(ctx, &dbTasks, query, string(status)); err != nil {
		return nil, fmt.Errorf("failed to list scheduled tasks: %w", err)
	}

	tasks := make([]*models.ScheduledTask, 0, len(dbTasks))
	for i := range dbTasks {
		task, err := dbTaskToModel(&dbTasks[i])
		if err != nil {
			return nil, fmt.Errorf("failed to convert task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// ClaimDueTasks atomically marks due pending tasks as claimed and
// returns them. A claimed task is excluded from subsequent calls until
// the claim resolves, which is what guarantees at-most-once dispatch
// across overlapping ticks.
func (r *PostgresScheduledTasksRepository) ClaimDueTasks(
	ctx context.Context,
	now time.Time,
	limit int,
) ([]*models.ScheduledTask, error) {
	db := dbtx.GetTransactional(ctx, r.db)
	columnsStr := strings.Join(scheduledTasksColumns, ", ")
	query := fmt.Sprintf(`
		UPDATE %s.scheduled_tasks
		SET claimed_at = NOW(), attempt_count = attempt_count + 1, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM %s.scheduled_tasks
			WHERE status = $1 AND claimed_at IS NULL AND run_at <= $2
			ORDER BY run_at ASC, id ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING %s`, r.schema, r.schema, columnsStr)

	var dbTasks []DBScheduledTask
	if err := db.SelectContext(ctx, &dbTasks, query, string(models.TaskStatusPending), now, limit); err != nil {
		return nil, fmt.Errorf("failed to claim due tasks: %w", err)
	}

	tasks := make([]*models.ScheduledTask, 0, len(dbTasks))
	for i := range dbTasks {
		task, err := dbTaskToModel(&dbTasks[i])
		if err != nil {
			return nil, fmt.Errorf("failed to convert claimed task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// ReleaseClaim puts a claimed pending task back into the schedulable
// pool. Used when a terminal-status write ultimately failed, so the next
// tick re-attempts instead of silently losing the task.
func (r *PostgresScheduledTasksRepository) ReleaseClaim(ctx context.Context, id string) (bool, error) {
	db := dbtx.GetTransactional(ctx, r.db)
	query := fmt.Sprintf(`
		UPDATE %s.scheduled_tasks
		SET claimed_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = $2 AND claimed_at IS NOT NULL`, r.schema)

	result, err := db.ExecContext(ctx, query, id, string(models.TaskStatusPending))
	if err != nil {
		return false, fmt.Errorf("failed to release claim: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// ReleaseStaleClaims releases claims older than maxAge. Claims that old
// belong to a process that died mid-dispatch. A zero maxAge releases
// every claim.
func (r *PostgresScheduledTasksRepository) ReleaseStaleClaims(ctx context.Context, maxAge time.Duration) (int64, error) {
	db := dbtx.GetTransactional(ctx, r.db)
	query := fmt.Sprintf(`
		UPDATE %s.scheduled_tasks
		SET claimed_at = NULL, updated_at = NOW()
		WHERE status = $1 AND claimed_at IS NOT NULL AND claimed_at < $2`, r.schema)

	result, err := db.ExecContext(ctx, query, string(models.TaskStatusPending), time.Now().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("failed to release stale claims: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// TransitionStatus moves a pending task to a terminal status. The WHERE
// clause guards the state machine: terminal states are final, so a
// transition out of anything but pending affects zero rows.
func (r *PostgresScheduledTasksRepository) TransitionStatus(
	ctx context.Context,
	id string,
	to models.TaskStatus,
	lastError *string,
) (bool, error) {
	if !to.IsTerminal() {
		return false, fmt.Errorf("invalid transition target: %s", to)
	}

	db := dbtx.GetTransactional(ctx, r.db)
	query := fmt.Sprintf(`
		UPDATE %s.scheduled_tasks
		SET status = $2, last_error = $3, claimed_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = $4`, r.schema)

	result, err := db.ExecContext(ctx, query, id, string(to), lastError, string(models.TaskStatusPending))
	if err != nil {
		return false, fmt.Errorf("failed to transition task status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// CancelTask cancels a pending, unclaimed task. Returns false when the
// task is pending but already claimed or in a terminal state; callers
// distinguish the two cases by re-reading the task.
func (r *PostgresScheduledTasksRepository) CancelTask(ctx context.Context, id string) (bool, error) {
	db := dbtx.GetTransactional(ctx, r.db)
	query := fmt.Sprintf(`
		UPDATE %s.scheduled_tasks
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3 AND claimed_at IS NULL`, r.schema)

	result, err := db.ExecContext(ctx, query, id, string(models.TaskStatusCancelled), string(models.TaskStatusPending))
	if err != nil {
		return false, fmt.Errorf("failed to cancel task: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// RescheduleTask updates run_at for a pending, unclaimed task. run_at is
// immutable through any other path.
func (r *PostgresScheduledTasksRepository) RescheduleTask(ctx context.Context, id string, runAt time.Time) (bool, error) {
	db := dbtx.GetTransactional(ctx, r.db)
	query := fmt.Sprintf(`
		UPDATE %s.scheduled_tasks
		SET run_at = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3 AND claimed_at IS NULL`, r.schema)

	result, err := db.ExecContext(ctx, query, id, runAt, string(models.TaskStatusPending))
	if err != nil {
		return false, fmt.Errorf("failed to reschedule task: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}
