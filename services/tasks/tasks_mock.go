package tasks

import (
	"context"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/mock"

	"discordautomation/models"
	"discordautomation/services"
)

// MockScheduledTasksService is a mock implementation of the ScheduledTasksService interface
type MockScheduledTasksService struct {
	mock.Mock
}

func (m *MockScheduledTasksService) ScheduleTask(
	ctx context.Context,
	params services.ScheduleTaskParams,
) (*models.ScheduledTask, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ScheduledTask), args.Error(1)
}

func (m *MockScheduledTasksService) GetTaskByID(
	ctx context.Context,
	id string,
) (mo.Option[*models.ScheduledTask], error) {
	args := m.Called(ctx, id)
	return args.Get(0).(mo.Option[*models.ScheduledTask]), args.Error(1)
}

func (m *MockScheduledTasksService) ListTasksByStatus(
	ctx context.Context,
	status models.TaskStatus,
) ([]*models.ScheduledTask, error) {
	args := m.Called(ctx, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ScheduledTask), args.Error(1)
}

func (m *MockScheduledTasksService) CancelTask(ctx context.Context, id string) (*models.ScheduledTask, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ScheduledTask), args.Error(1)
}

func (m *MockScheduledTasksService) RescheduleTask(
	ctx context.Context,
	id string,
	runAt time.Time,
) (*models.ScheduledTask, error) {
	args := m.Called(ctx, id, runAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ScheduledTask), args.Error(1)
}

func (m *MockScheduledTasksService) ClaimDueTasks(
	ctx context.Context,
	now time.Time,
	limit int,
) ([]*models.ScheduledTask, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ScheduledTask), args.Error(1)
}

func (m *MockScheduledTasksService) CompleteTask(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockScheduledTasksService) FailTask(ctx context.Context, id string, lastError string) error {
	args := m.Called(ctx, id, lastError)
	return args.Error(0)
}

func (m *MockScheduledTasksService) ReleaseStaleClaims(ctx context.Context, maxAge time.Duration) (int64, error) {
	args := m.Called(ctx, maxAge)
	return args.Get(0).(int64), args.Error(1)
}
