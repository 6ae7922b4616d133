package dispatch

import (
	"context"

	"github.com/stretchr/testify/mock"

	"discordautomation/models"
	"discordautomation/services"
)

type MockActionExecutorService struct {
	mock.Mock
}

func (m *MockActionExecutorService) Execute(
	ctx context.Context,
	req services.ExecuteActionRequest,
) (*models.DispatchOutcome, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DispatchOutcome), args.Error(1)
}
