package rules

import (
	"context"

	"github.com/samber/mo"
	"github.com/stretchr/testify/mock"

	"discordautomation/models"
	"discordautomation/services"
)

// MockAutomationRulesService is a mock implementation of the AutomationRulesService interface
type MockAutomationRulesService struct {
	mock.Mock
}

func (m *MockAutomationRulesService) CreateRule(
	ctx context.Context,
	params services.CreateRuleParams,
) (*models.AutomationRule, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AutomationRule), args.Error(1)
}

func (m *MockAutomationRulesService) GetRuleByID(
	ctx context.Context,
	id string,
) (mo.Option[*models.AutomationRule], error) {
	args := m.Called(ctx, id)
	return args.Get(0).(mo.Option[*models.AutomationRule]), args.Error(1)
}

func (m *MockAutomationRulesService) ListEnabledRulesByTrigger(
	ctx context.Context,
	triggerType models.TriggerType,
) ([]*models.AutomationRule, error) {
	args := m.Called(ctx, triggerType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.AutomationRule), args.Error(1)
}

func (m *MockAutomationRulesService) ListRules(ctx context.Context) ([]*models.AutomationRule, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.AutomationRule), args.Error(1)
}

func (m *MockAutomationRulesService) SetRuleEnabled(ctx context.Context, id string, enabled bool) error {
	args := m.Called(ctx, id, enabled)
	return args.Error(0)
}

func (m *MockAutomationRulesService) DeleteRule(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
