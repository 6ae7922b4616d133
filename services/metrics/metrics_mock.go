package metrics

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"discordautomation/models"
)

// MockMetricsService is a mock implementation of the MetricsService interface
type MockMetricsService struct {
	mock.Mock
}

func (m *MockMetricsService) TrackMetric(
	ctx context.Context,
	name string,
	value decimal.Decimal,
	tags map[string]string,
) (*models.Metric, error) {
	args := m.Called(ctx, name, value, tags)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Metric), args.Error(1)
}

func (m *MockMetricsService) GetMetrics(
	ctx context.Context,
	name string,
	since time.Time,
) ([]*models.Metric, error) {
	args := m.Called(ctx, name, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Metric), args.Error(1)
}
