package metrics

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"discordautomation/core"
	"discordautomation/db"
	"discordautomation/models"
)

type MetricsService struct {
	metricsRepo *db.PostgresMetricsRepository
}

func NewMetricsService(repo *db.PostgresMetricsRepository) *MetricsService {
	return &MetricsService{metricsRepo: repo}
}

func (s *MetricsService) TrackMetric(
	ctx context.Context,
	name string,
	value decimal.Decimal,
	tags map[string]string,
) (*models.Metric, error) {
	if strings.TrimSpace(name) == "" {
		return nil, core.NewValidationError("metric_name", "metric name cannot be empty")
	}

	metric := &models.Metric{
		ID:         core.NewID(core.IDPrefixMetric),
		Name:       strings.TrimSpace(name),
		Value:      value,
		Tags:       tags,
		RecordedAt: time.Now().UTC(),
	}
	if metric.Tags == nil {
		metric.Tags = map[string]string{}
	}

	if err := s.metricsRepo.CreateMetric(ctx, metric); err != nil {
		return nil, fmt.Errorf("failed to track metric: %w", err)
	}

	log.Printf("📋 Tracked metric %s = %s", metric.Name, metric.Value.String())
	return metric, nil
}

func (s *MetricsService) GetMetrics(
	ctx context.Context,
	name string,
	since time.Time,
) ([]*models.Metric, error) {
	if strings.TrimSpace(name) == "" {
		return nil, core.NewValidationError("metric_name", "metric name cannot be empty")
	}

	samples, err := s.metricsRepo.ListMetricsByName(ctx, strings.TrimSpace(name), since)
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics: %w", err)
	}
	return samples, nil
}
