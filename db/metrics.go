package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	// necessary import to wire up the postgres driver
	_ "github.com/lib/pq"

	dbtx "discordautomation/db/tx"
	"discordautomation/models"
)

type PostgresMetricsRepository struct {
	db     *sqlx.DB
	schema string
}

// DBMetric represents the database schema for the metrics table
type DBMetric struct {
	ID         string          `db:"id"`
	Name       string          `db:"metric_name"`
	Value      decimal.Decimal `db:"value"`
	Tags       []byte          `db:"tags"`
	RecordedAt time.Time       `db:"recorded_at"`
}

var metricsColumns = []string{
	"id",
	"metric_name",
	"value",
	"tags",
	"recorded_at",
}

func NewPostgresMetricsRepository(db *sqlx.DB, schema string) *PostgresMetricsRepository {
	return &PostgresMetricsRepository{db: db, schema: schema}
}

func dbMetricToModel(dbMetric *DBMetric) (*models.Metric, error) {
	metric := &models.Metric{
		ID:         dbMetric.ID,
		Name:       dbMetric.Name,
		Value:      dbMetric.Value,
		RecordedAt: dbMetric.RecordedAt,
	}
	if len(dbMetric.Tags) > 0 {
		if err := json.Unmarshal(dbMetric.Tags, &metric.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode tags for metric %s: %w", dbMetric.ID, err)
		}
	}
	return metric, nil
}

func (r *PostgresMetricsRepository) CreateMetric(ctx context.Context, metric *models.Metric) error {
	db := dbtx.GetTransactional(ctx, r.db)

	tags, err := json.Marshal(metric.Tags)
	if err != nil {
		return fmt.Errorf("failed to encode metric tags: %w", err)
	}

	columnsStr := strings.Join(metricsColumns, ", ")
	query := fmt.Sprintf(`
		INSERT INTO %s.metrics (id, metric_name, value, tags, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING %s`, r.schema, columnsStr)

	var returnedDBMetric DBMetric
	err = db.QueryRowxContext(ctx, query,
		metric.ID, metric.Name, metric.Value, tags, metric.RecordedAt).
		StructScan(&returnedDBMetric)
	if err != nil {
		return fmt.Errorf("failed to create metric: %w", err)
	}

	convertedMetric, err := dbMetricToModel(&returnedDBMetric)
	if err != nil {
		return fmt.Errorf("failed to convert created metric: %w", err)
	}
	*metric = *convertedMetric
	return nil
}

func (r *PostgresMetricsRepository) ListMetricsByName(
	ctx context.Context,
	name string,
	since time.Time,
) ([]*models.Metric, error) {
	db := dbtx.GetTransactional(ctx, r.db)
	columnsStr := strings.Join(metricsColumns, ", ")
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s.metrics
		WHERE metric_name = $1 AND recorded_at >= $2
		ORDER BY recorded_at ASC, id ASC`, columnsStr, r.schema)

	var dbMetrics []DBMetric
	if err := db.SelectContext(ctx, &dbMetrics, query, name, since); err != nil {
		return nil, fmt.Errorf("failed to list metrics: %w", err)
	}

	metrics := make([]*models.Metric, 0, len(dbMetrics))
	for i := range dbMetrics {
		metric, err := dbMetricToModel(&dbMetrics[i])
		if err != nil {
			return nil, fmt.Errorf("failed to convert metric: %w", err)
		}
		metrics = append(metrics, metric)
	}
	return metrics, nil
}
