package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/moneyquiz/routing-gateway/internal/models"
)

// MetricRepository persists dispatch outcomes and exposes windowed
// aggregation over the routing_metrics table.
type MetricRepository struct {
	db *sqlx.DB
}

// NewMetricRepository instantiates the repository.
func NewMetricRepository(db *sqlx.DB) *MetricRepository {
	return &MetricRepository{db: db}
}

// Insert appends one immutable metric event.
func (r *MetricRepository) Insert(ctx context.Context, event *models.MetricEvent) error {
	query := `INSERT INTO routing_metrics
        (system, action, status, duration, memory, error_type, error_message, error_file, error_line, context, timestamp)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if _, err := r.db.ExecContext(ctx, query,
		event.System,
		event.Action,
		event.Status,
		event.Duration,
		event.Memory,
		event.ErrorType,
		event.ErrorMessage,
		event.ErrorFile,
		event.ErrorLine,
		event.Context,
		event.Timestamp,
	); err != nil {
		return fmt.Errorf("insert routing metric: %w", err)
	}
	return nil
}

type snapshotRow struct {
	Total       int64   `db:"total"`
	Errors      int64   `db:"errors"`
	AvgResponse float64 `db:"avg_response"`
	MaxResponse float64 `db:"max_response"`
	PeakMemory  int64   `db:"peak_memory"`
	ModernCount int64   `db:"modern_count"`
	LegacyCount int64   `db:"legacy_count"`
}

// WindowSnapshot aggregates all events newer than the trailing window into
// a health snapshot. An empty window yields zero counts and zero rates.
func (r *MetricRepository) WindowSnapshot(ctx context.Context, window time.Duration) (models.HealthSnapshot, error) {
	since := time.Now().UTC().Add(-window)

	query := `SELECT
        COUNT(*) AS total,
        COALESCE(SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END), 0) AS errors,
        COALESCE(AVG(duration), 0) AS avg_response,
        COALESCE(MAX(duration), 0) AS max_response,
        COALESCE(MAX(memory), 0) AS peak_memory,
        COALESCE(SUM(CASE WHEN system = 'modern' THEN 1 ELSE 0 END), 0) AS modern_count,
        COALESCE(SUM(CASE WHEN system = 'legacy' THEN 1 ELSE 0 END), 0) AS legacy_count
        FROM routing_metrics
        WHERE timestamp > $1`

	var row snapshotRow
	if err := r.db.GetContext(ctx, &row, query, since); err != nil {
		return models.HealthSnapshot{}, fmt.Errorf("query window snapshot: %w", err)
	}

	snapshot := models.HealthSnapshot{
		Total:         row.Total,
		Errors:        row.Errors,
		AvgResponse:   row.AvgResponse,
		MaxResponse:   row.MaxResponse,
		PeakMemoryMB:  float64(row.PeakMemory) / (1 << 20),
		ModernCount:   row.ModernCount,
		LegacyCount:   row.LegacyCount,
		WindowSeconds: int(window / time.Second),
		ObservedAt:    time.Now().UTC(),
	}
	if row.Total > 0 {
		snapshot.ErrorRate = float64(row.Errors) / float64(row.Total)
		snapshot.ModernPercentage = float64(row.ModernCount) / float64(row.Total)
	}
	return snapshot, nil
}

// TrafficDistribution reports successful request share per system.
func (r *MetricRepository) TrafficDistribution(ctx context.Context, hours int) ([]models.TrafficShare, error) {
	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

	query := `SELECT system, COUNT(*) AS count, COALESCE(AVG(duration), 0) AS avg_duration
        FROM routing_metrics
        WHERE timestamp > $1 AND status = 'success'
        GROUP BY system`

	var shares []models.TrafficShare
	if err := r.db.SelectContext(ctx, &shares, query, since); err != nil {
		return nil, fmt.Errorf("query traffic distribution: %w", err)
	}
	return shares, nil
}

// ErrorRatesByAction reports per-action error counts, worst first.
func (r *MetricRepository) ErrorRatesByAction(ctx context.Context, hours int) ([]models.ActionErrorRate, error) {
	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

	query := `SELECT action,
        COUNT(*) AS total,
        SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END) AS errors,
        ROUND(SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END)::DECIMAL / COUNT(*), 4) AS error_rate
        FROM routing_metrics
        WHERE timestamp > $1
        GROUP BY action
        HAVING SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END) > 0
        ORDER BY error_rate DESC`

	var rates []models.ActionErrorRate
	if err := r.db.SelectContext(ctx, &rates, query, since); err != nil {
		return nil, fmt.Errorf("query error rates: %w", err)
	}
	return rates, nil
}

// PerformanceMetrics compares successful request latency per action and system.
func (r *MetricRepository) PerformanceMetrics(ctx context.Context, hours int) ([]models.ActionPerformance, error) {
	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

	query := `SELECT system, action,
        COUNT(*) AS requests,
        ROUND(AVG(duration)::NUMERIC, 3) AS avg_duration,
        ROUND(MIN(duration)::NUMERIC, 3) AS min_duration,
        ROUND(MAX(duration)::NUMERIC, 3) AS max_duration
        FROM routing_metrics
        WHERE timestamp > $1
        AND status = 'success'
        AND system IN ('modern', 'legacy')
        GROUP BY system, action
        ORDER BY action, system`

	var rows []models.ActionPerformance
	if err := r.db.SelectContext(ctx, &rows, query, since); err != nil {
		return nil, fmt.Errorf("query performance metrics: %w", err)
	}
	return rows, nil
}

type weekRow struct {
	Total       int64   `db:"total"`
	Modern      int64   `db:"modern"`
	Legacy      int64   `db:"legacy"`
	Errors      int64   `db:"errors"`
	AvgResponse float64 `db:"avg_response"`
	PeakMemory  int64   `db:"peak_memory"`
}

// WeekMetrics aggregates dispatch outcomes between the given bounds.
func (r *MetricRepository) WeekMetrics(ctx context.Context, start, end time.Time) (models.WeekMetrics, error) {
	query := `SELECT
        COUNT(*) AS total,
        COALESCE(SUM(CASE WHEN system = 'modern' THEN 1 ELSE 0 END), 0) AS modern,
        COALESCE(SUM(CASE WHEN system = 'legacy' THEN 1 ELSE 0 END), 0) AS legacy,
        COALESCE(SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END), 0) AS errors,
        COALESCE(AVG(duration), 0) AS avg_response,
        COALESCE(MAX(memory), 0) AS peak_memory
        FROM routing_metrics
        WHERE timestamp >= $1 AND timestamp < $2`

	var row weekRow
	if err := r.db.GetContext(ctx, &row, query, start, end); err != nil {
		return models.WeekMetrics{}, fmt.Errorf("query week metrics: %w", err)
	}

	return models.WeekMetrics{
		Start:       start,
		End:         end,
		Total:       row.Total,
		Modern:      row.Modern,
		Legacy:      row.Legacy,
		Errors:      row.Errors,
		AvgResponse: row.AvgResponse,
		PeakMemMB:   float64(row.PeakMemory) / (1 << 20),
	}, nil
}

// DeleteOlderThan removes metric events past the retention horizon.
func (r *MetricRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM routing_metrics WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old routing metrics: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted routing metrics: %w", err)
	}
	return affected, nil
}
