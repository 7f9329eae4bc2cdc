package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/moneyquiz/routing-gateway/internal/models"
)

type metricStore interface {
	Insert(ctx context.Context, event *models.MetricEvent) error
	WindowSnapshot(ctx context.Context, window time.Duration) (models.HealthSnapshot, error)
	TrafficDistribution(ctx context.Context, hours int) ([]models.TrafficShare, error)
	ErrorRatesByAction(ctx context.Context, hours int) ([]models.ActionErrorRate, error)
	PerformanceMetrics(ctx context.Context, hours int) ([]models.ActionPerformance, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// MonitorService records every dispatch outcome and aggregates trailing
// windows for health evaluation. Store faults are logged and swallowed:
// routing availability outranks metrics completeness.
type MonitorService struct {
	repo          metricStore
	metrics       *MetricsService
	logger        *zap.Logger
	retentionDays int
	sweepRand     func() float64
}

// NewMonitorService constructs the monitor.
func NewMonitorService(repo metricStore, metrics *MetricsService, retentionDays int, logger *zap.Logger) *MonitorService {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MonitorService{
		repo:          repo,
		metrics:       metrics,
		logger:        logger,
		retentionDays: retentionDays,
		sweepRand:     rand.Float64,
	}
}

// RecordSuccess appends one success event.
func (s *MonitorService) RecordSuccess(ctx context.Context, system models.System, action string, duration time.Duration, memory int64) {
	event := &models.MetricEvent{
		System:    system,
		Action:    action,
		Status:    models.MetricStatusSuccess,
		Duration:  duration.Seconds(),
		Timestamp: time.Now().UTC(),
	}
	if memory > 0 {
		event.Memory = &memory
	}

	s.metrics.ObserveDispatch(system, action, models.MetricStatusSuccess, duration, memory)
	s.append(ctx, event)
}

// RecordError appends one error event carrying the fault details and logs
// it to the operational error stream.
func (s *MonitorService) RecordError(ctx context.Context, action string, cause error, extra map[string]interface{}) {
	errType := fmt.Sprintf("%T", cause)
	errMsg := cause.Error()

	event := &models.MetricEvent{
		System:       models.SystemError,
		Action:       action,
		Status:       models.MetricStatusError,
		ErrorType:    &errType,
		ErrorMessage: &errMsg,
		Timestamp:    time.Now().UTC(),
	}

	// Record the frame that observed the fault; handler errors carry no
	// file information of their own.
	if _, file, line, ok := runtime.Caller(1); ok {
		event.ErrorFile = &file
		event.ErrorLine = &line
	}

	if len(extra) > 0 {
		if payload, err := json.Marshal(extra); err == nil {
			event.Context = payload
		}
	}

	s.logger.Error("routing error",
		zap.String("action", action),
		zap.String("error_type", errType),
		zap.Error(cause),
	)

	s.metrics.ObserveDispatch(models.SystemError, action, models.MetricStatusError, 0, 0)
	s.append(ctx, event)
}

func (s *MonitorService) append(ctx context.Context, event *models.MetricEvent) {
	if err := s.repo.Insert(ctx, event); err != nil {
		s.logger.Warn("metric write failed", zap.String("action", event.Action), zap.Error(err))
		return
	}

	// Probability-sampled retention sweep keeps the table bounded without
	// a dedicated scheduler dependency.
	if s.sweepRand() < 0.01 {
		s.Sweep(ctx)
	}
}

// RecentMetrics aggregates the trailing window into a health snapshot.
func (s *MonitorService) RecentMetrics(ctx context.Context, window time.Duration) (models.HealthSnapshot, error) {
	return s.repo.WindowSnapshot(ctx, window)
}

// TrafficDistribution reports request share per system.
func (s *MonitorService) TrafficDistribution(ctx context.Context, hours int) ([]models.TrafficShare, error) {
	if hours <= 0 {
		hours = 24
	}
	return s.repo.TrafficDistribution(ctx, hours)
}

// ErrorRatesByAction reports per-action error counts.
func (s *MonitorService) ErrorRatesByAction(ctx context.Context, hours int) ([]models.ActionErrorRate, error) {
	if hours <= 0 {
		hours = 24
	}
	return s.repo.ErrorRatesByAction(ctx, hours)
}

// PerformanceMetrics compares latency per action and system.
func (s *MonitorService) PerformanceMetrics(ctx context.Context, hours int) ([]models.ActionPerformance, error) {
	if hours <= 0 {
		hours = 24
	}
	return s.repo.PerformanceMetrics(ctx, hours)
}

// Sweep deletes metric events past the retention horizon.
func (s *MonitorService) Sweep(ctx context.Context) {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.retentionDays)
	deleted, err := s.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Warn("metric retention sweep failed", zap.Error(err))
		return
	}
	if deleted > 0 {
		s.logger.Info("metric retention sweep", zap.Int64("deleted", deleted))
	}
}
