package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/moneyquiz/routing-gateway/internal/models"
	"github.com/moneyquiz/routing-gateway/pkg/config"
	appErrors "github.com/moneyquiz/routing-gateway/pkg/errors"
)

// State keys in the TTL store. Expiry of the cooldown key is the cooldown
// lifecycle; the emergency key carries a generous safety TTL but is meant
// to be cleared by an operator.
const (
	stateKeyEmergency        = "routing:emergency"
	stateKeyCooldown         = "routing:cooldown"
	stateKeyCriticalNotified = "routing:critical_notified"
	stateKeyHealthSnapshot   = "routing:health"
)

type rollbackStore interface {
	Insert(ctx context.Context, event *models.RollbackEvent) error
	History(ctx context.Context, limit int) ([]models.RollbackEvent, error)
}

type rollbackFlagControl interface {
	ZeroAll(ctx context.Context, updatedBy string) error
	Invalidate(ctx context.Context)
}

type rollbackState interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	TTL(ctx context.Context, key string) (time.Duration, error)
}

type snapshotSource interface {
	RecentMetrics(ctx context.Context, window time.Duration) (models.HealthSnapshot, error)
}

type rollbackNotifier interface {
	RollbackExecuted(rollbackType models.RollbackType, snapshot models.HealthSnapshot, triggers []string)
	CriticalHealth(health models.SystemHealth)
}

// RollbackService enforces the rollback state machine:
//
//	Normal -> RolledBack+Cooldown -> RolledBack -> Normal
//
// The transition into RolledBack is one-shot: while the emergency flag is
// set, further rollback attempts (auto or manual) are suppressed, not
// refreshed. Only ClearRollback returns the system to Normal; it does not
// restore rollout fractions.
type RollbackService struct {
	cfg        config.RollbackConfig
	thresholds HealthThresholds
	store      rollbackStore
	flags      rollbackFlagControl
	state      rollbackState
	source     snapshotSource
	notify     rollbackNotifier
	metrics    *MetricsService
	logger     *zap.Logger
}

// NewRollbackService constructs the rollback manager.
func NewRollbackService(
	cfg config.RollbackConfig,
	store rollbackStore,
	flags rollbackFlagControl,
	state rollbackState,
	source snapshotSource,
	notify rollbackNotifier,
	metrics *MetricsService,
	logger *zap.Logger,
) *RollbackService {
	if cfg.CooldownMinutes <= 0 {
		cfg.CooldownMinutes = 60
	}
	if cfg.EmergencyTTL <= 0 {
		cfg.EmergencyTTL = 24 * time.Hour
	}
	if cfg.WindowSeconds <= 0 {
		cfg.WindowSeconds = 300
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RollbackService{
		cfg:        cfg,
		thresholds: ThresholdsFromConfig(cfg),
		store:      store,
		flags:      flags,
		state:      state,
		source:     source,
		notify:     notify,
		metrics:    metrics,
		logger:     logger,
	}
}

// EmergencyActive reports whether the emergency rollback flag is set.
func (s *RollbackService) EmergencyActive(ctx context.Context) bool {
	active, err := s.state.Exists(ctx, stateKeyEmergency)
	if err != nil {
		s.logger.Warn("emergency flag check failed", zap.Error(err))
		return false
	}
	return active
}

// InCooldown reports whether the post-rollback cooldown window is active.
func (s *RollbackService) InCooldown(ctx context.Context) bool {
	active, err := s.state.Exists(ctx, stateKeyCooldown)
	if err != nil {
		s.logger.Warn("cooldown flag check failed", zap.Error(err))
		return false
	}
	return active
}

// ShouldRollback decides whether the snapshot warrants an automatic
// rollback and returns human-readable trigger reasons.
func (s *RollbackService) ShouldRollback(ctx context.Context, snapshot models.HealthSnapshot) (bool, []string) {
	if !s.cfg.AutoRollback {
		return false, nil
	}
	if s.InCooldown(ctx) {
		return false, nil
	}
	if s.EmergencyActive(ctx) {
		return false, nil
	}

	var triggers []string
	if snapshot.ErrorRate > s.thresholds.ErrorRateCritical {
		triggers = append(triggers, fmt.Sprintf(
			"Error rate (%.1f%%) exceeds threshold (%.1f%%)",
			snapshot.ErrorRate*100, s.thresholds.ErrorRateCritical*100))
	}
	if snapshot.AvgResponse > s.thresholds.ResponseCritical {
		triggers = append(triggers, fmt.Sprintf(
			"Response time (%.1fs) exceeds threshold (%.1fs)",
			snapshot.AvgResponse, s.thresholds.ResponseCritical))
	}
	if snapshot.PeakMemoryMB > s.thresholds.MemoryCriticalMB {
		triggers = append(triggers, fmt.Sprintf(
			"Memory usage (%dMB) exceeds threshold (%dMB)",
			int(snapshot.PeakMemoryMB), int(s.thresholds.MemoryCriticalMB)))
	}

	return len(triggers) > 0, triggers
}

// EvaluateAfterError runs the inline post-error rollback check. This is the
// primary rollback trigger; the periodic timer only monitors.
func (s *RollbackService) EvaluateAfterError(ctx context.Context) {
	snapshot, err := s.source.RecentMetrics(ctx, time.Duration(s.cfg.WindowSeconds)*time.Second)
	if err != nil {
		s.logger.Warn("rollback check could not read metrics", zap.Error(err))
		return
	}

	if ok, triggers := s.ShouldRollback(ctx, snapshot); ok {
		if _, err := s.ExecuteRollback(ctx, snapshot, models.RollbackTypeAuto, "system", triggers); err != nil {
			s.logger.Error("automatic rollback failed", zap.Error(err))
		}
	}
}

// ExecuteRollback performs the one-shot corrective transition. Returns
// false without error when the guard suppresses re-entry.
func (s *RollbackService) ExecuteRollback(ctx context.Context, snapshot models.HealthSnapshot, rollbackType models.RollbackType, userID string, triggers []string) (bool, error) {
	if s.EmergencyActive(ctx) {
		s.logger.Info("rollback suppressed, emergency flag already set", zap.String("type", string(rollbackType)))
		return false, nil
	}

	if err := s.state.Set(ctx, stateKeyEmergency, true, s.cfg.EmergencyTTL); err != nil {
		return false, fmt.Errorf("set emergency flag: %w", err)
	}

	if err := s.flags.ZeroAll(ctx, "rollback"); err != nil {
		return false, fmt.Errorf("zero rollout flags: %w", err)
	}

	s.appendEvent(ctx, rollbackType, triggerTypeFor(rollbackType), triggers, &snapshot, userID)

	if s.notify != nil {
		s.notify.RollbackExecuted(rollbackType, snapshot, triggers)
	}

	cooldown := time.Duration(s.cfg.CooldownMinutes) * time.Minute
	if err := s.state.Set(ctx, stateKeyCooldown, true, cooldown); err != nil {
		s.logger.Warn("cooldown flag write failed", zap.Error(err))
	}

	// Drop cached routing and health snapshots so every dispatch after
	// this point observes fraction 0.
	s.flags.Invalidate(ctx)
	if err := s.state.Delete(ctx, stateKeyHealthSnapshot); err != nil {
		s.logger.Warn("health snapshot invalidate failed", zap.Error(err))
	}

	s.metrics.ObserveRollback(rollbackType)
	s.logger.Warn("emergency rollback executed",
		zap.String("type", string(rollbackType)),
		zap.Strings("triggers", triggers),
		zap.Float64("error_rate", snapshot.ErrorRate),
	)
	return true, nil
}

// ClearRollback returns the system to Normal. Rollout fractions stay at
// zero; operators must reconfigure them deliberately.
func (s *RollbackService) ClearRollback(ctx context.Context, userID string) error {
	if err := s.state.Delete(ctx, stateKeyEmergency); err != nil {
		return fmt.Errorf("clear emergency flag: %w", err)
	}
	if err := s.state.Delete(ctx, stateKeyCooldown); err != nil {
		s.logger.Warn("cooldown flag clear failed", zap.Error(err))
	}

	s.appendEvent(ctx, models.RollbackTypeRecovery, "manual_clear", []string{"rollback_cleared"}, nil, userID)
	s.logger.Info("rollback state cleared", zap.String("user_id", userID))
	return nil
}

// PeriodicCheck is the scheduled monitoring pass. It classifies a fresh
// snapshot, caches it for dashboards and notifies operators on critical
// status. It never executes rollback itself.
func (s *RollbackService) PeriodicCheck(ctx context.Context) {
	snapshot, err := s.source.RecentMetrics(ctx, time.Duration(s.cfg.WindowSeconds)*time.Second)
	if err != nil {
		s.logger.Warn("periodic health check could not read metrics", zap.Error(err))
		return
	}

	health := EvaluateHealth(snapshot, s.thresholds)
	if err := s.state.Set(ctx, stateKeyHealthSnapshot, health, 5*time.Minute); err != nil {
		s.logger.Warn("health snapshot cache write failed", zap.Error(err))
	}

	if health.Status != models.HealthStatusCritical || s.notify == nil {
		return
	}

	notified, err := s.state.Exists(ctx, stateKeyCriticalNotified)
	if err != nil || notified {
		return
	}
	s.notify.CriticalHealth(health)
	if err := s.state.Set(ctx, stateKeyCriticalNotified, true, time.Hour); err != nil {
		s.logger.Warn("notification dedup write failed", zap.Error(err))
	}
}

// CurrentHealth returns the cached dashboard snapshot when fresh, falling
// back to a live aggregation. Rollback decisions never use this cache.
func (s *RollbackService) CurrentHealth(ctx context.Context) (models.SystemHealth, error) {
	var cached models.SystemHealth
	if err := s.state.Get(ctx, stateKeyHealthSnapshot, &cached); err == nil {
		return cached, nil
	} else if !errors.Is(err, appErrors.ErrCacheMiss) {
		s.logger.Warn("health snapshot cache read failed", zap.Error(err))
	}

	snapshot, err := s.source.RecentMetrics(ctx, time.Duration(s.cfg.WindowSeconds)*time.Second)
	if err != nil {
		return models.SystemHealth{}, err
	}

	health := EvaluateHealth(snapshot, s.thresholds)
	if err := s.state.Set(ctx, stateKeyHealthSnapshot, health, 5*time.Minute); err != nil {
		s.logger.Warn("health snapshot cache write failed", zap.Error(err))
	}
	return health, nil
}

// History returns decoded rollback events, newest first.
func (s *RollbackService) History(ctx context.Context, limit int) ([]models.RollbackEventView, error) {
	events, err := s.store.History(ctx, limit)
	if err != nil {
		return nil, err
	}

	views := make([]models.RollbackEventView, 0, len(events))
	for _, event := range events {
		view := models.RollbackEventView{
			ID:           event.ID,
			RollbackType: event.RollbackType,
			TriggerType:  event.TriggerType,
			UserID:       event.UserID,
			Timestamp:    event.Timestamp,
		}
		if len(event.TriggerDetails) > 0 {
			_ = json.Unmarshal(event.TriggerDetails, &view.TriggerDetails)
		}
		if len(event.MetricsSnapshot) > 0 {
			var snapshot models.HealthSnapshot
			if err := json.Unmarshal(event.MetricsSnapshot, &snapshot); err == nil {
				view.MetricsSnapshot = &snapshot
			}
		}
		views = append(views, view)
	}
	return views, nil
}

// RecoveryStatus reports whether an operator may clear the rollback state.
func (s *RollbackService) RecoveryStatus(ctx context.Context) models.RecoveryStatus {
	active := s.EmergencyActive(ctx)
	cooldown := s.InCooldown(ctx)

	status := models.RecoveryStatus{
		CanRecover:     !cooldown,
		RollbackActive: active,
		InCooldown:     cooldown,
		Reasons:        []string{},
	}

	if cooldown {
		if remaining, err := s.state.TTL(ctx, stateKeyCooldown); err == nil && remaining > 0 {
			status.Reasons = append(status.Reasons, fmt.Sprintf(
				"Cooldown period active (%d minutes remaining)",
				int(remaining.Minutes())+1))
		} else {
			status.Reasons = append(status.Reasons, "Cooldown period active")
		}
	}
	if !active {
		status.Reasons = append(status.Reasons, "No active rollback")
	}
	return status
}

func (s *RollbackService) appendEvent(ctx context.Context, rollbackType models.RollbackType, triggerType string, triggers []string, snapshot *models.HealthSnapshot, userID string) {
	event := &models.RollbackEvent{
		ID:           uuid.NewString(),
		RollbackType: rollbackType,
		TriggerType:  triggerType,
		UserID:       userID,
		Timestamp:    time.Now().UTC(),
	}
	if triggers == nil {
		triggers = []string{}
	}
	if payload, err := json.Marshal(triggers); err == nil {
		event.TriggerDetails = payload
	}
	if snapshot != nil {
		if payload, err := json.Marshal(snapshot); err == nil {
			event.MetricsSnapshot = payload
		}
	}

	if err := s.store.Insert(ctx, event); err != nil {
		s.logger.Error("rollback event write failed", zap.Error(err))
	}
}

func triggerTypeFor(rollbackType models.RollbackType) string {
	if rollbackType == models.RollbackTypeManual {
		return "manual"
	}
	return "threshold"
}
