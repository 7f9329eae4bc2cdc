package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moneyquiz/routing-gateway/internal/models"
	"github.com/moneyquiz/routing-gateway/pkg/config"
	appErrors "github.com/moneyquiz/routing-gateway/pkg/errors"
)

// memState is an in-memory TTL store with a controllable clock.
type memState struct {
	now    time.Time
	values map[string][]byte
	expiry map[string]time.Time
}

func newMemState() *memState {
	return &memState{
		now:    time.Now().UTC(),
		values: map[string][]byte{},
		expiry: map[string]time.Time{},
	}
}

func (s *memState) advance(d time.Duration) { s.now = s.now.Add(d) }

func (s *memState) expired(key string) bool {
	exp, ok := s.expiry[key]
	return ok && !exp.IsZero() && s.now.After(exp)
}

func (s *memState) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.values[key] = raw
	if ttl > 0 {
		s.expiry[key] = s.now.Add(ttl)
	} else {
		s.expiry[key] = time.Time{}
	}
	return nil
}

func (s *memState) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := s.values[key]
	if !ok || s.expired(key) {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (s *memState) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := s.values[key]
	return ok && !s.expired(key), nil
}

func (s *memState) Delete(ctx context.Context, key string) error {
	delete(s.values, key)
	delete(s.expiry, key)
	return nil
}

func (s *memState) TTL(ctx context.Context, key string) (time.Duration, error) {
	exp, ok := s.expiry[key]
	if !ok || exp.IsZero() || s.expired(key) {
		return 0, nil
	}
	return exp.Sub(s.now), nil
}

type rollbackStoreStub struct {
	events []models.RollbackEvent
}

func (s *rollbackStoreStub) Insert(ctx context.Context, event *models.RollbackEvent) error {
	s.events = append([]models.RollbackEvent{*event}, s.events...)
	return nil
}

func (s *rollbackStoreStub) History(ctx context.Context, limit int) ([]models.RollbackEvent, error) {
	if limit > len(s.events) {
		limit = len(s.events)
	}
	return s.events[:limit], nil
}

type flagControlStub struct {
	zeroed      int
	invalidated int
}

func (s *flagControlStub) ZeroAll(ctx context.Context, updatedBy string) error {
	s.zeroed++
	return nil
}

func (s *flagControlStub) Invalidate(ctx context.Context) { s.invalidated++ }

type snapshotStub struct {
	snapshot models.HealthSnapshot
	err      error
}

func (s *snapshotStub) RecentMetrics(ctx context.Context, window time.Duration) (models.HealthSnapshot, error) {
	return s.snapshot, s.err
}

type notifierSpy struct {
	rollbacks []models.RollbackType
	criticals []models.SystemHealth
}

func (s *notifierSpy) RollbackExecuted(rollbackType models.RollbackType, snapshot models.HealthSnapshot, triggers []string) {
	s.rollbacks = append(s.rollbacks, rollbackType)
}

func (s *notifierSpy) CriticalHealth(health models.SystemHealth) {
	s.criticals = append(s.criticals, health)
}

type rollbackFixture struct {
	svc    *RollbackService
	state  *memState
	store  *rollbackStoreStub
	flags  *flagControlStub
	source *snapshotStub
	notify *notifierSpy
}

func newRollbackFixture(cfg config.RollbackConfig) *rollbackFixture {
	f := &rollbackFixture{
		state:  newMemState(),
		store:  &rollbackStoreStub{},
		flags:  &flagControlStub{},
		source: &snapshotStub{},
		notify: &notifierSpy{},
	}
	f.svc = NewRollbackService(cfg, f.store, f.flags, f.state, f.source, f.notify, nil, nil)
	return f
}

func autoConfig() config.RollbackConfig {
	return config.RollbackConfig{
		AutoRollback:    true,
		CooldownMinutes: 60,
		EmergencyTTL:    24 * time.Hour,
		WindowSeconds:   300,
	}
}

func criticalSnapshot() models.HealthSnapshot {
	return models.HealthSnapshot{Total: 20, Errors: 2, ErrorRate: 0.10, AvgResponse: 0.5}
}

func TestShouldRollbackOnErrorRate(t *testing.T) {
	f := newRollbackFixture(autoConfig())

	ok, triggers := f.svc.ShouldRollback(context.Background(), criticalSnapshot())
	assert.True(t, ok)
	require.Len(t, triggers, 1)
	assert.Equal(t, "Error rate (10.0%) exceeds threshold (5.0%)", triggers[0])
}

// Every failing dispatch goroutine runs the inline rollback check, so the
// evaluation must be safe under concurrent callers.
func TestShouldRollbackConcurrentCallers(t *testing.T) {
	f := newRollbackFixture(autoConfig())
	snapshot := criticalSnapshot()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				ok, triggers := f.svc.ShouldRollback(context.Background(), snapshot)
				assert.True(t, ok)
				assert.Len(t, triggers, 1)
			}
		}()
	}
	wg.Wait()
}

func TestShouldRollbackAtThresholdIsFalse(t *testing.T) {
	f := newRollbackFixture(autoConfig())

	ok, triggers := f.svc.ShouldRollback(context.Background(), models.HealthSnapshot{
		Total: 100, Errors: 5, ErrorRate: 0.05,
	})
	assert.False(t, ok)
	assert.Empty(t, triggers)
}

func TestShouldRollbackMultipleTriggers(t *testing.T) {
	f := newRollbackFixture(autoConfig())

	ok, triggers := f.svc.ShouldRollback(context.Background(), models.HealthSnapshot{
		Total: 20, Errors: 2, ErrorRate: 0.10, AvgResponse: 6.0, PeakMemoryMB: 300,
	})
	assert.True(t, ok)
	assert.Equal(t, []string{
		"Error rate (10.0%) exceeds threshold (5.0%)",
		"Response time (6.0s) exceeds threshold (5.0s)",
		"Memory usage (300MB) exceeds threshold (256MB)",
	}, triggers)
}

func TestShouldRollbackDisabled(t *testing.T) {
	cfg := autoConfig()
	cfg.AutoRollback = false
	f := newRollbackFixture(cfg)

	ok, _ := f.svc.ShouldRollback(context.Background(), criticalSnapshot())
	assert.False(t, ok)
}

func TestExecuteRollbackIsOneShot(t *testing.T) {
	f := newRollbackFixture(autoConfig())
	ctx := context.Background()

	executed, err := f.svc.ExecuteRollback(ctx, criticalSnapshot(), models.RollbackTypeAuto, "system", []string{"trigger"})
	require.NoError(t, err)
	assert.True(t, executed)
	assert.Equal(t, 1, f.flags.zeroed)
	assert.True(t, f.svc.EmergencyActive(ctx))
	assert.True(t, f.svc.InCooldown(ctx))
	require.Len(t, f.store.events, 1)
	assert.Equal(t, models.RollbackTypeAuto, f.store.events[0].RollbackType)
	assert.Equal(t, []models.RollbackType{models.RollbackTypeAuto}, f.notify.rollbacks)

	// Second attempt, manual or auto, is suppressed without error.
	executed, err = f.svc.ExecuteRollback(ctx, criticalSnapshot(), models.RollbackTypeManual, "ops", nil)
	require.NoError(t, err)
	assert.False(t, executed)
	assert.Equal(t, 1, f.flags.zeroed)
	require.Len(t, f.store.events, 1)
}

func TestShouldRollbackSuppressedDuringCooldown(t *testing.T) {
	f := newRollbackFixture(autoConfig())
	ctx := context.Background()

	_, err := f.svc.ExecuteRollback(ctx, criticalSnapshot(), models.RollbackTypeAuto, "system", nil)
	require.NoError(t, err)
	require.NoError(t, f.svc.ClearRollback(ctx, "ops"))

	// Cleared emergency but cooldown still holds: auto path stays blocked.
	f.state.expiry[stateKeyCooldown] = f.state.now.Add(30 * time.Minute)
	f.state.values[stateKeyCooldown] = []byte("true")
	ok, _ := f.svc.ShouldRollback(ctx, criticalSnapshot())
	assert.False(t, ok)

	// Once the cooldown expires the auto path opens again.
	f.state.advance(31 * time.Minute)
	ok, _ = f.svc.ShouldRollback(ctx, criticalSnapshot())
	assert.True(t, ok)
}

func TestManualRollbackBypassesThresholdsButNotGuard(t *testing.T) {
	f := newRollbackFixture(autoConfig())
	ctx := context.Background()

	// Healthy metrics; manual rollback still executes.
	executed, err := f.svc.ExecuteRollback(ctx, models.HealthSnapshot{Total: 100}, models.RollbackTypeManual, "ops@example.com", []string{"manual_rollback"})
	require.NoError(t, err)
	assert.True(t, executed)
	assert.Equal(t, "manual", f.store.events[0].TriggerType)

	// But not while one is already active.
	executed, err = f.svc.ExecuteRollback(ctx, models.HealthSnapshot{Total: 100}, models.RollbackTypeManual, "ops@example.com", nil)
	require.NoError(t, err)
	assert.False(t, executed)
}

func TestEvaluateAfterErrorTriggersRollback(t *testing.T) {
	f := newRollbackFixture(autoConfig())
	f.source.snapshot = criticalSnapshot()

	f.svc.EvaluateAfterError(context.Background())

	require.Len(t, f.store.events, 1)
	assert.Equal(t, models.RollbackTypeAuto, f.store.events[0].RollbackType)
	assert.Equal(t, "system", f.store.events[0].UserID)
}

func TestEvaluateAfterErrorHealthySnapshotNoop(t *testing.T) {
	f := newRollbackFixture(autoConfig())
	f.source.snapshot = models.HealthSnapshot{Total: 100, Errors: 1, ErrorRate: 0.01}

	f.svc.EvaluateAfterError(context.Background())
	assert.Empty(t, f.store.events)
}

func TestClearRollbackAppendsRecoveryEvent(t *testing.T) {
	f := newRollbackFixture(autoConfig())
	ctx := context.Background()

	_, err := f.svc.ExecuteRollback(ctx, criticalSnapshot(), models.RollbackTypeAuto, "system", nil)
	require.NoError(t, err)

	require.NoError(t, f.svc.ClearRollback(ctx, "ops@example.com"))
	assert.False(t, f.svc.EmergencyActive(ctx))
	require.Len(t, f.store.events, 2)
	assert.Equal(t, models.RollbackTypeRecovery, f.store.events[0].RollbackType)
	assert.Equal(t, "ops@example.com", f.store.events[0].UserID)
	// Clearing never restores fractions: ZeroAll ran exactly once and no
	// restore call exists.
	assert.Equal(t, 1, f.flags.zeroed)
}

func TestPeriodicCheckNotifiesOncePerHour(t *testing.T) {
	f := newRollbackFixture(autoConfig())
	f.source.snapshot = criticalSnapshot()
	ctx := context.Background()

	f.svc.PeriodicCheck(ctx)
	f.svc.PeriodicCheck(ctx)
	assert.Len(t, f.notify.criticals, 1)

	f.state.advance(61 * time.Minute)
	f.svc.PeriodicCheck(ctx)
	assert.Len(t, f.notify.criticals, 2)

	// The periodic pass never executes rollback on its own.
	assert.Empty(t, f.store.events)
}

func TestPeriodicCheckGoodHealthNoNotification(t *testing.T) {
	f := newRollbackFixture(autoConfig())
	f.source.snapshot = models.HealthSnapshot{Total: 50}

	f.svc.PeriodicCheck(context.Background())
	assert.Empty(t, f.notify.criticals)
}

func TestHistoryDecodesEvents(t *testing.T) {
	f := newRollbackFixture(autoConfig())
	ctx := context.Background()

	_, err := f.svc.ExecuteRollback(ctx, criticalSnapshot(), models.RollbackTypeAuto, "system",
		[]string{"Error rate (10.0%) exceeds threshold (5.0%)"})
	require.NoError(t, err)

	views, err := f.svc.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, []string{"Error rate (10.0%) exceeds threshold (5.0%)"}, views[0].TriggerDetails)
	require.NotNil(t, views[0].MetricsSnapshot)
	assert.InDelta(t, 0.10, views[0].MetricsSnapshot.ErrorRate, 1e-9)
}

func TestRecoveryStatus(t *testing.T) {
	f := newRollbackFixture(autoConfig())
	ctx := context.Background()

	status := f.svc.RecoveryStatus(ctx)
	assert.True(t, status.CanRecover)
	assert.False(t, status.RollbackActive)
	assert.Contains(t, status.Reasons, "No active rollback")

	_, err := f.svc.ExecuteRollback(ctx, criticalSnapshot(), models.RollbackTypeAuto, "system", nil)
	require.NoError(t, err)

	status = f.svc.RecoveryStatus(ctx)
	assert.False(t, status.CanRecover)
	assert.True(t, status.RollbackActive)
	assert.True(t, status.InCooldown)

	f.state.advance(61 * time.Minute)
	status = f.svc.RecoveryStatus(ctx)
	assert.True(t, status.CanRecover)
	assert.True(t, status.RollbackActive)
}

func TestCurrentHealthUsesCache(t *testing.T) {
	f := newRollbackFixture(autoConfig())
	f.source.snapshot = criticalSnapshot()
	ctx := context.Background()

	health, err := f.svc.CurrentHealth(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.HealthStatusCritical, health.Status)

	// A later snapshot change is invisible while the cache is fresh.
	f.source.snapshot = models.HealthSnapshot{Total: 10}
	health, err = f.svc.CurrentHealth(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.HealthStatusCritical, health.Status)

	f.state.advance(6 * time.Minute)
	health, err = f.svc.CurrentHealth(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.HealthStatusGood, health.Status)
}
