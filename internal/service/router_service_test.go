package service

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moneyquiz/routing-gateway/internal/models"
	"github.com/moneyquiz/routing-gateway/pkg/config"
)

type handlerFunc func(ctx context.Context, action string, data map[string]interface{}) (models.HandlerResult, error)

func (f handlerFunc) Handle(ctx context.Context, action string, data map[string]interface{}) (models.HandlerResult, error) {
	return f(ctx, action, data)
}

func okHandler(tag string) handlerFunc {
	return func(ctx context.Context, action string, data map[string]interface{}) (models.HandlerResult, error) {
		return models.HandlerResult{Success: true, Output: tag}, nil
	}
}

func failHandler(msg string) handlerFunc {
	return func(ctx context.Context, action string, data map[string]interface{}) (models.HandlerResult, error) {
		return models.HandlerResult{}, errors.New(msg)
	}
}

type fixedFractions map[string]float64

func (f fixedFractions) FractionFor(ctx context.Context, action string) float64 { return f[action] }

type guardStub struct {
	emergency bool
	evaluated int
}

func (g *guardStub) EvaluateAfterError(ctx context.Context) { g.evaluated++ }
func (g *guardStub) EmergencyActive(ctx context.Context) bool {
	return g.emergency
}

// memMonitor records dispatch outcomes in memory and aggregates them the
// way the durable store would.
type memMonitor struct {
	mu     sync.Mutex
	events []models.MetricEvent
}

func (m *memMonitor) RecordSuccess(ctx context.Context, system models.System, action string, duration time.Duration, memory int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, models.MetricEvent{System: system, Action: action, Status: models.MetricStatusSuccess})
}

func (m *memMonitor) RecordError(ctx context.Context, action string, cause error, extra map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, models.MetricEvent{System: models.SystemError, Action: action, Status: models.MetricStatusError})
}

func (m *memMonitor) RecentMetrics(ctx context.Context, window time.Duration) (models.HealthSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := models.HealthSnapshot{Total: int64(len(m.events))}
	for _, event := range m.events {
		if event.Status == models.MetricStatusError {
			snapshot.Errors++
		}
	}
	if snapshot.Total > 0 {
		snapshot.ErrorRate = float64(snapshot.Errors) / float64(snapshot.Total)
	}
	return snapshot, nil
}

func (m *memMonitor) bySystem(system models.System) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, event := range m.events {
		if event.System == system {
			count++
		}
	}
	return count
}

func newTestRouter(fractions fixedFractions, modern, legacy models.ActionHandler, monitor *memMonitor, guard *guardStub) *RouterService {
	return NewRouterService(true, fractions, modern, legacy, monitor, guard, nil, nil)
}

func TestDispatchFractionZeroRoutesLegacy(t *testing.T) {
	monitor := &memMonitor{}
	router := newTestRouter(fixedFractions{}, okHandler("modern"), okHandler("legacy"), monitor, &guardStub{})
	router.rng = func() float64 { return 0.0 }

	result := router.Dispatch(context.Background(), "quiz_display", nil)
	assert.Equal(t, models.SystemLegacy, result.System)
	assert.Equal(t, "legacy", result.Output)
	assert.Equal(t, "legacy", result.Meta.RoutedBy)
}

func TestDispatchFractionOneRoutesModern(t *testing.T) {
	monitor := &memMonitor{}
	router := newTestRouter(fixedFractions{"quiz_display": 1.0}, okHandler("modern"), okHandler("legacy"), monitor, &guardStub{})
	router.rng = func() float64 { return 0.999 }

	result := router.Dispatch(context.Background(), "quiz_display", nil)
	assert.Equal(t, models.SystemModern, result.System)
	assert.True(t, result.Success)
}

func TestDispatchRngBoundary(t *testing.T) {
	monitor := &memMonitor{}
	router := newTestRouter(fixedFractions{"quiz_display": 0.5}, okHandler("modern"), okHandler("legacy"), monitor, &guardStub{})

	router.rng = func() float64 { return 0.49 }
	assert.Equal(t, models.SystemModern, router.Dispatch(context.Background(), "quiz_display", nil).System)

	// rng() == fraction lands on legacy: the draw must be strictly below.
	router.rng = func() float64 { return 0.5 }
	assert.Equal(t, models.SystemLegacy, router.Dispatch(context.Background(), "quiz_display", nil).System)
}

func TestDispatchFractionConvergence(t *testing.T) {
	monitor := &memMonitor{}
	router := newTestRouter(fixedFractions{"quiz_display": 0.5}, okHandler("modern"), okHandler("legacy"), monitor, &guardStub{})
	router.rng = rand.New(rand.NewSource(1)).Float64

	const n = 2000
	for i := 0; i < n; i++ {
		router.Dispatch(context.Background(), "quiz_display", nil)
	}

	share := float64(monitor.bySystem(models.SystemModern)) / float64(n)
	assert.InDelta(t, 0.5, share, 0.05)
}

func TestDispatchDisabledRouterPinsLegacy(t *testing.T) {
	monitor := &memMonitor{}
	router := NewRouterService(false, fixedFractions{"quiz_display": 1.0}, okHandler("modern"), okHandler("legacy"), monitor, &guardStub{}, nil, nil)

	result := router.Dispatch(context.Background(), "quiz_display", nil)
	assert.Equal(t, models.SystemLegacy, result.System)
}

func TestDispatchEmergencyPinsLegacy(t *testing.T) {
	monitor := &memMonitor{}
	router := newTestRouter(fixedFractions{"quiz_display": 1.0}, okHandler("modern"), okHandler("legacy"), monitor, &guardStub{emergency: true})
	router.rng = func() float64 { return 0.0 }

	result := router.Dispatch(context.Background(), "quiz_display", nil)
	assert.Equal(t, models.SystemLegacy, result.System)
}

func TestDispatchModernFailureFallsBackToLegacy(t *testing.T) {
	monitor := &memMonitor{}
	guard := &guardStub{}
	router := newTestRouter(fixedFractions{"quiz_submit": 1.0}, failHandler("boom"), okHandler("legacy"), monitor, guard)

	result := router.Dispatch(context.Background(), "quiz_submit", map[string]interface{}{"answers": []int{1, 2}})
	assert.Equal(t, models.SystemLegacy, result.System)
	assert.True(t, result.Success)
	assert.True(t, result.Meta.Fallback)
	assert.Equal(t, "boom", result.Meta.FallbackReason)

	// The failure was recorded and the rollback check ran inline.
	assert.Equal(t, 1, guard.evaluated)
	assert.Equal(t, 1, monitor.bySystem(models.SystemError))
	assert.Equal(t, 1, monitor.bySystem(models.SystemLegacy))
}

func TestDispatchBothHandlersFail(t *testing.T) {
	monitor := &memMonitor{}
	guard := &guardStub{}
	router := newTestRouter(fixedFractions{"quiz_submit": 1.0}, failHandler("modern down"), failHandler("legacy down"), monitor, guard)

	result := router.Dispatch(context.Background(), "quiz_submit", nil)
	assert.Equal(t, models.SystemError, result.System)
	assert.False(t, result.Success)
	assert.Equal(t, "legacy down", result.Error)
	assert.Equal(t, 2, monitor.bySystem(models.SystemError))
}

func TestDispatchLegacyFailureIsTerminal(t *testing.T) {
	monitor := &memMonitor{}
	guard := &guardStub{}
	router := newTestRouter(fixedFractions{}, okHandler("modern"), failHandler("legacy down"), monitor, guard)

	result := router.Dispatch(context.Background(), "quiz_display", nil)
	assert.Equal(t, models.SystemError, result.System)
	assert.Equal(t, 1, guard.evaluated)
}

func TestModernHandlerUnknownActionFault(t *testing.T) {
	modern := NewModernHandler()
	_, err := modern.Handle(context.Background(), "unknown", nil)
	require.Error(t, err)

	modern.Register("quiz_display", func(ctx context.Context, data map[string]interface{}) (models.HandlerResult, error) {
		return models.HandlerResult{Success: true}, nil
	})
	result, err := modern.Handle(context.Background(), "quiz_display", nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
}

// Wires a real flag service and rollback service around the router and
// drives enough failing traffic to cross the error threshold.
func TestDispatchErrorsTriggerAutomaticRollback(t *testing.T) {
	ctx := context.Background()
	monitor := &memMonitor{}

	flagRepo := &flagRepoStub{flags: []models.RolloutFlag{{Action: "quiz_submit", Fraction: 1.0}}}
	flags := NewFlagService(flagRepo, newFlagCacheStub(), time.Minute, nil, nil)

	rollbackFix := struct {
		store  *rollbackStoreStub
		state  *memState
		notify *notifierSpy
	}{&rollbackStoreStub{}, newMemState(), &notifierSpy{}}
	rollback := NewRollbackService(config.RollbackConfig{
		AutoRollback:    true,
		CooldownMinutes: 60,
		EmergencyTTL:    24 * time.Hour,
		WindowSeconds:   300,
	}, rollbackFix.store, flags, rollbackFix.state, monitor, rollbackFix.notify, nil, nil)

	calls := 0
	modern := handlerFunc(func(ctx context.Context, action string, data map[string]interface{}) (models.HandlerResult, error) {
		calls++
		if calls >= 20 {
			return models.HandlerResult{}, errors.New("modern regression")
		}
		return models.HandlerResult{Success: true, Output: "modern"}, nil
	})

	router := NewRouterService(true, flags, modern, okHandler("legacy"), monitor, rollback, nil, nil)
	router.rng = func() float64 { return 0.0 }

	for i := 0; i < 20; i++ {
		router.Dispatch(ctx, "quiz_submit", nil)
	}
	// The inline check after the first error sees 19 successes and 1
	// error: rate exactly 5%, no rollback yet.
	assert.False(t, rollback.EmergencyActive(ctx))
	assert.Empty(t, rollbackFix.store.events)

	router.Dispatch(ctx, "quiz_submit", nil)
	// Second error pushes the rate past the threshold (2 of 22 events).
	require.Len(t, rollbackFix.store.events, 1)
	assert.Equal(t, models.RollbackTypeAuto, rollbackFix.store.events[0].RollbackType)
	assert.True(t, rollback.EmergencyActive(ctx))
	assert.Equal(t, []models.RollbackType{models.RollbackTypeAuto}, rollbackFix.notify.rollbacks)

	// Every dispatch after the rollback lands on legacy despite the old
	// fraction and a modern-leaning rng.
	result := router.Dispatch(ctx, "quiz_submit", nil)
	assert.Equal(t, models.SystemLegacy, result.System)
	assert.False(t, result.Meta.Fallback)
}
