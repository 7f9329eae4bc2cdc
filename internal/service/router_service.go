package service

import (
	"context"
	"math/rand"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/moneyquiz/routing-gateway/internal/models"
)

type fractionSource interface {
	FractionFor(ctx context.Context, action string) float64
}

type errorEvaluator interface {
	EvaluateAfterError(ctx context.Context)
	EmergencyActive(ctx context.Context) bool
}

type dispatchRecorder interface {
	RecordSuccess(ctx context.Context, system models.System, action string, duration time.Duration, memory int64)
	RecordError(ctx context.Context, action string, cause error, extra map[string]interface{})
}

// RouterService splits traffic per action between the modern and legacy
// handlers. Each dispatch draws independently; there is no caller
// stickiness, so a fraction change takes effect on the very next request.
type RouterService struct {
	enabled bool
	flags   fractionSource
	modern  models.ActionHandler
	legacy  models.ActionHandler
	monitor dispatchRecorder
	guard   errorEvaluator
	metrics *MetricsService
	logger  *zap.Logger
	rng     func() float64
}

// NewRouterService constructs the router.
func NewRouterService(
	enabled bool,
	flags fractionSource,
	modern models.ActionHandler,
	legacy models.ActionHandler,
	monitor dispatchRecorder,
	guard errorEvaluator,
	metrics *MetricsService,
	logger *zap.Logger,
) *RouterService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RouterService{
		enabled: enabled,
		flags:   flags,
		modern:  modern,
		legacy:  legacy,
		monitor: monitor,
		guard:   guard,
		metrics: metrics,
		logger:  logger,
		rng:     rand.Float64,
	}
}

// Dispatch routes one action invocation and returns a uniform result no
// matter which handler served it.
func (s *RouterService) Dispatch(ctx context.Context, action string, data map[string]interface{}) models.RouterResult {
	system := s.choose(ctx, action)

	handler := s.legacy
	if system == models.SystemModern {
		handler = s.modern
	}

	start := time.Now()
	startMem := heapAlloc()

	result, err := handler.Handle(ctx, action, data)
	duration := time.Since(start)
	memory := heapAlloc() - startMem
	if memory < 0 {
		memory = 0
	}

	if err == nil {
		s.monitor.RecordSuccess(ctx, system, action, duration, memory)
		return models.RouterResult{
			HandlerResult: result,
			System:        system,
			Meta: models.RouterMeta{
				RoutedBy: string(system),
				Duration: duration.Seconds(),
			},
		}
	}

	s.monitor.RecordError(ctx, action, err, map[string]interface{}{
		"system": string(system),
		"data":   data,
	})
	s.guard.EvaluateAfterError(ctx)

	if system == models.SystemLegacy {
		// No further fallback exists below legacy.
		return errorResult(err, duration)
	}

	// Modern path failed; retry the same request once on legacy.
	s.metrics.ObserveFallback(action)
	s.logger.Warn("modern handler failed, falling back to legacy",
		zap.String("action", action),
		zap.Error(err),
	)

	fbStart := time.Now()
	fbResult, fbErr := s.legacy.Handle(ctx, action, data)
	fbDuration := time.Since(fbStart)

	if fbErr != nil {
		s.monitor.RecordError(ctx, action, fbErr, map[string]interface{}{
			"system":   string(models.SystemLegacy),
			"fallback": true,
		})
		return errorResult(fbErr, duration+fbDuration)
	}

	s.monitor.RecordSuccess(ctx, models.SystemLegacy, action, fbDuration, 0)
	return models.RouterResult{
		HandlerResult: fbResult,
		System:        models.SystemLegacy,
		Meta: models.RouterMeta{
			RoutedBy:       string(models.SystemLegacy),
			Duration:       fbDuration.Seconds(),
			Fallback:       true,
			FallbackReason: err.Error(),
		},
	}
}

// choose picks the serving system for one dispatch. Emergency rollback and
// a disabled router both pin traffic to legacy.
func (s *RouterService) choose(ctx context.Context, action string) models.System {
	if !s.enabled {
		return models.SystemLegacy
	}
	if s.guard.EmergencyActive(ctx) {
		return models.SystemLegacy
	}

	fraction := s.flags.FractionFor(ctx, action)
	if fraction <= 0 {
		return models.SystemLegacy
	}
	if fraction >= 1 || s.rng() < fraction {
		return models.SystemModern
	}
	return models.SystemLegacy
}

func errorResult(err error, duration time.Duration) models.RouterResult {
	return models.RouterResult{
		HandlerResult: models.HandlerResult{
			Success: false,
			Error:   err.Error(),
		},
		System: models.SystemError,
		Meta: models.RouterMeta{
			RoutedBy: string(models.SystemError),
			Duration: duration.Seconds(),
		},
	}
}

func heapAlloc() int64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return int64(stats.HeapAlloc)
}
