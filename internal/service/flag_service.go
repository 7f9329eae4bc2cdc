package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/moneyquiz/routing-gateway/internal/models"
	appErrors "github.com/moneyquiz/routing-gateway/pkg/errors"
)

const flagCacheKey = "routing:flags"

type flagRepository interface {
	All(ctx context.Context) ([]models.RolloutFlag, error)
	Upsert(ctx context.Context, flag *models.RolloutFlag) error
	ZeroAll(ctx context.Context, updatedBy string) error
}

type flagCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// FlagService owns the per-action rollout fractions. Reads are cache-aside
// over Redis; any read failure degrades to "fraction 0", never to an error,
// so routing always fails safe to the legacy handler.
type FlagService struct {
	repo     flagRepository
	cache    flagCache
	cacheTTL time.Duration
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewFlagService constructs a flag service.
func NewFlagService(repo flagRepository, cache flagCache, cacheTTL time.Duration, metrics *MetricsService, logger *zap.Logger) *FlagService {
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FlagService{repo: repo, cache: cache, cacheTTL: cacheTTL, metrics: metrics, logger: logger}
}

// All returns every rollout flag keyed by action.
func (s *FlagService) All(ctx context.Context) (map[string]float64, error) {
	if s.cache != nil {
		cached := map[string]float64{}
		if err := s.cache.Get(ctx, flagCacheKey, &cached); err == nil {
			return cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("flag cache read failed", zap.Error(err))
		}
	}

	flags, err := s.repo.All(ctx)
	if err != nil {
		return nil, err
	}

	result := make(map[string]float64, len(flags))
	for _, flag := range flags {
		result[flag.Action] = clampFraction(flag.Fraction)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, flagCacheKey, result, s.cacheTTL); err != nil {
			s.logger.Warn("flag cache write failed", zap.Error(err))
		}
	}
	return result, nil
}

// FractionFor resolves the rollout fraction for one action. Absent actions
// and lookup failures both yield 0.
func (s *FlagService) FractionFor(ctx context.Context, action string) float64 {
	flags, err := s.All(ctx)
	if err != nil {
		s.logger.Warn("flag lookup failed, failing safe to legacy", zap.String("action", action), zap.Error(err))
		return 0
	}
	return flags[action]
}

// Update writes the rollout fraction for one action.
func (s *FlagService) Update(ctx context.Context, action string, fraction float64, updatedBy string) (*models.RolloutFlag, error) {
	if action == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "action is required")
	}
	if fraction < 0 || fraction > 1 {
		return nil, appErrors.ErrInvalidFraction
	}

	flag := &models.RolloutFlag{
		Action:    action,
		Fraction:  fraction,
		UpdatedBy: updatedBy,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.repo.Upsert(ctx, flag); err != nil {
		return nil, err
	}

	s.metrics.SetRolloutFraction(action, fraction)
	s.Invalidate(ctx)
	return flag, nil
}

// ZeroAll forces every fraction to zero and invalidates the cache. The
// rollback path relies on this being visible to all subsequent dispatches.
func (s *FlagService) ZeroAll(ctx context.Context, updatedBy string) error {
	if err := s.repo.ZeroAll(ctx, updatedBy); err != nil {
		return err
	}
	s.Invalidate(ctx)
	return nil
}

// Invalidate drops the cached flag map.
func (s *FlagService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, flagCacheKey); err != nil {
		s.logger.Warn("flag cache invalidate failed", zap.Error(err))
	}
}

func clampFraction(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
