package service

import (
	"fmt"

	"github.com/moneyquiz/routing-gateway/internal/models"
	"github.com/moneyquiz/routing-gateway/pkg/config"
)

// HealthThresholds holds the boundaries used to classify a snapshot.
// Critical values come from configuration; warning levels are fixed.
type HealthThresholds struct {
	ErrorRateCritical float64
	ErrorRateWarning  float64
	ResponseCritical  float64
	ResponseWarning   float64
	MemoryCriticalMB  float64
	MemoryWarningMB   float64
}

// DefaultHealthThresholds returns the stock classification boundaries.
func DefaultHealthThresholds() HealthThresholds {
	return HealthThresholds{
		ErrorRateCritical: 0.05,
		ErrorRateWarning:  0.02,
		ResponseCritical:  5.0,
		ResponseWarning:   3.0,
		MemoryCriticalMB:  256,
		MemoryWarningMB:   128,
	}
}

// ThresholdsFromConfig overlays configured critical thresholds on the defaults.
func ThresholdsFromConfig(cfg config.RollbackConfig) HealthThresholds {
	t := DefaultHealthThresholds()
	if cfg.ErrorThreshold > 0 {
		t.ErrorRateCritical = cfg.ErrorThreshold
	}
	if cfg.ResponseThreshold > 0 {
		t.ResponseCritical = cfg.ResponseThreshold
	}
	if cfg.MemoryThresholdMB > 0 {
		t.MemoryCriticalMB = cfg.MemoryThresholdMB
	}
	return t
}

// EvaluateHealth classifies a snapshot. It is a pure function: identical
// inputs always produce identical output. Each check escalates status
// monotonically; a critical finding is never downgraded by a later check.
func EvaluateHealth(snapshot models.HealthSnapshot, t HealthThresholds) models.SystemHealth {
	status := models.HealthStatusGood
	issues := []string{}

	switch {
	case snapshot.ErrorRate > t.ErrorRateCritical:
		status = models.HealthStatusCritical
		issues = append(issues, fmt.Sprintf("High error rate: %.1f%%", snapshot.ErrorRate*100))
	case snapshot.ErrorRate > t.ErrorRateWarning:
		status = models.HealthStatusWarning
		issues = append(issues, fmt.Sprintf("Elevated error rate: %.1f%%", snapshot.ErrorRate*100))
	}

	switch {
	case snapshot.AvgResponse > t.ResponseCritical:
		status = models.HealthStatusCritical
		issues = append(issues, fmt.Sprintf("Slow response time: %.1fs", snapshot.AvgResponse))
	case snapshot.AvgResponse > t.ResponseWarning:
		if status != models.HealthStatusCritical {
			status = models.HealthStatusWarning
		}
		issues = append(issues, fmt.Sprintf("Response time warning: %.1fs", snapshot.AvgResponse))
	}

	switch {
	case snapshot.PeakMemoryMB > t.MemoryCriticalMB:
		status = models.HealthStatusCritical
		issues = append(issues, fmt.Sprintf("High memory usage: %dMB", int(snapshot.PeakMemoryMB)))
	case snapshot.PeakMemoryMB > t.MemoryWarningMB:
		if status != models.HealthStatusCritical {
			status = models.HealthStatusWarning
		}
		issues = append(issues, fmt.Sprintf("Memory usage warning: %dMB", int(snapshot.PeakMemoryMB)))
	}

	return models.SystemHealth{
		Status:             status,
		Issues:             issues,
		Metrics:            snapshot,
		CanIncreaseTraffic: status == models.HealthStatusGood,
		ShouldRollback:     status == models.HealthStatusCritical,
	}
}
