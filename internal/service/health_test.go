package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/moneyquiz/routing-gateway/internal/models"
	"github.com/moneyquiz/routing-gateway/pkg/config"
)

func TestEvaluateHealthGood(t *testing.T) {
	health := EvaluateHealth(models.HealthSnapshot{
		Total:       100,
		Errors:      1,
		ErrorRate:   0.01,
		AvgResponse: 0.5,
	}, DefaultHealthThresholds())

	assert.Equal(t, models.HealthStatusGood, health.Status)
	assert.Empty(t, health.Issues)
	assert.True(t, health.CanIncreaseTraffic)
	assert.False(t, health.ShouldRollback)
}

func TestEvaluateHealthEmptyWindowIsGood(t *testing.T) {
	health := EvaluateHealth(models.HealthSnapshot{}, DefaultHealthThresholds())

	assert.Equal(t, models.HealthStatusGood, health.Status)
	assert.True(t, health.CanIncreaseTraffic)
}

func TestEvaluateHealthThresholdsAreExclusive(t *testing.T) {
	// Exactly at the boundary stays below it.
	health := EvaluateHealth(models.HealthSnapshot{
		Total:     100,
		Errors:    5,
		ErrorRate: 0.05,
	}, DefaultHealthThresholds())
	assert.Equal(t, models.HealthStatusWarning, health.Status)
	assert.False(t, health.ShouldRollback)

	health = EvaluateHealth(models.HealthSnapshot{
		Total:     100,
		Errors:    2,
		ErrorRate: 0.02,
	}, DefaultHealthThresholds())
	assert.Equal(t, models.HealthStatusGood, health.Status)
}

func TestEvaluateHealthCriticalErrorRate(t *testing.T) {
	health := EvaluateHealth(models.HealthSnapshot{
		Total:     100,
		Errors:    10,
		ErrorRate: 0.10,
	}, DefaultHealthThresholds())

	assert.Equal(t, models.HealthStatusCritical, health.Status)
	assert.Contains(t, health.Issues, "High error rate: 10.0%")
	assert.True(t, health.ShouldRollback)
	assert.False(t, health.CanIncreaseTraffic)
}

func TestEvaluateHealthWarningDoesNotDowngradeCritical(t *testing.T) {
	health := EvaluateHealth(models.HealthSnapshot{
		Total:        100,
		Errors:       10,
		ErrorRate:    0.10,
		AvgResponse:  3.5,
		PeakMemoryMB: 150,
	}, DefaultHealthThresholds())

	assert.Equal(t, models.HealthStatusCritical, health.Status)
	assert.Len(t, health.Issues, 3)
	assert.Contains(t, health.Issues, "Response time warning: 3.5s")
	assert.Contains(t, health.Issues, "Memory usage warning: 150MB")
}

func TestEvaluateHealthAllCritical(t *testing.T) {
	health := EvaluateHealth(models.HealthSnapshot{
		Total:        50,
		Errors:       10,
		ErrorRate:    0.20,
		AvgResponse:  6.0,
		PeakMemoryMB: 300,
	}, DefaultHealthThresholds())

	assert.Equal(t, models.HealthStatusCritical, health.Status)
	assert.Equal(t, []string{
		"High error rate: 20.0%",
		"Slow response time: 6.0s",
		"High memory usage: 300MB",
	}, health.Issues)
}

func TestThresholdsFromConfig(t *testing.T) {
	thresholds := ThresholdsFromConfig(config.RollbackConfig{
		ErrorThreshold:    0.10,
		ResponseThreshold: 2.0,
	})

	assert.InDelta(t, 0.10, thresholds.ErrorRateCritical, 1e-9)
	assert.InDelta(t, 2.0, thresholds.ResponseCritical, 1e-9)
	// Unset values keep the defaults.
	assert.InDelta(t, 256.0, thresholds.MemoryCriticalMB, 1e-9)
	assert.InDelta(t, 0.02, thresholds.ErrorRateWarning, 1e-9)
}

func TestEvaluateHealthIsPure(t *testing.T) {
	snapshot := models.HealthSnapshot{Total: 100, Errors: 3, ErrorRate: 0.03}
	first := EvaluateHealth(snapshot, DefaultHealthThresholds())
	second := EvaluateHealth(snapshot, DefaultHealthThresholds())
	assert.Equal(t, first, second)
}
