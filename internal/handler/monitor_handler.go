package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/moneyquiz/routing-gateway/internal/models"
	"github.com/moneyquiz/routing-gateway/pkg/response"
)

// MonitorViews is the subset of the monitor service used by the handler.
type MonitorViews interface {
	TrafficDistribution(ctx context.Context, hours int) ([]models.TrafficShare, error)
	ErrorRatesByAction(ctx context.Context, hours int) ([]models.ActionErrorRate, error)
	PerformanceMetrics(ctx context.Context, hours int) ([]models.ActionPerformance, error)
}

// HealthProvider resolves the current system health classification.
type HealthProvider interface {
	CurrentHealth(ctx context.Context) (models.SystemHealth, error)
}

// MonitorHandler exposes the operator monitoring views.
type MonitorHandler struct {
	monitor MonitorViews
	health  HealthProvider
}

// NewMonitorHandler constructs a MonitorHandler.
func NewMonitorHandler(monitor MonitorViews, health HealthProvider) *MonitorHandler {
	return &MonitorHandler{monitor: monitor, health: health}
}

// Health godoc
// @Summary Current health classification
// @Tags Monitoring
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /monitor/health [get]
func (h *MonitorHandler) Health(c *gin.Context) {
	health, err := h.health.CurrentHealth(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, health)
}

// Traffic godoc
// @Summary Request share per system
// @Tags Monitoring
// @Produce json
// @Security BearerAuth
// @Param hours query int false "Trailing window in hours" default(24)
// @Success 200 {object} response.Envelope
// @Router /monitor/traffic [get]
func (h *MonitorHandler) Traffic(c *gin.Context) {
	shares, err := h.monitor.TrafficDistribution(c.Request.Context(), hoursParam(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, shares)
}

// Errors godoc
// @Summary Per-action error rates, worst first
// @Tags Monitoring
// @Produce json
// @Security BearerAuth
// @Param hours query int false "Trailing window in hours" default(24)
// @Success 200 {object} response.Envelope
// @Router /monitor/errors [get]
func (h *MonitorHandler) Errors(c *gin.Context) {
	rates, err := h.monitor.ErrorRatesByAction(c.Request.Context(), hoursParam(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rates)
}

// Performance godoc
// @Summary Latency comparison per action and system
// @Tags Monitoring
// @Produce json
// @Security BearerAuth
// @Param hours query int false "Trailing window in hours" default(24)
// @Success 200 {object} response.Envelope
// @Router /monitor/performance [get]
func (h *MonitorHandler) Performance(c *gin.Context) {
	rows, err := h.monitor.PerformanceMetrics(c.Request.Context(), hoursParam(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows)
}

func hoursParam(c *gin.Context) int {
	hours, err := strconv.Atoi(c.DefaultQuery("hours", "24"))
	if err != nil || hours <= 0 {
		return 24
	}
	return hours
}
