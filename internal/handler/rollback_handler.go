package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/moneyquiz/routing-gateway/internal/models"
	appErrors "github.com/moneyquiz/routing-gateway/pkg/errors"
	"github.com/moneyquiz/routing-gateway/pkg/response"
)

// RollbackManager is the subset of the rollback service used by the handler.
type RollbackManager interface {
	ExecuteRollback(ctx context.Context, snapshot models.HealthSnapshot, rollbackType models.RollbackType, userID string, triggers []string) (bool, error)
	ClearRollback(ctx context.Context, userID string) error
	History(ctx context.Context, limit int) ([]models.RollbackEventView, error)
	RecoveryStatus(ctx context.Context) models.RecoveryStatus
	EmergencyActive(ctx context.Context) bool
	InCooldown(ctx context.Context) bool
}

type rollbackSnapshotSource interface {
	RecentMetrics(ctx context.Context, window time.Duration) (models.HealthSnapshot, error)
}

// RollbackHandler exposes rollback administration.
type RollbackHandler struct {
	rollback RollbackManager
	source   rollbackSnapshotSource
	window   time.Duration
}

// NewRollbackHandler constructs a RollbackHandler.
func NewRollbackHandler(rollback RollbackManager, source rollbackSnapshotSource, window time.Duration) *RollbackHandler {
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &RollbackHandler{rollback: rollback, source: source, window: window}
}

// Execute godoc
// @Summary Execute a manual emergency rollback
// @Tags Rollback
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /rollback [post]
func (h *RollbackHandler) Execute(c *gin.Context) {
	ctx := c.Request.Context()

	snapshot, err := h.source.RecentMetrics(ctx, h.window)
	if err != nil {
		response.Error(c, err)
		return
	}

	executed, err := h.rollback.ExecuteRollback(ctx, snapshot, models.RollbackTypeManual, operatorID(c), []string{"manual_rollback"})
	if err != nil {
		response.Error(c, err)
		return
	}
	if !executed {
		response.Error(c, appErrors.ErrRollbackActive)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"executed": true})
}

// Clear godoc
// @Summary Clear the rollback state
// @Description Returns the system to normal. Rollout fractions stay at zero.
// @Tags Rollback
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /rollback/clear [post]
func (h *RollbackHandler) Clear(c *gin.Context) {
	ctx := c.Request.Context()

	status := h.rollback.RecoveryStatus(ctx)
	if !status.CanRecover {
		response.Error(c, appErrors.ErrCooldownActive)
		return
	}

	if err := h.rollback.ClearRollback(ctx, operatorID(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"cleared": true})
}

// History godoc
// @Summary List rollback events, newest first
// @Tags Rollback
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Maximum events" default(10)
// @Success 200 {object} response.Envelope
// @Router /rollback/history [get]
func (h *RollbackHandler) History(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	events, err := h.rollback.History(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events)
}

// Recovery godoc
// @Summary Report whether the rollback state may be cleared
// @Tags Rollback
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /rollback/recovery [get]
func (h *RollbackHandler) Recovery(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.rollback.RecoveryStatus(c.Request.Context()))
}
