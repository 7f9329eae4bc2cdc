package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/moneyquiz/routing-gateway/internal/models"
	appErrors "github.com/moneyquiz/routing-gateway/pkg/errors"
	"github.com/moneyquiz/routing-gateway/pkg/response"
)

// FlagManager is the subset of the flag service used by the handler.
type FlagManager interface {
	All(ctx context.Context) (map[string]float64, error)
	Update(ctx context.Context, action string, fraction float64, updatedBy string) (*models.RolloutFlag, error)
}

// FlagsHandler exposes rollout fraction administration.
type FlagsHandler struct {
	flags FlagManager
}

// NewFlagsHandler constructs a FlagsHandler.
func NewFlagsHandler(flags FlagManager) *FlagsHandler {
	return &FlagsHandler{flags: flags}
}

// List godoc
// @Summary List rollout flags
// @Tags Flags
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /flags [get]
func (h *FlagsHandler) List(c *gin.Context) {
	flags, err := h.flags.All(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, flags)
}

type updateFlagRequest struct {
	Action   string   `json:"action" binding:"required"`
	Fraction *float64 `json:"fraction" binding:"required"`
}

// Update godoc
// @Summary Set the rollout fraction for an action
// @Tags Flags
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body updateFlagRequest true "Flag payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /flags [put]
func (h *FlagsHandler) Update(c *gin.Context) {
	var req updateFlagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid flag payload"))
		return
	}

	flag, err := h.flags.Update(c.Request.Context(), req.Action, *req.Fraction, operatorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, flag)
}
