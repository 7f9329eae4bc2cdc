package handler

import (
	"context"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/moneyquiz/routing-gateway/internal/models"
	appErrors "github.com/moneyquiz/routing-gateway/pkg/errors"
	"github.com/moneyquiz/routing-gateway/pkg/response"
)

// ReportGenerator is the subset of the report service used by the handler.
type ReportGenerator interface {
	WeekMetrics(ctx context.Context, week int) (models.WeekMetrics, error)
	GenerateWeekly(ctx context.Context, week int, format string) (*models.ReportArtifact, error)
	Resolve(token string) (string, error)
}

// ReportHandler exposes weekly migration reporting.
type ReportHandler struct {
	reports ReportGenerator
}

// NewReportHandler constructs a ReportHandler.
func NewReportHandler(reports ReportGenerator) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// Weekly godoc
// @Summary Weekly migration metrics
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Param week query int false "Migration week number, current when omitted"
// @Success 200 {object} response.Envelope
// @Router /reports/weekly [get]
func (h *ReportHandler) Weekly(c *gin.Context) {
	week, _ := strconv.Atoi(c.DefaultQuery("week", "0"))

	metrics, err := h.reports.WeekMetrics(c.Request.Context(), week)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, metrics)
}

// Generate godoc
// @Summary Generate a weekly report artifact
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Param week query int false "Migration week number, current when omitted"
// @Param format query string false "csv or pdf" default(csv)
// @Success 201 {object} response.Envelope
// @Router /reports/weekly [post]
func (h *ReportHandler) Generate(c *gin.Context) {
	week, _ := strconv.Atoi(c.DefaultQuery("week", "0"))
	format := c.DefaultQuery("format", "csv")

	artifact, err := h.reports.GenerateWeekly(c.Request.Context(), week, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, artifact)
}

// Download godoc
// @Summary Download a generated report by signed token
// @Tags Reports
// @Produce octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} file
// @Failure 401 {object} response.Envelope
// @Router /reports/download [get]
func (h *ReportHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}

	path, err := h.reports.Resolve(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.FileAttachment(path, filepath.Base(path))
}
