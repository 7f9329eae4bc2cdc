package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/moneyquiz/routing-gateway/internal/models"
	"github.com/moneyquiz/routing-gateway/pkg/config"
	appErrors "github.com/moneyquiz/routing-gateway/pkg/errors"
	"github.com/moneyquiz/routing-gateway/pkg/export"
	"github.com/moneyquiz/routing-gateway/pkg/storage"
)

type weekMetricsSource interface {
	WeekMetrics(ctx context.Context, start, end time.Time) (models.WeekMetrics, error)
}

type rollbackCounter interface {
	CountBetween(ctx context.Context, start, end time.Time) (int64, error)
}

// ReportService generates weekly migration progress reports as CSV or PDF
// artifacts served through signed download URLs. Week 1 starts at the
// configured migration start date.
type ReportService struct {
	cfg       config.ReportsConfig
	metrics   weekMetricsSource
	rollbacks rollbackCounter
	store     *storage.LocalStorage
	signer    *storage.SignedURLSigner
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	logger    *zap.Logger
	start     time.Time
}

// NewReportService constructs the report generator.
func NewReportService(
	cfg config.ReportsConfig,
	metrics weekMetricsSource,
	rollbacks rollbackCounter,
	store *storage.LocalStorage,
	signer *storage.SignedURLSigner,
	logger *zap.Logger,
) (*ReportService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	start, err := time.Parse("2006-01-02", cfg.MigrationStart)
	if err != nil {
		return nil, fmt.Errorf("parse migration start date %q: %w", cfg.MigrationStart, err)
	}

	return &ReportService{
		cfg:       cfg,
		metrics:   metrics,
		rollbacks: rollbacks,
		store:     store,
		signer:    signer,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		logger:    logger,
		start:     start.UTC(),
	}, nil
}

// CurrentWeek returns the 1-based migration week number for now.
func (s *ReportService) CurrentWeek() int {
	elapsed := time.Since(s.start)
	if elapsed < 0 {
		return 1
	}
	return int(elapsed/(7*24*time.Hour)) + 1
}

// WeekBounds resolves the half-open [start, end) interval for a week.
func (s *ReportService) WeekBounds(week int) (time.Time, time.Time, error) {
	if week < 1 {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "week must be >= 1")
	}
	start := s.start.AddDate(0, 0, (week-1)*7)
	return start, start.AddDate(0, 0, 7), nil
}

// WeekMetrics aggregates one migration week.
func (s *ReportService) WeekMetrics(ctx context.Context, week int) (models.WeekMetrics, error) {
	if week <= 0 {
		week = s.CurrentWeek()
	}
	start, end, err := s.WeekBounds(week)
	if err != nil {
		return models.WeekMetrics{}, err
	}

	metrics, err := s.metrics.WeekMetrics(ctx, start, end)
	if err != nil {
		return models.WeekMetrics{}, err
	}
	metrics.Week = week

	rollbacks, err := s.rollbacks.CountBetween(ctx, start, end)
	if err != nil {
		s.logger.Warn("rollback count unavailable for report", zap.Int("week", week), zap.Error(err))
	} else {
		metrics.Rollbacks = rollbacks
	}
	return metrics, nil
}

// GenerateWeekly renders the weekly report in the requested format and
// returns a signed download artifact.
func (s *ReportService) GenerateWeekly(ctx context.Context, week int, format string) (*models.ReportArtifact, error) {
	if !s.cfg.Enabled {
		return nil, appErrors.ErrReportsDisabled
	}

	metrics, err := s.WeekMetrics(ctx, week)
	if err != nil {
		return nil, err
	}

	dataset := weekDataset(metrics)
	title := fmt.Sprintf("Migration Progress Report - Week %d", metrics.Week)

	var (
		payload     []byte
		contentType string
		ext         string
	)
	switch format {
	case "pdf":
		payload, err = s.pdf.Render(dataset, title)
		contentType = "application/pdf"
		ext = "pdf"
	case "csv", "":
		payload, err = s.csv.Render(dataset)
		contentType = "text/csv"
		ext = "csv"
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported report format %q", format))
	}
	if err != nil {
		return nil, fmt.Errorf("render weekly report: %w", err)
	}

	fileName := fmt.Sprintf("weekly/week-%03d-%s.%s", metrics.Week, time.Now().UTC().Format("20060102T150405"), ext)
	relPath, err := s.store.Save(fileName, payload)
	if err != nil {
		return nil, err
	}

	reportID := fmt.Sprintf("week-%d", metrics.Week)
	token, expiresAt, err := s.signer.Generate(reportID, relPath)
	if err != nil {
		return nil, fmt.Errorf("sign report url: %w", err)
	}

	s.logger.Info("weekly report generated",
		zap.Int("week", metrics.Week),
		zap.String("format", ext),
		zap.String("file", relPath),
	)

	return &models.ReportArtifact{
		FileName:    relPath,
		ContentType: contentType,
		Size:        int64(len(payload)),
		DownloadURL: fmt.Sprintf("/api/v1/reports/download?token=%s", token),
		ExpiresAt:   expiresAt,
	}, nil
}

// Resolve validates a download token and returns the stored file path.
func (s *ReportService) Resolve(token string) (string, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download token")
	}
	return s.store.Path(relPath), nil
}

// Cleanup removes generated report files older than the signed URL TTL.
func (s *ReportService) Cleanup(_ context.Context) {
	deleted, err := s.store.CleanupOlderThan(s.cfg.SignedURLTTL)
	if err != nil {
		s.logger.Warn("report cleanup failed", zap.Error(err))
		return
	}
	if len(deleted) > 0 {
		s.logger.Info("report cleanup", zap.Int("deleted", len(deleted)))
	}
}

func weekDataset(m models.WeekMetrics) export.Dataset {
	modernPct := 0.0
	errorRate := 0.0
	if m.Total > 0 {
		modernPct = float64(m.Modern) / float64(m.Total) * 100
		errorRate = float64(m.Errors) / float64(m.Total) * 100
	}

	row := func(metric, value string) map[string]string {
		return map[string]string{"Metric": metric, "Value": value}
	}
	return export.Dataset{
		Headers: []string{"Metric", "Value"},
		Rows: []map[string]string{
			row("Week", fmt.Sprintf("%d", m.Week)),
			row("Period", fmt.Sprintf("%s to %s", m.Start.Format("2006-01-02"), m.End.Format("2006-01-02"))),
			row("Total Requests", fmt.Sprintf("%d", m.Total)),
			row("Modern Requests", fmt.Sprintf("%d", m.Modern)),
			row("Legacy Requests", fmt.Sprintf("%d", m.Legacy)),
			row("Modern Share", fmt.Sprintf("%.1f%%", modernPct)),
			row("Errors", fmt.Sprintf("%d", m.Errors)),
			row("Error Rate", fmt.Sprintf("%.2f%%", errorRate)),
			row("Avg Response", fmt.Sprintf("%.3fs", m.AvgResponse)),
			row("Peak Memory", fmt.Sprintf("%.1fMB", m.PeakMemMB)),
			row("Rollbacks", fmt.Sprintf("%d", m.Rollbacks)),
		},
	}
}
