package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moneyquiz/routing-gateway/internal/models"
	"github.com/moneyquiz/routing-gateway/pkg/config"
	appErrors "github.com/moneyquiz/routing-gateway/pkg/errors"
	"github.com/moneyquiz/routing-gateway/pkg/storage"
)

type weekMetricsStub struct {
	metrics models.WeekMetrics
}

func (s *weekMetricsStub) WeekMetrics(ctx context.Context, start, end time.Time) (models.WeekMetrics, error) {
	m := s.metrics
	m.Start = start
	m.End = end
	return m, nil
}

type rollbackCounterStub struct {
	count int64
}

func (s *rollbackCounterStub) CountBetween(ctx context.Context, start, end time.Time) (int64, error) {
	return s.count, nil
}

func newTestReportService(t *testing.T, enabled bool) *ReportService {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("report-secret", time.Hour)

	svc, err := NewReportService(config.ReportsConfig{
		Enabled:        enabled,
		SignedURLTTL:   time.Hour,
		MigrationStart: "2026-08-03",
	}, &weekMetricsStub{metrics: models.WeekMetrics{Total: 1000, Modern: 250, Legacy: 740, Errors: 10, AvgResponse: 0.8}}, &rollbackCounterStub{count: 1}, store, signer, nil)
	require.NoError(t, err)
	return svc
}

func TestReportServiceRejectsBadStartDate(t *testing.T) {
	_, err := NewReportService(config.ReportsConfig{MigrationStart: "next tuesday"}, nil, nil, nil, nil, nil)
	require.Error(t, err)
}

func TestReportServiceWeekBounds(t *testing.T) {
	svc := newTestReportService(t, true)

	start, end, err := svc.WeekBounds(1)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC), end)

	start, _, err = svc.WeekBounds(3)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC), start)

	_, _, err = svc.WeekBounds(0)
	require.Error(t, err)
}

func TestReportServiceWeekMetrics(t *testing.T) {
	svc := newTestReportService(t, true)

	metrics, err := svc.WeekMetrics(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, metrics.Week)
	assert.Equal(t, int64(1000), metrics.Total)
	assert.Equal(t, int64(1), metrics.Rollbacks)
}

func TestReportServiceGenerateWeeklyCSV(t *testing.T) {
	svc := newTestReportService(t, true)

	artifact, err := svc.GenerateWeekly(context.Background(), 1, "csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", artifact.ContentType)
	assert.Greater(t, artifact.Size, int64(0))
	assert.True(t, strings.HasPrefix(artifact.DownloadURL, "/api/v1/reports/download?token="))

	token := strings.TrimPrefix(artifact.DownloadURL, "/api/v1/reports/download?token=")
	path, err := svc.Resolve(token)
	require.NoError(t, err)
	assert.NotEmpty(t, path)
}

func TestReportServiceGenerateWeeklyPDF(t *testing.T) {
	svc := newTestReportService(t, true)

	artifact, err := svc.GenerateWeekly(context.Background(), 1, "pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", artifact.ContentType)
	assert.Greater(t, artifact.Size, int64(0))
}

func TestReportServiceGenerateWeeklyUnknownFormat(t *testing.T) {
	svc := newTestReportService(t, true)

	_, err := svc.GenerateWeekly(context.Background(), 1, "xlsx")
	require.Error(t, err)
}

func TestReportServiceDisabled(t *testing.T) {
	svc := newTestReportService(t, false)

	_, err := svc.GenerateWeekly(context.Background(), 1, "csv")
	assert.ErrorIs(t, err, appErrors.ErrReportsDisabled)
}

func TestReportServiceResolveRejectsTamperedToken(t *testing.T) {
	svc := newTestReportService(t, true)

	_, err := svc.Resolve("bogus.token.value.signature")
	require.Error(t, err)
}
