package models

import "time"

// WeekMetrics summarises one migration week for operator reporting.
type WeekMetrics struct {
	Week        int       `json:"week"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Total       int64     `db:"total" json:"total"`
	Modern      int64     `db:"modern" json:"modern"`
	Legacy      int64     `db:"legacy" json:"legacy"`
	Errors      int64     `db:"errors" json:"errors"`
	AvgResponse float64   `db:"avg_response" json:"avg_response"`
	PeakMemMB   float64   `db:"peak_memory_mb" json:"peak_memory_mb"`
	Rollbacks   int64     `json:"rollbacks"`
}

// ReportArtifact describes a generated report file.
type ReportArtifact struct {
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	DownloadURL string    `json:"download_url"`
	ExpiresAt   time.Time `json:"expires_at"`
}
