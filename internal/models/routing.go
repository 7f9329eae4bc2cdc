package models

import (
	"context"
	"time"
)

// System identifies which implementation served a routed request.
type System string

const (
	// SystemModern marks requests served by the modern Go code path.
	SystemModern System = "modern"
	// SystemLegacy marks requests served by the legacy PHP backend.
	SystemLegacy System = "legacy"
	// SystemError marks requests that failed on every path.
	SystemError System = "error"
)

// MetricStatus records the outcome of a dispatched request.
type MetricStatus string

const (
	MetricStatusSuccess MetricStatus = "success"
	MetricStatusError   MetricStatus = "error"
)

// MetricEvent is an immutable record of a single dispatch outcome.
type MetricEvent struct {
	ID           int64        `db:"id" json:"id"`
	System       System       `db:"system" json:"system"`
	Action       string       `db:"action" json:"action"`
	Status       MetricStatus `db:"status" json:"status"`
	Duration     float64      `db:"duration" json:"duration"`
	Memory       *int64       `db:"memory" json:"memory,omitempty"`
	ErrorType    *string      `db:"error_type" json:"error_type,omitempty"`
	ErrorMessage *string      `db:"error_message" json:"error_message,omitempty"`
	ErrorFile    *string      `db:"error_file" json:"error_file,omitempty"`
	ErrorLine    *int         `db:"error_line" json:"error_line,omitempty"`
	Context      []byte       `db:"context" json:"-"`
	Timestamp    time.Time    `db:"timestamp" json:"timestamp"`
}

// HealthSnapshot aggregates a trailing window of metric events.
// Rates are defined as zero when the window is empty.
type HealthSnapshot struct {
	Total            int64   `db:"total" json:"total"`
	Errors           int64   `db:"errors" json:"errors"`
	ErrorRate        float64 `db:"-" json:"error_rate"`
	AvgResponse      float64 `db:"avg_response" json:"avg_response"`
	MaxResponse      float64 `db:"max_response" json:"max_response"`
	PeakMemoryMB     float64 `db:"-" json:"peak_memory_mb"`
	ModernCount      int64   `db:"modern_count" json:"modern_count"`
	LegacyCount      int64   `db:"legacy_count" json:"legacy_count"`
	ModernPercentage float64 `db:"-" json:"modern_percentage"`
	WindowSeconds    int     `db:"-" json:"window_seconds"`
	ObservedAt       time.Time `db:"-" json:"observed_at"`
}

// HealthStatus classifies a snapshot.
type HealthStatus string

const (
	HealthStatusGood     HealthStatus = "good"
	HealthStatusWarning  HealthStatus = "warning"
	HealthStatusCritical HealthStatus = "critical"
)

// SystemHealth is the classification result other components act on.
// CanIncreaseTraffic and ShouldRollback are the only actionable outputs.
type SystemHealth struct {
	Status             HealthStatus   `json:"status"`
	Issues             []string       `json:"issues"`
	Metrics            HealthSnapshot `json:"metrics"`
	CanIncreaseTraffic bool           `json:"can_increase_traffic"`
	ShouldRollback     bool           `json:"should_rollback"`
}

// RolloutFlag stores the rollout fraction for one logical action.
type RolloutFlag struct {
	Action    string    `db:"action" json:"action"`
	Fraction  float64   `db:"fraction" json:"fraction"`
	UpdatedBy string    `db:"updated_by" json:"updated_by"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// HandlerResult is the uniform shape every action handler returns.
// Expected business failures are encoded as Success=false, not errors.
type HandlerResult struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Output  string      `json:"output,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ActionHandler is the strategy contract implemented by the legacy proxy
// and the modern in-process registry.
type ActionHandler interface {
	Handle(ctx context.Context, action string, data map[string]interface{}) (HandlerResult, error)
}

// RouterMeta carries routing metadata attached to every dispatch result.
type RouterMeta struct {
	RoutedBy       string  `json:"routed_by"`
	Duration       float64 `json:"duration"`
	Fallback       bool    `json:"fallback,omitempty"`
	FallbackReason string  `json:"fallback_reason,omitempty"`
}

// RouterResult is what the router returns regardless of the chosen handler.
type RouterResult struct {
	HandlerResult
	System System     `json:"system"`
	Meta   RouterMeta `json:"_meta"`
}

// TrafficShare reports request share per system over a reporting window.
type TrafficShare struct {
	System      System  `db:"system" json:"system"`
	Count       int64   `db:"count" json:"count"`
	AvgDuration float64 `db:"avg_duration" json:"avg_duration"`
}

// ActionErrorRate reports per-action error counts over a reporting window.
type ActionErrorRate struct {
	Action    string  `db:"action" json:"action"`
	Total     int64   `db:"total" json:"total"`
	Errors    int64   `db:"errors" json:"errors"`
	ErrorRate float64 `db:"error_rate" json:"error_rate"`
}

// ActionPerformance compares handler latency per action and system.
type ActionPerformance struct {
	System      System  `db:"system" json:"system"`
	Action      string  `db:"action" json:"action"`
	Requests    int64   `db:"requests" json:"requests"`
	AvgDuration float64 `db:"avg_duration" json:"avg_duration"`
	MinDuration float64 `db:"min_duration" json:"min_duration"`
	MaxDuration float64 `db:"max_duration" json:"max_duration"`
}
