package models

import "time"

// RollbackType distinguishes how a rollback event came about.
type RollbackType string

const (
	RollbackTypeAuto     RollbackType = "auto"
	RollbackTypeManual   RollbackType = "manual"
	RollbackTypeRecovery RollbackType = "recovery"
)

// RollbackEvent is an append-only audit record of a rollback transition.
type RollbackEvent struct {
	ID              string       `db:"id" json:"id"`
	RollbackType    RollbackType `db:"rollback_type" json:"rollback_type"`
	TriggerType     string       `db:"trigger_type" json:"trigger_type"`
	TriggerDetails  []byte       `db:"trigger_details" json:"-"`
	MetricsSnapshot []byte       `db:"metrics_snapshot" json:"-"`
	UserID          string       `db:"user_id" json:"user_id"`
	Timestamp       time.Time    `db:"timestamp" json:"timestamp"`
}

// RollbackEventView is the decoded form served to operators.
type RollbackEventView struct {
	ID              string          `json:"id"`
	RollbackType    RollbackType    `json:"rollback_type"`
	TriggerType     string          `json:"trigger_type"`
	TriggerDetails  []string        `json:"trigger_details"`
	MetricsSnapshot *HealthSnapshot `json:"metrics_snapshot,omitempty"`
	UserID          string          `json:"user_id"`
	Timestamp       time.Time       `json:"timestamp"`
}

// RecoveryStatus reports whether an operator may clear an active rollback.
type RecoveryStatus struct {
	CanRecover     bool     `json:"can_recover"`
	RollbackActive bool     `json:"rollback_active"`
	InCooldown     bool     `json:"in_cooldown"`
	Reasons        []string `json:"reasons"`
}
