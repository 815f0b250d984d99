package domain

import "time"

// AuditAction categorizes an audit event.
type AuditAction string

const (
	AuditUserAction AuditAction = "USER_ACTION"
	AuditReconEvent AuditAction = "RECON_EVENT"
	AuditRollback   AuditAction = "ROLLBACK"
	AuditForceMatch AuditAction = "FORCE_MATCH"
	AuditGLOp       AuditAction = "GL_OP"
	AuditException  AuditAction = "EXCEPTION"
)

// AuditLevel is the severity of an audit event.
type AuditLevel string

const (
	AuditInfo     AuditLevel = "INFO"
	AuditWarning  AuditLevel = "WARNING"
	AuditError    AuditLevel = "ERROR"
	AuditCritical AuditLevel = "CRITICAL"
)

// AuditEvent is one append-only entry of the audit trail.
type AuditEvent struct {
	AuditID   string                 `json:"audit_id"`
	Action    AuditAction            `json:"action"`
	RunID     string                 `json:"run_id,omitempty"`
	UserID    string                 `json:"user_id,omitempty"`
	Level     AuditLevel             `json:"level"`
	Timestamp time.Time              `json:"timestamp"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// AuditFilter narrows an audit trail query; zero values match everything.
type AuditFilter struct {
	RunID  string
	UserID string
	Level  AuditLevel
	From   time.Time
	To     time.Time
}

// Matches reports whether an event satisfies the filter.
func (f AuditFilter) Matches(e AuditEvent) bool {
	if f.RunID != "" && e.RunID != f.RunID {
		return false
	}
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.Level != "" && e.Level != f.Level {
		return false
	}
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Timestamp.After(f.To) {
		return false
	}
	return true
}
