package domain

import "time"

// RollbackLevel selects which slice of run state a rollback undoes.
type RollbackLevel string

const (
	RollbackIngestion    RollbackLevel = "ingestion"
	RollbackMidRecon     RollbackLevel = "mid_recon"
	RollbackCycleWise    RollbackLevel = "cycle_wise"
	RollbackAccounting   RollbackLevel = "accounting"
	RollbackWholeProcess RollbackLevel = "whole_process"
)

// RollbackState: pending → in_progress → completed | failed. A completed
// rollback fully applied its mutation; a failed one left prior state
// intact.
type RollbackState string

const (
	RollbackPending    RollbackState = "pending"
	RollbackInProgress RollbackState = "in_progress"
	RollbackCompleted  RollbackState = "completed"
	RollbackFailed     RollbackState = "failed"
)

// RollbackRecord is one entry of rollback_history.json.
type RollbackRecord struct {
	RollbackID string                 `json:"rollback_id"`
	Level      RollbackLevel          `json:"level"`
	RunID      string                 `json:"run_id"`
	Timestamp  time.Time              `json:"timestamp"`
	Status     RollbackState          `json:"status"`
	UpdatedAt  *time.Time             `json:"updated_at,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// RollbackResult is returned to the caller of any rollback operation.
type RollbackResult struct {
	Status               string   `json:"status"`
	RollbackID           string   `json:"rollback_id"`
	Message              string   `json:"message"`
	RunID                string   `json:"run_id"`
	BackupPath           string   `json:"backup_path,omitempty"`
	TransactionsRestored []string `json:"transactions_restored,omitempty"`
	VouchersReset        []string `json:"vouchers_reset,omitempty"`
	VouchersNotFound     []string `json:"vouchers_not_found,omitempty"`
	RemovedFile          string   `json:"removed_file,omitempty"`
	CycleID              string   `json:"cycle_id,omitempty"`
}

// RollbackMetadata is stamped on each transaction restored to unmatched.
type RollbackMetadata struct {
	RollbackID        string    `json:"rollback_id"`
	PreviousStatus    Status    `json:"previous_status"`
	CycleID           string    `json:"cycle_id,omitempty"`
	RollbackTimestamp time.Time `json:"rollback_timestamp"`
	RollbackReason    string    `json:"rollback_reason"`
}
