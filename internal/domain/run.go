package domain

import (
	"fmt"
	"time"
)

// RunStatus tracks a run through its lifecycle.
type RunStatus string

const (
	RunUploaded   RunStatus = "UPLOADED"
	RunReconciled RunStatus = "RECONCILED"
	RunFailed     RunStatus = "FAILED"
)

// Run is the top-level aggregate. RunIDs are lexicographically orderable so
// "latest" is simply the maximum.
type Run struct {
	RunID         string            `json:"run_id"`
	CycleID       string            `json:"cycle_id,omitempty"`
	RunDate       string            `json:"run_date,omitempty"`
	Direction     Direction         `json:"direction,omitempty"`
	UploadedFiles map[string]string `json:"uploaded_files"`
	CBSBalance    string            `json:"cbs_balance,omitempty"`
	Status        RunStatus         `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
	RollbackNotes []RunRollbackNote `json:"rollback_history,omitempty"`
}

// RunRollbackNote is the per-run record of an ingestion rollback.
type RunRollbackNote struct {
	RollbackID  string    `json:"rollback_id"`
	Timestamp   time.Time `json:"timestamp"`
	RemovedFile string    `json:"removed_file"`
	Reason      string    `json:"reason"`
}

// NewRunID formats a run identifier from a timestamp: RUN_YYYYMMDD_HHMMSS.
func NewRunID(t time.Time) string {
	return fmt.Sprintf("RUN_%s", t.Format("20060102_150405"))
}

// UploadSlots are the accepted file slots of one upload.
var UploadSlots = []string{
	"cbs_inward", "cbs_outward", "switch",
	"npci_inward", "npci_outward", "ntsl", "adjustment",
}

// NPCI settlement cycles: the 10-cycle lettered scheme used by rollback,
// and the hourly C-scheme used by uploads.
var (
	LetterCycles = []string{"1A", "1B", "1C", "2A", "2B", "2C", "3A", "3B", "3C", "4"}
	HourlyCycles = []string{"1C", "2C", "3C", "4C", "5C", "6C", "7C", "8C", "9C", "10C"}
)

// ValidLetterCycle reports whether id belongs to the 10-cycle scheme.
func ValidLetterCycle(id string) bool {
	for _, c := range LetterCycles {
		if c == id {
			return true
		}
	}
	return false
}

// ValidUploadCycle reports whether id is acceptable on upload (either
// scheme).
func ValidUploadCycle(id string) bool {
	if ValidLetterCycle(id) {
		return true
	}
	for _, c := range HourlyCycles {
		if c == id {
			return true
		}
	}
	return false
}
