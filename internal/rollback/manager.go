package rollback

import (
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Asmith-M/UPI-Recon/internal/audit"
	"github.com/Asmith-M/UPI-Recon/internal/domain"
	"github.com/Asmith-M/UPI-Recon/internal/store"
	"github.com/Asmith-M/UPI-Recon/pkg/apperrors"
	"github.com/Asmith-M/UPI-Recon/pkg/logger"
)

// Manager implements the five rollback levels. Every operation follows the
// same discipline: validate preconditions, back up the target artifact,
// mutate, persist atomically, and track history through
// pending → in_progress → {completed, failed}. Every terminal state is
// recorded in the audit trail under the requesting user.
type Manager struct {
	store *store.RunStore
	trail *audit.Trail
	log   *logrus.Logger
}

func NewManager(s *store.RunStore, trail *audit.Trail) *Manager {
	return &Manager{store: s, trail: trail, log: logger.GetLogger()}
}

// History returns the rollback history, newest last.
func (m *Manager) History() ([]*domain.RollbackRecord, error) {
	lock := m.store.ProcessLock()
	lock.Lock()
	defer lock.Unlock()
	return m.loadHistory()
}

func (m *Manager) loadHistory() ([]*domain.RollbackRecord, error) {
	var history []*domain.RollbackRecord
	err := m.store.ReadJSON(m.store.RollbackHistoryPath(), &history)
	if err != nil && err != store.ErrNotPresent {
		return nil, err
	}
	return history, nil
}

// begin registers a new rollback after checking that no other rollback is
// in progress. Returns the new record, already persisted as in_progress.
func (m *Manager) begin(level domain.RollbackLevel, runID string, details map[string]interface{}) (*domain.RollbackRecord, error) {
	lock := m.store.ProcessLock()
	lock.Lock()
	defer lock.Unlock()

	history, err := m.loadHistory()
	if err != nil {
		return nil, err
	}
	for _, r := range history {
		if r.Status == domain.RollbackInProgress {
			return nil, apperrors.Conflict("rollback %s is already in progress", r.RollbackID).
				WithSuggestion("wait for the running rollback to finish and retry")
		}
	}

	rec := &domain.RollbackRecord{
		RollbackID: "RB_" + uuid.NewString()[:8],
		Level:      level,
		RunID:      runID,
		Timestamp:  time.Now().UTC(),
		Status:     domain.RollbackPending,
		Details:    details,
	}
	history = append(history, rec)
	if err := m.store.WriteJSON(m.store.RollbackHistoryPath(), history); err != nil {
		return nil, err
	}

	rec.Status = domain.RollbackInProgress
	if err := m.persistStatus(history, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// finish records the terminal state of a rollback.
func (m *Manager) finish(rec *domain.RollbackRecord, status domain.RollbackState, details map[string]interface{}) {
	lock := m.store.ProcessLock()
	lock.Lock()
	defer lock.Unlock()

	history, err := m.loadHistory()
	if err != nil {
		m.log.WithError(err).Error("Reading rollback history for status update")
		return
	}
	for _, r := range history {
		if r.RollbackID == rec.RollbackID {
			r.Status = status
			now := time.Now().UTC()
			r.UpdatedAt = &now
			for k, v := range details {
				if r.Details == nil {
					r.Details = make(map[string]interface{})
				}
				r.Details[k] = v
			}
			break
		}
	}
	if err := m.store.WriteJSON(m.store.RollbackHistoryPath(), history); err != nil {
		m.log.WithError(err).Error("Persisting rollback history")
	}
	rec.Status = status
	m.recordAudit(rec, status)
}

func (m *Manager) recordAudit(rec *domain.RollbackRecord, status domain.RollbackState) {
	if m.trail == nil {
		return
	}
	level := domain.AuditInfo
	if status == domain.RollbackFailed {
		level = domain.AuditWarning
	}
	user, _ := rec.Details["requested_by"].(string)
	if _, err := m.trail.Record(domain.AuditRollback, level, rec.RunID, user, map[string]interface{}{
		"rollback_id": rec.RollbackID,
		"level":       string(rec.Level),
		"status":      string(status),
	}); err != nil {
		m.log.WithError(err).Warn("Audit record failed")
	}
}

func (m *Manager) persistStatus(history []*domain.RollbackRecord, rec *domain.RollbackRecord) error {
	for _, r := range history {
		if r.RollbackID == rec.RollbackID {
			r.Status = rec.Status
			now := time.Now().UTC()
			r.UpdatedAt = &now
		}
	}
	return m.store.WriteJSON(m.store.RollbackHistoryPath(), history)
}

// Ingestion removes one failed uploaded file from a run and records the
// removal in the run metadata.
func (m *Manager) Ingestion(runID, filename, reason, requestedBy string) (*domain.RollbackResult, error) {
	if !m.store.RunExists(runID) {
		return nil, apperrors.NotFound("run %s not found", runID)
	}
	rec, err := m.begin(domain.RollbackIngestion, runID, map[string]interface{}{"file": filename, "requested_by": requestedBy})
	if err != nil {
		return nil, err
	}

	runLock := m.store.LockRun(runID)
	runLock.Lock()
	defer runLock.Unlock()

	removed, err := m.removeUploadedFile(runID, filename, rec.RollbackID, reason)
	if err != nil {
		m.finish(rec, domain.RollbackFailed, map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	m.finish(rec, domain.RollbackCompleted, map[string]interface{}{"removed_file": removed})
	return &domain.RollbackResult{
		Status:      "completed",
		RollbackID:  rec.RollbackID,
		RunID:       runID,
		Message:     "uploaded file removed",
		RemovedFile: removed,
	}, nil
}

func (m *Manager) removeUploadedFile(runID, filename, rollbackID, reason string) (string, error) {
	files, err := m.store.ListRunFiles(runID)
	if err != nil {
		return "", err
	}
	target := ""
	for _, f := range files {
		if matchesName(f, filename) {
			target = f
			break
		}
	}
	if target == "" {
		return "", apperrors.NotFound("file %s not found in run %s", filename, runID)
	}
	if err := removeFile(target); err != nil {
		return "", err
	}

	run, err := m.store.ReadRunMeta(runID)
	if err == store.ErrNotPresent {
		return target, nil
	}
	if err != nil {
		return "", err
	}
	for slot, name := range run.UploadedFiles {
		if name == filename {
			delete(run.UploadedFiles, slot)
		}
	}
	run.RollbackNotes = append(run.RollbackNotes, domain.RunRollbackNote{
		RollbackID:  rollbackID,
		Timestamp:   time.Now().UTC(),
		RemovedFile: filename,
		Reason:      reason,
	})
	if err := m.store.WriteRunMeta(run); err != nil {
		return "", err
	}
	return target, nil
}

// MidRecon moves matched transactions back to unmatched. An empty RRN list
// means all matched transactions of the run.
func (m *Manager) MidRecon(runID string, rrns []string, reason, requestedBy string) (*domain.RollbackResult, error) {
	out, err := m.store.ReadReconOutput(runID)
	if err == store.ErrNotPresent {
		return nil, apperrors.NotFound("run %s has no reconciliation output", runID)
	}
	if err != nil {
		return nil, err
	}

	rec, err := m.begin(domain.RollbackMidRecon, runID, map[string]interface{}{"rrns": len(rrns), "requested_by": requestedBy})
	if err != nil {
		return nil, err
	}

	runLock := m.store.LockRun(runID)
	runLock.Lock()
	defer runLock.Unlock()

	backup, err := m.store.BackupFile(m.store.ReconOutputPath(runID), "recon_output")
	if err != nil {
		m.finish(rec, domain.RollbackFailed, map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	restored := m.unmatch(out, rec.RollbackID, reason, "", rrnSet(rrns))
	if err := m.store.WriteReconOutput(runID, out); err != nil {
		m.finish(rec, domain.RollbackFailed, map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	m.finish(rec, domain.RollbackCompleted, map[string]interface{}{"restored": len(restored)})
	return &domain.RollbackResult{
		Status:               "completed",
		RollbackID:           rec.RollbackID,
		RunID:                runID,
		Message:              "matched transactions restored to unmatched",
		BackupPath:           backup,
		TransactionsRestored: restored,
	}, nil
}

// CycleWise moves every matched transaction of one settlement cycle back to
// unmatched.
func (m *Manager) CycleWise(runID, cycleID, reason, requestedBy string) (*domain.RollbackResult, error) {
	if !domain.ValidLetterCycle(cycleID) {
		return nil, apperrors.Validation("invalid cycle %q", cycleID).
			WithSuggestion("use one of the NPCI settlement cycles 1A through 4")
	}
	out, err := m.store.ReadReconOutput(runID)
	if err == store.ErrNotPresent {
		return nil, apperrors.NotFound("run %s has no reconciliation output", runID)
	}
	if err != nil {
		return nil, err
	}

	rec, err := m.begin(domain.RollbackCycleWise, runID, map[string]interface{}{"cycle_id": cycleID, "requested_by": requestedBy})
	if err != nil {
		return nil, err
	}

	runLock := m.store.LockRun(runID)
	runLock.Lock()
	defer runLock.Unlock()

	backup, err := m.store.BackupFile(m.store.ReconOutputPath(runID), "recon_output")
	if err != nil {
		m.finish(rec, domain.RollbackFailed, map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	restored := m.unmatch(out, rec.RollbackID, reason, cycleID, nil)
	if err := m.store.WriteReconOutput(runID, out); err != nil {
		m.finish(rec, domain.RollbackFailed, map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	m.finish(rec, domain.RollbackCompleted, map[string]interface{}{"restored": len(restored)})
	return &domain.RollbackResult{
		Status:               "completed",
		RollbackID:           rec.RollbackID,
		RunID:                runID,
		CycleID:              cycleID,
		Message:              "cycle transactions restored to unmatched",
		BackupPath:           backup,
		TransactionsRestored: restored,
	}, nil
}

// unmatch flips matched records back to unmatched, stamping each with
// rollback metadata. Filters: a cycle id, an RRN set, or neither (all).
func (m *Manager) unmatch(out *domain.ReconOutput, rollbackID, reason, cycleID string, rrns map[string]bool) []string {
	var restored []string
	for rrn, r := range out.Records {
		if r.Status != domain.StatusMatched && r.Status != domain.StatusForceMatched {
			continue
		}
		if cycleID != "" && r.CycleID != cycleID {
			continue
		}
		if rrns != nil && !rrns[rrn] {
			continue
		}
		r.Rollback = &domain.RollbackMetadata{
			RollbackID:        rollbackID,
			PreviousStatus:    r.Status,
			CycleID:           cycleID,
			RollbackTimestamp: time.Now().UTC(),
			RollbackReason:    reason,
		}
		prev := r.Status
		r.Status = domain.StatusUnknown
		restored = append(restored, rrn)
		if out.Summary.Breakdown != nil {
			out.Summary.Breakdown[prev]--
			out.Summary.Breakdown[domain.StatusUnknown]++
			out.Summary.MatchedCount--
			out.Summary.UnmatchedCount++
		}
	}
	return restored
}

// Accounting resets generated vouchers to matched/pending and clears their
// GL entries. Refused once the TTUM file has been downloaded.
func (m *Manager) Accounting(runID string, voucherIDs []string, reason, requestedBy string) (*domain.RollbackResult, error) {
	if reason == "" {
		return nil, apperrors.Validation("a reason is required for accounting rollback")
	}
	meta, err := m.store.ReadDownloadMeta(runID)
	if err != nil {
		return nil, err
	}
	if meta.IsDownloaded {
		return nil, apperrors.State("TTUM for run %s was already downloaded; accounting rollback is not permitted", runID).
			WithSuggestion("raise a manual adjustment with NPCI instead of rolling back")
	}
	acct, err := m.store.ReadAccountingOutput(runID)
	if err == store.ErrNotPresent {
		return nil, apperrors.NotFound("run %s has no accounting output", runID)
	}
	if err != nil {
		return nil, err
	}

	rec, err := m.begin(domain.RollbackAccounting, runID, map[string]interface{}{"vouchers": len(voucherIDs), "requested_by": requestedBy})
	if err != nil {
		return nil, err
	}

	runLock := m.store.LockRun(runID)
	runLock.Lock()
	defer runLock.Unlock()

	backup, err := m.store.BackupFile(m.store.AccountingOutputPath(runID), "accounting_output")
	if err != nil {
		m.finish(rec, domain.RollbackFailed, map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	reset, notFound := m.resetVouchers(acct, voucherIDs, rec.RollbackID, reason)
	acct.Status = &domain.AccountingStatus{
		Status:           "rolled_back",
		VouchersReset:    len(reset),
		VouchersNotFound: len(notFound),
		RollbackReason:   reason,
		RollbackID:       rec.RollbackID,
		Timestamp:        time.Now().UTC(),
		GLEntriesCleared: true,
	}
	if err := m.store.WriteAccountingOutput(runID, acct); err != nil {
		m.finish(rec, domain.RollbackFailed, map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	m.finish(rec, domain.RollbackCompleted, map[string]interface{}{
		"vouchers_reset":     len(reset),
		"vouchers_not_found": len(notFound),
	})
	return &domain.RollbackResult{
		Status:           "completed",
		RollbackID:       rec.RollbackID,
		RunID:            runID,
		Message:          "vouchers reset to matched/pending",
		BackupPath:       backup,
		VouchersReset:    reset,
		VouchersNotFound: notFound,
	}, nil
}

func (m *Manager) resetVouchers(acct *domain.AccountingOutput, voucherIDs []string, rollbackID, reason string) (reset, notFound []string) {
	targeted := rrnSet(voucherIDs)
	seen := make(map[string]bool)
	for _, v := range acct.Vouchers {
		seen[v.VoucherID] = true
		if targeted != nil && !targeted[v.VoucherID] {
			continue
		}
		if v.Status != domain.VoucherGenerated {
			continue
		}
		v.RollbackMetadata = &domain.VoucherRollback{
			RollbackID:        rollbackID,
			RollbackTimestamp: time.Now().UTC(),
			RollbackReason:    reason,
			PreviousGLEntries: v.GLEntries,
		}
		v.PreviousStatus = v.Status
		v.Status = domain.VoucherMatchedPending
		v.GLEntries = nil
		reset = append(reset, v.VoucherID)
	}
	for id := range targeted {
		if !seen[id] {
			notFound = append(notFound, id)
		}
	}
	return reset, notFound
}

// WholeProcess deletes the run entirely: outputs and uploaded inputs. A
// later re-upload and reconcile reproduces the original statuses.
func (m *Manager) WholeProcess(runID, reason, requestedBy string) (*domain.RollbackResult, error) {
	if !m.store.RunExists(runID) {
		return nil, apperrors.NotFound("run %s not found", runID)
	}
	rec, err := m.begin(domain.RollbackWholeProcess, runID, map[string]interface{}{"reason": reason, "requested_by": requestedBy})
	if err != nil {
		return nil, err
	}

	runLock := m.store.LockRun(runID)
	runLock.Lock()
	defer runLock.Unlock()

	if err := m.store.RemoveRun(runID); err != nil {
		m.finish(rec, domain.RollbackFailed, map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	m.finish(rec, domain.RollbackCompleted, nil)
	return &domain.RollbackResult{
		Status:     "completed",
		RollbackID: rec.RollbackID,
		RunID:      runID,
		Message:    "run removed",
	}, nil
}

func matchesName(path, filename string) bool {
	return filepath.Base(path) == filepath.Base(filename)
}

func removeFile(path string) error {
	if err := os.Remove(path); err != nil {
		return apperrors.Wrap(err, apperrors.KindFatal, "removing %s", path)
	}
	return nil
}

func rrnSet(list []string) map[string]bool {
	if len(list) == 0 {
		return nil
	}
	set := make(map[string]bool, len(list))
	for _, v := range list {
		set[v] = true
	}
	return set
}
