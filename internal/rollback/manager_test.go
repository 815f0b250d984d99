package rollback

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Asmith-M/UPI-Recon/internal/audit"
	"github.com/Asmith-M/UPI-Recon/internal/domain"
	"github.com/Asmith-M/UPI-Recon/internal/store"
	"github.com/Asmith-M/UPI-Recon/pkg/apperrors"
)

const runID = "RUN_20250110_100000"

func setup(t *testing.T) (*Manager, *store.RunStore) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.NewRunStore(filepath.Join(dir, "uploads"), filepath.Join(dir, "output"))
	require.NoError(t, err)
	trail, err := audit.NewTrail(filepath.Join(dir, "output", "audit_trail.jsonl"), nil)
	require.NoError(t, err)
	return NewManager(st, trail), st
}

func seedRun(t *testing.T, st *store.RunStore) {
	t.Helper()
	_, err := st.SaveUploadedFile(runID, "1A", domain.DirectionInward, "cbs_inward.csv", []byte("RRN,Amount,Date\n"))
	require.NoError(t, err)
	require.NoError(t, st.WriteRunMeta(&domain.Run{
		RunID:         runID,
		CycleID:       "1A",
		UploadedFiles: map[string]string{"cbs_inward": "cbs_inward.csv"},
		Status:        domain.RunUploaded,
		CreatedAt:     time.Now().UTC(),
	}))
}

func seedRecon(t *testing.T, st *store.RunStore) {
	t.Helper()
	out := &domain.ReconOutput{
		RunID: runID,
		Summary: domain.ReconSummary{
			TotalRRNs:    2,
			MatchedCount: 2,
			Breakdown:    map[domain.Status]int{domain.StatusMatched: 2},
		},
		Records: map[string]*domain.ReconRecord{
			"100000000001": {RRN: "100000000001", Status: domain.StatusMatched, CycleID: "1A",
				CBS: &domain.SourceLeg{Amount: decimal.RequireFromString("100")}},
			"100000000002": {RRN: "100000000002", Status: domain.StatusMatched, CycleID: "2A",
				CBS: &domain.SourceLeg{Amount: decimal.RequireFromString("200")}},
		},
	}
	require.NoError(t, st.WriteReconOutput(runID, out))
}

func seedAccounting(t *testing.T, st *store.RunStore) {
	t.Helper()
	acct := &domain.AccountingOutput{
		RunID: runID,
		Vouchers: []*domain.Voucher{
			{VoucherID: "VOUCHER_000001", Status: domain.VoucherGenerated,
				GLEntries: []domain.GLEntry{{EntryID: "VOUCHER_000001_E1"}}},
			{VoucherID: "VOUCHER_000002", Status: domain.VoucherPosted,
				GLEntries: []domain.GLEntry{{EntryID: "VOUCHER_000002_E1"}}},
		},
	}
	require.NoError(t, st.WriteAccountingOutput(runID, acct))
}

func TestIngestionRollbackRemovesFile(t *testing.T) {
	m, st := setup(t)
	seedRun(t, st)

	res, err := m.Ingestion(runID, "cbs_inward.csv", "wrong file uploaded", "ops1")
	require.NoError(t, err)
	assert.Equal(t, "completed", res.Status)
	_, statErr := os.Stat(res.RemovedFile)
	assert.True(t, os.IsNotExist(statErr))

	run, err := st.ReadRunMeta(runID)
	require.NoError(t, err)
	assert.NotContains(t, run.UploadedFiles, "cbs_inward")
	require.Len(t, run.RollbackNotes, 1)
	assert.Equal(t, "cbs_inward.csv", run.RollbackNotes[0].RemovedFile)

	history, err := m.History()
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.RollbackCompleted, history[0].Status)
}

func TestIngestionRollbackUnknownRun(t *testing.T) {
	m, _ := setup(t)
	_, err := m.Ingestion("RUN_19990101_000000", "x.csv", "reason", "ops1")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
}

func TestMidReconRestoresSelectedTransactions(t *testing.T) {
	m, st := setup(t)
	seedRecon(t, st)

	res, err := m.MidRecon(runID, []string{"100000000001"}, "cbs correction", "ops1")
	require.NoError(t, err)
	assert.Equal(t, []string{"100000000001"}, res.TransactionsRestored)
	assert.FileExists(t, res.BackupPath)

	out, err := st.ReadReconOutput(runID)
	require.NoError(t, err)
	restored := out.Records["100000000001"]
	assert.Equal(t, domain.StatusUnknown, restored.Status)
	require.NotNil(t, restored.Rollback)
	assert.Equal(t, domain.StatusMatched, restored.Rollback.PreviousStatus)
	assert.Equal(t, "cbs correction", restored.Rollback.RollbackReason)
	assert.Equal(t, domain.StatusMatched, out.Records["100000000002"].Status)
	assert.Equal(t, 1, out.Summary.MatchedCount)
}

func TestMidReconAllWhenListOmitted(t *testing.T) {
	m, st := setup(t)
	seedRecon(t, st)

	res, err := m.MidRecon(runID, nil, "full redo", "ops1")
	require.NoError(t, err)
	assert.Len(t, res.TransactionsRestored, 2)
}

func TestMidReconWithoutReconOutput(t *testing.T) {
	m, _ := setup(t)
	_, err := m.MidRecon(runID, nil, "reason", "ops1")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
}

func TestCycleWiseValidatesCycle(t *testing.T) {
	m, st := setup(t)
	seedRecon(t, st)
	_, err := m.CycleWise(runID, "9Z", "reason", "ops1")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))
}

func TestCycleWiseRestoresOnlyThatCycle(t *testing.T) {
	m, st := setup(t)
	seedRecon(t, st)

	res, err := m.CycleWise(runID, "1A", "cycle rerun", "ops1")
	require.NoError(t, err)
	assert.Equal(t, []string{"100000000001"}, res.TransactionsRestored)

	out, err := st.ReadReconOutput(runID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUnknown, out.Records["100000000001"].Status)
	assert.Equal(t, domain.StatusMatched, out.Records["100000000002"].Status)
}

func TestAccountingRollbackResetsVouchers(t *testing.T) {
	m, st := setup(t)
	seedAccounting(t, st)

	res, err := m.Accounting(runID, nil, "CBS upload failure", "ops1")
	require.NoError(t, err)
	assert.Equal(t, []string{"VOUCHER_000001"}, res.VouchersReset)
	assert.FileExists(t, res.BackupPath)

	acct, err := st.ReadAccountingOutput(runID)
	require.NoError(t, err)
	for _, v := range acct.Vouchers {
		assert.NotEqual(t, domain.VoucherGenerated, v.Status, v.VoucherID)
	}
	reset := acct.Vouchers[0]
	assert.Equal(t, domain.VoucherMatchedPending, reset.Status)
	assert.Empty(t, reset.GLEntries)
	require.NotNil(t, reset.RollbackMetadata)
	assert.Len(t, reset.RollbackMetadata.PreviousGLEntries, 1)
	require.NotNil(t, acct.Status)
	assert.Equal(t, 1, acct.Status.VouchersReset)
}

func TestAccountingRollbackRequiresReason(t *testing.T) {
	m, st := setup(t)
	seedAccounting(t, st)
	_, err := m.Accounting(runID, nil, "", "ops1")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))
}

func TestAccountingRollbackRefusedAfterDownload(t *testing.T) {
	m, st := setup(t)
	seedAccounting(t, st)
	require.NoError(t, st.MarkDownloaded(runID, "ttum_merged.zip"))

	_, err := m.Accounting(runID, nil, "late correction", "ops1")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindState))
	assert.Contains(t, err.Error(), "downloaded")
}

func TestAccountingRollbackReportsUnknownVouchers(t *testing.T) {
	m, st := setup(t)
	seedAccounting(t, st)

	res, err := m.Accounting(runID, []string{"VOUCHER_000001", "VOUCHER_999999"}, "reason", "ops1")
	require.NoError(t, err)
	assert.Equal(t, []string{"VOUCHER_000001"}, res.VouchersReset)
	assert.Equal(t, []string{"VOUCHER_999999"}, res.VouchersNotFound)
}

func TestWholeProcessRemovesRun(t *testing.T) {
	m, st := setup(t)
	seedRun(t, st)
	seedRecon(t, st)

	res, err := m.WholeProcess(runID, "start over", "ops1")
	require.NoError(t, err)
	assert.Equal(t, "completed", res.Status)
	assert.False(t, st.RunExists(runID))
	_, err = st.ReadReconOutput(runID)
	assert.Equal(t, store.ErrNotPresent, err)
}

func TestRollbackIsAudited(t *testing.T) {
	m, st := setup(t)
	seedRecon(t, st)

	res, err := m.MidRecon(runID, nil, "cbs correction", "ops1")
	require.NoError(t, err)

	events, err := m.trail.Query(domain.AuditFilter{RunID: runID})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.AuditRollback, events[0].Action)
	assert.Equal(t, "ops1", events[0].UserID)
	assert.Equal(t, res.RollbackID, events[0].Details["rollback_id"])

	report, err := m.trail.Compliance(runID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Rollbacks)
	assert.Equal(t, 1, report.Users["ops1"])
}

func TestConcurrentRollbackRefused(t *testing.T) {
	m, st := setup(t)
	seedRecon(t, st)

	stuck := []*domain.RollbackRecord{{
		RollbackID: "RB_stuck",
		Level:      domain.RollbackMidRecon,
		RunID:      runID,
		Status:     domain.RollbackInProgress,
		Timestamp:  time.Now().UTC(),
	}}
	require.NoError(t, st.WriteJSON(st.RollbackHistoryPath(), stuck))

	_, err := m.MidRecon(runID, nil, "reason", "ops1")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindConflict))
}

func TestBackupPrecedesMutation(t *testing.T) {
	m, st := setup(t)
	seedRecon(t, st)

	res, err := m.MidRecon(runID, nil, "reason", "ops1")
	require.NoError(t, err)

	backupInfo, err := os.Stat(res.BackupPath)
	require.NoError(t, err)
	targetInfo, err := os.Stat(st.ReconOutputPath(runID))
	require.NoError(t, err)
	assert.False(t, backupInfo.ModTime().After(targetInfo.ModTime()))
}
