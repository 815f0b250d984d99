package forcematch

import (
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

func setup(t *testing.T) (*Service, *store.RunStore) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.NewRunStore(dir+"/uploads", dir+"/output")
	require.NoError(t, err)

	out := &domain.ReconOutput{
		RunID: runID,
		Summary: domain.ReconSummary{
			TotalRRNs:      1,
			UnmatchedCount: 1,
			Breakdown:      map[domain.Status]int{domain.StatusOrphan: 1},
		},
		Records: map[string]*domain.ReconRecord{
			"100000000002": {
				RRN:    "100000000002",
				Status: domain.StatusOrphan,
				CBS:    &domain.SourceLeg{Amount: decimal.RequireFromString("500.00")},
			},
		},
	}
	require.NoError(t, st.WriteReconOutput(runID, out))
	trail, err := audit.NewTrail(filepath.Join(dir, "output", "audit_trail.jsonl"), nil)
	require.NoError(t, err)
	return NewService(st, trail), st
}

func TestProposeThenApproveByDifferentUser(t *testing.T) {
	svc, st := setup(t)

	p, err := svc.Propose(runID, "100000000002", "force_match", "confirmed with branch", "user1", domain.DirectionInward)
	require.NoError(t, err)
	assert.Equal(t, domain.ProposalProposed, p.Status)

	approved, err := svc.Approve(runID, p.ProposalID, "user2", "looks right")
	require.NoError(t, err)
	assert.Equal(t, domain.ProposalApproved, approved.Status)
	assert.Equal(t, "user2", approved.Checker)

	out, err := st.ReadReconOutput(runID)
	require.NoError(t, err)
	rec := out.Records["100000000002"]
	assert.Equal(t, domain.StatusForceMatched, rec.Status)
	require.NotNil(t, rec.ForceMatch)
	assert.Equal(t, "user1", rec.ForceMatch.Maker)
	assert.Equal(t, "user2", rec.ForceMatch.Checker)
	assert.Equal(t, 1, out.Summary.Breakdown[domain.StatusForceMatched])
	assert.Equal(t, 0, out.Summary.Breakdown[domain.StatusOrphan])
}

func TestMakerCannotApproveOwnProposal(t *testing.T) {
	svc, st := setup(t)

	p, err := svc.Propose(runID, "100000000002", "force_match", "reason", "user1", domain.DirectionInward)
	require.NoError(t, err)

	_, err = svc.Approve(runID, p.ProposalID, "user1", "")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindConflict))

	out, err := st.ReadReconOutput(runID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOrphan, out.Records["100000000002"].Status)
}

func TestApproveUnknownProposal(t *testing.T) {
	svc, _ := setup(t)
	_, err := svc.Approve(runID, "PROP_missing", "user2", "")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
}

func TestApproveTwiceIsStateError(t *testing.T) {
	svc, _ := setup(t)
	p, err := svc.Propose(runID, "100000000002", "force_match", "reason", "user1", domain.DirectionInward)
	require.NoError(t, err)

	_, err = svc.Approve(runID, p.ProposalID, "user2", "")
	require.NoError(t, err)
	_, err = svc.Approve(runID, p.ProposalID, "user3", "")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindState))
}

func TestProposeUnknownRRN(t *testing.T) {
	svc, _ := setup(t)
	_, err := svc.Propose(runID, "999999999999", "force_match", "reason", "user1", domain.DirectionInward)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
}

func TestRejectLeavesReconUntouched(t *testing.T) {
	svc, st := setup(t)
	p, err := svc.Propose(runID, "100000000002", "force_match", "reason", "user1", domain.DirectionInward)
	require.NoError(t, err)

	rejected, err := svc.Reject(runID, p.ProposalID, "user2", "not convinced")
	require.NoError(t, err)
	assert.Equal(t, domain.ProposalRejected, rejected.Status)

	out, err := st.ReadReconOutput(runID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOrphan, out.Records["100000000002"].Status)

	proposals, err := svc.List(runID)
	require.NoError(t, err)
	require.Len(t, proposals, 1)
	assert.Equal(t, domain.ProposalRejected, proposals[0].Status)
}

func TestLifecycleEventsAreAudited(t *testing.T) {
	svc, _ := setup(t)

	p, err := svc.Propose(runID, "100000000002", "force_match", "reason", "user1", domain.DirectionInward)
	require.NoError(t, err)
	_, err = svc.Approve(runID, p.ProposalID, "user2", "ok")
	require.NoError(t, err)

	events, err := svc.trail.Query(domain.AuditFilter{RunID: runID})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(events), 2)
	var users []string
	for _, e := range events {
		assert.Equal(t, domain.AuditForceMatch, e.Action)
		users = append(users, e.UserID)
	}
	assert.Contains(t, users, "user1")
	assert.Contains(t, users, "user2")

	report, err := svc.trail.Compliance(runID)
	require.NoError(t, err)
	assert.Equal(t, 2, report.ForceMatches)
	assert.Equal(t, 1, report.Users["user1"])
	assert.Equal(t, 1, report.Users["user2"])
}

func TestApproveRecoversFromInterruptedApply(t *testing.T) {
	svc, st := setup(t)
	p, err := svc.Propose(runID, "100000000002", "force_match", "reason", "user1", domain.DirectionInward)
	require.NoError(t, err)

	// The recon output was written but the proposal file was not: the
	// record is stamped while the proposal is still proposed.
	out, err := st.ReadReconOutput(runID)
	require.NoError(t, err)
	rec := out.Records["100000000002"]
	rec.Status = domain.StatusForceMatched
	rec.ForceMatch = &domain.ForceMatchStamp{
		ProposalID: p.ProposalID,
		Maker:      "user1",
		Checker:    "user2",
		ApprovedAt: time.Now().UTC(),
	}
	out.Summary.Breakdown[domain.StatusOrphan]--
	out.Summary.Breakdown[domain.StatusForceMatched]++
	out.Summary.UnmatchedCount--
	out.Summary.MatchedCount++
	require.NoError(t, st.WriteReconOutput(runID, out))

	approved, err := svc.Approve(runID, p.ProposalID, "user2", "retry")
	require.NoError(t, err)
	assert.Equal(t, domain.ProposalApproved, approved.Status)

	out, err = st.ReadReconOutput(runID)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Summary.Breakdown[domain.StatusForceMatched])
	assert.Equal(t, 0, out.Summary.Breakdown[domain.StatusOrphan])
	assert.Equal(t, 1, out.Summary.MatchedCount)
	assert.Equal(t, 0, out.Summary.UnmatchedCount)
}

func TestLegacyFormatRecordCanBeForceMatched(t *testing.T) {
	dir := t.TempDir()
	st, err := store.NewRunStore(dir+"/uploads", dir+"/output")
	require.NoError(t, err)

	legacy := []byte(`{"100000000005": {"status": "ORPHAN", "cbs": {"amount": "250", "date": "2025-01-10T00:00:00Z"}, "switch": null, "npci": null}}`)
	require.NoError(t, st.WriteFileAtomic(st.ReconOutputPath(runID), legacy))

	svc := NewService(st, nil)
	p, err := svc.Propose(runID, "100000000005", "force_match", "reason", "user1", domain.DirectionInward)
	require.NoError(t, err)
	_, err = svc.Approve(runID, p.ProposalID, "user2", "")
	require.NoError(t, err)

	out, err := st.ReadReconOutput(runID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusForceMatched, out.Records["100000000005"].Status)
}
