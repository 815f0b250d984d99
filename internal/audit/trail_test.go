package audit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Asmith-M/UPI-Recon/internal/domain"
)

func newTrail(t *testing.T) *Trail {
	t.Helper()
	trail, err := NewTrail(filepath.Join(t.TempDir(), "audit_trail.jsonl"), nil)
	require.NoError(t, err)
	return trail
}

func TestRecordAndQuery(t *testing.T) {
	trail := newTrail(t)

	_, err := trail.Record(domain.AuditReconEvent, domain.AuditInfo, "RUN_A", "user1", map[string]interface{}{"matched": 10})
	require.NoError(t, err)
	_, err = trail.Record(domain.AuditRollback, domain.AuditWarning, "RUN_B", "user2", nil)
	require.NoError(t, err)

	all, err := trail.Query(domain.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, domain.AuditReconEvent, all[0].Action)
	assert.NotEmpty(t, all[0].AuditID)

	runA, err := trail.Query(domain.AuditFilter{RunID: "RUN_A"})
	require.NoError(t, err)
	require.Len(t, runA, 1)
	assert.Equal(t, "user1", runA[0].UserID)
}

func TestQueryByLevelAndTime(t *testing.T) {
	trail := newTrail(t)
	_, err := trail.Record(domain.AuditException, domain.AuditError, "RUN_A", "", nil)
	require.NoError(t, err)
	_, err = trail.Record(domain.AuditUserAction, domain.AuditInfo, "RUN_A", "", nil)
	require.NoError(t, err)

	errs, err := trail.Query(domain.AuditFilter{Level: domain.AuditError})
	require.NoError(t, err)
	require.Len(t, errs, 1)

	future, err := trail.Query(domain.AuditFilter{From: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	assert.Empty(t, future)
}

func TestQueryEmptyTrail(t *testing.T) {
	trail := newTrail(t)
	events, err := trail.Query(domain.AuditFilter{})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestSummarize(t *testing.T) {
	trail := newTrail(t)
	_, err := trail.Record(domain.AuditReconEvent, domain.AuditInfo, "RUN_A", "user1", nil)
	require.NoError(t, err)
	_, err = trail.Record(domain.AuditReconEvent, domain.AuditInfo, "RUN_A", "user1", nil)
	require.NoError(t, err)
	_, err = trail.Record(domain.AuditRollback, domain.AuditError, "RUN_B", "user2", nil)
	require.NoError(t, err)

	s, err := trail.Summarize(domain.AuditFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, s.TotalEvents)
	assert.Equal(t, 2, s.ByAction[domain.AuditReconEvent])
	assert.Equal(t, 1, s.ByLevel[domain.AuditError])
	assert.Equal(t, 2, s.ByRun["RUN_A"])
	require.NotNil(t, s.FirstEvent)
	require.NotNil(t, s.LastEvent)
	assert.False(t, s.LastEvent.Before(*s.FirstEvent))
}

func TestCompliance(t *testing.T) {
	trail := newTrail(t)
	_, err := trail.Record(domain.AuditForceMatch, domain.AuditInfo, "RUN_A", "maker1", nil)
	require.NoError(t, err)
	_, err = trail.Record(domain.AuditForceMatch, domain.AuditInfo, "RUN_A", "checker1", nil)
	require.NoError(t, err)
	_, err = trail.Record(domain.AuditRollback, domain.AuditCritical, "RUN_A", "ops1", nil)
	require.NoError(t, err)
	_, err = trail.Record(domain.AuditReconEvent, domain.AuditInfo, "RUN_B", "", nil)
	require.NoError(t, err)

	r, err := trail.Compliance("RUN_A")
	require.NoError(t, err)
	assert.Equal(t, 3, r.TotalEvents)
	assert.Equal(t, 2, r.ForceMatches)
	assert.Equal(t, 1, r.Rollbacks)
	assert.Equal(t, 1, r.Errors)
	assert.Equal(t, 1, r.Users["maker1"])
}

type captureSink struct{ events []domain.AuditEvent }

func (c *captureSink) Record(e domain.AuditEvent) error {
	c.events = append(c.events, e)
	return nil
}

func TestMirrorReceivesEvents(t *testing.T) {
	sink := &captureSink{}
	trail, err := NewTrail(filepath.Join(t.TempDir(), "audit_trail.jsonl"), sink)
	require.NoError(t, err)

	_, err = trail.Record(domain.AuditGLOp, domain.AuditInfo, "RUN_A", "", nil)
	require.NoError(t, err)
	require.Len(t, sink.events, 1)
	assert.Equal(t, domain.AuditGLOp, sink.events[0].Action)
}
