package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Asmith-M/UPI-Recon/internal/domain"
	"github.com/Asmith-M/UPI-Recon/pkg/apperrors"
	"github.com/Asmith-M/UPI-Recon/pkg/logger"
)

// Sink receives a copy of every recorded event. The Postgres mirror
// implements it; a failing sink never fails the caller.
type Sink interface {
	Record(domain.AuditEvent) error
}

// Trail is the append-only audit log. Events are JSON lines in a single
// file; appends are serialized by a mutex and flushed per event.
type Trail struct {
	path   string
	mu     sync.Mutex
	mirror Sink
	log    *logrus.Logger
}

func NewTrail(path string, mirror Sink) (*Trail, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindFatal, "creating audit directory")
	}
	return &Trail{path: path, mirror: mirror, log: logger.GetLogger()}, nil
}

// Record appends one event. The audit id and timestamp are assigned here.
func (t *Trail) Record(action domain.AuditAction, level domain.AuditLevel, runID, userID string, details map[string]interface{}) (*domain.AuditEvent, error) {
	e := domain.AuditEvent{
		AuditID:   "AUD_" + uuid.NewString()[:8],
		Action:    action,
		RunID:     runID,
		UserID:    userID,
		Level:     level,
		Timestamp: time.Now().UTC(),
		Details:   details,
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.OpenFile(t.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindFatal, "opening audit trail")
	}
	defer f.Close()

	line, err := json.Marshal(e)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindFatal, "encoding audit event")
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindFatal, "appending audit event")
	}

	if t.mirror != nil {
		if err := t.mirror.Record(e); err != nil {
			t.log.WithError(err).Warn("Audit mirror write failed")
		}
	}
	return &e, nil
}

// Query returns every event matching the filter, in append order.
func (t *Trail) Query(filter domain.AuditFilter) ([]domain.AuditEvent, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.Open(t.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindFatal, "opening audit trail")
	}
	defer f.Close()

	var events []domain.AuditEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var e domain.AuditEvent
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			// A torn line from a crashed writer; skip it.
			continue
		}
		if filter.Matches(e) {
			events = append(events, e)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindFatal, "scanning audit trail")
	}
	return events, nil
}

// Summary aggregates event counts by action and level.
type Summary struct {
	TotalEvents int                        `json:"total_events"`
	ByAction    map[domain.AuditAction]int `json:"by_action"`
	ByLevel     map[domain.AuditLevel]int  `json:"by_level"`
	ByRun       map[string]int             `json:"by_run"`
	FirstEvent  *time.Time                 `json:"first_event,omitempty"`
	LastEvent   *time.Time                 `json:"last_event,omitempty"`
}

// Summarize aggregates the filtered trail.
func (t *Trail) Summarize(filter domain.AuditFilter) (*Summary, error) {
	events, err := t.Query(filter)
	if err != nil {
		return nil, err
	}
	s := &Summary{
		ByAction: make(map[domain.AuditAction]int),
		ByLevel:  make(map[domain.AuditLevel]int),
		ByRun:    make(map[string]int),
	}
	for i := range events {
		e := events[i]
		s.TotalEvents++
		s.ByAction[e.Action]++
		s.ByLevel[e.Level]++
		if e.RunID != "" {
			s.ByRun[e.RunID]++
		}
		if s.FirstEvent == nil || e.Timestamp.Before(*s.FirstEvent) {
			ts := e.Timestamp
			s.FirstEvent = &ts
		}
		if s.LastEvent == nil || e.Timestamp.After(*s.LastEvent) {
			ts := e.Timestamp
			s.LastEvent = &ts
		}
	}
	return s, nil
}

// ComplianceReport is the per-run view auditors ask for: who touched the
// run and how often anything went wrong.
type ComplianceReport struct {
	RunID        string         `json:"run_id"`
	TotalEvents  int            `json:"total_events"`
	ForceMatches int            `json:"force_matches"`
	Rollbacks    int            `json:"rollbacks"`
	Errors       int            `json:"errors"`
	Users        map[string]int `json:"users"`
}

// Compliance builds the per-run compliance report.
func (t *Trail) Compliance(runID string) (*ComplianceReport, error) {
	events, err := t.Query(domain.AuditFilter{RunID: runID})
	if err != nil {
		return nil, err
	}
	r := &ComplianceReport{RunID: runID, Users: make(map[string]int)}
	for _, e := range events {
		r.TotalEvents++
		switch e.Action {
		case domain.AuditForceMatch:
			r.ForceMatches++
		case domain.AuditRollback:
			r.Rollbacks++
		}
		if e.Level == domain.AuditError || e.Level == domain.AuditCritical {
			r.Errors++
		}
		if e.UserID != "" {
			r.Users[e.UserID]++
		}
	}
	return r, nil
}
