package service

import (
	"github.com/sirupsen/logrus"

	"github.com/Asmith-M/UPI-Recon/internal/domain"
	"github.com/Asmith-M/UPI-Recon/internal/store"
	"github.com/Asmith-M/UPI-Recon/pkg/apperrors"
	"github.com/Asmith-M/UPI-Recon/pkg/logger"
)

// historicalRunLimit caps how many recent runs the historical summary
// aggregates.
const historicalRunLimit = 6

// SummaryService answers the read-only queries: per-run summaries, the
// multi-run historical view and RRN lookups across runs.
type SummaryService struct {
	store *store.RunStore
	log   *logrus.Logger
}

func NewSummaryService(st *store.RunStore) *SummaryService {
	return &SummaryService{store: st, log: logger.GetLogger()}
}

// RunSummary pairs a run's identity with its reconciliation summary.
type RunSummary struct {
	RunID   string              `json:"run_id"`
	CycleID string              `json:"cycle_id,omitempty"`
	Status  domain.RunStatus    `json:"status,omitempty"`
	Summary domain.ReconSummary `json:"summary"`
}

// Summary returns the reconciliation summary of one run; empty runID means
// the latest run.
func (s *SummaryService) Summary(runID string) (*RunSummary, error) {
	if runID == "" {
		latest, err := s.store.LatestRun()
		if err == store.ErrNotPresent {
			return nil, apperrors.NotFound("no runs uploaded yet")
		}
		if err != nil {
			return nil, err
		}
		runID = latest
	}
	out, err := s.store.ReadReconOutput(runID)
	if err == store.ErrNotPresent {
		return nil, apperrors.State("run %s has not been reconciled yet", runID)
	}
	if err != nil {
		return nil, err
	}

	rs := &RunSummary{RunID: runID, Summary: out.Summary}
	if run, err := s.store.ReadRunMeta(runID); err == nil {
		rs.CycleID = run.CycleID
		rs.Status = run.Status
	}
	return rs, nil
}

// HistoricalSummary is the aggregate over the most recent runs.
type HistoricalSummary struct {
	Runs           []RunSummary `json:"runs"`
	TotalRRNs      int          `json:"total_rrns"`
	TotalMatched   int          `json:"total_matched"`
	TotalUnmatched int          `json:"total_unmatched"`
}

// Historical aggregates the summaries of the last runs, newest first. Runs
// uploaded but not yet reconciled are skipped.
func (s *SummaryService) Historical() (*HistoricalSummary, error) {
	runs, err := s.store.ListRuns()
	if err != nil {
		return nil, err
	}

	hs := &HistoricalSummary{Runs: []RunSummary{}}
	for i := len(runs) - 1; i >= 0 && len(hs.Runs) < historicalRunLimit; i-- {
		rs, err := s.Summary(runs[i])
		if apperrors.Is(err, apperrors.KindState) {
			continue
		}
		if err != nil {
			return nil, err
		}
		hs.Runs = append(hs.Runs, *rs)
		hs.TotalRRNs += rs.Summary.TotalRRNs
		hs.TotalMatched += rs.Summary.MatchedCount
		hs.TotalUnmatched += rs.Summary.UnmatchedCount
	}
	return hs, nil
}

// RRNLookup is the cross-run answer for one RRN.
type RRNLookup struct {
	RRN    string              `json:"rrn"`
	RunID  string              `json:"run_id"`
	Record *domain.ReconRecord `json:"record"`
}

// LookupRRN searches runs newest first and returns the most recent
// classification of the RRN. RRNs are twelve decimal digits.
func (s *SummaryService) LookupRRN(rrn string) (*RRNLookup, error) {
	if !validRRN(rrn) {
		return nil, apperrors.Validation("invalid RRN %q", rrn).
			WithSuggestion("an RRN is a 12-digit number")
	}
	runs, err := s.store.ListRuns()
	if err != nil {
		return nil, err
	}
	for i := len(runs) - 1; i >= 0; i-- {
		out, err := s.store.ReadReconOutput(runs[i])
		if err == store.ErrNotPresent {
			continue
		}
		if err != nil {
			return nil, err
		}
		if rec, ok := out.Records[rrn]; ok {
			return &RRNLookup{RRN: rrn, RunID: runs[i], Record: rec}, nil
		}
	}
	return nil, apperrors.NotFound("RRN %s not found in any run", rrn)
}

func validRRN(rrn string) bool {
	if len(rrn) != 12 {
		return false
	}
	for _, c := range rrn {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
