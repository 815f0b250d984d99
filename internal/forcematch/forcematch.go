package forcematch

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Asmith-M/UPI-Recon/internal/audit"
	"github.com/Asmith-M/UPI-Recon/internal/domain"
	"github.com/Asmith-M/UPI-Recon/internal/store"
	"github.com/Asmith-M/UPI-Recon/pkg/apperrors"
	"github.com/Asmith-M/UPI-Recon/pkg/logger"
)

// Service implements the maker-checker force-match workflow over the
// file-backed proposal store. All proposal mutations run under the process
// lock; reconciliation output mutation additionally takes the run lock.
// Every proposal, approval and rejection lands in the audit trail under the
// acting user.
type Service struct {
	store *store.RunStore
	trail *audit.Trail
	log   *logrus.Logger
}

func NewService(s *store.RunStore, trail *audit.Trail) *Service {
	return &Service{store: s, trail: trail, log: logger.GetLogger()}
}

func (s *Service) audit(runID, userID string, details map[string]interface{}) {
	if s.trail == nil {
		return
	}
	if _, err := s.trail.Record(domain.AuditForceMatch, domain.AuditInfo, runID, userID, details); err != nil {
		s.log.WithError(err).Warn("Audit record failed")
	}
}

// Propose records a force-match request for an RRN of a run. The RRN must
// exist in the run's reconciliation output.
func (s *Service) Propose(runID, rrn, action, reason, maker string, direction domain.Direction) (*domain.Proposal, error) {
	if rrn == "" || maker == "" {
		return nil, apperrors.Validation("rrn and maker are required")
	}
	out, err := s.store.ReadReconOutput(runID)
	if err != nil {
		return nil, err
	}
	if _, ok := out.Records[rrn]; !ok {
		return nil, apperrors.NotFound("RRN %s not found in run %s", rrn, runID)
	}

	p := &domain.Proposal{
		ProposalID: "PROP_" + uuid.NewString()[:8],
		RRN:        rrn,
		Action:     action,
		Direction:  direction,
		RunID:      runID,
		Reason:     reason,
		Maker:      maker,
		Status:     domain.ProposalProposed,
		CreatedAt:  time.Now().UTC(),
	}

	lock := s.store.ProcessLock()
	lock.Lock()
	defer lock.Unlock()

	proposals, err := s.load(runID)
	if err != nil {
		return nil, err
	}
	proposals = append(proposals, p)
	if err := s.store.WriteJSON(s.store.ProposalsPath(runID), proposals); err != nil {
		return nil, err
	}

	s.audit(runID, maker, map[string]interface{}{
		"operation":   "propose",
		"proposal_id": p.ProposalID,
		"rrn":         rrn,
	})
	s.log.WithFields(logrus.Fields{
		"proposal_id": p.ProposalID,
		"rrn":         rrn,
		"maker":       maker,
	}).Info("Force-match proposed")
	return p, nil
}

// Approve applies a proposal. The checker must differ from the maker; the
// targeted RRN's record is stamped FORCE_MATCHED in the reconciliation
// output.
func (s *Service) Approve(runID, proposalID, checker, comments string) (*domain.Proposal, error) {
	if checker == "" {
		return nil, apperrors.Validation("checker is required")
	}

	lock := s.store.ProcessLock()
	lock.Lock()
	defer lock.Unlock()

	proposals, err := s.load(runID)
	if err != nil {
		return nil, err
	}
	p := findProposal(proposals, proposalID)
	if p == nil {
		return nil, apperrors.NotFound("proposal %s not found in run %s", proposalID, runID)
	}
	if p.Status != domain.ProposalProposed {
		return nil, apperrors.State("proposal %s is already %s", proposalID, p.Status)
	}
	if p.Maker == checker {
		return nil, apperrors.Conflict("maker and checker must be different users").
			WithSuggestion("have a second user review and approve this proposal")
	}

	runLock := s.store.LockRun(runID)
	runLock.Lock()
	defer runLock.Unlock()

	if err := s.applyForceMatch(runID, p, checker); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	p.Status = domain.ProposalApproved
	p.Checker = checker
	p.Comments = comments
	p.DecidedAt = &now
	if err := s.store.WriteJSON(s.store.ProposalsPath(runID), proposals); err != nil {
		return nil, err
	}

	s.audit(runID, checker, map[string]interface{}{
		"operation":   "approve",
		"proposal_id": proposalID,
		"rrn":         p.RRN,
		"maker":       p.Maker,
	})
	s.log.WithFields(logrus.Fields{
		"proposal_id": proposalID,
		"maker":       p.Maker,
		"checker":     checker,
	}).Info("Force-match approved")
	return p, nil
}

// Reject closes a proposal without touching the reconciliation output.
func (s *Service) Reject(runID, proposalID, checker, comments string) (*domain.Proposal, error) {
	lock := s.store.ProcessLock()
	lock.Lock()
	defer lock.Unlock()

	proposals, err := s.load(runID)
	if err != nil {
		return nil, err
	}
	p := findProposal(proposals, proposalID)
	if p == nil {
		return nil, apperrors.NotFound("proposal %s not found in run %s", proposalID, runID)
	}
	if p.Status != domain.ProposalProposed {
		return nil, apperrors.State("proposal %s is already %s", proposalID, p.Status)
	}

	now := time.Now().UTC()
	p.Status = domain.ProposalRejected
	p.Checker = checker
	p.Comments = comments
	p.DecidedAt = &now
	if err := s.store.WriteJSON(s.store.ProposalsPath(runID), proposals); err != nil {
		return nil, err
	}

	s.audit(runID, checker, map[string]interface{}{
		"operation":   "reject",
		"proposal_id": proposalID,
		"rrn":         p.RRN,
	})
	return p, nil
}

// List returns every proposal of a run, newest last.
func (s *Service) List(runID string) ([]*domain.Proposal, error) {
	lock := s.store.ProcessLock()
	lock.Lock()
	defer lock.Unlock()
	return s.load(runID)
}

// applyForceMatch backs up the recon output, flips the RRN to
// FORCE_MATCHED, and persists atomically. Both persisted formats decode
// through the store, so legacy maps are handled transparently.
func (s *Service) applyForceMatch(runID string, p *domain.Proposal, checker string) error {
	out, err := s.store.ReadReconOutput(runID)
	if err != nil {
		return err
	}
	rec, ok := out.Records[p.RRN]
	if !ok {
		return apperrors.NotFound("RRN %s not found in run %s", p.RRN, runID)
	}
	if rec.Status == domain.StatusForceMatched && rec.ForceMatch != nil && rec.ForceMatch.ProposalID == p.ProposalID {
		// A crash after the output write left the proposal undecided; the
		// record is already stamped, only the proposal write is outstanding.
		return nil
	}

	if _, err := s.store.BackupFile(s.store.ReconOutputPath(runID), "recon_output"); err != nil {
		return err
	}

	prev := rec.Status
	rec.Status = domain.StatusForceMatched
	rec.NeedsTTUM = false
	rec.ForceMatch = &domain.ForceMatchStamp{
		ProposalID: p.ProposalID,
		Maker:      p.Maker,
		Checker:    checker,
		ApprovedAt: time.Now().UTC(),
	}
	if out.Summary.Breakdown != nil {
		out.Summary.Breakdown[prev]--
		out.Summary.Breakdown[domain.StatusForceMatched]++
		if prev != domain.StatusMatched {
			out.Summary.UnmatchedCount--
			out.Summary.MatchedCount++
		}
	}
	return s.store.WriteReconOutput(runID, out)
}

func (s *Service) load(runID string) ([]*domain.Proposal, error) {
	var proposals []*domain.Proposal
	err := s.store.ReadJSON(s.store.ProposalsPath(runID), &proposals)
	if err != nil && err != store.ErrNotPresent {
		return nil, err
	}
	return proposals, nil
}

func findProposal(proposals []*domain.Proposal, id string) *domain.Proposal {
	for _, p := range proposals {
		if p.ProposalID == id {
			return p
		}
	}
	return nil
}
