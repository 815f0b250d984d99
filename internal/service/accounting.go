package service

import (
	"github.com/sirupsen/logrus"

	"github.com/Asmith-M/UPI-Recon/internal/audit"
	"github.com/Asmith-M/UPI-Recon/internal/config"
	"github.com/Asmith-M/UPI-Recon/internal/domain"
	"github.com/Asmith-M/UPI-Recon/internal/settlement"
	"github.com/Asmith-M/UPI-Recon/internal/store"
	"github.com/Asmith-M/UPI-Recon/pkg/apperrors"
	"github.com/Asmith-M/UPI-Recon/pkg/logger"
)

// AccountingService posts generated vouchers to the general ledger and
// answers voucher queries. Reconciliation generates vouchers; posting is a
// separate, explicit step.
type AccountingService struct {
	cfg   *config.Config
	store *store.RunStore
	trail *audit.Trail
	log   *logrus.Logger
}

func NewAccountingService(cfg *config.Config, st *store.RunStore, trail *audit.Trail) *AccountingService {
	return &AccountingService{cfg: cfg, store: st, trail: trail, log: logger.GetLogger()}
}

// PostResult reports one posting pass.
type PostResult struct {
	RunID   string `json:"run_id"`
	Posted  int    `json:"posted"`
	Failed  int    `json:"failed"`
	Skipped int    `json:"skipped"`
}

// PostVouchers posts every generated voucher of a run. Unbalanced vouchers
// fail individually without stopping the rest; already posted vouchers are
// skipped.
func (s *AccountingService) PostVouchers(runID string) (*PostResult, error) {
	runID, err := resolveRunID(s.store, runID)
	if err != nil {
		return nil, err
	}

	lock := s.store.LockRun(runID)
	lock.Lock()
	defer lock.Unlock()

	acct, err := s.store.ReadAccountingOutput(runID)
	if err == store.ErrNotPresent {
		return nil, apperrors.State("run %s has no accounting output yet", runID).
			WithSuggestion("run reconciliation before posting vouchers")
	}
	if err != nil {
		return nil, err
	}

	gen := settlement.NewVoucherGenerator(s.cfg.GL, s.cfg.Matching.AmountTolerance)
	result := &PostResult{RunID: runID}
	for _, v := range acct.Vouchers {
		switch {
		case v.Status != domain.VoucherGenerated:
			result.Skipped++
		case gen.Post(v):
			result.Posted++
		default:
			result.Failed++
		}
	}

	if err := s.store.WriteAccountingOutput(runID, acct); err != nil {
		return nil, err
	}
	if s.trail != nil {
		if _, err := s.trail.Record(domain.AuditGLOp, domain.AuditInfo, runID, "", map[string]interface{}{
			"operation": "post_vouchers",
			"posted":    result.Posted,
			"failed":    result.Failed,
		}); err != nil {
			s.log.WithError(err).Warn("Audit record failed")
		}
	}
	s.log.WithFields(logrus.Fields{"run_id": runID, "posted": result.Posted}).Info("Vouchers posted")
	return result, nil
}

// VoucherSummary is the per-run accounting view: the generation summary
// plus a status breakdown.
type VoucherSummary struct {
	RunID    string                       `json:"run_id"`
	Summary  domain.AccountingSummary     `json:"summary"`
	ByStatus map[domain.VoucherStatus]int `json:"by_status"`
	Vouchers []*domain.Voucher            `json:"vouchers"`
}

// Summary returns the voucher summary of a run.
func (s *AccountingService) Summary(runID string) (*VoucherSummary, error) {
	runID, err := resolveRunID(s.store, runID)
	if err != nil {
		return nil, err
	}
	acct, err := s.store.ReadAccountingOutput(runID)
	if err == store.ErrNotPresent {
		return nil, apperrors.State("run %s has no accounting output yet", runID)
	}
	if err != nil {
		return nil, err
	}

	vs := &VoucherSummary{
		RunID:    runID,
		Summary:  acct.Summary,
		ByStatus: make(map[domain.VoucherStatus]int),
		Vouchers: acct.Vouchers,
	}
	for _, v := range acct.Vouchers {
		vs.ByStatus[v.Status]++
	}
	return vs, nil
}

// resolveRunID maps an empty run identifier to the latest run and verifies
// the run exists.
func resolveRunID(st *store.RunStore, runID string) (string, error) {
	if runID != "" {
		if !st.RunExists(runID) {
			return "", apperrors.NotFound("run %s not found", runID)
		}
		return runID, nil
	}
	latest, err := st.LatestRun()
	if err == store.ErrNotPresent {
		return "", apperrors.NotFound("no runs uploaded yet")
	}
	if err != nil {
		return "", err
	}
	return latest, nil
}
