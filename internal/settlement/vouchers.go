package settlement

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Asmith-M/UPI-Recon/internal/config"
	"github.com/Asmith-M/UPI-Recon/internal/domain"
	"github.com/Asmith-M/UPI-Recon/pkg/logger"
)

// VoucherGenerator turns classified reconciliation records into accounting
// vouchers. Voucher numbers are monotonic within a generator; one generator
// serves one run.
type VoucherGenerator struct {
	gl        config.GLConfig
	tolerance decimal.Decimal

	paymentSeq int
	settleSeq  int
}

func NewVoucherGenerator(gl config.GLConfig, tolerance decimal.Decimal) *VoucherGenerator {
	return &VoucherGenerator{gl: gl, tolerance: tolerance}
}

// Generate produces the accounting output for a run: a PAYMENT voucher per
// MATCHED RRN and a SETTLEMENT voucher per PARTIAL_MATCH or ORPHAN with a
// positive amount. Records are visited in RRN order so voucher numbering is
// reproducible.
func (g *VoucherGenerator) Generate(runID string, out *domain.ReconOutput) *domain.AccountingOutput {
	acct := &domain.AccountingOutput{
		RunID:       runID,
		GeneratedAt: time.Now().UTC(),
		Summary:     domain.AccountingSummary{TotalAmount: decimal.Zero},
	}

	rrns := make([]string, 0, len(out.Records))
	for rrn := range out.Records {
		rrns = append(rrns, rrn)
	}
	sort.Strings(rrns)

	for _, rrn := range rrns {
		rec := out.Records[rrn]
		leg := rec.PrimaryLeg()
		if leg == nil {
			continue
		}
		switch rec.Status {
		case domain.StatusMatched:
			acct.Vouchers = append(acct.Vouchers, g.paymentVoucher(rec, leg))
			acct.Summary.MatchedTransactions++
			acct.Summary.TotalAmount = acct.Summary.TotalAmount.Add(leg.Amount)
		case domain.StatusPartialMatch, domain.StatusOrphan:
			if !leg.Amount.IsPositive() {
				continue
			}
			acct.Vouchers = append(acct.Vouchers, g.settlementVoucher(rec, leg))
			acct.Summary.SettlementTransactions++
			acct.Summary.TotalAmount = acct.Summary.TotalAmount.Add(leg.Amount)
		}
	}
	acct.Summary.TotalVouchers = len(acct.Vouchers)

	logger.GetLogger().WithFields(logrus.Fields{
		"run_id":   runID,
		"vouchers": acct.Summary.TotalVouchers,
	}).Info("Vouchers generated")
	return acct
}

// paymentVoucher moves a matched transaction from the bank account into
// settlement receivable. Amount comes from the CBS leg.
func (g *VoucherGenerator) paymentVoucher(rec *domain.ReconRecord, leg *domain.SourceLeg) *domain.Voucher {
	amount := leg.Amount
	if rec.CBS != nil {
		amount = rec.CBS.Amount
	}
	g.paymentSeq++
	id := fmt.Sprintf("VOUCHER_%06d", g.paymentSeq)
	return &domain.Voucher{
		VoucherID:       id,
		Type:            domain.VoucherPayment,
		RRN:             rec.RRN,
		TransactionDate: leg.Date,
		Amount:          amount,
		Description:     "UPI settlement for matched transaction " + rec.RRN,
		Status:          domain.VoucherGenerated,
		CreatedAt:       time.Now().UTC(),
		GLEntries: []domain.GLEntry{
			g.entry(id, 1, g.gl.BankAccount, amount, decimal.Zero, rec.RRN),
			g.entry(id, 2, g.gl.SettlementReceivable, decimal.Zero, amount, rec.RRN),
		},
	}
}

// settlementVoucher parks an incompletely matched amount in suspense until
// the dispute resolves.
func (g *VoucherGenerator) settlementVoucher(rec *domain.ReconRecord, leg *domain.SourceLeg) *domain.Voucher {
	g.settleSeq++
	id := fmt.Sprintf("SETTLE_%06d", g.settleSeq)
	return &domain.Voucher{
		VoucherID:       id,
		Type:            domain.VoucherSettlement,
		RRN:             rec.RRN,
		TransactionDate: leg.Date,
		Amount:          leg.Amount,
		Description:     fmt.Sprintf("Suspense parking for %s transaction %s", rec.Status, rec.RRN),
		Status:          domain.VoucherGenerated,
		CreatedAt:       time.Now().UTC(),
		GLEntries: []domain.GLEntry{
			g.entry(id, 1, g.gl.SuspenseAccount, leg.Amount, decimal.Zero, rec.RRN),
			g.entry(id, 2, g.gl.SettlementPayable, decimal.Zero, leg.Amount, rec.RRN),
		},
	}
}

func (g *VoucherGenerator) entry(voucherID string, n int, acct config.GLAccount, debit, credit decimal.Decimal, rrn string) domain.GLEntry {
	return domain.GLEntry{
		EntryID:     fmt.Sprintf("%s_E%d", voucherID, n),
		AccountCode: acct.Code,
		AccountName: acct.Name,
		Debit:       debit,
		Credit:      credit,
		Description: "UPI reconciliation posting",
		Reference:   rrn,
	}
}

// Post transitions a generated voucher to posted after the balance check.
// Unbalanced vouchers are marked failed and never post.
func (g *VoucherGenerator) Post(v *domain.Voucher) bool {
	if v.Status != domain.VoucherGenerated {
		return false
	}
	if !v.Balanced(g.tolerance) {
		v.Status = domain.VoucherFailed
		logger.GetLogger().WithFields(logrus.Fields{
			"voucher_id": v.VoucherID,
			"rrn":        v.RRN,
		}).Warn("Voucher unbalanced, not posted")
		return false
	}
	now := time.Now().UTC()
	v.Status = domain.VoucherPosted
	v.PostedAt = &now
	return true
}

// PostAll posts every generated voucher; one failed voucher does not stop
// the rest. Returns the number posted.
func (g *VoucherGenerator) PostAll(acct *domain.AccountingOutput) int {
	posted := 0
	for _, v := range acct.Vouchers {
		if g.Post(v) {
			posted++
		}
	}
	return posted
}
