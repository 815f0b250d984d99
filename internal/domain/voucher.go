package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// VoucherType distinguishes accounting vouchers.
type VoucherType string

const (
	VoucherPayment    VoucherType = "PAYMENT"
	VoucherSettlement VoucherType = "SETTLEMENT"
	VoucherReversal   VoucherType = "REVERSAL"
	VoucherAdjustment VoucherType = "ADJUSTMENT"
)

// VoucherStatus follows generated → posted; unbalanced vouchers go to
// failed and never post. "voucher_generated" and "matched/pending" are the
// wire values the accounting rollback flips between.
type VoucherStatus string

const (
	VoucherGenerated      VoucherStatus = "voucher_generated"
	VoucherPosted         VoucherStatus = "posted"
	VoucherFailed         VoucherStatus = "failed"
	VoucherMatchedPending VoucherStatus = "matched/pending"
)

// GLEntry is one general-ledger line of a voucher.
type GLEntry struct {
	EntryID     string          `json:"entry_id"`
	AccountCode string          `json:"account_code"`
	AccountName string          `json:"account_name"`
	Debit       decimal.Decimal `json:"debit_amount"`
	Credit      decimal.Decimal `json:"credit_amount"`
	Description string          `json:"description"`
	Reference   string          `json:"reference"`
}

// Voucher is one accounting voucher; debits must equal credits within the
// 0.01 tolerance before it may post.
type Voucher struct {
	VoucherID        string           `json:"voucher_id"`
	Type             VoucherType      `json:"voucher_type"`
	RRN              string           `json:"rrn"`
	TransactionDate  time.Time        `json:"transaction_date"`
	Amount           decimal.Decimal  `json:"amount"`
	Description      string           `json:"description"`
	Status           VoucherStatus    `json:"status"`
	PreviousStatus   VoucherStatus    `json:"previous_status,omitempty"`
	GLEntries        []GLEntry        `json:"gl_entries"`
	CreatedAt        time.Time        `json:"created_at"`
	PostedAt         *time.Time       `json:"posted_at,omitempty"`
	RollbackMetadata *VoucherRollback `json:"rollback_metadata,omitempty"`
}

// VoucherRollback preserves the pre-rollback state of a voucher.
type VoucherRollback struct {
	RollbackID        string    `json:"rollback_id"`
	RollbackTimestamp time.Time `json:"rollback_timestamp"`
	RollbackReason    string    `json:"rollback_reason"`
	PreviousGLEntries []GLEntry `json:"previous_gl_entries"`
}

// Balanced reports whether debit and credit totals agree within tolerance.
func (v *Voucher) Balanced(tolerance decimal.Decimal) bool {
	debit := decimal.Zero
	credit := decimal.Zero
	for _, e := range v.GLEntries {
		debit = debit.Add(e.Debit)
		credit = credit.Add(e.Credit)
	}
	return debit.Sub(credit).Abs().LessThanOrEqual(tolerance)
}

// AccountingOutput is the persisted accounting_output.json.
type AccountingOutput struct {
	RunID       string             `json:"run_id"`
	GeneratedAt time.Time          `json:"generated_at"`
	Summary     AccountingSummary  `json:"summary"`
	Vouchers    []*Voucher         `json:"vouchers"`
	Status      *AccountingStatus  `json:"accounting_status,omitempty"`
}

// AccountingSummary aggregates voucher generation for one run.
type AccountingSummary struct {
	TotalVouchers          int             `json:"total_vouchers"`
	MatchedTransactions    int             `json:"matched_transactions"`
	SettlementTransactions int             `json:"settlement_transactions"`
	TotalAmount            decimal.Decimal `json:"total_amount"`
}

// AccountingStatus is stamped by accounting rollback.
type AccountingStatus struct {
	Status           string    `json:"status"`
	VouchersReset    int       `json:"vouchers_reset"`
	VouchersNotFound int       `json:"vouchers_not_found"`
	RollbackReason   string    `json:"rollback_reason"`
	RollbackID       string    `json:"rollback_id"`
	Timestamp        time.Time `json:"timestamp"`
	GLEntriesCleared bool      `json:"gl_entries_cleared"`
}

// DownloadMeta is the TTUM download lock written by the report endpoints.
type DownloadMeta struct {
	IsDownloaded bool      `json:"is_downloaded"`
	DownloadedAt time.Time `json:"downloaded_at,omitempty"`
	Artifact     string    `json:"artifact,omitempty"`
}
