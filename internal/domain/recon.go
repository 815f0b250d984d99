package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the terminal classification of one RRN group.
type Status string

const (
	StatusMatched         Status = "MATCHED"
	StatusPartialMatch    Status = "PARTIAL_MATCH"
	StatusPartialMismatch Status = "PARTIAL_MISMATCH"
	StatusMismatch        Status = "MISMATCH"
	StatusOrphan          Status = "ORPHAN"
	StatusHanging         Status = "HANGING"
	StatusDuplicate       Status = "DUPLICATE"
	StatusForceMatched    Status = "FORCE_MATCHED"
	StatusException       Status = "EXCEPTION"
	StatusProcessingError Status = "PROCESSING_ERROR"
	StatusUnknown         Status = "UNKNOWN"
)

// ExceptionKind tags how a row was resolved by the matching passes.
type ExceptionKind string

const (
	ExcSelfMatched        ExceptionKind = "SELF_MATCHED"
	ExcSettlementEntry    ExceptionKind = "SETTLEMENT_ENTRY"
	ExcDuplicate          ExceptionKind = "DOUBLE_DEBIT_CREDIT"
	ExcTCC102             ExceptionKind = "TCC_102"
	ExcTCC103             ExceptionKind = "TCC_103"
	ExcNPCIFailed         ExceptionKind = "NPCI_FAILED"
	ExcNPCIDeclined       ExceptionKind = "NPCI_DECLINED"
	ExcFailedAutoReversal  ExceptionKind = "FAILED_AUTO_REVERSAL"
	ExcRemitterRefund      ExceptionKind = "REMITTER_REFUND"
	ExcBeneficiaryRecovery ExceptionKind = "BENEFICIARY_RECOVERY"
	ExcSwitchUpdate        ExceptionKind = "SWITCH_UPDATE"
)

// Hanging reasons assigned by the cut-off pass.
const (
	HangingCutOffTransaction = "cut_off_transaction"
	HangingCutOffTime        = "cut_off_time"
	HangingDeclinedReversed  = "declined_then_reversed_next_cycle"
)

// TTUMType names the return instruction a residual row demands.
type TTUMType string

const (
	TTUMReversal          TTUMType = "REVERSAL"
	TTUMBeneficiaryCredit TTUMType = "BENEFICIARY_CREDIT"
)

// SourceLeg is one source's view of an RRN inside a ReconRecord.
type SourceLeg struct {
	Amount   decimal.Decimal `json:"amount"`
	Date     time.Time       `json:"date"`
	DrCr     DrCr            `json:"dr_cr,omitempty"`
	RC       string          `json:"rc,omitempty"`
	TranType string          `json:"tran_type,omitempty"`
}

// ReconRecord is the per-RRN reconciliation result. Exactly one exists per
// distinct RRN ingested.
type ReconRecord struct {
	RRN               string        `json:"rrn"`
	CBS               *SourceLeg    `json:"cbs"`
	Switch            *SourceLeg    `json:"switch"`
	NPCI              *SourceLeg    `json:"npci"`
	NTSL              *SourceLeg    `json:"ntsl,omitempty"`
	Status            Status        `json:"status"`
	Exception         ExceptionKind `json:"exception_type,omitempty"`
	TCC               string        `json:"tcc,omitempty"`
	HangingReason     string        `json:"hanging_reason,omitempty"`
	NeedsTTUM         bool          `json:"needs_ttum,omitempty"`
	TTUMType          TTUMType      `json:"ttum_type,omitempty"`
	SettlementMatched bool          `json:"settlement_matched,omitempty"`
	MatchTag          string        `json:"match_tag,omitempty"`
	CycleID           string        `json:"cycle_id,omitempty"`
	Direction         Direction     `json:"direction,omitempty"`
	ProcessingError   string        `json:"processing_error,omitempty"`
	ForceMatch        *ForceMatchStamp `json:"force_match,omitempty"`
	Rollback          *RollbackMetadata `json:"rollback_metadata,omitempty"`
}

// ForceMatchStamp records who approved a force match and when.
type ForceMatchStamp struct {
	ProposalID string    `json:"proposal_id"`
	Maker      string    `json:"maker"`
	Checker    string    `json:"checker"`
	ApprovedAt time.Time `json:"approved_at"`
}

// SourcesPresent counts the non-null source legs (NTSL excluded; it is a
// settlement overlay, not a reporting source).
func (r *ReconRecord) SourcesPresent() int {
	n := 0
	for _, leg := range []*SourceLeg{r.CBS, r.Switch, r.NPCI} {
		if leg != nil {
			n++
		}
	}
	return n
}

// PrimaryLeg returns the leg used for voucher and TTUM amounts: CBS first,
// then Switch, then NPCI.
func (r *ReconRecord) PrimaryLeg() *SourceLeg {
	for _, leg := range []*SourceLeg{r.CBS, r.Switch, r.NPCI} {
		if leg != nil {
			return leg
		}
	}
	return nil
}

// ReconSummary is the aggregate block of a reconciliation output.
type ReconSummary struct {
	TotalRRNs        int             `json:"total_rrns"`
	Breakdown        map[Status]int  `json:"breakdown"`
	MatchedCount     int             `json:"matched_count"`
	UnmatchedCount   int             `json:"unmatched_count"`
	TTUMRequired     int             `json:"ttum_required_count"`
	ExceptionTypes   map[string]int  `json:"exception_types"`
	Inflow           decimal.Decimal `json:"inflow"`
	Outflow          decimal.Decimal `json:"outflow"`
	TotalCBS         int             `json:"total_cbs"`
	TotalSwitch      int             `json:"total_switch"`
	TotalNPCI        int             `json:"total_npci"`
}

// ExceptionEntry is one row of the exceptions array in the UPI output
// format.
type ExceptionEntry struct {
	Source        Source          `json:"source"`
	RRN           string          `json:"rrn"`
	Amount        decimal.Decimal `json:"amount"`
	ExceptionType ExceptionKind   `json:"exception_type"`
	TTUMRequired  bool            `json:"ttum_required"`
	TTUMType      TTUMType        `json:"ttum_type,omitempty"`
}

// TTUMCandidate is one row of the ttum_candidates array.
type TTUMCandidate struct {
	Source        Source          `json:"source"`
	Direction     Direction       `json:"direction"`
	RRN           string          `json:"rrn"`
	Amount        decimal.Decimal `json:"amount"`
	TTUMType      TTUMType        `json:"ttum_type"`
	ExceptionType ExceptionKind   `json:"exception_type,omitempty"`
	AccountNumber string          `json:"account_number,omitempty"`
	GLDebit       string          `json:"gl_debit_account"`
	GLCredit      string          `json:"gl_credit_account"`
}

// ReconOutput is the persisted recon_output.json in the UPI format:
// {summary, records, exceptions[], ttum_candidates[]}.
type ReconOutput struct {
	RunID          string                  `json:"run_id"`
	GeneratedAt    time.Time               `json:"generated_at"`
	Summary        ReconSummary            `json:"summary"`
	Records        map[string]*ReconRecord `json:"records"`
	Exceptions     []ExceptionEntry        `json:"exceptions"`
	TTUMCandidates []TTUMCandidate         `json:"ttum_candidates"`
}

// DecodeReconOutput accepts both persisted formats: the UPI object with a
// summary block, and the legacy RRN-keyed map of records.
func DecodeReconOutput(raw []byte) (*ReconOutput, error) {
	var out ReconOutput
	if err := json.Unmarshal(raw, &out); err == nil && out.Records != nil {
		return &out, nil
	}

	legacy := make(map[string]*ReconRecord)
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return nil, err
	}
	for rrn, rec := range legacy {
		if rec.RRN == "" {
			rec.RRN = rrn
		}
	}
	return &ReconOutput{Records: legacy}, nil
}

// HangingState is the cross-cycle lookup persisted per run.
type HangingState struct {
	Hanging     []string  `json:"hanging"`
	GeneratedAt time.Time `json:"generated_at"`
}
