package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Source identifies the authoritative system a transaction row came from.
type Source string

const (
	SourceCBS    Source = "CBS"
	SourceSwitch Source = "SWITCH"
	SourceNPCI   Source = "NPCI"
	SourceNTSL   Source = "NTSL"
)

// Direction of the UPI leg relative to the bank.
type Direction string

const (
	DirectionInward  Direction = "INWARD"
	DirectionOutward Direction = "OUTWARD"
)

// DrCr is the debit/credit indicator on a ledger row, normalized to D or C.
type DrCr string

const (
	Debit  DrCr = "D"
	Credit DrCr = "C"
)

// NormalizeDrCr collapses the indicator spellings seen across source files
// (DR, CR, DEBIT, CREDIT, D, C) into the canonical form. Unknown values
// yield an empty DrCr.
func NormalizeDrCr(raw string) DrCr {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "D", "DR", "DEBIT":
		return Debit
	case "C", "CR", "CREDIT":
		return Credit
	}
	return ""
}

// Record is the canonical normalized transaction row. RRN and Amount are
// mandatory after normalization; rows with empty RRN are dropped during
// ingestion.
type Record struct {
	RRN       string          `json:"rrn"`
	UPITranID string          `json:"upi_tran_id,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	TranDate  time.Time       `json:"tran_date"`
	DrCr      DrCr            `json:"dr_cr,omitempty"`
	RC        string          `json:"rc,omitempty"`
	TranType  string          `json:"tran_type,omitempty"`
	Source    Source          `json:"source"`
	Direction Direction       `json:"direction,omitempty"`
	Cycle     string          `json:"cycle,omitempty"`
}

// RCSuccess is the UPI success response code.
const RCSuccess = "00"

// RCDeemedAccepted is the exact deemed-accepted (reversal) code. Codes that
// merely start with "RB" but carry a suffix are treated as declined and fall
// through to the exception matrix.
const RCDeemedAccepted = "RB"

// IsNPCISuccess reports whether an NPCI response code counts as success for
// the exception matrix.
func IsNPCISuccess(rc string) bool {
	return rc == RCSuccess || rc == RCDeemedAccepted
}

// AmountsEqual compares two amounts within the given tolerance.
func AmountsEqual(a, b, tolerance decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}

// SameDay reports whether two timestamps fall on the same calendar date.
func SameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

// WithinDays reports whether two timestamps are at most n days apart.
func WithinDays(a, b time.Time, n int) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= time.Duration(n)*24*time.Hour
}
