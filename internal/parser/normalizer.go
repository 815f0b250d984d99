package parser

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Asmith-M/UPI-Recon/internal/domain"
	"github.com/Asmith-M/UPI-Recon/pkg/logger"
)

// Canonical column names of the normalized schema.
const (
	ColRRN       = "RRN"
	ColUPITranID = "UPI_Tran_ID"
	ColAmount    = "Amount"
	ColTranDate  = "Tran_Date"
	ColDrCr      = "Dr_Cr"
	ColRC        = "RC"
	ColTranType  = "Tran_Type"
)

// columnAliases maps each canonical column to its ordered alias list.
// Mapping tries case-insensitive exact match first, then substring match in
// either direction.
var columnAliases = map[string][]string{
	ColRRN: {
		"rrn", "reference number", "ref number", "reference", "ref",
		"retrieval reference number", "txn id", "transaction_id", "txn_id",
		"unique id", "unique_id", "reference_no", "ref_no",
	},
	ColUPITranID: {
		"upi_tran_id", "upi tran id", "upi_txn_id", "upi transaction id",
		"upi_transaction_id", "upi id", "upi_id",
	},
	ColAmount: {
		"amount", "amt", "tran amount", "transaction amount", "tran_amt",
		"transaction_amt", "value", "amount_inr", "tran_value",
		"transaction_value", "principal", "principal_amount",
	},
	ColTranDate: {
		"date", "tran date", "transaction date", "tran_date",
		"transaction_date", "trn date", "trn_date", "dt", "trans_date",
		"transaction_dt", "date_time", "datetime", "tran_datetime",
		"transaction_datetime",
	},
	ColDrCr: {
		"dr_cr", "d/c", "dr/cr", "debit_credit", "debit/credit",
		"credit_debit", "c/d", "cd", "mode",
	},
	ColRC: {
		"rc", "rcode", "response code", "response_code", "status",
		"status_code", "response", "error_code",
	},
	ColTranType: {
		"tran type", "transaction type", "tran_type", "transaction_type",
		"payment type", "payment_type", "transaction_mode", "payment_mode",
		"service", "service_type",
	},
}

// requiredColumns must all be mappable for a file to be accepted.
var requiredColumns = []string{ColRRN, ColAmount, ColTranDate}

// upiMarkerColumns trigger the UPI matching path when present in any file.
var upiMarkerColumns = []string{
	"UPI_Tran_ID", "Payer_PSP", "Payee_PSP", "Originating_Channel",
}

// MapColumns resolves each canonical column to a header index. Unmapped
// canonical columns are absent from the result.
func MapColumns(header []string) map[string]int {
	mapped := make(map[string]int)
	for _, canonical := range []string{ColRRN, ColUPITranID, ColAmount, ColTranDate, ColDrCr, ColRC, ColTranType} {
		if idx, ok := findColumn(header, columnAliases[canonical]); ok {
			mapped[canonical] = idx
		}
	}
	return mapped
}

func findColumn(header []string, aliases []string) (int, bool) {
	// Exact match, case-insensitive.
	for i, col := range header {
		normalized := strings.ToLower(strings.TrimSpace(col))
		for _, alias := range aliases {
			if normalized == alias {
				return i, true
			}
		}
	}
	// Substring match in either direction.
	for i, col := range header {
		normalized := strings.ToLower(strings.TrimSpace(col))
		if normalized == "" {
			continue
		}
		for _, alias := range aliases {
			if strings.Contains(normalized, alias) || strings.Contains(alias, normalized) {
				return i, true
			}
		}
	}
	return 0, false
}

// MissingRequired lists required canonical columns that could not be mapped.
func MissingRequired(mapped map[string]int) []string {
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := mapped[col]; !ok {
			missing = append(missing, col)
		}
	}
	return missing
}

// NormalizeResult carries the canonical records of one file plus drop
// accounting.
type NormalizeResult struct {
	Records       []domain.Record
	DroppedNoRRN  int
	UPIIndicators bool
}

// Normalize coerces raw tabular rows into canonical records. Coercion
// rules: Amount parse failure → 0, missing date → 1970-01-01, strings
// trimmed with missing → empty. Rows with empty RRN are dropped and
// counted. Normalization is idempotent: normalizing already-canonical rows
// yields the same records.
func Normalize(header []string, rows [][]string, source domain.Source, direction domain.Direction, cycle string) NormalizeResult {
	mapped := MapColumns(header)
	res := NormalizeResult{UPIIndicators: hasUPIMarkers(header)}

	for _, row := range rows {
		rec := domain.Record{
			RRN:       cell(row, mapped, ColRRN),
			UPITranID: cell(row, mapped, ColUPITranID),
			DrCr:      domain.NormalizeDrCr(cell(row, mapped, ColDrCr)),
			RC:        cell(row, mapped, ColRC),
			TranType:  strings.ToUpper(cell(row, mapped, ColTranType)),
			Source:    source,
			Direction: direction,
			Cycle:     cycle,
		}
		if rec.RRN == "" {
			res.DroppedNoRRN++
			continue
		}
		rec.Amount = coerceAmount(cell(row, mapped, ColAmount))
		rec.TranDate = coerceDate(cell(row, mapped, ColTranDate))
		if rec.TranType == "U2" || rec.TranType == "U3" {
			res.UPIIndicators = true
		}
		res.Records = append(res.Records, rec)
	}

	if res.DroppedNoRRN > 0 {
		logger.GetLogger().WithFields(map[string]interface{}{
			"source":  source,
			"dropped": res.DroppedNoRRN,
		}).Warn("Dropped rows without RRN")
	}
	return res
}

func cell(row []string, mapped map[string]int, col string) string {
	idx, ok := mapped[col]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func coerceAmount(raw string) decimal.Decimal {
	if raw == "" {
		return decimal.Zero
	}
	amt, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
	if err != nil {
		return decimal.Zero
	}
	return amt
}

var dateFormats = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"02/01/2006",
	"2006/01/02",
	"02-01-2006",
}

var epochDate = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

func coerceDate(raw string) time.Time {
	if raw == "" {
		return epochDate
	}
	for _, format := range dateFormats {
		if t, err := time.Parse(format, raw); err == nil {
			return t.UTC()
		}
	}
	return epochDate
}

func hasUPIMarkers(header []string) bool {
	for _, col := range header {
		normalized := strings.ToLower(strings.TrimSpace(col))
		for _, marker := range upiMarkerColumns {
			if normalized == strings.ToLower(marker) {
				return true
			}
		}
	}
	return false
}
