package settlement

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Asmith-M/UPI-Recon/internal/config"
	"github.com/Asmith-M/UPI-Recon/internal/domain"
	"github.com/Asmith-M/UPI-Recon/pkg/apperrors"
)

// IssuerAction is one row of the optional issuer-action file: the issuer's
// decision for a disputed RRN, with an optional credit-GL override.
type IssuerAction struct {
	Action   string `json:"action"` // refund or recovery
	CreditGL string `json:"credit_gl,omitempty"`
}

// TTUMGenerator categorizes reconciliation records into the six NPCI
// instruction files and renders them as CSV, Annexure-IV and XLSX.
type TTUMGenerator struct {
	gl      config.GLConfig
	actions map[string]IssuerAction
	seq     map[domain.TTUMCategory]int
}

func NewTTUMGenerator(gl config.GLConfig, actions map[string]IssuerAction) *TTUMGenerator {
	if actions == nil {
		actions = map[string]IssuerAction{}
	}
	return &TTUMGenerator{
		gl:      gl,
		actions: actions,
		seq:     make(map[domain.TTUMCategory]int),
	}
}

// unmatchedStatuses are the statuses the DRC/RRC/REFUND/RECOVERY categories
// draw from.
var unmatchedStatuses = map[domain.Status]bool{
	domain.StatusPartialMatch: true,
	domain.StatusOrphan:       true,
	domain.StatusMismatch:     true,
}

// Categorize walks the reconciliation output once per category, in the
// fixed category order, visiting RRNs in sorted order. A record may appear
// in more than one category file; each file answers a different NPCI
// question.
func (t *TTUMGenerator) Categorize(out *domain.ReconOutput) map[domain.TTUMCategory][]domain.TTUMRecord {
	rrns := make([]string, 0, len(out.Records))
	for rrn := range out.Records {
		rrns = append(rrns, rrn)
	}
	sort.Strings(rrns)

	result := make(map[domain.TTUMCategory][]domain.TTUMRecord)
	for _, cat := range domain.TTUMCategories {
		for _, rrn := range rrns {
			rec := out.Records[rrn]
			if !t.belongs(cat, rec) {
				continue
			}
			result[cat] = append(result[cat], t.record(cat, rec))
		}
	}
	return result
}

func (t *TTUMGenerator) belongs(cat domain.TTUMCategory, rec *domain.ReconRecord) bool {
	leg := rec.PrimaryLeg()
	if leg == nil {
		return false
	}
	action := t.actions[rec.RRN].Action
	switch cat {
	case domain.TTUMCategoryDRC:
		return unmatchedStatuses[rec.Status] && leg.DrCr == domain.Debit
	case domain.TTUMCategoryRRC:
		return unmatchedStatuses[rec.Status] && leg.DrCr == domain.Credit
	case domain.TTUMCategoryTCC:
		return rec.TCC == "TCC_103"
	case domain.TTUMCategoryRET:
		return rec.NeedsTTUM || rec.Status == domain.StatusException
	case domain.TTUMCategoryRecovery:
		return unmatchedStatuses[rec.Status] && action == "recovery"
	case domain.TTUMCategoryRefund:
		return unmatchedStatuses[rec.Status] && (action == "" || action == "refund")
	}
	return false
}

func (t *TTUMGenerator) record(cat domain.TTUMCategory, rec *domain.ReconRecord) domain.TTUMRecord {
	leg := rec.PrimaryLeg()
	t.seq[cat]++

	r := domain.TTUMRecord{
		InstructionType:  string(cat),
		InstructionRefNo: fmt.Sprintf("%s_%06d", cat, t.seq[cat]),
		RRN:              rec.RRN,
		Amount:           leg.Amount,
		ValueDate:        leg.Date.Format("20060102"),
		DrCr:             leg.DrCr,
		RC:               leg.RC,
		TranType:         leg.TranType,
		Narration:        fmt.Sprintf("UPI recon %s adjustment for %s", rec.Status, rec.RRN),
		TTUMCode:         cat.AnnexureFlag(),
	}
	r.GLDebitAccount, r.GLCreditAccount = t.glPair(cat)
	if override := t.actions[rec.RRN].CreditGL; override != "" {
		r.GLCreditAccount = override
	}
	return r
}

// glPair assigns the default debit/credit GL accounts per category. The
// issuer-action file may override the credit side per RRN.
func (t *TTUMGenerator) glPair(cat domain.TTUMCategory) (string, string) {
	switch cat {
	case domain.TTUMCategoryRefund:
		return t.gl.NPCISettlement.Code, t.gl.RemitterAccount.Code
	case domain.TTUMCategoryRecovery:
		return t.gl.BeneficiaryAccount.Code, t.gl.NPCISettlement.Code
	case domain.TTUMCategoryTCC:
		return t.gl.NPCISettlement.Code, t.gl.BeneficiaryAccount.Code
	case domain.TTUMCategoryDRC:
		return t.gl.SuspenseAccount.Code, t.gl.RemitterAccount.Code
	case domain.TTUMCategoryRRC:
		return t.gl.BeneficiaryAccount.Code, t.gl.SuspenseAccount.Code
	default:
		return t.gl.SuspenseAccount.Code, t.gl.NPCISettlement.Code
	}
}

// EncodeCategoryCSV renders one category file with the fixed header row.
func EncodeCategoryCSV(records []domain.TTUMRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(domain.TTUMHeaders); err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindFatal, "writing TTUM header")
	}
	for _, r := range records {
		row := []string{
			r.InstructionType, r.InstructionRefNo, r.RRN,
			r.Amount.StringFixed(2), r.ValueDate, string(r.DrCr), r.RC,
			r.TranType, r.AccountNo, r.IFSC, r.Narration, r.TTUMCode,
			r.GLDebitAccount, r.GLCreditAccount,
		}
		if err := w.Write(row); err != nil {
			return nil, apperrors.Wrap(err, apperrors.KindFatal, "writing TTUM row %s", r.RRN)
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// BuildAnnexure folds every categorized record into the consolidated
// Annexure-IV rows. The reason column is capped at five characters; a
// missing sheet date defaults to today.
func BuildAnnexure(categorized map[domain.TTUMCategory][]domain.TTUMRecord, today time.Time) []domain.AnnexureRow {
	var rows []domain.AnnexureRow
	for _, cat := range domain.TTUMCategories {
		for _, r := range categorized[cat] {
			shtdat := today.Format("2006-01-02")
			if r.ValueDate != "" {
				if d, err := time.Parse("20060102", r.ValueDate); err == nil {
					shtdat = d.Format("2006-01-02")
				}
			}
			rows = append(rows, domain.AnnexureRow{
				BankAdjRef: r.InstructionRefNo,
				Flag:       cat.AnnexureFlag(),
				ShtDat:     shtdat,
				Adjsmt:     r.Amount.StringFixed(2),
				FileName:   fmt.Sprintf("%s_ttum.csv", cat),
				Reason:     truncate(string(cat), 5),
			})
		}
	}
	return rows
}

// EncodeAnnexureCSV renders the Annexure-IV rows with the fixed headers.
func EncodeAnnexureCSV(rows []domain.AnnexureRow) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(domain.AnnexureHeaders); err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindFatal, "writing Annexure header")
	}
	for _, r := range rows {
		row := []string{
			r.BankAdjRef, r.Flag, r.ShtDat, r.Adjsmt, r.Shser, r.Shcrd,
			r.FileName, r.Reason, r.SpecifyOther,
		}
		if err := w.Write(row); err != nil {
			return nil, apperrors.Wrap(err, apperrors.KindFatal, "writing Annexure row %s", r.BankAdjRef)
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// EncodeTTUMXLSX renders one workbook with a sheet per non-empty category.
func EncodeTTUMXLSX(categorized map[domain.TTUMCategory][]domain.TTUMRecord) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	first := true
	for _, cat := range domain.TTUMCategories {
		records := categorized[cat]
		if len(records) == 0 {
			continue
		}
		sheet := string(cat)
		if first {
			f.SetSheetName(f.GetSheetName(0), sheet)
			first = false
		} else {
			if _, err := f.NewSheet(sheet); err != nil {
				return nil, apperrors.Wrap(err, apperrors.KindFatal, "creating sheet %s", sheet)
			}
		}
		headers := make([]interface{}, len(domain.TTUMHeaders))
		for i, h := range domain.TTUMHeaders {
			headers[i] = h
		}
		if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
			return nil, apperrors.Wrap(err, apperrors.KindFatal, "writing headers of %s", sheet)
		}
		for i, r := range records {
			row := []interface{}{
				r.InstructionType, r.InstructionRefNo, r.RRN,
				r.Amount.StringFixed(2), r.ValueDate, string(r.DrCr), r.RC,
				r.TranType, r.AccountNo, r.IFSC, r.Narration, r.TTUMCode,
				r.GLDebitAccount, r.GLCreditAccount,
			}
			cell := fmt.Sprintf("A%d", i+2)
			if err := f.SetSheetRow(sheet, cell, &row); err != nil {
				return nil, apperrors.Wrap(err, apperrors.KindFatal, "writing row %d of %s", i+2, sheet)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindFatal, "encoding workbook")
	}
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
