package domain

import "github.com/shopspring/decimal"

// TTUMCategory is one NPCI-bound instruction file category; one CSV is
// written per category.
type TTUMCategory string

const (
	TTUMCategoryDRC      TTUMCategory = "DRC"
	TTUMCategoryRRC      TTUMCategory = "RRC"
	TTUMCategoryTCC      TTUMCategory = "TCC"
	TTUMCategoryRET      TTUMCategory = "RET"
	TTUMCategoryRecovery TTUMCategory = "RECOVERY"
	TTUMCategoryRefund   TTUMCategory = "REFUND"
)

// TTUMCategories in output order.
var TTUMCategories = []TTUMCategory{
	TTUMCategoryDRC, TTUMCategoryRRC, TTUMCategoryTCC,
	TTUMCategoryRET, TTUMCategoryRecovery, TTUMCategoryRefund,
}

// AnnexureFlag maps a TTUM category onto the Annexure-IV Flag column:
// REFUND→CR, RECOVERY→DRC, all others identity.
func (c TTUMCategory) AnnexureFlag() string {
	switch c {
	case TTUMCategoryRefund:
		return "CR"
	case TTUMCategoryRecovery:
		return "DRC"
	default:
		return string(c)
	}
}

// TTUMRecord is one instruction row; headers are fixed, unknown fields stay
// blank.
type TTUMRecord struct {
	InstructionType  string          `json:"instruction_type"`
	InstructionRefNo string          `json:"instruction_ref_no"`
	RRN              string          `json:"rrn"`
	Amount           decimal.Decimal `json:"amount"`
	ValueDate        string          `json:"value_date"` // YYYYMMDD
	DrCr             DrCr            `json:"dr_cr"`
	RC               string          `json:"rc"`
	TranType         string          `json:"tran_type"`
	AccountNo        string          `json:"account_no"`
	IFSC             string          `json:"ifsc"`
	Narration        string          `json:"narration"`
	TTUMCode         string          `json:"ttum_code"`
	GLDebitAccount   string          `json:"gl_debit_account"`
	GLCreditAccount  string          `json:"gl_credit_account"`
}

// TTUMHeaders is the fixed CSV header row for every category file.
var TTUMHeaders = []string{
	"InstructionType", "InstructionRefNo", "RRN", "Amount", "ValueDate",
	"DrCr", "RC", "Tran_Type", "AccountNo", "IFSC", "Narration",
	"TTUM_Code", "GL_Debit_Account", "GL_Credit_Account",
}

// AnnexureRow is one row of the consolidated Annexure-IV CSV.
type AnnexureRow struct {
	BankAdjRef   string `json:"Bankadjref"`
	Flag         string `json:"Flag"`
	ShtDat       string `json:"shtdat"` // YYYY-MM-DD
	Adjsmt       string `json:"adjsmt"` // two decimals
	Shser        string `json:"Shser"`
	Shcrd        string `json:"Shcrd"`
	FileName     string `json:"FileName"`
	Reason       string `json:"reason"` // max 5 chars
	SpecifyOther string `json:"specifyother"`
}

// AnnexureHeaders is the fixed Annexure-IV header row.
var AnnexureHeaders = []string{
	"Bankadjref", "Flag", "shtdat", "adjsmt", "Shser", "Shcrd",
	"FileName", "reason", "specifyother",
}
