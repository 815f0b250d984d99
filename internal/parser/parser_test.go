package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Asmith-M/UPI-Recon/internal/domain"
)

func TestValidateRejectsEmptyFile(t *testing.T) {
	p := NewParser(100)
	rej := p.Validate("cbs.csv", nil)
	require.NotNil(t, rej)
	assert.Equal(t, "cbs.csv", rej.Filename)
	assert.Contains(t, rej.Error, "empty")
}

func TestValidateRejectsOversizeFile(t *testing.T) {
	p := NewParser(4)
	rej := p.Validate("cbs.csv", []byte("RRN,Amount,Date\n"))
	require.NotNil(t, rej)
	assert.Contains(t, rej.Error, "size limit")
}

func TestValidateRejectsFakeSpreadsheet(t *testing.T) {
	p := NewParser(0)
	rej := p.Validate("switch.xlsx", []byte("RRN,Amount,Date\n123,10,2026-01-01\n"))
	require.NotNil(t, rej)
	assert.Contains(t, rej.Error, "spreadsheet")
}

func TestValidateRejectsUnsupportedExtension(t *testing.T) {
	p := NewParser(0)
	rej := p.Validate("npci.pdf", []byte("whatever"))
	require.NotNil(t, rej)
	assert.Contains(t, rej.Error, "unsupported")
}

func TestValidateRejectsLegacyXLS(t *testing.T) {
	p := NewParser(0)
	// Real .xls content is an OLE compound file, not a ZIP.
	rej := p.Validate("cbs.xls", []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1})
	require.NotNil(t, rej)
	assert.Contains(t, rej.Error, ".xls")
	assert.Contains(t, rej.Suggestion, ".xlsx")
}

func TestValidateStripsHeaderBOM(t *testing.T) {
	p := NewParser(0)
	data := append([]byte("\uFEFF"), []byte("RRN,Amount,Tran_Date\n123456789012,100.00,2026-08-01\n")...)
	assert.Nil(t, p.Validate("cbs.csv", data))
}

func TestValidateReportsMissingColumns(t *testing.T) {
	p := NewParser(0)
	rej := p.Validate("cbs.csv", []byte("Branch,Narration\nHO,test\n"))
	require.NotNil(t, rej)
	assert.ElementsMatch(t, []string{ColRRN, ColAmount, ColTranDate}, rej.MissingColumns)
}

func TestValidateAcceptsAliasedColumns(t *testing.T) {
	p := NewParser(0)
	rej := p.Validate("cbs.csv", []byte("Reference Number,Tran Amount,Transaction Date\n123456789012,100.00,2026-08-01\n"))
	assert.Nil(t, rej)
}

func TestParseMapsAliasesAndCoerces(t *testing.T) {
	p := NewParser(0)
	data := []byte("Reference Number,Tran Amount,Transaction Date,D/C,Response Code\n" +
		"123456789012,\"1,500.50\",2026-08-01,DR,00\n" +
		"123456789013,not-a-number,,CREDIT,RB\n")
	res, err := p.Parse("cbs_inward.csv", data, domain.SourceCBS, domain.DirectionInward, "1A")
	require.NoError(t, err)
	require.Len(t, res.Records, 2)

	first := res.Records[0]
	assert.Equal(t, "123456789012", first.RRN)
	assert.Equal(t, "1500.5", first.Amount.String())
	assert.Equal(t, domain.Debit, first.DrCr)
	assert.Equal(t, "00", first.RC)
	assert.Equal(t, domain.SourceCBS, first.Source)
	assert.Equal(t, "1A", first.Cycle)

	second := res.Records[1]
	assert.True(t, second.Amount.IsZero())
	assert.Equal(t, 1970, second.TranDate.Year())
	assert.Equal(t, domain.Credit, second.DrCr)
}

func TestParseDropsRowsWithoutRRN(t *testing.T) {
	p := NewParser(0)
	data := []byte("RRN,Amount,Date\n,100,2026-08-01\n123456789012,50,2026-08-01\n")
	res, err := p.Parse("cbs.csv", data, domain.SourceCBS, domain.DirectionInward, "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.DroppedNoRRN)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "123456789012", res.Records[0].RRN)
}

func TestParseDetectsUPIMarkers(t *testing.T) {
	p := NewParser(0)

	byColumn := []byte("RRN,Amount,Date,UPI_Tran_ID\n123456789012,10,2026-08-01,UPI001\n")
	res, err := p.Parse("switch.csv", byColumn, domain.SourceSwitch, domain.DirectionInward, "")
	require.NoError(t, err)
	assert.True(t, res.UPIIndicators)

	byTranType := []byte("RRN,Amount,Date,Tran Type\n123456789012,10,2026-08-01,U2\n")
	res, err = p.Parse("switch.csv", byTranType, domain.SourceSwitch, domain.DirectionInward, "")
	require.NoError(t, err)
	assert.True(t, res.UPIIndicators)

	plain := []byte("RRN,Amount,Date\n123456789012,10,2026-08-01\n")
	res, err = p.Parse("switch.csv", plain, domain.SourceSwitch, domain.DirectionInward, "")
	require.NoError(t, err)
	assert.False(t, res.UPIIndicators)
}

func TestNormalizeIsIdempotent(t *testing.T) {
	header := []string{"RRN", "Amount", "Tran_Date", "Dr_Cr", "RC"}
	rows := [][]string{{"123456789012", "99.99", "2026-08-01", "D", "00"}}

	once := Normalize(header, rows, domain.SourceCBS, domain.DirectionInward, "")
	require.Len(t, once.Records, 1)

	rec := once.Records[0]
	again := Normalize(header, [][]string{{
		rec.RRN, rec.Amount.String(), rec.TranDate.Format("2006-01-02T15:04:05Z07:00"), string(rec.DrCr), rec.RC,
	}}, domain.SourceCBS, domain.DirectionInward, "")
	require.Len(t, again.Records, 1)
	assert.Equal(t, rec, again.Records[0])
}

func TestInferSource(t *testing.T) {
	cases := []struct {
		filename string
		want     domain.Source
		ok       bool
	}{
		{"cbs_inward_1A.csv", domain.SourceCBS, true},
		{"SWITCH_report.xlsx", domain.SourceSwitch, true},
		{"npci_raw.csv", domain.SourceNPCI, true},
		{"national_settlement.csv", domain.SourceNPCI, true},
		{"ntsl_cycle1.csv", domain.SourceNTSL, true},
		{"mystery.csv", "", false},
	}
	for _, tc := range cases {
		got, ok := InferSource(tc.filename)
		assert.Equal(t, tc.ok, ok, tc.filename)
		assert.Equal(t, tc.want, got, tc.filename)
	}
}

func TestInferDirection(t *testing.T) {
	assert.Equal(t, domain.DirectionOutward, InferDirection("cbs_outward.csv"))
	assert.Equal(t, domain.DirectionInward, InferDirection("cbs_inward.csv"))
	assert.Equal(t, domain.DirectionInward, InferDirection("cbs.csv"))
}

func TestSourceForSlot(t *testing.T) {
	src, ok := SourceForSlot("cbs_file")
	assert.True(t, ok)
	assert.Equal(t, domain.SourceCBS, src)

	_, ok = SourceForSlot("unknown_file")
	assert.False(t, ok)
}
