package matcher

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Asmith-M/UPI-Recon/internal/config"
	"github.com/Asmith-M/UPI-Recon/internal/domain"
	"github.com/Asmith-M/UPI-Recon/pkg/apperrors"
)

func testEngine() *Engine {
	return NewEngine(
		config.MatchingConfig{
			AmountTolerance:               decimal.RequireFromString("0.01"),
			DateToleranceDays:             1,
			PartialMatchDateToleranceDays: 2,
			HangingWaitCycles:             2,
			SettlementThreshold:           decimal.RequireFromString("1000"),
			CutOffTime:                    "22:30",
		},
		config.GLConfig{
			BankAccount:          config.GLAccount{Code: "100200"},
			SuspenseAccount:      config.GLAccount{Code: "200100"},
			SettlementPayable:    config.GLAccount{Code: "200200"},
			SettlementReceivable: config.GLAccount{Code: "100300"},
			RemitterAccount:      config.GLAccount{Code: "300100"},
			BeneficiaryAccount:   config.GLAccount{Code: "300200"},
			NPCISettlement:       config.GLAccount{Code: "200300"},
		},
	)
}

func rec(src domain.Source, rrn, amount, date string, drcr domain.DrCr, rc string) domain.Record {
	t, err := time.Parse("2006-01-02 15:04:05", date+" 10:00:00")
	if err != nil {
		t, _ = time.Parse("2006-01-02 15:04:05", date)
	}
	return domain.Record{
		RRN:      rrn,
		Amount:   decimal.RequireFromString(amount),
		TranDate: t.UTC(),
		DrCr:     drcr,
		RC:       rc,
		Source:   src,
	}
}

func reconcile(t *testing.T, records ...domain.Record) *domain.ReconOutput {
	t.Helper()
	out, err := testEngine().Reconcile(Input{Records: records, UPIPath: true})
	require.NoError(t, err)
	return out
}

func TestCleanThreeWayMatch(t *testing.T) {
	out := reconcile(t,
		rec(domain.SourceCBS, "100000000001", "1000.00", "2025-01-10", domain.Credit, "00"),
		rec(domain.SourceSwitch, "100000000001", "1000.00", "2025-01-10", domain.Credit, "00"),
		rec(domain.SourceNPCI, "100000000001", "1000.00", "2025-01-10", domain.Credit, "00"),
	)
	r := out.Records["100000000001"]
	require.NotNil(t, r)
	assert.Equal(t, domain.StatusMatched, r.Status)
	assert.Equal(t, "relaxed_rrn_date_amount", r.MatchTag)
	assert.False(t, r.NeedsTTUM)
	assert.Equal(t, 1, out.Summary.MatchedCount)
	assert.Empty(t, out.TTUMCandidates)
}

func TestThreeWayAmountMismatch(t *testing.T) {
	out := reconcile(t,
		rec(domain.SourceCBS, "100000000001", "1000.00", "2025-01-10", domain.Credit, "00"),
		rec(domain.SourceSwitch, "100000000001", "999.50", "2025-01-10", domain.Credit, "00"),
		rec(domain.SourceNPCI, "100000000001", "1000.50", "2025-01-10", domain.Credit, "00"),
	)
	r := out.Records["100000000001"]
	require.NotNil(t, r)
	assert.Equal(t, domain.StatusMismatch, r.Status)
}

func TestOrphanSingleSource(t *testing.T) {
	out := reconcile(t,
		rec(domain.SourceCBS, "100000000002", "500.00", "2025-01-10", domain.Debit, ""),
	)
	r := out.Records["100000000002"]
	require.NotNil(t, r)
	assert.Equal(t, domain.StatusOrphan, r.Status)
	assert.Equal(t, 1, out.Summary.UnmatchedCount)
}

func TestNPCIDeclinedReversesCBS(t *testing.T) {
	out := reconcile(t,
		rec(domain.SourceCBS, "100000000003", "750.00", "2025-01-10", domain.Debit, ""),
		rec(domain.SourceSwitch, "100000000003", "750.00", "2025-01-10", domain.Debit, "00"),
		rec(domain.SourceNPCI, "100000000003", "750.00", "2025-01-10", domain.Debit, "05"),
	)
	r := out.Records["100000000003"]
	require.NotNil(t, r)
	assert.Equal(t, domain.StatusException, r.Status)
	assert.Equal(t, domain.ExcNPCIFailed, r.Exception)
	assert.True(t, r.NeedsTTUM)
	assert.Equal(t, domain.TTUMReversal, r.TTUMType)
	require.Len(t, out.TTUMCandidates, 1)
	assert.Equal(t, "200300", out.TTUMCandidates[0].GLDebit)
}

func TestDeemedAcceptedWithoutDebit(t *testing.T) {
	out := reconcile(t,
		rec(domain.SourceNPCI, "100000000004", "250.00", "2025-01-10", domain.Credit, "RB"),
		rec(domain.SourceSwitch, "100000000004", "250.00", "2025-01-10", domain.Credit, "00"),
	)
	r := out.Records["100000000004"]
	require.NotNil(t, r)
	assert.Equal(t, domain.StatusException, r.Status)
	assert.Equal(t, "TCC_103", r.TCC)
	assert.True(t, r.NeedsTTUM)
	assert.Equal(t, domain.TTUMBeneficiaryCredit, r.TTUMType)
}

func TestDeemedAcceptedWithDebit(t *testing.T) {
	out := reconcile(t,
		rec(domain.SourceNPCI, "100000000005", "250.00", "2025-01-10", domain.Credit, "RB"),
		rec(domain.SourceCBS, "100000000005", "250.00", "2025-01-10", domain.Debit, ""),
	)
	r := out.Records["100000000005"]
	require.NotNil(t, r)
	assert.Equal(t, domain.StatusMatched, r.Status)
	assert.Equal(t, "TCC_102", r.TCC)
	assert.False(t, r.NeedsTTUM)
}

func TestRBWithSuffixIsDeclined(t *testing.T) {
	out := reconcile(t,
		rec(domain.SourceCBS, "100000000006", "100.00", "2025-01-10", domain.Debit, ""),
		rec(domain.SourceNPCI, "100000000006", "100.00", "2025-01-10", domain.Debit, "RB01"),
	)
	r := out.Records["100000000006"]
	require.NotNil(t, r)
	assert.Equal(t, domain.StatusException, r.Status)
	assert.Equal(t, domain.ExcNPCIFailed, r.Exception)
	assert.Empty(t, r.TCC)
}

func TestSelfMatchedReversalPair(t *testing.T) {
	out := reconcile(t,
		rec(domain.SourceCBS, "100000000007", "300.00", "2025-01-10", domain.Debit, ""),
		rec(domain.SourceCBS, "100000000007", "300.00", "2025-01-10", domain.Credit, ""),
	)
	r := out.Records["100000000007"]
	require.NotNil(t, r)
	assert.Equal(t, domain.StatusMatched, r.Status)
	assert.Equal(t, domain.ExcSelfMatched, r.Exception)
}

func TestDuplicateRRNInOneSource(t *testing.T) {
	out := reconcile(t,
		rec(domain.SourceCBS, "100000000008", "400.00", "2025-01-10", domain.Debit, ""),
		rec(domain.SourceCBS, "100000000008", "450.00", "2025-01-11", domain.Debit, ""),
		rec(domain.SourceSwitch, "100000000008", "400.00", "2025-01-10", domain.Debit, "00"),
	)
	r := out.Records["100000000008"]
	require.NotNil(t, r)
	assert.Equal(t, domain.StatusDuplicate, r.Status)
	assert.True(t, r.NeedsTTUM)
	assert.Equal(t, domain.TTUMReversal, r.TTUMType)
}

func TestCutOffTimeHanging(t *testing.T) {
	late := rec(domain.SourceNPCI, "100000000009", "100.00", "2025-01-10", domain.Credit, "00")
	late.TranDate = time.Date(2025, 1, 10, 23, 15, 0, 0, time.UTC)
	out := reconcile(t, late)
	r := out.Records["100000000009"]
	require.NotNil(t, r)
	assert.Equal(t, domain.StatusHanging, r.Status)
	assert.Equal(t, domain.HangingCutOffTime, r.HangingReason)
}

func TestCutOffAmountMismatchHanging(t *testing.T) {
	out := reconcile(t,
		rec(domain.SourceCBS, "100000000010", "900.00", "2025-01-10", domain.Debit, ""),
		rec(domain.SourceNPCI, "100000000010", "1000.00", "2025-01-10", domain.Debit, "00"),
	)
	r := out.Records["100000000010"]
	require.NotNil(t, r)
	assert.Equal(t, domain.StatusHanging, r.Status)
	assert.Equal(t, domain.HangingCutOffTransaction, r.HangingReason)
}

func TestCutOffWindowBoundsAndWrapsMidnight(t *testing.T) {
	eng := testEngine()
	eng.cfg.CutOffWindowMinutes = 120

	inside := rec(domain.SourceNPCI, "100000000020", "100.00", "2025-01-10", domain.Credit, "00")
	inside.TranDate = time.Date(2025, 1, 10, 0, 15, 0, 0, time.UTC)
	outside := rec(domain.SourceNPCI, "100000000021", "100.00", "2025-01-10", domain.Credit, "00")
	outside.TranDate = time.Date(2025, 1, 10, 1, 0, 0, 0, time.UTC)

	out, err := eng.Reconcile(Input{Records: []domain.Record{inside, outside}, UPIPath: true})
	require.NoError(t, err)

	// 22:30 plus 120 minutes wraps to 00:30 the next day.
	assert.Equal(t, domain.StatusHanging, out.Records["100000000020"].Status)
	assert.Equal(t, domain.HangingCutOffTime, out.Records["100000000020"].HangingReason)
	assert.NotEqual(t, domain.StatusHanging, out.Records["100000000021"].Status)
}

type mapLookup map[string]string

func (m mapLookup) NPCIResponseCode(rrn string) (string, bool) {
	rc, ok := m[rrn]
	return rc, ok
}

func TestNextCycleReversalRefinement(t *testing.T) {
	records := []domain.Record{
		rec(domain.SourceCBS, "100000000011", "900.00", "2025-01-10", domain.Debit, ""),
		rec(domain.SourceNPCI, "100000000011", "1000.00", "2025-01-10", domain.Debit, "00"),
	}
	out, err := testEngine().Reconcile(Input{
		Records:   records,
		UPIPath:   true,
		NextCycle: mapLookup{"100000000011": "RB"},
	})
	require.NoError(t, err)
	r := out.Records["100000000011"]
	require.NotNil(t, r)
	assert.Equal(t, domain.StatusHanging, r.Status)
	assert.Equal(t, domain.HangingDeclinedReversed, r.HangingReason)
}

func TestSettlementEntryPair(t *testing.T) {
	out := reconcile(t,
		rec(domain.SourceCBS, "SETTLE_REF_01", "5000.00", "2025-01-10", domain.Debit, ""),
		rec(domain.SourceCBS, "SETTLE_REF_01", "5000.00", "2025-01-11", domain.Credit, ""),
	)
	r := out.Records["SETTLE_REF_01"]
	require.NotNil(t, r)
	assert.Equal(t, domain.StatusMatched, r.Status)
	assert.Equal(t, domain.ExcSettlementEntry, r.Exception)
}

func TestNTSLConfirmsSettlement(t *testing.T) {
	out := reconcile(t,
		rec(domain.SourceCBS, "100000000012", "600.00", "2025-01-10", domain.Credit, ""),
		rec(domain.SourceNTSL, "100000000012", "600.00", "2025-01-10", "", ""),
	)
	r := out.Records["100000000012"]
	require.NotNil(t, r)
	assert.Equal(t, domain.StatusMatched, r.Status)
	assert.True(t, r.SettlementMatched)
}

func TestFailedAutoCreditReversal(t *testing.T) {
	out := reconcile(t,
		rec(domain.SourceCBS, "100000000013", "800.00", "2025-01-10", domain.Debit, ""),
		rec(domain.SourceNPCI, "100000000013", "800.00", "2025-01-10", domain.Debit, "00"),
		rec(domain.SourceNPCI, "100000000013", "800.00", "2025-01-11", domain.Credit, "00"),
	)
	r := out.Records["100000000013"]
	require.NotNil(t, r)
	assert.Equal(t, domain.StatusException, r.Status)
	assert.Equal(t, domain.ExcFailedAutoReversal, r.Exception)
	assert.True(t, r.NeedsTTUM)
}

func TestNPCIRepeatIsNotADuplicate(t *testing.T) {
	out := reconcile(t,
		rec(domain.SourceNPCI, "100000000019", "800.00", "2025-01-10", domain.Debit, "00"),
		rec(domain.SourceNPCI, "100000000019", "850.00", "2025-01-10", domain.Credit, "00"),
	)
	r := out.Records["100000000019"]
	require.NotNil(t, r)
	assert.NotEqual(t, domain.StatusDuplicate, r.Status)
	assert.NotEqual(t, domain.ExcDuplicate, r.Exception)
}

func TestSwitchUpdateException(t *testing.T) {
	out := reconcile(t,
		rec(domain.SourceCBS, "100000000014", "120.00", "2025-01-10", domain.Debit, ""),
		rec(domain.SourceSwitch, "100000000014", "121.00", "2025-01-10", domain.Debit, "91"),
		rec(domain.SourceNPCI, "100000000014", "120.00", "2025-01-10", domain.Debit, "00"),
	)
	r := out.Records["100000000014"]
	require.NotNil(t, r)
	assert.Equal(t, domain.StatusException, r.Status)
	assert.Equal(t, domain.ExcSwitchUpdate, r.Exception)
	assert.False(t, r.NeedsTTUM)
}

func TestRemitterRefundWithoutNPCI(t *testing.T) {
	out := reconcile(t,
		rec(domain.SourceCBS, "100000000015", "130.00", "2025-01-10", domain.Debit, ""),
		rec(domain.SourceSwitch, "100000000015", "130.00", "2025-01-10", domain.Debit, "00"),
	)
	r := out.Records["100000000015"]
	require.NotNil(t, r)
	assert.Equal(t, domain.StatusException, r.Status)
	assert.Equal(t, domain.ExcRemitterRefund, r.Exception)
	assert.True(t, r.NeedsTTUM)
}

func TestBeneficiaryRecoveryWithoutCBS(t *testing.T) {
	out := reconcile(t,
		rec(domain.SourceSwitch, "100000000016", "140.00", "2025-01-10", domain.Credit, "00"),
		rec(domain.SourceNPCI, "100000000016", "141.00", "2025-01-14", domain.Credit, "00"),
	)
	r := out.Records["100000000016"]
	require.NotNil(t, r)
	assert.Equal(t, domain.StatusException, r.Status)
	assert.Equal(t, domain.ExcBeneficiaryRecovery, r.Exception)
	assert.True(t, r.NeedsTTUM)
}

func TestLegacyClassification(t *testing.T) {
	records := []domain.Record{
		rec(domain.SourceCBS, "100000000017", "100.00", "2025-01-10", domain.Credit, ""),
		rec(domain.SourceSwitch, "100000000017", "100.00", "2025-01-10", domain.Credit, "00"),

		rec(domain.SourceCBS, "100000000018", "100.00", "2025-01-10", domain.Credit, ""),
		rec(domain.SourceSwitch, "100000000018", "100.00", "2025-01-11", domain.Credit, "00"),
		rec(domain.SourceNPCI, "100000000018", "100.00", "2025-01-10", domain.Credit, "00"),
	}
	out, err := testEngine().Reconcile(Input{Records: records, UPIPath: false})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusPartialMatch, out.Records["100000000017"].Status)
	assert.Equal(t, domain.StatusMismatch, out.Records["100000000018"].Status)
}

func TestEveryRRNClassifiedOnce(t *testing.T) {
	out := reconcile(t,
		rec(domain.SourceCBS, "100000000001", "1000.00", "2025-01-10", domain.Credit, "00"),
		rec(domain.SourceSwitch, "100000000001", "1000.00", "2025-01-10", domain.Credit, "00"),
		rec(domain.SourceNPCI, "100000000001", "1000.00", "2025-01-10", domain.Credit, "00"),
		rec(domain.SourceCBS, "100000000002", "500.00", "2025-01-10", domain.Debit, ""),
		rec(domain.SourceNPCI, "100000000004", "250.00", "2025-01-10", domain.Credit, "RB"),
	)
	total := 0
	for _, n := range out.Summary.Breakdown {
		total += n
	}
	assert.Equal(t, out.Summary.TotalRRNs, total)
	assert.Equal(t, 3, out.Summary.TotalRRNs)
	for rrn, r := range out.Records {
		assert.NotEmpty(t, r.Status, rrn)
	}
}

func TestReconcileIsDeterministic(t *testing.T) {
	records := []domain.Record{
		rec(domain.SourceCBS, "100000000001", "1000.00", "2025-01-10", domain.Credit, "00"),
		rec(domain.SourceSwitch, "100000000001", "1000.00", "2025-01-10", domain.Credit, "00"),
		rec(domain.SourceNPCI, "100000000001", "1000.00", "2025-01-10", domain.Credit, "00"),
		rec(domain.SourceCBS, "100000000002", "500.00", "2025-01-11", domain.Debit, ""),
		rec(domain.SourceNPCI, "100000000003", "750.00", "2025-01-10", domain.Debit, "05"),
	}
	first, err := testEngine().Reconcile(Input{Records: records, UPIPath: true})
	require.NoError(t, err)
	second, err := testEngine().Reconcile(Input{Records: records, UPIPath: true})
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))
}

func TestEmptyInputRejected(t *testing.T) {
	_, err := testEngine().Reconcile(Input{UPIPath: true})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))
}
