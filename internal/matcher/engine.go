package matcher

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Asmith-M/UPI-Recon/internal/config"
	"github.com/Asmith-M/UPI-Recon/internal/domain"
	"github.com/Asmith-M/UPI-Recon/pkg/apperrors"
	"github.com/Asmith-M/UPI-Recon/pkg/logger"
)

// NextCycleLookup answers cross-cycle questions about the chronologically
// next run. The cut-off pass uses it to spot transactions declined in this
// cycle and reversed in the next.
type NextCycleLookup interface {
	// NPCIResponseCode returns the NPCI response code the next run recorded
	// for an RRN, when that run exists and saw the RRN.
	NPCIResponseCode(rrn string) (string, bool)
}

// Input is one cycle's worth of normalized records plus the cross-cycle
// context the engine may consult.
type Input struct {
	Records   []domain.Record
	CycleID   string
	Direction domain.Direction
	UPIPath   bool
	NextCycle NextCycleLookup
}

// row is a record under classification. A row whose status is set is
// processed; later passes skip it.
type row struct {
	rec domain.Record

	processed bool
	matched   bool
	status    domain.Status
	exception domain.ExceptionKind
	tcc       string
	hanging   string
	needsTTUM bool
	ttumType  domain.TTUMType
	matchTag  string
	settled   bool
}

func (r *row) classify(matched bool, status domain.Status) {
	r.processed = true
	r.matched = matched
	r.status = status
}

// Engine runs the ordered matching passes over one cycle's datasets. It is
// stateless across runs; cross-cycle context arrives through the Input.
type Engine struct {
	cfg config.MatchingConfig
	gl  config.GLConfig
	log *logrus.Logger
}

func NewEngine(cfg config.MatchingConfig, gl config.GLConfig) *Engine {
	return &Engine{cfg: cfg, gl: gl, log: logger.GetLogger()}
}

// Reconcile classifies every RRN group and returns the full reconciliation
// output. Identical inputs always produce identical outputs.
func (e *Engine) Reconcile(in Input) (*domain.ReconOutput, error) {
	if len(in.Records) == 0 {
		return nil, apperrors.Validation("no records to reconcile").
			WithSuggestion("upload at least one non-empty source file before reconciling")
	}

	rows := make([]*row, 0, len(in.Records))
	for _, rec := range in.Records {
		rows = append(rows, &row{rec: rec})
	}

	if in.UPIPath {
		e.runPasses(rows, in.NextCycle)
		e.applyExceptionMatrix(rows)
	}

	out := e.assemble(rows, in)
	e.log.WithFields(logrus.Fields{
		"rrns":    out.Summary.TotalRRNs,
		"matched": out.Summary.MatchedCount,
		"upi":     in.UPIPath,
		"cycle":   in.CycleID,
	}).Info("Reconciliation complete")
	return out, nil
}

func (e *Engine) runPasses(rows []*row, next NextCycleLookup) {
	passes := []struct {
		name string
		run  func([]*row, NextCycleLookup) int
	}{
		{"cut_off_hanging", e.passCutOff},
		{"self_matched", func(rs []*row, _ NextCycleLookup) int { return e.passSelfMatched(rs) }},
		{"settlement_entries", func(rs []*row, _ NextCycleLookup) int { return e.passSettlement(rs) }},
		{"duplicates", func(rs []*row, _ NextCycleLookup) int { return e.passDuplicates(rs) }},
		{"three_way_matching", func(rs []*row, _ NextCycleLookup) int { return e.passThreeWay(rs) }},
		{"deemed_accepted", func(rs []*row, _ NextCycleLookup) int { return e.passDeemedAccepted(rs) }},
		{"npci_declined", func(rs []*row, _ NextCycleLookup) int { return e.passNPCIDeclined(rs) }},
		{"failed_auto_reversal", func(rs []*row, _ NextCycleLookup) int { return e.passFailedAutoReversal(rs) }},
	}
	for _, p := range passes {
		n := p.run(rows, next)
		if n > 0 {
			e.log.WithFields(logrus.Fields{"pass": p.name, "classified": n}).Debug("Pass classified records")
		}
	}
}

// groupKey is the RRN-group identity: RRN when present, else UPI_Tran_ID.
func groupKey(rec domain.Record) string {
	if rec.RRN != "" {
		return rec.RRN
	}
	return rec.UPITranID
}

func groupRows(rows []*row) (map[string][]*row, []string) {
	groups := make(map[string][]*row)
	var order []string
	for _, r := range rows {
		key := groupKey(r.rec)
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], r)
	}
	sort.Strings(order)
	return groups, order
}

func bySource(rows []*row, src domain.Source) []*row {
	var out []*row
	for _, r := range rows {
		if r.rec.Source == src {
			out = append(out, r)
		}
	}
	return out
}

func unprocessed(rows []*row) []*row {
	var out []*row
	for _, r := range rows {
		if !r.processed {
			out = append(out, r)
		}
	}
	return out
}

// assemble folds classified rows into per-RRN reconciliation records,
// applies the final classification rule to whatever the passes left open,
// and computes the summary.
func (e *Engine) assemble(rows []*row, in Input) *domain.ReconOutput {
	groups, order := groupRows(rows)

	out := &domain.ReconOutput{
		Records: make(map[string]*domain.ReconRecord, len(order)),
		Summary: domain.ReconSummary{
			Breakdown:      make(map[domain.Status]int),
			ExceptionTypes: make(map[string]int),
			Inflow:         decimal.Zero,
			Outflow:        decimal.Zero,
		},
	}

	for _, key := range order {
		rec := e.assembleGroup(key, groups[key], in)
		out.Records[key] = rec

		out.Summary.TotalRRNs++
		out.Summary.Breakdown[rec.Status]++
		if rec.Status == domain.StatusMatched {
			out.Summary.MatchedCount++
		} else {
			out.Summary.UnmatchedCount++
		}
		if rec.Exception != "" {
			out.Summary.ExceptionTypes[string(rec.Exception)]++
			out.Exceptions = append(out.Exceptions, e.exceptionEntry(rec))
		}
		if rec.NeedsTTUM {
			out.Summary.TTUMRequired++
			out.TTUMCandidates = append(out.TTUMCandidates, e.ttumCandidate(rec))
		}
		if leg := rec.PrimaryLeg(); leg != nil {
			if leg.DrCr == domain.Credit {
				out.Summary.Inflow = out.Summary.Inflow.Add(leg.Amount)
			} else {
				out.Summary.Outflow = out.Summary.Outflow.Add(leg.Amount)
			}
		}
	}

	for _, r := range rows {
		switch r.rec.Source {
		case domain.SourceCBS:
			out.Summary.TotalCBS++
		case domain.SourceSwitch:
			out.Summary.TotalSwitch++
		case domain.SourceNPCI:
			out.Summary.TotalNPCI++
		}
	}
	return out
}

// assembleGroup derives the single status of one RRN group. Captures any
// per-group panic as PROCESSING_ERROR so one bad group never aborts the run.
func (e *Engine) assembleGroup(key string, group []*row, in Input) (rec *domain.ReconRecord) {
	rec = &domain.ReconRecord{
		RRN:       key,
		CycleID:   in.CycleID,
		Direction: in.Direction,
	}
	defer func() {
		if p := recover(); p != nil {
			rec.Status = domain.StatusProcessingError
			rec.ProcessingError = fmt.Sprint(p)
			e.log.WithFields(logrus.Fields{"rrn": key, "panic": p}).Error("Group classification failed")
		}
	}()

	for _, r := range group {
		leg := &domain.SourceLeg{
			Amount:   r.rec.Amount,
			Date:     r.rec.TranDate,
			DrCr:     r.rec.DrCr,
			RC:       r.rec.RC,
			TranType: r.rec.TranType,
		}
		switch r.rec.Source {
		case domain.SourceCBS:
			if rec.CBS == nil {
				rec.CBS = leg
			}
		case domain.SourceSwitch:
			if rec.Switch == nil {
				rec.Switch = leg
			}
		case domain.SourceNPCI:
			if rec.NPCI == nil {
				rec.NPCI = leg
			}
		case domain.SourceNTSL:
			if rec.NTSL == nil {
				rec.NTSL = leg
			}
		}
		if r.exception != "" && rec.Exception == "" {
			rec.Exception = r.exception
		}
		if r.tcc != "" {
			rec.TCC = r.tcc
		}
		if r.hanging != "" {
			rec.HangingReason = r.hanging
		}
		if r.needsTTUM {
			rec.NeedsTTUM = true
			if rec.TTUMType == "" {
				rec.TTUMType = r.ttumType
			}
		}
		if r.matchTag != "" {
			rec.MatchTag = r.matchTag
		}
		if r.settled {
			rec.SettlementMatched = true
		}
	}

	rec.Status = e.groupStatus(group, rec)
	return rec
}

func (e *Engine) groupStatus(group []*row, rec *domain.ReconRecord) domain.Status {
	anyHanging, anyDuplicate := false, false
	allProcessed, allMatched := true, true
	for _, r := range group {
		if r.status == domain.StatusHanging {
			anyHanging = true
		}
		if r.status == domain.StatusDuplicate {
			anyDuplicate = true
		}
		if !r.processed {
			allProcessed = false
		}
		if !r.matched {
			allMatched = false
		}
	}

	switch {
	case anyHanging:
		return domain.StatusHanging
	case anyDuplicate:
		return domain.StatusDuplicate
	case allProcessed && allMatched:
		return domain.StatusMatched
	}

	switch rec.Exception {
	case domain.ExcTCC103, domain.ExcNPCIFailed, domain.ExcNPCIDeclined,
		domain.ExcFailedAutoReversal, domain.ExcRemitterRefund,
		domain.ExcBeneficiaryRecovery, domain.ExcSwitchUpdate:
		return domain.StatusException
	}

	return finalClassification(rec, e.cfg.AmountTolerance)
}

// finalClassification is the pure (sources, amounts-equal, dates-equal)
// rule. It is the entire classifier on the legacy path and the residual
// rule on the UPI path.
func finalClassification(rec *domain.ReconRecord, tolerance decimal.Decimal) domain.Status {
	legs := make([]*domain.SourceLeg, 0, 3)
	for _, leg := range []*domain.SourceLeg{rec.CBS, rec.Switch, rec.NPCI} {
		if leg != nil {
			legs = append(legs, leg)
		}
	}
	n := len(legs)
	if n == 0 {
		return domain.StatusUnknown
	}
	if n == 1 {
		return domain.StatusOrphan
	}

	amountsEqual, datesEqual := true, true
	for _, leg := range legs[1:] {
		if !domain.AmountsEqual(legs[0].Amount, leg.Amount, tolerance) {
			amountsEqual = false
		}
		if !domain.SameDay(legs[0].Date, leg.Date) {
			datesEqual = false
		}
	}

	agree := amountsEqual && datesEqual
	if n == 3 {
		if agree {
			return domain.StatusMatched
		}
		return domain.StatusMismatch
	}
	if agree {
		return domain.StatusPartialMatch
	}
	return domain.StatusPartialMismatch
}

func (e *Engine) exceptionEntry(rec *domain.ReconRecord) domain.ExceptionEntry {
	source, amount := domain.SourceNPCI, decimal.Zero
	if leg := rec.PrimaryLeg(); leg != nil {
		amount = leg.Amount
	}
	if rec.CBS != nil {
		source = domain.SourceCBS
	} else if rec.Switch != nil {
		source = domain.SourceSwitch
	}
	return domain.ExceptionEntry{
		Source:        source,
		RRN:           rec.RRN,
		Amount:        amount,
		ExceptionType: rec.Exception,
		TTUMRequired:  rec.NeedsTTUM,
		TTUMType:      rec.TTUMType,
	}
}

// ttumCandidate pre-assigns the default GL pair; an issuer-action file may
// override the credit side downstream.
func (e *Engine) ttumCandidate(rec *domain.ReconRecord) domain.TTUMCandidate {
	amount := decimal.Zero
	source := domain.SourceNPCI
	if leg := rec.PrimaryLeg(); leg != nil {
		amount = leg.Amount
	}
	if rec.CBS != nil {
		source = domain.SourceCBS
	}
	c := domain.TTUMCandidate{
		Source:        source,
		Direction:     rec.Direction,
		RRN:           rec.RRN,
		Amount:        amount,
		TTUMType:      rec.TTUMType,
		ExceptionType: rec.Exception,
	}
	switch rec.TTUMType {
	case domain.TTUMBeneficiaryCredit:
		c.GLDebit = e.gl.NPCISettlement.Code
		c.GLCredit = e.gl.BeneficiaryAccount.Code
	default:
		c.GLDebit = e.gl.NPCISettlement.Code
		c.GLCredit = e.gl.RemitterAccount.Code
	}
	return c
}

// plainRRN reports whether an RRN looks like a real 12-digit retrieval
// reference rather than a settlement or internal reference.
func plainRRN(rrn string) bool {
	if len(rrn) != 12 {
		return false
	}
	return strings.IndexFunc(rrn, func(c rune) bool { return c < '0' || c > '9' }) < 0
}
