package matcher

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Asmith-M/UPI-Recon/internal/domain"
)

// Pass 1: cut-off and hanging detection over NPCI rows. A row is hanging
// when it partially matches CBS or Switch on (RRN, date) but not amount,
// when it was posted after the cut-off time, or when the next run shows it
// reversed with an RB code.
func (e *Engine) passCutOff(rows []*row, next NextCycleLookup) int {
	cutOffMinutes := parseCutOff(e.cfg.CutOffTime)
	classified := 0

	for _, npci := range unprocessed(bySource(rows, domain.SourceNPCI)) {
		reason := ""
		if e.hasPartialAmountMismatch(rows, npci) {
			reason = domain.HangingCutOffTransaction
		} else if inCutOffWindow(minuteOfDay(npci.rec.TranDate), cutOffMinutes, e.cfg.CutOffWindowMinutes) {
			reason = domain.HangingCutOffTime
		}
		if next != nil {
			if rc, ok := next.NPCIResponseCode(groupKey(npci.rec)); ok && strings.HasPrefix(rc, "RB") {
				reason = domain.HangingDeclinedReversed
			}
		}
		if reason != "" {
			npci.classify(false, domain.StatusHanging)
			npci.hanging = reason
			classified++
		}
	}
	return classified
}

// hasPartialAmountMismatch reports whether CBS or Switch saw the RRN on a
// near date but with a different amount, and no candidate agrees on the
// amount.
func (e *Engine) hasPartialAmountMismatch(rows []*row, npci *row) bool {
	sawCandidate, sawAgreement := false, false
	for _, r := range rows {
		if r == npci || r.processed {
			continue
		}
		if r.rec.Source != domain.SourceCBS && r.rec.Source != domain.SourceSwitch {
			continue
		}
		if groupKey(r.rec) != groupKey(npci.rec) {
			continue
		}
		if !daysApart(r.rec.TranDate, npci.rec.TranDate, e.cfg.PartialMatchDateToleranceDays) {
			continue
		}
		sawCandidate = true
		if domain.AmountsEqual(r.rec.Amount, npci.rec.Amount, e.cfg.AmountTolerance) {
			sawAgreement = true
		}
	}
	return sawCandidate && !sawAgreement
}

// Pass 2: self-matched auto-reversal pairs inside a single source. CBS and
// Switch pairs must carry opposite debit/credit markers; NPCI pairs match
// on the key alone.
func (e *Engine) passSelfMatched(rows []*row) int {
	classified := 0
	for _, src := range []domain.Source{domain.SourceCBS, domain.SourceSwitch, domain.SourceNPCI} {
		pairs := make(map[string][]*row)
		for _, r := range unprocessed(bySource(rows, src)) {
			key := fmt.Sprintf("%s|%s|%s|%s",
				r.rec.UPITranID, r.rec.RRN, r.rec.TranDate.Format("2006-01-02"), r.rec.Amount.String())
			pairs[key] = append(pairs[key], r)
		}
		for _, pair := range pairs {
			if len(pair) != 2 {
				continue
			}
			if src != domain.SourceNPCI && !oppositeDrCr(pair[0], pair[1]) {
				continue
			}
			for _, r := range pair {
				r.classify(true, domain.StatusMatched)
				r.exception = domain.ExcSelfMatched
			}
			classified += 2
		}
	}
	return classified
}

func oppositeDrCr(a, b *row) bool {
	return (a.rec.DrCr == domain.Debit && b.rec.DrCr == domain.Credit) ||
		(a.rec.DrCr == domain.Credit && b.rec.DrCr == domain.Debit)
}

// Pass 3: settlement entries. Large CBS rows without a real RRN that net
// out against an opposite row are internal settlement postings, not
// transactions. NTSL rows that match a transaction amount confirm that the
// RRN settled.
func (e *Engine) passSettlement(rows []*row) int {
	classified := 0

	cbs := unprocessed(bySource(rows, domain.SourceCBS))
	for i, a := range cbs {
		if a.processed || plainRRN(a.rec.RRN) || a.rec.Amount.Abs().LessThan(e.cfg.SettlementThreshold) {
			continue
		}
		for _, b := range cbs[i+1:] {
			if b.processed || !a.rec.Amount.Abs().Equal(b.rec.Amount.Abs()) {
				continue
			}
			if !a.rec.Amount.Add(b.rec.Amount).IsZero() && !oppositeDrCr(a, b) {
				continue
			}
			for _, r := range []*row{a, b} {
				r.classify(true, domain.StatusMatched)
				r.exception = domain.ExcSettlementEntry
			}
			classified += 2
			break
		}
	}

	for _, ntsl := range unprocessed(bySource(rows, domain.SourceNTSL)) {
		for _, r := range rows {
			if r.processed || r == ntsl || r.rec.Source == domain.SourceNTSL {
				continue
			}
			if groupKey(r.rec) != groupKey(ntsl.rec) {
				continue
			}
			if !domain.AmountsEqual(r.rec.Amount, ntsl.rec.Amount, e.cfg.AmountTolerance) {
				continue
			}
			r.classify(true, domain.StatusMatched)
			r.settled = true
			ntsl.classify(true, domain.StatusMatched)
			ntsl.settled = true
			classified++
		}
	}
	return classified
}

// Pass 4: duplicate detection over CBS and Switch. A repeated RRN inside
// one of those sources poisons the whole group; every row of it needs a
// reversal TTUM. NPCI repeats are not duplicates: a debit/credit pair there
// is auto-reversal evidence for the failed auto-reversal pass.
func (e *Engine) passDuplicates(rows []*row) int {
	classified := 0
	duplicated := make(map[string]bool)
	for _, src := range []domain.Source{domain.SourceCBS, domain.SourceSwitch} {
		counts := make(map[string]int)
		for _, r := range unprocessed(bySource(rows, src)) {
			counts[groupKey(r.rec)]++
		}
		for key, n := range counts {
			if n > 1 {
				duplicated[key] = true
			}
		}
	}
	for _, r := range rows {
		if r.processed || !duplicated[groupKey(r.rec)] {
			continue
		}
		r.classify(false, domain.StatusDuplicate)
		r.exception = domain.ExcDuplicate
		r.needsTTUM = true
		r.ttumType = domain.TTUMReversal
		classified++
	}
	return classified
}

type matchConfig struct {
	name   string
	useUTI bool
	useRRN bool
}

var matchConfigs = []matchConfig{
	{name: "best_match", useUTI: true, useRRN: true},
	{name: "relaxed_upi_date_amount", useUTI: true},
	{name: "relaxed_rrn_date_amount", useRRN: true},
}

// Pass 5: normal three-way matching of successful NPCI rows. The three
// configurations run in order and the pass stops at the first one that
// matches anything. Candidates are taken in (Tran_Date, RRN, Amount) order
// so reruns over reshuffled input files stay deterministic.
func (e *Engine) passThreeWay(rows []*row) int {
	cbsRows := sortedCandidates(bySource(rows, domain.SourceCBS))
	switchRows := sortedCandidates(bySource(rows, domain.SourceSwitch))
	npciRows := sortedCandidates(bySource(rows, domain.SourceNPCI))

	for _, cfg := range matchConfigs {
		matched := 0
		for _, npci := range npciRows {
			if npci.processed || npci.rec.RC != domain.RCSuccess {
				continue
			}
			if cfg.useUTI && npci.rec.UPITranID == "" {
				continue
			}
			cbs := e.findCandidate(cbsRows, npci, cfg)
			sw := e.findCandidate(switchRows, npci, cfg)
			if cbs == nil || sw == nil {
				continue
			}
			for _, r := range []*row{npci, cbs, sw} {
				r.classify(true, domain.StatusMatched)
				r.matchTag = cfg.name
			}
			matched++
		}
		if matched > 0 {
			return matched
		}
	}
	return 0
}

func sortedCandidates(rs []*row) []*row {
	out := make([]*row, len(rs))
	copy(out, rs)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].rec, out[j].rec
		if !a.TranDate.Equal(b.TranDate) {
			return a.TranDate.Before(b.TranDate)
		}
		if a.RRN != b.RRN {
			return a.RRN < b.RRN
		}
		return a.Amount.LessThan(b.Amount)
	})
	return out
}

func (e *Engine) findCandidate(candidates []*row, npci *row, cfg matchConfig) *row {
	for _, cand := range candidates {
		if cand.processed {
			continue
		}
		if cfg.useUTI && cand.rec.UPITranID != npci.rec.UPITranID {
			continue
		}
		if cfg.useRRN && cand.rec.RRN != npci.rec.RRN {
			continue
		}
		if !daysApart(cand.rec.TranDate, npci.rec.TranDate, e.cfg.DateToleranceDays) {
			continue
		}
		if !domain.AmountsEqual(cand.rec.Amount, npci.rec.Amount, e.cfg.AmountTolerance) {
			continue
		}
		return cand
	}
	return nil
}

// Pass 6: deemed-accepted transactions. An exact RB response code means
// NPCI deemed the transaction accepted; a CBS debit confirms it (TCC 102),
// otherwise the beneficiary still has to be credited (TCC 103).
func (e *Engine) passDeemedAccepted(rows []*row) int {
	classified := 0
	for _, npci := range unprocessed(bySource(rows, domain.SourceNPCI)) {
		if npci.processed || npci.rec.RC != domain.RCDeemedAccepted {
			continue
		}
		var debit *row
		for _, cand := range unprocessed(bySource(rows, domain.SourceCBS)) {
			if groupKey(cand.rec) == groupKey(npci.rec) && cand.rec.DrCr == domain.Debit {
				debit = cand
				break
			}
		}
		if debit != nil {
			for _, r := range []*row{npci, debit} {
				r.classify(true, domain.StatusMatched)
				r.exception = domain.ExcTCC102
				r.tcc = "TCC_102"
			}
			classified += 2
			continue
		}
		npci.classify(false, domain.StatusException)
		npci.exception = domain.ExcTCC103
		npci.tcc = "TCC_103"
		npci.needsTTUM = true
		npci.ttumType = domain.TTUMBeneficiaryCredit
		classified++
	}
	return classified
}

// Pass 7: NPCI-declined transactions. A non-success, non-RB code means the
// transaction failed at NPCI; any CBS posting for it must be reversed.
func (e *Engine) passNPCIDeclined(rows []*row) int {
	classified := 0
	for _, npci := range unprocessed(bySource(rows, domain.SourceNPCI)) {
		if npci.processed || npci.rec.RC == domain.RCSuccess || npci.rec.RC == domain.RCDeemedAccepted {
			continue
		}
		for _, cand := range unprocessed(bySource(rows, domain.SourceCBS)) {
			if cand.processed || groupKey(cand.rec) != groupKey(npci.rec) {
				continue
			}
			cand.classify(false, domain.StatusException)
			cand.exception = domain.ExcNPCIFailed
			cand.needsTTUM = true
			cand.ttumType = domain.TTUMReversal
			classified++
		}
		npci.classify(false, domain.StatusException)
		npci.exception = domain.ExcNPCIDeclined
		classified++
	}
	return classified
}

// Pass 8: failed auto-credit reversal. Two NPCI rows of one amount against
// a single CBS posting means the automatic credit reversal did not reach
// CBS; the whole triple needs a reversal TTUM.
func (e *Engine) passFailedAutoReversal(rows []*row) int {
	classified := 0
	npciGroups := make(map[string][]*row)
	for _, r := range unprocessed(bySource(rows, domain.SourceNPCI)) {
		npciGroups[groupKey(r.rec)] = append(npciGroups[groupKey(r.rec)], r)
	}
	for key, pair := range npciGroups {
		if len(pair) != 2 || !pair[0].rec.Amount.Equal(pair[1].rec.Amount) {
			continue
		}
		var cbs []*row
		for _, cand := range unprocessed(bySource(rows, domain.SourceCBS)) {
			if groupKey(cand.rec) == key {
				cbs = append(cbs, cand)
			}
		}
		if len(cbs) != 1 {
			continue
		}
		for _, r := range []*row{pair[0], pair[1], cbs[0]} {
			r.classify(false, domain.StatusException)
			r.exception = domain.ExcFailedAutoReversal
			r.needsTTUM = true
			r.ttumType = domain.TTUMReversal
			classified++
		}
	}
	return classified
}

// applyExceptionMatrix classifies every group the passes left open by the
// (CBS, Switch, NPCI) success triple. Source success: CBS by presence,
// Switch by RC "00", NPCI by RC in {"00","RB"}. Groups a single source
// reported carry no disagreement to arbitrate; they fall through to the
// final classification rule as orphans.
func (e *Engine) applyExceptionMatrix(rows []*row) {
	groups, order := groupRows(rows)
	for _, key := range order {
		group := groups[key]
		open := unprocessed(group)
		if len(open) == 0 {
			continue
		}

		cbsOK, switchOK, npciOK := false, false, false
		present := make(map[domain.Source]bool)
		for _, r := range group {
			present[r.rec.Source] = true
			switch r.rec.Source {
			case domain.SourceCBS:
				cbsOK = true
			case domain.SourceSwitch:
				if r.rec.RC == domain.RCSuccess {
					switchOK = true
				}
			case domain.SourceNPCI:
				if domain.IsNPCISuccess(r.rec.RC) {
					npciOK = true
				}
			}
		}
		sources := 0
		for _, src := range []domain.Source{domain.SourceCBS, domain.SourceSwitch, domain.SourceNPCI} {
			if present[src] {
				sources++
			}
		}
		if sources < 2 {
			for _, r := range open {
				r.classify(false, domain.StatusUnknown)
			}
			continue
		}

		switch {
		case cbsOK && switchOK && npciOK:
			// All sources agree on success; amounts and dates decide
			// between MATCHED and MISMATCH in the final rule.
			for _, r := range open {
				r.classify(false, domain.StatusUnknown)
			}
		case cbsOK && !switchOK:
			// S F S is a switch-side reporting gap, not a money movement.
			if npciOK {
				for _, r := range open {
					r.classify(false, domain.StatusException)
					r.exception = domain.ExcSwitchUpdate
				}
				continue
			}
			fallthrough
		case cbsOK && switchOK && !npciOK:
			for _, r := range open {
				r.classify(false, domain.StatusException)
				r.exception = domain.ExcRemitterRefund
				r.needsTTUM = true
				r.ttumType = domain.TTUMReversal
			}
		case !cbsOK && npciOK:
			for _, r := range open {
				r.classify(false, domain.StatusException)
				r.exception = domain.ExcBeneficiaryRecovery
				r.needsTTUM = true
				r.ttumType = domain.TTUMReversal
			}
		default:
			// F S F and F F F: no recovery action, leave to the final
			// classification rule.
			for _, r := range open {
				r.classify(false, domain.StatusUnknown)
			}
		}
	}
}

func parseCutOff(hhmm string) int {
	parts := strings.SplitN(hhmm, ":", 2)
	if len(parts) != 2 {
		return -1
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return -1
	}
	return h*60 + m
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// inCutOffWindow reports whether a minute-of-day falls in the cut-off
// window. The window opens at the cut-off boundary, spans windowMinutes and
// wraps past midnight; a non-positive window runs to end of day.
func inCutOffWindow(minute, cutOff, windowMinutes int) bool {
	if cutOff < 0 {
		return false
	}
	if windowMinutes <= 0 {
		return minute >= cutOff
	}
	end := cutOff + windowMinutes
	if end >= 24*60 {
		return minute >= cutOff || minute < end-24*60
	}
	return minute >= cutOff && minute < end
}

// daysApart compares calendar dates, ignoring time of day.
func daysApart(a, b time.Time, n int) bool {
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	d := da.Sub(db)
	if d < 0 {
		d = -d
	}
	return d <= time.Duration(n)*24*time.Hour
}
