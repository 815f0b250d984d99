package service

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Asmith-M/UPI-Recon/internal/audit"
	"github.com/Asmith-M/UPI-Recon/internal/config"
	"github.com/Asmith-M/UPI-Recon/internal/domain"
	"github.com/Asmith-M/UPI-Recon/internal/matcher"
	"github.com/Asmith-M/UPI-Recon/internal/parser"
	"github.com/Asmith-M/UPI-Recon/internal/settlement"
	"github.com/Asmith-M/UPI-Recon/internal/store"
	"github.com/Asmith-M/UPI-Recon/pkg/apperrors"
	"github.com/Asmith-M/UPI-Recon/pkg/logger"
)

// ReconService drives the full pipeline for one run: parse, match,
// classify, generate vouchers and TTUM artifacts, and persist everything
// atomically.
type ReconService struct {
	cfg    *config.Config
	store  *store.RunStore
	parser *parser.Parser
	trail  *audit.Trail
	log    *logrus.Logger
}

func NewReconService(cfg *config.Config, st *store.RunStore, p *parser.Parser, trail *audit.Trail) *ReconService {
	return &ReconService{cfg: cfg, store: st, parser: p, trail: trail, log: logger.GetLogger()}
}

// Reconcile runs the pipeline. An empty runID targets the latest run.
func (s *ReconService) Reconcile(runID string) (*domain.ReconOutput, error) {
	runID, err := resolveRunID(s.store, runID)
	if err != nil {
		return nil, err
	}

	lock := s.store.LockRun(runID)
	lock.Lock()
	defer lock.Unlock()

	run, err := s.store.ReadRunMeta(runID)
	if err == store.ErrNotPresent {
		run = &domain.Run{RunID: runID}
	} else if err != nil {
		return nil, err
	}

	records, upiPath, actions, err := s.loadRecords(runID, run)
	if err != nil {
		return nil, err
	}

	engine := matcher.NewEngine(s.cfg.Matching, s.cfg.GL)
	out, err := engine.Reconcile(matcher.Input{
		Records:   records,
		CycleID:   run.CycleID,
		Direction: run.Direction,
		UPIPath:   upiPath,
		NextCycle: &nextRunLookup{store: s.store, runID: runID},
	})
	if err != nil {
		s.audit(domain.AuditReconEvent, domain.AuditError, runID, map[string]interface{}{"error": err.Error()})
		return nil, err
	}
	out.RunID = runID
	out.GeneratedAt = time.Now().UTC()

	if err := s.persistOutputs(runID, out, actions); err != nil {
		return nil, err
	}

	run.Status = domain.RunReconciled
	if err := s.store.WriteRunMeta(run); err != nil {
		s.log.WithError(err).Warn("Updating run metadata")
	}

	s.audit(domain.AuditReconEvent, domain.AuditInfo, runID, map[string]interface{}{
		"operation": "reconcile",
		"total":     out.Summary.TotalRRNs,
		"matched":   out.Summary.MatchedCount,
	})
	return out, nil
}

// loadRecords parses every input file of the run into normalized records,
// resolving source and direction from the upload slot first and the
// filename second. The adjustment slot carries issuer actions, not
// transactions.
func (s *ReconService) loadRecords(runID string, run *domain.Run) ([]domain.Record, bool, map[string]settlement.IssuerAction, error) {
	files, err := s.store.ListRunFiles(runID)
	if err == store.ErrNotPresent {
		return nil, false, nil, apperrors.NotFound("run %s has no uploaded files", runID)
	}
	if err != nil {
		return nil, false, nil, err
	}

	slotByFile := make(map[string]string)
	for slot, name := range run.UploadedFiles {
		slotByFile[name] = slot
	}

	var records []domain.Record
	actions := map[string]settlement.IssuerAction{}
	upiPath := false

	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, false, nil, apperrors.Wrap(err, apperrors.KindFatal, "reading %s", path)
		}
		name := filepath.Base(path)
		slot := slotByFile[name]

		if slot == "adjustment" || strings.Contains(strings.ToLower(name), "adjustment") {
			parseIssuerActions(data, actions)
			continue
		}

		source, ok := parser.SourceForSlot(slot)
		if !ok {
			if source, ok = parser.InferSource(name); !ok {
				s.log.WithField("file", name).Warn("Could not infer source, skipping file")
				continue
			}
		}
		direction := run.Direction
		if direction == "" {
			direction = parser.InferDirection(name)
		}

		res, err := s.parser.Parse(name, data, source, direction, run.CycleID)
		if err != nil {
			return nil, false, nil, err
		}
		records = append(records, res.Records...)
		if res.UPIIndicators {
			upiPath = true
		}
	}

	if len(records) == 0 {
		return nil, false, nil, apperrors.Validation("run %s contains no usable transaction rows", runID).
			WithSuggestion("check that the uploaded files carry RRN, Amount and Tran_Date columns")
	}
	return records, upiPath, actions, nil
}

// persistOutputs writes every artifact of the run: recon output, hanging
// state, summary, human-readable report, adjustments, accounting output
// and the TTUM instruction files.
func (s *ReconService) persistOutputs(runID string, out *domain.ReconOutput, actions map[string]settlement.IssuerAction) error {
	if err := s.store.WriteReconOutput(runID, out); err != nil {
		return err
	}

	var hanging []string
	for rrn, rec := range out.Records {
		if rec.Status == domain.StatusHanging {
			hanging = append(hanging, rrn)
		}
	}
	sort.Strings(hanging)
	if err := s.store.WriteHangingState(runID, hanging); err != nil {
		return err
	}
	if err := s.store.WriteJSON(s.store.SummaryPath(runID), out.Summary); err != nil {
		return err
	}

	reportsDir := s.store.ReportsDir(runID)
	if err := s.store.WriteFileAtomic(filepath.Join(reportsDir, "report.txt"), renderReportText(out)); err != nil {
		return err
	}
	adjustments, err := renderAdjustmentsCSV(out)
	if err != nil {
		return err
	}
	if err := s.store.WriteFileAtomic(filepath.Join(reportsDir, "adjustments.csv"), adjustments); err != nil {
		return err
	}

	// Accounting: vouchers are generated here and posted through the
	// explicit posting endpoint.
	vouchers := settlement.NewVoucherGenerator(s.cfg.GL, s.cfg.Matching.AmountTolerance)
	acct := vouchers.Generate(runID, out)
	if err := s.store.WriteAccountingOutput(runID, acct); err != nil {
		return err
	}
	s.audit(domain.AuditGLOp, domain.AuditInfo, runID, map[string]interface{}{
		"vouchers": acct.Summary.TotalVouchers,
	})

	// TTUM instruction files.
	ttumGen := settlement.NewTTUMGenerator(s.cfg.GL, actions)
	categorized := ttumGen.Categorize(out)
	ttumDir := s.store.TTUMOutputDir(runID)
	for _, cat := range domain.TTUMCategories {
		records := categorized[cat]
		if len(records) == 0 {
			continue
		}
		data, err := settlement.EncodeCategoryCSV(records)
		if err != nil {
			return err
		}
		name := fmt.Sprintf("%s_ttum.csv", strings.ToLower(string(cat)))
		if err := s.store.WriteFileAtomic(filepath.Join(ttumDir, name), data); err != nil {
			return err
		}
	}
	annexure, err := settlement.EncodeAnnexureCSV(settlement.BuildAnnexure(categorized, time.Now().UTC()))
	if err != nil {
		return err
	}
	if err := s.store.WriteFileAtomic(filepath.Join(reportsDir, "annexure_iv.csv"), annexure); err != nil {
		return err
	}
	xlsx, err := settlement.EncodeTTUMXLSX(categorized)
	if err != nil {
		return err
	}
	return s.store.WriteFileAtomic(filepath.Join(ttumDir, "ttum.xlsx"), xlsx)
}

// nextRunLookup resolves the chronologically next run's NPCI response codes
// for the cross-cycle hanging refinement.
type nextRunLookup struct {
	store *store.RunStore
	runID string

	loaded bool
	codes  map[string]string
}

func (l *nextRunLookup) NPCIResponseCode(rrn string) (string, bool) {
	if !l.loaded {
		l.loaded = true
		l.codes = map[string]string{}
		next, err := l.store.NextRun(l.runID)
		if err != nil {
			return "", false
		}
		out, err := l.store.ReadReconOutput(next)
		if err != nil {
			return "", false
		}
		for id, rec := range out.Records {
			if rec.NPCI != nil {
				l.codes[id] = rec.NPCI.RC
			}
		}
	}
	rc, ok := l.codes[rrn]
	return rc, ok
}

func renderReportText(out *domain.ReconOutput) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "UPI Reconciliation Report\n")
	fmt.Fprintf(&b, "Run: %s\n", out.RunID)
	fmt.Fprintf(&b, "Generated: %s\n\n", out.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Total RRNs:   %d\n", out.Summary.TotalRRNs)
	fmt.Fprintf(&b, "Matched:      %d\n", out.Summary.MatchedCount)
	fmt.Fprintf(&b, "Unmatched:    %d\n", out.Summary.UnmatchedCount)
	fmt.Fprintf(&b, "TTUM needed:  %d\n", out.Summary.TTUMRequired)
	fmt.Fprintf(&b, "Inflow:       %s\n", out.Summary.Inflow.StringFixed(2))
	fmt.Fprintf(&b, "Outflow:      %s\n\n", out.Summary.Outflow.StringFixed(2))

	statuses := make([]string, 0, len(out.Summary.Breakdown))
	for st := range out.Summary.Breakdown {
		statuses = append(statuses, string(st))
	}
	sort.Strings(statuses)
	fmt.Fprintf(&b, "Breakdown:\n")
	for _, st := range statuses {
		fmt.Fprintf(&b, "  %-18s %d\n", st, out.Summary.Breakdown[domain.Status(st)])
	}
	return []byte(b.String())
}

func renderAdjustmentsCSV(out *domain.ReconOutput) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"RRN", "Source", "Amount", "Exception", "TTUM_Required", "TTUM_Type"}); err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindFatal, "writing adjustments header")
	}
	for _, e := range out.Exceptions {
		row := []string{
			e.RRN, string(e.Source), e.Amount.StringFixed(2),
			string(e.ExceptionType), fmt.Sprintf("%t", e.TTUMRequired), string(e.TTUMType),
		}
		if err := w.Write(row); err != nil {
			return nil, apperrors.Wrap(err, apperrors.KindFatal, "writing adjustments row")
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// parseIssuerActions reads the adjustment file: a CSV with at least an RRN
// column and an action column, optionally a credit GL override.
func parseIssuerActions(data []byte, into map[string]settlement.IssuerAction) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil || len(rows) < 2 {
		return
	}
	rrnIdx, actionIdx, glIdx := -1, -1, -1
	for i, col := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "rrn":
			rrnIdx = i
		case "action", "issuer_action":
			actionIdx = i
		case "credit_gl", "gl_credit_account":
			glIdx = i
		}
	}
	if rrnIdx < 0 || actionIdx < 0 {
		return
	}
	for _, row := range rows[1:] {
		if rrnIdx >= len(row) || actionIdx >= len(row) {
			continue
		}
		rrn := strings.TrimSpace(row[rrnIdx])
		if rrn == "" {
			continue
		}
		action := settlement.IssuerAction{Action: strings.ToLower(strings.TrimSpace(row[actionIdx]))}
		if glIdx >= 0 && glIdx < len(row) {
			action.CreditGL = strings.TrimSpace(row[glIdx])
		}
		into[rrn] = action
	}
}

func (s *ReconService) audit(action domain.AuditAction, level domain.AuditLevel, runID string, details map[string]interface{}) {
	if s.trail == nil {
		return
	}
	if _, err := s.trail.Record(action, level, runID, "", details); err != nil {
		s.log.WithError(err).Warn("Audit record failed")
	}
}
