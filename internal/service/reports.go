package service

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Asmith-M/UPI-Recon/internal/audit"
	"github.com/Asmith-M/UPI-Recon/internal/config"
	"github.com/Asmith-M/UPI-Recon/internal/domain"
	"github.com/Asmith-M/UPI-Recon/internal/store"
	"github.com/Asmith-M/UPI-Recon/pkg/apperrors"
	"github.com/Asmith-M/UPI-Recon/pkg/logger"
)

// ReportKinds are the downloadable report names. "all" bundles every other
// kind into one zip.
var ReportKinds = []string{
	"matched", "unmatched", "hanging", "ageing", "switch_update", "annexure", "all",
}

// ReportService renders the downloadable CSV reports and the TTUM artifact
// downloads. Downloading any TTUM artifact sets the run's download lock,
// which in turn blocks accounting rollbacks.
type ReportService struct {
	cfg   *config.Config
	store *store.RunStore
	trail *audit.Trail
	log   *logrus.Logger
}

func NewReportService(cfg *config.Config, st *store.RunStore, trail *audit.Trail) *ReportService {
	return &ReportService{cfg: cfg, store: st, trail: trail, log: logger.GetLogger()}
}

// Report renders one report kind for a run. Empty runID targets the latest
// run. Returns a suggested filename alongside the payload.
func (s *ReportService) Report(runID, kind string) (string, []byte, error) {
	runID, err := resolveRunID(s.store, runID)
	if err != nil {
		return "", nil, err
	}
	out, err := s.store.ReadReconOutput(runID)
	if err == store.ErrNotPresent {
		return "", nil, apperrors.State("run %s has not been reconciled yet", runID).
			WithSuggestion("run reconciliation before downloading reports")
	}
	if err != nil {
		return "", nil, err
	}

	switch strings.ReplaceAll(kind, "-", "_") {
	case "matched":
		data, err := statusReportCSV(out, map[domain.Status]bool{
			domain.StatusMatched:      true,
			domain.StatusForceMatched: true,
		})
		return runID + "_matched.csv", data, err
	case "unmatched":
		data, err := statusReportCSV(out, map[domain.Status]bool{
			domain.StatusPartialMatch:    true,
			domain.StatusPartialMismatch: true,
			domain.StatusMismatch:        true,
			domain.StatusOrphan:          true,
			domain.StatusException:       true,
		})
		return runID + "_unmatched.csv", data, err
	case "hanging":
		data, err := hangingReportCSV(out)
		return runID + "_hanging.csv", data, err
	case "ageing":
		data, err := s.ageingReportCSV(runID, out)
		return runID + "_ageing.csv", data, err
	case "switch_update":
		data, err := switchUpdateReportCSV(out)
		return runID + "_switch_update.csv", data, err
	case "annexure":
		data, err := os.ReadFile(filepath.Join(s.store.ReportsDir(runID), "annexure_iv.csv"))
		if os.IsNotExist(err) {
			return "", nil, apperrors.NotFound("run %s has no annexure report", runID)
		}
		if err != nil {
			return "", nil, apperrors.Wrap(err, apperrors.KindFatal, "reading annexure report")
		}
		return runID + "_annexure_iv.csv", data, nil
	case "all":
		data, err := s.allReportsZip(runID, out)
		return runID + "_reports.zip", data, err
	default:
		return "", nil, apperrors.Validation("unknown report kind %q", kind).
			WithSuggestion("use one of: " + strings.Join(ReportKinds, ", "))
	}
}

// DownloadTTUM returns the TTUM instruction artifacts in the requested
// format (csv, xlsx, or zip/merged for the full bundle) and sets the
// download lock for the run.
func (s *ReportService) DownloadTTUM(runID, format string) (string, []byte, error) {
	runID, err := resolveRunID(s.store, runID)
	if err != nil {
		return "", nil, err
	}
	ttumDir := s.store.TTUMOutputDir(runID)
	if _, err := os.Stat(ttumDir); os.IsNotExist(err) {
		return "", nil, apperrors.State("run %s has no TTUM artifacts yet", runID).
			WithSuggestion("run reconciliation before downloading TTUM files")
	}

	var name string
	var data []byte
	switch format {
	case "xlsx":
		data, err = os.ReadFile(filepath.Join(ttumDir, "ttum.xlsx"))
		if os.IsNotExist(err) {
			return "", nil, apperrors.NotFound("run %s has no TTUM workbook", runID)
		}
		if err != nil {
			return "", nil, apperrors.Wrap(err, apperrors.KindFatal, "reading TTUM workbook")
		}
		name = runID + "_ttum.xlsx"
	case "csv", "zip", "merged":
		data, err = zipDirectory(ttumDir, func(base string) bool {
			if format == "csv" {
				return strings.HasSuffix(base, ".csv")
			}
			return true
		})
		if err != nil {
			return "", nil, err
		}
		name = runID + "_ttum.zip"
	default:
		return "", nil, apperrors.Validation("unknown TTUM format %q", format).
			WithSuggestion("use csv, xlsx or zip")
	}

	if err := s.store.MarkDownloaded(runID, name); err != nil {
		return "", nil, err
	}
	if s.trail != nil {
		if _, err := s.trail.Record(domain.AuditUserAction, domain.AuditInfo, runID, "", map[string]interface{}{
			"operation": "ttum_download",
			"artifact":  name,
		}); err != nil {
			s.log.WithError(err).Warn("Audit record failed")
		}
	}
	return name, data, nil
}

var reportHeaders = []string{
	"RRN", "Status", "Exception", "CBS_Amount", "Switch_Amount", "NPCI_Amount",
	"CBS_Date", "Switch_Date", "NPCI_Date", "TTUM_Required", "TTUM_Type",
}

func statusReportCSV(out *domain.ReconOutput, include map[domain.Status]bool) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(reportHeaders); err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindFatal, "writing report header")
	}
	for _, rrn := range sortedRRNs(out) {
		rec := out.Records[rrn]
		if !include[rec.Status] {
			continue
		}
		if err := w.Write(reportRow(rec)); err != nil {
			return nil, apperrors.Wrap(err, apperrors.KindFatal, "writing report row")
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func hangingReportCSV(out *domain.ReconOutput) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"RRN", "Hanging_Reason", "Amount", "Date"}); err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindFatal, "writing report header")
	}
	for _, rrn := range sortedRRNs(out) {
		rec := out.Records[rrn]
		if rec.Status != domain.StatusHanging {
			continue
		}
		amount, date := "", ""
		if leg := rec.PrimaryLeg(); leg != nil {
			amount = leg.Amount.StringFixed(2)
			date = leg.Date.Format("2006-01-02")
		}
		if err := w.Write([]string{rrn, rec.HangingReason, amount, date}); err != nil {
			return nil, apperrors.Wrap(err, apperrors.KindFatal, "writing report row")
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// ageingReportCSV lists RRNs hanging in this run that were also hanging in
// each of the previous HangingWaitCycles runs. Those are final: the wait
// window has expired without the counterparty leg arriving.
func (s *ReportService) ageingReportCSV(runID string, out *domain.ReconOutput) ([]byte, error) {
	wait := s.cfg.Matching.HangingWaitCycles
	prior, err := s.store.PreviousRuns(runID, wait)
	if err != nil {
		return nil, err
	}

	stillHanging := map[string]int{}
	for _, rrn := range sortedRRNs(out) {
		if out.Records[rrn].Status == domain.StatusHanging {
			stillHanging[rrn] = 1
		}
	}
	for _, prev := range prior {
		hs, err := s.store.ReadHangingState(prev)
		if err == store.ErrNotPresent {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, rrn := range hs.Hanging {
			if _, ok := stillHanging[rrn]; ok {
				stillHanging[rrn]++
			}
		}
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"RRN", "Hanging_Reason", "Cycles_Hanging", "Final"}); err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindFatal, "writing report header")
	}
	rrns := make([]string, 0, len(stillHanging))
	for rrn := range stillHanging {
		rrns = append(rrns, rrn)
	}
	sort.Strings(rrns)
	for _, rrn := range rrns {
		cycles := stillHanging[rrn]
		final := cycles > wait
		row := []string{rrn, out.Records[rrn].HangingReason, fmt.Sprintf("%d", cycles), fmt.Sprintf("%t", final)}
		if err := w.Write(row); err != nil {
			return nil, apperrors.Wrap(err, apperrors.KindFatal, "writing report row")
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// switchUpdateReportCSV lists records the switch team must correct by hand;
// no TTUM is raised for these.
func switchUpdateReportCSV(out *domain.ReconOutput) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"RRN", "CBS_Amount", "Switch_Amount", "Switch_RC", "NPCI_Amount"}); err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindFatal, "writing report header")
	}
	for _, rrn := range sortedRRNs(out) {
		rec := out.Records[rrn]
		if rec.Exception != domain.ExcSwitchUpdate {
			continue
		}
		row := []string{rrn, legAmount(rec.CBS), legAmount(rec.Switch), legRC(rec.Switch), legAmount(rec.NPCI)}
		if err := w.Write(row); err != nil {
			return nil, apperrors.Wrap(err, apperrors.KindFatal, "writing report row")
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func (s *ReportService) allReportsZip(runID string, out *domain.ReconOutput) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, kind := range ReportKinds {
		if kind == "all" {
			continue
		}
		name, data, err := s.Report(runID, kind)
		if err != nil {
			// The annexure is absent when no TTUM rows exist; skip it.
			if apperrors.Is(err, apperrors.KindNotFound) {
				continue
			}
			zw.Close()
			return nil, err
		}
		f, err := zw.Create(name)
		if err != nil {
			zw.Close()
			return nil, apperrors.Wrap(err, apperrors.KindFatal, "creating zip entry %s", name)
		}
		if _, err := f.Write(data); err != nil {
			zw.Close()
			return nil, apperrors.Wrap(err, apperrors.KindFatal, "writing zip entry %s", name)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindFatal, "finalizing report zip")
	}
	return buf.Bytes(), nil
}

// zipDirectory bundles the files of dir (non-recursive) that pass the
// filter, in sorted name order.
func zipDirectory(dir string, include func(base string) bool) ([]byte, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindFatal, "reading %s", dir)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".tmp") || !include(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	if len(names) == 0 {
		return nil, apperrors.NotFound("no matching artifacts in %s", filepath.Base(dir))
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			zw.Close()
			return nil, apperrors.Wrap(err, apperrors.KindFatal, "reading %s", name)
		}
		f, err := zw.Create(name)
		if err != nil {
			zw.Close()
			return nil, apperrors.Wrap(err, apperrors.KindFatal, "creating zip entry %s", name)
		}
		if _, err := f.Write(data); err != nil {
			zw.Close()
			return nil, apperrors.Wrap(err, apperrors.KindFatal, "writing zip entry %s", name)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindFatal, "finalizing zip")
	}
	return buf.Bytes(), nil
}

func sortedRRNs(out *domain.ReconOutput) []string {
	rrns := make([]string, 0, len(out.Records))
	for rrn := range out.Records {
		rrns = append(rrns, rrn)
	}
	sort.Strings(rrns)
	return rrns
}

func reportRow(rec *domain.ReconRecord) []string {
	return []string{
		rec.RRN, string(rec.Status), string(rec.Exception),
		legAmount(rec.CBS), legAmount(rec.Switch), legAmount(rec.NPCI),
		legDate(rec.CBS), legDate(rec.Switch), legDate(rec.NPCI),
		fmt.Sprintf("%t", rec.NeedsTTUM), string(rec.TTUMType),
	}
}

func legAmount(leg *domain.SourceLeg) string {
	if leg == nil {
		return ""
	}
	return leg.Amount.StringFixed(2)
}

func legDate(leg *domain.SourceLeg) string {
	if leg == nil {
		return ""
	}
	return leg.Date.Format("2006-01-02")
}

func legRC(leg *domain.SourceLeg) string {
	if leg == nil {
		return ""
	}
	return leg.RC
}
