package store

import (
	"os"
	"path/filepath"
	"time"

	"github.com/Asmith-M/UPI-Recon/internal/domain"
	"github.com/Asmith-M/UPI-Recon/pkg/apperrors"
)

// Well-known artifact names under <output>/<run_id>/.
const (
	ReconOutputFile      = "recon_output.json"
	AccountingOutputFile = "accounting_output.json"
	SummaryFile          = "summary.json"
	HangingStateFile     = "hanging_state.json"
	DownloadMetaFile     = "download_meta.json"
	MetadataFile         = "metadata.json"
	reportsSubdir        = "reports"
	ttumSubdir           = "ttum"
)

func (s *RunStore) ReconOutputPath(runID string) string {
	return filepath.Join(s.OutputRunDir(runID), ReconOutputFile)
}

func (s *RunStore) AccountingOutputPath(runID string) string {
	return filepath.Join(s.OutputRunDir(runID), AccountingOutputFile)
}

func (s *RunStore) SummaryPath(runID string) string {
	return filepath.Join(s.OutputRunDir(runID), SummaryFile)
}

func (s *RunStore) HangingStatePath(runID string) string {
	return filepath.Join(s.OutputRunDir(runID), HangingStateFile)
}

func (s *RunStore) DownloadMetaPath(runID string) string {
	return filepath.Join(s.OutputRunDir(runID), DownloadMetaFile)
}

func (s *RunStore) MetadataPath(runID string) string {
	return filepath.Join(s.UploadRunDir(runID), MetadataFile)
}

func (s *RunStore) ReportsDir(runID string) string {
	return filepath.Join(s.OutputRunDir(runID), reportsSubdir)
}

func (s *RunStore) TTUMOutputDir(runID string) string {
	return filepath.Join(s.OutputRunDir(runID), ttumSubdir)
}

// ReadReconOutput loads and decodes recon_output.json, accepting both the
// UPI format and the legacy RRN-keyed map.
func (s *RunStore) ReadReconOutput(runID string) (*domain.ReconOutput, error) {
	data, err := os.ReadFile(s.ReconOutputPath(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotPresent
		}
		return nil, apperrors.Wrap(err, apperrors.KindFatal, "reading recon output for %s", runID)
	}
	out, err := domain.DecodeReconOutput(data)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindFatal, "decoding recon output for %s", runID)
	}
	if out.RunID == "" {
		out.RunID = runID
	}
	return out, nil
}

func (s *RunStore) WriteReconOutput(runID string, out *domain.ReconOutput) error {
	return s.WriteJSON(s.ReconOutputPath(runID), out)
}

func (s *RunStore) ReadAccountingOutput(runID string) (*domain.AccountingOutput, error) {
	var out domain.AccountingOutput
	if err := s.ReadJSON(s.AccountingOutputPath(runID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *RunStore) WriteAccountingOutput(runID string, out *domain.AccountingOutput) error {
	return s.WriteJSON(s.AccountingOutputPath(runID), out)
}

func (s *RunStore) ReadHangingState(runID string) (*domain.HangingState, error) {
	var hs domain.HangingState
	if err := s.ReadJSON(s.HangingStatePath(runID), &hs); err != nil {
		return nil, err
	}
	return &hs, nil
}

func (s *RunStore) WriteHangingState(runID string, rrns []string) error {
	return s.WriteJSON(s.HangingStatePath(runID), domain.HangingState{
		Hanging:     rrns,
		GeneratedAt: time.Now().UTC(),
	})
}

// ReadDownloadMeta returns the TTUM download lock; absence means not yet
// downloaded.
func (s *RunStore) ReadDownloadMeta(runID string) (*domain.DownloadMeta, error) {
	var meta domain.DownloadMeta
	err := s.ReadJSON(s.DownloadMetaPath(runID), &meta)
	if err == ErrNotPresent {
		return &domain.DownloadMeta{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

// MarkDownloaded sets the TTUM download lock for a run.
func (s *RunStore) MarkDownloaded(runID, artifact string) error {
	return s.WriteJSON(s.DownloadMetaPath(runID), domain.DownloadMeta{
		IsDownloaded: true,
		DownloadedAt: time.Now().UTC(),
		Artifact:     artifact,
	})
}

func (s *RunStore) ReadRunMeta(runID string) (*domain.Run, error) {
	var run domain.Run
	if err := s.ReadJSON(s.MetadataPath(runID), &run); err != nil {
		return nil, err
	}
	if run.RunID == "" {
		run.RunID = runID
	}
	return &run, nil
}

func (s *RunStore) WriteRunMeta(run *domain.Run) error {
	return s.WriteJSON(s.MetadataPath(run.RunID), run)
}
