package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Asmith-M/UPI-Recon/internal/domain"
	"github.com/Asmith-M/UPI-Recon/pkg/apperrors"
	"github.com/Asmith-M/UPI-Recon/pkg/logger"
)

// ErrNotPresent is the typed "artifact does not exist" outcome. Readers of
// optional artifacts check for it with errors.Is.
var ErrNotPresent = apperrors.NotFound("artifact not present")

// RunStore owns the per-run directory hierarchy:
//
//	<upload>/<run_id>/cycle_<id>/<direction>/<files> for inputs and
//	<output>/<run_id>/... for recon, accounting, report and TTUM artifacts.
//
// Every write goes through write-temp-then-rename so readers only ever see
// complete files.
type RunStore struct {
	uploadDir string
	outputDir string

	mu       sync.Mutex
	runLocks map[string]*sync.Mutex

	// procMu serializes read-modify-write of shared files such as
	// rollback_history.json and proposal stores.
	procMu sync.Mutex
}

func NewRunStore(uploadDir, outputDir string) (*RunStore, error) {
	for _, dir := range []string{uploadDir, outputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperrors.Wrap(err, apperrors.KindFatal, "creating data directory %s", dir)
		}
	}
	return &RunStore{
		uploadDir: uploadDir,
		outputDir: outputDir,
		runLocks:  make(map[string]*sync.Mutex),
	}, nil
}

// LockRun returns the per-run mutex; no two pipeline operations may mutate
// the same run concurrently.
func (s *RunStore) LockRun(runID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runLocks[runID]; !ok {
		s.runLocks[runID] = &sync.Mutex{}
	}
	return s.runLocks[runID]
}

// ProcessLock returns the process-wide lock guarding shared JSON files.
func (s *RunStore) ProcessLock() *sync.Mutex { return &s.procMu }

func (s *RunStore) UploadRunDir(runID string) string {
	return filepath.Join(s.uploadDir, runID)
}

func (s *RunStore) OutputRunDir(runID string) string {
	return filepath.Join(s.outputDir, runID)
}

// CycleDir is the input directory for one cycle and direction of a run.
func (s *RunStore) CycleDir(runID, cycleID string, direction domain.Direction) string {
	dir := s.UploadRunDir(runID)
	if cycleID != "" {
		dir = filepath.Join(dir, "cycle_"+cycleID)
	}
	if direction != "" {
		dir = filepath.Join(dir, strings.ToLower(string(direction)))
	}
	return dir
}

func (s *RunStore) RollbackHistoryPath() string {
	return filepath.Join(s.outputDir, "rollback_history.json")
}

func (s *RunStore) ProposalsPath(runID string) string {
	return filepath.Join(s.outputDir, runID+"_proposals.json")
}

func (s *RunStore) RunExists(runID string) bool {
	_, err := os.Stat(s.UploadRunDir(runID))
	return err == nil
}

// SaveUploadedFile persists one uploaded file under the run's cycle
// directory, sanitizing path separators out of the client-supplied name.
func (s *RunStore) SaveUploadedFile(runID, cycleID string, direction domain.Direction, filename string, data []byte) (string, error) {
	clean := strings.NewReplacer("\\", "_", "/", "_").Replace(filename)
	dir := s.CycleDir(runID, cycleID, direction)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", apperrors.Wrap(err, apperrors.KindFatal, "creating run directory %s", dir)
	}
	target := filepath.Join(dir, clean)
	if err := s.WriteFileAtomic(target, data); err != nil {
		return "", err
	}
	return target, nil
}

// ListRunFiles returns every regular input file of a run, excluding
// metadata and .tmp sidecars left by interrupted writes.
func (s *RunStore) ListRunFiles(runID string) ([]string, error) {
	root := s.UploadRunDir(runID)
	if _, err := os.Stat(root); err != nil {
		return nil, ErrNotPresent
	}
	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || strings.HasSuffix(path, ".tmp") {
			return nil
		}
		if filepath.Base(path) == "metadata.json" {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindFatal, "walking run %s", runID)
	}
	sort.Strings(files)
	return files, nil
}

// ListRuns returns run identifiers in lexicographic order; the last element
// is the latest run.
func (s *RunStore) ListRuns() ([]string, error) {
	entries, err := os.ReadDir(s.uploadDir)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindFatal, "reading upload directory")
	}
	var runs []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), "RUN_") {
			runs = append(runs, e.Name())
		}
	}
	sort.Strings(runs)
	return runs, nil
}

// LatestRun returns the maximum run identifier, or ErrNotPresent when no
// run exists.
func (s *RunStore) LatestRun() (string, error) {
	runs, err := s.ListRuns()
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", ErrNotPresent
	}
	return runs[len(runs)-1], nil
}

// NextRun returns the run chronologically after runID, for the cross-cycle
// hanging refinement.
func (s *RunStore) NextRun(runID string) (string, error) {
	runs, err := s.ListRuns()
	if err != nil {
		return "", err
	}
	for _, r := range runs {
		if r > runID {
			return r, nil
		}
	}
	return "", ErrNotPresent
}

// PreviousRuns returns up to n runs immediately before runID, newest first.
func (s *RunStore) PreviousRuns(runID string, n int) ([]string, error) {
	runs, err := s.ListRuns()
	if err != nil {
		return nil, err
	}
	var prior []string
	for i := len(runs) - 1; i >= 0 && len(prior) < n; i-- {
		if runs[i] < runID {
			prior = append(prior, runs[i])
		}
	}
	return prior, nil
}

// WriteFileAtomic writes data to <target>.tmp and renames it over <target>.
func (s *RunStore) WriteFileAtomic(target string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return apperrors.Wrap(err, apperrors.KindFatal, "creating directory for %s", target)
	}
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return apperrors.Wrap(err, apperrors.KindFatal, "writing %s", tmp)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return apperrors.Wrap(err, apperrors.KindFatal, "renaming %s into place", tmp)
	}
	return nil
}

// WriteJSON marshals v and writes it atomically.
func (s *RunStore) WriteJSON(target string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindFatal, "marshalling %s", target)
	}
	return s.WriteFileAtomic(target, data)
}

// ReadJSON decodes target into v, returning ErrNotPresent when the file
// does not exist.
func (s *RunStore) ReadJSON(target string, v interface{}) error {
	data, err := os.ReadFile(target)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotPresent
		}
		return apperrors.Wrap(err, apperrors.KindFatal, "reading %s", target)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperrors.Wrap(err, apperrors.KindFatal, "decoding %s", target)
	}
	return nil
}

// RemoveOutputs deletes every output artifact of a run, normalizing file
// permissions first so read-only files (a Windows habit of downstream
// tools) do not block deletion.
func (s *RunStore) RemoveOutputs(runID string) error {
	dir := s.OutputRunDir(runID)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			os.Chmod(path, 0o644)
		}
		return nil
	})
	if err := os.RemoveAll(dir); err != nil {
		return apperrors.Wrap(err, apperrors.KindFatal, "removing outputs of %s", runID)
	}
	logger.GetLogger().WithField("run_id", runID).Info("Run outputs removed")
	return nil
}

// RemoveRun deletes both the uploaded inputs and outputs of a run.
func (s *RunStore) RemoveRun(runID string) error {
	if err := s.RemoveOutputs(runID); err != nil {
		return err
	}
	if err := os.RemoveAll(s.UploadRunDir(runID)); err != nil {
		return apperrors.Wrap(err, apperrors.KindFatal, "removing uploads of %s", runID)
	}
	return nil
}

// BackupFile copies src to a timestamped sibling and returns the backup
// path. Rollbacks call this before any mutation.
func (s *RunStore) BackupFile(src, prefix string) (string, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.KindFatal, "reading %s for backup", src)
	}
	backup := filepath.Join(filepath.Dir(src),
		fmt.Sprintf("%s_backup_%s.json", prefix, time.Now().Format("20060102_150405")))
	if err := s.WriteFileAtomic(backup, data); err != nil {
		return "", err
	}
	return backup, nil
}
