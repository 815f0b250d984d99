package service

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Asmith-M/UPI-Recon/internal/audit"
	"github.com/Asmith-M/UPI-Recon/internal/domain"
	"github.com/Asmith-M/UPI-Recon/internal/parser"
	"github.com/Asmith-M/UPI-Recon/internal/store"
	"github.com/Asmith-M/UPI-Recon/pkg/apperrors"
	"github.com/Asmith-M/UPI-Recon/pkg/logger"
)

// UploadFile is one file of an upload request, already read into memory.
type UploadFile struct {
	Slot     string
	Filename string
	Data     []byte
}

// UploadRequest carries one cycle's worth of source files.
type UploadRequest struct {
	CycleID    string
	RunDate    string
	Direction  domain.Direction
	CBSBalance string
	UploadedBy string
	Files      []UploadFile
}

// UploadResult identifies the created run.
type UploadResult struct {
	RunID      string            `json:"run_id"`
	SavedFiles map[string]string `json:"saved_files"`
}

// UploadService validates and persists source file uploads. An upload is
// atomic: any invalid file rejects the whole request, and a failed save
// removes everything already written.
type UploadService struct {
	store  *store.RunStore
	parser *parser.Parser
	trail  *audit.Trail
	log    *logrus.Logger
}

func NewUploadService(st *store.RunStore, p *parser.Parser, trail *audit.Trail) *UploadService {
	return &UploadService{store: st, parser: p, trail: trail, log: logger.GetLogger()}
}

// Upload validates every file, then persists them under a fresh run. On
// validation failure the rejections are returned alongside the error and
// nothing is written.
func (s *UploadService) Upload(req UploadRequest) (*UploadResult, []parser.Rejection, error) {
	if len(req.Files) == 0 {
		return nil, nil, apperrors.Validation("no files in upload").
			WithSuggestion("attach at least one source file")
	}
	if req.CycleID != "" && !domain.ValidUploadCycle(req.CycleID) {
		return nil, nil, apperrors.Validation("invalid cycle %q", req.CycleID).
			WithSuggestion("use a settlement cycle such as 1C..10C or 1A..4")
	}
	for _, f := range req.Files {
		if !validSlot(f.Slot) {
			return nil, nil, apperrors.Validation("unknown upload slot %q", f.Slot)
		}
	}

	var rejections []parser.Rejection
	for _, f := range req.Files {
		if rej := s.parser.Validate(f.Filename, f.Data); rej != nil {
			rejections = append(rejections, *rej)
		}
	}
	if len(rejections) > 0 {
		return nil, rejections, apperrors.Validation("%d of %d files failed validation", len(rejections), len(req.Files)).
			WithSuggestion("fix the listed files and upload again").
			WithDetail("invalid_files", rejections)
	}

	runID := domain.NewRunID(time.Now())
	lock := s.store.LockRun(runID)
	lock.Lock()
	defer lock.Unlock()

	saved := make(map[string]string, len(req.Files))
	for _, f := range req.Files {
		if _, err := s.store.SaveUploadedFile(runID, req.CycleID, req.Direction, f.Filename, f.Data); err != nil {
			// Partial uploads must not survive; remove whatever landed.
			if rmErr := s.store.RemoveRun(runID); rmErr != nil {
				s.log.WithError(rmErr).Error("Cleaning up partial upload")
			}
			return nil, nil, err
		}
		saved[f.Slot] = f.Filename
	}

	run := &domain.Run{
		RunID:         runID,
		CycleID:       req.CycleID,
		RunDate:       req.RunDate,
		Direction:     req.Direction,
		CBSBalance:    req.CBSBalance,
		UploadedFiles: saved,
		Status:        domain.RunUploaded,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.store.WriteRunMeta(run); err != nil {
		if rmErr := s.store.RemoveRun(runID); rmErr != nil {
			s.log.WithError(rmErr).Error("Cleaning up partial upload")
		}
		return nil, nil, err
	}

	s.audit(domain.AuditUserAction, domain.AuditInfo, runID, req.UploadedBy, map[string]interface{}{
		"operation": "upload",
		"files":     len(saved),
		"cycle_id":  req.CycleID,
	})
	s.log.WithFields(logrus.Fields{"run_id": runID, "files": len(saved)}).Info("Upload accepted")
	return &UploadResult{RunID: runID, SavedFiles: saved}, nil, nil
}

func (s *UploadService) audit(action domain.AuditAction, level domain.AuditLevel, runID, userID string, details map[string]interface{}) {
	if s.trail == nil {
		return
	}
	if _, err := s.trail.Record(action, level, runID, userID, details); err != nil {
		s.log.WithError(err).Warn("Audit record failed")
	}
}

func validSlot(slot string) bool {
	for _, s := range domain.UploadSlots {
		if s == slot {
			return true
		}
	}
	return false
}
