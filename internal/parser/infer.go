package parser

import (
	"path/filepath"
	"strings"

	"github.com/Asmith-M/UPI-Recon/internal/domain"
)

// InferSource guesses the originating system from filename tokens. The
// upload slot name wins when present; this is the fallback for loose
// files.
func InferSource(filename string) (domain.Source, bool) {
	name := strings.ToLower(filepath.Base(filename))
	switch {
	case strings.Contains(name, "cbs"):
		return domain.SourceCBS, true
	case strings.Contains(name, "switch"):
		return domain.SourceSwitch, true
	case strings.Contains(name, "ntsl"):
		return domain.SourceNTSL, true
	case strings.Contains(name, "npci"), strings.Contains(name, "national"):
		return domain.SourceNPCI, true
	}
	return "", false
}

// InferDirection guesses inward/outward from filename tokens, defaulting
// to inward when neither appears.
func InferDirection(filename string) domain.Direction {
	name := strings.ToLower(filepath.Base(filename))
	if strings.Contains(name, "outward") {
		return domain.DirectionOutward
	}
	return domain.DirectionInward
}

// SourceForSlot resolves an upload slot name to its source. Slots carry a
// direction suffix (cbs_inward, npci_outward); the leading token decides.
func SourceForSlot(slot string) (domain.Source, bool) {
	head := strings.ToLower(slot)
	if i := strings.IndexByte(head, '_'); i > 0 {
		head = head[:i]
	}
	switch head {
	case "cbs":
		return domain.SourceCBS, true
	case "switch":
		return domain.SourceSwitch, true
	case "npci":
		return domain.SourceNPCI, true
	case "ntsl":
		return domain.SourceNTSL, true
	}
	return "", false
}
