package model

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an enhancement job. Transitions only
// move forward: Uploaded -> Processing -> Completed or Failed. An explicit
// re-enhance restarts a terminal job from Processing.
type Status string

const (
	StatusUploaded   Status = "Uploaded"
	StatusProcessing Status = "Processing"
	StatusCompleted  Status = "Completed"
	StatusFailed     Status = "Failed"
)

// Valid reports whether s is one of the four known states.
func (s Status) Valid() bool {
	switch s {
	case StatusUploaded, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether a job in this state has finished processing.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed:
		return true
	case StatusUploaded, StatusProcessing:
		return false
	default:
		return false
	}
}

// EnhancementGrayscale is the label of the single transform variant the
// processor applies.
const EnhancementGrayscale = "Grayscale + Sharpening"

// ImageJob is one upload-to-enhancement lifecycle record. The ID joins the
// job table with the asset store; both the original and enhanced blobs are
// addressed by it.
type ImageJob struct {
	ID              uuid.UUID  `json:"id"`
	OriginalName    string     `json:"originalImageName"`
	MimeType        string     `json:"mimeType"`
	FileSize        int64      `json:"fileSize"`
	Status          Status     `json:"status"`
	EnhancementType string     `json:"enhancementType"`
	UploadedAt      time.Time  `json:"uploadDate"`
	EnhancedAt      *time.Time `json:"enhancementDate,omitempty"`
	ProcessingTime  *float64   `json:"processingTime,omitempty"` // seconds
}

// EnhancedName derives the download filename for the enhanced output:
// "enhanced_" plus the original name without its extension, always ".png"
// because the processor always encodes PNG.
func (j ImageJob) EnhancedName() string {
	stem := strings.TrimSuffix(j.OriginalName, filepath.Ext(j.OriginalName))
	return "enhanced_" + stem + ".png"
}
