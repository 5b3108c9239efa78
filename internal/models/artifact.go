package models

import (
	"time"

	"github.com/chadiek/callscreen/internal/phone"
)

// ArtifactStatus tracks transcription progress of a recording.
type ArtifactStatus string

const (
	ArtifactPending    ArtifactStatus = "pending"
	ArtifactProcessing ArtifactStatus = "processing"
	ArtifactCompleted  ArtifactStatus = "completed"
	ArtifactFailed     ArtifactStatus = "failed"
)

// RecordingArtifact is a stored screening recording plus the metadata
// derived from it.
type RecordingArtifact struct {
	ID             string         `gorm:"primaryKey;size:36" json:"id"`
	CallID         string         `gorm:"size:64;index" json:"callId"`
	PhoneNumber    phone.Number   `gorm:"size:32;index" json:"phoneNumber"`
	Strategy       string         `gorm:"size:16" json:"strategy"`
	Path           string         `gorm:"size:512" json:"path"`
	SizeBytes      int64          `json:"sizeBytes"`
	DurationMs     int64          `json:"durationMs"`
	CallerName     string         `gorm:"size:256" json:"callerName,omitempty"`
	CallerPurpose  string         `gorm:"type:text" json:"callerPurpose,omitempty"`
	Transcription  string         `gorm:"type:text" json:"transcription,omitempty"`
	Summary        string         `gorm:"type:text" json:"summary,omitempty"`
	IsSpam         bool           `json:"isSpam"`
	SpamConfidence float64        `json:"spamConfidence"`
	Status         ArtifactStatus `gorm:"size:16;index;default:pending" json:"status"`
	ErrorNote      string         `gorm:"type:text" json:"errorNote,omitempty"`
	ArchiveKey     string         `gorm:"size:512" json:"archiveKey,omitempty"`
	CreatedAt      time.Time      `gorm:"index" json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}
