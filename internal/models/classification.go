package models

import (
	"time"

	"github.com/chadiek/callscreen/internal/phone"
)

// ClassificationRecord is a spam verdict for one phone number. Records are
// never mutated; a newer record for the same number supersedes the old one.
type ClassificationRecord struct {
	ID          uint         `gorm:"primaryKey;autoIncrement" json:"-"`
	PhoneNumber phone.Number `gorm:"size:32;index" json:"phoneNumber"`
	IsSpam      bool         `json:"isSpam"`
	Confidence  float64      `json:"confidence"`
	Reason      string       `gorm:"type:text" json:"reason"`
	ObservedAt  time.Time    `gorm:"index" json:"observedAt"`
}
