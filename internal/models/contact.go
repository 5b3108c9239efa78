package models

import (
	"time"

	"github.com/chadiek/callscreen/internal/phone"
)

// Contact is a trusted directory entry.
type Contact struct {
	PhoneNumber phone.Number `gorm:"primaryKey;size:32" json:"phoneNumber"`
	DisplayName string       `gorm:"size:256" json:"displayName"`
	CreatedAt   time.Time    `json:"createdAt"`
}
