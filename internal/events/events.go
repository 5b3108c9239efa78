// Package events carries typed notifications from the call pipeline to any
// number of observers (UI stream, persistence) over channels.
package events

import (
	"time"

	"github.com/chadiek/callscreen/internal/models"
	"github.com/chadiek/callscreen/internal/phone"
)

// Event is anything published on a Bus.
type Event interface {
	Kind() string
}

// CallRinging is published when an incoming call reaches triage.
type CallRinging struct {
	CallID string       `json:"callId"`
	Number phone.Number `json:"number"`
	Known  bool         `json:"known"`
	Name   string       `json:"name,omitempty"`
}

// Classified carries a classification result for presentation.
type Classified struct {
	CallID string                      `json:"callId,omitempty"`
	Record models.ClassificationRecord `json:"record"`
	Cached bool                        `json:"cached"`
	// Fallback marks a degraded result produced after a classification error.
	Fallback bool `json:"fallback,omitempty"`
}

// ScreeningStarted is published when a screening session begins.
type ScreeningStarted struct {
	CallID    string       `json:"callId"`
	Number    phone.Number `json:"number"`
	Strategy  string       `json:"strategy"`
	StartedAt time.Time    `json:"startedAt"`
}

// StateChanged is published on every screening state transition.
type StateChanged struct {
	CallID string `json:"callId"`
	From   string `json:"from"`
	To     string `json:"to"`
}

// ScreeningCompleted carries the final (name, purpose, number) of a session.
type ScreeningCompleted struct {
	CallID        string       `json:"callId"`
	Number        phone.Number `json:"number"`
	Strategy      string       `json:"strategy"`
	State         string       `json:"state"`
	CallerName    string       `json:"callerName,omitempty"`
	CallerPurpose string       `json:"callerPurpose,omitempty"`
	HungUp        bool         `json:"hungUp"`
	Err           string       `json:"error,omitempty"`
}

// ArtifactUpdated is published whenever a recording artifact changes.
type ArtifactUpdated struct {
	Artifact models.RecordingArtifact `json:"artifact"`
}

func (CallRinging) Kind() string        { return "call_ringing" }
func (Classified) Kind() string         { return "classified" }
func (ScreeningStarted) Kind() string   { return "screening_started" }
func (StateChanged) Kind() string       { return "state_changed" }
func (ScreeningCompleted) Kind() string { return "screening_completed" }
func (ArtifactUpdated) Kind() string    { return "artifact_updated" }
