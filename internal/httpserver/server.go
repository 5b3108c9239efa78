// Package httpserver exposes health, metrics, the live event stream and
// the recording/contact/settings API over Echo.
package httpserver

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chadiek/callscreen/internal/config"
	"github.com/chadiek/callscreen/internal/events"
	"github.com/chadiek/callscreen/internal/models"
	"github.com/chadiek/callscreen/internal/phone"
)

// Artifacts manages stored recordings.
type Artifacts interface {
	List(ctx context.Context, limit int) ([]models.RecordingArtifact, error)
	Get(ctx context.Context, id string) (models.RecordingArtifact, error)
	Delete(ctx context.Context, id string) error
}

// Contacts manages the trusted directory.
type Contacts interface {
	Add(ctx context.Context, number phone.Number, name string) error
	Remove(ctx context.Context, number phone.Number) error
	List(ctx context.Context) ([]models.Contact, error)
}

// CallControl acts on live calls after screening.
type CallControl interface {
	Forward(ctx context.Context, callID string) error
	Hangup(ctx context.Context, callID string) error
}

// Classifier looks up or computes a number's classification.
type Classifier interface {
	Classify(ctx context.Context, callID string, number phone.Number) models.ClassificationRecord
}

// Prompts resolves prompt names to rendered files.
type Prompts interface {
	Path(ctx context.Context, name string) (string, error)
}

// SettingsStore reads and writes runtime settings.
type SettingsStore interface {
	Current() config.Settings
	Save(s config.Settings) error
}

// Webhooks mounts telephony callbacks.
type Webhooks interface {
	RegisterHandlers(e *echo.Echo, mw ...echo.MiddlewareFunc)
}

// Deps wires the server. Nil collaborators leave their routes unmounted.
type Deps struct {
	AuthPassword string
	Bus          *events.Bus
	Artifacts    Artifacts
	Contacts     Contacts
	Calls        CallControl
	Classifier   Classifier
	Prompts      Prompts
	Settings     SettingsStore
	Webhooks     Webhooks
	// WebhookAuth verifies telephony callbacks.
	WebhookAuth echo.MiddlewareFunc
}

// New creates a configured Echo server instance.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	h := &handlers{deps: d}
	if d.Prompts != nil {
		e.GET("/prompts/:name", h.prompt)
	}
	if d.Webhooks != nil {
		var mw []echo.MiddlewareFunc
		if d.WebhookAuth != nil {
			mw = append(mw, d.WebhookAuth)
		}
		d.Webhooks.RegisterHandlers(e, mw...)
	}

	api := e.Group("/api", apiAuth(d.AuthPassword))
	if d.Bus != nil {
		api.GET("/events", h.events)
	}
	if d.Artifacts != nil {
		api.GET("/artifacts", h.listArtifacts)
		api.GET("/artifacts/:id", h.getArtifact)
		api.GET("/artifacts/:id/audio", h.artifactAudio)
		api.DELETE("/artifacts/:id", h.deleteArtifact)
	}
	if d.Contacts != nil {
		api.GET("/contacts", h.listContacts)
		api.POST("/contacts", h.addContact)
		api.DELETE("/contacts/:number", h.removeContact)
	}
	if d.Calls != nil {
		api.POST("/calls/:id/forward", h.forwardCall)
		api.POST("/calls/:id/hangup", h.hangupCall)
	}
	if d.Classifier != nil {
		api.GET("/classify/:number", h.classify)
	}
	if d.Settings != nil {
		api.GET("/settings", h.getSettings)
		api.PUT("/settings", h.putSettings)
	}
	return e
}
