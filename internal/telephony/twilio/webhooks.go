package twilio

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/chadiek/callscreen/internal/middleware"
	"github.com/chadiek/callscreen/internal/phone"
	"github.com/chadiek/callscreen/internal/telephony"
)

// RegisterHandlers mounts the Twilio webhooks on e.
func (g *Gateway) RegisterHandlers(e *echo.Echo, mw ...echo.MiddlewareFunc) {
	e.POST("/twilio/voice", g.handleVoice, mw...)
	e.POST("/twilio/status", g.handleStatus, mw...)
	e.POST("/twilio/resume", g.handleResume, mw...)
	e.POST("/twilio/gather", g.handleGather, mw...)
	e.POST("/twilio/hold", g.handleHold, mw...)
	e.POST("/twilio/recording-status", g.handleRecordingStatus, mw...)
}

// twilioParams returns the verified form set by the signature middleware,
// or the raw form when the route is mounted without it.
func twilioParams(c echo.Context) map[string]string {
	if params, ok := c.Get(middleware.ParamsKey).(map[string]string); ok {
		return params
	}
	params := make(map[string]string)
	form, err := c.FormParams()
	if err != nil {
		return params
	}
	for key, values := range form {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	return params
}

func respondTwiML(c echo.Context, doc string, err error) error {
	if err != nil {
		return c.String(http.StatusInternalServerError, "failed to build TwiML")
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/xml")
	return c.String(http.StatusOK, doc)
}

func (g *Gateway) handleVoice(c echo.Context) error {
	params := twilioParams(c)
	callSID := params["CallSid"]
	from := params["From"]
	if callSID == "" {
		return c.String(http.StatusBadRequest, "missing CallSid")
	}
	g.learnBaseURL(c)

	log.Printf("[twilio] call from %s, CallSID: %s", from, callSID)
	call := g.track(callSID, phone.Normalize(from))

	direction := telephony.Inbound
	if params["Direction"] != "" && params["Direction"] != "inbound" {
		direction = telephony.Outbound
	}
	ev := telephony.CallEvent{
		CallID:    callSID,
		Direction: direction,
		Remote:    from,
		State:     telephony.StateRinging,
		At:        time.Now(),
	}

	g.mu.Lock()
	h := g.handler
	g.mu.Unlock()
	if h != nil && h.HandleCall(ev, call) {
		doc, err := g.holdTwiML()
		return respondTwiML(c, doc, err)
	}
	doc, err := g.forwardTwiML()
	return respondTwiML(c, doc, err)
}

func (g *Gateway) handleStatus(c echo.Context) error {
	params := twilioParams(c)
	callSID := params["CallSid"]
	status := params["CallStatus"]
	log.Printf("[twilio] status %s for CallSID: %s", status, callSID)

	switch status {
	case "completed", "busy", "failed", "no-answer", "canceled":
		if call := g.forget(callSID); call != nil {
			call.markEnded()
		}
	case "in-progress":
		if call, ok := g.Call(callSID); ok {
			_ = call.Accept(c.Request().Context())
		}
	}
	return c.NoContent(http.StatusNoContent)
}

func (g *Gateway) handleResume(c echo.Context) error {
	if w, ok := g.takeWaiter(c.QueryParam("token")); ok && w.done != nil {
		go w.done()
	}
	doc, err := g.holdTwiML()
	return respondTwiML(c, doc, err)
}

func (g *Gateway) handleGather(c echo.Context) error {
	params := twilioParams(c)
	if w, ok := g.takeWaiter(c.QueryParam("token")); ok && w.speech != nil {
		select {
		case w.speech <- params["SpeechResult"]:
		default:
		}
	}
	doc, err := g.holdTwiML()
	return respondTwiML(c, doc, err)
}

func (g *Gateway) handleHold(c echo.Context) error {
	doc, err := g.holdTwiML()
	return respondTwiML(c, doc, err)
}

func (g *Gateway) handleRecordingStatus(c echo.Context) error {
	params := twilioParams(c)
	callSID := params["CallSid"]
	status := params["RecordingStatus"]
	recordingURL := params["RecordingUrl"]
	log.Printf("[twilio] recording status: %s, SID: %s", status, params["RecordingSid"])

	if status != "completed" || recordingURL == "" {
		return c.String(http.StatusOK, "OK")
	}

	g.mu.Lock()
	call, ok := g.calls[callSID]
	g.mu.Unlock()
	if !ok {
		// The status callback for a hangup may arrive first.
		call = g.ended(callSID)
	}
	if call == nil {
		log.Printf("[twilio] recording for unknown call %s", callSID)
		return c.String(http.StatusOK, "OK")
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		call.recordingReady(ctx, recordingURL)
	}()
	return c.String(http.StatusOK, "OK")
}

// download fetches a recording as WAV and writes it to path.
func (g *Gateway) download(ctx context.Context, recordingURL, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, recordingURL+".wav", nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(g.config.AccountSID, g.config.AuthToken)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download recording: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyPreview, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("failed to download recording, status %d: %s", resp.StatusCode, string(bodyPreview))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+"-*.part")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to read recording: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
