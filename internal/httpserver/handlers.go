package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/chadiek/callscreen/internal/config"
	"github.com/chadiek/callscreen/internal/phone"
	"github.com/chadiek/callscreen/internal/store"
)

const heartbeatInterval = 15 * time.Second

type handlers struct {
	deps Deps
}

func errorJSON(c echo.Context, status int, err error) error {
	return c.JSON(status, map[string]string{"error": err.Error()})
}

func notFoundOr500(c echo.Context, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return errorJSON(c, http.StatusNotFound, err)
	}
	return errorJSON(c, http.StatusInternalServerError, err)
}

func (h *handlers) prompt(c echo.Context) error {
	path, err := h.deps.Prompts.Path(c.Request().Context(), c.Param("name"))
	if err != nil {
		return c.String(http.StatusNotFound, err.Error())
	}
	c.Response().Header().Set(echo.HeaderContentType, "audio/wav")
	return c.File(path)
}

// events streams bus events as server-sent events until the client leaves.
func (h *handlers) events(c echo.Context) error {
	ch, cancel := h.deps.Bus.Subscribe(64)
	defer cancel()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	writeSSE(w, "connected", map[string]string{"type": "connected"})
	w.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-heartbeat.C:
			writeSSE(w, "heartbeat", map[string]string{"timestamp": time.Now().UTC().Format(time.RFC3339)})
			w.Flush()
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			writeSSE(w, ev.Kind(), ev)
			w.Flush()
		}
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w *echo.Response, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}

func (h *handlers) listArtifacts(c echo.Context) error {
	limit := 50
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return errorJSON(c, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
		}
		limit = n
	}
	list, err := h.deps.Artifacts.List(c.Request().Context(), limit)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *handlers) getArtifact(c echo.Context) error {
	a, err := h.deps.Artifacts.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return notFoundOr500(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *handlers) artifactAudio(c echo.Context) error {
	a, err := h.deps.Artifacts.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return notFoundOr500(c, err)
	}
	c.Response().Header().Set(echo.HeaderContentType, "audio/wav")
	return c.File(a.Path)
}

func (h *handlers) deleteArtifact(c echo.Context) error {
	if err := h.deps.Artifacts.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return notFoundOr500(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type contactRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	DisplayName string `json:"displayName"`
}

func (h *handlers) listContacts(c echo.Context) error {
	list, err := h.deps.Contacts.List(c.Request().Context())
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *handlers) addContact(c echo.Context) error {
	var req contactRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, err)
	}
	n := phone.Normalize(req.PhoneNumber)
	if !n.Valid() {
		return errorJSON(c, http.StatusBadRequest, fmt.Errorf("invalid phone number %q", req.PhoneNumber))
	}
	if err := h.deps.Contacts.Add(c.Request().Context(), n, req.DisplayName); err != nil {
		return errorJSON(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"phoneNumber": n.String(), "displayName": req.DisplayName})
}

func (h *handlers) removeContact(c echo.Context) error {
	if err := h.deps.Contacts.Remove(c.Request().Context(), phone.Normalize(c.Param("number"))); err != nil {
		return notFoundOr500(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) forwardCall(c echo.Context) error {
	if err := h.deps.Calls.Forward(c.Request().Context(), c.Param("id")); err != nil {
		return errorJSON(c, http.StatusConflict, err)
	}
	return c.NoContent(http.StatusAccepted)
}

func (h *handlers) hangupCall(c echo.Context) error {
	if err := h.deps.Calls.Hangup(c.Request().Context(), c.Param("id")); err != nil {
		return errorJSON(c, http.StatusConflict, err)
	}
	return c.NoContent(http.StatusAccepted)
}

func (h *handlers) classify(c echo.Context) error {
	n := phone.Normalize(c.Param("number"))
	if !n.Valid() {
		return errorJSON(c, http.StatusBadRequest, fmt.Errorf("invalid phone number %q", c.Param("number")))
	}
	return c.JSON(http.StatusOK, h.deps.Classifier.Classify(c.Request().Context(), "", n))
}

func (h *handlers) getSettings(c echo.Context) error {
	return c.JSON(http.StatusOK, h.deps.Settings.Current())
}

func (h *handlers) putSettings(c echo.Context) error {
	var s config.Settings
	if err := json.NewDecoder(c.Request().Body).Decode(&s); err != nil {
		return errorJSON(c, http.StatusBadRequest, err)
	}
	if err := h.deps.Settings.Save(s); err != nil {
		return errorJSON(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, h.deps.Settings.Current())
}
