package httpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chadiek/callscreen/internal/config"
	"github.com/chadiek/callscreen/internal/events"
	"github.com/chadiek/callscreen/internal/models"
	"github.com/chadiek/callscreen/internal/phone"
	"github.com/chadiek/callscreen/internal/store"
)

type memArtifacts map[string]models.RecordingArtifact

func (m memArtifacts) List(ctx context.Context, limit int) ([]models.RecordingArtifact, error) {
	out := make([]models.RecordingArtifact, 0, len(m))
	for _, a := range m {
		out = append(out, a)
	}
	return out, nil
}

func (m memArtifacts) Get(ctx context.Context, id string) (models.RecordingArtifact, error) {
	a, ok := m[id]
	if !ok {
		return a, store.ErrNotFound
	}
	return a, nil
}

func (m memArtifacts) Delete(ctx context.Context, id string) error {
	if _, ok := m[id]; !ok {
		return store.ErrNotFound
	}
	delete(m, id)
	return nil
}

type memContacts map[phone.Number]string

func (m memContacts) Add(ctx context.Context, n phone.Number, name string) error {
	m[n] = name
	return nil
}

func (m memContacts) Remove(ctx context.Context, n phone.Number) error {
	if _, ok := m[n]; !ok {
		return store.ErrNotFound
	}
	delete(m, n)
	return nil
}

func (m memContacts) List(ctx context.Context) ([]models.Contact, error) {
	var out []models.Contact
	for n, name := range m {
		out = append(out, models.Contact{PhoneNumber: n, DisplayName: name})
	}
	return out, nil
}

type memSettings struct{ s config.Settings }

func (m *memSettings) Current() config.Settings { return config.StaticSettings(m.s).Current() }
func (m *memSettings) Save(s config.Settings) error {
	m.s = s
	return nil
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_Healthz(t *testing.T) {
	e := New(Deps{})
	if w := do(t, e, http.MethodGet, "/healthz", ""); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w := do(t, e, http.MethodGet, "/metrics", ""); w.Code != http.StatusOK {
		t.Fatalf("metrics status %d", w.Code)
	}
}

func TestAPIAuthOK(t *testing.T) {
	if !apiAuthOK(nil, "") {
		t.Fatalf("expected true when expected empty")
	}
	r := httptest.NewRequest(http.MethodGet, "/?password=secret", nil)
	if !apiAuthOK(r, "secret") {
		t.Fatalf("expected true with query password")
	}
	r2 := httptest.NewRequest(http.MethodGet, "/", nil)
	r2.Header.Set("X-Auth-Token", "tok")
	if !apiAuthOK(r2, "tok") {
		t.Fatalf("expected true with X-Auth-Token")
	}
	r3 := httptest.NewRequest(http.MethodGet, "/", nil)
	r3.Header.Set("Authorization", "bearer abc")
	if !apiAuthOK(r3, "abc") {
		t.Fatalf("expected true with lowercase bearer prefix")
	}
	r4 := httptest.NewRequest(http.MethodGet, "/?password=wrong", nil)
	if apiAuthOK(r4, "secret") {
		t.Fatalf("expected false with wrong query token")
	}
}

func TestAPI_Unauthorized(t *testing.T) {
	e := New(Deps{AuthPassword: "secret", Artifacts: memArtifacts{}})
	if w := do(t, e, http.MethodGet, "/api/artifacts", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if w := do(t, e, http.MethodGet, "/api/artifacts?password=secret", ""); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestArtifactsRoutes(t *testing.T) {
	dir := t.TempDir()
	audio := filepath.Join(dir, "a.wav")
	_ = os.WriteFile(audio, []byte("RIFF"), 0o644)
	arts := memArtifacts{"a1": {ID: "a1", Path: audio, Status: models.ArtifactCompleted}}
	e := New(Deps{Artifacts: arts})

	w := do(t, e, http.MethodGet, "/api/artifacts?limit=10", "")
	var list []models.RecordingArtifact
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil || len(list) != 1 {
		t.Fatalf("list = %s (%v)", w.Body.String(), err)
	}
	if w := do(t, e, http.MethodGet, "/api/artifacts?limit=x", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status %d", w.Code)
	}
	if w := do(t, e, http.MethodGet, "/api/artifacts/a1/audio", ""); w.Code != http.StatusOK || w.Body.String() != "RIFF" {
		t.Fatalf("audio = %d %q", w.Code, w.Body.String())
	}
	if w := do(t, e, http.MethodDelete, "/api/artifacts/a1", ""); w.Code != http.StatusNoContent {
		t.Fatalf("delete status %d", w.Code)
	}
	if w := do(t, e, http.MethodGet, "/api/artifacts/a1", ""); w.Code != http.StatusNotFound {
		t.Fatalf("get deleted status %d", w.Code)
	}
}

func TestContactsRoutes(t *testing.T) {
	contacts := memContacts{}
	e := New(Deps{Contacts: contacts})

	if w := do(t, e, http.MethodPost, "/api/contacts", `{"phoneNumber":"tel:+1 555 000 1111","displayName":"Mom"}`); w.Code != http.StatusCreated {
		t.Fatalf("add status %d: %s", w.Code, w.Body.String())
	}
	if contacts["+15550001111"] != "Mom" {
		t.Fatalf("contacts = %v", contacts)
	}
	if w := do(t, e, http.MethodPost, "/api/contacts", `{"phoneNumber":"abc"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("invalid add status %d", w.Code)
	}
	if w := do(t, e, http.MethodDelete, "/api/contacts/+15550001111", ""); w.Code != http.StatusNoContent {
		t.Fatalf("remove status %d", w.Code)
	}
	if w := do(t, e, http.MethodDelete, "/api/contacts/+15550001111", ""); w.Code != http.StatusNotFound {
		t.Fatalf("remove missing status %d", w.Code)
	}
}

func TestSettingsRoutes(t *testing.T) {
	s := &memSettings{}
	e := New(Deps{Settings: s})
	w := do(t, e, http.MethodPut, "/api/settings", `{"screening":true,"screeningMode":"voice","screeningDurationSeconds":5}`)
	if w.Code != http.StatusOK {
		t.Fatalf("put status %d", w.Code)
	}
	got := s.Current()
	if !got.Screening || got.Mode != config.ModeVoice || got.ScreeningDurationSeconds != 5 {
		t.Fatalf("settings = %+v", got)
	}
}

func TestEventStream(t *testing.T) {
	bus := events.NewBus()
	srv := httptest.NewServer(New(Deps{Bus: bus}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %s", ct)
	}

	sc := bufio.NewScanner(resp.Body)
	published := false
	for sc.Scan() {
		line := sc.Text()
		if line == "event: connected" && !published {
			// The subscription exists before the connected event is written.
			bus.Publish(events.CallRinging{CallID: "CA1", Number: "+15550001111"})
			published = true
			continue
		}
		if line == "event: call_ringing" {
			if !sc.Scan() || !strings.Contains(sc.Text(), `"callId":"CA1"`) {
				t.Fatalf("data = %s", sc.Text())
			}
			return
		}
	}
	t.Fatalf("stream ended without event: %v", sc.Err())
}
