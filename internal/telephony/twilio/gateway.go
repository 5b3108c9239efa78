// Package twilio carries calls over Twilio Programmable Voice. Webhooks
// report call progress; live calls are steered by replacing their TwiML
// through the REST API.
package twilio

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/twilio/twilio-go/twiml"

	"github.com/chadiek/callscreen/internal/phone"
	"github.com/chadiek/callscreen/internal/telephony"
)

// ErrUnknownCall is returned for call IDs the gateway is not tracking.
var ErrUnknownCall = errors.New("twilio: unknown call")

const (
	defaultRecordingTimeout = 60 * time.Second
	holdSeconds             = "60"
)

// Handler receives incoming calls. It reports whether the pipeline takes
// the call over; otherwise the call is forwarded to Config.ForwardNumber.
type Handler interface {
	HandleCall(ev telephony.CallEvent, call telephony.Call) bool
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ev telephony.CallEvent, call telephony.Call) bool

func (f HandlerFunc) HandleCall(ev telephony.CallEvent, call telephony.Call) bool { return f(ev, call) }

type Config struct {
	AccountSID string
	AuthToken  string
	// BaseURL is the public origin Twilio reaches this service on. When
	// empty it is derived from the first webhook request.
	BaseURL       string
	ForwardNumber string
	// RecordingTimeout bounds how long StopRecording waits for the file.
	RecordingTimeout time.Duration
}

// callAPI is the subset of the Twilio REST API the gateway drives.
type callAPI interface {
	UpdateCall(sid string, params *twilioApi.UpdateCallParams) (*twilioApi.ApiV2010Call, error)
	CreateCallRecording(callSid string, params *twilioApi.CreateCallRecordingParams) (*twilioApi.ApiV2010CallRecording, error)
	UpdateCallRecording(callSid string, sid string, params *twilioApi.UpdateCallRecordingParams) (*twilioApi.ApiV2010CallRecording, error)
}

// waiter is a pending webhook continuation for one call.
type waiter struct {
	callSID string
	done    func()
	speech  chan string
}

type Gateway struct {
	config     Config
	api        callAPI
	httpClient *http.Client
	handler    Handler

	mu      sync.Mutex
	baseURL string
	calls   map[string]*Call
	waiters map[string]*waiter
	// finished keeps ended calls around for late recording callbacks.
	finished map[string]finishedCall
}

type finishedCall struct {
	call *Call
	at   time.Time
}

// New returns a Gateway using Twilio's REST API.
func New(config Config, handler Handler) *Gateway {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: config.AccountSID,
		Password: config.AuthToken,
	})
	return newGateway(config, client.Api, handler)
}

func newGateway(config Config, api callAPI, handler Handler) *Gateway {
	if config.RecordingTimeout <= 0 {
		config.RecordingTimeout = defaultRecordingTimeout
	}
	return &Gateway{
		config:     config,
		api:        api,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		handler:    handler,
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		calls:      make(map[string]*Call),
		waiters:    make(map[string]*waiter),
		finished:   make(map[string]finishedCall),
	}
}

// SetHandler replaces the incoming-call handler.
func (g *Gateway) SetHandler(h Handler) {
	g.mu.Lock()
	g.handler = h
	g.mu.Unlock()
}

// Call returns a tracked call.
func (g *Gateway) Call(id string) (*Call, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.calls[id]
	return c, ok
}

// Forward connects a tracked call to the configured forward number.
func (g *Gateway) Forward(ctx context.Context, id string) error {
	c, ok := g.Call(id)
	if !ok {
		return ErrUnknownCall
	}
	return c.Forward(ctx)
}

// Hangup terminates a tracked call.
func (g *Gateway) Hangup(ctx context.Context, id string) error {
	c, ok := g.Call(id)
	if !ok {
		return ErrUnknownCall
	}
	return c.Terminate(ctx)
}

func (g *Gateway) track(sid string, remote phone.Number) *Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.calls[sid]; ok {
		return c
	}
	c := newCall(g, sid, remote)
	g.calls[sid] = c
	return c
}

func (g *Gateway) forget(sid string) *Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	c := g.calls[sid]
	delete(g.calls, sid)
	for token, w := range g.waiters {
		if w.callSID == sid {
			delete(g.waiters, token)
		}
	}
	now := time.Now()
	for id, f := range g.finished {
		if now.Sub(f.at) > 2*g.config.RecordingTimeout {
			delete(g.finished, id)
		}
	}
	if c != nil {
		g.finished[sid] = finishedCall{call: c, at: now}
	}
	return c
}

// ended returns a recently ended call.
func (g *Gateway) ended(sid string) *Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.finished[sid].call
}

func (g *Gateway) addWaiter(sid string, done func(), speech chan string) string {
	token := uuid.NewString()
	g.mu.Lock()
	g.waiters[token] = &waiter{callSID: sid, done: done, speech: speech}
	g.mu.Unlock()
	return token
}

func (g *Gateway) takeWaiter(token string) (*waiter, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	w, ok := g.waiters[token]
	if ok {
		delete(g.waiters, token)
	}
	return w, ok
}

// url builds an absolute callback URL.
func (g *Gateway) url(path string) string {
	g.mu.Lock()
	base := g.baseURL
	g.mu.Unlock()
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

func (g *Gateway) promptURL(path string) string {
	return g.url("/prompts/" + strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
}

// learnBaseURL records the public origin from a webhook when none is configured.
func (g *Gateway) learnBaseURL(c echo.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.baseURL == "" {
		g.baseURL = BuildAbsoluteURL(c.Request(), "", "")
		log.Printf("[twilio] public base URL inferred as %s", g.baseURL)
	}
}

// BuildAbsoluteURL builds a public absolute URL for callbacks.
// Priority: configured base > X-Forwarded-* headers > request Host heuristic.
func BuildAbsoluteURL(r *http.Request, configured, path string) string {
	baseURL := strings.TrimRight(configured, "/")
	if baseURL == "" {
		proto := r.Header.Get("X-Forwarded-Proto")
		host := r.Header.Get("X-Forwarded-Host")
		if proto != "" && host != "" {
			baseURL = fmt.Sprintf("%s://%s", proto, host)
		}
	}
	if baseURL == "" {
		host := r.Host
		proto := "https"
		if strings.HasPrefix(host, "localhost:") || strings.HasPrefix(host, "127.0.0.1:") {
			proto = "http"
		}
		baseURL = fmt.Sprintf("%s://%s", proto, host)
	}
	if path == "" {
		return baseURL
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return baseURL + path
}

func (g *Gateway) holdTwiML() (string, error) {
	pause := &twiml.VoicePause{Length: holdSeconds}
	redirect := &twiml.VoiceRedirect{Url: g.url("/twilio/hold"), Method: "POST"}
	return twiml.Voice([]twiml.Element{pause, redirect})
}

func (g *Gateway) forwardTwiML() (string, error) {
	if g.config.ForwardNumber == "" {
		say := &twiml.VoiceSay{Message: "The person you are calling is unavailable. Goodbye."}
		return twiml.Voice([]twiml.Element{say, &twiml.VoiceHangup{}})
	}
	dial := &twiml.VoiceDial{Number: g.config.ForwardNumber}
	return twiml.Voice([]twiml.Element{dial})
}
