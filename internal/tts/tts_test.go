package tts

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestWriteWAVHeader(t *testing.T) {
	var buf bytes.Buffer
	pcm := make([]byte, 1600)
	if err := WriteWAV(&buf, pcm, 8000); err != nil {
		t.Fatal(err)
	}
	b := buf.Bytes()
	if len(b) != 44+len(pcm) {
		t.Fatalf("len = %d", len(b))
	}
	if string(b[0:4]) != "RIFF" || string(b[8:16]) != "WAVEfmt " || string(b[36:40]) != "data" {
		t.Fatalf("bad header %q", b[:44])
	}
	if rate := binary.LittleEndian.Uint32(b[24:28]); rate != 8000 {
		t.Fatalf("sample rate = %d", rate)
	}
	if byteRate := binary.LittleEndian.Uint32(b[28:32]); byteRate != 16000 {
		t.Fatalf("byte rate = %d", byteRate)
	}
	if n := binary.LittleEndian.Uint32(b[40:44]); n != 1600 {
		t.Fatalf("data len = %d", n)
	}
}

func TestElevenLabsRender(t *testing.T) {
	var gotText, gotFormat, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/text-to-speech/voice-1/stream") {
			http.NotFound(w, r)
			return
		}
		gotKey = r.Header.Get("xi-api-key")
		gotFormat = r.URL.Query().Get("output_format")
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotText, _ = body["text"].(string)
		_, _ = w.Write(bytes.Repeat([]byte{1, 0}, 5000))
	}))
	defer srv.Close()

	c := NewElevenLabsClient("key", "voice-1")
	c.BaseURL = srv.URL
	var out bytes.Buffer
	if err := c.Render(context.Background(), "Hello caller", &out); err != nil {
		t.Fatal(err)
	}
	if gotKey != "key" || gotFormat != "pcm_8000" || gotText != "Hello caller" {
		t.Fatalf("request = key %q format %q text %q", gotKey, gotFormat, gotText)
	}
	if out.Len() != 44+10000 {
		t.Fatalf("wav size = %d", out.Len())
	}
}

func TestElevenLabsRenderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusPaymentRequired)
	}))
	defer srv.Close()

	c := NewElevenLabsClient("key", "voice-1")
	c.BaseURL = srv.URL
	var out bytes.Buffer
	err := c.Render(context.Background(), "hi", &out)
	if err == nil || !strings.Contains(err.Error(), "status=402") {
		t.Fatalf("err = %v", err)
	}
	if out.Len() != 0 {
		t.Fatal("partial output written on error")
	}
}

func TestElevenLabsMissingKey(t *testing.T) {
	var out bytes.Buffer
	if err := NewElevenLabsClient("", "").Render(context.Background(), "hi", &out); err == nil {
		t.Fatal("expected error without credentials")
	}
}

func TestDeepgramRenderNoKey(t *testing.T) {
	d := NewDeepgramClient("", "")
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	var out bytes.Buffer
	if err := d.Render(ctx, "hello", &out); err == nil {
		t.Fatalf("expected error when api key missing")
	}
}

func TestWaitIdle(t *testing.T) {
	var last atomic.Int64
	last.Store(time.Now().Add(-time.Second).UnixNano())
	start := time.Now()
	waitIdle(context.Background(), &last, 100*time.Millisecond, 5*time.Second)
	if d := time.Since(start); d > time.Second {
		t.Fatalf("idle stream waited %s", d)
	}

	var none atomic.Int64
	start = time.Now()
	waitIdle(context.Background(), &none, 10*time.Millisecond, 150*time.Millisecond)
	if d := time.Since(start); d < 150*time.Millisecond {
		t.Fatalf("returned after %s before any audio", d)
	}
}
