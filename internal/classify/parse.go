package classify

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

const (
	maxFallbackReason  = 200
	maxFallbackText    = 2000
	maxFallbackSummary = 200
)

// stripFences removes a markdown code fence (```json ... ```) around the
// payload, if present.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	start := strings.Index(s, "```")
	if start < 0 {
		return s
	}
	inner := s[start+3:]
	if nl := strings.IndexByte(inner, '\n'); nl >= 0 {
		// drop the language tag line ("json", "JSON", or empty)
		if tag := strings.TrimSpace(inner[:nl]); !strings.ContainsAny(tag, "{[") {
			inner = inner[nl+1:]
		}
	}
	if end := strings.Index(inner, "```"); end >= 0 {
		inner = inner[:end]
	}
	return strings.TrimSpace(inner)
}

// decodeJSON unmarshals s into v, repairing malformed JSON and cutting away
// surrounding prose when needed.
func decodeJSON(s string, v any) error {
	err := json.Unmarshal([]byte(s), v)
	if err == nil {
		return nil
	}
	if i, j := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}'); i >= 0 && j > i {
		if err2 := json.Unmarshal([]byte(s[i:j+1]), v); err2 == nil {
			return nil
		}
		s = s[i : j+1]
	}
	fixed, rerr := jsonrepair.JSONRepair(s)
	if rerr != nil {
		return err
	}
	return json.Unmarshal([]byte(fixed), v)
}

// flexFloat accepts a JSON number or a numeric string.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func parseClassification(raw string) Result {
	var p struct {
		IsSpam     *bool     `json:"isSpam"`
		Confidence flexFloat `json:"confidence"`
		Reason     string    `json:"reason"`
	}
	if err := decodeJSON(stripFences(raw), &p); err != nil || p.IsSpam == nil {
		return Result{Reason: truncate(raw, maxFallbackReason)}
	}
	return Result{
		IsSpam:     *p.IsSpam,
		Confidence: clamp01(float64(p.Confidence)),
		Reason:     strings.TrimSpace(p.Reason),
		Structured: true,
	}
}

func parseTranscription(raw string) Transcription {
	var p struct {
		Transcription  *string   `json:"transcription"`
		Summary        string    `json:"summary"`
		IsSpam         bool      `json:"isSpam"`
		SpamConfidence flexFloat `json:"spamConfidence"`
	}
	if err := decodeJSON(stripFences(raw), &p); err != nil || p.Transcription == nil {
		return Transcription{
			Text:    truncate(raw, maxFallbackText),
			Summary: truncate(raw, maxFallbackSummary),
		}
	}
	return Transcription{
		Text:           strings.TrimSpace(*p.Transcription),
		Summary:        strings.TrimSpace(p.Summary),
		IsSpam:         p.IsSpam,
		SpamConfidence: clamp01(float64(p.SpamConfidence)),
		Structured:     true,
	}
}
