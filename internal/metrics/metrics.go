// Package metrics holds the Prometheus collectors for the call pipeline.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// ClassificationRequests counts calls to the classification service by outcome.
	ClassificationRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "callscreen", Subsystem: "classify", Name: "requests_total", Help: "Classification service requests by operation and outcome."},
		[]string{"operation", "outcome"},
	)
	// RateLimitRetries counts backoff retries after a rate-limit response.
	RateLimitRetries = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "callscreen", Subsystem: "classify", Name: "rate_limit_retries_total", Help: "Retries performed after rate-limit responses."},
	)
	// CacheLookups counts classification cache lookups by result.
	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "callscreen", Subsystem: "cache", Name: "lookups_total", Help: "Classification cache lookups by result (hit, miss, expired)."},
		[]string{"result"},
	)
	// TriageDecisions counts decisions taken for incoming calls.
	TriageDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "callscreen", Subsystem: "triage", Name: "decisions_total", Help: "Triage decisions for incoming calls."},
		[]string{"decision"},
	)
	// ScreeningSessions counts finished screening sessions.
	ScreeningSessions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "callscreen", Subsystem: "screening", Name: "sessions_total", Help: "Finished screening sessions by strategy and outcome."},
		[]string{"strategy", "outcome"},
	)
	// Transcriptions counts recording transcription outcomes.
	Transcriptions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "callscreen", Subsystem: "recording", Name: "transcriptions_total", Help: "Recording transcriptions by outcome."},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		ClassificationRequests,
		RateLimitRetries,
		CacheLookups,
		TriageDecisions,
		ScreeningSessions,
		Transcriptions,
	)
}
