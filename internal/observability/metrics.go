// Package observability wires tracing and the domain-level Prometheus
// collectors of the generation pipeline. HTTP-level collectors live with the
// middleware that feeds them.
//
// Label sets are small and fixed:
//   - outcome: ok | error (completions), clarify | generated | cached | error (turns),
//     started | stopped | error (deployments)
//   - result:  hit_memory | hit_store | miss | stale | error (cache lookups)
package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	// CompletionRequests counts completion calls by final outcome (after retries).
	CompletionRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "completion_requests_total",
			Help: "Chat-completion calls by final outcome.",
		},
		[]string{"outcome"},
	)

	// CompletionRetries counts individual retry sleeps.
	CompletionRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "completion_retries_total",
			Help: "Chat-completion attempts that failed transiently and were retried.",
		},
	)

	// CacheLookups counts response-cache lookups by tier/result.
	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "response_cache_lookups_total",
			Help: "Response cache lookups by result.",
		},
		[]string{"result"},
	)

	// ChatTurns counts chat turns by how they ended.
	ChatTurns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_turns_total",
			Help: "Chat turns by outcome.",
		},
		[]string{"outcome"},
	)

	// ChatTurnDuration observes end-to-end turn latency.
	ChatTurnDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chat_turn_duration_seconds",
			Help:    "End-to-end chat turn duration in seconds.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	// Deployments counts container lifecycle operations.
	Deployments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deployments_total",
			Help: "Container deployments by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(CompletionRequests, CompletionRetries, CacheLookups, ChatTurns, ChatTurnDuration, Deployments)
}
