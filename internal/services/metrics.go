package services

import "github.com/prometheus/client_golang/prometheus"

// Outcome label values.
const (
	outcomeApplied = "applied"
	outcomeNoop    = "noop"
	outcomeError   = "error"
)

var (
	// transitions counts call lifecycle transitions by action and outcome.
	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "call_lifecycle_transitions_total",
			Help: "Call lifecycle transitions by action (create, end, transfer, waiting, attend, hold) and outcome.",
		},
		[]string{"action", "outcome"},
	)

	// webhooksProcessed counts inbound provider webhooks by type and outcome.
	webhooksProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "call_webhooks_total",
			Help: "Inbound call webhooks by type and outcome.",
		},
		[]string{"type", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(transitions, webhooksProcessed)
}
