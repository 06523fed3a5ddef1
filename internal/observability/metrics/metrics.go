package metrics

import "github.com/prometheus/client_golang/prometheus"

// TriageMetrics exposes counters/histograms for chat turns and rule changes.
type TriageMetrics struct {
	turnsTotal        *prometheus.CounterVec
	turnLatency       *prometheus.HistogramVec
	unverifiedRoutes  prometheus.Counter
	tokensTotal       *prometheus.CounterVec
	ruleSavesTotal    *prometheus.CounterVec
	rejectedRuleSets  prometheus.Counter
	rejectedTurnTotal prometheus.Counter
}

func NewTriageMetrics(reg prometheus.Registerer) *TriageMetrics {
	m := &TriageMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "legal_triage",
			Subsystem: "chat",
			Name:      "turns_total",
			Help:      "Chat turns by outcome (routed, fallback, clarifying, failed)",
		}, []string{"outcome", "mode"}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "legal_triage",
			Subsystem: "chat",
			Name:      "turn_latency_seconds",
			Help:      "Latency of a chat turn including inference",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		}, []string{"mode"}),
		unverifiedRoutes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "legal_triage",
			Subsystem: "chat",
			Name:      "unverified_routes_total",
			Help:      "Routing replies naming an assignee absent from the rule set",
		}),
		tokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "legal_triage",
			Subsystem: "inference",
			Name:      "tokens_total",
			Help:      "Tokens reported by the inference provider",
		}, []string{"direction"}),
		ruleSavesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "legal_triage",
			Subsystem: "rules",
			Name:      "saves_total",
			Help:      "Rule set replacements by backend and status",
		}, []string{"backend", "status"}),
		rejectedRuleSets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "legal_triage",
			Subsystem: "rules",
			Name:      "rejected_total",
			Help:      "Rule sets rejected by validation",
		}),
		rejectedTurnTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "legal_triage",
			Subsystem: "chat",
			Name:      "concurrent_turns_rejected_total",
			Help:      "Turns rejected because another turn held the session",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.turnLatency, m.unverifiedRoutes, m.tokensTotal,
		m.ruleSavesTotal, m.rejectedRuleSets, m.rejectedTurnTotal)
	return m
}

func streamLabel(streamed bool) string {
	if streamed {
		return "stream"
	}
	return "whole"
}

// ObserveTurn records a finished turn. outcome is "failed" for turns that
// produced no assistant message.
func (m *TriageMetrics) ObserveTurn(outcome string, streamed bool, seconds float64) {
	if m == nil {
		return
	}
	mode := streamLabel(streamed)
	m.turnsTotal.WithLabelValues(outcome, mode).Inc()
	m.turnLatency.WithLabelValues(mode).Observe(seconds)
}

func (m *TriageMetrics) ObserveUnverifiedRoute() {
	if m == nil {
		return
	}
	m.unverifiedRoutes.Inc()
}

func (m *TriageMetrics) ObserveTokens(input, output int32) {
	if m == nil {
		return
	}
	if input > 0 {
		m.tokensTotal.WithLabelValues("input").Add(float64(input))
	}
	if output > 0 {
		m.tokensTotal.WithLabelValues("output").Add(float64(output))
	}
}

func (m *TriageMetrics) ObserveRuleSave(backend string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ruleSavesTotal.WithLabelValues(backend, status).Inc()
}

func (m *TriageMetrics) ObserveRuleRejection() {
	if m == nil {
		return
	}
	m.rejectedRuleSets.Inc()
}

func (m *TriageMetrics) ObserveConcurrentTurn() {
	if m == nil {
		return
	}
	m.rejectedTurnTotal.Inc()
}
