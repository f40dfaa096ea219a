package billing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// billing_webhook_events_total conta cada webhook recebido pelo resultado do processamento.
	webhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_webhook_events_total",
			Help: "Número de webhooks do Stripe por tipo e resultado.",
		},
		[]string{"type", "outcome"},
	)

	sessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_sessions_total",
			Help: "Sessões hospedadas (checkout/portal) por resultado.",
		},
		[]string{"kind", "result"},
	)
)

// ObserveWebhook registra o resultado de um webhook.
func ObserveWebhook(kind EventKind, outcome Outcome) {
	webhookEventsTotal.WithLabelValues(string(kind), string(outcome)).Inc()
}

// ObserveSession registra a tentativa de abrir uma sessão hospedada.
func ObserveSession(kind, result string) {
	sessionsTotal.WithLabelValues(kind, result).Inc()
}
