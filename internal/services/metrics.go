package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// demandesCreated counts new demandes by origin (portal|assistant).
	demandesCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plancher_demandes_created_total",
			Help: "Demandes created, by origin.",
		},
		[]string{"origin"},
	)

	// quotesRendered counts generated quote PDFs by outcome (ok|error).
	quotesRendered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plancher_quotes_rendered_total",
			Help: "Quote PDFs rendered, by outcome.",
		},
		[]string{"outcome"},
	)

	// signedUploads counts signed PDFs stored, by uploader role.
	signedUploads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plancher_signed_uploads_total",
			Help: "Signed PDFs stored, by uploader role.",
		},
		[]string{"role"},
	)

	// notificationsSent counts notification rows created, by sector.
	notificationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plancher_notifications_sent_total",
			Help: "Notification rows created by broadcasts, by sector.",
		},
		[]string{"sector"},
	)

	// assistantCalls counts assistant requests by kind and outcome.
	assistantCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plancher_assistant_calls_total",
			Help: "Assistant requests, by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(demandesCreated, quotesRendered, signedUploads, notificationsSent, assistantCalls)
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
