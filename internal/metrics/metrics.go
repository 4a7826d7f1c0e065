// Package metrics registers the service's Prometheus collectors. The /stats
// endpoint reports domain aggregates computed over the stores; these counters
// track the service itself.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	KeysIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keygate_keys_issued_total",
		Help: "Keys handed out, split by whether an active key was reused.",
	}, []string{"reused"})

	AdmissionDenied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keygate_admission_denied_total",
		Help: "Requests rejected by the admission heuristic.",
	})

	Validations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keygate_validations_total",
		Help: "Key validation attempts by result.",
	}, []string{"result"})

	VerificationsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keygate_verifications_started_total",
		Help: "Verification flows opened via the token endpoint.",
	})

	WebhookFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keygate_webhook_failures_total",
		Help: "Webhook deliveries that were dropped after failing.",
	})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
