// Package metrics holds the prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "relay"

var (
	HubRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "hub_requests_total",
		Help:      "WebSub hub calls by operation and result.",
	}, []string{"op", "result"})

	WebhookDispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_dispatches_total",
		Help:      "Webhook deliveries by result.",
	}, []string{"result"})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Inbound hub callbacks by kind.",
	}, []string{"kind"})
)

// Result turns a success flag into a label value.
func Result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func Handler() http.Handler {
	return promhttp.Handler()
}
