// Package metrics defines Prometheus collectors for access decisions, stream creation and fan-out.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "streams"

var (
	// AccessDenied counts access control denials by operation.
	AccessDenied = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "access_denied_total",
		Help:      "Number of denied access checks.",
	}, []string{"op"})

	// StreamsCreated counts streams created by get-or-create, by visibility.
	StreamsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "streams_created_total",
		Help:      "Number of streams created.",
	}, []string{"visibility"})

	// FanoutRecipients observes the number of active recipients of a message.
	FanoutRecipients = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "fanout_recipients",
		Help:      "Number of active recipients computed for a message.",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
	}, []string{"recipient_type"})

	// NotifyEvents counts notification events by kind and outcome.
	NotifyEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notify_events_total",
		Help:      "Number of notification events by kind and result.",
	}, []string{"kind", "result"})
)

var registerOnce sync.Once

// Register adds all collectors to the registerer. Safe to call more than once.
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(AccessDenied, StreamsCreated, FanoutRecipients, NotifyEvents)
	})
}

// Handler registers collectors with the default registry and returns the HTTP handler serving them.
func Handler() http.Handler {
	Register(prometheus.DefaultRegisterer)
	return promhttp.Handler()
}
