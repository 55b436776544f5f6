// Package metrics provides Prometheus metrics for the modmail bridge.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the bridge.
type Metrics struct {
	TicketsOpened     *prometheus.CounterVec
	TicketsClosed     *prometheus.CounterVec
	OpenTickets       prometheus.Gauge
	MessagesForwarded *prometheus.CounterVec
	RateLimited       prometheus.Counter
	BlockedAttempts   prometheus.Counter
	CloseDuration     prometheus.Histogram
	ExternalErrors    *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		TicketsOpened: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modmail_tickets_opened_total",
				Help: "Tickets opened, by category.",
			},
			[]string{"category"},
		),
		TicketsClosed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modmail_tickets_closed_total",
				Help: "Tickets closed, by close reason class.",
			},
			[]string{"kind"},
		),
		OpenTickets: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "modmail_open_tickets",
				Help: "Sessions currently open in the registry.",
			},
		),
		MessagesForwarded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modmail_messages_forwarded_total",
				Help: "Messages mirrored between DMs and ticket channels, by direction.",
			},
			[]string{"direction"},
		),
		RateLimited: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "modmail_rate_limited_total",
				Help: "Inbound DMs rejected by the rate limiter.",
			},
		),
		BlockedAttempts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "modmail_blocked_attempts_total",
				Help: "Ticket creation attempts by blacklisted users.",
			},
		),
		CloseDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "modmail_close_duration_seconds",
				Help:    "Open-to-close duration of tickets.",
				Buckets: prometheus.ExponentialBuckets(60, 4, 10),
			},
		),
		ExternalErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modmail_external_errors_total",
				Help: "Failed platform capability calls, by capability.",
			},
			[]string{"capability"},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.TicketsOpened,
		m.TicketsClosed,
		m.OpenTickets,
		m.MessagesForwarded,
		m.RateLimited,
		m.BlockedAttempts,
		m.CloseDuration,
		m.ExternalErrors,
	)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
