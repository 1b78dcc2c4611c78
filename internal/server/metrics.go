package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	chatRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metachat_chat_requests_total",
			Help: "Total chat requests by route and status.",
		},
		[]string{"route", "status"},
	)

	chatRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "metachat_chat_request_duration_seconds",
			Help:    "End-to-end chat request duration by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	activeStreams = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "metachat_active_chat_streams",
			Help: "Currently open websocket chat streams.",
		},
	)
)

func init() {
	prometheus.MustRegister(chatRequestsTotal)
	prometheus.MustRegister(chatRequestDuration)
	prometheus.MustRegister(activeStreams)
}
