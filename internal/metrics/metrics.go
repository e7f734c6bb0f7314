package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AlertsEnqueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alertd_alerts_enqueued_total",
			Help: "Alerts accepted onto the dispatch queue.",
		},
	)
	AlertsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertd_alerts_dropped_total",
			Help: "Alerts dropped because the dispatch queue was full, by level.",
		},
		[]string{"level"},
	)
	AlertsSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertd_alerts_suppressed_total",
			Help: "Alerts suppressed by the decision engine, by reason.",
		},
		[]string{"reason"},
	)
	AlertsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertd_alerts_delivered_total",
			Help: "Alerts processed after an allow decision, by outcome (sent or failed).",
		},
		[]string{"outcome"},
	)
	ChannelSendTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertd_channel_send_total",
			Help: "Channel send attempts by channel and status.",
		},
		[]string{"channel", "status"},
	)
	ChannelSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "alertd_channel_send_duration_seconds",
			Help:    "Duration of a channel send, including chunking and fan-out.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"channel"},
	)
	StatePersistErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alertd_state_persist_errors_total",
			Help: "Failed writes of the suppression state file.",
		},
	)
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "alertd_queue_depth",
			Help: "Alerts currently waiting in the dispatch queue.",
		},
	)
)

// Status returns the label value for a send result
func Status(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}
