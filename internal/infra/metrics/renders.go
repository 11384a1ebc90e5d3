package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(rendersSubmittedTotal, renderPollsLatencyMs, rendersFinishedTotal)
}

var rendersSubmittedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "renders_submitted_total",
		Help: "Render submissions by outcome (accepted/provider_error).",
	},
	[]string{"outcome"},
)

var renderPollsLatencyMs = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "render_polls_latency_ms",
		Help:    "Provider status poll latency distribution in milliseconds.",
		Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000},
	},
	[]string{"success"},
)

var rendersFinishedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "renders_finished_total",
		Help: "Renders observed reaching a terminal status, by status.",
	},
	[]string{"status"},
)

func IncSubmission(outcome string) {
	rendersSubmittedTotal.WithLabelValues(norm(outcome)).Inc()
}

func ObservePoll(d time.Duration, success bool) {
	renderPollsLatencyMs.WithLabelValues(strconv.FormatBool(success)).
		Observe(float64(d / time.Millisecond))
}

func IncFinished(status string) {
	rendersFinishedTotal.WithLabelValues(norm(status)).Inc()
}
