package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(nodesRegistered, remoteCallsLatency)
}

var (
	nodesRegistered = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "controller_nodes_registered",
			Help: "Nodes currently held in the controller registry.",
		},
	)

	remoteCallsLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "controller_remote_call_seconds",
			Help:    "Latency of controller calls to worker nodes.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"op", "success"}, // op: health|info|resources|train|job_status|cancel
	)
)

func SetNodesRegistered(n int) { nodesRegistered.Set(float64(n)) }

func ObserveRemoteCall(op string, d time.Duration, success bool) {
	remoteCallsLatency.WithLabelValues(norm(op), strconv.FormatBool(success)).Observe(d.Seconds())
}
