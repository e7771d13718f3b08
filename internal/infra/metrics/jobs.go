package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		trainingJobsAccepted,
		trainingJobsRejected,
		trainingJobsFinished,
		trainingJobsRunning,
		trainingJobDuration,
		trainingProgressUpdates,
		workerQueueDepth,
	)
}

var (
	trainingJobsAccepted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "training_jobs_accepted_total",
			Help: "Training jobs accepted by POST /train.",
		},
	)

	trainingJobsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "training_jobs_rejected_total",
			Help: "Training submissions rejected before execution, by reason.",
		},
		[]string{"reason"}, // invalid|duplicate|queue_full|rate_limited
	)

	trainingJobsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "training_jobs_finished_total",
			Help: "Training jobs that reached a terminal state, by status.",
		},
		[]string{"status"}, // completed|error|cancelled
	)

	trainingJobsRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "training_jobs_running",
			Help: "Training scripts currently executing.",
		},
	)

	trainingJobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "training_job_duration_seconds",
			Help:    "Wall time of training scripts by terminal status.",
			Buckets: []float64{0.1, 1, 10, 60, 300, 900, 1800, 3600, 7200, 21600},
		},
		[]string{"status"},
	)

	trainingProgressUpdates = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "training_progress_updates_total",
			Help: "Calls to update_progress made by training scripts.",
		},
	)

	workerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_queue_depth",
			Help: "Jobs waiting for a free pool slot.",
		},
	)
)

func IncJobAccepted() { trainingJobsAccepted.Inc() }

func IncJobRejected(reason string) {
	trainingJobsRejected.WithLabelValues(norm(reason)).Inc()
}

func ObserveJobFinished(status string, d time.Duration) {
	trainingJobsFinished.WithLabelValues(norm(status)).Inc()
	trainingJobDuration.WithLabelValues(norm(status)).Observe(d.Seconds())
}

func IncJobsRunning() { trainingJobsRunning.Inc() }
func DecJobsRunning() { trainingJobsRunning.Dec() }

func IncProgressUpdate() { trainingProgressUpdates.Inc() }

func SetQueueDepth(n int) { workerQueueDepth.Set(float64(n)) }
