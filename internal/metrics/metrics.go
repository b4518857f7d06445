// Package metrics exposes Prometheus metrics about the scale transitions driven by the sidecar.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "lazymc_k8s"

// Label values for scale requests.
const (
	DirectionUp   = "up"
	DirectionDown = "down"

	StatusSuccess = "success"
	StatusError   = "error"
)

// Outcomes of the scale-down confirmation wait.
const (
	OutcomeConfirmed = "confirmed"
	OutcomeTimeout   = "timeout"
	OutcomeError     = "error"
)

// Recorder records scale transitions. A nil *Recorder is valid and records nothing.
type Recorder struct {
	desiredReplicas      *prometheus.GaugeVec
	scaleRequests        *prometheus.CounterVec
	confirmationPolls    *prometheus.CounterVec
	confirmationDuration *prometheus.HistogramVec
}

// NewRecorder creates the sidecar's metrics and registers them with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		desiredReplicas: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "desired_replicas",
			Help:      "Replica count last requested for the managed deployment.",
		}, []string{"namespace", "deployment"}),
		scaleRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "scale_requests_total",
			Help:      "Scale requests sent to the API server.",
		}, []string{"namespace", "deployment", "direction", "status"}),
		confirmationPolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "scale_down_confirmation_polls_total",
			Help:      "Reads of the observed replica count while waiting for a scale-down.",
		}, []string{"namespace", "deployment"}),
		confirmationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "scale_down_confirmation_seconds",
			Help:      "Time spent waiting for a scale-down to be observed.",
			Buckets:   []float64{5, 10, 20, 30, 60, 90, 120},
		}, []string{"namespace", "deployment", "outcome"}),
	}
	reg.MustRegister(r.desiredReplicas, r.scaleRequests, r.confirmationPolls, r.confirmationDuration)
	return r
}

// ScaleRequest records a scale request and, if it succeeded, the requested count.
func (r *Recorder) ScaleRequest(namespace, deployment, direction string, replicas int32, err error) {
	if r == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	r.scaleRequests.WithLabelValues(namespace, deployment, direction, status).Inc()
	if err == nil {
		r.desiredReplicas.WithLabelValues(namespace, deployment).Set(float64(replicas))
	}
}

// ConfirmationPoll records one read of the observed replica count.
func (r *Recorder) ConfirmationPoll(namespace, deployment string) {
	if r == nil {
		return
	}
	r.confirmationPolls.WithLabelValues(namespace, deployment).Inc()
}

// ConfirmationFinished records how long the scale-down wait took and how it ended.
func (r *Recorder) ConfirmationFinished(namespace, deployment, outcome string, waited time.Duration) {
	if r == nil {
		return
	}
	r.confirmationDuration.WithLabelValues(namespace, deployment, outcome).Observe(waited.Seconds())
}

// Direction returns DirectionUp or DirectionDown for a move from current to target.
func Direction(current, target int32) string {
	if target > current {
		return DirectionUp
	}
	return DirectionDown
}
