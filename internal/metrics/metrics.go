package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vericloud/vericloud-fusion/internal/models"
)

const namespace = "vericloud_fusion"

const (
	// OutcomeSuccess labels fusions that produced a verdict.
	OutcomeSuccess = "success"
	// OutcomeInvalid labels requests rejected by validation.
	OutcomeInvalid = "invalid"
	// OutcomeUnavailable labels requests where required modalities failed.
	OutcomeUnavailable = "unavailable"
	// OutcomeError labels any other failure.
	OutcomeError = "error"
)

var (
	fusionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Fusion requests handled, partitioned by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	fusionDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "seconds",
			Help:      "End-to-end fusion latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 90},
		},
		[]string{"operation"},
	)

	modalityRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "modality_requests_total",
			Help:      "Calls to modality services, partitioned by modality and outcome.",
		},
		[]string{"modality", "outcome"},
	)

	modalityDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "modality_request_seconds",
			Help:      "Modality service latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 90},
		},
		[]string{"modality"},
	)

	verdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verdicts_total",
			Help:      "Final predictions returned, partitioned by label.",
		},
		[]string{"prediction"},
	)
)

// Register attaches fusion collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		fusionsTotal,
		fusionDurationSeconds,
		modalityRequestsTotal,
		modalityDurationSeconds,
		verdictsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveFusion records one fusion or score call.
func ObserveFusion(operation string, duration time.Duration, outcome string, prediction models.Label) {
	fusionsTotal.WithLabelValues(operation, outcome).Inc()
	fusionDurationSeconds.WithLabelValues(operation).Observe(nonNegative(duration).Seconds())
	if outcome == OutcomeSuccess && prediction != "" {
		verdictsTotal.WithLabelValues(string(prediction)).Inc()
	}
}

// ObserveModality records one modality service call.
func ObserveModality(m models.Modality, duration time.Duration, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	modalityRequestsTotal.WithLabelValues(string(m), outcome).Inc()
	modalityDurationSeconds.WithLabelValues(string(m)).Observe(nonNegative(duration).Seconds())
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
