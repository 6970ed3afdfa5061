package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pass label values.
const (
	passForward  = "forward"
	passBackward = "backward"
)

var (
	invocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ctc_invocations_total",
		Help: "Total number of CTC operator calls",
	}, []string{"backend", "pass"})

	duration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ctc_duration_seconds",
		Help:    "Duration of CTC operator calls",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
	}, []string{"backend", "pass"})

	infeasibleExamples = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ctc_infeasible_examples_total",
		Help: "Total number of examples whose target cannot be aligned to their input",
	})

	validationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ctc_validation_errors_total",
		Help: "Total number of rejected CTC calls",
	}, []string{"kind"})

	fallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ctc_device_fallbacks_total",
		Help: "Total number of calls rerouted to the CPU backend",
	}, []string{"device", "reason"})
)
