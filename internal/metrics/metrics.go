package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StudiesGenerated counts synthetic studies created, by modality.
	StudiesGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dicommaker_studies_generated_total",
		Help: "Number of synthetic studies generated",
	}, []string{"modality"})

	// InstancesStored counts instances written to the study store.
	InstancesStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dicommaker_instances_stored_total",
		Help: "Number of DICOM instances written to disk",
	})

	// Transmissions counts verify/send operations by operation and outcome.
	Transmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dicommaker_transmissions_total",
		Help: "Number of archive operations by outcome",
	}, []string{"operation", "outcome"})

	// InstancesSent counts C-STORE results by status class.
	InstancesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dicommaker_instances_sent_total",
		Help: "Number of C-STORE operations by result",
	}, []string{"result"})

	// TransmissionDuration observes verify/send latency.
	TransmissionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dicommaker_transmission_duration_seconds",
		Help:    "Duration of archive operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
)
