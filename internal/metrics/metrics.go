// Package metrics holds the Prometheus instruments for document processing.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Processing counts document lifecycle outcomes.
type Processing struct {
	Completed prometheus.Counter
	Failed    prometheus.Counter
	Retried   prometheus.Counter
}

// NewProcessing creates and registers the processing counters.
func NewProcessing(reg prometheus.Registerer) (*Processing, error) {
	m := &Processing{
		Completed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "documents_processed_total",
			Help: "Total number of documents indexed successfully.",
		}),
		Failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "documents_failed_total",
			Help: "Total number of processing attempts that ended in failure.",
		}),
		Retried: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "documents_retried_total",
			Help: "Total number of documents re-queued by the retry sweep.",
		}),
	}

	for _, c := range []prometheus.Counter{m.Completed, m.Failed, m.Retried} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// NewProcessingUnregistered returns counters that are not attached to any
// registry. Useful in tests.
func NewProcessingUnregistered() *Processing {
	m, _ := NewProcessing(prometheus.NewRegistry())
	return m
}
