package storage

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Per-backend I/O counters. A serving layer scrapes these through the
// default registry; tests read them directly to check retry behaviour.
var (
	readsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pyramid_storage_reads_total",
		Help: "Number of storage read operations, by backend type.",
	}, []string{"type"})

	readRetriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pyramid_storage_read_retries_total",
		Help: "Number of read attempts retried after a transient error.",
	}, []string{"type"})

	writesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pyramid_storage_writes_total",
		Help: "Number of storage write operations, by backend type.",
	}, []string{"type"})

	writeRetriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pyramid_storage_write_retries_total",
		Help: "Number of object flushes retried after a backend error.",
	}, []string{"type"})
)

func init() {
	prometheus.MustRegister(readsTotal, readRetriesTotal, writesTotal, writeRetriesTotal)
}

// ReadRetries returns the retry counter for a backend type, for tests and
// health endpoints.
func ReadRetries(t ContextType) prometheus.Counter {
	return readRetriesTotal.WithLabelValues(t.String())
}
