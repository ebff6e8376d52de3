package store

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	writesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hearth_store_writes_total",
		Help: "Total persisted write operations.",
	})
	sweepsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hearth_store_sweeps_total",
		Help: "Rows removed by background sweeps, by kind.",
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(writesTotal)
	prometheus.MustRegister(sweepsTotal)
}

func recordWrite() {
	writesTotal.Inc()
}

// RecordSweep counts rows removed by a background sweep ("idempotency" or
// "activity").
func RecordSweep(kind string, n int) {
	if n <= 0 {
		return
	}
	sweepsTotal.WithLabelValues(kind).Add(float64(n))
}
