package ingest

import "github.com/prometheus/client_golang/prometheus"

var (
	processTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hearth_ingest_ops_total",
		Help: "Queued mutations applied, by handler.",
	}, []string{"handler"})

	processErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hearth_ingest_errors_total",
		Help: "Queued mutations that failed, by handler.",
	}, []string{"handler"})

	processDur = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "hearth_ingest_apply_seconds",
		Help:    "Time spent applying one queued mutation.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	})
)

func init() {
	prometheus.MustRegister(processTotal, processErrors, processDur)
}

// ObserveQueueDepth registers a gauge tracking the depth of q.
func ObserveQueueDepth(q interface{ Len() int }) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "hearth_ingest_queue_depth",
		Help: "Items waiting in the mutation queue.",
	}, func() float64 { return float64(q.Len()) }))
}
