package metrics

import (
	"context"
	"net/http"

	"github.com/CytonicMC/Cyparty/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics to track
var (
	PartyCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cyparty_parties",
			Help: "Number of parties hosted by the registry",
		},
	)
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cyparty_requests_total",
			Help: "Total number of ledger requests received",
		},
		[]string{"op", "status"}, // status is "success" or the error code
	)
	RecordCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cyparty_records_total",
			Help: "Total number of ledger records emitted",
		},
		[]string{"kind"},
	)
)

// InitMetrics initializes and registers Prometheus metrics
func InitMetrics() {
	prometheus.MustRegister(PartyCount, RequestCount, RecordCount)
}

// ServeMetrics starts an HTTP server on addr to expose metrics
func ServeMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			panic(err)
		}
	}()
}

// ObserveRequest counts one handled request. An empty code is a success.
func ObserveRequest(op string, code string) {
	if code == "" {
		code = "success"
	}
	RequestCount.WithLabelValues(op, code).Inc()
}

// Records counts every record by kind and tracks the party gauge.
var Records events.Publisher = events.PublisherFunc(func(_ context.Context, rec events.Record) error {
	RecordCount.WithLabelValues(string(rec.Kind)).Inc()
	if rec.Kind == events.KindNewParty {
		PartyCount.Inc()
	}
	return nil
})
