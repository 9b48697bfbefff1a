// Package metrics exposes Prometheus counters for on-chain activity and serves them over HTTP.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultPartial = "partial"
	ResultNoop    = "noop"
)

var (
	transactionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "transactions_total",
		Help: "Transactions submitted by this client, by operation and result.",
	}, []string{"op", "result"})

	registrationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registrations_total",
		Help: "Role registration attempts by final step.",
	}, []string{"result"})

	deploymentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "policy_deployments_total",
		Help: "Policy deploy-and-bind attempts by result.",
	}, []string{"result"})

	receiptWaitSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "receipt_wait_seconds",
		Help:    "Time spent waiting for transaction receipts.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	}, []string{"op"})
)

// collectors groups every metric of this package so a server can register them at once.
var collectors = multiCollector{transactionsTotal, registrationsTotal, deploymentsTotal, receiptWaitSeconds}

type multiCollector []prometheus.Collector

func (mc multiCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range mc {
		c.Describe(ch)
	}
}

func (mc multiCollector) Collect(ch chan<- prometheus.Metric) {
	for _, c := range mc {
		c.Collect(ch)
	}
}

// RecordTransaction counts one submitted transaction.
func RecordTransaction(op, result string) {
	transactionsTotal.WithLabelValues(op, result).Inc()
}

// RecordReceiptWait observes how long a receipt wait took.
func RecordReceiptWait(op string, d time.Duration) {
	receiptWaitSeconds.WithLabelValues(op).Observe(d.Seconds())
}

// RecordRegistration counts a finished registration.
func RecordRegistration(result string) {
	registrationsTotal.WithLabelValues(result).Inc()
}

// RecordDeployment counts a finished deployment.
func RecordDeployment(result string) {
	deploymentsTotal.WithLabelValues(result).Inc()
}

// MetricsServer serves the metrics registry on its own listener.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server. Metric names are prefixed with namespace.
func New(namespace, listenAddr string) (*MetricsServer, error) {
	reg := prometheus.NewRegistry()
	if err := prometheus.WrapRegistererWithPrefix(namespace+"_", reg).Register(collectors); err != nil {
		return nil, err
	}
	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	return &MetricsServer{
		srv: &http.Server{
			Addr:              listenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
