// Package metrics exports ledger and HTTP metrics to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/KAsare1/Kodefx-capital/cmd/models"
	"github.com/KAsare1/Kodefx-capital/cmd/utils"
	"github.com/KAsare1/Kodefx-capital/service/ledger"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the service's collectors on a private Prometheus registry. It
// implements ledger.Observer.
type Registry struct {
	reg *prometheus.Registry

	entriesCreated  prometheus.Counter
	entriesResolved *prometheus.CounterVec
	deposits        prometheus.Counter
	depositedAmount prometheus.Counter
	ledgerErrors    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

var _ ledger.Observer = (*Registry)(nil)

func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		entriesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kodefx_ledger_entries_created_total",
			Help: "Daily ledger entries materialized",
		}),
		entriesResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kodefx_ledger_entries_resolved_total",
			Help: "Ledger entries resolved, by outcome",
		}, []string{"status"}),
		deposits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kodefx_ledger_deposits_total",
			Help: "Deposits applied to signal schedules",
		}),
		depositedAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kodefx_ledger_deposited_amount_total",
			Help: "Sum of all deposited amounts",
		}),
		ledgerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kodefx_ledger_errors_total",
			Help: "Failed ledger operations, by operation and error kind",
		}, []string{"op", "kind"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kodefx_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"route", "method", "status"}),
	}

	r.reg.MustRegister(
		r.entriesCreated,
		r.entriesResolved,
		r.deposits,
		r.depositedAmount,
		r.ledgerErrors,
		r.requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

func (r *Registry) EntriesCreated(n int) { r.entriesCreated.Add(float64(n)) }

func (r *Registry) EntryResolved(status models.EntryStatus) {
	r.entriesResolved.WithLabelValues(string(status)).Inc()
}

func (r *Registry) Deposited(amount float64) {
	r.deposits.Inc()
	r.depositedAmount.Add(amount)
}

func (r *Registry) OperationFailed(op string, err error) {
	r.ledgerErrors.WithLabelValues(op, ledger.KindName(err)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Middleware observes request latency labelled by the matched route template,
// so path parameters do not blow up cardinality.
func (r *Registry) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		sw := utils.NewStatusWriter(w)
		next.ServeHTTP(sw, req)

		route := "unmatched"
		if current := mux.CurrentRoute(req); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		r.requestDuration.
			WithLabelValues(route, req.Method, strconv.Itoa(sw.Status())).
			Observe(time.Since(start).Seconds())
	})
}
