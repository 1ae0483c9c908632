// Package metrics exposes Prometheus collectors for HTTP traffic and wizard progress.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "orderflow"

// Registry owns the collectors. Each instance uses its own prometheus.Registry.
type Registry struct {
	reg *prometheus.Registry

	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	domainSearches *prometheus.CounterVec
	stepChanges    *prometheus.CounterVec
	orders         *prometheus.CounterVec
	paymentErrors  *prometheus.CounterVec
	orderValue     prometheus.Histogram
}

// New registers every collector on a fresh registry, including the Go and process collectors.
func New() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Registry{
		reg: reg,
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_ms",
			Help:      "Duration of HTTP requests in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 200, 400, 800, 1600, 3200, 6400},
		}, []string{"method", "route"}),
		domainSearches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "domain_searches_total",
			Help:      "Domain availability checks by kind and outcome.",
		}, []string{"kind", "outcome"}),
		stepChanges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wizard_step_transitions_total",
			Help:      "Wizard step transitions.",
		}, []string{"from", "to"}),
		orders: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_completed_total",
			Help:      "Completed orders by payment method.",
		}, []string{"method"}),
		paymentErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_failures_total",
			Help:      "Failed payment attempts by reason.",
		}, []string{"reason"}),
		orderValue: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "order_total_usd",
			Help:      "Order totals including tax.",
			Buckets:   []float64{25, 50, 75, 100, 150, 250, 500},
		}),
	}
}

// Gatherer exposes the registry for tests.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Middleware records request counts and latency labelled by chi route pattern.
func (r *Registry) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		next.ServeHTTP(ww, req)

		route := req.URL.Path
		if rctx := chi.RouteContext(req.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		r.httpRequests.WithLabelValues(req.Method, route, strconv.Itoa(status)).Inc()
		r.httpDuration.WithLabelValues(req.Method, route).Observe(float64(time.Since(start).Milliseconds()))
	})
}

// DomainCheck counts a search ("search" or "quick") and whether it succeeded, failed or was cancelled.
func (r *Registry) DomainCheck(kind, outcome string) {
	r.domainSearches.WithLabelValues(kind, outcome).Inc()
}

// StepChanged counts a wizard transition.
func (r *Registry) StepChanged(from, to string) {
	r.stepChanges.WithLabelValues(from, to).Inc()
}

// OrderCompleted counts a paid order and observes its total.
func (r *Registry) OrderCompleted(method string, total float64) {
	r.orders.WithLabelValues(method).Inc()
	r.orderValue.Observe(total)
}

// PaymentFailed counts a failed charge.
func (r *Registry) PaymentFailed(reason string) {
	r.paymentErrors.WithLabelValues(reason).Inc()
}
