package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "popup_http_requests_total",
			Help: "Total HTTP requests",
		}, []string{"code"},
	)
	Latency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "popup_http_request_duration_seconds",
		Help:    "Request latency seconds",
		Buckets: prometheus.DefBuckets,
	})
	InFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "popup_http_in_flight",
		Help: "In-flight HTTP requests",
	})
	ActiveVisits = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "popup_active_visits",
		Help: "Visits currently holding an arbitration state",
	})
	Arbitrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "popup_arbitrations_total",
			Help: "Visit outcomes by final state",
		}, []string{"outcome"},
	)
	IgnoredFires = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "popup_ignored_fires_total",
		Help: "Monitor fires that arrived after the visit was decided",
	})
	FrequencyErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "popup_frequency_errors_total",
			Help: "Frequency store failures by operation",
		}, []string{"op"},
	)
	SourceErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "popup_source_errors_total",
		Help: "Campaign source fetch failures",
	})
)

func init() {
	prometheus.MustRegister(RequestsTotal, Latency, InFlight, ActiveVisits, Arbitrations, IgnoredFires, FrequencyErrors, SourceErrors)
}

func MetricsHandler() http.Handler { return promhttp.Handler() }

type rec struct {
	http.ResponseWriter
	code int
}

func (r *rec) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func Measure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		InFlight.Inc()
		defer InFlight.Dec()

		rr := &rec{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rr, r)

		Latency.Observe(time.Since(start).Seconds())
		RequestsTotal.WithLabelValues(strconv.Itoa(rr.code)).Inc()
	})
}
