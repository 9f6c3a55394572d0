// Package metrics exposes the engine's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the engine-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "lotto_engine",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lotto_engine",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lotto_engine",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "path"},
	)

	roundsOpened = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lotto_engine",
			Subsystem: "rounds",
			Name:      "opened_total",
			Help:      "Total number of lottery rounds opened.",
		},
	)

	ticketsSold = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lotto_engine",
			Subsystem: "rounds",
			Name:      "tickets_sold_total",
			Help:      "Total number of accepted ticket purchases.",
		},
	)

	settlements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lotto_engine",
			Subsystem: "rounds",
			Name:      "settlements_total",
			Help:      "Total number of settlement attempts by outcome.",
		},
		[]string{"outcome"},
	)

	callbacksRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lotto_engine",
			Subsystem: "callbacks",
			Name:      "rejected_total",
			Help:      "Total number of rejected randomness callbacks by reason.",
		},
		[]string{"reason"},
	)

	payoutAmount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lotto_engine",
			Subsystem: "payouts",
			Name:      "amount_total",
			Help:      "Total base units paid out by recipient kind.",
		},
		[]string{"kind"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		roundsOpened,
		ticketsSold,
		settlements,
		callbacksRejected,
		payoutAmount,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered collectors.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordRoundOpened records an accepted OpenRound operation.
func RecordRoundOpened() { roundsOpened.Inc() }

// RecordTicketSold records an accepted ticket purchase.
func RecordTicketSold() { ticketsSold.Inc() }

// RecordSettlement records a settlement attempt outcome ("settled",
// "already_settled", "no_participants", "error").
func RecordSettlement(outcome string) { settlements.WithLabelValues(outcome).Inc() }

// RecordCallbackRejected records a rejected randomness callback.
func RecordCallbackRejected(reason string) { callbacksRejected.WithLabelValues(reason).Inc() }

// RecordPayout records base units emitted to a recipient kind
// ("winner", "creator", "community_pool", "withdrawal").
func RecordPayout(kind string, amount int64) {
	if amount <= 0 {
		return
	}
	payoutAmount.WithLabelValues(kind).Add(float64(amount))
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses round-scoped paths so per-round ids do not explode
// label cardinality.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	prefix := ""
	if parts[0] == "v1" {
		prefix = "/v1"
		parts = parts[1:]
	}
	if len(parts) == 0 {
		return prefix
	}
	if parts[0] != "rounds" {
		return prefix + "/" + parts[0]
	}
	if len(parts) == 1 {
		return prefix + "/rounds"
	}
	if len(parts) == 2 {
		return prefix + "/rounds/:id"
	}
	return prefix + "/rounds/:id/" + parts[2]
}
