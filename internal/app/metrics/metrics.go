package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "surety",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "surety",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "surety",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	governanceVotes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "surety",
			Subsystem: "governance",
			Name:      "votes_total",
			Help:      "Total number of admission votes recorded.",
		},
	)

	airlinesRegistered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "surety",
			Subsystem: "governance",
			Name:      "airlines_registered_total",
			Help:      "Airlines admitted, by admission path.",
		},
		[]string{"path"},
	)

	oracleSubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "surety",
			Subsystem: "oracle",
			Name:      "submissions_total",
			Help:      "Oracle submissions received, by outcome.",
		},
		[]string{"outcome"},
	)

	oracleResolutions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "surety",
			Subsystem: "oracle",
			Name:      "resolutions_total",
			Help:      "Oracle requests resolved by quorum.",
		},
	)

	payouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "surety",
			Subsystem: "insurance",
			Name:      "payouts_total",
			Help:      "Insurance policies paid out.",
		},
	)

	payoutAmount = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "surety",
			Subsystem: "insurance",
			Name:      "payout_amount_total",
			Help:      "Total credit issued to passengers.",
		},
	)

	withdrawals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "surety",
			Subsystem: "funding",
			Name:      "withdrawals_total",
			Help:      "Withdrawal transfers, by settlement outcome.",
		},
		[]string{"status"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		governanceVotes,
		airlinesRegistered,
		oracleSubmissions,
		oracleResolutions,
		payouts,
		payoutAmount,
		withdrawals,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
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

// RecordVote counts an admission vote.
func RecordVote() { governanceVotes.Inc() }

// RecordAirlineRegistered counts an admission, labelled by path
// ("fast_path" or "consensus").
func RecordAirlineRegistered(path string) { airlinesRegistered.WithLabelValues(path).Inc() }

// RecordOracleSubmission counts a submission, labelled by outcome
// ("counted", "audit", "rejected").
func RecordOracleSubmission(outcome string) { oracleSubmissions.WithLabelValues(outcome).Inc() }

// RecordOracleResolution counts a quorum resolution.
func RecordOracleResolution() { oracleResolutions.Inc() }

// RecordPayout counts a paid policy and the credited amount.
func RecordPayout(amount int64) {
	payouts.Inc()
	if amount > 0 {
		payoutAmount.Add(float64(amount))
	}
}

// RecordWithdrawal counts a withdrawal settlement outcome.
func RecordWithdrawal(status string) { withdrawals.WithLabelValues(status).Inc() }

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

// Hijack lets websocket upgrades pass through the instrumented writer.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hj.Hijack()
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "airlines":
		if len(parts) == 1 {
			return "/airlines"
		}
		if parts[1] == "count" {
			return "/airlines/count"
		}
		if len(parts) == 2 {
			return "/airlines/:airline"
		}
		return "/airlines/:airline/" + parts[2]
	case "flights":
		if len(parts) == 1 {
			return "/flights"
		}
		if len(parts) == 2 {
			return "/flights/" + parts[1]
		}
		return "/flights/:flight/" + parts[2]
	default:
		return "/" + parts[0]
	}
}
