package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gauntlet_ledger_build_info",
			Help: "Build information of the Gauntlet ledger service",
		},
		[]string{"version", "commit", "date"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gauntlet_ledger_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gauntlet_ledger_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gauntlet_ledger_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	EntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gauntlet_ledger_entries_total",
			Help: "Total number of entry payment attempts",
		},
		[]string{"tier", "status"},
	)

	EntryAmount = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gauntlet_ledger_entry_amount_units",
			Help:    "Accepted entry amounts in the smallest currency unit",
			Buckets: prometheus.ExponentialBuckets(1_000_000, 4, 12),
		},
		[]string{"tier"},
	)

	SettlementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gauntlet_ledger_settlements_total",
			Help: "Total number of settlement attempts",
		},
		[]string{"tier", "status"},
	)

	// Recoveries get their own counter, separate from settlements, so
	// operators can alert on any use of the emergency path.
	RecoveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gauntlet_ledger_recoveries_total",
			Help: "Total number of emergency recovery attempts",
		},
		[]string{"tier", "status"},
	)

	JackpotBalance = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gauntlet_ledger_jackpot_balance_units",
			Help: "Current jackpot balance per tier in the smallest currency unit",
		},
		[]string{"tier"},
	)

	TotalEntriesGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gauntlet_ledger_total_entries",
			Help: "Lifetime accepted entries per tier",
		},
		[]string{"tier"},
	)

	StaleTiers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gauntlet_ledger_stale_tiers",
			Help: "Number of tiers with a non-empty jackpot past the recovery window",
		},
	)
)

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func tierLabel(tierID uint8) string {
	return strconv.Itoa(int(tierID))
}

// RecordEntry records the outcome of a ProcessEntry call.
func RecordEntry(tierID uint8, amount uint64, err error) {
	EntriesTotal.WithLabelValues(tierLabel(tierID), statusLabel(err)).Inc()
	if err == nil {
		EntryAmount.WithLabelValues(tierLabel(tierID)).Observe(float64(amount))
	}
}

// RecordSettlement records the outcome of a Settle call.
func RecordSettlement(tierID uint8, err error) {
	SettlementsTotal.WithLabelValues(tierLabel(tierID), statusLabel(err)).Inc()
}

// RecordRecovery records the outcome of a Recover call.
func RecordRecovery(tierID uint8, err error) {
	RecoveriesTotal.WithLabelValues(tierLabel(tierID), statusLabel(err)).Inc()
}

// SetTierState updates the per-tier gauges after a state change.
func SetTierState(tierID uint8, jackpotBalance, totalEntries uint64) {
	JackpotBalance.WithLabelValues(tierLabel(tierID)).Set(float64(jackpotBalance))
	TotalEntriesGauge.WithLabelValues(tierLabel(tierID)).Set(float64(totalEntries))
}

// Middleware returns a chi middleware that records HTTP metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// Use the route pattern if available, otherwise the raw path
		path := chi.RouteContext(r.Context()).RoutePattern()
		if path == "" {
			path = r.URL.Path
		}

		status := strconv.Itoa(ww.Status())
		HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
