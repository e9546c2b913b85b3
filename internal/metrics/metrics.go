package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ReportsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "transit_reports_total",
		Help: "Total number of position reports processed",
	})
	ReportsDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "transit_reports_dropped_total",
		Help: "Total number of stale or duplicate reports dropped",
	})
	ReportsRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "transit_reports_rejected_total",
		Help: "Total number of malformed reports rejected",
	})
	SessionsOpenedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "transit_sessions_opened_total",
		Help: "Total overflight sessions opened",
	})
	SessionsClosedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "transit_sessions_closed_total",
		Help: "Total overflight sessions closed by close kind",
	}, []string{"kind"})
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "transit_active_sessions",
		Help: "Currently open overflight sessions",
	})
	ActiveAircraft = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "transit_active_aircraft",
		Help: "Currently tracked aircraft",
	})
	CycleDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "transit_cycle_duration_ms",
		Help:    "Ingestion cycle processing duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	})
	CyclesSkippedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "transit_cycles_skipped_total",
		Help: "Total ingestion cycles skipped due to fetch failure",
	})
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "transit_http_requests_total",
		Help: "Total HTTP API requests by route",
	}, []string{"route"})
	RequestDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "transit_http_request_duration_ms",
		Help:    "HTTP API request duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	}, []string{"route"})
)

func init() {
	prometheus.MustRegister(ReportsTotal)
	prometheus.MustRegister(ReportsDroppedTotal)
	prometheus.MustRegister(ReportsRejectedTotal)
	prometheus.MustRegister(SessionsOpenedTotal)
	prometheus.MustRegister(SessionsClosedTotal)
	prometheus.MustRegister(ActiveSessions)
	prometheus.MustRegister(ActiveAircraft)
	prometheus.MustRegister(CycleDurationMs)
	prometheus.MustRegister(CyclesSkippedTotal)
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDurationMs)
}

// Handler exposes the registered metrics for scraping.
func Handler() http.Handler { return promhttp.Handler() }
