package backend

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "breathe_backend",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Latency of breathing API requests by route and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	sessionsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "breathe_backend",
		Subsystem: "sessions",
		Name:      "started_total",
		Help:      "Breathing sessions started.",
	})

	sessionsCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "breathe_backend",
		Subsystem: "sessions",
		Name:      "completed_total",
		Help:      "Breathing sessions finalized, by outcome.",
	}, []string{"outcome"})

	completedPercentage = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "breathe_backend",
		Subsystem: "sessions",
		Name:      "completed_percentage",
		Help:      "Completion percentage reported on finalized sessions.",
		Buckets:   prometheus.LinearBuckets(10, 10, 10),
	})
)

func init() {
	prometheus.MustRegister(requestDuration, sessionsStarted, sessionsCompleted, completedPercentage)
}

func recordCompletion(completed bool, percentage int) {
	outcome := "partial"
	if completed {
		outcome = "completed"
	}
	sessionsCompleted.WithLabelValues(outcome).Inc()
	completedPercentage.Observe(float64(percentage))
}

// instrument records request latency labelled by the matched chi route.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		requestDuration.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Observe(time.Since(start).Seconds())
	})
}
