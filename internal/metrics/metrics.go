package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	GraderRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grader_requests_total",
			Help: "Requests sent to exercise services",
		},
		[]string{"service", "endpoint", "outcome"},
	)

	GraderDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grader_request_duration_seconds",
			Help:    "Duration of requests to exercise services",
			Buckets: []float64{0.05, 0.25, 1, 5, 30, 120},
		},
		[]string{"service", "endpoint"},
	)

	SlideSubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slide_submissions_total",
			Help: "Slide submissions by outcome",
		},
		[]string{"outcome"},
	)

	PeerReviewSubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peer_review_submissions_total",
			Help: "Peer and self reviews by outcome",
		},
		[]string{"kind", "outcome"},
	)

	StateUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "user_exercise_state_updates_total",
			Help: "Derived state recomputations, by whether the row changed",
		},
		[]string{"changed"},
	)

	RegradingTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regrading_ticks_total",
			Help: "Regrading worker ticks by outcome",
		},
		[]string{"outcome"},
	)

	RegradingGradings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regrading_gradings_total",
			Help: "Task submissions regraded by outcome",
		},
		[]string{"outcome"},
	)
)

var registerOnce sync.Once

// Init registers every collector with the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			GraderRequests,
			GraderDuration,
			SlideSubmissions,
			PeerReviewSubmissions,
			StateUpdates,
			RegradingTicks,
			RegradingGradings,
		)
	})
}

// ObserveGrader records one request to an exercise service.
func ObserveGrader(service, endpoint string, started time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	GraderRequests.WithLabelValues(service, endpoint, outcome).Inc()
	GraderDuration.WithLabelValues(service, endpoint).Observe(time.Since(started).Seconds())
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
