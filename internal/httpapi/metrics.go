package httpapi

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the process's prometheus instruments. All methods are safe
// on a nil receiver so tests can leave the field empty.
type Metrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec

	leadsSubmitted *prometheus.CounterVec
	claimAttempts  *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route and method.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		leadsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leads_submitted_total",
			Help: "Accepted lead submissions by routing outcome.",
		}, []string{"outcome"}),
		claimAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lead_claim_attempts_total",
			Help: "Claim attempts by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.requests, m.latency, m.leadsSubmitted, m.claimAttempts)
	return m
}

func (m *Metrics) LeadSubmitted(outcome string) {
	if m == nil {
		return
	}
	m.leadsSubmitted.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ClaimAttempt(result string) {
	if m == nil {
		return
	}
	m.claimAttempts.WithLabelValues(result).Inc()
}

// Middleware records request counts and latency per registered route. The
// route template (not the raw path) keeps cardinality bounded.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.latency.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the /metrics scrape endpoint.
func MetricsHandler(g prometheus.Gatherer) gin.HandlerFunc {
	h := promhttp.HandlerFor(g, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
