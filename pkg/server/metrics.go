package server

import (
	"strconv"
	"time"

	"github.com/duynguyendang/vultester/pkg/engine"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	evaluations     *prometheus.CounterVec
	rulesFired      prometheus.Histogram
	cacheHits       prometheus.Counter
	requestDuration *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vultester",
			Name:      "evaluations_total",
			Help:      "Finished evaluations by chaining method and overall status.",
		}, []string{"method", "status"}),
		rulesFired: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vultester",
			Name:      "rules_fired",
			Help:      "Number of rules fired per evaluation.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vultester",
			Name:      "cache_hits_total",
			Help:      "Evaluations served from the report cache.",
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vultester",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "code"}),
	}
	reg.MustRegister(m.evaluations, m.rulesFired, m.cacheHits, m.requestDuration)
	return m
}

func (m *metrics) observe(method engine.Method, res *engine.Result, cached bool) {
	m.evaluations.WithLabelValues(string(method), string(res.OverallStatus)).Inc()
	m.rulesFired.Observe(float64(res.TotalRulesFired))
	if cached {
		m.cacheHits.Inc()
	}
}

func (m *metrics) instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requestDuration.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Observe(time.Since(start).Seconds())
	}
}
