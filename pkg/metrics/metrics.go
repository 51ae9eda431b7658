package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the Prometheus metrics of one service. Each collector owns
// its registry so tests can build as many as they like.
type Collector struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
	published    *prometheus.CounterVec
	deliveries   *prometheus.CounterVec
	handling     *prometheus.HistogramVec
}

// New registers the metrics under the given service label.
func New(service string) *Collector {
	reg := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	c := &Collector{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "http_requests_total",
			Help:        "HTTP requests by route and status code.",
			ConstLabels: constLabels,
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request latency by route.",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"method", "route"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "events_published_total",
			Help:        "Events handed to the broker, by subject and outcome.",
			ConstLabels: constLabels,
		}, []string{"subject", "outcome"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "events_consumed_total",
			Help:        "Deliveries settled by listeners, by subject and outcome.",
			ConstLabels: constLabels,
		}, []string{"subject", "outcome"}),
		handling: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "event_handler_duration_seconds",
			Help:        "Time from delivery to settlement, by subject.",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"subject"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.httpRequests, c.httpLatency, c.published, c.deliveries, c.handling,
	)
	return c
}

// GinMiddleware records request count and latency per route template.
func (c *Collector) GinMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		route := ctx.FullPath()
		if route == "" {
			route = "unmatched"
		}
		c.httpRequests.WithLabelValues(ctx.Request.Method, route, strconv.Itoa(ctx.Writer.Status())).Inc()
		c.httpLatency.WithLabelValues(ctx.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// ObservePublish implements rabbitmq.Observer.
func (c *Collector) ObservePublish(subject string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.published.WithLabelValues(subject, outcome).Inc()
}

// ObserveDelivery implements rabbitmq.Observer.
func (c *Collector) ObserveDelivery(subject, outcome string, took time.Duration) {
	c.deliveries.WithLabelValues(subject, outcome).Inc()
	c.handling.WithLabelValues(subject).Observe(took.Seconds())
}

// Handler exposes the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
