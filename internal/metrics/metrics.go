package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector exposes Prometheus metrics for inbound HTTP traffic and the
// notification pipeline.
type Collector struct {
	registry        *prometheus.Registry
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	notificationsTotal *prometheus.CounterVec
	suppressedTotal    prometheus.Counter
	tweetsFetchedTotal prometheus.Counter
	fetchErrorsTotal   prometheus.Counter
	deliveriesTotal    *prometheus.CounterVec
	receiptsTotal      *prometheus.CounterVec
}

// NewCollector constructs a collector with default histograms/counters.
func NewCollector() (*Collector, error) {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "kolwatch",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for inbound HTTP requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kolwatch",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of inbound HTTP requests.",
	}, []string{"method", "path", "status"})

	notificationsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kolwatch",
		Subsystem: "pipeline",
		Name:      "notifications_total",
		Help:      "Inbound notification payloads by processing result.",
	}, []string{"result"})

	suppressedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "kolwatch",
		Subsystem: "pipeline",
		Name:      "suppressed_accounts_total",
		Help:      "Accounts dropped as duplicate pushes inside the suppression window.",
	})

	tweetsFetchedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "kolwatch",
		Subsystem: "pipeline",
		Name:      "tweets_fetched_total",
		Help:      "Posts returned by the upstream posts API after recency filtering.",
	})

	fetchErrorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "kolwatch",
		Subsystem: "pipeline",
		Name:      "fetch_errors_total",
		Help:      "Per-account upstream fetch failures absorbed by the batch.",
	})

	deliveriesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kolwatch",
		Subsystem: "webhook",
		Name:      "deliveries_total",
		Help:      "Webhook delivery attempts by outcome.",
	}, []string{"outcome"})

	receiptsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kolwatch",
		Subsystem: "webhook",
		Name:      "receipts_total",
		Help:      "Webhook receipts by write result.",
	}, []string{"result"})

	collectors := []prometheus.Collector{
		requestDuration,
		requestTotal,
		notificationsTotal,
		suppressedTotal,
		tweetsFetchedTotal,
		fetchErrorsTotal,
		deliveriesTotal,
		receiptsTotal,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return &Collector{
		registry:           registry,
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		notificationsTotal: notificationsTotal,
		suppressedTotal:    suppressedTotal,
		tweetsFetchedTotal: tweetsFetchedTotal,
		fetchErrorsTotal:   fetchErrorsTotal,
		deliveriesTotal:    deliveriesTotal,
		receiptsTotal:      receiptsTotal,
	}, nil
}

// Handler returns an HTTP handler for exposing Prometheus metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler to record HTTP metrics.
func (c *Collector) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(rw.status)
		path := r.URL.Path

		c.requestTotal.WithLabelValues(r.Method, path, status).Inc()
		c.requestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
	})
}

// ObserveNotification records one processed notification payload.
func (c *Collector) ObserveNotification(result string) {
	c.notificationsTotal.WithLabelValues(result).Inc()
}

// ObserveSuppressed records accounts dropped by the duplicate suppressor.
func (c *Collector) ObserveSuppressed(count int) {
	c.suppressedTotal.Add(float64(count))
}

// ObserveTweetsFetched records posts surviving the recency filter.
func (c *Collector) ObserveTweetsFetched(count int) {
	c.tweetsFetchedTotal.Add(float64(count))
}

// ObserveFetchError records one absorbed upstream fetch failure.
func (c *Collector) ObserveFetchError() {
	c.fetchErrorsTotal.Inc()
}

// ObserveDelivery records one webhook delivery attempt.
func (c *Collector) ObserveDelivery(outcome string) {
	c.deliveriesTotal.WithLabelValues(outcome).Inc()
}

// ObserveReceipt records one receipt write.
func (c *Collector) ObserveReceipt(result string) {
	c.receiptsTotal.WithLabelValues(result).Inc()
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
