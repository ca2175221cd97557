// Package metricsx owns the prometheus surface for all three services.
package metricsx

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "path", "status"})

	httpLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	caseTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "case_transitions_total",
		Help: "Total case state transitions by event type.",
	}, []string{"event_type"})

	idempotentReplays = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "idempotent_replays_total",
		Help: "Total commands answered from a stored idempotency key.",
	})

	wipRejections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wip_rejections_total",
		Help: "Total start-class actions rejected by the WIP limit.",
	})

	revisionConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "revision_conflicts_total",
		Help: "Total commands rejected by the expected-revision check.",
	})

	outboxPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "outbox_pending_events",
		Help: "Case events awaiting dispatch in the outbox.",
	})

	outboxDead = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "outbox_dead_events",
		Help: "Case events parked after exhausting dispatch attempts.",
	})

	kafkaConsumerLag = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "kafka_consumer_lag",
		Help: "Kafka consumer lag by topic.",
	}, []string{"topic", "group"})

	influxWriteFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "influx_write_failures_total",
		Help: "Total InfluxDB write failures.",
	})

	asynqQueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "asynq_queue_depth",
		Help: "Asynq queue depth by queue.",
	}, []string{"queue"})
)

func Register() {
	prometheus.MustRegister(
		httpRequests, httpLatency,
		caseTransitions, idempotentReplays, wipRejections, revisionConflicts,
		outboxPending, outboxDead,
		kafkaConsumerLag, influxWriteFailures, asynqQueueDepth,
	)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument observes every request. UUID path segments are collapsed to a
// placeholder so per-case URLs do not explode label cardinality.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &observedWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		status := strconv.Itoa(rec.status)
		path := normalizePath(r.URL.Path)
		httpRequests.WithLabelValues(r.Method, path, status).Inc()
		httpLatency.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	segments := strings.Split(path, "/")
	changed := false
	for i, seg := range segments {
		if len(seg) == 36 {
			if _, err := uuid.Parse(seg); err == nil {
				segments[i] = ":id"
				changed = true
			}
		}
	}
	if !changed {
		return path
	}
	return strings.Join(segments, "/")
}

func IncCaseTransition(eventType string) {
	caseTransitions.WithLabelValues(eventType).Inc()
}

func IncIdempotentReplay() {
	idempotentReplays.Inc()
}

func IncWIPRejection() {
	wipRejections.Inc()
}

func IncRevisionConflict() {
	revisionConflicts.Inc()
}

func SetOutboxPending(count int) {
	outboxPending.Set(float64(count))
}

func SetOutboxDead(count int) {
	outboxDead.Set(float64(count))
}

func SetKafkaLag(topic string, group string, lag int64) {
	kafkaConsumerLag.WithLabelValues(topic, group).Set(float64(lag))
}

func IncInfluxWriteFailure() {
	influxWriteFailures.Inc()
}

func SetAsynqQueueDepth(queue string, depth int) {
	asynqQueueDepth.WithLabelValues(queue).Set(float64(depth))
}

type observedWriter struct {
	http.ResponseWriter
	status int
}

func (w *observedWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
