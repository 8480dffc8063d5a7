// Package metrics exposes Prometheus collectors for the scoring service and
// records scoring metrics in the alert store.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors holds the service's Prometheus instruments. A nil *Collectors
// ignores every observation.
type Collectors struct {
	requests        *prometheus.CounterVec
	rowsScored      *prometheus.CounterVec
	intrusions      *prometheus.CounterVec
	scoringDuration *prometheus.HistogramVec
	alertsCreated   *prometheus.CounterVec
	published       *prometheus.CounterVec
	recordFailures  prometheus.Counter
}

func NewCollectors(reg prometheus.Registerer) *Collectors {
	f := promauto.With(reg)
	return &Collectors{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "idsguard_scoring_requests_total",
			Help: "Scoring requests by source and outcome",
		}, []string{"source", "outcome"}),
		rowsScored: f.NewCounterVec(prometheus.CounterOpts{
			Name: "idsguard_rows_scored_total",
			Help: "Records scored by source",
		}, []string{"source"}),
		intrusions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "idsguard_intrusions_total",
			Help: "Records classified as intrusions by source",
		}, []string{"source"}),
		scoringDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "idsguard_scoring_duration_seconds",
			Help:    "Time spent scoring one request",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		alertsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "idsguard_alerts_created_total",
			Help: "Alerts committed to the store by source",
		}, []string{"source"}),
		published: f.NewCounterVec(prometheus.CounterOpts{
			Name: "idsguard_alerts_published_total",
			Help: "Alert publication attempts by outcome",
		}, []string{"outcome"}),
		recordFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "idsguard_metric_record_failures_total",
			Help: "Scoring metrics that could not be written to the store",
		}),
	}
}

func (c *Collectors) observeScoring(source, outcome string, rows, intrusions, alerts int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(source, outcome).Inc()
	c.scoringDuration.WithLabelValues(source).Observe(elapsed.Seconds())
	if outcome != OutcomeOK {
		return
	}
	c.rowsScored.WithLabelValues(source).Add(float64(rows))
	c.intrusions.WithLabelValues(source).Add(float64(intrusions))
	c.alertsCreated.WithLabelValues(source).Add(float64(alerts))
}

func (c *Collectors) observePublish(n int, err error) {
	if c == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	c.published.WithLabelValues(outcome).Add(float64(n))
}

func (c *Collectors) observeRecordFailure() {
	if c == nil {
		return
	}
	c.recordFailures.Inc()
}
