package metrics

import (
	"context"
	"log/slog"
	"time"

	"idsguard/internal/failure"
	"idsguard/internal/model"
)

const (
	OutcomeOK    = "ok"
	OutcomeError = "error"

	TypeScoringRows       = "scoring.rows"
	TypeScoringIntrusions = "scoring.intrusions"
	TypeScoringLatency    = "scoring.latency_ms"
)

// Writer persists metric rows.
type Writer interface {
	AddMetric(ctx context.Context, m model.Metric) (string, error)
}

// Scoring describes one finished scoring request.
type Scoring struct {
	Source     model.Source
	Rows       int
	Intrusions int
	Alerts     int
	Elapsed    time.Duration
	Err        error
}

// Recorder feeds the Prometheus collectors and, when a writer is set, the
// metrics table. Metric rows are best effort: a failed write is logged and
// counted, never returned.
type Recorder struct {
	collectors *Collectors
	writer     Writer
	logger     *slog.Logger
}

func NewRecorder(collectors *Collectors, writer Writer, logger *slog.Logger) *Recorder {
	return &Recorder{collectors: collectors, writer: writer, logger: logger}
}

func (r *Recorder) ObserveScoring(ctx context.Context, s Scoring) {
	if r == nil {
		return
	}
	outcome := OutcomeOK
	if s.Err != nil {
		outcome = OutcomeError
	}
	r.collectors.observeScoring(string(s.Source), outcome, s.Rows, s.Intrusions, s.Alerts, s.Elapsed)
	if r.writer == nil || s.Err != nil {
		return
	}
	details := map[string]any{"source": string(s.Source)}
	now := time.Now().UTC()
	for _, m := range []model.Metric{
		{Timestamp: now, MetricType: TypeScoringRows, Value: float64(s.Rows), Details: details},
		{Timestamp: now, MetricType: TypeScoringIntrusions, Value: float64(s.Intrusions), Details: details},
		{Timestamp: now, MetricType: TypeScoringLatency, Value: float64(s.Elapsed) / float64(time.Millisecond), Details: details},
	} {
		if _, err := r.writer.AddMetric(ctx, m); err != nil {
			r.collectors.observeRecordFailure()
			if r.logger != nil {
				r.logger.Warn("record metric failed", "metric_type", m.MetricType, "kind", failure.KindOf(err), "error", err)
			}
		}
	}
}

func (r *Recorder) ObservePublish(n int, err error) {
	if r == nil {
		return
	}
	r.collectors.observePublish(n, err)
}
