package engine

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/mat"

	"idsguard/internal/alerts"
	"idsguard/internal/failure"
	"idsguard/internal/inference"
	"idsguard/internal/metrics"
	"idsguard/internal/model"
	"idsguard/internal/normalize"
	"idsguard/internal/notify"
)

const publishTimeout = 5 * time.Second

// Engine runs records through the inference context and turns positive
// decisions into stored alerts. It holds no per-request state.
type Engine struct {
	logger    *slog.Logger
	ic        *inference.Context
	factory   *alerts.Factory
	sink      alerts.Sink
	publisher notify.Publisher
	recorder  *metrics.Recorder
	started   time.Time

	requests   atomic.Int64
	failures   atomic.Int64
	rowsScored atomic.Int64
	intrusions atomic.Int64
}

// Stats are process-lifetime counters reported on the status endpoint.
type Stats struct {
	Started    time.Time `json:"started"`
	Requests   int64     `json:"requests"`
	Failures   int64     `json:"failures"`
	RowsScored int64     `json:"rows_scored"`
	Intrusions int64     `json:"intrusions"`
}

func NewEngine(ic *inference.Context, sink alerts.Sink, publisher notify.Publisher, recorder *metrics.Recorder, logger *slog.Logger) *Engine {
	return &Engine{
		logger:    logger,
		ic:        ic,
		factory:   alerts.NewFactory(),
		sink:      sink,
		publisher: publisher,
		recorder:  recorder,
		started:   time.Now().UTC(),
	}
}

func (e *Engine) Context() *inference.Context { return e.ic }

func (e *Engine) Stats() Stats {
	return Stats{
		Started:    e.started,
		Requests:   e.requests.Load(),
		Failures:   e.failures.Load(),
		RowsScored: e.rowsScored.Load(),
		Intrusions: e.intrusions.Load(),
	}
}

// ScoreBatch scores uploaded rows. Any contract or coercion problem fails
// the whole batch before anything is stored; the alerts of one batch are
// committed together. Alert details carry every column of the row.
func (e *Engine) ScoreBatch(ctx context.Context, rows []normalize.Record, userID *string) (model.BatchResult, error) {
	start := time.Now()
	res, n, err := e.scoreBatch(ctx, rows, userID)
	e.finish(ctx, model.SourceFileUpload, len(rows), res.Intrusions, n, start, err)
	return res, err
}

func (e *Engine) scoreBatch(ctx context.Context, rows []normalize.Record, userID *string) (model.BatchResult, int, error) {
	x, err := normalize.NormalizeBatch(e.ic.Contract(), rows)
	if err != nil {
		return model.BatchResult{}, 0, err
	}
	probs, err := e.ic.Score(x)
	if err != nil {
		return model.BatchResult{}, 0, err
	}
	threshold := e.ic.Threshold()
	decisions := inference.DecideAll(probs, threshold)

	res := model.BatchResult{Total: len(rows), Results: make([]model.RowResult, len(rows))}
	var candidates []alerts.Candidate
	for i, positive := range decisions {
		res.Results[i] = model.RowResult{Index: i, IsIntrusion: positive, Confidence: probs[i]}
		if positive {
			res.Intrusions++
			candidates = append(candidates, alerts.Candidate{Confidence: probs[i], Details: rows[i].Details()})
		}
	}
	res.Safe = res.Total - res.Intrusions

	created, err := e.factory.Emit(ctx, e.sink, model.SourceFileUpload, candidates, userID)
	if err != nil {
		return model.BatchResult{}, 0, err
	}
	e.announce(ctx, created)
	return res, len(created), nil
}

// ScoreSingle scores one manually entered record. Alert details carry every
// submitted field.
func (e *Engine) ScoreSingle(ctx context.Context, rec normalize.Record, userID *string) (model.SingleResult, error) {
	start := time.Now()
	res, err := e.scoreSingle(ctx, rec, userID)
	intrusions, n := 0, 0
	if res.IsIntrusion {
		intrusions, n = 1, 1
	}
	e.finish(ctx, model.SourceManualInput, 1, intrusions, n, start, err)
	return res, err
}

func (e *Engine) scoreSingle(ctx context.Context, rec normalize.Record, userID *string) (model.SingleResult, error) {
	vec, err := normalize.NormalizeSingle(e.ic.Contract(), rec)
	if err != nil {
		return model.SingleResult{}, err
	}
	probs, err := e.ic.Score(mat.NewDense(1, len(vec), vec))
	if err != nil {
		return model.SingleResult{}, err
	}
	threshold := e.ic.Threshold()
	res := model.SingleResult{
		IsIntrusion: inference.Decide(probs[0], threshold),
		Confidence:  probs[0],
		Threshold:   threshold,
	}
	if !res.IsIntrusion {
		return res, nil
	}
	created, err := e.factory.Emit(ctx, e.sink, model.SourceManualInput,
		[]alerts.Candidate{{Confidence: probs[0], Details: rec.Details()}}, userID)
	if err != nil {
		return model.SingleResult{}, err
	}
	res.AlertID = created[0].ID
	e.announce(ctx, created)
	return res, nil
}

// announce logs and publishes alerts that are already committed. Publishing
// is best effort.
func (e *Engine) announce(ctx context.Context, created []model.Alert) {
	if len(created) == 0 {
		return
	}
	if e.logger != nil {
		for _, a := range created {
			e.logger.Warn("intrusion alert",
				"alert_id", a.ID,
				"source", a.Source,
				"confidence", a.Confidence,
			)
		}
	}
	if e.publisher == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	err := e.publisher.Publish(pctx, created)
	e.recorder.ObservePublish(len(created), err)
	if err != nil && e.logger != nil {
		e.logger.Warn("alert publish failed", "alerts", len(created), "error", err)
	}
}

func (e *Engine) finish(ctx context.Context, source model.Source, rows, intrusions, created int, start time.Time, err error) {
	e.requests.Add(1)
	elapsed := time.Since(start)
	if err != nil {
		e.failures.Add(1)
		if e.logger != nil {
			e.logger.Warn("scoring failed", "source", source, "kind", failure.KindOf(err), "error", err)
		}
	} else {
		e.rowsScored.Add(int64(rows))
		e.intrusions.Add(int64(intrusions))
		if e.logger != nil {
			e.logger.Info("scored", "source", source, "rows", rows, "intrusions", intrusions, "elapsed", elapsed)
		}
	}
	e.recorder.ObserveScoring(ctx, metrics.Scoring{
		Source:     source,
		Rows:       rows,
		Intrusions: intrusions,
		Alerts:     created,
		Elapsed:    elapsed,
		Err:        err,
	})
}
