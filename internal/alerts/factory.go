// Package alerts builds alert records for positive decisions and hands
// them to the alert store. It is the only code path that creates alerts.
package alerts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"idsguard/internal/failure"
	"idsguard/internal/model"
)

// Sink persists a group of alerts atomically.
type Sink interface {
	AddAlerts(ctx context.Context, alerts []model.Alert) error
}

// Candidate is one positive row waiting to become an alert.
type Candidate struct {
	Confidence float64
	Details    map[string]any
}

type Factory struct {
	now   func() time.Time
	newID func() string
}

func NewFactory() *Factory {
	return &Factory{now: time.Now, newID: uuid.NewString}
}

// Build returns a fresh unresolved alert. The timestamp is truncated to
// whole seconds in UTC.
func (f *Factory) Build(source model.Source, c Candidate, userID *string) model.Alert {
	details := make(map[string]any, len(c.Details))
	for k, v := range c.Details {
		details[k] = v
	}
	var uid *string
	if userID != nil {
		v := *userID
		uid = &v
	}
	return model.Alert{
		ID:         f.newID(),
		Timestamp:  f.now().UTC().Truncate(time.Second),
		Source:     source,
		Confidence: c.Confidence,
		Details:    details,
		UserID:     uid,
	}
}

// Emit builds one alert per candidate and submits them to sink in a single
// call. Nothing is returned unless the sink accepted every alert.
func (f *Factory) Emit(ctx context.Context, sink Sink, source model.Source, candidates []Candidate, userID *string) ([]model.Alert, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	if !source.Valid() {
		return nil, failure.Newf(failure.KindContract, "emit alerts", "unknown source %q", source)
	}
	if sink == nil {
		return nil, &failure.Error{Kind: failure.KindStorage, Op: "emit alerts", Err: errors.New("no alert store configured")}
	}
	out := make([]model.Alert, len(candidates))
	for i, c := range candidates {
		out[i] = f.Build(source, c, userID)
	}
	if err := sink.AddAlerts(ctx, out); err != nil {
		return nil, failure.Wrap(failure.KindStorage, "emit alerts", err)
	}
	return out, nil
}
