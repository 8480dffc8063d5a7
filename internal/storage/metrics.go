package storage

import (
	"context"
	"database/sql"
	"strings"

	"idsguard/internal/failure"
	"idsguard/internal/model"
)

func (b *baseStore) AddMetric(ctx context.Context, m model.Metric) (string, error) {
	const op = "add metric"
	if strings.TrimSpace(m.MetricType) == "" {
		return "", failure.New(failure.KindContract, op, "metric type is required")
	}
	if m.ID == "" {
		m.ID = newID()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = b.stamp()
	}
	var details any
	if m.Details != nil {
		encoded, err := encodeJSON(m.Details)
		if err != nil {
			return "", storageErr(op, err)
		}
		details = encoded
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return "", storageErr(op, err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := b.exec(ctx, tx,
		`INSERT INTO metrics (id, ts, metric_type, value, details) VALUES (?, ?, ?, ?, ?)`,
		m.ID, b.d.timeArg(m.Timestamp), m.MetricType, m.Value, details,
	); err != nil {
		return "", storageErr(op, err)
	}
	if err := tx.Commit(); err != nil {
		return "", storageErr(op, err)
	}
	return m.ID, nil
}

// GetMetrics lists metrics newest first.
func (b *baseStore) GetMetrics(ctx context.Context, filter model.MetricFilter) ([]model.Metric, error) {
	const op = "get metrics"
	var w where
	if filter.MetricType != "" {
		w.add("metric_type = ?", filter.MetricType)
	}
	w.timeRange(b.d, "ts", filter.Range)
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	rows, err := b.db.QueryContext(ctx, b.d.rebind(
		`SELECT id, ts, metric_type, value, details FROM metrics`+w.String()+` ORDER BY ts DESC, id LIMIT ?`),
		append(w.args, limit)...,
	)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()
	out := make([]model.Metric, 0)
	for rows.Next() {
		var (
			m       model.Metric
			ts      dbTime
			details []byte
		)
		if err := rows.Scan(&m.ID, &ts, &m.MetricType, &m.Value, &details); err != nil {
			return nil, storageErr(op, err)
		}
		m.Timestamp = ts.Time
		if m.Details, err = decodeDetails(details); err != nil {
			return nil, storageErr(op, err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}
	return out, nil
}

// GetMetricSummary buckets one metric type by interval, oldest bucket first.
func (b *baseStore) GetMetricSummary(ctx context.Context, metricType string, interval model.Interval, r model.TimeRange) (model.MetricSummary, error) {
	const op = "metric summary"
	summary := model.MetricSummary{MetricType: metricType, Interval: interval, Periods: make([]model.MetricPeriod, 0)}
	if strings.TrimSpace(metricType) == "" {
		return summary, failure.New(failure.KindContract, op, "metric type is required")
	}
	if !interval.Valid() {
		return summary, failure.Newf(failure.KindContract, op, "unsupported interval %q", interval)
	}
	var w where
	w.add("metric_type = ?", metricType)
	w.timeRange(b.d, "ts", r)
	rows, err := b.db.QueryContext(ctx, b.d.rebind(
		`SELECT `+b.d.period(interval)+` AS bucket, COUNT(*), AVG(value), MIN(value), MAX(value), SUM(value)
		FROM metrics`+w.String()+` GROUP BY 1 ORDER BY 1`),
		w.args...,
	)
	if err != nil {
		return summary, storageErr(op, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			p                   model.MetricPeriod
			avg, lo, hi, sum sql.NullFloat64
		)
		if err := rows.Scan(&p.Period, &p.Count, &avg, &lo, &hi, &sum); err != nil {
			return summary, storageErr(op, err)
		}
		p.Avg, p.Min, p.Max, p.Sum = avg.Float64, lo.Float64, hi.Float64, sum.Float64
		summary.Periods = append(summary.Periods, p)
	}
	if err := rows.Err(); err != nil {
		return summary, storageErr(op, err)
	}
	return summary, nil
}
