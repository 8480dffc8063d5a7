package storage

import (
	"context"
	"database/sql"
	"strings"

	"idsguard/internal/failure"
	"idsguard/internal/model"
)

const alertColumns = `SELECT id, ts, source, confidence, is_resolved, resolved_at, resolved_by, details, user_id FROM alerts`

type rowScanner interface {
	Scan(dest ...any) error
}

// AddAlert stores one alert, filling in a missing id or timestamp.
func (b *baseStore) AddAlert(ctx context.Context, alert model.Alert) (string, error) {
	batch := []model.Alert{alert}
	if err := b.AddAlerts(ctx, batch); err != nil {
		return "", err
	}
	return batch[0].ID, nil
}

// AddAlerts stores alerts in one transaction. Missing ids and timestamps
// are filled in place.
func (b *baseStore) AddAlerts(ctx context.Context, alerts []model.Alert) error {
	const op = "add alerts"
	if len(alerts) == 0 {
		return nil
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr(op, err)
	}
	defer func() { _ = tx.Rollback() }()
	for i := range alerts {
		if err := b.insertAlert(ctx, tx, &alerts[i]); err != nil {
			return storageErr(op, err)
		}
	}
	return storageErr(op, tx.Commit())
}

func (b *baseStore) insertAlert(ctx context.Context, tx *sql.Tx, a *model.Alert) error {
	if !a.Source.Valid() {
		return failure.Newf(failure.KindContract, "add alert", "unknown source %q", a.Source)
	}
	if a.ID == "" {
		a.ID = newID()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = b.stamp()
	}
	if a.IsResolved {
		if a.ResolvedAt == nil {
			at := b.stamp()
			a.ResolvedAt = &at
		}
		if a.ResolvedBy == nil {
			by := defaultActor
			a.ResolvedBy = &by
		}
	} else {
		a.ResolvedAt, a.ResolvedBy = nil, nil
	}
	if a.Details == nil {
		a.Details = map[string]any{}
	}
	details, err := encodeJSON(a.Details)
	if err != nil {
		return err
	}
	if a.UserID != nil {
		if _, err := b.exec(ctx, tx,
			`INSERT INTO users (id, created_at) VALUES (?, ?) ON CONFLICT (id) DO NOTHING`,
			*a.UserID, b.d.timeArg(b.stamp()),
		); err != nil {
			return err
		}
	}
	var resolvedAt any
	if a.ResolvedAt != nil {
		resolvedAt = b.d.timeArg(*a.ResolvedAt)
	}
	_, err = b.exec(ctx, tx,
		`INSERT INTO alerts (id, ts, source, confidence, is_resolved, resolved_at, resolved_by, details, user_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID,
		b.d.timeArg(a.Timestamp),
		string(a.Source),
		a.Confidence,
		a.IsResolved,
		resolvedAt,
		nullableText(a.ResolvedBy),
		details,
		nullableText(a.UserID),
	)
	return err
}

// GetAlerts lists alerts newest first. Filters are ANDed.
func (b *baseStore) GetAlerts(ctx context.Context, filter model.AlertFilter) ([]model.Alert, error) {
	const op = "get alerts"
	var w where
	if filter.Resolved != nil {
		w.add("is_resolved = ?", *filter.Resolved)
	}
	if filter.UserID != nil {
		w.add("user_id = ?", *filter.UserID)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query := alertColumns + w.String() + ` ORDER BY ts DESC, id LIMIT ? OFFSET ?`
	rows, err := b.db.QueryContext(ctx, b.d.rebind(query), append(w.args, limit, offset)...)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()
	out := make([]model.Alert, 0)
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, storageErr(op, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}
	return out, nil
}

func (b *baseStore) GetAlertByID(ctx context.Context, id string) (model.Alert, error) {
	const op = "get alert"
	row := b.db.QueryRowContext(ctx, b.d.rebind(alertColumns+` WHERE id = ?`), id)
	a, err := scanAlert(row)
	if isNoRows(err) {
		return model.Alert{}, failure.Newf(failure.KindNotFound, op, "alert %s not found", id)
	}
	if err != nil {
		return model.Alert{}, storageErr(op, err)
	}
	return a, nil
}

// ResolveAlert marks an unresolved alert resolved. An unknown id is a
// not-found failure and an already resolved alert is a conflict.
func (b *baseStore) ResolveAlert(ctx context.Context, id string, resolvedBy *string) (model.Alert, error) {
	const op = "resolve alert"
	by := defaultActor
	if resolvedBy != nil && strings.TrimSpace(*resolvedBy) != "" {
		by = strings.TrimSpace(*resolvedBy)
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Alert{}, storageErr(op, err)
	}
	defer func() { _ = tx.Rollback() }()
	res, err := b.exec(ctx, tx,
		`UPDATE alerts SET is_resolved = ?, resolved_at = ?, resolved_by = ? WHERE id = ? AND is_resolved = ?`,
		true, b.d.timeArg(b.stamp()), by, id, false,
	)
	if err != nil {
		return model.Alert{}, storageErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Alert{}, storageErr(op, err)
	}
	if n == 0 {
		var one int
		err := tx.QueryRowContext(ctx, b.d.rebind(`SELECT 1 FROM alerts WHERE id = ?`), id).Scan(&one)
		if isNoRows(err) {
			return model.Alert{}, failure.Newf(failure.KindNotFound, op, "alert %s not found", id)
		}
		if err != nil {
			return model.Alert{}, storageErr(op, err)
		}
		return model.Alert{}, failure.Newf(failure.KindConflict, op, "alert %s is already resolved", id)
	}
	if err := tx.Commit(); err != nil {
		return model.Alert{}, storageErr(op, err)
	}
	return b.GetAlertByID(ctx, id)
}

// GetAlertStats aggregates alerts whose timestamp falls in r.
func (b *baseStore) GetAlertStats(ctx context.Context, r model.TimeRange) (model.AlertStats, error) {
	const op = "alert stats"
	var w where
	w.timeRange(b.d, "ts", r)

	var stats model.AlertStats
	var avg sql.NullFloat64
	err := b.db.QueryRowContext(ctx, b.d.rebind(
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN is_resolved THEN 1 ELSE 0 END), 0), AVG(confidence) FROM alerts`+w.String()),
		w.args...,
	).Scan(&stats.Total, &stats.Resolved, &avg)
	if err != nil {
		return stats, storageErr(op, err)
	}
	stats.Unresolved = stats.Total - stats.Resolved
	if avg.Valid {
		v := avg.Float64
		stats.AvgConfidence = &v
	}

	rows, err := b.db.QueryContext(ctx, b.d.rebind(
		`SELECT source, COUNT(*) FROM alerts`+w.String()+` GROUP BY source ORDER BY COUNT(*) DESC, source`),
		w.args...,
	)
	if err != nil {
		return stats, storageErr(op, err)
	}
	defer rows.Close()
	stats.Sources = make([]model.SourceCount, 0)
	for rows.Next() {
		var sc model.SourceCount
		var source string
		if err := rows.Scan(&source, &sc.Count); err != nil {
			return stats, storageErr(op, err)
		}
		sc.Source = model.Source(source)
		stats.Sources = append(stats.Sources, sc)
	}
	if err := rows.Err(); err != nil {
		return stats, storageErr(op, err)
	}
	stats.SourceCount = int64(len(stats.Sources))

	if stats.Resolved > 0 {
		rw := where{conds: append([]string(nil), w.conds...), args: append([]any(nil), w.args...)}
		rw.add("is_resolved = ?", true)
		rw.add("resolved_at IS NOT NULL")
		var minutes sql.NullFloat64
		err := b.db.QueryRowContext(ctx, b.d.rebind(
			`SELECT AVG(`+b.d.resolutionMinutes()+`) FROM alerts`+rw.String()),
			rw.args...,
		).Scan(&minutes)
		if err != nil {
			return stats, storageErr(op, err)
		}
		if minutes.Valid {
			v := minutes.Float64
			stats.AvgResolutionMinutes = &v
		}
	}
	return stats, nil
}

func scanAlert(s rowScanner) (model.Alert, error) {
	var (
		a          model.Alert
		ts         dbTime
		source     string
		resolvedAt dbTime
		resolvedBy sql.NullString
		details    []byte
		userID     sql.NullString
	)
	if err := s.Scan(&a.ID, &ts, &source, &a.Confidence, &a.IsResolved, &resolvedAt, &resolvedBy, &details, &userID); err != nil {
		return a, err
	}
	a.Timestamp = ts.Time
	a.Source = model.Source(source)
	a.ResolvedAt = resolvedAt.ptr()
	a.ResolvedBy = nullString(resolvedBy)
	a.UserID = nullString(userID)
	d, err := decodeDetails(details)
	if err != nil {
		return a, err
	}
	if d == nil {
		d = map[string]any{}
	}
	a.Details = d
	return a, nil
}
