package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"idsguard/internal/config"
	"idsguard/internal/failure"
	"idsguard/internal/model"
)

const (
	defaultLimit  = 100
	defaultActor  = "system"
	sqlTimeLayout = "2006-01-02 15:04:05"
)

// Store persists alerts, metrics and settings. Every write is a single
// transaction; AddAlerts commits all of its alerts or none of them.
type Store interface {
	Init(ctx context.Context) error
	Close() error
	Ping(ctx context.Context) error

	AddAlert(ctx context.Context, alert model.Alert) (string, error)
	AddAlerts(ctx context.Context, alerts []model.Alert) error
	GetAlerts(ctx context.Context, filter model.AlertFilter) ([]model.Alert, error)
	GetAlertByID(ctx context.Context, id string) (model.Alert, error)
	ResolveAlert(ctx context.Context, id string, resolvedBy *string) (model.Alert, error)
	GetAlertStats(ctx context.Context, r model.TimeRange) (model.AlertStats, error)

	AddMetric(ctx context.Context, metric model.Metric) (string, error)
	GetMetrics(ctx context.Context, filter model.MetricFilter) ([]model.Metric, error)
	GetMetricSummary(ctx context.Context, metricType string, interval model.Interval, r model.TimeRange) (model.MetricSummary, error)

	SetSetting(ctx context.Context, key, value, description string) error
	GetSetting(ctx context.Context, key string) (model.Setting, error)
	GetAllSettings(ctx context.Context) ([]model.Setting, error)
}

func NewStore(cfg config.StorageConfig) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "sqlite", "":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, failure.Newf(failure.KindStorage, "open store", "unsupported storage driver %q", cfg.Driver)
	}
}

// dialect isolates the SQL that differs between engines. Queries are
// written with ? placeholders and passed through rebind.
type dialect interface {
	name() string
	schema() []string
	rebind(query string) string
	timeArg(t time.Time) any
	period(interval model.Interval) string
	resolutionMinutes() string
}

type baseStore struct {
	db  *sql.DB
	d   dialect
	now func() time.Time
}

func newBaseStore(db *sql.DB, d dialect) baseStore {
	return baseStore{db: db, d: d, now: time.Now}
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func (b *baseStore) Ping(ctx context.Context) error {
	return storageErr("ping", b.db.PingContext(ctx))
}

func (b *baseStore) Init(ctx context.Context) error {
	for _, stmt := range b.d.schema() {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return storageErr("init "+b.d.name(), err)
		}
	}
	return nil
}

func (b *baseStore) exec(ctx context.Context, q execer, query string, args ...any) (sql.Result, error) {
	return q.ExecContext(ctx, b.d.rebind(query), args...)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (b *baseStore) stamp() time.Time {
	return b.now().UTC().Truncate(time.Second)
}

func storageErr(op string, err error) error {
	return failure.Wrap(failure.KindStorage, op, err)
}

func encodeJSON(value any) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeDetails(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode details: %w", err)
	}
	return out, nil
}

// where collects ANDed conditions written with ? placeholders.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, args ...any) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *where) timeRange(d dialect, column string, r model.TimeRange) {
	if !r.Start.IsZero() {
		w.add(column+" >= ?", d.timeArg(r.Start))
	}
	if !r.End.IsZero() {
		w.add(column+" <= ?", d.timeArg(r.End))
	}
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// dbTime scans timestamps stored either natively or as text.
type dbTime struct {
	Time  time.Time
	Valid bool
}

var timeLayouts = []string{
	sqlTimeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02T15:04:05",
}

func (t *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
		return nil
	case time.Time:
		t.Time, t.Valid = v.UTC(), true
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("cannot scan %T into timestamp", src)
	}
}

func (t *dbTime) parse(s string) error {
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			t.Time, t.Valid = ts.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

func (t dbTime) ptr() *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func nullableText(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func newID() string {
	return uuid.NewString()
}
