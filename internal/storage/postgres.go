package storage

import (
	"database/sql"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"idsguard/internal/model"
)

type postgresStore struct {
	baseStore
}

type postgresDialect struct{}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/idsguard?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, storageErr("open postgres", err)
	}
	return &postgresStore{newBaseStore(db, postgresDialect{})}, nil
}

func (postgresDialect) name() string { return "postgres" }

func (postgresDialect) schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT UNIQUE,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			source TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			is_resolved BOOLEAN NOT NULL DEFAULT FALSE,
			resolved_at TIMESTAMPTZ,
			resolved_by TEXT,
			details JSONB NOT NULL,
			user_id TEXT REFERENCES users(id),
			CHECK ((is_resolved AND resolved_at IS NOT NULL) OR (NOT is_resolved AND resolved_at IS NULL AND resolved_by IS NULL))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_resolved ON alerts(is_resolved)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_user ON alerts(user_id)`,
		`CREATE TABLE IF NOT EXISTS metrics (
			id TEXT PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			metric_type TEXT NOT NULL,
			value DOUBLE PRECISION NOT NULL,
			details JSONB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_metrics_type_ts ON metrics(metric_type, ts)`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			description TEXT,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
	}
}

// rebind rewrites ? placeholders as $1, $2, ...
func (postgresDialect) rebind(query string) string {
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(ch)
	}
	return sb.String()
}

func (postgresDialect) timeArg(t time.Time) any {
	return t.UTC()
}

func (postgresDialect) period(interval model.Interval) string {
	switch interval {
	case model.IntervalHour:
		return `to_char(ts AT TIME ZONE 'UTC', 'YYYY-MM-DD HH24:00')`
	case model.IntervalWeek:
		return `to_char(ts AT TIME ZONE 'UTC', 'IYYY-IW')`
	case model.IntervalMonth:
		return `to_char(ts AT TIME ZONE 'UTC', 'YYYY-MM')`
	default:
		return `to_char(ts AT TIME ZONE 'UTC', 'YYYY-MM-DD')`
	}
}

func (postgresDialect) resolutionMinutes() string {
	return `CAST(EXTRACT(EPOCH FROM (resolved_at - ts)) AS DOUBLE PRECISION) / 60.0`
}
