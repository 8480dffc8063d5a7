package storage

import (
	"database/sql"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"idsguard/internal/model"
)

type sqliteStore struct {
	baseStore
}

type sqliteDialect struct{}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:ids_database.db?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, storageErr("open sqlite", err)
	}
	// one connection serializes writers and keeps per-connection pragmas
	db.SetMaxOpenConns(1)
	return &sqliteStore{newBaseStore(db, sqliteDialect{})}, nil
}

func (sqliteDialect) name() string { return "sqlite" }

func (sqliteDialect) schema() []string {
	return []string{
		`PRAGMA foreign_keys = ON`,
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT UNIQUE,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			ts TEXT NOT NULL,
			source TEXT NOT NULL,
			confidence REAL NOT NULL,
			is_resolved INTEGER NOT NULL DEFAULT 0,
			resolved_at TEXT,
			resolved_by TEXT,
			details TEXT NOT NULL,
			user_id TEXT REFERENCES users(id),
			CHECK ((is_resolved AND resolved_at IS NOT NULL) OR (NOT is_resolved AND resolved_at IS NULL AND resolved_by IS NULL))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_resolved ON alerts(is_resolved)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_user ON alerts(user_id)`,
		`CREATE TABLE IF NOT EXISTS metrics (
			id TEXT PRIMARY KEY,
			ts TEXT NOT NULL,
			metric_type TEXT NOT NULL,
			value REAL NOT NULL,
			details TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_metrics_type_ts ON metrics(metric_type, ts)`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			description TEXT,
			updated_at TEXT NOT NULL
		)`,
	}
}

func (sqliteDialect) rebind(query string) string { return query }

// Timestamps are stored as UTC text so range filters compare lexically.
func (sqliteDialect) timeArg(t time.Time) any {
	return t.UTC().Format(sqlTimeLayout)
}

func (sqliteDialect) period(interval model.Interval) string {
	switch interval {
	case model.IntervalHour:
		return `strftime('%Y-%m-%d %H:00', ts)`
	case model.IntervalWeek:
		return `strftime('%Y-%W', ts)`
	case model.IntervalMonth:
		return `strftime('%Y-%m', ts)`
	default:
		return `strftime('%Y-%m-%d', ts)`
	}
}

func (sqliteDialect) resolutionMinutes() string {
	return `(julianday(resolved_at) - julianday(ts)) * 1440.0`
}
