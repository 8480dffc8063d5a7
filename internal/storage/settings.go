package storage

import (
	"context"
	"database/sql"
	"strings"

	"idsguard/internal/failure"
	"idsguard/internal/model"
)

// SetSetting upserts key. An empty description keeps the stored one.
func (b *baseStore) SetSetting(ctx context.Context, key, value, description string) error {
	const op = "set setting"
	key = strings.TrimSpace(key)
	if key == "" {
		return failure.New(failure.KindContract, op, "setting key is required")
	}
	var desc any
	if description != "" {
		desc = description
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr(op, err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := b.exec(ctx, tx,
		`INSERT INTO settings (key, value, description, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			value = excluded.value,
			description = COALESCE(excluded.description, settings.description),
			updated_at = excluded.updated_at`,
		key, value, desc, b.d.timeArg(b.stamp()),
	); err != nil {
		return storageErr(op, err)
	}
	return storageErr(op, tx.Commit())
}

func (b *baseStore) GetSetting(ctx context.Context, key string) (model.Setting, error) {
	const op = "get setting"
	row := b.db.QueryRowContext(ctx, b.d.rebind(
		`SELECT key, value, description, updated_at FROM settings WHERE key = ?`), key)
	s, err := scanSetting(row)
	if isNoRows(err) {
		return model.Setting{}, failure.Newf(failure.KindNotFound, op, "setting %q not found", key)
	}
	if err != nil {
		return model.Setting{}, storageErr(op, err)
	}
	return s, nil
}

func (b *baseStore) GetAllSettings(ctx context.Context) ([]model.Setting, error) {
	const op = "get settings"
	rows, err := b.db.QueryContext(ctx, `SELECT key, value, description, updated_at FROM settings ORDER BY key`)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()
	out := make([]model.Setting, 0)
	for rows.Next() {
		s, err := scanSetting(rows)
		if err != nil {
			return nil, storageErr(op, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}
	return out, nil
}

func scanSetting(s rowScanner) (model.Setting, error) {
	var (
		out       model.Setting
		desc      sql.NullString
		updatedAt dbTime
	)
	if err := s.Scan(&out.Key, &out.Value, &desc, &updatedAt); err != nil {
		return out, err
	}
	out.Description = desc.String
	out.UpdatedAt = updatedAt.Time
	return out, nil
}
