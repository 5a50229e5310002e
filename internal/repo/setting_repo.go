package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SettingRepo reads operator-controlled flags
type SettingRepo interface {
	GetValue(ctx context.Context, key string) (string, error)
}

type settingRepo struct {
	db *sql.DB
}

// NewSettingRepo creates a new SettingRepo instance
func NewSettingRepo(db *sql.DB) SettingRepo {
	return &settingRepo{db: db}
}

// GetValue returns the value of key, ErrNotFound when unset
func (r *settingRepo) GetValue(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("get setting %q: %w", key, ErrNotFound)
		}
		return "", fmt.Errorf("get setting %q: %w", key, err)
	}
	return value, nil
}
