package event

import (
	"context"
	"database/sql"
	"encoding/json"

	"quotr/internal/platform/models"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Get returns nil, nil when no config has that name.
func (r *Repository) Get(ctx context.Context, name string) (*models.EventConfig, error) {
	var c models.EventConfig
	var value string
	err := r.db.QueryRowContext(ctx, `
		SELECT name, value, updated_at FROM event_configs WHERE name = ?
	`, name).Scan(&c.Name, &value, &c.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	c.Value = json.RawMessage(value)
	return &c, nil
}

func (r *Repository) List(ctx context.Context) ([]*models.EventConfig, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name, value, updated_at FROM event_configs ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	configs := []*models.EventConfig{}
	for rows.Next() {
		var c models.EventConfig
		var value string
		if err := rows.Scan(&c.Name, &value, &c.UpdatedAt); err != nil {
			return nil, err
		}
		c.Value = json.RawMessage(value)
		configs = append(configs, &c)
	}
	return configs, rows.Err()
}

// Update replaces the value of an existing config. Names are fixed by
// migrations, so an unknown name reports false.
func (r *Repository) Update(ctx context.Context, name string, value json.RawMessage, updatedAt int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE event_configs SET value = ?, updated_at = ? WHERE name = ?
	`, string(value), updatedAt, name)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
