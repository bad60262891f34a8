package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"quotr/internal/pkg/errors"
	"quotr/internal/platform/models"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, qt *models.QuotaType) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO quota_types (id, name, description, created_at)
		VALUES (?, ?, ?, ?)
	`, qt.ID, qt.Name, qt.Description, qt.CreatedAt)
	return err
}

// GetByID returns nil, nil when the quota type does not exist.
func (r *Repository) GetByID(ctx context.Context, id string) (*models.QuotaType, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, description, created_at FROM quota_types WHERE id = ?
	`, id)
	return scanQuotaType(row)
}

// ExistsTx reports whether id names a quota type.
func (r *Repository) ExistsTx(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	var exists bool
	err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM quota_types WHERE id = ?)`, id).Scan(&exists)
	return exists, err
}

func (r *Repository) List(ctx context.Context) ([]*models.QuotaType, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, description, created_at FROM quota_types ORDER BY created_at, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	types := []*models.QuotaType{}
	for rows.Next() {
		qt, err := scanQuotaType(rows)
		if err != nil {
			return nil, err
		}
		types = append(types, qt)
	}
	return types, rows.Err()
}

func (r *Repository) Update(ctx context.Context, qt *models.QuotaType) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE quota_types SET name = ?, description = ? WHERE id = ?
	`, qt.Name, qt.Description, qt.ID)
	return err
}

// Delete removes a quota type nothing live refers to. Soft-deleted templates
// pointing at it are purged in the same transaction.
func (r *Repository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var templates, quotas int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM default_quotas WHERE quota_type_id = ? AND deleted_at IS NULL
	`, id).Scan(&templates); err != nil {
		return fmt.Errorf("count default quotas: %w", err)
	}
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM quotas WHERE quota_type_id = ?
	`, id).Scan(&quotas); err != nil {
		return fmt.Errorf("count quotas: %w", err)
	}
	if templates > 0 || quotas > 0 {
		return errors.Wrap(errors.ErrConflict,
			"quota type is still referenced by %d default quotas and %d quotas", templates, quotas)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM default_quotas WHERE quota_type_id = ? AND deleted_at IS NOT NULL
	`, id); err != nil {
		return fmt.Errorf("purge deleted default quotas: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM quota_types WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete quota type: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrap(errors.ErrNotFound, "quota type %s not found", id)
	}

	return tx.Commit()
}

// Usage lists the quotas and active default quotas referencing a type.
func (r *Repository) Usage(ctx context.Context, id string) ([]*models.Quota, []*models.DefaultQuota, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, ticket_id, quota_type_id, usage_left FROM quotas WHERE quota_type_id = ?
	`, id)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	quotas := []*models.Quota{}
	for rows.Next() {
		q := &models.Quota{}
		if err := rows.Scan(&q.ID, &q.TicketID, &q.QuotaTypeID, &q.UsageLeft); err != nil {
			return nil, nil, err
		}
		quotas = append(quotas, q)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	rows.Close()

	drows, err := r.db.QueryContext(ctx, `
		SELECT id, invitation_id, quota_type_id, value, created_at
		FROM default_quotas WHERE quota_type_id = ? AND deleted_at IS NULL
	`, id)
	if err != nil {
		return nil, nil, err
	}
	defer drows.Close()

	defaults := []*models.DefaultQuota{}
	for drows.Next() {
		d := &models.DefaultQuota{}
		if err := drows.Scan(&d.ID, &d.InvitationID, &d.QuotaTypeID, &d.Value, &d.CreatedAt); err != nil {
			return nil, nil, err
		}
		defaults = append(defaults, d)
	}
	return quotas, defaults, drows.Err()
}

func scanQuotaType(s interface {
	Scan(dest ...interface{}) error
}) (*models.QuotaType, error) {
	var qt models.QuotaType
	err := s.Scan(&qt.ID, &qt.Name, &qt.Description, &qt.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &qt, nil
}
