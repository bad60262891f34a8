package invitations

import (
	"context"
	"database/sql"
	"fmt"

	"quotr/internal/platform/database"
	"quotr/internal/platform/models"
)

const invitationColumns = `id, name, organisation_id, usage_quota, created_ticket_count, created_at, deleted_at`

const defaultColumns = `d.id, d.invitation_id, d.quota_type_id, COALESCE(qt.name, ''), d.value, d.created_at, d.deleted_at`

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return r.db.BeginTx(ctx, nil)
}

func (r *Repository) CreateTx(ctx context.Context, tx *sql.Tx, inv *models.Invitation) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO invitations (id, name, organisation_id, usage_quota, created_ticket_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, inv.ID, inv.Name, inv.OrganisationID, inv.UsageQuota, inv.CreatedTicketCount, inv.CreatedAt)
	return err
}

// GetByID returns the invitation whether or not it was deleted, or nil, nil
// when it never existed.
func (r *Repository) GetByID(ctx context.Context, id string) (*models.Invitation, error) {
	return r.get(ctx, r.db, id)
}

func (r *Repository) GetByIDTx(ctx context.Context, tx *sql.Tx, id string) (*models.Invitation, error) {
	return r.get(ctx, tx, id)
}

func (r *Repository) get(ctx context.Context, q database.Querier, id string) (*models.Invitation, error) {
	row := q.QueryRowContext(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE id = ?`, id)
	return scanInvitation(row)
}

// GetPublic returns the public view of a live invitation, or nil, nil.
func (r *Repository) GetPublic(ctx context.Context, id string) (*models.PublicInvitation, error) {
	var p models.PublicInvitation
	var created int
	err := r.db.QueryRowContext(ctx, `
		SELECT i.id, i.name, i.organisation_id, o.name, i.usage_quota, i.created_ticket_count
		FROM invitations i
		JOIN organisations o ON o.id = i.organisation_id
		WHERE i.id = ? AND i.deleted_at IS NULL
	`, id).Scan(&p.ID, &p.Name, &p.OrganisationID, &p.OrganisationName, &p.UsageQuota, &created)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	p.UsageLeft = p.UsageQuota - created
	return &p, nil
}

func (r *Repository) List(ctx context.Context) ([]*models.Invitation, error) {
	return r.list(ctx, `SELECT `+invitationColumns+` FROM invitations ORDER BY created_at, id`)
}

// ListByOrganisation lists the live invitations of an organisation. With
// onlyUsable set, exhausted invitations are left out.
func (r *Repository) ListByOrganisation(ctx context.Context, organisationID string, onlyUsable bool) ([]*models.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations
		WHERE organisation_id = ? AND deleted_at IS NULL`
	if onlyUsable {
		query += ` AND created_ticket_count < usage_quota`
	}
	query += ` ORDER BY created_at, id`
	return r.list(ctx, query, organisationID)
}

func (r *Repository) list(ctx context.Context, query string, args ...interface{}) ([]*models.Invitation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invitations := []*models.Invitation{}
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		invitations = append(invitations, inv)
	}
	return invitations, rows.Err()
}

// UpdateTx writes name, organisation and usage quota of a live invitation.
// It reports false when the invitation is gone or the new quota would fall
// below the tickets already issued.
func (r *Repository) UpdateTx(ctx context.Context, tx *sql.Tx, inv *models.Invitation) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE invitations SET name = ?, organisation_id = ?, usage_quota = ?
		WHERE id = ? AND deleted_at IS NULL AND created_ticket_count <= ?
	`, inv.Name, inv.OrganisationID, inv.UsageQuota, inv.ID, inv.UsageQuota)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SoftDeleteTx marks an invitation and its active templates deleted.
func (r *Repository) SoftDeleteTx(ctx context.Context, tx *sql.Tx, id string, at int64) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE invitations SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL
	`, at, id)
	if err != nil {
		return false, err
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return false, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE default_quotas SET deleted_at = ? WHERE invitation_id = ? AND deleted_at IS NULL
	`, at, id); err != nil {
		return false, fmt.Errorf("delete default quotas: %w", err)
	}
	return true, nil
}

// ReserveTicketTx takes one slot of a live invitation. It reports false
// when the invitation is missing, deleted or used up.
func (r *Repository) ReserveTicketTx(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE invitations SET created_ticket_count = created_ticket_count + 1
		WHERE id = ? AND deleted_at IS NULL AND created_ticket_count < usage_quota
	`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *Repository) OrganisationExistsTx(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	return organisationExists(ctx, tx, id)
}

func (r *Repository) OrganisationExists(ctx context.Context, id string) (bool, error) {
	return organisationExists(ctx, r.db, id)
}

func organisationExists(ctx context.Context, q database.Querier, id string) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM organisations WHERE id = ?)`, id).Scan(&exists)
	return exists, err
}

func (r *Repository) CreateDefaultTx(ctx context.Context, tx *sql.Tx, d *models.DefaultQuota) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO default_quotas (id, invitation_id, quota_type_id, value, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, d.ID, d.InvitationID, d.QuotaTypeID, d.Value, d.CreatedAt)
	return err
}

// ActiveDefaultsTx lists the live templates of an invitation.
func (r *Repository) ActiveDefaultsTx(ctx context.Context, tx *sql.Tx, invitationID string) ([]*models.DefaultQuota, error) {
	return activeDefaults(ctx, tx, invitationID)
}

func (r *Repository) ListDefaults(ctx context.Context, invitationID string) ([]*models.DefaultQuota, error) {
	return activeDefaults(ctx, r.db, invitationID)
}

func activeDefaults(ctx context.Context, q database.Querier, invitationID string) ([]*models.DefaultQuota, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+defaultColumns+`
		FROM default_quotas d
		LEFT JOIN quota_types qt ON qt.id = d.quota_type_id
		WHERE d.invitation_id = ? AND d.deleted_at IS NULL
		ORDER BY d.created_at, d.id
	`, invitationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	defaults := []*models.DefaultQuota{}
	for rows.Next() {
		d, err := scanDefault(rows)
		if err != nil {
			return nil, err
		}
		defaults = append(defaults, d)
	}
	return defaults, rows.Err()
}

// GetDefault returns a live template and the organisation owning its
// invitation, or nil when there is none.
func (r *Repository) GetDefault(ctx context.Context, id string) (*models.DefaultQuota, string, error) {
	return getDefault(ctx, r.db, id)
}

func (r *Repository) GetDefaultTx(ctx context.Context, tx *sql.Tx, id string) (*models.DefaultQuota, string, error) {
	return getDefault(ctx, tx, id)
}

func getDefault(ctx context.Context, q database.Querier, id string) (*models.DefaultQuota, string, error) {
	var orgID string
	d := &models.DefaultQuota{}
	var deletedAt sql.NullInt64
	err := q.QueryRowContext(ctx, `
		SELECT `+defaultColumns+`, i.organisation_id
		FROM default_quotas d
		JOIN invitations i ON i.id = d.invitation_id
		LEFT JOIN quota_types qt ON qt.id = d.quota_type_id
		WHERE d.id = ? AND d.deleted_at IS NULL
	`, id).Scan(&d.ID, &d.InvitationID, &d.QuotaTypeID, &d.QuotaTypeName, &d.Value, &d.CreatedAt, &deletedAt, &orgID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, "", nil
		}
		return nil, "", err
	}
	return d, orgID, nil
}

// ActiveTypeTakenTx reports whether another live template of the invitation
// already uses the quota type.
func (r *Repository) ActiveTypeTakenTx(ctx context.Context, tx *sql.Tx, invitationID, quotaTypeID, exceptID string) (bool, error) {
	var taken bool
	err := tx.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM default_quotas
			WHERE invitation_id = ? AND quota_type_id = ? AND deleted_at IS NULL AND id != ?
		)
	`, invitationID, quotaTypeID, exceptID).Scan(&taken)
	return taken, err
}

func (r *Repository) UpdateDefaultTx(ctx context.Context, tx *sql.Tx, d *models.DefaultQuota) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE default_quotas SET quota_type_id = ?, value = ? WHERE id = ? AND deleted_at IS NULL
	`, d.QuotaTypeID, d.Value, d.ID)
	return err
}

func (r *Repository) SoftDeleteDefault(ctx context.Context, id string, at int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE default_quotas SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL
	`, at, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// PurgeDeleted hard-deletes templates soft-deleted before cutoff.
func (r *Repository) PurgeDeleted(ctx context.Context, cutoff int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM default_quotas WHERE deleted_at IS NOT NULL AND deleted_at < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanInvitation(s interface {
	Scan(dest ...interface{}) error
}) (*models.Invitation, error) {
	var inv models.Invitation
	var deletedAt sql.NullInt64
	err := s.Scan(&inv.ID, &inv.Name, &inv.OrganisationID, &inv.UsageQuota, &inv.CreatedTicketCount, &inv.CreatedAt, &deletedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if deletedAt.Valid {
		inv.DeletedAt = &deletedAt.Int64
		inv.Deleted = true
	}
	return &inv, nil
}

func scanDefault(s interface {
	Scan(dest ...interface{}) error
}) (*models.DefaultQuota, error) {
	var d models.DefaultQuota
	var deletedAt sql.NullInt64
	if err := s.Scan(&d.ID, &d.InvitationID, &d.QuotaTypeID, &d.QuotaTypeName, &d.Value, &d.CreatedAt, &deletedAt); err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		d.DeletedAt = &deletedAt.Int64
		d.Deleted = true
	}
	return &d, nil
}
