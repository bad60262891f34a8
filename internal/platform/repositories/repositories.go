package repositories

import (
	"context"
	"database/sql"

	"quotr/internal/platform/models"
)

type OrganisationRepository struct {
	db *sql.DB
}

func NewOrganisationRepository(db *sql.DB) *OrganisationRepository {
	return &OrganisationRepository{db: db}
}

func (r *OrganisationRepository) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return r.db.BeginTx(ctx, nil)
}

func (r *OrganisationRepository) CreateTx(ctx context.Context, tx *sql.Tx, org *models.Organisation) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO organisations (id, name, created_at) VALUES (?, ?, ?)
	`, org.ID, org.Name, org.CreatedAt)
	return err
}

func (r *OrganisationRepository) GetByID(ctx context.Context, id string) (*models.Organisation, error) {
	org := &models.Organisation{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, created_at FROM organisations WHERE id = ?
	`, id).Scan(&org.ID, &org.Name, &org.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return org, nil
}

func (r *OrganisationRepository) GetByNameTx(ctx context.Context, tx *sql.Tx, name string) (*models.Organisation, error) {
	org := &models.Organisation{}
	err := tx.QueryRowContext(ctx, `
		SELECT id, name, created_at FROM organisations WHERE name = ?
	`, name).Scan(&org.ID, &org.Name, &org.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return org, nil
}

func (r *OrganisationRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM organisations WHERE id = ?)`, id).Scan(&exists)
	return exists, err
}

func (r *OrganisationRepository) List(ctx context.Context) ([]*models.Organisation, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, created_at FROM organisations ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orgs := []*models.Organisation{}
	for rows.Next() {
		org := &models.Organisation{}
		if err := rows.Scan(&org.ID, &org.Name, &org.CreatedAt); err != nil {
			return nil, err
		}
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}

func (r *OrganisationRepository) Rename(ctx context.Context, id, name string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE organisations SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteCascadeTx removes an organisation with its invitations, their
// templates, and every ticket issued under or affiliated with it.
func (r *OrganisationRepository) DeleteCascadeTx(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	const owned = `
		SELECT t.id FROM tickets t
		WHERE t.owner_affiliation_id = ?
		   OR t.invitation_id IN (SELECT id FROM invitations WHERE organisation_id = ?)
	`
	steps := []struct {
		query string
		args  []interface{}
	}{
		{`DELETE FROM quotas WHERE ticket_id IN (` + owned + `)`, []interface{}{id, id}},
		{`DELETE FROM tickets WHERE id IN (` + owned + `)`, []interface{}{id, id}},
		{`DELETE FROM default_quotas WHERE invitation_id IN (SELECT id FROM invitations WHERE organisation_id = ?)`, []interface{}{id}},
		{`DELETE FROM invitations WHERE organisation_id = ?`, []interface{}{id}},
		{`UPDATE users SET organisation_id = NULL WHERE organisation_id = ?`, []interface{}{id}},
	}
	for _, step := range steps {
		if _, err := tx.ExecContext(ctx, step.query, step.args...); err != nil {
			return false, err
		}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM organisations WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `
	u.id, u.username, u.password_hash, u.role, u.organisation_id, u.created_at, o.name
	FROM users u LEFT JOIN organisations o ON o.id = u.organisation_id
`

func (r *UserRepository) CreateTx(ctx context.Context, tx *sql.Tx, user *models.User) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, role, organisation_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, user.ID, user.Username, user.PasswordHash, int(user.Role), nullString(user.OrganisationID), user.CreatedAt)
	return err
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` WHERE u.id = ?`, id))
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` WHERE u.username = ?`, username))
}

func (r *UserRepository) UsernameTakenTx(ctx context.Context, tx *sql.Tx, username, exceptID string) (bool, error) {
	var taken bool
	err := tx.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM users WHERE username = ? AND id != ?)
	`, username, exceptID).Scan(&taken)
	return taken, err
}

// ListBelow returns users whose role ranks under role. Wire values grow
// with rank, so numeric comparison preserves the order.
func (r *UserRepository) ListBelow(ctx context.Context, role models.Role) ([]*models.User, error) {
	return r.list(ctx, `SELECT `+userColumns+` WHERE u.role < ? ORDER BY u.role DESC, u.username`, int(role))
}

func (r *UserRepository) ListManagers(ctx context.Context, organisationID string) ([]*models.User, error) {
	return r.list(ctx, `SELECT `+userColumns+` WHERE u.organisation_id = ? AND u.role >= ? ORDER BY u.role DESC, u.username`,
		organisationID, int(models.RoleOrganisationManager))
}

func (r *UserRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []*models.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (r *UserRepository) CountManagersTx(ctx context.Context, tx *sql.Tx, organisationID string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM users WHERE organisation_id = ? AND role >= ?
	`, organisationID, int(models.RoleOrganisationManager)).Scan(&n)
	return n, err
}

func (r *UserRepository) UpdateTx(ctx context.Context, tx *sql.Tx, user *models.User) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE users SET username = ?, role = ?, organisation_id = ? WHERE id = ?
	`, user.Username, int(user.Role), nullString(user.OrganisationID), user.ID)
	return err
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id, hash string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, hash, id)
	return err
}

func (r *UserRepository) DeleteTx(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func scanUser(s interface {
	Scan(dest ...interface{}) error
}) (*models.User, error) {
	var user models.User
	var role int
	var orgID, orgName sql.NullString

	err := s.Scan(&user.ID, &user.Username, &user.PasswordHash, &role, &orgID, &user.CreatedAt, &orgName)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	user.Role = models.Role(role)
	if orgID.Valid {
		user.OrganisationID = orgID.String
		user.Organisation = &models.Organisation{ID: orgID.String, Name: orgName.String}
	}
	return &user, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
