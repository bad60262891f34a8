package ledger

import (
	"context"
	"database/sql"
	"encoding/json"

	"quotr/internal/platform/database"
	"quotr/internal/platform/models"
)

const ticketColumns = `t.id, t.owner_name, t.owner_contacts, t.invitation_id, t.owner_affiliation_id, t.created_at, t.sent_email`

const quotaColumns = `q.id, q.ticket_id, q.quota_type_id, COALESCE(qt.name, ''), q.usage_left`

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return r.db.BeginTx(ctx, nil)
}

func (r *Repository) CreateTicketTx(ctx context.Context, tx *sql.Tx, t *models.Ticket) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO tickets (id, owner_name, owner_contacts, invitation_id, owner_affiliation_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, t.ID, t.OwnerName, string(t.OwnerContacts), t.InvitationID, t.OwnerAffiliationID, t.CreatedAt)
	return err
}

// GetTicket returns a ticket with its quotas, or nil, nil.
func (r *Repository) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets t WHERE t.id = ?`, id)
	t, err := scanTicket(row)
	if err != nil || t == nil {
		return nil, err
	}
	if t.Quotas, err = r.listQuotas(ctx, r.db, `WHERE q.ticket_id = ?`, id); err != nil {
		return nil, err
	}
	return t, nil
}

// UpdateTicket writes only the supplied owner fields.
func (r *Repository) UpdateTicket(ctx context.Context, id string, ownerName *string, ownerContacts json.RawMessage) (bool, error) {
	var contacts sql.NullString
	if ownerContacts != nil {
		contacts = sql.NullString{String: string(ownerContacts), Valid: true}
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE tickets
		SET owner_name = COALESCE(?, owner_name),
		    owner_contacts = COALESCE(?, owner_contacts)
		WHERE id = ?
	`, nullString(ownerName), contacts, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteTicket removes a ticket; its quotas go with it.
func (r *Repository) DeleteTicket(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tickets WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *Repository) ListTickets(ctx context.Context) ([]*models.Ticket, error) {
	return r.listTickets(ctx, ``)
}

func (r *Repository) ListTicketsByInvitation(ctx context.Context, invitationID string) ([]*models.Ticket, error) {
	return r.listTickets(ctx, `WHERE t.invitation_id = ?`, invitationID)
}

func (r *Repository) ListTicketsByOrganisation(ctx context.Context, organisationID string) ([]*models.Ticket, error) {
	return r.listTickets(ctx, `WHERE t.owner_affiliation_id = ?`, organisationID)
}

// listTickets reads the tickets matching where, then attaches their quotas
// in a second query once the first result set is closed.
func (r *Repository) listTickets(ctx context.Context, where string, args ...interface{}) ([]*models.Ticket, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+ticketColumns+` FROM tickets t `+where+` ORDER BY t.created_at, t.id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tickets := []*models.Ticket{}
	byID := make(map[string]*models.Ticket)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		t.Quotas = []*models.Quota{}
		tickets = append(tickets, t)
		byID[t.ID] = t
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	quotas, err := r.listQuotas(ctx, r.db, `WHERE q.ticket_id IN (SELECT t.id FROM tickets t `+where+`)`, args...)
	if err != nil {
		return nil, err
	}
	for _, q := range quotas {
		if t, ok := byID[q.TicketID]; ok {
			t.Quotas = append(t.Quotas, q)
		}
	}
	return tickets, nil
}

// ListUnsent returns up to limit tickets that have an email contact and no
// delivered message yet, oldest first.
func (r *Repository) ListUnsent(ctx context.Context, limit int) ([]*models.Ticket, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets t
		WHERE t.sent_email = ''
		  AND COALESCE(json_extract(t.owner_contacts, '$.email'), '') != ''
		ORDER BY t.created_at, t.id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tickets := []*models.Ticket{}
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

// MarkSent records the message id a ticket was delivered under.
func (r *Repository) MarkSent(ctx context.Context, id, messageID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE tickets SET sent_email = ? WHERE id = ?`, messageID, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *Repository) CreateQuotaTx(ctx context.Context, tx *sql.Tx, q *models.Quota) error {
	return createQuota(ctx, tx, q)
}

func (r *Repository) CreateQuota(ctx context.Context, q *models.Quota) error {
	return createQuota(ctx, r.db, q)
}

func createQuota(ctx context.Context, db database.Querier, q *models.Quota) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO quotas (id, ticket_id, quota_type_id, usage_left) VALUES (?, ?, ?, ?)
	`, q.ID, q.TicketID, q.QuotaTypeID, q.UsageLeft)
	return err
}

// GetQuota returns a quota and the organisation its ticket is affiliated
// with, or nil, nil.
func (r *Repository) GetQuota(ctx context.Context, id string) (*models.QuotaOwner, error) {
	var owner models.QuotaOwner
	q := &models.Quota{}
	err := r.db.QueryRowContext(ctx, `
		SELECT `+quotaColumns+`, t.owner_affiliation_id
		FROM quotas q
		JOIN tickets t ON t.id = q.ticket_id
		LEFT JOIN quota_types qt ON qt.id = q.quota_type_id
		WHERE q.id = ?
	`, id).Scan(&q.ID, &q.TicketID, &q.QuotaTypeID, &q.QuotaTypeName, &q.UsageLeft, &owner.OrganisationID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	owner.Quota = q
	return &owner, nil
}

func (r *Repository) ListQuotas(ctx context.Context) ([]*models.Quota, error) {
	return r.listQuotas(ctx, r.db, ``)
}

func (r *Repository) listQuotas(ctx context.Context, db database.Querier, where string, args ...interface{}) ([]*models.Quota, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+quotaColumns+`
		FROM quotas q
		LEFT JOIN quota_types qt ON qt.id = q.quota_type_id
		`+where+`
		ORDER BY qt.name, q.id
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	quotas := []*models.Quota{}
	for rows.Next() {
		q := &models.Quota{}
		if err := rows.Scan(&q.ID, &q.TicketID, &q.QuotaTypeID, &q.QuotaTypeName, &q.UsageLeft); err != nil {
			return nil, err
		}
		quotas = append(quotas, q)
	}
	return quotas, rows.Err()
}

// UpdateQuota writes only the supplied fields. A nil field keeps the stored
// value, so a concurrent Consume is never overwritten.
func (r *Repository) UpdateQuota(ctx context.Context, id string, quotaTypeID *string, usageLeft *int) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE quotas
		SET quota_type_id = COALESCE(?, quota_type_id),
		    usage_left = COALESCE(?, usage_left)
		WHERE id = ?
	`, nullString(quotaTypeID), nullInt(usageLeft), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *Repository) DeleteQuota(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM quotas WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Consume takes one unit from a quota. It reports false when the quota is
// missing or already at zero.
func (r *Repository) Consume(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE quotas SET usage_left = usage_left - 1 WHERE id = ? AND usage_left > 0
	`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

func scanTicket(s interface {
	Scan(dest ...interface{}) error
}) (*models.Ticket, error) {
	var t models.Ticket
	var contacts string
	err := s.Scan(&t.ID, &t.OwnerName, &contacts, &t.InvitationID, &t.OwnerAffiliationID, &t.CreatedAt, &t.SentEmail)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	t.OwnerContacts = []byte(contacts)
	return &t, nil
}
