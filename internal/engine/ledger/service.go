package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"quotr/internal/engine/access"
	"quotr/internal/engine/invitations"
	"quotr/internal/pkg/errors"
	"quotr/internal/pkg/logger"
	"quotr/internal/pkg/validator"
	"quotr/internal/platform/audit"
	"quotr/internal/platform/database"
	"quotr/internal/platform/models"
	"quotr/internal/platform/observability"
)

type Service struct {
	repo        *Repository
	invitations *invitations.Repository
	guard       *access.Guard
	audit       *audit.Logger
	metrics     *observability.Metrics
	log         zerolog.Logger
}

func NewService(repo *Repository, invitationRepo *invitations.Repository, guard *access.Guard, auditLog *audit.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		repo:        repo,
		invitations: invitationRepo,
		guard:       guard,
		audit:       auditLog,
		metrics:     metrics,
		log:         logger.For("ledger"),
	}
}

type CreateTicketInput struct {
	InvitationID  string          `json:"invitation_id"`
	OwnerName     string          `json:"owner_name"`
	OwnerContacts json.RawMessage `json:"owner_contacts"`
}

type UpdateTicketInput struct {
	OwnerName     *string         `json:"owner_name"`
	OwnerContacts json.RawMessage `json:"owner_contacts"`
}

// CreateTicket issues a ticket from an invitation. Holding the invitation id
// is the credential. The ticket receives one quota per live template of the
// invitation.
func (s *Service) CreateTicket(ctx context.Context, caller access.Caller, in CreateTicketInput) (*models.Ticket, error) {
	if err := s.guard.Require(caller, access.ActionCreateTicket, access.Resource{}); err != nil {
		return nil, err
	}

	name, err := validator.Name("owner name", in.OwnerName)
	if err != nil {
		return nil, err
	}
	contacts, err := normalizeContacts(in.OwnerContacts)
	if err != nil {
		return nil, err
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	reserved, err := s.invitations.ReserveTicketTx(ctx, tx, in.InvitationID)
	if err != nil {
		return nil, fmt.Errorf("reserve ticket: %w", err)
	}
	inv, err := s.invitations.GetByIDTx(ctx, tx, in.InvitationID)
	if err != nil {
		return nil, fmt.Errorf("get invitation: %w", err)
	}
	if inv == nil || inv.Deleted {
		return nil, errors.Wrap(errors.ErrNotFound, "invitation %s not found", in.InvitationID)
	}
	if !reserved {
		return nil, errors.Wrap(errors.ErrConflict, "invitation %s has no tickets left", in.InvitationID)
	}

	ticket := &models.Ticket{
		ID:                 uuid.New().String(),
		OwnerName:          name,
		OwnerContacts:      contacts,
		InvitationID:       inv.ID,
		OwnerAffiliationID: inv.OrganisationID,
		CreatedAt:          time.Now().Unix(),
	}
	if err := s.repo.CreateTicketTx(ctx, tx, ticket); err != nil {
		return nil, fmt.Errorf("create ticket: %w", err)
	}

	defaults, err := s.invitations.ActiveDefaultsTx(ctx, tx, inv.ID)
	if err != nil {
		return nil, fmt.Errorf("list default quotas: %w", err)
	}
	ticket.Quotas = make([]*models.Quota, 0, len(defaults))
	for _, d := range defaults {
		q := &models.Quota{
			ID:            uuid.New().String(),
			TicketID:      ticket.ID,
			QuotaTypeID:   d.QuotaTypeID,
			QuotaTypeName: d.QuotaTypeName,
			UsageLeft:     d.Value,
		}
		if err := s.repo.CreateQuotaTx(ctx, tx, q); err != nil {
			return nil, fmt.Errorf("create quota: %w", err)
		}
		ticket.Quotas = append(ticket.Quotas, q)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.metrics.RecordTicketIssued()
	s.log.Debug().
		Str("ticket_id", ticket.ID).
		Str("invitation_id", inv.ID).
		Int("quotas", len(ticket.Quotas)).
		Msg("ticket issued")
	s.audit.Log(ctx, audit.Event{
		OrganisationID: inv.OrganisationID,
		UserID:         caller.UserID,
		Action:         audit.ActionCreate,
		ResourceType:   "ticket",
		ResourceID:     ticket.ID,
		Summary:        fmt.Sprintf("issued ticket for %s from invitation %s", ticket.OwnerName, inv.Name),
	})
	return ticket, nil
}

func (s *Service) GetTicket(ctx context.Context, caller access.Caller, id string) (*models.Ticket, error) {
	if err := s.guard.Require(caller, access.ActionGetTicket, access.Resource{}); err != nil {
		return nil, err
	}
	return s.getTicket(ctx, id)
}

// UpdateTicket changes the owner details. Holding the ticket id is the
// credential.
func (s *Service) UpdateTicket(ctx context.Context, caller access.Caller, id string, in UpdateTicketInput) (*models.Ticket, error) {
	if err := s.guard.Require(caller, access.ActionUpdateTicket, access.Resource{}); err != nil {
		return nil, err
	}

	var name *string
	if in.OwnerName != nil {
		trimmed, err := validator.Name("owner name", *in.OwnerName)
		if err != nil {
			return nil, err
		}
		name = &trimmed
	}
	var contacts json.RawMessage
	if len(in.OwnerContacts) > 0 {
		var err error
		if contacts, err = normalizeContacts(in.OwnerContacts); err != nil {
			return nil, err
		}
	}

	ok, err := s.repo.UpdateTicket(ctx, id, name, contacts)
	if err != nil {
		return nil, fmt.Errorf("update ticket: %w", err)
	}
	if !ok {
		return nil, errors.Wrap(errors.ErrNotFound, "ticket %s not found", id)
	}

	ticket, err := s.getTicket(ctx, id)
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, audit.Event{
		OrganisationID: ticket.OwnerAffiliationID,
		UserID:         caller.UserID,
		Action:         audit.ActionUpdate,
		ResourceType:   "ticket",
		ResourceID:     id,
		Summary:        "updated ticket owner " + ticket.OwnerName,
	})
	return ticket, nil
}

// DeleteTicket removes a ticket and its quotas. The invitation's issued
// count is left as it was.
func (s *Service) DeleteTicket(ctx context.Context, caller access.Caller, id string) error {
	if err := s.guard.Precheck(caller, access.ActionDeleteTicket); err != nil {
		return err
	}

	ticket, err := s.getTicket(ctx, id)
	if err != nil {
		return err
	}
	if err := s.guard.Require(caller, access.ActionDeleteTicket, access.OwnedBy(ticket.OwnerAffiliationID)); err != nil {
		return err
	}

	ok, err := s.repo.DeleteTicket(ctx, id)
	if err != nil {
		return fmt.Errorf("delete ticket: %w", err)
	}
	if !ok {
		return errors.Wrap(errors.ErrNotFound, "ticket %s not found", id)
	}

	s.audit.Log(ctx, audit.Event{
		OrganisationID: ticket.OwnerAffiliationID,
		UserID:         caller.UserID,
		Action:         audit.ActionDelete,
		ResourceType:   "ticket",
		ResourceID:     id,
		Summary:        "deleted ticket of " + ticket.OwnerName,
	})
	return nil
}

func (s *Service) ListTickets(ctx context.Context, caller access.Caller) ([]*models.Ticket, error) {
	if err := s.guard.Require(caller, access.ActionListTickets, access.Resource{}); err != nil {
		return nil, err
	}
	tickets, err := s.repo.ListTickets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	return tickets, nil
}

// ListByInvitation lists the tickets issued from an invitation, including
// one that was since deleted.
func (s *Service) ListByInvitation(ctx context.Context, caller access.Caller, invitationID string) ([]*models.Ticket, error) {
	if err := s.guard.Precheck(caller, access.ActionListInvitationTickets); err != nil {
		return nil, err
	}

	inv, err := s.invitations.GetByID(ctx, invitationID)
	if err != nil {
		return nil, fmt.Errorf("get invitation: %w", err)
	}
	if inv == nil {
		return nil, errors.Wrap(errors.ErrNotFound, "invitation %s not found", invitationID)
	}
	if err := s.guard.Require(caller, access.ActionListInvitationTickets, access.OwnedBy(inv.OrganisationID)); err != nil {
		return nil, err
	}

	tickets, err := s.repo.ListTicketsByInvitation(ctx, invitationID)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	return tickets, nil
}

// ListByOrganisation lists the tickets affiliated with an organisation.
func (s *Service) ListByOrganisation(ctx context.Context, caller access.Caller, organisationID string) ([]*models.Ticket, error) {
	if err := s.guard.Require(caller, access.ActionListOrganisationTickets, access.OwnedBy(organisationID)); err != nil {
		return nil, err
	}

	exists, err := s.invitations.OrganisationExists(ctx, organisationID)
	if err != nil {
		return nil, fmt.Errorf("check organisation: %w", err)
	}
	if !exists {
		return nil, errors.Wrap(errors.ErrNotFound, "organisation %s not found", organisationID)
	}

	tickets, err := s.repo.ListTicketsByOrganisation(ctx, organisationID)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	return tickets, nil
}

func (s *Service) getTicket(ctx context.Context, id string) (*models.Ticket, error) {
	ticket, err := s.repo.GetTicket(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	if ticket == nil {
		return nil, errors.Wrap(errors.ErrNotFound, "ticket %s not found", id)
	}
	return ticket, nil
}

// normalizeContacts accepts a JSON object of contact details. Absent
// contacts are stored as an empty object.
func normalizeContacts(raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return json.RawMessage(`{}`), nil
	}
	var contacts map[string]interface{}
	if err := json.Unmarshal(raw, &contacts); err != nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "owner contacts must be a JSON object")
	}
	normalized, err := json.Marshal(contacts)
	if err != nil {
		return nil, fmt.Errorf("encode contacts: %w", err)
	}
	return normalized, nil
}

// quotaError classifies a failed quota write.
func quotaError(err error, q *models.Quota) error {
	switch {
	case database.IsUniqueViolation(err):
		return errors.Wrap(errors.ErrConflict, "ticket %s already has a quota of type %s", q.TicketID, q.QuotaTypeID)
	case database.IsForeignKeyViolation(err):
		return errors.Wrap(errors.ErrNotFound, "quota type %s not found", q.QuotaTypeID)
	default:
		return fmt.Errorf("write quota: %w", err)
	}
}
