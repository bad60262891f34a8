package invitations

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"quotr/internal/engine/access"
	"quotr/internal/engine/catalog"
	"quotr/internal/pkg/errors"
	"quotr/internal/pkg/validator"
	"quotr/internal/platform/audit"
	"quotr/internal/platform/database"
	"quotr/internal/platform/models"
)

type Service struct {
	repo  *Repository
	types *catalog.Repository
	guard *access.Guard
	audit *audit.Logger
}

func NewService(repo *Repository, types *catalog.Repository, guard *access.Guard, auditLog *audit.Logger) *Service {
	return &Service{repo: repo, types: types, guard: guard, audit: auditLog}
}

type CreateInput struct {
	Name           string                     `json:"name"`
	OrganisationID string                     `json:"organisation_id"`
	UsageQuota     *int                       `json:"usage_quota"`
	Defaults       []models.DefaultQuotaInput `json:"default_quotas"`
}

type UpdateInput struct {
	Name           *string                    `json:"name"`
	OrganisationID *string                    `json:"organisation_id"`
	UsageQuota     *int                       `json:"usage_quota"`
	NewDefaults    []models.DefaultQuotaInput `json:"new_default_quotas"`
}

func (s *Service) CreateInvitation(ctx context.Context, caller access.Caller, in CreateInput) (*models.Invitation, error) {
	if err := s.guard.Require(caller, access.ActionCreateInvitation, access.OwnedBy(in.OrganisationID)); err != nil {
		return nil, err
	}

	name, err := validator.Name("name", in.Name)
	if err != nil {
		return nil, err
	}
	usageQuota := 1
	if in.UsageQuota != nil {
		usageQuota = *in.UsageQuota
	}
	if usageQuota < 0 {
		return nil, errors.Wrap(errors.ErrInvalidInput, "usage quota must not be negative")
	}
	if err := validateDefaults(in.Defaults); err != nil {
		return nil, err
	}

	inv := &models.Invitation{
		ID:             uuid.New().String(),
		Name:           name,
		OrganisationID: in.OrganisationID,
		UsageQuota:     usageQuota,
		CreatedAt:      time.Now().Unix(),
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	exists, err := s.repo.OrganisationExistsTx(ctx, tx, in.OrganisationID)
	if err != nil {
		return nil, fmt.Errorf("check organisation: %w", err)
	}
	if !exists {
		return nil, errors.Wrap(errors.ErrNotFound, "organisation %s not found", in.OrganisationID)
	}

	if err := s.repo.CreateTx(ctx, tx, inv); err != nil {
		if database.IsForeignKeyViolation(err) {
			return nil, errors.Wrap(errors.ErrNotFound, "organisation %s not found", in.OrganisationID)
		}
		return nil, fmt.Errorf("create invitation: %w", err)
	}

	if inv.DefaultQuotas, err = s.insertDefaults(ctx, tx, inv.ID, in.Defaults); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.audit.Log(ctx, audit.Event{
		OrganisationID: inv.OrganisationID,
		UserID:         caller.UserID,
		Action:         audit.ActionCreate,
		ResourceType:   "invitation",
		ResourceID:     inv.ID,
		Summary:        fmt.Sprintf("created invitation %s for %d tickets", inv.Name, inv.UsageQuota),
	})
	return inv, nil
}

func (s *Service) UpdateInvitation(ctx context.Context, caller access.Caller, id string, in UpdateInput) (*models.Invitation, error) {
	if err := s.guard.Precheck(caller, access.ActionUpdateInvitation); err != nil {
		return nil, err
	}
	if err := validateDefaults(in.NewDefaults); err != nil {
		return nil, err
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	inv, err := s.repo.GetByIDTx(ctx, tx, id)
	if err != nil {
		return nil, fmt.Errorf("get invitation: %w", err)
	}
	if inv == nil || inv.Deleted {
		return nil, errors.Wrap(errors.ErrNotFound, "invitation %s not found", id)
	}
	if err := s.guard.Require(caller, access.ActionUpdateInvitation, access.OwnedBy(inv.OrganisationID)); err != nil {
		return nil, err
	}

	if in.Name != nil {
		name, err := validator.Name("name", *in.Name)
		if err != nil {
			return nil, err
		}
		inv.Name = name
	}
	if in.OrganisationID != nil && *in.OrganisationID != inv.OrganisationID {
		if err := s.guard.Require(caller, access.ActionUpdateInvitation, access.OwnedBy(*in.OrganisationID)); err != nil {
			return nil, err
		}
		exists, err := s.repo.OrganisationExistsTx(ctx, tx, *in.OrganisationID)
		if err != nil {
			return nil, fmt.Errorf("check organisation: %w", err)
		}
		if !exists {
			return nil, errors.Wrap(errors.ErrNotFound, "organisation %s not found", *in.OrganisationID)
		}
		inv.OrganisationID = *in.OrganisationID
	}
	if in.UsageQuota != nil {
		if *in.UsageQuota < 0 {
			return nil, errors.Wrap(errors.ErrInvalidInput, "usage quota must not be negative")
		}
		if *in.UsageQuota < inv.CreatedTicketCount {
			return nil, errors.Wrap(errors.ErrConflict,
				"usage quota %d is below the %d tickets already issued", *in.UsageQuota, inv.CreatedTicketCount)
		}
		inv.UsageQuota = *in.UsageQuota
	}

	ok, err := s.repo.UpdateTx(ctx, tx, inv)
	if err != nil {
		return nil, fmt.Errorf("update invitation: %w", err)
	}
	if !ok {
		return nil, errors.Wrap(errors.ErrConflict, "invitation %s changed concurrently", id)
	}

	if len(in.NewDefaults) > 0 {
		existing, err := s.repo.ActiveDefaultsTx(ctx, tx, id)
		if err != nil {
			return nil, fmt.Errorf("list default quotas: %w", err)
		}
		for _, d := range existing {
			for _, n := range in.NewDefaults {
				if d.QuotaTypeID == n.QuotaTypeID {
					return nil, errors.Wrap(errors.ErrConflict,
						"invitation already has a default quota of type %s", n.QuotaTypeID)
				}
			}
		}
		if _, err := s.insertDefaults(ctx, tx, id, in.NewDefaults); err != nil {
			return nil, err
		}
	}

	if inv.DefaultQuotas, err = s.repo.ActiveDefaultsTx(ctx, tx, id); err != nil {
		return nil, fmt.Errorf("list default quotas: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.audit.Log(ctx, audit.Event{
		OrganisationID: inv.OrganisationID,
		UserID:         caller.UserID,
		Action:         audit.ActionUpdate,
		ResourceType:   "invitation",
		ResourceID:     inv.ID,
		Summary:        "updated invitation " + inv.Name,
	})
	return inv, nil
}

// DeleteInvitation retires an invitation. Tickets issued from it stay.
func (s *Service) DeleteInvitation(ctx context.Context, caller access.Caller, id string) error {
	if err := s.guard.Precheck(caller, access.ActionDeleteInvitation); err != nil {
		return err
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	inv, err := s.repo.GetByIDTx(ctx, tx, id)
	if err != nil {
		return fmt.Errorf("get invitation: %w", err)
	}
	if inv == nil || inv.Deleted {
		return errors.Wrap(errors.ErrNotFound, "invitation %s not found", id)
	}
	if err := s.guard.Require(caller, access.ActionDeleteInvitation, access.OwnedBy(inv.OrganisationID)); err != nil {
		return err
	}

	if _, err := s.repo.SoftDeleteTx(ctx, tx, id, time.Now().Unix()); err != nil {
		return fmt.Errorf("delete invitation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	s.audit.Log(ctx, audit.Event{
		OrganisationID: inv.OrganisationID,
		UserID:         caller.UserID,
		Action:         audit.ActionDelete,
		ResourceType:   "invitation",
		ResourceID:     id,
		Summary:        "deleted invitation " + inv.Name,
	})
	return nil
}

// GetPublic returns what a ticket applicant may know about an invitation.
func (s *Service) GetPublic(ctx context.Context, caller access.Caller, id string) (*models.PublicInvitation, error) {
	if err := s.guard.Require(caller, access.ActionGetPublicInvitation, access.Resource{}); err != nil {
		return nil, err
	}

	inv, err := s.repo.GetPublic(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get invitation: %w", err)
	}
	if inv == nil {
		return nil, errors.Wrap(errors.ErrNotFound, "invitation %s not found", id)
	}
	return inv, nil
}

// GetFull returns an invitation with its live templates. Deleted
// invitations remain visible to their owners.
func (s *Service) GetFull(ctx context.Context, caller access.Caller, id string) (*models.Invitation, error) {
	inv, err := s.Authorize(ctx, caller, access.ActionGetInvitation, id)
	if err != nil {
		return nil, err
	}
	if inv.DefaultQuotas, err = s.repo.ListDefaults(ctx, id); err != nil {
		return nil, fmt.Errorf("list default quotas: %w", err)
	}
	return inv, nil
}

func (s *Service) ListDefaults(ctx context.Context, caller access.Caller, id string) ([]*models.DefaultQuota, error) {
	if _, err := s.Authorize(ctx, caller, access.ActionListInvitationDefaults, id); err != nil {
		return nil, err
	}
	defaults, err := s.repo.ListDefaults(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list default quotas: %w", err)
	}
	return defaults, nil
}

func (s *Service) ListInvitations(ctx context.Context, caller access.Caller) ([]*models.Invitation, error) {
	if err := s.guard.Require(caller, access.ActionListInvitations, access.Resource{}); err != nil {
		return nil, err
	}
	invitations, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	return invitations, nil
}

// ListByOrganisation lists the live invitations of an organisation.
func (s *Service) ListByOrganisation(ctx context.Context, caller access.Caller, organisationID string, onlyUsable bool) ([]*models.Invitation, error) {
	if err := s.guard.Require(caller, access.ActionListOrganisationInvites, access.OwnedBy(organisationID)); err != nil {
		return nil, err
	}

	exists, err := s.repo.OrganisationExists(ctx, organisationID)
	if err != nil {
		return nil, fmt.Errorf("check organisation: %w", err)
	}
	if !exists {
		return nil, errors.Wrap(errors.ErrNotFound, "organisation %s not found", organisationID)
	}

	invitations, err := s.repo.ListByOrganisation(ctx, organisationID, onlyUsable)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	return invitations, nil
}

// Authorize loads an invitation, deleted or not, and checks the caller may
// perform action on it. Other engines use it for invitation-scoped reads.
func (s *Service) Authorize(ctx context.Context, caller access.Caller, action access.Action, id string) (*models.Invitation, error) {
	if err := s.guard.Precheck(caller, action); err != nil {
		return nil, err
	}

	inv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get invitation: %w", err)
	}
	if inv == nil {
		return nil, errors.Wrap(errors.ErrNotFound, "invitation %s not found", id)
	}
	if err := s.guard.Require(caller, action, access.OwnedBy(inv.OrganisationID)); err != nil {
		return nil, err
	}
	return inv, nil
}

// validateDefaults rejects requests naming a quota type twice or carrying a
// negative value.
func validateDefaults(defaults []models.DefaultQuotaInput) error {
	seen := make(map[string]bool, len(defaults))
	for _, d := range defaults {
		if d.QuotaTypeID == "" {
			return errors.Wrap(errors.ErrInvalidInput, "quota_type_id is required")
		}
		if d.Value < 0 {
			return errors.Wrap(errors.ErrInvalidInput, "default quota value must not be negative")
		}
		if seen[d.QuotaTypeID] {
			return errors.Wrap(errors.ErrConflict, "quota type %s is listed twice", d.QuotaTypeID)
		}
		seen[d.QuotaTypeID] = true
	}
	return nil
}

func (s *Service) insertDefaults(ctx context.Context, tx *sql.Tx, invitationID string, defaults []models.DefaultQuotaInput) ([]*models.DefaultQuota, error) {
	now := time.Now().Unix()
	created := make([]*models.DefaultQuota, 0, len(defaults))
	for _, in := range defaults {
		exists, err := s.types.ExistsTx(ctx, tx, in.QuotaTypeID)
		if err != nil {
			return nil, fmt.Errorf("check quota type: %w", err)
		}
		if !exists {
			return nil, errors.Wrap(errors.ErrNotFound, "quota type %s not found", in.QuotaTypeID)
		}

		d := &models.DefaultQuota{
			ID:           uuid.New().String(),
			InvitationID: invitationID,
			QuotaTypeID:  in.QuotaTypeID,
			Value:        in.Value,
			CreatedAt:    now,
		}
		if err := s.repo.CreateDefaultTx(ctx, tx, d); err != nil {
			if database.IsUniqueViolation(err) {
				return nil, errors.Wrap(errors.ErrConflict,
					"invitation already has a default quota of type %s", in.QuotaTypeID)
			}
			return nil, fmt.Errorf("create default quota: %w", err)
		}
		created = append(created, d)
	}
	return created, nil
}
