package directory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"quotr/internal/engine/access"
	"quotr/internal/pkg/errors"
	"quotr/internal/pkg/validator"
	"quotr/internal/platform/audit"
	"quotr/internal/platform/database"
	"quotr/internal/platform/models"
)

func (s *Service) CreateOrganisation(ctx context.Context, caller access.Caller, name string) (*models.Organisation, error) {
	orgs, err := s.CreateOrganisations(ctx, caller, []string{name})
	if err != nil {
		return nil, err
	}
	return orgs[0], nil
}

// CreateOrganisations creates every named organisation or none of them.
func (s *Service) CreateOrganisations(ctx context.Context, caller access.Caller, names []string) ([]*models.Organisation, error) {
	if err := s.guard.Require(caller, access.ActionCreateOrganisation, access.Resource{}); err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidInput, "at least one name is required")
	}

	seen := make(map[string]bool, len(names))
	orgs := make([]*models.Organisation, 0, len(names))
	now := time.Now().Unix()
	for _, name := range names {
		name, err := validator.Name("organisation name", name)
		if err != nil {
			return nil, err
		}
		if seen[name] {
			return nil, errors.Wrap(errors.ErrConflict, "organisation %s is listed twice", name)
		}
		seen[name] = true
		orgs = append(orgs, &models.Organisation{ID: uuid.New().String(), Name: name, CreatedAt: now})
	}

	tx, err := s.orgs.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	for _, org := range orgs {
		if err := s.orgs.CreateTx(ctx, tx, org); err != nil {
			if database.IsUniqueViolation(err) {
				return nil, errors.Wrap(errors.ErrConflict, "organisation %s already exists", org.Name)
			}
			return nil, fmt.Errorf("create organisation: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	for _, org := range orgs {
		s.audit.Log(ctx, audit.Event{
			OrganisationID: org.ID,
			UserID:         caller.UserID,
			Action:         audit.ActionCreate,
			ResourceType:   "organisation",
			ResourceID:     org.ID,
			Summary:        "created organisation " + org.Name,
		})
	}
	return orgs, nil
}

func (s *Service) ListOrganisations(ctx context.Context, caller access.Caller) ([]*models.Organisation, error) {
	if err := s.guard.Require(caller, access.ActionListOrganisations, access.Resource{}); err != nil {
		return nil, err
	}

	orgs, err := s.orgs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list organisations: %w", err)
	}
	for _, org := range orgs {
		if org.Managers, err = s.users.ListManagers(ctx, org.ID); err != nil {
			return nil, fmt.Errorf("list managers: %w", err)
		}
	}
	return orgs, nil
}

func (s *Service) GetOrganisation(ctx context.Context, caller access.Caller, id string) (*models.Organisation, error) {
	if err := s.guard.Require(caller, access.ActionGetOrganisation, access.OwnedBy(id)); err != nil {
		return nil, err
	}

	org, err := s.getOrganisation(ctx, id)
	if err != nil {
		return nil, err
	}
	if org.Managers, err = s.users.ListManagers(ctx, id); err != nil {
		return nil, fmt.Errorf("list managers: %w", err)
	}
	return org, nil
}

func (s *Service) ListManagers(ctx context.Context, caller access.Caller, id string) ([]*models.User, error) {
	if err := s.guard.Require(caller, access.ActionListManagers, access.OwnedBy(id)); err != nil {
		return nil, err
	}
	if _, err := s.getOrganisation(ctx, id); err != nil {
		return nil, err
	}

	managers, err := s.users.ListManagers(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list managers: %w", err)
	}
	return managers, nil
}

func (s *Service) RenameOrganisation(ctx context.Context, caller access.Caller, id, name string) (*models.Organisation, error) {
	if err := s.guard.Require(caller, access.ActionRenameOrganisation, access.OwnedBy(id)); err != nil {
		return nil, err
	}
	name, err := validator.Name("name", name)
	if err != nil {
		return nil, err
	}

	ok, err := s.orgs.Rename(ctx, id, name)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, errors.Wrap(errors.ErrConflict, "organisation %s already exists", name)
		}
		return nil, fmt.Errorf("rename organisation: %w", err)
	}
	if !ok {
		return nil, errors.Wrap(errors.ErrNotFound, "organisation %s not found", id)
	}

	s.audit.Log(ctx, audit.Event{
		OrganisationID: id,
		UserID:         caller.UserID,
		Action:         audit.ActionUpdate,
		ResourceType:   "organisation",
		ResourceID:     id,
		Summary:        "renamed organisation to " + name,
	})
	return s.getOrganisation(ctx, id)
}

func (s *Service) DeleteOrganisation(ctx context.Context, caller access.Caller, id string) error {
	return s.DeleteOrganisations(ctx, caller, []string{id})
}

// DeleteOrganisations removes organisations without managers, together
// with what they own. One organisation that still has managers, or does not
// exist, aborts the whole batch.
func (s *Service) DeleteOrganisations(ctx context.Context, caller access.Caller, ids []string) error {
	if err := s.guard.Require(caller, access.ActionDeleteOrganisation, access.Resource{}); err != nil {
		return err
	}
	if len(ids) == 0 {
		return errors.Wrap(errors.ErrInvalidInput, "at least one id is required")
	}

	tx, err := s.orgs.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, id := range ids {
		managers, err := s.users.CountManagersTx(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("count managers: %w", err)
		}
		if managers > 0 {
			return errors.Wrap(errors.ErrConflict, "organisation %s still has %d managers", id, managers)
		}

		deleted, err := s.orgs.DeleteCascadeTx(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("delete organisation: %w", err)
		}
		if !deleted {
			return errors.Wrap(errors.ErrNotFound, "organisation %s not found", id)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	for _, id := range ids {
		s.audit.Log(ctx, audit.Event{
			OrganisationID: id,
			UserID:         caller.UserID,
			Action:         audit.ActionDelete,
			ResourceType:   "organisation",
			ResourceID:     id,
			Summary:        "deleted organisation",
		})
	}
	return nil
}

func (s *Service) getOrganisation(ctx context.Context, id string) (*models.Organisation, error) {
	org, err := s.orgs.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get organisation: %w", err)
	}
	if org == nil {
		return nil, errors.Wrap(errors.ErrNotFound, "organisation %s not found", id)
	}
	return org, nil
}
