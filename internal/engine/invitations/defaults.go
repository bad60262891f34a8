package invitations

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"quotr/internal/engine/access"
	"quotr/internal/pkg/errors"
	"quotr/internal/platform/audit"
	"quotr/internal/platform/database"
	"quotr/internal/platform/models"
)

type CreateDefaultInput struct {
	InvitationID string `json:"invitation_id"`
	QuotaTypeID  string `json:"quota_type_id"`
	Value        int    `json:"value"`
}

type UpdateDefaultInput struct {
	QuotaTypeID *string `json:"quota_type_id"`
	Value       *int    `json:"value"`
}

func (s *Service) CreateDefault(ctx context.Context, caller access.Caller, in CreateDefaultInput) (*models.DefaultQuota, error) {
	if err := s.guard.Precheck(caller, access.ActionCreateDefaultQuota); err != nil {
		return nil, err
	}
	if err := validateDefaults([]models.DefaultQuotaInput{{QuotaTypeID: in.QuotaTypeID, Value: in.Value}}); err != nil {
		return nil, err
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	inv, err := s.repo.GetByIDTx(ctx, tx, in.InvitationID)
	if err != nil {
		return nil, fmt.Errorf("get invitation: %w", err)
	}
	if inv == nil || inv.Deleted {
		return nil, errors.Wrap(errors.ErrNotFound, "invitation %s not found", in.InvitationID)
	}
	if err := s.guard.Require(caller, access.ActionCreateDefaultQuota, access.OwnedBy(inv.OrganisationID)); err != nil {
		return nil, err
	}

	taken, err := s.repo.ActiveTypeTakenTx(ctx, tx, inv.ID, in.QuotaTypeID, "")
	if err != nil {
		return nil, fmt.Errorf("check default quotas: %w", err)
	}
	if taken {
		return nil, errors.Wrap(errors.ErrConflict, "invitation already has a default quota of type %s", in.QuotaTypeID)
	}

	created, err := s.insertDefaults(ctx, tx, inv.ID, []models.DefaultQuotaInput{{QuotaTypeID: in.QuotaTypeID, Value: in.Value}})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	d := created[0]
	s.audit.Log(ctx, audit.Event{
		OrganisationID: inv.OrganisationID,
		UserID:         caller.UserID,
		Action:         audit.ActionCreate,
		ResourceType:   "default_quota",
		ResourceID:     d.ID,
		Summary:        fmt.Sprintf("added default quota %s=%d to invitation %s", d.QuotaTypeID, d.Value, inv.Name),
	})
	return d, nil
}

func (s *Service) GetDefault(ctx context.Context, caller access.Caller, id string) (*models.DefaultQuota, error) {
	if err := s.guard.Precheck(caller, access.ActionGetDefaultQuota); err != nil {
		return nil, err
	}

	d, orgID, err := s.repo.GetDefault(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get default quota: %w", err)
	}
	if d == nil {
		return nil, errors.Wrap(errors.ErrNotFound, "default quota %s not found", id)
	}
	if err := s.guard.Require(caller, access.ActionGetDefaultQuota, access.OwnedBy(orgID)); err != nil {
		return nil, err
	}
	return d, nil
}

// UpdateDefault changes the type or value of a template. A type already used
// by a sibling template is a Conflict and leaves everything unchanged.
func (s *Service) UpdateDefault(ctx context.Context, caller access.Caller, id string, in UpdateDefaultInput) (*models.DefaultQuota, error) {
	if err := s.guard.Precheck(caller, access.ActionUpdateDefaultQuota); err != nil {
		return nil, err
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	d, orgID, err := s.repo.GetDefaultTx(ctx, tx, id)
	if err != nil {
		return nil, fmt.Errorf("get default quota: %w", err)
	}
	if d == nil {
		return nil, errors.Wrap(errors.ErrNotFound, "default quota %s not found", id)
	}
	if err := s.guard.Require(caller, access.ActionUpdateDefaultQuota, access.OwnedBy(orgID)); err != nil {
		return nil, err
	}

	if in.Value != nil {
		if *in.Value < 0 {
			return nil, errors.Wrap(errors.ErrInvalidInput, "default quota value must not be negative")
		}
		d.Value = *in.Value
	}
	if in.QuotaTypeID != nil && *in.QuotaTypeID != d.QuotaTypeID {
		exists, err := s.types.ExistsTx(ctx, tx, *in.QuotaTypeID)
		if err != nil {
			return nil, fmt.Errorf("check quota type: %w", err)
		}
		if !exists {
			return nil, errors.Wrap(errors.ErrNotFound, "quota type %s not found", *in.QuotaTypeID)
		}

		taken, err := s.repo.ActiveTypeTakenTx(ctx, tx, d.InvitationID, *in.QuotaTypeID, d.ID)
		if err != nil {
			return nil, fmt.Errorf("check default quotas: %w", err)
		}
		if taken {
			return nil, errors.Wrap(errors.ErrConflict, "invitation already has a default quota of type %s", *in.QuotaTypeID)
		}
		d.QuotaTypeID = *in.QuotaTypeID
		d.QuotaTypeName = ""
	}

	if err := s.repo.UpdateDefaultTx(ctx, tx, d); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, errors.Wrap(errors.ErrConflict, "invitation already has a default quota of type %s", d.QuotaTypeID)
		}
		return nil, fmt.Errorf("update default quota: %w", err)
	}
	if d, _, err = s.repo.GetDefaultTx(ctx, tx, id); err != nil {
		return nil, fmt.Errorf("get default quota: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.audit.Log(ctx, audit.Event{
		OrganisationID: orgID,
		UserID:         caller.UserID,
		Action:         audit.ActionUpdate,
		ResourceType:   "default_quota",
		ResourceID:     d.ID,
		Summary:        fmt.Sprintf("set default quota to %s=%d", d.QuotaTypeID, d.Value),
	})
	return d, nil
}

func (s *Service) DeleteDefault(ctx context.Context, caller access.Caller, id string) error {
	if err := s.guard.Precheck(caller, access.ActionDeleteDefaultQuota); err != nil {
		return err
	}

	d, orgID, err := s.repo.GetDefault(ctx, id)
	if err != nil {
		return fmt.Errorf("get default quota: %w", err)
	}
	if d == nil {
		return errors.Wrap(errors.ErrNotFound, "default quota %s not found", id)
	}
	if err := s.guard.Require(caller, access.ActionDeleteDefaultQuota, access.OwnedBy(orgID)); err != nil {
		return err
	}

	ok, err := s.repo.SoftDeleteDefault(ctx, id, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("delete default quota: %w", err)
	}
	if !ok {
		return errors.Wrap(errors.ErrNotFound, "default quota %s not found", id)
	}

	s.audit.Log(ctx, audit.Event{
		OrganisationID: orgID,
		UserID:         caller.UserID,
		Action:         audit.ActionDelete,
		ResourceType:   "default_quota",
		ResourceID:     id,
		Summary:        "deleted default quota " + d.QuotaTypeID,
	})
	return nil
}

// PurgeDeletedTemplates hard-deletes templates soft-deleted more than
// olderThan ago.
func (s *Service) PurgeDeletedTemplates(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).Unix()
	n, err := s.repo.PurgeDeleted(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge default quotas: %w", err)
	}
	log.Info().Int64("purged", n).Int64("cutoff", cutoff).Msg("purged deleted default quotas")
	return n, nil
}
