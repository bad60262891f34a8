package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"quotr/internal/engine/access"
	"quotr/internal/pkg/errors"
	"quotr/internal/platform/audit"
	"quotr/internal/platform/models"
)

type CreateQuotaInput struct {
	TicketID    string `json:"ticket_id"`
	QuotaTypeID string `json:"quota_type_id"`
	UsageLeft   int    `json:"usage_left"`
}

type UpdateQuotaInput struct {
	QuotaTypeID *string `json:"quota_type_id"`
	UsageLeft   *int    `json:"usage_left"`
}

// Consume takes one use from a quota. Each call decrements at most once, so
// a failed request must not be retried blindly.
func (s *Service) Consume(ctx context.Context, caller access.Caller, id string) (*models.Quota, error) {
	owner, err := s.authorizeQuota(ctx, caller, access.ActionConsumeQuota, id)
	if err != nil {
		return nil, err
	}

	ok, err := s.repo.Consume(ctx, id)
	if err != nil {
		s.metrics.RecordConsume("error")
		return nil, fmt.Errorf("consume quota: %w", err)
	}
	if !ok {
		current, err := s.repo.GetQuota(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("get quota: %w", err)
		}
		if current == nil {
			return nil, errors.Wrap(errors.ErrNotFound, "quota %s not found", id)
		}
		s.metrics.RecordConsume("exhausted")
		return nil, errors.Wrap(errors.ErrExhausted, "quota %s is used up", id)
	}
	s.metrics.RecordConsume("ok")

	q, err := s.getQuota(ctx, id)
	if err != nil {
		return nil, err
	}
	s.log.Debug().
		Str("quota_id", id).
		Str("ticket_id", q.TicketID).
		Int("usage_left", q.UsageLeft).
		Str("user_id", caller.UserID).
		Msg("quota consumed")
	s.audit.Log(ctx, audit.Event{
		OrganisationID: owner.OrganisationID,
		UserID:         caller.UserID,
		Action:         audit.ActionConsume,
		ResourceType:   "quota",
		ResourceID:     id,
		Summary:        fmt.Sprintf("consumed %s", q.QuotaTypeName),
	})
	return q, nil
}

func (s *Service) CreateQuota(ctx context.Context, caller access.Caller, in CreateQuotaInput) (*models.Quota, error) {
	if err := s.guard.Precheck(caller, access.ActionCreateQuota); err != nil {
		return nil, err
	}

	ticket, err := s.getTicket(ctx, in.TicketID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.Require(caller, access.ActionCreateQuota, access.OwnedBy(ticket.OwnerAffiliationID)); err != nil {
		return nil, err
	}
	if in.QuotaTypeID == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "quota_type_id is required")
	}
	if in.UsageLeft < 0 {
		return nil, errors.Wrap(errors.ErrInvalidInput, "usage left must not be negative")
	}

	q := &models.Quota{
		ID:          uuid.New().String(),
		TicketID:    ticket.ID,
		QuotaTypeID: in.QuotaTypeID,
		UsageLeft:   in.UsageLeft,
	}
	if err := s.repo.CreateQuota(ctx, q); err != nil {
		return nil, quotaError(err, q)
	}

	s.audit.Log(ctx, audit.Event{
		OrganisationID: ticket.OwnerAffiliationID,
		UserID:         caller.UserID,
		Action:         audit.ActionCreate,
		ResourceType:   "quota",
		ResourceID:     q.ID,
		Summary:        fmt.Sprintf("added quota %s=%d to ticket %s", q.QuotaTypeID, q.UsageLeft, ticket.ID),
	})
	return s.getQuota(ctx, q.ID)
}

func (s *Service) GetQuota(ctx context.Context, caller access.Caller, id string) (*models.Quota, error) {
	if err := s.guard.Require(caller, access.ActionGetQuota, access.Resource{}); err != nil {
		return nil, err
	}
	return s.getQuota(ctx, id)
}

func (s *Service) UpdateQuota(ctx context.Context, caller access.Caller, id string, in UpdateQuotaInput) (*models.Quota, error) {
	owner, err := s.authorizeQuota(ctx, caller, access.ActionUpdateQuota, id)
	if err != nil {
		return nil, err
	}

	if in.QuotaTypeID != nil && *in.QuotaTypeID == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "quota_type_id must not be empty")
	}
	if in.UsageLeft != nil && *in.UsageLeft < 0 {
		return nil, errors.Wrap(errors.ErrInvalidInput, "usage left must not be negative")
	}

	ok, err := s.repo.UpdateQuota(ctx, id, in.QuotaTypeID, in.UsageLeft)
	if err != nil {
		typeID := owner.Quota.QuotaTypeID
		if in.QuotaTypeID != nil {
			typeID = *in.QuotaTypeID
		}
		return nil, quotaError(err, &models.Quota{TicketID: owner.Quota.TicketID, QuotaTypeID: typeID})
	}
	if !ok {
		return nil, errors.Wrap(errors.ErrNotFound, "quota %s not found", id)
	}

	q, err := s.getQuota(ctx, id)
	if err != nil {
		return nil, err
	}
	s.audit.Log(ctx, audit.Event{
		OrganisationID: owner.OrganisationID,
		UserID:         caller.UserID,
		Action:         audit.ActionUpdate,
		ResourceType:   "quota",
		ResourceID:     id,
		Summary:        fmt.Sprintf("set quota to %s=%d", q.QuotaTypeID, q.UsageLeft),
	})
	return q, nil
}

func (s *Service) DeleteQuota(ctx context.Context, caller access.Caller, id string) error {
	owner, err := s.authorizeQuota(ctx, caller, access.ActionDeleteQuota, id)
	if err != nil {
		return err
	}

	ok, err := s.repo.DeleteQuota(ctx, id)
	if err != nil {
		return fmt.Errorf("delete quota: %w", err)
	}
	if !ok {
		return errors.Wrap(errors.ErrNotFound, "quota %s not found", id)
	}

	s.audit.Log(ctx, audit.Event{
		OrganisationID: owner.OrganisationID,
		UserID:         caller.UserID,
		Action:         audit.ActionDelete,
		ResourceType:   "quota",
		ResourceID:     id,
		Summary:        "deleted quota " + owner.Quota.QuotaTypeID,
	})
	return nil
}

func (s *Service) ListQuotas(ctx context.Context, caller access.Caller) ([]*models.Quota, error) {
	if err := s.guard.Require(caller, access.ActionListQuotas, access.Resource{}); err != nil {
		return nil, err
	}
	quotas, err := s.repo.ListQuotas(ctx)
	if err != nil {
		return nil, fmt.Errorf("list quotas: %w", err)
	}
	return quotas, nil
}

// authorizeQuota loads a quota and checks the caller owns the organisation
// of its ticket.
func (s *Service) authorizeQuota(ctx context.Context, caller access.Caller, action access.Action, id string) (*models.QuotaOwner, error) {
	if err := s.guard.Precheck(caller, action); err != nil {
		return nil, err
	}

	owner, err := s.repo.GetQuota(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get quota: %w", err)
	}
	if owner == nil {
		return nil, errors.Wrap(errors.ErrNotFound, "quota %s not found", id)
	}
	if err := s.guard.Require(caller, action, access.OwnedBy(owner.OrganisationID)); err != nil {
		return nil, err
	}
	return owner, nil
}

func (s *Service) getQuota(ctx context.Context, id string) (*models.Quota, error) {
	owner, err := s.repo.GetQuota(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get quota: %w", err)
	}
	if owner == nil {
		return nil, errors.Wrap(errors.ErrNotFound, "quota %s not found", id)
	}
	return owner.Quota, nil
}
