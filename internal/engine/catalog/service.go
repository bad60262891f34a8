package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"quotr/internal/engine/access"
	"quotr/internal/pkg/errors"
	"quotr/internal/pkg/validator"
	"quotr/internal/platform/audit"
	"quotr/internal/platform/models"
)

type Service struct {
	repo  *Repository
	cache *Cache
	guard *access.Guard
	audit *audit.Logger
}

func NewService(repo *Repository, cache *Cache, guard *access.Guard, auditLog *audit.Logger) *Service {
	return &Service{repo: repo, cache: cache, guard: guard, audit: auditLog}
}

func (s *Service) List(ctx context.Context, caller access.Caller) ([]*models.QuotaType, error) {
	if err := s.guard.Require(caller, access.ActionListQuotaTypes, access.Resource{}); err != nil {
		return nil, err
	}
	types, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list quota types: %w", err)
	}
	return types, nil
}

func (s *Service) Get(ctx context.Context, caller access.Caller, id string) (*models.QuotaType, error) {
	if err := s.guard.Require(caller, access.ActionGetQuotaType, access.Resource{}); err != nil {
		return nil, err
	}
	return s.Lookup(ctx, id)
}

// Lookup reads a quota type through the cache without an access check.
// Other engines use it to resolve type names.
func (s *Service) Lookup(ctx context.Context, id string) (*models.QuotaType, error) {
	if qt, ok := s.cache.Get(id); ok {
		return qt, nil
	}

	gen := s.cache.Generation()
	qt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get quota type: %w", err)
	}
	if qt == nil {
		return nil, errors.Wrap(errors.ErrNotFound, "quota type %s not found", id)
	}

	s.cache.SetIfCurrent(qt, gen)
	return qt, nil
}

func (s *Service) Usage(ctx context.Context, caller access.Caller, id string) (*models.QuotaTypeUsage, error) {
	if err := s.guard.Require(caller, access.ActionGetQuotaTypeUsage, access.Resource{}); err != nil {
		return nil, err
	}

	qt, err := s.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	quotas, defaults, err := s.repo.Usage(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("quota type usage: %w", err)
	}

	return &models.QuotaTypeUsage{QuotaType: qt, Quotas: quotas, DefaultQuotas: defaults}, nil
}

func (s *Service) Create(ctx context.Context, caller access.Caller, name, description string) (*models.QuotaType, error) {
	if err := s.guard.Require(caller, access.ActionCreateQuotaType, access.Resource{}); err != nil {
		return nil, err
	}

	name, err := validator.Name("name", name)
	if err != nil {
		return nil, err
	}

	qt := &models.QuotaType{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		CreatedAt:   time.Now().Unix(),
	}
	if err := s.repo.Create(ctx, qt); err != nil {
		return nil, fmt.Errorf("create quota type: %w", err)
	}

	s.audit.Log(ctx, audit.Event{
		UserID:       caller.UserID,
		Action:       audit.ActionCreate,
		ResourceType: "quota_type",
		ResourceID:   qt.ID,
		Summary:      "created quota type " + qt.Name,
	})
	return qt, nil
}

func (s *Service) Update(ctx context.Context, caller access.Caller, id string, name, description *string) (*models.QuotaType, error) {
	if err := s.guard.Require(caller, access.ActionUpdateQuotaType, access.Resource{}); err != nil {
		return nil, err
	}

	qt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get quota type: %w", err)
	}
	if qt == nil {
		return nil, errors.Wrap(errors.ErrNotFound, "quota type %s not found", id)
	}

	if name != nil {
		trimmed, err := validator.Name("name", *name)
		if err != nil {
			return nil, err
		}
		qt.Name = trimmed
	}
	if description != nil {
		qt.Description = *description
	}

	if err := s.repo.Update(ctx, qt); err != nil {
		return nil, fmt.Errorf("update quota type: %w", err)
	}
	s.cache.Invalidate(id)

	s.audit.Log(ctx, audit.Event{
		UserID:       caller.UserID,
		Action:       audit.ActionUpdate,
		ResourceType: "quota_type",
		ResourceID:   qt.ID,
		Summary:      "updated quota type " + qt.Name,
	})
	return qt, nil
}

func (s *Service) Delete(ctx context.Context, caller access.Caller, id string) error {
	if err := s.guard.Require(caller, access.ActionDeleteQuotaType, access.Resource{}); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.cache.Invalidate(id)

	s.audit.Log(ctx, audit.Event{
		UserID:       caller.UserID,
		Action:       audit.ActionDelete,
		ResourceType: "quota_type",
		ResourceID:   id,
		Summary:      "deleted quota type",
	})
	return nil
}
