package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"quotr/internal/engine/access"
	"quotr/internal/pkg/errors"
	"quotr/internal/pkg/logger"
	"quotr/internal/platform/audit"
	"quotr/internal/platform/models"
)

// Config names seeded by migrations.
const (
	ConfigInfo    = "event_info"
	ConfigSocials = "event_socials"
	ConfigDetails = "event_details"
)

// TicketFinder resolves a ticket id, returning nil, nil when it is unknown.
type TicketFinder interface {
	GetTicket(ctx context.Context, id string) (*models.Ticket, error)
}

// Service serves the event description. The summary is public, the details
// are shown to ticket holders and every config is editable by admins.
type Service struct {
	repo    *Repository
	tickets TicketFinder
	guard   *access.Guard
	audit   *audit.Logger
	log     zerolog.Logger
}

func NewService(repo *Repository, tickets TicketFinder, guard *access.Guard, auditLog *audit.Logger) *Service {
	return &Service{
		repo:    repo,
		tickets: tickets,
		guard:   guard,
		audit:   auditLog,
		log:     logger.For("event"),
	}
}

// Info returns the event summary with its socials nested under "socials".
func (s *Service) Info(ctx context.Context, caller access.Caller) (map[string]interface{}, error) {
	if err := s.guard.Require(caller, access.ActionReadEventInfo, access.Resource{}); err != nil {
		return nil, err
	}

	info, err := s.Lookup(ctx, ConfigInfo)
	if err != nil {
		return nil, err
	}
	socials, err := s.Lookup(ctx, ConfigSocials)
	if err != nil {
		return nil, err
	}
	info["socials"] = socials
	return info, nil
}

// Details returns the event details to whoever holds a ticket id.
func (s *Service) Details(ctx context.Context, caller access.Caller, ticketID string) (map[string]interface{}, error) {
	if err := s.guard.Require(caller, access.ActionReadEventDetails, access.Resource{}); err != nil {
		return nil, err
	}
	if ticketID == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "ticket_id is required")
	}

	ticket, err := s.tickets.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	if ticket == nil {
		return nil, errors.Wrap(errors.ErrNotFound, "ticket %s not found", ticketID)
	}
	return s.Lookup(ctx, ConfigDetails)
}

func (s *Service) List(ctx context.Context, caller access.Caller) ([]*models.EventConfig, error) {
	if err := s.guard.Require(caller, access.ActionListEventConfigs, access.Resource{}); err != nil {
		return nil, err
	}
	configs, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list event configs: %w", err)
	}
	return configs, nil
}

func (s *Service) Get(ctx context.Context, caller access.Caller, name string) (*models.EventConfig, error) {
	if err := s.guard.Require(caller, access.ActionReadEventConfig, access.Resource{}); err != nil {
		return nil, err
	}
	return s.get(ctx, name)
}

// Update replaces a config with a JSON object.
func (s *Service) Update(ctx context.Context, caller access.Caller, name string, value json.RawMessage) (*models.EventConfig, error) {
	if err := s.guard.Require(caller, access.ActionUpdateEventConfig, access.Resource{}); err != nil {
		return nil, err
	}

	var object map[string]interface{}
	if len(value) == 0 || json.Unmarshal(value, &object) != nil || object == nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "value must be a JSON object")
	}
	normalized, err := json.Marshal(object)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}

	ok, err := s.repo.Update(ctx, name, normalized, time.Now().Unix())
	if err != nil {
		return nil, fmt.Errorf("update event config: %w", err)
	}
	if !ok {
		return nil, errors.Wrap(errors.ErrNotFound, "event config %s not found", name)
	}

	s.log.Info().Str("config", name).Str("user_id", caller.UserID).Msg("event config updated")
	s.audit.Log(ctx, audit.Event{
		UserID:       caller.UserID,
		Action:       audit.ActionUpdate,
		ResourceType: "event_config",
		ResourceID:   name,
		Summary:      "updated event config " + name,
	})
	return s.get(ctx, name)
}

// Lookup decodes a config without an access check. Mail uses it to fill
// message templates.
func (s *Service) Lookup(ctx context.Context, name string) (map[string]interface{}, error) {
	c, err := s.get(ctx, name)
	if err != nil {
		return nil, err
	}
	var object map[string]interface{}
	if err := json.Unmarshal(c.Value, &object); err != nil {
		return nil, fmt.Errorf("decode event config %s: %w", name, err)
	}
	if object == nil {
		object = map[string]interface{}{}
	}
	return object, nil
}

func (s *Service) get(ctx context.Context, name string) (*models.EventConfig, error) {
	c, err := s.repo.Get(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("get event config: %w", err)
	}
	if c == nil {
		return nil, errors.Wrap(errors.ErrNotFound, "event config %s not found", name)
	}
	return c, nil
}
