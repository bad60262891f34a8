package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"quotr/internal/engine/access"
	"quotr/internal/engine/event"
	"quotr/internal/engine/invitations"
	"quotr/internal/engine/ledger"
	"quotr/internal/engine/render"
	"quotr/internal/pkg/errors"
	"quotr/internal/pkg/logger"
	"quotr/internal/pkg/validator"
	"quotr/internal/platform/audit"
	"quotr/internal/platform/config"
	"quotr/internal/platform/models"
	"quotr/internal/platform/observability"
)

const batchWorkers = 4

type Receipt struct {
	TicketID  string   `json:"ticket_id,omitempty"`
	MessageID string   `json:"message_id"`
	To        []string `json:"to"`
}

type BatchResult struct {
	Sent   []Receipt `json:"sent"`
	Failed []string  `json:"failed"`
}

type SendInvitationInput struct {
	To []string `json:"to"`
}

type SendPendingInput struct {
	Limit int `json:"limit" validate:"min=0,max=100"`
}

// Service mails invitation and ticket links. With a nil Sender every send
// reports the service as unavailable.
type Service struct {
	sender      Sender
	tickets     *ledger.Repository
	invitations *invitations.Service
	event       *event.Service
	links       *render.Service
	guard       *access.Guard
	audit       *audit.Logger
	metrics     *observability.Metrics
	location    *time.Location
	log         zerolog.Logger
}

func NewService(
	sender Sender,
	tickets *ledger.Repository,
	inv *invitations.Service,
	ev *event.Service,
	links *render.Service,
	guard *access.Guard,
	auditLog *audit.Logger,
	metrics *observability.Metrics,
	cfg config.MailConfig,
) *Service {
	log := logger.For("mail")
	loc := time.UTC
	if cfg.Timezone != "" {
		if l, err := time.LoadLocation(cfg.Timezone); err == nil {
			loc = l
		} else {
			log.Warn().Err(err).Str("timezone", cfg.Timezone).Msg("unknown timezone, using UTC")
		}
	}
	return &Service{
		sender:      sender,
		tickets:     tickets,
		invitations: inv,
		event:       ev,
		links:       links,
		guard:       guard,
		audit:       auditLog,
		metrics:     metrics,
		location:    loc,
		log:         log,
	}
}

// SendInvitation mails the link and QR code of a live invitation.
func (s *Service) SendInvitation(ctx context.Context, caller access.Caller, invitationID string, in SendInvitationInput) (*Receipt, error) {
	if err := s.guard.Require(caller, access.ActionSendMail, access.Resource{}); err != nil {
		return nil, err
	}
	if err := validator.Emails("to", in.To); err != nil {
		return nil, err
	}
	if err := s.available(); err != nil {
		return nil, err
	}

	inv, err := s.invitations.GetPublic(ctx, caller, invitationID)
	if err != nil {
		return nil, err
	}
	info, err := s.event.Lookup(ctx, event.ConfigInfo)
	if err != nil {
		return nil, err
	}

	eventName := str(info, "name")
	html, err := execute(invitationTemplate, invitationData{
		EventName: eventName,
		Link:      s.links.InvitationLink(inv.ID),
		ImageURL:  s.links.InvitationImageURL(inv.ID),
	})
	if err != nil {
		return nil, err
	}

	id, err := s.sender.Send(ctx, Message{To: in.To, Subject: "Invitation to " + eventName, HTML: html})
	if err != nil {
		s.metrics.RecordMail("invitation", "error")
		return nil, fmt.Errorf("send invitation: %w", err)
	}
	s.metrics.RecordMail("invitation", "ok")

	s.audit.Log(ctx, audit.Event{
		OrganisationID: inv.OrganisationID,
		UserID:         caller.UserID,
		Action:         audit.ActionSend,
		ResourceType:   "invitation",
		ResourceID:     inv.ID,
		Summary:        fmt.Sprintf("mailed invitation %s to %d recipients", inv.Name, len(in.To)),
	})
	return &Receipt{MessageID: id, To: in.To}, nil
}

// SendTicket mails a ticket to the email in its owner contacts and records
// the message id on the ticket.
func (s *Service) SendTicket(ctx context.Context, caller access.Caller, ticketID string) (*Receipt, error) {
	if err := s.guard.Require(caller, access.ActionSendMail, access.Resource{}); err != nil {
		return nil, err
	}
	if err := s.available(); err != nil {
		return nil, err
	}

	ticket, err := s.tickets.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	if ticket == nil {
		return nil, errors.Wrap(errors.ErrNotFound, "ticket %s not found", ticketID)
	}
	to := contactEmail(ticket)
	if to == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "ticket %s has no email contact", ticketID)
	}

	ev, err := s.loadTicketEvent(ctx)
	if err != nil {
		return nil, err
	}
	return s.deliverTicket(ctx, caller, ev, ticket, to)
}

// SendPendingTickets mails up to limit tickets that have an email contact
// and were never mailed. A failed delivery is reported and left pending.
func (s *Service) SendPendingTickets(ctx context.Context, caller access.Caller, in SendPendingInput) (*BatchResult, error) {
	if err := s.guard.Require(caller, access.ActionSendMail, access.Resource{}); err != nil {
		return nil, err
	}
	if err := validator.Struct(in); err != nil {
		return nil, err
	}
	if err := s.available(); err != nil {
		return nil, err
	}

	limit := in.Limit
	if limit == 0 {
		limit = 1
	}
	tickets, err := s.tickets.ListUnsent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list unsent tickets: %w", err)
	}
	ev, err := s.loadTicketEvent(ctx)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{Sent: []Receipt{}, Failed: []string{}}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchWorkers)
	for _, ticket := range tickets {
		ticket := ticket
		g.Go(func() error {
			receipt, err := s.deliverTicket(gctx, caller, ev, ticket, contactEmail(ticket))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.log.Warn().Err(err).Str("ticket_id", ticket.ID).Msg("ticket mail failed")
				result.Failed = append(result.Failed, ticket.ID)
				return nil
			}
			result.Sent = append(result.Sent, *receipt)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.log.Info().Int("sent", len(result.Sent)).Int("failed", len(result.Failed)).Msg("pending tickets mailed")
	return result, nil
}

func (s *Service) available() error {
	if s.sender == nil {
		return errors.Wrap(errors.ErrUnavailable, "mail delivery is not configured")
	}
	return nil
}

// ticketEvent holds the event fields shared by every ticket mail.
type ticketEvent struct {
	eventName string
	location  string
	startTime string
}

func (s *Service) loadTicketEvent(ctx context.Context) (ticketEvent, error) {
	info, err := s.event.Lookup(ctx, event.ConfigInfo)
	if err != nil {
		return ticketEvent{}, err
	}
	details, err := s.event.Lookup(ctx, event.ConfigDetails)
	if err != nil {
		return ticketEvent{}, err
	}

	start := str(details, "start_time")
	if start == "" {
		start = str(info, "start_time")
	}
	if start != "" {
		start = formatStart(start, s.location)
	}
	return ticketEvent{
		eventName: str(info, "name"),
		location:  str(details, "location_name"),
		startTime: start,
	}, nil
}

func (s *Service) deliverTicket(ctx context.Context, caller access.Caller, ev ticketEvent, ticket *models.Ticket, to string) (*Receipt, error) {
	html, err := execute(ticketTemplate, ticketData{
		EventName: ev.eventName,
		OwnerName: ticket.OwnerName,
		Location:  ev.location,
		StartTime: ev.startTime,
		Link:      s.links.TicketLink(ticket.ID),
		ImageURL:  s.links.TicketImageURL(ticket.ID),
	})
	if err != nil {
		return nil, err
	}

	recipients := []string{to}
	id, err := s.sender.Send(ctx, Message{To: recipients, Subject: "Your ticket for " + ev.eventName, HTML: html})
	if err != nil {
		s.metrics.RecordMail("ticket", "error")
		return nil, fmt.Errorf("send ticket: %w", err)
	}
	s.metrics.RecordMail("ticket", "ok")

	if _, err := s.tickets.MarkSent(ctx, ticket.ID, id); err != nil {
		return nil, fmt.Errorf("mark ticket sent: %w", err)
	}

	s.audit.Log(ctx, audit.Event{
		OrganisationID: ticket.OwnerAffiliationID,
		UserID:         caller.UserID,
		Action:         audit.ActionSend,
		ResourceType:   "ticket",
		ResourceID:     ticket.ID,
		Summary:        "mailed ticket to " + ticket.OwnerName,
	})
	return &Receipt{TicketID: ticket.ID, MessageID: id, To: recipients}, nil
}

func contactEmail(ticket *models.Ticket) string {
	var contacts map[string]interface{}
	if err := json.Unmarshal(ticket.OwnerContacts, &contacts); err != nil {
		return ""
	}
	return str(contacts, "email")
}

func str(m map[string]interface{}, key string) string {
	v, _ := m[key].(string)
	return v
}
