package render

import (
	"context"
	"strings"

	"github.com/skip2/go-qrcode"
	"quotr/internal/engine/access"
	"quotr/internal/engine/invitations"
	"quotr/internal/engine/ledger"
	"quotr/internal/pkg/errors"
	"quotr/internal/platform/config"
)

const (
	DefaultSize = 512
	MinSize     = 128
	MaxSize     = 2048
)

// Service renders QR codes that point public clients at an invitation or a
// ticket page.
type Service struct {
	invitations *invitations.Service
	ledger      *ledger.Service
	cfg         config.RenderConfig
}

func NewService(inv *invitations.Service, led *ledger.Service, cfg config.RenderConfig) *Service {
	return &Service{invitations: inv, ledger: led, cfg: cfg}
}

// InvitationQR encodes the public link of a live invitation.
func (s *Service) InvitationQR(ctx context.Context, caller access.Caller, id string, size int) ([]byte, error) {
	if _, err := s.invitations.GetPublic(ctx, caller, id); err != nil {
		return nil, err
	}
	return GenerateQRCode(s.InvitationLink(id), size)
}

// TicketQR encodes the link of a ticket.
func (s *Service) TicketQR(ctx context.Context, caller access.Caller, id string, size int) ([]byte, error) {
	if _, err := s.ledger.GetTicket(ctx, caller, id); err != nil {
		return nil, err
	}
	return GenerateQRCode(s.TicketLink(id), size)
}

// InvitationLink is the public page an invitation QR code points at.
func (s *Service) InvitationLink(id string) string {
	return link(s.cfg.InvitationBaseURL, id)
}

// TicketLink is the page a ticket QR code points at.
func (s *Service) TicketLink(id string) string {
	return link(s.cfg.TicketBaseURL, id)
}

// InvitationImageURL is where the invitation QR image is served. It is
// empty when no external render URL is configured.
func (s *Service) InvitationImageURL(id string) string {
	return s.imageURL("invitation", id)
}

func (s *Service) TicketImageURL(id string) string {
	return s.imageURL("ticket", id)
}

func (s *Service) imageURL(kind, id string) string {
	if s.cfg.QRBaseURL == "" {
		return ""
	}
	return link(link(s.cfg.QRBaseURL, kind), id)
}

func link(base, id string) string {
	if base == "" {
		return id
	}
	return strings.TrimRight(base, "/") + "/" + id
}

// GenerateQRCode returns a PNG of content, size pixels square. Zero size
// means DefaultSize.
func GenerateQRCode(content string, size int) ([]byte, error) {
	if size == 0 {
		size = DefaultSize
	}
	if size < MinSize || size > MaxSize {
		return nil, errors.Wrap(errors.ErrInvalidInput, "size must be between %d and %d", MinSize, MaxSize)
	}

	qr, err := qrcode.New(content, qrcode.High)
	if err != nil {
		return nil, err
	}
	return qr.PNG(size)
}
