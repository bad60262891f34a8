package models

import "encoding/json"

type Organisation struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"created_at"`

	Managers []*User `json:"managers,omitempty"`
}

type User struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	PasswordHash   string `json:"-"`
	Role           Role   `json:"role"`
	OrganisationID string `json:"organisation_id,omitempty"`
	CreatedAt      int64  `json:"created_at"`

	Organisation *Organisation `json:"organisation,omitempty"`
}

type QuotaType struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedAt   int64  `json:"created_at"`
}

// QuotaTypeUsage lists what still references a quota type.
type QuotaTypeUsage struct {
	QuotaType     *QuotaType      `json:"quota_type"`
	Quotas        []*Quota        `json:"quotas"`
	DefaultQuotas []*DefaultQuota `json:"default_quotas"`
}

type Invitation struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	OrganisationID     string          `json:"organisation_id"`
	UsageQuota         int             `json:"usage_quota"`
	CreatedTicketCount int             `json:"created_ticket_count"`
	CreatedAt          int64           `json:"created_at"`
	DeletedAt          *int64          `json:"deleted_at,omitempty"`
	Deleted            bool            `json:"deleted"`
	DefaultQuotas      []*DefaultQuota `json:"default_quotas,omitempty"`
}

func (i *Invitation) UsageLeft() int {
	return i.UsageQuota - i.CreatedTicketCount
}

// PublicInvitation is what anyone holding an invitation id may see.
type PublicInvitation struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	OrganisationID   string `json:"organisation_id"`
	OrganisationName string `json:"organisation_name"`
	UsageQuota       int    `json:"usage_quota"`
	UsageLeft        int    `json:"usage_left"`
}

type DefaultQuota struct {
	ID            string `json:"id"`
	InvitationID  string `json:"invitation_id"`
	QuotaTypeID   string `json:"quota_type_id"`
	QuotaTypeName string `json:"quota_type_name,omitempty"`
	Value         int    `json:"value"`
	CreatedAt     int64  `json:"created_at"`
	DeletedAt     *int64 `json:"deleted_at,omitempty"`
	Deleted       bool   `json:"deleted"`
}

type Ticket struct {
	ID                 string          `json:"id"`
	OwnerName          string          `json:"owner_name"`
	OwnerContacts      json.RawMessage `json:"owner_contacts"`
	InvitationID       string          `json:"invitation_id"`
	OwnerAffiliationID string          `json:"owner_affiliation_id"`
	CreatedAt          int64           `json:"created_at"`
	SentEmail          string          `json:"sent_email,omitempty"`
	Quotas             []*Quota        `json:"quotas"`
}

type Quota struct {
	ID            string `json:"id"`
	TicketID      string `json:"ticket_id"`
	QuotaTypeID   string `json:"quota_type_id"`
	QuotaTypeName string `json:"quota_type_name,omitempty"`
	UsageLeft     int    `json:"usage_left"`
}

// QuotaOwner ties a quota to the organisation its ticket is affiliated with.
type QuotaOwner struct {
	Quota          *Quota
	OrganisationID string
}

// DefaultQuotaInput is a requested template entry.
type DefaultQuotaInput struct {
	QuotaTypeID string `json:"quota_type_id"`
	Value       int    `json:"value"`
}

// EventConfig is a named JSON document describing the event.
type EventConfig struct {
	Name      string          `json:"name"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt int64           `json:"updated_at"`
}
