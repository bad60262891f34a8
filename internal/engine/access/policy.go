package access

type Action string

const (
	ActionListRoles      Action = "role.list"
	ActionReadSelf       Action = "self.read"
	ActionChangePassword Action = "self.change_password"
	ActionRefreshSession Action = "session.refresh"
	ActionLogout         Action = "session.logout"

	ActionListUsers  Action = "user.list"
	ActionReadUser   Action = "user.read"
	ActionCreateUser Action = "user.create"
	ActionUpdateUser Action = "user.update"
	ActionDeleteUser Action = "user.delete"

	ActionCreateOrganisation      Action = "organisation.create"
	ActionListOrganisations       Action = "organisation.list"
	ActionGetOrganisation         Action = "organisation.get"
	ActionListManagers            Action = "organisation.list_managers"
	ActionListOrganisationInvites Action = "organisation.list_invitations"
	ActionListOrganisationTickets Action = "organisation.list_tickets"
	ActionRenameOrganisation      Action = "organisation.rename"
	ActionDeleteOrganisation      Action = "organisation.delete"

	ActionListQuotaTypes    Action = "quota_type.list"
	ActionGetQuotaType      Action = "quota_type.get"
	ActionGetQuotaTypeUsage Action = "quota_type.usage"
	ActionCreateQuotaType   Action = "quota_type.create"
	ActionUpdateQuotaType   Action = "quota_type.update"
	ActionDeleteQuotaType   Action = "quota_type.delete"

	ActionCreateInvitation       Action = "invitation.create"
	ActionGetInvitation          Action = "invitation.get"
	ActionGetPublicInvitation    Action = "invitation.get_public"
	ActionUpdateInvitation       Action = "invitation.update"
	ActionDeleteInvitation       Action = "invitation.delete"
	ActionListInvitations        Action = "invitation.list"
	ActionListInvitationTickets  Action = "invitation.list_tickets"
	ActionListInvitationDefaults Action = "invitation.list_defaults"

	ActionCreateDefaultQuota Action = "default_quota.create"
	ActionGetDefaultQuota    Action = "default_quota.get"
	ActionUpdateDefaultQuota Action = "default_quota.update"
	ActionDeleteDefaultQuota Action = "default_quota.delete"

	ActionCreateTicket Action = "ticket.create"
	ActionGetTicket    Action = "ticket.get"
	ActionUpdateTicket Action = "ticket.update"
	ActionDeleteTicket Action = "ticket.delete"
	ActionListTickets  Action = "ticket.list"

	ActionCreateQuota  Action = "quota.create"
	ActionGetQuota     Action = "quota.get"
	ActionUpdateQuota  Action = "quota.update"
	ActionDeleteQuota  Action = "quota.delete"
	ActionConsumeQuota Action = "quota.consume"
	ActionListQuotas   Action = "quota.list"

	ActionReadEventInfo     Action = "event.read_info"
	ActionReadEventDetails  Action = "event.read_details"
	ActionListEventConfigs  Action = "event_config.list"
	ActionReadEventConfig   Action = "event_config.read"
	ActionUpdateEventConfig Action = "event_config.update"

	ActionSendMail Action = "mail.send"

	ActionReadAudit Action = "audit.read"
)

// policy is the single source of truth for what each action requires.
// Ticket creation and update are capability-style: holding the invitation
// or ticket id is the credential. Event details work the same way.
var policy = map[Action]Requirement{
	ActionListRoles:      RequireNone,
	ActionReadSelf:       RequireAuthenticated,
	ActionChangePassword: RequireAuthenticated,
	ActionRefreshSession: RequireAuthenticated,
	ActionLogout:         RequireAuthenticated,

	ActionListUsers:  RequireAuthenticated,
	ActionReadUser:   RequireAuthenticated,
	ActionCreateUser: RequireAdmin,
	ActionUpdateUser: RequireAdmin,
	ActionDeleteUser: RequireAdmin,

	ActionCreateOrganisation:      RequireAdmin,
	ActionListOrganisations:       RequireAdmin,
	ActionGetOrganisation:         RequireOwner,
	ActionListManagers:            RequireOwner,
	ActionListOrganisationInvites: RequireOwner,
	ActionListOrganisationTickets: RequireOwner,
	ActionRenameOrganisation:      RequireAdmin,
	ActionDeleteOrganisation:      RequireAdmin,

	ActionListQuotaTypes:    RequireNone,
	ActionGetQuotaType:      RequireNone,
	ActionGetQuotaTypeUsage: RequireAdmin,
	ActionCreateQuotaType:   RequireAdmin,
	ActionUpdateQuotaType:   RequireAdmin,
	ActionDeleteQuotaType:   RequireAdmin,

	ActionCreateInvitation:       RequireOwner,
	ActionGetInvitation:          RequireOwner,
	ActionGetPublicInvitation:    RequireNone,
	ActionUpdateInvitation:       RequireOwner,
	ActionDeleteInvitation:       RequireOwner,
	ActionListInvitations:        RequireAdmin,
	ActionListInvitationTickets:  RequireOwner,
	ActionListInvitationDefaults: RequireOwner,

	ActionCreateDefaultQuota: RequireOwner,
	ActionGetDefaultQuota:    RequireOwner,
	ActionUpdateDefaultQuota: RequireOwner,
	ActionDeleteDefaultQuota: RequireOwner,

	ActionCreateTicket: RequireNone,
	ActionGetTicket:    RequireNone,
	ActionUpdateTicket: RequireNone,
	ActionDeleteTicket: RequireOwner,
	ActionListTickets:  RequireAdmin,

	ActionCreateQuota:  RequireOwner,
	ActionGetQuota:     RequireNone,
	ActionUpdateQuota:  RequireOwner,
	ActionDeleteQuota:  RequireOwner,
	ActionConsumeQuota: RequireOwner,
	ActionListQuotas:   RequireAdmin,

	ActionReadEventInfo:     RequireNone,
	ActionReadEventDetails:  RequireNone,
	ActionListEventConfigs:  RequireAdmin,
	ActionReadEventConfig:   RequireAdmin,
	ActionUpdateEventConfig: RequireAdmin,

	ActionSendMail: RequireAdmin,

	ActionReadAudit: RequireAdmin,
}

// RequirementOf returns the declared requirement of an action.
func RequirementOf(action Action) (Requirement, bool) {
	req, ok := policy[action]
	return req, ok
}
