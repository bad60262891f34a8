package access

import (
	"quotr/internal/pkg/errors"
	"quotr/internal/platform/models"
)

// Caller is the resolved identity behind a request. The zero value is an
// anonymous caller.
type Caller struct {
	UserID         string
	Username       string
	Role           models.Role
	OrganisationID string
}

func Anonymous() Caller {
	return Caller{Role: models.RolePublic}
}

func (c Caller) Authenticated() bool {
	return c.UserID != ""
}

// Owns reports whether the caller manages the given organisation.
func (c Caller) Owns(organisationID string) bool {
	return c.Role == models.RoleOrganisationManager &&
		c.OrganisationID != "" &&
		c.OrganisationID == organisationID
}

// Requirement is the authorization attribute carried by every action.
type Requirement int

const (
	RequireNone Requirement = iota
	RequireAuthenticated
	RequireOwner
	RequireAdmin
	RequireSuperAdmin
)

func (r Requirement) String() string {
	switch r {
	case RequireNone:
		return "none"
	case RequireAuthenticated:
		return "authenticated"
	case RequireOwner:
		return "owner"
	case RequireAdmin:
		return "admin"
	case RequireSuperAdmin:
		return "super_admin"
	default:
		return "unknown"
	}
}

// Resource carries the ownership of the target of an action.
type Resource struct {
	OrganisationID string
}

// OwnedBy is shorthand for a resource owned by an organisation.
func OwnedBy(organisationID string) Resource {
	return Resource{OrganisationID: organisationID}
}

type Reason string

const (
	ReasonAllowed         Reason = "allowed"
	ReasonUnauthenticated Reason = "unauthenticated"
	ReasonForbidden       Reason = "forbidden"
)

type Decision struct {
	Allowed bool
	Reason  Reason
}

func allow() Decision {
	return Decision{Allowed: true, Reason: ReasonAllowed}
}

func deny(reason Reason) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Err converts a deny into the matching classified error, nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	if d.Reason == ReasonUnauthenticated {
		return errors.ErrUnauthenticated
	}
	return errors.ErrForbidden
}

// Authorize evaluates a requirement for a caller against a resource.
func Authorize(caller Caller, req Requirement, res Resource) Decision {
	if req == RequireNone {
		return allow()
	}
	if !caller.Authenticated() {
		return deny(ReasonUnauthenticated)
	}

	switch req {
	case RequireAuthenticated:
		return allow()
	case RequireOwner:
		if caller.Role.AtLeast(models.RoleAdmin) {
			return allow()
		}
		if caller.Owns(res.OrganisationID) {
			return allow()
		}
	case RequireAdmin:
		if caller.Role.AtLeast(models.RoleAdmin) {
			return allow()
		}
	case RequireSuperAdmin:
		if caller.Role.AtLeast(models.RoleSuperAdmin) {
			return allow()
		}
	}
	return deny(ReasonForbidden)
}

// Check looks the action up in the policy table and authorizes it. Actions
// missing from the table are denied.
func Check(caller Caller, action Action, res Resource) Decision {
	req, ok := policy[action]
	if !ok {
		if !caller.Authenticated() {
			return deny(ReasonUnauthenticated)
		}
		return deny(ReasonForbidden)
	}
	return Authorize(caller, req, res)
}

// CanManageUser applies the identity hierarchy for user administration: the
// caller must be ADMIN or above and rank strictly above the target's current
// role and, when reassigning, the new role.
func CanManageUser(caller Caller, target models.Role, newRole *models.Role) Decision {
	if !caller.Authenticated() {
		return deny(ReasonUnauthenticated)
	}
	if !caller.Role.AtLeast(models.RoleAdmin) || !caller.Role.Above(target) {
		return deny(ReasonForbidden)
	}
	if newRole != nil && !caller.Role.Above(*newRole) {
		return deny(ReasonForbidden)
	}
	return allow()
}

// CanReadUser allows ADMIN and above to read anyone, and everyone else to
// read themselves or users ranked below them.
func CanReadUser(caller Caller, targetID string, target models.Role) Decision {
	if !caller.Authenticated() {
		return deny(ReasonUnauthenticated)
	}
	if caller.UserID == targetID || caller.Role.AtLeast(models.RoleAdmin) || caller.Role.Above(target) {
		return allow()
	}
	return deny(ReasonForbidden)
}
