package models

import (
	"encoding/json"
	"fmt"
)

// Role is an ordered access tier. The numeric value is the wire value;
// ordering always goes through Rank.
type Role int

const (
	RolePublic              Role = 0
	RoleObserver            Role = 1
	RoleOrganisationManager Role = 2
	RoleAdmin               Role = 4
	RoleSuperAdmin          Role = 8
)

var roleNames = map[Role]string{
	RolePublic:              "PUBLIC",
	RoleObserver:            "OBSERVER",
	RoleOrganisationManager: "ORGANISATION_MANAGER",
	RoleAdmin:               "ADMIN",
	RoleSuperAdmin:          "SUPER_ADMIN",
}

// Roles lists every role in ascending rank.
var Roles = []Role{RolePublic, RoleObserver, RoleOrganisationManager, RoleAdmin, RoleSuperAdmin}

func (r Role) Rank() int {
	switch r {
	case RolePublic:
		return 0
	case RoleObserver:
		return 1
	case RoleOrganisationManager:
		return 2
	case RoleAdmin:
		return 3
	case RoleSuperAdmin:
		return 4
	default:
		return -1
	}
}

func (r Role) Valid() bool {
	return r.Rank() >= 0
}

func (r Role) AtLeast(other Role) bool {
	return r.Rank() >= other.Rank()
}

func (r Role) Above(other Role) bool {
	return r.Rank() > other.Rank()
}

// ManagesOrganisation reports whether users of this role must belong to an
// organisation.
func (r Role) ManagesOrganisation() bool {
	return r.AtLeast(RoleOrganisationManager)
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// RoleTable is the public role listing, name to wire value.
func RoleTable() map[string]int {
	table := make(map[string]int, len(roleNames))
	for role, name := range roleNames {
		table[name] = int(role)
	}
	return table
}

func (r *Role) UnmarshalJSON(data []byte) error {
	var v int
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	role := Role(v)
	if !role.Valid() {
		return fmt.Errorf("unknown role %d", v)
	}
	*r = role
	return nil
}
