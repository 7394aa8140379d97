package domain

import (
	"fmt"
	"strings"
)

// Role is the single stored role string of a user.
type Role string

const (
	RoleUser            Role = "user"
	RoleFreelancer      Role = "freelancer"
	RoleFreelancerAdmin Role = "freelancer_admin"
	RoleAdmin           Role = "admin"
	RoleFounder         Role = "fondateur"
)

// Roles lists every known role.
var Roles = []Role{RoleUser, RoleFreelancer, RoleFreelancerAdmin, RoleAdmin, RoleFounder}

// ParseRole converts a stored role string, rejecting unknown values.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	switch role {
	case RoleUser, RoleFreelancer, RoleFreelancerAdmin, RoleAdmin, RoleFounder:
		return role, nil
	}
	return "", fmt.Errorf("unknown role %q", raw)
}

// Capabilities is the effective permission set derived from roles.
type Capabilities struct {
	Founder    bool
	Admin      bool
	Freelancer bool
}

// Capabilities maps a role to its permission set.
func (r Role) Capabilities() Capabilities {
	switch r {
	case RoleFreelancer:
		return Capabilities{Freelancer: true}
	case RoleFreelancerAdmin:
		return Capabilities{Admin: true, Freelancer: true}
	case RoleAdmin:
		return Capabilities{Admin: true}
	case RoleFounder:
		return Capabilities{Founder: true, Admin: true}
	default:
		return Capabilities{}
	}
}

// Privileged reports admin or founder rights.
func (c Capabilities) Privileged() bool {
	return c.Admin || c.Founder
}

// IsFreelancerCapable reports whether users with this role may be assigned tickets.
func (r Role) IsFreelancerCapable() bool {
	return r.Capabilities().Freelancer
}
