package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	role, err := ParseRole(" Fondateur ")
	require.NoError(t, err)
	assert.Equal(t, RoleFounder, role)

	_, err = ParseRole("superadmin")
	assert.Error(t, err)

	_, err = ParseRole("")
	assert.Error(t, err)
}

func TestRoleCapabilities(t *testing.T) {
	cases := []struct {
		role Role
		want Capabilities
	}{
		{RoleUser, Capabilities{}},
		{RoleFreelancer, Capabilities{Freelancer: true}},
		{RoleFreelancerAdmin, Capabilities{Admin: true, Freelancer: true}},
		{RoleAdmin, Capabilities{Admin: true}},
		{RoleFounder, Capabilities{Founder: true, Admin: true}},
	}
	for _, tc := range cases {
		t.Run(string(tc.role), func(t *testing.T) {
			assert.Equal(t, tc.want, tc.role.Capabilities())
		})
	}
}

func TestTicketStatusValid(t *testing.T) {
	assert.True(t, TicketStatusOnsite.Valid())
	assert.False(t, TicketStatus("open").Valid())
}
