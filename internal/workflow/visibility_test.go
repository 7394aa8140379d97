package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/repairdesk/internal/domain"
)

func TestScopeFor(t *testing.T) {
	assert.Equal(t, Scope{All: true}, ScopeFor(founder))
	assert.Equal(t, Scope{All: true}, ScopeFor(admin))
	assert.Equal(t, Scope{All: true}, ScopeFor(Actor{ID: "fa", Role: domain.RoleFreelancerAdmin}))
	assert.Equal(t, Scope{Freelancer: freelancer.ID}, ScopeFor(freelancer))
	assert.Equal(t, Scope{CreatedBy: creator.ID}, ScopeFor(creator))
}

func TestVisible(t *testing.T) {
	libre := ticketIn(domain.TicketStatusLibre, "")
	mine := ticketIn(domain.TicketStatusOnline, freelancer.ID)
	theirs := ticketIn(domain.TicketStatusOnline, other.ID)
	unassignedDiagnostic := ticketIn(domain.TicketStatusDiagnostic, "")

	assert.True(t, Visible(freelancer, libre))
	assert.True(t, Visible(freelancer, mine))
	assert.False(t, Visible(freelancer, theirs))
	assert.False(t, Visible(freelancer, unassignedDiagnostic))

	assert.True(t, Visible(creator, theirs))
	assert.False(t, Visible(stranger, theirs))

	assert.True(t, Visible(admin, theirs))
	assert.False(t, Scope{}.Matches(libre))
}
