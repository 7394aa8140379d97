package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/repairdesk/internal/domain"
	apperrors "github.com/spec-kit/repairdesk/pkg/util"
)

var (
	founder    = Actor{ID: "u-founder", Name: "Fanny", Role: domain.RoleFounder}
	admin      = Actor{ID: "u-admin", Name: "Adam", Role: domain.RoleAdmin}
	freelancer = Actor{ID: "u-free-1", Name: "Felix", Role: domain.RoleFreelancer}
	other      = Actor{ID: "u-free-2", Name: "Flora", Role: domain.RoleFreelancer}
	creator    = Actor{ID: "u-user-1", Name: "Ulysse", Role: domain.RoleUser}
	stranger   = Actor{ID: "u-user-2", Name: "Ursula", Role: domain.RoleUser}
)

func ticketIn(status domain.TicketStatus, assignedTo string) *domain.Ticket {
	return &domain.Ticket{
		ID:         "t-1",
		Status:     status,
		CreatedBy:  creator.ID,
		AssignedTo: assignedTo,
	}
}

func TestAuthorizeTransitionTable(t *testing.T) {
	cases := []struct {
		name     string
		actor    Actor
		ticket   *domain.Ticket
		target   domain.TicketStatus
		wantCode string
	}{
		{"freelancer claims libre", freelancer, ticketIn(domain.TicketStatusLibre, ""), domain.TicketStatusDiagnostic, ""},
		{"founder starts diagnostic", founder, ticketIn(domain.TicketStatusLibre, ""), domain.TicketStatusDiagnostic, ""},
		{"admin cannot start diagnostic", admin, ticketIn(domain.TicketStatusLibre, ""), domain.TicketStatusDiagnostic, apperrors.CodeForbidden},
		{"user cannot start diagnostic", creator, ticketIn(domain.TicketStatusLibre, ""), domain.TicketStatusDiagnostic, apperrors.CodeForbidden},
		{"assigned freelancer goes online", freelancer, ticketIn(domain.TicketStatusDiagnostic, freelancer.ID), domain.TicketStatusOnline, ""},
		{"assigned freelancer goes onsite", freelancer, ticketIn(domain.TicketStatusDiagnostic, freelancer.ID), domain.TicketStatusOnsite, ""},
		{"other freelancer cannot go online", other, ticketIn(domain.TicketStatusDiagnostic, freelancer.ID), domain.TicketStatusOnline, apperrors.CodeForbidden},
		{"founder resolves", founder, ticketIn(domain.TicketStatusOnsite, freelancer.ID), domain.TicketStatusResolved, ""},
		{"assigned freelancer fails", freelancer, ticketIn(domain.TicketStatusOnline, freelancer.ID), domain.TicketStatusFailed, ""},
		{"creator closes resolved", creator, ticketIn(domain.TicketStatusResolved, freelancer.ID), domain.TicketStatusClosed, ""},
		{"creator closes failed", creator, ticketIn(domain.TicketStatusFailed, freelancer.ID), domain.TicketStatusClosed, ""},
		{"stranger cannot close", stranger, ticketIn(domain.TicketStatusResolved, freelancer.ID), domain.TicketStatusClosed, apperrors.CodeForbidden},
		{"freelancer cannot close", freelancer, ticketIn(domain.TicketStatusResolved, freelancer.ID), domain.TicketStatusClosed, apperrors.CodeForbidden},
		{"creator cannot force close", creator, ticketIn(domain.TicketStatusOnline, freelancer.ID), domain.TicketStatusClosed, apperrors.CodeForbidden},
		{"admin force closes libre", admin, ticketIn(domain.TicketStatusLibre, ""), domain.TicketStatusClosed, ""},
		{"skipping diagnostic", founder, ticketIn(domain.TicketStatusLibre, ""), domain.TicketStatusOnline, apperrors.CodeInvalidTransition},
		{"resolved back to online", founder, ticketIn(domain.TicketStatusResolved, freelancer.ID), domain.TicketStatusOnline, apperrors.CodeInvalidTransition},
		{"reopen closed", creator, ticketIn(domain.TicketStatusClosed, freelancer.ID), domain.TicketStatusLibre, apperrors.CodeInvalidTransition},
		{"closed to closed", admin, ticketIn(domain.TicketStatusClosed, freelancer.ID), domain.TicketStatusClosed, apperrors.CodeInvalidTransition},
		{"same status", freelancer, ticketIn(domain.TicketStatusOnline, freelancer.ID), domain.TicketStatusOnline, apperrors.CodeInvalidTransition},
		{"unknown status", founder, ticketIn(domain.TicketStatusLibre, ""), domain.TicketStatus("archived"), apperrors.CodeValidation},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := AuthorizeTransition(tc.actor, tc.ticket, tc.target)
			if tc.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, tc.wantCode), "got %v", err)
		})
	}
}

func TestPlanTransitionSelfAssignment(t *testing.T) {
	now := time.Now()
	ticket := ticketIn(domain.TicketStatusLibre, "")

	change, err := PlanTransition(freelancer, ticket, domain.TicketStatusDiagnostic, nil, now)
	require.NoError(t, err)

	assert.Equal(t, domain.TicketStatusLibre, change.ExpectStatus)
	assert.Empty(t, change.ExpectAssignee)
	assert.Equal(t, domain.TicketStatusDiagnostic, change.Status)
	require.NotNil(t, change.Assignee)
	assert.Equal(t, freelancer.ID, change.Assignee.ID)

	require.Len(t, change.Events, 2)
	assert.Equal(t, domain.AuditActionAssignment, change.Events[0].Action)
	assert.Equal(t, "Felix", change.Events[0].Details["toName"])
	assert.Equal(t, domain.AuditActionStatusChange, change.Events[1].Action)
	assert.Equal(t, "libre", change.Events[1].Details["from"])
	assert.Equal(t, "diagnostic", change.Events[1].Details["to"])
	assert.Less(t, change.Events[0].ID, change.Events[1].ID)
}

func TestPlanTransitionFreelancerCannotAssignOthers(t *testing.T) {
	ticket := ticketIn(domain.TicketStatusLibre, "")
	_, err := PlanTransition(freelancer, ticket, domain.TicketStatusDiagnostic,
		&Assignee{ID: other.ID, Name: other.Name, Role: other.Role}, time.Now())
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
}

func TestPlanTransitionFounderNamesAssignee(t *testing.T) {
	ticket := ticketIn(domain.TicketStatusLibre, "")

	change, err := PlanTransition(founder, ticket, domain.TicketStatusDiagnostic,
		&Assignee{ID: other.ID, Name: other.Name, Role: other.Role}, time.Now())
	require.NoError(t, err)
	require.NotNil(t, change.Assignee)
	assert.Equal(t, other.ID, change.Assignee.ID)

	unassigned, err := PlanTransition(founder, ticket, domain.TicketStatusDiagnostic, nil, time.Now())
	require.NoError(t, err)
	assert.Nil(t, unassigned.Assignee)
	assert.Len(t, unassigned.Events, 1)

	_, err = PlanTransition(founder, ticket, domain.TicketStatusDiagnostic,
		&Assignee{ID: stranger.ID, Name: stranger.Name, Role: stranger.Role}, time.Now())
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestPlanTransitionCloseStampsClosedAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ticket := ticketIn(domain.TicketStatusResolved, freelancer.ID)

	change, err := PlanTransition(creator, ticket, domain.TicketStatusClosed, nil, now)
	require.NoError(t, err)
	require.NotNil(t, change.ClosedAt)
	assert.Equal(t, now, *change.ClosedAt)
	assert.Nil(t, change.Assignee)
	assert.Len(t, change.Events, 1)

	applied := change.Apply(*ticket, now)
	assert.Equal(t, domain.TicketStatusClosed, applied.Status)
	assert.Equal(t, freelancer.ID, applied.AssignedTo)
	assert.Len(t, applied.AuditTrail, 1)
	assert.Empty(t, ticket.AuditTrail)
}

func TestPlanAssignment(t *testing.T) {
	now := time.Now()
	felix := Assignee{ID: freelancer.ID, Name: freelancer.Name, Role: freelancer.Role}
	flora := Assignee{ID: other.ID, Name: other.Name, Role: other.Role}

	t.Run("admin assigns libre ticket", func(t *testing.T) {
		change, err := PlanAssignment(admin, ticketIn(domain.TicketStatusLibre, ""), felix, now)
		require.NoError(t, err)
		assert.Equal(t, domain.TicketStatusDiagnostic, change.Status)
		assert.Equal(t, felix.ID, change.Assignee.ID)
		require.Len(t, change.Events, 2)
	})

	t.Run("admin reassigns active work", func(t *testing.T) {
		change, err := PlanAssignment(admin, ticketIn(domain.TicketStatusOnsite, felix.ID), flora, now)
		require.NoError(t, err)
		assert.Equal(t, domain.TicketStatusOnsite, change.Status)
		assert.False(t, change.StatusChanged())
		require.Len(t, change.Events, 1)
		assert.Equal(t, domain.AuditActionAssignment, change.Events[0].Action)
	})

	t.Run("same assignee conflicts", func(t *testing.T) {
		_, err := PlanAssignment(admin, ticketIn(domain.TicketStatusOnline, felix.ID), felix, now)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))
	})

	t.Run("finished tickets cannot be reassigned", func(t *testing.T) {
		_, err := PlanAssignment(founder, ticketIn(domain.TicketStatusResolved, felix.ID), flora, now)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))
	})

	t.Run("clearing diagnostic returns to libre", func(t *testing.T) {
		change, err := PlanAssignment(admin, ticketIn(domain.TicketStatusDiagnostic, felix.ID), Assignee{}, now)
		require.NoError(t, err)
		assert.Equal(t, domain.TicketStatusLibre, change.Status)
		require.NotNil(t, change.Assignee)
		assert.Empty(t, change.Assignee.ID)

		applied := change.Apply(*ticketIn(domain.TicketStatusDiagnostic, felix.ID), now)
		assert.Empty(t, applied.AssignedTo)
	})

	t.Run("clearing online is rejected", func(t *testing.T) {
		_, err := PlanAssignment(admin, ticketIn(domain.TicketStatusOnline, felix.ID), Assignee{}, now)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidTransition))
	})

	t.Run("non freelancer assignee", func(t *testing.T) {
		_, err := PlanAssignment(admin, ticketIn(domain.TicketStatusLibre, ""), Assignee{ID: stranger.ID, Role: domain.RoleUser}, now)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
	})

	t.Run("freelancer naming self claims", func(t *testing.T) {
		change, err := PlanAssignment(freelancer, ticketIn(domain.TicketStatusLibre, ""), felix, now)
		require.NoError(t, err)
		assert.Equal(t, domain.TicketStatusDiagnostic, change.Status)
	})

	t.Run("freelancer cannot assign others", func(t *testing.T) {
		_, err := PlanAssignment(freelancer, ticketIn(domain.TicketStatusLibre, ""), flora, now)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
	})
}

func TestAuthorizeDelete(t *testing.T) {
	assert.NoError(t, AuthorizeDelete(founder))
	assert.NoError(t, AuthorizeDelete(admin))
	assert.True(t, apperrors.HasCode(AuthorizeDelete(freelancer), apperrors.CodeForbidden))
	assert.True(t, apperrors.HasCode(AuthorizeDelete(creator), apperrors.CodeForbidden))
}

func TestAuthorizeEdit(t *testing.T) {
	libre := ticketIn(domain.TicketStatusLibre, "")
	assert.NoError(t, AuthorizeEdit(creator, libre, []string{FieldTitle}))
	assert.True(t, apperrors.HasCode(AuthorizeEdit(stranger, libre, []string{FieldTitle}), apperrors.CodeForbidden))

	working := ticketIn(domain.TicketStatusOnsite, freelancer.ID)
	assert.NoError(t, AuthorizeEdit(freelancer, working, []string{FieldAppointment}))
	assert.True(t, apperrors.HasCode(AuthorizeEdit(freelancer, working, []string{FieldAppointment, FieldPriority}), apperrors.CodeForbidden))
	assert.True(t, apperrors.HasCode(AuthorizeEdit(creator, working, []string{FieldTitle}), apperrors.CodeForbidden))
	assert.NoError(t, AuthorizeEdit(admin, working, []string{FieldPriority}))

	closed := ticketIn(domain.TicketStatusClosed, freelancer.ID)
	assert.True(t, apperrors.HasCode(AuthorizeEdit(founder, closed, []string{FieldTitle}), apperrors.CodeConflict))
}
