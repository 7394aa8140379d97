// Package workflow holds the ticket state machine and its permission rules.
// Everything here is pure: callers load the ticket, plan a change, then persist it
// with a conditional write guarded by the observed status and assignee.
package workflow

import (
	"time"

	"github.com/spec-kit/repairdesk/internal/domain"
	"github.com/spec-kit/repairdesk/internal/ids"
	apperrors "github.com/spec-kit/repairdesk/pkg/util"
)

// Actor is the authenticated caller as seen by the workflow.
type Actor struct {
	ID   string
	Name string
	Role domain.Role
}

// ActorFromUser builds an Actor from a loaded user.
func ActorFromUser(u *domain.User) Actor {
	if u == nil {
		return Actor{}
	}
	return Actor{ID: u.ID, Name: u.Name, Role: u.Role}
}

// Capabilities resolves the actor's permission set.
func (a Actor) Capabilities() domain.Capabilities {
	return a.Role.Capabilities()
}

func (a Actor) auditUser() domain.AuditActor {
	return domain.AuditActor{ID: a.ID, Name: a.Name}
}

// Assignee names a user a ticket is handed to.
type Assignee struct {
	ID   string
	Name string
	Role domain.Role
}

// allowedTransitions is the forward lifecycle. Force-close is handled separately.
var allowedTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusLibre:      {domain.TicketStatusDiagnostic},
	domain.TicketStatusDiagnostic: {domain.TicketStatusOnline, domain.TicketStatusOnsite},
	domain.TicketStatusOnline:     {domain.TicketStatusFailed, domain.TicketStatusResolved},
	domain.TicketStatusOnsite:     {domain.TicketStatusFailed, domain.TicketStatusResolved},
	domain.TicketStatusFailed:     {domain.TicketStatusClosed},
	domain.TicketStatusResolved:   {domain.TicketStatusClosed},
}

// Reachable reports whether target can follow from in the lifecycle table,
// including the administrative force-close.
func Reachable(from, target domain.TicketStatus) bool {
	if from == domain.TicketStatusClosed || from == target {
		return false
	}
	if target == domain.TicketStatusClosed {
		return true
	}
	for _, candidate := range allowedTransitions[from] {
		if candidate == target {
			return true
		}
	}
	return false
}

// AuthorizeTransition checks that target is reachable from the ticket's status and
// that actor may perform the move. Unreachable targets yield INVALID_TRANSITION,
// unauthorised actors FORBIDDEN.
func AuthorizeTransition(actor Actor, ticket *domain.Ticket, target domain.TicketStatus) error {
	if !target.Valid() {
		return apperrors.NewValidationError("unknown status", map[string]any{"status": target})
	}
	from := ticket.Status
	if !Reachable(from, target) {
		return apperrors.NewInvalidTransition(string(from), string(target))
	}

	caps := actor.Capabilities()
	switch {
	case target == domain.TicketStatusClosed:
		if caps.Privileged() {
			return nil
		}
		if (from == domain.TicketStatusResolved || from == domain.TicketStatusFailed) && ticket.CreatedBy == actor.ID {
			return nil
		}
		return apperrors.NewForbidden("only the ticket creator or an administrator can close this ticket")
	case from == domain.TicketStatusLibre:
		if caps.Founder || caps.Freelancer {
			return nil
		}
		return apperrors.NewForbidden("only a freelancer or the founder can start a diagnostic")
	default:
		if caps.Founder {
			return nil
		}
		if caps.Freelancer && ticket.AssignedTo == actor.ID {
			return nil
		}
		return apperrors.NewForbidden("only the assigned freelancer can change this ticket's status")
	}
}

// Change is a planned mutation. ExpectStatus and ExpectAssignee are the observed
// values the conditional write must still find in the store.
type Change struct {
	ExpectStatus   domain.TicketStatus
	ExpectAssignee string
	Status         domain.TicketStatus
	// Assignee is nil when the assignment is untouched; a zero Assignee clears it.
	Assignee *Assignee
	ClosedAt *time.Time
	Events   []domain.AuditEvent
}

// StatusChanged reports whether the change moves the ticket.
func (c *Change) StatusChanged() bool {
	return c.Status != c.ExpectStatus
}

// Apply returns a copy of ticket with the change applied. Stores use it to keep
// in-memory documents in step with the update they persist.
func (c *Change) Apply(ticket domain.Ticket, now time.Time) domain.Ticket {
	ticket.Status = c.Status
	if c.Assignee != nil {
		ticket.AssignedTo = c.Assignee.ID
		ticket.AssignedToName = c.Assignee.Name
	}
	if c.ClosedAt != nil {
		closedAt := *c.ClosedAt
		ticket.ClosedAt = &closedAt
	}
	trail := make([]domain.AuditEvent, 0, len(ticket.AuditTrail)+len(c.Events))
	trail = append(trail, ticket.AuditTrail...)
	ticket.AuditTrail = append(trail, c.Events...)
	ticket.UpdatedAt = now
	return ticket
}

func newChange(ticket *domain.Ticket) *Change {
	return &Change{
		ExpectStatus:   ticket.Status,
		ExpectAssignee: ticket.AssignedTo,
		Status:         ticket.Status,
	}
}

func (c *Change) record(actor Actor, action domain.AuditAction, details map[string]any, now time.Time) {
	c.Events = append(c.Events, domain.AuditEvent{
		ID:      ids.NewEventID(now),
		Date:    now,
		Action:  action,
		User:    actor.auditUser(),
		Details: details,
	})
}

func (c *Change) assign(actor Actor, to Assignee, now time.Time) {
	c.Assignee = &to
	c.record(actor, domain.AuditActionAssignment, map[string]any{"toName": to.Name, "to": to.ID}, now)
}

func (c *Change) move(actor Actor, target domain.TicketStatus, now time.Time) {
	c.record(actor, domain.AuditActionStatusChange, map[string]any{"from": string(c.Status), "to": string(target)}, now)
	c.Status = target
	if target == domain.TicketStatusClosed {
		closedAt := now
		c.ClosedAt = &closedAt
	}
}

// PlanTransition authorises a status change and plans its write. A freelancer
// moving a libre ticket to diagnostic claims it; the founder may name an assignee
// for that move or leave the ticket unassigned.
func PlanTransition(actor Actor, ticket *domain.Ticket, target domain.TicketStatus, assignee *Assignee, now time.Time) (*Change, error) {
	if err := AuthorizeTransition(actor, ticket, target); err != nil {
		return nil, err
	}

	change := newChange(ticket)
	if ticket.Status == domain.TicketStatusLibre && target == domain.TicketStatusDiagnostic {
		to, err := claimant(actor, assignee)
		if err != nil {
			return nil, err
		}
		if to != nil {
			change.assign(actor, *to, now)
		}
	} else if assignee != nil && assignee.ID != ticket.AssignedTo {
		return nil, apperrors.NewValidationError("assignee can only be set together with a diagnostic start", nil)
	}
	change.move(actor, target, now)
	return change, nil
}

func claimant(actor Actor, requested *Assignee) (*Assignee, error) {
	caps := actor.Capabilities()
	if caps.Founder {
		if requested == nil || requested.ID == "" {
			return nil, nil
		}
		if !requested.Role.IsFreelancerCapable() {
			return nil, apperrors.NewValidationError("assignee must be a freelancer", map[string]any{"assignedTo": requested.ID})
		}
		return requested, nil
	}
	if requested != nil && requested.ID != "" && requested.ID != actor.ID {
		return nil, apperrors.NewForbidden("freelancers can only assign tickets to themselves")
	}
	return &Assignee{ID: actor.ID, Name: actor.Name, Role: actor.Role}, nil
}

// PlanAssignment plans an assignee change requested through the ticket update
// endpoint. Administrators may hand a ticket to any freelancer, re-assign active
// work, or clear a diagnostic assignee which returns the ticket to libre. A
// freelancer naming themselves on a libre ticket is treated as a claim.
func PlanAssignment(actor Actor, ticket *domain.Ticket, to Assignee, now time.Time) (*Change, error) {
	caps := actor.Capabilities()
	if !caps.Privileged() {
		if caps.Freelancer && to.ID == actor.ID && ticket.Status == domain.TicketStatusLibre {
			return PlanTransition(actor, ticket, domain.TicketStatusDiagnostic, nil, now)
		}
		return nil, apperrors.NewForbidden("only administrators can assign tickets")
	}

	change := newChange(ticket)
	if to.ID == "" {
		if ticket.Status != domain.TicketStatusDiagnostic {
			return nil, apperrors.NewInvalidTransition(string(ticket.Status), string(domain.TicketStatusLibre))
		}
		change.assign(actor, Assignee{}, now)
		change.move(actor, domain.TicketStatusLibre, now)
		return change, nil
	}

	if !to.Role.IsFreelancerCapable() {
		return nil, apperrors.NewValidationError("assignee must be a freelancer", map[string]any{"assignedTo": to.ID})
	}

	switch ticket.Status {
	case domain.TicketStatusLibre:
		change.assign(actor, to, now)
		change.move(actor, domain.TicketStatusDiagnostic, now)
	case domain.TicketStatusDiagnostic, domain.TicketStatusOnline, domain.TicketStatusOnsite:
		if ticket.AssignedTo == to.ID {
			return nil, apperrors.NewConflict("ticket is already assigned to this freelancer", map[string]any{"assignedTo": to.ID})
		}
		change.assign(actor, to, now)
	default:
		return nil, apperrors.NewConflict("ticket can no longer be reassigned", map[string]any{"status": ticket.Status})
	}
	return change, nil
}

// AuthorizeDelete allows hard deletes for administrators only.
func AuthorizeDelete(actor Actor) error {
	if actor.Capabilities().Privileged() {
		return nil
	}
	return apperrors.NewForbidden("only administrators can delete tickets")
}

// Editable ticket fields.
const (
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldCategory    = "category"
	FieldSubcategory = "subcategory"
	FieldPriority    = "priority"
	FieldAppointment = "appointment"
)

// AuthorizeEdit checks whether actor may change the named fields.
func AuthorizeEdit(actor Actor, ticket *domain.Ticket, fields []string) error {
	if ticket.Status == domain.TicketStatusClosed {
		return apperrors.NewConflict("closed tickets cannot be modified", map[string]any{"status": ticket.Status})
	}
	caps := actor.Capabilities()
	if caps.Privileged() {
		return nil
	}
	if ticket.CreatedBy == actor.ID && ticket.Status == domain.TicketStatusLibre {
		return nil
	}
	if caps.Freelancer && ticket.AssignedTo == actor.ID {
		for _, f := range fields {
			if f != FieldAppointment {
				return apperrors.NewForbidden("assigned freelancers can only schedule the appointment")
			}
		}
		return nil
	}
	return apperrors.NewForbidden("you cannot edit this ticket")
}

// UpdateEvent builds the audit entry for a field edit.
func UpdateEvent(actor Actor, fields []string, now time.Time) domain.AuditEvent {
	return domain.AuditEvent{
		ID:      ids.NewEventID(now),
		Date:    now,
		Action:  domain.AuditActionUpdate,
		User:    actor.auditUser(),
		Details: map[string]any{"fields": fields},
	}
}

// CreationEvent builds the first audit entry of a ticket.
func CreationEvent(actor Actor, now time.Time) domain.AuditEvent {
	return domain.AuditEvent{
		ID:     ids.NewEventID(now),
		Date:   now,
		Action: domain.AuditActionCreation,
		User:   actor.auditUser(),
	}
}
