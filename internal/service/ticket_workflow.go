package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/spec-kit/repairdesk/internal/domain"
	"github.com/spec-kit/repairdesk/internal/events"
	"github.com/spec-kit/repairdesk/internal/observability"
	"github.com/spec-kit/repairdesk/internal/repository"
	"github.com/spec-kit/repairdesk/internal/workflow"
	apperrors "github.com/spec-kit/repairdesk/pkg/util"
)

// UpdateTicket handles PUT /tickets/:id: a status change, optionally naming the
// assignee of a diagnostic start, or a bare assignee change.
func (s *TicketService) UpdateTicket(ctx context.Context, actor workflow.Actor, ticketID string, status *domain.TicketStatus, assignedTo *string) (*domain.Ticket, error) {
	switch {
	case status != nil:
		return s.Transition(ctx, actor, ticketID, *status, assignedTo)
	case assignedTo != nil:
		return s.Assign(ctx, actor, ticketID, *assignedTo)
	default:
		return nil, apperrors.NewValidationError("status or assignedTo is required", nil)
	}
}

// Claim moves a libre ticket to diagnostic and assigns it to the calling freelancer.
func (s *TicketService) Claim(ctx context.Context, actor workflow.Actor, ticketID string) (*domain.Ticket, error) {
	return s.Transition(ctx, actor, ticketID, domain.TicketStatusDiagnostic, nil)
}

// Transition moves a ticket to target. The write only lands if the ticket still
// has the status and assignee it was authorised against.
func (s *TicketService) Transition(ctx context.Context, actor workflow.Actor, ticketID string, target domain.TicketStatus, assigneeID *string) (_ *domain.Ticket, err error) {
	ctx, span := startSpan(ctx, "TicketService.Transition",
		attribute.String("ticket.id", ticketID),
		attribute.String("ticket.target_status", string(target)),
	)
	defer endSpan(span, &err)

	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	if err := workflow.AuthorizeTransition(actor, ticket, target); err != nil {
		s.rejected(actor, ticket, target, err)
		return nil, err
	}

	var assignee *workflow.Assignee
	if assigneeID != nil && *assigneeID != "" {
		if assignee, err = s.assigneeFor(ctx, actor, *assigneeID); err != nil {
			return nil, err
		}
	}

	from := ticket.Status
	change, err := workflow.PlanTransition(actor, ticket, target, assignee, s.now())
	if err != nil {
		s.rejected(actor, ticket, target, err)
		return nil, err
	}
	return s.apply(ctx, actor, ticket, from, change)
}

// Assign hands a ticket to a freelancer, or clears a diagnostic assignee when
// assigneeID is empty.
func (s *TicketService) Assign(ctx context.Context, actor workflow.Actor, ticketID, assigneeID string) (_ *domain.Ticket, err error) {
	ctx, span := startSpan(ctx, "TicketService.Assign",
		attribute.String("ticket.id", ticketID),
		attribute.String("ticket.assignee", assigneeID),
	)
	defer endSpan(span, &err)

	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	to := workflow.Assignee{}
	if assigneeID != "" {
		resolved, err := s.assigneeFor(ctx, actor, assigneeID)
		if err != nil {
			return nil, err
		}
		to = *resolved
	}

	from := ticket.Status
	change, err := workflow.PlanAssignment(actor, ticket, to, s.now())
	if err != nil {
		s.rejected(actor, ticket, ticket.Status, err)
		return nil, err
	}
	return s.apply(ctx, actor, ticket, from, change)
}

// assigneeFor resolves the named assignee. Non-privileged actors may only name
// themselves, so other ids are passed through unresolved for the planner to reject.
func (s *TicketService) assigneeFor(ctx context.Context, actor workflow.Actor, userID string) (*workflow.Assignee, error) {
	if userID == actor.ID {
		return &workflow.Assignee{ID: actor.ID, Name: actor.Name, Role: actor.Role}, nil
	}
	if !actor.Capabilities().Privileged() {
		return &workflow.Assignee{ID: userID}, nil
	}
	return s.resolveAssignee(ctx, userID)
}

func (s *TicketService) resolveAssignee(ctx context.Context, userID string) (*workflow.Assignee, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperrors.NewValidationError("assignee does not exist", map[string]any{"assignedTo": userID})
		}
		return nil, apperrors.MapError(err)
	}
	if !user.Active {
		return nil, apperrors.NewValidationError("assignee account is disabled", map[string]any{"assignedTo": userID})
	}
	return &workflow.Assignee{ID: user.ID, Name: user.Name, Role: user.Role}, nil
}

func (s *TicketService) apply(ctx context.Context, actor workflow.Actor, ticket *domain.Ticket, from domain.TicketStatus, change *workflow.Change) (*domain.Ticket, error) {
	updated, err := s.tickets.ApplyChange(ctx, ticket.ID, change, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			s.metrics.RecordTransition(string(from), string(change.Status), observability.OutcomeConflict)
			if from == domain.TicketStatusLibre && change.Status == domain.TicketStatusDiagnostic {
				s.metrics.RecordClaimConflict()
			}
			s.logger.Debug("ticket changed concurrently",
				zap.String("ticket_id", ticket.ID),
				zap.String("actor_id", actor.ID))
		}
		return nil, mapTicketError(err, ticket.ID)
	}

	if change.StatusChanged() {
		s.metrics.RecordTransition(string(from), string(change.Status), observability.OutcomeApplied)
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketStatusChanged,
			TicketID: ticket.ID,
			Actor:    eventActor(actor),
			Payload:  events.TicketStatusChangedPayload{From: from, To: change.Status},
		})
	}
	if change.Assignee != nil {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketAssigned,
			TicketID: ticket.ID,
			Actor:    eventActor(actor),
			Payload: events.TicketAssignedPayload{
				Previous:       change.ExpectAssignee,
				AssignedTo:     change.Assignee.ID,
				AssignedToName: change.Assignee.Name,
			},
		})
	}
	return updated, nil
}

func (s *TicketService) rejected(actor workflow.Actor, ticket *domain.Ticket, target domain.TicketStatus, err error) {
	outcome := observability.OutcomeInvalid
	switch {
	case apperrors.HasCode(err, apperrors.CodeForbidden):
		outcome = observability.OutcomeForbidden
	case apperrors.HasCode(err, apperrors.CodeConflict):
		outcome = observability.OutcomeConflict
	}
	s.metrics.RecordTransition(string(ticket.Status), string(target), outcome)
	s.logger.Debug("ticket workflow rejected",
		zap.String("ticket_id", ticket.ID),
		zap.String("actor_id", actor.ID),
		zap.String("actor_role", string(actor.Role)),
		zap.String("from", string(ticket.Status)),
		zap.String("to", string(target)),
		zap.Error(err))
}
