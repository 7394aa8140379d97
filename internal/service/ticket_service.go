package service

import (
	"context"
	"errors"
	"mime/multipart"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/spec-kit/repairdesk/internal/domain"
	"github.com/spec-kit/repairdesk/internal/events"
	"github.com/spec-kit/repairdesk/internal/ids"
	"github.com/spec-kit/repairdesk/internal/observability"
	"github.com/spec-kit/repairdesk/internal/repository"
	"github.com/spec-kit/repairdesk/internal/workflow"
	apperrors "github.com/spec-kit/repairdesk/pkg/util"
)

// CountAllKey is the tab count key covering every status.
const CountAllKey = "tous"

// AttachmentStore persists uploaded ticket files.
type AttachmentStore interface {
	SaveTicketFiles(ticketID string, files []*multipart.FileHeader) ([]domain.Attachment, error)
	Path(relativePath string) (string, error)
	DeleteTicketFiles(ticketID string) error
}

// TicketService coordinates ticket workflows.
type TicketService struct {
	tickets    repository.TicketRepository
	users      repository.UserRepository
	payments   repository.PaymentMethodRepository
	storage    AttachmentStore
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	Tickets    repository.TicketRepository
	Users      repository.UserRepository
	Payments   repository.PaymentMethodRepository
	Storage    AttachmentStore
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Clock      func() time.Time
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title       string
	Description string
	Category    string
	Subcategory string
	Priority    domain.TicketPriority
	TargetUser  string
	Files       []*multipart.FileHeader
}

// TicketListQuery describes list and count filters. Visibility scoping is applied by the service.
type TicketListQuery struct {
	Status         *domain.TicketStatus
	UnassignedOnly bool
	AssignedTo     *string
	Priorities     []domain.TicketPriority
	Category       *string
	SearchTerm     *string
	Sort           string
	Order          string
	Page           int
	PageSize       int
}

// TicketPage is one page of a ticket listing.
type TicketPage struct {
	Items    []domain.Ticket
	Total    int64
	Page     int
	PageSize int
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &TicketService{
		tickets:    deps.Tickets,
		users:      deps.Users,
		payments:   deps.Payments,
		storage:    deps.Storage,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		now:        clock,
	}
}

// CreateTicket creates a libre ticket. Plain users must own a payment method.
// Administrators may raise a ticket on behalf of another user; the ticket is then
// owned by that user.
func (s *TicketService) CreateTicket(ctx context.Context, actor workflow.Actor, input TicketCreateInput) (_ *domain.Ticket, err error) {
	ctx, span := startSpan(ctx, "TicketService.CreateTicket", attribute.String("actor.role", string(actor.Role)))
	defer endSpan(span, &err)

	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	category := strings.TrimSpace(input.Category)
	if title == "" || description == "" || category == "" {
		return nil, apperrors.NewValidationError("title, description and category are required", nil)
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}
	if priority.Rank() == 0 {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": priority})
	}
	subcategory := strings.TrimSpace(input.Subcategory)
	if subcategory == "" {
		subcategory = domain.DefaultSubcategory
	}

	owner := domain.AuditActor{ID: actor.ID, Name: actor.Name}
	targetID := strings.TrimSpace(input.TargetUser)
	switch {
	case targetID != "" && targetID != actor.ID:
		if !actor.Capabilities().Privileged() {
			return nil, apperrors.NewForbidden("only administrators can create tickets on behalf of another user")
		}
		target, err := s.users.GetByID(ctx, targetID)
		if err != nil {
			if repository.IsNotFound(err) {
				return nil, apperrors.NewValidationError("target user does not exist", map[string]any{"targetUser": targetID})
			}
			return nil, apperrors.MapError(err)
		}
		owner = domain.AuditActor{ID: target.ID, Name: target.Name}
	case actor.Role == domain.RoleUser:
		if err := s.requirePaymentMethod(ctx, actor.ID); err != nil {
			return nil, err
		}
	}

	now := s.now()
	ticket := &domain.Ticket{
		ID:            ids.NewEntityID(),
		Reference:     ids.NewTicketReference(),
		Title:         title,
		Description:   description,
		Category:      category,
		Subcategory:   subcategory,
		Priority:      priority,
		PriorityRank:  priority.Rank(),
		Status:        domain.TicketStatusLibre,
		Attachments:   []domain.Attachment{},
		CreatedBy:     owner.ID,
		CreatedByName: owner.Name,
		AuditTrail:    []domain.AuditEvent{workflow.CreationEvent(actor, now)},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if targetID != "" && targetID != actor.ID {
		ticket.TargetUser = targetID
	}

	if len(input.Files) > 0 && s.storage != nil {
		attachments, err := s.storage.SaveTicketFiles(ticket.ID, input.Files)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		ticket.Attachments = attachments
	}

	if err := s.tickets.Create(ctx, ticket); err != nil {
		s.removeAttachments(ticket.ID)
		return nil, apperrors.MapError(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    eventActor(actor),
		Payload: events.TicketCreatedPayload{
			Reference:  ticket.Reference,
			Title:      ticket.Title,
			Category:   ticket.Category,
			Priority:   ticket.Priority,
			CreatedBy:  ticket.CreatedBy,
			TargetUser: ticket.TargetUser,
		},
	})
	return ticket, nil
}

func (s *TicketService) requirePaymentMethod(ctx context.Context, userID string) error {
	if s.payments == nil {
		return nil
	}
	count, err := s.payments.CountByUser(ctx, userID)
	if err != nil {
		return apperrors.MapError(err)
	}
	if count == 0 {
		return apperrors.NewPaymentRequired("a payment method is required before creating a ticket")
	}
	return nil
}

// ListTickets returns the actor's visible tickets matching the query.
func (s *TicketService) ListTickets(ctx context.Context, actor workflow.Actor, query TicketListQuery) (_ *TicketPage, err error) {
	ctx, span := startSpan(ctx, "TicketService.ListTickets", attribute.String("actor.role", string(actor.Role)))
	defer endSpan(span, &err)

	filter := s.filterFor(actor, query)
	items, total, err := s.tickets.List(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return &TicketPage{
		Items:    items,
		Total:    total,
		Page:     filter.Offset/filter.Limit + 1,
		PageSize: filter.Limit,
	}, nil
}

// ListUnassigned returns the visible libre tickets nobody holds.
func (s *TicketService) ListUnassigned(ctx context.Context, actor workflow.Actor, query TicketListQuery) (*TicketPage, error) {
	libre := domain.TicketStatusLibre
	query.Status = &libre
	query.UnassignedOnly = true
	return s.ListTickets(ctx, actor, query)
}

// CountTickets returns tab counts for every status plus the overall total.
// They use the same filter as ListTickets, ignoring the status and paging.
func (s *TicketService) CountTickets(ctx context.Context, actor workflow.Actor, query TicketListQuery) (_ map[string]int64, err error) {
	ctx, span := startSpan(ctx, "TicketService.CountTickets")
	defer endSpan(span, &err)

	byStatus, err := s.tickets.CountByStatus(ctx, s.filterFor(actor, query))
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	counts := make(map[string]int64, len(byStatus)+1)
	var all int64
	for _, status := range domain.TicketStatuses {
		counts[string(status)] = byStatus[status]
		all += byStatus[status]
	}
	counts[CountAllKey] = all
	return counts, nil
}

func (s *TicketService) filterFor(actor workflow.Actor, query TicketListQuery) repository.TicketFilter {
	page, size := normalizePage(query.Page, query.PageSize)
	return repository.TicketFilter{
		Scope:          workflow.ScopeFor(actor),
		Status:         query.Status,
		UnassignedOnly: query.UnassignedOnly,
		AssignedTo:     query.AssignedTo,
		Priorities:     query.Priorities,
		Category:       query.Category,
		SearchTerm:     query.SearchTerm,
		Sort:           query.Sort,
		Order:          query.Order,
		Limit:          size,
		Offset:         (page - 1) * size,
	}
}

// GetTicket returns a ticket the actor can see. Invisible tickets are reported as missing.
func (s *TicketService) GetTicket(ctx context.Context, actor workflow.Actor, ticketID string) (_ *domain.Ticket, err error) {
	ctx, span := startSpan(ctx, "TicketService.GetTicket", attribute.String("ticket.id", ticketID))
	defer endSpan(span, &err)

	return s.loadVisible(ctx, actor, ticketID)
}

// UpdateFields edits descriptive ticket fields and records one update event.
func (s *TicketService) UpdateFields(ctx context.Context, actor workflow.Actor, ticketID string, update repository.TicketFieldUpdate) (_ *domain.Ticket, err error) {
	ctx, span := startSpan(ctx, "TicketService.UpdateFields", attribute.String("ticket.id", ticketID))
	defer endSpan(span, &err)

	fields := update.Fields()
	if len(fields) == 0 {
		return nil, apperrors.NewValidationError("no fields to update", nil)
	}
	if err := validateFieldUpdate(&update); err != nil {
		return nil, err
	}

	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := workflow.AuthorizeEdit(actor, ticket, fields); err != nil {
		s.logger.Debug("ticket edit rejected",
			zap.String("ticket_id", ticketID),
			zap.String("actor_id", actor.ID),
			zap.Error(err))
		return nil, err
	}

	now := s.now()
	updated, err := s.tickets.UpdateFields(ctx, ticketID, ticket.Status, update, workflow.UpdateEvent(actor, fields, now), now)
	if err != nil {
		return nil, mapTicketError(err, ticketID)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketUpdated,
		TicketID: ticketID,
		Actor:    eventActor(actor),
		Payload:  events.TicketUpdatedPayload{Fields: fields},
	})
	return updated, nil
}

func validateFieldUpdate(update *repository.TicketFieldUpdate) error {
	for name, value := range map[string]*string{
		workflow.FieldTitle:       update.Title,
		workflow.FieldDescription: update.Description,
		workflow.FieldCategory:    update.Category,
	} {
		if value == nil {
			continue
		}
		trimmed := strings.TrimSpace(*value)
		if trimmed == "" {
			return apperrors.NewValidationError(name+" cannot be empty", map[string]any{"field": name})
		}
		*value = trimmed
	}
	if update.Subcategory != nil && strings.TrimSpace(*update.Subcategory) == "" {
		def := domain.DefaultSubcategory
		update.Subcategory = &def
	}
	if update.Priority != nil && update.Priority.Rank() == 0 {
		return apperrors.NewValidationError("invalid priority", map[string]any{"priority": *update.Priority})
	}
	return nil
}

// DeleteTicket hard-deletes a ticket and its stored attachments.
func (s *TicketService) DeleteTicket(ctx context.Context, actor workflow.Actor, ticketID string) (err error) {
	ctx, span := startSpan(ctx, "TicketService.DeleteTicket", attribute.String("ticket.id", ticketID))
	defer endSpan(span, &err)

	if err := workflow.AuthorizeDelete(actor); err != nil {
		return err
	}
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return err
	}
	if err := s.tickets.Delete(ctx, ticketID); err != nil {
		return mapTicketError(err, ticketID)
	}
	s.removeAttachments(ticketID)

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketDeleted,
		TicketID: ticketID,
		Actor:    eventActor(actor),
		Payload:  events.TicketDeletedPayload{Reference: ticket.Reference},
	})
	return nil
}

// AttachmentFile resolves a visible ticket's attachment to its path on disk.
func (s *TicketService) AttachmentFile(ctx context.Context, actor workflow.Actor, ticketID, filename string) (*domain.Attachment, string, error) {
	ticket, err := s.loadVisible(ctx, actor, ticketID)
	if err != nil {
		return nil, "", err
	}
	att, ok := ticket.Attachment(filename)
	if !ok || s.storage == nil {
		return nil, "", apperrors.NewNotFound("attachment", map[string]any{"filename": filename})
	}
	path, err := s.storage.Path(att.StoragePath)
	if err != nil {
		return nil, "", apperrors.MapError(err)
	}
	return &att, path, nil
}

// load fetches a ticket for a mutation. Mutations are decided by the workflow
// rules, so a ticket outside the actor's listing scope yields FORBIDDEN there.
func (s *TicketService) load(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, mapTicketError(err, ticketID)
	}
	return ticket, nil
}

// loadVisible fetches a ticket for reading. Tickets outside the actor's scope are reported as missing.
func (s *TicketService) loadVisible(ctx context.Context, actor workflow.Actor, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !workflow.Visible(actor, ticket) {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	return ticket, nil
}

func (s *TicketService) removeAttachments(ticketID string) {
	if s.storage == nil {
		return
	}
	if err := s.storage.DeleteTicketFiles(ticketID); err != nil {
		s.logger.Warn("failed to remove ticket attachments", zap.String("ticket_id", ticketID), zap.Error(err))
	}
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = ids.NewEntityID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handlers failed",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
	}
}

func mapTicketError(err error, ticketID string) error {
	switch {
	case repository.IsNotFound(err):
		return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	case errors.Is(err, repository.ErrConflict):
		return apperrors.NewConflict("ticket was modified by another request", map[string]any{"ticket_id": ticketID})
	default:
		return apperrors.MapError(err)
	}
}

func eventActor(actor workflow.Actor) events.Actor {
	return events.Actor{ID: actor.ID, Name: actor.Name, Role: actor.Role}
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	return page, size
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return observability.Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err *error) {
	if err != nil && *err != nil {
		span.RecordError(*err)
		span.SetStatus(codes.Error, (*err).Error())
	}
	span.End()
}
