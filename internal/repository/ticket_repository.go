package repository

import (
	"context"
	"strings"
	"time"

	"github.com/spec-kit/repairdesk/internal/domain"
	"github.com/spec-kit/repairdesk/internal/workflow"
)

// TicketFilter captures list and count parameters. Scope is always applied first.
type TicketFilter struct {
	Scope          workflow.Scope
	Status         *domain.TicketStatus
	UnassignedOnly bool
	AssignedTo     *string
	Priorities     []domain.TicketPriority
	Category       *string
	SearchTerm     *string
	Sort           string
	Order          string
	Limit          int
	Offset         int
}

// WithoutStatus returns a copy of the filter matching every status.
func (f TicketFilter) WithoutStatus() TicketFilter {
	f.Status = nil
	return f
}

// TicketFieldUpdate lists edited ticket fields. Nil pointers are left untouched.
type TicketFieldUpdate struct {
	Title       *string
	Description *string
	Category    *string
	Subcategory *string
	Priority    *domain.TicketPriority
	Appointment *domain.Appointment
}

// Fields returns the names of the fields the update touches.
func (u TicketFieldUpdate) Fields() []string {
	var fields []string
	if u.Title != nil {
		fields = append(fields, workflow.FieldTitle)
	}
	if u.Description != nil {
		fields = append(fields, workflow.FieldDescription)
	}
	if u.Category != nil {
		fields = append(fields, workflow.FieldCategory)
	}
	if u.Subcategory != nil {
		fields = append(fields, workflow.FieldSubcategory)
	}
	if u.Priority != nil {
		fields = append(fields, workflow.FieldPriority)
	}
	if u.Appointment != nil {
		fields = append(fields, workflow.FieldAppointment)
	}
	return fields
}

// TicketRepository encapsulates ticket persistence. Audit trail entries are only
// ever appended: no method rewrites or removes existing events.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, int64, error)
	Count(ctx context.Context, filter TicketFilter) (int64, error)
	CountByStatus(ctx context.Context, filter TicketFilter) (map[domain.TicketStatus]int64, error)
	// ApplyChange persists a planned workflow change only if the ticket still has
	// the observed status and assignee. Otherwise it returns ErrConflict.
	ApplyChange(ctx context.Context, id string, change *workflow.Change, now time.Time) (*domain.Ticket, error)
	// UpdateFields edits fields only if the ticket still has expectStatus.
	UpdateFields(ctx context.Context, id string, expectStatus domain.TicketStatus, update TicketFieldUpdate, event domain.AuditEvent, now time.Time) (*domain.Ticket, error)
	Delete(ctx context.Context, id string) error
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func sanitizeSort(s string) string {
	switch s {
	case "createdAt", "updatedAt", "priority":
		return s
	default:
		return "createdAt"
	}
}

func sanitizeOrder(o string) string {
	if strings.EqualFold(o, "asc") {
		return "asc"
	}
	return "desc"
}

func pageBounds(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
