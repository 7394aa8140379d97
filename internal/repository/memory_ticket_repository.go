package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spec-kit/repairdesk/internal/domain"
	"github.com/spec-kit/repairdesk/internal/workflow"
)

var _ TicketRepository = (*MemoryTicketRepository)(nil)

// MemoryTicketRepository keeps tickets in process memory. It performs the same
// compare-and-swap as the MongoDB store and is used for development and tests.
type MemoryTicketRepository struct {
	mu      sync.RWMutex
	tickets map[string]domain.Ticket
}

// NewMemoryTicketRepository returns an empty store.
func NewMemoryTicketRepository() *MemoryTicketRepository {
	return &MemoryTicketRepository{tickets: make(map[string]domain.Ticket)}
}

func (r *MemoryTicketRepository) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tickets[ticket.ID]; exists {
		return ErrConflict
	}
	r.tickets[ticket.ID] = cloneTicket(*ticket)
	return nil
}

func (r *MemoryTicketRepository) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneTicket(ticket)
	return &out, nil
}

func (r *MemoryTicketRepository) List(_ context.Context, filter TicketFilter) ([]domain.Ticket, int64, error) {
	r.mu.RLock()
	matched := r.matching(filter)
	r.mu.RUnlock()

	sortTickets(matched, sanitizeSort(filter.Sort), sanitizeOrder(filter.Order))

	total := int64(len(matched))
	limit, offset := pageBounds(filter.Limit, filter.Offset)
	if offset >= len(matched) {
		return []domain.Ticket{}, total, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

func (r *MemoryTicketRepository) Count(_ context.Context, filter TicketFilter) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.matching(filter))), nil
}

func (r *MemoryTicketRepository) CountByStatus(_ context.Context, filter TicketFilter) (map[domain.TicketStatus]int64, error) {
	r.mu.RLock()
	matched := r.matching(filter.WithoutStatus())
	r.mu.RUnlock()

	counts := make(map[domain.TicketStatus]int64, len(domain.TicketStatuses))
	for _, status := range domain.TicketStatuses {
		counts[status] = 0
	}
	for _, t := range matched {
		counts[t.Status]++
	}
	return counts, nil
}

func (r *MemoryTicketRepository) ApplyChange(_ context.Context, id string, change *workflow.Change, now time.Time) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	if current.Status != change.ExpectStatus || current.AssignedTo != change.ExpectAssignee {
		return nil, ErrConflict
	}

	next := change.Apply(cloneTicket(current), now)
	r.tickets[id] = next
	out := cloneTicket(next)
	return &out, nil
}

func (r *MemoryTicketRepository) UpdateFields(_ context.Context, id string, expectStatus domain.TicketStatus, upd TicketFieldUpdate, event domain.AuditEvent, now time.Time) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	if current.Status != expectStatus {
		return nil, ErrConflict
	}

	next := cloneTicket(current)
	if upd.Title != nil {
		next.Title = *upd.Title
	}
	if upd.Description != nil {
		next.Description = *upd.Description
	}
	if upd.Category != nil {
		next.Category = *upd.Category
	}
	if upd.Subcategory != nil {
		next.Subcategory = *upd.Subcategory
	}
	if upd.Priority != nil {
		next.Priority = *upd.Priority
		next.PriorityRank = upd.Priority.Rank()
	}
	if upd.Appointment != nil {
		appt := *upd.Appointment
		next.Appointment = &appt
	}
	next.AuditTrail = append(next.AuditTrail, event)
	next.UpdatedAt = now

	r.tickets[id] = next
	out := cloneTicket(next)
	return &out, nil
}

func (r *MemoryTicketRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tickets[id]; !ok {
		return ErrNotFound
	}
	delete(r.tickets, id)
	return nil
}

// matching must be called with the lock held.
func (r *MemoryTicketRepository) matching(filter TicketFilter) []domain.Ticket {
	out := make([]domain.Ticket, 0)
	for _, t := range r.tickets {
		if matchTicket(filter, &t) {
			out = append(out, cloneTicket(t))
		}
	}
	return out
}

// matchTicket mirrors buildTicketQuery.
func matchTicket(f TicketFilter, t *domain.Ticket) bool {
	if !f.Scope.Matches(t) {
		return false
	}
	if f.Status != nil && t.Status != *f.Status {
		return false
	}
	if f.UnassignedOnly && t.AssignedTo != "" {
		return false
	}
	if f.AssignedTo != nil && t.AssignedTo != *f.AssignedTo {
		return false
	}
	if len(f.Priorities) > 0 {
		found := false
		for _, p := range f.Priorities {
			if t.Priority == p {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Category != nil && t.Category != *f.Category {
		return false
	}
	if f.SearchTerm != nil {
		term := strings.ToLower(strings.TrimSpace(*f.SearchTerm))
		if term != "" &&
			!strings.Contains(strings.ToLower(t.Title), term) &&
			!strings.Contains(strings.ToLower(t.Description), term) &&
			!strings.Contains(strings.ToLower(t.Reference), term) {
			return false
		}
	}
	return true
}

func sortTickets(tickets []domain.Ticket, field, order string) {
	less := func(a, b domain.Ticket) bool {
		switch field {
		case "updatedAt":
			if !a.UpdatedAt.Equal(b.UpdatedAt) {
				return a.UpdatedAt.Before(b.UpdatedAt)
			}
		case "priority":
			if a.PriorityRank != b.PriorityRank {
				return a.PriorityRank < b.PriorityRank
			}
		default:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
		}
		return a.ID < b.ID
	}
	sort.SliceStable(tickets, func(i, j int) bool {
		if order == "asc" {
			return less(tickets[i], tickets[j])
		}
		return less(tickets[j], tickets[i])
	})
}

func cloneTicket(t domain.Ticket) domain.Ticket {
	if t.Attachments != nil {
		t.Attachments = append([]domain.Attachment(nil), t.Attachments...)
	}
	if t.AuditTrail != nil {
		trail := make([]domain.AuditEvent, len(t.AuditTrail))
		copy(trail, t.AuditTrail)
		t.AuditTrail = trail
	}
	if t.Appointment != nil {
		appt := *t.Appointment
		t.Appointment = &appt
	}
	if t.ClosedAt != nil {
		closedAt := *t.ClosedAt
		t.ClosedAt = &closedAt
	}
	return t
}
