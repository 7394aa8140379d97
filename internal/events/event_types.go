package events

import (
	"time"

	"github.com/spec-kit/repairdesk/internal/domain"
)

// EventType enumerates supported event identifiers. Values double as AMQP routing keys.
type EventType string

const (
	EventTicketCreated       EventType = "ticket.created"
	EventTicketStatusChanged EventType = "ticket.status_changed"
	EventTicketAssigned      EventType = "ticket.assigned"
	EventTicketUpdated       EventType = "ticket.updated"
	EventTicketDeleted       EventType = "ticket.deleted"
)

// AllEventTypes lists every event the ticket service emits.
var AllEventTypes = []EventType{
	EventTicketCreated,
	EventTicketStatusChanged,
	EventTicketAssigned,
	EventTicketUpdated,
	EventTicketDeleted,
}

// Actor encapsulates actor metadata for an event.
type Actor struct {
	ID   string      `json:"id"`
	Name string      `json:"name"`
	Role domain.Role `json:"role"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticketId"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Reference  string                `json:"reference"`
	Title      string                `json:"title"`
	Category   string                `json:"category"`
	Priority   domain.TicketPriority `json:"priority"`
	CreatedBy  string                `json:"createdBy"`
	TargetUser string                `json:"targetUser,omitempty"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	From domain.TicketStatus `json:"from"`
	To   domain.TicketStatus `json:"to"`
}

// TicketAssignedPayload payload. An empty AssignedTo means the assignee was cleared.
type TicketAssignedPayload struct {
	Previous       string `json:"previous,omitempty"`
	AssignedTo     string `json:"assignedTo,omitempty"`
	AssignedToName string `json:"assignedToName,omitempty"`
}

// TicketUpdatedPayload payload.
type TicketUpdatedPayload struct {
	Fields []string `json:"fields"`
}

// TicketDeletedPayload payload.
type TicketDeletedPayload struct {
	Reference string `json:"reference"`
}
