package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusLibre      TicketStatus = "libre"
	TicketStatusDiagnostic TicketStatus = "diagnostic"
	TicketStatusOnline     TicketStatus = "online"
	TicketStatusOnsite     TicketStatus = "onsite"
	TicketStatusFailed     TicketStatus = "failed"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusClosed     TicketStatus = "closed"
)

// TicketStatuses lists statuses in lifecycle order.
var TicketStatuses = []TicketStatus{
	TicketStatusLibre,
	TicketStatusDiagnostic,
	TicketStatusOnline,
	TicketStatusOnsite,
	TicketStatusFailed,
	TicketStatusResolved,
	TicketStatusClosed,
}

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	for _, known := range TicketStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// TicketPriority enumerates urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

// Rank orders priorities for sorting.
func (p TicketPriority) Rank() int {
	switch p {
	case TicketPriorityLow:
		return 1
	case TicketPriorityMedium:
		return 2
	case TicketPriorityHigh:
		return 3
	case TicketPriorityUrgent:
		return 4
	}
	return 0
}

// DefaultSubcategory is stored when the creator leaves the subcategory blank.
const DefaultSubcategory = "Non spécifié"

// Attachment is an uploaded file bound to a ticket.
type Attachment struct {
	Filename     string `bson:"filename" json:"filename"`
	OriginalName string `bson:"originalName" json:"originalName"`
	StoragePath  string `bson:"storagePath" json:"-"`
	MimeType     string `bson:"mimeType" json:"mimeType"`
	SizeBytes    int64  `bson:"sizeBytes" json:"sizeBytes"`
}

// Appointment is the scheduled intervention slot.
type Appointment struct {
	Date      string `bson:"date" json:"date"`
	StartTime string `bson:"startTime" json:"startTime"`
	EndTime   string `bson:"endTime" json:"endTime"`
}

// Ticket is the support request document. The audit trail is embedded.
type Ticket struct {
	ID             string         `bson:"_id" json:"id"`
	Reference      string         `bson:"reference" json:"reference"`
	Title          string         `bson:"title" json:"title"`
	Description    string         `bson:"description" json:"description"`
	Category       string         `bson:"category" json:"category"`
	Subcategory    string         `bson:"subcategory" json:"subcategory"`
	Priority       TicketPriority `bson:"priority" json:"priority"`
	PriorityRank   int            `bson:"priorityRank" json:"-"`
	Status         TicketStatus   `bson:"status" json:"status"`
	Attachments    []Attachment   `bson:"attachments" json:"attachments"`
	CreatedBy      string         `bson:"createdBy" json:"createdBy"`
	CreatedByName  string         `bson:"createdByName" json:"createdByName"`
	AssignedTo     string         `bson:"assignedTo,omitempty" json:"assignedTo,omitempty"`
	AssignedToName string         `bson:"assignedToName,omitempty" json:"assignedToName,omitempty"`
	TargetUser     string         `bson:"targetUser,omitempty" json:"targetUser,omitempty"`
	Appointment    *Appointment   `bson:"appointment,omitempty" json:"appointment,omitempty"`
	AuditTrail     []AuditEvent   `bson:"auditTrail" json:"auditTrail"`
	CreatedAt      time.Time      `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time      `bson:"updatedAt" json:"updatedAt"`
	ClosedAt       *time.Time     `bson:"closedAt,omitempty" json:"closedAt,omitempty"`
}

// IsAssigned reports whether a freelancer holds the ticket.
func (t *Ticket) IsAssigned() bool {
	return t.AssignedTo != ""
}

// TotalAttachmentBytes sums attachment sizes.
func (t *Ticket) TotalAttachmentBytes() int64 {
	var total int64
	for _, a := range t.Attachments {
		total += a.SizeBytes
	}
	return total
}

// Attachment looks up an attachment by stored filename.
func (t *Ticket) Attachment(filename string) (Attachment, bool) {
	for _, a := range t.Attachments {
		if a.Filename == filename {
			return a, true
		}
	}
	return Attachment{}, false
}
