package dto

import (
	"github.com/spec-kit/repairdesk/internal/domain"
)

// CreateTicketRequest is the multipart form of POST /tickets. Files are read separately.
type CreateTicketRequest struct {
	Title       string `form:"title" validate:"required,max=200"`
	Description string `form:"description" validate:"required,max=5000"`
	Category    string `form:"category" validate:"required,max=100"`
	Subcategory string `form:"subcategory" validate:"max=100"`
	Priority    string `form:"priority" validate:"omitempty,oneof=low medium high urgent"`
	TargetUser  string `form:"targetUser" validate:"omitempty,uuid"`
}

// UpdateTicketRequest is the body of PUT /tickets/:id.
type UpdateTicketRequest struct {
	Status     *string `json:"status" validate:"omitempty,oneof=libre diagnostic online onsite failed resolved closed"`
	AssignedTo *string `json:"assignedTo" validate:"omitempty,uuid"`
}

// AppointmentRequest schedules the intervention.
type AppointmentRequest struct {
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime string `json:"startTime" validate:"required,datetime=15:04"`
	EndTime   string `json:"endTime" validate:"required,datetime=15:04"`
}

// PatchTicketRequest is the body of PATCH /tickets/:id.
type PatchTicketRequest struct {
	Title       *string             `json:"title" validate:"omitempty,max=200"`
	Description *string             `json:"description" validate:"omitempty,max=5000"`
	Category    *string             `json:"category" validate:"omitempty,max=100"`
	Subcategory *string             `json:"subcategory" validate:"omitempty,max=100"`
	Priority    *string             `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	Appointment *AppointmentRequest `json:"appointment" validate:"omitempty"`
}

// TicketListResponse is one page of tickets.
type TicketListResponse struct {
	Items    []domain.Ticket `json:"items"`
	Total    int64           `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"pageSize"`
}
