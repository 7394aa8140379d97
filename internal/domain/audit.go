package domain

import "time"

// AuditAction categorises an audit trail entry.
type AuditAction string

const (
	AuditActionCreation     AuditAction = "creation"
	AuditActionStatusChange AuditAction = "status_change"
	AuditActionAssignment   AuditAction = "assignment"
	AuditActionUpdate       AuditAction = "update"
)

// AuditActor identifies who performed an audited action.
type AuditActor struct {
	ID   string `bson:"id" json:"id"`
	Name string `bson:"name" json:"name"`
}

// AuditEvent is an immutable audit trail entry. IDs are ULIDs so they sort by occurrence.
type AuditEvent struct {
	ID      string         `bson:"id" json:"id"`
	Date    time.Time      `bson:"date" json:"date"`
	Action  AuditAction    `bson:"action" json:"action"`
	User    AuditActor     `bson:"user" json:"user"`
	Details map[string]any `bson:"details,omitempty" json:"details,omitempty"`
}

// CountAuditActions returns how many events of the given action the trail holds.
func CountAuditActions(trail []AuditEvent, action AuditAction) int {
	n := 0
	for _, ev := range trail {
		if ev.Action == action {
			n++
		}
	}
	return n
}
