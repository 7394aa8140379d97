package workflow

import "github.com/spec-kit/repairdesk/internal/domain"

// Scope is the visibility boundary of an actor over the ticket collection.
// Stores translate it into their query language; Matches is the reference predicate.
type Scope struct {
	All bool
	// CreatedBy restricts to tickets the user raised.
	CreatedBy string
	// Freelancer restricts to unclaimed libre tickets plus those assigned to this id.
	Freelancer string
}

// ScopeFor derives the visibility scope from the actor's role.
func ScopeFor(actor Actor) Scope {
	caps := actor.Capabilities()
	switch {
	case caps.Privileged():
		return Scope{All: true}
	case caps.Freelancer:
		return Scope{Freelancer: actor.ID}
	default:
		return Scope{CreatedBy: actor.ID}
	}
}

// Matches reports whether ticket falls inside the scope.
func (s Scope) Matches(ticket *domain.Ticket) bool {
	switch {
	case s.All:
		return true
	case s.Freelancer != "":
		if ticket.Status == domain.TicketStatusLibre && ticket.AssignedTo == "" {
			return true
		}
		return ticket.AssignedTo == s.Freelancer
	case s.CreatedBy != "":
		return ticket.CreatedBy == s.CreatedBy
	}
	return false
}

// Visible reports whether actor may see ticket.
func Visible(actor Actor, ticket *domain.Ticket) bool {
	return ScopeFor(actor).Matches(ticket)
}
