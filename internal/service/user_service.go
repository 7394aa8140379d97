package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/repairdesk/internal/domain"
	"github.com/spec-kit/repairdesk/internal/repository"
	"github.com/spec-kit/repairdesk/internal/workflow"
	apperrors "github.com/spec-kit/repairdesk/pkg/util"
)

// UserListQuery filters the user administration listing.
type UserListQuery struct {
	Roles      []domain.Role
	SearchTerm string
	Page       int
	PageSize   int
}

// UserPage is one page of users.
type UserPage struct {
	Items    []domain.User
	Total    int64
	Page     int
	PageSize int
}

// activeStatuses are the statuses in which an assignee still has to act.
var activeStatuses = []domain.TicketStatus{
	domain.TicketStatusDiagnostic,
	domain.TicketStatusOnline,
	domain.TicketStatusOnsite,
}

// UserService implements user administration.
type UserService struct {
	users   repository.UserRepository
	tickets repository.TicketRepository
	logger  *zap.Logger
}

// NewUserService constructs the service. tickets is consulted before a role
// change takes away the ability to work assigned tickets.
func NewUserService(users repository.UserRepository, tickets repository.TicketRepository, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{users: users, tickets: tickets, logger: logger}
}

// ListUsers returns accounts for administrators.
func (s *UserService) ListUsers(ctx context.Context, actor workflow.Actor, query UserListQuery) (*UserPage, error) {
	if !actor.Capabilities().Privileged() {
		return nil, apperrors.NewForbidden("administrator role required")
	}
	page, size := normalizePage(query.Page, query.PageSize)
	filter := repository.UserFilter{
		Roles:  query.Roles,
		Limit:  size,
		Offset: (page - 1) * size,
	}
	if term := strings.TrimSpace(query.SearchTerm); term != "" {
		filter.SearchTerm = &term
	}

	users, total, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return &UserPage{Items: users, Total: total, Page: page, PageSize: size}, nil
}

// ListFreelancers returns the active accounts a ticket can be assigned to.
func (s *UserService) ListFreelancers(ctx context.Context, actor workflow.Actor) ([]domain.User, error) {
	if !actor.Capabilities().Privileged() {
		return nil, apperrors.NewForbidden("administrator role required")
	}
	active := true
	users, _, err := s.users.List(ctx, repository.UserFilter{
		Roles:  []domain.Role{domain.RoleFreelancer, domain.RoleFreelancerAdmin},
		Active: &active,
		Limit:  100,
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return users, nil
}

// ChangeRole updates a user's role. Only the founder may grant or revoke the
// admin and founder roles, and nobody can change their own role.
func (s *UserService) ChangeRole(ctx context.Context, actor workflow.Actor, userID string, role domain.Role) (*domain.User, error) {
	caps := actor.Capabilities()
	if !caps.Privileged() {
		return nil, apperrors.NewForbidden("administrator role required")
	}
	if userID == actor.ID {
		return nil, apperrors.NewForbidden("you cannot change your own role")
	}

	target, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperrors.NewNotFound("user", map[string]any{"user_id": userID})
		}
		return nil, apperrors.MapError(err)
	}
	if !caps.Founder && (isElevated(role) || isElevated(target.Role)) {
		return nil, apperrors.NewForbidden("only the founder can grant or revoke administrator roles")
	}
	if target.Role == role {
		return target, nil
	}
	if target.Role.IsFreelancerCapable() && !role.IsFreelancerCapable() {
		active, err := s.activeAssignments(ctx, userID)
		if err != nil {
			return nil, err
		}
		if active > 0 {
			return nil, apperrors.NewConflict("user still holds active tickets; reassign them first",
				map[string]any{"user_id": userID, "activeTickets": active})
		}
	}

	updated, err := s.users.UpdateRole(ctx, userID, role)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	s.logger.Info("user role changed",
		zap.String("user_id", userID),
		zap.String("from", string(target.Role)),
		zap.String("to", string(role)),
		zap.String("actor_id", actor.ID))
	return updated, nil
}

// activeAssignments counts the tickets userID is assigned to and still has to work.
func (s *UserService) activeAssignments(ctx context.Context, userID string) (int64, error) {
	if s.tickets == nil {
		return 0, nil
	}
	var total int64
	for _, status := range activeStatuses {
		status := status
		n, err := s.tickets.Count(ctx, repository.TicketFilter{
			Scope:      workflow.Scope{All: true},
			Status:     &status,
			AssignedTo: &userID,
		})
		if err != nil {
			return 0, apperrors.MapError(err)
		}
		total += n
	}
	return total, nil
}

func isElevated(role domain.Role) bool {
	return role == domain.RoleAdmin || role == domain.RoleFounder
}
