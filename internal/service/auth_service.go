package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/repairdesk/internal/auth"
	"github.com/spec-kit/repairdesk/internal/domain"
	"github.com/spec-kit/repairdesk/internal/repository"
	apperrors "github.com/spec-kit/repairdesk/pkg/util"
)

// RegisterInput carries self-registration data.
type RegisterInput struct {
	Name             string
	Email            string
	Password         string
	ClientType       string
	SubscriptionType string
}

// ProfileUpdate lists the account fields a user may change on their own
// account. Nil fields are left untouched; a new password needs the current one.
type ProfileUpdate struct {
	Name             *string
	ClientType       *string
	SubscriptionType *string
	Password         *string
	CurrentPassword  string
}

// AuthResult is returned after a successful register or login.
type AuthResult struct {
	User        *domain.User
	AccessToken string
	Token       *domain.Token
}

// AuthService coordinates registration and login flows.
type AuthService struct {
	users      repository.UserRepository
	tokens     *auth.TokenManager
	bcryptCost int
	logger     *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(users repository.UserRepository, tokens *auth.TokenManager, bcryptCost int, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:      users,
		tokens:     tokens,
		bcryptCost: bcryptCost,
		logger:     logger,
	}
}

// Register creates an end-user account and signs it in. Every self-registered
// account starts with the user role.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*AuthResult, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.NewConflict("email already registered", map[string]any{"email": email})
	} else if !repository.IsNotFound(err) {
		return nil, apperrors.MapError(err)
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	user := &domain.User{
		Name:             strings.TrimSpace(input.Name),
		Email:            email,
		PasswordHash:     hash,
		Role:             domain.RoleUser,
		ClientType:       input.ClientType,
		SubscriptionType: input.SubscriptionType,
		Active:           true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewConflict("email already registered", map[string]any{"email": email})
		}
		return nil, apperrors.MapError(err)
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID))
	return s.issue(user)
}

// Login verifies credentials and issues an access token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, apperrors.MapError(err)
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, apperrors.NewUnauthorized("invalid credentials")
	}
	if !user.Active {
		return nil, apperrors.NewUnauthorized("account disabled")
	}
	return s.issue(user)
}

// Me reloads the caller's account.
func (s *AuthService) Me(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperrors.NewNotFound("user", map[string]any{"user_id": userID})
		}
		return nil, apperrors.MapError(err)
	}
	return user, nil
}

// UpdateProfile applies a self-service edit. Role and active flag are never
// touched here.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (*domain.User, error) {
	user, err := s.Me(ctx, userID)
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, apperrors.NewValidationError("name cannot be empty", map[string]any{"name": "required"})
		}
		user.Name = name
	}
	if upd.ClientType != nil {
		user.ClientType = strings.TrimSpace(*upd.ClientType)
	}
	if upd.SubscriptionType != nil {
		user.SubscriptionType = strings.TrimSpace(*upd.SubscriptionType)
	}
	if upd.Password != nil {
		if err := auth.ComparePassword(user.PasswordHash, upd.CurrentPassword); err != nil {
			return nil, apperrors.NewValidationError("current password is incorrect", map[string]any{"currentPassword": "mismatch"})
		}
		hash, err := auth.HashPassword(*upd.Password, s.bcryptCost)
		if err != nil {
			return nil, apperrors.NewInternalError(err)
		}
		user.PasswordHash = hash
	}

	if err := s.users.Update(ctx, user); err != nil {
		if repository.IsNotFound(err) {
			return nil, apperrors.NewNotFound("user", map[string]any{"user_id": userID})
		}
		return nil, apperrors.MapError(err)
	}
	s.logger.Info("profile updated",
		zap.String("user_id", userID),
		zap.Bool("password_changed", upd.Password != nil))
	return s.Me(ctx, userID)
}

func (s *AuthService) issue(user *domain.User) (*AuthResult, error) {
	signed, meta, err := s.tokens.GenerateToken(user)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &AuthResult{User: user, AccessToken: signed, Token: meta}, nil
}
