package service

import (
	"context"
	"errors"
	"strings"

	"github.com/spec-kit/repairdesk/internal/domain"
	"github.com/spec-kit/repairdesk/internal/repository"
	apperrors "github.com/spec-kit/repairdesk/pkg/util"
)

// PaymentMethodInput is the provider metadata of a registered card.
type PaymentMethodInput struct {
	Provider    string
	ProviderRef string
	Brand       string
	Last4       string
	ExpMonth    int
	ExpYear     int
}

// PaymentService manages a user's payment method references.
type PaymentService struct {
	methods repository.PaymentMethodRepository
}

// NewPaymentService constructs the service.
func NewPaymentService(methods repository.PaymentMethodRepository) *PaymentService {
	return &PaymentService{methods: methods}
}

// List returns the caller's methods, default first.
func (s *PaymentService) List(ctx context.Context, userID string) ([]domain.PaymentMethod, error) {
	methods, err := s.methods.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return methods, nil
}

// Add records a method. The first one becomes the default.
func (s *PaymentService) Add(ctx context.Context, userID string, input PaymentMethodInput) (*domain.PaymentMethod, error) {
	pm := &domain.PaymentMethod{
		UserID:      userID,
		Provider:    strings.ToLower(strings.TrimSpace(input.Provider)),
		ProviderRef: strings.TrimSpace(input.ProviderRef),
		Brand:       strings.TrimSpace(input.Brand),
		Last4:       input.Last4,
		ExpMonth:    input.ExpMonth,
		ExpYear:     input.ExpYear,
	}
	if err := s.methods.Create(ctx, pm); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewConflict("payment method already registered", map[string]any{"providerRef": pm.ProviderRef})
		}
		return nil, apperrors.MapError(err)
	}
	return pm, nil
}

// Delete removes one of the caller's methods.
func (s *PaymentService) Delete(ctx context.Context, userID, id string) error {
	if err := s.methods.Delete(ctx, userID, id); err != nil {
		return mapPaymentError(err, id)
	}
	return nil
}

// SetDefault marks one of the caller's methods as default.
func (s *PaymentService) SetDefault(ctx context.Context, userID, id string) error {
	if err := s.methods.SetDefault(ctx, userID, id); err != nil {
		return mapPaymentError(err, id)
	}
	return nil
}

func mapPaymentError(err error, id string) error {
	if repository.IsNotFound(err) {
		return apperrors.NewNotFound("payment method", map[string]any{"id": id})
	}
	return apperrors.MapError(err)
}
