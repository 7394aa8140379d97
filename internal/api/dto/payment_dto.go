package dto

// CreatePaymentMethodRequest registers a card already stored at the provider.
type CreatePaymentMethodRequest struct {
	Provider    string `json:"provider" validate:"required,max=50"`
	ProviderRef string `json:"providerRef" validate:"required,max=255"`
	Brand       string `json:"brand" validate:"omitempty,max=50"`
	Last4       string `json:"last4" validate:"omitempty,len=4,numeric"`
	ExpMonth    int    `json:"expMonth" validate:"omitempty,min=1,max=12"`
	ExpYear     int    `json:"expYear" validate:"omitempty,min=2000,max=2100"`
}
