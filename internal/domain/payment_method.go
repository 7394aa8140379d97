package domain

import "time"

// PaymentMethod is metadata about a card held by the payment provider.
type PaymentMethod struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Provider    string    `json:"provider"`
	ProviderRef string    `json:"providerRef"`
	Brand       string    `json:"brand"`
	Last4       string    `json:"last4"`
	ExpMonth    int       `json:"expMonth"`
	ExpYear     int       `json:"expYear"`
	IsDefault   bool      `json:"isDefault"`
	CreatedAt   time.Time `json:"createdAt"`
}
