package domain

import "time"

// User is an account: end user, freelancer technician or administrator.
type User struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	PasswordHash     string    `json:"-"`
	Role             Role      `json:"role"`
	ClientType       string    `json:"clientType,omitempty"`
	SubscriptionType string    `json:"subscriptionType,omitempty"`
	Active           bool      `json:"active"`
	HasPaymentMethod bool      `json:"hasPaymentMethod"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Capabilities resolves the user's permission set.
func (u *User) Capabilities() Capabilities {
	if u == nil {
		return Capabilities{}
	}
	return u.Role.Capabilities()
}
