package domain

import "time"

// Token is metadata about an issued access token.
type Token struct {
	ID        string
	UserID    string
	Email     string
	Role      Role
	ExpiresAt time.Time
	IssuedAt  time.Time
}
