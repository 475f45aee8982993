package model

import "time"

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

type Account struct {
	ID                string
	Email             string
	Name              string
	PasswordHash      string
	Role              string
	IsVerified        bool
	VerificationToken string
	VerifiedAt        *time.Time
	ResetToken        *string
	ResetTokenExpiry  *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// RefreshSession is the server-side record behind a long-lived refresh
// token. There is at most one per account; repeated logins reuse it.
type RefreshSession struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	Token     string    `json:"token"`
	Valid     bool      `json:"valid"`
	UserAgent string    `json:"user_agent,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
