package models

import "time"

// User is the public profile the payment service returns on login.
type User struct {
	ID      string
	Name    string
	UpiID   string
	Balance float64
}

// AuthResult is the decoded body of a successful login or registration.
type AuthResult struct {
	Token     string
	User      User
	ExpiresIn int64
}

// Credential is the persisted proof of an authenticated session. A Credential
// exists iff the application considers itself authenticated.
type Credential struct {
	Token       string    `json:"token"`
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	UpiHandle   string    `json:"upi_handle"`
	Balance     float64   `json:"balance"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}

// NewCredential builds the Credential for a login response received at now.
func NewCredential(res AuthResult, now time.Time) Credential {
	c := Credential{
		Token:       res.Token,
		UserID:      res.User.ID,
		DisplayName: res.User.Name,
		UpiHandle:   res.User.UpiID,
		Balance:     res.User.Balance,
	}
	if res.ExpiresIn > 0 {
		c.ExpiresAt = now.Add(time.Duration(res.ExpiresIn) * time.Second).UTC()
	}
	return c
}

// Expired reports whether the credential carries an expiry that has passed.
func (c Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// User returns the profile fields of the credential.
func (c Credential) User() User {
	return User{ID: c.UserID, Name: c.DisplayName, UpiID: c.UpiHandle, Balance: c.Balance}
}
