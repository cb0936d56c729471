// Package connections implements federated login for Geek Console: linking
// external identities (GitHub) to accounts, logging in through them, and
// onboarding brand-new users from a verified external profile.
//
// This is a CORE plugin -- always enabled, cannot be disabled.
package connections

import "time"

// Connection links an external identity to a Geek Console account. The
// pair (ProviderName, ProviderID) is unique across all users.
type Connection struct {
	ID           string    `json:"id"`
	UserID       string    `json:"-"`
	ProviderName string    `json:"provider_name"`
	ProviderID   string    `json:"-"`
	Label        string    `json:"label"`
	CreatedAt    time.Time `json:"created_at"`
}

// Profile is what a provider tells us about the authenticated identity.
type Profile struct {
	ProviderID string
	Username   string
	Name       string
	Email      string
	AvatarURL  string
}

// OnboardingRequest holds the form completing signup from a staged
// federated profile. Only the username is the user's to choose; the rest
// comes from the provider.
type OnboardingRequest struct {
	Username string `json:"username" form:"username"`
	Remember bool   `json:"remember" form:"remember"`
}
