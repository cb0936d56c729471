// Package twofactor implements the second authentication factor for Geek
// Console: TOTP enrollment and verification, the staged-login flow that
// holds a password-verified login until the code checks out, and the
// one-time codes used by password resets.
//
// This is a CORE plugin -- always enabled, cannot be disabled.
package twofactor

import "time"

// Verification types. A verification row is keyed by (target, type), so a
// user can simultaneously hold an active second factor and a pending
// re-enrollment without either clobbering the other.
const (
	// TypeTwoFactor is an active, confirmed second factor. Target is the
	// user id.
	TypeTwoFactor = "2fa"

	// TypeTwoFactorSetup is an unconfirmed enrollment. The secret moves to
	// TypeTwoFactor once the user proves they can produce a code from it.
	TypeTwoFactorSetup = "2fa-setup"

	// TypeResetPassword is a one-time password reset code. Target is the
	// account email.
	TypeResetPassword = "reset-password"
)

// Verification is a stored secret tied to a target and a purpose.
type Verification struct {
	Target    string
	Type      string
	Secret    string
	CreatedAt time.Time
}

// VerifyRequest holds the code submitted to complete a staged login or a
// sensitive-action check.
type VerifyRequest struct {
	Code string `json:"code" form:"code"`
}

// SetupResponse is returned when enrollment begins. The secret is shown
// exactly once; afterwards only codes are accepted.
type SetupResponse struct {
	Secret     string `json:"secret"`
	OtpauthURL string `json:"otpauth_url"`
}
