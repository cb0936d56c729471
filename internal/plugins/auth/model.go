// Package auth handles user accounts, password security, and the login,
// signup, and password reset flows for Geek Console. Sessions themselves
// live in the session plugin; auth produces them on successful
// authentication.
//
// This is a CORE plugin -- always enabled, cannot be disabled.
package auth

import (
	"time"
)

// User represents a registered Geek Console user. This is the domain model
// used throughout the application. The password hash is deliberately NOT on
// this struct: it lives in the passwords table and never leaves the
// repository except for the comparison in Login.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	AvatarURL *string   `json:"avatar_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// --- Request DTOs (bound from HTTP requests) ---

// SignupRequest holds the data submitted by the signup form.
type SignupRequest struct {
	Username string `json:"username" form:"username"`
	Name     string `json:"name" form:"name"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
	Confirm  string `json:"confirm" form:"confirm"`
	Remember bool   `json:"remember" form:"remember"`
}

// LoginRequest holds the data submitted by the login form.
type LoginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
	Remember bool   `json:"remember" form:"remember"`
}

// ForgotPasswordRequest holds the data submitted by the forgot password form.
type ForgotPasswordRequest struct {
	Username string `json:"username" form:"username"`
}

// ResetPasswordRequest holds the data submitted by the reset password form.
// Code is the out-of-band verification code proving control of the account.
type ResetPasswordRequest struct {
	Username string `json:"username" form:"username"`
	Code     string `json:"code" form:"code"`
	Password string `json:"password" form:"password"`
	Confirm  string `json:"confirm" form:"confirm"`
}

// --- Service Input DTOs (passed from handler to service) ---

// SignupInput is the validated input for creating a new user.
type SignupInput struct {
	Username string
	Name     string
	Email    string
	Password string
	Remember bool
}

// LoginInput is the validated input for authenticating a user.
type LoginInput struct {
	Username string
	Password string
	Remember bool
}
