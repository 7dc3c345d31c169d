package claude

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

// OAuthError represents an error object returned by the token endpoint.
type OAuthError struct {
	// Code is the OAuth error code.
	Code string `json:"error"`
	// Description is a human-readable description of the error.
	Description string `json:"error_description,omitempty"`
	// StatusCode is the HTTP status code associated with the error.
	StatusCode int `json:"-"`
}

// Error returns a string representation of the OAuth error.
func (e *OAuthError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("OAuth error %s: %s", e.Code, e.Description)
	}
	return fmt.Sprintf("OAuth error: %s", e.Code)
}

// AuthenticationError represents authentication-related errors.
// Two AuthenticationErrors match under errors.Is when their Type is equal.
type AuthenticationError struct {
	// Type is the type of authentication error.
	Type string `json:"type"`
	// Message is a human-readable message describing the error.
	Message string `json:"message"`
	// Code is the HTTP status code associated with the error.
	Code int `json:"code"`
	// Cause is the underlying error that caused this authentication error.
	Cause error `json:"-"`
}

// Error returns a string representation of the authentication error.
func (e *AuthenticationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Is matches any AuthenticationError of the same type.
func (e *AuthenticationError) Is(target error) bool {
	t, ok := target.(*AuthenticationError)
	return ok && t.Type == e.Type
}

// Unwrap returns the underlying cause.
func (e *AuthenticationError) Unwrap() error { return e.Cause }

// Common authentication error types.
var (
	// ErrInvalidState is returned when the stored state has expired or does not match.
	ErrInvalidState = &AuthenticationError{
		Type:    "invalid_state",
		Message: "OAuth state parameter is invalid",
		Code:    http.StatusBadRequest,
	}

	// ErrStateNotFound is returned when a code is redeemed without a pending login.
	ErrStateNotFound = &AuthenticationError{
		Type:    "state_not_found",
		Message: "No pending OAuth login was found",
		Code:    http.StatusBadRequest,
	}

	// ErrCodeExchangeFailed represents an error when exchanging authorization code for tokens fails.
	ErrCodeExchangeFailed = &AuthenticationError{
		Type:    "code_exchange_failed",
		Message: "Failed to exchange authorization code for tokens",
		Code:    http.StatusBadRequest,
	}

	// ErrTokenRefreshFailed represents an error when a refresh grant is rejected.
	ErrTokenRefreshFailed = &AuthenticationError{
		Type:    "token_refresh_failed",
		Message: "Failed to refresh access token",
		Code:    http.StatusUnauthorized,
	}

	// ErrCodeTimeout is returned when no authorization code arrives in time.
	ErrCodeTimeout = &AuthenticationError{
		Type:    "code_timeout",
		Message: "Timeout waiting for authorization code",
		Code:    http.StatusRequestTimeout,
	}
)

// NewAuthenticationError creates a new authentication error with a cause based on a base error.
func NewAuthenticationError(baseErr *AuthenticationError, cause error) *AuthenticationError {
	return &AuthenticationError{
		Type:    baseErr.Type,
		Message: baseErr.Message,
		Code:    baseErr.Code,
		Cause:   cause,
	}
}

// TokenExchangeError carries the token endpoint's non-success response.
type TokenExchangeError struct {
	StatusCode int
	Body       string
	// OAuth is the decoded error object, when the body carried one.
	OAuth *OAuthError
	// Grant is the grant type of the failed request.
	Grant string
}

func (e *TokenExchangeError) Error() string {
	if e.OAuth != nil {
		return fmt.Sprintf("token %s failed with status %d: %v", e.Grant, e.StatusCode, e.OAuth)
	}
	return fmt.Sprintf("token %s failed with status %d: %s", e.Grant, e.StatusCode, e.Body)
}

// Is matches ErrCodeExchangeFailed for code grants and ErrTokenRefreshFailed for refresh grants.
func (e *TokenExchangeError) Is(target error) bool {
	t, ok := target.(*AuthenticationError)
	if !ok {
		return false
	}
	if e.Grant == grantRefreshToken {
		return t.Type == ErrTokenRefreshFailed.Type
	}
	return t.Type == ErrCodeExchangeFailed.Type
}

func newTokenExchangeError(grant string, status int, body []byte) *TokenExchangeError {
	e := &TokenExchangeError{StatusCode: status, Body: string(body), Grant: grant}
	if code := gjson.GetBytes(body, "error"); code.Type == gjson.String {
		e.OAuth = &OAuthError{
			Code:        code.String(),
			Description: gjson.GetBytes(body, "error_description").String(),
			StatusCode:  status,
		}
	}
	return e
}

// IsAuthenticationError checks if an error is an authentication error.
func IsAuthenticationError(err error) bool {
	var authenticationError *AuthenticationError
	return errors.As(err, &authenticationError)
}

// GetUserFriendlyMessage returns a message suitable for showing to the person authenticating.
func GetUserFriendlyMessage(err error) string {
	var exchangeErr *TokenExchangeError
	switch {
	case errors.Is(err, ErrStateNotFound):
		return "No login is in progress. Start a new login and try again."
	case errors.Is(err, ErrInvalidState):
		return "The login link has expired or does not match. Start a new login and try again."
	case errors.Is(err, ErrCodeTimeout):
		return "Authentication timed out. Please try again."
	case errors.As(err, &exchangeErr):
		if exchangeErr.OAuth != nil && exchangeErr.OAuth.Code == "invalid_grant" {
			return "The authorization code was rejected. Copy the full code and try again."
		}
		if exchangeErr.StatusCode >= http.StatusInternalServerError {
			return "Authentication server error. Please try again later."
		}
		return "Authentication failed. Please try again."
	case IsAuthenticationError(err):
		return "Authentication failed. Please try again."
	default:
		return "An unexpected error occurred. Please try again."
	}
}
