// Package auth exposes the authentication orchestrator that brings a coding
// session's Claude credentials into a usable state, and the handle through which
// a caller follows and steers one authentication attempt.
package auth

import "fmt"

// StateKind names a step of an authentication attempt. The string form is the
// "type" field of the JSON encoding.
type StateKind string

const (
	StateStarting       StateKind = "starting"
	StateURLReady       StateKind = "url_ready"
	StateWaitingForCode StateKind = "waiting_for_code"
	StateCompleted      StateKind = "completed"
	StateFailed         StateKind = "failed"
)

// AuthState is one observable step of an authentication attempt.
// Completed and Failed are terminal: each handle emits exactly one of them, last.
type AuthState struct {
	Kind StateKind `json:"type"`
	// URL is the sign-in link for StateURLReady.
	URL string `json:"url,omitempty"`
	// Message carries the outcome for StateCompleted and the diagnostic for StateFailed.
	Message string `json:"message,omitempty"`
}

func Starting() AuthState { return AuthState{Kind: StateStarting} }

func URLReady(url string) AuthState { return AuthState{Kind: StateURLReady, URL: url} }

func WaitingForCode() AuthState { return AuthState{Kind: StateWaitingForCode} }

func Completed(message string) AuthState { return AuthState{Kind: StateCompleted, Message: message} }

func Failed(message string) AuthState { return AuthState{Kind: StateFailed, Message: message} }

// Terminal reports whether no state follows s.
func (s AuthState) Terminal() bool {
	return s.Kind == StateCompleted || s.Kind == StateFailed
}

func (s AuthState) String() string {
	switch {
	case s.URL != "":
		return fmt.Sprintf("%s(%s)", s.Kind, s.URL)
	case s.Message != "":
		return fmt.Sprintf("%s(%s)", s.Kind, s.Message)
	default:
		return string(s.Kind)
	}
}
