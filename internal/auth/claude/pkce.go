// Package claude implements the Claude OAuth client used to authenticate a
// session: PKCE parameter generation, login URL construction, code exchange,
// token refresh and the credential file format shared with the Claude CLI.
package claude

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// GenerateSecureParams returns a fresh state and PKCE code verifier.
// The state is the hex encoding of 32 random bytes and the verifier the
// unpadded base64url encoding of 32 random bytes.
//
// Returns:
//   - state: 64 lowercase hex characters
//   - verifier: 43 base64url characters
//   - error: An error if the system random source fails
func GenerateSecureParams() (state, verifier string, err error) {
	buf := make([]byte, 32)
	if _, err = rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("failed to generate state: %w", err)
	}
	return hex.EncodeToString(buf), oauth2.GenerateVerifier(), nil
}

// CreatePKCEChallenge derives the S256 code challenge for verifier.
func CreatePKCEChallenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// NewOAuthState builds the state record for a login started at now.
func NewOAuthState(state, verifier string, now time.Time, ttl time.Duration) *OAuthState {
	created := now.Unix()
	return &OAuthState{
		State:        state,
		CodeVerifier: verifier,
		CreatedAt:    created,
		ExpiresAt:    created + int64(ttl/time.Second),
	}
}

// CleanAuthorizationCode strips the fragment and any trailing query segments
// the callback page appends to a pasted code.
func CleanAuthorizationCode(raw string) string {
	code, _ := SplitCodeAndState(raw)
	return code
}

// SplitCodeAndState separates a pasted "code#state" value. The state is empty
// when the paste carries no fragment.
func SplitCodeAndState(raw string) (code, state string) {
	trimmed := strings.TrimSpace(raw)
	code, fragment, found := strings.Cut(trimmed, "#")
	code, _, _ = strings.Cut(code, "&")
	if found {
		state, _, _ = strings.Cut(fragment, "&")
	}
	return strings.TrimSpace(code), strings.TrimSpace(state)
}

// VerifyOAuthState checks that st is still redeemable at now and, when the
// pasted code carried a state, that it matches.
func VerifyOAuthState(st *OAuthState, now time.Time, returnedState string) error {
	if st == nil {
		return ErrStateNotFound
	}
	if now.Unix() > st.ExpiresAt {
		return NewAuthenticationError(ErrInvalidState, fmt.Errorf("state expired at %s", time.Unix(st.ExpiresAt, 0).UTC().Format(time.RFC3339)))
	}
	if returnedState != "" && returnedState != st.State {
		return NewAuthenticationError(ErrInvalidState, fmt.Errorf("state mismatch"))
	}
	return nil
}
