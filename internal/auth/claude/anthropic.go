package claude

import "time"

// Credentials is the OAuth token set the companion CLI reads from its credentials file.
// Values are replaced wholesale on refresh or re-authentication.
type Credentials struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	// ExpiresAt is the absolute expiry in milliseconds since the Unix epoch.
	ExpiresAt int64    `json:"expiresAt"`
	Scopes    []string `json:"scopes"`
	// SubscriptionType is the account plan descriptor, e.g. "pro" or "max".
	SubscriptionType string `json:"subscriptionType"`
}

// IsExpired reports whether the access token is no longer usable at now.
func (c *Credentials) IsExpired(now time.Time) bool {
	return now.UnixMilli() >= c.ExpiresAt
}

// ExpiresIn returns the remaining lifetime at now, or zero once expired.
func (c *Credentials) ExpiresIn(now time.Time) time.Duration {
	remaining := time.Duration(c.ExpiresAt-now.UnixMilli()) * time.Millisecond
	if remaining < 0 {
		return 0
	}
	return remaining
}

// OAuthState is the PKCE state persisted between generating a login URL and redeeming its code.
type OAuthState struct {
	// State is 64 lowercase hex characters (32 random bytes).
	State string `json:"state"`
	// CodeVerifier is 43 base64url characters without padding (32 random bytes).
	CodeVerifier string `json:"code_verifier"`
	// CreatedAt and ExpiresAt are seconds since the Unix epoch.
	CreatedAt int64 `json:"created_at"`
	ExpiresAt int64 `json:"expires_at"`
}

// tokenResponse represents the response structure from Anthropic's OAuth token endpoint.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope"`
	Organization struct {
		UUID string `json:"uuid"`
		Name string `json:"name"`
	} `json:"organization"`
	Account struct {
		UUID         string `json:"uuid"`
		EmailAddress string `json:"email_address"`
	} `json:"account"`
}

// tokenExchangeRequest is the JSON body posted to the token endpoint for a code grant.
type tokenExchangeRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	Code         string `json:"code"`
	RedirectURI  string `json:"redirect_uri"`
	CodeVerifier string `json:"code_verifier"`
	State        string `json:"state"`
}

// tokenRefreshRequest is the JSON body posted to the token endpoint for a refresh grant.
type tokenRefreshRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	RefreshToken string `json:"refresh_token"`
}
