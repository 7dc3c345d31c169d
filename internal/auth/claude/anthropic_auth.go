package claude

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/router-for-me/ClaudeSessionAuth/internal/config"
	"github.com/router-for-me/ClaudeSessionAuth/internal/store"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

const (
	grantAuthorizationCode = "authorization_code"
	grantRefreshToken      = "refresh_token"
)

// defaultTokenScopes applies when the token endpoint omits scope.
var defaultTokenScopes = []string{"user:inference", "user:profile"}

// ClaudeAuth runs the PKCE flow against Anthropic's OAuth endpoints and persists
// the outcome through a CredentialStore.
type ClaudeAuth struct {
	cfg        config.OAuthConfig
	store      store.CredentialStore
	httpClient *http.Client
	now        func() time.Time
}

// Option customizes a ClaudeAuth.
type Option func(*ClaudeAuth)

// WithHTTPClient replaces the fingerprinting HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *ClaudeAuth) {
		if client != nil {
			o.httpClient = client
		}
	}
}

// WithClock overrides the time source used for state expiry and token lifetimes.
func WithClock(now func() time.Time) Option {
	return func(o *ClaudeAuth) {
		if now != nil {
			o.now = now
		}
	}
}

// NewClaudeAuth creates a new Anthropic authentication service bound to st.
// Requests to Anthropic hosts use a Firefox TLS fingerprint and honor the configured proxy.
//
// Parameters:
//   - cfg: The application configuration containing OAuth and proxy settings
//   - st: The store receiving the OAuth state and the resulting credentials
//   - opts: Optional overrides
//
// Returns:
//   - *ClaudeAuth: A new Claude authentication service instance
func NewClaudeAuth(cfg *config.Config, st store.CredentialStore, opts ...Option) *ClaudeAuth {
	o := &ClaudeAuth{
		cfg:        cfg.OAuth,
		store:      st,
		httpClient: NewAnthropicHTTPClient(&cfg.SDKConfig),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *ClaudeAuth) oauth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:    o.cfg.ClientID,
		RedirectURL: o.cfg.RedirectURI,
		Scopes:      o.cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  o.cfg.AuthorizeURL,
			TokenURL: o.cfg.TokenURL,
		},
	}
}

// GenerateLoginURL starts a login: it persists a fresh OAuthState and returns the
// authorize URL the user must open. It fails only when randomness or persistence fails.
//
// Returns:
//   - string: The complete authorization URL
//   - error: An error if the state could not be generated or saved
func (o *ClaudeAuth) GenerateLoginURL(ctx context.Context) (string, error) {
	state, verifier, err := GenerateSecureParams()
	if err != nil {
		return "", err
	}
	st := NewOAuthState(state, verifier, o.now(), o.cfg.StateTTL())
	data, err := json.Marshal(st)
	if err != nil {
		return "", fmt.Errorf("failed to marshal oauth state: %w", err)
	}
	if err = o.store.SaveState(ctx, data); err != nil {
		return "", fmt.Errorf("failed to save oauth state: %w", err)
	}

	authURL := o.oauth2Config().AuthCodeURL(state,
		oauth2.SetAuthURLParam("code", "true"),
		oauth2.SetAuthURLParam("code_challenge", CreatePKCEChallenge(verifier)),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
	return authURL, nil
}

// ExchangeCode redeems a pasted authorization code for credentials.
// The pending state must exist and be unexpired; the stored verifier and state
// are sent with the code.
//
// Parameters:
//   - ctx: The context for the request
//   - rawCode: The code as pasted by the user, possibly carrying "#state" or query suffixes
//
// Returns:
//   - *Credentials: The new credential set
//   - error: ErrStateNotFound, ErrInvalidState, a *TokenExchangeError, or a transport error
func (o *ClaudeAuth) ExchangeCode(ctx context.Context, rawCode string) (*Credentials, error) {
	code, returnedState := SplitCodeAndState(rawCode)
	if code == "" {
		return nil, NewAuthenticationError(ErrCodeExchangeFailed, fmt.Errorf("authorization code is empty"))
	}

	data, err := o.store.LoadState(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load oauth state: %w", err)
	}
	if data == nil {
		return nil, ErrStateNotFound
	}
	var st OAuthState
	if err = json.Unmarshal(data, &st); err != nil {
		return nil, NewAuthenticationError(ErrInvalidState, fmt.Errorf("decode stored state: %w", err))
	}
	if err = VerifyOAuthState(&st, o.now(), returnedState); err != nil {
		return nil, err
	}

	body := tokenExchangeRequest{
		GrantType:    grantAuthorizationCode,
		ClientID:     o.cfg.ClientID,
		Code:         code,
		RedirectURI:  o.cfg.RedirectURI,
		CodeVerifier: st.CodeVerifier,
		State:        st.State,
	}
	resp, err := o.postToken(ctx, grantAuthorizationCode, body)
	if err != nil {
		return nil, err
	}
	return o.credentialsFromResponse(resp, nil), nil
}

// RefreshCredentials exchanges the refresh token of current for a new credential set.
// Fields the endpoint omits are carried over from current.
func (o *ClaudeAuth) RefreshCredentials(ctx context.Context, current *Credentials) (*Credentials, error) {
	if current == nil || current.RefreshToken == "" {
		return nil, NewAuthenticationError(ErrTokenRefreshFailed, fmt.Errorf("refresh token is required"))
	}
	body := tokenRefreshRequest{
		GrantType:    grantRefreshToken,
		ClientID:     o.cfg.ClientID,
		RefreshToken: current.RefreshToken,
	}
	resp, err := o.postToken(ctx, grantRefreshToken, body)
	if err != nil {
		return nil, err
	}
	return o.credentialsFromResponse(resp, current), nil
}

// RefreshCredentialsWithRetry retries RefreshCredentials with a linear backoff.
// A rejected refresh token is not retried.
func (o *ClaudeAuth) RefreshCredentialsWithRetry(ctx context.Context, current *Credentials, maxRetries int) (*Credentials, error) {
	var lastErr error
	if maxRetries < 1 {
		maxRetries = 1
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}

		creds, err := o.RefreshCredentials(ctx, current)
		if err == nil {
			return creds, nil
		}
		lastErr = err

		var exchangeErr *TokenExchangeError
		if errors.As(err, &exchangeErr) && exchangeErr.StatusCode < http.StatusInternalServerError {
			break
		}
		log.Warnf("token refresh attempt %d failed: %v", attempt+1, err)
	}

	return nil, fmt.Errorf("token refresh failed after retries: %w", lastErr)
}

// SaveCredentials persists creds, keeping unrelated keys of an existing credentials document.
func (o *ClaudeAuth) SaveCredentials(ctx context.Context, creds *Credentials) error {
	existing, err := o.store.LoadCredentials(ctx)
	if err != nil {
		log.Warnf("failed to read existing credentials, overwriting: %v", err)
		existing = nil
	}
	doc, err := EncodeCredentials(existing, creds)
	if err != nil {
		return err
	}
	if err = o.store.SaveCredentials(ctx, doc); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

// LoadCredentials returns the stored credentials, or nil when none are stored.
func (o *ClaudeAuth) LoadCredentials(ctx context.Context) (*Credentials, error) {
	data, err := o.store.LoadCredentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	if data == nil {
		return nil, nil
	}
	return ParseCredentials(data)
}

// CleanupState removes the pending OAuth state. It succeeds when none is stored.
func (o *ClaudeAuth) CleanupState(ctx context.Context) error {
	if err := o.store.RemoveState(ctx); err != nil {
		return fmt.Errorf("failed to remove oauth state: %w", err)
	}
	return nil
}

// Now returns the client's current time.
func (o *ClaudeAuth) Now() time.Time { return o.now() }

func (o *ClaudeAuth) postToken(ctx context.Context, grant string, payload any) (*tokenResponse, error) {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.TokenURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Referer", "https://claude.ai/")
	req.Header.Set("Origin", "https://claude.ai")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token %s request failed: %w", grant, err)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Errorf("failed to close response body: %v", errClose)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, newTokenExchangeError(grant, resp.StatusCode, body)
	}

	var tokenResp tokenResponse
	if err = json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("token response did not include an access token")
	}
	if tokenResp.Account.EmailAddress != "" {
		log.Debugf("token %s succeeded for %s", grant, tokenResp.Account.EmailAddress)
	}
	return &tokenResp, nil
}

func (o *ClaudeAuth) credentialsFromResponse(resp *tokenResponse, previous *Credentials) *Credentials {
	nowSeconds := o.now().Unix()
	creds := &Credentials{
		AccessToken:      resp.AccessToken,
		RefreshToken:     resp.RefreshToken,
		ExpiresAt:        (nowSeconds + resp.ExpiresIn) * 1000,
		SubscriptionType: o.cfg.SubscriptionType,
	}
	if scope := strings.TrimSpace(resp.Scope); scope != "" {
		creds.Scopes = strings.Fields(scope)
	}
	if previous != nil {
		if creds.RefreshToken == "" {
			creds.RefreshToken = previous.RefreshToken
		}
		if creds.Scopes == nil {
			creds.Scopes = append([]string(nil), previous.Scopes...)
		}
		if previous.SubscriptionType != "" {
			creds.SubscriptionType = previous.SubscriptionType
		}
	}
	if creds.Scopes == nil {
		creds.Scopes = append([]string(nil), defaultTokenScopes...)
	}
	return creds
}
