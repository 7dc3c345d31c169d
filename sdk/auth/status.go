package auth

import (
	"context"
	"time"
)

// Status summarizes a session's stored credentials.
type Status struct {
	Authenticated    bool      `json:"authenticated"`
	Expired          bool      `json:"expired"`
	ExpiresAt        time.Time `json:"expires_at,omitzero"`
	ExpiresInSeconds int64     `json:"expires_in_seconds"`
	SubscriptionType string    `json:"subscription_type,omitempty"`
	Scopes           []string  `json:"scopes,omitempty"`
	CanRefresh       bool      `json:"can_refresh"`
}

// Status reports whether the session holds usable credentials. The validator is not consulted.
func (o *Orchestrator) Status(ctx context.Context) (Status, error) {
	creds, err := o.auth.LoadCredentials(ctx)
	if err != nil {
		return Status{}, err
	}
	if creds == nil {
		return Status{}, nil
	}
	now := o.auth.Now()
	return Status{
		Authenticated:    !creds.IsExpired(now),
		Expired:          creds.IsExpired(now),
		ExpiresAt:        time.UnixMilli(creds.ExpiresAt).UTC(),
		ExpiresInSeconds: int64(creds.ExpiresIn(now) / time.Second),
		SubscriptionType: creds.SubscriptionType,
		Scopes:           creds.Scopes,
		CanRefresh:       creds.RefreshToken != "",
	}, nil
}
