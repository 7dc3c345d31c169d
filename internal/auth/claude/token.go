package claude

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// credentialsKey is the top-level key of the Claude CLI credentials file.
const credentialsKey = "claudeAiOauth"

// ErrMalformedCredentials is returned when a credentials document cannot be decoded.
var ErrMalformedCredentials = errors.New("malformed credentials document")

// EncodeCredentials writes c under claudeAiOauth. When existing is a valid JSON
// document its other top-level keys are preserved.
func EncodeCredentials(existing []byte, c *Credentials) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("credentials are required")
	}
	out := *c
	if out.Scopes == nil {
		out.Scopes = []string{}
	}
	raw, err := json.Marshal(&out)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal credentials: %w", err)
	}

	base := bytes.TrimSpace(existing)
	if len(base) == 0 || !gjson.ValidBytes(base) || !gjson.ParseBytes(base).IsObject() {
		base = []byte("{}")
	}
	doc, err := sjson.SetRawBytes(base, credentialsKey, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to write credentials document: %w", err)
	}
	return doc, nil
}

// ParseCredentials decodes a credentials document. Documents written by older CLI
// releases carry an isMax boolean instead of subscriptionType; it maps to "max" or "pro".
func ParseCredentials(data []byte) (*Credentials, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrMalformedCredentials)
	}
	node := gjson.GetBytes(data, credentialsKey)
	if !node.IsObject() {
		return nil, fmt.Errorf("%w: missing %s object", ErrMalformedCredentials, credentialsKey)
	}

	c := &Credentials{
		AccessToken:  node.Get("accessToken").String(),
		RefreshToken: node.Get("refreshToken").String(),
		ExpiresAt:    node.Get("expiresAt").Int(),
		Scopes:       []string{},
	}
	if c.AccessToken == "" {
		return nil, fmt.Errorf("%w: accessToken is empty", ErrMalformedCredentials)
	}
	node.Get("scopes").ForEach(func(_, value gjson.Result) bool {
		c.Scopes = append(c.Scopes, value.String())
		return true
	})

	if sub := node.Get("subscriptionType"); sub.Exists() {
		c.SubscriptionType = sub.String()
	} else if isMax := node.Get("isMax"); isMax.Exists() {
		if isMax.Bool() {
			c.SubscriptionType = "max"
		} else {
			c.SubscriptionType = "pro"
		}
	}
	return c, nil
}
