package claude

import (
	"errors"
	"testing"
	"time"

	"github.com/tidwall/gjson"
)

func TestEncodeCredentialsPreservesOtherKeys(t *testing.T) {
	existing := []byte(`{"mcpServers":{"fs":{"command":"x"}},"claudeAiOauth":{"accessToken":"old"}}`)
	creds := &Credentials{
		AccessToken:      "at",
		RefreshToken:     "rt",
		ExpiresAt:        1_700_000_000_000,
		Scopes:           []string{"user:inference"},
		SubscriptionType: "pro",
	}
	doc, err := EncodeCredentials(existing, creds)
	if err != nil {
		t.Fatalf("EncodeCredentials: %v", err)
	}
	if got := gjson.GetBytes(doc, "mcpServers.fs.command").String(); got != "x" {
		t.Fatalf("unrelated key lost, got %q", got)
	}
	if got := gjson.GetBytes(doc, "claudeAiOauth.accessToken").String(); got != "at" {
		t.Fatalf("accessToken = %q", got)
	}
	if got := gjson.GetBytes(doc, "claudeAiOauth.expiresAt"); got.Type != gjson.Number || got.Int() != 1_700_000_000_000 {
		t.Fatalf("expiresAt = %s, want integer", got.Raw)
	}

	parsed, err := ParseCredentials(doc)
	if err != nil {
		t.Fatalf("ParseCredentials: %v", err)
	}
	if parsed.AccessToken != "at" || parsed.RefreshToken != "rt" || parsed.SubscriptionType != "pro" {
		t.Fatalf("round trip mismatch: %+v", parsed)
	}
	if len(parsed.Scopes) != 1 || parsed.Scopes[0] != "user:inference" {
		t.Fatalf("scopes = %v", parsed.Scopes)
	}
}

func TestEncodeCredentialsReplacesInvalidDocument(t *testing.T) {
	doc, err := EncodeCredentials([]byte("not json"), &Credentials{AccessToken: "at"})
	if err != nil {
		t.Fatalf("EncodeCredentials: %v", err)
	}
	if got := gjson.GetBytes(doc, "claudeAiOauth.scopes").Raw; got != "[]" {
		t.Fatalf("scopes = %s, want []", got)
	}
}

func TestParseCredentials(t *testing.T) {
	cases := []struct {
		name    string
		doc     string
		wantSub string
		wantErr bool
	}{
		{"subscription type", `{"claudeAiOauth":{"accessToken":"a","subscriptionType":"team"}}`, "team", false},
		{"isMax true", `{"claudeAiOauth":{"accessToken":"a","isMax":true}}`, "max", false},
		{"isMax false", `{"claudeAiOauth":{"accessToken":"a","isMax":false}}`, "pro", false},
		{"no plan", `{"claudeAiOauth":{"accessToken":"a"}}`, "", false},
		{"invalid json", `{`, "", true},
		{"missing object", `{"other":1}`, "", true},
		{"empty access token", `{"claudeAiOauth":{"accessToken":""}}`, "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			creds, err := ParseCredentials([]byte(tc.doc))
			if tc.wantErr {
				if !errors.Is(err, ErrMalformedCredentials) {
					t.Fatalf("error = %v, want ErrMalformedCredentials", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCredentials: %v", err)
			}
			if creds.SubscriptionType != tc.wantSub {
				t.Fatalf("subscriptionType = %q, want %q", creds.SubscriptionType, tc.wantSub)
			}
		})
	}
}

func TestCredentialsExpiry(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	c := &Credentials{ExpiresAt: now.UnixMilli() + 1500}
	if c.IsExpired(now) {
		t.Fatal("credentials expiring in the future reported expired")
	}
	if got := c.ExpiresIn(now); got != 1500*time.Millisecond {
		t.Fatalf("ExpiresIn = %v", got)
	}
	later := now.Add(2 * time.Second)
	if !c.IsExpired(later) {
		t.Fatal("expected credentials to be expired")
	}
	if got := c.ExpiresIn(later); got != 0 {
		t.Fatalf("ExpiresIn after expiry = %v, want 0", got)
	}
}
