package cmd

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/router-for-me/ClaudeSessionAuth/internal/api"
	"github.com/router-for-me/ClaudeSessionAuth/internal/config"
	"github.com/router-for-me/ClaudeSessionAuth/internal/store"
	"github.com/router-for-me/ClaudeSessionAuth/sdk/auth"
)

func oauthLoginSetup(t *testing.T, status int, body string) (*config.Config, api.OrchestratorFactory, string) {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)

	cfg := config.Default()
	cfg.Strategy = config.StrategyOAuth
	cfg.OAuth.TokenURL = ts.URL
	root := t.TempDir()
	return cfg, api.NewOrchestratorFactory(nil, nil, store.NewFileProvider(root)), root
}

func TestDoClaudeLoginOAuth(t *testing.T) {
	cfg, factory, root := oauthLoginSetup(t, http.StatusOK, `{"access_token":"at","refresh_token":"rt","expires_in":3600,"scope":"user:inference user:profile"}`)

	var out bytes.Buffer
	var prompted string
	err := DoClaudeLogin(context.Background(), cfg, factory, "42", &LoginOptions{
		NoBrowser: true,
		Out:       &out,
		Prompt: func(prompt string) (string, error) {
			prompted = prompt
			return "the-code", nil
		},
	})
	if err != nil {
		t.Fatalf("DoClaudeLogin: %v", err)
	}
	if prompted == "" {
		t.Fatal("operator was never asked for the code")
	}
	if !strings.Contains(out.String(), "https://claude.ai/oauth/authorize?") {
		t.Fatalf("sign-in link not printed:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "successful") {
		t.Fatalf("success not reported:\n%s", out.String())
	}
	data, err := os.ReadFile(filepath.Join(root, "42", "credentials.json"))
	if err != nil {
		t.Fatalf("credentials not saved: %v", err)
	}
	if !strings.Contains(string(data), `"accessToken":"at"`) {
		t.Fatalf("unexpected credentials %s", data)
	}
}

func TestDoClaudeLoginRejectedCode(t *testing.T) {
	cfg, factory, _ := oauthLoginSetup(t, http.StatusBadRequest, `{"error":"invalid_grant"}`)
	err := DoClaudeLogin(context.Background(), cfg, factory, "42", &LoginOptions{
		NoBrowser: true,
		Out:       &bytes.Buffer{},
		Prompt:    func(string) (string, error) { return "bad-code", nil },
	})
	if err == nil || !strings.Contains(err.Error(), "failed") {
		t.Fatalf("err = %v, want failure", err)
	}
}

func TestDoClaudeLoginPromptErrorCancels(t *testing.T) {
	cfg, factory, _ := oauthLoginSetup(t, http.StatusOK, `{}`)
	err := DoClaudeLogin(context.Background(), cfg, factory, "42", &LoginOptions{
		NoBrowser: true,
		Out:       &bytes.Buffer{},
		Prompt:    func(string) (string, error) { return "", errors.New("stdin closed") },
	})
	if err == nil || !strings.Contains(err.Error(), "cancelled") {
		t.Fatalf("err = %v, want cancellation", err)
	}
}

func TestDoClaudeLoginFactoryError(t *testing.T) {
	failing := func(context.Context, *config.Config, string) (*auth.Orchestrator, error) {
		return nil, errors.New("no container")
	}
	err := DoClaudeLogin(context.Background(), config.Default(), failing, "42", &LoginOptions{Out: &bytes.Buffer{}})
	if err == nil || !strings.Contains(err.Error(), "no container") {
		t.Fatalf("err = %v", err)
	}
}
