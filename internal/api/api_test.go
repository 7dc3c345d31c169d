package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/router-for-me/ClaudeSessionAuth/internal/config"
	"github.com/router-for-me/ClaudeSessionAuth/internal/container"
	"github.com/router-for-me/ClaudeSessionAuth/internal/container/containertest"
	"github.com/router-for-me/ClaudeSessionAuth/internal/session"
	"github.com/router-for-me/ClaudeSessionAuth/internal/store"
	"github.com/router-for-me/ClaudeSessionAuth/sdk/auth"
)

const testAPIKey = "test-key"

type staticLocator map[string]string

func (l staticLocator) FindContainer(_ context.Context, name string) (string, error) {
	if id, ok := l[name]; ok {
		return id, nil
	}
	return "", fmt.Errorf("%w: %s", container.ErrContainerNotFound, name)
}

type fixture struct {
	srv      *Server
	registry *session.Registry
	root     string
}

func newFixture(t *testing.T, strategy string, tr *containertest.ScriptedTransport) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Strategy = strategy
	cfg.APIKeys = []string{testAPIKey}
	cfg.Interactive.SettleMillis = 1
	root := t.TempDir()

	registry := session.NewRegistry(time.Minute)
	locator := staticLocator{cfg.Container.ContainerName("42"): "c42"}
	var transport container.Transport
	if tr != nil {
		transport = tr
	}
	srv := NewServer(cfg, registry, NewOrchestratorFactory(transport, locator, store.NewFileProvider(root)))
	t.Cleanup(registry.Shutdown)
	return &fixture{srv: srv, registry: registry, root: root}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	return w
}

func decodeSnapshot(t *testing.T, w *httptest.ResponseRecorder) session.Snapshot {
	t.Helper()
	var snap session.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v; body=%s", err, w.Body.String())
	}
	return snap
}

func waitFinished(t *testing.T, r *session.Registry, key string) session.Snapshot {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if snap, ok := r.Get(key); ok && !snap.Active {
			return snap
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("session %s did not finish", key)
	return session.Snapshot{}
}

func TestHealthzNeedsNoKey(t *testing.T) {
	f := newFixture(t, config.StrategyOAuth, nil)
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestSessionRoutesRequireAPIKey(t *testing.T) {
	f := newFixture(t, config.StrategyOAuth, nil)
	cases := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong", "Bearer nope"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v0/sessions/42/auth", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			f.srv.Handler().ServeHTTP(w, req)
			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", w.Code)
			}
		})
	}
}

func TestOAuthSessionLifecycle(t *testing.T) {
	f := newFixture(t, config.StrategyOAuth, nil)

	w := f.do(t, http.MethodPost, "/v0/sessions/42/auth", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("start status = %d, body=%s", w.Code, w.Body.String())
	}
	if snap := decodeSnapshot(t, w); snap.Key != "42" || !snap.Active || snap.ID == "" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	if w = f.do(t, http.MethodPost, "/v0/sessions/42/auth", nil); w.Code != http.StatusConflict {
		t.Fatalf("second start status = %d, want 409", w.Code)
	}

	if w = f.do(t, http.MethodPost, "/v0/sessions/42/auth/code", map[string]string{"code": "hi"}); w.Code != http.StatusBadRequest {
		t.Fatalf("bad code status = %d, want 400", w.Code)
	}
	if w = f.do(t, http.MethodPost, "/v0/sessions/42/auth/code", map[string]string{}); w.Code != http.StatusBadRequest {
		t.Fatalf("empty body status = %d, want 400", w.Code)
	}

	if w = f.do(t, http.MethodDelete, "/v0/sessions/42/auth", nil); w.Code != http.StatusAccepted {
		t.Fatalf("cancel status = %d, want 202", w.Code)
	}
	snap := waitFinished(t, f.registry, "42")
	if snap.State == nil || snap.State.Kind != auth.StateFailed {
		t.Fatalf("final state = %+v, want failed", snap.State)
	}

	w = f.do(t, http.MethodGet, "/v0/sessions/42/auth", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	got := decodeSnapshot(t, w)
	if got.Active || len(got.History) < 2 || got.History[0].Kind != auth.StateStarting {
		t.Fatalf("unexpected history %+v", got.History)
	}

	if w = f.do(t, http.MethodDelete, "/v0/sessions/42/auth", nil); w.Code != http.StatusNotFound {
		t.Fatalf("cancel after finish status = %d, want 404", w.Code)
	}
	if w = f.do(t, http.MethodPost, "/v0/sessions/42/auth/code", map[string]string{"code": "ABC123"}); w.Code != http.StatusNotFound {
		t.Fatalf("code after finish status = %d, want 404", w.Code)
	}
}

func TestRemoveSession(t *testing.T) {
	f := newFixture(t, config.StrategyOAuth, nil)
	if w := f.do(t, http.MethodDelete, "/v0/sessions/42", nil); w.Code != http.StatusNotFound {
		t.Fatalf("remove unknown status = %d, want 404", w.Code)
	}
	if w := f.do(t, http.MethodPost, "/v0/sessions/42/auth", nil); w.Code != http.StatusAccepted {
		t.Fatalf("start status = %d, body=%s", w.Code, w.Body.String())
	}

	if w := f.do(t, http.MethodDelete, "/v0/sessions/42", nil); w.Code != http.StatusOK {
		t.Fatalf("remove status = %d, body=%s", w.Code, w.Body.String())
	}
	if w := f.do(t, http.MethodGet, "/v0/sessions/42/auth", nil); w.Code != http.StatusNotFound {
		t.Fatalf("get after remove status = %d, want 404", w.Code)
	}
	if w := f.do(t, http.MethodPost, "/v0/sessions/42/auth", nil); w.Code != http.StatusAccepted {
		t.Fatalf("restart status = %d, body=%s", w.Code, w.Body.String())
	}
}

func TestGetUnknownSession(t *testing.T) {
	f := newFixture(t, config.StrategyOAuth, nil)
	if w := f.do(t, http.MethodGet, "/v0/sessions/7/auth", nil); w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/v0/sessions/7/auth/stream", nil); w.Code != http.StatusNotFound {
		t.Fatalf("stream status = %d, want 404", w.Code)
	}
}

func TestStartWithoutContainer(t *testing.T) {
	f := newFixture(t, config.StrategyInteractive, &containertest.ScriptedTransport{})
	w := f.do(t, http.MethodPost, "/v0/sessions/99/auth", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404; body=%s", w.Code, w.Body.String())
	}
	if _, ok := f.registry.Get("99"); ok {
		t.Fatal("failed start must not register a session")
	}
}

func TestCredentialStatus(t *testing.T) {
	f := newFixture(t, config.StrategyOAuth, nil)

	w := f.do(t, http.MethodGet, "/v0/sessions/42/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var st auth.Status
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Authenticated {
		t.Fatal("empty store must not be authenticated")
	}

	expiresAt := time.Now().Add(time.Hour).UnixMilli()
	doc := fmt.Sprintf(`{"claudeAiOauth":{"accessToken":"at","refreshToken":"rt","expiresAt":%d,"scopes":["user:inference"],"subscriptionType":"max"}}`, expiresAt)
	dir := filepath.Join(f.root, "42")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "credentials.json"), []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	w = f.do(t, http.MethodGet, "/v0/sessions/42/status", nil)
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !st.Authenticated || !st.CanRefresh || st.SubscriptionType != "max" {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestInteractiveLoginOverWebsocket(t *testing.T) {
	tr := &containertest.ScriptedTransport{Steps: []containertest.Step{
		{Output: "Dark mode"},
		{Output: "Select login method:"},
		{Output: "Use the url below to sign in: https://claude.ai/oauth/authorize?x=1"},
		{Output: "Paste code here if prompted:"},
		{WaitFor: "ABC123", Output: "Login successful"},
		{Output: "Do you trust the files in this folder?"},
	}}
	f := newFixture(t, config.StrategyInteractive, tr)
	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	if w := f.do(t, http.MethodPost, "/v0/sessions/42/auth", nil); w.Code != http.StatusAccepted {
		t.Fatalf("start status = %d, body=%s", w.Code, w.Body.String())
	}

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v0/sessions/42/auth/stream"
	header := http.Header{}
	header.Set("X-Api-Key", testAPIKey)
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	defer func() { _ = conn.Close() }()

	var kinds []auth.StateKind
	var url string
	for {
		_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
		var state auth.AuthState
		if errRead := conn.ReadJSON(&state); errRead != nil {
			if !websocket.IsCloseError(errRead, websocket.CloseNormalClosure) {
				t.Fatalf("read: %v", errRead)
			}
			break
		}
		kinds = append(kinds, state.Kind)
		switch state.Kind {
		case auth.StateURLReady:
			url = state.URL
		case auth.StateWaitingForCode:
			if w := f.do(t, http.MethodPost, "/v0/sessions/42/auth/code", map[string]string{"code": "ABC123"}); w.Code != http.StatusAccepted {
				t.Fatalf("code status = %d, body=%s", w.Code, w.Body.String())
			}
		}
	}

	if len(kinds) == 0 || kinds[0] != auth.StateStarting || kinds[len(kinds)-1] != auth.StateCompleted {
		t.Fatalf("unexpected state sequence %v", kinds)
	}
	if url != "https://claude.ai/oauth/authorize?x=1" {
		t.Fatalf("url = %q", url)
	}
	if specs := tr.Specs(); len(specs) != 1 {
		t.Fatalf("exec count = %d, want 1", len(specs))
	}
	if !strings.Contains(strings.Join(tr.Writes(), ""), "ABC123\r") {
		t.Fatalf("code was not typed: %q", tr.Writes())
	}
}

func TestWriteSessionErrorStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{session.ErrInvalidKey, http.StatusBadRequest},
		{session.ErrNotAuthCode, http.StatusBadRequest},
		{session.ErrSessionNotFound, http.StatusNotFound},
		{session.ErrSessionActive, http.StatusConflict},
		{session.ErrSessionStarting, http.StatusConflict},
		{fmt.Errorf("wrapped: %w", session.ErrSessionActive), http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			writeSessionError(c, tc.err)
			if w.Code != tc.want {
				t.Fatalf("status = %d, want %d", w.Code, tc.want)
			}
		})
	}
}
